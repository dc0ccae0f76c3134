// Package vapid decodes the application server (VAPID) public key that
// authenticates an application to a push service.
//
// Keys are distributed as unpadded base64url strings. The push protocol
// requires the 65-byte uncompressed P-256 point encoding:
//
//	0x04 || X (32 bytes) || Y (32 bytes)
//
// Decode enforces the length strictly and never converts compressed or raw
// 32-byte forms. The 0x04 marker is reported through PublicKey.Uncompressed
// rather than enforced, because some providers ship keys without it.
package vapid
