package vapid

import (
	"bytes"
	"crypto/ecdh"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Key encoding constants.
const (
	// KeyLength is the length of an uncompressed P-256 point.
	KeyLength = 65

	// UncompressedMarker is the leading byte of an uncompressed EC point.
	UncompressedMarker = 0x04

	// rawKeyLength is the length of a compressed-without-prefix or raw scalar form.
	rawKeyLength = 32
)

// ErrInvalidKeyFormat is returned when a key does not decode to the
// uncompressed point encoding.
var ErrInvalidKeyFormat = errors.New("invalid application server key format")

// PublicKey is a decoded application server key. Treat it as immutable.
type PublicKey []byte

// Decode converts a base64url key string into its raw bytes.
func Decode(s string) (PublicKey, error) {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if cleaned == "" {
		return nil, fmt.Errorf("%w: key is empty", ErrInvalidKeyFormat)
	}

	if rem := len(cleaned) % 4; rem != 0 {
		cleaned += strings.Repeat("=", 4-rem)
	}
	cleaned = strings.NewReplacer("-", "+", "_", "/").Replace(cleaned)

	raw, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyFormat, err)
	}

	switch len(raw) {
	case KeyLength:
		return PublicKey(raw), nil
	case rawKeyLength:
		return nil, fmt.Errorf("%w: got %d bytes, push requires the %d-byte uncompressed P-256 point (0x04 || X || Y); compressed or raw keys are not accepted",
			ErrInvalidKeyFormat, len(raw), KeyLength)
	default:
		return nil, fmt.Errorf("%w: got %d bytes, want %d-byte uncompressed P-256 point",
			ErrInvalidKeyFormat, len(raw), KeyLength)
	}
}

// MustDecode is like Decode but panics on error. For tests and constants only.
func MustDecode(s string) PublicKey {
	k, err := Decode(s)
	if err != nil {
		panic(err)
	}
	return k
}

// Uncompressed reports whether the key starts with the 0x04 point marker.
func (k PublicKey) Uncompressed() bool {
	return len(k) == KeyLength && k[0] == UncompressedMarker
}

// OnCurve reports whether the key is a valid point on P-256.
func (k PublicKey) OnCurve() bool {
	_, err := ecdh.P256().NewPublicKey(k)
	return err == nil
}

// String returns the unpadded base64url form of the key.
func (k PublicKey) String() string {
	return base64.RawURLEncoding.EncodeToString(k)
}

// Equal reports whether two keys hold the same bytes.
func (k PublicKey) Equal(other PublicKey) bool {
	return bytes.Equal(k, other)
}
