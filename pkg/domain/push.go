package domain

import "time"

// Subscription is a live push subscription issued by the platform's push service.
// Endpoint is the URL the push service accepts messages on; Auth and P256dh are the
// raw client secret and client public key used to encrypt payloads.
type Subscription struct {
	Endpoint       string     `json:"endpoint"`
	Auth           []byte     `json:"auth"`
	P256dh         []byte     `json:"p256dh"`
	ExpirationTime *time.Time `json:"expiration_time,omitempty"`
}

// IsZero reports whether s carries no endpoint.
func (s Subscription) IsZero() bool {
	return s.Endpoint == ""
}

// PermissionState is the user's notification consent for an origin.
type PermissionState string

// Permission states, matching the platform's string values.
const (
	PermissionDefault PermissionState = "default"
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
)

// ValidPermission returns true if p is one of the known permission states.
func ValidPermission(p PermissionState) bool {
	switch p {
	case PermissionDefault, PermissionGranted, PermissionDenied:
		return true
	default:
		return false
	}
}

// Status is a point-in-time snapshot of push support and subscription state.
type Status struct {
	Supported  bool            `json:"supported"`
	Subscribed bool            `json:"subscribed"`
	Permission PermissionState `json:"permission"`
}
