package domain

import "testing"

func TestValidPermission(t *testing.T) {
	tests := []struct {
		name  string
		p     PermissionState
		valid bool
	}{
		{"default", PermissionDefault, true},
		{"granted", PermissionGranted, true},
		{"denied", PermissionDenied, true},
		{"empty", "", false},
		{"prompt", "prompt", false},
		{"capitalized", "Granted", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidPermission(tt.p); got != tt.valid {
				t.Errorf("ValidPermission(%q) = %v, want %v", tt.p, got, tt.valid)
			}
		})
	}
}

func TestSubscriptionIsZero(t *testing.T) {
	if !(Subscription{}).IsZero() {
		t.Error("zero Subscription.IsZero() = false, want true")
	}
	s := Subscription{Endpoint: "https://push.example.com/abc"}
	if s.IsZero() {
		t.Error("Subscription with endpoint IsZero() = true, want false")
	}
}
