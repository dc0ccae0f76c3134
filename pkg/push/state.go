package push

// State is the coordinator's lifecycle state.
type State uint8

const (
	// StateUninitialized means no worker registration is held.
	StateUninitialized State = iota

	// StateRegistering means registration or activation is in progress.
	StateRegistering

	// StateReady means the worker is active and there is no subscription.
	StateReady

	// StateRequestingPermission means the user is being asked for consent.
	StateRequestingPermission

	// StateSubscribing means the push manager subscribe call is in progress.
	StateSubscribing

	// StateSubscribed means a subscription is held.
	StateSubscribed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateRegistering:
		return "REGISTERING"
	case StateReady:
		return "READY"
	case StateRequestingPermission:
		return "REQUESTING_PERMISSION"
	case StateSubscribing:
		return "SUBSCRIBING"
	case StateSubscribed:
		return "SUBSCRIBED"
	default:
		return "UNKNOWN"
	}
}
