package push

import (
	"context"

	"github.com/naveenspark/grimora-push/pkg/domain"
	"github.com/naveenspark/grimora-push/pkg/vapid"
)

// RegistrationState is the lifecycle stage of a registered background worker.
type RegistrationState uint8

const (
	// RegistrationInstalling means the worker script is being installed.
	RegistrationInstalling RegistrationState = iota

	// RegistrationWaiting means the worker is installed and waiting to take over.
	RegistrationWaiting

	// RegistrationActive means the worker controls the scope and can receive pushes.
	RegistrationActive

	// RegistrationRedundant means the worker was discarded and will never activate.
	RegistrationRedundant
)

// String returns the platform's name for the state.
func (s RegistrationState) String() string {
	switch s {
	case RegistrationInstalling:
		return "installing"
	case RegistrationWaiting:
		return "waiting"
	case RegistrationActive:
		return "active"
	case RegistrationRedundant:
		return "redundant"
	default:
		return "unknown"
	}
}

// SubscribeOptions are passed to Registration.Subscribe.
type SubscribeOptions struct {
	// UserVisibleOnly promises that every push results in a visible notification.
	// The coordinator always sets it.
	UserVisibleOnly bool

	// ApplicationServerKey is the decoded VAPID public key.
	ApplicationServerKey vapid.PublicKey
}

// Platform is the host's push capability: worker container plus permission store.
type Platform interface {
	// Supported reports whether both background workers and push are available.
	Supported() bool

	// Register registers the worker script for scope, or returns the existing
	// registration for that scope.
	Register(ctx context.Context, scriptURL, scope string) (Registration, error)

	// Permission returns the current notification permission without prompting.
	Permission(ctx context.Context) (domain.PermissionState, error)

	// RequestPermission prompts the user if the permission is still default and
	// returns the resulting state. It blocks until the user answers.
	RequestPermission(ctx context.Context) (domain.PermissionState, error)
}

// Registration is a handle to a registered background worker.
type Registration interface {
	// Scope returns the scope the worker controls.
	Scope() string

	// State returns the worker's current lifecycle stage.
	State() RegistrationState

	// OnStateChange registers fn to be called on every state change and returns
	// a function that removes it. fn may be called from any goroutine.
	OnStateChange(fn func(RegistrationState)) (cancel func())

	// Subscription returns the registration's current subscription, or nil.
	Subscription(ctx context.Context) (*domain.Subscription, error)

	// Subscribe creates a subscription, or returns the existing one if it was
	// created with the same application server key.
	Subscribe(ctx context.Context, opts SubscribeOptions) (*domain.Subscription, error)

	// Unsubscribe revokes the current subscription. It reports false if there
	// was nothing to revoke.
	Unsubscribe(ctx context.Context) (bool, error)
}

// Syncer stores subscriptions in the remote persistence endpoint.
type Syncer interface {
	// Persist saves sub for userID. Repeated calls for the same endpoint
	// overwrite the stored record.
	Persist(ctx context.Context, userID string, sub domain.Subscription) error
}
