package push

import "errors"

// Lifecycle errors. Callers branch on these with errors.Is.
var (
	// ErrNotSupported means the platform lacks worker or push support.
	ErrNotSupported = errors.New("push notifications not supported")

	// ErrInsecureContext means the origin is neither https nor loopback.
	ErrInsecureContext = errors.New("push requires a secure context")

	// ErrRegistrationFailed means the worker could not be registered or was discarded.
	ErrRegistrationFailed = errors.New("worker registration failed")

	// ErrActivationTimeout means the worker did not reach the active state in time.
	ErrActivationTimeout = errors.New("worker activation timed out")

	// ErrPermissionDenied means the user did not grant notification permission.
	ErrPermissionDenied = errors.New("notification permission denied")

	// ErrSubscriptionFailed means the push manager rejected the subscribe call.
	ErrSubscriptionFailed = errors.New("push subscription failed")

	// ErrUnsubscribeFailed means the platform could not revoke the subscription.
	ErrUnsubscribeFailed = errors.New("push unsubscribe failed")

	// ErrSyncFailed means the subscription exists locally but was not stored remotely.
	ErrSyncFailed = errors.New("subscription sync failed")

	// ErrInvalidUser means Subscribe was called without a user ID.
	ErrInvalidUser = errors.New("user id is required")

	// ErrClosed means the coordinator has been closed.
	ErrClosed = errors.New("coordinator closed")
)

// Retryable reports whether repeating the failed operation unchanged may succeed.
// Configuration errors (bad key, insecure origin) and user decisions
// (permission denied) are not retryable.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrActivationTimeout),
		errors.Is(err, ErrRegistrationFailed),
		errors.Is(err, ErrSubscriptionFailed),
		errors.Is(err, ErrUnsubscribeFailed),
		errors.Is(err, ErrSyncFailed):
		return true
	default:
		return false
	}
}
