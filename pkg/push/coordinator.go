package push

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/naveenspark/grimora-push/pkg/domain"
	"github.com/naveenspark/grimora-push/pkg/vapid"
)

// Coordinator defaults.
const (
	// DefaultActivationTimeout bounds the wait for a worker to become active.
	DefaultActivationTimeout = 10 * time.Second

	// DefaultPollInterval is how often the worker state is polled while waiting.
	DefaultPollInterval = 100 * time.Millisecond

	// DefaultScriptURL is the worker script registered when none is configured.
	DefaultScriptURL = "/sw.js"

	// DefaultScope is the worker scope registered when none is configured.
	DefaultScope = "/"
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithApplicationServerKey sets the base64url VAPID public key.
func WithApplicationServerKey(key string) Option {
	return func(c *Coordinator) {
		c.keyText = key
	}
}

// WithOrigin sets the origin the coordinator runs on, e.g. "https://app.example.com".
func WithOrigin(origin string) Option {
	return func(c *Coordinator) {
		c.origin = origin
	}
}

// WithServiceWorker sets the worker script URL and scope.
func WithServiceWorker(scriptURL, scope string) Option {
	return func(c *Coordinator) {
		c.scriptURL = scriptURL
		c.scope = scope
	}
}

// WithActivationTimeout sets the activation wait bound. The default is
// DefaultActivationTimeout.
func WithActivationTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.activationTimeout = d
		}
	}
}

// WithPollInterval sets how often worker state is polled during activation.
func WithPollInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Coordinator owns the push subscription lifecycle for one origin.
type Coordinator struct {
	platform Platform
	syncer   Syncer
	logger   *slog.Logger

	keyText           string
	origin            string
	scriptURL         string
	scope             string
	activationTimeout time.Duration
	pollInterval      time.Duration

	// ops is a one-slot semaphore: a single mutating operation at a time.
	ops chan struct{}

	mu     sync.RWMutex
	state  State
	key    vapid.PublicKey
	reg    Registration
	sub    *domain.Subscription
	closed bool
}

// New creates a coordinator. Nothing touches the platform until Initialize
// or Subscribe is called.
func New(platform Platform, syncer Syncer, opts ...Option) *Coordinator {
	c := &Coordinator{
		platform:          platform,
		syncer:            syncer,
		logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		scriptURL:         DefaultScriptURL,
		scope:             DefaultScope,
		activationTimeout: DefaultActivationTimeout,
		pollInterval:      DefaultPollInterval,
		ops:               make(chan struct{}, 1),
		state:             StateUninitialized,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Supported reports whether the platform has worker and push support.
func (c *Coordinator) Supported() bool {
	return c.platform.Supported()
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Subscription returns the current subscription, if any.
func (c *Coordinator) Subscription() (domain.Subscription, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.sub == nil {
		return domain.Subscription{}, false
	}
	return *c.sub, true
}

// Status returns support, subscription and permission state. It never fails;
// a permission read error is reported as the default state.
func (c *Coordinator) Status(ctx context.Context) domain.Status {
	st := domain.Status{
		Supported:  c.platform.Supported(),
		Permission: domain.PermissionDefault,
	}

	c.mu.RLock()
	st.Subscribed = c.sub != nil
	c.mu.RUnlock()

	if !st.Supported {
		return st
	}
	p, err := c.platform.Permission(ctx)
	if err != nil {
		c.logger.Debug("permission read failed", "error", err)
		return st
	}
	if domain.ValidPermission(p) {
		st.Permission = p
	}
	return st
}

// Initialize registers the worker, waits for it to activate and adopts any
// existing subscription. It returns nil without doing anything when the
// platform is unsupported; check Supported before relying on push.
// Calling it again after success reuses the registration.
func (c *Coordinator) Initialize(ctx context.Context) error {
	release, err := c.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return c.initialize(ctx)
}

// RequestPermission asks the platform for notification permission and
// returns the resulting state.
func (c *Coordinator) RequestPermission(ctx context.Context) (domain.PermissionState, error) {
	release, err := c.acquire(ctx)
	if err != nil {
		return domain.PermissionDefault, err
	}
	defer release()

	if !c.platform.Supported() {
		return domain.PermissionDefault, ErrNotSupported
	}
	p, err := c.platform.RequestPermission(ctx)
	if err != nil {
		return domain.PermissionDefault, fmt.Errorf("request permission: %w", err)
	}
	c.logger.Info("notification permission", "permission", string(p))
	return p, nil
}

// Subscribe obtains permission, subscribes the worker and stores the
// subscription remotely for userID. Initialize runs first if needed.
//
// If the remote store fails the error wraps ErrSyncFailed and the local
// subscription is kept.
func (c *Coordinator) Subscribe(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrInvalidUser
	}

	release, err := c.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	c.mu.RLock()
	reg := c.reg
	c.mu.RUnlock()
	if reg == nil {
		if err := c.initialize(ctx); err != nil {
			return err
		}
		c.mu.RLock()
		reg = c.reg
		c.mu.RUnlock()
		if reg == nil {
			return ErrNotSupported
		}
	}

	c.mu.RLock()
	key := c.key
	c.mu.RUnlock()

	c.setState(StateRequestingPermission)
	perm, err := c.platform.RequestPermission(ctx)
	if err != nil {
		c.setState(c.restingState())
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("request permission: %w", err)
	}
	if perm != domain.PermissionGranted {
		c.setState(c.restingState())
		return fmt.Errorf("%w: permission is %s, change it in the platform's notification settings", ErrPermissionDenied, perm)
	}

	c.setState(StateSubscribing)
	sub, err := reg.Subscribe(ctx, SubscribeOptions{
		UserVisibleOnly:      true,
		ApplicationServerKey: key,
	})
	if err != nil {
		c.setState(c.restingState())
		return fmt.Errorf("%w: %w", ErrSubscriptionFailed, err)
	}
	if sub == nil || sub.IsZero() {
		c.setState(c.restingState())
		return fmt.Errorf("%w: platform returned no subscription", ErrSubscriptionFailed)
	}

	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()
	c.setState(StateSubscribed)
	c.logger.Info("push subscription created", "user_id", userID, "endpoint", sub.Endpoint)

	if err := c.syncer.Persist(ctx, userID, *sub); err != nil {
		c.logger.Warn("subscription not stored remotely", "user_id", userID, "endpoint", sub.Endpoint, "error", err)
		return fmt.Errorf("%w: %w", ErrSyncFailed, err)
	}
	c.logger.Debug("subscription stored remotely", "user_id", userID, "endpoint", sub.Endpoint)
	return nil
}

// Unsubscribe revokes the current subscription. It succeeds without doing
// anything when there is no subscription.
//
// The remote record is not deleted.
func (c *Coordinator) Unsubscribe(ctx context.Context) error {
	release, err := c.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	c.mu.RLock()
	reg, sub := c.reg, c.sub
	c.mu.RUnlock()
	if reg == nil || sub == nil {
		c.logger.Debug("unsubscribe: no subscription")
		return nil
	}

	revoked, err := reg.Unsubscribe(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}
	if !revoked {
		c.logger.Warn("platform had no subscription to revoke", "endpoint", sub.Endpoint)
	}

	c.mu.Lock()
	c.sub = nil
	c.mu.Unlock()
	c.setState(StateReady)
	// TODO: remove the server-side record once the endpoint supports a
	// delete operation; until then it goes stale here.
	c.logger.Info("push subscription revoked", "endpoint", sub.Endpoint)
	return nil
}

// Close releases the coordinator. Later operations fail with ErrClosed.
// It does not wait for an operation already in flight.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.reg = nil
	c.sub = nil
	c.logger.Debug("coordinator closed")
	return nil
}

// acquire takes the operation slot, honouring ctx while waiting.
func (c *Coordinator) acquire(ctx context.Context) (func(), error) {
	select {
	case c.ops <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	release := func() { <-c.ops }

	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		release()
		return nil, ErrClosed
	}
	return release, nil
}

func (c *Coordinator) initialize(ctx context.Context) error {
	if !c.platform.Supported() {
		c.logger.Info("push not supported on this platform")
		return nil
	}
	if !IsSecureOrigin(c.origin) {
		return fmt.Errorf("%w: %q is neither https nor loopback", ErrInsecureContext, c.origin)
	}

	key, err := vapid.Decode(c.keyText)
	if err != nil {
		return err
	}
	if !key.Uncompressed() {
		c.logger.Warn("application server key lacks the uncompressed point marker",
			"first_byte", fmt.Sprintf("0x%02x", key[0]), "on_curve", key.OnCurve())
	}

	c.mu.RLock()
	existing := c.reg
	c.mu.RUnlock()
	if existing != nil {
		c.logger.Debug("reusing worker registration", "scope", existing.Scope())
		return nil
	}

	c.setState(StateRegistering)
	reg, err := c.platform.Register(ctx, c.scriptURL, c.scope)
	if err != nil {
		c.setState(StateUninitialized)
		return fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
	}
	if err := c.waitActive(ctx, reg); err != nil {
		c.setState(StateUninitialized)
		return err
	}

	sub, err := reg.Subscription(ctx)
	if err != nil {
		c.logger.Warn("could not read existing subscription", "error", err)
		sub = nil
	}
	if sub != nil && sub.IsZero() {
		sub = nil
	}

	c.mu.Lock()
	c.key = key
	c.reg = reg
	c.sub = sub
	c.mu.Unlock()

	if sub != nil {
		c.logger.Info("adopted existing push subscription", "endpoint", sub.Endpoint)
		c.setState(StateSubscribed)
		return nil
	}
	c.setState(StateReady)
	return nil
}

// waitActive blocks until reg is active. The state-change listener and the
// poller both feed one latch; whichever sees the terminal state first wins.
func (c *Coordinator) waitActive(ctx context.Context, reg Registration) error {
	if reg.State() == RegistrationActive {
		return nil
	}

	settled := newLatch[RegistrationState]()
	settle := func(s RegistrationState) {
		if s != RegistrationActive && s != RegistrationRedundant {
			return
		}
		if settled.resolve(s) {
			c.logger.Debug("worker settled", "worker_state", s.String())
		}
	}

	stop := reg.OnStateChange(settle)
	defer stop()
	// Catch a transition that happened before the listener was attached.
	settle(reg.State())

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	timer := time.NewTimer(c.activationTimeout)
	defer timer.Stop()

	for {
		select {
		case <-settled.Done():
			return c.activationResult(settled.Value())
		case <-ticker.C:
			settle(reg.State())
		case <-timer.C:
			select {
			case <-settled.Done():
				return c.activationResult(settled.Value())
			default:
			}
			return fmt.Errorf("%w: worker still %s after %s", ErrActivationTimeout, reg.State(), c.activationTimeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Coordinator) activationResult(s RegistrationState) error {
	if s == RegistrationRedundant {
		return fmt.Errorf("%w: worker became redundant before activating", ErrRegistrationFailed)
	}
	return nil
}

// restingState is where a failed subscribe attempt returns to.
func (c *Coordinator) restingState() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.sub != nil {
		return StateSubscribed
	}
	return StateReady
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	old := c.state
	c.state = s
	c.mu.Unlock()
	if old != s {
		c.logger.Debug("push state", "old_state", old.String(), "new_state", s.String())
	}
}
