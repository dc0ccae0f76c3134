// Package localplatform is a push.Platform backed by a JSON file.
//
// It stands in for a browser's worker container and permission store so the
// coordinator can be driven from a terminal. Registrations step through the
// worker lifecycle on timers, permission answers persist like a site
// setting, and subscriptions are minted with real P-256 key material.
package localplatform

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/naveenspark/grimora-push/pkg/domain"
	"github.com/naveenspark/grimora-push/pkg/push"
	"github.com/naveenspark/grimora-push/pkg/vapid"
)

const (
	stateFile = "platform.json"

	// DefaultPushServiceURL prefixes minted subscription endpoints.
	DefaultPushServiceURL = "https://push.grimora.ai/wpush/v2"

	// DefaultStepDelay is the time between worker lifecycle stages.
	DefaultStepDelay = 150 * time.Millisecond

	authSecretLength = 16
)

var (
	// ErrNotActive means Subscribe was called before the worker became active.
	ErrNotActive = errors.New("worker is not active")

	// ErrUserVisibleOnly means Subscribe was called without the user-visible promise.
	ErrUserVisibleOnly = errors.New("subscriptions must be user visible")

	// ErrPermissionNotGranted means Subscribe was called without granted permission.
	ErrPermissionNotGranted = errors.New("notification permission not granted")

	// ErrKeyMismatch means a subscription made with another key must be revoked first.
	ErrKeyMismatch = errors.New("a subscription with a different application server key already exists")

	// ErrInvalidKey means the application server key is not a 65-byte P-256 point.
	ErrInvalidKey = errors.New("application server key is not a P-256 public key")

	// ErrNoScript means Register was called with an empty script URL.
	ErrNoScript = errors.New("worker script URL is empty")

	// ErrClosed means the platform has been closed.
	ErrClosed = errors.New("platform closed")
)

// Option configures a Platform.
type Option func(*Platform)

// WithPushServiceURL sets the prefix for minted endpoints.
func WithPushServiceURL(u string) Option {
	return func(p *Platform) {
		if u != "" {
			p.pushServiceURL = strings.TrimRight(u, "/")
		}
	}
}

// WithStepDelay sets the time between lifecycle stages of a new install.
func WithStepDelay(d time.Duration) Option {
	return func(p *Platform) {
		if d >= 0 {
			p.stepDelay = d
		}
	}
}

// WithPrompter sets how the user is asked for permission.
func WithPrompter(pr Prompter) Option {
	return func(p *Platform) {
		if pr != nil {
			p.prompter = pr
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Platform) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// persisted is the on-disk state.
type persisted struct {
	Permission    domain.PermissionState         `json:"permission,omitempty"`
	Registrations map[string]*registrationRecord `json:"registrations,omitempty"`
}

type registrationRecord struct {
	ID           string              `json:"id"`
	ScriptURL    string              `json:"script_url"`
	Scope        string              `json:"scope"`
	RegisteredAt time.Time           `json:"registered_at"`
	Subscription *subscriptionRecord `json:"subscription,omitempty"`
}

type subscriptionRecord struct {
	domain.Subscription
	ApplicationServerKey string    `json:"application_server_key"`
	CreatedAt            time.Time `json:"created_at"`
}

// Platform is a file-backed push.Platform. Use New to create one.
type Platform struct {
	dir            string
	pushServiceURL string
	stepDelay      time.Duration
	prompter       Prompter
	logger         *slog.Logger

	mu     sync.Mutex
	state  persisted
	live   map[string]*registration
	closed bool

	done chan struct{}
	wg   sync.WaitGroup
}

var _ push.Platform = (*Platform)(nil)

// New opens the platform state in dir, creating the directory if needed.
func New(dir string, opts ...Option) (*Platform, error) {
	p := &Platform{
		dir:            dir,
		pushServiceURL: DefaultPushServiceURL,
		stepDelay:      DefaultStepDelay,
		prompter:       Answer(domain.PermissionDefault),
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		live:           make(map[string]*registration),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("localplatform: create state dir: %w", err)
	}
	if err := p.load(); err != nil {
		return nil, err
	}
	return p, nil
}

// Supported always reports true.
func (p *Platform) Supported() bool { return true }

// Register returns the registration for scope, installing it first if it
// has never been registered. A previously persisted registration comes back
// active; a new one steps through installing and waiting first.
func (p *Platform) Register(ctx context.Context, scriptURL, scope string) (push.Registration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(scriptURL) == "" {
		return nil, ErrNoScript
	}
	if scope == "" {
		scope = "/"
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}

	if r, ok := p.live[scope]; ok && r.scriptURL == scriptURL {
		return r, nil
	}

	rec := p.state.Registrations[scope]
	if rec != nil && rec.ScriptURL == scriptURL {
		r := newRegistration(p, rec.ID, scriptURL, scope, push.RegistrationActive)
		p.live[scope] = r
		p.logger.Debug("worker registration restored", "scope", scope, "registration_id", rec.ID)
		return r, nil
	}

	// New install, or an update to a different script. An update keeps the
	// existing subscription the way a browser does.
	next := &registrationRecord{
		ID:           uuid.NewString(),
		ScriptURL:    scriptURL,
		Scope:        scope,
		RegisteredAt: time.Now().UTC(),
	}
	if rec != nil {
		next.Subscription = rec.Subscription
	}
	if p.state.Registrations == nil {
		p.state.Registrations = make(map[string]*registrationRecord)
	}
	p.state.Registrations[scope] = next
	if err := p.saveLocked(); err != nil {
		p.state.Registrations[scope] = rec
		return nil, err
	}

	if old, ok := p.live[scope]; ok {
		// Listeners run outside mu; Close waits for them.
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			old.transition(push.RegistrationRedundant)
		}()
	}
	r := newRegistration(p, next.ID, scriptURL, scope, push.RegistrationInstalling)
	p.live[scope] = r
	p.logger.Info("worker installing", "scope", scope, "script", scriptURL, "registration_id", next.ID)

	p.wg.Add(1)
	go p.install(r)
	return r, nil
}

// install walks r through the remaining lifecycle stages.
func (p *Platform) install(r *registration) {
	defer p.wg.Done()
	for _, next := range []push.RegistrationState{push.RegistrationWaiting, push.RegistrationActive} {
		t := time.NewTimer(p.stepDelay)
		select {
		case <-t.C:
		case <-p.done:
			t.Stop()
			return
		}
		r.transition(next)
	}
}

// Registered reports whether a registration for scope has been persisted.
// It never installs anything.
func (p *Platform) Registered(scope string) bool {
	if scope == "" {
		scope = "/"
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Registrations[scope] != nil
}

// Permission returns the stored permission.
func (p *Platform) Permission(ctx context.Context) (domain.PermissionState, error) {
	if err := ctx.Err(); err != nil {
		return domain.PermissionDefault, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.permissionLocked(), nil
}

// RequestPermission prompts when the permission is still default. A granted
// or denied answer is persisted; a dismissed prompt leaves it default.
func (p *Platform) RequestPermission(ctx context.Context) (domain.PermissionState, error) {
	current, err := p.Permission(ctx)
	if err != nil {
		return current, err
	}
	if current != domain.PermissionDefault {
		return current, nil
	}

	// The prompt can block for as long as the user takes; don't hold mu.
	answer, err := p.prompter.Prompt(ctx)
	if err != nil {
		return domain.PermissionDefault, fmt.Errorf("permission prompt: %w", err)
	}
	if !domain.ValidPermission(answer) || answer == domain.PermissionDefault {
		p.logger.Debug("permission prompt dismissed")
		return domain.PermissionDefault, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing := p.permissionLocked(); existing != domain.PermissionDefault {
		return existing, nil
	}
	p.state.Permission = answer
	if err := p.saveLocked(); err != nil {
		p.state.Permission = domain.PermissionDefault
		return domain.PermissionDefault, err
	}
	p.logger.Info("permission stored", "permission", string(answer))
	return answer, nil
}

// Reset forgets all registrations, subscriptions and the stored permission.
// Live registrations become redundant.
func (p *Platform) Reset() error {
	p.mu.Lock()
	live := p.live
	p.live = make(map[string]*registration)
	p.state = persisted{}
	err := os.Remove(p.path())
	p.mu.Unlock()

	for _, r := range live {
		r.transition(push.RegistrationRedundant)
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("localplatform: reset: %w", err)
	}
	p.logger.Info("platform state reset", "dir", p.dir)
	return nil
}

// Close stops pending lifecycle timers.
func (p *Platform) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()
	p.wg.Wait()
	return nil
}

func (p *Platform) permissionLocked() domain.PermissionState {
	if domain.ValidPermission(p.state.Permission) {
		return p.state.Permission
	}
	return domain.PermissionDefault
}

func (p *Platform) subscription(scope string) *domain.Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec := p.state.Registrations[scope]
	if rec == nil || rec.Subscription == nil {
		return nil
	}
	sub := rec.Subscription.Subscription
	return &sub
}

func (p *Platform) subscribe(r *registration, key vapid.PublicKey) (*domain.Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.permissionLocked() != domain.PermissionGranted {
		return nil, ErrPermissionNotGranted
	}
	rec := p.state.Registrations[r.scope]
	if rec == nil || rec.ID != r.id {
		return nil, fmt.Errorf("%w: registration was removed", ErrNotActive)
	}

	keyText := key.String()
	if rec.Subscription != nil {
		if rec.Subscription.ApplicationServerKey != keyText {
			return nil, ErrKeyMismatch
		}
		sub := rec.Subscription.Subscription
		return &sub, nil
	}

	sub, err := p.mint()
	if err != nil {
		return nil, err
	}
	rec.Subscription = &subscriptionRecord{
		Subscription:         sub,
		ApplicationServerKey: keyText,
		CreatedAt:            time.Now().UTC(),
	}
	if err := p.saveLocked(); err != nil {
		rec.Subscription = nil
		return nil, err
	}
	p.logger.Info("subscription minted", "scope", r.scope, "endpoint", sub.Endpoint)
	return &sub, nil
}

func (p *Platform) unsubscribe(scope string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec := p.state.Registrations[scope]
	if rec == nil || rec.Subscription == nil {
		return false, nil
	}
	prev := rec.Subscription
	rec.Subscription = nil
	if err := p.saveLocked(); err != nil {
		rec.Subscription = prev
		return false, err
	}
	p.logger.Info("subscription removed", "scope", scope, "endpoint", prev.Endpoint)
	return true, nil
}

// mint creates endpoint and key material for a new subscription.
func (p *Platform) mint() (domain.Subscription, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return domain.Subscription{}, fmt.Errorf("localplatform: generate p256dh: %w", err)
	}
	auth := make([]byte, authSecretLength)
	if _, err := rand.Read(auth); err != nil {
		return domain.Subscription{}, fmt.Errorf("localplatform: generate auth secret: %w", err)
	}
	return domain.Subscription{
		Endpoint: p.pushServiceURL + "/" + uuid.NewString(),
		Auth:     auth,
		P256dh:   priv.PublicKey().Bytes(),
	}, nil
}

func (p *Platform) path() string {
	return filepath.Join(p.dir, stateFile)
}

func (p *Platform) load() error {
	data, err := os.ReadFile(p.path())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("localplatform: read state: %w", err)
	}
	if err := json.Unmarshal(data, &p.state); err != nil {
		return fmt.Errorf("localplatform: parse %s: %w", p.path(), err)
	}
	return nil
}

// saveLocked writes the state atomically. Caller holds mu.
func (p *Platform) saveLocked() error {
	data, err := json.MarshalIndent(p.state, "", "  ")
	if err != nil {
		return fmt.Errorf("localplatform: encode state: %w", err)
	}
	tmp := p.path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("localplatform: write state: %w", err)
	}
	if err := os.Rename(tmp, p.path()); err != nil {
		return fmt.Errorf("localplatform: write state: %w", err)
	}
	return nil
}
