package localplatform

import (
	"context"
	"sync"

	"github.com/naveenspark/grimora-push/pkg/domain"
	"github.com/naveenspark/grimora-push/pkg/push"
	"github.com/naveenspark/grimora-push/pkg/vapid"
)

type registration struct {
	p         *Platform
	id        string
	scriptURL string
	scope     string

	mu        sync.Mutex
	state     push.RegistrationState
	listeners map[int]func(push.RegistrationState)
	nextID    int
}

var _ push.Registration = (*registration)(nil)

func newRegistration(p *Platform, id, scriptURL, scope string, state push.RegistrationState) *registration {
	return &registration{
		p:         p,
		id:        id,
		scriptURL: scriptURL,
		scope:     scope,
		state:     state,
		listeners: make(map[int]func(push.RegistrationState)),
	}
}

func (r *registration) Scope() string { return r.scope }

func (r *registration) State() push.RegistrationState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *registration) OnStateChange(fn func(push.RegistrationState)) func() {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

// transition moves to s and notifies listeners outside the lock. A redundant
// worker stays redundant.
func (r *registration) transition(s push.RegistrationState) {
	r.mu.Lock()
	if r.state == s || r.state == push.RegistrationRedundant {
		r.mu.Unlock()
		return
	}
	r.state = s
	fns := make([]func(push.RegistrationState), 0, len(r.listeners))
	for _, fn := range r.listeners {
		fns = append(fns, fn)
	}
	r.mu.Unlock()

	r.p.logger.Debug("worker state", "scope", r.scope, "worker_state", s.String())
	for _, fn := range fns {
		fn(s)
	}
}

func (r *registration) Subscription(ctx context.Context) (*domain.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.p.subscription(r.scope), nil
}

func (r *registration) Subscribe(ctx context.Context, opts push.SubscribeOptions) (*domain.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !opts.UserVisibleOnly {
		return nil, ErrUserVisibleOnly
	}
	if len(opts.ApplicationServerKey) != vapid.KeyLength || !opts.ApplicationServerKey.OnCurve() {
		return nil, ErrInvalidKey
	}
	if s := r.State(); s != push.RegistrationActive {
		return nil, ErrNotActive
	}
	return r.p.subscribe(r, opts.ApplicationServerKey)
}

func (r *registration) Unsubscribe(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return r.p.unsubscribe(r.scope)
}
