package push

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/naveenspark/grimora-push/pkg/domain"
)

const testKey = "BELqHYNGLPs3EIxn6y7lMopZIpyXAKWY84Kci2FvTIW_bBSBj2l7d6e8Hp1kFKYhwF2miGYrjj9kDSX_oUfa070"

type fakeRegistration struct {
	mu        sync.Mutex
	state     RegistrationState
	listeners map[int]func(RegistrationState)
	nextID    int

	// silent suppresses state-change events so only polling can observe them.
	silent bool
	// stateReads scripts the values returned by State before falling back to state.
	stateReads []RegistrationState
	// announceOnAttach makes OnStateChange report the current state immediately.
	announceOnAttach bool

	sub            *domain.Subscription
	existingErr    error
	subscribeErr   error
	unsubscribeErr error
	subscribeCalls int
	unsubCalls     int
	lastOpts       SubscribeOptions
}

func newFakeRegistration(state RegistrationState) *fakeRegistration {
	return &fakeRegistration{state: state, listeners: make(map[int]func(RegistrationState))}
}

func (r *fakeRegistration) Scope() string { return "/" }

func (r *fakeRegistration) State() RegistrationState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.stateReads) > 0 {
		s := r.stateReads[0]
		r.stateReads = r.stateReads[1:]
		return s
	}
	return r.state
}

func (r *fakeRegistration) OnStateChange(fn func(RegistrationState)) func() {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn
	announce, current := r.announceOnAttach, r.state
	r.mu.Unlock()
	if announce {
		fn(current)
	}
	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

func (r *fakeRegistration) listenerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners)
}

func (r *fakeRegistration) transition(s RegistrationState) {
	r.mu.Lock()
	r.state = s
	var fns []func(RegistrationState)
	if !r.silent {
		for _, fn := range r.listeners {
			fns = append(fns, fn)
		}
	}
	r.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

func (r *fakeRegistration) Subscription(context.Context) (*domain.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.existingErr != nil {
		return nil, r.existingErr
	}
	return r.sub, nil
}

func (r *fakeRegistration) Subscribe(_ context.Context, opts SubscribeOptions) (*domain.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribeCalls++
	r.lastOpts = opts
	if r.subscribeErr != nil {
		return nil, r.subscribeErr
	}
	r.sub = &domain.Subscription{
		Endpoint: "https://push.example.com/send/abc123",
		Auth:     []byte("0123456789abcdef"),
		P256dh:   append([]byte{0x04}, make([]byte, 64)...),
	}
	return r.sub, nil
}

func (r *fakeRegistration) Unsubscribe(context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsubCalls++
	if r.unsubscribeErr != nil {
		return false, r.unsubscribeErr
	}
	had := r.sub != nil
	r.sub = nil
	return had, nil
}

type fakePlatform struct {
	mu          sync.Mutex
	unsupported bool
	reg         *fakeRegistration
	registerErr error

	permission    domain.PermissionState
	answer        domain.PermissionState
	permissionErr error
	// requestErr, when set, fails RequestPermission without prompting.
	requestErr error
	// gate, when set, blocks RequestPermission until it is closed.
	gate chan struct{}

	registerCalls int
	requestCalls  int
	inFlight      atomic.Int32
	maxInFlight   atomic.Int32
}

func newFakePlatform(reg *fakeRegistration) *fakePlatform {
	return &fakePlatform{
		reg:        reg,
		permission: domain.PermissionDefault,
		answer:     domain.PermissionGranted,
	}
}

func (p *fakePlatform) Supported() bool { return !p.unsupported }

func (p *fakePlatform) Register(context.Context, string, string) (Registration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registerCalls++
	if p.registerErr != nil {
		return nil, p.registerErr
	}
	return p.reg, nil
}

func (p *fakePlatform) Permission(context.Context) (domain.PermissionState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.permissionErr != nil {
		return "", p.permissionErr
	}
	return p.permission, nil
}

func (p *fakePlatform) RequestPermission(ctx context.Context) (domain.PermissionState, error) {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		m := p.maxInFlight.Load()
		if n <= m || p.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}

	p.mu.Lock()
	p.requestCalls++
	gate := p.gate
	requestErr := p.requestErr
	p.mu.Unlock()
	if requestErr != nil {
		return "", requestErr
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.permission == domain.PermissionDefault {
		p.permission = p.answer
	}
	return p.permission, nil
}

func (p *fakePlatform) calls() (register, request int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.registerCalls, p.requestCalls
}

type persistCall struct {
	userID string
	sub    domain.Subscription
}

type fakeSyncer struct {
	mu    sync.Mutex
	err   error
	calls []persistCall
}

func (s *fakeSyncer) Persist(_ context.Context, userID string, sub domain.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, persistCall{userID: userID, sub: sub})
	return s.err
}

func (s *fakeSyncer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

var errBoom = errors.New("boom")

func newTestCoordinator(p Platform, s Syncer, opts ...Option) *Coordinator {
	base := []Option{
		WithApplicationServerKey(testKey),
		WithOrigin("https://admin.example.com"),
		WithActivationTimeout(2 * time.Second),
		WithPollInterval(5 * time.Millisecond),
	}
	return New(p, s, append(base, opts...)...)
}
