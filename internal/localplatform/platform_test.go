package localplatform

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naveenspark/grimora-push/pkg/domain"
	"github.com/naveenspark/grimora-push/pkg/push"
	"github.com/naveenspark/grimora-push/pkg/vapid"
)

const testKeyText = "BELqHYNGLPs3EIxn6y7lMopZIpyXAKWY84Kci2FvTIW_bBSBj2l7d6e8Hp1kFKYhwF2miGYrjj9kDSX_oUfa070"

var testKey = vapid.MustDecode(testKeyText)

func newTestPlatform(t *testing.T, dir string, opts ...Option) *Platform {
	t.Helper()
	opts = append([]Option{WithStepDelay(time.Millisecond)}, opts...)
	p, err := New(dir, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func waitActive(t *testing.T, reg push.Registration) {
	t.Helper()
	require.Eventually(t, func() bool {
		return reg.State() == push.RegistrationActive
	}, 2*time.Second, time.Millisecond)
}

func grantedPlatform(t *testing.T, dir string, opts ...Option) (*Platform, push.Registration) {
	t.Helper()
	opts = append([]Option{WithPrompter(Answer(domain.PermissionGranted))}, opts...)
	p := newTestPlatform(t, dir, opts...)
	ctx := context.Background()

	perm, err := p.RequestPermission(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.PermissionGranted, perm)

	reg, err := p.Register(ctx, "/sw.js", "/")
	require.NoError(t, err)
	waitActive(t, reg)
	return p, reg
}

func otherKey(t *testing.T) vapid.PublicKey {
	t.Helper()
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	return vapid.PublicKey(priv.PublicKey().Bytes())
}

func TestRegister_NewInstallStepsThroughLifecycle(t *testing.T) {
	p := newTestPlatform(t, t.TempDir(), WithStepDelay(10*time.Millisecond))

	reg, err := p.Register(context.Background(), "/sw.js", "/")
	require.NoError(t, err)
	assert.Equal(t, "/", reg.Scope())

	var mu sync.Mutex
	var seen []push.RegistrationState
	cancel := reg.OnStateChange(func(s push.RegistrationState) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})
	defer cancel()

	waitActive(t, reg)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	assert.Equal(t, push.RegistrationActive, seen[len(seen)-1])
}

func TestRegister_SameScopeReturnsSameHandle(t *testing.T) {
	p := newTestPlatform(t, t.TempDir())
	ctx := context.Background()

	a, err := p.Register(ctx, "/sw.js", "/")
	require.NoError(t, err)
	b, err := p.Register(ctx, "/sw.js", "/")
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestRegister_PersistedRegistrationIsActive(t *testing.T) {
	dir := t.TempDir()
	first := newTestPlatform(t, dir)
	reg, err := first.Register(context.Background(), "/sw.js", "/")
	require.NoError(t, err)
	waitActive(t, reg)
	require.NoError(t, first.Close())

	second := newTestPlatform(t, dir, WithStepDelay(time.Hour))
	reg, err = second.Register(context.Background(), "/sw.js", "/")
	require.NoError(t, err)
	assert.Equal(t, push.RegistrationActive, reg.State())
}

func TestRegister_NewScriptReinstallsAndKeepsSubscription(t *testing.T) {
	dir := t.TempDir()
	p, reg := grantedPlatform(t, dir)
	ctx := context.Background()

	sub, err := reg.Subscribe(ctx, push.SubscribeOptions{UserVisibleOnly: true, ApplicationServerKey: testKey})
	require.NoError(t, err)

	updated, err := p.Register(ctx, "/sw-v2.js", "/")
	require.NoError(t, err)
	assert.NotSame(t, reg, updated)
	assert.Eventually(t, func() bool {
		return reg.State() == push.RegistrationRedundant
	}, time.Second, time.Millisecond)
	waitActive(t, updated)

	got, err := updated.Subscription(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sub.Endpoint, got.Endpoint)
}

func TestRegister_Errors(t *testing.T) {
	p := newTestPlatform(t, t.TempDir())

	_, err := p.Register(context.Background(), " ", "/")
	assert.ErrorIs(t, err, ErrNoScript)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Register(ctx, "/sw.js", "/")
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, p.Close())
	_, err = p.Register(context.Background(), "/sw.js", "/")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestOnStateChange_CancelStopsDelivery(t *testing.T) {
	p := newTestPlatform(t, t.TempDir(), WithStepDelay(5*time.Millisecond))
	reg, err := p.Register(context.Background(), "/sw.js", "/")
	require.NoError(t, err)

	var calls atomic.Int32
	cancel := reg.OnStateChange(func(push.RegistrationState) { calls.Add(1) })
	cancel()

	waitActive(t, reg)
	assert.Zero(t, calls.Load())
}

func TestPermission_DefaultsToDefault(t *testing.T) {
	p := newTestPlatform(t, t.TempDir())
	perm, err := p.Permission(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.PermissionDefault, perm)
}

func TestRequestPermission_PersistsAnswer(t *testing.T) {
	dir := t.TempDir()
	var prompts atomic.Int32
	prompter := PrompterFunc(func(context.Context) (domain.PermissionState, error) {
		prompts.Add(1)
		return domain.PermissionDenied, nil
	})
	p := newTestPlatform(t, dir, WithPrompter(prompter))
	ctx := context.Background()

	perm, err := p.RequestPermission(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.PermissionDenied, perm)

	// A settled answer is returned without prompting again.
	perm, err = p.RequestPermission(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.PermissionDenied, perm)
	assert.EqualValues(t, 1, prompts.Load())

	require.NoError(t, p.Close())
	reloaded := newTestPlatform(t, dir)
	perm, err = reloaded.Permission(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.PermissionDenied, perm)
}

func TestRequestPermission_DismissedStaysDefault(t *testing.T) {
	p := newTestPlatform(t, t.TempDir(), WithPrompter(Answer(domain.PermissionDefault)))
	ctx := context.Background()

	perm, err := p.RequestPermission(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.PermissionDefault, perm)

	perm, err = p.Permission(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.PermissionDefault, perm)
}

func TestRequestPermission_PromptError(t *testing.T) {
	p := newTestPlatform(t, t.TempDir(), WithPrompter(PrompterFunc(func(ctx context.Context) (domain.PermissionState, error) {
		return domain.PermissionDefault, os.ErrClosed
	})))

	_, err := p.RequestPermission(context.Background())
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestSubscribe_MintsSubscription(t *testing.T) {
	_, reg := grantedPlatform(t, t.TempDir(), WithPushServiceURL("https://push.example.com/send/"))

	sub, err := reg.Subscribe(context.Background(), push.SubscribeOptions{
		UserVisibleOnly:      true,
		ApplicationServerKey: testKey,
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(sub.Endpoint, "https://push.example.com/send/"), sub.Endpoint)
	assert.NotContains(t, strings.TrimPrefix(sub.Endpoint, "https://"), "//")
	assert.Len(t, sub.Auth, 16)
	require.Len(t, sub.P256dh, 65)
	assert.Equal(t, byte(0x04), sub.P256dh[0])
	assert.True(t, vapid.PublicKey(sub.P256dh).OnCurve())
}

func TestSubscribe_SameKeyReturnsExisting(t *testing.T) {
	_, reg := grantedPlatform(t, t.TempDir())
	ctx := context.Background()
	opts := push.SubscribeOptions{UserVisibleOnly: true, ApplicationServerKey: testKey}

	a, err := reg.Subscribe(ctx, opts)
	require.NoError(t, err)
	b, err := reg.Subscribe(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, a.Endpoint, b.Endpoint)
	assert.Equal(t, a.P256dh, b.P256dh)
}

func TestSubscribe_DifferentKeyFails(t *testing.T) {
	_, reg := grantedPlatform(t, t.TempDir())
	ctx := context.Background()

	_, err := reg.Subscribe(ctx, push.SubscribeOptions{UserVisibleOnly: true, ApplicationServerKey: testKey})
	require.NoError(t, err)

	_, err = reg.Subscribe(ctx, push.SubscribeOptions{UserVisibleOnly: true, ApplicationServerKey: otherKey(t)})
	assert.ErrorIs(t, err, ErrKeyMismatch)
}

func TestSubscribe_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("not user visible", func(t *testing.T) {
		_, reg := grantedPlatform(t, t.TempDir())
		_, err := reg.Subscribe(ctx, push.SubscribeOptions{ApplicationServerKey: testKey})
		assert.ErrorIs(t, err, ErrUserVisibleOnly)
	})

	t.Run("short key", func(t *testing.T) {
		_, reg := grantedPlatform(t, t.TempDir())
		_, err := reg.Subscribe(ctx, push.SubscribeOptions{UserVisibleOnly: true, ApplicationServerKey: testKey[:32]})
		assert.ErrorIs(t, err, ErrInvalidKey)
	})

	t.Run("permission not granted", func(t *testing.T) {
		p := newTestPlatform(t, t.TempDir())
		reg, err := p.Register(ctx, "/sw.js", "/")
		require.NoError(t, err)
		waitActive(t, reg)
		_, err = reg.Subscribe(ctx, push.SubscribeOptions{UserVisibleOnly: true, ApplicationServerKey: testKey})
		assert.ErrorIs(t, err, ErrPermissionNotGranted)
	})

	t.Run("not active", func(t *testing.T) {
		p := newTestPlatform(t, t.TempDir(), WithStepDelay(time.Hour), WithPrompter(Answer(domain.PermissionGranted)))
		_, err := p.RequestPermission(ctx)
		require.NoError(t, err)
		reg, err := p.Register(ctx, "/sw.js", "/")
		require.NoError(t, err)
		_, err = reg.Subscribe(ctx, push.SubscribeOptions{UserVisibleOnly: true, ApplicationServerKey: testKey})
		assert.ErrorIs(t, err, ErrNotActive)
	})
}

func TestSubscription_SurvivesReload(t *testing.T) {
	dir := t.TempDir()
	p, reg := grantedPlatform(t, dir)
	ctx := context.Background()

	sub, err := reg.Subscribe(ctx, push.SubscribeOptions{UserVisibleOnly: true, ApplicationServerKey: testKey})
	require.NoError(t, err)
	require.NoError(t, p.Close())

	reloaded := newTestPlatform(t, dir)
	reg, err = reloaded.Register(ctx, "/sw.js", "/")
	require.NoError(t, err)
	got, err := reg.Subscription(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sub.Endpoint, got.Endpoint)
	assert.Equal(t, sub.Auth, got.Auth)
	assert.Equal(t, sub.P256dh, got.P256dh)
}

func TestUnsubscribe(t *testing.T) {
	_, reg := grantedPlatform(t, t.TempDir())
	ctx := context.Background()

	revoked, err := reg.Unsubscribe(ctx)
	require.NoError(t, err)
	assert.False(t, revoked)

	_, err = reg.Subscribe(ctx, push.SubscribeOptions{UserVisibleOnly: true, ApplicationServerKey: testKey})
	require.NoError(t, err)

	revoked, err = reg.Unsubscribe(ctx)
	require.NoError(t, err)
	assert.True(t, revoked)

	got, err := reg.Subscription(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	// A different key is accepted once the old subscription is gone.
	_, err = reg.Subscribe(ctx, push.SubscribeOptions{UserVisibleOnly: true, ApplicationServerKey: otherKey(t)})
	assert.NoError(t, err)
}

func TestReset(t *testing.T) {
	dir := t.TempDir()
	p, reg := grantedPlatform(t, dir)
	ctx := context.Background()

	_, err := reg.Subscribe(ctx, push.SubscribeOptions{UserVisibleOnly: true, ApplicationServerKey: testKey})
	require.NoError(t, err)

	require.NoError(t, p.Reset())
	assert.Equal(t, push.RegistrationRedundant, reg.State())
	_, err = os.Stat(filepath.Join(dir, stateFile))
	assert.True(t, os.IsNotExist(err))

	perm, err := p.Permission(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.PermissionDefault, perm)

	// Reset on an empty directory is fine.
	require.NoError(t, p.Reset())
}

func TestNew_CorruptStateFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, stateFile), []byte("{not json"), 0o600))

	_, err := New(dir)
	require.Error(t, err)
}

type recordingSyncer struct {
	mu    sync.Mutex
	saved map[string]domain.Subscription
}

func (s *recordingSyncer) Persist(_ context.Context, userID string, sub domain.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved == nil {
		s.saved = make(map[string]domain.Subscription)
	}
	s.saved[userID] = sub
	return nil
}

func TestCoordinatorEndToEnd(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	syncer := &recordingSyncer{}

	p := newTestPlatform(t, dir, WithPrompter(Answer(domain.PermissionGranted)))
	c := push.New(p, syncer,
		push.WithApplicationServerKey(testKeyText),
		push.WithOrigin("http://localhost:8080"),
		push.WithPollInterval(time.Millisecond),
	)

	require.NoError(t, c.Initialize(ctx))
	assert.Equal(t, push.StateReady, c.State())

	require.NoError(t, c.Subscribe(ctx, "user-123"))
	assert.Equal(t, push.StateSubscribed, c.State())

	sub, ok := c.Subscription()
	require.True(t, ok)
	assert.Equal(t, sub.Endpoint, syncer.saved["user-123"].Endpoint)

	st := c.Status(ctx)
	assert.Equal(t, domain.Status{Supported: true, Subscribed: true, Permission: domain.PermissionGranted}, st)
	require.NoError(t, c.Close())
	require.NoError(t, p.Close())

	// A fresh process adopts the stored subscription.
	p2 := newTestPlatform(t, dir)
	c2 := push.New(p2, syncer,
		push.WithApplicationServerKey(testKeyText),
		push.WithOrigin("http://localhost:8080"),
	)
	defer c2.Close()
	require.NoError(t, c2.Initialize(ctx))
	assert.Equal(t, push.StateSubscribed, c2.State())

	require.NoError(t, c2.Unsubscribe(ctx))
	assert.Equal(t, push.StateReady, c2.State())
	assert.False(t, c2.Status(ctx).Subscribed)
}

func TestRegistered(t *testing.T) {
	dir := t.TempDir()
	p := newTestPlatform(t, dir)

	assert.False(t, p.Registered("/"))
	_, err := os.Stat(filepath.Join(dir, stateFile))
	assert.True(t, os.IsNotExist(err), "Registered must not write state")

	_, err = p.Register(context.Background(), "/sw.js", "")
	require.NoError(t, err)
	assert.True(t, p.Registered(""))
	assert.True(t, p.Registered("/"))
	assert.False(t, p.Registered("/admin/"))
}

func TestClose_RetiredRegistrationIsRedundant(t *testing.T) {
	p := newTestPlatform(t, t.TempDir(), WithStepDelay(time.Hour))
	ctx := context.Background()

	old, err := p.Register(ctx, "/sw.js", "/")
	require.NoError(t, err)
	_, err = p.Register(ctx, "/sw-v2.js", "/")
	require.NoError(t, err)

	require.NoError(t, p.Close())
	assert.Equal(t, push.RegistrationRedundant, old.State())
}
