package sessions_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	serrors "github.com/jrsteele09/oauth-lite/internal/errors"
	"github.com/jrsteele09/oauth-lite/sessions"
	"github.com/jrsteele09/oauth-lite/signing"
	"github.com/jrsteele09/oauth-lite/store/memstore"
	"github.com/jrsteele09/oauth-lite/users"
)

type testFixture struct {
	store *sessions.Store
	now   time.Time
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	signer := signing.NewHMACSigner([]byte("0123456789abcdef0123456789abcdef"))
	f.store = sessions.NewStore(memstore.New(), signer, sessions.WithNowTime(func() time.Time { return f.now }))
	return f
}

func TestNewAndGet(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	s, err := f.store.New(ctx)
	require.NoError(t, err)
	require.Len(t, s.ID, 44) // 32 bytes base64
	require.False(t, s.LoggedIn())
	require.Equal(t, f.now.UnixMilli(), s.Timestamp)

	loaded, err := f.store.Get(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, s, loaded)

	other, err := f.store.New(ctx)
	require.NoError(t, err)
	require.NotEqual(t, s.ID, other.ID)

	_, err = f.store.Get(ctx, "missing")
	require.ErrorIs(t, err, serrors.ErrSessionNotFound)
}

func TestCookieRoundTrip(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	s, err := f.store.New(ctx)
	require.NoError(t, err)
	s.User = &users.User{Username: "alice", Attributes: []users.Attribute{{Name: "mail", Values: []string{"a@example.com"}}}}
	require.NoError(t, f.store.Save(ctx, s))

	value, err := f.store.CookieValue(s)
	require.NoError(t, err)

	parsed, err := f.store.ParseCookie(ctx, value)
	require.NoError(t, err)
	require.Equal(t, s, parsed)
	require.True(t, parsed.LoggedIn())

	for i := range value {
		if value[i] == '.' {
			continue
		}
		flipped := []byte(value)
		flipped[i] ^= 0x01
		_, err := f.store.ParseCookie(ctx, string(flipped))
		require.Error(t, err, "byte %d", i)
		require.ErrorIs(t, err, serrors.ErrAuthentication, "byte %d", i)
	}
}

func TestCookieIsBoundToStoredState(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	s, err := f.store.New(ctx)
	require.NoError(t, err)
	stale, err := f.store.CookieValue(s)
	require.NoError(t, err)

	f.now = f.now.Add(time.Minute)
	s.Touch(f.now)
	require.NoError(t, f.store.Save(ctx, s))

	_, err = f.store.ParseCookie(ctx, stale)
	require.ErrorIs(t, err, serrors.ErrSignatureMismatch)

	fresh, err := f.store.CookieValue(s)
	require.NoError(t, err)
	_, err = f.store.ParseCookie(ctx, fresh)
	require.NoError(t, err)
}

func TestParseCookieMalformed(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	for _, value := range []string{"", "noseparator", "a.b.c", ".tag", "id.", "%zz.tag"} {
		_, err := f.store.ParseCookie(ctx, value)
		require.ErrorIs(t, err, serrors.ErrMalformedCookie, value)
	}

	_, err := f.store.ParseCookie(ctx, "unknown.dGFn")
	require.ErrorIs(t, err, serrors.ErrSessionNotFound)
}

func TestPrune(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	old, err := f.store.New(ctx)
	require.NoError(t, err)
	f.now = f.now.Add(48 * time.Hour)
	recent, err := f.store.New(ctx)
	require.NoError(t, err)

	removed, err := f.store.Prune(ctx, f.now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = f.store.Get(ctx, old.ID)
	require.ErrorIs(t, err, serrors.ErrSessionNotFound)
	_, err = f.store.Get(ctx, recent.ID)
	require.NoError(t, err)
}

func TestLockerSerializesSameID(t *testing.T) {
	l := sessions.NewLocker()
	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("s1")
			defer unlock()
			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), maxActive)
	require.Zero(t, l.Len())
}

func TestLockerDifferentIDsRunInParallel(t *testing.T) {
	l := sessions.NewLocker()
	unlockA := l.Lock("a")
	done := make(chan struct{})
	go func() {
		unlock := l.Lock("b")
		unlock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
	unlockA()
	unlockA() // second call is a no-op
	require.Zero(t, l.Len())
}
