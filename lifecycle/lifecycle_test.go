package lifecycle_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coastlinevibe/tide/events"
	"github.com/coastlinevibe/tide/identity"
	"github.com/coastlinevibe/tide/lifecycle"
	"github.com/coastlinevibe/tide/reaction"
)

type stubStore struct {
	lock sync.Mutex

	online   []bool
	clears   []string
	sweeps   int
	sweepRet int
}

func (s *stubStore) SetOnline(online bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.online = append(s.online, online)
}

func (s *stubStore) Clear(reason string) int {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.clears = append(s.clears, reason)
	return 1
}

func (s *stubStore) Sweep() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.sweeps++
	return s.sweepRet
}

func (s *stubStore) clearReasons() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]string(nil), s.clears...)
}

func (s *stubStore) sweepCount() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.sweeps
}

func TestConnectivity_offline_transition(t *testing.T) {
	store := &stubStore{}
	monitor := lifecycle.NewConnectivity(store, nil, nil)

	require.True(t, monitor.Online())

	// setting the current state is a no-op
	monitor.Set(true)
	assert.Empty(t, store.online)

	monitor.Set(false)
	assert.False(t, monitor.Online())
	assert.Equal(t, []bool{false}, store.online)

	monitor.Set(true)
	assert.Equal(t, []bool{false, true}, store.online)
}

func TestConnectivity_publishes_changes(t *testing.T) {
	bus := events.NewBus(events.BusConfig{OutputChannelBuffer: 4}, nil)
	defer func() {
		assert.NoError(t, bus.Close())
	}()

	changes, err := bus.Subscribe(context.Background(), lifecycle.TopicConnectivity)
	require.NoError(t, err)

	monitor := lifecycle.NewConnectivity(&stubStore{}, bus, nil)
	monitor.Set(false)

	select {
	case event := <-changes:
		var changed lifecycle.Changed
		require.NoError(t, event.UnmarshalPayload(&changed))
		assert.False(t, changed.Online)
	case <-time.After(time.Second):
		t.Fatal("connectivity event not received")
	}
}

func TestActivity_clears_after_idle_window(t *testing.T) {
	store := &stubStore{}
	activity := lifecycle.NewActivity(lifecycle.ActivityConfig{
		Window: 30 * time.Millisecond,
	}, store)
	defer func() {
		assert.NoError(t, activity.Close())
	}()

	assert.Eventually(t, func() bool {
		reasons := store.clearReasons()
		return len(reasons) > 0 && reasons[0] == reaction.ClearReasonInactivity
	}, time.Second, 5*time.Millisecond)
}

func TestActivity_touch_defers_idle(t *testing.T) {
	store := &stubStore{}
	activity := lifecycle.NewActivity(lifecycle.ActivityConfig{
		Window: 80 * time.Millisecond,
	}, store)
	defer func() {
		assert.NoError(t, activity.Close())
	}()

	for i := 0; i < 5; i++ {
		time.Sleep(30 * time.Millisecond)
		activity.Touch()
	}

	assert.Empty(t, store.clearReasons(), "touched session must not be purged")
}

func TestActivity_no_fire_after_close(t *testing.T) {
	store := &stubStore{}
	activity := lifecycle.NewActivity(lifecycle.ActivityConfig{
		Window: 20 * time.Millisecond,
	}, store)

	require.NoError(t, activity.Close())
	time.Sleep(60 * time.Millisecond)

	assert.Empty(t, store.clearReasons())

	// Close is idempotent
	assert.NoError(t, activity.Close())
}

func TestActivity_close_races_idle_purge(t *testing.T) {
	// Close racing the firing timer must still guarantee that no purge
	// lands after Close returns.
	for i := 0; i < 50; i++ {
		store := &stubStore{}
		activity := lifecycle.NewActivity(lifecycle.ActivityConfig{
			Window: time.Millisecond,
		}, store)

		time.Sleep(time.Millisecond)
		require.NoError(t, activity.Close())

		before := len(store.clearReasons())
		time.Sleep(3 * time.Millisecond)
		assert.Equal(t, before, len(store.clearReasons()), "purge fired after Close returned")
	}
}

func TestSweeper_sweeps_periodically(t *testing.T) {
	store := &stubStore{sweepRet: 2}
	sweeper := lifecycle.NewSweeper(lifecycle.SweeperConfig{
		Interval: 10 * time.Millisecond,
	}, store)

	assert.Eventually(t, func() bool {
		return store.sweepCount() >= 3
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, sweeper.Close())

	stopped := store.sweepCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, store.sweepCount(), "no sweeps after close")
}

func TestRunner_end_to_end_inactivity(t *testing.T) {
	resolver := identity.NewResolver(identity.ResolverConfig{
		Sources: []identity.Source{
			identity.SourceFunc(func() (identity.Identity, bool) {
				return identity.Identity{UserID: "u1", Username: "Marina"}, true
			}),
		},
	})

	store, err := reaction.NewStore(reaction.StoreConfig{}, resolver)
	require.NoError(t, err)

	runner := lifecycle.NewRunner(lifecycle.RunnerConfig{
		InactivityWindow: 40 * time.Millisecond,
		SweepInterval:    10 * time.Millisecond,
	}, store, nil)

	_, err = store.Add(context.Background(), "post-1", "wave", nil)
	require.NoError(t, err)
	require.Equal(t, 1, store.Len())

	assert.Eventually(t, func() bool {
		return store.Len() == 0
	}, time.Second, 5*time.Millisecond, "inactivity must purge the store")

	require.NoError(t, runner.Close())
	assert.NoError(t, runner.Close())
}

func TestRunner_offline_clears_store(t *testing.T) {
	resolver := identity.NewResolver(identity.ResolverConfig{})

	store, err := reaction.NewStore(reaction.StoreConfig{}, resolver)
	require.NoError(t, err)

	runner := lifecycle.NewRunner(lifecycle.RunnerConfig{}, store, nil)
	defer func() {
		assert.NoError(t, runner.Close())
	}()

	_, err = store.Add(context.Background(), "post-1", "wave", nil)
	require.NoError(t, err)

	runner.Connectivity().Set(false)

	assert.Zero(t, store.Len())
	assert.False(t, store.Online())
}
