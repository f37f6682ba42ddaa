package runtime

import (
	"context"
	"krysselista/domain"
	"krysselista/errors"
	"krysselista/runtime/workers"
	"krysselista/sink"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func startManager(t *testing.T, f *fixture, idle time.Duration) (*SessionManager, context.CancelFunc) {
	t.Helper()
	supervisor := workers.NewSupervisor(f.deps.Log)
	manager := NewSessionManager(f.deps.Log, supervisor, f.deps, idle)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		supervisor.Add(manager).Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return manager, cancel
}

func TestSessionManager_Open_Reuses_Session(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	manager, _ := startManager(t, f, time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// When the same viewer opens twice
	first, err := manager.Open(ctx, anne)
	req.NoError(err)
	second, err := manager.Open(ctx, anne)
	req.NoError(err)

	// Then a single session serves both
	req.Same(first, second)
	req.Equal(1, manager.Len())

	// When another viewer opens
	other, err := manager.Open(ctx, staff)
	req.NoError(err)
	req.NotSame(first, other)
	req.Equal(2, manager.Len())

	// When the first one closes
	manager.Close(anne.ID)
	_, ok := manager.Get(anne.ID)
	req.False(ok)
	<-first.Done()
}

func TestSessionManager_Rejects_Unknown_Role(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	manager, _ := startManager(t, f, time.Minute)

	_, err := manager.Open(context.Background(), domain.Viewer{ID: "x", Role: "parent"})
	req.ErrorIs(err, errors.ErrUnknownRole)
	req.Zero(manager.Len())
}

func TestSessionManager_Role_Change_Replaces_Session(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	manager, _ := startManager(t, f, time.Minute)
	ctx := context.Background()

	first, err := manager.Open(ctx, anne)
	req.NoError(err)
	promoted := anne
	promoted.Role = domain.RoleStaff
	second, err := manager.Open(ctx, promoted)
	req.NoError(err)

	req.NotSame(first, second)
	req.Equal(domain.RoleStaff, second.Viewer().Role)
	<-first.Done()
}

func TestSessionManager_Sweeps_Idle_Sessions(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	clock := &manualClock{now: time.Date(2024, 5, 3, 8, 0, 0, 0, time.UTC)}
	f.deps.Now = clock.Now
	manager, _ := startManager(t, f, time.Minute)
	ctx := context.Background()

	_, err := manager.Open(ctx, anne)
	req.NoError(err)
	_, err = manager.Open(ctx, staff)
	req.NoError(err)

	// Given staff keep a stream open
	f.registry.Subscribe(staff.ID, "tablet", sink.NewStreamSink(f.deps.Log, 1))

	// When both stay idle past the timeout
	clock.Advance(2 * time.Minute)
	manager.sweep()

	// Then only the streaming session survives
	_, ok := manager.Get(anne.ID)
	req.False(ok)
	_, ok = manager.Get(staff.ID)
	req.True(ok)
}

func TestSessionManager_Shutdown_Closes_Sessions(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	manager, cancel := startManager(t, f, time.Minute)

	session, err := manager.Open(context.Background(), anne)
	req.NoError(err)

	// When the manager context is canceled
	cancel()

	// Then every session is closed and no new one opens
	<-session.Done()
	req.Eventually(func() bool { return manager.Len() == 0 }, time.Second, 10*time.Millisecond)
	_, err = manager.Open(context.Background(), staff)
	req.ErrorIs(err, errors.ErrManagerStopped)
}
