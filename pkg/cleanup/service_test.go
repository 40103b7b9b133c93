package cleanup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunovlucena/homelab-sub000/pkg/config"
	"github.com/brunovlucena/homelab-sub000/pkg/memory"
	"github.com/brunovlucena/homelab-sub000/pkg/memory/memstore"
)

type countingSweeper struct {
	mu     sync.Mutex
	sweeps int
	count  int
	err    error
}

func (c *countingSweeper) DeleteExpired(_ context.Context, _ time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweeps++
	return c.count, c.err
}

func (c *countingSweeper) sweepCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweeps
}

func testMemoryConfig(interval time.Duration) *config.MemoryConfig {
	return &config.MemoryConfig{RetentionInterval: interval}
}

func TestSweepAll_RemovesExpiredEntries(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	entry, err := memory.NewEntry("wf-old", memory.TypeWorking, "agent", map[string]any{"k": "v"})
	require.NoError(t, err)
	past := time.Now().UTC().Add(-time.Hour)
	entry.ExpiresAt = &past
	require.NoError(t, store.Save(ctx, entry))

	fresh, err := memory.NewEntry("wf-new", memory.TypeWorking, "agent", map[string]any{"k": "v"})
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, fresh))

	svc := NewService(testMemoryConfig(time.Hour), map[string]Sweeper{"fast": store})
	svc.SweepAll(ctx, time.Now().UTC())

	_, err = store.Get(ctx, "wf-old", memory.TypeWorking)
	require.Error(t, err)
	_, err = store.Get(ctx, "wf-new", memory.TypeWorking)
	require.NoError(t, err)
}

func TestSweepAll_ContinuesPastFailingStore(t *testing.T) {
	failing := &countingSweeper{err: errors.New("connection lost")}
	healthy := &countingSweeper{count: 3}

	svc := NewService(testMemoryConfig(time.Hour), map[string]Sweeper{
		"broken":  failing,
		"healthy": healthy,
	})
	svc.SweepAll(context.Background(), time.Now().UTC())

	assert.Equal(t, 1, failing.sweepCount())
	assert.Equal(t, 1, healthy.sweepCount())
}

func TestService_StartStop(t *testing.T) {
	sweeper := &countingSweeper{}
	svc := NewService(testMemoryConfig(10*time.Millisecond), map[string]Sweeper{"fast": sweeper})

	svc.Start(context.Background())
	require.Eventually(t, func() bool {
		return sweeper.sweepCount() >= 2
	}, time.Second, 5*time.Millisecond)
	svc.Stop()

	settled := sweeper.sweepCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, settled, sweeper.sweepCount(), "no sweeps after Stop")
}

func TestService_StartIsIdempotent(t *testing.T) {
	sweeper := &countingSweeper{}
	svc := NewService(testMemoryConfig(time.Hour), map[string]Sweeper{"fast": sweeper})

	svc.Start(context.Background())
	svc.Start(context.Background())
	svc.Stop()
	assert.Equal(t, 1, sweeper.sweepCount())
}
