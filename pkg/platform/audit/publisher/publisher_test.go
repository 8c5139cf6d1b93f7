package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "freightdesk/pkg/platform/audit"
	"freightdesk/pkg/platform/audit/store/memory"
)

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Event{
		ContainerID: "c-1",
		Action:      string(audit.EventContainerClosed),
	})
	require.NoError(t, err)

	events, err := store.ListByContainer(context.Background(), "c-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.CategoryCustody, events[0].Category)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100), WithMetrics(NewMetrics(prometheus.NewRegistry())))

	for range 10 {
		err := pub.Emit(context.Background(), audit.Event{
			ContainerID: "c-1",
			Action:      string(audit.EventItemMarked),
		})
		require.NoError(t, err)
	}

	require.NoError(t, pub.Close())

	events, err := store.ListByContainer(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Len(t, events, 10)
}

func TestPublisher_EmitAfterCloseIsDropped(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(1))
	require.NoError(t, pub.Close())
	require.NoError(t, pub.Close())

	require.NoError(t, pub.Emit(context.Background(), audit.Event{ContainerID: "c-1", Action: "x"}))
	events, _ := store.ListByContainer(context.Background(), "c-1")
	assert.Empty(t, events)
}

type failingStore struct {
	mu    sync.Mutex
	calls int
}

func (s *failingStore) Append(context.Context, audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return errors.New("broker unavailable")
}

func TestPublisher_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	store := &failingStore{}
	pub := NewPublisher(store, WithCircuitBreaker(NewCircuitBreaker(2, time.Hour)))

	ctx := context.Background()
	assert.Error(t, pub.Emit(ctx, audit.Event{Action: "a"}))
	assert.Error(t, pub.Emit(ctx, audit.Event{Action: "a"}))
	err := pub.Emit(ctx, audit.Event{Action: "a"})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, store.calls, "open circuit skips the sink")
}

func TestCircuitBreakerHalfOpens(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(1, time.Minute)
	cb.now = func() time.Time { return now }

	cb.RecordFailure()
	assert.True(t, cb.IsOpen())
	assert.False(t, cb.Allow())

	now = now.Add(2 * time.Minute)
	assert.True(t, cb.Allow(), "cooldown expired")

	cb.RecordFailure()
	assert.True(t, cb.IsOpen(), "failure while half-open reopens")

	now = now.Add(2 * time.Minute)
	require.True(t, cb.Allow())
	cb.RecordSuccess()
	assert.False(t, cb.IsOpen())
}
