package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collectingConsumer struct {
	name string
	mu   sync.Mutex
	seen []Event
	fail error
}

func (c *collectingConsumer) Name() string { return c.name }

func (c *collectingConsumer) ProcessEvent(event Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, event)
	return c.fail
}

func (c *collectingConsumer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func testSignal() *MirroringSignal {
	return &MirroringSignal{
		EntityID:   "INC-1",
		EntityType: EntityIncident,
		Status:     MirrorCompleted,
		EmittedAt:  time.Now(),
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestTryPublishDeliversToConsumers(t *testing.T) {
	bus := NewBus(&Config{BufferSize: 16, Workers: 2})
	defer func() { _ = bus.Shutdown(time.Second) }()

	consumer := &collectingConsumer{name: "c1"}
	require.NoError(t, bus.RegisterConsumer(consumer))

	require.True(t, bus.TryPublish(testSignal()))
	waitFor(t, func() bool { return consumer.count() == 1 })

	stats := bus.GetStats()
	assert.Equal(t, uint64(1), stats.EventsReceived)
	assert.Equal(t, uint64(0), stats.EventsDropped)
}

func TestTryPublishWithoutConsumersIsRejected(t *testing.T) {
	bus := NewBus(&Config{BufferSize: 16, Workers: 2})
	assert.False(t, bus.TryPublish(testSignal()))
}

func TestRegisterConsumerRejectsDuplicates(t *testing.T) {
	bus := NewBus(&Config{BufferSize: 16, Workers: 1})
	defer func() { _ = bus.Shutdown(time.Second) }()

	require.NoError(t, bus.RegisterConsumer(&collectingConsumer{name: "c1"}))
	err := bus.RegisterConsumer(&collectingConsumer{name: "c1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestTryPublishDropsWhenBufferFull(t *testing.T) {
	// A blocked consumer keeps the single worker busy so the buffer fills.
	blocker := make(chan struct{})
	blocking := &blockingConsumer{release: blocker}

	bus := NewBus(&Config{BufferSize: 1, Workers: 1})
	defer func() { _ = bus.Shutdown(time.Second) }()
	require.NoError(t, bus.RegisterConsumer(blocking))

	// First event occupies the worker, second fills the buffer; eventually
	// a publish must report a drop without blocking.
	dropped := false
	for i := 0; i < 10 && !dropped; i++ {
		dropped = !bus.TryPublish(testSignal())
	}
	close(blocker)

	assert.True(t, dropped)
	assert.Greater(t, bus.GetStats().EventsDropped, uint64(0))
}

type blockingConsumer struct {
	release chan struct{}
}

func (c *blockingConsumer) Name() string { return "blocker" }

func (c *blockingConsumer) ProcessEvent(Event) error {
	<-c.release
	return nil
}

func TestConsumerPanicDoesNotKillWorker(t *testing.T) {
	bus := NewBus(&Config{BufferSize: 16, Workers: 1})
	defer func() { _ = bus.Shutdown(time.Second) }()

	panicking := &panickingConsumer{}
	healthy := &collectingConsumer{name: "healthy"}
	require.NoError(t, bus.RegisterConsumer(panicking))
	require.NoError(t, bus.RegisterConsumer(healthy))

	require.True(t, bus.TryPublish(testSignal()))
	require.True(t, bus.TryPublish(testSignal()))

	waitFor(t, func() bool { return healthy.count() == 2 })
	assert.Equal(t, uint64(2), bus.GetStats().ConsumerErrors)
}

type panickingConsumer struct{}

func (c *panickingConsumer) Name() string { return "panicker" }

func (c *panickingConsumer) ProcessEvent(Event) error {
	panic("boom")
}

func TestShutdownStopsWorkers(t *testing.T) {
	bus := NewBus(&Config{BufferSize: 16, Workers: 4})
	require.NoError(t, bus.RegisterConsumer(&collectingConsumer{name: "c1"}))

	require.NoError(t, bus.Shutdown(time.Second))
	assert.False(t, bus.TryPublish(testSignal()), "publish after shutdown is rejected")
}
