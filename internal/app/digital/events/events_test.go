package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"digitals.local/internal/platform/metrics"
)

type memorySink struct {
	mu      sync.Mutex
	events  []AccessEvent
	batches int
}

func (s *memorySink) Write(_ context.Context, batch []AccessEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, batch...)
	s.batches++
	return nil
}

func (s *memorySink) snapshot() []AccessEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AccessEvent(nil), s.events...)
}

func TestChannelCollector_DropsWhenFull(t *testing.T) {
	c := NewChannelCollector(1)
	before := testutil.ToFloat64(metrics.AccessEventsDropped)

	c.Collect(AccessEvent{LinkID: 1, Reason: ReasonGranted})
	c.Collect(AccessEvent{LinkID: 2, Reason: ReasonGranted})

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.AccessEventsDropped)-before)
	got := <-c.Events()
	assert.Equal(t, int64(1), got.LinkID)
}

func TestChannelCollector_CloseIsIdempotent(t *testing.T) {
	c := NewChannelCollector(4)
	c.Close()
	c.Close()

	// 关闭后 Collect 不能 panic
	c.Collect(AccessEvent{LinkID: 1})
	_, ok := <-c.Events()
	assert.False(t, ok)
}

func TestConsumer_FlushesOnClose(t *testing.T) {
	sink := &memorySink{}
	c := NewChannelCollector(16)
	consumer := NewConsumer(sink, c)

	done := make(chan struct{})
	go func() {
		consumer.Run(context.Background())
		close(done)
	}()

	at := time.Now()
	c.Collect(AccessEvent{LinkID: 1, Granted: true, Reason: ReasonGranted, At: at})
	c.Collect(AccessEvent{Reason: ReasonNotFound, At: at})
	c.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop after collector closed")
	}

	got := sink.snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, ReasonGranted, got[0].Reason)
	assert.Equal(t, ReasonNotFound, got[1].Reason)
}

func TestConsumer_FlushesOnTicker(t *testing.T) {
	sink := &memorySink{}
	c := NewChannelCollector(16)
	consumer := NewConsumer(sink, c)
	consumer.interval = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go consumer.Run(ctx)

	c.Collect(AccessEvent{LinkID: 7, Reason: ReasonExhausted})

	assert.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, 10*time.Millisecond)
}

func TestNullID(t *testing.T) {
	assert.Nil(t, nullID(0))
	require.NotNil(t, nullID(5))
	assert.Equal(t, int64(5), *nullID(5))
}

func TestDiscard(t *testing.T) {
	var c Collector = Discard{}
	c.Collect(AccessEvent{})
	c.Close()
}
