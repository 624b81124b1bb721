package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YoshitsuguKoike/assetflow/internal/application/port/output"
)

type capturingNotifier struct {
	mu     sync.Mutex
	events []output.Event
}

func (n *capturingNotifier) Emit(event output.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *capturingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

func TestInsightBroadcaster_ForwardsEvents(t *testing.T) {
	sink := &capturingNotifier{}
	b := NewInsightBroadcaster(sink, 8, nil)

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Emit(output.Event{
			FlowID:  "flow-001",
			Phase:   "field_mapping",
			Kind:    output.EventInsight,
			Message: "columns resemble a CMDB export",
			At:      time.Now(),
		}))
	}
	b.Close()

	assert.Equal(t, 5, sink.count())
	assert.Equal(t, int64(0), b.Dropped())
}

func TestInsightBroadcaster_DropsOnBackpressure(t *testing.T) {
	b := NewInsightBroadcaster(nil, 1, nil)
	defer b.Close()

	// With no consumer work and a tiny buffer, flooding must not block
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10000; i++ {
			b.Emit(output.Event{Kind: output.EventProgress})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked under backpressure")
	}
}

func TestInsightBroadcaster_CloseIsIdempotent(t *testing.T) {
	b := NewInsightBroadcaster(&capturingNotifier{}, 4, nil)
	b.Close()
	b.Close()
}
