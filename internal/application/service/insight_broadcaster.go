package service

import (
	"sync"
	"sync/atomic"

	"github.com/YoshitsuguKoike/assetflow/internal/app"
	"github.com/YoshitsuguKoike/assetflow/internal/application/port/output"
)

// InsightBroadcaster forwards observability events to a Notifier over a
// bounded channel, decoupled from the phase-completion critical path.
// Publishing never blocks: when the buffer is full the event is dropped
// and counted.
type InsightBroadcaster struct {
	notifier output.Notifier
	logger   app.Logger
	events   chan output.Event
	dropped  atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
}

// NewInsightBroadcaster starts a broadcaster with the given buffer size
func NewInsightBroadcaster(notifier output.Notifier, buffer int, logger app.Logger) *InsightBroadcaster {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = app.GetLogger()
	}
	b := &InsightBroadcaster{
		notifier: notifier,
		logger:   logger,
		events:   make(chan output.Event, buffer),
		done:     make(chan struct{}),
	}
	go b.loop()
	return b
}

// Emit implements output.Notifier so the broadcaster can sit between phase
// executors and the real notifier
func (b *InsightBroadcaster) Emit(event output.Event) error {
	select {
	case b.events <- event:
	default:
		// Drop on backpressure; observability must never stall a phase
		b.dropped.Add(1)
	}
	return nil
}

// Dropped returns how many events were discarded under backpressure
func (b *InsightBroadcaster) Dropped() int64 {
	return b.dropped.Load()
}

// Close drains pending events and stops the forwarding loop
func (b *InsightBroadcaster) Close() {
	b.closeOnce.Do(func() {
		close(b.events)
		<-b.done
	})
}

func (b *InsightBroadcaster) loop() {
	defer close(b.done)
	for event := range b.events {
		if b.notifier == nil {
			continue
		}
		if err := b.notifier.Emit(event); err != nil {
			b.logger.Warn("notifier emit failed: %v", err)
		}
	}
}
