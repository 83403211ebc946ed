// Package progress defines the milestone events emitted during a sync
// run and a hub that fans them out to sinks.
package progress

import (
	"context"
	"sync"
	"time"

	"github.com/hltv-tools/hltv-sync/internal/hltv"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart    Stage = "RUN_START"
	StageRunDone     Stage = "RUN_DONE"
	StageRunError    Stage = "RUN_ERROR"
	StageUnitStart   Stage = "UNIT_START"
	StageUnitDone    Stage = "UNIT_DONE"
	StageUnitSkipped Stage = "UNIT_SKIPPED"
	StageUnitFailed  Stage = "UNIT_FAILED"
	StageBlocked     Stage = "BLOCKED"
	StageRetry       Stage = "RETRY"
)

// Event captures a single milestone of a sync run.
type Event struct {
	RunID   string
	TS      time.Time
	Stage   Stage
	Unit    hltv.Unit
	URL     string
	Attempt int
	Outcome hltv.UpsertOutcome
	Signals []string
	Dur     time.Duration
	Note    string
}

// Sink consumes events. Implementations may be invoked concurrently.
type Sink interface {
	Consume(ctx context.Context, evt Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events; Hub satisfies this interface so
// workers stay agnostic about how events are consumed.
type Emitter interface {
	Emit(evt Event)
}

// Hub fans events out to registered sinks from a single background
// goroutine. Emit never blocks; when the buffer is full the event is
// dropped.
type Hub struct {
	events chan Event
	sinks  []Sink

	closeOnce sync.Once
	done      chan struct{}
	stopped   chan struct{}
}

const defaultBufferSize = 1024

// NewHub starts the fan-out goroutine over the supplied sinks.
func NewHub(sinks ...Sink) *Hub {
	h := &Hub{
		events:  make(chan Event, defaultBufferSize),
		sinks:   append([]Sink(nil), sinks...),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go h.run()
	return h
}

// Emit enqueues an event without blocking.
func (h *Hub) Emit(evt Event) {
	if h == nil {
		return
	}
	if evt.TS.IsZero() {
		evt.TS = time.Now().UTC()
	}
	select {
	case h.events <- evt:
	case <-h.done:
	default:
	}
}

func (h *Hub) run() {
	defer close(h.stopped)
	for {
		select {
		case evt := <-h.events:
			for _, sink := range h.sinks {
				_ = sink.Consume(context.Background(), evt)
			}
		case <-h.done:
			// Drain what is already buffered, then stop.
			for {
				select {
				case evt := <-h.events:
					for _, sink := range h.sinks {
						_ = sink.Consume(context.Background(), evt)
					}
				default:
					return
				}
			}
		}
	}
}

// Close stops the hub and closes every sink.
func (h *Hub) Close(ctx context.Context) error {
	var err error
	h.closeOnce.Do(func() {
		close(h.done)
		<-h.stopped
		for _, sink := range h.sinks {
			if cerr := sink.Close(ctx); cerr != nil && err == nil {
				err = cerr
			}
		}
	})
	return err
}
