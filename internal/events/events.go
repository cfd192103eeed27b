// Package events centralizes the event names and publishing policy for the
// UI event bridge (§4.9). Status/error events are never dropped; progress
// events are rate-limited at the source (internal/throttle) and, if the
// bridge itself ever falls behind, the oldest buffered progress event is
// dropped rather than blocking the publisher.
package events

import (
	"sync"

	"github.com/wailsapp/wails/v3/pkg/application"

	"vidreel/internal/constants"
	"vidreel/internal/logger"
)

// Kind distinguishes the two delivery policies described in §5.
type Kind int

const (
	// StatusKind events (queue additions, state transitions, errors) are
	// emitted immediately through Emit, with no buffer, and are never dropped.
	StatusKind Kind = iota
	// ProgressKind events may be dropped (oldest first) under backpressure.
	ProgressKind
)

// progressBufferSize bounds the number of buffered progress events per item
// before the oldest is dropped in favor of the newest.
const progressBufferSize = 8

// Payload is the data delivered with an event.
type Payload = any

// Bus publishes events to the UI host. It is the single place in the
// program that calls into the Wails event API, so every other package can
// be tested without a running application instance.
//
// Progress delivery is decoupled from the publisher by a bounded channel per
// item, drained by a dedicated goroutine: EmitProgress never blocks the
// download's progress-parsing loop on the Wails event call, and if the
// drainer ever falls behind, the channel fills and the oldest queued event
// is dropped in favor of the newest (§5).
type Bus struct {
	mu       sync.Mutex
	progress map[string]chan Payload // itemID -> buffered, drained progress channel
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{progress: make(map[string]chan Payload)}
}

// Emit publishes an event immediately. Used for status changes, queue
// mutations, and errors — §5 requires these are never dropped.
func (b *Bus) Emit(name string, payload Payload) {
	emit(name, payload)
}

// EmitProgress queues a progress event for itemID, lazily starting that
// item's drain goroutine on first use. The send never blocks: when the
// item's buffer is full, the oldest queued payload is discarded to make
// room for payload, preferring timely over complete delivery.
func (b *Bus) EmitProgress(itemID string, payload Payload) {
	ch := b.progressChan(itemID)
	for {
		select {
		case ch <- payload:
			return
		default:
		}
		select {
		case <-ch:
			logger.Log.Debug().Str("item_id", itemID).Msg("progress backpressure, dropping oldest")
		default:
		}
	}
}

func (b *Bus) progressChan(itemID string) chan Payload {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.progress[itemID]
	if !ok {
		ch = make(chan Payload, progressBufferSize)
		b.progress[itemID] = ch
		go drainProgress(ch)
	}
	return ch
}

// drainProgress delivers queued progress payloads one at a time until its
// channel is closed by ClearProgress.
func drainProgress(ch chan Payload) {
	for payload := range ch {
		emit(constants.EventDownloadProgress, payload)
	}
}

// ClearProgress stops and forgets the progress channel for a finished item.
func (b *Bus) ClearProgress(itemID string) {
	b.mu.Lock()
	ch, ok := b.progress[itemID]
	delete(b.progress, itemID)
	b.mu.Unlock()

	if ok {
		close(ch)
	}
}

// emit is the single call site into the Wails application event bridge.
// application.Get() returns nil outside of a running Wails app (e.g. in
// unit tests or a headless CLI use of the facade), in which case the event
// is logged instead of delivered.
func emit(name string, payload Payload) {
	app := application.Get()
	if app == nil {
		logger.Log.Debug().Str("event", name).Interface("payload", payload).Msg("no UI host attached, dropping event")
		return
	}
	app.Event.Emit(name, payload)
}
