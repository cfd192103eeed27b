// Package queue implements the Download Manager (§4.7): a bounded-
// concurrency scheduler over an explicit ordered queue of download items.
// Grounded on internal/downloader.Manager's worker-pool shape (dual-mutex
// discipline, restorePendingJobs crash recovery) but reworked from a
// buffered channel into an ordered slice plus a wake-channel scheduler, so
// that reorder() and front-to-back dispatch order (§4.7.2) are meaningful —
// a channel has no stable position to reorder.
//
// Lock order is fixed and enforced by convention: every method that needs
// both locks acquires mu (the queue) before activeMu (the active set), per
// spec.md §5.
package queue

import (
	"context"
	"sync"
	"time"

	apperr "vidreel/internal/errors"
	"vidreel/internal/events"
	"vidreel/internal/logger"
	"vidreel/internal/platform"
	"vidreel/internal/storage"
	"vidreel/internal/throttle"
)

// Status mirrors the item state machine of §4.7.1.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusPaused      Status = "paused"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

// legalTransitions enumerates the status changes checked through
// canTransition (§4.7.1); a change not listed here is rejected there with
// IllegalTransition. Retry re-queueing and crash recovery set StatusQueued
// directly without consulting this table.
var legalTransitions = map[Status]map[Status]bool{
	StatusQueued:      {StatusDownloading: true, StatusPaused: true, StatusCancelled: true},
	StatusDownloading: {StatusCompleted: true, StatusFailed: true, StatusPaused: true, StatusCancelled: true},
	StatusPaused:      {StatusDownloading: true, StatusCancelled: true, StatusQueued: true},
	StatusFailed:      {StatusDownloading: true, StatusCancelled: true},
	StatusCompleted:   {},
	StatusCancelled:   {},
}

func canTransition(from, to Status) bool {
	if from == to {
		return true
	}
	allowed, ok := legalTransitions[from]
	return ok && allowed[to]
}

// Item is the in-memory queue entry: the durable storage.Item plus a
// non-persisted retry-attempt counter.
type Item struct {
	storage.Item
	Status   Status `json:"-"`
	attempts int
}

func (i *Item) toStorage() storage.Item {
	s := i.Item
	s.Status = string(i.Status)
	return s
}

// activeJob tracks one currently-downloading item's runtime handle.
type activeJob struct {
	cancel context.CancelFunc
}

// Manager is the scheduler described in §4.7. It owns the queue, the
// active-set map, a reference to the platform registry, the storage
// service for checkpointing, and the event bus.
type Manager struct {
	mu      sync.Mutex
	queue   []*Item
	wake    chan struct{}

	activeMu sync.RWMutex
	active   map[string]*activeJob

	maxConcurrent int
	registry      *platform.Registry
	storageSvc    *storage.Service
	bus           *events.Bus

	autoRetry        bool
	maxRetryAttempts int

	stop chan struct{}
	wg   sync.WaitGroup
}

// New constructs a Manager and performs crash recovery (§4.7.6): any item
// persisted with status "downloading" is rewritten to "queued" before the
// scheduler starts, since no process can still be running for it.
func New(maxConcurrent int, registry *platform.Registry, storageSvc *storage.Service, bus *events.Bus, autoRetry bool, maxRetryAttempts int) (*Manager, error) {
	if maxConcurrent < 1 {
		maxConcurrent = 3
	}
	if maxConcurrent > 5 {
		maxConcurrent = 5
	}

	m := &Manager{
		queue:            nil,
		wake:             make(chan struct{}, 1),
		active:           make(map[string]*activeJob),
		maxConcurrent:    maxConcurrent,
		registry:         registry,
		storageSvc:       storageSvc,
		bus:              bus,
		autoRetry:        autoRetry,
		maxRetryAttempts: maxRetryAttempts,
		stop:             make(chan struct{}),
	}

	doc, err := storageSvc.LoadQueue()
	if err != nil {
		return nil, err
	}
	for _, persisted := range doc.Items {
		item := &Item{Item: persisted}
		item.Status = Status(persisted.Status)
		if item.Status == StatusDownloading {
			item.Status = StatusQueued
		}
		m.queue = append(m.queue, item)
	}

	return m, nil
}

// Start launches the scheduler supervisor goroutine (§4.7.2).
func (m *Manager) Start() {
	logger.Log.Info().Int("max_concurrent", m.maxConcurrent).Msg("download manager started")
	m.wg.Add(1)
	go m.schedulerLoop()
	m.notify()
}

// Stop halts the scheduler. Active downloads are not interrupted; callers
// that need a clean shutdown should Cancel each active item first.
func (m *Manager) Stop() {
	close(m.stop)
	m.wg.Wait()
	logger.Log.Info().Msg("download manager stopped")
}

func (m *Manager) notify() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// schedulerLoop is the single supervisor task of §4.7.2.
func (m *Manager) schedulerLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.stop:
			return
		case <-m.wake:
		}

		for {
			next := m.claimNext()
			if next == nil {
				break
			}
			m.wg.Add(1)
			go m.execute(next)
		}
	}
}

// claimNext selects the next queued item (if a slot is free), transitions
// it to downloading, and registers a placeholder active handle — all under
// the fixed queue-before-active lock order. execute() installs the real
// cancel func once the download's context exists.
func (m *Manager) claimNext() *Item {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.activeMu.RLock()
	slots := m.maxConcurrent - len(m.active)
	m.activeMu.RUnlock()
	if slots <= 0 {
		return nil
	}

	for _, item := range m.queue {
		if item.Status != StatusQueued {
			continue
		}

		item.Status = StatusDownloading

		m.activeMu.Lock()
		m.active[item.ID] = &activeJob{}
		m.activeMu.Unlock()

		m.checkpointLocked()
		m.bus.Emit("download:status_change", map[string]any{"id": item.ID, "status": string(item.Status)})

		return item
	}
	return nil
}

// execute runs the execution task of §4.7.2 steps (a)-(f) for one claimed
// item. It is intentionally decoupled from claimNext's lock scope: all
// subprocess I/O happens here, outside any mutex.
func (m *Manager) execute(claimed *Item) {
	defer m.wg.Done()
	defer func() {
		m.activeMu.Lock()
		delete(m.active, claimed.ID)
		m.activeMu.Unlock()
		m.notify()
	}()

	item := m.find(claimed.ID)
	if item == nil {
		return
	}

	provider, ok := m.registry.Get(item.Platform)
	if !ok {
		m.transition(item, StatusFailed, "no provider registered for platform "+item.Platform)
		return
	}

	outputDir, err := m.storageSvc.BuildOutputDir("", "")
	if err != nil {
		m.transition(item, StatusFailed, err.Error())
		return
	}
	if err := m.storageSvc.CheckFreeSpace(outputDir, 0); err != nil {
		m.transition(item, StatusFailed, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	m.activeMu.Lock()
	if job, ok := m.active[item.ID]; ok {
		job.cancel = cancel
	}
	m.activeMu.Unlock()

	gate := throttle.NewGate(500 * time.Millisecond)

	onProgress := func(p platform.Progress) {
		if !gate.ShouldEmit(p.Percent) {
			return
		}
		m.updateProgress(item.ID, p)
	}
	onLog := func(line string) {
		m.bus.Emit("download:log", map[string]any{"id": item.ID, "line": line})
	}

	opts := platform.DownloadOptions{
		URL:       item.URL,
		Quality:   platform.Quality(item.Quality),
		Format:    platform.ContainerFormat(item.Format),
		AudioOnly: item.AudioOnly,
	}
	downloadErr := provider.Download(ctx, outputDir, opts, onProgress, onLog)

	if downloadErr != nil {
		if apperr.Is(downloadErr, apperr.OperationCancelled) {
			m.handleCancelledOrTimedOut(item)
			return
		}
		m.handleFailure(item, downloadErr)
		return
	}

	m.complete(item)
}

func (m *Manager) handleCancelledOrTimedOut(item *Item) {
	current := m.find(item.ID)
	if current == nil {
		return
	}
	if current.Status == StatusPaused || current.Status == StatusCancelled {
		return
	}
	m.transition(current, StatusCancelled, "")
}

func (m *Manager) handleFailure(item *Item, err error) {
	current := m.find(item.ID)
	if current == nil {
		return
	}

	m.mu.Lock()
	canRetry := m.autoRetry && apperr.ToEnvelope(err).Retryable && current.attempts < m.maxRetryAttempts
	if canRetry {
		current.attempts++
		current.Status = StatusQueued
		current.Progress = 0
		m.checkpointLocked()
	}
	m.mu.Unlock()

	if canRetry {
		m.bus.Emit("download:status_change", map[string]any{"id": item.ID, "status": string(StatusQueued)})
		m.notify()
		return
	}

	m.transition(current, StatusFailed, err.Error())
}

func (m *Manager) complete(item *Item) {
	current := m.find(item.ID)
	if current == nil {
		return
	}

	m.mu.Lock()
	current.Progress = 100
	current.Status = StatusCompleted
	m.checkpointLocked()
	m.mu.Unlock()

	m.bus.Emit("download:status_change", map[string]any{"id": item.ID, "status": string(StatusCompleted)})
	m.bus.ClearProgress(item.ID)

	_ = m.storageSvc.AppendHistory(storage.HistoryEntry{
		ID:          current.ID,
		VideoID:     current.VideoID,
		Title:       current.Title,
		CompletedAt: time.Now().UTC(),
		SavePath:    current.SavePath,
	})
}

func (m *Manager) updateProgress(id string, p platform.Progress) {
	m.mu.Lock()
	item := m.findLocked(id)
	if item != nil {
		item.Progress = p.Percent
		item.Speed = p.Speed
		item.ETA = p.ETA
	}
	m.mu.Unlock()

	if item != nil {
		m.bus.EmitProgress(id, map[string]any{"id": id, "progress": p})
	}
}

// transition applies a status change after validating it against
// legalTransitions, returning IllegalTransition on a disallowed move.
func (m *Manager) transition(item *Item, to Status, errMsg string) error {
	m.mu.Lock()
	if !canTransition(item.Status, to) {
		m.mu.Unlock()
		return apperr.New("queue.transition", apperr.IllegalTransition,
			"cannot move from "+string(item.Status)+" to "+string(to))
	}
	item.Status = to
	item.Error = errMsg
	m.checkpointLocked()
	m.mu.Unlock()

	m.bus.Emit("download:status_change", map[string]any{"id": item.ID, "status": string(to)})
	if errMsg != "" {
		m.bus.Emit("download:error", map[string]any{"id": item.ID, "error": errMsg})
	}
	return nil
}

func (m *Manager) find(id string) *Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findLocked(id)
}

func (m *Manager) findLocked(id string) *Item {
	for _, item := range m.queue {
		if item.ID == id {
			return item
		}
	}
	return nil
}

// checkpointLocked persists the queue document. Callers must hold mu.
func (m *Manager) checkpointLocked() {
	doc := storage.QueueDocument{LastUpdated: time.Now().UTC()}
	for _, item := range m.queue {
		doc.Items = append(doc.Items, item.toStorage())
	}
	if err := m.storageSvc.SaveQueue(doc); err != nil {
		logger.Log.Error().Err(err).Msg("failed to checkpoint queue")
	}
	m.bus.Emit("queue:update", doc.Items)
}

// Enqueue appends items at the tail of the queue (§4.7.3). An item whose id
// already exists in the queue is rejected with DuplicateId.
func (m *Manager) Enqueue(items []storage.Item) error {
	m.mu.Lock()
	for _, candidate := range items {
		if m.findLocked(candidate.ID) != nil {
			m.mu.Unlock()
			return apperr.New("queue.Enqueue", apperr.DuplicateID, "item "+candidate.ID+" already queued")
		}
	}
	for _, candidate := range items {
		candidate.Status = string(StatusQueued)
		m.queue = append(m.queue, &Item{Item: candidate, Status: StatusQueued})
	}
	m.checkpointLocked()
	m.mu.Unlock()

	m.bus.Emit("queue:added", items)
	m.notify()
	return nil
}

// Pause transitions a downloading item to paused (cancelling its in-flight
// subprocess) or a queued item directly to paused (§4.7.3).
func (m *Manager) Pause(id string) error {
	item := m.find(id)
	if item == nil {
		return apperr.New("queue.Pause", apperr.UnknownID, "item "+id+" not found")
	}

	if item.Status == StatusDownloading {
		m.activeMu.RLock()
		job, ok := m.active[id]
		m.activeMu.RUnlock()
		if ok && job.cancel != nil {
			job.cancel()
		}
	}

	return m.transition(item, StatusPaused, "")
}

// Resume transitions a paused item back to queued and wakes the scheduler.
func (m *Manager) Resume(id string) error {
	item := m.find(id)
	if item == nil {
		return apperr.New("queue.Resume", apperr.UnknownID, "item "+id+" not found")
	}
	if err := m.transition(item, StatusQueued, ""); err != nil {
		return err
	}
	m.notify()
	return nil
}

// Cancel sends a cancel signal to any running handle and marks the item
// cancelled. It remains visible in the queue until the caller removes it.
func (m *Manager) Cancel(id string) error {
	item := m.find(id)
	if item == nil {
		return apperr.New("queue.Cancel", apperr.UnknownID, "item "+id+" not found")
	}

	m.activeMu.RLock()
	job, ok := m.active[id]
	m.activeMu.RUnlock()
	if ok && job.cancel != nil {
		job.cancel()
	}

	return m.transition(item, StatusCancelled, "")
}

// Reorder moves the item at fromIndex to toIndex (§4.7.3), clamped to
// valid bounds. Active items keep their handles; only queue position
// changes.
func (m *Manager) Reorder(fromIndex, toIndex int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.queue)
	if fromIndex < 0 || fromIndex >= n {
		return apperr.New("queue.Reorder", apperr.OutOfRange, "fromIndex out of range")
	}
	if toIndex < 0 {
		toIndex = 0
	}
	if toIndex >= n {
		toIndex = n - 1
	}

	item := m.queue[fromIndex]
	m.queue = append(m.queue[:fromIndex], m.queue[fromIndex+1:]...)

	rest := make([]*Item, 0, n)
	rest = append(rest, m.queue[:toIndex]...)
	rest = append(rest, item)
	rest = append(rest, m.queue[toIndex:]...)
	m.queue = rest

	m.checkpointLocked()
	return nil
}

// Snapshot returns a deep copy of the queue (§4.7.3).
func (m *Manager) Snapshot() []storage.Item {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]storage.Item, len(m.queue))
	for i, item := range m.queue {
		out[i] = item.toStorage()
	}
	return out
}
