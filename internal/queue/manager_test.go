package queue

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	apperr "vidreel/internal/errors"
	"vidreel/internal/events"
	"vidreel/internal/platform"
	"vidreel/internal/storage"
)

func isDuplicateID(err error) bool       { return apperr.Is(err, apperr.DuplicateID) }
func isUnknownID(err error) bool         { return apperr.Is(err, apperr.UnknownID) }
func isIllegalTransition(err error) bool { return apperr.Is(err, apperr.IllegalTransition) }
func retryableErr() error                { return apperr.New("fakeProvider.Download", apperr.NetworkError, "simulated network error") }

// =============================================================================
// Test Helpers
// =============================================================================

// fakeProvider is a controllable platform.Provider substitute so tests never
// spawn a real subprocess.
type fakeProvider struct {
	name     string
	behavior func(ctx context.Context, onProgress platform.ProgressFunc) error

	mu       sync.Mutex
	lastOpts platform.DownloadOptions
}

func (f *fakeProvider) Name() string                                       { return f.name }
func (f *fakeProvider) Detect(rawURL string) bool                          { return true }
func (f *fakeProvider) VerifyDependencies(ctx context.Context) error       { return nil }
func (f *fakeProvider) GetVideoInfo(ctx context.Context, u string) (*platform.VideoInfo, error) {
	return &platform.VideoInfo{ID: "v1", Title: "test"}, nil
}
func (f *fakeProvider) GetPlaylistInfo(ctx context.Context, u string) (*platform.PlaylistRecord, error) {
	return &platform.PlaylistRecord{Title: "test", VideoCount: 1, Videos: []platform.VideoInfo{{ID: "v1", Title: "test"}}}, nil
}
func (f *fakeProvider) GetChannelInfo(ctx context.Context, u string) (*platform.ChannelRecord, error) {
	return &platform.ChannelRecord{Name: "test"}, nil
}
func (f *fakeProvider) Download(ctx context.Context, outputDir string, opts platform.DownloadOptions, onProgress platform.ProgressFunc, onLog platform.LogFunc) error {
	f.mu.Lock()
	f.lastOpts = opts
	f.mu.Unlock()

	if f.behavior != nil {
		return f.behavior(ctx, onProgress)
	}
	onProgress(platform.Progress{Percent: 100, Status: "completed"})
	return nil
}

func (f *fakeProvider) receivedOpts() platform.DownloadOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastOpts
}
func (f *fakeProvider) Settings() []platform.Setting { return nil }

func testManager(t *testing.T, registry *platform.Registry) *Manager {
	t.Helper()
	dir := t.TempDir()
	svc := storage.New(dir, filepath.Join(dir, "downloads"))
	bus := events.NewBus()

	m, err := New(3, registry, svc, bus, true, 3)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return m
}

func registryWith(p platform.Provider) *platform.Registry {
	r := platform.NewRegistry()
	r.Register(p)
	return r
}

// =============================================================================
// Construction / crash recovery
// =============================================================================

func TestNewDefaultsConcurrency(t *testing.T) {
	dir := t.TempDir()
	svc := storage.New(dir, filepath.Join(dir, "downloads"))
	bus := events.NewBus()

	m, err := New(0, platform.NewRegistry(), svc, bus, true, 3)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if m.maxConcurrent != 3 {
		t.Errorf("maxConcurrent = %d, want default 3", m.maxConcurrent)
	}

	m2, _ := New(99, platform.NewRegistry(), svc, bus, true, 3)
	if m2.maxConcurrent != 5 {
		t.Errorf("maxConcurrent = %d, want clamped 5", m2.maxConcurrent)
	}
}

func TestNewRewritesStaleDownloadingToQueued(t *testing.T) {
	dir := t.TempDir()
	svc := storage.New(dir, filepath.Join(dir, "downloads"))

	if err := svc.SaveQueue(storage.QueueDocument{Items: []storage.Item{
		{ID: "stuck", Status: "downloading", URL: "https://youtube.com/watch?v=stuck"},
	}}); err != nil {
		t.Fatalf("SaveQueue() error = %v", err)
	}

	m, err := New(3, platform.NewRegistry(), svc, events.NewBus(), true, 3)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	item := m.find("stuck")
	if item == nil {
		t.Fatal("expected recovered item to be present")
	}
	if item.Status != StatusQueued {
		t.Errorf("Status = %q, want requeued %q after crash recovery", item.Status, StatusQueued)
	}
}

// =============================================================================
// Enqueue
// =============================================================================

func TestEnqueueAddsItemsAtTail(t *testing.T) {
	m := testManager(t, platform.NewRegistry())

	err := m.Enqueue([]storage.Item{
		{ID: "a", URL: "https://youtube.com/watch?v=a"},
		{ID: "b", URL: "https://youtube.com/watch?v=b"},
	})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	snap := m.Snapshot()
	if len(snap) != 2 || snap[0].ID != "a" || snap[1].ID != "b" {
		t.Errorf("Snapshot() = %+v, want [a, b] in order", snap)
	}
}

func TestEnqueueRejectsDuplicateID(t *testing.T) {
	m := testManager(t, platform.NewRegistry())

	if err := m.Enqueue([]storage.Item{{ID: "dup", URL: "https://youtube.com/watch?v=dup"}}); err != nil {
		t.Fatalf("first Enqueue() error = %v", err)
	}

	err := m.Enqueue([]storage.Item{{ID: "dup", URL: "https://youtube.com/watch?v=dup"}})
	if !isDuplicateID(err) {
		t.Errorf("second Enqueue() error = %v, want DuplicateID", err)
	}
}

// =============================================================================
// Transitions
// =============================================================================

func TestPauseQueuedItem(t *testing.T) {
	m := testManager(t, platform.NewRegistry())
	_ = m.Enqueue([]storage.Item{{ID: "a", URL: "https://youtube.com/watch?v=a"}})

	if err := m.Pause("a"); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if got := m.find("a").Status; got != StatusPaused {
		t.Errorf("Status = %q, want paused", got)
	}
}

func TestResumeRequeuesPausedItem(t *testing.T) {
	m := testManager(t, platform.NewRegistry())
	_ = m.Enqueue([]storage.Item{{ID: "a", URL: "https://youtube.com/watch?v=a"}})
	_ = m.Pause("a")

	if err := m.Resume("a"); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if got := m.find("a").Status; got != StatusQueued {
		t.Errorf("Status = %q, want queued", got)
	}
}

func TestCancelUnknownIDErrors(t *testing.T) {
	m := testManager(t, platform.NewRegistry())

	err := m.Cancel("nope")
	if !isUnknownID(err) {
		t.Errorf("Cancel(unknown) error = %v, want UnknownID", err)
	}
}

func TestPauseCompletedItemIsIllegalTransition(t *testing.T) {
	m := testManager(t, platform.NewRegistry())
	_ = m.Enqueue([]storage.Item{{ID: "a", URL: "https://youtube.com/watch?v=a"}})

	item := m.find("a")
	item.Status = StatusCompleted

	err := m.Pause("a")
	if !isIllegalTransition(err) {
		t.Errorf("Pause(completed) error = %v, want IllegalTransition", err)
	}
}

// =============================================================================
// Reorder
// =============================================================================

func TestReorderMovesItem(t *testing.T) {
	m := testManager(t, platform.NewRegistry())
	_ = m.Enqueue([]storage.Item{
		{ID: "a", URL: "https://youtube.com/watch?v=a"},
		{ID: "b", URL: "https://youtube.com/watch?v=b"},
		{ID: "c", URL: "https://youtube.com/watch?v=c"},
	})

	if err := m.Reorder(2, 0); err != nil {
		t.Fatalf("Reorder() error = %v", err)
	}

	snap := m.Snapshot()
	if snap[0].ID != "c" || snap[1].ID != "a" || snap[2].ID != "b" {
		t.Errorf("Snapshot() after reorder = %+v, want [c, a, b]", snap)
	}
}

func TestReorderClampsOutOfRangeTarget(t *testing.T) {
	m := testManager(t, platform.NewRegistry())
	_ = m.Enqueue([]storage.Item{
		{ID: "a", URL: "https://youtube.com/watch?v=a"},
		{ID: "b", URL: "https://youtube.com/watch?v=b"},
	})

	if err := m.Reorder(0, 999); err != nil {
		t.Fatalf("Reorder() error = %v", err)
	}

	snap := m.Snapshot()
	if snap[len(snap)-1].ID != "a" {
		t.Errorf("Snapshot() after clamp = %+v, want a last", snap)
	}
}

func TestReorderRejectsOutOfRangeSource(t *testing.T) {
	m := testManager(t, platform.NewRegistry())
	_ = m.Enqueue([]storage.Item{{ID: "a", URL: "https://youtube.com/watch?v=a"}})

	err := m.Reorder(5, 0)
	if err == nil {
		t.Fatal("expected error for out-of-range fromIndex")
	}
}

// =============================================================================
// Scheduling end-to-end (via fake provider)
// =============================================================================

func TestSchedulerCompletesItemThroughFakeProvider(t *testing.T) {
	provider := &fakeProvider{name: "youtube"}
	m := testManager(t, registryWith(provider))

	m.Start()
	defer m.Stop()

	if err := m.Enqueue([]storage.Item{{ID: "a", URL: "https://youtube.com/watch?v=a", Platform: "youtube"}}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if item := m.find("a"); item != nil && item.Status == StatusCompleted {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("item did not reach completed status, final state = %+v", m.find("a"))
}

func TestExecuteThreadsDownloadOptionsToProvider(t *testing.T) {
	provider := &fakeProvider{name: "youtube"}
	m := testManager(t, registryWith(provider))

	m.Start()
	defer m.Stop()

	err := m.Enqueue([]storage.Item{{
		ID:        "a",
		URL:       "https://youtube.com/watch?v=a",
		Platform:  "youtube",
		Quality:   "720p",
		Format:    "mp4",
		AudioOnly: false,
	}})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if item := m.find("a"); item != nil && item.Status == StatusCompleted {
			opts := provider.receivedOpts()
			if opts.Quality != platform.Quality720 || opts.Format != platform.FormatMP4 {
				t.Fatalf("provider.Download received opts = %+v, want quality=720p format=mp4", opts)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("item did not reach completed status, final state = %+v", m.find("a"))
}

func TestSchedulerRetriesOnRetryableFailure(t *testing.T) {
	attempt := 0
	provider := &fakeProvider{
		name: "youtube",
		behavior: func(ctx context.Context, onProgress platform.ProgressFunc) error {
			attempt++
			if attempt < 2 {
				return retryableErr()
			}
			onProgress(platform.Progress{Percent: 100})
			return nil
		},
	}
	m := testManager(t, registryWith(provider))
	m.Start()
	defer m.Stop()

	_ = m.Enqueue([]storage.Item{{ID: "a", URL: "https://youtube.com/watch?v=a", Platform: "youtube"}})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if item := m.find("a"); item != nil && item.Status == StatusCompleted {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("item did not recover via retry, final state = %+v, attempts = %d", m.find("a"), attempt)
}
