package facade_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	apperr "vidreel/internal/errors"
	"vidreel/internal/cache"
	"vidreel/internal/events"
	"vidreel/internal/facade"
	"vidreel/internal/platform"
	"vidreel/internal/queue"
	"vidreel/internal/storage"
)

// =============================================================================
// Mocks
// =============================================================================

// stubProvider is a test double implementing platform.Provider.
type stubProvider struct {
	name        string
	videoInfo   *platform.VideoInfo
	infoErr     error
	callCount   int
}

func (s *stubProvider) Name() string { return s.name }
func (s *stubProvider) Detect(rawURL string) bool {
	return len(rawURL) > 0 && rawURL[0:4] == "http"
}
func (s *stubProvider) VerifyDependencies(ctx context.Context) error { return nil }
func (s *stubProvider) GetVideoInfo(ctx context.Context, rawURL string) (*platform.VideoInfo, error) {
	s.callCount++
	if s.infoErr != nil {
		return nil, s.infoErr
	}
	return s.videoInfo, nil
}
func (s *stubProvider) GetPlaylistInfo(ctx context.Context, rawURL string) (*platform.PlaylistRecord, error) {
	if s.infoErr != nil {
		return nil, s.infoErr
	}
	return &platform.PlaylistRecord{Title: s.videoInfo.Title, VideoCount: 1, Videos: []platform.VideoInfo{*s.videoInfo}}, nil
}
func (s *stubProvider) GetChannelInfo(ctx context.Context, rawURL string) (*platform.ChannelRecord, error) {
	if s.infoErr != nil {
		return nil, s.infoErr
	}
	return &platform.ChannelRecord{Name: s.name}, nil
}
func (s *stubProvider) Download(ctx context.Context, outputDir string, opts platform.DownloadOptions, onProgress platform.ProgressFunc, onLog platform.LogFunc) error {
	return nil
}
func (s *stubProvider) Settings() []platform.Setting { return nil }

// =============================================================================
// VideoHandler
// =============================================================================

func TestDetectPlatformReturnsProviderName(t *testing.T) {
	registry := platform.NewRegistry()
	registry.Register(&stubProvider{name: "youtube"})

	h := facade.NewVideoHandler(registry, cache.New[*platform.VideoInfo](time.Minute), cache.New[*platform.PlaylistRecord](time.Minute), cache.New[*platform.ChannelRecord](time.Minute))

	name, err := h.DetectPlatform("https://youtube.com/watch?v=abc")
	if err != nil {
		t.Fatalf("DetectPlatform() error = %v", err)
	}
	if name != "youtube" {
		t.Errorf("DetectPlatform() = %q, want youtube", name)
	}
}

func TestDetectPlatformRejectsInvalidURL(t *testing.T) {
	h := facade.NewVideoHandler(platform.NewRegistry(), cache.New[*platform.VideoInfo](time.Minute), cache.New[*platform.PlaylistRecord](time.Minute), cache.New[*platform.ChannelRecord](time.Minute))

	_, err := h.DetectPlatform("not-a-url")
	if !apperr.Is(err, apperr.InvalidURL) {
		t.Errorf("DetectPlatform(invalid) error = %v, want InvalidURL", err)
	}
}

func TestGetVideoInfoCachesSecondCall(t *testing.T) {
	p := &stubProvider{name: "youtube", videoInfo: &platform.VideoInfo{ID: "v1", Title: "hit"}}
	registry := platform.NewRegistry()
	registry.Register(p)

	h := facade.NewVideoHandler(registry, cache.New[*platform.VideoInfo](time.Minute), cache.New[*platform.PlaylistRecord](time.Minute), cache.New[*platform.ChannelRecord](time.Minute))

	first, err := h.GetVideoInfo(context.Background(), "https://youtube.com/watch?v=v1")
	if err != nil {
		t.Fatalf("first GetVideoInfo() error = %v", err)
	}
	second, err := h.GetVideoInfo(context.Background(), "https://youtube.com/watch?v=v1")
	if err != nil {
		t.Fatalf("second GetVideoInfo() error = %v", err)
	}

	if first != second {
		t.Errorf("expected cached pointer identity, got distinct results")
	}
	if p.callCount != 1 {
		t.Errorf("provider called %d times, want 1 (second call should hit cache)", p.callCount)
	}
}

func TestGetVideoInfoWrapsProviderError(t *testing.T) {
	p := &stubProvider{name: "youtube", infoErr: apperr.New("stub", apperr.NetworkError, "boom")}
	registry := platform.NewRegistry()
	registry.Register(p)

	h := facade.NewVideoHandler(registry, cache.New[*platform.VideoInfo](time.Minute), cache.New[*platform.PlaylistRecord](time.Minute), cache.New[*platform.ChannelRecord](time.Minute))

	_, err := h.GetVideoInfo(context.Background(), "https://youtube.com/watch?v=bad")
	if !apperr.Is(err, apperr.VideoUnavailable) {
		t.Errorf("GetVideoInfo() error = %v, want VideoUnavailable", err)
	}
}

// =============================================================================
// QueueHandler
// =============================================================================

func testQueueManager(t *testing.T, registry *platform.Registry) (*queue.Manager, *storage.Service) {
	t.Helper()
	dir := t.TempDir()
	svc := storage.New(dir, filepath.Join(dir, "downloads"))
	m, err := queue.New(3, registry, svc, events.NewBus(), true, 3)
	if err != nil {
		t.Fatalf("queue.New() error = %v", err)
	}
	return m, svc
}

func TestAddToQueueAssignsPlatformFromRegistry(t *testing.T) {
	registry := platform.NewRegistry()
	registry.Register(&stubProvider{name: "youtube"})
	m, svc := testQueueManager(t, registry)

	h := facade.NewQueueHandler(m, registry, svc)
	items, err := h.AddToQueue([]facade.QueueItemRequest{
		{URL: "https://youtube.com/watch?v=abc", Title: "A Video"},
	})
	if err != nil {
		t.Fatalf("AddToQueue() error = %v", err)
	}
	if len(items) != 1 || items[0].Platform != "youtube" {
		t.Errorf("AddToQueue() = %+v, want platform youtube resolved", items)
	}
}

func TestAddToQueueDefaultsQualityAndFormatFromSettings(t *testing.T) {
	registry := platform.NewRegistry()
	registry.Register(&stubProvider{name: "youtube"})
	m, svc := testQueueManager(t, registry)

	settings, err := svc.LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}
	settings.DefaultQuality = "720p"
	settings.DefaultFormat = "mp4"
	if err := svc.SaveSettings(settings); err != nil {
		t.Fatalf("SaveSettings() error = %v", err)
	}

	h := facade.NewQueueHandler(m, registry, svc)
	items, err := h.AddToQueue([]facade.QueueItemRequest{
		{URL: "https://youtube.com/watch?v=abc", Title: "A Video"},
	})
	if err != nil {
		t.Fatalf("AddToQueue() error = %v", err)
	}
	if items[0].Quality != "720p" || items[0].Format != "mp4" {
		t.Errorf("AddToQueue() = %+v, want quality/format defaulted from settings", items[0])
	}
}

func TestAddToQueueHonorsPerItemQualityOverride(t *testing.T) {
	registry := platform.NewRegistry()
	registry.Register(&stubProvider{name: "youtube"})
	m, svc := testQueueManager(t, registry)

	h := facade.NewQueueHandler(m, registry, svc)
	items, err := h.AddToQueue([]facade.QueueItemRequest{
		{URL: "https://youtube.com/watch?v=abc", Title: "A Video", Quality: "480p", Format: "webm", AudioOnly: true},
	})
	if err != nil {
		t.Fatalf("AddToQueue() error = %v", err)
	}
	if items[0].Quality != "480p" || items[0].Format != "webm" || !items[0].AudioOnly {
		t.Errorf("AddToQueue() = %+v, want per-item overrides preserved", items[0])
	}
}

func TestAddToQueueRejectsInvalidURL(t *testing.T) {
	registry := platform.NewRegistry()
	m, svc := testQueueManager(t, registry)

	h := facade.NewQueueHandler(m, registry, svc)
	_, err := h.AddToQueue([]facade.QueueItemRequest{{URL: "garbage"}})
	if !apperr.Is(err, apperr.InvalidURL) {
		t.Errorf("AddToQueue(invalid) error = %v, want InvalidURL", err)
	}
}

func TestPauseUnknownIDErrors(t *testing.T) {
	registry := platform.NewRegistry()
	m, svc := testQueueManager(t, registry)

	h := facade.NewQueueHandler(m, registry, svc)
	err := h.Pause("does-not-exist")
	if !apperr.Is(err, apperr.UnknownID) {
		t.Errorf("Pause(unknown) error = %v, want UnknownID", err)
	}
}

// =============================================================================
// SettingsHandler
// =============================================================================

func TestSaveSettingsClampsMaxConcurrent(t *testing.T) {
	dir := t.TempDir()
	downloads := filepath.Join(dir, "downloads")
	svc := storage.New(dir, downloads)
	h := facade.NewSettingsHandler(svc)

	if err := h.SaveSettings(storage.Settings{MaxConcurrent: 99, DefaultSaveDirectory: downloads}); err != nil {
		t.Fatalf("SaveSettings() error = %v", err)
	}

	loaded, err := h.GetSettings()
	if err != nil {
		t.Fatalf("GetSettings() error = %v", err)
	}
	if loaded.MaxConcurrent != 5 {
		t.Errorf("MaxConcurrent = %d, want clamped to 5", loaded.MaxConcurrent)
	}
}

func TestSaveSettingsRejectsTraversalPath(t *testing.T) {
	dir := t.TempDir()
	downloads := filepath.Join(dir, "downloads")
	svc := storage.New(dir, downloads)
	h := facade.NewSettingsHandler(svc)

	err := h.SaveSettings(storage.Settings{DefaultSaveDirectory: "../../etc"})
	if !apperr.Is(err, apperr.InvalidURL) {
		t.Errorf("SaveSettings(traversal path) error = %v, want InvalidURL", err)
	}
}

func TestSaveSettingsResolvesRelativeDirAgainstSaveRoot(t *testing.T) {
	dir := t.TempDir()
	downloads := filepath.Join(dir, "downloads")
	svc := storage.New(dir, downloads)
	h := facade.NewSettingsHandler(svc)

	if err := h.SaveSettings(storage.Settings{DefaultSaveDirectory: "Clips"}); err != nil {
		t.Fatalf("SaveSettings() error = %v", err)
	}

	loaded, err := h.GetSettings()
	if err != nil {
		t.Fatalf("GetSettings() error = %v", err)
	}
	want := filepath.Join(downloads, "Clips")
	if loaded.DefaultSaveDirectory != want {
		t.Errorf("DefaultSaveDirectory = %q, want %q", loaded.DefaultSaveDirectory, want)
	}
}

// =============================================================================
// SystemHandler
// =============================================================================

func TestCheckDependenciesAllPlatforms(t *testing.T) {
	registry := platform.NewRegistry()
	registry.Register(&stubProvider{name: "youtube"})
	registry.Register(&stubProvider{name: "twitter"})

	h := facade.NewSystemHandler(registry, nil, nil)
	statuses := h.CheckDependencies(context.Background(), "")
	if len(statuses) != 2 {
		t.Fatalf("CheckDependencies() returned %d statuses, want 2", len(statuses))
	}
	for _, s := range statuses {
		if !s.OK {
			t.Errorf("status for %q = %+v, want OK", s.Platform, s)
		}
	}
}

func TestTestDownloadReturnsTitle(t *testing.T) {
	p := &stubProvider{name: "youtube", videoInfo: &platform.VideoInfo{Title: "my video"}}
	registry := platform.NewRegistry()
	registry.Register(p)

	h := facade.NewSystemHandler(registry, nil, nil)
	title, err := h.TestDownload(context.Background(), "https://youtube.com/watch?v=abc")
	if err != nil {
		t.Fatalf("TestDownload() error = %v", err)
	}
	if title != "my video" {
		t.Errorf("TestDownload() = %q, want %q", title, "my video")
	}
}
