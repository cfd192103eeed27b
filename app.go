package main

import (
	"context"
	"fmt"
	"path/filepath"

	"vidreel/internal/app"
	"vidreel/internal/cache"
	"vidreel/internal/constants"
	"vidreel/internal/events"
	"vidreel/internal/facade"
	"vidreel/internal/locator"
	"vidreel/internal/logger"
	"vidreel/internal/platform"
	"vidreel/internal/platform/instagram"
	"vidreel/internal/platform/twitter"
	"vidreel/internal/platform/youtube"
	"vidreel/internal/queue"
	"vidreel/internal/storage"

	"github.com/wailsapp/wails/v3/pkg/application"
)

// Version is set at build time via ldflags, or read from the embedded VERSION file.
var Version string

// App is the Facade exposed to the frontend. It owns nothing itself beyond
// the handful of long-lived components: every request is delegated to one
// of the four command-facade handlers in internal/facade.
type App struct {
	ctx context.Context

	paths      *app.Paths
	storageSvc *storage.Service
	registry   *platform.Registry
	bus        *events.Bus
	loc        *locator.Locator
	queueMgr   *queue.Manager

	videoHandler    *facade.VideoHandler
	queueHandler    *facade.QueueHandler
	settingsHandler *facade.SettingsHandler
	systemHandler   *facade.SystemHandler
}

// NewApp creates a new App application struct.
func NewApp() *App {
	return &App{}
}

// ServiceStartup is called when the app starts (Wails v3 lifecycle).
func (a *App) ServiceStartup(ctx context.Context, options application.ServiceOptions) error {
	a.ctx = ctx

	paths, err := app.GetPaths()
	if err != nil {
		logger.Log.Error().Err(err).Msg("failed to get paths")
		return err
	}
	a.paths = paths

	if err := logger.Init(paths.AppData); err != nil {
		fmt.Printf("Warning: failed to initialize logger: %v\n", err)
	}

	logger.Log.Info().
		Str("version", Version).
		Str("appData", paths.AppData).
		Str("downloadsDir", paths.Downloads).
		Msg("vidreel starting up")

	if err := paths.EnsureDirectories(); err != nil {
		logger.Log.Error().Err(err).Msg("failed to create directories")
		return err
	}

	a.storageSvc = storage.New(paths.AppData, paths.Downloads)
	settings, err := a.storageSvc.LoadSettings()
	if err != nil {
		logger.Log.Warn().Err(err).Msg("failed to load settings, using defaults")
		settings = storage.DefaultSettings(paths.Downloads)
	}

	a.bus = events.NewBus()
	a.loc = locator.New(filepath.Join(paths.Bin, constants.ManifestFile))

	a.registry = platform.NewRegistry()
	a.registry.Register(youtube.New(paths.YtDlpPath(), paths.FFmpegPath(), paths.Aria2cPath(), paths.Downloads))
	a.registry.Register(twitter.New(paths.YtDlpPath(), paths.FFmpegPath(), paths.Aria2cPath(), paths.Downloads))
	a.registry.Register(instagram.New(paths.YtDlpPath(), paths.FFmpegPath(), paths.Aria2cPath(), paths.Downloads))

	a.queueMgr, err = queue.New(settings.MaxConcurrent, a.registry, a.storageSvc, a.bus, settings.AutoRetryOnFailure, settings.MaxRetryAttempts)
	if err != nil {
		logger.Log.Error().Err(err).Msg("failed to initialize download queue")
		return err
	}
	a.queueMgr.Start()
	logger.Log.Info().Msg("download queue started")

	videoCache := cache.New[*platform.VideoInfo](constants.MetadataCacheTTL)
	playlistCache := cache.New[*platform.PlaylistRecord](constants.MetadataCacheTTL)
	channelCache := cache.New[*platform.ChannelRecord](constants.MetadataCacheTTL)

	a.videoHandler = facade.NewVideoHandler(a.registry, videoCache, playlistCache, channelCache)
	a.queueHandler = facade.NewQueueHandler(a.queueMgr, a.registry, a.storageSvc)
	a.settingsHandler = facade.NewSettingsHandler(a.storageSvc)
	a.systemHandler = facade.NewSystemHandler(a.registry, a.loc, paths)

	needsSetup := !a.VerifyBundledExecutables()
	a.bus.Emit(constants.EventAppReady, map[string]any{"needsSetup": needsSetup})
	logger.Log.Info().Bool("needsSetup", needsSetup).Msg("app:ready event emitted")

	return nil
}

// ServiceShutdown is called when the app shuts down (Wails v3 lifecycle).
func (a *App) ServiceShutdown() error {
	if a.queueMgr != nil {
		a.queueMgr.Stop()
	}
	logger.Log.Info().Msg("application shutdown complete")
	return nil
}

// --- VideoHandler passthroughs (detect_platform, get_supported_platforms,
// get_video_info, get_playlist_info, get_channel_info; §6) ---

func (a *App) DetectPlatform(url string) (string, error) {
	return a.videoHandler.DetectPlatform(url)
}

func (a *App) GetSupportedPlatforms() []facade.PlatformInfo {
	return a.videoHandler.GetSupportedPlatforms()
}

func (a *App) GetVideoInfo(url string) (*platform.VideoInfo, error) {
	return a.videoHandler.GetVideoInfo(a.ctx, url)
}

func (a *App) GetPlaylistInfo(url string) (*platform.PlaylistRecord, error) {
	return a.videoHandler.GetPlaylistInfo(a.ctx, url)
}

func (a *App) GetChannelInfo(url string) (*platform.ChannelRecord, error) {
	return a.videoHandler.GetChannelInfo(a.ctx, url)
}

// --- QueueHandler passthroughs (add_to_download_queue, pause_download,
// resume_download, cancel_download, reorder_queue; §6) ---

func (a *App) AddToQueue(requests []facade.QueueItemRequest) ([]storage.Item, error) {
	return a.queueHandler.AddToQueue(requests)
}

func (a *App) PauseDownload(id string) error {
	return a.queueHandler.Pause(id)
}

func (a *App) ResumeDownload(id string) error {
	return a.queueHandler.Resume(id)
}

func (a *App) CancelDownload(id string) error {
	return a.queueHandler.Cancel(id)
}

func (a *App) ReorderQueue(fromIndex, toIndex int) error {
	return a.queueHandler.Reorder(fromIndex, toIndex)
}

func (a *App) GetQueueSnapshot() []storage.Item {
	return a.queueHandler.Snapshot()
}

// --- SettingsHandler passthroughs (get_settings, save_settings,
// select_directory; §6) ---

func (a *App) GetSettings() (storage.Settings, error) {
	return a.settingsHandler.GetSettings()
}

func (a *App) SaveSettings(settings storage.Settings) error {
	return a.settingsHandler.SaveSettings(settings)
}

func (a *App) SelectDirectory() (string, error) {
	return a.settingsHandler.SelectDirectory()
}

// --- SystemHandler passthroughs (check_dependencies,
// verify_bundled_executables, test_download; §6) ---

func (a *App) CheckDependencies(platformName string) []facade.DependencyStatus {
	return a.systemHandler.CheckDependencies(a.ctx, platformName)
}

func (a *App) VerifyBundledExecutables() bool {
	return a.systemHandler.VerifyBundledExecutables()
}

func (a *App) TestDownload(url string) (string, error) {
	return a.systemHandler.TestDownload(a.ctx, url)
}

func (a *App) OpenUrl(url string) {
	application.Get().Browser.OpenURL(url)
}

func (a *App) GetVersion() string {
	return Version
}
