// Package constants defines application-wide constants and magic strings.
// Centralizing these values improves maintainability and reduces typos.
package constants

import "time"

// Application metadata
const (
	AppName        = "VidReel"
	AppID          = "com.vidreel.app"
	AppVersion     = "1.0.0"
	SettingsFile   = "settings.json"
	QueueFile      = "queue.json"
	HistoryFile    = "history.json"
	ManifestFile   = "manifest.txt"
)

// Timeouts
const (
	// HTTPTimeout is the default timeout for HTTP requests.
	HTTPTimeout = 30 * time.Second

	// DefaultDownloadTimeout is the maximum time for a single download
	// before it is force-cancelled (§4.5.4).
	DefaultDownloadTimeout = 30 * time.Minute

	// MetadataTimeout is the timeout for fetching video metadata.
	MetadataTimeout = 30 * time.Second

	// MetadataCacheTTL is how long cached metadata stays fresh (§4.2).
	MetadataCacheTTL = 5 * time.Minute
)

// Queue settings
const (
	// DefaultMaxConcurrentDownloads is the default max concurrent downloads (§4.7.2).
	DefaultMaxConcurrentDownloads = 3

	// MaxQueueSize is the maximum number of items in the download queue.
	MaxQueueSize = 100

	// MaxHistoryItems is the default max items to return in history.
	MaxHistoryItems = 100

	// MaxHistoryItemsAbsolute is the absolute maximum for history queries.
	MaxHistoryItemsAbsolute = 500

	// MaxRetryAttempts bounds automatic retry per §4.7.5.
	MaxRetryAttempts = 3

	// ProgressEmitInterval is the minimum spacing between progress events
	// for the same item (§4.3).
	ProgressEmitInterval = 500 * time.Millisecond
)

// File size limits
const (
	// MaxFilenameBytes is the maximum UTF-8 byte length for a generated filename (§4.8).
	MaxFilenameBytes = 255

	// MaxTitleLength is the maximum length for video titles in logs.
	MaxTitleLength = 100

	// MinFreeDiskBytes is the minimum free space required before a download starts.
	MinFreeDiskBytes = 100 * 1024 * 1024 // 100 MiB
)

// Default values for download options
const (
	DefaultAudioFormat      = "mp3"
	DefaultAudioBitrate     = "192"
	DefaultAria2Connections = 16
	MaxAria2Connections     = 32
)

// Supported container/audio formats
var (
	SupportedAudioFormats = []string{"mp3", "m4a", "opus", "flac", "wav", "aac"}
	SupportedVideoFormats = []string{"mp4", "mkv", "webm"}
)

// Event names for the Wails event bridge (§4.9).
const (
	EventAppReady         = "app:ready"
	EventQueueAdded       = "queue:added"
	EventQueueUpdated     = "queue:update"
	EventDownloadProgress = "download:progress"
	EventDownloadLog      = "download:log"
	EventDownloadError    = "download:error"
	EventConsoleLog       = "console:log"
)

// Status values mirrored by internal/storage.ItemStatus.
const (
	StatusQueued      = "queued"
	StatusDownloading = "downloading"
	StatusPaused      = "paused"
	StatusCompleted   = "completed"
	StatusFailed      = "failed"
	StatusCancelled   = "cancelled"
)
