// Package storage implements the durable side of §4.8: filename
// sanitization, output directory construction, a free-space check, and
// atomic JSON-document persistence for settings, queue state, and download
// history. It supersedes the teacher's SQLite-backed internal/storage
// (db.go + downloads.go, see DESIGN.md) per spec.md §4.8/§6, which mandate
// three flat JSON documents rather than a relational schema. The
// write-to-temp-then-rename pattern is grounded on
// daleiii-podsync-web/pkg/config.Writer.WriteConfig and the teacher's own
// use of the same idiom in internal/whisper/client.go and cmd/updater/main.go.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	apperr "vidreel/internal/errors"
	"vidreel/internal/validate"
)

// Item is the durable shape of one download item (§3's "Download item").
// The queue manager wraps this with an unexported retry counter that is
// never persisted; cancel handles live in the manager's active set.
type Item struct {
	ID       string  `json:"id"`
	VideoID  string  `json:"video_id"`
	Title    string  `json:"title"`
	Thumbnail string `json:"thumbnail"`
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
	Speed    string  `json:"speed"`
	ETA      string  `json:"eta"`
	SavePath string  `json:"save_path"`
	URL      string  `json:"url"`
	Platform string  `json:"platform"`
	Error    string  `json:"error,omitempty"`

	// Download options (§3), resolved against settings defaults at enqueue
	// time so the manager never has to consult settings mid-flight.
	Quality   string `json:"quality"`
	Format    string `json:"format"`
	AudioOnly bool   `json:"audio_only"`
}

// QueueDocument is the persisted shape of queue.json.
type QueueDocument struct {
	Items       []Item    `json:"items"`
	LastUpdated time.Time `json:"last_updated"`
}

// HistoryEntry is one append-only record in history.json.
type HistoryEntry struct {
	ID          string    `json:"id"`
	VideoID     string    `json:"video_id"`
	Title       string    `json:"title"`
	CompletedAt time.Time `json:"completed_at"`
	SavePath    string    `json:"save_path"`
	FileSize    int64     `json:"file_size"`
}

// HistoryDocument is the persisted shape of history.json.
type HistoryDocument struct {
	Entries []HistoryEntry `json:"entries"`
}

// Settings is the persisted shape of settings.json (§3's "Application settings").
type Settings struct {
	DefaultSaveDirectory string                     `json:"default_save_directory"`
	DefaultQuality       string                     `json:"default_quality"`
	DefaultFormat        string                     `json:"default_format"`
	MaxConcurrent        int                        `json:"max_concurrent"`
	AutoRetryOnFailure   bool                       `json:"auto_retry_on_failure"`
	MaxRetryAttempts     int                        `json:"max_retry_attempts"`
	PlatformOptions      map[string]map[string]any  `json:"platform_options"`
	EnabledPlatforms     []string                   `json:"enabled_platforms"`
	FirstLaunchCompleted bool                       `json:"first_launch_completed"`
}

// DefaultSettings returns the settings document a fresh install starts
// with.
func DefaultSettings(saveDir string) Settings {
	return Settings{
		DefaultSaveDirectory: saveDir,
		DefaultQuality:       "best",
		DefaultFormat:        "mp4",
		MaxConcurrent:        3,
		AutoRetryOnFailure:   true,
		MaxRetryAttempts:     3,
		PlatformOptions:      map[string]map[string]any{},
		EnabledPlatforms:     []string{"youtube", "twitter", "instagram"},
		FirstLaunchCompleted: false,
	}
}

// Service owns the three durable JSON documents plus output-directory and
// free-space helpers. One sync.Mutex per document serializes writes,
// grounded on the teacher's config.Config.mu read/write split.
type Service struct {
	dataDir   string
	saveRoot  string
	settingsMu sync.Mutex
	queueMu    sync.Mutex
	historyMu  sync.Mutex
}

// New creates a Service rooted at dataDir (for settings/queue/history
// documents) and saveRoot (the default download destination).
func New(dataDir, saveRoot string) *Service {
	return &Service{dataDir: dataDir, saveRoot: saveRoot}
}

// SaveRoot returns the configured default download destination, used to
// resolve relative paths during validation (§4.8).
func (s *Service) SaveRoot() string { return s.saveRoot }

func (s *Service) settingsPath() string { return filepath.Join(s.dataDir, "settings.json") }
func (s *Service) queuePath() string    { return filepath.Join(s.dataDir, "queue.json") }
func (s *Service) historyPath() string  { return filepath.Join(s.dataDir, "history.json") }

// LoadSettings reads settings.json, returning DefaultSettings if the file
// is absent.
func (s *Service) LoadSettings() (Settings, error) {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()

	var out Settings
	ok, err := readJSON(s.settingsPath(), &out)
	if err != nil {
		return Settings{}, apperr.Wrap("storage.LoadSettings", apperr.PersistenceError, err)
	}
	if !ok {
		return DefaultSettings(s.saveRoot), nil
	}
	return out, nil
}

// SaveSettings atomically writes settings.json.
func (s *Service) SaveSettings(settings Settings) error {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()

	if err := writeJSONAtomic(s.dataDir, s.settingsPath(), settings); err != nil {
		return apperr.Wrap("storage.SaveSettings", apperr.PersistenceError, err)
	}
	return nil
}

// LoadQueue reads queue.json, returning an empty document if absent.
func (s *Service) LoadQueue() (QueueDocument, error) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	var out QueueDocument
	ok, err := readJSON(s.queuePath(), &out)
	if err != nil {
		return QueueDocument{}, apperr.Wrap("storage.LoadQueue", apperr.PersistenceError, err)
	}
	if !ok {
		return QueueDocument{Items: []Item{}, LastUpdated: time.Time{}}, nil
	}
	return out, nil
}

// SaveQueue atomically writes queue.json as given; the caller sets
// LastUpdated.
func (s *Service) SaveQueue(doc QueueDocument) error {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	if err := writeJSONAtomic(s.dataDir, s.queuePath(), doc); err != nil {
		return apperr.Wrap("storage.SaveQueue", apperr.PersistenceError, err)
	}
	return nil
}

// LoadHistory reads history.json, returning an empty document if absent.
func (s *Service) LoadHistory() (HistoryDocument, error) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	var out HistoryDocument
	ok, err := readJSON(s.historyPath(), &out)
	if err != nil {
		return HistoryDocument{}, apperr.Wrap("storage.LoadHistory", apperr.PersistenceError, err)
	}
	if !ok {
		return HistoryDocument{Entries: []HistoryEntry{}}, nil
	}
	return out, nil
}

// AppendHistory loads history.json, appends entry, and writes it back.
func (s *Service) AppendHistory(entry HistoryEntry) error {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	var doc HistoryDocument
	ok, err := readJSON(s.historyPath(), &doc)
	if err != nil {
		return apperr.Wrap("storage.AppendHistory", apperr.PersistenceError, err)
	}
	if !ok {
		doc = HistoryDocument{Entries: []HistoryEntry{}}
	}
	doc.Entries = append(doc.Entries, entry)

	if err := writeJSONAtomic(s.dataDir, s.historyPath(), doc); err != nil {
		return apperr.Wrap("storage.AppendHistory", apperr.PersistenceError, err)
	}
	return nil
}

// BuildOutputDir constructs the destination directory per §4.8's directory
// construction rule: <saveRoot>/<channel>/<playlist>/ for a channel
// playlist, <saveRoot>/<playlist>/ for a bare playlist, <saveRoot>/ for a
// solo video. Each segment is independently sanitized. The directory is
// created if missing; a pre-existing directory is success.
func (s *Service) BuildOutputDir(channel, playlist string) (string, error) {
	dir := s.saveRoot
	if channel != "" {
		dir = filepath.Join(dir, validate.Filename(channel))
	}
	if playlist != "" {
		dir = filepath.Join(dir, validate.Filename(playlist))
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", apperr.Wrap("storage.BuildOutputDir", apperr.PermissionDenied, err)
	}
	return dir, nil
}

// CheckFreeSpace returns InsufficientSpace if free bytes at path fall below
// requiredBytes. requiredBytes may be zero (or negative), in which case at
// least minFreeDiskBytes (100 MiB) must be free (§4.8).
func (s *Service) CheckFreeSpace(path string, requiredBytes int64) error {
	free, err := freeBytes(path)
	if err != nil {
		return apperr.Wrap("storage.CheckFreeSpace", apperr.PersistenceError, err)
	}

	threshold := requiredBytes
	if threshold <= 0 {
		threshold = minFreeDiskBytes
	}
	if free < uint64(threshold) {
		return apperr.New("storage.CheckFreeSpace", apperr.InsufficientSpace,
			fmt.Sprintf("only %d bytes free, need at least %d", free, threshold))
	}
	return nil
}

const minFreeDiskBytes = 100 * 1024 * 1024

// readJSON reads and unmarshals path into v. Returns ok=false (no error)
// when the file does not exist, per §4.8's "reads tolerate missing files".
func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, err
	}
	return true, nil
}

// writeJSONAtomic marshals v and writes it to path via a temp-file-then-
// rename, so a crash mid-write never leaves a torn document.
func writeJSONAtomic(dir, path string, v any) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
