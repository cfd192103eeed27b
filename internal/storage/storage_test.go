package storage

import (
	"path/filepath"
	"testing"
	"time"

	apperr "vidreel/internal/errors"
)

func TestLoadSettingsReturnsDefaultsWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	svc := New(dir, filepath.Join(dir, "downloads"))

	settings, err := svc.LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}
	if settings.MaxConcurrent != 3 {
		t.Errorf("MaxConcurrent = %d, want default 3", settings.MaxConcurrent)
	}
	if settings.DefaultQuality != "best" {
		t.Errorf("DefaultQuality = %q, want best", settings.DefaultQuality)
	}
}

func TestSaveAndLoadSettingsRoundTrips(t *testing.T) {
	dir := t.TempDir()
	svc := New(dir, filepath.Join(dir, "downloads"))

	settings := DefaultSettings(dir)
	settings.MaxConcurrent = 5
	settings.DefaultFormat = "mkv"

	if err := svc.SaveSettings(settings); err != nil {
		t.Fatalf("SaveSettings() error = %v", err)
	}

	loaded, err := svc.LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}
	if loaded.MaxConcurrent != 5 || loaded.DefaultFormat != "mkv" {
		t.Errorf("loaded settings = %+v, want MaxConcurrent=5 DefaultFormat=mkv", loaded)
	}
}

func TestLoadQueueReturnsEmptyWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	svc := New(dir, dir)

	doc, err := svc.LoadQueue()
	if err != nil {
		t.Fatalf("LoadQueue() error = %v", err)
	}
	if len(doc.Items) != 0 {
		t.Errorf("Items = %v, want empty", doc.Items)
	}
}

func TestSaveAndLoadQueueRoundTrips(t *testing.T) {
	dir := t.TempDir()
	svc := New(dir, dir)

	doc := QueueDocument{
		Items: []Item{
			{ID: "abc", Title: "Some Video", Status: "queued", URL: "https://youtube.com/watch?v=abc"},
		},
		LastUpdated: time.Now().UTC(),
	}

	if err := svc.SaveQueue(doc); err != nil {
		t.Fatalf("SaveQueue() error = %v", err)
	}

	loaded, err := svc.LoadQueue()
	if err != nil {
		t.Fatalf("LoadQueue() error = %v", err)
	}
	if len(loaded.Items) != 1 || loaded.Items[0].ID != "abc" {
		t.Errorf("loaded queue = %+v, want one item with id abc", loaded)
	}
}

func TestAppendHistoryAccumulates(t *testing.T) {
	dir := t.TempDir()
	svc := New(dir, dir)

	if err := svc.AppendHistory(HistoryEntry{ID: "1", Title: "first"}); err != nil {
		t.Fatalf("AppendHistory() error = %v", err)
	}
	if err := svc.AppendHistory(HistoryEntry{ID: "2", Title: "second"}); err != nil {
		t.Fatalf("AppendHistory() error = %v", err)
	}

	doc, err := svc.LoadHistory()
	if err != nil {
		t.Fatalf("LoadHistory() error = %v", err)
	}
	if len(doc.Entries) != 2 {
		t.Fatalf("Entries = %d, want 2", len(doc.Entries))
	}
	if doc.Entries[0].ID != "1" || doc.Entries[1].ID != "2" {
		t.Errorf("Entries = %+v, want in append order", doc.Entries)
	}
}

func TestBuildOutputDirSoloVideo(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "downloads")
	svc := New(dir, root)

	got, err := svc.BuildOutputDir("", "")
	if err != nil {
		t.Fatalf("BuildOutputDir() error = %v", err)
	}
	if got != root {
		t.Errorf("BuildOutputDir(solo) = %q, want %q", got, root)
	}
}

func TestBuildOutputDirChannelPlaylist(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "downloads")
	svc := New(dir, root)

	got, err := svc.BuildOutputDir("Some Channel", "Best Of 2024")
	if err != nil {
		t.Fatalf("BuildOutputDir() error = %v", err)
	}
	want := filepath.Join(root, "Some Channel", "Best Of 2024")
	if got != want {
		t.Errorf("BuildOutputDir(channel,playlist) = %q, want %q", got, want)
	}
}

func TestCheckFreeSpaceOnCurrentDir(t *testing.T) {
	svc := New(t.TempDir(), t.TempDir())
	if err := svc.CheckFreeSpace(".", 1); err != nil {
		t.Errorf("CheckFreeSpace(1 byte) error = %v, want nil on any real filesystem", err)
	}
}

func TestCheckFreeSpaceInsufficient(t *testing.T) {
	svc := New(t.TempDir(), t.TempDir())
	err := svc.CheckFreeSpace(".", 1<<62)
	if !apperr.Is(err, apperr.InsufficientSpace) {
		t.Errorf("CheckFreeSpace(huge) error = %v, want InsufficientSpace", err)
	}
}
