// Package locator resolves and verifies the yt-dlp and ffmpeg executables
// the download core depends on (§4.1). It deliberately does not fetch or
// install anything: acquiring the binaries is an installer-time concern
// left to the packaging pipeline. This package only resolves the path an
// already-installed binary should live at, verifies its digest against a
// manifest shipped alongside it, and makes sure it is executable.
package locator

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	apperr "vidreel/internal/errors"
)

// Paths resolves directories; locator only needs YtDlpPath/FFmpegPath, kept
// as a narrow interface so tests can fake it without internal/app.
type Paths interface {
	YtDlpPath() string
	FFmpegPath() string
}

// Resolved holds the verified executable paths.
type Resolved struct {
	YtDlpPath  string
	FFmpegPath string
}

// Locator resolves and verifies bundled executables against a manifest of
// "<relative-path> <hex-sha256>" lines, one per supported binary.
type Locator struct {
	manifestPath string
}

// New creates a Locator reading its manifest from manifestPath. A missing
// manifest file is not an error: verification is then skipped and only
// presence/permission checks run, which keeps the locator usable in dev
// environments that don't ship a signed manifest.
func New(manifestPath string) *Locator {
	return &Locator{manifestPath: manifestPath}
}

// Resolve locates yt-dlp and ffmpeg via paths, verifies each against the
// manifest digest (when present), and ensures both are executable.
func (l *Locator) Resolve(paths Paths) (*Resolved, error) {
	manifest, err := l.loadManifest()
	if err != nil {
		return nil, apperr.Wrap("locator.Resolve", apperr.PersistenceError, err)
	}

	ytDlp, err := l.resolveOne(paths.YtDlpPath(), manifest)
	if err != nil {
		return nil, err
	}
	ffmpeg, err := l.resolveOne(paths.FFmpegPath(), manifest)
	if err != nil {
		return nil, err
	}

	return &Resolved{YtDlpPath: ytDlp, FFmpegPath: ffmpeg}, nil
}

func (l *Locator) resolveOne(path string, manifest map[string]string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", apperr.New("locator.resolveOne", apperr.MissingDependency,
				fmt.Sprintf("required executable not found: %s", path))
		}
		return "", apperr.Wrap("locator.resolveOne", apperr.PermissionDenied, err)
	}
	if info.IsDir() {
		return "", apperr.New("locator.resolveOne", apperr.CorruptedInstallation,
			fmt.Sprintf("%s is a directory, expected an executable", path))
	}

	if expected, ok := manifest[filepath.Base(path)]; ok {
		actual, err := digest(path)
		if err != nil {
			return "", apperr.Wrap("locator.resolveOne", apperr.PermissionDenied, err)
		}
		if !strings.EqualFold(actual, expected) {
			return "", apperr.New("locator.resolveOne", apperr.CorruptedInstallation,
				fmt.Sprintf("checksum mismatch for %s: expected %s, got %s", path, expected, actual))
		}
	}

	if runtime.GOOS != "windows" {
		if info.Mode()&0111 == 0 {
			if err := os.Chmod(path, info.Mode()|0111); err != nil {
				return "", apperr.New("locator.resolveOne", apperr.PermissionDenied,
					fmt.Sprintf("failed to mark %s executable: %v", path, err))
			}
		}
	}

	return path, nil
}

// digest computes the SHA-256 hex digest of the file at path, streaming it
// through an io.MultiWriter-free hash.Hash the way internal/launcher's
// downloadDependency verifies freshly downloaded archives.
func digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// loadManifest reads "<relative-path> <hex-digest>" lines, keyed by the
// path's base name so resolveOne can match an executable by file name.
// Returns an empty map (not an error) when the manifest file does not exist.
func (l *Locator) loadManifest() (map[string]string, error) {
	manifest := make(map[string]string)
	if l.manifestPath == "" {
		return manifest, nil
	}

	f, err := os.Open(l.manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return manifest, nil
		}
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		manifest[filepath.Base(fields[0])] = fields[1]
	}
	return manifest, scanner.Err()
}
