// Package validate provides input validation functions for URLs, filenames,
// and other user inputs. All public-facing inputs are validated before
// processing.
package validate

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"unicode/utf8"

	apperr "vidreel/internal/errors"
)

// macProtectedRoots are system directories a save path must never resolve
// inside of, checked only on darwin (§4.8).
var macProtectedRoots = []string{"/System", "/usr", "/bin", "/sbin", "/private", "/Library/System"}

// filenameUnsafeChars matches characters not allowed in filenames across
// Windows/macOS/Linux filesystems, plus control characters (0x00-0x1F, 0x7F).
var filenameUnsafeChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f\x7f]`)

// collapseUnderscores collapses runs of repeated underscores left behind by
// sanitization into a single underscore.
var collapseUnderscores = regexp.MustCompile(`_{2,}`)

// URL validates a URL and returns the parsed URL or an InvalidURL error.
func URL(rawURL string) (*url.URL, error) {
	if rawURL == "" {
		return nil, apperr.New("validate.URL", apperr.InvalidURL, "URL must not be empty")
	}

	rawURL = strings.TrimSpace(rawURL)

	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return nil, apperr.New("validate.URL", apperr.InvalidURL, "URL must start with http:// or https://")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, apperr.New("validate.URL", apperr.InvalidURL, "malformed URL")
	}

	if parsed.Host == "" {
		return nil, apperr.New("validate.URL", apperr.InvalidURL, "URL has no host")
	}

	return parsed, nil
}

// DirectoryPath validates a caller-supplied directory path per §4.8: reject
// a null byte, a ".." component after normalization, or (on macOS) a path
// resolving inside a protected system root. Relative paths are normalized
// to absolute form against saveRoot rather than the process's cwd.
func DirectoryPath(path, saveRoot string) (string, error) {
	const op = "validate.DirectoryPath"

	if path == "" {
		return "", apperr.New(op, apperr.InvalidURL, "path must not be empty")
	}

	if strings.ContainsRune(path, 0) {
		return "", apperr.New(op, apperr.PermissionDenied, "path contains a null byte")
	}

	absPath := filepath.Clean(path)

	for _, segment := range strings.Split(absPath, string(filepath.Separator)) {
		if segment == ".." {
			return "", apperr.New(op, apperr.PermissionDenied, "path contains a .. component")
		}
	}

	if !filepath.IsAbs(absPath) {
		absPath = filepath.Join(saveRoot, absPath)
	}

	if runtime.GOOS == "darwin" {
		for _, root := range macProtectedRoots {
			if absPath == root || strings.HasPrefix(absPath, root+string(filepath.Separator)) {
				return "", apperr.New(op, apperr.PermissionDenied, "path resolves inside a protected system directory")
			}
		}
	}

	return absPath, nil
}

// Filename sanitizes a filename per §4.8: replace each character unsafe on
// any supported filesystem with "_", collapse repeated underscores, trim
// leading/trailing spaces and periods, and cap the result at 255 UTF-8
// bytes (truncating on a rune boundary).
func Filename(name string) string {
	if name == "" {
		return "untitled"
	}

	safe := filenameUnsafeChars.ReplaceAllString(name, "_")
	safe = collapseUnderscores.ReplaceAllString(safe, "_")
	safe = strings.Trim(safe, " .")

	safe = truncateUTF8(safe, 255)

	if safe == "" {
		return "untitled"
	}
	return safe
}

func truncateUTF8(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	b := []byte(s)[:maxBytes]
	for len(b) > 0 && !utf8.Valid(b) {
		b = b[:len(b)-1]
	}
	return string(b)
}

// QualityValue clamps a quality value to the [0, 100] range.
func QualityValue(quality int) int {
	if quality < 0 {
		return 0
	}
	if quality > 100 {
		return 100
	}
	return quality
}

// Format checks a format string against a closed set of allowed values,
// defaulting to the first allowed value when empty.
func Format(format string, allowedFormats []string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))

	if format == "" {
		return allowedFormats[0], nil
	}

	for _, allowed := range allowedFormats {
		if format == allowed {
			return format, nil
		}
	}

	return "", apperr.New("validate.Format", apperr.InvalidURL, fmt.Sprintf("unsupported format: %s", format))
}

// PositiveInt returns value if it is positive, otherwise defaultValue.
func PositiveInt(value, defaultValue int) int {
	if value <= 0 {
		return defaultValue
	}
	return value
}

// NonEmptyString returns the trimmed value, or defaultValue if it is empty.
func NonEmptyString(value, defaultValue string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return defaultValue
	}
	return value
}
