package validate_test

import (
	"strings"
	"testing"

	"vidreel/internal/validate"
)

func TestURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"valid https URL", "https://youtube.com/watch?v=123", false},
		{"valid http URL", "http://example.com", false},
		{"empty URL", "", true},
		{"no scheme", "youtube.com/watch", true},
		{"ftp scheme rejected", "ftp://example.com", true},
		{"whitespace only", "   ", true},
		{"URL with spaces trimmed", "  https://example.com  ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := validate.URL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("URL(%q) error = %v, wantErr = %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"normal filename", "video.mp4", "video.mp4"},
		{"empty becomes untitled", "", "untitled"},
		{"replaces special chars with one underscore", "video<>:\"/\\|?*.mp4", "video_.mp4"},
		{"trims spaces and dots", "  video.mp4.. ", "video.mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := validate.Filename(tt.input)
			if result != tt.expected {
				t.Errorf("Filename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFilename_TruncatesAtByteLimit(t *testing.T) {
	long := strings.Repeat("a", 300)
	result := validate.Filename(long)
	if len(result) > 255 {
		t.Errorf("Filename length = %d, want <= 255", len(result))
	}
}

func TestDirectoryPath(t *testing.T) {
	const saveRoot = "/home/user/Downloads"

	tests := []struct {
		name     string
		path     string
		wantErr  bool
		expected string
	}{
		{"empty path rejected", "", true, ""},
		{"null byte rejected", "foo\x00bar", true, ""},
		{"traversal component rejected", "../../etc", true, ""},
		{"absolute path passes through clean", "/home/user/Downloads/Clips", false, "/home/user/Downloads/Clips"},
		{"relative path resolves against saveRoot", "Clips", false, "/home/user/Downloads/Clips"},
		{"relative dotted path resolves within saveRoot", "./Clips", false, "/home/user/Downloads/Clips"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := validate.DirectoryPath(tt.path, saveRoot)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DirectoryPath(%q) error = %v, wantErr = %v", tt.path, err, tt.wantErr)
			}
			if !tt.wantErr && result != tt.expected {
				t.Errorf("DirectoryPath(%q) = %q, want %q", tt.path, result, tt.expected)
			}
		})
	}
}

func TestQualityValue(t *testing.T) {
	tests := []struct {
		name     string
		input    int
		expected int
	}{
		{"negative becomes 0", -10, 0},
		{"zero stays 0", 0, 0},
		{"normal value", 75, 75},
		{"100 stays 100", 100, 100},
		{"above 100 capped", 150, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := validate.QualityValue(tt.input)
			if result != tt.expected {
				t.Errorf("QualityValue(%d) = %d, want %d", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPositiveInt(t *testing.T) {
	tests := []struct {
		name         string
		value        int
		defaultValue int
		expected     int
	}{
		{"negative uses default", -5, 10, 10},
		{"zero uses default", 0, 10, 10},
		{"positive uses value", 5, 10, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := validate.PositiveInt(tt.value, tt.defaultValue)
			if result != tt.expected {
				t.Errorf("PositiveInt(%d, %d) = %d, want %d", tt.value, tt.defaultValue, result, tt.expected)
			}
		})
	}
}
