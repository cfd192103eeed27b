package app

import (
	"os"
	"path/filepath"
	"runtime"
)

// DevMode is set at build time via ldflags to isolate dev environment from production.
// When true, uses "VidReel-dev" directory instead of "VidReel".
// Example: -ldflags "-X 'vidreel/internal/app.DevMode=true'"
var DevMode string = "false"

func getAppDirName() string {
	if DevMode == "true" {
		return "VidReel-dev"
	}
	return "VidReel"
}

// Paths holds all application directory paths.
type Paths struct {
	AppData   string // %AppData%/VidReel (config, deps)
	Bin       string // %AppData%/VidReel/bin (yt-dlp, ffmpeg) - fallback
	Downloads string // ~/Videos/VidReel
	ExeDir    string // directory where the executable lives (for sidecar binaries)
}

// GetPaths returns the application paths based on OS.
func GetPaths() (*Paths, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, err
	}

	appData := filepath.Join(configDir, getAppDirName())
	bin := filepath.Join(appData, "bin")

	exePath, err := os.Executable()
	if err != nil {
		return nil, err
	}
	exeDir := filepath.Dir(exePath)

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	var downloads string
	switch runtime.GOOS {
	case "windows":
		downloads = filepath.Join(homeDir, "Videos", "VidReel")
	case "darwin":
		downloads = filepath.Join(homeDir, "Movies", "VidReel")
	default:
		downloads = filepath.Join(homeDir, "Videos", "VidReel")
	}

	return &Paths{
		AppData:   appData,
		Bin:       bin,
		Downloads: downloads,
		ExeDir:    exeDir,
	}, nil
}

// EnsureDirectories creates all required directories.
func (p *Paths) EnsureDirectories() error {
	for _, dir := range []string{p.AppData, p.Bin, p.Downloads} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// getSidecarPaths returns all possible sidecar locations for the current OS,
// in priority order (first match wins).
//
//   - Windows NSIS: ExeDir/bin/<name>.exe
//   - macOS App Bundle: .app/Contents/Resources/bin/<name> (exe is in Contents/MacOS)
//   - Linux AppImage: same directory as the executable
func (p *Paths) getSidecarPaths(binaryName string) []string {
	var paths []string

	switch runtime.GOOS {
	case "windows":
		paths = append(paths, filepath.Join(p.ExeDir, "bin", binaryName))
	case "darwin":
		resourcesDir := filepath.Join(p.ExeDir, "..", "Resources", "bin")
		paths = append(paths, filepath.Join(resourcesDir, binaryName))
		paths = append(paths, filepath.Join(p.ExeDir, binaryName))
	default:
		paths = append(paths, filepath.Join(p.ExeDir, binaryName))
		paths = append(paths, filepath.Join(p.ExeDir, "bin", binaryName))
	}

	return paths
}

// getBinaryPath returns the path to a binary, checking sidecar locations first.
func (p *Paths) getBinaryPath(binaryName string) string {
	for _, sidecarPath := range p.getSidecarPaths(binaryName) {
		if fileExists(sidecarPath) {
			return sidecarPath
		}
	}
	return filepath.Join(p.Bin, binaryName)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}

// YtDlpPath returns the full path to the yt-dlp executable.
func (p *Paths) YtDlpPath() string {
	if runtime.GOOS == "windows" {
		return p.getBinaryPath("yt-dlp.exe")
	}
	return p.getBinaryPath("yt-dlp")
}

// FFmpegPath returns the full path to the ffmpeg executable.
func (p *Paths) FFmpegPath() string {
	if runtime.GOOS == "windows" {
		return p.getBinaryPath("ffmpeg.exe")
	}
	return p.getBinaryPath("ffmpeg")
}

// Aria2cPath returns the full path to the optional aria2c executable.
func (p *Paths) Aria2cPath() string {
	if runtime.GOOS == "windows" {
		return p.getBinaryPath("aria2c.exe")
	}
	return p.getBinaryPath("aria2c")
}
