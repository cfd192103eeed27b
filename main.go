package main

import (
	"embed"
	"fmt"
	"os"
	"strings"

	"vidreel/internal/constants"

	"github.com/wailsapp/wails/v3/pkg/application"
)

//go:embed all:frontend/dist
var assets embed.FS

//go:embed build/appicon.png
var appIcon []byte

//go:embed VERSION
var versionFile string

// devToolsFlag is set at build time via ldflags to enable the webview
// inspector in development builds. Example: -ldflags "-X main.devToolsFlag=true"
var devToolsFlag string

func main() {
	// Set version from embedded VERSION file if not overridden by ldflags
	if Version == "" {
		Version = strings.TrimSpace(versionFile)
	}
	devTools := devToolsFlag == "true"

	// Create an instance of the app structure
	appInstance := NewApp()

	// Create application with options
	app := application.New(application.Options{
		Name: constants.AppName,
		Icon: appIcon,
		Services: []application.Service{
			application.NewService(appInstance),
		},
		Assets: application.AssetOptions{
			Handler: application.AssetFileServerFS(assets),
		},
	})

	app.Window.NewWithOptions(application.WebviewWindowOptions{
		Title:                  constants.AppName,
		Width:                  1280,
		Height:                 800,
		BackgroundColour:       application.NewRGB(255, 255, 255),
		DevToolsEnabled:        devTools,
		OpenInspectorOnStartup: devTools,
	})

	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
