package facade

import (
	"github.com/wailsapp/wails/v3/pkg/application"

	apperr "vidreel/internal/errors"
	"vidreel/internal/storage"
	"vidreel/internal/validate"
)

// SettingsHandler implements get_settings, save_settings, and
// select_directory.
type SettingsHandler struct {
	storageSvc *storage.Service
}

// NewSettingsHandler creates a SettingsHandler over storageSvc.
func NewSettingsHandler(storageSvc *storage.Service) *SettingsHandler {
	return &SettingsHandler{storageSvc: storageSvc}
}

// GetSettings returns the current application settings, defaults if none
// were ever saved.
func (h *SettingsHandler) GetSettings() (storage.Settings, error) {
	return h.storageSvc.LoadSettings()
}

// SaveSettings validates and persists new settings.
func (h *SettingsHandler) SaveSettings(settings storage.Settings) error {
	const op = "SettingsHandler.SaveSettings"

	settings.MaxConcurrent = validate.PositiveInt(settings.MaxConcurrent, 3)
	if settings.MaxConcurrent > 5 {
		settings.MaxConcurrent = 5
	}
	settings.MaxRetryAttempts = validate.PositiveInt(settings.MaxRetryAttempts, 3)

	cleanDir, err := validate.DirectoryPath(settings.DefaultSaveDirectory, h.storageSvc.SaveRoot())
	if err != nil {
		return apperr.Wrap(op, apperr.InvalidURL, err)
	}
	settings.DefaultSaveDirectory = cleanDir

	return h.storageSvc.SaveSettings(settings)
}

// SelectDirectory opens a native folder picker and returns the chosen path,
// or "" if the user cancelled.
func (h *SettingsHandler) SelectDirectory() (string, error) {
	const op = "SettingsHandler.SelectDirectory"

	app := application.Get()
	if app == nil {
		return "", apperr.New(op, apperr.PersistenceError, "no UI host attached")
	}

	selection, err := app.Dialog.OpenFile().
		SetTitle("Select download folder").
		CanChooseDirectories(true).
		CanChooseFiles(false).
		PromptForSingleSelection()
	if err != nil {
		return "", apperr.Wrap(op, apperr.PersistenceError, err)
	}
	return selection, nil
}
