package facade

import (
	"context"

	"golang.org/x/sync/errgroup"

	apperr "vidreel/internal/errors"
	"vidreel/internal/locator"
	"vidreel/internal/platform"
	"vidreel/internal/validate"
)

// DependencyStatus reports whether one provider's external tools are
// present and runnable (check_dependencies, §6).
type DependencyStatus struct {
	Platform string `json:"platform"`
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
}

// SystemHandler implements check_dependencies, verify_bundled_executables,
// and test_download.
type SystemHandler struct {
	registry *platform.Registry
	locator  *locator.Locator
	paths    locator.Paths
}

// NewSystemHandler creates a SystemHandler.
func NewSystemHandler(registry *platform.Registry, loc *locator.Locator, paths locator.Paths) *SystemHandler {
	return &SystemHandler{registry: registry, locator: loc, paths: paths}
}

// CheckDependencies verifies one provider's dependencies, or every
// registered provider's when platformName is empty. Each provider is
// checked concurrently since VerifyDependencies shells out to the
// underlying binary and checks are independent.
func (h *SystemHandler) CheckDependencies(ctx context.Context, platformName string) []DependencyStatus {
	names := []string{platformName}
	if platformName == "" {
		names = h.registry.List()
	}

	statuses := make([]DependencyStatus, len(names))
	var g errgroup.Group
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			statuses[i] = h.checkOne(ctx, name)
			return nil
		})
	}
	g.Wait()
	return statuses
}

func (h *SystemHandler) checkOne(ctx context.Context, name string) DependencyStatus {
	p, ok := h.registry.Get(name)
	if !ok {
		return DependencyStatus{Platform: name, OK: false, Error: "unknown platform"}
	}
	if err := p.VerifyDependencies(ctx); err != nil {
		return DependencyStatus{Platform: name, OK: false, Error: err.Error()}
	}
	return DependencyStatus{Platform: name, OK: true}
}

// VerifyBundledExecutables resolves and checksum-verifies yt-dlp/ffmpeg,
// reporting whether the installation is intact.
func (h *SystemHandler) VerifyBundledExecutables() bool {
	_, err := h.locator.Resolve(h.paths)
	return err == nil
}

// TestDownload fetches metadata for url without enqueueing a download,
// returning the video's title on success. Used by the setup wizard to
// confirm a provider actually works end to end.
func (h *SystemHandler) TestDownload(ctx context.Context, rawURL string) (string, error) {
	const op = "SystemHandler.TestDownload"

	if _, err := validate.URL(rawURL); err != nil {
		return "", apperr.Wrap(op, apperr.InvalidURL, err)
	}

	p, err := h.registry.Detect(rawURL)
	if err != nil {
		return "", apperr.Wrap(op, apperr.InvalidURL, err)
	}

	info, err := p.GetVideoInfo(ctx, rawURL)
	if err != nil {
		return "", apperr.Wrap(op, apperr.VideoUnavailable, err)
	}
	return info.Title, nil
}
