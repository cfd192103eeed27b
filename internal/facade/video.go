// Package facade implements the Command Facade of spec.md §6: one typed
// wrapper per external command, each validating its input, delegating to
// the internal component that owns the concern, and translating the result
// into the closed error taxonomy at the boundary. Grounded on the teacher's
// internal/handlers/*.go split (one handler struct per concern, constructor
// injection of narrow interfaces, const op + apperr.Wrap on every path).
package facade

import (
	"context"

	"vidreel/internal/cache"
	apperr "vidreel/internal/errors"
	"vidreel/internal/platform"
	"vidreel/internal/ratelimit"
	"vidreel/internal/validate"
)

// PlatformInfo is the get_supported_platforms response shape (§6): name,
// settings schema. Dependency/pattern detail lives behind CheckDependencies
// and Detect respectively, so it is not duplicated here.
type PlatformInfo struct {
	Name     string             `json:"name"`
	Settings []platform.Setting `json:"settings"`
}

// VideoHandler answers metadata queries: detect_platform,
// get_supported_platforms, get_video_info, get_playlist_info,
// get_channel_info. Metadata lookups are cached per §4.2 and rate limited
// per §5.
type VideoHandler struct {
	registry      *platform.Registry
	videoCache    *cache.Store[*platform.VideoInfo]
	playlistCache *cache.Store[*platform.PlaylistRecord]
	channelCache  *cache.Store[*platform.ChannelRecord]
	limiter       *ratelimit.Limiter
}

// NewVideoHandler creates a VideoHandler with the given caches, sharing the
// global VideoInfoLimiter the rest of the facade uses.
func NewVideoHandler(registry *platform.Registry, videoCache *cache.Store[*platform.VideoInfo], playlistCache *cache.Store[*platform.PlaylistRecord], channelCache *cache.Store[*platform.ChannelRecord]) *VideoHandler {
	return &VideoHandler{
		registry:      registry,
		videoCache:    videoCache,
		playlistCache: playlistCache,
		channelCache:  channelCache,
		limiter:       ratelimit.VideoInfoLimiter,
	}
}

// DetectPlatform reports which registered provider would handle rawURL.
func (h *VideoHandler) DetectPlatform(rawURL string) (string, error) {
	const op = "VideoHandler.DetectPlatform"

	if _, err := validate.URL(rawURL); err != nil {
		return "", apperr.Wrap(op, apperr.InvalidURL, err)
	}

	p, err := h.registry.Detect(rawURL)
	if err != nil {
		return "", apperr.Wrap(op, apperr.InvalidURL, err)
	}
	return p.Name(), nil
}

// GetSupportedPlatforms lists every registered provider's name and settings
// schema, in registration order.
func (h *VideoHandler) GetSupportedPlatforms() []PlatformInfo {
	names := h.registry.List()
	out := make([]PlatformInfo, 0, len(names))
	for _, name := range names {
		p, ok := h.registry.Get(name)
		if !ok {
			continue
		}
		out = append(out, PlatformInfo{Name: name, Settings: p.Settings()})
	}
	return out
}

// GetVideoInfo fetches a single video's metadata, serving a cached record
// when available (§4.2's metadata cache).
func (h *VideoHandler) GetVideoInfo(ctx context.Context, rawURL string) (*platform.VideoInfo, error) {
	const op = "VideoHandler.GetVideoInfo"

	if _, err := validate.URL(rawURL); err != nil {
		return nil, apperr.Wrap(op, apperr.InvalidURL, err)
	}
	if !h.limiter.Allow() {
		return nil, apperr.New(op, apperr.NetworkError, "too many metadata requests, slow down")
	}

	if cached, ok := h.videoCache.Get(rawURL); ok {
		return cached, nil
	}

	p, err := h.registry.Detect(rawURL)
	if err != nil {
		return nil, apperr.Wrap(op, apperr.InvalidURL, err)
	}

	info, err := p.GetVideoInfo(ctx, rawURL)
	if err != nil {
		return nil, apperr.Wrap(op, apperr.VideoUnavailable, err)
	}

	h.videoCache.Put(rawURL, info)
	return info, nil
}

// GetPlaylistInfo fetches a playlist's record, serving a cached copy when
// available.
func (h *VideoHandler) GetPlaylistInfo(ctx context.Context, rawURL string) (*platform.PlaylistRecord, error) {
	const op = "VideoHandler.GetPlaylistInfo"

	if _, err := validate.URL(rawURL); err != nil {
		return nil, apperr.Wrap(op, apperr.InvalidURL, err)
	}
	if !h.limiter.Allow() {
		return nil, apperr.New(op, apperr.NetworkError, "too many metadata requests, slow down")
	}

	if cached, ok := h.playlistCache.Get(rawURL); ok {
		return cached, nil
	}

	p, err := h.registry.Detect(rawURL)
	if err != nil {
		return nil, apperr.Wrap(op, apperr.InvalidURL, err)
	}

	record, err := p.GetPlaylistInfo(ctx, rawURL)
	if err != nil {
		return nil, apperr.Wrap(op, apperr.VideoUnavailable, err)
	}

	h.playlistCache.Put(rawURL, record)
	return record, nil
}

// GetChannelInfo fetches a channel's playlists and their flattened videos
// (§3, §4.5), serving a cached copy when available.
func (h *VideoHandler) GetChannelInfo(ctx context.Context, rawURL string) (*platform.ChannelRecord, error) {
	const op = "VideoHandler.GetChannelInfo"

	if _, err := validate.URL(rawURL); err != nil {
		return nil, apperr.Wrap(op, apperr.InvalidURL, err)
	}
	if !h.limiter.Allow() {
		return nil, apperr.New(op, apperr.NetworkError, "too many metadata requests, slow down")
	}

	if cached, ok := h.channelCache.Get(rawURL); ok {
		return cached, nil
	}

	p, err := h.registry.Detect(rawURL)
	if err != nil {
		return nil, apperr.Wrap(op, apperr.InvalidURL, err)
	}

	record, err := p.GetChannelInfo(ctx, rawURL)
	if err != nil {
		return nil, apperr.Wrap(op, apperr.VideoUnavailable, err)
	}

	h.channelCache.Put(rawURL, record)
	return record, nil
}
