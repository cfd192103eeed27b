package facade

import (
	"github.com/google/uuid"

	apperr "vidreel/internal/errors"
	"vidreel/internal/platform"
	"vidreel/internal/queue"
	"vidreel/internal/ratelimit"
	"vidreel/internal/storage"
	"vidreel/internal/validate"
)

// QueueItemRequest is one item in an add_to_download_queue call (§6). If
// Platform is empty it is resolved via the registry's Detect. Quality and
// Format fall back to the caller's saved settings when left empty (§3's
// Download options).
type QueueItemRequest struct {
	URL       string
	Title     string
	Thumbnail string
	Platform  string
	VideoID   string
	Quality   string
	Format    string
	AudioOnly bool
}

// QueueHandler implements add_to_download_queue, pause_download,
// resume_download, cancel_download, and reorder_queue, delegating all
// scheduling logic to internal/queue.Manager.
type QueueHandler struct {
	manager    *queue.Manager
	registry   *platform.Registry
	storageSvc *storage.Service
	limiter    *ratelimit.Limiter
}

// NewQueueHandler creates a QueueHandler over manager, using registry to
// resolve a platform name when a request omits one, and storageSvc to read
// default quality/format when a request omits them.
func NewQueueHandler(manager *queue.Manager, registry *platform.Registry, storageSvc *storage.Service) *QueueHandler {
	return &QueueHandler{manager: manager, registry: registry, storageSvc: storageSvc, limiter: ratelimit.DownloadLimiter}
}

// AddToQueue validates and enqueues one or more items, assigning each a
// fresh id. Enqueue's own DuplicateId error is returned unwrapped since it
// already carries the correct Kind.
func (h *QueueHandler) AddToQueue(requests []QueueItemRequest) ([]storage.Item, error) {
	const op = "QueueHandler.AddToQueue"

	if !h.limiter.Allow() {
		return nil, apperr.New(op, apperr.NetworkError, "too many queue requests, slow down")
	}

	settings, err := h.storageSvc.LoadSettings()
	if err != nil {
		return nil, apperr.Wrap(op, apperr.PersistenceError, err)
	}

	items := make([]storage.Item, 0, len(requests))
	for _, req := range requests {
		if _, err := validate.URL(req.URL); err != nil {
			return nil, apperr.Wrap(op, apperr.InvalidURL, err)
		}

		platformName := req.Platform
		if platformName == "" {
			p, err := h.registry.Detect(req.URL)
			if err != nil {
				return nil, apperr.Wrap(op, apperr.InvalidURL, err)
			}
			platformName = p.Name()
		}

		items = append(items, storage.Item{
			ID:        uuid.NewString(),
			VideoID:   req.VideoID,
			Title:     validate.NonEmptyString(req.Title, "untitled"),
			Thumbnail: req.Thumbnail,
			URL:       req.URL,
			Platform:  platformName,
			Quality:   validate.NonEmptyString(req.Quality, settings.DefaultQuality),
			Format:    validate.NonEmptyString(req.Format, settings.DefaultFormat),
			AudioOnly: req.AudioOnly,
		})
	}

	if err := h.manager.Enqueue(items); err != nil {
		return nil, err
	}
	return items, nil
}

// Pause pauses a queued or downloading item.
func (h *QueueHandler) Pause(id string) error {
	const op = "QueueHandler.Pause"
	if id == "" {
		return apperr.New(op, apperr.UnknownID, "id is required")
	}
	return h.manager.Pause(id)
}

// Resume requeues a paused item.
func (h *QueueHandler) Resume(id string) error {
	const op = "QueueHandler.Resume"
	if id == "" {
		return apperr.New(op, apperr.UnknownID, "id is required")
	}
	return h.manager.Resume(id)
}

// Cancel cancels an item, interrupting its subprocess if one is running.
func (h *QueueHandler) Cancel(id string) error {
	const op = "QueueHandler.Cancel"
	if id == "" {
		return apperr.New(op, apperr.UnknownID, "id is required")
	}
	return h.manager.Cancel(id)
}

// Reorder moves the item at fromIndex to toIndex.
func (h *QueueHandler) Reorder(fromIndex, toIndex int) error {
	return h.manager.Reorder(fromIndex, toIndex)
}

// Snapshot returns the current queue state, used to populate the UI on
// load and after reconnecting to the event bus.
func (h *QueueHandler) Snapshot() []storage.Item {
	return h.manager.Snapshot()
}
