// Package errors provides the closed error taxonomy used at every Command
// Facade boundary. Errors are values that carry a stable Kind, a retryable
// flag, and a suggested action, following the teacher's AppError idiom but
// generalized from a free-form Code string to a closed set.
package errors

import (
	"errors"
	"fmt"
)

// Kind enumerates the stable error categories a caller can branch on.
type Kind string

const (
	NetworkError          Kind = "network_error"
	VideoUnavailable      Kind = "video_unavailable"
	InsufficientSpace     Kind = "insufficient_space"
	InvalidURL            Kind = "invalid_url"
	MissingDependency     Kind = "missing_dependency"
	CorruptedInstallation Kind = "corrupted_installation"
	DownloadFailed        Kind = "download_failed"
	PermissionDenied      Kind = "permission_denied"
	OperationCancelled    Kind = "operation_cancelled"
	Timeout               Kind = "timeout"
	UnknownID             Kind = "unknown_id"
	IllegalTransition     Kind = "illegal_transition"
	DuplicateID           Kind = "duplicate_id"
	OutOfRange            Kind = "out_of_range"
	PersistenceError      Kind = "persistence_error"
)

// retryable records which kinds are safe to retry automatically (§4.7.5,
// §7). Everything else requires user intervention (fix the URL, free disk
// space, reinstall a dependency) before a retry could possibly succeed.
var retryable = map[Kind]bool{
	NetworkError:   true,
	Timeout:        true,
	DownloadFailed: true,
}

var suggestedAction = map[Kind]string{
	NetworkError:          "Check your internet connection and try again.",
	VideoUnavailable:      "The video may be private, deleted, or region-locked.",
	InsufficientSpace:     "Free up disk space and try again.",
	InvalidURL:            "Check the URL and try again.",
	MissingDependency:     "Reinstall the application to restore missing components.",
	CorruptedInstallation: "Reinstall the application; a bundled file failed verification.",
	DownloadFailed:        "Try the download again.",
	PermissionDenied:      "Check file and folder permissions.",
	OperationCancelled:    "",
	Timeout:               "Try again; the operation took too long.",
	UnknownID:             "The item no longer exists.",
	IllegalTransition:     "The item is not in a state that allows this action.",
	DuplicateID:           "This item is already in the queue.",
	OutOfRange:            "The requested position is out of range.",
	PersistenceError:      "Restart the application; saved state could not be written.",
}

// AppError is the structured error type returned across every component
// boundary. It carries the operation that failed, the Kind for programmatic
// branching, and a human-friendly message.
type AppError struct {
	Op      string // operation that failed, e.g. "Queue.AddItem"
	Kind    Kind
	Err     error
	Message string
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the underlying operation is safe to retry
// without caller intervention.
func (e *AppError) Retryable() bool {
	return retryable[e.Kind]
}

// Envelope is the {type, message, suggested_action} shape delivered to the
// Command Facade's callers (§7).
type Envelope struct {
	Type             Kind   `json:"type"`
	Message          string `json:"message"`
	SuggestedAction  string `json:"suggested_action"`
	Retryable        bool   `json:"retryable"`
}

// ToEnvelope converts any error into the facade's error envelope. Errors
// that are not an *AppError are reported as an unattributed DownloadFailed,
// matching the teacher's fallback behavior for unexpected errors.
func ToEnvelope(err error) Envelope {
	var ae *AppError
	if errors.As(err, &ae) {
		msg := ae.Message
		if msg == "" && ae.Err != nil {
			msg = ae.Err.Error()
		}
		return Envelope{
			Type:            ae.Kind,
			Message:         msg,
			SuggestedAction: suggestedAction[ae.Kind],
			Retryable:       ae.Retryable(),
		}
	}
	return Envelope{
		Type:            DownloadFailed,
		Message:         err.Error(),
		SuggestedAction: suggestedAction[DownloadFailed],
		Retryable:       retryable[DownloadFailed],
	}
}

// New creates an AppError of the given Kind.
func New(op string, kind Kind, message string) *AppError {
	return &AppError{Op: op, Kind: kind, Message: message}
}

// Wrap attaches operation context and a Kind to an existing error. Returns
// nil if err is nil, so it is safe to use as `return errors.Wrap(op, Kind, err)`
// at the end of any function.
func Wrap(op string, kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &AppError{Op: op, Kind: kind, Err: err}
}

// Is reports whether err (or any error it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}
