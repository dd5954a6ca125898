// Package apperrors defines the error taxonomy shared by the queue, backfill and
// credential subsystems.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation decisions.
type Kind string

const (
	KindInternal          Kind = "INTERNAL"
	KindTransientNetwork  Kind = "TRANSIENT_NETWORK"
	KindContentExpired    Kind = "CONTENT_EXPIRED"
	KindContentNotFound   Kind = "CONTENT_NOT_FOUND"
	KindRateLimited       Kind = "RATE_LIMITED"
	KindCredentialExpired Kind = "CREDENTIAL_EXPIRED"
	KindInvalidState      Kind = "INVALID_STATE_TOKEN"
	KindConfiguration     Kind = "CONFIGURATION"
	KindNotFound          Kind = "NOT_FOUND"
	KindInvalidTransition Kind = "INVALID_TRANSITION"
	KindUnsupportedMedia  Kind = "UNSUPPORTED_MEDIA"
	KindDuplicate         Kind = "DUPLICATE"
)

var (
	ErrTransientNetwork  = errors.New("transient network error")
	ErrContentExpired    = errors.New("content url expired")
	ErrContentNotFound   = errors.New("content not found")
	ErrRateLimited       = errors.New("rate limited")
	ErrCredentialExpired = errors.New("credential expired or missing, re-authentication required")
	// ErrInvalidStateToken is reported for every state token failure, whatever the cause.
	ErrInvalidStateToken = errors.New("invalid or expired state token")
	ErrConfiguration     = errors.New("configuration error")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnsupportedMedia  = errors.New("unsupported media type")
	ErrDuplicate         = errors.New("already exists")
)

var kinds = map[error]Kind{
	ErrTransientNetwork:  KindTransientNetwork,
	ErrContentExpired:    KindContentExpired,
	ErrContentNotFound:   KindContentNotFound,
	ErrRateLimited:       KindRateLimited,
	ErrCredentialExpired: KindCredentialExpired,
	ErrInvalidStateToken: KindInvalidState,
	ErrConfiguration:     KindConfiguration,
	ErrNotFound:          KindNotFound,
	ErrInvalidTransition: KindInvalidTransition,
	ErrUnsupportedMedia:  KindUnsupportedMedia,
	ErrDuplicate:         KindDuplicate,
}

// AppError attaches the failing operation to one of the sentinel errors.
type AppError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *AppError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("[%s] %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Op, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New wraps err under sentinel so that errors.Is(result, sentinel) holds.
func New(sentinel error, op string, err error) *AppError {
	wrapped := sentinel
	if err != nil {
		wrapped = fmt.Errorf("%w: %w", sentinel, err)
	}
	return &AppError{Kind: KindOf(sentinel), Op: op, Err: wrapped}
}

// KindOf returns the kind of the first sentinel found in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	for sentinel, kind := range kinds {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindInternal
}

// IsRetryable reports whether the queue may retry the operation.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientNetwork)
}

// IsEscalated reports errors that must reach the user and are never retried.
func IsEscalated(err error) bool {
	return errors.Is(err, ErrCredentialExpired) || errors.Is(err, ErrConfiguration)
}
