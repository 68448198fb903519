package errs

import (
	"errors"
	"fmt"
)

// Taxonomy roots. Handlers map these to HTTP status codes; concrete
// sentinels below wrap exactly one root.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrAccessDenied    = errors.New("access denied")
	ErrInvalidInput    = errors.New("invalid input")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrMisconfigured   = errors.New("misconfigured")
)

// Доменные сентинель-ошибки для маппинга в HTTP коды в handlers.
var (
	ErrNotAMember = fmt.Errorf("not a member of room: %w", ErrAccessDenied)
	ErrForbidden  = fmt.Errorf("resource belongs to another user: %w", ErrAccessDenied)

	ErrEmptyContent   = fmt.Errorf("message content is empty: %w", ErrInvalidInput)
	ErrContentTooLong = fmt.Errorf("message content is too long: %w", ErrInvalidInput)
	ErrInvalidScope   = fmt.Errorf("invalid room scope: %w", ErrInvalidInput)
	ErrInvalidSource  = fmt.Errorf("invalid live source: %w", ErrInvalidInput)

	ErrRoomNotFound    = fmt.Errorf("room %w", ErrNotFound)
	ErrSessionNotFound = fmt.Errorf("session %w", ErrNotFound)
	ErrLogNotFound     = fmt.Errorf("airtime log entry %w", ErrNotFound)

	ErrAlreadyLive    = fmt.Errorf("session already live: %w", ErrConflict)
	ErrAlreadyStopped = fmt.Errorf("session already stopped: %w", ErrConflict)
	ErrAlreadyClosed  = fmt.Errorf("airtime log entry already closed: %w", ErrConflict)
	ErrLogInUse       = fmt.Errorf("airtime log entry belongs to a live session: %w", ErrConflict)

	ErrMisconfiguredTransport = fmt.Errorf("realtime transport credentials are not configured: %w", ErrMisconfigured)
	ErrEgressNotConfigured    = fmt.Errorf("egress playback endpoint is not configured: %w", ErrMisconfigured)
)
