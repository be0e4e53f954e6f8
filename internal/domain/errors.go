package domain

import "errors"

// Domain errors represent error conditions in the clipd domain.
// These errors are returned by the public API and can be checked with errors.Is.
var (
	// ErrAlreadyRunning is returned when Start() is called on a running daemon.
	ErrAlreadyRunning = errors.New("clipd: already running")

	// ErrNotRunning is returned when Stop() is called on a stopped daemon.
	ErrNotRunning = errors.New("clipd: not running")

	// ErrShutdownTimeout is returned when graceful shutdown times out.
	ErrShutdownTimeout = errors.New("clipd: shutdown timeout")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("clipd: invalid configuration")

	// ErrConflictingPolicy is returned when a board sets both keep_duplicates
	// and remove_duplicates.
	ErrConflictingPolicy = errors.New("clipd: keep_duplicates and remove_duplicates are mutually exclusive")

	// ErrConflictingFilter is returned when a board sets both include and exclude.
	ErrConflictingFilter = errors.New("clipd: include and exclude are mutually exclusive")

	// ErrPayloadTooLarge is returned for payloads over MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("clipd: payload too large")

	// ErrPayloadEmpty is returned for payloads that are empty after trimming whitespace.
	ErrPayloadEmpty = errors.New("clipd: payload empty")

	// ErrNotFound is returned when an entry or node lookup misses.
	ErrNotFound = errors.New("clipd: not found")

	// ErrInvalidCode is returned when a pairing code cannot be decoded.
	ErrInvalidCode = errors.New("clipd: invalid pairing code")

	// ErrSameDevice is returned when a pairing code points back at this device.
	ErrSameDevice = errors.New("clipd: pairing code belongs to this device")

	// ErrNoReachablePeer is returned when no address/port of a peer accepts a connection.
	ErrNoReachablePeer = errors.New("clipd: no reachable peer address")

	// ErrNoIdentity is returned when every device identity provider fails.
	ErrNoIdentity = errors.New("clipd: device identity unavailable")

	// ErrFrameTooLarge is returned when a wire frame exceeds the size cap.
	ErrFrameTooLarge = errors.New("clipd: frame too large")
)
