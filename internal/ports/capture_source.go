package ports

import "context"

// CaptureSource reads the system clipboard. Platform backends are selected
// once at startup and hidden behind this interface.
type CaptureSource interface {
	// Poll returns the current clipboard contents, or nil if the clipboard is empty.
	Poll(ctx context.Context) ([]byte, error)

	// ActiveWindowTitle returns the focused window's title or application
	// name. Returns "" when it cannot be determined.
	ActiveWindowTitle(ctx context.Context) (string, error)
}
