package ports

import "context"

// IdentityCache persists the resolved device identity so it stays stable
// across restarts even if the underlying source (e.g. a MAC address) changes.
type IdentityCache interface {
	// Load returns the cached identity, or "" and nil error if none is cached.
	Load(ctx context.Context) (string, error)

	// Save persists the identity atomically.
	Save(ctx context.Context, id string) error
}
