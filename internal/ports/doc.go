// Package ports defines the interfaces that connect the clipd core to
// infrastructure adapters.
//
// # Port Interfaces
//
//   - [CaptureSource]: reads the system clipboard and the focused window
//   - [IdentityCache]: persists the resolved device identity
//   - [Logger]: structured logging abstraction
//   - [HTTPClient]: HTTP request abstraction for dependency injection
//
// The core packages depend only on these interfaces; internal/adapters and
// internal/capture provide the concrete implementations.
package ports
