// Package domain contains the core domain entities and value objects for clipd.
//
// This package represents the innermost layer of the Clean Architecture. It has
// no dependencies on infrastructure concerns (storage, network, logging) and
// contains only the rules every other layer agrees on.
//
// # Entities
//
//   - [ClipEntry]: one captured clipboard payload with its id and origin application
//   - [Node]: a known peer device
//   - [IPOrigin]: which address of a peer a connection was made on
//
// # Design Principles
//
// Domain entities are:
//   - Immutable after construction (where practical)
//   - Free of infrastructure dependencies
//   - Testable without mocks or external systems
package domain
