package domain

import (
	"bytes"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaxPayloadSize is the largest payload, in bytes, a board accepts.
const MaxPayloadSize = 5_000_000

const asciiSpace = " \t\n\f\r"

// ClipID is a UUIDv7. Byte order equals creation order.
type ClipID [16]byte

// String returns the canonical UUID form.
func (id ClipID) String() string {
	return uuid.UUID(id).String()
}

// Compare orders ids by their bytes.
func (id ClipID) Compare(other ClipID) int {
	return bytes.Compare(id[:], other[:])
}

// ClipEntry is one captured clipboard payload.
type ClipEntry struct {
	ID          ClipID
	Epoch       int64 // unix milliseconds
	Payload     []byte
	Application string
}

// Time returns the capture time.
func (e ClipEntry) Time() time.Time {
	return time.UnixMilli(e.Epoch)
}

// NewClip validates payload and assigns a fresh time-ordered id.
func NewClip(payload []byte, application string) (ClipEntry, error) {
	if err := ValidatePayload(payload); err != nil {
		return ClipEntry{}, err
	}
	u, err := uuid.NewV7()
	if err != nil {
		return ClipEntry{}, fmt.Errorf("new clip id: %w", err)
	}
	return ClipEntry{
		ID:          ClipID(u),
		Epoch:       epochOf(u),
		Payload:     payload,
		Application: application,
	}, nil
}

// ValidatePayload rejects oversized payloads and payloads that are only ASCII whitespace.
func ValidatePayload(payload []byte) error {
	if len(payload) > MaxPayloadSize {
		return ErrPayloadTooLarge
	}
	if len(bytes.Trim(payload, asciiSpace)) == 0 {
		return ErrPayloadEmpty
	}
	return nil
}

// epochOf extracts the 48-bit millisecond timestamp of a v7 uuid.
func epochOf(u uuid.UUID) int64 {
	var ms int64
	for _, b := range u[:6] {
		ms = ms<<8 | int64(b)
	}
	return ms
}
