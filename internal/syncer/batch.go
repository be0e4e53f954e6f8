package syncer

import (
	"cmp"
	"slices"

	"github.com/bft-labs/clipd/internal/domain"
	"github.com/bft-labs/clipd/internal/protocol"
)

// sortEntries orders entries by epoch then id and drops repeated ids.
func sortEntries(entries []domain.ClipEntry) []domain.ClipEntry {
	slices.SortFunc(entries, func(a, b domain.ClipEntry) int {
		if c := cmp.Compare(a.Epoch, b.Epoch); c != 0 {
			return c
		}
		return a.ID.Compare(b.ID)
	})
	return slices.CompactFunc(entries, func(a, b domain.ClipEntry) bool {
		return a.ID == b.ID
	})
}

// capBatch returns the longest prefix of sorted entries whose wire size
// fits maxBytes. A batch never ends partway through a run of entries
// sharing one epoch, since the receiver resumes strictly after the last
// epoch it was sent. An oversized first run is sent alone.
func capBatch(entries []domain.ClipEntry, maxBytes int) []domain.ClipEntry {
	if maxBytes <= 0 {
		return entries
	}

	total := 0
	for i, e := range entries {
		size := protocol.ClipWireSize(e)
		if total+size <= maxBytes {
			total += size
			continue
		}

		cut := i
		for cut > 0 && entries[cut-1].Epoch == e.Epoch {
			cut--
		}
		if cut > 0 {
			return entries[:cut]
		}
		// The first epoch run alone exceeds the cap.
		end := i + 1
		for end < len(entries) && entries[end].Epoch == e.Epoch {
			end++
		}
		return entries[:end]
	}
	return entries
}
