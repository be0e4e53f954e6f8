package log

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bft-labs/clipd/internal/ports"
)

func TestZerolog_Fields(t *testing.T) {
	var buf bytes.Buffer
	z := NewZerolog(zerolog.New(&buf)).With("component", "test")

	z.Info("stored",
		ports.String("board", "default"),
		ports.Int("count", 3),
		ports.Strings("boards", []string{"a", "b"}),
		ports.Duration("took", time.Second),
		ports.Err(errors.New("boom")),
	)

	out := buf.String()
	for _, want := range []string{
		`"component":"test"`,
		`"board":"default"`,
		`"count":3`,
		`"boards":["a","b"]`,
		`"error":"boom"`,
		`"message":"stored"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output %s missing %s", out, want)
		}
	}
}
