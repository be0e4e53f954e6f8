// Package format renders clipboard entries for terminal output.
package format

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/text/width"

	"github.com/bft-labs/clipd/internal/domain"
)

const (
	dateLayout = "2006-01-02 15:04"
	indexWidth = 4
	appWidth   = 14
	gap        = "  "
	ellipsis   = "…"

	minPreview = 10
)

// rowPrefix is the number of cells before the preview column.
var rowPrefix = indexWidth + len(gap) + len(dateLayout) + len(gap) + appWidth + len(gap)

// Preview summarises an entry in at most cells terminal cells. Text is
// shown on one line with runs of whitespace collapsed. Anything else is
// shown as its detected media type and size.
func Preview(e domain.ClipEntry, cells int) string {
	if isText(e.Payload) {
		return truncate(strings.Join(strings.Fields(string(e.Payload)), " "), cells)
	}
	mt := mimetype.Detect(e.Payload)
	return truncate(fmt.Sprintf("[%s %s]", mt.String(), Size(len(e.Payload))), cells)
}

// Row renders one list line: index, capture time in loc, application and
// a preview filling the rest of lineWidth.
func Row(index int, e domain.ClipEntry, lineWidth int, loc *time.Location) string {
	app := e.Application
	if app == "" {
		app = "-"
	}
	return fmt.Sprintf("%*d%s%s%s%s%s",
		indexWidth, index, gap,
		e.Time().In(loc).Format(dateLayout), gap,
		pad(truncate(app, appWidth), appWidth), gap,
	) + Preview(e, max(lineWidth-rowPrefix, minPreview))
}

// List writes one Row per entry, numbered from 1.
func List(w io.Writer, entries []domain.ClipEntry, lineWidth int, loc *time.Location) error {
	for i, e := range entries {
		if _, err := fmt.Fprintln(w, Row(i+1, e, lineWidth, loc)); err != nil {
			return err
		}
	}
	return nil
}

// Size formats a byte count with binary units.
func Size(n int) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	v, exp := float64(n)/unit, 0
	for v >= unit && exp < 2 {
		v /= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", v, "KMG"[exp])
}

func isText(b []byte) bool {
	if !utf8.Valid(b) {
		return false
	}
	for _, r := range string(b) {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// cellWidth is the number of terminal cells r occupies.
func cellWidth(r rune) int {
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return 2
	default:
		return 1
	}
}

func stringWidth(s string) int {
	n := 0
	for _, r := range s {
		n += cellWidth(r)
	}
	return n
}

// truncate shortens s to at most cells, marking a cut with an ellipsis.
func truncate(s string, cells int) string {
	if stringWidth(s) <= cells {
		return s
	}
	var b strings.Builder
	used := 0
	for _, r := range s {
		w := cellWidth(r)
		if used+w > cells-1 {
			break
		}
		b.WriteRune(r)
		used += w
	}
	return b.String() + ellipsis
}

func pad(s string, cells int) string {
	if n := stringWidth(s); n < cells {
		return s + strings.Repeat(" ", cells-n)
	}
	return s
}
