package router

import (
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"

	"github.com/bft-labs/clipd/internal/config"
	"github.com/bft-labs/clipd/internal/domain"
)

// CanStore reports whether board accepts entry. An exclude filter rejects
// any match, an include filter accepts only a match, and a board with
// neither accepts everything.
func CanStore(entry domain.ClipEntry, board config.Board) bool {
	switch {
	case board.Exclude != nil:
		return !matches(entry, board.Exclude)
	case board.Include != nil:
		return matches(entry, board.Include)
	default:
		return true
	}
}

func matches(entry domain.ClipEntry, f *config.Filter) bool {
	return matchApplication(entry.Application, f.Applications) ||
		matchContent(entry.Payload, f) ||
		matchMime(entry.Payload, f.MimeTypes)
}

func matchApplication(app string, patterns []string) bool {
	if app == "" {
		return false
	}
	app = strings.ToLower(app)
	for _, p := range patterns {
		if p != "" && strings.Contains(app, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func matchContent(payload []byte, f *config.Filter) bool {
	res := f.Regexps()
	if len(res) == 0 || !utf8.Valid(payload) {
		return false
	}
	for _, re := range res {
		if re.Match(payload) {
			return true
		}
	}
	return false
}

// matchMime accepts exact types ("image/png") and wildcards ("image/*").
func matchMime(payload []byte, types []string) bool {
	if len(types) == 0 {
		return false
	}
	mt := mimetype.Detect(payload)
	base, _, _ := strings.Cut(mt.String(), ";")
	for _, t := range types {
		if prefix, ok := strings.CutSuffix(t, "/*"); ok {
			if strings.HasPrefix(base, prefix+"/") {
				return true
			}
			continue
		}
		if mt.Is(t) {
			return true
		}
	}
	return false
}
