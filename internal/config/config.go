// Package config holds the clipd configuration model, its TOML/env loading,
// the live Handle shared by running components, and the file watcher that
// hot-reloads it.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bft-labs/clipd/internal/domain"
)

// DefaultBoard is the board used when none is named.
const DefaultBoard = "default"

// DefaultPorts are the candidate TCP ports, tried in order.
var DefaultPorts = []int{53890, 53891, 53892, 53893}

// Config holds clipd configuration.
type Config struct {
	PollingRate    time.Duration
	SyncInterval   time.Duration
	DataDir        string
	ListenPorts    []int
	DeviceName     string
	LogLevel       string
	PasteCommand   string
	WindowCommand  string
	SyncBatchBytes int

	// Boards is sorted by name after Validate.
	Boards []Board
}

// Board is a named logical clipboard.
type Board struct {
	Name             string
	DBPath           string
	MaxSize          int
	KeepDuplicates   *int
	RemoveDuplicates *int
	Include          *Filter
	Exclude          *Filter
}

// Filter is an include or exclude predicate.
type Filter struct {
	Applications []string
	Patterns     []string
	MimeTypes    []string

	compiled []*regexp.Regexp
}

// Regexps returns the compiled Patterns. Valid after Config.Validate.
func (f *Filter) Regexps() []*regexp.Regexp {
	return f.compiled
}

// Duplicates folds the two exclusive duplicate keys into one signed count:
// keep_duplicates N is +N, remove_duplicates N is -N, neither is 0.
func (b Board) Duplicates() int {
	switch {
	case b.KeepDuplicates != nil:
		return *b.KeepDuplicates
	case b.RemoveDuplicates != nil:
		return -*b.RemoveDuplicates
	default:
		return 0
	}
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	host, _ := os.Hostname()
	return Config{
		PollingRate:    500 * time.Millisecond,
		SyncInterval:   5 * time.Minute,
		DataDir:        DefaultDataDir(),
		ListenPorts:    append([]int(nil), DefaultPorts...),
		DeviceName:     host,
		LogLevel:       "info",
		SyncBatchBytes: 16 << 20, // 16MB
		Boards:         []Board{{Name: DefaultBoard, MaxSize: 1000}},
	}
}

// DefaultDataDir returns the per-user cache directory for clipd databases.
func DefaultDataDir() string {
	if d, err := os.UserCacheDir(); err == nil {
		return filepath.Join(d, "clipd")
	}
	return filepath.Join(os.TempDir(), "clipd")
}

// Board returns the board with the given name.
func (c *Config) Board(name string) (Board, bool) {
	for _, b := range c.Boards {
		if b.Name == name {
			return b, true
		}
	}
	return Board{}, false
}

// BoardNames returns the configured board names in order.
func (c *Config) BoardNames() []string {
	names := make([]string, len(c.Boards))
	for i, b := range c.Boards {
		names[i] = b.Name
	}
	return names
}

// RegistryPath is the peer registry database file.
func (c *Config) RegistryPath() string {
	return filepath.Join(c.DataDir, "peers.db")
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.PollingRate <= 0 {
		return fmt.Errorf("polling rate must be positive")
	}
	if c.SyncInterval <= 0 {
		return fmt.Errorf("sync interval must be positive")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data-dir is required")
	}
	c.DataDir = expandHome(c.DataDir)

	if len(c.ListenPorts) == 0 {
		c.ListenPorts = append([]int(nil), DefaultPorts...)
	}
	for _, p := range c.ListenPorts {
		if p <= 0 || p > 65535 {
			return fmt.Errorf("listen port %d out of range", p)
		}
	}
	if c.SyncBatchBytes <= 0 {
		return fmt.Errorf("sync batch bytes must be positive")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log level: %w", err)
	}

	if len(c.Boards) == 0 {
		return fmt.Errorf("%w: at least one board is required", domain.ErrInvalidConfig)
	}
	sort.Slice(c.Boards, func(i, j int) bool { return c.Boards[i].Name < c.Boards[j].Name })
	for i := range c.Boards {
		if i > 0 && c.Boards[i].Name == c.Boards[i-1].Name {
			return fmt.Errorf("%w: duplicate board %q", domain.ErrInvalidConfig, c.Boards[i].Name)
		}
		if err := c.Boards[i].validate(c.DataDir); err != nil {
			return fmt.Errorf("board %q: %w", c.Boards[i].Name, err)
		}
	}

	paths := make(map[string]string, len(c.Boards))
	for _, b := range c.Boards {
		if other, ok := paths[b.DBPath]; ok {
			return fmt.Errorf("%w: boards %q and %q share %s", domain.ErrInvalidConfig, other, b.Name, b.DBPath)
		}
		paths[b.DBPath] = b.Name
	}
	return nil
}

func (b *Board) validate(dataDir string) error {
	if b.Name == "" || strings.ContainsAny(b.Name, `/\`) {
		return fmt.Errorf("%w: invalid board name", domain.ErrInvalidConfig)
	}
	if b.KeepDuplicates != nil && b.RemoveDuplicates != nil {
		return domain.ErrConflictingPolicy
	}
	if (b.KeepDuplicates != nil && *b.KeepDuplicates < 0) || (b.RemoveDuplicates != nil && *b.RemoveDuplicates < 0) {
		return fmt.Errorf("%w: duplicate counts must not be negative", domain.ErrInvalidConfig)
	}
	if b.MaxSize < 0 {
		return fmt.Errorf("%w: max_size must not be negative", domain.ErrInvalidConfig)
	}
	if b.Include != nil && b.Exclude != nil {
		return domain.ErrConflictingFilter
	}
	for _, f := range []*Filter{b.Include, b.Exclude} {
		if f == nil {
			continue
		}
		if err := f.compile(); err != nil {
			return err
		}
	}

	if b.DBPath == "" {
		b.DBPath = filepath.Join(dataDir, dbFileName(b.Name))
	}
	b.DBPath = expandHome(b.DBPath)
	return nil
}

func (f *Filter) compile() error {
	f.compiled = f.compiled[:0]
	for _, p := range f.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return fmt.Errorf("%w: pattern %q: %v", domain.ErrInvalidConfig, p, err)
		}
		f.compiled = append(f.compiled, re)
	}
	for _, m := range f.MimeTypes {
		if !strings.Contains(m, "/") {
			return fmt.Errorf("%w: mime type %q", domain.ErrInvalidConfig, m)
		}
	}
	return nil
}

// dbFileName maps a board name to its store file. The default board keeps
// the historical "primary" name.
func dbFileName(board string) string {
	if board == DefaultBoard {
		return "primary.db"
	}
	return board + ".db"
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if h, err := os.UserHomeDir(); err == nil {
			return filepath.Join(h, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

// clone returns a copy that shares no mutable state with c.
func (c Config) clone() Config {
	out := c
	out.ListenPorts = append([]int(nil), c.ListenPorts...)
	out.Boards = make([]Board, len(c.Boards))
	for i, b := range c.Boards {
		out.Boards[i] = b.clone()
	}
	return out
}

func (b Board) clone() Board {
	out := b
	if b.KeepDuplicates != nil {
		v := *b.KeepDuplicates
		out.KeepDuplicates = &v
	}
	if b.RemoveDuplicates != nil {
		v := *b.RemoveDuplicates
		out.RemoveDuplicates = &v
	}
	if b.Include != nil {
		f := *b.Include
		f.compiled = nil
		out.Include = &f
	}
	if b.Exclude != nil {
		f := *b.Exclude
		f.compiled = nil
		out.Exclude = &f
	}
	return out
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setInts sets a slice value if not empty and flag not changed.
func (s *configSetter) setInts(flag string, value []int, dst *[]int) {
	if len(value) == 0 || s.changed[flag] {
		return
	}
	*dst = append([]int(nil), value...)
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}
