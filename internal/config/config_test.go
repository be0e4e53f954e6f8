package config

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/bft-labs/clipd/internal/domain"
)

func intPtr(v int) *int { return &v }

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.PollingRate != 500*time.Millisecond {
		t.Errorf("PollingRate = %v, want 500ms", cfg.PollingRate)
	}
	if cfg.SyncInterval != 5*time.Minute {
		t.Errorf("SyncInterval = %v, want 5m", cfg.SyncInterval)
	}
	if len(cfg.Boards) != 1 || cfg.Boards[0].Name != DefaultBoard {
		t.Fatalf("Boards = %+v, want single default board", cfg.Boards)
	}
	if cfg.Boards[0].MaxSize != 1000 {
		t.Errorf("default MaxSize = %d, want 1000", cfg.Boards[0].MaxSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	base := func(boards ...Board) Config {
		cfg := DefaultConfig()
		cfg.DataDir = "/data"
		cfg.Boards = boards
		return cfg
	}

	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{
			name: "valid keep duplicates",
			cfg:  base(Board{Name: "a", KeepDuplicates: intPtr(3)}),
		},
		{
			name:    "keep and remove duplicates",
			cfg:     base(Board{Name: "a", KeepDuplicates: intPtr(1), RemoveDuplicates: intPtr(1)}),
			wantErr: domain.ErrConflictingPolicy,
		},
		{
			name:    "include and exclude",
			cfg:     base(Board{Name: "a", Include: &Filter{Applications: []string{"x"}}, Exclude: &Filter{}}),
			wantErr: domain.ErrConflictingFilter,
		},
		{
			name:    "negative duplicates",
			cfg:     base(Board{Name: "a", RemoveDuplicates: intPtr(-1)}),
			wantErr: domain.ErrInvalidConfig,
		},
		{
			name:    "negative max size",
			cfg:     base(Board{Name: "a", MaxSize: -5}),
			wantErr: domain.ErrInvalidConfig,
		},
		{
			name:    "bad regex",
			cfg:     base(Board{Name: "a", Exclude: &Filter{Patterns: []string{"("}}}),
			wantErr: domain.ErrInvalidConfig,
		},
		{
			name:    "bad mime type",
			cfg:     base(Board{Name: "a", Include: &Filter{MimeTypes: []string{"png"}}}),
			wantErr: domain.ErrInvalidConfig,
		},
		{
			name:    "no boards",
			cfg:     base(),
			wantErr: domain.ErrInvalidConfig,
		},
		{
			name:    "duplicate board names",
			cfg:     base(Board{Name: "a"}, Board{Name: "a"}),
			wantErr: domain.ErrInvalidConfig,
		},
		{
			name:    "shared db path",
			cfg:     base(Board{Name: "a", DBPath: "/x.db"}, Board{Name: "b", DBPath: "/x.db"}),
			wantErr: domain.ErrInvalidConfig,
		},
		{
			name:    "path in board name",
			cfg:     base(Board{Name: "../x"}),
			wantErr: domain.ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_Scalars(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero polling rate", func(c *Config) { c.PollingRate = 0 }},
		{"negative sync interval", func(c *Config) { c.SyncInterval = -time.Second }},
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"port out of range", func(c *Config) { c.ListenPorts = []int{70000} }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"zero batch bytes", func(c *Config) { c.SyncBatchBytes = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() expected error")
			}
		})
	}
}

func TestConfig_Validate_Derivations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/data"
	cfg.Boards = []Board{
		{Name: "work", Include: &Filter{Patterns: []string{"^TICKET-"}}},
		{Name: DefaultBoard},
		{Name: "custom", DBPath: "/elsewhere/c.db"},
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	want := map[string]string{
		DefaultBoard: filepath.Join("/data", "primary.db"),
		"work":       filepath.Join("/data", "work.db"),
		"custom":     "/elsewhere/c.db",
	}
	for name, path := range want {
		b, ok := cfg.Board(name)
		if !ok {
			t.Fatalf("board %q missing", name)
		}
		if b.DBPath != path {
			t.Errorf("board %q DBPath = %s, want %s", name, b.DBPath, path)
		}
	}

	if got := cfg.BoardNames(); got[0] != "custom" || got[1] != DefaultBoard || got[2] != "work" {
		t.Errorf("BoardNames() = %v, want sorted", got)
	}

	work, _ := cfg.Board("work")
	if len(work.Include.Regexps()) != 1 || !work.Include.Regexps()[0].MatchString("TICKET-12") {
		t.Error("include pattern not compiled")
	}
	if cfg.RegistryPath() != filepath.Join("/data", "peers.db") {
		t.Errorf("RegistryPath() = %s", cfg.RegistryPath())
	}
}

func TestBoard_Duplicates(t *testing.T) {
	tests := []struct {
		name  string
		board Board
		want  int
	}{
		{"neither", Board{}, 0},
		{"keep", Board{KeepDuplicates: intPtr(10)}, 10},
		{"remove", Board{RemoveDuplicates: intPtr(10)}, -10},
		{"keep zero", Board{KeepDuplicates: intPtr(0)}, 0},
	}

	for _, tt := range tests {
		if got := tt.board.Duplicates(); got != tt.want {
			t.Errorf("%s: Duplicates() = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestConfig_CloneIsIndependent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Boards[0].KeepDuplicates = intPtr(2)

	cp := cfg.clone()
	*cp.Boards[0].KeepDuplicates = 9
	cp.Boards[0].Name = "other"
	cp.ListenPorts[0] = 1

	if *cfg.Boards[0].KeepDuplicates != 2 || cfg.Boards[0].Name != DefaultBoard {
		t.Error("clone shares board state")
	}
	if cfg.ListenPorts[0] != DefaultPorts[0] {
		t.Error("clone shares ports")
	}
}
