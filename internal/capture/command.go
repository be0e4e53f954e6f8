// Package capture polls the system clipboard and emits new entries.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// DefaultCommandTimeout bounds one clipboard or window query.
const DefaultCommandTimeout = 2 * time.Second

// CommandSource reads the clipboard and the focused window by running
// external commands.
type CommandSource struct {
	paste   []string
	window  []string
	timeout time.Duration
}

// NewCommandSource creates a source running the given shell command lines.
// An empty line selects the platform default.
func NewCommandSource(paste, window string) *CommandSource {
	defPaste, defWindow := defaultCommands(runtime.GOOS, os.Getenv("WAYLAND_DISPLAY") != "")
	s := &CommandSource{paste: defPaste, window: defWindow, timeout: DefaultCommandTimeout}
	if paste != "" {
		s.paste = shellCommand(runtime.GOOS, paste)
	}
	if window != "" {
		s.window = shellCommand(runtime.GOOS, window)
	}
	return s
}

func defaultCommands(goos string, wayland bool) (paste, window []string) {
	switch goos {
	case "darwin":
		return []string{"pbpaste"},
			[]string{"osascript", "-e", `tell application "System Events" to get name of first application process whose frontmost is true`}
	case "windows":
		return []string{"powershell", "-NoProfile", "-Command", "Get-Clipboard -Raw"}, nil
	default:
		if wayland {
			return []string{"wl-paste", "--no-newline"}, nil
		}
		return []string{"xclip", "-selection", "clipboard", "-o"},
			[]string{"xdotool", "getactivewindow", "getwindowname"}
	}
}

func shellCommand(goos, line string) []string {
	if goos == "windows" {
		return []string{"powershell", "-NoProfile", "-Command", line}
	}
	return []string{"sh", "-c", line}
}

// Poll returns the clipboard contents. A paste command exiting non-zero
// is read as an empty clipboard.
func (s *CommandSource) Poll(ctx context.Context) ([]byte, error) {
	out, err := s.run(ctx, s.paste)
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil, nil
	}
	return out, err
}

// ActiveWindowTitle returns the focused window title, or "" when no
// window command is available for this platform.
func (s *CommandSource) ActiveWindowTitle(ctx context.Context) (string, error) {
	if len(s.window) == 0 {
		return "", nil
	}
	out, err := s.run(ctx, s.window)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (s *CommandSource) run(ctx context.Context, argv []string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", argv[0], ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%s: %w: %s", argv[0], err, strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("%s: %w", argv[0], err)
	}
	return stdout.Bytes(), nil
}
