package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	logAdapter "github.com/bft-labs/clipd/internal/adapters/log"
	"github.com/bft-labs/clipd/internal/config"
	"github.com/bft-labs/clipd/internal/logging"
	"github.com/bft-labs/clipd/internal/ports"
)

const longHelp = `clipd keeps a searchable history of your clipboard and shares it with
your other devices.

History is kept per board. Each board has its own size limit, duplicate
policy and application/content filters, configured in config.toml.
Devices pair with a short word code and sync directly, with no server.`

var exampleUsage = strings.TrimSpace(`
  clipd daemon
  clipd list -n 20
  clipd recall 3 | less
  clipd pair            # on the first device
  clipd join <words>    # on the second device
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// rootOptions holds the flags shared by every command.
type rootOptions struct {
	cfgPath string
	board   string
	cfg     config.Config
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{cfg: config.DefaultConfig()}

	root := &cobra.Command{
		Use:           "clipd",
		Short:         "Clipboard history with peer-to-peer sync",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.cfgPath, "config", "", "path to config file (default: $XDG_CONFIG_HOME/clipd/config.toml)")
	pf.StringVarP(&opts.board, "board", "b", config.DefaultBoard, "board to operate on")
	pf.StringVar(&opts.cfg.DataDir, "data-dir", opts.cfg.DataDir, "directory holding board and peer databases")
	pf.StringVar(&opts.cfg.LogLevel, "log-level", opts.cfg.LogLevel, "log level (debug, info, warn, error)")

	root.AddCommand(
		newDaemonCommand(opts),
		newListCommand(opts),
		newRecallCommand(opts),
		newRemoveCommand(opts),
		newSearchCommand(opts),
		newWipeCommand(opts),
		newStoreCommand(opts),
		newPairCommand(opts),
		newJoinCommand(opts),
		newPeersCommand(opts),
		newIDCommand(opts),
	)
	return root
}

// load builds the effective config: defaults, then the config file, then
// CLIPD_* variables, then flags set on the command line.
func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, config.Loader, error) {
	path := o.cfgPath
	if path == "" {
		path = config.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	loader := config.Loader{Path: path, Base: o.cfg, Changed: changed}
	cfg, err := loader.Load()
	if err != nil {
		return nil, loader, err
	}
	logging.SetLevel(cfg.LogLevel)
	return cfg, loader, nil
}

// selectedBoard resolves the --board flag against cfg.
func (o *rootOptions) selectedBoard(cfg *config.Config) (config.Board, error) {
	b, ok := cfg.Board(o.board)
	if !ok {
		return config.Board{}, fmt.Errorf("unknown board %q (configured: %s)", o.board, strings.Join(cfg.BoardNames(), ", "))
	}
	return b, nil
}

func newLogger() ports.Logger {
	return logAdapter.NewZerolog(logging.Logger())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		log := logging.Logger()
		log.Error().Err(err).Msg("clipd")
		os.Exit(1)
	}
}
