package main

import (
	"github.com/spf13/cobra"

	"github.com/bft-labs/clipd/internal/app"
	"github.com/bft-labs/clipd/internal/ports"
)

func newDaemonCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Capture the clipboard and sync with paired devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, loader, err := opts.load(cmd)
			if err != nil {
				return err
			}
			logger := newLogger()
			logger.Info("starting daemon",
				ports.String("config", loader.Path),
				ports.String("data_dir", cfg.DataDir),
				ports.Strings("boards", cfg.BoardNames()),
				ports.Duration("polling_rate", cfg.PollingRate),
				ports.Duration("sync_interval", cfg.SyncInterval))

			d := app.NewDaemon(cfg, loader, app.Options{Logger: logger})
			if err := d.Run(cmd.Context()); err != nil {
				return err
			}
			logger.Info("daemon stopped")
			return nil
		},
	}

	f := cmd.Flags()
	c := &opts.cfg
	f.StringVar(&c.DeviceName, "device-name", c.DeviceName, "name announced to peers")
	f.DurationVar(&c.PollingRate, "polling-rate", c.PollingRate, "clipboard polling interval")
	f.DurationVar(&c.SyncInterval, "sync-interval", c.SyncInterval, "interval between peer sync rounds")
	f.IntSliceVar(&c.ListenPorts, "port", c.ListenPorts, "candidate sync ports, tried in order")
	f.IntVar(&c.SyncBatchBytes, "sync-batch-bytes", c.SyncBatchBytes, "maximum bytes of entries per sync response")
	f.StringVar(&c.PasteCommand, "paste-command", c.PasteCommand, "shell command printing the clipboard (default: platform tool)")
	f.StringVar(&c.WindowCommand, "window-command", c.WindowCommand, "shell command printing the focused window title")
	return cmd
}
