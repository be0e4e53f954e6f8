package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bft-labs/clipd/internal/adapters/fs"
	"github.com/bft-labs/clipd/internal/app"
	"github.com/bft-labs/clipd/internal/config"
	"github.com/bft-labs/clipd/internal/domain"
	"github.com/bft-labs/clipd/internal/peer"
	"github.com/bft-labs/clipd/internal/router"
	"github.com/bft-labs/clipd/internal/syncer"
)

// openSyncer builds a Syncer for one-shot peer commands. The returned
// func releases its stores and registry.
func openSyncer(ctx context.Context, cfg *config.Config) (*syncer.Syncer, func(), error) {
	logger := newLogger()
	self, err := app.SelfNode(ctx, cfg.DataDir, cfg.DeviceName, peer.DefaultProviders(),
		&http.Client{Timeout: 5 * time.Second}, logger)
	if err != nil {
		return nil, nil, err
	}
	registry, err := peer.OpenRegistry(cfg.RegistryPath())
	if err != nil {
		return nil, nil, err
	}

	handle := config.NewHandle(cfg)
	stores := router.NewStoreSet(logger)
	s := syncer.New(self, router.New(handle, stores, logger), registry,
		peer.NewDialer(cfg.ListenPorts, peer.DefaultDialTimeout), handle, logger)
	return s, func() {
		stores.Close()
		registry.Close()
	}, nil
}

func newPairCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pair",
		Short: "Print a pairing code for this device",
		Long: `Print a pairing code naming this device's local and public addresses.
Run "clipd join <code>" on the other device while this device's daemon is running.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load(cmd)
			if err != nil {
				return err
			}
			s, closeFn, err := openSyncer(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			code, err := s.PairingCode()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), code)
			return nil
		},
	}
}

func newJoinCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "join CODE...",
		Short: "Pair with the device that printed CODE",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load(cmd)
			if err != nil {
				return err
			}
			s, closeFn, err := openSyncer(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			n, err := s.Join(cmd.Context(), strings.Join(args, " "))
			if errors.Is(err, domain.ErrSameDevice) {
				return fmt.Errorf("%w: that code belongs to this device", err)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Paired with %s (%s)\n", n.Name, n.DeviceID)
			return nil
		},
	}
}

// peerView is the printable form of a registered node.
type peerView struct {
	DeviceID        string `yaml:"device_id"`
	Name            string `yaml:"name"`
	LocalIP         string `yaml:"local_ip,omitempty"`
	PublicIP        string `yaml:"public_ip,omitempty"`
	LastSeen        string `yaml:"last_seen,omitempty"`
	LastSync        string `yaml:"last_sync,omitempty"`
	PreferredOrigin string `yaml:"preferred_origin,omitempty"`
}

func viewOf(n domain.Node) peerView {
	v := peerView{DeviceID: n.DeviceID, Name: n.Name}
	if len(n.LocalIP) > 0 {
		v.LocalIP = n.LocalIP.String()
	}
	if len(n.PublicIP) > 0 {
		v.PublicIP = n.PublicIP.String()
	}
	if n.LastSeen != nil {
		v.LastSeen = n.LastSeen.Format(time.RFC3339)
	}
	if n.LastSync != nil {
		v.LastSync = n.LastSync.Format(time.RFC3339)
	}
	if n.PreferredOrigin != nil {
		v.PreferredOrigin = n.PreferredOrigin.String()
	}
	return v
}

func writePeers(w io.Writer, nodes []domain.Node, output string) error {
	views := make([]peerView, len(nodes))
	for i, n := range nodes {
		views[i] = viewOf(n)
	}

	switch output {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(views); err != nil {
			return err
		}
		return enc.Close()
	case "text":
		if len(views) == 0 {
			_, err := fmt.Fprintln(w, "No peers")
			return err
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "DEVICE ID\tNAME\tLOCAL\tPUBLIC\tLAST SEEN\tLAST SYNC")
		for _, v := range views {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				v.DeviceID, v.Name, dash(v.LocalIP), dash(v.PublicIP), dash(v.LastSeen), dash(v.LastSync))
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q (text, yaml)", output)
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func openRegistry(cmd *cobra.Command, opts *rootOptions) (*peer.Registry, error) {
	cfg, _, err := opts.load(cmd)
	if err != nil {
		return nil, err
	}
	return peer.OpenRegistry(cfg.RegistryPath())
}

func newPeersCommand(opts *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "peers",
		Short: "List paired devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := openRegistry(cmd, opts)
			if err != nil {
				return err
			}
			defer registry.Close()

			nodes, err := registry.Nodes(cmd.Context())
			if err != nil {
				return err
			}
			return writePeers(cmd.OutOrStdout(), nodes, output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format (text|yaml)")

	cmd.AddCommand(&cobra.Command{
		Use:   "rm DEVICE_ID",
		Short: "Forget a paired device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := openRegistry(cmd, opts)
			if err != nil {
				return err
			}
			defer registry.Close()

			if err := registry.Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
			return nil
		},
	})
	return cmd
}

func newIDCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "id",
		Short: "Print this device's identity and addresses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load(cmd)
			if err != nil {
				return err
			}
			id, err := peer.CachedIdentity(cmd.Context(), fs.NewIdentityFile(cfg.DataDir), peer.DefaultProviders(), newLogger())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "device id: %s\nname:      %s\n", id, cfg.DeviceName)
			if ip, err := peer.LocalIP(); err == nil {
				fmt.Fprintf(out, "local ip:  %s\n", ip)
			}
			return nil
		},
	}
}
