package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"

	"github.com/bft-labs/clipd/internal/config"
	"github.com/bft-labs/clipd/internal/domain"
	"github.com/bft-labs/clipd/internal/format"
	"github.com/bft-labs/clipd/internal/router"
	"github.com/bft-labs/clipd/internal/store"
)

const (
	emptyMessage = "Clipboard is empty"
	lineWidth    = 100
)

// openBoard opens the store of the --board board.
func openBoard(cmd *cobra.Command, opts *rootOptions) (*store.Store, error) {
	cfg, _, err := opts.load(cmd)
	if err != nil {
		return nil, err
	}
	b, err := opts.selectedBoard(cfg)
	if err != nil {
		return nil, err
	}
	return store.Open(b.DBPath)
}

// parseIndex reads a 1-based entry index.
func parseIndex(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid index %q: want a number from 1", arg)
	}
	return n, nil
}

// nth returns entry n (1-based, newest first) with a readable not-found error.
func nth(cmd *cobra.Command, st *store.Store, n int) (domain.ClipEntry, error) {
	e, err := st.Nth(cmd.Context(), n-1)
	if errors.Is(err, domain.ErrNotFound) {
		count, cerr := st.Count(cmd.Context())
		if cerr != nil {
			return e, err
		}
		return e, fmt.Errorf("%w: entry %d (board has %d)", domain.ErrNotFound, n, count)
	}
	return e, err
}

func newListCommand(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show recent entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openBoard(cmd, opts)
			if err != nil {
				return err
			}
			defer st.Close()

			var entries []domain.ClipEntry
			for e, err := range st.Scan(cmd.Context(), store.Reverse) {
				if err != nil {
					return err
				}
				entries = append(entries, e)
				if limit > 0 && len(entries) >= limit {
					break
				}
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, emptyMessage)
				return nil
			}
			return format.List(out, entries, lineWidth, time.Local)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show at most N entries (0 for all)")
	return cmd
}

func newRecallCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "recall N",
		Short: "Print the payload of entry N",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			st, err := openBoard(cmd, opts)
			if err != nil {
				return err
			}
			defer st.Close()

			e, err := nth(cmd, st, n)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(e.Payload)
			return err
		},
	}
}

func newRemoveCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "remove N",
		Aliases: []string{"rm"},
		Short:   "Delete entry N",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			st, err := openBoard(cmd, opts)
			if err != nil {
				return err
			}
			defer st.Close()

			e, err := nth(cmd, st, n)
			if err != nil {
				return err
			}
			if err := st.Remove(cmd.Context(), e.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", format.Preview(e, 60))
			return nil
		},
	}
}

func newSearchCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "search QUERY",
		Short: "List entries whose text contains QUERY, ignoring case",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openBoard(cmd, opts)
			if err != nil {
				return err
			}
			defer st.Close()

			fold := cases.Fold()
			query := []byte(fold.String(strings.Join(args, " ")))
			out := cmd.OutOrStdout()
			index, found := 0, 0
			for e, err := range st.Scan(cmd.Context(), store.Reverse) {
				if err != nil {
					return err
				}
				index++
				if !bytes.Contains(fold.Bytes(e.Payload), query) {
					continue
				}
				found++
				fmt.Fprintln(out, format.Row(index, e, lineWidth, time.Local))
			}
			if found == 0 {
				fmt.Fprintln(out, "No matches")
			}
			return nil
		},
	}
}

func newWipeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "wipe",
		Short: "Delete every entry of the board",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openBoard(cmd, opts)
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := st.Wipe(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d entries\n", n)
			return nil
		},
	}
}

func newStoreCommand(opts *rootOptions) *cobra.Command {
	var application string
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Store standard input as a new entry on every matching board",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load(cmd)
			if err != nil {
				return err
			}
			payload, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), domain.MaxPayloadSize+1))
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}

			logger := newLogger()
			stores := router.NewStoreSet(logger)
			defer stores.Close()
			r := router.New(config.NewHandle(cfg), stores, logger)

			_, boards, err := r.Capture(cmd.Context(), payload, application)
			if len(boards) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Stored in %s\n", strings.Join(boards, ", "))
			} else if err == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No board accepted the entry")
			}
			return err
		},
	}
	cmd.Flags().StringVar(&application, "app", "", "source application name used by board filters")
	return cmd
}
