// Package app runs the clipd daemon: clipboard capture, config reload,
// board routing and peer sync as one supervised group of tasks.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bft-labs/clipd/internal/capture"
	"github.com/bft-labs/clipd/internal/config"
	"github.com/bft-labs/clipd/internal/domain"
	"github.com/bft-labs/clipd/internal/logging"
	"github.com/bft-labs/clipd/internal/peer"
	"github.com/bft-labs/clipd/internal/ports"
	"github.com/bft-labs/clipd/internal/router"
	"github.com/bft-labs/clipd/internal/syncer"
)

// Queue sizes between tasks.
const (
	captureQueue  = 16
	announceQueue = 64
)

// Options supplies the daemon's external dependencies. Zero fields fall
// back to platform defaults.
type Options struct {
	Logger     ports.Logger
	Source     ports.CaptureSource
	HTTPClient ports.HTTPClient
	Providers  []peer.IdentityProvider
}

// Daemon is a running clipd instance.
type Daemon struct {
	loader    config.Loader
	handle    *config.Handle
	logger    ports.Logger
	lifecycle *Lifecycle

	source     ports.CaptureSource
	httpClient ports.HTTPClient
	providers  []peer.IdentityProvider

	stores *router.StoreSet
	router *router.Router
}

// NewDaemon creates a daemon for cfg. loader is reused for hot reloads of
// the config file.
func NewDaemon(cfg *config.Config, loader config.Loader, opts Options) *Daemon {
	handle := config.NewHandle(cfg)
	stores := router.NewStoreSet(opts.Logger)

	d := &Daemon{
		loader:     loader,
		handle:     handle,
		logger:     opts.Logger,
		lifecycle:  NewLifecycle(opts.Logger),
		source:     opts.Source,
		httpClient: opts.HTTPClient,
		providers:  opts.Providers,
		stores:     stores,
		router:     router.New(handle, stores, opts.Logger),
	}
	if d.source == nil {
		d.source = capture.NewCommandSource(cfg.PasteCommand, cfg.WindowCommand)
	}
	if d.httpClient == nil {
		d.httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	if d.providers == nil {
		d.providers = peer.DefaultProviders()
	}
	return d
}

// Router returns the daemon's router.
func (d *Daemon) Router() *router.Router {
	return d.router
}

// State returns the daemon's lifecycle state.
func (d *Daemon) State() State {
	return d.lifecycle.State()
}

// Run starts every task and blocks until ctx is cancelled, Stop is
// called or a task fails.
func (d *Daemon) Run(ctx context.Context) (err error) {
	if err := d.lifecycle.TransitionTo(StateStarting, "run"); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.lifecycle.SetCancel(cancel)

	defer func() {
		if cerr := d.stores.Close(); cerr != nil {
			d.logger.Warn("failed to close stores", ports.Err(cerr))
		}
		if err != nil {
			d.lifecycle.TransitionTo(StateCrashed, err.Error())
			return
		}
		d.lifecycle.TransitionTo(StateStopped, "tasks finished")
	}()

	nw, nerr := d.startNetwork(ctx)
	if nerr != nil {
		d.logger.Error("networking disabled, running local only", ports.Err(nerr))
	}
	if nw != nil {
		defer nw.close()
	}

	watcher := config.NewWatcher(d.loader, d.handle, d.logger)
	watcher.OnReload(func(cfg *config.Config) {
		logging.SetLevel(cfg.LogLevel)
		d.stores.Retain(cfg.Boards)
	})

	clips := make(chan domain.ClipEntry, captureQueue)
	announce := make(chan domain.ClipEntry, announceQueue)
	poller := capture.NewPoller(d.source, d.handle, d.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return watcher.Run(gctx) })
	g.Go(func() error { return poller.Run(gctx, clips) })
	g.Go(func() error { return d.consume(gctx, clips, announce, nw != nil) })
	if nw != nil {
		g.Go(func() error { return nw.syncer.Serve(gctx, nw.listener) })
		g.Go(func() error { return nw.syncer.RunCycle(gctx) })
		g.Go(func() error { return d.announce(gctx, nw.syncer, announce) })
	}

	if err := d.lifecycle.TransitionTo(StateRunning, "tasks started"); err != nil {
		cancel()
		g.Wait()
		return err
	}

	err = g.Wait()
	d.lifecycle.TransitionTo(StateStopping, "tasks returned")
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

// Stop cancels a running daemon and waits for it to finish.
func (d *Daemon) Stop() error {
	d.lifecycle.Cancel()
	return d.lifecycle.Wait(ShutdownTimeout)
}

// consume routes captured entries and queues the stored ones for
// announcement to peers.
func (d *Daemon) consume(ctx context.Context, clips <-chan domain.ClipEntry, announce chan<- domain.ClipEntry, networked bool) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-clips:
			boards, err := d.router.Route(ctx, e)
			if err != nil {
				d.logger.Warn("capture not stored on every board", ports.Err(err))
			}
			if len(boards) == 0 {
				continue
			}
			d.logger.Debug("captured clip",
				ports.String("id", e.ID.String()),
				ports.String("application", e.Application),
				ports.Strings("boards", boards))

			if !networked {
				continue
			}
			select {
			case announce <- e:
			default:
				d.logger.Warn("announce queue full, peer will catch up on next sync",
					ports.String("id", e.ID.String()))
			}
		}
	}
}

// announce broadcasts queued entries one at a time so slow peers never
// hold up capture.
func (d *Daemon) announce(ctx context.Context, s *syncer.Syncer, announce <-chan domain.ClipEntry) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-announce:
			if err := s.Broadcast(ctx, e); err != nil && ctx.Err() == nil {
				d.logger.Warn("broadcast failed", ports.Err(err))
			}
		}
	}
}
