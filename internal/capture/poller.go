package capture

import (
	"context"
	"crypto/sha256"
	"errors"
	"time"

	"github.com/bft-labs/clipd/internal/config"
	"github.com/bft-labs/clipd/internal/domain"
	"github.com/bft-labs/clipd/internal/ports"
)

// Poller watches a CaptureSource and emits an entry each time the
// clipboard contents change.
type Poller struct {
	source  ports.CaptureSource
	handle  *config.Handle
	logger  ports.Logger
	backoff *backoff

	last    [sha256.Size]byte
	hasLast bool
}

// NewPoller creates a Poller. The polling interval is read from handle
// before every poll so a reload takes effect on the next tick.
func NewPoller(source ports.CaptureSource, handle *config.Handle, logger ports.Logger) *Poller {
	return &Poller{
		source:  source,
		handle:  handle,
		logger:  logger,
		backoff: newBackoff(DefaultBackoffInitial, DefaultBackoffMax),
	}
}

// Run polls until ctx is cancelled, sending new entries to out. Poll
// errors are logged and retried after a backoff.
func (p *Poller) Run(ctx context.Context, out chan<- domain.ClipEntry) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		entry, ok, err := p.poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			delay := p.backoff.Next()
			p.logger.Warn("clipboard poll failed", ports.Err(err), ports.Duration("retry_in", delay))
			timer.Reset(max(delay, p.handle.Load().PollingRate))
			continue
		}
		p.backoff.Reset()

		if ok {
			select {
			case <-ctx.Done():
				return nil
			case out <- entry:
			}
		}
		timer.Reset(p.handle.Load().PollingRate)
	}
}

// poll reads the clipboard once. It reports ok when the contents changed
// since the last poll and form a storable entry.
func (p *Poller) poll(ctx context.Context) (domain.ClipEntry, bool, error) {
	payload, err := p.source.Poll(ctx)
	if err != nil {
		return domain.ClipEntry{}, false, err
	}
	if len(payload) == 0 {
		return domain.ClipEntry{}, false, nil
	}

	sum := sha256.Sum256(payload)
	if p.hasLast && sum == p.last {
		return domain.ClipEntry{}, false, nil
	}
	p.last, p.hasLast = sum, true

	app, err := p.source.ActiveWindowTitle(ctx)
	if err != nil {
		p.logger.Debug("active window unavailable", ports.Err(err))
		app = ""
	}

	entry, err := domain.NewClip(payload, app)
	if errors.Is(err, domain.ErrPayloadEmpty) || errors.Is(err, domain.ErrPayloadTooLarge) {
		p.logger.Debug("ignoring clipboard contents", ports.Err(err), ports.Int("bytes", len(payload)))
		return domain.ClipEntry{}, false, nil
	}
	if err != nil {
		return domain.ClipEntry{}, false, err
	}
	return entry, true, nil
}
