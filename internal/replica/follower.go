// Package replica keeps a standby daemon's journal synchronised with the
// primary it follows.
package replica

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wardenhq/warden/internal/api"
	"github.com/wardenhq/warden/internal/journal"
)

const (
	defaultInterval = time.Second
	defaultPageSize = 256
)

// Source is the slice of the primary's control API the follower reads.
// *client.Client satisfies it.
type Source interface {
	JournalRecords(ctx context.Context, after uint64, limit int) (*api.JournalPage, error)
}

// Config assembles a Follower.
type Config struct {
	Source  Source
	Journal *journal.Journal
	Logger  *slog.Logger
	// Interval is the pause between polls once the follower has drained
	// everything the primary had. Zero means the default.
	Interval time.Duration
	// PageSize caps how many records one request pulls. Zero means the
	// default.
	PageSize int
}

// Follower tails the primary's journal and applies each record to the local
// standby journal. The fetch cursor is always recomputed from the local
// durable history, so a crash or a failed apply never skips records.
type Follower struct {
	source   Source
	journal  *journal.Journal
	logger   *slog.Logger
	interval time.Duration
	pageSize int
}

// New validates cfg and returns a Follower ready to Run.
func New(cfg Config) (*Follower, error) {
	if cfg.Source == nil {
		return nil, errors.New("replica: source is required")
	}
	if cfg.Journal == nil {
		return nil, errors.New("replica: journal is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Follower{
		source:   cfg.Source,
		journal:  cfg.Journal,
		logger:   logger,
		interval: interval,
		pageSize: pageSize,
	}, nil
}

// Run polls the primary until ctx is cancelled or the local journal leaves
// standby mode. Transient failures are logged and retried on the next tick.
func (f *Follower) Run(ctx context.Context) error {
	f.logger.Info("follower started", "interval", f.interval, "page_size", f.pageSize)
	for {
		if err := f.pull(ctx); err != nil {
			switch {
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return nil
			case errors.Is(err, journal.ErrNotStandby):
				f.logger.Info("follower stopped: journal promoted")
				return nil
			default:
				f.logger.Warn("journal pull failed", "error", err)
			}
		}

		timer := time.NewTimer(f.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// pull drains every record the primary has beyond the local history. Each
// record is marked received before it is applied, so the receive position
// can run ahead of the replay position when an apply fails.
func (f *Follower) pull(ctx context.Context) error {
	for {
		after := f.journal.LastSeq()
		page, err := f.source.JournalRecords(ctx, after, f.pageSize)
		if err != nil {
			return fmt.Errorf("fetch records after %d: %w", after, err)
		}
		for _, rec := range page.Records {
			f.journal.State().SetLastReceived(rec.Timeline)
			if err := f.journal.Apply(rec); err != nil {
				return fmt.Errorf("apply record %d: %w", rec.Seq, err)
			}
			f.logger.Debug("record applied", "seq", rec.Seq, "timeline", uint32(rec.Timeline), "kind", string(rec.Kind))
		}
		if len(page.Records) < f.pageSize {
			return nil
		}
	}
}
