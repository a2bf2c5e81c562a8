// Package batch drives extraction over archives: it opens each archive, feeds
// matching container entries through segmentation and the field-state
// machine, and hands every record to the configured outputs.
//
// Failures are isolated by level. A corrupt or excluded archive is skipped, a
// malformed segment degrades to a partial record, and a failing output ends
// only the archive being processed.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"patent-biblio/internal/archive"
	"patent-biblio/internal/logger"
	"patent-biblio/internal/metrics"
	"patent-biblio/internal/profile"
	"patent-biblio/internal/record"
)

var (
	// ErrSink wraps output failures. It ends the current archive.
	ErrSink = errors.New("record sink failed")
	// ErrArchiveSkipped is returned by ProcessArchive for archives that were
	// excluded, already in the ledger, or unreadable.
	ErrArchiveSkipped = errors.New("archive skipped")
)

// Output receives every extracted document.
type Output interface {
	Write(ctx context.Context, doc record.Document) error
}

// Multi writes to each output in turn and stops at the first failure.
type Multi []Output

func (m Multi) Write(ctx context.Context, doc record.Document) error {
	for _, o := range m {
		if err := o.Write(ctx, doc); err != nil {
			return err
		}
	}
	return nil
}

// Options configure a Driver. Profile and Output are required.
type Options struct {
	Profile *profile.Profile
	Output  Output

	Log         *charmlog.Logger
	Metrics     *metrics.Metrics
	Exclude     *archive.Exclusions
	Ledger      *archive.Ledger
	Reprocess   bool
	Diagnostics *Diagnostics

	Workers          int // archives processed concurrently
	ExtractWorkers   int // segments extracted concurrently per container
	ProgressInterval time.Duration
	RunID            uuid.UUID
}

// Driver runs one extraction.
type Driver struct {
	opts  Options
	log   *charmlog.Logger
	stats Stats
	start time.Time
}

// New checks opts and fills defaults.
func New(opts Options) (*Driver, error) {
	if opts.Profile == nil {
		return nil, errors.New("batch: profile is required")
	}
	if opts.Output == nil {
		return nil, errors.New("batch: output is required")
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.ExtractWorkers < 1 {
		opts.ExtractWorkers = 1
	}
	lg := opts.Log
	if lg == nil {
		lg = logger.Discard()
	}
	if opts.RunID != uuid.Nil {
		lg = lg.With("run", opts.RunID.String())
	}
	return &Driver{opts: opts, log: lg, start: time.Now()}, nil
}

// Snapshot returns the current counters.
func (d *Driver) Snapshot() Summary {
	return d.stats.snapshot(d.start)
}

// Run processes archives with a fixed pool of workers. Per-archive failures
// are logged and counted; only cancellation of ctx is returned.
func (d *Driver) Run(ctx context.Context, archives []string) (Summary, error) {
	d.log.Info("starting extraction", "format", d.opts.Profile.Format, "archives", len(archives),
		"workers", d.opts.Workers, "extract_workers", d.opts.ExtractWorkers)

	progressCtx, stopProgress := context.WithCancel(ctx)
	defer stopProgress()
	go d.reportProgress(progressCtx, d.opts.ProgressInterval)

	paths := make(chan string)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(paths)
		for _, p := range archives {
			select {
			case paths <- p:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	for i := 0; i < d.opts.Workers; i++ {
		lg := d.log.With("worker", i)
		g.Go(func() error {
			for p := range paths {
				if err := d.ProcessArchive(gctx, lg, p); err != nil && gctx.Err() != nil {
					return gctx.Err()
				}
			}
			return nil
		})
	}
	err := g.Wait()

	sum := d.Snapshot()
	sum.Log(d.log, "extraction complete")
	return sum, err
}

// ProcessArchive extracts every accepted container of one archive. It
// returns ErrArchiveSkipped for archives that were not opened, and a
// non-nil error when the archive failed part way.
func (d *Driver) ProcessArchive(ctx context.Context, lg *charmlog.Logger, path string) error {
	name := filepath.Base(path)
	switch {
	case d.opts.Exclude.Has(name):
		lg.Info("archive excluded", "archive", name)
		d.archiveDone("skipped", 0)
		return ErrArchiveSkipped
	case d.opts.Ledger != nil && !d.opts.Reprocess && d.opts.Ledger.Done(path):
		lg.Debug("archive already processed", "archive", name)
		d.archiveDone("skipped", 0)
		return ErrArchiveSkipped
	}

	src, err := archive.Open(path)
	if err != nil {
		lg.Warn("skipping archive", "archive", name, "err", err)
		d.archiveDone("skipped", 0)
		return fmt.Errorf("%w: %w", ErrArchiveSkipped, err)
	}
	defer src.Close()

	if d.opts.Metrics != nil {
		d.opts.Metrics.InFlight.Inc()
		defer d.opts.Metrics.InFlight.Dec()
	}
	lg.Info("processing archive", "archive", name)
	start := time.Now()

	var total containerCounts
	err = src.Walk(func(entry string, r io.Reader, err error) error {
		if err != nil {
			lg.Warn("skipping entry", "archive", name, "entry", entry, "err", err)
			d.stats.EntriesSkipped.Add(1)
			return nil
		}
		if !d.opts.Profile.AcceptsEntry(entry) {
			return nil
		}
		if d.opts.Exclude.Has(entry) {
			lg.Info("entry excluded", "archive", name, "entry", entry)
			d.stats.EntriesSkipped.Add(1)
			return nil
		}
		n, err := d.processContainer(ctx, lg, name, entry, r)
		total.add(n)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrSink) || ctx.Err() != nil {
			return err
		}
		lg.Warn("container read failed", "archive", name, "entry", entry, "err", err)
		d.stats.EntriesSkipped.Add(1)
		return nil
	})

	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(err, archive.ErrCorrupt) {
			lg.Warn("skipping archive", "archive", name, "err", err)
			d.archiveDone("skipped", elapsed)
			return fmt.Errorf("%w: %w", ErrArchiveSkipped, err)
		}
		lg.Error("archive failed", "archive", name, "documents", total.documents, "err", err)
		d.archiveDone("failed", elapsed)
		return fmt.Errorf("archive %s: %w", name, err)
	}

	lg.Info("archive done", "archive", name, "documents", total.documents,
		"degraded", total.degraded, "elapsed", elapsed.Round(time.Millisecond))
	d.archiveDone("processed", elapsed)
	if d.opts.Ledger != nil {
		if err := d.opts.Ledger.Mark(path); err != nil {
			lg.Warn("ledger update failed", "archive", name, "err", err)
		}
	}
	return nil
}

// RunFile processes one bare container file, bypassing archive handling.
func (d *Driver) RunFile(ctx context.Context, path string) (Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return d.Snapshot(), fmt.Errorf("open container: %w", err)
	}
	defer f.Close()

	d.log.Info("processing file", "file", path, "format", d.opts.Profile.Format)
	start := time.Now()
	n, err := d.processContainer(ctx, d.log, "", filepath.Base(path), f)
	if err != nil {
		d.archiveDone("failed", time.Since(start))
	} else {
		d.archiveDone("processed", time.Since(start))
	}
	sum := d.Snapshot()
	sum.Log(d.log, "extraction complete")
	if err != nil {
		return sum, fmt.Errorf("file %s after %d documents: %w", filepath.Base(path), n.documents, err)
	}
	return sum, nil
}

func (d *Driver) runID() string {
	if d.opts.RunID == uuid.Nil {
		return ""
	}
	return d.opts.RunID.String()
}

func (d *Driver) archiveDone(status string, elapsed time.Duration) {
	switch status {
	case "processed":
		d.stats.ArchivesProcessed.Add(1)
	case "skipped":
		d.stats.ArchivesSkipped.Add(1)
	case "failed":
		d.stats.ArchivesFailed.Add(1)
	}
	if m := d.opts.Metrics; m != nil {
		m.Archives.WithLabelValues(status).Inc()
		if elapsed > 0 {
			m.ArchiveDuration.Observe(elapsed.Seconds())
		}
	}
}
