package batch

import (
	"context"
	"sync/atomic"
	"time"

	charmlog "github.com/charmbracelet/log"
)

// Stats are shared by every worker of a run.
type Stats struct {
	ArchivesProcessed atomic.Int64
	ArchivesSkipped   atomic.Int64
	ArchivesFailed    atomic.Int64
	EntriesSkipped    atomic.Int64
	Documents         atomic.Int64
	Degraded          atomic.Int64
	EmptySegments     atomic.Int64
}

// Summary is a point-in-time copy of Stats.
type Summary struct {
	ArchivesProcessed int64
	ArchivesSkipped   int64
	ArchivesFailed    int64
	EntriesSkipped    int64
	Documents         int64
	Degraded          int64
	EmptySegments     int64
	Elapsed           time.Duration
}

// Rate returns documents per second.
func (s Summary) Rate() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Documents) / s.Elapsed.Seconds()
}

func (s *Stats) snapshot(start time.Time) Summary {
	return Summary{
		ArchivesProcessed: s.ArchivesProcessed.Load(),
		ArchivesSkipped:   s.ArchivesSkipped.Load(),
		ArchivesFailed:    s.ArchivesFailed.Load(),
		EntriesSkipped:    s.EntriesSkipped.Load(),
		Documents:         s.Documents.Load(),
		Degraded:          s.Degraded.Load(),
		EmptySegments:     s.EmptySegments.Load(),
		Elapsed:           time.Since(start),
	}
}

// Log writes the summary as one structured line.
func (s Summary) Log(lg *charmlog.Logger, msg string) {
	lg.Info(msg,
		"archives_processed", s.ArchivesProcessed,
		"archives_skipped", s.ArchivesSkipped,
		"archives_failed", s.ArchivesFailed,
		"entries_skipped", s.EntriesSkipped,
		"documents", s.Documents,
		"degraded", s.Degraded,
		"empty_segments", s.EmptySegments,
		"elapsed", s.Elapsed.Round(time.Second),
		"docs_per_sec", int64(s.Rate()),
	)
}

// reportProgress logs a snapshot every interval until ctx is done.
func (d *Driver) reportProgress(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Snapshot().Log(d.log, "progress")
		}
	}
}
