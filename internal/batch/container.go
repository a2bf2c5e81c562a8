package batch

import (
	"context"
	"errors"
	"fmt"
	"io"

	charmlog "github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"patent-biblio/internal/extract"
	"patent-biblio/internal/record"
	"patent-biblio/internal/segment"
)

type containerCounts struct {
	documents int64
	degraded  int64
}

func (c *containerCounts) add(o containerCounts) {
	c.documents += o.documents
	c.degraded += o.degraded
}

type extracted struct {
	seg segment.Segment
	rec record.Record
	err error
}

// processContainer segments r and emits one record per non-blank segment in
// stream order. Read errors end the container; sink errors are wrapped in
// ErrSink.
func (d *Driver) processContainer(ctx context.Context, lg *charmlog.Logger, archiveName, entry string, r io.Reader) (containerCounts, error) {
	var counts containerCounts
	sc := segment.New(r, d.opts.Profile)

	emit := func(x extracted) error {
		return d.handle(ctx, lg, archiveName, entry, x, &counts)
	}

	if d.opts.ExtractWorkers <= 1 {
		for sc.Next() {
			if err := ctx.Err(); err != nil {
				return counts, err
			}
			if err := emit(d.extract(sc.Segment())); err != nil {
				return counts, err
			}
		}
		if err := sc.Err(); err != nil {
			return counts, fmt.Errorf("segment %s: %w", entry, err)
		}
		return counts, nil
	}

	err := d.extractOrdered(ctx, sc, emit)
	if err != nil && !errors.Is(err, ErrSink) && ctx.Err() == nil {
		err = fmt.Errorf("segment %s: %w", entry, err)
	}
	return counts, err
}

func (d *Driver) extract(seg segment.Segment) extracted {
	if seg.Blank() {
		return extracted{seg: seg}
	}
	rec, err := extract.Segment(seg.Data, d.opts.Profile)
	return extracted{seg: seg, rec: rec, err: err}
}

// extractOrdered runs the segmenter as a single producer, extracts segments
// on ExtractWorkers goroutines and emits results in segment order.
func (d *Driver) extractOrdered(ctx context.Context, sc *segment.Segmenter, emit func(extracted) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	n := d.opts.ExtractWorkers
	segs := make(chan segment.Segment, n)
	results := make(chan extracted, n)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(segs)
		for sc.Next() {
			select {
			case segs <- sc.Segment():
			case <-gctx.Done():
				return nil
			}
		}
		return sc.Err()
	})

	var workers errgroup.Group
	for i := 0; i < n; i++ {
		workers.Go(func() error {
			for seg := range segs {
				select {
				case results <- d.extract(seg):
				case <-gctx.Done():
					return nil
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		err := workers.Wait()
		close(results)
		return err
	})

	var emitErr error
	pending := make(map[int]extracted)
	next := 0
	for x := range results {
		if emitErr != nil {
			continue // draining
		}
		pending[x.seg.Index] = x
		for {
			ready, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			if err := emit(ready); err != nil {
				emitErr = err
				cancel()
				break
			}
		}
	}

	if err := g.Wait(); err != nil && emitErr == nil {
		emitErr = err
	}
	if emitErr == nil {
		emitErr = ctx.Err()
	}
	return emitErr
}

// handle turns one extraction result into output and counters.
func (d *Driver) handle(ctx context.Context, lg *charmlog.Logger, archiveName, entry string, x extracted, counts *containerCounts) error {
	format := string(d.opts.Profile.Format)
	m := d.opts.Metrics

	if x.seg.Blank() {
		d.stats.EmptySegments.Add(1)
		if m != nil {
			m.EmptySegments.Inc()
		}
		return nil
	}

	if x.err != nil {
		counts.degraded++
		d.stats.Degraded.Add(1)
		if m != nil {
			m.Degraded.WithLabelValues(format).Inc()
		}
		lg.Debug("degraded segment", "archive", archiveName, "entry", entry,
			"segment", x.seg.Index, "fields", x.rec.Len(), "err", x.err)
		diagErr := d.opts.Diagnostics.Write(DiagnosticEntry{
			RunID:         d.runID(),
			Archive:       archiveName,
			Entry:         entry,
			Segment:       x.seg.Index,
			Format:        format,
			FailureReason: x.err.Error(),
			Fields:        x.rec.Len(),
			Sample:        sample(x.seg.Data),
		})
		if diagErr != nil {
			lg.Warn("diagnostics write failed", "err", diagErr)
		}
	}

	doc := record.Document{
		Archive: archiveName,
		Entry:   entry,
		Index:   x.seg.Index,
		Format:  format,
		Record:  x.rec,
	}
	if err := d.opts.Output.Write(ctx, doc); err != nil {
		if m != nil {
			m.SinkErrors.WithLabelValues("write").Inc()
		}
		return fmt.Errorf("%w: %w", ErrSink, err)
	}
	counts.documents++
	d.stats.Documents.Add(1)
	if m != nil {
		m.Documents.WithLabelValues(format).Inc()
	}
	return nil
}
