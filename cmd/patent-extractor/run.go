package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	charmlog "github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"patent-biblio/internal/archive"
	"patent-biblio/internal/batch"
	"patent-biblio/internal/config"
	"patent-biblio/internal/emit"
	"patent-biblio/internal/metrics"
	"patent-biblio/internal/profile"
	"patent-biblio/internal/store"
)

type runFlags struct {
	format         string
	filesRoot      string
	file           string
	years          []string
	output         string
	exclude        []string
	excludeFile    string
	processedLog   string
	reprocess      bool
	workers        int
	extractWorkers int
	diagnostics    string
	metricsAddr    string
	db             bool
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Extract records from archives under the files root, or from one container file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			f.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runExtract(cmd.Context(), cmd, cfg)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.format, "format", "", "Document format (see the formats command)")
	fl.StringVar(&f.filesRoot, "files-root", "", "Directory holding <year>/ archive folders")
	fl.StringVar(&f.file, "file", "", "Process a single raw container file instead of archives")
	fl.StringSliceVar(&f.years, "years", nil, "Only archives in folders ending with these years")
	fl.StringVarP(&f.output, "output", "o", "", "Output file, - for stdout")
	fl.StringSliceVar(&f.exclude, "exclude", nil, "Archive or entry names to skip")
	fl.StringVar(&f.excludeFile, "exclude-file", "", "File listing names to skip, one per line")
	fl.StringVar(&f.processedLog, "processed-log", "", "Ledger of processed archives for resuming")
	fl.BoolVar(&f.reprocess, "reprocess", false, "Ignore the processed-archives ledger")
	fl.IntVar(&f.workers, "workers", 0, "Archives processed concurrently")
	fl.IntVar(&f.extractWorkers, "extract-workers", 0, "Segments extracted concurrently per container")
	fl.StringVar(&f.diagnostics, "diagnostics", "", "JSONL file for degraded segments")
	fl.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	fl.BoolVar(&f.db, "db", false, "Also store records in PostgreSQL")
	return cmd
}

// apply copies explicitly set flags over file and environment values.
func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	fl := cmd.Flags()
	e := &cfg.Extract
	if fl.Changed("format") {
		e.Format = f.format
	}
	if fl.Changed("files-root") {
		e.FilesRoot = f.filesRoot
	}
	if fl.Changed("file") {
		e.File = f.file
	}
	if fl.Changed("years") {
		e.Years = f.years
	}
	if fl.Changed("output") {
		e.Output = f.output
	}
	if fl.Changed("exclude") {
		e.Exclude = append(e.Exclude, f.exclude...)
	}
	if fl.Changed("exclude-file") {
		e.ExcludeFile = f.excludeFile
	}
	if fl.Changed("processed-log") {
		e.ProcessedLog = f.processedLog
	}
	if fl.Changed("reprocess") {
		e.Reprocess = f.reprocess
	}
	if fl.Changed("workers") {
		e.Workers = f.workers
	}
	if fl.Changed("extract-workers") {
		e.ExtractWorkers = f.extractWorkers
	}
	if fl.Changed("diagnostics") {
		e.Diagnostics = f.diagnostics
	}
	if fl.Changed("metrics-addr") {
		cfg.Metrics.Addr = f.metricsAddr
	}
	if fl.Changed("db") {
		cfg.Database.Enabled = f.db
	}
}

func runExtract(ctx context.Context, cmd *cobra.Command, cfg *config.Config) error {
	lg := newLogger(cmd, cfg)
	e := cfg.Extract

	// Configuration errors stop here, before any archive is opened.
	reg, err := profile.Builtin()
	if err != nil {
		return err
	}
	prof, err := reg.Lookup(profile.Format(e.Format))
	if err != nil {
		return err
	}
	exclude, err := archive.LoadExclusions(e.ExcludeFile, e.Exclude...)
	if err != nil {
		return err
	}
	var ledger *archive.Ledger
	if e.ProcessedLog != "" {
		if ledger, err = archive.OpenLedger(e.ProcessedLog); err != nil {
			return err
		}
		lg.Info("loaded processed archives", "count", ledger.Len())
	}

	runID := uuid.New()
	m := metrics.New()
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				lg.Error("metrics server stopped", "addr", cfg.Metrics.Addr, "err", err)
			}
		}()
	}

	sink, closeSink, err := openOutput(cmd, e.Output)
	if err != nil {
		return err
	}
	defer closeSink()
	outputs := batch.Multi{emit.NewWriter(sink)}

	if cfg.Database.Enabled {
		db, err := store.Open(ctx, cfg.Database, runID, lg.With("component", "store"))
		if err != nil {
			return err
		}
		defer func() {
			if failures := db.Failures(); len(failures) > 0 {
				for category, n := range failures {
					m.SinkErrors.WithLabelValues(category).Add(float64(n))
				}
				lg.Warn("database failures", "by_category", failures)
			}
			lg.Info("database rows written", "rows", db.Inserted())
			db.Close()
		}()
		outputs = append(outputs, db)
	}

	var diag *batch.Diagnostics
	if e.Diagnostics != "" {
		if diag, err = batch.OpenDiagnostics(e.Diagnostics); err != nil {
			return err
		}
		defer diag.Close()
	}

	driver, err := batch.New(batch.Options{
		Profile:          prof,
		Output:           outputs,
		Log:              lg,
		Metrics:          m,
		Exclude:          exclude,
		Ledger:           ledger,
		Reprocess:        e.Reprocess,
		Diagnostics:      diag,
		Workers:          e.Workers,
		ExtractWorkers:   e.ExtractWorkers,
		ProgressInterval: e.ProgressInterval,
		RunID:            runID,
	})
	if err != nil {
		return err
	}

	if e.File != "" {
		_, err = driver.RunFile(ctx, e.File)
		return err
	}

	archives, err := archive.Find(e.FilesRoot, archive.FindOptions{
		Years:        e.Years,
		MinSniffSize: e.MinArchiveSizeMB << 20,
	})
	if err != nil {
		return err
	}
	lg.Info("found archives", "root", e.FilesRoot, "count", len(archives), "excluded", exclude.Names())
	_, err = driver.Run(ctx, archives)
	return err
}

// openOutput returns the buffered record sink and a function that flushes
// and closes it.
func openOutput(cmd *cobra.Command, target string) (emit.Sink, func(), error) {
	var (
		w       io.Writer
		closeFn func() error
	)
	if target == "-" {
		w = cmd.OutOrStdout()
		closeFn = func() error { return nil }
	} else {
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return nil, nil, fmt.Errorf("output dir: %w", err)
		}
		f, err := os.Create(target)
		if err != nil {
			return nil, nil, fmt.Errorf("create output: %w", err)
		}
		w, closeFn = f, f.Close
	}
	bw := bufio.NewWriterSize(w, 64*1024)
	return bw, func() {
		if err := bw.Flush(); err != nil {
			charmlog.Error("flush output", "err", err)
		}
		if err := closeFn(); err != nil {
			charmlog.Error("close output", "err", err)
		}
	}, nil
}
