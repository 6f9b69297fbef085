package schema

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options configures a scan.
type Options struct {
	Workers          int           // Parallel file parsers (default GOMAXPROCS)
	Progress         ProgressFunc  // Optional progress observer
	ProgressInterval time.Duration // Minimum spacing of intermediate events (0 = every file)
	Logger           *zap.Logger
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (o Options) logger() *zap.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return zap.NewNop()
}

// fileResult is the per-file outcome of a parse.
type fileResult struct {
	acc     *accumulator
	records int
	err     error
}

// Scan infers a merged column schema from every JSON file under folders.
//
// Files are parsed concurrently but merged in discovery order: folders in the
// order given and, within each directory, files lexicographically before
// subdirectories. The column order is therefore deterministic for a fixed set
// of inputs. A file that fails to parse
// is reported in ScanResult.Errors and excluded from the counters.
func Scan(ctx context.Context, folders []string, opts Options) (*ScanResult, error) {
	log := opts.logger()
	rep := newReporter(opts.Progress, opts.ProgressInterval)

	files, ferrs, err := Discover(folders)
	if err != nil {
		rep.finish("scan failed", err)
		return nil, err
	}
	log.Debug("discovered source files", zap.Int("files", len(files)), zap.Int("folder_errors", len(ferrs)))

	rep.start(len(files), fmt.Sprintf("discovered %d files", len(files)))

	results := make([]fileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.workers())

	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = parseFile(f)
			rep.advance(f.Path)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		rep.finish("scan cancelled", err)
		return nil, fmt.Errorf("scanning source folders: %w", err)
	}
	if err := ctx.Err(); err != nil {
		rep.finish("scan cancelled", err)
		return nil, fmt.Errorf("scanning source folders: %w", err)
	}

	merged := newAccumulator()
	result := &ScanResult{Errors: ferrs}
	for i, r := range results {
		if r.err != nil {
			log.Debug("skipping unreadable file", zap.String("path", files[i].Path), zap.Error(r.err))
			result.Errors = append(result.Errors, FileError{Path: files[i].Path, Message: r.err.Error()})
			continue
		}
		merged.merge(r.acc)
		result.ProcessedFiles++
		result.TotalRecords += r.records
	}

	result.Columns = merged.columns()
	result.Fingerprint = Fingerprint(result.Columns)

	log.Info("scan complete",
		zap.Int("processed_files", result.ProcessedFiles),
		zap.Int("total_records", result.TotalRecords),
		zap.Int("columns", len(result.Columns)),
		zap.Int("errors", len(result.Errors)))

	rep.finish(fmt.Sprintf("scanned %d files, %d records", result.ProcessedFiles, result.TotalRecords), nil)
	return result, nil
}

// parseFile reads and flattens a single file into its own accumulator.
func parseFile(f SourceFile) fileResult {
	records, err := readRecords(f)
	if err != nil {
		return fileResult{err: err}
	}
	acc := newAccumulator()
	for _, rec := range records {
		acc.observeRecord(rec)
	}
	return fileResult{acc: acc, records: len(records)}
}
