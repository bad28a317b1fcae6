package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ahmedgfathy/contaboo/internal/extract"
	"github.com/ahmedgfathy/contaboo/internal/metrics"
	"github.com/ahmedgfathy/contaboo/internal/quality"
	"github.com/ahmedgfathy/contaboo/internal/store"
)

// Engine runs imports: detect format, parse, analyze, optionally clean, store.
type Engine struct {
	store     store.Store
	analyzer  *quality.Analyzer
	logger    *zap.Logger
	metrics   *metrics.Registry
	importers []Importer
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger. The default discards everything.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics records extraction, defect and row outcomes in r.
func WithMetrics(r *metrics.Registry) EngineOption {
	return func(e *Engine) { e.metrics = r }
}

// WithAnalyzer replaces the default quality analyzer.
func WithAnalyzer(a *quality.Analyzer) EngineOption {
	return func(e *Engine) {
		if a != nil {
			e.analyzer = a
		}
	}
}

// WithExtractor sets the pipeline used to parse chat exports.
func WithExtractor(x *extract.Pipeline) EngineOption {
	return func(e *Engine) {
		for _, imp := range e.importers {
			if w, ok := imp.(*WhatsAppImporter); ok {
				w.Pipeline = x
			}
		}
	}
}

// NewEngine creates an import engine writing to s. s may be nil for format
// detection only.
func NewEngine(s store.Store, opts ...EngineOption) *Engine {
	e := &Engine{
		store:    s,
		analyzer: quality.NewAnalyzer(),
		logger:   zap.NewNop(),
		importers: []Importer{
			&WhatsAppImporter{},
			&CSVImporter{},
			&JSONImporter{},
			&HTMLImporter{},
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// detectImporter picks an importer by file extension.
func (e *Engine) detectImporter(path string) Importer {
	for _, imp := range e.importers {
		if imp.CanHandle(path) {
			return imp
		}
	}
	return nil
}

// sniffFormat looks at the first bytes of a file with an unknown extension.
func (e *Engine) sniffFormat(path string) Importer {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	buf := make([]byte, 4096)
	n, _ := io.ReadFull(f, buf)
	head := strings.TrimSpace(strings.TrimPrefix(string(buf[:n]), "\ufeff"))
	if head == "" {
		return nil
	}

	lower := strings.ToLower(head)
	switch {
	case head[0] == '{' || head[0] == '[':
		return e.importerFor("json")
	case strings.HasPrefix(lower, "<!doctype html") || strings.HasPrefix(lower, "<html") ||
		(head[0] == '<' && strings.Contains(lower, "</")):
		return e.importerFor("html")
	}
	first := strings.SplitN(head, "\n", 2)[0]
	if _, ok := extract.ParseChatLine(first); ok {
		return e.importerFor("whatsapp")
	}
	return nil
}

func (e *Engine) importerFor(format string) Importer {
	for _, imp := range e.importers {
		if imp.Format() == format {
			return imp
		}
	}
	return nil
}

// isBinaryFile reports whether the start of a file contains a NUL byte.
func isBinaryFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	buf := make([]byte, 8000)
	n, _ := io.ReadFull(f, buf)
	return bytes.IndexByte(buf[:n], 0) >= 0
}

// ImportFile imports one file. A directory is imported with ImportDir.
func (e *Engine) ImportFile(ctx context.Context, path string, opts ImportOptions) (*ImportResult, error) {
	opts.normalize()

	info, err := os.Lstat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("resolving symlink %s: %w", path, err)
		}
		if target.IsDir() {
			return nil, fmt.Errorf("refusing to import symlinked directory %s", path)
		}
		info = target
	}
	if info.IsDir() {
		return e.ImportDir(ctx, path, opts)
	}

	result := &ImportResult{FilesScanned: 1}
	skip := func(msg string) (*ImportResult, error) {
		result.FilesSkipped++
		result.Errors = append(result.Errors, ImportError{File: path, Message: msg})
		e.logger.Debug("skipping file", zap.String("file", path), zap.String("reason", msg))
		return result, nil
	}

	if info.Size() > opts.MaxFileSize {
		return skip(fmt.Sprintf("file exceeds %d bytes", opts.MaxFileSize))
	}
	if isBinaryFile(path) {
		return skip("binary file")
	}

	imp := e.detectImporter(path)
	if imp == nil {
		imp = e.sniffFormat(path)
	}
	if imp == nil {
		return skip("unsupported format")
	}

	listings, err := imp.Import(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("importing %s: %w", path, err)
	}
	result.FilesImported++

	if err := e.processAll(ctx, imp.Format(), listings, opts, result); err != nil {
		return result, err
	}

	e.logger.Info("imported file",
		zap.String("file", path),
		zap.String("format", imp.Format()),
		zap.Int("listings", len(listings)),
		zap.Int("new", result.ListingsNew),
		zap.Int("duplicate", result.ListingsDuplicate),
		zap.Int("failed", result.ListingsFailed),
	)
	return result, nil
}

// processAll runs listings through a bounded worker pool. Per-listing
// failures are recorded in result; only cancellation stops the pool.
func (e *Engine) processAll(ctx context.Context, format string, listings []RawListing, opts ImportOptions, result *ImportResult) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	var mu sync.Mutex
	for _, raw := range listings {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			local := &ImportResult{}
			if err := e.processListing(gctx, format, raw, opts, local); err != nil {
				local.ListingsFailed++
				local.Errors = append(local.Errors, ImportError{
					File:    raw.SourceFile,
					Line:    raw.SourceLine,
					Message: err.Error(),
				})
				e.metrics.ObserveImportRow(format, metrics.StatusFailed)
				e.logger.Warn("listing failed",
					zap.String("file", raw.SourceFile),
					zap.Int("line", raw.SourceLine),
					zap.Error(err),
				)
			}
			mu.Lock()
			result.Add(local)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Workers finish in any order.
	sort.SliceStable(result.Errors, func(i, j int) bool {
		if result.Errors[i].File != result.Errors[j].File {
			return result.Errors[i].File < result.Errors[j].File
		}
		return result.Errors[i].Line < result.Errors[j].Line
	})
	return ctx.Err()
}

// processListing analyzes one listing, cleans it if asked, and stores it
// with its quality score. Duplicates are counted, not failed.
func (e *Engine) processListing(ctx context.Context, format string, raw RawListing, opts ImportOptions, result *ImportResult) error {
	_, err := e.storeListing(ctx, format, raw, opts, result)
	return err
}

// storeListing does the work of processListing and returns the listing as
// built. Its ID is set once stored, or to the existing row on a duplicate; a
// dry run leaves it zero.
func (e *Engine) storeListing(ctx context.Context, format string, raw RawListing, opts ImportOptions, result *ImportResult) (*store.Property, error) {
	input := raw.Input
	if input == nil {
		input = quality.Text(raw.Message)
	}

	report, err := e.analyzer.Analyze(input)
	if err != nil {
		return nil, fmt.Errorf("analyzing listing: %w", err)
	}
	message := raw.Message

	if opts.Clean {
		cleaned := e.analyzer.AutoClean(input)
		if cleaned.Improvement > 0 {
			input = cleaned.Cleaned
			report = cleaned.After
			message = messageFor(input)
			result.ListingsCleaned++
		}
	}
	if strings.TrimSpace(message) == "" {
		return nil, errors.New("listing has no text")
	}

	for _, f := range report.Findings {
		e.metrics.ObserveDefect(string(f.Kind))
	}

	p := &store.Property{
		Message:   message,
		Sender:    raw.Sender,
		SentAt:    raw.SentAt,
		Source:    raw.SourceFile,
		SourceRef: sourceRef(raw),
	}

	if opts.DryRun || e.store == nil {
		existing, err := e.findExisting(ctx, p)
		if err != nil {
			return nil, err
		}
		if existing {
			result.ListingsDuplicate++
			return p, nil
		}
		result.ListingsNew++
		result.QualityTotal += report.Score
		return p, nil
	}

	id, err := e.store.AddProperty(ctx, p)
	if errors.Is(err, store.ErrDuplicate) {
		p.ID = id
		result.ListingsDuplicate++
		e.metrics.ObserveImportRow(format, metrics.StatusDuplicate)
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storing listing: %w", err)
	}
	if err := e.store.SetQuality(ctx, id, report.Score, string(report.Status)); err != nil {
		return nil, fmt.Errorf("recording quality: %w", err)
	}
	p.ID = id
	p.QualityScore = report.Score
	p.QualityStatus = string(report.Status)

	result.ListingsNew++
	result.QualityTotal += report.Score
	e.metrics.ObserveImportRow(format, metrics.StatusImported)
	e.metrics.ObserveExtraction(string(p.Purpose), string(p.PropertyType))
	e.metrics.ObserveQuality(report.Score)

	e.logger.Debug("stored listing",
		zap.Int64("id", id),
		zap.String("ref", p.SourceRef),
		zap.String("purpose", string(p.Purpose)),
		zap.Int("score", report.Score),
	)
	return p, nil
}

// ImportListing runs a single listing through the same path as a file row
// and returns it as stored. source labels the metrics; raw.SourceFile is
// what deduplication keys on.
func (e *Engine) ImportListing(ctx context.Context, source string, raw RawListing, opts ImportOptions) (*store.Property, *ImportResult, error) {
	result := &ImportResult{}
	p, err := e.storeListing(ctx, source, raw, opts, result)
	if err != nil {
		e.metrics.ObserveImportRow(source, metrics.StatusFailed)
		return nil, result, err
	}
	return p, result, nil
}

func (e *Engine) findExisting(ctx context.Context, p *store.Property) (bool, error) {
	if e.store == nil {
		return false, nil
	}
	existing, err := e.store.FindByHash(ctx, store.HashPropertyContent(p.Message, p.Source))
	if err != nil {
		return false, err
	}
	return existing != nil, nil
}

// messageFor renders the stored text of a cleaned input.
func messageFor(in quality.Input) string {
	switch v := in.(type) {
	case quality.Text:
		return string(v)
	case quality.Markup:
		return MarkupText(string(v))
	case quality.Record:
		return recordMessage(v)
	}
	return ""
}

func sourceRef(raw RawListing) string {
	ref := filepath.Base(raw.SourceFile)
	if raw.SourceLine > 0 {
		ref = fmt.Sprintf("%s:%d", ref, raw.SourceLine)
	}
	if raw.SourceSection != "" {
		ref += "#" + raw.SourceSection
	}
	return ref
}

// ImportDir imports every supported file in dir. Hidden files and
// directories are skipped; subdirectories only with opts.Recursive.
func (e *Engine) ImportDir(ctx context.Context, dir string, opts ImportOptions) (*ImportResult, error) {
	opts.normalize()
	result := &ImportResult{}

	var files []string
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			result.Errors = append(result.Errors, ImportError{File: path, Message: err.Error()})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != dir && !opts.Recursive {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if walkErr != nil {
		return result, fmt.Errorf("walking %s: %w", dir, walkErr)
	}

	for i, path := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if opts.ProgressFn != nil {
			opts.ProgressFn(i+1, len(files), path)
		}
		r, err := e.ImportFile(ctx, path, opts)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			result.FilesScanned++
			result.FilesSkipped++
			result.Errors = append(result.Errors, ImportError{File: path, Message: err.Error()})
			e.logger.Warn("file failed", zap.String("file", path), zap.Error(err))
			continue
		}
		result.Add(r)
	}
	return result, nil
}

// FormatImportResult renders a human-readable summary.
func FormatImportResult(r *ImportResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Files:    %d scanned, %d imported, %d skipped\n", r.FilesScanned, r.FilesImported, r.FilesSkipped)
	fmt.Fprintf(&b, "Listings: %d new, %d duplicate, %d failed", r.ListingsNew, r.ListingsDuplicate, r.ListingsFailed)
	if r.ListingsCleaned > 0 {
		fmt.Fprintf(&b, ", %d cleaned", r.ListingsCleaned)
	}
	b.WriteString("\n")
	if r.ListingsNew > 0 {
		fmt.Fprintf(&b, "Quality:  %.1f average\n", r.AverageQuality())
	}
	if len(r.Errors) > 0 {
		fmt.Fprintf(&b, "Errors (%d):\n", len(r.Errors))
		for _, ie := range r.Errors {
			if ie.Line > 0 {
				fmt.Fprintf(&b, "  %s:%d: %s\n", ie.File, ie.Line, ie.Message)
			} else {
				fmt.Fprintf(&b, "  %s: %s\n", ie.File, ie.Message)
			}
		}
	}
	return b.String()
}
