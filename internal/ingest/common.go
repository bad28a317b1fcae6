package ingest

import (
	"context"
	"time"

	"github.com/ahmedgfathy/contaboo/internal/quality"
)

// RawListing is one parsed listing ready for analysis and storage.
type RawListing struct {
	Message       string        // Text stored and extracted from
	Input         quality.Input // Shape the defect detector sees; nil means Text(Message)
	Sender        string        // Chat sender, if any
	SentAt        *time.Time    // Chat timestamp, if any
	SourceFile    string        // Absolute path to source file
	SourceLine    int           // Starting line number (1-indexed), 0 when unknown
	SourceSection string        // Row, card or message index inside the file
}

// Importer handles a specific file format.
type Importer interface {
	// Format names the importer in metrics and output.
	Format() string

	// CanHandle returns true if this importer supports the given file path.
	CanHandle(path string) bool

	// Import parses the file and returns its listings.
	Import(ctx context.Context, path string) ([]RawListing, error)
}

// ImportResult summarizes an import operation.
type ImportResult struct {
	FilesScanned      int
	FilesImported     int
	FilesSkipped      int
	ListingsNew       int
	ListingsDuplicate int
	ListingsCleaned   int
	ListingsFailed    int
	QualityTotal      int // sum of scores, for the average
	Errors            []ImportError
}

// Add merges another ImportResult into this one.
func (r *ImportResult) Add(other *ImportResult) {
	r.FilesScanned += other.FilesScanned
	r.FilesImported += other.FilesImported
	r.FilesSkipped += other.FilesSkipped
	r.ListingsNew += other.ListingsNew
	r.ListingsDuplicate += other.ListingsDuplicate
	r.ListingsCleaned += other.ListingsCleaned
	r.ListingsFailed += other.ListingsFailed
	r.QualityTotal += other.QualityTotal
	r.Errors = append(r.Errors, other.Errors...)
}

// AverageQuality is the mean score of the new listings.
func (r *ImportResult) AverageQuality() float64 {
	if r.ListingsNew == 0 {
		return 0
	}
	return float64(r.QualityTotal) / float64(r.ListingsNew)
}

// ImportError records a non-fatal error during import.
type ImportError struct {
	File    string
	Line    int
	Message string
}

// ImportOptions configures an import operation.
type ImportOptions struct {
	Recursive   bool
	DryRun      bool
	Clean       bool  // run the auto-cleaner before storing
	Workers     int   // listing workers per file, default 4
	MaxFileSize int64 // bytes, default 10MB
	ProgressFn  func(current, total int, file string)
}

// DefaultMaxFileSize is 10MB.
const DefaultMaxFileSize = 10 * 1024 * 1024

// DefaultWorkers is the listing worker pool size.
const DefaultWorkers = 4

func (o *ImportOptions) normalize() {
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
}
