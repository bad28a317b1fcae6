// Package store persists listings for Contaboo.
//
// Every listing row keeps the raw message text with its provenance, and the
// structured fields extracted from it (purpose, area, price, broker, type).
// Extraction runs inside the store on every insert and update, so the
// structured columns can never drift from the text they came from.
//
// Two backends implement Store: SQLite (modernc.org/sqlite, the default,
// with an FTS5 index for search) and PostgreSQL (pgx) when a postgres://
// URL is configured.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ahmedgfathy/contaboo/internal/extract"
	"github.com/ahmedgfathy/contaboo/internal/patterns"

	_ "modernc.org/sqlite"
)

// DefaultDBPath is the default database location.
const DefaultDBPath = "~/.contaboo/contaboo.db"

// DefaultBatchSize is the default batch size for bulk operations.
const DefaultBatchSize = 500

var (
	// ErrNotFound is returned when a listing does not exist.
	ErrNotFound = errors.New("store: listing not found")
	// ErrDuplicate is returned by AddProperty when the same message from the
	// same source is already stored. The existing ID is returned with it.
	ErrDuplicate = errors.New("store: duplicate listing")
)

// Property is one stored listing.
type Property struct {
	ID          int64      `json:"id"`
	Message     string     `json:"message"`
	Sender      string     `json:"sender,omitempty"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	Source      string     `json:"source"`
	SourceRef   string     `json:"source_ref,omitempty"`
	ContentHash string     `json:"content_hash"`

	Purpose      extract.Purpose       `json:"purpose"`
	Area         string                `json:"area,omitempty"`
	Price        *float64              `json:"price"`
	PriceRange   extract.PriceRange    `json:"price_range"`
	BrokerName   string                `json:"broker_name,omitempty"`
	BrokerMobile string                `json:"broker_mobile,omitempty"`
	PropertyType patterns.PropertyType `json:"property_type"`
	Keywords     []string              `json:"keywords"`

	// QualityStatus is empty until the listing has been analyzed.
	QualityScore  int    `json:"quality_score"`
	QualityStatus string `json:"quality_status,omitempty"`

	ImportedAt time.Time `json:"imported_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Fields returns the extracted fields of p.
func (p *Property) Fields() extract.Fields {
	return extract.Fields{
		Purpose:      p.Purpose,
		Area:         p.Area,
		Price:        p.Price,
		PriceRange:   p.PriceRange,
		BrokerName:   p.BrokerName,
		BrokerMobile: p.BrokerMobile,
		PropertyType: p.PropertyType,
		Keywords:     p.Keywords,
	}
}

// ListOpts controls pagination and filtering for ListProperties.
type ListOpts struct {
	Limit        int
	Offset       int
	Purpose      extract.Purpose
	Area         string
	PropertyType patterns.PropertyType
	Source       string
	MinPrice     float64
	MaxPrice     float64
}

// AreaCount is one row of the top-areas breakdown.
type AreaCount struct {
	Area  string `json:"area"`
	Count int64  `json:"count"`
}

// Stats summarizes extraction coverage over the whole store.
type Stats struct {
	Total          int64            `json:"total"`
	WithPurpose    int64            `json:"with_purpose"`
	WithArea       int64            `json:"with_area"`
	WithPrice      int64            `json:"with_price"`
	WithBroker     int64            `json:"with_broker"`
	Analyzed       int64            `json:"analyzed"`
	AvgQuality     float64          `json:"avg_quality"`
	ByPurpose      map[string]int64 `json:"by_purpose"`
	ByPropertyType map[string]int64 `json:"by_property_type"`
	TopAreas       []AreaCount      `json:"top_areas"`
	PatternVersion string           `json:"pattern_version"`
	DBSizeBytes    int64            `json:"db_size_bytes,omitempty"`
}

// topAreaLimit bounds Stats.TopAreas.
const topAreaLimit = 10

// StoreConfig holds configuration for NewStore and Open.
type StoreConfig struct {
	DBPath      string
	DatabaseURL string
	BatchSize   int
	Extractor   *extract.Pipeline
	Logger      *zap.Logger // nil discards
}

// Store defines the listing storage interface.
type Store interface {
	AddProperty(ctx context.Context, p *Property) (int64, error)
	GetProperty(ctx context.Context, id int64) (*Property, error)
	UpdateMessage(ctx context.Context, id int64, message string) (*Property, error)
	SetQuality(ctx context.Context, id int64, score int, status string) error
	DeleteProperty(ctx context.Context, id int64) error
	ListProperties(ctx context.Context, opts ListOpts) ([]*Property, error)
	SearchProperties(ctx context.Context, query string, limit int) ([]*Property, error)
	FindByHash(ctx context.Context, hash string) (*Property, error)

	Stats(ctx context.Context) (*Stats, error)
	// ReExtract recomputes the extracted fields of every row with the
	// current patterns and returns how many rows changed.
	ReExtract(ctx context.Context) (int, error)

	Close() error
}

// Open returns the PostgreSQL store when cfg.DatabaseURL is a postgres URL
// and the SQLite store otherwise.
func Open(ctx context.Context, cfg StoreConfig) (Store, error) {
	if IsPostgresURL(cfg.DatabaseURL) {
		s, err := NewPostgresStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return NewStore(cfg)
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

// IsPostgresURL reports whether u selects the PostgreSQL backend.
func IsPostgresURL(u string) bool {
	u = strings.TrimSpace(u)
	return strings.HasPrefix(u, "postgres://") || strings.HasPrefix(u, "postgresql://")
}

// SQLiteStore implements Store using SQLite + FTS5.
type SQLiteStore struct {
	db        *sql.DB
	dbPath    string
	batchSize int
	extractor *extract.Pipeline
	logger    *zap.Logger
}

// NewStore creates a new SQLite-backed Store.
// Pass ":memory:" for in-memory databases (testing).
func NewStore(cfg StoreConfig) (Store, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = expandPath(DefaultDBPath)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Extractor == nil {
		cfg.Extractor = extract.NewPipeline()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	// Create parent directory for non-memory databases
	if cfg.DBPath != ":memory:" {
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	if cfg.DBPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{
		db:        db,
		dbPath:    cfg.DBPath,
		batchSize: cfg.BatchSize,
		extractor: cfg.Extractor,
		logger:    cfg.Logger,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Vacuum runs VACUUM on the database. Manual only, never auto-vacuum.
func (s *SQLiteStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// applyExtraction overwrites the extracted columns of p from its message.
func applyExtraction(x *extract.Pipeline, p *Property) {
	f := x.Extract(p.Message)
	p.Purpose = f.Purpose
	p.Area = f.Area
	p.Price = f.Price
	p.PriceRange = f.PriceRange
	p.BrokerName = f.BrokerName
	p.BrokerMobile = f.BrokerMobile
	p.PropertyType = f.PropertyType
	p.Keywords = f.Keywords
}

// sameFields reports whether re-extraction changed anything worth writing.
func sameFields(a, b extract.Fields) bool {
	if a.Purpose != b.Purpose || a.Area != b.Area || a.PriceRange != b.PriceRange ||
		a.BrokerName != b.BrokerName || a.BrokerMobile != b.BrokerMobile || a.PropertyType != b.PropertyType {
		return false
	}
	if (a.Price == nil) != (b.Price == nil) || (a.Price != nil && *a.Price != *b.Price) {
		return false
	}
	return strings.Join(a.Keywords, "\x00") == strings.Join(b.Keywords, "\x00")
}

// searchText is the folded text indexed for search: the message plus the
// extracted area and broker name.
func searchText(p *Property) string {
	return patterns.Fold(strings.Join([]string{p.Message, p.Area, p.BrokerName}, " "))
}

func marshalKeywords(kw []string) string {
	if len(kw) == 0 {
		return "[]"
	}
	b, err := json.Marshal(kw)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func unmarshalKeywords(s string) []string {
	out := []string{}
	if s == "" {
		return out
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return []string{}
	}
	return out
}

// searchTerms splits a query into folded terms.
func searchTerms(query string) []string {
	return strings.Fields(patterns.Fold(query))
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
