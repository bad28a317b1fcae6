package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ahmedgfathy/contaboo/internal/extract"
	"github.com/ahmedgfathy/contaboo/internal/patterns"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on PostgreSQL. Search uses ILIKE over the
// folded search text instead of FTS5.
type PostgresStore struct {
	db        *pgxpool.Pool
	batchSize int
	extractor *extract.Pipeline
	logger    *zap.Logger
}

var postgresDDL = []string{
	`CREATE TABLE IF NOT EXISTS properties (
		id             BIGSERIAL PRIMARY KEY,
		message        TEXT NOT NULL,
		sender         TEXT NOT NULL DEFAULT '',
		sent_at        TIMESTAMPTZ,
		source         TEXT NOT NULL DEFAULT '',
		source_ref     TEXT NOT NULL DEFAULT '',
		content_hash   TEXT UNIQUE NOT NULL,
		purpose        TEXT NOT NULL DEFAULT 'unknown' CHECK (purpose IN ('sale','rent','wanted','unknown')),
		area           TEXT NOT NULL DEFAULT '',
		price          DOUBLE PRECISION,
		price_range    TEXT NOT NULL DEFAULT 'unknown',
		broker_name    TEXT NOT NULL DEFAULT '',
		broker_mobile  TEXT NOT NULL DEFAULT '',
		property_type  TEXT NOT NULL DEFAULT 'other',
		keywords       JSONB NOT NULL DEFAULT '[]',
		search_text    TEXT NOT NULL DEFAULT '',
		quality_score  INTEGER NOT NULL DEFAULT 0,
		quality_status TEXT NOT NULL DEFAULT '',
		imported_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_properties_purpose ON properties(purpose)`,
	`CREATE INDEX IF NOT EXISTS idx_properties_area ON properties(area)`,
	`CREATE INDEX IF NOT EXISTS idx_properties_price ON properties(price)`,
	`CREATE INDEX IF NOT EXISTS idx_properties_broker_mobile ON properties(broker_mobile)`,
	`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT)`,
	`INSERT INTO meta (key, value) VALUES ('schema_version', '2') ON CONFLICT (key) DO NOTHING`,
}

// NewPostgresStore connects to cfg.DatabaseURL and creates the schema.
func NewPostgresStore(ctx context.Context, cfg StoreConfig) (*PostgresStore, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Extractor == nil {
		cfg.Extractor = extract.NewPipeline()
	}
	db, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	for _, stmt := range postgresDDL {
		if _, err := db.Exec(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("executing migration %q: %w", truncate(stmt, 80), err)
		}
	}
	if _, err := db.Exec(ctx,
		`INSERT INTO meta (key, value) VALUES ('pattern_version', $1) ON CONFLICT (key) DO NOTHING`,
		patterns.Version); err != nil {
		db.Close()
		return nil, fmt.Errorf("seeding pattern version: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("opened postgres store", zap.Int32("max_conns", db.Config().MaxConns))
	return &PostgresStore{db: db, batchSize: cfg.BatchSize, extractor: cfg.Extractor, logger: logger}, nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

func scanPGProperty(r pgx.Row) (*Property, error) {
	p := &Property{}
	var purpose, priceRange, propType string
	if err := r.Scan(&p.ID, &p.Message, &p.Sender, &p.SentAt, &p.Source, &p.SourceRef, &p.ContentHash,
		&purpose, &p.Area, &p.Price, &priceRange, &p.BrokerName, &p.BrokerMobile, &propType, &p.Keywords,
		&p.QualityScore, &p.QualityStatus, &p.ImportedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Purpose = extract.Purpose(purpose)
	p.PriceRange = extract.PriceRange(priceRange)
	p.PropertyType = patterns.PropertyType(propType)
	if p.Keywords == nil {
		p.Keywords = []string{}
	}
	return p, nil
}

func collectPG(rows pgx.Rows) ([]*Property, error) {
	defer rows.Close()
	out := []*Property{}
	for rows.Next() {
		p, err := scanPGProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning listing row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func isPGUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func keywordsArg(kw []string) []string {
	if kw == nil {
		return []string{}
	}
	return kw
}

// AddProperty implements Store.
func (s *PostgresStore) AddProperty(ctx context.Context, p *Property) (int64, error) {
	if strings.TrimSpace(p.Message) == "" {
		return 0, fmt.Errorf("listing message cannot be empty")
	}
	if p.ContentHash == "" {
		p.ContentHash = HashPropertyContent(p.Message, p.Source)
	}
	applyExtraction(s.extractor, p)
	now := time.Now().UTC()

	var id int64
	err := s.db.QueryRow(ctx,
		`INSERT INTO properties (message, sender, sent_at, source, source_ref, content_hash,
			purpose, area, price, price_range, broker_name, broker_mobile, property_type, keywords,
			search_text, quality_score, quality_status, imported_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $18)
		 ON CONFLICT (content_hash) DO NOTHING
		 RETURNING id`,
		p.Message, p.Sender, p.SentAt, p.Source, p.SourceRef, p.ContentHash,
		string(p.Purpose), p.Area, p.Price, string(p.PriceRange), p.BrokerName, p.BrokerMobile,
		string(p.PropertyType), keywordsArg(p.Keywords), searchText(p),
		p.QualityScore, p.QualityStatus, now,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, ferr := s.FindByHash(ctx, p.ContentHash)
		if ferr != nil {
			return 0, ferr
		}
		if existing != nil {
			return existing.ID, ErrDuplicate
		}
		return 0, fmt.Errorf("inserting listing: conflict without existing row")
	}
	if err != nil {
		return 0, fmt.Errorf("inserting listing: %w", err)
	}
	p.ID = id
	p.ImportedAt = now
	p.UpdatedAt = now
	return id, nil
}

// GetProperty implements Store.
func (s *PostgresStore) GetProperty(ctx context.Context, id int64) (*Property, error) {
	p, err := scanPGProperty(s.db.QueryRow(ctx,
		`SELECT `+propertyColumns+` FROM properties WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("listing %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting listing %d: %w", id, err)
	}
	return p, nil
}

// UpdateMessage implements Store.
func (s *PostgresStore) UpdateMessage(ctx context.Context, id int64, message string) (*Property, error) {
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("listing message cannot be empty")
	}
	p, err := s.GetProperty(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Message = message
	p.ContentHash = HashPropertyContent(message, p.Source)
	applyExtraction(s.extractor, p)
	p.UpdatedAt = time.Now().UTC()

	_, err = s.db.Exec(ctx,
		`UPDATE properties SET message = $1, content_hash = $2, purpose = $3, area = $4, price = $5,
			price_range = $6, broker_name = $7, broker_mobile = $8, property_type = $9, keywords = $10,
			search_text = $11, updated_at = $12
		 WHERE id = $13`,
		p.Message, p.ContentHash, string(p.Purpose), p.Area, p.Price, string(p.PriceRange),
		p.BrokerName, p.BrokerMobile, string(p.PropertyType), keywordsArg(p.Keywords),
		searchText(p), p.UpdatedAt, id)
	if isPGUniqueViolation(err) {
		return nil, fmt.Errorf("updating listing %d: %w", id, ErrDuplicate)
	}
	if err != nil {
		return nil, fmt.Errorf("updating listing %d: %w", id, err)
	}
	return p, nil
}

// SetQuality implements Store.
func (s *PostgresStore) SetQuality(ctx context.Context, id int64, score int, status string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE properties SET quality_score = $1, quality_status = $2, updated_at = NOW() WHERE id = $3`,
		score, status, id)
	if err != nil {
		return fmt.Errorf("setting quality of listing %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("listing %d: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteProperty implements Store.
func (s *PostgresStore) DeleteProperty(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM properties WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting listing %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("listing %d: %w", id, ErrNotFound)
	}
	return nil
}

// ListProperties implements Store.
func (s *PostgresStore) ListProperties(ctx context.Context, opts ListOpts) ([]*Property, error) {
	if opts.Limit <= 0 {
		opts.Limit = 100
	}
	query := `SELECT ` + propertyColumns + ` FROM properties WHERE TRUE`
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if opts.Purpose != "" {
		query += " AND purpose = " + arg(string(opts.Purpose))
	}
	if opts.Area != "" {
		query += " AND area = " + arg(opts.Area)
	}
	if opts.PropertyType != "" {
		query += " AND property_type = " + arg(string(opts.PropertyType))
	}
	if opts.Source != "" {
		query += " AND source = " + arg(opts.Source)
	}
	if opts.MinPrice > 0 {
		query += " AND price >= " + arg(opts.MinPrice)
	}
	if opts.MaxPrice > 0 {
		query += " AND price <= " + arg(opts.MaxPrice)
	}
	query += " ORDER BY imported_at DESC, id DESC LIMIT " + arg(opts.Limit) + " OFFSET " + arg(opts.Offset)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing properties: %w", err)
	}
	return collectPG(rows)
}

// SearchProperties implements Store. Every folded term must appear in the
// search text.
func (s *PostgresStore) SearchProperties(ctx context.Context, query string, limit int) ([]*Property, error) {
	terms := searchTerms(query)
	if len(terms) == 0 {
		return []*Property{}, nil
	}
	if limit <= 0 {
		limit = 20
	}
	sqlText := `SELECT ` + propertyColumns + ` FROM properties WHERE TRUE`
	args := []any{}
	for _, t := range terms {
		args = append(args, "%"+escapeLike(t)+"%")
		sqlText += fmt.Sprintf(" AND search_text ILIKE $%d", len(args))
	}
	args = append(args, limit)
	sqlText += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d", len(args))

	rows, err := s.db.Query(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("searching listings: %w", err)
	}
	return collectPG(rows)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// FindByHash implements Store.
func (s *PostgresStore) FindByHash(ctx context.Context, hash string) (*Property, error) {
	p, err := scanPGProperty(s.db.QueryRow(ctx,
		`SELECT `+propertyColumns+` FROM properties WHERE content_hash = $1`, hash))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding listing by hash: %w", err)
	}
	return p, nil
}

// Stats implements Store.
func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{
		ByPurpose:      map[string]int64{},
		ByPropertyType: map[string]int64{},
		TopAreas:       []AreaCount{},
	}
	var avg *float64
	err := s.db.QueryRow(ctx, `SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE purpose != 'unknown'),
			COUNT(*) FILTER (WHERE area != ''),
			COUNT(*) FILTER (WHERE price IS NOT NULL),
			COUNT(*) FILTER (WHERE broker_mobile != '' OR broker_name != ''),
			COUNT(*) FILTER (WHERE quality_status != ''),
			AVG(quality_score) FILTER (WHERE quality_status != '')
		FROM properties`).Scan(&st.Total, &st.WithPurpose, &st.WithArea, &st.WithPrice,
		&st.WithBroker, &st.Analyzed, &avg)
	if err != nil {
		return nil, fmt.Errorf("counting listings: %w", err)
	}
	if avg != nil {
		st.AvgQuality = *avg
	}

	for column, dst := range map[string]map[string]int64{"purpose": st.ByPurpose, "property_type": st.ByPropertyType} {
		rows, err := s.db.Query(ctx, fmt.Sprintf(`SELECT %s, COUNT(*) FROM properties GROUP BY %s`, column, column))
		if err != nil {
			return nil, fmt.Errorf("grouping by %s: %w", column, err)
		}
		for rows.Next() {
			var k string
			var n int64
			if err := rows.Scan(&k, &n); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning %s count: %w", column, err)
			}
			dst[k] = n
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	rows, err := s.db.Query(ctx,
		`SELECT area, COUNT(*) AS n FROM properties WHERE area != ''
		 GROUP BY area ORDER BY n DESC, area ASC LIMIT $1`, topAreaLimit)
	if err != nil {
		return nil, fmt.Errorf("counting areas: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ac AreaCount
		if err := rows.Scan(&ac.Area, &ac.Count); err != nil {
			return nil, fmt.Errorf("scanning area count: %w", err)
		}
		st.TopAreas = append(st.TopAreas, ac)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.db.QueryRow(ctx, `SELECT value FROM meta WHERE key = 'pattern_version'`).Scan(&st.PatternVersion); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("reading pattern version: %w", err)
	}
	return st, nil
}

// ReExtract implements Store. Changed rows of one batch are written with a
// single pgx.Batch inside a transaction.
func (s *PostgresStore) ReExtract(ctx context.Context) (int, error) {
	changed := 0
	var lastID int64
	for {
		rows, err := s.db.Query(ctx,
			`SELECT `+propertyColumns+` FROM properties WHERE id > $1 ORDER BY id LIMIT $2`,
			lastID, s.batchSize)
		if err != nil {
			return changed, fmt.Errorf("loading re-extract batch: %w", err)
		}
		batch, err := collectPG(rows)
		if err != nil {
			return changed, err
		}
		if len(batch) == 0 {
			break
		}
		lastID = batch[len(batch)-1].ID

		pb := &pgx.Batch{}
		for _, p := range batch {
			before := p.Fields()
			applyExtraction(s.extractor, p)
			if sameFields(before, p.Fields()) {
				continue
			}
			pb.Queue(`UPDATE properties SET purpose = $1, area = $2, price = $3, price_range = $4,
					broker_name = $5, broker_mobile = $6, property_type = $7, keywords = $8,
					search_text = $9, updated_at = NOW()
				 WHERE id = $10`,
				string(p.Purpose), p.Area, p.Price, string(p.PriceRange), p.BrokerName,
				p.BrokerMobile, string(p.PropertyType), keywordsArg(p.Keywords), searchText(p), p.ID)
		}
		if pb.Len() == 0 {
			continue
		}

		tx, err := s.db.Begin(ctx)
		if err != nil {
			return changed, fmt.Errorf("beginning re-extract batch: %w", err)
		}
		if err := tx.SendBatch(ctx, pb).Close(); err != nil {
			tx.Rollback(ctx)
			return changed, fmt.Errorf("re-extracting batch: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return changed, fmt.Errorf("committing re-extract batch: %w", err)
		}
		changed += pb.Len()
		s.logger.Debug("re-extracted batch", zap.Int64("through_id", lastID), zap.Int("changed", pb.Len()))
	}

	if _, err := s.db.Exec(ctx,
		`INSERT INTO meta (key, value) VALUES ('pattern_version', $1)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, patterns.Version); err != nil {
		return changed, fmt.Errorf("recording pattern version: %w", err)
	}
	return changed, nil
}
