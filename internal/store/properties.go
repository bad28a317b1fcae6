package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ahmedgfathy/contaboo/internal/extract"
	"github.com/ahmedgfathy/contaboo/internal/patterns"
)

const propertyColumns = `id, message, sender, sent_at, source, source_ref, content_hash,
	purpose, area, price, price_range, broker_name, broker_mobile, property_type, keywords,
	quality_score, quality_status, imported_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProperty(r rowScanner) (*Property, error) {
	p := &Property{}
	var sentAt sql.NullTime
	var price sql.NullFloat64
	var purpose, priceRange, propType, keywords string
	if err := r.Scan(&p.ID, &p.Message, &p.Sender, &sentAt, &p.Source, &p.SourceRef, &p.ContentHash,
		&purpose, &p.Area, &price, &priceRange, &p.BrokerName, &p.BrokerMobile, &propType, &keywords,
		&p.QualityScore, &p.QualityStatus, &p.ImportedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if sentAt.Valid {
		t := sentAt.Time
		p.SentAt = &t
	}
	if price.Valid {
		v := price.Float64
		p.Price = &v
	}
	p.Purpose = extract.Purpose(purpose)
	p.PriceRange = extract.PriceRange(priceRange)
	p.PropertyType = patterns.PropertyType(propType)
	p.Keywords = unmarshalKeywords(keywords)
	return p, nil
}

func priceArg(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func timeArg(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// AddProperty extracts fields from p.Message, then inserts the row.
// Computes content_hash automatically. If the same message from the same
// source already exists, the existing ID is returned with ErrDuplicate.
func (s *SQLiteStore) AddProperty(ctx context.Context, p *Property) (int64, error) {
	if strings.TrimSpace(p.Message) == "" {
		return 0, fmt.Errorf("listing message cannot be empty")
	}
	if p.ContentHash == "" {
		p.ContentHash = HashPropertyContent(p.Message, p.Source)
	}

	if existing, err := s.FindByHash(ctx, p.ContentHash); err != nil {
		return 0, err
	} else if existing != nil {
		return existing.ID, ErrDuplicate
	}

	applyExtraction(s.extractor, p)
	now := time.Now().UTC()

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO properties (message, sender, sent_at, source, source_ref, content_hash,
			purpose, area, price, price_range, broker_name, broker_mobile, property_type, keywords,
			search_text, quality_score, quality_status, imported_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Message, p.Sender, timeArg(p.SentAt), p.Source, p.SourceRef, p.ContentHash,
		string(p.Purpose), p.Area, priceArg(p.Price), string(p.PriceRange), p.BrokerName, p.BrokerMobile,
		string(p.PropertyType), marshalKeywords(p.Keywords), searchText(p),
		p.QualityScore, p.QualityStatus, now, now,
	)
	if err != nil {
		// Lost a race with an identical concurrent insert.
		if isUniqueViolation(err) {
			if existing, ferr := s.FindByHash(ctx, p.ContentHash); ferr == nil && existing != nil {
				return existing.ID, ErrDuplicate
			}
		}
		return 0, fmt.Errorf("inserting listing: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting last insert id: %w", err)
	}

	p.ID = id
	p.ImportedAt = now
	p.UpdatedAt = now
	return id, nil
}

// GetProperty retrieves a listing by ID.
func (s *SQLiteStore) GetProperty(ctx context.Context, id int64) (*Property, error) {
	p, err := scanProperty(s.db.QueryRowContext(ctx,
		`SELECT `+propertyColumns+` FROM properties WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("listing %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting listing %d: %w", id, err)
	}
	return p, nil
}

// UpdateMessage replaces the message of a listing and re-extracts its
// fields in the same write.
func (s *SQLiteStore) UpdateMessage(ctx context.Context, id int64, message string) (*Property, error) {
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

	_, err = s.db.ExecContext(ctx,
		`UPDATE properties SET message = ?, content_hash = ?, purpose = ?, area = ?, price = ?,
			price_range = ?, broker_name = ?, broker_mobile = ?, property_type = ?, keywords = ?,
			search_text = ?, updated_at = ?
		 WHERE id = ?`,
		p.Message, p.ContentHash, string(p.Purpose), p.Area, priceArg(p.Price), string(p.PriceRange),
		p.BrokerName, p.BrokerMobile, string(p.PropertyType), marshalKeywords(p.Keywords),
		searchText(p), p.UpdatedAt, id,
	)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("updating listing %d: %w", id, ErrDuplicate)
	}
	if err != nil {
		return nil, fmt.Errorf("updating listing %d: %w", id, err)
	}
	return p, nil
}

// SetQuality records the latest quality analysis of a listing.
func (s *SQLiteStore) SetQuality(ctx context.Context, id int64, score int, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE properties SET quality_score = ?, quality_status = ?, updated_at = ? WHERE id = ?`,
		score, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("setting quality of listing %d: %w", id, err)
	}
	return requireRow(res, id)
}

// DeleteProperty removes a listing.
func (s *SQLiteStore) DeleteProperty(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM properties WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting listing %d: %w", id, err)
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("listing %d: %w", id, ErrNotFound)
	}
	return nil
}

// ListProperties returns listings newest first.
func (s *SQLiteStore) ListProperties(ctx context.Context, opts ListOpts) ([]*Property, error) {
	if opts.Limit <= 0 {
		opts.Limit = 100
	}

	query := `SELECT ` + propertyColumns + ` FROM properties WHERE 1=1`
	args := []any{}

	if opts.Purpose != "" {
		query += " AND purpose = ?"
		args = append(args, string(opts.Purpose))
	}
	if opts.Area != "" {
		query += " AND area = ?"
		args = append(args, opts.Area)
	}
	if opts.PropertyType != "" {
		query += " AND property_type = ?"
		args = append(args, string(opts.PropertyType))
	}
	if opts.Source != "" {
		query += " AND source = ?"
		args = append(args, opts.Source)
	}
	if opts.MinPrice > 0 {
		query += " AND price >= ?"
		args = append(args, opts.MinPrice)
	}
	if opts.MaxPrice > 0 {
		query += " AND price <= ?"
		args = append(args, opts.MaxPrice)
	}

	query += " ORDER BY imported_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing properties: %w", err)
	}
	defer rows.Close()

	var out []*Property
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning listing row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ftsQuery quotes every folded term so user input can never be read as
// FTS5 syntax. Terms are ANDed.
func ftsQuery(query string) string {
	terms := searchTerms(query)
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		quoted = append(quoted, `"`+strings.ReplaceAll(t, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}

// SearchProperties runs a full-text search over message, area and broker
// name. Arabic spelling variants match after folding.
func (s *SQLiteStore) SearchProperties(ctx context.Context, query string, limit int) ([]*Property, error) {
	q := ftsQuery(query)
	if q == "" {
		return []*Property{}, nil
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+prefixColumns("p.")+`
		 FROM properties_fts f JOIN properties p ON p.id = f.rowid
		 WHERE properties_fts MATCH ?
		 ORDER BY f.rank, p.id DESC
		 LIMIT ?`, q, limit)
	if err != nil {
		return nil, fmt.Errorf("searching listings: %w", err)
	}
	defer rows.Close()

	out := []*Property{}
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func prefixColumns(prefix string) string {
	cols := strings.Split(propertyColumns, ",")
	for i, c := range cols {
		cols[i] = prefix + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

// FindByHash returns the listing with the given content hash, or nil.
func (s *SQLiteStore) FindByHash(ctx context.Context, hash string) (*Property, error) {
	p, err := scanProperty(s.db.QueryRowContext(ctx,
		`SELECT `+propertyColumns+` FROM properties WHERE content_hash = ?`, hash))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding listing by hash: %w", err)
	}
	return p, nil
}
