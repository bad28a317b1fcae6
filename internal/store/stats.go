package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/ahmedgfathy/contaboo/internal/patterns"
)

// Stats returns extraction coverage and breakdowns for the whole store.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{
		ByPurpose:      map[string]int64{},
		ByPropertyType: map[string]int64{},
		TopAreas:       []AreaCount{},
	}

	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN purpose != 'unknown' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN area != '' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN price IS NOT NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN broker_mobile != '' OR broker_name != '' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN quality_status != '' THEN 1 ELSE 0 END), 0),
			AVG(CASE WHEN quality_status != '' THEN quality_score END)
		FROM properties`).Scan(&st.Total, &st.WithPurpose, &st.WithArea, &st.WithPrice,
		&st.WithBroker, &st.Analyzed, &avg)
	if err != nil {
		return nil, fmt.Errorf("counting listings: %w", err)
	}
	if avg.Valid {
		st.AvgQuality = avg.Float64
	}

	if err := s.groupCounts(ctx, "purpose", st.ByPurpose); err != nil {
		return nil, err
	}
	if err := s.groupCounts(ctx, "property_type", st.ByPropertyType); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT area, COUNT(*) AS n FROM properties WHERE area != ''
		 GROUP BY area ORDER BY n DESC, area ASC LIMIT ?`, topAreaLimit)
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

	if st.PatternVersion, err = s.getMetaValue("pattern_version"); err != nil {
		return nil, fmt.Errorf("reading pattern version: %w", err)
	}

	if s.dbPath != ":memory:" {
		if info, err := os.Stat(s.dbPath); err == nil {
			st.DBSizeBytes = info.Size()
		}
	}
	return st, nil
}

// groupCounts fills dst with row counts grouped by a fixed column name.
func (s *SQLiteStore) groupCounts(ctx context.Context, column string, dst map[string]int64) error {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s, COUNT(*) FROM properties GROUP BY %s`, column, column))
	if err != nil {
		return fmt.Errorf("grouping by %s: %w", column, err)
	}
	defer rows.Close()
	for rows.Next() {
		var k string
		var n int64
		if err := rows.Scan(&k, &n); err != nil {
			return fmt.Errorf("scanning %s count: %w", column, err)
		}
		dst[k] = n
	}
	return rows.Err()
}

// ReExtract recomputes extracted fields for every row, batchSize rows per
// transaction, and records the pattern version the rows now reflect.
func (s *SQLiteStore) ReExtract(ctx context.Context) (int, error) {
	changed := 0
	var lastID int64
	for {
		batch, err := s.extractionBatch(ctx, lastID)
		if err != nil {
			return changed, err
		}
		if len(batch) == 0 {
			break
		}
		lastID = batch[len(batch)-1].ID

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return changed, fmt.Errorf("beginning re-extract batch: %w", err)
		}
		for _, p := range batch {
			before := p.Fields()
			applyExtraction(s.extractor, p)
			if sameFields(before, p.Fields()) {
				continue
			}
			_, err := tx.ExecContext(ctx,
				`UPDATE properties SET purpose = ?, area = ?, price = ?, price_range = ?, broker_name = ?,
					broker_mobile = ?, property_type = ?, keywords = ?, search_text = ?, updated_at = ?
				 WHERE id = ?`,
				string(p.Purpose), p.Area, priceArg(p.Price), string(p.PriceRange), p.BrokerName,
				p.BrokerMobile, string(p.PropertyType), marshalKeywords(p.Keywords), searchText(p),
				time.Now().UTC(), p.ID)
			if err != nil {
				tx.Rollback()
				return changed, fmt.Errorf("re-extracting listing %d: %w", p.ID, err)
			}
			changed++
		}
		if err := tx.Commit(); err != nil {
			return changed, fmt.Errorf("committing re-extract batch: %w", err)
		}
		s.logger.Debug("re-extracted batch", zap.Int64("through_id", lastID), zap.Int("changed", changed))
	}

	if err := s.setMetaValue("pattern_version", patterns.Version); err != nil {
		return changed, fmt.Errorf("recording pattern version: %w", err)
	}
	return changed, nil
}

func (s *SQLiteStore) extractionBatch(ctx context.Context, afterID int64) ([]*Property, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+propertyColumns+` FROM properties WHERE id > ? ORDER BY id LIMIT ?`,
		afterID, s.batchSize)
	if err != nil {
		return nil, fmt.Errorf("loading re-extract batch: %w", err)
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
