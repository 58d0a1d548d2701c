package sqlite

import (
	"context"
	"strings"
	"time"

	weather "github.com/eugener/zephyr/internal"
)

// InsertLookups batch-inserts lookup records.
func (s *Store) InsertLookups(ctx context.Context, records []weather.LookupRecord) error {
	if len(records) == 0 {
		return nil
	}

	// Single multi-row INSERT avoids N round-trips for large batches.
	placeholders := make([]string, len(records))
	args := make([]any, 0, len(records)*8)

	for i, r := range records {
		placeholders[i] = "(?, ?, ?, ?, ?, ?, ?, ?)"
		args = append(args,
			r.ID, r.City, string(r.Unit), boolToInt(r.CacheHit),
			r.StatusCode, r.LatencyMs, r.RequestID,
			r.CreatedAt.UTC().Format(time.RFC3339),
		)
	}

	query := `INSERT INTO lookups
		(id, city, unit, cache_hit, status_code, latency_ms, request_id, created_at)
		VALUES ` + strings.Join(placeholders, ", ")

	_, err := s.write.ExecContext(ctx, query, args...)
	return err
}

// QueryLookups returns lookup records matching the filter, newest first.
func (s *Store) QueryLookups(ctx context.Context, f weather.LookupFilter) ([]weather.LookupRecord, error) {
	where, args := lookupWhere(f)
	query := `SELECT id, city, unit, cache_hit, status_code, latency_ms, request_id, created_at
		FROM lookups` + where + ` ORDER BY created_at DESC LIMIT ? OFFSET ?`

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, f.Offset)

	rows, err := s.read.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []weather.LookupRecord
	for rows.Next() {
		var r weather.LookupRecord
		var unit string
		var hit int
		var created string
		if err := rows.Scan(&r.ID, &r.City, &unit, &hit, &r.StatusCode,
			&r.LatencyMs, &r.RequestID, &created); err != nil {
			return nil, err
		}
		r.Unit = weather.Unit(unit)
		r.CacheHit = hit != 0
		r.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountLookups returns the number of records matching the filter.
func (s *Store) CountLookups(ctx context.Context, f weather.LookupFilter) (int, error) {
	where, args := lookupWhere(f)
	var n int
	err := s.read.QueryRowContext(ctx, `SELECT COUNT(*) FROM lookups`+where, args...).Scan(&n)
	return n, err
}

// lookupWhere builds the WHERE clause shared by QueryLookups and CountLookups.
// City filtering matches the normalized (trimmed, lowercased) form.
func lookupWhere(f weather.LookupFilter) (string, []any) {
	var conds []string
	var args []any

	if f.City != "" {
		conds = append(conds, "city = ?")
		args = append(args, strings.ToLower(strings.TrimSpace(f.City)))
	}
	if f.Since != "" {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.Since)
	}
	if f.Until != "" {
		conds = append(conds, "created_at < ?")
		args = append(args, f.Until)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
