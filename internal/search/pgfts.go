package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// PgFTS implements Searcher using PostgreSQL full text search as a
// fallback when Meilisearch is down.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs plainto_tsquery over the contents table with ts_headline
// snippets, ranked by ts_rank.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	where := `c.public AND c.fts @@ plainto_tsquery('english', $1)`
	args := []any{q.Text}
	if q.FilterKind != "" {
		where += ` AND c.kind = $2`
		args = append(args, q.FilterKind)
	}

	query := fmt.Sprintf(`
		SELECT c.id, c.kind, c.name,
			ts_headline('english', coalesce(c.description, ''), plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30'),
			ts_rank(c.fts, plainto_tsquery('english', $1)),
			COUNT(*) OVER ()
		FROM contents c
		WHERE %s
		ORDER BY ts_rank(c.fts, plainto_tsquery('english', $1)) DESC
		LIMIT %d OFFSET %d
	`, where, limit, offset)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	total := 0
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Kind, &r.Title, &r.Snippet, &r.Score, &total); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// AllRecords loads every public content row with its keywords, used to
// seed the Meilisearch index at bootstrap.
func (p *PgFTS) AllRecords(ctx context.Context) ([]ContentRecord, error) {
	query := `
		SELECT c.id, c.kind, c.name, c.description,
			coalesce(string_agg(k.word, ' '), '')
		FROM contents c
		LEFT JOIN keywords k ON k.content_id = c.id
		WHERE c.public
		GROUP BY c.id, c.kind, c.name, c.description
		ORDER BY c.id
	`
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("pgfts list records: %w", err)
	}
	defer rows.Close()

	var records []ContentRecord
	for rows.Next() {
		var r ContentRecord
		var words string
		if err := rows.Scan(&r.ID, &r.Kind, &r.Name, &r.Description, &words); err != nil {
			return nil, fmt.Errorf("pgfts scan record: %w", err)
		}
		if words != "" {
			r.Keywords = strings.Fields(words)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
