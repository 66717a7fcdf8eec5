package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository membaca audit_logs dari PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository membuat repository audit berbasis pgx.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Window implements Repository.
func (r *PGRepository) Window(ctx context.Context, q WindowQuery) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT occurred_at, actor, action, entity, entity_id, meta
		FROM audit_logs
		WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
		  AND ($2::timestamptz IS NULL OR occurred_at < $2)
		  AND ($3::text IS NULL OR actor = $3)
		  AND ($4::text IS NULL OR entity = $4)
		  AND ($5::text IS NULL OR action = $5)
		ORDER BY occurred_at DESC, id DESC
		OFFSET $6 LIMIT $7`,
		toPgTime(q.From), toPgTime(q.To), optionalText(q.Actor), optionalText(q.Entity), optionalText(q.Action), q.Offset, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("select audit_logs: %w", err)
	}
	defer rows.Close()
	var out []TimelineRow
	for rows.Next() {
		var (
			row  TimelineRow
			at   pgtype.Timestamptz
			meta []byte
		)
		if err := rows.Scan(&at, &row.Actor, &row.Action, &row.Entity, &row.EntityID, &meta); err != nil {
			return nil, err
		}
		if at.Valid {
			row.At = at.Time.UTC()
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &row.Meta); err != nil {
				return nil, fmt.Errorf("decode audit meta: %w", err)
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}

var _ Repository = (*PGRepository)(nil)
