package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	domain "github.com/autopruefer/autopruefer-api/internal/domain/analysis"
)

type AnalysisRepository struct {
	db *sql.DB
}

func NewAnalysisRepository(db *sql.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// Save inserts or updates an archived analysis record
func (r *AnalysisRepository) Save(ctx context.Context, a *domain.Archived) error {
	const q = `
INSERT INTO vehicle_analyses
  (id, session_id, plan, verdict, result_json, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO UPDATE SET
  session_id=EXCLUDED.session_id,
  plan=EXCLUDED.plan,
  verdict=EXCLUDED.verdict,
  result_json=EXCLUDED.result_json;
`
	result := a.ResultJSON
	if strings.TrimSpace(result) == "" {
		result = "{}"
	}
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q, a.ID, a.SessionID, a.Plan, a.Verdict, result, createdAt)
	return err
}

// GetBySession returns the newest archived analysis for one checkout session
func (r *AnalysisRepository) GetBySession(ctx context.Context, sessionID string) (*domain.Archived, error) {
	const q = `
SELECT id, session_id, plan, verdict, result_json, created_at
FROM vehicle_analyses
WHERE session_id=$1
ORDER BY created_at DESC
LIMIT 1;
`
	row := r.db.QueryRowContext(ctx, q, sessionID)
	var a domain.Archived
	if err := row.Scan(&a.ID, &a.SessionID, &a.Plan, &a.Verdict, &a.ResultJSON, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// Paginate returns a page of archived analyses ordered by created_at desc
func (r *AnalysisRepository) Paginate(ctx context.Context, page, pageSize int) ([]*domain.Archived, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	const q = `
SELECT id, session_id, plan, verdict, result_json, created_at
FROM vehicle_analyses
ORDER BY created_at DESC, id DESC
LIMIT $1 OFFSET $2;
`
	rows, err := r.db.QueryContext(ctx, q, pageSize, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Archived
	for rows.Next() {
		var a domain.Archived
		if err := rows.Scan(&a.ID, &a.SessionID, &a.Plan, &a.Verdict, &a.ResultJSON, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}
