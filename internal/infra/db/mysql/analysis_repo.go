package mysql

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

// Save inserts an archived analysis record
func (r *AnalysisRepository) Save(ctx context.Context, a *domain.Archived) error {
	const q = `
INSERT INTO vehicle_analyses
  (id, session_id, plan, verdict, result_json, created_at)
VALUES (?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
  session_id=VALUES(session_id), plan=VALUES(plan), verdict=VALUES(verdict), result_json=VALUES(result_json);
`
	result := a.ResultJSON
	if strings.TrimSpace(result) == "" {
		// result_json column requires valid JSON; use empty object
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
WHERE session_id=?
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
LIMIT ? OFFSET ?;
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
