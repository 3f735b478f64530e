package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/quizflow/internal/domain"
)

// ActivityRepo — журнал действий (только добавление).
type ActivityRepo struct {
	pool *pgxpool.Pool
}

// NewActivityRepo создаёт новый ActivityRepo.
func NewActivityRepo(pool *pgxpool.Pool) *ActivityRepo {
	return &ActivityRepo{pool: pool}
}

// AppendActivity добавляет запись журнала.
func (r *ActivityRepo) AppendActivity(ctx context.Context, a *domain.Activity) error {
	query := `
		INSERT INTO recent_activities (id, type, description, performed_by_id, performed_by_name,
		                               performed_by_role, target_id, target_type, target_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.pool.Exec(ctx, query,
		a.ID,
		a.Type,
		a.Description,
		nullUUID(a.PerformedByID),
		a.PerformedByName,
		a.PerformedByRole,
		nullUUID(a.TargetID),
		nullString(a.TargetType),
		nullString(a.TargetName),
		a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// ListActivities возвращает последние записи журнала.
func (r *ActivityRepo) ListActivities(ctx context.Context, limit int) ([]*domain.Activity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, type, description, performed_by_id, performed_by_name, performed_by_role,
		       target_id, target_type, target_name, created_at
		FROM recent_activities
		ORDER BY created_at DESC
		LIMIT $1
	`, LimitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	var out []*domain.Activity
	for rows.Next() {
		var a domain.Activity
		var targetType, targetName *string
		if err := rows.Scan(
			&a.ID,
			&a.Type,
			&a.Description,
			&a.PerformedByID,
			&a.PerformedByName,
			&a.PerformedByRole,
			&a.TargetID,
			&targetType,
			&targetName,
			&a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		a.TargetType = derefString(targetType)
		a.TargetName = derefString(targetName)
		out = append(out, &a)
	}
	return out, rows.Err()
}
