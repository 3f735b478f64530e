package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/quizflow/internal/domain"
)

// NotificationRepo — репозиторий уведомлений.
type NotificationRepo struct {
	pool *pgxpool.Pool
}

// NewNotificationRepo создаёт новый NotificationRepo.
func NewNotificationRepo(pool *pgxpool.Pool) *NotificationRepo {
	return &NotificationRepo{pool: pool}
}

// insertNotifications вставляет пачку уведомлений одним pipeline-запросом.
func insertNotifications(ctx context.Context, tx pgx.Tx, ns []*domain.Notification) error {
	if len(ns) == 0 {
		return nil
	}

	query := `
		INSERT INTO notifications (id, user_id, actor_user_id, type, title, body, data, is_read, read_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	batch := &pgx.Batch{}
	for _, n := range ns {
		dataJSON, err := json.Marshal(n.Data)
		if err != nil {
			return fmt.Errorf("marshal notification data: %w", err)
		}
		batch.Queue(query,
			n.ID,
			n.UserID,
			nullUUID(n.ActorUserID),
			n.Type,
			n.Title,
			n.Body,
			dataJSON,
			n.IsRead,
			n.ReadAt,
			n.CreatedAt,
		)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()
	for range ns {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert notification: %w", err)
		}
	}
	return results.Close()
}

// ListNotifications возвращает уведомления пользователя (новые первыми).
func (r *NotificationRepo) ListNotifications(ctx context.Context, f NotificationFilter) ([]*domain.Notification, error) {
	query := `
		SELECT id, user_id, actor_user_id, type, title, body, data, is_read, read_at, created_at
		FROM notifications
		WHERE user_id = $1
		  AND (NOT $2::boolean OR is_read = false)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query, f.UserID, f.UnreadOnly, LimitOrDefault(f.Limit), f.Offset)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []*domain.Notification
	for rows.Next() {
		var n domain.Notification
		var dataJSON []byte
		if err := rows.Scan(
			&n.ID,
			&n.UserID,
			&n.ActorUserID,
			&n.Type,
			&n.Title,
			&n.Body,
			&dataJSON,
			&n.IsRead,
			&n.ReadAt,
			&n.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		if dataJSON != nil {
			if err := json.Unmarshal(dataJSON, &n.Data); err != nil {
				return nil, fmt.Errorf("unmarshal notification data: %w", err)
			}
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}

// SetNotificationRead меняет состояние прочтения. Чужое уведомление — ErrNotFound.
func (r *NotificationRepo) SetNotificationRead(ctx context.Context, id, userID uuid.UUID, read bool, now time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET is_read = $3,
		    read_at = CASE WHEN $3 THEN COALESCE(read_at, $4) ELSE NULL END
		WHERE id = $1 AND user_id = $2
	`, id, userID, read, now)
	if err != nil {
		return fmt.Errorf("set notification read: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteReadNotificationsBefore удаляет прочитанные уведомления старше before.
func (r *NotificationRepo) DeleteReadNotificationsBefore(ctx context.Context, before time.Time) (int, error) {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM notifications WHERE is_read = true AND created_at < $1
	`, before)
	if err != nil {
		return 0, fmt.Errorf("delete read notifications: %w", err)
	}
	return int(result.RowsAffected()), nil
}
