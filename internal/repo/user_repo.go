package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/quizflow/internal/domain"
)

// UserRepo — чтение пользователей: получатели уведомлений и имена для журнала.
type UserRepo struct {
	pool *pgxpool.Pool
}

// NewUserRepo создаёт новый UserRepo.
func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

// QuizRecipients возвращает студентов всех групп квиза одним запросом.
// Студент, состоящий в нескольких группах, возвращается один раз.
func (r *UserRepo) QuizRecipients(ctx context.Context, quizID uuid.UUID) ([]domain.Recipient, error) {
	query := `
		SELECT DISTINCT u.id, u.name, COALESCE(u.email, ''), u.email_notifications
		FROM quiz_groups qg
		JOIN group_members gm ON gm.group_id = qg.group_id
		JOIN users u ON u.id = gm.user_id
		WHERE qg.quiz_id = $1 AND u.role = $2
		ORDER BY u.name
	`
	rows, err := r.pool.Query(ctx, query, quizID, domain.RoleStudent)
	if err != nil {
		return nil, fmt.Errorf("query recipients: %w", err)
	}
	defer rows.Close()

	var out []domain.Recipient
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.EmailNotifications); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		out = append(out, u.Recipient())
	}
	return out, rows.Err()
}

// DisplayName возвращает имя пользователя.
func (r *UserRepo) DisplayName(ctx context.Context, userID uuid.UUID) (string, error) {
	var name string
	err := r.pool.QueryRow(ctx, `SELECT name FROM users WHERE id = $1`, userID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get user name: %w", err)
	}
	return name, nil
}

// CreateUser добавляет пользователя.
func (r *UserRepo) CreateUser(ctx context.Context, u *domain.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, name, email, role, email_notifications)
		VALUES ($1, $2, $3, $4, $5)
	`, u.ID, u.Name, nullString(u.Email), u.Role, u.EmailNotifications)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// AddGroupMember добавляет пользователя в группу.
func (r *UserRepo) AddGroupMember(ctx context.Context, groupID, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO group_members (group_id, user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, groupID, userID)
	if err != nil {
		return fmt.Errorf("insert group member: %w", err)
	}
	return nil
}
