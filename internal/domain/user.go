package domain

import "github.com/google/uuid"

// Роли пользователей.
const (
	RoleAdmin      = "admin"
	RoleInstructor = "instructor"
	RoleStudent    = "student"
	RoleSystem     = "system"
)

// User — пользователь в объёме, нужном для рассылок и аудита.
// Аутентификация и профиль живут во внешней системе.
type User struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Role  string    `json:"role"`

	// EmailNotifications — согласие на email-уведомления.
	EmailNotifications bool `json:"email_notifications"`
}

// Recipient возвращает получателя рассылки для пользователя.
func (u *User) Recipient() Recipient {
	return Recipient{
		UserID:     u.ID,
		Name:       u.Name,
		Email:      u.Email,
		EmailOptIn: u.EmailNotifications && u.Email != "",
	}
}
