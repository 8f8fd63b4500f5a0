package user

import (
	"time"

	"github.com/paperforge/paperforge/internal"
)

// User is the identity record. Users are never hard-deleted; email changes go
// through a pending field until confirmed.
type User struct {
	ID           int64      `json:"id" gorm:"primaryKey"`
	Username     string     `json:"username" gorm:"column:username;uniqueIndex"`
	Email        string     `json:"email" gorm:"column:email;uniqueIndex"`
	EmailChange  *string    `json:"-" gorm:"column:email_change"`
	PasswordHash string     `json:"-" gorm:"column:password_hash"`
	ResetSalt    *string    `json:"-" gorm:"column:reset_salt"`
	IsAdmin      bool       `json:"is_admin" gorm:"column:is_admin"`
	CreatedAt    time.Time  `json:"created_at" gorm:"column:created_at"`
	UpdatedAt    time.Time  `json:"updated_at" gorm:"column:updated_at"`
}

func (User) TableName() string {
	return "users"
}

// Mailer delivers notification mail. Delivery is out of scope for the core
// service; the default implementation only logs.
type Mailer interface {
	Send(to, subject, body string) error
}

var (
	ErrNotFound      = internal.NewNotFoundError("user not found", internal.ErrCodeUserNotFound)
	ErrAlreadyExists = internal.NewConflictError("username or email already taken", internal.ErrCodeUserExists)
	ErrBadToken      = internal.NewForbiddenError("invalid or expired token", internal.ErrCodeInvalidToken)
	ErrWrongPassword = internal.NewUnauthorizedError("current password is incorrect", internal.ErrCodeInvalidCredentials)
)
