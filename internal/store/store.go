package store

import (
	"context"
	"errors"
	"time"
)

// ErrUserNotFound is returned when a username has no account.
var ErrUserNotFound = errors.New("user not found")

// Role is an account's permission tag.
type Role string

const (
	RoleUser   Role = "user"
	RoleAdmin  Role = "admin"
	RoleMuted  Role = "muted"
	RoleBanned Role = "banned"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleMuted, RoleBanned:
		return true
	}
	return false
}

// User represents a registered account.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}

// Message represents a persisted chat message.
type Message struct {
	ID        int64
	Username  string
	Body      string
	CreatedAt time.Time
}

// UserStore handles account persistence.
type UserStore interface {
	// CreateUser creates a new account with hashed password and the
	// default user role.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// GetUserByUsername retrieves an account by username.
	// Returns ErrUserNotFound if no such account exists.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// ListUsers returns all registered usernames, sorted.
	ListUsers(ctx context.Context) ([]string, error)

	// UpdatePassword replaces the stored password hash.
	UpdatePassword(ctx context.Context, username, passwordHash string) error

	// GetRole returns the account's current role.
	GetRole(ctx context.Context, username string) (Role, error)

	// SetRole updates the account's role.
	SetRole(ctx context.Context, username string, role Role) error
}

// MessageStore handles chat message persistence.
type MessageStore interface {
	// SaveMessage persists a message.
	SaveMessage(ctx context.Context, msg *Message) error

	// ListMessages retrieves up to limit most recent messages in
	// chronological order. An empty username means no filter.
	ListMessages(ctx context.Context, username string, limit int) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
