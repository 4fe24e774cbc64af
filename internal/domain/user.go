package domain

import "time"

// UserRole controls what a user may administer.
type UserRole string

const (
	RoleAdmin UserRole = "ADMIN"
	RoleUser  UserRole = "USER"
)

// User owns trading accounts and copiers. Deleting a user cascades to
// everything it owns.
type User struct {
	ID               string
	Email            string // unique
	PasswordHash     string
	Role             UserRole
	TwoFactorEnabled bool
	TwoFactorSecret  string
	OrganizationID   *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Organization is a tenant grouping identified by a unique slug.
type Organization struct {
	ID        string
	Name      string
	Slug      string // unique
	CreatedAt time.Time
	UpdatedAt time.Time
}
