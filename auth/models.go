package auth

import "time"

type Role string

const (
	RoleAgent   Role = "agent"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

// Privileged reports whether the role may read and mutate entities owned by
// other staff members.
func (r Role) Privileged() bool {
	return r == RoleManager || r == RoleAdmin
}

// User is the domain representation of a staff member.
// It mirrors the users table and should not include JSON annotations so it
// can be reused by different presentation layers.
type User struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	Phone        *string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RegisterRequest contains staff registration data supplied by callers.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Role     Role   `json:"role"`
}

// LoginRequest contains staff login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
