package domain

import "time"

// User roles. Admin is the elevated role allowed to change segments.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User represents an authenticated identity in the platform.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// Caller identifies who performs an operation and with which role.
type Caller struct {
	UserID int64
	Role   string
}

// CallerFromUser builds a Caller from the user's current role.
func CallerFromUser(u *User) Caller {
	if u == nil {
		return Caller{}
	}
	return Caller{UserID: u.ID, Role: u.Role}
}

func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}
