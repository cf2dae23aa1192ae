package domain

import (
	"fmt"
	"time"
)

// UserStatus describes the lifecycle state of a user account.
type UserStatus string

const (
	UserStatusActive  UserStatus = "active"
	UserStatusBlocked UserStatus = "blocked"
	UserStatusBanned  UserStatus = "banned"
)

// User represents an application user keyed by their platform identifier.
// Users are never hard-deleted; status transitions take their place.
type User struct {
	ID               int64
	Username         string
	FirstName        string
	LastName         string
	LanguageCode     string
	Status           UserStatus
	IsAdmin          bool
	IsPremium        bool
	FirstInteraction time.Time
	LastInteraction  time.Time
	TotalMessages    int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// FullName assembles a display name, falling back to username or the id.
func (u *User) FullName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.LastName != "":
		return u.LastName
	case u.Username != "":
		return u.Username
	default:
		return fmt.Sprintf("User_%d", u.ID)
	}
}

// Profile carries the identity fields supplied by the inbound event adapter.
type Profile struct {
	ID           int64
	Username     string
	FirstName    string
	LastName     string
	LanguageCode string
	IsPremium    bool
}
