// Package auth decides whether a user may run a given selector.
package auth

import (
	"github.com/nimbus-labs/nimbus-bot/internal/domain"
	apperrors "github.com/nimbus-labs/nimbus-bot/internal/errors"
)

// privileged lists the selectors reserved for administrators.
var privileged = map[string]struct{}{
	"/admin":         {},
	"/stats":         {},
	"/broadcast":     {},
	"/users":         {},
	"admin_panel":    {},
	"user_stats":     {},
	"system_stats":   {},
	"send_broadcast": {},
}

// Gate checks selector access. A user counts as admin when either the
// persisted flag or the static config list says so.
type Gate struct {
	configAdmins map[int64]struct{}
}

// NewGate builds a Gate from the statically configured admin ids.
func NewGate(adminIDs []int64) *Gate {
	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	return &Gate{configAdmins: admins}
}

// IsPrivileged reports whether the selector requires admin rights.
func (g *Gate) IsPrivileged(selector string) bool {
	_, ok := privileged[selector]
	return ok
}

// IsAdmin reports whether the user has admin rights.
func (g *Gate) IsAdmin(user *domain.User) bool {
	if user == nil {
		return false
	}
	if user.IsAdmin {
		return true
	}
	_, ok := g.configAdmins[user.ID]
	return ok
}

// Authorize returns an authorization error when the selector is privileged
// and the user is not an admin. Unprivileged selectors are always allowed.
func (g *Gate) Authorize(user *domain.User, selector string) error {
	if !g.IsPrivileged(selector) {
		return nil
	}
	if g.IsAdmin(user) {
		return nil
	}
	return apperrors.NewAuthorizationError(selector)
}
