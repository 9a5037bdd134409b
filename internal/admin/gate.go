// Package admin decides who may run destructive administrative operations.
package admin

import "strings"

// EnvDevelopment is the only environment where destructive wipes are allowed.
const EnvDevelopment = "development"

// Gate authorizes admin operations. The full-wipe operation requires both a
// development environment and a recognized admin identity; in any other
// environment it is denied for everyone.
type Gate struct {
	environment string
	superAdmin  int64
	allowed     map[int64]bool
}

// NewGate creates a Gate for the given environment, super-admin user ID, and
// additional allow-listed admin IDs.
func NewGate(environment string, superAdmin int64, allowed []int64) *Gate {
	ids := make(map[int64]bool, len(allowed))
	for _, id := range allowed {
		ids[id] = true
	}
	return &Gate{
		environment: strings.ToLower(strings.TrimSpace(environment)),
		superAdmin:  superAdmin,
		allowed:     ids,
	}
}

// CanWipe reports whether the user may delete all tracked state.
func (g *Gate) CanWipe(userID int64) bool {
	if g.environment != EnvDevelopment {
		return false
	}
	return g.IsAdmin(userID)
}

// IsAdmin reports whether the user is the super admin or allow-listed.
func (g *Gate) IsAdmin(userID int64) bool {
	if g.superAdmin != 0 && userID == g.superAdmin {
		return true
	}
	return g.allowed[userID]
}
