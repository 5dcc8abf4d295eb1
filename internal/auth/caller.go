// Package auth carries the verified caller identity into the engine.
// Session issuance lives outside this module; the engine trusts the Caller
// it is handed and never re-authenticates.
package auth

import (
	"context"
	"strings"
)

// Role is the caller's role.
type Role string

const (
	RoleTenant Role = "tenant"
	RoleAdmin  Role = "admin"
	// RoleSystem is used by scheduled jobs acting without a human caller.
	RoleSystem Role = "system"
)

// ParseRole normalizes a role string. ok is false for unknown roles.
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleTenant, RoleAdmin, RoleSystem:
		return r, true
	}
	return "", false
}

// Caller is a verified identity.
type Caller struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// System is the caller used by background jobs.
var System = Caller{ID: "system", Role: RoleSystem}

func (c Caller) IsAdmin() bool { return c.Role == RoleAdmin || c.Role == RoleSystem }

func (c Caller) IsTenant() bool { return c.Role == RoleTenant }

type contextKey struct{}

// WithCaller attaches the caller to ctx. Only the transport layer does this;
// the engine receives Caller as an explicit parameter.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// FromContext returns the caller stored by WithCaller.
func FromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(contextKey{}).(Caller)
	return c, ok
}
