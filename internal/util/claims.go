package util

import (
	"github.com/golang-jwt/jwt/v4"
)

// Claims is the verified payload of an access token.
type Claims struct {
	// Permissions is nil when the token carries no permissions claim at all.
	Permissions *[]string `json:"permissions,omitempty"`
	Scope       string    `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// HasPermissionsClaim reports whether the token carried a permissions list, even an empty one.
func (c *Claims) HasPermissionsClaim() bool {
	return c != nil && c.Permissions != nil
}

// GrantedPermissions returns the permissions list, or nil when the claim is absent.
func (c *Claims) GrantedPermissions() []string {
	if !c.HasPermissionsClaim() {
		return nil
	}
	return *c.Permissions
}

// HasPermission reports exact, case-sensitive membership of perm.
func (c *Claims) HasPermission(perm string) bool {
	for _, p := range c.GrantedPermissions() {
		if p == perm {
			return true
		}
	}
	return false
}
