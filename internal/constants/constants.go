package constants

import "time"

// Package constant provides constants for the coffee shop API

const (
	// Path of the Auth0-style key set, relative to the issuer URL
	JWKSPath = ".well-known/jwks.json"

	ProtectedResourcePath = "/.well-known/oauth-protected-resource"
)

// Permissions required by the drinks API
const (
	PermGetDrinksDetail = "get:drinks-detail"
	PermPostDrinks      = "post:drinks"
	PermPatchDrinks     = "patch:drinks"
	PermDeleteDrinks    = "delete:drinks"
)

// SupportedPermissions lists every permission a token may carry for this API.
var SupportedPermissions = []string{
	PermGetDrinksDetail,
	PermPostDrinks,
	PermPatchDrinks,
	PermDeleteDrinks,
}

// Key set caching defaults
const (
	DefaultJWKSCacheTTL       = 10 * time.Minute
	DefaultJWKSMaxStale       = 15 * time.Minute
	DefaultJWKSFetchTimeout   = 5 * time.Second
	DefaultJWKSRefreshBackoff = 10 * time.Second
)
