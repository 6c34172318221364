package authz

import (
	"fmt"
	"strings"

	"github.com/AmeenMohammed/coffee-shop/internal/util"
)

// AccessControl decides whether verified claims grant a permission.
type AccessControl interface {
	ValidateAccess(claims *util.Claims, requiredPermission string) error
}

// PermissionValidator checks the token's permissions claim for an exact,
// case-sensitive match.
type PermissionValidator struct{}

var _ AccessControl = (*PermissionValidator)(nil)

func (d *PermissionValidator) ValidateAccess(claims *util.Claims, requiredPermission string) error {
	if !claims.HasPermissionsClaim() {
		return NewAuthError(KindPermissionsClaimMissing, fmt.Errorf("token for %q has no permissions claim", subject(claims)))
	}
	if !claims.HasPermission(requiredPermission) {
		return NewAuthError(KindPermissionDenied, fmt.Errorf(
			"missing required permission %s, granted: %s",
			requiredPermission, strings.Join(claims.GrantedPermissions(), ", ")))
	}
	return nil
}

func subject(claims *util.Claims) string {
	if claims == nil {
		return ""
	}
	return claims.Subject
}
