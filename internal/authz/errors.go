package authz

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/AmeenMohammed/coffee-shop/internal/util"
)

// Kind classifies why a request was refused.
type Kind string

const (
	KindMissingHeader           Kind = "MissingHeader"
	KindMalformedHeader         Kind = "MalformedHeader"
	KindMalformedToken          Kind = "MalformedToken"
	KindUnknownSigningKey       Kind = "UnknownSigningKey"
	KindInvalidSignature        Kind = "InvalidSignature"
	KindTokenExpired            Kind = "TokenExpired"
	KindTokenNotYetValid        Kind = "TokenNotYetValid"
	KindIssuerMismatch          Kind = "IssuerMismatch"
	KindAudienceMismatch        Kind = "AudienceMismatch"
	KindKeySetUnavailable       Kind = "KeySetUnavailable"
	KindPermissionsClaimMissing Kind = "PermissionsClaimMissing"
	KindPermissionDenied        Kind = "PermissionDenied"
)

type kindInfo struct {
	status  int
	code    string
	message string
}

var kinds = map[Kind]kindInfo{
	KindMissingHeader:           {http.StatusUnauthorized, "authorization_header_missing", "Authorization header is expected."},
	KindMalformedHeader:         {http.StatusUnauthorized, "invalid_header", "Authorization header must be of the form 'Bearer <token>'."},
	KindMalformedToken:          {http.StatusUnauthorized, "invalid_token", "Unable to parse authentication token."},
	KindUnknownSigningKey:       {http.StatusUnauthorized, "unknown_signing_key", "Unable to find the appropriate key."},
	KindInvalidSignature:        {http.StatusUnauthorized, "invalid_signature", "Token signature could not be verified."},
	KindTokenExpired:            {http.StatusUnauthorized, "token_expired", "Token expired."},
	KindTokenNotYetValid:        {http.StatusUnauthorized, "token_not_yet_valid", "Token is not valid yet."},
	KindIssuerMismatch:          {http.StatusUnauthorized, "invalid_issuer", "Incorrect issuer."},
	KindAudienceMismatch:        {http.StatusUnauthorized, "invalid_audience", "Incorrect audience."},
	KindKeySetUnavailable:       {http.StatusUnauthorized, "key_set_unavailable", "Signing keys are currently unavailable."},
	KindPermissionsClaimMissing: {http.StatusForbidden, "invalid_claims", "Permissions not included in token."},
	KindPermissionDenied:        {http.StatusForbidden, "unauthorized", "Permission not found."},
}

// sentinelKinds maps verification errors from util onto kinds, in match order.
var sentinelKinds = []struct {
	err  error
	kind Kind
}{
	{util.ErrMissingHeader, KindMissingHeader},
	{util.ErrMalformedHeader, KindMalformedHeader},
	{util.ErrKeySetUnavailable, KindKeySetUnavailable},
	{util.ErrMalformedToken, KindMalformedToken},
	{util.ErrUnknownSigningKey, KindUnknownSigningKey},
	{util.ErrInvalidSignature, KindInvalidSignature},
	{util.ErrTokenExpired, KindTokenExpired},
	{util.ErrTokenNotYetValid, KindTokenNotYetValid},
	{util.ErrIssuerMismatch, KindIssuerMismatch},
	{util.ErrAudienceMismatch, KindAudienceMismatch},
}

// AuthError is the only error Authorize returns. Message is safe to show
// to clients; the cause is kept for logs.
type AuthError struct {
	Kind    Kind
	Status  int
	Code    string
	Message string
	cause   error
}

// NewAuthError builds the AuthError for kind, wrapping cause.
func NewAuthError(kind Kind, cause error) *AuthError {
	info, ok := kinds[kind]
	if !ok {
		info = kinds[KindMalformedToken]
	}
	return &AuthError{
		Kind:    kind,
		Status:  info.status,
		Code:    info.code,
		Message: info.message,
		cause:   cause,
	}
}

func (e *AuthError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.cause)
	}
	return e.Code
}

func (e *AuthError) Unwrap() error {
	return e.cause
}

// AsAuthError converts err into an AuthError. Errors that are already
// AuthErrors pass through; unclassified errors become MalformedToken.
func AsAuthError(err error) *AuthError {
	if err == nil {
		return nil
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr
	}
	for _, sk := range sentinelKinds {
		if errors.Is(err, sk.err) {
			return NewAuthError(sk.kind, err)
		}
	}
	return NewAuthError(KindMalformedToken, err)
}
