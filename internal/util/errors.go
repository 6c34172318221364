package util

import "errors"

// Sentinel errors for each stage of bearer token handling. Callers match
// them with errors.Is; the wrapping error carries the detail for logs.
var (
	ErrMissingHeader     = errors.New("authorization header is missing")
	ErrMalformedHeader   = errors.New("authorization header is malformed")
	ErrMalformedToken    = errors.New("token is malformed")
	ErrUnknownSigningKey = errors.New("signing key not found")
	ErrInvalidSignature  = errors.New("token signature is invalid")
	ErrTokenExpired      = errors.New("token has expired")
	ErrTokenNotYetValid  = errors.New("token is not yet valid")
	ErrIssuerMismatch    = errors.New("token issuer does not match")
	ErrAudienceMismatch  = errors.New("token audience does not match")
	ErrKeySetUnavailable = errors.New("signing key set is unavailable")
)
