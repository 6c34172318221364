package util

import (
	"fmt"
	"strings"
)

// Extracts the Bearer token from the Authorization header
func ExtractAccessToken(authHeader string) (string, error) {
	if strings.TrimSpace(authHeader) == "" {
		return "", ErrMissingHeader
	}

	parts := strings.Fields(authHeader)
	if !strings.EqualFold(parts[0], "Bearer") {
		return "", fmt.Errorf("%w: scheme must be Bearer", ErrMalformedHeader)
	}
	switch len(parts) {
	case 1:
		return "", fmt.Errorf("%w: token not found", ErrMalformedHeader)
	case 2:
		return parts[1], nil
	default:
		return "", fmt.Errorf("%w: must be of the form 'Bearer <token>'", ErrMalformedHeader)
	}
}
