package util

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/elnormous/contenttype"

	logger "github.com/AmeenMohammed/coffee-shop/internal/logging"
)

const maxBodyBytes = 1 << 20

var jsonMediaType = contenttype.NewMediaType("application/json")

var (
	// ErrUnsupportedMediaType is returned for request bodies that are not JSON.
	ErrUnsupportedMediaType = errors.New("content-type must be application/json")
	// ErrInvalidBody is returned when the body is not a JSON object.
	ErrInvalidBody = errors.New("request body must be a JSON object")
)

// RequestBody is a decoded JSON object body. Fields are kept raw so callers
// can tell an absent field from a null or empty one.
type RequestBody map[string]json.RawMessage

// Has reports whether field was present and not null.
func (b RequestBody) Has(field string) bool {
	raw, ok := b[field]
	return ok && !bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// Decode unmarshals field into v.
func (b RequestBody) Decode(field string, v any) error {
	raw, ok := b[field]
	if !ok {
		return fmt.Errorf("%s: field not present", field)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	return nil
}

// ParseJSONBody reads a JSON object from r. The body is restored so later
// handlers can read it again.
func ParseJSONBody(r *http.Request) (RequestBody, error) {
	ctype, err := contenttype.GetMediaType(r)
	if err != nil || ctype.Type == "" || !ctype.Matches(jsonMediaType) {
		return nil, ErrUnsupportedMediaType
	}

	bodyBytes, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

	if len(bodyBytes) > maxBodyBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrInvalidBody, maxBodyBytes)
	}

	var body RequestBody
	if err := json.Unmarshal(bodyBytes, &body); err != nil {
		logger.Warn("Error parsing request body: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}
	if body == nil {
		return nil, ErrInvalidBody
	}
	return body, nil
}
