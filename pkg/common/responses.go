package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	pkgerrors "unimem/pkg/errors"
)

// DefaultMaxBodyBytes bounds request bodies; ingest payloads are large but not unbounded.
const DefaultMaxBodyBytes int64 = 10 << 20

// RespondJSON writes data as JSON with the given status
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// DecodeJSONBody decodes the request body into v. Malformed bodies, unknown fields and
// oversized bodies become validation errors.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, v interface{}, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return pkgerrors.NewValidationError(fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
		case errors.Is(err, io.EOF):
			return pkgerrors.NewValidationError("request body is empty")
		default:
			return pkgerrors.NewValidationError("invalid request body: " + err.Error())
		}
	}
	return nil
}
