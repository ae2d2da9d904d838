package common

import (
	"net/http"
	"strconv"

	pkgerrors "unimem/pkg/errors"
)

// PaginationParams are the limit/offset query parameters of list endpoints.
type PaginationParams struct {
	Limit  int
	Offset int
}

// ExtractPaginationParams reads limit and offset from the query string.
// A missing limit becomes defaultLimit; limits outside 1..maxLimit are rejected.
func ExtractPaginationParams(r *http.Request, defaultLimit, maxLimit int) (PaginationParams, error) {
	params := PaginationParams{Limit: defaultLimit}
	query := r.URL.Query()

	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxLimit {
			return params, pkgerrors.NewValidationError("limit must be between 1 and " + strconv.Itoa(maxLimit))
		}
		params.Limit = limit
	}

	if raw := query.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return params, pkgerrors.NewValidationError("offset must be a non-negative integer")
		}
		params.Offset = offset
	}

	return params, nil
}

// QueryInt parses an optional integer query parameter.
func QueryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.NewValidationError(name + " must be an integer")
	}
	return v, nil
}

// QueryFloat parses an optional float query parameter.
func QueryFloat(r *http.Request, name string, fallback float64) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, pkgerrors.NewValidationError(name + " must be a number")
	}
	return v, nil
}
