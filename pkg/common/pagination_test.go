package common

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "unimem/pkg/errors"
)

func TestExtractPaginationParams(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		want      PaginationParams
		wantError bool
	}{
		{name: "defaults", query: "", want: PaginationParams{Limit: 20}},
		{name: "explicit", query: "?limit=50&offset=40", want: PaginationParams{Limit: 50, Offset: 40}},
		{name: "limit too large", query: "?limit=101", wantError: true},
		{name: "limit zero", query: "?limit=0", wantError: true},
		{name: "negative offset", query: "?offset=-1", wantError: true},
		{name: "not a number", query: "?limit=abc", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/v1/memories"+tt.query, nil)

			got, err := ExtractPaginationParams(r, 20, 100)

			if tt.wantError {
				require.Error(t, err)
				assert.True(t, pkgerrors.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQueryFloat(t *testing.T) {
	r := httptest.NewRequest("GET", "/search?threshold=0.35", nil)

	v, err := QueryFloat(r, "threshold", 0.1)
	require.NoError(t, err)
	assert.InDelta(t, 0.35, v, 1e-9)

	v, err = QueryFloat(r, "missing", 0.1)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, v, 1e-9)
}
