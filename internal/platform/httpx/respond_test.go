package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRespondErrorPrefersCallerMappings(t *testing.T) {
	errDomain := errors.New("domain refused")
	rec := httptest.NewRecorder()
	RespondError(rec, fmt.Errorf("wrap: %w", errDomain), ErrorMapping{Err: errDomain, Status: http.StatusForbidden, Title: "Forbidden"})

	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "Forbidden", body.Title)
	require.Equal(t, "wrap: domain refused", body.Detail)
}

func TestRespondErrorHidesUnknownFailures(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("pg: connection reset"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "connection reset")
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Amount uint64 `json:"amount"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":5}`))
	var p payload
	require.NoError(t, DecodeJSON(httptest.NewRecorder(), req, &p))
	require.Equal(t, uint64(5), p.Amount)

	for _, raw := range []string{`{"amount":5,"extra":1}`, `{"amount":5}{}`, `{"amount":-1}`, `nope`} {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(raw))
		err := DecodeJSON(httptest.NewRecorder(), req, &payload{})
		require.ErrorIs(t, err, ErrValidation, raw)
	}
}
