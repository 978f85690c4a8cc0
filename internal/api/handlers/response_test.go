package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/isdelr/skycast-be/internal/apperror"
	"github.com/isdelr/skycast-be/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteErrorHidesInternalCause(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/user/profile", nil)

	writeError(rec, req, errors.New("database is locked"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotContains(t, rec.Body.String(), "locked")

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Internal server error", body["error"])
	assert.NotContains(t, body, "redirect")
}

func TestWriteErrorRedirect(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/reset-password-direct", nil)

	writeError(rec, req, apperror.NewNotFound("no match").WithRedirect("signup"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"no match","redirect":"signup"}`, rec.Body.String())
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		strict  bool
		wantErr string
	}{
		{name: "valid", body: `{"preferredCity":"Oslo"}`, strict: true},
		{name: "empty body", body: ``, wantErr: "Request body is required"},
		{name: "malformed", body: `{"preferredCity":`, wantErr: "Invalid request body"},
		{name: "unknown field lenient", body: `{"password":"x"}`},
		{name: "unknown field strict", body: `{"password":"x"}`, strict: true, wantErr: `Field "password" cannot be updated`},
		{name: "nested unknown field", body: `{"settings":{"email":"a@b"}}`, strict: true, wantErr: `Field "email" cannot be updated`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(tt.body))
			var patch services.PreferencesPatch
			err := decodeJSON(req, &patch, tt.strict)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, apperror.IsValidation(err))
			assert.Equal(t, tt.wantErr, apperror.From(err).Message)
		})
	}
}
