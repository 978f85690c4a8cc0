package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  *AppError
		want int
	}{
		{NewValidation("bad"), http.StatusBadRequest},
		{NewDuplicateKey("dup", nil), http.StatusBadRequest},
		{NewInvalidOrExpiredToken(), http.StatusBadRequest},
		{NewInvalidCredentials(), http.StatusUnauthorized},
		{NewUnauthorized("no token", nil), http.StatusUnauthorized},
		{NewNotFound("missing"), http.StatusNotFound},
		{NewExternalService("upstream", nil), http.StatusBadGateway},
		{NewInternal("boom", nil), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Message, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.StatusCode())
		})
	}
}

func TestFrom_WrapsForeignErrors(t *testing.T) {
	cause := errors.New("disk on fire")
	appErr := From(cause)

	assert.Equal(t, InternalError, appErr.Type)
	assert.ErrorIs(t, appErr, cause)
	assert.Equal(t, "Internal server error", appErr.ToResponse().Error)
}

func TestFrom_FindsWrappedAppError(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", NewNotFound("User not found"))

	appErr := From(wrapped)
	assert.Equal(t, NotFoundError, appErr.Type)
	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsValidation(wrapped))
}

func TestToResponse_HidesCause(t *testing.T) {
	appErr := NewNotFound("User not found").WithRedirect("signup")
	appErr.Err = errors.New("sql: no rows")

	resp := appErr.ToResponse()
	assert.Equal(t, "User not found", resp.Error)
	assert.Equal(t, "signup", resp.Redirect)
	assert.Contains(t, appErr.Error(), "sql: no rows")
}
