package errors

import (
	"context"
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
		{Validation("unknown alert type %q", "x"), http.StatusBadRequest},
		{NotFound("alert", nil), http.StatusNotFound},
		{Conflict("alert already resolved", nil), http.StatusConflict},
		{TransientProvider("get measurements", context.DeadlineExceeded), http.StatusServiceUnavailable},
		{DataIntegrity("rule %q references unknown alert type", "r1"), http.StatusInternalServerError},
		{Unauthorized(nil), http.StatusUnauthorized},
		{Forbidden("admin role required"), http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.err.Message, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.StatusCode())
		})
	}
}

func TestIsCodeThroughWrapping(t *testing.T) {
	base := Conflict("open alert exists", nil)
	wrapped := fmt.Errorf("create alert: %w", base)

	assert.True(t, IsCode(wrapped, ErrConflict))
	assert.False(t, IsCode(wrapped, ErrNotFound))
	assert.Equal(t, ErrConflict, CodeOf(wrapped))
	assert.Equal(t, ErrInternal, CodeOf(fmt.Errorf("plain")))
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := TransientProvider("get symptoms", context.DeadlineExceeded)
	assert.Equal(t, "clinical data provider: get symptoms failed: context deadline exceeded", err.Error())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
