package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func setupRouter(checks map[string]Check) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(checks).RegisterRoutes(r)
	return r
}

func TestLiveness(t *testing.T) {
	r := setupRouter(nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadiness(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	w := httptest.NewRecorder()
	setupRouter(map[string]Check{"database": ok, "redis": ok}).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	setupRouter(map[string]Check{"database": ok, "redis": down}).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"DOWN","checks":{"redis":"connection refused"}}`, w.Body.String())
}
