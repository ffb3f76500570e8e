package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"marketplace-service/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestTokenFromHeader(t *testing.T) {
	tests := []struct {
		header string
		key    string
		ok     bool
	}{
		{"Token abc123", "abc123", true},
		{"token abc123", "abc123", true},
		{"Bearer abc123", "", false},
		{"Token ", "", false},
		{"", "", false},
		{"abc123", "", false},
	}

	for _, tt := range tests {
		key, ok := tokenFromHeader(tt.header)
		assert.Equal(t, tt.ok, ok, "header %q", tt.header)
		assert.Equal(t, tt.key, key, "header %q", tt.header)
	}
}

func TestRespondErrorMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("create: %w", models.ErrPriceNotFound), http.StatusBadRequest},
		{fmt.Errorf("create: %w", models.ErrProviderInactive), http.StatusBadRequest},
		{models.NewValidationError("quantity", "must be a positive integer"), http.StatusBadRequest},
		{fmt.Errorf("get: %w", models.ErrOrderNotFound), http.StatusNotFound},
		{fmt.Errorf("get: %w", models.ErrProductNotFound), http.StatusNotFound},
		{fmt.Errorf("patch: %w", models.ErrForbiddenTransition), http.StatusForbidden},
		{fmt.Errorf("get: %w", models.ErrNotOwner), http.StatusForbidden},
		{fmt.Errorf("import: %w", models.ErrImportRejected), http.StatusForbidden},
		{models.ErrTokenNotFound, http.StatusUnauthorized},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		respondError(c, tt.err)
		assert.Equal(t, tt.status, w.Code, "error %v", tt.err)
	}
}

func TestPathIDRejectsGarbage(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: "not-a-number"}}

	_, ok := pathID(c)
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: "42"}}

	id, ok := pathID(c)
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)
}
