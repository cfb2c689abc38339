package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sudooom.estate.chat/internal/auth"
	apperrors "sudooom.estate.chat/internal/errors"
	"sudooom.estate.chat/internal/model"
)

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

// APIResponse 用于解析响应体
type APIResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func TestAuthMiddleware_Valid(t *testing.T) {
	verifier := auth.NewVerifier("test-secret-key", nil)
	token, err := verifier.Sign(&model.Identity{ID: 7, Email: "buyer@example.com"}, time.Hour)
	require.NoError(t, err)

	router := setupTestRouter()
	router.GET("/me", AuthMiddleware(verifier), func(c *gin.Context) {
		identity := identityFrom(c)
		c.JSON(http.StatusOK, identity)
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var identity model.Identity
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &identity))
	assert.Equal(t, int64(7), identity.ID)
	assert.Equal(t, "buyer@example.com", identity.Email)
}

func TestAuthMiddleware_Rejected(t *testing.T) {
	verifier := auth.NewVerifier("test-secret-key", nil)

	router := setupTestRouter()
	handlerCalled := false
	router.GET("/me", AuthMiddleware(verifier), func(c *gin.Context) {
		handlerCalled = true
	})

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "garbage token", header: "Bearer not-a-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.False(t, handlerCalled, "handler should not run after rejection")

			var resp APIResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, apperrors.CodeTokenInvalid, resp.Code)
		})
	}
}

func TestAuthMiddleware_WrongSecret(t *testing.T) {
	issuer := auth.NewVerifier("secret-key-1", nil)
	verifier := auth.NewVerifier("secret-key-2", nil)

	token, err := issuer.Sign(&model.Identity{ID: 7, Email: "u@example.com"}, time.Hour)
	require.NoError(t, err)

	router := setupTestRouter()
	router.GET("/me", AuthMiddleware(verifier), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
