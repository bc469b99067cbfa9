package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "progress-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(UserID(r)))
	})
}

func TestAuthMiddleware(t *testing.T) {
	h := AuthMiddleware(testSecret)(echoUser())
	valid := signToken(t, testSecret, jwt.MapClaims{"sub": "advogado-1", "exp": time.Now().Add(time.Hour).Unix()})

	tests := []struct {
		name       string
		target     string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"query token", "/api/run?token=" + valid, "", http.StatusOK, "advogado-1"},
		{"bearer header", "/api/run", "Bearer " + valid, http.StatusOK, "advogado-1"},
		{"no token", "/api/run", "", http.StatusUnauthorized, "No token provided"},
		{"wrong secret", "/api/run", "Bearer " + signToken(t, "other", jwt.MapClaims{"sub": "x"}), http.StatusUnauthorized, "Invalid or expired"},
		{"expired", "/api/run", "Bearer " + signToken(t, testSecret, jwt.MapClaims{"sub": "x", "exp": time.Now().Add(-time.Hour).Unix()}), http.StatusUnauthorized, "Invalid or expired"},
		{"missing sub", "/api/run", "Bearer " + signToken(t, testSecret, jwt.MapClaims{"name": "x"}), http.StatusUnauthorized, "sub"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
}

func TestAuthMiddlewareDisabled(t *testing.T) {
	w := httptest.NewRecorder()
	AuthMiddleware("")(echoUser()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/run", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, Anonymous, w.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	called := false
	h := CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/run", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.False(t, called)
}

func TestRequestLoggerRecoversPanic(t *testing.T) {
	h := RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/run", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
