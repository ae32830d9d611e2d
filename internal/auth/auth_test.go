package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	issuer, err := NewIssuer("secret", time.Hour)
	require.NoError(t, err)

	token, err := issuer.GenerateToken(42, RoleAdmin)
	require.NoError(t, err)

	claims, err := issuer.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.PlayerID)
	assert.Equal(t, RoleAdmin, claims.Role)
	assert.Equal(t, "42", claims.Subject)
}

func TestTokenRejections(t *testing.T) {
	issuer, err := NewIssuer("secret", time.Hour)
	require.NoError(t, err)
	token, err := issuer.GenerateToken(7, "")
	require.NoError(t, err)

	other, err := NewIssuer("another-secret", time.Hour)
	require.NoError(t, err)
	_, err = other.ValidateToken(token)
	assert.Error(t, err, "wrong secret")

	start := time.Now()
	issuer.now = func() time.Time { return start.Add(2 * time.Hour) }
	_, err = issuer.ValidateToken(token)
	assert.Error(t, err, "expired")

	_, err = issuer.GenerateToken(0, "")
	assert.Error(t, err)

	_, err = NewIssuer("", time.Hour)
	assert.Error(t, err)
}

func TestMiddlewareAndRoles(t *testing.T) {
	gin.SetMode(gin.TestMode)
	issuer, err := NewIssuer("secret", time.Hour)
	require.NoError(t, err)

	r := gin.New()
	r.Use(Middleware(issuer))
	r.GET("/me", func(c *gin.Context) {
		id, ok := GetPlayerID(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"player_id": id})
	})
	r.GET("/admin", RequireRole(RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	send := func(path, header string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	player, err := issuer.GenerateToken(5, "")
	require.NoError(t, err)
	admin, err := issuer.GenerateToken(1, RoleAdmin)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, send("/me", ""))
	assert.Equal(t, http.StatusUnauthorized, send("/me", "Token "+player))
	assert.Equal(t, http.StatusUnauthorized, send("/me", "Bearer garbage"))
	assert.Equal(t, http.StatusOK, send("/me", "Bearer "+player))
	assert.Equal(t, http.StatusForbidden, send("/admin", "Bearer "+player))
	assert.Equal(t, http.StatusNoContent, send("/admin", "Bearer "+admin))
}
