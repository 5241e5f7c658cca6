package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// tenantKey is the gin context key holding the authenticated tenant ID.
const tenantKey = "tenant"

// ErrInvalidToken is returned for tokens that fail verification or carry no
// tenant.
var ErrInvalidToken = errors.New("api: invalid token")

// IssueToken mints an HS256 bearer token for tenantID valid for ttl.
func IssueToken(secret, tenantID string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("api: issue token: secret is required")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"id":  tenantID,
		"sub": tenantID,
		"iat": jwt.NewNumericDate(now),
		"exp": jwt.NewNumericDate(now.Add(ttl)),
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("api: issue token: %w", err)
	}
	return s, nil
}

// ParseToken verifies token and returns its tenant: the "id" claim, or
// "sub" when id is absent.
func ParseToken(secret, token string) (string, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", ErrInvalidToken
	}
	if id, ok := claims["id"].(string); ok && id != "" {
		return id, nil
	}
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub, nil
	}
	return "", ErrInvalidToken
}

// requireTenant rejects requests without a valid bearer token and stores the
// tenant ID on the context.
func requireTenant(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "No token, authorization denied"})
			return
		}
		tenant, err := ParseToken(secret, raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Token is not valid"})
			return
		}
		c.Set(tenantKey, tenant)
		c.Next()
	}
}

func tenantOf(c *gin.Context) string {
	return c.GetString(tenantKey)
}
