// Package auth implements the claim-extraction boundary of the booking
// backend. Identity itself lives in an external identity provider; this
// package only validates the bearer token and exposes the caller's id,
// practice and roles to downstream middleware and handlers.
package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserRolesKey contextKey = "user_roles"
)

// Claims carries the token claims the booking backend cares about.
type Claims struct {
	jwt.RegisteredClaims
	PracticeID string   `json:"practice_id"`
	Roles      []string `json:"roles"`
}

// JWTConfig configures token validation.
type JWTConfig struct {
	Issuer     string
	Audience   string
	SigningKey []byte
}

// JWTMiddleware validates the Authorization bearer token and plants the
// caller's identity in the request context.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}
			raw := strings.TrimPrefix(header, "Bearer ")

			claims := &Claims{}
			opts := []jwt.ParserOption{
				jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
				jwt.WithLeeway(30 * time.Second),
			}
			if cfg.Issuer != "" {
				opts = append(opts, jwt.WithIssuer(cfg.Issuer))
			}
			if cfg.Audience != "" {
				opts = append(opts, jwt.WithAudience(cfg.Audience))
			}

			token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
				return cfg.SigningKey, nil
			}, opts...)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			applyClaims(c, claims)
			return next(c)
		}
	}
}

// DevAuthMiddleware grants every request an admin identity. Development only.
func DevAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			applyClaims(c, &Claims{
				RegisteredClaims: jwt.RegisteredClaims{Subject: "dev-user"},
				Roles:            []string{"admin"},
			})
			return next(c)
		}
	}
}

func applyClaims(c echo.Context, claims *Claims) {
	ctx := c.Request().Context()
	ctx = context.WithValue(ctx, UserIDKey, claims.Subject)
	ctx = context.WithValue(ctx, UserRolesKey, claims.Roles)
	c.SetRequest(c.Request().WithContext(ctx))
	// Consumed by the practice middleware for schema resolution.
	c.Set("jwt_practice_id", claims.PracticeID)
	c.Set("user_id", claims.Subject)
}

// UserIDFromContext returns the authenticated subject, or "" when absent.
func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

// RolesFromContext returns the caller's roles, or nil when absent.
func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(UserRolesKey).([]string)
	return roles
}
