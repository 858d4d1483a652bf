package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const OperatorIDKey contextKey = "operator_id"

// Middleware validates the bearer JWT and stores the operator ID on the
// request context.
func (s *Service) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		tokenString := bearerToken(c)
		if tokenString == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Missing bearer token")
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		})
		if err != nil || !token.Valid {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token claims")
		}
		sub, err := claims.GetSubject()
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token subject")
		}
		operatorID, err := uuid.Parse(sub)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid operator ID in token")
		}

		c.Set(string(OperatorIDKey), operatorID)
		return next(c)
	}
}

// AdminOrToken admits requests presenting the admin secret (X-Admin-Secret
// header or as the bearer token) and falls back to operator JWT validation.
func (s *Service) AdminOrToken(adminSecret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			candidate := c.Request().Header.Get("X-Admin-Secret")
			if candidate == "" {
				candidate = bearerToken(c)
			}
			if candidate != "" && adminSecret != "" &&
				subtle.ConstantTimeCompare([]byte(candidate), []byte(adminSecret)) == 1 {
				return next(c)
			}
			return s.Middleware(next)(c)
		}
	}
}

// OperatorIDFromContext retrieves the operator ID the middleware stored.
func OperatorIDFromContext(c echo.Context) (uuid.UUID, error) {
	id, ok := c.Get(string(OperatorIDKey)).(uuid.UUID)
	if !ok {
		return uuid.Nil, errors.New("operator ID not found in context")
	}
	return id, nil
}

func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
