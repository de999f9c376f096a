package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var (
	errMissingToken = errors.New("missing bearer token")
	errInvalidToken = errors.New("invalid token")
)

// JWTAuth validates an HS256 Bearer token and stores its subject as the
// caller's user id (see UserID).  Requests without a valid token get 401.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			uid, err := authenticate(c.Request().Header.Get("Authorization"), secret)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
			}
			c.Set(userIDKey, uid)
			return next(c)
		}
	}
}

// OptionalJWT behaves like JWTAuth when a token is presented and lets
// anonymous requests through otherwise.  A token that is present but
// invalid is still rejected.
func OptionalJWT(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if header == "" {
				return next(c)
			}
			uid, err := authenticate(header, secret)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
			}
			c.Set(userIDKey, uid)
			return next(c)
		}
	}
}

func authenticate(header, secret string) (uint64, error) {
	if !strings.HasPrefix(header, "Bearer ") {
		return 0, errMissingToken
	}
	raw := strings.TrimPrefix(header, "Bearer ")

	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return 0, errInvalidToken
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return 0, errInvalidToken
	}
	uid, ok := subject(claims["sub"])
	if !ok || uid == 0 {
		return 0, errInvalidToken
	}
	return uid, nil
}

// subject accepts the numeric and the string form of the sub claim.
func subject(v interface{}) (uint64, bool) {
	switch s := v.(type) {
	case float64:
		if s < 1 || s != float64(uint64(s)) {
			return 0, false
		}
		return uint64(s), true
	case string:
		n, err := strconv.ParseUint(s, 10, 64)
		return n, err == nil
	}
	return 0, false
}
