package middleware

import "github.com/labstack/echo/v4"

const userIDKey = "user_id"

// UserID returns the authenticated caller set by JWTAuth or OptionalJWT.
func UserID(c echo.Context) (uint64, bool) {
	uid, ok := c.Get(userIDKey).(uint64)
	return uid, ok && uid != 0
}
