package middleware

// identity.go holds the context keys written by JWTAuth and the helpers
// that read them back.  Unauthenticated requests read as "anon".

import "github.com/labstack/echo/v4"

const (
	userIDKey = "user_id"
	roleKey   = "role"
)

// CurrentUserID returns the authenticated subject, or "anon".
func CurrentUserID(c echo.Context) string {
	if s, ok := c.Get(userIDKey).(string); ok && s != "" {
		return s
	}
	return "anon"
}

// CurrentRole returns the authenticated role, or "".
func CurrentRole(c echo.Context) string {
	s, _ := c.Get(roleKey).(string)
	return s
}
