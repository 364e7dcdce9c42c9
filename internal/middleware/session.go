package middleware

import (
	"net/http"

	"github.com/dyaksa-edu/cbt-portal/internal/response"
	"github.com/dyaksa-edu/cbt-portal/internal/service"
	"github.com/gin-gonic/gin"
)

// CheckSingleDeviceSession rejects student tokens whose JTI no longer matches
// the session record in Redis. That happens when the student logged in from
// another device or an admin reset their session. Non-student tokens pass
// through untouched.
func CheckSingleDeviceSession(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		switch {
		case claims == nil:
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		case claims.TokenType != service.TokenTypeStudent:
			c.Next()
			return
		}

		if err := authService.ValidateStudentSession(c.Request.Context(), claims.UserID, claims.ID); err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrSessionInvalidated)
			return
		}
		c.Next()
	}
}
