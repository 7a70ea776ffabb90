package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jsantic/authgate/internal/core/domain"
	"github.com/jsantic/authgate/internal/usecase"
)

const (
	// SessionCookie is the cookie carrying the session id.
	SessionCookie = "session_id"
	// CSRFHeader must echo the session's CSRF token on mutating requests.
	CSRFHeader = "X-CSRF-Token"
)

// SessionGuard authenticates the request from the session cookie and enforces
// the CSRF double-submit check on mutating methods. The validated session and
// its user id are stored on the gin context.
func SessionGuard(sessions *usecase.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, err := c.Cookie(SessionCookie)
		if err != nil || sessionID == "" {
			abortUnauthorized(c, "authentication required")
			return
		}

		session, err := sessions.Validate(c.Request.Context(), sessionID)
		if err != nil {
			abortUnauthorized(c, "session expired or invalid")
			return
		}

		if mutating(c.Request.Method) {
			token := c.GetHeader(CSRFHeader)
			if subtle.ConstantTimeCompare([]byte(token), []byte(session.CSRFToken)) != 1 {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"error":    "csrf token mismatch",
					"trace_id": GetTraceID(c),
				})
				return
			}
		}

		c.Set(SessionKey, session)
		c.Set(UserIDKey, session.UserID)

		c.Next()
	}
}

// GetSession retrieves the session stored by SessionGuard.
func GetSession(c *gin.Context) (*domain.Session, bool) {
	val, exists := c.Get(SessionKey)
	if !exists {
		return nil, false
	}
	session, ok := val.(*domain.Session)
	return session, ok
}

// GetUserID retrieves the authenticated user id stored by SessionGuard.
func GetUserID(c *gin.Context) (string, bool) {
	val, exists := c.Get(UserIDKey)
	if !exists {
		return "", false
	}
	id, ok := val.(string)
	return id, ok
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":    message,
		"trace_id": GetTraceID(c),
	})
}
