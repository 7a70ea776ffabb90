package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jsantic/authgate/internal/core/domain"
	"github.com/jsantic/authgate/internal/transport/http/middleware"
	"github.com/jsantic/authgate/internal/usecase"
)

// OAuthHandler exposes provider login and token maintenance endpoints.
type OAuthHandler struct {
	oauth    *usecase.OAuthService
	sessions *usecase.SessionService
	isDev    bool
}

// NewOAuthHandler constructs OAuthHandler.
func NewOAuthHandler(oauth *usecase.OAuthService, sessions *usecase.SessionService, isDev bool) *OAuthHandler {
	return &OAuthHandler{
		oauth:    oauth,
		sessions: sessions,
		isDev:    isDev,
	}
}

// RegisterRoutes binds OAuth routes under the supplied group.
func (h *OAuthHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/login/:provider", h.login)

	guarded := r.Group("", middleware.SessionGuard(h.sessions))
	guarded.POST("/scopes", h.requestAdditionalScopes)
	guarded.POST("/refresh", h.refreshTokens)
}

func (h *OAuthHandler) login(c *gin.Context) {
	provider := domain.OAuthProvider(c.Param("provider"))

	var req OAuthCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid oauth payload"))
		return
	}

	result, err := h.oauth.Login(c.Request.Context(), provider, req.Code)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrUnknownProvider, Status: http.StatusNotFound, Message: "unknown provider"},
			{Err: usecase.ErrEmailUnverified, Status: http.StatusForbidden, Message: "provider account has no verified email"},
			{Err: usecase.ErrAccountFrozen, Status: http.StatusLocked, Message: "account is frozen"},
		}, http.StatusBadGateway, "provider exchange failed")
		return
	}

	h.setSessionCookie(c, result.Session)
	c.JSON(http.StatusOK, LoginResponse{
		User:    newUserSummary(result.User),
		Session: newSessionSummary(result.Session),
	})
}

func (h *OAuthHandler) requestAdditionalScopes(c *gin.Context) {
	session, ok := middleware.GetSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req OAuthCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid oauth payload"))
		return
	}

	updated, err := h.oauth.RequestAdditionalScopes(c.Request.Context(), session, req.Code)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidToken, Status: http.StatusConflict, Message: "session was not established through a provider"},
		}, http.StatusBadGateway, "provider exchange failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": newSessionSummary(updated)})
}

func (h *OAuthHandler) refreshTokens(c *gin.Context) {
	session, ok := middleware.GetSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req OAuthRefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid refresh payload"))
		return
	}

	updated, err := h.oauth.RefreshTokens(c.Request.Context(), session, req.RefreshToken)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidToken, Status: http.StatusConflict, Message: "session was not established through a provider"},
		}, http.StatusBadGateway, "provider refresh failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": newSessionSummary(updated)})
}

func (h *OAuthHandler) setSessionCookie(c *gin.Context, session *domain.Session) {
	maxAge := int(time.Until(session.ExpiresAt).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, session.ID, maxAge, "/", "", !h.isDev, true)
}
