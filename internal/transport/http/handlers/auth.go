package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jsantic/authgate/internal/core/domain"
	"github.com/jsantic/authgate/internal/infra/security"
	"github.com/jsantic/authgate/internal/transport/http/middleware"
	"github.com/jsantic/authgate/internal/usecase"
)

// AuthHandler exposes registration, login, and credential lifecycle endpoints.
type AuthHandler struct {
	auth     *usecase.AuthService
	sessions *usecase.SessionService
	isDev    bool
}

// AuthHandlerOption configures optional AuthHandler dependencies.
type AuthHandlerOption func(*AuthHandler)

// WithDevMode toggles development-only behaviour (e.g. insecure cookies).
func WithDevMode(isDev bool) AuthHandlerOption {
	return func(h *AuthHandler) {
		h.isDev = isDev
	}
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth *usecase.AuthService, sessions *usecase.SessionService, opts ...AuthHandlerOption) *AuthHandler {
	handler := &AuthHandler{
		auth:     auth,
		sessions: sessions,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(handler)
		}
	}

	return handler
}

// RegisterRoutes binds authentication routes. Routes that require an
// established session are wrapped with the session guard.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/register", h.register)
	r.POST("/verify-email", h.verifyEmail)
	r.POST("/resend-verification", h.resendVerification)
	r.POST("/login", h.login)
	r.POST("/verify-otp", h.verifyOTP)
	r.POST("/forgot-password", h.forgotPassword)
	r.POST("/verify-forgot-password", h.verifyForgotPassword)
	r.POST("/reset-password", h.resetPassword)

	guarded := r.Group("", middleware.SessionGuard(h.sessions))
	guarded.POST("/setup-otp", h.setupOTP)
	guarded.POST("/change-password", h.changePassword)
	guarded.POST("/logout", h.logout)
}

func (h *AuthHandler) register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid registration payload"))
		return
	}

	result, err := h.auth.StartRegistration(c.Request.Context(), usecase.RegistrationInput{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		var policyErr *security.PasswordValidationError
		if errors.As(err, &policyErr) {
			c.JSON(http.StatusUnprocessableEntity, NewErrorResponse(c, policyErr.Error()))
			return
		}
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrEmailTaken, Status: http.StatusConflict, Message: "email already registered"},
			{Err: usecase.ErrEmailCooldown, Status: http.StatusTooManyRequests, Message: "verification email recently sent"},
		}, http.StatusInternalServerError, "failed to register")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"user":    newUserSummary(result.User),
		"message": result.Message,
	})
}

func (h *AuthHandler) verifyEmail(c *gin.Context) {
	var req EmailTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid verification payload"))
		return
	}

	user, err := h.auth.VerifyRegistrationToken(c.Request.Context(), req.Token)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidToken, Status: http.StatusBadRequest, Message: "invalid or expired verification token"},
		}, http.StatusInternalServerError, "failed to verify email")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":    newUserSummary(user),
		"message": "email verified",
	})
}

func (h *AuthHandler) resendVerification(c *gin.Context) {
	var req ResendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid resend payload"))
		return
	}

	if err := h.auth.ResendRegistrationToken(c.Request.Context(), req.Email); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidCredentials, Status: http.StatusNotFound, Message: "account not found"},
			{Err: usecase.ErrAlreadyVerified, Status: http.StatusConflict, Message: "email already verified"},
			{Err: usecase.ErrEmailCooldown, Status: http.StatusTooManyRequests, Message: "verification email recently sent"},
		}, http.StatusInternalServerError, "failed to resend verification")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "verification email sent"})
}

func (h *AuthHandler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	outcome, err := h.auth.Login(c.Request.Context(), usecase.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		Remember: req.Remember,
	})
	if err != nil {
		RespondWithMappedError(c, err, loginErrorCases(), http.StatusInternalServerError, "failed to login")
		return
	}

	h.respondWithOutcome(c, outcome)
}

func (h *AuthHandler) verifyOTP(c *gin.Context) {
	var req OTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid otp payload"))
		return
	}

	result, err := h.auth.VerifyOTP(c.Request.Context(), usecase.OTPInput{
		Code:     req.Code,
		Token:    req.Token,
		Remember: req.Remember,
	})
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidToken, Status: http.StatusUnauthorized, Message: "invalid or expired challenge token"},
			{Err: usecase.ErrInvalidOTP, Status: http.StatusBadRequest, Message: "invalid one-time code"},
			{Err: usecase.ErrRateExceeded, Status: http.StatusTooManyRequests, Message: "too many attempts"},
			{Err: usecase.ErrAccountFrozen, Status: http.StatusLocked, Message: "account is frozen"},
		}, http.StatusInternalServerError, "failed to verify code")
		return
	}

	h.setSessionCookie(c, result.Session)
	c.JSON(http.StatusOK, LoginResponse{
		User:    newUserSummary(result.User),
		Session: newSessionSummary(result.Session),
	})
}

func (h *AuthHandler) setupOTP(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	setup, err := h.auth.SetOTPSecret(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to provision authenticator"))
		return
	}

	c.JSON(http.StatusOK, OTPSetupResponse{Secret: setup.Secret, URI: setup.URI})
}

func (h *AuthHandler) changePassword(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid change password payload"))
		return
	}

	session, err := h.auth.ChangePassword(c.Request.Context(), usecase.ChangePasswordInput{
		UserID:          userID,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	})
	if err != nil {
		var policyErr *security.PasswordValidationError
		if errors.As(err, &policyErr) {
			c.JSON(http.StatusUnprocessableEntity, NewErrorResponse(c, policyErr.Error()))
			return
		}
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "current password does not match"},
		}, http.StatusInternalServerError, "failed to change password")
		return
	}

	if session != nil {
		h.setSessionCookie(c, session)
		c.JSON(http.StatusOK, gin.H{
			"message": "password changed",
			"session": newSessionSummary(session),
		})
		return
	}

	h.clearSessionCookie(c)
	c.JSON(http.StatusOK, MessageResponse{Message: "password changed, please sign in again"})
}

func (h *AuthHandler) forgotPassword(c *gin.Context) {
	var req ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid forgot password payload"))
		return
	}

	err := h.auth.ForgotPassword(c.Request.Context(), req.Email)
	if err != nil && !errors.Is(err, usecase.ErrInvalidCredentials) {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrEmailCooldown, Status: http.StatusTooManyRequests, Message: "recovery email recently sent"},
		}, http.StatusInternalServerError, "failed to start recovery")
		return
	}

	// Unknown emails get the same response so account existence is not leaked.
	c.JSON(http.StatusOK, MessageResponse{Message: "if the account exists, a recovery email was sent"})
}

func (h *AuthHandler) verifyForgotPassword(c *gin.Context) {
	var req ForgotPasswordVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid recovery payload"))
		return
	}

	result, err := h.auth.VerifyForgotPassword(c.Request.Context(), req.Token, req.Password)
	if err != nil {
		var policyErr *security.PasswordValidationError
		if errors.As(err, &policyErr) {
			c.JSON(http.StatusUnprocessableEntity, NewErrorResponse(c, policyErr.Error()))
			return
		}
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidToken, Status: http.StatusBadRequest, Message: "invalid or expired recovery token"},
		}, http.StatusInternalServerError, "failed to complete recovery")
		return
	}

	h.setSessionCookie(c, result.Session)
	c.JSON(http.StatusOK, LoginResponse{
		User:    newUserSummary(result.User),
		Session: newSessionSummary(result.Session),
	})
}

func (h *AuthHandler) resetPassword(c *gin.Context) {
	var req EmailTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid reset payload"))
		return
	}

	if err := h.auth.ResetPassword(c.Request.Context(), req.Token); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidToken, Status: http.StatusBadRequest, Message: "invalid or expired reset token"},
		}, http.StatusInternalServerError, "failed to reset password")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "a temporary password was emailed to you"})
}

func (h *AuthHandler) logout(c *gin.Context) {
	session, ok := middleware.GetSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	// The body is optional; an empty body is a plain logout.
	var req LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		req = LogoutRequest{}
	}

	if err := h.auth.Logout(c.Request.Context(), session, req.Purge); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrSessionNotFound, Status: http.StatusUnauthorized, Message: "session not found"},
		}, http.StatusInternalServerError, "failed to logout")
		return
	}

	h.clearSessionCookie(c)
	c.JSON(http.StatusOK, MessageResponse{Message: "logged out"})
}

// respondWithOutcome renders the three possible login results: a session, a
// two-factor challenge, or a freeze notice.
func (h *AuthHandler) respondWithOutcome(c *gin.Context, outcome *usecase.LoginOutcome) {
	switch {
	case outcome.Success != nil:
		h.setSessionCookie(c, outcome.Success.Session)
		c.JSON(http.StatusOK, LoginResponse{
			User:    newUserSummary(outcome.Success.User),
			Session: newSessionSummary(outcome.Success.Session),
		})
	case outcome.Challenge != nil:
		c.JSON(http.StatusAccepted, TwoFactorResponse{
			Username: outcome.Challenge.Username,
			Token:    outcome.Challenge.Token,
			Remember: outcome.Challenge.Remember,
		})
	case outcome.Frozen != nil:
		c.JSON(http.StatusLocked, FreezeResponse{
			Email:   outcome.Frozen.Email,
			Message: outcome.Frozen.Message,
		})
	default:
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to login"))
	}
}

func (h *AuthHandler) setSessionCookie(c *gin.Context, session *domain.Session) {
	maxAge := int(time.Until(session.ExpiresAt).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, session.ID, maxAge, "/", "", !h.isDev, true)
}

func (h *AuthHandler) clearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", !h.isDev, true)
}

func loginErrorCases() []ErrorCase {
	return []ErrorCase{
		{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid email or password"},
		{Err: usecase.ErrEmailUnverified, Status: http.StatusForbidden, Message: "email address not verified"},
		{Err: usecase.ErrAccountFrozen, Status: http.StatusLocked, Message: "account is frozen"},
		{Err: usecase.ErrRateExceeded, Status: http.StatusTooManyRequests, Message: "too many failed attempts"},
	}
}
