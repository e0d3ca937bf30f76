package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fpbe/auth-engine/internal/model"
	"github.com/fpbe/auth-engine/internal/service"
)

type AuthHandler struct {
	svc   *service.AuthService
	vault *service.BiometricVault
}

func NewAuthHandler(svc *service.AuthService, vault *service.BiometricVault) *AuthHandler {
	return &AuthHandler{svc: svc, vault: vault}
}

// Register godoc
// @Summary Register a new subject
// @Description Creates a credential record when ALLOW_SIGNUP is true.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.RegisterRequest true "Subject ID and password"
// @Success 201 {object} model.StatusResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 403 {object} model.ErrorResponse
// @Failure 409 {object} model.ErrorResponse
// @Router /api/v1/auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid request"})
		return
	}

	if err := h.svc.Register(c.Request.Context(), req.SubjectID, req.Password); err != nil {
		writeAuthError(c, err)
		return
	}
	c.JSON(http.StatusCreated, model.StatusResponse{Status: "registered"})
}

// Login godoc
// @Summary Password login
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.LoginRequest true "Credentials, device ID and fingerprint"
// @Success 200 {object} model.TokenResponse
// @Failure 401 {object} model.ErrorResponse
// @Failure 403 {object} model.ErrorResponse
// @Failure 423 {object} model.ErrorResponse
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid request"})
		return
	}

	pair, err := h.svc.Login(c.Request.Context(), req.SubjectID, req.Password, req.DeviceID, fingerprintFromRequest(req.Fingerprint))
	if err != nil {
		writeAuthError(c, err)
		return
	}
	writeTokenPair(c, pair)
}

// LoginBiometric godoc
// @Summary Biometric login
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.BiometricLoginRequest true "Presented template, device ID and fingerprint"
// @Success 200 {object} model.TokenResponse
// @Failure 401 {object} model.ErrorResponse
// @Failure 423 {object} model.ErrorResponse
// @Failure 429 {object} model.ErrorResponse
// @Router /api/v1/auth/login/biometric [post]
func (h *AuthHandler) LoginBiometric(c *gin.Context) {
	var req model.BiometricLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid request"})
		return
	}

	pair, err := h.svc.LoginBiometric(c.Request.Context(), req.SubjectID, req.Template, req.DeviceID, fingerprintFromRequest(req.Fingerprint))
	if err != nil {
		writeAuthError(c, err)
		return
	}
	writeTokenPair(c, pair)
}

// Refresh godoc
// @Summary Refresh the token pair
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.RefreshRequest true "Refresh token and device ID"
// @Success 200 {object} model.TokenResponse
// @Failure 401 {object} model.ErrorResponse
// @Router /api/v1/auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req model.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid request"})
		return
	}

	pair, err := h.svc.Refresh(c.Request.Context(), req.RefreshToken, req.DeviceID)
	if err != nil {
		writeAuthError(c, err)
		return
	}
	writeTokenPair(c, pair)
}

// Logout godoc
// @Summary Logout
// @Description Revokes the presented token's session; both tokens of the pair die.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.LogoutRequest true "Any token of the session"
// @Success 200 {object} model.StatusResponse
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	var req model.LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid request"})
		return
	}

	_ = h.svc.Logout(c.Request.Context(), req.Token)
	c.JSON(http.StatusOK, model.StatusResponse{Status: "logged_out"})
}

// EnrollBiometric godoc
// @Summary Enroll a biometric template
// @Tags biometric
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body model.BiometricEnrollRequest true "Raw template and device ID"
// @Success 200 {object} model.BiometricEnrollResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 401 {object} model.ErrorResponse
// @Router /api/v1/auth/biometric/enroll [post]
func (h *AuthHandler) EnrollBiometric(c *gin.Context) {
	claims := GetSessionClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Error: "unauthorized"})
		return
	}

	var req model.BiometricEnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid request"})
		return
	}

	result, err := h.vault.Enroll(c.Request.Context(), claims.Subject, req.DeviceID, req.Template, req.Type)
	if err != nil {
		writeAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.BiometricEnrollResponse{
		TemplateHash: result.TemplateHash,
		QualityScore: result.QualityScore,
	})
}

// Session godoc
// @Summary Inspect the current session
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.SessionResponse
// @Failure 401 {object} model.ErrorResponse
// @Router /api/v1/auth/session [get]
func (h *AuthHandler) Session(c *gin.Context) {
	claims := GetSessionClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Error: "unauthorized"})
		return
	}
	var expiresAt int64
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Unix()
	}
	c.JSON(http.StatusOK, model.SessionResponse{
		SubjectID: claims.Subject,
		SessionID: claims.SessionID,
		DeviceID:  claims.DeviceID,
		Kind:      string(claims.Kind),
		ExpiresAt: expiresAt,
	})
}

func fingerprintFromRequest(fp model.FingerprintRequest) service.Fingerprint {
	return service.Fingerprint{
		Platform:       fp.Platform,
		OSVersion:      fp.OSVersion,
		AppVersion:     fp.AppVersion,
		DeviceUniqueID: fp.DeviceUniqueID,
		RiskSignal:     fp.RiskSignal,
	}
}

func writeTokenPair(c *gin.Context, pair *service.TokenPair) {
	c.JSON(http.StatusOK, model.TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	})
}

// writeAuthError maps engine errors to HTTP responses. Credential and
// biometric mismatches collapse into one generic 401 so a caller
// cannot tell which factor failed; the precise kind is logged.
func writeAuthError(c *gin.Context, err error) {
	var locked *model.AccountLockedError
	var tooMany *model.TooManyAttemptsError

	switch {
	case errors.As(err, &locked):
		c.JSON(http.StatusLocked, model.ErrorResponse{
			Error:      "account locked",
			RetryAfter: int64(locked.RetryAfter.Seconds()),
		})
	case errors.As(err, &tooMany):
		c.JSON(http.StatusTooManyRequests, model.ErrorResponse{
			Error:      "too many attempts",
			RetryAfter: int64(tooMany.RetryAfter.Seconds()),
		})
	case errors.Is(err, model.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid input"})
	case errors.Is(err, model.ErrConflict):
		c.JSON(http.StatusConflict, model.ErrorResponse{Error: "already exists"})
	case errors.Is(err, model.ErrPolicyDenied):
		c.JSON(http.StatusForbidden, model.ErrorResponse{Error: "forbidden"})
	case errors.Is(err, model.ErrDeviceTrustFailed):
		c.JSON(http.StatusForbidden, model.ErrorResponse{Error: "device not trusted"})
	case errors.Is(err, model.ErrLowQuality):
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "template quality too low"})
	case errors.Is(err, model.ErrTransient):
		c.JSON(http.StatusServiceUnavailable, model.ErrorResponse{Error: "temporarily unavailable"})
	case errors.Is(err, model.ErrUnauthorized),
		errors.Is(err, model.ErrExpired),
		errors.Is(err, model.ErrInvalidSignature),
		errors.Is(err, model.ErrInvalidKey),
		errors.Is(err, model.ErrRevoked),
		errors.Is(err, model.ErrDeviceMismatch),
		errors.Is(err, model.ErrWrongTokenKind),
		errors.Is(err, model.ErrMalformed),
		errors.Is(err, model.ErrLivenessFailed),
		errors.Is(err, model.ErrIntegrityFailure),
		errors.Is(err, model.ErrNotFound):
		log.Printf("[auth] authentication failed: %v", err)
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Error: "authentication failed"})
	default:
		log.Printf("[auth] internal error: %v", err)
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "server error"})
	}
}
