package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fpbe/auth-engine/internal/model"
	"github.com/fpbe/auth-engine/internal/service"
)

type DeviceHandler struct {
	assessor *service.DeviceTrustAssessor
}

func NewDeviceHandler(assessor *service.DeviceTrustAssessor) *DeviceHandler {
	return &DeviceHandler{assessor: assessor}
}

// Assess godoc
// @Summary Score a device fingerprint
// @Description Deterministic trust score; identical fingerprints always score the same.
// @Tags device
// @Accept json
// @Produce json
// @Param request body model.DeviceAssessRequest true "Device fingerprint"
// @Success 200 {object} model.DeviceAssessResponse
// @Failure 400 {object} model.ErrorResponse
// @Router /api/v1/auth/device/assess [post]
func (h *DeviceHandler) Assess(c *gin.Context) {
	var req model.DeviceAssessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid request"})
		return
	}

	assessment := h.assessor.Assess(fingerprintFromRequest(req.Fingerprint))
	c.JSON(http.StatusOK, model.DeviceAssessResponse{
		TrustScore: assessment.TrustScore,
		RiskLevel:  assessment.RiskLevel,
		Factors:    assessment.Factors,
	})
}
