package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fpbe/auth-engine/internal/model"
	"github.com/fpbe/auth-engine/internal/service"
)

type KeyHandler struct {
	keys *service.KeyManager
}

func NewKeyHandler(keys *service.KeyManager) *KeyHandler {
	return &KeyHandler{keys: keys}
}

// Rotate godoc
// @Summary Rotate the signing key now
// @Description Manual rotation for suspected compromise; tokens signed by the outgoing key stay verifiable for the grace period.
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.StatusResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/admin/keys/rotate [post]
func (h *KeyHandler) Rotate(c *gin.Context) {
	if err := h.keys.Rotate(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "rotation failed"})
		return
	}
	c.JSON(http.StatusOK, model.StatusResponse{Status: "rotated"})
}
