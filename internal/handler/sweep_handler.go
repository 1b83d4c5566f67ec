package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/libstats-api/internal/service"
	"github.com/noah-isme/libstats-api/pkg/response"
)

// SweepHandler exposes the on-demand reconciliation sweep for manual recovery.
type SweepHandler struct {
	service *service.SweepService
}

// NewSweepHandler constructs a sweep handler.
func NewSweepHandler(svc *service.SweepService) *SweepHandler {
	return &SweepHandler{service: svc}
}

// Run godoc
// @Summary Run the reconciliation sweep now
// @Description Idempotent: re-running never re-sends notifications already recorded as sent.
// @Tags Survey Sweep
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /survey-sweep/run [post]
func (h *SweepHandler) Run(c *gin.Context) {
	result := h.service.RunSweep(c.Request.Context(), time.Now().UTC())
	response.JSON(c, http.StatusOK, result, nil)
}
