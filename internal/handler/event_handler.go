package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/libstats-api/internal/middleware"
	"github.com/noah-isme/libstats-api/internal/models"
	"github.com/noah-isme/libstats-api/internal/service"
	"github.com/noah-isme/libstats-api/pkg/response"
)

// EventHandler exposes scheduled event endpoints.
type EventHandler struct {
	service *service.ScheduledEventService
}

// NewEventHandler constructs an event handler.
func NewEventHandler(svc *service.ScheduledEventService) *EventHandler {
	return &EventHandler{service: svc}
}

// List godoc
// @Summary List scheduled events
// @Tags Scheduled Events
// @Produce json
// @Param year query int false "Filter by academic year"
// @Param kind query string false "Filter by kind"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /events [get]
func (h *EventHandler) List(c *gin.Context) {
	var filter models.EventFilter
	if year, err := strconv.Atoi(c.Query("year")); err == nil {
		filter.AcademicYear = year
	}
	if kind := c.Query("kind"); kind != "" {
		filter.Kind = models.EventKind(kind)
	}
	if status := c.Query("status"); status != "" {
		filter.Status = models.EventStatus(status)
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	events, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, pagination)
}

// Get godoc
// @Summary Get a scheduled event
// @Tags Scheduled Events
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Router /events/{id} [get]
func (h *EventHandler) Get(c *gin.Context) {
	event, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// Cancel godoc
// @Summary Cancel a pending scheduled event
// @Description Only super administrators may cancel. Completed or cancelled events are not cancellable.
// @Tags Scheduled Events
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Router /events/{id}/cancel [post]
func (h *EventHandler) Cancel(c *gin.Context) {
	event, err := h.service.Cancel(c.Request.Context(), c.Param("id"), middleware.Claims(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}
