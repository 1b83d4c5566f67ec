package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/libstats-api/internal/middleware"
	"github.com/noah-isme/libstats-api/internal/models"
	"github.com/noah-isme/libstats-api/internal/service"
	appErrors "github.com/noah-isme/libstats-api/pkg/errors"
	"github.com/noah-isme/libstats-api/pkg/response"
)

// SurveyHandler exposes survey session endpoints.
type SurveyHandler struct {
	service *service.SurveySessionService
}

// NewSurveyHandler constructs a survey handler.
func NewSurveyHandler(svc *service.SurveySessionService) *SurveyHandler {
	return &SurveyHandler{service: svc}
}

// List godoc
// @Summary List survey sessions
// @Tags Survey Sessions
// @Produce json
// @Param year query int false "Filter by academic year"
// @Param isOpen query bool false "Filter by open flag"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /survey-sessions [get]
func (h *SurveyHandler) List(c *gin.Context) {
	var filter models.SessionFilter
	if year, err := strconv.Atoi(c.Query("year")); err == nil {
		filter.AcademicYear = year
	}
	if isOpen := c.Query("isOpen"); isOpen != "" {
		if val, err := strconv.ParseBool(isOpen); err == nil {
			filter.IsOpen = &val
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	sessions, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, pagination)
}

// Get godoc
// @Summary Get the session for an academic year
// @Tags Survey Sessions
// @Produce json
// @Param year path int true "Academic year"
// @Success 200 {object} response.Envelope
// @Router /survey-sessions/{year} [get]
func (h *SurveyHandler) Get(c *gin.Context) {
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid academic year"))
		return
	}
	session, err := h.service.Get(c.Request.Context(), year)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil, map[string]interface{}{
		"active": session.Active(time.Now().UTC()),
	})
}

// OpenRecords godoc
// @Summary List form records still open for a year
// @Description Shows the per-library records blocking a closing transition's verification.
// @Tags Survey Sessions
// @Produce json
// @Param year path int true "Academic year"
// @Success 200 {object} response.Envelope
// @Router /survey-sessions/{year}/open-records [get]
func (h *SurveyHandler) OpenRecords(c *gin.Context) {
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid academic year"))
		return
	}
	records, err := h.service.OpenRecords(c.Request.Context(), year)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Create godoc
// @Summary Create or update a survey session
// @Description Creates the session and its three scheduled events. Immediate mode opens forms and fires the broadcast now.
// @Tags Survey Sessions
// @Accept json
// @Produce json
// @Param payload body service.CreateSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Router /survey-sessions [post]
func (h *SurveyHandler) Create(c *gin.Context) {
	var req service.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if claims := middleware.Claims(c); claims != nil {
		req.RequestedBy = claims.UserID
	}
	result, err := h.service.CreateSession(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}
