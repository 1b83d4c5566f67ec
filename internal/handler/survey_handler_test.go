package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/libstats-api/internal/models"
	"github.com/noah-isme/libstats-api/internal/service"
)

type sessionStoreStub struct {
	session *models.SurveySession
}

func (s *sessionStoreStub) List(ctx context.Context, filter models.SessionFilter) ([]models.SurveySession, int, error) {
	return nil, 0, nil
}

func (s *sessionStoreStub) FindByYear(ctx context.Context, year int) (*models.SurveySession, error) {
	if s.session != nil && s.session.AcademicYear == year {
		return s.session, nil
	}
	return nil, sql.ErrNoRows
}

func (s *sessionStoreStub) ListActiveYears(ctx context.Context, excludeYear int, now time.Time) ([]int, error) {
	return nil, nil
}

func (s *sessionStoreStub) CreateWithEvents(ctx context.Context, session *models.SurveySession, events []models.ScheduledEvent) error {
	return nil
}

func (s *sessionStoreStub) UpdateWithEvents(ctx context.Context, session *models.SurveySession, events []models.ScheduledEvent) error {
	return nil
}

func newSurveyHandler(store *sessionStoreStub) *SurveyHandler {
	return NewSurveyHandler(service.NewSurveySessionService(store, nil, nil, nil, nil, nil, zap.NewNop()))
}

func getSession(t *testing.T, h *SurveyHandler, year string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/survey-sessions/"+year, nil)
	c.Request = req
	c.Params = gin.Params{{Key: "year", Value: year}}
	h.Get(c)
	return w
}

func TestSurveyHandlerGetReportsActiveWindow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := &sessionStoreStub{session: &models.SurveySession{
		ID:           "sess-1",
		AcademicYear: 2026,
		ClosingDate:  time.Now().UTC().Add(24 * time.Hour),
	}}

	w := getSession(t, newSurveyHandler(store), "2026")
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Meta map[string]interface{} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, true, envelope.Meta["active"])

	// A session past its closing date reports inactive.
	store.session.ClosingDate = time.Now().UTC().Add(-24 * time.Hour)
	w = getSession(t, newSurveyHandler(store), "2026")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, false, envelope.Meta["active"])
}

func TestSurveyHandlerGetInvalidYear(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := getSession(t, newSurveyHandler(&sessionStoreStub{}), "not-a-year")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
