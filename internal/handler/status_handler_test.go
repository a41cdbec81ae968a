package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nickaq/tg-bot-schedule/internal/models"
	"github.com/nickaq/tg-bot-schedule/internal/service"
	appErrors "github.com/nickaq/tg-bot-schedule/pkg/errors"
)

type statusServiceStub struct {
	report *service.StatusReport
	err    error
}

func (s *statusServiceStub) Status(ctx context.Context, chatID int64) (*service.StatusReport, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.report, nil
}

func newTestRouter(stub *statusServiceStub) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(
		NewStatusHandler(stub),
		NewMetricsHandler(service.NewMetricsService()),
		zap.NewNop(),
	)
}

func TestStatusByChat(t *testing.T) {
	stub := &statusServiceStub{report: &service.StatusReport{
		ChatID:         42,
		HasCredentials: true,
		Lessons:        []models.Lesson{{ID: "lesson-1", Name: "Physics"}},
		RecentAttempts: []models.AttendanceAttempt{},
	}}
	router := newTestRouter(stub)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status/42", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data service.StatusReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int64(42), body.Data.ChatID)
	assert.True(t, body.Data.HasCredentials)
	require.Len(t, body.Data.Lessons, 1)
	assert.Equal(t, "Physics", body.Data.Lessons[0].Name)
}

func TestStatusByChatRejectsNonNumericID(t *testing.T) {
	router := newTestRouter(&statusServiceStub{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status/abc", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatusByChatUnknownUser(t *testing.T) {
	router := newTestRouter(&statusServiceStub{err: appErrors.ErrNotFound})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status/42", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	router := newTestRouter(&statusServiceStub{})

	for _, path := range []string{"/health", "/ready", "/metrics", "/engine"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}
