package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogMiddlewareRecordsStatus(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	h := LogMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/puzzles", nil))

	assert.Equal(t, http.StatusTeapot, rr.Code)
	assert.NotEmpty(t, rr.Header().Get(RequestIDHeader))
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, http.StatusTeapot, entry.Data["status"])
	assert.Equal(t, "/puzzles", entry.Data["path"])
	assert.Equal(t, logrus.InfoLevel, entry.Level)
}

func TestLogMiddlewareKeepsRequestIDAndWarnsOn5xx(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	h := LogMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	req := httptest.NewRequest(http.MethodPost, "/game/create", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "abc", rr.Header().Get(RequestIDHeader))
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestLogWebSocketDisconnectIncludesError(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	LogWebSocketConnect(logger, "1.2.3.4", "/game/ws/x")
	LogWebSocketDisconnect(logger, "1.2.3.4", "/game/ws/x", errors.New("gone"))

	require.Len(t, hook.AllEntries(), 2)
	assert.Equal(t, "gone", hook.LastEntry().Data["error"].(error).Error())
}
