package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestHealth(t *testing.T) {
	s := New(nil, nil, nil, nil, nil, nil, nil, "agent-1")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCreatePlan_RequiresRoomIDAndQuery(t *testing.T) {
	s := New(nil, nil, nil, nil, nil, nil, nil, "agent-1")

	req := httptest.NewRequest(http.MethodPost, "/api/create_plan", strings.NewReader(`{"room_id":""}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPerformRequest_RequiresLogID(t *testing.T) {
	s := New(nil, nil, nil, nil, nil, nil, nil, "agent-1")

	req := httptest.NewRequest(http.MethodPost, "/api/perform", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
