package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping() error { return f.err }

func newSystemRouter(h *SystemHandler) *gin.Engine {
	engine := gin.New()
	rg := engine.Group("/api/v1")
	h.RegisterRoutes(rg)
	engine.GET("/health", h.Health)
	return engine
}

func TestSystemHandler_Ping(t *testing.T) {
	router := newSystemRouter(NewSystemHandler(nil))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/system/ping", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w.Body)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "pong", data["message"])
}

func TestSystemHandler_GetSystemInfo(t *testing.T) {
	router := newSystemRouter(NewSystemHandler(nil))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/system/info", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w.Body)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "ReviewSync API", data["name"])
	assert.NotEmpty(t, data["go_version"])
}

func TestSystemHandler_Health(t *testing.T) {
	t.Run("no database wired", func(t *testing.T) {
		router := newSystemRouter(NewSystemHandler(nil))

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		resp := decodeResponse(t, w.Body)
		data := resp.Data.(map[string]any)
		assert.Equal(t, "ok", data["status"])
		assert.NotContains(t, data, "database")
	})

	t.Run("database reachable", func(t *testing.T) {
		router := newSystemRouter(NewSystemHandler(&fakePinger{}))

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		resp := decodeResponse(t, w.Body)
		data := resp.Data.(map[string]any)
		assert.Equal(t, "ok", data["database"])
	})

	t.Run("database unreachable", func(t *testing.T) {
		router := newSystemRouter(NewSystemHandler(&fakePinger{err: errors.New("connection refused")}))

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		resp := decodeResponse(t, w.Body)
		data := resp.Data.(map[string]any)
		assert.Equal(t, "degraded", data["status"])
		assert.Equal(t, "unreachable", data["database"])
	})
}
