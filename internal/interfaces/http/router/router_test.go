package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubRegistrar struct {
	path  string
	calls int
}

func (s *stubRegistrar) RegisterRoutes(rg *gin.RouterGroup) {
	s.calls++
	rg.GET(s.path, func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
}

func TestRouter_Setup(t *testing.T) {
	t.Run("registers under the default version", func(t *testing.T) {
		engine := gin.New()
		reg := &stubRegistrar{path: "/jobs"}

		NewRouter(engine).Register(reg).Setup()

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/jobs", nil))

		assert.Equal(t, 1, reg.calls)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("honors a custom version", func(t *testing.T) {
		engine := gin.New()
		reg := &stubRegistrar{path: "/jobs"}

		NewRouter(engine, WithAPIVersion("v2")).Register(reg).Setup()

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest("GET", "/api/v2/jobs", nil))
		assert.Equal(t, http.StatusOK, w.Code)

		w = httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/jobs", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("registers all registrars", func(t *testing.T) {
		engine := gin.New()
		first := &stubRegistrar{path: "/jobs"}
		second := &stubRegistrar{path: "/sellers"}

		NewRouter(engine).Register(first).Register(second).Setup()

		assert.Equal(t, 1, first.calls)
		assert.Equal(t, 1, second.calls)
	})

	t.Run("health endpoint sits outside the versioned group", func(t *testing.T) {
		engine := gin.New()
		NewRouter(engine, WithHealthCheck(func(c *gin.Context) {
			c.String(http.StatusOK, "healthy")
		})).Setup()

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "healthy", w.Body.String())
	})

	t.Run("no health route without the option", func(t *testing.T) {
		engine := gin.New()
		NewRouter(engine).Setup()

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestRouter_Engine(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)
	assert.Same(t, engine, r.Engine())
}
