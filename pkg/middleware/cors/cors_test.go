package cors

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sma-finance-api/pkg/config"
)

func corsRouter(cfg config.CORSConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(New(cfg))
	router.GET("/tuition/matrix", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func TestCORSAllowList(t *testing.T) {
	router := corsRouter(config.CORSConfig{AllowedOrigins: []string{"https://finance.sma.sch.id/"}, MaxAge: 10 * time.Minute})

	req := httptest.NewRequest(http.MethodGet, "/tuition/matrix", nil)
	req.Header.Set("Origin", "https://finance.sma.sch.id")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "https://finance.sma.sch.id", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))

	req = httptest.NewRequest(http.MethodGet, "/tuition/matrix", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	router := corsRouter(config.CORSConfig{})
	req := httptest.NewRequest(http.MethodOptions, "/tuition/matrix", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-As-Of")
}
