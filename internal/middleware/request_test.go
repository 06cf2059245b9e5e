package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/haierkeys/contact-identity-service/pkg/code"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextTimeout(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var deadline time.Time
	var hasDeadline bool
	r := gin.New()
	r.Use(ContextTimeout(time.Minute))
	r.GET("/", func(c *gin.Context) {
		deadline, hasDeadline = c.Request.Context().Deadline()
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.True(t, hasDeadline)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)

	r = gin.New()
	r.Use(ContextTimeout(0))
	r.GET("/", func(c *gin.Context) {
		_, hasDeadline = c.Request.Context().Deadline()
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, hasDeadline)
}

func TestNoFoundAndAppInfo(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(AppInfo("svc", "9.9.9"))
	r.GET("/host", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(CtxKeyAccessHost))
	})
	r.NoRoute(NoFound())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/host", nil)
	req.Host = "contacts.local"
	req.Header.Set("X-Forwarded-Proto", "https")
	r.ServeHTTP(w, req)
	assert.Equal(t, "https://contacts.local", w.Body.String())
	assert.Equal(t, "9.9.9", w.Header().Get(HeaderAppVersion))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/missing", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Code    int    `json:"code"`
		Details string `json:"details"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, code.ErrorNotFoundAPI.Code(), body.Code)
	assert.Equal(t, "DELETE /missing", body.Details)
}
