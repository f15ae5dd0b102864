package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func perform(t *testing.T, handler gin.HandlerFunc) (int, Response) {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	handler(c)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp
}

func TestSuccessHelpers(t *testing.T) {
	tests := []struct {
		name    string
		handler gin.HandlerFunc
		status  int
		message string
	}{
		{"success", func(c *gin.Context) { Success(c, gin.H{"scan_id": "s-1"}) }, http.StatusOK, "ok"},
		{"created", func(c *gin.Context) { Created(c, gin.H{"scan_id": "s-1"}) }, http.StatusCreated, "created"},
		{"accepted", func(c *gin.Context) { Accepted(c, gin.H{"scan_id": "s-1"}) }, http.StatusAccepted, "accepted"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := perform(t, tt.handler)
			assert.Equal(t, tt.status, status)
			assert.Zero(t, resp.Code)
			assert.Equal(t, tt.message, resp.Message)
			assert.Equal(t, map[string]interface{}{"scan_id": "s-1"}, resp.Data)
		})
	}
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		handler gin.HandlerFunc
		status  int
	}{
		{func(c *gin.Context) { BadRequest(c, "m") }, http.StatusBadRequest},
		{func(c *gin.Context) { Unauthorized(c, "m") }, http.StatusUnauthorized},
		{func(c *gin.Context) { Forbidden(c, "m") }, http.StatusForbidden},
		{func(c *gin.Context) { NotFound(c, "m") }, http.StatusNotFound},
		{func(c *gin.Context) { Conflict(c, "m") }, http.StatusConflict},
		{func(c *gin.Context) { Error(c, NewUnprocessable("m")) }, http.StatusUnprocessableEntity},
		{func(c *gin.Context) { Error(c, NewPreconditionRequired("m")) }, http.StatusPreconditionRequired},
		{func(c *gin.Context) { Error(c, NewTooManyRequests("m")) }, http.StatusTooManyRequests},
		{func(c *gin.Context) { Error(c, NewBadGateway("m")) }, http.StatusBadGateway},
	}
	for _, tt := range tests {
		status, resp := perform(t, tt.handler)
		assert.Equal(t, tt.status, status)
		assert.Equal(t, tt.status, resp.Code)
		assert.Equal(t, "m", resp.Message)
		assert.Nil(t, resp.Data)
	}
}

func TestError_WrappedAppError(t *testing.T) {
	err := fmt.Errorf("assign issue: %w", NewBadGateway("analysis backend unreachable"))
	status, resp := perform(t, func(c *gin.Context) { Error(c, err) })
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "analysis backend unreachable", resp.Message)
}

func TestError_GenericErrorIsHidden(t *testing.T) {
	status, resp := perform(t, func(c *gin.Context) { Error(c, errors.New("dial tcp 10.0.0.3:5432: refused")) })
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, 500, resp.Code)
	assert.Equal(t, "internal server error", resp.Message)
}
