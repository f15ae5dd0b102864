package handlers

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/huangang/scanboard/internal/services"
	"github.com/huangang/scanboard/pkg/logger"
	"github.com/huangang/scanboard/pkg/response"
	"gorm.io/gorm"
)

// writeError maps service errors onto the response envelope.
func writeError(c *gin.Context, err error) {
	var guard *services.GuardError
	switch {
	case errors.As(err, &guard):
		response.Error(c, response.NewUnprocessable(guard.Message))
	case errors.Is(err, services.ErrMissingCredentials):
		response.Error(c, response.NewPreconditionRequired(err.Error()))
	case errors.Is(err, services.ErrNetworkFailure):
		logger.Warn().Err(err).Str("path", c.FullPath()).Msg("analysis backend call failed")
		response.Error(c, response.NewBadGateway(err.Error()))
	case errors.Is(err, services.ErrScanInProgress):
		response.Error(c, response.NewConflict(err.Error()))
	case errors.Is(err, services.ErrScanNotFound),
		errors.Is(err, services.ErrIssueNotFound),
		errors.Is(err, services.ErrProjectNotFound),
		errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		response.Error(c, response.NewNotFound(err.Error()))
	default:
		logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		response.Error(c, err)
	}
}

func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		response.BadRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}
