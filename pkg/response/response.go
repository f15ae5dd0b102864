package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the envelope of every JSON reply. Code is 0 on success and
// mirrors the HTTP status otherwise.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// AppError carries the HTTP status a failure should be reported with.
type AppError struct {
	HTTPStatus int
	Code       int
	Message    string
}

func (e *AppError) Error() string {
	return e.Message
}

func newError(status int, msg string) *AppError {
	return &AppError{HTTPStatus: status, Code: status, Message: msg}
}

func NewBadRequest(msg string) *AppError   { return newError(http.StatusBadRequest, msg) }
func NewUnauthorized(msg string) *AppError { return newError(http.StatusUnauthorized, msg) }
func NewForbidden(msg string) *AppError    { return newError(http.StatusForbidden, msg) }
func NewNotFound(msg string) *AppError     { return newError(http.StatusNotFound, msg) }
func NewConflict(msg string) *AppError     { return newError(http.StatusConflict, msg) }

// NewUnprocessable reports a well-formed request the current state does not
// allow, such as an issue transition that skips a step.
func NewUnprocessable(msg string) *AppError { return newError(http.StatusUnprocessableEntity, msg) }

// NewPreconditionRequired asks the caller to supply missing input, such as
// scan credentials, and retry.
func NewPreconditionRequired(msg string) *AppError {
	return newError(http.StatusPreconditionRequired, msg)
}

func NewTooManyRequests(msg string) *AppError { return newError(http.StatusTooManyRequests, msg) }

// NewBadGateway reports a failed call to the analysis backend.
func NewBadGateway(msg string) *AppError { return newError(http.StatusBadGateway, msg) }

func NewServerError(msg string) *AppError { return newError(http.StatusInternalServerError, msg) }

func ok(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, Response{Code: 0, Message: message, Data: data})
}

func Success(c *gin.Context, data interface{})  { ok(c, http.StatusOK, "ok", data) }
func Created(c *gin.Context, data interface{})  { ok(c, http.StatusCreated, "created", data) }
func Accepted(c *gin.Context, data interface{}) { ok(c, http.StatusAccepted, "accepted", data) }

// Error replies with the status of the first *AppError in err's chain.
// Anything else becomes a 500 whose message does not echo err.
func Error(c *gin.Context, err error) {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		appErr = NewServerError("internal server error")
	}
	c.JSON(appErr.HTTPStatus, Response{Code: appErr.Code, Message: appErr.Message})
}

func BadRequest(c *gin.Context, msg string)   { Error(c, NewBadRequest(msg)) }
func Unauthorized(c *gin.Context, msg string) { Error(c, NewUnauthorized(msg)) }
func Forbidden(c *gin.Context, msg string)    { Error(c, NewForbidden(msg)) }
func NotFound(c *gin.Context, msg string)     { Error(c, NewNotFound(msg)) }
func Conflict(c *gin.Context, msg string)     { Error(c, NewConflict(msg)) }
