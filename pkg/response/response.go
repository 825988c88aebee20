package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/groupchoice/pkg/errors"
)

// RequestIDKey is the gin context key under which the request id middleware
// stores the id echoed back in error bodies.
const RequestIDKey = "requestID"

// Response is the envelope every API call returns.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// ErrorInfo is the client-facing part of a failure.
type ErrorInfo struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// Meta carries list metadata.
type Meta struct {
	Total int `json:"total"`
}

// Success writes data with the given status.
func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, Response{Success: true, Data: data})
}

// Created is Success with 201.
func Created(c *gin.Context, data interface{}) {
	Success(c, http.StatusCreated, data)
}

// List writes a collection together with its size.
func List(c *gin.Context, items interface{}, total int) {
	c.JSON(http.StatusOK, Response{Success: true, Data: items, Meta: &Meta{Total: total}})
}

// NoContent acknowledges a mutation that has nothing to return.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error writes the envelope for err. Errors that are not AppErrors become
// INTERNAL_SERVER_ERROR.
func Error(c *gin.Context, err error) {
	ErrorWithDetails(c, err, nil)
}

// ErrorWithDetails is Error with structured details attached, typically
// field validation failures.
func ErrorWithDetails(c *gin.Context, err error, details interface{}) {
	if err == nil {
		err = appErrors.ErrInternalServer
	}

	appErr := appErrors.FromError(err)
	status := appErr.StatusCode
	if status < http.StatusBadRequest {
		status = http.StatusInternalServerError
	}

	c.JSON(status, Response{
		Error: &ErrorInfo{
			Code:      appErr.Code,
			Message:   appErr.Message,
			Details:   details,
			RequestID: c.GetString(RequestIDKey),
		},
	})
}
