package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the envelope returned by every endpoint.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody carries a machine-readable error code for trusted callers.
type ErrorBody struct {
	Code   string `json:"code"`
	Status int    `json:"status"`
}

const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeInsufficientFunds  = "INSUFFICIENT_BALANCE"
	CodeWalletInactive     = "WALLET_INACTIVE"
	CodeServerError        = "SERVER_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// ServiceUnavailableMessage is the only failure text integrators ever see.
const ServiceUnavailableMessage = "Service temporarily unavailable, please try again later"

func Success(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func Created(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func Error(c *gin.Context, status int, code, message string) {
	c.JSON(status, Response{
		Success: false,
		Message: message,
		Error:   &ErrorBody{Code: code, Status: status},
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, CodeValidationError, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, CodeNotFound, message)
}

func Conflict(c *gin.Context, message string) {
	Error(c, http.StatusConflict, CodeConflict, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, CodeServerError, message)
}

// ServiceUnavailable is the uniform rejection body for API-key callers.
// Authorization and processing failures are deliberately indistinguishable
// here; the real reason travels out-of-band through notifications.
func ServiceUnavailable(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, Response{
		Success: false,
		Message: ServiceUnavailableMessage,
		Error:   &ErrorBody{Code: CodeServiceUnavailable, Status: http.StatusServiceUnavailable},
	})
}

// AbortServiceUnavailable writes the uniform body and stops the handler chain.
func AbortServiceUnavailable(c *gin.Context) {
	c.Abort()
	ServiceUnavailable(c)
}
