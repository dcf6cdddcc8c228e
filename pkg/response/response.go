package response

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// ErrorResponse carries the request id set by the RequestID middleware so
// failures can be matched to server logs.
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func Ok(c echo.Context, data any) error {
	return OkWithMessage(c, "", data)
}

func OkWithMessage(c echo.Context, message string, data any) error {
	return c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func BadRequest(c echo.Context, err error) error {
	return Error(c, http.StatusBadRequest, err.Error())
}

func Unauthorized(c echo.Context) error {
	return Error(c, http.StatusUnauthorized, "Invalid or missing API key")
}

func NotFound(c echo.Context, message string) error {
	return Error(c, http.StatusNotFound, message)
}

func InternalServerError(c echo.Context, err error) error {
	return Error(c, http.StatusInternalServerError, err.Error())
}

func Error(c echo.Context, code int, message string) error {
	return c.JSON(code, ErrorResponse{
		Success:   false,
		Error:     message,
		RequestID: c.Response().Header().Get(echo.HeaderXRequestID),
	})
}
