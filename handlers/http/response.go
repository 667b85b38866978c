package httpHandler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"smartdoor-relay/usecases"
)

// devices expect {success, code, message, data, timestamp}
func deviceOK(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"code":      http.StatusOK,
		"message":   message,
		"data":      data,
		"timestamp": time.Now().Unix(),
	})
}

func deviceError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"success":   false,
		"code":      status,
		"message":   message,
		"timestamp": time.Now().Unix(),
	})
}

// statusFor maps use case errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, usecases.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, usecases.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
