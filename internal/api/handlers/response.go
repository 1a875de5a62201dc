package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stockwise/forecaster/internal/domain"
)

// respond writes the ingestion envelope every engine client expects:
// success flag, HTTP code and a human-readable message.
func respond(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{
		"success": code < 400,
		"code":    code,
		"res_msg": msg,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidRange):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		// Internal details stay in the logs.
		msg = "internal error"
	}
	respond(c, code, msg)
}
