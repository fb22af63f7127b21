package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dharsanguruparan/ReceiptDrop/internal/apperr"
)

func abortError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// respondError maps an apperr kind to an HTTP status. Unknown errors are
// reported without their details.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	var ae *apperr.Error
	message := "Internal server error"
	if errors.As(err, &ae) && ae.Message != "" {
		message = ae.Message
	}

	switch {
	case errors.Is(err, apperr.ErrTooLarge):
		abortError(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", message)
	case errors.Is(err, apperr.ErrValidation):
		abortError(c, http.StatusBadRequest, "VALIDATION_ERROR", message)
	case errors.Is(err, apperr.ErrNotFound):
		abortError(c, http.StatusNotFound, "NOT_FOUND", message)
	case errors.Is(err, apperr.ErrStorage):
		abortError(c, http.StatusBadGateway, "STORAGE_ERROR", message)
	default:
		abortError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Internal server error")
	}
}
