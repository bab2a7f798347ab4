package response

import (
	"github.com/gin-gonic/gin"
	domainerrors "blinkgate.backend/internal/domain/errors"
)

// Success sends a success response.
func Success(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

// Error sends an error response shaped {error, message}, matching the
// stable error-string contract the proxy endpoint promises its callers.
func Error(c *gin.Context, err error) {
	var appErr *domainerrors.AppError
	if e, ok := err.(*domainerrors.AppError); ok {
		appErr = e
	} else {
		appErr = domainerrors.InternalError(err)
	}

	c.JSON(appErr.Code, gin.H{
		"error":   appErr.Message,
		"message": appErr.Message,
	})
}

// ErrorWithDetails sends an error response carrying a structured details
// payload, used for payment-verification failures and upstream failures
// that need to surface a refund-status block alongside the stable error string.
func ErrorWithDetails(c *gin.Context, status int, errMsg string, details gin.H) {
	body := gin.H{"error": errMsg}
	for k, v := range details {
		body[k] = v
	}
	c.JSON(status, body)
}
