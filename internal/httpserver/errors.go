package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/domain"
	"storefront/internal/repository/kv"
	"storefront/internal/service/storage"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrNegativeAmount),
		errors.Is(err, domain.ErrUnknownDiscountCode),
		errors.Is(err, storage.ErrUnserializable):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrEmptyCart), errors.Is(err, domain.ErrCheckoutInProgress),
		errors.Is(err, domain.ErrNamespaceTaken):
		return http.StatusConflict
	case errors.Is(err, storage.ErrItemTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, kv.ErrQuotaExceeded):
		return http.StatusInsufficientStorage
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		if status == http.StatusInternalServerError {
			c.JSON(status, gin.H{"error": "internal error"})
			return
		}
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
