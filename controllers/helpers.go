package controllers

import (
	"errors"
	"net/http"

	apperrors "github.com/avion-commerce/storefront-backend/common/errors"
	"github.com/avion-commerce/storefront-backend/common/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondError writes err as {message, kind[, fields]} with the status of
// its kind. Server-side failures are logged at error level, client errors
// at warn.
func respondError(c *gin.Context, base *zap.Logger, err error) {
	status := apperrors.StatusOf(err)
	body := gin.H{
		"message": apperrors.MessageOf(err),
		"kind":    apperrors.KindOf(err),
	}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) && len(appErr.Fields) > 0 {
		body["fields"] = appErr.Fields
	}

	log := logger.FromContext(c.Request.Context(), base)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	} else {
		log.Warn("request rejected", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, body)
}

// badPayload answers a body that failed to bind.
func badPayload(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"message": "invalid payload",
		"kind":    apperrors.KindValidation,
		"error":   err.Error(),
	})
}
