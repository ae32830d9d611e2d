package handlers

import (
	"log/slog"
	"net/http"

	"idle-economy/internal/apperrors"
	"idle-economy/internal/auth"

	"github.com/gin-gonic/gin"
)

// statusFor maps an error kind to its HTTP status.
func statusFor(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindAlreadyCompleted, apperrors.KindConflict:
		return http.StatusConflict
	case apperrors.KindInsufficientFunds:
		return http.StatusPaymentRequired
	case apperrors.KindInvalidArgument:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// respondError writes err as {"error", "kind"}. Internal failures are
// logged and their details withheld from the client.
func respondError(c *gin.Context, err error) {
	kind := apperrors.KindOf(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		c.JSON(status, gin.H{"error": "internal error", "kind": kind})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": kind})
}

func playerOrAbort(c *gin.Context) (uint, bool) {
	id, ok := auth.GetPlayerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
	return id, ok
}
