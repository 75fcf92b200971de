package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"staging-studio-backend/internal/apperrors"
	"staging-studio-backend/internal/checkout"
	"staging-studio-backend/internal/middleware"
	"staging-studio-backend/internal/models"
)

// respondError writes err as an ErrorResponse with its mapped status.
func respondError(c *gin.Context, err error) {
	appErr := apperrors.FromError(err)
	message := appErr.Error()
	if errors.Is(appErr, apperrors.ErrInternal) {
		// Causes of internal errors stay in the logs.
		message = appErr.Message
		_ = c.Error(err)
	}
	c.JSON(appErr.Status, models.ErrorResponse{
		Error:   strings.ToLower(strings.ReplaceAll(appErr.Code, "_", " ")),
		Message: message,
		Code:    appErr.Code,
		Hint:    appErr.Hint,
	})
}

// respondMessage writes the {message} error shape of the passthrough
// endpoints. A payment provider's rejection is passed through as-is.
func respondMessage(c *gin.Context, err error) {
	appErr := apperrors.FromError(err)
	message := appErr.Message
	var provider *checkout.ProviderError
	if errors.Is(appErr, apperrors.ErrCheckout) && errors.As(err, &provider) {
		message = provider.Message
	}
	if appErr.Err != nil {
		_ = c.Error(err)
	}
	c.JSON(appErr.Status, models.MessageResponse{Message: message})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   "invalid request body",
		Message: err.Error(),
		Code:    apperrors.ErrValidation.Code,
	})
}

// currentUser returns the resolved caller or writes 401.
func currentUser(c *gin.Context) (models.User, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "user not resolved", Code: apperrors.ErrUnauthorized.Code})
		return models.User{}, false
	}
	return user, true
}
