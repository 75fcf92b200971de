package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"staging-studio-backend/internal/apperrors"
	"staging-studio-backend/internal/identity"
	"staging-studio-backend/internal/middleware"
	"staging-studio-backend/internal/models"
)

type resolverSource interface {
	For(subject string) *identity.Resolver
	Forget(subject string)
}

type SessionHandler struct {
	resolvers resolverSource
}

func NewSessionHandler(resolvers resolverSource) *SessionHandler {
	return &SessionHandler{resolvers: resolvers}
}

// GetSession godoc
// @Summary     Resolve the current session
// @Description Resolves role and editor record for the caller and loads the submissions in their scope. When a newer resolution for the same user started first, 409 is returned and nothing is committed.
// @Tags        session
// @Produce     json
// @Security    Bearer
// @Success     200 {object} models.SessionResponse
// @Failure     401 {object} models.ErrorResponse
// @Failure     409 {object} models.ErrorResponse
// @Router      /session [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	session, ok := middleware.SessionFromContext(c)
	if !ok {
		respondError(c, apperrors.ErrUnauthorized)
		return
	}

	res, err := h.resolvers.For(session.UserID).Resolve(c.Request.Context(), session)
	if err != nil {
		respondError(c, err)
		return
	}
	if res.User == nil {
		respondError(c, apperrors.ErrUnauthorized)
		return
	}
	c.JSON(http.StatusOK, models.SessionResponse{User: *res.User, Submissions: res.Submissions})
}

// EndSession godoc
// @Summary     Forget the resolved session
// @Tags        session
// @Security    Bearer
// @Success     204
// @Router      /session [delete]
func (h *SessionHandler) EndSession(c *gin.Context) {
	if session, ok := middleware.SessionFromContext(c); ok {
		h.resolvers.Forget(session.UserID)
	}
	c.Status(http.StatusNoContent)
}
