package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"staging-studio-backend/internal/models"
)

type catalogService interface {
	Plans(ctx context.Context) models.Listing[models.Plan]
	VisiblePlans(ctx context.Context) models.Listing[models.Plan]
	CreatePlan(ctx context.Context, req models.PlanRequest) (*models.Plan, error)
	UpdatePlan(ctx context.Context, id string, req models.PlanRequest) (*models.Plan, error)
	SetPlanVisibility(ctx context.Context, id string, visible bool) error
	DeletePlan(ctx context.Context, id string) error
	QuoteGuide(planID string) string

	Editors(ctx context.Context) models.Listing[models.Editor]
	CreateEditor(ctx context.Context, req models.EditorRequest) (*models.Editor, error)
	DeleteEditor(ctx context.Context, id string) error

	Archive(ctx context.Context) models.Listing[models.ArchiveProject]
	CreateArchive(ctx context.Context, req models.ArchiveRequest) (*models.ArchiveProject, error)
	UpdateArchive(ctx context.Context, id string, req models.ArchiveRequest) (*models.ArchiveProject, error)
	DeleteArchive(ctx context.Context, id string) error
	UploadArchiveImage(ctx context.Context, side, file string) (string, error)
}

type CatalogHandler struct {
	catalog catalogService
}

func NewCatalogHandler(catalog catalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// PublicPlan is a plan as listed to clients, with the instruction guide for
// quote plans.
type PublicPlan struct {
	models.Plan
	Guide string `json:"guide,omitempty"`
}

// PublicPlans godoc
// @Summary     List purchasable plans
// @Description Visible plans ordered by number. The quote plan carries an instruction guide.
// @Tags        catalog
// @Produce     json
// @Success     200 {object} models.Listing[PublicPlan]
// @Router      /plans [get]
func (h *CatalogHandler) PublicPlans(c *gin.Context) {
	plans := h.catalog.VisiblePlans(c.Request.Context())
	out := make([]PublicPlan, 0, len(plans.Items))
	for _, p := range plans.Items {
		out = append(out, PublicPlan{Plan: p, Guide: h.catalog.QuoteGuide(p.ID)})
	}
	c.JSON(http.StatusOK, models.Listing[PublicPlan]{Items: out, Degraded: plans.Degraded})
}

// PublicArchive godoc
// @Summary     List showcase projects
// @Tags        catalog
// @Produce     json
// @Success     200 {object} models.Listing[models.ArchiveProject]
// @Router      /archive [get]
func (h *CatalogHandler) PublicArchive(c *gin.Context) {
	c.JSON(http.StatusOK, h.catalog.Archive(c.Request.Context()))
}

// ListPlans godoc
// @Summary     List all plans
// @Description Includes hidden plans.
// @Tags        admin
// @Produce     json
// @Security    Bearer
// @Success     200 {object} models.Listing[models.Plan]
// @Router      /admin/plans [get]
func (h *CatalogHandler) ListPlans(c *gin.Context) {
	c.JSON(http.StatusOK, h.catalog.Plans(c.Request.Context()))
}

// CreatePlan godoc
// @Summary     Create a plan
// @Description isVisible defaults to true when omitted.
// @Tags        admin
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       request body models.PlanRequest true "Plan"
// @Success     201 {object} models.Plan
// @Failure     400 {object} models.ErrorResponse
// @Failure     409 {object} models.ErrorResponse
// @Router      /admin/plans [post]
func (h *CatalogHandler) CreatePlan(c *gin.Context) {
	var req models.PlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	plan, err := h.catalog.CreatePlan(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, plan)
}

// UpdatePlan godoc
// @Summary     Update a plan
// @Tags        admin
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       id path string true "Plan ID"
// @Param       request body models.PlanRequest true "Plan"
// @Success     200 {object} models.Plan
// @Failure     400 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /admin/plans/{id} [put]
func (h *CatalogHandler) UpdatePlan(c *gin.Context) {
	var req models.PlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	plan, err := h.catalog.UpdatePlan(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

// SetPlanVisibility godoc
// @Summary     Show or hide a plan
// @Tags        admin
// @Accept      json
// @Security    Bearer
// @Param       id path string true "Plan ID"
// @Param       request body models.VisibilityRequest true "Visibility"
// @Success     204
// @Failure     404 {object} models.ErrorResponse
// @Router      /admin/plans/{id}/visibility [patch]
func (h *CatalogHandler) SetPlanVisibility(c *gin.Context) {
	var req models.VisibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.catalog.SetPlanVisibility(c.Request.Context(), c.Param("id"), *req.IsVisible); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeletePlan godoc
// @Summary     Delete a plan
// @Description A plan referenced by orders cannot be deleted; the 409 response asks to hide it instead.
// @Tags        admin
// @Security    Bearer
// @Param       id path string true "Plan ID"
// @Success     204
// @Failure     409 {object} models.ErrorResponse
// @Router      /admin/plans/{id} [delete]
func (h *CatalogHandler) DeletePlan(c *gin.Context) {
	if err := h.catalog.DeletePlan(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListEditors godoc
// @Summary     List editors
// @Tags        admin
// @Produce     json
// @Security    Bearer
// @Success     200 {object} models.Listing[models.Editor]
// @Router      /admin/editors [get]
func (h *CatalogHandler) ListEditors(c *gin.Context) {
	c.JSON(http.StatusOK, h.catalog.Editors(c.Request.Context()))
}

// CreateEditor godoc
// @Summary     Add an editor
// @Tags        admin
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       request body models.EditorRequest true "Editor"
// @Success     201 {object} models.Editor
// @Failure     400 {object} models.ErrorResponse
// @Router      /admin/editors [post]
func (h *CatalogHandler) CreateEditor(c *gin.Context) {
	var req models.EditorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	editor, err := h.catalog.CreateEditor(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, editor)
}

// DeleteEditor godoc
// @Summary     Remove an editor
// @Tags        admin
// @Security    Bearer
// @Param       id path string true "Editor ID"
// @Success     204
// @Router      /admin/editors/{id} [delete]
func (h *CatalogHandler) DeleteEditor(c *gin.Context) {
	if err := h.catalog.DeleteEditor(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CreateArchive godoc
// @Summary     Add a showcase project
// @Tags        admin
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       request body models.ArchiveRequest true "Project"
// @Success     201 {object} models.ArchiveProject
// @Failure     400 {object} models.ErrorResponse
// @Router      /admin/archive [post]
func (h *CatalogHandler) CreateArchive(c *gin.Context) {
	var req models.ArchiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	item, err := h.catalog.CreateArchive(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

// UpdateArchive godoc
// @Summary     Replace a showcase project
// @Tags        admin
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       id path string true "Project ID"
// @Param       request body models.ArchiveRequest true "Project"
// @Success     200 {object} models.ArchiveProject
// @Router      /admin/archive/{id} [put]
func (h *CatalogHandler) UpdateArchive(c *gin.Context) {
	var req models.ArchiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	item, err := h.catalog.UpdateArchive(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// DeleteArchive godoc
// @Summary     Delete a showcase project
// @Tags        admin
// @Security    Bearer
// @Param       id path string true "Project ID"
// @Success     204
// @Router      /admin/archive/{id} [delete]
func (h *CatalogHandler) DeleteArchive(c *gin.Context) {
	if err := h.catalog.DeleteArchive(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UploadArchiveImage godoc
// @Summary     Upload a before or after image
// @Tags        admin
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       side path string true "before or after"
// @Param       request body models.ArchiveImageRequest true "Data URL"
// @Success     200 {object} models.UploadResponse
// @Failure     502 {object} models.ErrorResponse
// @Router      /admin/archive/images/{side} [post]
func (h *CatalogHandler) UploadArchiveImage(c *gin.Context) {
	var req models.ArchiveImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	url, err := h.catalog.UploadArchiveImage(c.Request.Context(), c.Param("side"), req.File)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.UploadResponse{URL: url})
}
