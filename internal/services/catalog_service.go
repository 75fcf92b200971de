package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"staging-studio-backend/internal/apperrors"
	"staging-studio-backend/internal/cache"
	"staging-studio-backend/internal/identity"
	"staging-studio-backend/internal/lifecycle"
	"staging-studio-backend/internal/metrics"
	"staging-studio-backend/internal/models"
)

// FloorPlanGuide pre-fills the instructions of a quote order.
const FloorPlanGuide = `Please provide the following details:
1. Floor Plan Type: (e.g., 2LDK, 3-Bedroom House)
2. Total Floor Area: (e.g., 85 sqm / 915 sqft)
3. Flooring Preference: (e.g., Oak Wood, Gray Tile)
4. Interior Style: (e.g., Mid-Century Modern, Japandi)
5. Furniture Requirements: (e.g., Large island kitchen, L-shaped sofa)
6. Other Specifics:`

type catalogStore interface {
	ListPlans(ctx context.Context) ([]models.Plan, error)
	InsertPlan(ctx context.Context, p models.Plan) error
	UpdatePlan(ctx context.Context, id string, p models.Plan) error
	SetPlanVisibility(ctx context.Context, id string, visible bool) error
	DeletePlan(ctx context.Context, id string) error

	ListEditors(ctx context.Context) ([]models.Editor, error)
	InsertEditor(ctx context.Context, e *models.Editor) error
	DeleteEditor(ctx context.Context, id string) error

	ListArchive(ctx context.Context) ([]models.ArchiveProject, error)
	InsertArchive(ctx context.Context, p models.ArchiveProject) error
	ReplaceArchive(ctx context.Context, p models.ArchiveProject) error
	DeleteArchive(ctx context.Context, id string) error
}

// CatalogService manages plans, the editor roster and the showcase archive.
// Reads go through the cache; writes invalidate it.
type CatalogService struct {
	store    catalogStore
	cache    cache.Store
	uploader dataURLUploader
	validate *validator.Validate
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

func NewCatalogService(store catalogStore, c cache.Store, uploader dataURLUploader, m *metrics.Metrics, logger *zap.Logger) *CatalogService {
	if c == nil {
		c = cache.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{
		store:    store,
		cache:    c,
		uploader: uploader,
		validate: validator.New(),
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// cached reads key from the cache or loads and stores it.
func cached[T any](ctx context.Context, s *CatalogService, key string, load func(context.Context) ([]T, error)) ([]T, error) {
	var items []T
	hit, err := s.cache.Get(ctx, key, &items)
	if err != nil {
		s.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}
	s.metrics.RecordCacheLookup(key, hit)
	if hit {
		return items, nil
	}
	items, err = load(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, items); err != nil {
		s.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	return items, nil
}

func (s *CatalogService) invalidate(ctx context.Context, keys ...string) {
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.Warn("cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func (s *CatalogService) validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
		}
		return apperrors.Clone(apperrors.ErrValidation, "invalid fields: "+strings.Join(fields, ", "))
	}
	return apperrors.Wrap(err, apperrors.ErrValidation.Code, apperrors.ErrValidation.Status, apperrors.ErrValidation.Message)
}

// Plans

// Plans returns every plan ordered by number, hidden ones included.
func (s *CatalogService) Plans(ctx context.Context) models.Listing[models.Plan] {
	plans, err := cached(ctx, s, cache.KeyPlans, s.store.ListPlans)
	if err != nil {
		s.logger.Warn("plan read failed", zap.String("collection", "plans"), zap.Error(err))
		return models.Failed[models.Plan]()
	}
	return models.Ok(plans)
}

// VisiblePlans is the public catalogue.
func (s *CatalogService) VisiblePlans(ctx context.Context) models.Listing[models.Plan] {
	all := s.Plans(ctx)
	visible := make([]models.Plan, 0, len(all.Items))
	for _, p := range all.Items {
		if p.IsVisible {
			visible = append(visible, p)
		}
	}
	return models.Listing[models.Plan]{Items: visible, Degraded: all.Degraded}
}

func (s *CatalogService) PlanByID(ctx context.Context, id string) (*models.Plan, error) {
	plans, err := cached(ctx, s, cache.KeyPlans, s.store.ListPlans)
	if err != nil {
		return nil, err
	}
	for i := range plans {
		if plans[i].ID == id {
			return &plans[i], nil
		}
	}
	return nil, apperrors.Clone(apperrors.ErrNotFound, "plan not found")
}

func planFromRequest(req models.PlanRequest) models.Plan {
	visible := true
	if req.IsVisible != nil {
		visible = *req.IsVisible
	}
	return models.Plan{
		ID:          strings.TrimSpace(req.ID),
		Title:       strings.TrimSpace(req.Title),
		Price:       strings.TrimSpace(req.Price),
		Amount:      req.Amount,
		Number:      req.Number,
		Description: req.Description,
		IsVisible:   visible,
	}
}

// CreatePlan stores a plan. Omitting isVisible creates a visible plan.
func (s *CatalogService) CreatePlan(ctx context.Context, req models.PlanRequest) (*models.Plan, error) {
	plan := planFromRequest(req)
	if err := s.validate.Struct(plan); err != nil {
		return nil, s.validationError(err)
	}
	if err := s.store.InsertPlan(ctx, plan); err != nil {
		return nil, err
	}
	s.invalidate(ctx, cache.KeyPlans)
	return &plan, nil
}

func (s *CatalogService) UpdatePlan(ctx context.Context, id string, req models.PlanRequest) (*models.Plan, error) {
	req.ID = id
	if req.IsVisible == nil {
		if current, err := s.PlanByID(ctx, id); err == nil {
			req.IsVisible = &current.IsVisible
		}
	}
	plan := planFromRequest(req)
	if err := s.validate.Struct(plan); err != nil {
		return nil, s.validationError(err)
	}
	if err := s.store.UpdatePlan(ctx, id, plan); err != nil {
		return nil, err
	}
	s.invalidate(ctx, cache.KeyPlans)
	return &plan, nil
}

func (s *CatalogService) SetPlanVisibility(ctx context.Context, id string, visible bool) error {
	if err := s.store.SetPlanVisibility(ctx, id, visible); err != nil {
		return err
	}
	s.invalidate(ctx, cache.KeyPlans)
	return nil
}

// DeletePlan removes a plan. A plan still referenced by orders cannot be
// deleted; the caller is told to hide it instead.
func (s *CatalogService) DeletePlan(ctx context.Context, id string) error {
	if err := s.store.DeletePlan(ctx, id); err != nil {
		if errors.Is(err, apperrors.ErrReferenced) {
			return apperrors.WithCause(apperrors.ErrPlanReferenced, err)
		}
		return err
	}
	s.invalidate(ctx, cache.KeyPlans)
	return nil
}

// QuoteGuide returns the instruction template for quote plans.
func (s *CatalogService) QuoteGuide(planID string) string {
	if lifecycle.KindOf(planID) == lifecycle.PlanQuote {
		return FloorPlanGuide
	}
	return ""
}

// Editors

// ListEditors is the unmasked roster read used by identity resolution.
func (s *CatalogService) ListEditors(ctx context.Context) ([]models.Editor, error) {
	return cached(ctx, s, cache.KeyEditors, s.store.ListEditors)
}

func (s *CatalogService) Editors(ctx context.Context) models.Listing[models.Editor] {
	editors, err := s.ListEditors(ctx)
	if err != nil {
		s.logger.Warn("editor read failed", zap.String("collection", "editors"), zap.Error(err))
		return models.Failed[models.Editor]()
	}
	return models.Ok(editors)
}

func (s *CatalogService) CreateEditor(ctx context.Context, req models.EditorRequest) (*models.Editor, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate editor id: %w", err)
	}
	editor := &models.Editor{
		ID:        id.String(),
		Name:      strings.TrimSpace(req.Name),
		Email:     identity.NormalizeEmail(req.Email),
		Specialty: strings.TrimSpace(req.Specialty),
	}
	if err := s.validate.Struct(editor); err != nil {
		return nil, s.validationError(err)
	}
	if err := s.store.InsertEditor(ctx, editor); err != nil {
		return nil, err
	}
	s.invalidate(ctx, cache.KeyEditors)
	return editor, nil
}

func (s *CatalogService) DeleteEditor(ctx context.Context, id string) error {
	if err := s.store.DeleteEditor(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, cache.KeyEditors)
	return nil
}

// Archive

func (s *CatalogService) Archive(ctx context.Context) models.Listing[models.ArchiveProject] {
	items, err := cached(ctx, s, cache.KeyArchive, s.store.ListArchive)
	if err != nil {
		s.logger.Warn("archive read failed", zap.String("collection", "archive_projects"), zap.Error(err))
		return models.Failed[models.ArchiveProject]()
	}
	return models.Ok(items)
}

func archiveFromRequest(id string, created time.Time, req models.ArchiveRequest) models.ArchiveProject {
	return models.ArchiveProject{
		ID:          id,
		Title:       strings.TrimSpace(req.Title),
		Category:    strings.TrimSpace(req.Category),
		BeforeURL:   strings.TrimSpace(req.BeforeURL),
		AfterURL:    strings.TrimSpace(req.AfterURL),
		Description: req.Description,
		CreatedAt:   created,
	}
}

func (s *CatalogService) CreateArchive(ctx context.Context, req models.ArchiveRequest) (*models.ArchiveProject, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate archive id: %w", err)
	}
	item := archiveFromRequest(id.String(), s.now().UTC(), req)
	if err := s.validate.Struct(item); err != nil {
		return nil, s.validationError(err)
	}
	if err := s.store.InsertArchive(ctx, item); err != nil {
		return nil, err
	}
	s.invalidate(ctx, cache.KeyArchive)
	return &item, nil
}

// UpdateArchive replaces the item under the same id.
func (s *CatalogService) UpdateArchive(ctx context.Context, id string, req models.ArchiveRequest) (*models.ArchiveProject, error) {
	item := archiveFromRequest(id, s.now().UTC(), req)
	if err := s.validate.Struct(item); err != nil {
		return nil, s.validationError(err)
	}
	if err := s.store.ReplaceArchive(ctx, item); err != nil {
		return nil, err
	}
	s.invalidate(ctx, cache.KeyArchive)
	return &item, nil
}

func (s *CatalogService) DeleteArchive(ctx context.Context, id string) error {
	if err := s.store.DeleteArchive(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, cache.KeyArchive)
	return nil
}

// UploadArchiveImage stores a before or after image for a showcase item.
func (s *CatalogService) UploadArchiveImage(ctx context.Context, side, file string) (string, error) {
	if side != "before" && side != "after" {
		return "", apperrors.Clone(apperrors.ErrValidation, "side must be before or after")
	}
	path := fmt.Sprintf("archive/%d_%s.jpg", s.now().UnixMilli(), side)
	return s.uploader.UploadDataURL(ctx, path, file)
}
