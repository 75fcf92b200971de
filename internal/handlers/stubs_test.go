package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"staging-studio-backend/internal/apperrors"
	"staging-studio-backend/internal/blob"
	"staging-studio-backend/internal/checkout"
	"staging-studio-backend/internal/lifecycle"
	"staging-studio-backend/internal/middleware"
	"staging-studio-backend/internal/models"
	"staging-studio-backend/internal/realtime"
	"staging-studio-backend/internal/services"
)

var (
	admin  = models.User{ID: "admin-1", Email: "owner@example.com", Role: models.RoleAdmin}
	editor = models.User{ID: "ed-user", Email: "ed@example.com", Role: models.RoleEditor, EditorRecordID: "ed-a"}
	client = models.User{ID: "client-1", Email: "carol@example.com", Role: models.RoleUser}
)

var created = time.Date(2024, 5, 14, 9, 0, 0, 0, time.UTC)

func newRouter(user *models.User) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	if user != nil {
		u := *user
		router.Use(func(c *gin.Context) {
			c.Set(middleware.UserIDKey, u.ID)
			c.Set(middleware.EmailKey, u.Email)
			c.Set(middleware.UserKey, u)
			c.Next()
		})
	}
	return router
}

func doJSON(router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader = http.NoBody
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](w *httptest.ResponseRecorder) T {
	var out T
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return out
}

// streamRecorder adds the CloseNotifier gin's Stream requires.
type streamRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func newStreamRecorder() *streamRecorder {
	return &streamRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool, 1)}
}

func (r *streamRecorder) CloseNotify() <-chan bool { return r.closed }

func paid(id, owner string, status lifecycle.Status) models.Submission {
	return models.Submission{
		ID:            id,
		OwnerID:       owner,
		PlanID:        "furniture_add",
		Status:        status,
		PaymentStatus: lifecycle.PaymentPaid,
		CreatedAt:     created,
	}
}

// stubFeed replays changes and then closes the stream.
type stubFeed struct {
	changes []realtime.Change
	topics  []string
}

func (f *stubFeed) Subscribe(ctx context.Context, topic string) (<-chan realtime.Change, func()) {
	f.topics = append(f.topics, topic)
	ch := make(chan realtime.Change, len(f.changes))
	for _, c := range f.changes {
		ch <- c
	}
	close(ch)
	return ch, func() {}
}

// relayFeed subscribes to a real dispatcher and closes the stream after
// limit changes have been forwarded.
type relayFeed struct {
	dispatcher *realtime.Dispatcher
	limit      int
}

func (f *relayFeed) Subscribe(ctx context.Context, topic string) (<-chan realtime.Change, func()) {
	in, unsubscribe := f.dispatcher.Subscribe(ctx, topic)
	out := make(chan realtime.Change)
	go func() {
		defer close(out)
		for i := 0; i < f.limit; i++ {
			select {
			case change, ok := <-in:
				if !ok {
					return
				}
				out <- change
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, unsubscribe
}

// racingSubmissions publishes a change while the snapshot is being read.
type racingSubmissions struct {
	*stubSubmissions
	dispatcher *realtime.Dispatcher
	change     realtime.Change
	// visible adds the changed row to the snapshot as well.
	visible bool
}

func (s *racingSubmissions) ListScoped(ctx context.Context, user models.User) models.Listing[models.Submission] {
	listing := s.stubSubmissions.ListScoped(ctx, user)
	s.dispatcher.Publish(realtime.TopicSubmissions, s.change)
	if s.visible && s.change.Submission != nil {
		listing.Items = append([]models.Submission{*s.change.Submission}, listing.Items...)
	}
	return listing
}

type stubSubmissions struct {
	mu       sync.Mutex
	items    []models.Submission
	degraded bool
	err      error

	deliveredSlot string
	deliveredFile string
	quoteRaw      string
	rejectNotes   string
	assigned      *string
	deleted       []string
}

func (s *stubSubmissions) ListScoped(ctx context.Context, user models.User) models.Listing[models.Submission] {
	if s.degraded {
		return models.Failed[models.Submission]()
	}
	var out []models.Submission
	for i := range s.items {
		if user.CanSee(&s.items[i]) {
			out = append(out, s.items[i])
		}
	}
	return models.Ok(out)
}

func (s *stubSubmissions) find(user models.User, id string) (*models.Submission, error) {
	if s.err != nil {
		return nil, s.err
	}
	for i := range s.items {
		if s.items[i].ID == id && user.CanSee(&s.items[i]) {
			sub := s.items[i]
			return &sub, nil
		}
	}
	return nil, apperrors.Clone(apperrors.ErrNotFound, "submission not found")
}

func (s *stubSubmissions) Get(ctx context.Context, user models.User, id string) (*models.Submission, error) {
	return s.find(user, id)
}

func (s *stubSubmissions) Assign(ctx context.Context, user models.User, id string, editorID *string) (*models.Submission, error) {
	s.assigned = editorID
	return s.find(user, id)
}

func (s *stubSubmissions) Deliver(ctx context.Context, user models.User, id, slot, file string) (*models.Submission, error) {
	s.mu.Lock()
	s.deliveredSlot, s.deliveredFile = slot, file
	s.mu.Unlock()
	return s.find(user, id)
}

func (s *stubSubmissions) Approve(ctx context.Context, user models.User, id string) (*models.Submission, error) {
	return s.find(user, id)
}

func (s *stubSubmissions) Reject(ctx context.Context, user models.User, id, notes string) (*models.Submission, error) {
	s.rejectNotes = notes
	return s.find(user, id)
}

func (s *stubSubmissions) SetQuote(ctx context.Context, user models.User, id, raw string) (*models.Submission, error) {
	s.quoteRaw = raw
	if _, err := lifecycle.ParseQuoteAmount(raw); err != nil {
		return nil, apperrors.WithCause(apperrors.ErrInvalidQuote, err)
	}
	return s.find(user, id)
}

func (s *stubSubmissions) Delete(ctx context.Context, user models.User, id string) error {
	if _, err := s.find(user, id); err != nil {
		return err
	}
	s.deleted = append(s.deleted, id)
	return nil
}

type stubDashboard struct {
	query services.DashboardQuery
}

func (d *stubDashboard) BuildView(ctx context.Context, user models.User, q services.DashboardQuery) (*services.DashboardView, error) {
	d.query = q
	if !user.Role.IsStaff() {
		return nil, apperrors.ErrForbidden
	}
	mine := q.Mine != nil && *q.Mine
	return &services.DashboardView{Mode: q.Filter.Mode(), Filter: q.Filter, Mine: mine, Submissions: []models.Submission{}}, nil
}

type stubOrdering struct {
	created     *models.CreateOrderRequest
	checkoutReq *models.CheckoutSessionRequest
	analysis    string
	analyzeErr  error
	uploadErr   error
	err         error
}

func (o *stubOrdering) CreateOrder(ctx context.Context, user models.User, req models.CreateOrderRequest) (*models.CreateOrderResponse, error) {
	if o.err != nil {
		return nil, o.err
	}
	o.created = &req
	sub := models.Submission{ID: "ord-1", OwnerID: user.ID, PlanID: req.PlanID, Status: lifecycle.StatusPending, PaymentStatus: lifecycle.PaymentUnpaid}
	return &models.CreateOrderResponse{Submission: sub, CheckoutURL: "https://checkout.example.com/cs_test_1"}, nil
}

func (o *stubOrdering) ConfirmPayment(ctx context.Context, user models.User, id string, req models.ConfirmPaymentRequest) (*models.ConfirmPaymentResponse, error) {
	if o.err != nil {
		return nil, o.err
	}
	return &models.ConfirmPaymentResponse{Submission: paid(id, user.ID, lifecycle.StatusPending)}, nil
}

func (o *stubOrdering) PayQuote(ctx context.Context, user models.User, id string) (string, error) {
	if o.err != nil {
		return "", o.err
	}
	return "https://checkout.example.com/" + id, nil
}

func (o *stubOrdering) CheckoutSession(ctx context.Context, user models.User, req models.CheckoutSessionRequest) (string, error) {
	o.checkoutReq = &req
	if o.err != nil {
		return "", o.err
	}
	return "https://checkout.example.com/cs_test_2", nil
}

func (o *stubOrdering) AnalyzeRoom(ctx context.Context, imageBase64 string) (string, error) {
	return o.analysis, o.analyzeErr
}

func (o *stubOrdering) Upload(ctx context.Context, user models.User, path, file string) (string, error) {
	if o.uploadErr != nil {
		return "", o.uploadErr
	}
	if path == "" || file == "" {
		return "", apperrors.Clone(apperrors.ErrValidation, "Missing path or file")
	}
	return "https://cdn.example.com/" + path, nil
}

type stubCatalog struct {
	plans      []models.Plan
	editors    []models.Editor
	archive    []models.ArchiveProject
	deleteErr  error
	visibility map[string]bool
	side       string
}

func (s *stubCatalog) Plans(ctx context.Context) models.Listing[models.Plan] {
	return models.Ok(s.plans)
}

func (s *stubCatalog) VisiblePlans(ctx context.Context) models.Listing[models.Plan] {
	var out []models.Plan
	for _, p := range s.plans {
		if p.IsVisible {
			out = append(out, p)
		}
	}
	return models.Ok(out)
}

func (s *stubCatalog) CreatePlan(ctx context.Context, req models.PlanRequest) (*models.Plan, error) {
	if req.ID == "" {
		return nil, apperrors.Clone(apperrors.ErrValidation, "id is required")
	}
	visible := req.IsVisible == nil || *req.IsVisible
	return &models.Plan{ID: req.ID, Title: req.Title, Amount: req.Amount, IsVisible: visible}, nil
}

func (s *stubCatalog) UpdatePlan(ctx context.Context, id string, req models.PlanRequest) (*models.Plan, error) {
	return &models.Plan{ID: id, Title: req.Title, Amount: req.Amount}, nil
}

func (s *stubCatalog) SetPlanVisibility(ctx context.Context, id string, visible bool) error {
	if s.visibility == nil {
		s.visibility = map[string]bool{}
	}
	s.visibility[id] = visible
	return nil
}

func (s *stubCatalog) DeletePlan(ctx context.Context, id string) error {
	return s.deleteErr
}

func (s *stubCatalog) QuoteGuide(planID string) string {
	if planID == "floor_plan_cg" {
		return "Describe the floor plan."
	}
	return ""
}

func (s *stubCatalog) Editors(ctx context.Context) models.Listing[models.Editor] {
	return models.Ok(s.editors)
}

func (s *stubCatalog) CreateEditor(ctx context.Context, req models.EditorRequest) (*models.Editor, error) {
	return &models.Editor{ID: "ed-new", Name: req.Name, Email: strings.ToLower(req.Email)}, nil
}

func (s *stubCatalog) DeleteEditor(ctx context.Context, id string) error { return nil }

func (s *stubCatalog) Archive(ctx context.Context) models.Listing[models.ArchiveProject] {
	return models.Ok(s.archive)
}

func (s *stubCatalog) CreateArchive(ctx context.Context, req models.ArchiveRequest) (*models.ArchiveProject, error) {
	return &models.ArchiveProject{ID: "arc-1", Title: req.Title}, nil
}

func (s *stubCatalog) UpdateArchive(ctx context.Context, id string, req models.ArchiveRequest) (*models.ArchiveProject, error) {
	return &models.ArchiveProject{ID: id, Title: req.Title}, nil
}

func (s *stubCatalog) DeleteArchive(ctx context.Context, id string) error { return nil }

func (s *stubCatalog) UploadArchiveImage(ctx context.Context, side, file string) (string, error) {
	s.side = side
	if side != "before" && side != "after" {
		return "", apperrors.Clone(apperrors.ErrValidation, "side must be before or after")
	}
	return "https://cdn.example.com/archive/1715670000000_" + side + ".jpg", nil
}

type stubChat struct {
	messages map[string][]models.Message
	info     map[string]models.ChatInfo
	marked   []string
}

func (s *stubChat) Messages(ctx context.Context, user models.User, submissionID string) (models.Listing[models.Message], error) {
	msgs, ok := s.messages[submissionID]
	if !ok {
		return models.Listing[models.Message]{}, apperrors.Clone(apperrors.ErrNotFound, "submission not found")
	}
	return models.Ok(msgs), nil
}

func (s *stubChat) Post(ctx context.Context, user models.User, submissionID, content string) (*models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperrors.Clone(apperrors.ErrValidation, "message is empty")
	}
	return &models.Message{ID: "m-new", SubmissionID: submissionID, SenderID: user.ID, SenderRole: user.Role, Content: content}, nil
}

func (s *stubChat) MarkRead(ctx context.Context, user models.User, submissionID string) error {
	s.marked = append(s.marked, submissionID)
	return nil
}

func (s *stubChat) Summaries(ctx context.Context, user models.User, subs []models.Submission) (map[string]models.ChatInfo, bool) {
	return s.info, false
}

type stubParser struct {
	sess *checkout.Session
	err  error
	sig  string
}

func (p *stubParser) ParseWebhook(payload []byte, signature string) (*checkout.Session, error) {
	p.sig = signature
	return p.sess, p.err
}

type stubReconciler struct {
	calls int
	res   *models.ConfirmPaymentResponse
	err   error
}

func (r *stubReconciler) ReconcileSession(ctx context.Context, sess *checkout.Session) (*models.ConfirmPaymentResponse, error) {
	r.calls++
	return r.res, r.err
}

type stubObjects struct {
	objects map[string]string
	err     error
}

func (s *stubObjects) Open(ctx context.Context, path string) (*blob.Object, error) {
	if s.err != nil {
		return nil, s.err
	}
	body, ok := s.objects[path]
	if !ok {
		return nil, blob.ErrObjectNotFound
	}
	return &blob.Object{Body: io.NopCloser(strings.NewReader(body)), ContentType: "image/jpeg", Size: int64(len(body))}, nil
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(ctx context.Context) error { return p.err }
