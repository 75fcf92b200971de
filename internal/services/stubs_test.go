package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"staging-studio-backend/internal/apperrors"
	"staging-studio-backend/internal/checkout"
	"staging-studio-backend/internal/lifecycle"
	"staging-studio-backend/internal/models"
	"staging-studio-backend/internal/notify"
)

var errStoreDown = errors.New("connection refused")

// memStore is an in-memory stand-in for the database client.
type memStore struct {
	mu          sync.Mutex
	submissions map[string]models.Submission
	plans       []models.Plan
	editors     []models.Editor
	archive     []models.ArchiveProject
	messages    []models.Message
	marks       map[string]map[string]time.Time
	checkouts   map[string]models.CheckoutRecord
	clock       time.Time

	failReads   bool
	referenced  map[string]bool
	planLoads   int
	updateCalls int
}

func newMemStore() *memStore {
	return &memStore{
		submissions: map[string]models.Submission{},
		marks:       map[string]map[string]time.Time{},
		checkouts:   map[string]models.CheckoutRecord{},
		referenced:  map[string]bool{},
		clock:       time.Date(2024, 5, 14, 9, 0, 0, 0, time.UTC),
		plans: []models.Plan{
			{ID: lifecycle.PlanFurnitureRemove, Title: "Furniture Removal", Price: "$30", Amount: 3000, Number: 1, IsVisible: true},
			{ID: lifecycle.PlanFurnitureAdd, Title: "Virtual Staging", Price: "$40", Amount: 4000, Number: 2, IsVisible: true},
			{ID: lifecycle.PlanFurnitureBoth, Title: "Remove and Stage", Price: "$60", Amount: 6000, Number: 3, IsVisible: true},
			{ID: lifecycle.PlanFloorPlan, Title: "3D Floor Plan", Price: "Quote", Amount: 0, Number: 4, IsVisible: true},
			{ID: "retired", Title: "Retired", Price: "$10", Amount: 1000, Number: 5, IsVisible: false},
		},
	}
}

func (m *memStore) tick() time.Time {
	m.clock = m.clock.Add(time.Minute)
	return m.clock
}

func (m *memStore) put(sub models.Submission) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = m.tick()
	}
	m.submissions[sub.ID] = sub
}

func (m *memStore) sorted(keep func(models.Submission) bool) ([]models.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReads {
		return nil, errStoreDown
	}
	out := []models.Submission{}
	for _, s := range m.submissions {
		if keep(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) ListSubmissions(ctx context.Context) ([]models.Submission, error) {
	return m.sorted(func(models.Submission) bool { return true })
}

func (m *memStore) ListSubmissionsByOwner(ctx context.Context, ownerID string) ([]models.Submission, error) {
	return m.sorted(func(s models.Submission) bool { return s.OwnerID == ownerID })
}

func (m *memStore) ListSubmissionsByEditor(ctx context.Context, editorID string) ([]models.Submission, error) {
	return m.sorted(func(s models.Submission) bool {
		return s.AssignedEditorID != nil && *s.AssignedEditorID == editorID
	})
}

func (m *memStore) GetSubmission(ctx context.Context, id string) (*models.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[id]
	if !ok {
		return nil, apperrors.Clone(apperrors.ErrNotFound, "submission not found")
	}
	return &s, nil
}

func (m *memStore) InsertSubmission(ctx context.Context, sub *models.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub.CreatedAt = m.tick()
	sub.UpdatedAt = sub.CreatedAt
	m.submissions[sub.ID] = *sub
	return nil
}

func (m *memStore) UpdateSubmissionLifecycle(ctx context.Context, sub *models.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	if _, ok := m.submissions[sub.ID]; !ok {
		return apperrors.ErrNotFound
	}
	m.submissions[sub.ID] = *sub
	return nil
}

func (m *memStore) MarkSubmissionPaid(ctx context.Context, id, sessionID string, status lifecycle.Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[id]
	if !ok {
		return false, apperrors.ErrNotFound
	}
	if s.PaymentStatus == lifecycle.PaymentPaid {
		return false, nil
	}
	s.PaymentStatus = lifecycle.PaymentPaid
	s.Status = status
	s.StripeSessionID = &sessionID
	m.submissions[id] = s
	return true, nil
}

func (m *memStore) RecordCheckout(ctx context.Context, rec *models.CheckoutRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.checkouts[rec.SessionID]; ok {
		return apperrors.ErrConflict
	}
	rec.CreatedAt = m.tick()
	m.checkouts[rec.SessionID] = *rec
	return nil
}

func (m *memStore) GetCheckout(ctx context.Context, sessionID string) (*models.CheckoutRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.checkouts[sessionID]
	if !ok {
		return nil, apperrors.Clone(apperrors.ErrNotFound, "checkout session not found")
	}
	return &rec, nil
}

func (m *memStore) HasOpenCheckout(ctx context.Context, submissionID string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.checkouts {
		if rec.SubmissionID == submissionID && rec.ExpiresAt.After(now) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) DeleteSubmission(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.submissions[id]; !ok {
		return apperrors.Clone(apperrors.ErrNotFound, "submission not found")
	}
	delete(m.submissions, id)
	return nil
}

func (m *memStore) ListPlans(ctx context.Context) ([]models.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.planLoads++
	if m.failReads {
		return nil, errStoreDown
	}
	return append([]models.Plan(nil), m.plans...), nil
}

func (m *memStore) GetPlan(ctx context.Context, id string) (*models.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.plans {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, apperrors.Clone(apperrors.ErrNotFound, "plan not found")
}

func (m *memStore) InsertPlan(ctx context.Context, p models.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.plans {
		if existing.ID == p.ID {
			return apperrors.Clone(apperrors.ErrConflict, "plan exists")
		}
	}
	m.plans = append(m.plans, p)
	return nil
}

func (m *memStore) UpdatePlan(ctx context.Context, id string, p models.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.plans {
		if m.plans[i].ID == id {
			m.plans[i] = p
			return nil
		}
	}
	return apperrors.ErrNotFound
}

func (m *memStore) SetPlanVisibility(ctx context.Context, id string, visible bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.plans {
		if m.plans[i].ID == id {
			m.plans[i].IsVisible = visible
			return nil
		}
	}
	return apperrors.ErrNotFound
}

func (m *memStore) DeletePlan(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.referenced[id] {
		return apperrors.ErrReferenced
	}
	for i := range m.plans {
		if m.plans[i].ID == id {
			m.plans = append(m.plans[:i], m.plans[i+1:]...)
			return nil
		}
	}
	return apperrors.ErrNotFound
}

func (m *memStore) ListEditors(ctx context.Context) ([]models.Editor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReads {
		return nil, errStoreDown
	}
	return append([]models.Editor(nil), m.editors...), nil
}

func (m *memStore) InsertEditor(ctx context.Context, e *models.Editor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.CreatedAt = m.tick()
	m.editors = append(m.editors, *e)
	return nil
}

func (m *memStore) DeleteEditor(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.editors {
		if m.editors[i].ID == id {
			m.editors = append(m.editors[:i], m.editors[i+1:]...)
			return nil
		}
	}
	return apperrors.ErrNotFound
}

func (m *memStore) ListArchive(ctx context.Context) ([]models.ArchiveProject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReads {
		return nil, errStoreDown
	}
	return append([]models.ArchiveProject(nil), m.archive...), nil
}

func (m *memStore) InsertArchive(ctx context.Context, p models.ArchiveProject) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.archive = append(m.archive, p)
	return nil
}

func (m *memStore) ReplaceArchive(ctx context.Context, p models.ArchiveProject) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.archive {
		if m.archive[i].ID == p.ID {
			m.archive[i] = p
			return nil
		}
	}
	return apperrors.ErrNotFound
}

func (m *memStore) DeleteArchive(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.archive {
		if m.archive[i].ID == id {
			m.archive = append(m.archive[:i], m.archive[i+1:]...)
			return nil
		}
	}
	return apperrors.ErrNotFound
}

func (m *memStore) ListMessages(ctx context.Context, submissionID string) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReads {
		return nil, errStoreDown
	}
	out := []models.Message{}
	for _, msg := range m.messages {
		if msg.SubmissionID == submissionID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memStore) ListAllMessages(ctx context.Context) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReads {
		return nil, errStoreDown
	}
	return append([]models.Message(nil), m.messages...), nil
}

func (m *memStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg.CreatedAt = m.tick()
	m.messages = append(m.messages, *msg)
	return nil
}

func (m *memStore) UpsertReadMark(ctx context.Context, userID, submissionID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.marks[userID] == nil {
		m.marks[userID] = map[string]time.Time{}
	}
	if at.After(m.marks[userID][submissionID]) {
		m.marks[userID][submissionID] = at
	}
	return nil
}

func (m *memStore) ListReadMarks(ctx context.Context, userID string) (map[string]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]time.Time{}
	for k, v := range m.marks[userID] {
		out[k] = v
	}
	return out, nil
}

// stubUploader records uploads and returns deterministic URLs.
type stubUploader struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (u *stubUploader) UploadDataURL(ctx context.Context, path, file string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return "", apperrors.WithCause(apperrors.ErrUpload, u.err)
	}
	u.paths = append(u.paths, path)
	return "https://cdn.example.com/" + path, nil
}

// recordingSender captures queued emails.
type recordingSender struct {
	mu     sync.Mutex
	emails []notify.Email
}

func (r *recordingSender) Enqueue(ctx context.Context, emails ...notify.Email) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emails = append(r.emails, emails...)
}

func (r *recordingSender) subjects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.emails))
	for _, e := range r.emails {
		out = append(out, e.Subject)
	}
	return out
}

// stubGateway is a checkout provider whose sessions are kept in memory.
type stubGateway struct {
	mu        sync.Mutex
	sessions  map[string]*checkout.Session
	requests  []checkout.Request
	createErr error
}

func newStubGateway() *stubGateway {
	return &stubGateway{sessions: map[string]*checkout.Session{}}
}

func (g *stubGateway) CreateSession(ctx context.Context, req checkout.Request) (*checkout.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.requests = append(g.requests, req)
	id := fmt.Sprintf("cs_test_%d", len(g.requests))
	sess := &checkout.Session{ID: id, URL: "https://checkout.example.com/" + id, OrderID: req.OrderID, AmountTotal: req.Amount, Currency: "usd"}
	g.sessions[id] = sess
	return sess, nil
}

func (g *stubGateway) GetSession(ctx context.Context, id string) (*checkout.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	sess, ok := g.sessions[id]
	if !ok {
		return nil, errors.New("no such checkout session")
	}
	out := *sess
	return &out, nil
}

// pay marks a session as completed by the provider.
func (g *stubGateway) pay(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions[id].Paid = true
}

type stubAnalyzer struct {
	text  string
	err   error
	calls int
}

func (a *stubAnalyzer) Analyze(ctx context.Context, imageBase64 string) (string, error) {
	a.calls++
	return a.text, a.err
}

// fixture wires every service against one memStore.
type fixture struct {
	store       *memStore
	uploader    *stubUploader
	sender      *recordingSender
	gateway     *stubGateway
	analyzer    *stubAnalyzer
	catalog     *CatalogService
	submissions *SubmissionService
	ordering    *OrderingService
	chat        *ChatService
	dashboard   *DashboardService
}

func newFixture() *fixture {
	f := &fixture{
		store:    newMemStore(),
		uploader: &stubUploader{},
		sender:   &recordingSender{},
		gateway:  newStubGateway(),
		analyzer: &stubAnalyzer{text: "Bright living room with oak flooring."},
	}
	f.catalog = NewCatalogService(f.store, nil, f.uploader, nil, nil)
	composer := notify.Composer{StudioEmail: "studio@example.com", ActionURL: "https://studio.example.com", DeliveryDays: 5}
	notifier := NewNotifier(f.catalog, composer, f.sender, nil)
	f.submissions = NewSubmissionService(f.store, f.uploader, notifier, nil, nil)
	f.ordering = NewOrderingService(f.store, f.catalog, f.uploader, f.gateway, f.analyzer, notifier, nil, nil)
	f.chat = NewChatService(f.store, f.submissions, nil)
	f.dashboard = NewDashboardService(f.submissions, f.chat, f.catalog, nil)
	return f
}

var (
	admin   = models.User{ID: "admin-1", Email: "owner@studio.example.com", Role: models.RoleAdmin}
	editorA = models.User{ID: "auth-ed-a", Email: "alice@studio.example.com", Role: models.RoleEditor, EditorRecordID: "ed-a"}
	editorB = models.User{ID: "auth-ed-b", Email: "bob@studio.example.com", Role: models.RoleEditor, EditorRecordID: "ed-b"}
	client1 = models.User{ID: "client-1", Email: "carol@example.com", Role: models.RoleUser}
	client2 = models.User{ID: "client-2", Email: "dave@example.com", Role: models.RoleUser}
)

func strptr(s string) *string { return &s }

func paidOrder(id, owner, plan string, status lifecycle.Status) models.Submission {
	return models.Submission{
		ID:            id,
		OwnerID:       owner,
		OwnerEmail:    owner + "@example.com",
		PlanID:        plan,
		SourceURL:     "https://cdn.example.com/" + owner + "/" + id + "_source.jpg",
		Status:        status,
		PaymentStatus: lifecycle.PaymentPaid,
	}
}

const pixel = "data:image/jpeg;base64,/9j/4AAQSkZJRgABAQ=="
