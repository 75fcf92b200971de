package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"staging-studio-backend/internal/apperrors"
	"staging-studio-backend/internal/handlers"
	"staging-studio-backend/internal/identity"
	"staging-studio-backend/internal/metrics"
	"staging-studio-backend/internal/middleware"
	"staging-studio-backend/internal/models"
	"staging-studio-backend/internal/realtime"
	"staging-studio-backend/internal/server"
	"staging-studio-backend/internal/services"
)

const testSecret = "router-test-secret-long-enough-for-hs256"

type stubUsers struct{}

func (stubUsers) User(ctx context.Context, session *identity.Session) (*models.User, error) {
	role, editorID := identity.ResolveRole(session.Email, []string{"owner@example.com"}, nil)
	return &models.User{ID: session.UserID, Email: session.Email, Role: role, EditorRecordID: editorID}, nil
}

type emptySubmissions struct{}

func (emptySubmissions) ListScoped(ctx context.Context, user models.User) models.Listing[models.Submission] {
	return models.Ok[models.Submission](nil)
}

func (emptySubmissions) Get(ctx context.Context, user models.User, id string) (*models.Submission, error) {
	return nil, apperrors.ErrNotFound
}

func (emptySubmissions) Assign(ctx context.Context, user models.User, id string, editorID *string) (*models.Submission, error) {
	return nil, apperrors.ErrNotFound
}

func (emptySubmissions) Deliver(ctx context.Context, user models.User, id, slot, file string) (*models.Submission, error) {
	return nil, apperrors.ErrNotFound
}

func (emptySubmissions) Approve(ctx context.Context, user models.User, id string) (*models.Submission, error) {
	return nil, apperrors.ErrNotFound
}

func (emptySubmissions) Reject(ctx context.Context, user models.User, id, notes string) (*models.Submission, error) {
	return nil, apperrors.ErrNotFound
}

func (emptySubmissions) SetQuote(ctx context.Context, user models.User, id, raw string) (*models.Submission, error) {
	return nil, apperrors.ErrNotFound
}

func (emptySubmissions) Delete(ctx context.Context, user models.User, id string) error {
	return apperrors.ErrNotFound
}

type emptyDashboard struct{}

func (emptyDashboard) BuildView(ctx context.Context, user models.User, q services.DashboardQuery) (*services.DashboardView, error) {
	return &services.DashboardView{Mode: q.Filter.Mode(), Filter: q.Filter}, nil
}

func newTestRouter(t *testing.T, origins []string) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	m := metrics.New()
	router, err := server.NewHTTPHandler(server.Dependencies{
		Verifier:       middleware.NewSecretVerifier(testSecret),
		Users:          stubUsers{},
		AllowedOrigins: origins,
		Metrics:        m,
		Health:         handlers.NewHealthHandler(nil),
		Submissions:    handlers.NewSubmissionsHandler(emptySubmissions{}, emptyDashboard{}, realtime.NewDispatcher(), m, nil, 3),
	})
	require.NoError(t, err)
	return router
}

func token(t *testing.T, sub, email string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   sub,
		"email": email,
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func get(router http.Handler, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestNewHTTPHandler_RequiresDependencies(t *testing.T) {
	_, err := server.NewHTTPHandler(server.Dependencies{Users: stubUsers{}})
	assert.Error(t, err)
	_, err = server.NewHTTPHandler(server.Dependencies{Verifier: middleware.NewSecretVerifier(testSecret)})
	assert.Error(t, err)
}

func TestRouter_PublicAndProtected(t *testing.T) {
	router := newTestRouter(t, nil)

	assert.Equal(t, http.StatusOK, get(router, "/health", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(router, "/api/v1/submissions", "").Code)

	w := get(router, "/api/v1/submissions", token(t, "client-1", "carol@example.com"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"items":[]}`, w.Body.String())
}

type streamRecorder struct {
	*httptest.ResponseRecorder
}

func (streamRecorder) CloseNotify() <-chan bool { return make(chan bool) }

func TestRouter_QueryTokenOnlyOnStreams(t *testing.T) {
	router := newTestRouter(t, nil)
	tok := token(t, "client-1", "carol@example.com")

	w := get(router, "/api/v1/submissions?access_token="+tok, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/submissions/stream?access_token="+tok, nil).WithContext(ctx)
	rec := streamRecorder{httptest.NewRecorder()}
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "event:snapshot")

	req = httptest.NewRequest(http.MethodGet, "/api/v1/submissions/stream", nil).WithContext(ctx)
	rec = streamRecorder{httptest.NewRecorder()}
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_StaffGate(t *testing.T) {
	router := newTestRouter(t, nil)

	w := get(router, "/api/v1/dashboard", token(t, "client-1", "carol@example.com"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = get(router, "/api/v1/dashboard", token(t, "admin-1", "Owner@Example.com"))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_Metrics(t *testing.T) {
	router := newTestRouter(t, nil)
	get(router, "/health", "")

	w := get(router, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `http_requests_total{method="GET",path="/health",status="200"}`), w.Body.String())
}

func TestRouter_CORS(t *testing.T) {
	router := newTestRouter(t, []string{"https://studio.example.com"})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/submissions", nil)
	req.Header.Set("Origin", "https://studio.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://studio.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/submissions", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
