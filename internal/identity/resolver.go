package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"staging-studio-backend/internal/apperrors"
	"staging-studio-backend/internal/models"
)

// Session is what the auth layer knows about the caller.
type Session struct {
	UserID string
	Email  string
	Name   string
	// Token is the raw access token, used when Email must be looked up.
	Token string
}

type EditorSource interface {
	ListEditors(ctx context.Context) ([]models.Editor, error)
}

type SubmissionSource interface {
	ListScoped(ctx context.Context, user models.User) models.Listing[models.Submission]
}

// EmailLookup fetches the email of a session whose token carries none.
type EmailLookup interface {
	LookupEmail(ctx context.Context, token string) (string, error)
}

// Result is a committed resolution. User is nil for a logged out session.
type Result struct {
	User        *models.User
	Submissions models.Listing[models.Submission]
}

// Resolver resolves one session subject. Overlapping calls are tagged with
// a sequence number and only the most recently started call may commit.
type Resolver struct {
	admins      []string
	editors     EditorSource
	submissions SubmissionSource
	lookup      EmailLookup
	logger      *zap.Logger

	seq     atomic.Uint64
	mu      sync.RWMutex
	current Result
}

func NewResolver(admins []string, editors EditorSource, submissions SubmissionSource, lookup EmailLookup, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		admins:      admins,
		editors:     editors,
		submissions: submissions,
		lookup:      lookup,
		logger:      logger,
	}
}

// Current returns the last committed result.
func (r *Resolver) Current() Result {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Resolve computes the user and their submission scope for session. A nil
// session commits the logged out state. If a newer call started before this
// one finished, nothing is committed and ErrSuperseded is returned.
func (r *Resolver) Resolve(ctx context.Context, session *Session) (Result, error) {
	seq := r.seq.Add(1)

	res, err := r.resolve(ctx, session)
	if err != nil {
		r.logger.Error("identity resolution failed", zap.Error(err))
		res = Result{}
	}

	if !r.commit(seq, res) {
		return Result{}, apperrors.ErrSuperseded
	}
	return res, err
}

func (r *Resolver) commit(seq uint64, res Result) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seq.Load() != seq {
		return false
	}
	r.current = res
	return true
}

func (r *Resolver) resolve(ctx context.Context, session *Session) (Result, error) {
	if session == nil {
		return Result{}, nil
	}
	user, err := r.User(ctx, session)
	if err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	listing := models.Ok[models.Submission](nil)
	if r.submissions != nil {
		listing = r.submissions.ListScoped(ctx, *user)
	}
	return Result{User: user, Submissions: listing}, nil
}

// User derives the user of session without committing anything. It is the
// per-request form of Resolve.
func (r *Resolver) User(ctx context.Context, session *Session) (*models.User, error) {
	email := session.Email
	if strings.TrimSpace(email) == "" {
		if r.lookup == nil || session.Token == "" {
			return nil, apperrors.Clone(apperrors.ErrUnauthorized, "session has no email")
		}
		looked, err := r.lookup.LookupEmail(ctx, session.Token)
		if err != nil {
			return nil, fmt.Errorf("failed to look up session email: %w", err)
		}
		email = looked
	}

	var roster []models.Editor
	if r.editors != nil {
		editors, err := r.editors.ListEditors(ctx)
		if err != nil {
			r.logger.Warn("editor roster unavailable, resolving without it",
				zap.String("user_id", session.UserID), zap.Error(err))
		} else {
			roster = editors
		}
	}

	role, editorID := ResolveRole(email, r.admins, roster)
	return &models.User{
		ID:             session.UserID,
		Email:          NormalizeEmail(email),
		Name:           session.Name,
		Role:           role,
		EditorRecordID: editorID,
	}, nil
}

// Registry keeps one Resolver per session subject.
type Registry struct {
	mu        sync.Mutex
	resolvers map[string]*Resolver
	factory   func() *Resolver
}

func NewRegistry(factory func() *Resolver) *Registry {
	return &Registry{resolvers: make(map[string]*Resolver), factory: factory}
}

// For returns the resolver for subject, creating it on first use.
func (g *Registry) For(subject string) *Resolver {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.resolvers[subject]
	if !ok {
		r = g.factory()
		g.resolvers[subject] = r
	}
	return r
}

// Forget drops the resolver of a subject, e.g. on sign out.
func (g *Registry) Forget(subject string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.resolvers, subject)
}
