package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
	"staging-studio-backend/internal/apperrors"
	"staging-studio-backend/internal/models"
	"staging-studio-backend/internal/realtime"
)

// ChangeChannel is the NOTIFY channel fed by the change feed triggers.
const ChangeChannel = "staging_changes"

// RowSource reads changed rows back after a notification.
type RowSource interface {
	GetSubmission(ctx context.Context, id string) (*models.Submission, error)
	GetMessage(ctx context.Context, id string) (*models.Message, error)
}

// Publisher receives decoded changes.
type Publisher interface {
	Publish(topic string, change realtime.Change)
}

type notification struct {
	Table        string `json:"table"`
	Op           string `json:"op"`
	ID           string `json:"id"`
	SubmissionID string `json:"submission_id"`
}

// RealtimeClient turns LISTEN/NOTIFY traffic into realtime changes.
type RealtimeClient struct {
	dbURL     string
	rows      RowSource
	publisher Publisher
	logger    *zap.Logger
}

func NewRealtimeClient(dbURL string, rows RowSource, publisher Publisher, logger *zap.Logger) *RealtimeClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RealtimeClient{
		dbURL:     dbURL,
		rows:      rows,
		publisher: publisher,
		logger:    logger,
	}
}

// Run listens until ctx is done.
func (r *RealtimeClient) Run(ctx context.Context) error {
	listener := pq.NewListener(r.dbURL, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			r.logger.Warn("change feed listener event", zap.Int("event", int(ev)), zap.Error(err))
		}
	})
	defer listener.Close()

	if err := listener.Listen(ChangeChannel); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", ChangeChannel, err)
	}
	r.logger.Info("change feed listening", zap.String("channel", ChangeChannel))

	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-listener.Notify:
			// nil after a reconnect; notifications sent meanwhile are lost.
			if n == nil {
				r.logger.Warn("change feed reconnected")
				continue
			}
			r.Handle(ctx, n.Extra)
		case <-ping.C:
			if err := listener.Ping(); err != nil {
				r.logger.Warn("change feed ping failed", zap.Error(err))
			}
		}
	}
}

// Handle decodes one payload, loads the row and publishes the change.
func (r *RealtimeClient) Handle(ctx context.Context, payload string) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		r.logger.Warn("invalid change payload", zap.String("payload", payload), zap.Error(err))
		return
	}
	change := realtime.Change{
		Table:        n.Table,
		Op:           realtime.Op(n.Op),
		ID:           n.ID,
		SubmissionID: n.SubmissionID,
		Timestamp:    time.Now().UTC(),
	}

	switch n.Table {
	case realtime.TableSubmissions:
		change.SubmissionID = n.ID
		if change.Op != realtime.OpDelete {
			sub, err := r.rows.GetSubmission(ctx, n.ID)
			if err != nil {
				r.logRowError("submission", n.ID, err)
				return
			}
			change.Submission = sub
		}
		r.publisher.Publish(realtime.TopicSubmissions, change)
	case realtime.TableMessages:
		if change.Op != realtime.OpDelete {
			msg, err := r.rows.GetMessage(ctx, n.ID)
			if err != nil {
				r.logRowError("message", n.ID, err)
				return
			}
			change.Message = msg
		}
		r.publisher.Publish(realtime.MessagesTopic(n.SubmissionID), change)
		// Conversation activity also concerns the submission list.
		r.publisher.Publish(realtime.TopicSubmissions, change)
	default:
		r.logger.Debug("ignoring change", zap.String("table", n.Table))
	}
}

func (r *RealtimeClient) logRowError(kind, id string, err error) {
	// The row can be gone again before it is read.
	if errors.Is(err, apperrors.ErrNotFound) {
		r.logger.Debug("changed row vanished", zap.String("kind", kind), zap.String("id", id))
		return
	}
	r.logger.Warn("failed to load changed row", zap.String("kind", kind), zap.String("id", id), zap.Error(err))
}
