package supabase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"staging-studio-backend/internal/apperrors"
	"staging-studio-backend/internal/lifecycle"
	"staging-studio-backend/internal/models"
)

const submissionColumns = `id, owner_id, owner_email, plan_id, source_url, file_name, file_size, instructions,
	reference_images, assigned_editor_id, result_remove_url, result_url, status, payment_status,
	quoted_amount, revision_notes, stripe_session_id, created_at, updated_at`

type DatabaseClient struct {
	db *sqlx.DB
}

func NewDatabaseClient(connectionString string) (*DatabaseClient, error) {
	db, err := sqlx.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

// NewDatabaseClientFromDB wraps an existing handle.
func NewDatabaseClientFromDB(db *sqlx.DB) *DatabaseClient {
	return &DatabaseClient{db: db}
}

func (d *DatabaseClient) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *DatabaseClient) Close() error {
	return d.db.Close()
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.Clone(apperrors.ErrNotFound, what+" not found")
	}
	return apperrors.Classify(err)
}

// Submissions

func (d *DatabaseClient) ListSubmissions(ctx context.Context) ([]models.Submission, error) {
	var subs []models.Submission
	err := d.db.SelectContext(ctx, &subs, `SELECT `+submissionColumns+` FROM submissions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", apperrors.Classify(err))
	}
	return subs, nil
}

func (d *DatabaseClient) ListSubmissionsByOwner(ctx context.Context, ownerID string) ([]models.Submission, error) {
	var subs []models.Submission
	err := d.db.SelectContext(ctx, &subs, `SELECT `+submissionColumns+` FROM submissions
		WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions by owner: %w", apperrors.Classify(err))
	}
	return subs, nil
}

func (d *DatabaseClient) ListSubmissionsByEditor(ctx context.Context, editorID string) ([]models.Submission, error) {
	var subs []models.Submission
	err := d.db.SelectContext(ctx, &subs, `SELECT `+submissionColumns+` FROM submissions
		WHERE assigned_editor_id = $1 ORDER BY created_at DESC`, editorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions by editor: %w", apperrors.Classify(err))
	}
	return subs, nil
}

func (d *DatabaseClient) GetSubmission(ctx context.Context, id string) (*models.Submission, error) {
	var sub models.Submission
	err := d.db.GetContext(ctx, &sub, `SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get submission: %w", notFound(err, "submission"))
	}
	return &sub, nil
}

func (d *DatabaseClient) InsertSubmission(ctx context.Context, sub *models.Submission) error {
	row := d.db.QueryRowxContext(ctx, `
		INSERT INTO submissions (id, owner_id, owner_email, plan_id, source_url, file_name, file_size,
			instructions, reference_images, status, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`, sub.ID, sub.OwnerID, sub.OwnerEmail, sub.PlanID, sub.SourceURL, sub.FileName, sub.FileSize,
		sub.Instructions, sub.ReferenceImages, sub.Status, sub.PaymentStatus)
	if err := row.Scan(&sub.CreatedAt, &sub.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create submission: %w", apperrors.Classify(err))
	}
	return nil
}

// UpdateSubmissionLifecycle persists the state machine columns.
func (d *DatabaseClient) UpdateSubmissionLifecycle(ctx context.Context, sub *models.Submission) error {
	row := d.db.QueryRowxContext(ctx, `
		UPDATE submissions
		SET status = $2, payment_status = $3, assigned_editor_id = $4, result_remove_url = $5,
			result_url = $6, quoted_amount = $7, revision_notes = $8
		WHERE id = $1
		RETURNING updated_at
	`, sub.ID, sub.Status, sub.PaymentStatus, sub.AssignedEditorID, sub.ResultRemoveURL,
		sub.ResultURL, sub.QuotedAmount, sub.RevisionNotes)
	if err := row.Scan(&sub.UpdatedAt); err != nil {
		return fmt.Errorf("failed to update submission: %w", notFound(err, "submission"))
	}
	return nil
}

// MarkSubmissionPaid records a settled checkout session. It only succeeds
// once per order: it reports false if the order was already paid.
func (d *DatabaseClient) MarkSubmissionPaid(ctx context.Context, id, sessionID string, status lifecycle.Status) (bool, error) {
	res, err := d.db.ExecContext(ctx, `
		UPDATE submissions
		SET payment_status = 'paid', status = $3, stripe_session_id = $2
		WHERE id = $1 AND payment_status <> 'paid'
	`, id, sessionID, status)
	if err != nil {
		return false, fmt.Errorf("failed to mark submission paid: %w", apperrors.Classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to mark submission paid: %w", err)
	}
	return n == 1, nil
}

func (d *DatabaseClient) DeleteSubmission(ctx context.Context, id string) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM submissions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete submission: %w", apperrors.Classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.Clone(apperrors.ErrNotFound, "submission not found")
	}
	return nil
}

// Checkout sessions

// RecordCheckout stores the amount a checkout session was opened for.
func (d *DatabaseClient) RecordCheckout(ctx context.Context, rec *models.CheckoutRecord) error {
	row := d.db.QueryRowxContext(ctx, `
		INSERT INTO checkout_sessions (session_id, submission_id, amount, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, rec.SessionID, rec.SubmissionID, rec.Amount, rec.ExpiresAt)
	if err := row.Scan(&rec.CreatedAt); err != nil {
		return fmt.Errorf("failed to record checkout session: %w", apperrors.Classify(err))
	}
	return nil
}

func (d *DatabaseClient) GetCheckout(ctx context.Context, sessionID string) (*models.CheckoutRecord, error) {
	var rec models.CheckoutRecord
	err := d.db.GetContext(ctx, &rec, `
		SELECT session_id, submission_id, amount, expires_at, created_at
		FROM checkout_sessions WHERE session_id = $1
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get checkout session: %w", notFound(err, "checkout session"))
	}
	return &rec, nil
}

// HasOpenCheckout reports whether a checkout session for the order is
// still payable at now.
func (d *DatabaseClient) HasOpenCheckout(ctx context.Context, submissionID string, now time.Time) (bool, error) {
	var open bool
	err := d.db.GetContext(ctx, &open, `
		SELECT EXISTS (
			SELECT 1 FROM checkout_sessions WHERE submission_id = $1 AND expires_at > $2
		)
	`, submissionID, now)
	if err != nil {
		return false, fmt.Errorf("failed to check open checkout sessions: %w", apperrors.Classify(err))
	}
	return open, nil
}

// Plans

// planRow mirrors the plans table. is_visible is nullable and NULL means
// visible.
type planRow struct {
	ID          string       `db:"id"`
	Title       string       `db:"title"`
	Price       string       `db:"price"`
	Amount      int64        `db:"amount"`
	Number      int          `db:"number"`
	Description string       `db:"description"`
	IsVisible   sql.NullBool `db:"is_visible"`
}

func (r planRow) toModel() models.Plan {
	return models.Plan{
		ID:          r.ID,
		Title:       r.Title,
		Price:       r.Price,
		Amount:      r.Amount,
		Number:      r.Number,
		Description: r.Description,
		IsVisible:   !r.IsVisible.Valid || r.IsVisible.Bool,
	}
}

func (d *DatabaseClient) ListPlans(ctx context.Context) ([]models.Plan, error) {
	var rows []planRow
	err := d.db.SelectContext(ctx, &rows, `
		SELECT id, title, price, amount, number, description, is_visible
		FROM plans ORDER BY number ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", apperrors.Classify(err))
	}
	plans := make([]models.Plan, 0, len(rows))
	for _, r := range rows {
		plans = append(plans, r.toModel())
	}
	return plans, nil
}

func (d *DatabaseClient) GetPlan(ctx context.Context, id string) (*models.Plan, error) {
	var row planRow
	err := d.db.GetContext(ctx, &row, `
		SELECT id, title, price, amount, number, description, is_visible
		FROM plans WHERE id = $1
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", notFound(err, "plan"))
	}
	plan := row.toModel()
	return &plan, nil
}

func (d *DatabaseClient) InsertPlan(ctx context.Context, p models.Plan) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO plans (id, title, price, amount, number, description, is_visible)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, p.Title, p.Price, p.Amount, p.Number, p.Description, p.IsVisible)
	if err != nil {
		return fmt.Errorf("failed to create plan: %w", apperrors.Classify(err))
	}
	return nil
}

func (d *DatabaseClient) UpdatePlan(ctx context.Context, id string, p models.Plan) error {
	res, err := d.db.ExecContext(ctx, `
		UPDATE plans
		SET title = $2, price = $3, amount = $4, number = $5, description = $6, is_visible = $7
		WHERE id = $1
	`, id, p.Title, p.Price, p.Amount, p.Number, p.Description, p.IsVisible)
	if err != nil {
		return fmt.Errorf("failed to update plan: %w", apperrors.Classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.Clone(apperrors.ErrNotFound, "plan not found")
	}
	return nil
}

func (d *DatabaseClient) SetPlanVisibility(ctx context.Context, id string, visible bool) error {
	res, err := d.db.ExecContext(ctx, `UPDATE plans SET is_visible = $2 WHERE id = $1`, id, visible)
	if err != nil {
		return fmt.Errorf("failed to update plan visibility: %w", apperrors.Classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.Clone(apperrors.ErrNotFound, "plan not found")
	}
	return nil
}

func (d *DatabaseClient) DeletePlan(ctx context.Context, id string) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM plans WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete plan: %w", apperrors.Classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.Clone(apperrors.ErrNotFound, "plan not found")
	}
	return nil
}

// Editors

func (d *DatabaseClient) ListEditors(ctx context.Context) ([]models.Editor, error) {
	var editors []models.Editor
	err := d.db.SelectContext(ctx, &editors, `SELECT id, name, email, specialty, created_at FROM editors ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list editors: %w", apperrors.Classify(err))
	}
	return editors, nil
}

func (d *DatabaseClient) InsertEditor(ctx context.Context, e *models.Editor) error {
	row := d.db.QueryRowxContext(ctx, `
		INSERT INTO editors (id, name, email, specialty) VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, e.ID, e.Name, e.Email, e.Specialty)
	if err := row.Scan(&e.CreatedAt); err != nil {
		return fmt.Errorf("failed to create editor: %w", apperrors.Classify(err))
	}
	return nil
}

func (d *DatabaseClient) DeleteEditor(ctx context.Context, id string) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM editors WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete editor: %w", apperrors.Classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.Clone(apperrors.ErrNotFound, "editor not found")
	}
	return nil
}

// Archive

func (d *DatabaseClient) ListArchive(ctx context.Context) ([]models.ArchiveProject, error) {
	var items []models.ArchiveProject
	err := d.db.SelectContext(ctx, &items, `
		SELECT id, title, category, before_url, after_url, description, created_at
		FROM archive_projects ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list archive: %w", apperrors.Classify(err))
	}
	return items, nil
}

const insertArchive = `
	INSERT INTO archive_projects (id, title, category, before_url, after_url, description, created_at)
	VALUES (:id, :title, :category, :before_url, :after_url, :description, :created_at)
`

func (d *DatabaseClient) InsertArchive(ctx context.Context, p models.ArchiveProject) error {
	if _, err := d.db.NamedExecContext(ctx, insertArchive, p); err != nil {
		return fmt.Errorf("failed to create archive project: %w", apperrors.Classify(err))
	}
	return nil
}

// ReplaceArchive swaps an archive item for a new version with the same id.
func (d *DatabaseClient) ReplaceArchive(ctx context.Context, p models.ArchiveProject) error {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM archive_projects WHERE id = $1`, p.ID)
	if err != nil {
		return fmt.Errorf("failed to replace archive project: %w", apperrors.Classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.Clone(apperrors.ErrNotFound, "archive project not found")
	}
	if _, err := tx.NamedExecContext(ctx, insertArchive, p); err != nil {
		return fmt.Errorf("failed to replace archive project: %w", apperrors.Classify(err))
	}
	return tx.Commit()
}

func (d *DatabaseClient) DeleteArchive(ctx context.Context, id string) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM archive_projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete archive project: %w", apperrors.Classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.Clone(apperrors.ErrNotFound, "archive project not found")
	}
	return nil
}

// Messages

const messageColumns = `id, submission_id, sender_id, sender_name, sender_role, content, created_at`

func (d *DatabaseClient) ListMessages(ctx context.Context, submissionID string) ([]models.Message, error) {
	var msgs []models.Message
	err := d.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
		WHERE submission_id = $1 ORDER BY created_at ASC`, submissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", apperrors.Classify(err))
	}
	return msgs, nil
}

func (d *DatabaseClient) ListAllMessages(ctx context.Context) ([]models.Message, error) {
	var msgs []models.Message
	err := d.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list all messages: %w", apperrors.Classify(err))
	}
	return msgs, nil
}

func (d *DatabaseClient) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	var msg models.Message
	err := d.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", notFound(err, "message"))
	}
	return &msg, nil
}

func (d *DatabaseClient) InsertMessage(ctx context.Context, m *models.Message) error {
	row := d.db.QueryRowxContext(ctx, `
		INSERT INTO messages (id, submission_id, sender_id, sender_name, sender_role, content)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, m.ID, m.SubmissionID, m.SenderID, m.SenderName, m.SenderRole, m.Content)
	if err := row.Scan(&m.CreatedAt); err != nil {
		return fmt.Errorf("failed to create message: %w", apperrors.Classify(err))
	}
	return nil
}

// Read marks

// UpsertReadMark moves a watermark forward. It never moves it back.
func (d *DatabaseClient) UpsertReadMark(ctx context.Context, userID, submissionID string, at time.Time) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO chat_read_marks (user_id, submission_id, last_read_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, submission_id)
		DO UPDATE SET last_read_at = GREATEST(chat_read_marks.last_read_at, EXCLUDED.last_read_at)
	`, userID, submissionID, at)
	if err != nil {
		return fmt.Errorf("failed to save read mark: %w", apperrors.Classify(err))
	}
	return nil
}

func (d *DatabaseClient) ListReadMarks(ctx context.Context, userID string) (map[string]time.Time, error) {
	var marks []models.ReadMark
	err := d.db.SelectContext(ctx, &marks, `
		SELECT user_id, submission_id, last_read_at FROM chat_read_marks WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list read marks: %w", apperrors.Classify(err))
	}
	out := make(map[string]time.Time, len(marks))
	for _, m := range marks {
		out[m.SubmissionID] = m.LastReadAt
	}
	return out, nil
}
