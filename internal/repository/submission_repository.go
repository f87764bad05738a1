package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/trash2cash/trash2cash-api/internal/models"
)

const submissionColumns = `id, citizen_id, image_ref, latitude, longitude, location_name, address, description, submitted_at,
	ai_detected_type, ai_estimated_weight, ai_confidence, ai_is_waste, ai_message, ai_processed_at, analysis_failure,
	assigned_municipal_id, status, verified_by_municipal_id, verified_at, municipal_comments, actual_waste_type, actual_weight,
	reward_points, impact_score, is_rejected, rejection_reason, dispute_reason, disputed_at, updated_at`

// SubmissionRepository persists waste submissions. Status changes are conditional on the current state
// so concurrent writers cannot skip lifecycle edges.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs the repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// Create inserts a new submission in AI_PROCESSED state.
func (r *SubmissionRepository) Create(ctx context.Context, sub *models.WasteSubmission) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if sub.SubmittedAt.IsZero() {
		sub.SubmittedAt = now
	}
	sub.UpdatedAt = now
	sub.Status = models.StatusAIProcessed
	const query = `INSERT INTO waste_submissions (id, citizen_id, image_ref, latitude, longitude, location_name, address, description, submitted_at, status, updated_at)
VALUES (:id, :citizen_id, :image_ref, :latitude, :longitude, :location_name, :address, :description, :submitted_at, :status, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, sub); err != nil {
		return fmt.Errorf("create submission: %w", err)
	}
	return nil
}

// GetByID fetches a submission.
func (r *SubmissionRepository) GetByID(ctx context.Context, id string) (*models.WasteSubmission, error) {
	query := `SELECT ` + submissionColumns + ` FROM waste_submissions WHERE id = $1`
	var sub models.WasteSubmission
	if err := r.db.GetContext(ctx, &sub, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return &sub, nil
}

// List returns submissions matching the filter.
func (r *SubmissionRepository) List(ctx context.Context, filter models.SubmissionFilter) ([]models.WasteSubmission, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 6)
	builder.WriteString(`SELECT ` + submissionColumns + ` FROM waste_submissions`)

	conditions := make([]string, 0, 4)
	if filter.CitizenID != "" {
		args = append(args, filter.CitizenID)
		conditions = append(conditions, fmt.Sprintf("citizen_id = $%d", len(args)))
	}
	if filter.VerifiedBy != "" {
		args = append(args, filter.VerifiedBy)
		conditions = append(conditions, fmt.Sprintf("verified_by_municipal_id = $%d", len(args)))
	}
	if filter.AssignedTo != "" {
		args = append(args, filter.AssignedTo)
		conditions = append(conditions, fmt.Sprintf("assigned_municipal_id = $%d", len(args)))
	}
	if filter.Unassigned {
		conditions = append(conditions, "assigned_municipal_id IS NULL")
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	if filter.OldestFirst {
		builder.WriteString(" ORDER BY submitted_at ASC, id")
	} else {
		builder.WriteString(" ORDER BY submitted_at DESC, id")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var subs []models.WasteSubmission
	if err := r.db.SelectContext(ctx, &subs, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return subs, nil
}

// ListAwaitingAnalysis returns up to limit submissions still in AI_PROCESSED that were submitted before cutoff,
// ordered by submission time and id. A non-nil after resumes strictly past that position.
func (r *SubmissionRepository) ListAwaitingAnalysis(ctx context.Context, cutoff time.Time, after *models.AnalysisCursor, limit int) ([]models.AnalysisCursor, error) {
	query := `SELECT id, submitted_at FROM waste_submissions WHERE status = 'AI_PROCESSED' AND submitted_at < $1`
	args := []interface{}{cutoff}
	if after != nil {
		query += ` AND (submitted_at, id) > ($2, $3)`
		args = append(args, after.SubmittedAt, after.ID)
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY submitted_at ASC, id ASC LIMIT $%d`, len(args))

	var page []models.AnalysisCursor
	if err := r.db.SelectContext(ctx, &page, query, args...); err != nil {
		return nil, fmt.Errorf("list submissions awaiting analysis: %w", err)
	}
	return page, nil
}

// ApplyAnalysis records the oracle outcome and moves the submission to PENDING.
// Returns sql.ErrNoRows when the submission already left AI_PROCESSED.
func (r *SubmissionRepository) ApplyAnalysis(ctx context.Context, id string, analysis models.Analysis) error {
	const query = `UPDATE waste_submissions SET ai_detected_type = $2, ai_estimated_weight = $3, ai_confidence = $4,
	ai_is_waste = $5, ai_message = $6, ai_processed_at = $7, status = 'PENDING', updated_at = $7
WHERE id = $1 AND status = 'AI_PROCESSED'`
	result, err := r.db.ExecContext(ctx, query, id, analysis.DetectedType, analysis.EstimatedKg, analysis.Confidence,
		analysis.IsWaste, analysis.Message, analysis.ProcessedAt)
	if err != nil {
		return fmt.Errorf("apply submission analysis: %w", err)
	}
	return requireRow(result, "apply submission analysis")
}

// ApplyFallback moves the submission to PENDING with empty analysis fields.
// Returns sql.ErrNoRows when the submission already left AI_PROCESSED.
func (r *SubmissionRepository) ApplyFallback(ctx context.Context, id, reason string, at time.Time) error {
	const query = `UPDATE waste_submissions SET analysis_failure = $2, status = 'PENDING', updated_at = $3
WHERE id = $1 AND status = 'AI_PROCESSED'`
	result, err := r.db.ExecContext(ctx, query, id, reason, at)
	if err != nil {
		return fmt.Errorf("apply submission fallback: %w", err)
	}
	return requireRow(result, "apply submission fallback")
}

// Assign sets the owning verifier of a PENDING submission.
func (r *SubmissionRepository) Assign(ctx context.Context, id, workerID string, at time.Time) error {
	const query = `UPDATE waste_submissions SET assigned_municipal_id = $2, updated_at = $3 WHERE id = $1 AND status = 'PENDING'`
	result, err := r.db.ExecContext(ctx, query, id, workerID, at)
	if err != nil {
		return fmt.Errorf("assign submission: %w", err)
	}
	return requireRow(result, "assign submission")
}

// RecordDecision persists a verifier decision in one transaction: the submission row is locked and
// checked against the lifecycle graph, the verifier counter is incremented, and approvals credit the ledger.
func (r *SubmissionRepository) RecordDecision(ctx context.Context, d models.Decision) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin verification: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current struct {
		CitizenID string                    `db:"citizen_id"`
		Status    models.VerificationStatus `db:"status"`
	}
	const lock = `SELECT citizen_id, status FROM waste_submissions WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &current, lock, d.SubmissionID); err != nil {
		if err == sql.ErrNoRows {
			return err
		}
		return fmt.Errorf("lock submission: %w", err)
	}
	if err = models.Transition(current.Status, d.Status); err != nil {
		return err
	}

	const update = `UPDATE waste_submissions SET status = $2, verified_by_municipal_id = $3, verified_at = $4,
	municipal_comments = $5, actual_waste_type = $6, actual_weight = $7, reward_points = $8, impact_score = $9,
	is_rejected = $10, rejection_reason = $11, updated_at = $4
WHERE id = $1`
	if _, err = tx.ExecContext(ctx, update, d.SubmissionID, d.Status, d.VerifierID, d.DecidedAt, d.Comments,
		d.ActualWasteType, d.ActualWeight, d.RewardPoints, d.ImpactScore, d.Status == models.StatusRejected, d.RejectionReason); err != nil {
		return fmt.Errorf("record verification: %w", err)
	}

	const bump = `UPDATE municipal_workers SET verification_count = verification_count + 1 WHERE user_id = $1`
	result, err := tx.ExecContext(ctx, bump, d.VerifierID)
	if err != nil {
		return fmt.Errorf("increment verification count: %w", err)
	}
	if err = requireRow(result, "increment verification count"); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrVerifierMissing
		}
		return err
	}

	if d.Status == models.StatusVerified {
		submissionID := d.SubmissionID
		entry := &models.RewardTransaction{
			CitizenID:           current.CitizenID,
			Points:              d.RewardPoints,
			Description:         fmt.Sprintf("Verified %.2f kg of %s", d.ActualWeight, d.ActualWasteType),
			CreatedAt:           d.DecidedAt,
			RelatedSubmissionID: &submissionID,
		}
		if err = creditTx(ctx, tx, entry, d.ActualWeight, d.ImpactScore); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit verification: %w", err)
	}
	return nil
}

// Dispute moves an owned REJECTED submission to DISPUTED.
func (r *SubmissionRepository) Dispute(ctx context.Context, id, citizenID, reason string, at time.Time) error {
	const query = `UPDATE waste_submissions SET status = 'DISPUTED', dispute_reason = $3, disputed_at = $4, updated_at = $4
WHERE id = $1 AND citizen_id = $2 AND status = 'REJECTED'`
	result, err := r.db.ExecContext(ctx, query, id, citizenID, reason, at)
	if err != nil {
		return fmt.Errorf("dispute submission: %w", err)
	}
	return requireRow(result, "dispute submission")
}

func requireRow(result sql.Result, op string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check %s rows: %w", op, err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
