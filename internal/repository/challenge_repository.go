package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/trash2cash/trash2cash-api/internal/models"
)

const challengeColumns = `id, title, description, start_date, end_date, target_points, target_waste, reward_points, type,
	is_active, organization_name, sponsor_name, max_participants, current_participants, created_at`

// ChallengeRepository persists challenges and their participants.
type ChallengeRepository struct {
	db *sqlx.DB
}

// NewChallengeRepository constructs the repository.
func NewChallengeRepository(db *sqlx.DB) *ChallengeRepository {
	return &ChallengeRepository{db: db}
}

// ListActive returns challenges that have not ended, optionally filtered by type.
func (r *ChallengeRepository) ListActive(ctx context.Context, challengeType models.ChallengeType, now time.Time) ([]models.Challenge, error) {
	query := `SELECT ` + challengeColumns + ` FROM challenges WHERE is_active AND end_date > $1`
	args := []interface{}{now}
	if challengeType != "" {
		query += ` AND type = $2`
		args = append(args, challengeType)
	}
	query += ` ORDER BY end_date ASC`
	var challenges []models.Challenge
	if err := r.db.SelectContext(ctx, &challenges, query, args...); err != nil {
		return nil, fmt.Errorf("list challenges: %w", err)
	}
	return challenges, nil
}

// Create inserts a challenge. ON CONFLICT keeps seeding idempotent.
func (r *ChallengeRepository) Create(ctx context.Context, challenge *models.Challenge) error {
	if challenge.ID == "" {
		challenge.ID = uuid.NewString()
	}
	if challenge.CreatedAt.IsZero() {
		challenge.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO challenges (` + challengeColumns + `)
VALUES (:id, :title, :description, :start_date, :end_date, :target_points, :target_waste, :reward_points, :type,
	:is_active, :organization_name, :sponsor_name, :max_participants, :current_participants, :created_at)
ON CONFLICT (id) DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, query, challenge); err != nil {
		return fmt.Errorf("create challenge: %w", err)
	}
	return nil
}

// Join adds a citizen to a challenge under a row lock so the participant cap holds.
func (r *ChallengeRepository) Join(ctx context.Context, challengeID, citizenID string, at time.Time) (challenge *models.Challenge, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin join challenge: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current models.Challenge
	lock := `SELECT ` + challengeColumns + ` FROM challenges WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &current, lock, challengeID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("lock challenge: %w", err)
	}
	switch {
	case !current.Open(at):
		err = ErrChallengeClosed
	case current.Full():
		err = ErrChallengeFull
	}
	if err != nil {
		return nil, err
	}

	const insert = `INSERT INTO challenge_participants (challenge_id, citizen_id, joined_at) VALUES ($1, $2, $3)`
	if _, err = tx.ExecContext(ctx, insert, challengeID, citizenID, at); err != nil {
		if isUniqueViolation(err) {
			err = ErrDuplicate
			return nil, err
		}
		return nil, fmt.Errorf("insert challenge participant: %w", err)
	}
	const bump = `UPDATE challenges SET current_participants = current_participants + 1 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, bump, challengeID); err != nil {
		return nil, fmt.Errorf("increment challenge participants: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit join challenge: %w", err)
	}
	current.CurrentParticipants++
	return &current, nil
}
