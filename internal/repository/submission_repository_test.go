package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trash2cash/trash2cash-api/internal/models"
)

func TestSubmissionRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO waste_submissions")).WillReturnResult(sqlmock.NewResult(1, 1))

	sub := &models.WasteSubmission{CitizenID: "c1", ImageRef: "img", Latitude: 12.9, Longitude: 77.6, LocationName: "Park"}
	require.NoError(t, repo.Create(context.Background(), sub))
	assert.NotEmpty(t, sub.ID)
	assert.Equal(t, models.StatusAIProcessed, sub.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryApplyAnalysisLateIsNoRows(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE waste_submissions SET ai_detected_type = $2")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.ApplyAnalysis(context.Background(), "s1", models.Analysis{DetectedType: "Plastic Bottle", ProcessedAt: time.Now()})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryListPendingQueue(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE assigned_municipal_id IS NULL AND status IN ($1,$2) ORDER BY submitted_at ASC, id LIMIT 50 OFFSET 0")).
		WithArgs(models.StatusAIProcessed, models.StatusPending).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow("s1", "PENDING"))

	subs, err := repo.List(context.Background(), models.SubmissionFilter{
		Unassigned:  true,
		Status:      []models.VerificationStatus{models.StatusAIProcessed, models.StatusPending},
		OldestFirst: true,
	})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "s1", subs[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryRecordDecisionApproveCreditsLedger(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT citizen_id, status FROM waste_submissions WHERE id = $1 FOR UPDATE")).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"citizen_id", "status"}).AddRow("c1", "PENDING"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE waste_submissions SET status = $2")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE municipal_workers SET verification_count = verification_count + 1")).
		WithArgs("w1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT total_points FROM users WHERE id = $1 AND role = 'CITIZEN' FOR UPDATE")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"total_points"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reward_transactions")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET total_points = total_points + $2")).
		WithArgs("c1", int64(12), 1.2, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.RecordDecision(context.Background(), models.Decision{
		SubmissionID:    "s1",
		VerifierID:      "w1",
		Status:          models.StatusVerified,
		DecidedAt:       time.Now().UTC(),
		ActualWasteType: "bottle",
		ActualWeight:    1.2,
		RewardPoints:    12,
		ImpactScore:     3.84,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryRecordDecisionRejectSkipsLedger(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	reason := "blurry image"
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT citizen_id, status FROM waste_submissions")).
		WithArgs("s2").
		WillReturnRows(sqlmock.NewRows([]string{"citizen_id", "status"}).AddRow("c1", "PENDING"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE waste_submissions SET status = $2")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE municipal_workers SET verification_count")).
		WithArgs("w1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.RecordDecision(context.Background(), models.Decision{
		SubmissionID:    "s2",
		VerifierID:      "w1",
		Status:          models.StatusRejected,
		DecidedAt:       time.Now().UTC(),
		RejectionReason: &reason,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryRecordDecisionAlreadyDecided(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT citizen_id, status FROM waste_submissions")).
		WithArgs("s3").
		WillReturnRows(sqlmock.NewRows([]string{"citizen_id", "status"}).AddRow("c1", "VERIFIED"))
	mock.ExpectRollback()

	err := repo.RecordDecision(context.Background(), models.Decision{
		SubmissionID: "s3",
		VerifierID:   "w1",
		Status:       models.StatusVerified,
		RewardPoints: 5,
		ActualWeight: 0.5,
	})
	assert.ErrorIs(t, err, models.ErrAlreadyDecided)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryDispute(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE waste_submissions SET status = 'DISPUTED'")).
		WithArgs("s1", "c1", "the photo is clear", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Dispute(context.Background(), "s1", "c1", "the photo is clear", time.Now()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryListAwaitingAnalysisKeyset(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	cutoff := time.Now().UTC()
	first := cutoff.Add(-2 * time.Minute)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = 'AI_PROCESSED' AND submitted_at < $1 ORDER BY submitted_at ASC, id ASC LIMIT $2")).
		WithArgs(cutoff, 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "submitted_at"}).AddRow("s1", first).AddRow("s2", first))
	mock.ExpectQuery(regexp.QuoteMeta("AND (submitted_at, id) > ($2, $3) ORDER BY submitted_at ASC, id ASC LIMIT $4")).
		WithArgs(cutoff, first, "s2", 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "submitted_at"}).AddRow("s3", cutoff.Add(-time.Minute)))

	page, err := repo.ListAwaitingAnalysis(context.Background(), cutoff, nil, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	last := page[1]
	assert.Equal(t, "s2", last.ID)

	page, err = repo.ListAwaitingAnalysis(context.Background(), cutoff, &last, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "s3", page[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryRecordDecisionWithoutVerifierProfile(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT citizen_id, status FROM waste_submissions")).
		WithArgs("s4").
		WillReturnRows(sqlmock.NewRows([]string{"citizen_id", "status"}).AddRow("c1", "PENDING"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE waste_submissions SET status = $2")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE municipal_workers SET verification_count")).
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.RecordDecision(context.Background(), models.Decision{
		SubmissionID: "s4",
		VerifierID:   "ghost",
		Status:       models.StatusVerified,
		DecidedAt:    time.Now().UTC(),
		ActualWeight: 1,
		RewardPoints: 10,
	})
	assert.ErrorIs(t, err, ErrVerifierMissing)
	assert.NotErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
