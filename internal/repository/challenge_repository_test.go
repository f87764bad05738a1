package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var challengeRowColumns = []string{"id", "title", "description", "start_date", "end_date", "target_points", "target_waste", "reward_points", "type", "is_active", "organization_name", "sponsor_name", "max_participants", "current_participants", "created_at"}

func challengeRow(max, current int, end time.Time) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(challengeRowColumns).
		AddRow("ch1", "Beach Cleanup", "", now.Add(-time.Hour), end, 500, 10.0, 200, "COMMUNITY", true, "City", "", max, current, now)
}

func TestChallengeRepositoryJoin(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewChallengeRepository(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM challenges WHERE id = $1 FOR UPDATE")).
		WithArgs("ch1").
		WillReturnRows(challengeRow(100, 99, now.Add(24*time.Hour)))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO challenge_participants")).
		WithArgs("ch1", "c1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE challenges SET current_participants = current_participants + 1")).
		WithArgs("ch1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	challenge, err := repo.Join(context.Background(), "ch1", "c1", now)
	require.NoError(t, err)
	assert.Equal(t, 100, challenge.CurrentParticipants)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChallengeRepositoryJoinFull(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewChallengeRepository(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM challenges WHERE id = $1 FOR UPDATE")).
		WillReturnRows(challengeRow(10, 10, now.Add(time.Hour)))
	mock.ExpectRollback()

	_, err := repo.Join(context.Background(), "ch1", "c1", now)
	assert.ErrorIs(t, err, ErrChallengeFull)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChallengeRepositoryJoinTwice(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewChallengeRepository(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM challenges WHERE id = $1 FOR UPDATE")).
		WillReturnRows(challengeRow(-1, 3, now.Add(time.Hour)))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO challenge_participants")).WillReturnError(errUniqueViolation())
	mock.ExpectRollback()

	_, err := repo.Join(context.Background(), "ch1", "c1", now)
	assert.ErrorIs(t, err, ErrDuplicate)
	require.NoError(t, mock.ExpectationsWereMet())
}
