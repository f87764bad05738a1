package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/trash2cash/trash2cash-api/internal/models"
)

// StatsRepository runs read-only aggregate queries. Results reflect committed data at query time.
type StatsRepository struct {
	db *sqlx.DB
}

// NewStatsRepository constructs the repository.
func NewStatsRepository(db *sqlx.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// CitizenRank returns 1 + the number of citizens holding more points.
func (r *StatsRepository) CitizenRank(ctx context.Context, points int64) (int, error) {
	const query = `SELECT COUNT(*) + 1 FROM users WHERE role = 'CITIZEN' AND total_points > $1`
	var rank int
	if err := r.db.GetContext(ctx, &rank, query, points); err != nil {
		return 0, fmt.Errorf("citizen rank: %w", err)
	}
	return rank, nil
}

// CitizenSubmissionCounts counts a citizen's submissions inside the rolling windows.
func (r *StatsRepository) CitizenSubmissionCounts(ctx context.Context, citizenID string, w models.StatsWindow) (models.WindowCounts, error) {
	const query = `SELECT
	COUNT(*) FILTER (WHERE submitted_at >= $2) AS today,
	COUNT(*) FILTER (WHERE submitted_at >= $3) AS this_week,
	COUNT(*) FILTER (WHERE submitted_at >= $4) AS this_month
FROM waste_submissions WHERE citizen_id = $1`
	var counts models.WindowCounts
	if err := r.db.GetContext(ctx, &counts, query, citizenID, w.Day, w.Week, w.Month); err != nil {
		return counts, fmt.Errorf("citizen submission counts: %w", err)
	}
	return counts, nil
}

// CitizenPendingCount counts a citizen's submissions awaiting a decision.
func (r *StatsRepository) CitizenPendingCount(ctx context.Context, citizenID string) (int, error) {
	const query = `SELECT COUNT(*) FROM waste_submissions WHERE citizen_id = $1 AND status IN ('AI_PROCESSED', 'PENDING')`
	var count int
	if err := r.db.GetContext(ctx, &count, query, citizenID); err != nil {
		return 0, fmt.Errorf("citizen pending count: %w", err)
	}
	return count, nil
}

// SubmissionDays returns the distinct UTC days on which the citizen submitted since the given instant, newest first.
func (r *StatsRepository) SubmissionDays(ctx context.Context, citizenID string, since time.Time) ([]time.Time, error) {
	const query = `SELECT DISTINCT date_trunc('day', submitted_at AT TIME ZONE 'UTC') AS day
FROM waste_submissions WHERE citizen_id = $1 AND submitted_at >= $2 ORDER BY day DESC`
	var days []time.Time
	if err := r.db.SelectContext(ctx, &days, query, citizenID, since); err != nil {
		return nil, fmt.Errorf("submission days: %w", err)
	}
	return days, nil
}

// VerifierDecisions aggregates the decisions made by a verifier.
func (r *StatsRepository) VerifierDecisions(ctx context.Context, workerID string, w models.StatsWindow) (models.VerifierDecisionStats, error) {
	const query = `SELECT
	COUNT(*) AS decisions,
	COUNT(*) FILTER (WHERE status = 'DISPUTED') AS disputed,
	COALESCE(AVG(EXTRACT(EPOCH FROM (verified_at - submitted_at)) / 60), 0) AS avg_minutes,
	COALESCE(SUM(impact_score) FILTER (WHERE status = 'VERIFIED'), 0) AS total_impact,
	COUNT(*) FILTER (WHERE verified_at >= $2) AS today,
	COUNT(*) FILTER (WHERE verified_at >= $3) AS this_week,
	COUNT(*) FILTER (WHERE verified_at >= $4) AS this_month
FROM waste_submissions WHERE verified_by_municipal_id = $1`
	var stats models.VerifierDecisionStats
	if err := r.db.GetContext(ctx, &stats, query, workerID, w.Day, w.Week, w.Month); err != nil {
		return stats, fmt.Errorf("verifier decision stats: %w", err)
	}
	return stats, nil
}

// PendingQueueDepth counts submissions a verifier can act on: assigned to them or unassigned.
func (r *StatsRepository) PendingQueueDepth(ctx context.Context, workerID string) (int, error) {
	const query = `SELECT COUNT(*) FROM waste_submissions
WHERE status IN ('AI_PROCESSED', 'PENDING') AND (assigned_municipal_id = $1 OR assigned_municipal_id IS NULL)`
	var count int
	if err := r.db.GetContext(ctx, &count, query, workerID); err != nil {
		return 0, fmt.Errorf("pending queue depth: %w", err)
	}
	return count, nil
}

// GlobalTotals returns platform-wide sums.
func (r *StatsRepository) GlobalTotals(ctx context.Context, dayStart time.Time) (models.GlobalTotals, error) {
	const query = `SELECT
	COALESCE((SELECT SUM(total_waste_collected) FROM users WHERE role = 'CITIZEN'), 0) AS total_plastic,
	COALESCE((SELECT SUM(total_co2_saved) FROM users WHERE role = 'CITIZEN'), 0) AS total_co2,
	(SELECT COUNT(*) FROM users WHERE role = 'CITIZEN') AS citizens,
	(SELECT COUNT(*) FROM users WHERE role = 'MUNICIPAL_WORKER') AS workers,
	(SELECT COUNT(*) FROM waste_submissions WHERE submitted_at >= $1) AS submissions_today,
	(SELECT COUNT(*) FROM waste_submissions WHERE verified_at >= $1) AS verifications_today`
	var totals models.GlobalTotals
	if err := r.db.GetContext(ctx, &totals, query, dayStart); err != nil {
		return totals, fmt.Errorf("global totals: %w", err)
	}
	return totals, nil
}

// Leaderboard returns citizens ranked by points, ties broken by name.
func (r *StatsRepository) Leaderboard(ctx context.Context, limit int, monthStart time.Time) ([]models.LeaderboardEntry, error) {
	const query = `SELECT u.id AS citizen_id, u.name AS user_name, u.total_points AS points,
	u.total_waste_collected AS waste_collected, u.total_co2_saved AS co2_saved,
	(SELECT COUNT(*) FROM waste_submissions ws WHERE ws.citizen_id = u.id AND ws.submitted_at >= $2) AS submissions_this_month
FROM users u WHERE u.role = 'CITIZEN' AND u.active
ORDER BY u.total_points DESC, u.name ASC LIMIT $1`
	var entries []models.LeaderboardEntry
	if err := r.db.SelectContext(ctx, &entries, query, limit, monthStart); err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	return entries, nil
}
