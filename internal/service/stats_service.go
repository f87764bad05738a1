package service

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/trash2cash/trash2cash-api/internal/models"
	appErrors "github.com/trash2cash/trash2cash-api/pkg/errors"
)

type statsStore interface {
	CitizenRank(ctx context.Context, points int64) (int, error)
	CitizenSubmissionCounts(ctx context.Context, citizenID string, w models.StatsWindow) (models.WindowCounts, error)
	CitizenPendingCount(ctx context.Context, citizenID string) (int, error)
	SubmissionDays(ctx context.Context, citizenID string, since time.Time) ([]time.Time, error)
	VerifierDecisions(ctx context.Context, workerID string, w models.StatsWindow) (models.VerifierDecisionStats, error)
	PendingQueueDepth(ctx context.Context, workerID string) (int, error)
	GlobalTotals(ctx context.Context, dayStart time.Time) (models.GlobalTotals, error)
	Leaderboard(ctx context.Context, limit int, monthStart time.Time) ([]models.LeaderboardEntry, error)
}

type workerProfiles interface {
	FindByUserID(ctx context.Context, userID string) (*models.MunicipalWorker, error)
}

type hotspotSource interface {
	TopByVolume(ctx context.Context, limit int) ([]models.Zone, error)
}

const (
	topContributors   = 10
	topHotspots       = 5
	maxLeaderboard    = 100
	streakLookbackDay = 366
)

// StatsService computes read-side aggregates on every call.
type StatsService struct {
	stats   statsStore
	users   userFinder
	workers workerProfiles
	zones   hotspotSource
	logger  *zap.Logger
	now     func() time.Time
}

// NewStatsService constructs the stats service.
func NewStatsService(stats statsStore, users userFinder, workers workerProfiles, zones hotspotSource, logger *zap.Logger) *StatsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsService{
		stats:   stats,
		users:   users,
		workers: workers,
		zones:   zones,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Citizen summarises one citizen's contribution.
func (s *StatsService) Citizen(ctx context.Context, citizenID string) (*models.CitizenStats, error) {
	user, err := s.users.FindByID(ctx, citizenID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, statsError(err)
	}
	now := s.now()
	windows := models.WindowsAt(now)

	rank, err := s.stats.CitizenRank(ctx, user.TotalPoints)
	if err != nil {
		return nil, statsError(err)
	}
	counts, err := s.stats.CitizenSubmissionCounts(ctx, citizenID, windows)
	if err != nil {
		return nil, statsError(err)
	}
	pending, err := s.stats.CitizenPendingCount(ctx, citizenID)
	if err != nil {
		return nil, statsError(err)
	}
	days, err := s.stats.SubmissionDays(ctx, citizenID, now.AddDate(0, 0, -streakLookbackDay))
	if err != nil {
		return nil, statsError(err)
	}

	points := clampInt(user.TotalPoints)
	return &models.CitizenStats{
		TotalPoints:          points,
		TotalWasteCollected:  clampFloat(user.TotalWasteCollected),
		TotalCO2Saved:        clampFloat(user.TotalCO2Saved),
		Rank:                 rank,
		Level:                models.LevelForPoints(points),
		SubmissionsToday:     counts.Today,
		SubmissionsThisWeek:  counts.ThisWeek,
		SubmissionsThisMonth: counts.ThisMonth,
		PendingVerifications: pending,
		StreakDays:           streakDays(days, now),
	}, nil
}

// streakDays counts consecutive UTC days with a submission ending today, or yesterday when today is empty.
func streakDays(days []time.Time, now time.Time) int {
	seen := make(map[string]bool, len(days))
	for _, d := range days {
		seen[d.UTC().Format("2006-01-02")] = true
	}
	cursor := now.UTC()
	if !seen[cursor.Format("2006-01-02")] {
		cursor = cursor.AddDate(0, 0, -1)
	}
	streak := 0
	for seen[cursor.Format("2006-01-02")] {
		streak++
		cursor = cursor.AddDate(0, 0, -1)
	}
	return streak
}

// Municipal summarises a verifier's workload and quality.
func (s *StatsService) Municipal(ctx context.Context, workerID string) (*models.MunicipalStats, error) {
	profile, err := s.workers.FindByUserID(ctx, workerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "verifier profile not found")
		}
		return nil, statsError(err)
	}
	decisions, err := s.stats.VerifierDecisions(ctx, workerID, models.WindowsAt(s.now()))
	if err != nil {
		return nil, statsError(err)
	}
	pending, err := s.stats.PendingQueueDepth(ctx, workerID)
	if err != nil {
		return nil, statsError(err)
	}

	accuracy := 0.0
	if decisions.Decisions > 0 {
		accuracy = 100 * float64(decisions.Decisions-decisions.Disputed) / float64(decisions.Decisions)
		accuracy = math.Round(accuracy*10) / 10
	}
	return &models.MunicipalStats{
		TotalVerifications:   profile.VerificationCount,
		VerificationAccuracy: accuracy,
		AvgVerificationTime:  int64(math.Round(clampFloat(decisions.AvgMinutes))),
		PendingVerifications: pending,
		VerifiedToday:        decisions.VerifiedToday,
		VerifiedThisWeek:     decisions.VerifiedThisWeek,
		VerifiedThisMonth:    decisions.VerifiedThisMonth,
		TotalImpactCreated:   clampFloat(decisions.TotalImpact),
	}, nil
}

// Global returns the platform overview.
func (s *StatsService) Global(ctx context.Context) (*models.GlobalStats, error) {
	now := s.now()
	windows := models.WindowsAt(now)
	totals, err := s.stats.GlobalTotals(ctx, windows.Day)
	if err != nil {
		return nil, statsError(err)
	}
	leaders, err := s.leaderboard(ctx, topContributors, windows.Month)
	if err != nil {
		return nil, err
	}
	hotspots, err := s.zones.TopByVolume(ctx, topHotspots)
	if err != nil {
		return nil, statsError(err)
	}
	if hotspots == nil {
		hotspots = []models.Zone{}
	}
	return &models.GlobalStats{
		TotalPlasticCollected: clampFloat(totals.TotalPlastic),
		TotalCO2Reduced:       clampFloat(totals.TotalCO2),
		TotalUsers:            totals.Citizens,
		TotalMunicipalWorkers: totals.Workers,
		TopContributors:       leaders,
		WasteHotspots:         hotspots,
		TodaySubmissions:      totals.SubmissionsToday,
		TodayVerifications:    totals.VerificationsToday,
	}, nil
}

// Leaderboard ranks citizens by points.
func (s *StatsService) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = topContributors
	}
	if limit > maxLeaderboard {
		limit = maxLeaderboard
	}
	return s.leaderboard(ctx, limit, models.WindowsAt(s.now()).Month)
}

func (s *StatsService) leaderboard(ctx context.Context, limit int, monthStart time.Time) ([]models.LeaderboardEntry, error) {
	entries, err := s.stats.Leaderboard(ctx, limit, monthStart)
	if err != nil {
		return nil, statsError(err)
	}
	if entries == nil {
		return []models.LeaderboardEntry{}, nil
	}
	// Rows arrive ordered by points, so ties share the rank of the first holder like CitizenRank.
	var prev int64
	for i := range entries {
		if i == 0 || entries[i].Points != prev {
			entries[i].Rank = i + 1
		} else {
			entries[i].Rank = entries[i-1].Rank
		}
		prev = entries[i].Points
		entries[i].Points = clampInt(entries[i].Points)
		entries[i].WasteCollected = clampFloat(entries[i].WasteCollected)
		entries[i].CO2Saved = clampFloat(entries[i].CO2Saved)
		entries[i].Level = models.LevelForPoints(entries[i].Points)
	}
	return entries, nil
}

func statsError(err error) error {
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute statistics")
}

func clampInt(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

func clampFloat(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}
