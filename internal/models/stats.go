package models

import "time"

var levelThresholds = []int64{100, 500, 1000, 2500, 5000}

// LevelForPoints maps a point balance onto levels 1 through 6.
func LevelForPoints(points int64) int {
	for i, threshold := range levelThresholds {
		if points < threshold {
			return i + 1
		}
	}
	return len(levelThresholds) + 1
}

// StatsWindow is a rolling lookback anchored at a reference instant.
type StatsWindow struct {
	Day   time.Time
	Week  time.Time
	Month time.Time
}

// WindowsAt returns the day, week and month lower bounds for now.
func WindowsAt(now time.Time) StatsWindow {
	return StatsWindow{
		Day:   now.Add(-24 * time.Hour),
		Week:  now.Add(-7 * 24 * time.Hour),
		Month: now.Add(-30 * 24 * time.Hour),
	}
}

// WindowCounts are counts inside the rolling windows.
type WindowCounts struct {
	Today     int `db:"today" json:"today"`
	ThisWeek  int `db:"this_week" json:"thisWeek"`
	ThisMonth int `db:"this_month" json:"thisMonth"`
}

// CitizenStats summarises a citizen's contribution.
type CitizenStats struct {
	TotalPoints          int64   `json:"totalPoints"`
	TotalWasteCollected  float64 `json:"totalWasteCollected"`
	TotalCO2Saved        float64 `json:"totalCO2Saved"`
	Rank                 int     `json:"rank"`
	Level                int     `json:"level"`
	SubmissionsToday     int     `json:"submissionsToday"`
	SubmissionsThisWeek  int     `json:"submissionsThisWeek"`
	SubmissionsThisMonth int     `json:"submissionsThisMonth"`
	PendingVerifications int     `json:"pendingVerifications"`
	StreakDays           int     `json:"streakDays"`
}

// VerifierDecisionStats aggregates the decisions made by one verifier.
type VerifierDecisionStats struct {
	Decisions         int     `db:"decisions"`
	Disputed          int     `db:"disputed"`
	AvgMinutes        float64 `db:"avg_minutes"`
	TotalImpact       float64 `db:"total_impact"`
	VerifiedToday     int     `db:"today"`
	VerifiedThisWeek  int     `db:"this_week"`
	VerifiedThisMonth int     `db:"this_month"`
}

// MunicipalStats summarises a verifier's workload and quality.
type MunicipalStats struct {
	TotalVerifications   int     `json:"totalVerifications"`
	VerificationAccuracy float64 `json:"verificationAccuracy"`
	AvgVerificationTime  int64   `json:"avgVerificationTime"`
	PendingVerifications int     `json:"pendingVerifications"`
	VerifiedToday        int     `json:"verifiedToday"`
	VerifiedThisWeek     int     `json:"verifiedThisWeek"`
	VerifiedThisMonth    int     `json:"verifiedThisMonth"`
	TotalImpactCreated   float64 `json:"totalImpactCreated"`
}

// LeaderboardEntry is a ranked citizen.
type LeaderboardEntry struct {
	CitizenID            string  `db:"citizen_id" json:"citizenId"`
	UserName             string  `db:"user_name" json:"userName"`
	Points               int64   `db:"points" json:"points"`
	WasteCollected       float64 `db:"waste_collected" json:"wasteCollected"`
	CO2Saved             float64 `db:"co2_saved" json:"co2Saved"`
	Rank                 int     `db:"-" json:"rank"`
	Level                int     `db:"-" json:"level"`
	SubmissionsThisMonth int     `db:"submissions_this_month" json:"submissionsThisMonth"`
}

// GlobalTotals are platform-wide sums.
type GlobalTotals struct {
	TotalPlastic       float64 `db:"total_plastic"`
	TotalCO2           float64 `db:"total_co2"`
	Citizens           int     `db:"citizens"`
	Workers            int     `db:"workers"`
	SubmissionsToday   int     `db:"submissions_today"`
	VerificationsToday int     `db:"verifications_today"`
}

// GlobalStats is the platform overview.
type GlobalStats struct {
	TotalPlasticCollected float64            `json:"totalPlasticCollected"`
	TotalCO2Reduced       float64            `json:"totalCO2Reduced"`
	TotalUsers            int                `json:"totalUsers"`
	TotalMunicipalWorkers int                `json:"totalMunicipalWorkers"`
	TopContributors       []LeaderboardEntry `json:"topContributors"`
	WasteHotspots         []Zone             `json:"wasteHotspots"`
	TodaySubmissions      int                `json:"todaySubmissions"`
	TodayVerifications    int                `json:"todayVerifications"`
}
