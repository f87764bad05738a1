package models

import "time"

// ChallengeType scopes who competes in a challenge.
type ChallengeType string

const (
	ChallengeIndividual ChallengeType = "INDIVIDUAL"
	ChallengeGroup      ChallengeType = "GROUP"
	ChallengeCommunity  ChallengeType = "COMMUNITY"
	ChallengeMunicipal  ChallengeType = "MUNICIPAL"
)

// UnlimitedParticipants marks a challenge without a participant cap.
const UnlimitedParticipants = -1

// Challenge is a time-boxed collection goal.
type Challenge struct {
	ID                  string        `db:"id" json:"id"`
	Title               string        `db:"title" json:"title"`
	Description         string        `db:"description" json:"description"`
	StartDate           time.Time     `db:"start_date" json:"startDate"`
	EndDate             time.Time     `db:"end_date" json:"endDate"`
	TargetPoints        int64         `db:"target_points" json:"targetPoints"`
	TargetWaste         float64       `db:"target_waste" json:"targetWaste"`
	RewardPoints        int64         `db:"reward_points" json:"rewardPoints"`
	Type                ChallengeType `db:"type" json:"type"`
	IsActive            bool          `db:"is_active" json:"isActive"`
	OrganizationName    string        `db:"organization_name" json:"organizationName"`
	SponsorName         string        `db:"sponsor_name" json:"sponsorName"`
	MaxParticipants     int           `db:"max_participants" json:"maxParticipants"`
	CurrentParticipants int           `db:"current_participants" json:"currentParticipants"`
	CreatedAt           time.Time     `db:"created_at" json:"createdAt"`
}

// Full reports whether the participant cap has been reached.
func (c Challenge) Full() bool {
	return c.MaxParticipants != UnlimitedParticipants && c.CurrentParticipants >= c.MaxParticipants
}

// Open reports whether the challenge accepts participants at now.
func (c Challenge) Open(now time.Time) bool {
	return c.IsActive && now.Before(c.EndDate)
}

// CreateChallengeRequest adds a challenge.
type CreateChallengeRequest struct {
	Title            string        `json:"title" validate:"required,max=200"`
	Description      string        `json:"description" validate:"max=2000"`
	StartDate        time.Time     `json:"startDate" validate:"required"`
	EndDate          time.Time     `json:"endDate" validate:"required,gtfield=StartDate"`
	TargetPoints     int64         `json:"targetPoints" validate:"gte=0"`
	TargetWaste      float64       `json:"targetWaste" validate:"gte=0"`
	RewardPoints     int64         `json:"rewardPoints" validate:"gte=0"`
	Type             ChallengeType `json:"type" validate:"required,oneof=INDIVIDUAL GROUP COMMUNITY MUNICIPAL"`
	OrganizationName string        `json:"organizationName" validate:"max=200"`
	SponsorName      string        `json:"sponsorName" validate:"max=200"`
	MaxParticipants  int           `json:"maxParticipants" validate:"gte=-1"`
}
