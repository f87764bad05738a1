package models

import (
	"errors"
	"math"
	"strings"
	"time"
)

// VerificationStatus is the lifecycle state of a waste submission.
type VerificationStatus string

const (
	StatusAIProcessed VerificationStatus = "AI_PROCESSED"
	StatusPending     VerificationStatus = "PENDING"
	StatusVerified    VerificationStatus = "VERIFIED"
	StatusRejected    VerificationStatus = "REJECTED"
	StatusDisputed    VerificationStatus = "DISPUTED"
)

var (
	// ErrInvalidTransition is returned for any edge not present in the lifecycle graph.
	ErrInvalidTransition = errors.New("invalid submission status transition")
	// ErrAlreadyDecided is returned when a verifier decision targets a VERIFIED or REJECTED submission.
	ErrAlreadyDecided = errors.New("submission already verified")
	// ErrAnalysisInProgress is returned when a decision arrives before the submission reached PENDING.
	ErrAnalysisInProgress = errors.New("submission analysis in progress")
)

var transitions = map[VerificationStatus][]VerificationStatus{
	StatusAIProcessed: {StatusPending},
	StatusPending:     {StatusVerified, StatusRejected},
	StatusRejected:    {StatusDisputed},
}

// Terminal reports whether a verifier has already decided the submission.
func (s VerificationStatus) Terminal() bool {
	return s == StatusVerified || s == StatusRejected || s == StatusDisputed
}

// Transition validates a status change against the lifecycle graph.
func Transition(from, to VerificationStatus) error {
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	if isDecision(to) {
		switch {
		case from.Terminal():
			return ErrAlreadyDecided
		case from == StatusAIProcessed:
			return ErrAnalysisInProgress
		}
	}
	return ErrInvalidTransition
}

func isDecision(s VerificationStatus) bool {
	return s == StatusVerified || s == StatusRejected
}

// WasteSubmission is a citizen report of collected plastic waste.
type WasteSubmission struct {
	ID           string    `db:"id" json:"id"`
	CitizenID    string    `db:"citizen_id" json:"citizenId"`
	ImageRef     string    `db:"image_ref" json:"imageRef"`
	Latitude     float64   `db:"latitude" json:"latitude"`
	Longitude    float64   `db:"longitude" json:"longitude"`
	LocationName string    `db:"location_name" json:"locationName"`
	Address      string    `db:"address" json:"address"`
	Description  string    `db:"description" json:"description"`
	SubmittedAt  time.Time `db:"submitted_at" json:"submittedAt"`

	AIDetectedType  *string    `db:"ai_detected_type" json:"aiDetectedType,omitempty"`
	AIEstimatedKg   *float64   `db:"ai_estimated_weight" json:"aiEstimatedWeight,omitempty"`
	AIConfidence    *float64   `db:"ai_confidence" json:"aiConfidence,omitempty"`
	AIIsWaste       *bool      `db:"ai_is_waste" json:"aiIsWaste,omitempty"`
	AIMessage       *string    `db:"ai_message" json:"aiMessage,omitempty"`
	AIProcessedAt   *time.Time `db:"ai_processed_at" json:"aiProcessedAt,omitempty"`
	AnalysisFailure *string    `db:"analysis_failure" json:"analysisFailure,omitempty"`

	AssignedMunicipalID   *string            `db:"assigned_municipal_id" json:"assignedMunicipalId,omitempty"`
	Status                VerificationStatus `db:"status" json:"status"`
	VerifiedByMunicipalID *string            `db:"verified_by_municipal_id" json:"verifiedByMunicipalId,omitempty"`
	VerifiedAt            *time.Time         `db:"verified_at" json:"verifiedAt,omitempty"`
	MunicipalComments     string             `db:"municipal_comments" json:"municipalComments"`
	ActualWasteType       string             `db:"actual_waste_type" json:"actualWasteType"`
	ActualWeight          float64            `db:"actual_weight" json:"actualWeight"`
	RewardPoints          int64              `db:"reward_points" json:"rewardPoints"`
	ImpactScore           float64            `db:"impact_score" json:"impactScore"`
	IsRejected            bool               `db:"is_rejected" json:"isRejected"`
	RejectionReason       *string            `db:"rejection_reason" json:"rejectionReason,omitempty"`
	DisputeReason         *string            `db:"dispute_reason" json:"disputeReason,omitempty"`
	DisputedAt            *time.Time         `db:"disputed_at" json:"disputedAt,omitempty"`
	UpdatedAt             time.Time          `db:"updated_at" json:"updatedAt"`
}

// SubmitRequest is the citizen payload for a new submission.
type SubmitRequest struct {
	ImageRef     string  `json:"imageRef" validate:"required,max=512"`
	Latitude     float64 `json:"latitude" validate:"latitude"`
	Longitude    float64 `json:"longitude" validate:"longitude"`
	LocationName string  `json:"locationName" validate:"required,max=200"`
	Address      string  `json:"address" validate:"max=500"`
	Description  string  `json:"description" validate:"max=2000"`
}

// VerifyRequest is a verifier decision. Approval needs a positive weight; rejection needs a reason.
type VerifyRequest struct {
	Approved        bool    `json:"approved"`
	ActualWasteType string  `json:"actualWasteType" validate:"required_if=Approved true,max=100"`
	ActualWeight    float64 `json:"actualWeight" validate:"gte=0,lte=1000"`
	Comments        string  `json:"comments" validate:"max=2000"`
	RejectionReason string  `json:"rejectionReason" validate:"required_if=Approved false,max=500"`
	IP              string  `json:"-"`
	UserAgent       string  `json:"-"`
}

// DisputeRequest contests a rejection.
type DisputeRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

// Analysis is the oracle outcome recorded on a submission.
type Analysis struct {
	DetectedType string
	EstimatedKg  float64
	Confidence   float64
	IsWaste      bool
	Message      string
	ProcessedAt  time.Time
}

// AnalysisCursor is the keyset position of a submission awaiting analysis.
type AnalysisCursor struct {
	ID          string    `db:"id"`
	SubmittedAt time.Time `db:"submitted_at"`
}

// Decision is a verifier outcome ready to be persisted.
type Decision struct {
	SubmissionID    string
	VerifierID      string
	Status          VerificationStatus
	DecidedAt       time.Time
	Comments        string
	ActualWasteType string
	ActualWeight    float64
	RewardPoints    int64
	ImpactScore     float64
	RejectionReason *string
}

// QueueScope selects which pending submissions a reviewer sees.
type QueueScope string

const (
	QueueScopeAssigned   QueueScope = "assigned"
	QueueScopeUnassigned QueueScope = "unassigned"
	QueueScopeAll        QueueScope = "all"
)

// SubmissionFilter constrains listing queries.
type SubmissionFilter struct {
	CitizenID   string
	VerifiedBy  string
	AssignedTo  string
	Unassigned  bool
	Status      []VerificationStatus
	OldestFirst bool
	Limit       int
	Offset      int
}

type materialFactor struct {
	keyword string
	factor  float64
}

// Checked in order, first substring match wins.
var materialFactors = []materialFactor{
	{"bottle", 3.2},
	{"container", 2.8},
	{"bag", 2.1},
	{"wrapper", 1.5},
	{"cup", 2.0},
}

const defaultMaterialFactor = 2.5

// MaterialFactor returns the CO2 kg per waste kg for a declared waste type.
func MaterialFactor(wasteType string) float64 {
	lower := strings.ToLower(wasteType)
	for _, mf := range materialFactors {
		if strings.Contains(lower, mf.keyword) {
			return mf.factor
		}
	}
	return defaultMaterialFactor
}

// RewardPointsFor awards ten points per kilogram, at least one.
func RewardPointsFor(weightKg float64) int64 {
	points := int64(math.Floor(weightKg * 10))
	if points < 1 {
		return 1
	}
	return points
}

// ImpactScoreFor returns the CO2 equivalent saved by a verified submission.
func ImpactScoreFor(weightKg float64, wasteType string) float64 {
	return weightKg * MaterialFactor(wasteType)
}
