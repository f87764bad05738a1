package models

import "time"

// WasteLevel grades how littered a zone is.
type WasteLevel string

const (
	WasteLevelLow      WasteLevel = "LOW"
	WasteLevelMedium   WasteLevel = "MEDIUM"
	WasteLevelHigh     WasteLevel = "HIGH"
	WasteLevelCritical WasteLevel = "CRITICAL"
)

// Zone is an adoptable cleanup area.
type Zone struct {
	ID                  string     `db:"id" json:"id"`
	Name                string     `db:"name" json:"name"`
	Latitude            float64    `db:"latitude" json:"latitude"`
	Longitude           float64    `db:"longitude" json:"longitude"`
	RadiusMeters        float64    `db:"radius_meters" json:"radius"`
	Address             string     `db:"address" json:"address"`
	City                string     `db:"city" json:"city"`
	State               string     `db:"state" json:"state"`
	Pincode             string     `db:"pincode" json:"pincode"`
	AdoptedByCitizenID  *string    `db:"adopted_by_citizen_id" json:"adoptedByCitizenId,omitempty"`
	AssignedMunicipalID *string    `db:"assigned_municipal_id" json:"assignedMunicipalId,omitempty"`
	WasteLevel          WasteLevel `db:"waste_level" json:"wasteLevel"`
	LastCleaned         *time.Time `db:"last_cleaned" json:"lastCleaned,omitempty"`
	TotalSubmissions    int        `db:"total_submissions" json:"totalSubmissions"`
	TotalWasteCollected float64    `db:"total_waste_collected" json:"totalWasteCollected"`
	Description         string     `db:"description" json:"description"`
	IsActive            bool       `db:"is_active" json:"isActive"`
	CreatedAt           time.Time  `db:"created_at" json:"createdAt"`
}

// CreateZoneRequest adds a zone.
type CreateZoneRequest struct {
	Name         string     `json:"name" validate:"required,max=200"`
	Latitude     float64    `json:"latitude" validate:"latitude"`
	Longitude    float64    `json:"longitude" validate:"longitude"`
	RadiusMeters float64    `json:"radius" validate:"required,gt=0,lte=50000"`
	Address      string     `json:"address" validate:"max=500"`
	City         string     `json:"city" validate:"required,max=100"`
	State        string     `json:"state" validate:"max=100"`
	Pincode      string     `json:"pincode" validate:"max=20"`
	WasteLevel   WasteLevel `json:"wasteLevel" validate:"omitempty,oneof=LOW MEDIUM HIGH CRITICAL"`
	Description  string     `json:"description" validate:"max=2000"`
}

// AssignZoneRequest hands a zone to a municipal worker.
type AssignZoneRequest struct {
	WorkerID string `json:"workerId" validate:"required"`
}
