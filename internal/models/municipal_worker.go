package models

import (
	"time"

	"github.com/lib/pq"
)

// MunicipalWorker is the verifier profile attached 1:1 to a MUNICIPAL_WORKER user.
type MunicipalWorker struct {
	UserID            string         `db:"user_id" json:"userId"`
	EmployeeID        string         `db:"employee_id" json:"employeeId"`
	Department        string         `db:"department" json:"department"`
	Designation       string         `db:"designation" json:"designation"`
	AssignedAreas     pq.StringArray `db:"assigned_areas" json:"assignedAreas"`
	VerificationCount int            `db:"verification_count" json:"verificationCount"`
	IsActive          bool           `db:"is_active" json:"isActive"`
	CreatedAt         time.Time      `db:"created_at" json:"createdAt"`
}

// WorkerCandidate is an assignable verifier together with the centres of the zones it covers.
type WorkerCandidate struct {
	UserID string
	Name   string
	Zones  []GeoPoint
}

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Latitude  float64 `db:"latitude" json:"latitude"`
	Longitude float64 `db:"longitude" json:"longitude"`
}

// PendingWorker lists a worker awaiting admin approval.
type PendingWorker struct {
	UserID      string    `db:"user_id" json:"userId"`
	Name        string    `db:"name" json:"name"`
	Email       string    `db:"email" json:"email"`
	Phone       string    `db:"phone" json:"phone"`
	EmployeeID  string    `db:"employee_id" json:"employeeId"`
	Department  string    `db:"department" json:"department"`
	Designation string    `db:"designation" json:"designation"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}
