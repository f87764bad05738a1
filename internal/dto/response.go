package dto

import "github.com/trash2cash/trash2cash-api/internal/models"

// AdjustmentResult is returned by the admin points adjustment endpoint.
type AdjustmentResult struct {
	Transaction models.RewardTransaction `json:"transaction"`
	Balance     int64                    `json:"balance"`
}

// WorkerApproval acknowledges an approved municipal worker.
type WorkerApproval struct {
	UserID   string `json:"userId"`
	Approved bool   `json:"approved"`
}

// Status is the body of health and readiness probes.
type Status struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}
