package models

import "time"

// TransactionType classifies a ledger row.
type TransactionType string

const (
	TransactionEarned   TransactionType = "EARNED"
	TransactionRedeemed TransactionType = "REDEEMED"
	TransactionBonus    TransactionType = "BONUS"
	TransactionPenalty  TransactionType = "PENALTY"
	TransactionRefund   TransactionType = "REFUND"
)

// RewardTransaction is an immutable ledger row. Points carries the signed delta.
type RewardTransaction struct {
	ID                  string          `db:"id" json:"id"`
	CitizenID           string          `db:"citizen_id" json:"citizenId"`
	Type                TransactionType `db:"type" json:"type"`
	Points              int64           `db:"points" json:"points"`
	Description         string          `db:"description" json:"description"`
	CreatedAt           time.Time       `db:"created_at" json:"timestamp"`
	RelatedSubmissionID *string         `db:"related_submission_id" json:"relatedSubmissionId,omitempty"`
	VoucherID           *string         `db:"voucher_id" json:"voucherId,omitempty"`
	VoucherCode         *string         `db:"voucher_code" json:"voucherCode,omitempty"`
	ExpiresAt           *time.Time      `db:"expires_at" json:"expiryDate,omitempty"`
}

// TransactionFilter constrains ledger history queries.
type TransactionFilter struct {
	CitizenID string
	Type      []TransactionType
	Limit     int
	Offset    int
}

// AdjustPointsRequest is an administrative bonus, penalty or refund.
type AdjustPointsRequest struct {
	CitizenID   string          `json:"citizenId" validate:"required,uuid4"`
	Type        TransactionType `json:"type" validate:"required,oneof=BONUS PENALTY REFUND"`
	Points      int64           `json:"points" validate:"required,gt=0"`
	Description string          `json:"description" validate:"required,max=500"`
}

// Reconciliation compares the ledger sum with the stored balance of a citizen.
type Reconciliation struct {
	CitizenID  string `db:"citizen_id" json:"citizenId"`
	LedgerSum  int64  `db:"ledger_sum" json:"ledgerSum"`
	Balance    int64  `db:"balance" json:"balance"`
	Consistent bool   `json:"consistent"`
}

// StatementFormat enumerates ledger statement renderings.
type StatementFormat string

const (
	StatementFormatCSV StatementFormat = "csv"
	StatementFormatPDF StatementFormat = "pdf"
)
