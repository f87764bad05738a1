package dto

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// PageQuery is the limit/offset pair accepted by list endpoints.
type PageQuery struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

// Window returns the effective limit and offset.
func (q PageQuery) Window() (limit, offset int) {
	limit = q.Limit
	switch {
	case limit <= 0:
		limit = defaultPageLimit
	case limit > maxPageLimit:
		limit = maxPageLimit
	}
	offset = q.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// Meta renders the window for the response envelope.
func (q PageQuery) Meta() map[string]interface{} {
	limit, offset := q.Window()
	return map[string]interface{}{"limit": limit, "offset": offset}
}

// QueueQuery filters the verification queue.
type QueueQuery struct {
	PageQuery
	Scope string `form:"scope" binding:"omitempty,oneof=assigned unassigned all"`
}

// SubmissionListQuery filters the admin submission listing.
type SubmissionListQuery struct {
	PageQuery
	Status []string `form:"status" binding:"omitempty,dive,oneof=AI_PROCESSED PENDING VERIFIED REJECTED DISPUTED"`
}

// TransactionQuery filters a citizen's ledger history.
type TransactionQuery struct {
	PageQuery
	Type []string `form:"type" binding:"omitempty,dive,oneof=EARNED REDEEMED BONUS PENALTY REFUND"`
}

// StatementQuery selects the statement rendering.
type StatementQuery struct {
	Format string `form:"format" binding:"omitempty,oneof=csv pdf"`
}

// VoucherQuery filters the voucher catalog.
type VoucherQuery struct {
	Category string `form:"category" binding:"omitempty,oneof=FOOD_DELIVERY SHOPPING TRANSPORTATION MOBILE_RECHARGE ENTERTAINMENT EDUCATION HEALTHCARE GROCERY OTHER"`
}

// ChallengeQuery filters active challenges.
type ChallengeQuery struct {
	Type string `form:"type" binding:"omitempty,oneof=INDIVIDUAL GROUP COMMUNITY MUNICIPAL"`
}

// LeaderboardQuery bounds the leaderboard size.
type LeaderboardQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

// UserListQuery filters the admin user listing.
type UserListQuery struct {
	PageQuery
	Role     string `form:"role" binding:"omitempty,oneof=CITIZEN MUNICIPAL_WORKER ADMIN"`
	Verified *bool  `form:"verified"`
}
