package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleCitizen         UserRole = "CITIZEN"
	RoleMunicipalWorker UserRole = "MUNICIPAL_WORKER"
	RoleAdmin           UserRole = "ADMIN"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	switch r {
	case RoleCitizen, RoleMunicipalWorker, RoleAdmin:
		return true
	}
	return false
}

// User represents an application user stored in the users table. Balance columns are written only by the ledger.
type User struct {
	ID                  string     `db:"id" json:"id"`
	Email               string     `db:"email" json:"email"`
	PasswordHash        string     `db:"password_hash" json:"-"`
	Name                string     `db:"name" json:"name"`
	Phone               string     `db:"phone" json:"phone"`
	Role                UserRole   `db:"role" json:"role"`
	IsVerified          bool       `db:"is_verified" json:"isVerified"`
	Active              bool       `db:"active" json:"active"`
	TotalPoints         int64      `db:"total_points" json:"totalPoints"`
	TotalWasteCollected float64    `db:"total_waste_collected" json:"totalWasteCollected"`
	TotalCO2Saved       float64    `db:"total_co2_saved" json:"totalCO2Saved"`
	LastLoginAt         *time.Time `db:"last_login_at" json:"lastLoginAt,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updatedAt"`
}

// Level derives the gamification level from the point balance.
func (u User) Level() int {
	return LevelForPoints(u.TotalPoints)
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role       *UserRole
	IsVerified *bool
	Limit      int
	Offset     int
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
