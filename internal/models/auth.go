package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RegisterRequest carries the self-registration payload. Worker fields are validated only for MUNICIPAL_WORKER.
type RegisterRequest struct {
	Name        string   `json:"name" validate:"required,min=2,alphaspace"`
	Email       string   `json:"email" validate:"required,email"`
	Password    string   `json:"password" validate:"required,min=6,letterdigit"`
	Phone       string   `json:"phone" validate:"required,len=10,number"`
	Role        UserRole `json:"role" validate:"required,oneof=CITIZEN MUNICIPAL_WORKER"`
	EmployeeID  string   `json:"employeeId" validate:"required_if=Role MUNICIPAL_WORKER,omitempty,min=4"`
	Department  string   `json:"department" validate:"required_if=Role MUNICIPAL_WORKER"`
	Designation string   `json:"designation" validate:"required_if=Role MUNICIPAL_WORKER"`
	IP          string   `json:"-"`
	UserAgent   string   `json:"-"`
}

// UpdateProfileRequest changes the caller's contact details. Rules match registration.
type UpdateProfileRequest struct {
	Name      string `json:"name" validate:"required,min=2,alphaspace"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone" validate:"required,len=10,number"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// ChangePasswordRequest payload for updating password.
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=6,letterdigit,nefield=OldPassword"`
	IP          string `json:"-"`
	UserAgent   string `json:"-"`
}

// LoginRequest holds credentials for authenticating a user in a given role.
type LoginRequest struct {
	Email     string   `json:"email" validate:"required,email"`
	Password  string   `json:"password" validate:"required"`
	Role      UserRole `json:"role" validate:"required,oneof=CITIZEN MUNICIPAL_WORKER ADMIN"`
	IP        string   `json:"-"`
	UserAgent string   `json:"-"`
}

// LoginResponse returns the issued token and user info.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	SessionID   string    `json:"session_id"`
	User        UserInfo  `json:"user"`
	IssuedAt    time.Time `json:"issued_at"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	Name        string   `json:"name"`
	Role        UserRole `json:"role"`
	TotalPoints int64    `json:"totalPoints"`
	Level       int      `json:"level"`
}

// NewUserInfo projects a user into its public view.
func NewUserInfo(u *User) UserInfo {
	return UserInfo{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		Role:        u.Role,
		TotalPoints: u.TotalPoints,
		Level:       u.Level(),
	}
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID    string   `json:"user_id"`
	Role      UserRole `json:"role"`
	Email     string   `json:"email"`
	SessionID string   `json:"sid"`
	jwt.RegisteredClaims
}

// Session is the server-side login record. It is stored sealed and expires after a period of inactivity.
type Session struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Email      string    `json:"email"`
	Role       UserRole  `json:"role"`
	LoggedInAt time.Time `json:"loggedInAt"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

// Expired reports whether the session has been idle longer than timeout.
func (s Session) Expired(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.LastSeenAt) > timeout
}
