package repository

import (
	"errors"

	"github.com/lib/pq"
)

// Sentinel errors returned by repositories. Services translate them into API errors.
var (
	ErrStateConflict       = errors.New("row not in expected state")
	ErrDuplicate           = errors.New("duplicate record")
	ErrInsufficientPoints  = errors.New("insufficient points")
	ErrRedemptionExhausted = errors.New("voucher redemption limit reached")
	ErrVoucherUnavailable  = errors.New("voucher inactive or expired")
	ErrAlreadyClaimed      = errors.New("already claimed")
	ErrChallengeClosed     = errors.New("challenge closed")
	ErrChallengeFull       = errors.New("challenge full")
	ErrVerifierMissing     = errors.New("verifier profile missing")
	ErrAccountMissing      = errors.New("account missing")
)

const pqUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}
