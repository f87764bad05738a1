package models

import "time"

// VoucherCategory groups partner vouchers in the catalog.
type VoucherCategory string

const (
	VoucherFoodDelivery   VoucherCategory = "FOOD_DELIVERY"
	VoucherShopping       VoucherCategory = "SHOPPING"
	VoucherTransportation VoucherCategory = "TRANSPORTATION"
	VoucherMobileRecharge VoucherCategory = "MOBILE_RECHARGE"
	VoucherEntertainment  VoucherCategory = "ENTERTAINMENT"
	VoucherEducation      VoucherCategory = "EDUCATION"
	VoucherHealthcare     VoucherCategory = "HEALTHCARE"
	VoucherGrocery        VoucherCategory = "GROCERY"
	VoucherOther          VoucherCategory = "OTHER"
)

// UnlimitedRedemptions marks a voucher without a redemption cap.
const UnlimitedRedemptions = -1

// Voucher is a catalog entry redeemable for points.
type Voucher struct {
	ID                 string          `db:"id" json:"id"`
	Title              string          `db:"title" json:"title"`
	Description        string          `db:"description" json:"description"`
	PointsCost         int64           `db:"points_cost" json:"pointsCost"`
	Category           VoucherCategory `db:"category" json:"category"`
	PartnerName        string          `db:"partner_name" json:"partnerName"`
	ValidUntil         time.Time       `db:"valid_until" json:"validUntil"`
	Terms              string          `db:"terms" json:"termsAndConditions"`
	IsActive           bool            `db:"is_active" json:"isActive"`
	MaxRedemptions     int             `db:"max_redemptions" json:"maxRedemptions"`
	CurrentRedemptions int             `db:"current_redemptions" json:"currentRedemptions"`
	DiscountPercentage float64         `db:"discount_percentage" json:"discountPercentage"`
	DiscountAmount     float64         `db:"discount_amount" json:"discountAmount"`
	CreatedAt          time.Time       `db:"created_at" json:"createdAt"`
}

// Exhausted reports whether the redemption cap has been reached.
func (v Voucher) Exhausted() bool {
	return v.MaxRedemptions != UnlimitedRedemptions && v.CurrentRedemptions >= v.MaxRedemptions
}

// Redeemable reports whether the voucher can be redeemed at now, ignoring the cap.
func (v Voucher) Redeemable(now time.Time) bool {
	return v.IsActive && now.Before(v.ValidUntil)
}

// CreateVoucherRequest adds a catalog entry.
type CreateVoucherRequest struct {
	Title              string          `json:"title" validate:"required,max=200"`
	Description        string          `json:"description" validate:"max=2000"`
	PointsCost         int64           `json:"pointsCost" validate:"required,gt=0"`
	Category           VoucherCategory `json:"category" validate:"required,oneof=FOOD_DELIVERY SHOPPING TRANSPORTATION MOBILE_RECHARGE ENTERTAINMENT EDUCATION HEALTHCARE GROCERY OTHER"`
	PartnerName        string          `json:"partnerName" validate:"required,max=200"`
	ValidUntil         time.Time       `json:"validUntil" validate:"required"`
	Terms              string          `json:"termsAndConditions" validate:"max=4000"`
	MaxRedemptions     int             `json:"maxRedemptions" validate:"gte=-1"`
	DiscountPercentage float64         `json:"discountPercentage" validate:"gte=0,lte=100"`
	DiscountAmount     float64         `json:"discountAmount" validate:"gte=0"`
}

// Redemption is the result of a successful voucher redemption.
type Redemption struct {
	Transaction RewardTransaction `json:"transaction"`
	Voucher     Voucher           `json:"voucher"`
	Balance     int64             `json:"balance"`
}
