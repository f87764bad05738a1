package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/trash2cash/trash2cash-api/internal/models"
)

const voucherColumns = `id, title, description, points_cost, category, partner_name, valid_until, terms, is_active, max_redemptions, current_redemptions, discount_percentage, discount_amount, created_at`

// VoucherRepository persists the voucher catalog. Redemption counters are only changed by LedgerRepository.Redeem.
type VoucherRepository struct {
	db *sqlx.DB
}

// NewVoucherRepository constructs the repository.
func NewVoucherRepository(db *sqlx.DB) *VoucherRepository {
	return &VoucherRepository{db: db}
}

// ListActive returns redeemable vouchers ordered by cost, optionally filtered by category.
func (r *VoucherRepository) ListActive(ctx context.Context, category models.VoucherCategory, now time.Time) ([]models.Voucher, error) {
	query := `SELECT ` + voucherColumns + ` FROM vouchers WHERE is_active AND valid_until > $1`
	args := []interface{}{now}
	if category != "" {
		query += ` AND category = $2`
		args = append(args, category)
	}
	query += ` ORDER BY points_cost ASC, title ASC`
	var vouchers []models.Voucher
	if err := r.db.SelectContext(ctx, &vouchers, query, args...); err != nil {
		return nil, fmt.Errorf("list vouchers: %w", err)
	}
	return vouchers, nil
}

// GetByID fetches a voucher.
func (r *VoucherRepository) GetByID(ctx context.Context, id string) (*models.Voucher, error) {
	query := `SELECT ` + voucherColumns + ` FROM vouchers WHERE id = $1`
	var voucher models.Voucher
	if err := r.db.GetContext(ctx, &voucher, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get voucher: %w", err)
	}
	return &voucher, nil
}

// Create inserts a voucher. ON CONFLICT keeps seeding idempotent.
func (r *VoucherRepository) Create(ctx context.Context, voucher *models.Voucher) error {
	if voucher.ID == "" {
		voucher.ID = uuid.NewString()
	}
	if voucher.CreatedAt.IsZero() {
		voucher.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO vouchers (` + voucherColumns + `)
VALUES (:id, :title, :description, :points_cost, :category, :partner_name, :valid_until, :terms, :is_active, :max_redemptions, :current_redemptions, :discount_percentage, :discount_amount, :created_at)
ON CONFLICT (id) DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, query, voucher); err != nil {
		return fmt.Errorf("create voucher: %w", err)
	}
	return nil
}
