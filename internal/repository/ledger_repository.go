package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/trash2cash/trash2cash-api/internal/models"
)

const transactionColumns = `id, citizen_id, type, points, description, created_at, related_submission_id, voucher_id, voucher_code, expires_at`

// LedgerRepository owns reward_transactions and the balance columns of users.
// Every write locks the citizen row so ledger rows and balances change together.
type LedgerRepository struct {
	db *sqlx.DB
}

// NewLedgerRepository constructs the repository.
func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Credit appends a positive EARNED row and increments the balance.
func (r *LedgerRepository) Credit(ctx context.Context, entry *models.RewardTransaction) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin credit: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = creditTx(ctx, tx, entry, 0, 0); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit credit: %w", err)
	}
	return nil
}

// Adjust appends a signed BONUS, PENALTY or REFUND row. The balance may not become negative.
func (r *LedgerRepository) Adjust(ctx context.Context, entry *models.RewardTransaction) (balance int64, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin adjust: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	current, err := lockBalance(ctx, tx, entry.CitizenID)
	if err != nil {
		return 0, err
	}
	if current+entry.Points < 0 {
		err = ErrInsufficientPoints
		return 0, err
	}
	if err = insertTransaction(ctx, tx, entry); err != nil {
		return 0, err
	}
	if err = applyBalance(ctx, tx, entry.CitizenID, entry.Points, 0, 0, entry.CreatedAt); err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit adjust: %w", err)
	}
	return current + entry.Points, nil
}

// RedeemParams describes a voucher redemption. Code and expiry are generated by the caller.
type RedeemParams struct {
	CitizenID string
	VoucherID string
	Code      string
	ExpiresAt time.Time
	At        time.Time
}

// Redeem debits the voucher cost, appends a REDEEMED row and bumps the redemption counter atomically.
func (r *LedgerRepository) Redeem(ctx context.Context, params RedeemParams) (result *models.Redemption, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin redeem: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	balance, err := lockBalance(ctx, tx, params.CitizenID)
	if err != nil {
		return nil, err
	}

	var voucher models.Voucher
	lockVoucher := `SELECT ` + voucherColumns + ` FROM vouchers WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &voucher, lockVoucher, params.VoucherID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("lock voucher: %w", err)
	}

	switch {
	case !voucher.Redeemable(params.At):
		err = ErrVoucherUnavailable
	case balance < voucher.PointsCost:
		err = ErrInsufficientPoints
	case voucher.Exhausted():
		err = ErrRedemptionExhausted
	}
	if err != nil {
		return nil, err
	}

	voucherID := voucher.ID
	code := params.Code
	expires := params.ExpiresAt
	entry := &models.RewardTransaction{
		CitizenID:   params.CitizenID,
		Type:        models.TransactionRedeemed,
		Points:      -voucher.PointsCost,
		Description: "Redeemed: " + voucher.Title,
		CreatedAt:   params.At,
		VoucherID:   &voucherID,
		VoucherCode: &code,
		ExpiresAt:   &expires,
	}
	if err = insertTransaction(ctx, tx, entry); err != nil {
		return nil, err
	}
	if err = applyBalance(ctx, tx, params.CitizenID, entry.Points, 0, 0, params.At); err != nil {
		return nil, err
	}
	const bump = `UPDATE vouchers SET current_redemptions = current_redemptions + 1 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, bump, voucher.ID); err != nil {
		return nil, fmt.Errorf("increment voucher redemptions: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit redeem: %w", err)
	}
	voucher.CurrentRedemptions++
	return &models.Redemption{Transaction: *entry, Voucher: voucher, Balance: balance + entry.Points}, nil
}

// List returns ledger rows newest first.
func (r *LedgerRepository) List(ctx context.Context, filter models.TransactionFilter) ([]models.RewardTransaction, error) {
	builder := strings.Builder{}
	args := []interface{}{filter.CitizenID}
	builder.WriteString(`SELECT ` + transactionColumns + ` FROM reward_transactions WHERE citizen_id = $1`)
	if len(filter.Type) > 0 {
		placeholders := make([]string, len(filter.Type))
		for i, t := range filter.Type {
			args = append(args, t)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		builder.WriteString(fmt.Sprintf(" AND type IN (%s)", strings.Join(placeholders, ",")))
	}
	builder.WriteString(" ORDER BY created_at DESC, id")

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var rows []models.RewardTransaction
	if err := r.db.SelectContext(ctx, &rows, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list reward transactions: %w", err)
	}
	return rows, nil
}

// Reconcile compares the ledger sum with the stored balance.
func (r *LedgerRepository) Reconcile(ctx context.Context, citizenID string) (*models.Reconciliation, error) {
	const query = `SELECT u.id AS citizen_id, u.total_points AS balance,
	COALESCE((SELECT SUM(points) FROM reward_transactions rt WHERE rt.citizen_id = u.id), 0) AS ledger_sum
FROM users u WHERE u.id = $1`
	var rec models.Reconciliation
	if err := r.db.GetContext(ctx, &rec, query, citizenID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("reconcile ledger: %w", err)
	}
	rec.Consistent = rec.LedgerSum == rec.Balance
	return &rec, nil
}

// creditTx credits an EARNED entry inside tx and adds weight and CO2 to the citizen totals.
func creditTx(ctx context.Context, tx *sqlx.Tx, entry *models.RewardTransaction, weightKg, co2Kg float64) error {
	if entry.Points <= 0 {
		return fmt.Errorf("credit requires positive points, got %d", entry.Points)
	}
	entry.Type = models.TransactionEarned
	if _, err := lockBalance(ctx, tx, entry.CitizenID); err != nil {
		return err
	}
	if err := insertTransaction(ctx, tx, entry); err != nil {
		return err
	}
	return applyBalance(ctx, tx, entry.CitizenID, entry.Points, weightKg, co2Kg, entry.CreatedAt)
}

func lockBalance(ctx context.Context, tx *sqlx.Tx, citizenID string) (int64, error) {
	const query = `SELECT total_points FROM users WHERE id = $1 AND role = 'CITIZEN' FOR UPDATE`
	var balance int64
	if err := tx.GetContext(ctx, &balance, query, citizenID); err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrAccountMissing
		}
		return 0, fmt.Errorf("lock citizen balance: %w", err)
	}
	return balance, nil
}

func insertTransaction(ctx context.Context, tx *sqlx.Tx, entry *models.RewardTransaction) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO reward_transactions (` + transactionColumns + `)
VALUES (:id, :citizen_id, :type, :points, :description, :created_at, :related_submission_id, :voucher_id, :voucher_code, :expires_at)`
	if _, err := tx.NamedExecContext(ctx, query, entry); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert reward transaction: %w", err)
	}
	return nil
}

func applyBalance(ctx context.Context, tx *sqlx.Tx, citizenID string, points int64, weightKg, co2Kg float64, at time.Time) error {
	const query = `UPDATE users SET total_points = total_points + $2, total_waste_collected = total_waste_collected + $3,
	total_co2_saved = total_co2_saved + $4, updated_at = $5 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, citizenID, points, weightKg, co2Kg, at); err != nil {
		return fmt.Errorf("update citizen balance: %w", err)
	}
	return nil
}
