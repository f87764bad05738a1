package service

import (
	"bytes"
	"context"
	"database/sql"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trash2cash/trash2cash-api/internal/models"
	"github.com/trash2cash/trash2cash-api/internal/repository"
	appErrors "github.com/trash2cash/trash2cash-api/pkg/errors"
)

// memoryLedger enforces the same guards as the SQL ledger under a single lock.
type memoryLedger struct {
	mu       sync.Mutex
	balances map[string]int64
	rows     []models.RewardTransaction
	vouchers map[string]*models.Voucher
	listed   int
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{balances: map[string]int64{}, vouchers: map[string]*models.Voucher{}}
}

func (m *memoryLedger) Credit(ctx context.Context, entry *models.RewardTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.balances[entry.CitizenID]; !ok {
		return repository.ErrAccountMissing
	}
	for _, row := range m.rows {
		if entry.RelatedSubmissionID != nil && row.RelatedSubmissionID != nil && *row.RelatedSubmissionID == *entry.RelatedSubmissionID {
			return repository.ErrDuplicate
		}
	}
	m.rows = append(m.rows, *entry)
	m.balances[entry.CitizenID] += entry.Points
	return nil
}

func (m *memoryLedger) Adjust(ctx context.Context, entry *models.RewardTransaction) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, ok := m.balances[entry.CitizenID]
	if !ok {
		return 0, repository.ErrAccountMissing
	}
	if balance+entry.Points < 0 {
		return 0, repository.ErrInsufficientPoints
	}
	m.rows = append(m.rows, *entry)
	m.balances[entry.CitizenID] = balance + entry.Points
	return balance + entry.Points, nil
}

func (m *memoryLedger) Redeem(ctx context.Context, p repository.RedeemParams) (*models.Redemption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, ok := m.balances[p.CitizenID]
	if !ok {
		return nil, repository.ErrAccountMissing
	}
	v, ok := m.vouchers[p.VoucherID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	switch {
	case !v.Redeemable(p.At):
		return nil, repository.ErrVoucherUnavailable
	case balance < v.PointsCost:
		return nil, repository.ErrInsufficientPoints
	case v.Exhausted():
		return nil, repository.ErrRedemptionExhausted
	}
	code, expires, id := p.Code, p.ExpiresAt, v.ID
	entry := models.RewardTransaction{CitizenID: p.CitizenID, Type: models.TransactionRedeemed, Points: -v.PointsCost,
		CreatedAt: p.At, VoucherID: &id, VoucherCode: &code, ExpiresAt: &expires}
	m.rows = append(m.rows, entry)
	m.balances[p.CitizenID] = balance - v.PointsCost
	v.CurrentRedemptions++
	return &models.Redemption{Transaction: entry, Voucher: *v, Balance: m.balances[p.CitizenID]}, nil
}

func (m *memoryLedger) List(ctx context.Context, filter models.TransactionFilter) ([]models.RewardTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.RewardTransaction
	for _, row := range m.rows {
		if row.CitizenID == filter.CitizenID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memoryLedger) Reconcile(ctx context.Context, citizenID string) (*models.Reconciliation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, ok := m.balances[citizenID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	var sum int64
	for _, row := range m.rows {
		if row.CitizenID == citizenID {
			sum += row.Points
		}
	}
	return &models.Reconciliation{CitizenID: citizenID, LedgerSum: sum, Balance: balance, Consistent: sum == balance}, nil
}

func (m *memoryLedger) ListActive(ctx context.Context, category models.VoucherCategory, now time.Time) ([]models.Voucher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listed++
	var out []models.Voucher
	for _, v := range m.vouchers {
		if v.Redeemable(now) && (category == "" || v.Category == category) {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (m *memoryLedger) Create(ctx context.Context, v *models.Voucher) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v.ID == "" {
		v.ID = "v-new"
	}
	clone := *v
	m.vouchers[v.ID] = &clone
	return nil
}

type ledgerFixture struct {
	svc     *LedgerService
	ledger  *memoryLedger
	cache   *memoryCache
	audit   *mockAudit
	metrics *MetricsService
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	f := &ledgerFixture{ledger: newMemoryLedger(), cache: newMemoryCache(), audit: &mockAudit{}, metrics: NewMetricsService()}
	users := newMockAuthRepo(&models.User{ID: "citizen-1", Name: "Asha Rao", Email: "asha@example.com", Role: models.RoleCitizen, TotalPoints: 500})
	cache := NewCacheService(f.cache, f.metrics, time.Minute, zap.NewNop(), true)
	f.svc = NewLedgerService(f.ledger, f.ledger, users, cache, f.audit, f.metrics, nil, zap.NewNop(), LedgerConfig{CodePrefix: "T2C", CodeTTL: 30 * 24 * time.Hour})
	return f
}

func (f *ledgerFixture) voucher(id string, cost int64, maxRedemptions, current int) {
	f.ledger.vouchers[id] = &models.Voucher{ID: id, Title: "Coffee", PointsCost: cost, Category: models.VoucherFoodDelivery,
		IsActive: true, ValidUntil: time.Now().Add(24 * time.Hour), MaxRedemptions: maxRedemptions, CurrentRedemptions: current}
}

func TestLedgerServiceRedeemExactBalance(t *testing.T) {
	f := newLedgerFixture(t)
	f.ledger.balances["citizen-1"] = 500
	f.voucher("v1", 500, 1, 0)
	f.cache.items[cacheKeyVouchers+"all"] = []byte("[]")

	res, err := f.svc.Redeem(context.Background(), "citizen-1", "v1", "127.0.0.1", "test")
	require.NoError(t, err)
	assert.Zero(t, res.Balance)
	assert.Equal(t, 1, res.Voucher.CurrentRedemptions)
	assert.Equal(t, int64(-500), res.Transaction.Points)
	require.NotNil(t, res.Transaction.VoucherCode)
	assert.Regexp(t, regexp.MustCompile(`^T2C[A-Z0-9]{8}$`), *res.Transaction.VoucherCode)
	require.NotNil(t, res.Transaction.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), *res.Transaction.ExpiresAt, time.Minute)
	assert.Empty(t, f.cache.items)
	assert.Equal(t, []string{models.AuditActionRedeem}, f.audit.actions())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.redemptions.WithLabelValues(RedemptionSucceeded)))

	f.ledger.balances["citizen-2"] = 800
	_, err = f.svc.Redeem(context.Background(), "citizen-2", "v1", "", "")
	assert.ErrorIs(t, err, appErrors.ErrRedemptionExhausted)
	assert.Equal(t, int64(800), f.ledger.balances["citizen-2"])
}

func TestLedgerServiceRedeemOnePointShort(t *testing.T) {
	f := newLedgerFixture(t)
	f.ledger.balances["citizen-1"] = 499
	f.voucher("v1", 500, models.UnlimitedRedemptions, 0)

	_, err := f.svc.Redeem(context.Background(), "citizen-1", "v1", "", "")
	assert.ErrorIs(t, err, appErrors.ErrInsufficientPoints)
	assert.Equal(t, int64(499), f.ledger.balances["citizen-1"])
	assert.Empty(t, f.ledger.rows)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.redemptions.WithLabelValues(RedemptionInsufficient)))
}

func TestLedgerServiceRedeemUnavailableVoucher(t *testing.T) {
	f := newLedgerFixture(t)
	f.ledger.balances["citizen-1"] = 1000
	f.voucher("v1", 100, models.UnlimitedRedemptions, 0)
	f.ledger.vouchers["v1"].IsActive = false

	_, err := f.svc.Redeem(context.Background(), "citizen-1", "v1", "", "")
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	_, err = f.svc.Redeem(context.Background(), "citizen-1", "missing", "", "")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestLedgerServiceRedeemMissingCitizen(t *testing.T) {
	f := newLedgerFixture(t)
	f.voucher("v1", 100, models.UnlimitedRedemptions, 0)

	_, err := f.svc.Redeem(context.Background(), "ghost", "v1", "", "")
	require.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.Equal(t, "citizen not found", appErrors.FromError(err).Message)
	assert.Equal(t, 0, f.ledger.vouchers["v1"].CurrentRedemptions)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.redemptions.WithLabelValues(RedemptionFailed)))
}

func TestLedgerServiceCredit(t *testing.T) {
	f := newLedgerFixture(t)
	f.ledger.balances["citizen-1"] = 0
	sub := "s1"

	_, err := f.svc.Credit(context.Background(), "citizen-1", 0, "nothing", nil)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	entry, err := f.svc.Credit(context.Background(), "citizen-1", 12, "verified", &sub)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionEarned, entry.Type)

	_, err = f.svc.Credit(context.Background(), "citizen-1", 12, "verified", &sub)
	assert.ErrorIs(t, err, appErrors.ErrConflict)
	assert.Equal(t, int64(12), f.ledger.balances["citizen-1"])

	_, err = f.svc.Credit(context.Background(), "ghost", 5, "verified", nil)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestLedgerServiceAdjust(t *testing.T) {
	f := newLedgerFixture(t)
	f.ledger.balances["citizen-1"] = 50

	_, _, err := f.svc.Adjust(context.Background(), "admin-1", models.AdjustPointsRequest{
		CitizenID: "0b7b6c1e-7a53-4b8e-9d47-5a2d8f0e1c11", Type: models.TransactionEarned, Points: 10, Description: "x",
	}, "", "")
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	f.ledger.balances["0b7b6c1e-7a53-4b8e-9d47-5a2d8f0e1c11"] = 50
	req := models.AdjustPointsRequest{CitizenID: "0b7b6c1e-7a53-4b8e-9d47-5a2d8f0e1c11", Type: models.TransactionPenalty, Points: 60, Description: "spam"}
	_, _, err = f.svc.Adjust(context.Background(), "admin-1", req, "", "")
	assert.ErrorIs(t, err, appErrors.ErrInsufficientPoints)

	req.Points = 20
	entry, balance, err := f.svc.Adjust(context.Background(), "admin-1", req, "", "")
	require.NoError(t, err)
	assert.Equal(t, int64(-20), entry.Points)
	assert.Equal(t, int64(30), balance)
	assert.Equal(t, []string{models.AuditActionPointsAdjust}, f.audit.actions())
}

func TestLedgerServiceReconcilesAfterMixedOperations(t *testing.T) {
	f := newLedgerFixture(t)
	f.ledger.balances["citizen-1"] = 0
	f.voucher("v1", 15, models.UnlimitedRedemptions, 0)
	s1, s2 := "s1", "s2"

	_, err := f.svc.Credit(context.Background(), "citizen-1", 12, "a", &s1)
	require.NoError(t, err)
	_, err = f.svc.Credit(context.Background(), "citizen-1", 8, "b", &s2)
	require.NoError(t, err)
	_, err = f.svc.Redeem(context.Background(), "citizen-1", "v1", "", "")
	require.NoError(t, err)
	_, err = f.svc.Redeem(context.Background(), "citizen-1", "v1", "", "")
	require.Error(t, err)

	rec, err := f.svc.Reconcile(context.Background(), "citizen-1")
	require.NoError(t, err)
	assert.True(t, rec.Consistent)
	assert.Equal(t, int64(5), rec.Balance)

	_, err = f.svc.Reconcile(context.Background(), "ghost")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestLedgerServiceStatement(t *testing.T) {
	f := newLedgerFixture(t)
	f.ledger.balances["citizen-1"] = 500
	f.voucher("v1", 100, models.UnlimitedRedemptions, 0)
	res, err := f.svc.Redeem(context.Background(), "citizen-1", "v1", "", "")
	require.NoError(t, err)

	csvStatement, err := f.svc.Statement(context.Background(), "citizen-1", models.StatementFormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", csvStatement.ContentType)
	assert.Contains(t, string(csvStatement.Body), "Voucher Code")
	assert.Contains(t, string(csvStatement.Body), *res.Transaction.VoucherCode)

	pdfStatement, err := f.svc.Statement(context.Background(), "citizen-1", models.StatementFormatPDF)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdfStatement.Body, []byte("%PDF")))

	_, err = f.svc.Statement(context.Background(), "citizen-1", "xlsx")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestLedgerServiceListVouchersIsCached(t *testing.T) {
	f := newLedgerFixture(t)
	f.voucher("v1", 100, models.UnlimitedRedemptions, 0)

	first, err := f.svc.ListVouchers(context.Background(), "")
	require.NoError(t, err)
	second, err := f.svc.ListVouchers(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, first, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, 1, f.ledger.listed)

	_, err = f.svc.CreateVoucher(context.Background(), "admin-1", models.CreateVoucherRequest{
		Title: "Movie", PointsCost: 300, Category: models.VoucherEntertainment, PartnerName: "Cinema",
		ValidUntil: time.Now().Add(48 * time.Hour),
	}, "", "")
	require.NoError(t, err)
	all, err := f.svc.ListVouchers(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, 2, f.ledger.listed)
	assert.Equal(t, models.UnlimitedRedemptions, f.ledger.vouchers["v-new"].MaxRedemptions)
}

func TestLedgerServiceCreateVoucherRejectsPastExpiry(t *testing.T) {
	f := newLedgerFixture(t)
	_, err := f.svc.CreateVoucher(context.Background(), "admin-1", models.CreateVoucherRequest{
		Title: "Old", PointsCost: 10, Category: models.VoucherOther, PartnerName: "P", ValidUntil: time.Now().Add(-time.Hour),
	}, "", "")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
