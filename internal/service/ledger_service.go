package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/trash2cash/trash2cash-api/internal/models"
	"github.com/trash2cash/trash2cash-api/internal/repository"
	appErrors "github.com/trash2cash/trash2cash-api/pkg/errors"
	"github.com/trash2cash/trash2cash-api/pkg/export"
)

type ledgerStore interface {
	Credit(ctx context.Context, entry *models.RewardTransaction) error
	Adjust(ctx context.Context, entry *models.RewardTransaction) (int64, error)
	Redeem(ctx context.Context, params repository.RedeemParams) (*models.Redemption, error)
	List(ctx context.Context, filter models.TransactionFilter) ([]models.RewardTransaction, error)
	Reconcile(ctx context.Context, citizenID string) (*models.Reconciliation, error)
}

type voucherStore interface {
	ListActive(ctx context.Context, category models.VoucherCategory, now time.Time) ([]models.Voucher, error)
	Create(ctx context.Context, voucher *models.Voucher) error
}

type userFinder interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// Redemption outcome labels.
const (
	RedemptionSucceeded    = "success"
	RedemptionInsufficient = "insufficient_points"
	RedemptionExhausted    = "exhausted"
	RedemptionUnavailable  = "unavailable"
	RedemptionFailed       = "error"
)

const (
	voucherCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	voucherCodeLength   = 8
	statementRowLimit   = 500
)

// LedgerConfig tunes voucher codes.
type LedgerConfig struct {
	CodePrefix string
	CodeTTL    time.Duration
}

// LedgerStatement is a rendered ledger export.
type LedgerStatement struct {
	Filename    string
	ContentType string
	Body        []byte
}

// LedgerService owns every change to citizen balances.
type LedgerService struct {
	ledger   ledgerStore
	vouchers voucherStore
	users    userFinder
	cache    *CacheService
	audit    auditWriter
	metrics  *MetricsService
	validate *validator.Validate
	logger   *zap.Logger
	cfg      LedgerConfig
	now      func() time.Time
	codes    func() (string, error)
}

// NewLedgerService constructs the ledger service.
func NewLedgerService(ledger ledgerStore, vouchers voucherStore, users userFinder, cache *CacheService, audit auditWriter, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg LedgerConfig) *LedgerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	}
	if cfg.CodePrefix == "" {
		cfg.CodePrefix = "T2C"
	}
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = 30 * 24 * time.Hour
	}
	s := &LedgerService{
		ledger:   ledger,
		vouchers: vouchers,
		users:    users,
		cache:    cache,
		audit:    audit,
		metrics:  metrics,
		validate: validate,
		logger:   logger,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
	s.codes = s.generateCode
	return s
}

// Credit appends an EARNED row. Credits are never retried automatically.
func (s *LedgerService) Credit(ctx context.Context, citizenID string, points int64, description string, submissionID *string) (*models.RewardTransaction, error) {
	if points <= 0 {
		return nil, fieldError("points", "must be greater than 0")
	}
	entry := &models.RewardTransaction{
		CitizenID:           citizenID,
		Type:                models.TransactionEarned,
		Points:              points,
		Description:         description,
		CreatedAt:           s.now(),
		RelatedSubmissionID: submissionID,
	}
	if err := s.ledger.Credit(ctx, entry); err != nil {
		switch {
		case errors.Is(err, repository.ErrAccountMissing):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "citizen not found")
		case errors.Is(err, repository.ErrDuplicate):
			return nil, appErrors.Clone(appErrors.ErrConflict, "submission already credited")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to credit points")
	}
	return entry, nil
}

// Adjust applies an administrative BONUS, PENALTY or REFUND and returns the new balance.
func (s *LedgerService) Adjust(ctx context.Context, adminID string, req models.AdjustPointsRequest, ip, userAgent string) (*models.RewardTransaction, int64, error) {
	req.Description = strings.TrimSpace(req.Description)
	if err := s.validate.Struct(req); err != nil {
		return nil, 0, validationError(err, "invalid adjustment")
	}
	delta := req.Points
	if req.Type == models.TransactionPenalty {
		delta = -delta
	}
	entry := &models.RewardTransaction{
		CitizenID:   req.CitizenID,
		Type:        req.Type,
		Points:      delta,
		Description: req.Description,
		CreatedAt:   s.now(),
	}
	balance, err := s.ledger.Adjust(ctx, entry)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrAccountMissing):
			return nil, 0, appErrors.Clone(appErrors.ErrNotFound, "citizen not found")
		case errors.Is(err, repository.ErrInsufficientPoints):
			return nil, 0, appErrors.Clone(appErrors.ErrInsufficientPoints, "penalty exceeds current balance")
		}
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to adjust points")
	}
	recordAudit(ctx, s.audit, s.logger, adminID, models.AuditActionPointsAdjust, "user", req.CitizenID, map[string]interface{}{
		"type":   req.Type,
		"points": delta,
	}, ip, userAgent)
	return entry, balance, nil
}

// Redeem exchanges points for a voucher code.
func (s *LedgerService) Redeem(ctx context.Context, citizenID, voucherID, ip, userAgent string) (*models.Redemption, error) {
	code, err := s.codes()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate voucher code")
	}
	now := s.now()
	result, err := s.ledger.Redeem(ctx, repository.RedeemParams{
		CitizenID: citizenID,
		VoucherID: voucherID,
		Code:      code,
		ExpiresAt: now.Add(s.cfg.CodeTTL),
		At:        now,
	})
	if err != nil {
		outcome, mapped := redeemError(err)
		s.metrics.Redemption(outcome)
		return nil, mapped
	}
	s.metrics.Redemption(RedemptionSucceeded)
	s.cache.Invalidate(ctx, cachePatternVouchers)
	recordAudit(ctx, s.audit, s.logger, citizenID, models.AuditActionRedeem, "voucher", voucherID, map[string]interface{}{
		"points":  result.Transaction.Points,
		"balance": result.Balance,
	}, ip, userAgent)
	return result, nil
}

func redeemError(err error) (string, error) {
	switch {
	case errors.Is(err, repository.ErrAccountMissing):
		return RedemptionFailed, appErrors.Clone(appErrors.ErrNotFound, "citizen not found")
	case errors.Is(err, sql.ErrNoRows):
		return RedemptionUnavailable, appErrors.Clone(appErrors.ErrNotFound, "voucher not found")
	case errors.Is(err, repository.ErrVoucherUnavailable):
		return RedemptionUnavailable, appErrors.Clone(appErrors.ErrConflict, "voucher is no longer available")
	case errors.Is(err, repository.ErrInsufficientPoints):
		return RedemptionInsufficient, appErrors.ErrInsufficientPoints
	case errors.Is(err, repository.ErrRedemptionExhausted):
		return RedemptionExhausted, appErrors.ErrRedemptionExhausted
	default:
		return RedemptionFailed, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to redeem voucher")
	}
}

// generateCode returns the prefix followed by eight random uppercase alphanumerics.
func (s *LedgerService) generateCode() (string, error) {
	var b strings.Builder
	b.WriteString(s.cfg.CodePrefix)
	size := big.NewInt(int64(len(voucherCodeAlphabet)))
	for i := 0; i < voucherCodeLength; i++ {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		b.WriteByte(voucherCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// History returns a citizen's ledger rows, newest first.
func (s *LedgerService) History(ctx context.Context, citizenID string, types []models.TransactionType, limit, offset int) ([]models.RewardTransaction, error) {
	rows, err := s.ledger.List(ctx, models.TransactionFilter{CitizenID: citizenID, Type: types, Limit: limit, Offset: offset})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load transactions")
	}
	if rows == nil {
		rows = []models.RewardTransaction{}
	}
	return rows, nil
}

// Reconcile compares the ledger sum with the stored balance.
func (s *LedgerService) Reconcile(ctx context.Context, citizenID string) (*models.Reconciliation, error) {
	rec, err := s.ledger.Reconcile(ctx, citizenID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reconcile ledger")
	}
	if !rec.Consistent {
		s.logger.Error("ledger out of balance", zap.String("citizen_id", citizenID), zap.Int64("ledger_sum", rec.LedgerSum), zap.Int64("balance", rec.Balance))
	}
	return rec, nil
}

// Statement renders the latest ledger rows of a citizen as CSV or PDF.
func (s *LedgerService) Statement(ctx context.Context, citizenID string, format models.StatementFormat) (*LedgerStatement, error) {
	if format == "" {
		format = models.StatementFormatCSV
	}
	if format != models.StatementFormatCSV && format != models.StatementFormatPDF {
		return nil, fieldError("format", "must be one of csv pdf")
	}
	user, err := s.users.FindByID(ctx, citizenID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	rows, err := s.History(ctx, citizenID, nil, statementRowLimit, 0)
	if err != nil {
		return nil, err
	}

	now := s.now()
	doc := export.Document{
		Title: "Trash2Cash points statement",
		Summary: []string{
			fmt.Sprintf("Citizen: %s <%s>", user.Name, user.Email),
			fmt.Sprintf("Balance: %d points (level %d)", user.TotalPoints, user.Level()),
			fmt.Sprintf("Generated: %s", now.Format(time.RFC3339)),
		},
		Data: statementDataset(rows),
	}

	var body []byte
	var contentType string
	switch format {
	case models.StatementFormatPDF:
		body, err = export.NewPDFExporter().Render(doc)
		contentType = "application/pdf"
	default:
		body, err = export.NewCSVExporter().Render(doc)
		contentType = "text/csv"
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render statement")
	}
	return &LedgerStatement{
		Filename:    fmt.Sprintf("statement-%s.%s", now.Format("20060102"), format),
		ContentType: contentType,
		Body:        body,
	}, nil
}

func statementDataset(rows []models.RewardTransaction) export.Dataset {
	headers := []string{"Date", "Type", "Points", "Description", "Voucher Code", "Expires"}
	data := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		record := map[string]string{
			"Date":        row.CreatedAt.Format("2006-01-02 15:04"),
			"Type":        string(row.Type),
			"Points":      strconv.FormatInt(row.Points, 10),
			"Description": row.Description,
		}
		if row.VoucherCode != nil {
			record["Voucher Code"] = *row.VoucherCode
		}
		if row.ExpiresAt != nil {
			record["Expires"] = row.ExpiresAt.Format("2006-01-02")
		}
		data = append(data, record)
	}
	return export.Dataset{Headers: headers, Rows: data}
}

// ListVouchers returns the redeemable catalog, cached per category.
func (s *LedgerService) ListVouchers(ctx context.Context, category models.VoucherCategory) ([]models.Voucher, error) {
	key := cacheKeyVouchers + "all"
	if category != "" {
		key = cacheKeyVouchers + string(category)
	}
	vouchers, err := remember(ctx, s.cache, key, func(ctx context.Context) ([]models.Voucher, error) {
		list, err := s.vouchers.ListActive(ctx, category, s.now())
		if list == nil {
			list = []models.Voucher{}
		}
		return list, err
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list vouchers")
	}
	return vouchers, nil
}

// CreateVoucher adds a catalog entry.
func (s *LedgerService) CreateVoucher(ctx context.Context, adminID string, req models.CreateVoucherRequest, ip, userAgent string) (*models.Voucher, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.PartnerName = strings.TrimSpace(req.PartnerName)
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err, "invalid voucher")
	}
	if !req.ValidUntil.After(s.now()) {
		return nil, fieldError("validUntil", "must be in the future")
	}
	voucher := &models.Voucher{
		Title:              req.Title,
		Description:        req.Description,
		PointsCost:         req.PointsCost,
		Category:           req.Category,
		PartnerName:        req.PartnerName,
		ValidUntil:         req.ValidUntil,
		Terms:              req.Terms,
		IsActive:           true,
		MaxRedemptions:     req.MaxRedemptions,
		DiscountPercentage: req.DiscountPercentage,
		DiscountAmount:     req.DiscountAmount,
		CreatedAt:          s.now(),
	}
	if voucher.MaxRedemptions == 0 {
		voucher.MaxRedemptions = models.UnlimitedRedemptions
	}
	if err := s.vouchers.Create(ctx, voucher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create voucher")
	}
	s.cache.Invalidate(ctx, cachePatternVouchers)
	recordAudit(ctx, s.audit, s.logger, adminID, models.AuditActionCatalogCreate, "voucher", voucher.ID, map[string]interface{}{"title": voucher.Title}, ip, userAgent)
	return voucher, nil
}
