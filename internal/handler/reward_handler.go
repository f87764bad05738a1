package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/trash2cash/trash2cash-api/internal/dto"
	"github.com/trash2cash/trash2cash-api/internal/middleware"
	"github.com/trash2cash/trash2cash-api/internal/models"
	"github.com/trash2cash/trash2cash-api/internal/service"
	"github.com/trash2cash/trash2cash-api/pkg/response"
)

type ledgerService interface {
	Adjust(ctx context.Context, adminID string, req models.AdjustPointsRequest, ip, userAgent string) (*models.RewardTransaction, int64, error)
	Redeem(ctx context.Context, citizenID, voucherID, ip, userAgent string) (*models.Redemption, error)
	History(ctx context.Context, citizenID string, types []models.TransactionType, limit, offset int) ([]models.RewardTransaction, error)
	Reconcile(ctx context.Context, citizenID string) (*models.Reconciliation, error)
	Statement(ctx context.Context, citizenID string, format models.StatementFormat) (*service.LedgerStatement, error)
	ListVouchers(ctx context.Context, category models.VoucherCategory) ([]models.Voucher, error)
	CreateVoucher(ctx context.Context, adminID string, req models.CreateVoucherRequest, ip, userAgent string) (*models.Voucher, error)
}

// RewardHandler exposes the points ledger and the voucher catalog.
type RewardHandler struct {
	service ledgerService
}

// NewRewardHandler builds the handler.
func NewRewardHandler(svc ledgerService) *RewardHandler {
	return &RewardHandler{service: svc}
}

// Transactions godoc
// @Summary Ledger history
// @Tags Rewards
// @Produce json
// @Security BearerAuth
// @Param type query []string false "Transaction type filter"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /rewards/transactions [get]
func (h *RewardHandler) Transactions(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		return
	}
	var q dto.TransactionQuery
	if !bindQuery(c, &q) {
		return
	}
	types := make([]models.TransactionType, 0, len(q.Type))
	for _, t := range q.Type {
		types = append(types, models.TransactionType(t))
	}
	limit, offset := q.Window()
	txs, err := h.service.History(c.Request.Context(), claims.UserID, types, limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	if txs == nil {
		txs = []models.RewardTransaction{}
	}
	response.JSON(c, http.StatusOK, txs, nil, q.Meta())
}

// Statement godoc
// @Summary Download ledger statement
// @Tags Rewards
// @Produce text/csv,application/pdf
// @Security BearerAuth
// @Param format query string false "csv or pdf"
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Router /rewards/statement [get]
func (h *RewardHandler) Statement(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		return
	}
	var q dto.StatementQuery
	if !bindQuery(c, &q) {
		return
	}
	format := models.StatementFormat(q.Format)
	if format == "" {
		format = models.StatementFormatCSV
	}
	stmt, err := h.service.Statement(c.Request.Context(), claims.UserID, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, stmt.Filename, stmt.ContentType, stmt.Body)
}

// Vouchers godoc
// @Summary Voucher catalog
// @Tags Rewards
// @Produce json
// @Security BearerAuth
// @Param category query string false "Category filter"
// @Success 200 {object} response.Envelope
// @Router /vouchers [get]
func (h *RewardHandler) Vouchers(c *gin.Context) {
	var q dto.VoucherQuery
	if !bindQuery(c, &q) {
		return
	}
	vouchers, err := h.service.ListVouchers(c.Request.Context(), models.VoucherCategory(q.Category))
	if err != nil {
		response.Error(c, err)
		return
	}
	if vouchers == nil {
		vouchers = []models.Voucher{}
	}
	response.JSON(c, http.StatusOK, vouchers, nil, middleware.ExtractMeta(c))
}

// Redeem godoc
// @Summary Redeem a voucher
// @Tags Rewards
// @Produce json
// @Security BearerAuth
// @Param id path string true "Voucher ID"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /vouchers/{id}/redeem [post]
func (h *RewardHandler) Redeem(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		return
	}
	redemption, err := h.service.Redeem(c.Request.Context(), claims.UserID, c.Param("id"), c.ClientIP(), c.GetHeader("User-Agent"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, redemption)
}

// CreateVoucher godoc
// @Summary Add a voucher to the catalog
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.CreateVoucherRequest true "Voucher"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admin/vouchers [post]
func (h *RewardHandler) CreateVoucher(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		return
	}
	var req models.CreateVoucherRequest
	if !bindJSON(c, &req, "invalid voucher payload") {
		return
	}
	voucher, err := h.service.CreateVoucher(c.Request.Context(), claims.UserID, req, c.ClientIP(), c.GetHeader("User-Agent"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, voucher)
}

// Adjust godoc
// @Summary Apply a bonus, penalty or refund
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.AdjustPointsRequest true "Adjustment"
// @Success 201 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /admin/rewards/adjust [post]
func (h *RewardHandler) Adjust(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		return
	}
	var req models.AdjustPointsRequest
	if !bindJSON(c, &req, "invalid adjustment payload") {
		return
	}
	tx, balance, err := h.service.Adjust(c.Request.Context(), claims.UserID, req, c.ClientIP(), c.GetHeader("User-Agent"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.AdjustmentResult{Transaction: *tx, Balance: balance})
}

// Reconcile godoc
// @Summary Compare a citizen's ledger sum with the stored balance
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param userId path string true "Citizen ID"
// @Success 200 {object} response.Envelope
// @Router /admin/rewards/reconcile/{userId} [get]
func (h *RewardHandler) Reconcile(c *gin.Context) {
	rec, err := h.service.Reconcile(c.Request.Context(), c.Param("userId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, rec)
}
