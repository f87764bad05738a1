package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/trash2cash/trash2cash-api/internal/dto"
	"github.com/trash2cash/trash2cash-api/internal/middleware"
	"github.com/trash2cash/trash2cash-api/internal/models"
	"github.com/trash2cash/trash2cash-api/pkg/response"
)

type submissionService interface {
	Submit(ctx context.Context, citizenID string, req models.SubmitRequest) (*models.WasteSubmission, error)
	Verify(ctx context.Context, submissionID, verifierID string, req models.VerifyRequest) (*models.WasteSubmission, error)
	Dispute(ctx context.Context, submissionID, citizenID string, req models.DisputeRequest, ip, userAgent string) (*models.WasteSubmission, error)
	Get(ctx context.Context, submissionID, actorID string, role models.UserRole) (*models.WasteSubmission, error)
	ListMine(ctx context.Context, citizenID string, limit, offset int) ([]models.WasteSubmission, error)
	ListQueue(ctx context.Context, workerID string, scope models.QueueScope, limit, offset int) ([]models.WasteSubmission, error)
	ListVerifiedBy(ctx context.Context, workerID string, limit, offset int) ([]models.WasteSubmission, error)
	ListAll(ctx context.Context, statuses []models.VerificationStatus, limit, offset int) ([]models.WasteSubmission, error)
}

// SubmissionHandler exposes the submission lifecycle.
type SubmissionHandler struct {
	service submissionService
}

// NewSubmissionHandler builds the handler.
func NewSubmissionHandler(svc submissionService) *SubmissionHandler {
	return &SubmissionHandler{service: svc}
}

// Submit godoc
// @Summary Report collected waste
// @Description Creates a submission in AI_PROCESSED and queues photo analysis
// @Tags Submissions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.SubmitRequest true "Submission"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /submissions [post]
func (h *SubmissionHandler) Submit(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		return
	}
	var req models.SubmitRequest
	if !bindJSON(c, &req, "invalid submission payload") {
		return
	}
	sub, err := h.service.Submit(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, sub)
}

// Get godoc
// @Summary Get submission
// @Tags Submissions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /submissions/{id} [get]
func (h *SubmissionHandler) Get(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		return
	}
	sub, err := h.service.Get(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, sub)
}

// Mine godoc
// @Summary List own submissions
// @Tags Submissions
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /submissions/mine [get]
func (h *SubmissionHandler) Mine(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		return
	}
	var q dto.PageQuery
	if !bindQuery(c, &q) {
		return
	}
	limit, offset := q.Window()
	subs, err := h.service.ListMine(c.Request.Context(), claims.UserID, limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.list(c, subs, q)
}

// Queue godoc
// @Summary Verification queue
// @Description Pending and in-analysis submissions, oldest first
// @Tags Submissions
// @Produce json
// @Security BearerAuth
// @Param scope query string false "assigned, unassigned or all"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /submissions/queue [get]
func (h *SubmissionHandler) Queue(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		return
	}
	var q dto.QueueQuery
	if !bindQuery(c, &q) {
		return
	}
	scope := models.QueueScope(q.Scope)
	if scope == "" {
		scope = models.QueueScopeAll
	}
	limit, offset := q.Window()
	subs, err := h.service.ListQueue(c.Request.Context(), claims.UserID, scope, limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "scope", string(scope))
	h.list(c, subs, q.PageQuery)
}

// Verified godoc
// @Summary Submissions decided by the caller
// @Tags Submissions
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /submissions/verified [get]
func (h *SubmissionHandler) Verified(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		return
	}
	var q dto.PageQuery
	if !bindQuery(c, &q) {
		return
	}
	limit, offset := q.Window()
	subs, err := h.service.ListVerifiedBy(c.Request.Context(), claims.UserID, limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.list(c, subs, q)
}

// List godoc
// @Summary List all submissions
// @Tags Submissions
// @Produce json
// @Security BearerAuth
// @Param status query []string false "Status filter"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /submissions [get]
func (h *SubmissionHandler) List(c *gin.Context) {
	var q dto.SubmissionListQuery
	if !bindQuery(c, &q) {
		return
	}
	statuses := make([]models.VerificationStatus, 0, len(q.Status))
	for _, s := range q.Status {
		statuses = append(statuses, models.VerificationStatus(s))
	}
	limit, offset := q.Window()
	subs, err := h.service.ListAll(c.Request.Context(), statuses, limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.list(c, subs, q.PageQuery)
}

// Verify godoc
// @Summary Approve or reject a submission
// @Tags Submissions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Submission ID"
// @Param payload body models.VerifyRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /submissions/{id}/verify [post]
func (h *SubmissionHandler) Verify(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		return
	}
	var req models.VerifyRequest
	if !bindJSON(c, &req, "invalid verification payload") {
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")
	sub, err := h.service.Verify(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, sub)
}

// Dispute godoc
// @Summary Dispute a rejection
// @Tags Submissions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Submission ID"
// @Param payload body models.DisputeRequest true "Dispute"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /submissions/{id}/dispute [post]
func (h *SubmissionHandler) Dispute(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		return
	}
	var req models.DisputeRequest
	if !bindJSON(c, &req, "invalid dispute payload") {
		return
	}
	sub, err := h.service.Dispute(c.Request.Context(), c.Param("id"), claims.UserID, req, c.ClientIP(), c.GetHeader("User-Agent"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, sub)
}

func (h *SubmissionHandler) list(c *gin.Context, subs []models.WasteSubmission, q dto.PageQuery) {
	if subs == nil {
		subs = []models.WasteSubmission{}
	}
	for k, v := range q.Meta() {
		middleware.SetMeta(c, k, v)
	}
	response.JSON(c, http.StatusOK, subs, nil, middleware.ExtractMeta(c))
}
