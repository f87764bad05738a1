package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/trash2cash/trash2cash-api/internal/dto"
	"github.com/trash2cash/trash2cash-api/internal/models"
	"github.com/trash2cash/trash2cash-api/pkg/response"
)

type userService interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error)
	ListPendingWorkers(ctx context.Context) ([]models.PendingWorker, error)
	ApproveWorker(ctx context.Context, adminID, workerID, ip, userAgent string) error
}

// UserHandler serves account administration.
type UserHandler struct {
	service userService
}

// NewUserHandler creates a new user handler.
func NewUserHandler(svc userService) *UserHandler {
	return &UserHandler{service: svc}
}

// List godoc
// @Summary List users
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param role query string false "Role filter"
// @Param verified query bool false "Verification filter"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /admin/users [get]
func (h *UserHandler) List(c *gin.Context) {
	var q dto.UserListQuery
	if !bindQuery(c, &q) {
		return
	}
	filter := models.UserFilter{IsVerified: q.Verified}
	filter.Limit, filter.Offset = q.Window()
	if q.Role != "" {
		role := models.UserRole(q.Role)
		filter.Role = &role
	}

	users, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, users, pagination)
}

// PendingWorkers godoc
// @Summary Municipal workers awaiting approval
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /admin/workers/pending [get]
func (h *UserHandler) PendingWorkers(c *gin.Context) {
	workers, err := h.service.ListPendingWorkers(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	if workers == nil {
		workers = []models.PendingWorker{}
	}
	response.OK(c, workers)
}

// ApproveWorker godoc
// @Summary Approve a municipal worker
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Worker user ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/workers/{id}/approve [post]
func (h *UserHandler) ApproveWorker(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		return
	}
	workerID := c.Param("id")
	if err := h.service.ApproveWorker(c.Request.Context(), claims.UserID, workerID, c.ClientIP(), c.GetHeader("User-Agent")); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.WorkerApproval{UserID: workerID, Approved: true})
}
