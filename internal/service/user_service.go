package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/trash2cash/trash2cash-api/internal/models"
	appErrors "github.com/trash2cash/trash2cash-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	ApproveWorker(ctx context.Context, userID string, at time.Time) error
	ListPendingWorkers(ctx context.Context) ([]models.PendingWorker, error)
}

// UserService handles administrative account workflows.
type UserService struct {
	repo   userRepository
	audit  auditWriter
	logger *zap.Logger
	now    func() time.Time
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, audit auditWriter, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, audit: audit, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}

	return users, &models.Pagination{
		Page:       filter.Offset/filter.Limit + 1,
		PageSize:   filter.Limit,
		TotalCount: total,
	}, nil
}

// ListPendingWorkers returns municipal workers that cannot log in until approved.
func (s *UserService) ListPendingWorkers(ctx context.Context) ([]models.PendingWorker, error) {
	workers, err := s.repo.ListPendingWorkers(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending workers")
	}
	return workers, nil
}

// ApproveWorker verifies a municipal worker account so it can log in and receive submissions.
func (s *UserService) ApproveWorker(ctx context.Context, adminID, workerID, ip, userAgent string) error {
	if err := s.repo.ApproveWorker(ctx, workerID, s.now()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "municipal worker not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve worker")
	}
	recordAudit(ctx, s.audit, s.logger, adminID, models.AuditActionWorkerApprove, "user", workerID, map[string]interface{}{"is_verified": true}, ip, userAgent)
	return nil
}
