package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/trash2cash/trash2cash-api/internal/models"
	"github.com/trash2cash/trash2cash-api/internal/repository"
	appErrors "github.com/trash2cash/trash2cash-api/pkg/errors"
	"github.com/trash2cash/trash2cash-api/pkg/jobs"
	"github.com/trash2cash/trash2cash-api/pkg/tracing"
)

type submissionStore interface {
	Create(ctx context.Context, sub *models.WasteSubmission) error
	GetByID(ctx context.Context, id string) (*models.WasteSubmission, error)
	List(ctx context.Context, filter models.SubmissionFilter) ([]models.WasteSubmission, error)
	ListAwaitingAnalysis(ctx context.Context, cutoff time.Time, after *models.AnalysisCursor, limit int) ([]models.AnalysisCursor, error)
	RecordDecision(ctx context.Context, d models.Decision) error
	Dispute(ctx context.Context, id, citizenID, reason string, at time.Time) error
}

type verifierDirectory interface {
	IsActiveVerifier(ctx context.Context, userID string) (bool, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type fallbackRunner interface {
	Fallback(ctx context.Context, submissionID, reason string)
}

type collectionRecorder interface {
	RecordCollection(ctx context.Context, point models.GeoPoint, weightKg float64, at time.Time) error
}

// Verification outcome labels.
const (
	VerificationApproved = "approved"
	VerificationRejected = "rejected"
)

const recoverBatch = 100

// SubmissionService owns the submission lifecycle from creation to verifier decision.
type SubmissionService struct {
	repo      submissionStore
	verifiers verifierDirectory
	queue     jobDispatcher
	fallback  fallbackRunner
	zones     collectionRecorder
	audit     auditWriter
	metrics   *MetricsService
	validate  *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// SubmissionDeps groups the collaborators of SubmissionService.
type SubmissionDeps struct {
	Repo      submissionStore
	Verifiers verifierDirectory
	Queue     jobDispatcher
	Fallback  fallbackRunner
	Zones     collectionRecorder
	Audit     auditWriter
	Metrics   *MetricsService
	Validate  *validator.Validate
	Logger    *zap.Logger
}

// NewSubmissionService constructs the service.
func NewSubmissionService(deps SubmissionDeps) *SubmissionService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Validate == nil {
		deps.Validate = NewValidator()
	}
	return &SubmissionService{
		repo:      deps.Repo,
		verifiers: deps.Verifiers,
		queue:     deps.Queue,
		fallback:  deps.Fallback,
		zones:     deps.Zones,
		audit:     deps.Audit,
		metrics:   deps.Metrics,
		validate:  deps.Validate,
		logger:    deps.Logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Submit persists a new submission in AI_PROCESSED and schedules its analysis.
// The oracle never runs on the request path.
func (s *SubmissionService) Submit(ctx context.Context, citizenID string, req models.SubmitRequest) (*models.WasteSubmission, error) {
	req.ImageRef = strings.TrimSpace(req.ImageRef)
	req.LocationName = strings.TrimSpace(req.LocationName)
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err, "invalid submission")
	}

	sub := &models.WasteSubmission{
		CitizenID:    citizenID,
		ImageRef:     req.ImageRef,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		LocationName: req.LocationName,
		Address:      strings.TrimSpace(req.Address),
		Description:  strings.TrimSpace(req.Description),
		SubmittedAt:  s.now(),
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create submission")
	}
	s.metrics.SubmissionCreated()
	s.schedule(ctx, sub.ID)
	return sub, nil
}

// schedule enqueues the analysis job, or runs the fallback in the background when the queue refuses it.
func (s *SubmissionService) schedule(ctx context.Context, id string) {
	if s.queue != nil {
		err := s.queue.Enqueue(jobs.Job{ID: id, Type: JobTypeAnalysis})
		if err == nil {
			return
		}
		s.logger.Warn("failed to enqueue analysis job", zap.String("submission_id", id), zap.Error(err))
	}
	if s.fallback == nil {
		return
	}
	detached := context.WithoutCancel(ctx)
	go s.fallback.Fallback(detached, id, "analysis queue unavailable")
}

// Recover requeues every submission left in AI_PROCESSED by a previous process, paging by submission time.
func (s *SubmissionService) Recover(ctx context.Context) {
	cutoff := s.now()
	var after *models.AnalysisCursor
	requeued := 0
	for {
		page, err := s.repo.ListAwaitingAnalysis(ctx, cutoff, after, recoverBatch)
		if err != nil {
			s.logger.Warn("failed to list submissions awaiting analysis", zap.Int("requeued", requeued), zap.Error(err))
			return
		}
		for _, item := range page {
			s.schedule(ctx, item.ID)
		}
		requeued += len(page)
		if len(page) < recoverBatch || ctx.Err() != nil {
			break
		}
		last := page[len(page)-1]
		after = &last
	}
	if requeued > 0 {
		s.logger.Info("requeued submissions awaiting analysis", zap.Int("count", requeued))
	}
}

// Verify records a verifier decision. Approvals credit the citizen in the same transaction.
func (s *SubmissionService) Verify(ctx context.Context, submissionID, verifierID string, req models.VerifyRequest) (*models.WasteSubmission, error) {
	req.ActualWasteType = strings.TrimSpace(req.ActualWasteType)
	req.RejectionReason = strings.TrimSpace(req.RejectionReason)
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err, "invalid verification")
	}
	if req.Approved && req.ActualWeight <= 0 {
		return nil, fieldError("actualWeight", "must be greater than 0")
	}

	ok, err := s.verifiers.IsActiveVerifier(ctx, verifierID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check verifier")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "verifier is not active")
	}

	decision := models.Decision{
		SubmissionID: submissionID,
		VerifierID:   verifierID,
		DecidedAt:    s.now(),
		Comments:     strings.TrimSpace(req.Comments),
	}
	outcome := VerificationRejected
	if req.Approved {
		outcome = VerificationApproved
		decision.Status = models.StatusVerified
		decision.ActualWasteType = req.ActualWasteType
		decision.ActualWeight = req.ActualWeight
		decision.RewardPoints = models.RewardPointsFor(req.ActualWeight)
		decision.ImpactScore = models.ImpactScoreFor(req.ActualWeight, req.ActualWasteType)
	} else {
		decision.Status = models.StatusRejected
		reason := req.RejectionReason
		decision.RejectionReason = &reason
	}

	txCtx, span := tracing.Start(ctx, "submission.verify",
		attribute.String("submission.id", submissionID),
		attribute.String("verification.outcome", outcome),
	)
	err = s.repo.RecordDecision(txCtx, decision)
	tracing.Fail(span, err)
	span.End()
	if err != nil {
		return nil, decisionError(err)
	}
	s.metrics.Verification(outcome, decision.RewardPoints)

	if req.Approved && s.zones != nil {
		sub, err := s.repo.GetByID(ctx, submissionID)
		if err == nil {
			point := models.GeoPoint{Latitude: sub.Latitude, Longitude: sub.Longitude}
			if err := s.zones.RecordCollection(ctx, point, decision.ActualWeight, decision.DecidedAt); err != nil {
				s.logger.Warn("failed to attribute collection to zones", zap.String("submission_id", submissionID), zap.Error(err))
			}
		}
	}

	recordAudit(ctx, s.audit, s.logger, verifierID, models.AuditActionVerify, "submission", submissionID, map[string]interface{}{
		"status":        decision.Status,
		"reward_points": decision.RewardPoints,
		"actual_weight": decision.ActualWeight,
	}, req.IP, req.UserAgent)

	sub, err := s.repo.GetByID(ctx, submissionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	return sub, nil
}

func decisionError(err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "submission not found")
	case errors.Is(err, repository.ErrVerifierMissing):
		return appErrors.Clone(appErrors.ErrForbidden, "verifier profile missing")
	case errors.Is(err, repository.ErrAccountMissing):
		return appErrors.Clone(appErrors.ErrNotFound, "submitting citizen not found")
	case errors.Is(err, models.ErrAlreadyDecided), errors.Is(err, repository.ErrDuplicate):
		return appErrors.ErrAlreadyVerified
	case errors.Is(err, models.ErrAnalysisInProgress):
		return appErrors.Clone(appErrors.ErrConflict, "submission analysis in progress")
	case errors.Is(err, models.ErrInvalidTransition):
		return appErrors.Clone(appErrors.ErrConflict, "submission cannot be verified in its current state")
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record verification")
	}
}

// Dispute lets the owning citizen contest a rejection.
func (s *SubmissionService) Dispute(ctx context.Context, submissionID, citizenID string, req models.DisputeRequest, ip, userAgent string) (*models.WasteSubmission, error) {
	req.Reason = strings.TrimSpace(req.Reason)
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err, "invalid dispute")
	}

	if err := s.repo.Dispute(ctx, submissionID, citizenID, req.Reason, s.now()); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to dispute submission")
		}
		current, getErr := s.loadOwned(ctx, submissionID, citizenID)
		if getErr != nil {
			return nil, getErr
		}
		if models.Transition(current.Status, models.StatusDisputed) != nil {
			return nil, appErrors.Clone(appErrors.ErrConflict, "only rejected submissions can be disputed")
		}
		return nil, appErrors.Clone(appErrors.ErrConflict, "submission changed, please retry")
	}

	recordAudit(ctx, s.audit, s.logger, citizenID, models.AuditActionDispute, "submission", submissionID, map[string]interface{}{"reason": req.Reason}, ip, userAgent)
	return s.loadOwned(ctx, submissionID, citizenID)
}

// Get returns a submission. Citizens may only read their own.
func (s *SubmissionService) Get(ctx context.Context, submissionID, actorID string, role models.UserRole) (*models.WasteSubmission, error) {
	if role == models.RoleCitizen {
		return s.loadOwned(ctx, submissionID, actorID)
	}
	sub, err := s.repo.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	return sub, nil
}

func (s *SubmissionService) loadOwned(ctx context.Context, submissionID, citizenID string) (*models.WasteSubmission, error) {
	sub, err := s.repo.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	if sub.CitizenID != citizenID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "submission belongs to another citizen")
	}
	return sub, nil
}

// ListMine returns a citizen's submissions, newest first.
func (s *SubmissionService) ListMine(ctx context.Context, citizenID string, limit, offset int) ([]models.WasteSubmission, error) {
	return s.list(ctx, models.SubmissionFilter{CitizenID: citizenID, Limit: limit, Offset: offset})
}

// ListQueue returns submissions awaiting a decision, oldest first.
func (s *SubmissionService) ListQueue(ctx context.Context, workerID string, scope models.QueueScope, limit, offset int) ([]models.WasteSubmission, error) {
	filter := models.SubmissionFilter{
		Status:      []models.VerificationStatus{models.StatusPending, models.StatusAIProcessed},
		OldestFirst: true,
		Limit:       limit,
		Offset:      offset,
	}
	switch scope {
	case models.QueueScopeAssigned:
		if workerID == "" {
			return nil, fieldError("scope", "assigned scope requires a verifier")
		}
		filter.AssignedTo = workerID
	case models.QueueScopeUnassigned:
		filter.Unassigned = true
	case models.QueueScopeAll, "":
	default:
		return nil, fieldError("scope", "must be one of assigned unassigned all")
	}
	return s.list(ctx, filter)
}

// ListVerifiedBy returns the decisions taken by a verifier, newest first.
func (s *SubmissionService) ListVerifiedBy(ctx context.Context, workerID string, limit, offset int) ([]models.WasteSubmission, error) {
	return s.list(ctx, models.SubmissionFilter{VerifiedBy: workerID, Limit: limit, Offset: offset})
}

// ListAll returns every submission, optionally narrowed by status.
func (s *SubmissionService) ListAll(ctx context.Context, statuses []models.VerificationStatus, limit, offset int) ([]models.WasteSubmission, error) {
	for _, st := range statuses {
		switch st {
		case models.StatusAIProcessed, models.StatusPending, models.StatusVerified, models.StatusRejected, models.StatusDisputed:
		default:
			return nil, fieldError("status", "unknown status "+string(st))
		}
	}
	return s.list(ctx, models.SubmissionFilter{Status: statuses, Limit: limit, Offset: offset})
}

func (s *SubmissionService) list(ctx context.Context, filter models.SubmissionFilter) ([]models.WasteSubmission, error) {
	subs, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}
	if subs == nil {
		subs = []models.WasteSubmission{}
	}
	return subs, nil
}
