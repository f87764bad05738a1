package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/trash2cash/trash2cash-api/internal/models"
	"github.com/trash2cash/trash2cash-api/pkg/jobs"
	"github.com/trash2cash/trash2cash-api/pkg/tracing"
)

// JobTypeAnalysis tags queue jobs that run the oracle for a submission.
const JobTypeAnalysis = "submission.analysis"

const maxFailureReason = 500

type analysisStore interface {
	GetByID(ctx context.Context, id string) (*models.WasteSubmission, error)
	ApplyAnalysis(ctx context.Context, id string, analysis models.Analysis) error
	ApplyFallback(ctx context.Context, id, reason string, at time.Time) error
	Assign(ctx context.Context, id, workerID string, at time.Time) error
}

type candidateSource interface {
	ListCandidates(ctx context.Context) ([]models.WorkerCandidate, error)
}

// AnalysisWorker bridges queue jobs to the oracle and moves submissions out of AI_PROCESSED.
type AnalysisWorker struct {
	repo       analysisStore
	oracle     VerificationOracle
	candidates candidateSource
	strategy   AssignmentStrategy
	metrics    *MetricsService
	logger     *zap.Logger
	now        func() time.Time
}

// NewAnalysisWorker constructs the worker.
func NewAnalysisWorker(repo analysisStore, oracle VerificationOracle, candidates candidateSource, strategy AssignmentStrategy, metrics *MetricsService, logger *zap.Logger) *AnalysisWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strategy == nil {
		strategy = NewUniformRandom(nil)
	}
	return &AnalysisWorker{
		repo:       repo,
		oracle:     oracle,
		candidates: candidates,
		strategy:   strategy,
		metrics:    metrics,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Handle processes a queue job. A returned error makes the queue retry the oracle call.
func (w *AnalysisWorker) Handle(ctx context.Context, job jobs.Job) error {
	sub, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			w.logger.Warn("analysis job for unknown submission", zap.String("submission_id", job.ID))
			return nil
		}
		return err
	}
	if sub.Status != models.StatusAIProcessed {
		return nil
	}

	spanCtx, span := tracing.Start(ctx, "oracle.verify",
		attribute.String("submission.id", sub.ID),
		attribute.Int("job.attempt", job.Attempt),
	)
	started := time.Now()
	result, err := w.oracle.Verify(spanCtx, models.OracleRequest{
		ImageRef:  sub.ImageRef,
		Latitude:  sub.Latitude,
		Longitude: sub.Longitude,
	})
	elapsed := time.Since(started)
	if err != nil {
		tracing.Fail(span, err)
		span.End()
		w.metrics.OracleResult(OracleResultFailed, elapsed)
		return err
	}
	span.SetAttributes(
		attribute.Bool("oracle.is_waste", result.IsWaste),
		attribute.Float64("oracle.confidence", result.Confidence),
	)
	span.End()

	label := OracleResultNotWaste
	if result.IsWaste {
		label = OracleResultWaste
	}
	w.metrics.OracleResult(label, elapsed)

	analysis := models.Analysis{
		DetectedType: result.WasteType,
		EstimatedKg:  result.EstimatedWeightKg,
		Confidence:   result.Confidence,
		IsWaste:      result.IsWaste,
		Message:      result.Message,
		ProcessedAt:  w.now(),
	}
	if err := w.repo.ApplyAnalysis(ctx, sub.ID, analysis); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}
	w.logger.Debug("submission analysed",
		zap.String("submission_id", sub.ID),
		zap.Bool("is_waste", result.IsWaste),
		zap.Float64("confidence", result.Confidence),
	)
	w.assign(ctx, sub)
	return nil
}

// Exhausted is the queue hook for jobs that ran out of retries.
func (w *AnalysisWorker) Exhausted(ctx context.Context, job jobs.Job, cause error) {
	reason := "oracle unavailable"
	if cause != nil {
		reason += ": " + cause.Error()
	}
	w.Fallback(context.WithoutCancel(ctx), job.ID, reason)
}

// Fallback moves a submission to PENDING without analysis and assigns it.
func (w *AnalysisWorker) Fallback(ctx context.Context, submissionID, reason string) {
	if len(reason) > maxFailureReason {
		reason = reason[:maxFailureReason]
	}
	if err := w.repo.ApplyFallback(ctx, submissionID, reason, w.now()); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			w.logger.Error("failed to apply analysis fallback", zap.String("submission_id", submissionID), zap.Error(err))
		}
		return
	}
	w.metrics.OracleResult(OracleResultFallback, 0)
	w.logger.Warn("submission moved to review without analysis", zap.String("submission_id", submissionID), zap.String("reason", reason))

	sub, err := w.repo.GetByID(ctx, submissionID)
	if err != nil {
		w.logger.Warn("failed to reload submission for assignment", zap.String("submission_id", submissionID), zap.Error(err))
		return
	}
	w.assign(ctx, sub)
}

// assign picks a verifier. Every failure leaves the submission in the unassigned queue.
func (w *AnalysisWorker) assign(ctx context.Context, sub *models.WasteSubmission) {
	if w.candidates == nil {
		return
	}
	candidates, err := w.candidates.ListCandidates(ctx)
	if err != nil {
		w.logger.Warn("failed to list verifier candidates", zap.String("submission_id", sub.ID), zap.Error(err))
		return
	}
	workerID, err := w.strategy.Pick(ctx, sub, candidates)
	if err != nil {
		w.logger.Warn("assignment strategy failed", zap.String("strategy", w.strategy.Name()), zap.String("submission_id", sub.ID), zap.Error(err))
		return
	}
	if workerID == "" {
		w.logger.Info("no verifier available, submission left unassigned", zap.String("submission_id", sub.ID))
		return
	}
	if err := w.repo.Assign(ctx, sub.ID, workerID, w.now()); err != nil {
		w.logger.Warn("failed to assign submission", zap.String("submission_id", sub.ID), zap.String("worker_id", workerID), zap.Error(err))
	}
}
