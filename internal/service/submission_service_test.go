package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/trash2cash/trash2cash-api/internal/models"
	"github.com/trash2cash/trash2cash-api/internal/repository"
	appErrors "github.com/trash2cash/trash2cash-api/pkg/errors"
	"github.com/trash2cash/trash2cash-api/pkg/jobs"
)

// memorySubmissions mimics the conditional updates of the SQL repository.
type memorySubmissions struct {
	mu         sync.Mutex
	subs       map[string]*models.WasteSubmission
	decisions  []models.Decision
	credited   map[string]int64
	lastFilter models.SubmissionFilter
	seq        int
	pages      int
	decideErr  error
}

func newMemorySubmissions() *memorySubmissions {
	return &memorySubmissions{subs: map[string]*models.WasteSubmission{}, credited: map[string]int64{}}
}

func (m *memorySubmissions) put(sub models.WasteSubmission) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.ID] = &sub
}

func (m *memorySubmissions) status(id string) models.VerificationStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subs[id].Status
}

func (m *memorySubmissions) Create(ctx context.Context, sub *models.WasteSubmission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	sub.ID = "sub-" + string(rune('0'+m.seq))
	sub.Status = models.StatusAIProcessed
	clone := *sub
	m.subs[sub.ID] = &clone
	return nil
}

func (m *memorySubmissions) GetByID(ctx context.Context, id string) (*models.WasteSubmission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *sub
	return &clone, nil
}

func (m *memorySubmissions) List(ctx context.Context, filter models.SubmissionFilter) ([]models.WasteSubmission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFilter = filter
	var out []models.WasteSubmission
	for _, sub := range m.subs {
		if filter.CitizenID != "" && sub.CitizenID != filter.CitizenID {
			continue
		}
		if filter.Unassigned && sub.AssignedMunicipalID != nil {
			continue
		}
		out = append(out, *sub)
	}
	return out, nil
}

func (m *memorySubmissions) ListAwaitingAnalysis(ctx context.Context, cutoff time.Time, after *models.AnalysisCursor, limit int) ([]models.AnalysisCursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages++
	var all []models.AnalysisCursor
	for id, sub := range m.subs {
		if sub.Status == models.StatusAIProcessed && sub.SubmittedAt.Before(cutoff) {
			all = append(all, models.AnalysisCursor{ID: id, SubmittedAt: sub.SubmittedAt})
		}
	}
	sort.Slice(all, func(i, j int) bool { return cursorBefore(all[i], all[j]) })
	var page []models.AnalysisCursor
	for _, c := range all {
		if after != nil && !cursorBefore(*after, c) {
			continue
		}
		if len(page) == limit {
			break
		}
		page = append(page, c)
	}
	return page, nil
}

func cursorBefore(a, b models.AnalysisCursor) bool {
	if !a.SubmittedAt.Equal(b.SubmittedAt) {
		return a.SubmittedAt.Before(b.SubmittedAt)
	}
	return a.ID < b.ID
}

func (m *memorySubmissions) ApplyAnalysis(ctx context.Context, id string, a models.Analysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[id]
	if !ok || sub.Status != models.StatusAIProcessed {
		return sql.ErrNoRows
	}
	sub.AIDetectedType = &a.DetectedType
	sub.AIEstimatedKg = &a.EstimatedKg
	sub.AIConfidence = &a.Confidence
	sub.AIIsWaste = &a.IsWaste
	sub.AIProcessedAt = &a.ProcessedAt
	sub.Status = models.StatusPending
	return nil
}

func (m *memorySubmissions) ApplyFallback(ctx context.Context, id, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[id]
	if !ok || sub.Status != models.StatusAIProcessed {
		return sql.ErrNoRows
	}
	sub.AnalysisFailure = &reason
	sub.Status = models.StatusPending
	return nil
}

func (m *memorySubmissions) Assign(ctx context.Context, id, workerID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[id]
	if !ok || sub.Status != models.StatusPending {
		return sql.ErrNoRows
	}
	sub.AssignedMunicipalID = &workerID
	return nil
}

func (m *memorySubmissions) RecordDecision(ctx context.Context, d models.Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.decideErr != nil {
		return m.decideErr
	}
	sub, ok := m.subs[d.SubmissionID]
	if !ok {
		return sql.ErrNoRows
	}
	if err := models.Transition(sub.Status, d.Status); err != nil {
		return err
	}
	sub.Status = d.Status
	sub.VerifiedByMunicipalID = &d.VerifierID
	sub.VerifiedAt = &d.DecidedAt
	sub.RewardPoints = d.RewardPoints
	sub.ImpactScore = d.ImpactScore
	sub.ActualWeight = d.ActualWeight
	sub.ActualWasteType = d.ActualWasteType
	sub.RejectionReason = d.RejectionReason
	sub.IsRejected = d.Status == models.StatusRejected
	if d.Status == models.StatusVerified {
		m.credited[sub.CitizenID] += d.RewardPoints
	}
	m.decisions = append(m.decisions, d)
	return nil
}

func (m *memorySubmissions) Dispute(ctx context.Context, id, citizenID, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[id]
	if !ok || sub.CitizenID != citizenID || sub.Status != models.StatusRejected {
		return sql.ErrNoRows
	}
	sub.Status = models.StatusDisputed
	sub.DisputeReason = &reason
	sub.DisputedAt = &at
	return nil
}

type stubVerifiers struct {
	active     map[string]bool
	candidates []models.WorkerCandidate
}

func (s *stubVerifiers) IsActiveVerifier(ctx context.Context, userID string) (bool, error) {
	return s.active[userID], nil
}

func (s *stubVerifiers) ListCandidates(ctx context.Context) ([]models.WorkerCandidate, error) {
	return s.candidates, nil
}

type recordingQueue struct {
	jobs []jobs.Job
	err  error
}

func (q *recordingQueue) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type recordingFallback struct {
	calls chan string
}

func (f *recordingFallback) Fallback(ctx context.Context, id, reason string) {
	f.calls <- id
}

type recordingZones struct {
	points []models.GeoPoint
}

func (z *recordingZones) RecordCollection(ctx context.Context, p models.GeoPoint, weightKg float64, at time.Time) error {
	z.points = append(z.points, p)
	return nil
}

type submissionFixture struct {
	svc      *SubmissionService
	store    *memorySubmissions
	queue    *recordingQueue
	verifier *stubVerifiers
	zones    *recordingZones
	audit    *mockAudit
	metrics  *MetricsService
}

func newSubmissionFixture() *submissionFixture {
	f := &submissionFixture{
		store:    newMemorySubmissions(),
		queue:    &recordingQueue{},
		verifier: &stubVerifiers{active: map[string]bool{"worker-1": true}},
		zones:    &recordingZones{},
		audit:    &mockAudit{},
		metrics:  NewMetricsService(),
	}
	f.svc = NewSubmissionService(SubmissionDeps{
		Repo:      f.store,
		Verifiers: f.verifier,
		Queue:     f.queue,
		Zones:     f.zones,
		Audit:     f.audit,
		Metrics:   f.metrics,
		Logger:    zap.NewNop(),
	})
	return f
}

func pendingSubmission(id string) models.WasteSubmission {
	return models.WasteSubmission{ID: id, CitizenID: "citizen-1", Latitude: 28.61, Longitude: 77.2, Status: models.StatusPending}
}

func validSubmitRequest() models.SubmitRequest {
	return models.SubmitRequest{ImageRef: "img-1", Latitude: 28.61, Longitude: 77.2, LocationName: "Lodhi Garden"}
}

func TestSubmissionServiceSubmitPersistsAndEnqueues(t *testing.T) {
	f := newSubmissionFixture()

	sub, err := f.svc.Submit(context.Background(), "citizen-1", validSubmitRequest())
	require.NoError(t, err)
	assert.Equal(t, models.StatusAIProcessed, sub.Status)
	assert.Equal(t, models.StatusAIProcessed, f.store.status(sub.ID))
	require.Len(t, f.queue.jobs, 1)
	assert.Equal(t, sub.ID, f.queue.jobs[0].ID)
	assert.Equal(t, JobTypeAnalysis, f.queue.jobs[0].Type)
}

func TestSubmissionServiceSubmitValidatesCoordinates(t *testing.T) {
	f := newSubmissionFixture()
	req := validSubmitRequest()
	req.Latitude = 91
	req.LocationName = " "

	_, err := f.svc.Submit(context.Background(), "citizen-1", req)
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	details := appErr.Details.(map[string]string)
	assert.Contains(t, details, "latitude")
	assert.Contains(t, details, "locationName")
	assert.Empty(t, f.queue.jobs)
}

func TestSubmissionServiceSubmitFallsBackWhenQueueRefuses(t *testing.T) {
	f := newSubmissionFixture()
	f.queue.err = errors.New("queue stopped")
	fallback := &recordingFallback{calls: make(chan string, 1)}
	f.svc.fallback = fallback

	sub, err := f.svc.Submit(context.Background(), "citizen-1", validSubmitRequest())
	require.NoError(t, err)

	select {
	case id := <-fallback.calls:
		assert.Equal(t, sub.ID, id)
	case <-time.After(time.Second):
		t.Fatal("fallback not invoked")
	}
}

func TestSubmissionServiceVerifyApprovalCreditsCitizen(t *testing.T) {
	f := newSubmissionFixture()
	f.store.put(pendingSubmission("s1"))

	sub, err := f.svc.Verify(context.Background(), "s1", "worker-1", models.VerifyRequest{
		Approved: true, ActualWasteType: "bottle", ActualWeight: 1.2,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusVerified, sub.Status)
	assert.Equal(t, int64(12), sub.RewardPoints)
	assert.InDelta(t, 3.84, sub.ImpactScore, 1e-9)
	require.NotNil(t, sub.VerifiedByMunicipalID)
	assert.Equal(t, "worker-1", *sub.VerifiedByMunicipalID)
	assert.NotNil(t, sub.VerifiedAt)
	assert.Equal(t, int64(12), f.store.credited["citizen-1"])
	assert.Len(t, f.zones.points, 1)
	assert.Equal(t, []string{models.AuditActionVerify}, f.audit.actions())
}

func TestSubmissionServiceVerifyRejectionLeavesLedger(t *testing.T) {
	f := newSubmissionFixture()
	f.store.put(pendingSubmission("s1"))

	sub, err := f.svc.Verify(context.Background(), "s1", "worker-1", models.VerifyRequest{RejectionReason: "blurry image"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, sub.Status)
	require.NotNil(t, sub.RejectionReason)
	assert.Equal(t, "blurry image", *sub.RejectionReason)
	assert.Empty(t, f.store.credited)
	assert.Empty(t, f.zones.points)
	require.Len(t, f.store.decisions, 1)
}

func TestSubmissionServiceVerifyValidation(t *testing.T) {
	cases := []struct {
		name  string
		req   models.VerifyRequest
		field string
	}{
		{"approval without weight", models.VerifyRequest{Approved: true, ActualWasteType: "bag"}, "actualWeight"},
		{"approval without type", models.VerifyRequest{Approved: true, ActualWeight: 1}, "actualWasteType"},
		{"rejection without reason", models.VerifyRequest{RejectionReason: "   "}, "rejectionReason"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newSubmissionFixture()
			f.store.put(pendingSubmission("s1"))

			_, err := f.svc.Verify(context.Background(), "s1", "worker-1", tc.req)
			var appErr *appErrors.Error
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
			assert.Contains(t, appErr.Details.(map[string]string), tc.field)
			assert.Empty(t, f.store.decisions)
		})
	}
}

func TestSubmissionServiceVerifyTwiceIsAlreadyVerified(t *testing.T) {
	f := newSubmissionFixture()
	f.store.put(pendingSubmission("s1"))
	approve := models.VerifyRequest{Approved: true, ActualWasteType: "bag", ActualWeight: 0.05}

	first, err := f.svc.Verify(context.Background(), "s1", "worker-1", approve)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.RewardPoints)

	_, err = f.svc.Verify(context.Background(), "s1", "worker-1", models.VerifyRequest{RejectionReason: "changed my mind"})
	assert.ErrorIs(t, err, appErrors.ErrAlreadyVerified)
	assert.Equal(t, models.StatusVerified, f.store.status("s1"))
	assert.Equal(t, int64(1), f.store.credited["citizen-1"])
}

func TestSubmissionServiceVerifyDuringAnalysisConflicts(t *testing.T) {
	f := newSubmissionFixture()
	sub := pendingSubmission("s1")
	sub.Status = models.StatusAIProcessed
	f.store.put(sub)

	_, err := f.svc.Verify(context.Background(), "s1", "worker-1", models.VerifyRequest{RejectionReason: "no"})
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestSubmissionServiceVerifyRequiresActiveVerifier(t *testing.T) {
	f := newSubmissionFixture()
	f.store.put(pendingSubmission("s1"))

	_, err := f.svc.Verify(context.Background(), "s1", "worker-2", models.VerifyRequest{RejectionReason: "no"})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = f.svc.Verify(context.Background(), "missing", "worker-1", models.VerifyRequest{RejectionReason: "no"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestSubmissionServiceVerifyReportsMissingProfiles(t *testing.T) {
	cases := []struct {
		err     error
		want    *appErrors.Error
		message string
	}{
		{repository.ErrVerifierMissing, appErrors.ErrForbidden, "verifier profile missing"},
		{repository.ErrAccountMissing, appErrors.ErrNotFound, "submitting citizen not found"},
		{sql.ErrNoRows, appErrors.ErrNotFound, "submission not found"},
	}
	for _, tc := range cases {
		t.Run(tc.message, func(t *testing.T) {
			f := newSubmissionFixture()
			f.store.put(pendingSubmission("s1"))
			f.store.decideErr = tc.err

			_, err := f.svc.Verify(context.Background(), "s1", "worker-1", models.VerifyRequest{RejectionReason: "no"})
			require.ErrorIs(t, err, tc.want)
			assert.Equal(t, tc.message, appErrors.FromError(err).Message)
		})
	}
}

func TestSubmissionServiceDispute(t *testing.T) {
	f := newSubmissionFixture()
	rejected := pendingSubmission("s1")
	rejected.Status = models.StatusRejected
	f.store.put(rejected)
	f.store.put(pendingSubmission("s2"))

	_, err := f.svc.Dispute(context.Background(), "s1", "citizen-2", models.DisputeRequest{Reason: "it was plastic"}, "", "")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = f.svc.Dispute(context.Background(), "s2", "citizen-1", models.DisputeRequest{Reason: "it was plastic"}, "", "")
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	sub, err := f.svc.Dispute(context.Background(), "s1", "citizen-1", models.DisputeRequest{Reason: "it was plastic"}, "", "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDisputed, sub.Status)
	assert.Equal(t, []string{models.AuditActionDispute}, f.audit.actions())
}

func TestSubmissionServiceGetHidesOtherCitizens(t *testing.T) {
	f := newSubmissionFixture()
	f.store.put(pendingSubmission("s1"))

	_, err := f.svc.Get(context.Background(), "s1", "citizen-2", models.RoleCitizen)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	sub, err := f.svc.Get(context.Background(), "s1", "worker-1", models.RoleMunicipalWorker)
	require.NoError(t, err)
	assert.Equal(t, "s1", sub.ID)
}

func TestSubmissionServiceListQueueScopes(t *testing.T) {
	f := newSubmissionFixture()

	_, err := f.svc.ListQueue(context.Background(), "worker-1", models.QueueScopeAssigned, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, "worker-1", f.store.lastFilter.AssignedTo)
	assert.True(t, f.store.lastFilter.OldestFirst)
	assert.ElementsMatch(t, []models.VerificationStatus{models.StatusPending, models.StatusAIProcessed}, f.store.lastFilter.Status)

	_, err = f.svc.ListQueue(context.Background(), "worker-1", models.QueueScopeUnassigned, 10, 0)
	require.NoError(t, err)
	assert.True(t, f.store.lastFilter.Unassigned)

	_, err = f.svc.ListQueue(context.Background(), "worker-1", "mine", 10, 0)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestSubmissionServiceRecoverRequeues(t *testing.T) {
	f := newSubmissionFixture()
	stuck := pendingSubmission("s1")
	stuck.Status = models.StatusAIProcessed
	f.store.put(stuck)
	f.store.put(pendingSubmission("s2"))

	f.svc.Recover(context.Background())
	require.Len(t, f.queue.jobs, 1)
	assert.Equal(t, "s1", f.queue.jobs[0].ID)
}

func TestSubmissionServiceRecoverPagesPastOneBatch(t *testing.T) {
	f := newSubmissionFixture()
	base := time.Now().Add(-time.Hour)
	total := recoverBatch*2 + 30
	for i := 0; i < total; i++ {
		stuck := pendingSubmission(fmt.Sprintf("s%03d", i))
		stuck.Status = models.StatusAIProcessed
		// pairs share a timestamp so the id tiebreak is exercised
		stuck.SubmittedAt = base.Add(time.Duration(i/2) * time.Second)
		f.store.put(stuck)
	}
	f.store.put(pendingSubmission("done"))

	f.svc.Recover(context.Background())
	require.Len(t, f.queue.jobs, total)
	seen := map[string]bool{}
	for _, job := range f.queue.jobs {
		assert.False(t, seen[job.ID], "requeued twice: %s", job.ID)
		seen[job.ID] = true
	}
	assert.False(t, seen["done"])
	assert.Equal(t, "s000", f.queue.jobs[0].ID)
	assert.Equal(t, fmt.Sprintf("s%03d", total-1), f.queue.jobs[total-1].ID)
	assert.Equal(t, 3, f.store.pages)
}

func TestSubmissionServiceRecoverExactBatchEndsOnEmptyPage(t *testing.T) {
	f := newSubmissionFixture()
	for i := 0; i < recoverBatch; i++ {
		stuck := pendingSubmission(fmt.Sprintf("s%03d", i))
		stuck.Status = models.StatusAIProcessed
		f.store.put(stuck)
	}

	f.svc.Recover(context.Background())
	assert.Len(t, f.queue.jobs, recoverBatch)
	assert.Equal(t, 2, f.store.pages)
}

func TestAnalysisWorkerRecordsResultAndAssigns(t *testing.T) {
	store := newMemorySubmissions()
	sub := pendingSubmission("s1")
	sub.Status = models.StatusAIProcessed
	store.put(sub)
	oracle := &stubOracle{result: &models.OracleResult{IsWaste: true, Confidence: 0.9, WasteType: "Plastic Bag", EstimatedWeightKg: 0.3}}
	verifiers := &stubVerifiers{candidates: []models.WorkerCandidate{{UserID: "worker-1"}}}
	worker := NewAnalysisWorker(store, oracle, verifiers, nil, nil, zap.NewNop())

	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: "s1"}))
	got, _ := store.GetByID(context.Background(), "s1")
	assert.Equal(t, models.StatusPending, got.Status)
	require.NotNil(t, got.AIDetectedType)
	assert.Equal(t, "Plastic Bag", *got.AIDetectedType)
	require.NotNil(t, got.AssignedMunicipalID)
	assert.Equal(t, "worker-1", *got.AssignedMunicipalID)
}

func TestAnalysisWorkerSkipsAnalysedSubmission(t *testing.T) {
	store := newMemorySubmissions()
	store.put(pendingSubmission("s1"))
	oracle := &stubOracle{err: errors.New("must not be called")}
	worker := NewAnalysisWorker(store, oracle, nil, nil, nil, nil)

	assert.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: "s1"}))
	assert.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: "missing"}))
}

func TestAnalysisWorkerFallbackWithoutVerifiers(t *testing.T) {
	store := newMemorySubmissions()
	sub := pendingSubmission("s1")
	sub.Status = models.StatusAIProcessed
	store.put(sub)
	worker := NewAnalysisWorker(store, &stubOracle{err: appErrors.ErrOracleUnavailable}, &stubVerifiers{}, nil, nil, nil)

	err := worker.Handle(context.Background(), jobs.Job{ID: "s1"})
	require.Error(t, err)
	assert.Equal(t, models.StatusAIProcessed, store.status("s1"))

	worker.Exhausted(context.Background(), jobs.Job{ID: "s1"}, err)
	got, _ := store.GetByID(context.Background(), "s1")
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Nil(t, got.AIDetectedType)
	assert.Nil(t, got.AssignedMunicipalID)
	require.NotNil(t, got.AnalysisFailure)
	assert.Contains(t, *got.AnalysisFailure, "oracle unavailable")
}

func TestSubmissionPipelineReachesReviewWhenOracleIsDown(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := newMemorySubmissions()
	verifiers := &stubVerifiers{active: map[string]bool{"worker-1": true}}
	worker := NewAnalysisWorker(store, NewBoundedOracle(&stubOracle{block: true}, 5*time.Millisecond), verifiers, nil, nil, nil)
	queue := jobs.NewQueue("analysis", worker.Handle, jobs.QueueConfig{
		Workers:     1,
		MaxRetries:  1,
		RetryDelay:  time.Millisecond,
		OnExhausted: worker.Exhausted,
	})
	queue.Start(context.Background())
	defer queue.Stop()

	svc := NewSubmissionService(SubmissionDeps{Repo: store, Verifiers: verifiers, Queue: queue, Fallback: worker})
	sub, err := svc.Submit(context.Background(), "citizen-1", validSubmitRequest())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return store.status(sub.ID) == models.StatusPending
	}, 2*time.Second, 5*time.Millisecond)

	queued, err := svc.ListQueue(context.Background(), "", models.QueueScopeUnassigned, 10, 0)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, sub.ID, queued[0].ID)
}
