package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/trash2cash/trash2cash-api/internal/models"
	"github.com/trash2cash/trash2cash-api/pkg/jobs"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })
	return recorder
}

func TestAnalysisWorkerTracesOracleCalls(t *testing.T) {
	recorder := recordSpans(t)

	store := newMemorySubmissions()
	sub := pendingSubmission("s1")
	sub.Status = models.StatusAIProcessed
	store.put(sub)
	worker := NewAnalysisWorker(store, &stubOracle{err: errors.New("timeout")}, &stubVerifiers{}, nil, nil, nil)

	require.Error(t, worker.Handle(context.Background(), jobs.Job{ID: "s1", Attempt: 1}))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "oracle.verify", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestSubmissionVerifyTracesDecision(t *testing.T) {
	recorder := recordSpans(t)

	f := newSubmissionFixture()
	f.store.put(pendingSubmission("s1"))
	_, err := f.svc.Verify(context.Background(), "s1", "worker-1", models.VerifyRequest{Approved: true, ActualWasteType: "bottle", ActualWeight: 1})
	require.NoError(t, err)

	var names []string
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}
	assert.Contains(t, names, "submission.verify")
}
