package service

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trash2cash/trash2cash-api/internal/models"
	"github.com/trash2cash/trash2cash-api/pkg/config"
	appErrors "github.com/trash2cash/trash2cash-api/pkg/errors"
)

func TestSimulatedOracleResultsStayInRange(t *testing.T) {
	oracle := NewSimulatedOracle(rand.New(rand.NewSource(42)), 0, 0)
	detected := 0
	for i := 0; i < 500; i++ {
		res, err := oracle.Verify(context.Background(), models.OracleRequest{ImageRef: "img"})
		require.NoError(t, err)
		if !res.IsWaste {
			assert.Equal(t, NotWasteType, res.WasteType)
			assert.Zero(t, res.EstimatedWeightKg)
			assert.Zero(t, res.SuggestedPoints)
			assert.Less(t, res.Confidence, 0.5)
			continue
		}
		detected++
		assert.GreaterOrEqual(t, res.Confidence, simMinConfidence)
		assert.LessOrEqual(t, res.Confidence, simMaxConfidence)
		assert.GreaterOrEqual(t, res.EstimatedWeightKg, simMinWeightKg)
		assert.LessOrEqual(t, res.EstimatedWeightKg, simMaxWeightKg)
		assert.InDelta(t, res.EstimatedWeightKg*simCO2PerKg, res.CO2ImpactKg, 1e-9)
		assert.Contains(t, simulatedWasteTypes, res.WasteType)
		assert.NotEmpty(t, res.Message)
	}
	// detection probability is clamped to [0.70, 0.95]
	assert.Greater(t, detected, 300)
	assert.Less(t, detected, 500)
}

func TestSuggestedPointsBonus(t *testing.T) {
	assert.Equal(t, int64(40), suggestedPoints(0.4))
	assert.Equal(t, int64(90), suggestedPoints(0.6))
	assert.Equal(t, int64(300), suggestedPoints(1.5))
}

func TestDetectionMessageOrder(t *testing.T) {
	assert.Contains(t, detectionMessage(1.2, 0.99), "Large plastic")
	assert.Contains(t, detectionMessage(0.7, 0.99), "Medium plastic")
	assert.Contains(t, detectionMessage(0.2, 0.92), "High-quality")
	assert.Contains(t, detectionMessage(0.2, 0.85), "Good detection")
	assert.Contains(t, detectionMessage(0.2, 0.7), "better lighting")
}

func TestSimulatedOracleHonoursCancellation(t *testing.T) {
	oracle := NewSimulatedOracle(rand.New(rand.NewSource(1)), time.Minute, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := oracle.Verify(ctx, models.OracleRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHTTPOracleDecodesResult(t *testing.T) {
	var got models.OracleRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(models.OracleResult{
			IsWaste: true, Confidence: 0.9, WasteType: "Plastic Bottle",
			EstimatedWeightKg: 0.4, CO2ImpactKg: 1, SuggestedPoints: 40, Message: "ok",
		})
	}))
	defer srv.Close()

	oracle := NewHTTPOracle(srv.URL, time.Second, 0, nil)
	res, err := oracle.Verify(context.Background(), models.OracleRequest{ImageRef: "abc", Latitude: 1, Longitude: 2})
	require.NoError(t, err)
	assert.Equal(t, "abc", got.ImageRef)
	assert.True(t, res.IsWaste)
	assert.Equal(t, int64(40), res.SuggestedPoints)
}

func TestHTTPOracleRejectsOutOfRangeResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"isWaste":true,"confidence":1.7,"wasteType":"Plastic Bag"}`))
	}))
	defer srv.Close()

	_, err := NewHTTPOracle(srv.URL, time.Second, 0, nil).Verify(context.Background(), models.OracleRequest{})
	assert.ErrorContains(t, err, "confidence out of range")
}

func TestHTTPOracleRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"isWaste":false,"confidence":0.1,"wasteType":"Not plastic waste"}`))
	}))
	defer srv.Close()

	res, err := NewHTTPOracle(srv.URL, 5*time.Second, 1, nil).Verify(context.Background(), models.OracleRequest{})
	require.NoError(t, err)
	assert.False(t, res.IsWaste)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

type stubOracle struct {
	result *models.OracleResult
	err    error
	block  bool
}

func (s *stubOracle) Verify(ctx context.Context, req models.OracleRequest) (*models.OracleResult, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.result, s.err
}

func TestBoundedOracleMapsFailures(t *testing.T) {
	_, err := NewBoundedOracle(&stubOracle{err: errors.New("boom")}, time.Second).Verify(context.Background(), models.OracleRequest{})
	assert.ErrorIs(t, err, appErrors.ErrOracleUnavailable)

	_, err = NewBoundedOracle(&stubOracle{block: true}, 10*time.Millisecond).Verify(context.Background(), models.OracleRequest{})
	assert.ErrorIs(t, err, appErrors.ErrOracleUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewOracleModes(t *testing.T) {
	o, err := NewOracle(config.OracleConfig{Mode: config.OracleModeSimulated, Timeout: time.Second}, nil)
	require.NoError(t, err)
	assert.IsType(t, &BoundedOracle{}, o)

	_, err = NewOracle(config.OracleConfig{Mode: config.OracleModeHTTP}, nil)
	assert.Error(t, err)

	_, err = NewOracle(config.OracleConfig{Mode: "quantum"}, nil)
	assert.Error(t, err)
}
