package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/trash2cash/trash2cash-api/internal/models"
	"github.com/trash2cash/trash2cash-api/pkg/config"
	appErrors "github.com/trash2cash/trash2cash-api/pkg/errors"
)

// VerificationOracle classifies a submitted photo.
type VerificationOracle interface {
	Verify(ctx context.Context, req models.OracleRequest) (*models.OracleResult, error)
}

// NotWasteType is the waste type reported when nothing was detected.
const NotWasteType = "Not plastic waste"

var simulatedWasteTypes = []string{
	"Plastic Bottle",
	"Plastic Bag",
	"Food Container",
	"Plastic Wrapper",
	"Disposable Cup",
	"Plastic Utensils",
	"Packaging Material",
	"Beverage Container",
}

const (
	simMinConfidence = 0.65
	simMaxConfidence = 0.95
	simMinWeightKg   = 0.05
	simMaxWeightKg   = 2.5
	simCO2PerKg      = 2.5
	simPointsPerKg   = 100
)

// SimulatedOracle stands in for an image classifier with randomized but plausible results.
type SimulatedOracle struct {
	mu         sync.Mutex
	rng        *rand.Rand
	minLatency time.Duration
	maxLatency time.Duration
}

// NewSimulatedOracle builds a simulated oracle. A nil rng is seeded from the clock.
func NewSimulatedOracle(rng *rand.Rand, minLatency, maxLatency time.Duration) *SimulatedOracle {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if maxLatency < minLatency {
		maxLatency = minLatency
	}
	return &SimulatedOracle{rng: rng, minLatency: minLatency, maxLatency: maxLatency}
}

// Verify waits a random latency then classifies the photo.
func (o *SimulatedOracle) Verify(ctx context.Context, req models.OracleRequest) (*models.OracleResult, error) {
	timer := time.NewTimer(o.latency())
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.detect() {
		return &models.OracleResult{
			IsWaste:    false,
			Confidence: o.rng.Float64() * 0.5,
			WasteType:  NotWasteType,
			Message:    "No plastic waste detected in image. Please try again with clear plastic waste.",
		}, nil
	}

	confidence := simMinConfidence + o.rng.Float64()*(simMaxConfidence-simMinConfidence)
	weight := simMinWeightKg + o.rng.Float64()*(simMaxWeightKg-simMinWeightKg)
	return &models.OracleResult{
		IsWaste:           true,
		Confidence:        confidence,
		WasteType:         simulatedWasteTypes[o.rng.Intn(len(simulatedWasteTypes))],
		EstimatedWeightKg: weight,
		CO2ImpactKg:       weight * simCO2PerKg,
		SuggestedPoints:   suggestedPoints(weight),
		Message:           detectionMessage(weight, confidence),
	}, nil
}

func (o *SimulatedOracle) latency() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	spread := o.maxLatency - o.minLatency
	if spread <= 0 {
		return o.minLatency
	}
	return o.minLatency + time.Duration(o.rng.Int63n(int64(spread)))
}

// detect draws against a base rate of 0.85 nudged up by clarity, lighting and angle, clamped to [0.70, 0.95].
func (o *SimulatedOracle) detect() bool {
	p := 0.85 + o.rng.Float64()*0.15 + o.rng.Float64()*0.10 + o.rng.Float64()*0.05
	p = math.Max(0.70, math.Min(0.95, p))
	return o.rng.Float64() < p
}

func suggestedPoints(weightKg float64) int64 {
	base := math.Floor(weightKg * simPointsPerKg)
	multiplier := 1.0
	switch {
	case weightKg >= 1.0:
		multiplier = 2.0
	case weightKg >= 0.5:
		multiplier = 1.5
	}
	return int64(base * multiplier)
}

func detectionMessage(weightKg, confidence float64) string {
	switch {
	case weightKg >= 1.0:
		return "Excellent! Large plastic collection detected. Bonus points applied!"
	case weightKg >= 0.5:
		return "Great job! Medium plastic collection detected. Bonus applied!"
	case confidence >= 0.9:
		return "Perfect! High-quality plastic waste detected."
	case confidence >= 0.8:
		return "Good detection! Plastic waste identified."
	default:
		return "Plastic waste detected. Consider better lighting for higher accuracy."
	}
}

// HTTPOracle calls a remote classifier that implements the oracle contract over JSON.
type HTTPOracle struct {
	url    string
	client *http.Client
}

// NewHTTPOracle builds a client with transport-level retries for connection errors and 5xx responses.
func NewHTTPOracle(url string, timeout time.Duration, retries int, logger *zap.Logger) *HTTPOracle {
	if logger == nil {
		logger = zap.NewNop()
	}
	rc := retryablehttp.NewClient()
	rc.RetryMax = retries
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = retryLogger{logger.Sugar()}
	client := rc.StandardClient()
	client.Timeout = timeout
	return &HTTPOracle{url: url, client: client}
}

// Verify posts the request and validates the decoded result.
func (o *HTTPOracle) Verify(ctx context.Context, req models.OracleRequest) (*models.OracleResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode oracle request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build oracle request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call oracle: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("oracle responded with status %d", resp.StatusCode)
	}

	var result models.OracleResult
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode oracle response: %w", err)
	}
	if err := validateOracleResult(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func validateOracleResult(r *models.OracleResult) error {
	switch {
	case math.IsNaN(r.Confidence) || r.Confidence < 0 || r.Confidence > 1:
		return fmt.Errorf("oracle confidence out of range: %v", r.Confidence)
	case math.IsNaN(r.EstimatedWeightKg) || r.EstimatedWeightKg < 0:
		return fmt.Errorf("oracle weight out of range: %v", r.EstimatedWeightKg)
	case math.IsNaN(r.CO2ImpactKg) || r.CO2ImpactKg < 0:
		return fmt.Errorf("oracle co2 impact out of range: %v", r.CO2ImpactKg)
	case r.SuggestedPoints < 0:
		return fmt.Errorf("oracle points out of range: %d", r.SuggestedPoints)
	case r.IsWaste && r.WasteType == "":
		return fmt.Errorf("oracle reported waste without a type")
	}
	return nil
}

// BoundedOracle enforces a per-call deadline and reports every failure as ORACLE_UNAVAILABLE.
type BoundedOracle struct {
	next    VerificationOracle
	timeout time.Duration
}

// NewBoundedOracle wraps next with a timeout.
func NewBoundedOracle(next VerificationOracle, timeout time.Duration) *BoundedOracle {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &BoundedOracle{next: next, timeout: timeout}
}

// Verify delegates under the timeout.
func (o *BoundedOracle) Verify(ctx context.Context, req models.OracleRequest) (*models.OracleResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	result, err := o.next.Verify(callCtx, req)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrOracleUnavailable.Code, appErrors.ErrOracleUnavailable.Status, appErrors.ErrOracleUnavailable.Message)
	}
	return result, nil
}

// retryLogger adapts zap to the retryablehttp leveled logger.
type retryLogger struct {
	l *zap.SugaredLogger
}

func (r retryLogger) Error(msg string, kv ...interface{}) { r.l.Errorw(msg, kv...) }
func (r retryLogger) Info(msg string, kv ...interface{})  { r.l.Debugw(msg, kv...) }
func (r retryLogger) Debug(msg string, kv ...interface{}) { r.l.Debugw(msg, kv...) }
func (r retryLogger) Warn(msg string, kv ...interface{})  { r.l.Warnw(msg, kv...) }

// NewOracle selects the oracle implementation configured by mode and bounds it with the configured timeout.
func NewOracle(cfg config.OracleConfig, logger *zap.Logger) (VerificationOracle, error) {
	var inner VerificationOracle
	switch cfg.Mode {
	case "", config.OracleModeSimulated:
		inner = NewSimulatedOracle(nil, cfg.MinLatency, cfg.MaxLatency)
	case config.OracleModeHTTP:
		if cfg.URL == "" {
			return nil, fmt.Errorf("oracle mode %q requires ORACLE_URL", cfg.Mode)
		}
		inner = NewHTTPOracle(cfg.URL, cfg.Timeout, 1, logger)
	default:
		return nil, fmt.Errorf("unknown oracle mode %q", cfg.Mode)
	}
	return NewBoundedOracle(inner, cfg.Timeout), nil
}
