package service

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/trash2cash/trash2cash-api/internal/models"
	"github.com/trash2cash/trash2cash-api/pkg/config"
)

// AssignmentStrategy picks the verifier that owns a submission. An empty result leaves it unassigned.
type AssignmentStrategy interface {
	Name() string
	Pick(ctx context.Context, sub *models.WasteSubmission, candidates []models.WorkerCandidate) (string, error)
}

// UniformRandom chooses uniformly among all candidates.
type UniformRandom struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewUniformRandom builds the default strategy. A nil rng is seeded from the clock.
func NewUniformRandom(rng *rand.Rand) *UniformRandom {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &UniformRandom{rng: rng}
}

func (u *UniformRandom) Name() string { return config.AssignmentUniformRandom }

// Pick returns a random candidate id.
func (u *UniformRandom) Pick(_ context.Context, _ *models.WasteSubmission, candidates []models.WorkerCandidate) (string, error) {
	if len(candidates) == 0 {
		return "", nil
	}
	u.mu.Lock()
	i := u.rng.Intn(len(candidates))
	u.mu.Unlock()
	return candidates[i].UserID, nil
}

// NearestByHaversine routes to the worker whose closest assigned zone centre is nearest to the
// submission. Workers without zones are skipped; when no worker has a zone it defers to fallback.
type NearestByHaversine struct {
	fallback AssignmentStrategy
}

// NewNearestByHaversine builds the geo strategy.
func NewNearestByHaversine(fallback AssignmentStrategy) *NearestByHaversine {
	if fallback == nil {
		fallback = NewUniformRandom(nil)
	}
	return &NearestByHaversine{fallback: fallback}
}

func (n *NearestByHaversine) Name() string { return config.AssignmentNearestHaversine }

// Pick returns the nearest located candidate.
func (n *NearestByHaversine) Pick(ctx context.Context, sub *models.WasteSubmission, candidates []models.WorkerCandidate) (string, error) {
	point := models.GeoPoint{Latitude: sub.Latitude, Longitude: sub.Longitude}
	best := ""
	bestDistance := math.Inf(1)
	for _, c := range candidates {
		for _, z := range c.Zones {
			if d := models.DistanceMeters(point, z); d < bestDistance {
				best, bestDistance = c.UserID, d
			}
		}
	}
	if best == "" {
		return n.fallback.Pick(ctx, sub, candidates)
	}
	return best, nil
}

// NewAssignmentStrategy resolves the configured strategy name.
func NewAssignmentStrategy(name string) (AssignmentStrategy, error) {
	switch name {
	case "", config.AssignmentUniformRandom:
		return NewUniformRandom(nil), nil
	case config.AssignmentNearestHaversine:
		return NewNearestByHaversine(nil), nil
	default:
		return nil, fmt.Errorf("unknown assignment strategy %q", name)
	}
}
