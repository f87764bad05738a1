package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trash2cash/trash2cash-api/internal/models"
	"github.com/trash2cash/trash2cash-api/internal/repository"
	appErrors "github.com/trash2cash/trash2cash-api/pkg/errors"
)

type memoryZones struct {
	zones     map[string]*models.Zone
	listed    int
	collected map[string]float64
}

func newMemoryZones(zones ...models.Zone) *memoryZones {
	m := &memoryZones{zones: map[string]*models.Zone{}, collected: map[string]float64{}}
	for i := range zones {
		z := zones[i]
		m.zones[z.ID] = &z
	}
	return m
}

func (m *memoryZones) ListActive(ctx context.Context) ([]models.Zone, error) {
	m.listed++
	var out []models.Zone
	for _, z := range m.zones {
		if z.IsActive {
			out = append(out, *z)
		}
	}
	return out, nil
}

func (m *memoryZones) ListAdoptedBy(ctx context.Context, citizenID string) ([]models.Zone, error) {
	var out []models.Zone
	for _, z := range m.zones {
		if z.AdoptedByCitizenID != nil && *z.AdoptedByCitizenID == citizenID {
			out = append(out, *z)
		}
	}
	return out, nil
}

func (m *memoryZones) ListAssignedTo(ctx context.Context, workerID string) ([]models.Zone, error) {
	var out []models.Zone
	for _, z := range m.zones {
		if z.AssignedMunicipalID != nil && *z.AssignedMunicipalID == workerID {
			out = append(out, *z)
		}
	}
	return out, nil
}

func (m *memoryZones) GetByID(ctx context.Context, id string) (*models.Zone, error) {
	z, ok := m.zones[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *z
	return &clone, nil
}

func (m *memoryZones) Create(ctx context.Context, zone *models.Zone) error {
	zone.ID = "zone-new"
	clone := *zone
	m.zones[zone.ID] = &clone
	return nil
}

func (m *memoryZones) Adopt(ctx context.Context, zoneID, citizenID string) error {
	z, ok := m.zones[zoneID]
	if !ok {
		return sql.ErrNoRows
	}
	if z.AdoptedByCitizenID != nil {
		return repository.ErrAlreadyClaimed
	}
	z.AdoptedByCitizenID = &citizenID
	return nil
}

func (m *memoryZones) Assign(ctx context.Context, zoneID, workerID string) error {
	z, ok := m.zones[zoneID]
	if !ok {
		return sql.ErrNoRows
	}
	z.AssignedMunicipalID = &workerID
	return nil
}

func (m *memoryZones) AddCollection(ctx context.Context, zoneIDs []string, weightKg float64, at time.Time) error {
	for _, id := range zoneIDs {
		m.collected[id] += weightKg
	}
	return nil
}

func newTestZoneService(zones *memoryZones) (*ZoneService, *mockAudit) {
	audit := &mockAudit{}
	cache := NewCacheService(newMemoryCache(), nil, time.Minute, zap.NewNop(), true)
	verifiers := &stubVerifiers{active: map[string]bool{"worker-1": true}}
	return NewZoneService(zones, verifiers, cache, audit, nil, zap.NewNop()), audit
}

func lodhiGarden() models.Zone {
	return models.Zone{ID: "z1", Name: "Lodhi Garden", Latitude: 28.5931, Longitude: 77.2197, RadiusMeters: 800, IsActive: true}
}

func TestZoneServiceAdoptOnce(t *testing.T) {
	zones := newMemoryZones(lodhiGarden())
	svc, audit := newTestZoneService(zones)

	zone, err := svc.Adopt(context.Background(), "z1", "citizen-1", "", "")
	require.NoError(t, err)
	require.NotNil(t, zone.AdoptedByCitizenID)
	assert.Equal(t, "citizen-1", *zone.AdoptedByCitizenID)

	_, err = svc.Adopt(context.Background(), "z1", "citizen-2", "", "")
	assert.ErrorIs(t, err, appErrors.ErrConflict)
	_, err = svc.Adopt(context.Background(), "nope", "citizen-2", "", "")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.Equal(t, []string{models.AuditActionZoneAdopt}, audit.actions())

	mine, err := svc.ListMine(context.Background(), "citizen-1", models.RoleCitizen)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

func TestZoneServiceListIsCached(t *testing.T) {
	zones := newMemoryZones(lodhiGarden())
	svc, _ := newTestZoneService(zones)

	for i := 0; i < 3; i++ {
		list, err := svc.List(context.Background())
		require.NoError(t, err)
		assert.Len(t, list, 1)
	}
	assert.Equal(t, 1, zones.listed)
}

func TestZoneServiceAssignRequiresActiveWorker(t *testing.T) {
	zones := newMemoryZones(lodhiGarden())
	svc, _ := newTestZoneService(zones)

	_, err := svc.Assign(context.Background(), "admin-1", "z1", models.AssignZoneRequest{WorkerID: "worker-2"}, "", "")
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	zone, err := svc.Assign(context.Background(), "admin-1", "z1", models.AssignZoneRequest{WorkerID: "worker-1"}, "", "")
	require.NoError(t, err)
	assert.Equal(t, "worker-1", *zone.AssignedMunicipalID)
}

func TestZoneServiceCreateValidates(t *testing.T) {
	svc, _ := newTestZoneService(newMemoryZones())

	_, err := svc.Create(context.Background(), "admin-1", models.CreateZoneRequest{Name: "X", Latitude: 200, City: "Delhi", RadiusMeters: 10}, "", "")
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	zone, err := svc.Create(context.Background(), "admin-1", models.CreateZoneRequest{Name: "India Gate", Latitude: 28.61, Longitude: 77.23, City: "Delhi", RadiusMeters: 300}, "", "")
	require.NoError(t, err)
	assert.True(t, zone.IsActive)
}

func TestZoneServiceRecordCollectionByRadius(t *testing.T) {
	far := models.Zone{ID: "z2", Latitude: 19.07, Longitude: 72.87, RadiusMeters: 1000, IsActive: true}
	zones := newMemoryZones(lodhiGarden(), far)
	svc, _ := newTestZoneService(zones)

	err := svc.RecordCollection(context.Background(), models.GeoPoint{Latitude: 28.5935, Longitude: 77.2200}, 1.2, time.Now())
	require.NoError(t, err)
	assert.InDelta(t, 1.2, zones.collected["z1"], 1e-9)
	assert.Zero(t, zones.collected["z2"])
}
