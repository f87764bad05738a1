package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/trash2cash/trash2cash-api/internal/models"
	"github.com/trash2cash/trash2cash-api/internal/repository"
	appErrors "github.com/trash2cash/trash2cash-api/pkg/errors"
)

type zoneStore interface {
	ListActive(ctx context.Context) ([]models.Zone, error)
	ListAdoptedBy(ctx context.Context, citizenID string) ([]models.Zone, error)
	ListAssignedTo(ctx context.Context, workerID string) ([]models.Zone, error)
	GetByID(ctx context.Context, id string) (*models.Zone, error)
	Create(ctx context.Context, zone *models.Zone) error
	Adopt(ctx context.Context, zoneID, citizenID string) error
	Assign(ctx context.Context, zoneID, workerID string) error
	AddCollection(ctx context.Context, zoneIDs []string, weightKg float64, at time.Time) error
}

// ZoneService manages adoptable cleanup zones.
type ZoneService struct {
	repo      zoneStore
	verifiers verifierDirectory
	cache     *CacheService
	audit     auditWriter
	validate  *validator.Validate
	logger    *zap.Logger
}

// NewZoneService constructs the zone service.
func NewZoneService(repo zoneStore, verifiers verifierDirectory, cache *CacheService, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *ZoneService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	}
	return &ZoneService{repo: repo, verifiers: verifiers, cache: cache, audit: audit, validate: validate, logger: logger}
}

// List returns active zones.
func (s *ZoneService) List(ctx context.Context) ([]models.Zone, error) {
	zones, err := remember(ctx, s.cache, cacheKeyZones, s.loadActive)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list zones")
	}
	return zones, nil
}

func (s *ZoneService) loadActive(ctx context.Context) ([]models.Zone, error) {
	zones, err := s.repo.ListActive(ctx)
	if zones == nil {
		zones = []models.Zone{}
	}
	return zones, err
}

// ListMine returns zones adopted by a citizen or assigned to a worker.
func (s *ZoneService) ListMine(ctx context.Context, userID string, role models.UserRole) ([]models.Zone, error) {
	var zones []models.Zone
	var err error
	switch role {
	case models.RoleCitizen:
		zones, err = s.repo.ListAdoptedBy(ctx, userID)
	case models.RoleMunicipalWorker:
		zones, err = s.repo.ListAssignedTo(ctx, userID)
	default:
		return []models.Zone{}, nil
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list zones")
	}
	if zones == nil {
		zones = []models.Zone{}
	}
	return zones, nil
}

// Adopt claims a zone for a citizen. Only the first claim wins.
func (s *ZoneService) Adopt(ctx context.Context, zoneID, citizenID, ip, userAgent string) (*models.Zone, error) {
	if err := s.repo.Adopt(ctx, zoneID, citizenID); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "zone not found")
		case errors.Is(err, repository.ErrAlreadyClaimed):
			return nil, appErrors.Clone(appErrors.ErrConflict, "zone already adopted")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to adopt zone")
	}
	s.cache.Invalidate(ctx, cachePatternZones)
	recordAudit(ctx, s.audit, s.logger, citizenID, models.AuditActionZoneAdopt, "zone", zoneID, nil, ip, userAgent)
	return s.get(ctx, zoneID)
}

// Create adds a zone.
func (s *ZoneService) Create(ctx context.Context, adminID string, req models.CreateZoneRequest, ip, userAgent string) (*models.Zone, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.City = strings.TrimSpace(req.City)
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err, "invalid zone")
	}
	zone := &models.Zone{
		Name:         req.Name,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		RadiusMeters: req.RadiusMeters,
		Address:      req.Address,
		City:         req.City,
		State:        req.State,
		Pincode:      req.Pincode,
		WasteLevel:   req.WasteLevel,
		Description:  req.Description,
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, zone); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create zone")
	}
	s.cache.Invalidate(ctx, cachePatternZones)
	recordAudit(ctx, s.audit, s.logger, adminID, models.AuditActionCatalogCreate, "zone", zone.ID, map[string]interface{}{"name": zone.Name}, ip, userAgent)
	return zone, nil
}

// Assign hands a zone to an active verifier.
func (s *ZoneService) Assign(ctx context.Context, adminID, zoneID string, req models.AssignZoneRequest, ip, userAgent string) (*models.Zone, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err, "invalid assignment")
	}
	ok, err := s.verifiers.IsActiveVerifier(ctx, req.WorkerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check verifier")
	}
	if !ok {
		return nil, fieldError("workerId", "must reference an active municipal worker")
	}
	if err := s.repo.Assign(ctx, zoneID, req.WorkerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "zone not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign zone")
	}
	s.cache.Invalidate(ctx, cachePatternZones)
	recordAudit(ctx, s.audit, s.logger, adminID, models.AuditActionZoneAssign, "zone", zoneID, map[string]interface{}{"worker_id": req.WorkerID}, ip, userAgent)
	return s.get(ctx, zoneID)
}

// RecordCollection attributes verified waste to every active zone whose radius contains the point.
func (s *ZoneService) RecordCollection(ctx context.Context, point models.GeoPoint, weightKg float64, at time.Time) error {
	zones, err := s.loadActive(ctx)
	if err != nil {
		return err
	}
	var ids []string
	for _, z := range zones {
		if z.Contains(point) {
			ids = append(ids, z.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	if err := s.repo.AddCollection(ctx, ids, weightKg, at); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, cachePatternZones)
	return nil
}

func (s *ZoneService) get(ctx context.Context, zoneID string) (*models.Zone, error) {
	zone, err := s.repo.GetByID(ctx, zoneID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "zone not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load zone")
	}
	return zone, nil
}
