package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/trash2cash/trash2cash-api/internal/models"
)

const zoneColumns = `id, name, latitude, longitude, radius_meters, address, city, state, pincode, adopted_by_citizen_id,
	assigned_municipal_id, waste_level, last_cleaned, total_submissions, total_waste_collected, description, is_active, created_at`

// ZoneRepository persists cleanup zones.
type ZoneRepository struct {
	db *sqlx.DB
}

// NewZoneRepository constructs the repository.
func NewZoneRepository(db *sqlx.DB) *ZoneRepository {
	return &ZoneRepository{db: db}
}

// ListActive returns all active zones ordered by name.
func (r *ZoneRepository) ListActive(ctx context.Context) ([]models.Zone, error) {
	query := `SELECT ` + zoneColumns + ` FROM zones WHERE is_active ORDER BY name`
	var zones []models.Zone
	if err := r.db.SelectContext(ctx, &zones, query); err != nil {
		return nil, fmt.Errorf("list zones: %w", err)
	}
	return zones, nil
}

// ListAdoptedBy returns zones adopted by a citizen.
func (r *ZoneRepository) ListAdoptedBy(ctx context.Context, citizenID string) ([]models.Zone, error) {
	query := `SELECT ` + zoneColumns + ` FROM zones WHERE adopted_by_citizen_id = $1 ORDER BY name`
	var zones []models.Zone
	if err := r.db.SelectContext(ctx, &zones, query, citizenID); err != nil {
		return nil, fmt.Errorf("list adopted zones: %w", err)
	}
	return zones, nil
}

// ListAssignedTo returns zones assigned to a municipal worker.
func (r *ZoneRepository) ListAssignedTo(ctx context.Context, workerID string) ([]models.Zone, error) {
	query := `SELECT ` + zoneColumns + ` FROM zones WHERE assigned_municipal_id = $1 ORDER BY name`
	var zones []models.Zone
	if err := r.db.SelectContext(ctx, &zones, query, workerID); err != nil {
		return nil, fmt.Errorf("list assigned zones: %w", err)
	}
	return zones, nil
}

// TopByVolume returns the zones with the most collected waste.
func (r *ZoneRepository) TopByVolume(ctx context.Context, limit int) ([]models.Zone, error) {
	query := `SELECT ` + zoneColumns + ` FROM zones WHERE is_active ORDER BY total_waste_collected DESC, name LIMIT $1`
	var zones []models.Zone
	if err := r.db.SelectContext(ctx, &zones, query, limit); err != nil {
		return nil, fmt.Errorf("list zone hotspots: %w", err)
	}
	return zones, nil
}

// GetByID fetches a zone.
func (r *ZoneRepository) GetByID(ctx context.Context, id string) (*models.Zone, error) {
	query := `SELECT ` + zoneColumns + ` FROM zones WHERE id = $1`
	var zone models.Zone
	if err := r.db.GetContext(ctx, &zone, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get zone: %w", err)
	}
	return &zone, nil
}

// Create inserts a zone. ON CONFLICT keeps seeding idempotent.
func (r *ZoneRepository) Create(ctx context.Context, zone *models.Zone) error {
	if zone.ID == "" {
		zone.ID = uuid.NewString()
	}
	if zone.CreatedAt.IsZero() {
		zone.CreatedAt = time.Now().UTC()
	}
	if zone.WasteLevel == "" {
		zone.WasteLevel = models.WasteLevelMedium
	}
	const query = `INSERT INTO zones (` + zoneColumns + `)
VALUES (:id, :name, :latitude, :longitude, :radius_meters, :address, :city, :state, :pincode, :adopted_by_citizen_id,
	:assigned_municipal_id, :waste_level, :last_cleaned, :total_submissions, :total_waste_collected, :description, :is_active, :created_at)
ON CONFLICT (id) DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, query, zone); err != nil {
		return fmt.Errorf("create zone: %w", err)
	}
	return nil
}

// Adopt claims an unadopted zone for a citizen. The claim succeeds at most once per zone;
// a lost race returns ErrAlreadyClaimed and a missing zone sql.ErrNoRows.
func (r *ZoneRepository) Adopt(ctx context.Context, zoneID, citizenID string) error {
	const query = `UPDATE zones SET adopted_by_citizen_id = $2 WHERE id = $1 AND is_active AND adopted_by_citizen_id IS NULL`
	result, err := r.db.ExecContext(ctx, query, zoneID, citizenID)
	if err != nil {
		return fmt.Errorf("adopt zone: %w", err)
	}
	if err := requireRow(result, "adopt zone"); err == nil {
		return nil
	} else if err != sql.ErrNoRows {
		return err
	}

	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM zones WHERE id = $1 AND is_active)`, zoneID); err != nil {
		return fmt.Errorf("check zone: %w", err)
	}
	if !exists {
		return sql.ErrNoRows
	}
	return ErrAlreadyClaimed
}

// Assign hands a zone to a municipal worker.
func (r *ZoneRepository) Assign(ctx context.Context, zoneID, workerID string) error {
	const query = `UPDATE zones SET assigned_municipal_id = $2 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, zoneID, workerID)
	if err != nil {
		return fmt.Errorf("assign zone: %w", err)
	}
	if err := requireRow(result, "assign zone"); err != nil {
		return err
	}

	const areas = `UPDATE municipal_workers SET assigned_areas = array_append(array_remove(assigned_areas, $2), $2) WHERE user_id = $1`
	if _, err := r.db.ExecContext(ctx, areas, workerID, zoneID); err != nil {
		return fmt.Errorf("record worker area: %w", err)
	}
	return nil
}

// AddCollection attributes verified waste to zones.
func (r *ZoneRepository) AddCollection(ctx context.Context, zoneIDs []string, weightKg float64, at time.Time) error {
	if len(zoneIDs) == 0 {
		return nil
	}
	const query = `UPDATE zones SET total_submissions = total_submissions + 1,
	total_waste_collected = total_waste_collected + $2, last_cleaned = $3 WHERE id = ANY($1)`
	if _, err := r.db.ExecContext(ctx, query, pq.Array(zoneIDs), weightKg, at); err != nil {
		return fmt.Errorf("add zone collection: %w", err)
	}
	return nil
}
