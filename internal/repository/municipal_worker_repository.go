package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/trash2cash/trash2cash-api/internal/models"
)

// WorkerRepository reads verifier profiles.
type WorkerRepository struct {
	db *sqlx.DB
}

// NewWorkerRepository constructs the repository.
func NewWorkerRepository(db *sqlx.DB) *WorkerRepository {
	return &WorkerRepository{db: db}
}

// FindByUserID returns the profile linked to a MUNICIPAL_WORKER user.
func (r *WorkerRepository) FindByUserID(ctx context.Context, userID string) (*models.MunicipalWorker, error) {
	const query = `SELECT user_id, employee_id, department, designation, assigned_areas, verification_count, is_active, created_at
FROM municipal_workers WHERE user_id = $1`
	var worker models.MunicipalWorker
	if err := r.db.GetContext(ctx, &worker, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find municipal worker: %w", err)
	}
	return &worker, nil
}

// IsActiveVerifier reports whether userID may decide submissions.
func (r *WorkerRepository) IsActiveVerifier(ctx context.Context, userID string) (bool, error) {
	const query = `SELECT EXISTS (
	SELECT 1 FROM users u JOIN municipal_workers mw ON mw.user_id = u.id
	WHERE u.id = $1 AND u.role = 'MUNICIPAL_WORKER' AND u.is_verified AND u.active AND mw.is_active)`
	var ok bool
	if err := r.db.GetContext(ctx, &ok, query, userID); err != nil {
		return false, fmt.Errorf("check verifier: %w", err)
	}
	return ok, nil
}

// ListCandidates returns every assignable verifier with the centres of its assigned zones.
func (r *WorkerRepository) ListCandidates(ctx context.Context) ([]models.WorkerCandidate, error) {
	const workersQuery = `SELECT u.id, u.name FROM users u JOIN municipal_workers mw ON mw.user_id = u.id
WHERE u.role = 'MUNICIPAL_WORKER' AND u.is_verified AND u.active AND mw.is_active
ORDER BY u.id`
	var rows []struct {
		ID   string `db:"id"`
		Name string `db:"name"`
	}
	if err := r.db.SelectContext(ctx, &rows, workersQuery); err != nil {
		return nil, fmt.Errorf("list verifier candidates: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	const zonesQuery = `SELECT assigned_municipal_id, latitude, longitude FROM zones
WHERE assigned_municipal_id IS NOT NULL AND is_active`
	var zones []struct {
		WorkerID  string  `db:"assigned_municipal_id"`
		Latitude  float64 `db:"latitude"`
		Longitude float64 `db:"longitude"`
	}
	if err := r.db.SelectContext(ctx, &zones, zonesQuery); err != nil {
		return nil, fmt.Errorf("list verifier zones: %w", err)
	}
	byWorker := make(map[string][]models.GeoPoint, len(rows))
	for _, z := range zones {
		byWorker[z.WorkerID] = append(byWorker[z.WorkerID], models.GeoPoint{Latitude: z.Latitude, Longitude: z.Longitude})
	}

	candidates := make([]models.WorkerCandidate, 0, len(rows))
	for _, row := range rows {
		candidates = append(candidates, models.WorkerCandidate{UserID: row.ID, Name: row.Name, Zones: byWorker[row.ID]})
	}
	return candidates, nil
}
