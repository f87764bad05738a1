package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/trash2cash/trash2cash-api/internal/models"
)

const userColumns = `id, email, password_hash, name, phone, role, is_verified, active, total_points, total_waste_collected, total_co2_saved, last_login_at, created_at, updated_at`

// UserRepository provides database access for accounts.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmailAndRole returns the account registered for email in role.
func (r *UserRepository) FindByEmailAndRole(ctx context.Context, email string, role models.UserRole) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1) AND role = $2 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email, role); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// Create inserts a user, and for municipal workers the verifier profile, in one transaction.
func (r *UserRepository) Create(ctx context.Context, user *models.User, worker *models.MunicipalWorker) (err error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create user: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertUser = `INSERT INTO users (id, email, password_hash, name, phone, role, is_verified, active, total_points, total_waste_collected, total_co2_saved, created_at, updated_at)
VALUES (:id, :email, :password_hash, :name, :phone, :role, :is_verified, :active, 0, 0, 0, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insertUser, user); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create user: %w", err)
	}

	if worker != nil {
		worker.UserID = user.ID
		worker.CreatedAt = now
		const insertWorker = `INSERT INTO municipal_workers (user_id, employee_id, department, designation, assigned_areas, verification_count, is_active, created_at)
VALUES (:user_id, :employee_id, :department, :designation, :assigned_areas, 0, :is_active, :created_at)`
		if _, err = tx.NamedExecContext(ctx, insertWorker, worker); err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("create municipal worker: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create user: %w", err)
	}
	return nil
}

// UpdateLastLogin updates the last_login_at timestamp for a user.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE users SET last_login_at = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts, ts); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// UpdateProfile rewrites the contact details of a user. An email already taken in the same role yields ErrDuplicate.
func (r *UserRepository) UpdateProfile(ctx context.Context, user *models.User) error {
	const query = `UPDATE users SET name = :name, email = :email, phone = :phone, updated_at = :updated_at WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, user)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("update profile: %w", err)
	}
	return requireRow(result, "update profile")
}

// UpdatePassword updates the stored password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, passwordHash, updatedAt)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return requireRow(result, "update password")
}

// ApproveWorker verifies a municipal worker account and activates its profile.
func (r *UserRepository) ApproveWorker(ctx context.Context, userID string, at time.Time) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin approve worker: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const approveUser = `UPDATE users SET is_verified = TRUE, updated_at = $2 WHERE id = $1 AND role = 'MUNICIPAL_WORKER'`
	result, err := tx.ExecContext(ctx, approveUser, userID, at)
	if err != nil {
		return fmt.Errorf("approve worker user: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check approve worker rows: %w", err)
	}
	if rows == 0 {
		err = sql.ErrNoRows
		return err
	}

	const activateProfile = `UPDATE municipal_workers SET is_active = TRUE WHERE user_id = $1`
	if _, err = tx.ExecContext(ctx, activateProfile, userID); err != nil {
		return fmt.Errorf("activate worker profile: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit approve worker: %w", err)
	}
	return nil
}

// ListPendingWorkers returns municipal workers awaiting approval, oldest first.
func (r *UserRepository) ListPendingWorkers(ctx context.Context) ([]models.PendingWorker, error) {
	const query = `SELECT u.id AS user_id, u.name, u.email, u.phone, mw.employee_id, mw.department, mw.designation, u.created_at
FROM users u JOIN municipal_workers mw ON mw.user_id = u.id
WHERE u.role = 'MUNICIPAL_WORKER' AND u.is_verified = FALSE
ORDER BY u.created_at ASC`
	var workers []models.PendingWorker
	if err := r.db.SelectContext(ctx, &workers, query); err != nil {
		return nil, fmt.Errorf("list pending workers: %w", err)
	}
	return workers, nil
}

// List returns users matching the filter with the total count.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	var conditions []string
	var args []interface{}
	if filter.Role != nil {
		args = append(args, *filter.Role)
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)))
	}
	if filter.IsVerified != nil {
		args = append(args, *filter.IsVerified)
		conditions = append(conditions, fmt.Sprintf("is_verified = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	listQuery := fmt.Sprintf("SELECT %s FROM users%s ORDER BY created_at DESC LIMIT %d OFFSET %d", userColumns, where, limit, offset)
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM users"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	return users, total, nil
}
