package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nemaec/nemaec-engine/pkg/apperrors"
	"github.com/nemaec/nemaec-engine/pkg/database"
	"github.com/nemaec/nemaec-engine/pkg/models"
)

// FacilityRepository provides data access for facilities.
type FacilityRepository interface {
	Create(ctx context.Context, facility *models.Facility) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Facility, error)
	GetByCode(ctx context.Context, code string) (*models.Facility, error)
	List(ctx context.Context, filter models.FacilityFilter) ([]*models.Facility, error)
	Update(ctx context.Context, facility *models.Facility) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type facilityRepository struct {
	db *database.DB
}

// NewFacilityRepository creates a Postgres-backed FacilityRepository.
func NewFacilityRepository(db *database.DB) FacilityRepository {
	return &facilityRepository{db: db}
}

var _ FacilityRepository = (*facilityRepository)(nil)

const facilityColumns = `
	id, code, name, type, status, department, province, district, address,
	lat, lng, COALESCE(place_id, ''), equipment_budget::text, maintenance_budget::text,
	COALESCE(photo_url, ''), is_delayed, scheduled_start_date, scheduled_end_date,
	created_at, updated_at`

// ============================================================================
// CRUD Operations
// ============================================================================

func (r *facilityRepository) Create(ctx context.Context, f *models.Facility) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	now := time.Now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now

	query := `
		INSERT INTO facilities (
			id, code, name, type, status, department, province, district, address,
			lat, lng, place_id, equipment_budget, maintenance_budget, photo_url,
			is_delayed, scheduled_start_date, scheduled_end_date, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::numeric, $14::numeric,
		          $15, $16, $17, $18, $19, $20)`

	_, err := r.db.Querier(ctx).Exec(ctx, query,
		f.ID, f.Code, f.Name, f.Type, f.Status,
		f.Location.Department, f.Location.Province, f.Location.District, f.Location.Address,
		f.Location.Coordinates.Lat, f.Location.Coordinates.Lng, nullString(f.Location.PlaceID),
		f.EquipmentBudget.String(), f.MaintenanceBudget.String(), nullString(f.PhotoURL),
		f.IsDelayed, f.ScheduledStartDate, f.ScheduledEndDate, f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("facility code %s: %w", f.Code, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to create facility: %w", err)
	}
	return nil
}

func (r *facilityRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Facility, error) {
	row := r.db.Querier(ctx).QueryRow(ctx, `SELECT `+facilityColumns+` FROM facilities WHERE id = $1`, id)
	f, err := scanFacility(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get facility: %w", err)
	}
	return f, nil
}

func (r *facilityRepository) GetByCode(ctx context.Context, code string) (*models.Facility, error) {
	row := r.db.Querier(ctx).QueryRow(ctx, `SELECT `+facilityColumns+` FROM facilities WHERE code = $1`, code)
	f, err := scanFacility(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get facility by code: %w", err)
	}
	return f, nil
}

func (r *facilityRepository) List(ctx context.Context, filter models.FacilityFilter) ([]*models.Facility, error) {
	var conditions []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.Type != "" {
		add("type = $%d", filter.Type)
	}
	if filter.Department != "" {
		add("LOWER(department) = LOWER($%d)", filter.Department)
	}
	if filter.Name != "" {
		add("name ILIKE '%%' || $%d || '%%'", filter.Name)
	}

	query := `SELECT ` + facilityColumns + ` FROM facilities`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY code`

	rows, err := r.db.Querier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query facilities: %w", err)
	}
	defer rows.Close()

	facilities := make([]*models.Facility, 0)
	for rows.Next() {
		f, err := scanFacility(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan facility: %w", err)
		}
		facilities = append(facilities, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating facilities: %w", err)
	}
	return facilities, nil
}

func (r *facilityRepository) Update(ctx context.Context, f *models.Facility) error {
	f.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE facilities
		SET code = $2, name = $3, type = $4, status = $5, department = $6, province = $7,
		    district = $8, address = $9, lat = $10, lng = $11, place_id = $12,
		    equipment_budget = $13::numeric, maintenance_budget = $14::numeric, photo_url = $15,
		    is_delayed = $16, scheduled_start_date = $17, scheduled_end_date = $18, updated_at = $19
		WHERE id = $1
		RETURNING created_at`

	err := r.db.Querier(ctx).QueryRow(ctx, query,
		f.ID, f.Code, f.Name, f.Type, f.Status,
		f.Location.Department, f.Location.Province, f.Location.District, f.Location.Address,
		f.Location.Coordinates.Lat, f.Location.Coordinates.Lng, nullString(f.Location.PlaceID),
		f.EquipmentBudget.String(), f.MaintenanceBudget.String(), nullString(f.PhotoURL),
		f.IsDelayed, f.ScheduledStartDate, f.ScheduledEndDate, f.UpdatedAt,
	).Scan(&f.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrNotFound
		}
		if isUniqueViolation(err) {
			return fmt.Errorf("facility code %s: %w", f.Code, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to update facility: %w", err)
	}
	return nil
}

// Delete removes a facility. Facilities that still own schedules are
// protected by the foreign key and report ErrConflict.
func (r *facilityRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Querier(ctx).Exec(ctx, `DELETE FROM facilities WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("facility %s has schedules: %w", id, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to delete facility: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// ============================================================================
// Helper Functions
// ============================================================================

func scanFacility(row pgx.Row) (*models.Facility, error) {
	var f models.Facility
	var equipment, maintenance string
	err := row.Scan(
		&f.ID, &f.Code, &f.Name, &f.Type, &f.Status,
		&f.Location.Department, &f.Location.Province, &f.Location.District, &f.Location.Address,
		&f.Location.Coordinates.Lat, &f.Location.Coordinates.Lng, &f.Location.PlaceID,
		&equipment, &maintenance, &f.PhotoURL, &f.IsDelayed,
		&f.ScheduledStartDate, &f.ScheduledEndDate, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if f.EquipmentBudget, err = parseNumeric(equipment); err != nil {
		return nil, err
	}
	if f.MaintenanceBudget, err = parseNumeric(maintenance); err != nil {
		return nil, err
	}
	return &f, nil
}
