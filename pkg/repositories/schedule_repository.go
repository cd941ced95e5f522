package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nemaec/nemaec-engine/pkg/apperrors"
	"github.com/nemaec/nemaec-engine/pkg/database"
	"github.com/nemaec/nemaec-engine/pkg/models"
)

// ScheduleRepository persists imported schedule versions and their line items.
type ScheduleRepository interface {
	// Save stores a schedule with all of its lines and confirmed changes
	// atomically. A nil ID is assigned; child ids and ScheduleID are filled in.
	Save(ctx context.Context, schedule *models.Schedule) error
	// FindByID returns the schedule with its lines in import order and its
	// confirmed changes.
	FindByID(ctx context.Context, id uuid.UUID) (*models.Schedule, error)
	// FindByFacility returns every version of a facility without lines,
	// newest version first.
	FindByFacility(ctx context.Context, facilityID uuid.UUID) ([]*models.Schedule, error)
	// NextVersion returns the next free version number for a facility.
	NextVersion(ctx context.Context, facilityID uuid.UUID) (int, error)
	Archive(ctx context.Context, id uuid.UUID, at time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
	CountByFacility(ctx context.Context, facilityID uuid.UUID) (int, error)
}

type scheduleRepository struct {
	db *database.DB
}

// NewScheduleRepository creates a Postgres-backed ScheduleRepository.
func NewScheduleRepository(db *database.DB) ScheduleRepository {
	return &scheduleRepository{db: db}
}

var _ ScheduleRepository = (*scheduleRepository)(nil)

// ============================================================================
// Write Operations
// ============================================================================

func (r *scheduleRepository) Save(ctx context.Context, schedule *models.Schedule) error {
	if schedule.ID == uuid.Nil {
		schedule.ID = uuid.New()
	}
	if schedule.Status == "" {
		schedule.Status = models.ScheduleStatusActive
	}

	tx, err := r.db.Querier(ctx).Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO schedules (
			id, facility_id, version, name, source_file_name, imported_at,
			total_budget, total_line_count, project_start_date, project_end_date,
			status, archived_at, change_description, monitor
		) VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10, $11, $12, $13, $14)`

	_, err = tx.Exec(ctx, query,
		schedule.ID,
		schedule.FacilityID,
		schedule.Version,
		schedule.Name,
		schedule.SourceFileName,
		schedule.ImportedAt,
		schedule.TotalBudget.String(),
		schedule.TotalLineCount,
		schedule.ProjectStartDate,
		schedule.ProjectEndDate,
		schedule.Status,
		schedule.ArchivedAt,
		nullString(schedule.ChangeDescription),
		nullString(schedule.Monitor),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("schedule version %d for facility %s: %w", schedule.Version, schedule.FacilityID, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to insert schedule: %w", err)
	}

	lineQuery := `
		INSERT INTO schedule_line_items (
			id, schedule_id, position, internal_code, hierarchical_code, description,
			unit, quantity, unit_price, total_price, start_date, end_date,
			depth, parent_code, source_row
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9::numeric, $10::numeric, $11, $12, $13, $14, $15)`

	batch := &pgx.Batch{}
	for i, line := range schedule.Lines {
		if line.ID == uuid.Nil {
			line.ID = uuid.New()
		}
		line.ScheduleID = schedule.ID
		batch.Queue(lineQuery,
			line.ID, schedule.ID, i,
			line.InternalCode, line.HierarchicalCode, line.Description,
			line.Unit,
			line.Quantity.String(), line.UnitPrice.String(), line.TotalPrice.String(),
			line.StartDate, line.EndDate,
			line.Depth, nullString(line.ParentCode), line.SourceRow,
		)
	}

	changeQuery := `
		INSERT INTO schedule_changes (
			id, schedule_id, position, type, hierarchical_code,
			description_before, description_after, total_before, total_after,
			impact, justification, monitor, confirmed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9::numeric, $10::numeric, $11, $12, $13)`

	for i := range schedule.Changes {
		c := &schedule.Changes[i]
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		c.ScheduleID = schedule.ID
		batch.Queue(changeQuery,
			c.ID, schedule.ID, i, c.Type, c.HierarchicalCode,
			nullString(c.DescriptionBefore), nullString(c.DescriptionAfter),
			c.TotalBefore.String(), c.TotalAfter.String(),
			c.Impact.String(), c.Justification, c.Monitor, c.ConfirmedAt,
		)
	}

	if batch.Len() > 0 {
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("failed to insert schedule row %d: %w", i, err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("failed to insert schedule rows: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit schedule: %w", err)
	}
	return nil
}

func (r *scheduleRepository) Archive(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE schedules
		SET status = $2, archived_at = $3
		WHERE id = $1`

	result, err := r.db.Querier(ctx).Exec(ctx, query, id, models.ScheduleStatusArchived, at)
	if err != nil {
		return fmt.Errorf("failed to archive schedule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// Delete removes the schedule; its lines go with it through ON DELETE CASCADE.
func (r *scheduleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Querier(ctx).Exec(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// ============================================================================
// Read Operations
// ============================================================================

const scheduleColumns = `
	id, facility_id, version, name, source_file_name, imported_at,
	total_budget::text, total_line_count, project_start_date, project_end_date,
	status, archived_at, COALESCE(change_description, ''), COALESCE(monitor, '')`

func (r *scheduleRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Schedule, error) {
	q := r.db.Querier(ctx)

	row := q.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = $1`, id)
	schedule, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}

	query := `
		SELECT id, schedule_id, internal_code, hierarchical_code, description, unit,
		       quantity::text, unit_price::text, total_price::text, start_date, end_date,
		       depth, COALESCE(parent_code, ''), source_row
		FROM schedule_line_items
		WHERE schedule_id = $1
		ORDER BY position`

	rows, err := q.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query line items: %w", err)
	}
	defer rows.Close()

	schedule.Lines = make([]*models.LineItem, 0, schedule.TotalLineCount)
	for rows.Next() {
		line, err := scanLineItem(rows)
		if err != nil {
			return nil, err
		}
		schedule.Lines = append(schedule.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating line items: %w", err)
	}

	if schedule.Changes, err = r.findChanges(ctx, id); err != nil {
		return nil, err
	}

	return schedule, nil
}

func (r *scheduleRepository) findChanges(ctx context.Context, scheduleID uuid.UUID) ([]models.ConfirmedChange, error) {
	query := `
		SELECT id, schedule_id, type, hierarchical_code,
		       COALESCE(description_before, ''), COALESCE(description_after, ''),
		       total_before::text, total_after::text, impact::text,
		       justification, monitor, confirmed_at
		FROM schedule_changes
		WHERE schedule_id = $1
		ORDER BY position`

	rows, err := r.db.Querier(ctx).Query(ctx, query, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedule changes: %w", err)
	}
	defer rows.Close()

	var changes []models.ConfirmedChange
	for rows.Next() {
		var c models.ConfirmedChange
		var before, after, impact string
		if err := rows.Scan(
			&c.ID, &c.ScheduleID, &c.Type, &c.HierarchicalCode,
			&c.DescriptionBefore, &c.DescriptionAfter,
			&before, &after, &impact,
			&c.Justification, &c.Monitor, &c.ConfirmedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan schedule change: %w", err)
		}
		if c.TotalBefore, err = parseNumeric(before); err != nil {
			return nil, err
		}
		if c.TotalAfter, err = parseNumeric(after); err != nil {
			return nil, err
		}
		if c.Impact, err = parseNumeric(impact); err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedule changes: %w", err)
	}
	return changes, nil
}

func (r *scheduleRepository) FindByFacility(ctx context.Context, facilityID uuid.UUID) ([]*models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + `
		FROM schedules
		WHERE facility_id = $1
		ORDER BY version DESC, imported_at DESC`

	rows, err := r.db.Querier(ctx).Query(ctx, query, facilityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*models.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedules = append(schedules, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedules: %w", err)
	}

	return schedules, nil
}

func (r *scheduleRepository) NextVersion(ctx context.Context, facilityID uuid.UUID) (int, error) {
	var next int
	err := r.db.Querier(ctx).QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM schedules WHERE facility_id = $1`, facilityID,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to compute next version: %w", err)
	}
	return next, nil
}

func (r *scheduleRepository) CountByFacility(ctx context.Context, facilityID uuid.UUID) (int, error) {
	var count int
	err := r.db.Querier(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM schedules WHERE facility_id = $1`, facilityID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count schedules: %w", err)
	}
	return count, nil
}

// ============================================================================
// Helper Functions
// ============================================================================

func scanSchedule(row pgx.Row) (*models.Schedule, error) {
	var s models.Schedule
	var total string
	err := row.Scan(
		&s.ID, &s.FacilityID, &s.Version, &s.Name, &s.SourceFileName, &s.ImportedAt,
		&total, &s.TotalLineCount, &s.ProjectStartDate, &s.ProjectEndDate,
		&s.Status, &s.ArchivedAt, &s.ChangeDescription, &s.Monitor,
	)
	if err != nil {
		return nil, err
	}
	if s.TotalBudget, err = parseNumeric(total); err != nil {
		return nil, err
	}
	return &s, nil
}

func scanLineItem(row pgx.Row) (*models.LineItem, error) {
	var l models.LineItem
	var quantity, unitPrice, totalPrice string
	err := row.Scan(
		&l.ID, &l.ScheduleID, &l.InternalCode, &l.HierarchicalCode, &l.Description, &l.Unit,
		&quantity, &unitPrice, &totalPrice, &l.StartDate, &l.EndDate,
		&l.Depth, &l.ParentCode, &l.SourceRow,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan line item: %w", err)
	}
	if l.Quantity, err = parseNumeric(quantity); err != nil {
		return nil, err
	}
	if l.UnitPrice, err = parseNumeric(unitPrice); err != nil {
		return nil, err
	}
	if l.TotalPrice, err = parseNumeric(totalPrice); err != nil {
		return nil, err
	}
	return &l, nil
}
