package repositories

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nemaec/nemaec-engine/pkg/apperrors"
	"github.com/nemaec/nemaec-engine/pkg/models"
)

// Store is an in-memory backend for both repositories, used with
// storage.driver=memory and in tests. Values are copied on the way in and
// out so callers never share state with the store.
type Store struct {
	mu         sync.RWMutex
	facilities map[uuid.UUID]*models.Facility
	schedules  map[uuid.UUID]*models.Schedule
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		facilities: make(map[uuid.UUID]*models.Facility),
		schedules:  make(map[uuid.UUID]*models.Schedule),
	}
}

// Facilities returns a FacilityRepository over the store.
func (s *Store) Facilities() FacilityRepository {
	return &memoryFacilityRepository{store: s}
}

// Schedules returns a ScheduleRepository over the store.
func (s *Store) Schedules() ScheduleRepository {
	return &memoryScheduleRepository{store: s}
}

// ============================================================================
// Facilities
// ============================================================================

type memoryFacilityRepository struct {
	store *Store
}

var _ FacilityRepository = (*memoryFacilityRepository)(nil)

func (r *memoryFacilityRepository) Create(_ context.Context, f *models.Facility) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if r.store.codeTaken(f.Code, uuid.Nil) {
		return fmt.Errorf("facility code %s: %w", f.Code, apperrors.ErrConflict)
	}
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	now := time.Now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now

	stored := *f
	r.store.facilities[f.ID] = &stored
	return nil
}

func (r *memoryFacilityRepository) GetByID(_ context.Context, id uuid.UUID) (*models.Facility, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	f, ok := r.store.facilities[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	out := *f
	return &out, nil
}

func (r *memoryFacilityRepository) GetByCode(_ context.Context, code string) (*models.Facility, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	for _, f := range r.store.facilities {
		if f.Code == code {
			out := *f
			return &out, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *memoryFacilityRepository) List(_ context.Context, filter models.FacilityFilter) ([]*models.Facility, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	name := strings.ToLower(filter.Name)
	out := make([]*models.Facility, 0)
	for _, f := range r.store.facilities {
		if filter.Status != "" && f.Status != filter.Status {
			continue
		}
		if filter.Type != "" && f.Type != filter.Type {
			continue
		}
		if filter.Department != "" && !strings.EqualFold(f.Location.Department, filter.Department) {
			continue
		}
		if name != "" && !strings.Contains(strings.ToLower(f.Name), name) {
			continue
		}
		c := *f
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r *memoryFacilityRepository) Update(_ context.Context, f *models.Facility) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	existing, ok := r.store.facilities[f.ID]
	if !ok {
		return apperrors.ErrNotFound
	}
	if r.store.codeTaken(f.Code, f.ID) {
		return fmt.Errorf("facility code %s: %w", f.Code, apperrors.ErrConflict)
	}
	f.CreatedAt = existing.CreatedAt
	f.UpdatedAt = time.Now().UTC()

	stored := *f
	r.store.facilities[f.ID] = &stored
	return nil
}

func (r *memoryFacilityRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.facilities[id]; !ok {
		return apperrors.ErrNotFound
	}
	for _, s := range r.store.schedules {
		if s.FacilityID == id {
			return fmt.Errorf("facility %s has schedules: %w", id, apperrors.ErrConflict)
		}
	}
	delete(r.store.facilities, id)
	return nil
}

// codeTaken reports whether another facility than self uses code.
// Callers hold the lock.
func (s *Store) codeTaken(code string, self uuid.UUID) bool {
	for id, f := range s.facilities {
		if id != self && f.Code == code {
			return true
		}
	}
	return false
}

// ============================================================================
// Schedules
// ============================================================================

type memoryScheduleRepository struct {
	store *Store
}

var _ ScheduleRepository = (*memoryScheduleRepository)(nil)

func (r *memoryScheduleRepository) Save(_ context.Context, schedule *models.Schedule) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, s := range r.store.schedules {
		if s.FacilityID == schedule.FacilityID && s.Version == schedule.Version {
			return fmt.Errorf("schedule version %d for facility %s: %w", schedule.Version, schedule.FacilityID, apperrors.ErrConflict)
		}
	}
	if schedule.ID == uuid.Nil {
		schedule.ID = uuid.New()
	}
	if schedule.Status == "" {
		schedule.Status = models.ScheduleStatusActive
	}
	for _, line := range schedule.Lines {
		if line.ID == uuid.Nil {
			line.ID = uuid.New()
		}
		line.ScheduleID = schedule.ID
	}
	for i := range schedule.Changes {
		if schedule.Changes[i].ID == uuid.Nil {
			schedule.Changes[i].ID = uuid.New()
		}
		schedule.Changes[i].ScheduleID = schedule.ID
	}

	r.store.schedules[schedule.ID] = copySchedule(schedule, true)
	return nil
}

func (r *memoryScheduleRepository) FindByID(_ context.Context, id uuid.UUID) (*models.Schedule, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	s, ok := r.store.schedules[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return copySchedule(s, true), nil
}

func (r *memoryScheduleRepository) FindByFacility(_ context.Context, facilityID uuid.UUID) ([]*models.Schedule, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*models.Schedule
	for _, s := range r.store.schedules {
		if s.FacilityID == facilityID {
			out = append(out, copySchedule(s, false))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Version != out[j].Version {
			return out[i].Version > out[j].Version
		}
		return out[i].ImportedAt.After(out[j].ImportedAt)
	})
	return out, nil
}

func (r *memoryScheduleRepository) NextVersion(_ context.Context, facilityID uuid.UUID) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	next := 1
	for _, s := range r.store.schedules {
		if s.FacilityID == facilityID && s.Version >= next {
			next = s.Version + 1
		}
	}
	return next, nil
}

func (r *memoryScheduleRepository) Archive(_ context.Context, id uuid.UUID, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	s, ok := r.store.schedules[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	s.Status = models.ScheduleStatusArchived
	s.ArchivedAt = &at
	return nil
}

func (r *memoryScheduleRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.schedules[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(r.store.schedules, id)
	return nil
}

func (r *memoryScheduleRepository) CountByFacility(_ context.Context, facilityID uuid.UUID) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	count := 0
	for _, s := range r.store.schedules {
		if s.FacilityID == facilityID {
			count++
		}
	}
	return count, nil
}

func copySchedule(s *models.Schedule, withLines bool) *models.Schedule {
	out := *s
	out.Lines = nil
	out.Changes = nil
	if withLines {
		out.Changes = append([]models.ConfirmedChange(nil), s.Changes...)
		out.Lines = make([]*models.LineItem, len(s.Lines))
		for i, line := range s.Lines {
			l := *line
			out.Lines[i] = &l
		}
	}
	return &out
}
