package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nemaec/nemaec-engine/pkg/apperrors"
	"github.com/nemaec/nemaec-engine/pkg/models"
	"github.com/nemaec/nemaec-engine/pkg/repositories"
)

// FacilityService manages the facility registry.
type FacilityService interface {
	Create(ctx context.Context, facility *models.Facility) (*models.Facility, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Facility, error)
	List(ctx context.Context, filter models.FacilityFilter) ([]*models.Facility, error)
	Update(ctx context.Context, facility *models.Facility) (*models.Facility, error)
	// Delete removes a facility. Facilities that still own schedule
	// versions are refused with apperrors.ErrConflict.
	Delete(ctx context.Context, id uuid.UUID) error
}

type facilityService struct {
	facilities repositories.FacilityRepository
	schedules  repositories.ScheduleRepository
	validate   *validator.Validate
	logger     *zap.Logger
}

// NewFacilityService creates a new FacilityService.
func NewFacilityService(
	facilities repositories.FacilityRepository,
	schedules repositories.ScheduleRepository,
	logger *zap.Logger,
) FacilityService {
	return &facilityService{
		facilities: facilities,
		schedules:  schedules,
		validate:   newJSONValidator(),
		logger:     logger.Named("facility-service"),
	}
}

var _ FacilityService = (*facilityService)(nil)

// newJSONValidator reports fields by their JSON names.
func newJSONValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (s *facilityService) Create(ctx context.Context, facility *models.Facility) (*models.Facility, error) {
	facility.ID = uuid.Nil
	if err := s.check(facility); err != nil {
		return nil, err
	}
	if err := s.facilities.Create(ctx, facility); err != nil {
		return nil, wrapPersistence("create facility", err)
	}
	s.logger.Info("Created facility",
		zap.String("facility_id", facility.ID.String()),
		zap.String("code", facility.Code))
	return facility, nil
}

func (s *facilityService) Get(ctx context.Context, id uuid.UUID) (*models.Facility, error) {
	facility, err := s.facilities.GetByID(ctx, id)
	if err != nil {
		return nil, wrapPersistence("get facility", err)
	}
	return facility, nil
}

func (s *facilityService) List(ctx context.Context, filter models.FacilityFilter) ([]*models.Facility, error) {
	facilities, err := s.facilities.List(ctx, filter)
	if err != nil {
		return nil, wrapPersistence("list facilities", err)
	}
	return facilities, nil
}

func (s *facilityService) Update(ctx context.Context, facility *models.Facility) (*models.Facility, error) {
	if err := s.check(facility); err != nil {
		return nil, err
	}
	if err := s.facilities.Update(ctx, facility); err != nil {
		return nil, wrapPersistence("update facility", err)
	}
	return facility, nil
}

func (s *facilityService) Delete(ctx context.Context, id uuid.UUID) error {
	count, err := s.schedules.CountByFacility(ctx, id)
	if err != nil {
		return wrapPersistence("count schedules", err)
	}
	if count > 0 {
		return fmt.Errorf("facility has %d schedule versions: %w", count, apperrors.ErrConflict)
	}
	if err := s.facilities.Delete(ctx, id); err != nil {
		return wrapPersistence("delete facility", err)
	}
	s.logger.Info("Deleted facility", zap.String("facility_id", id.String()))
	return nil
}

// check normalizes and validates a facility. Every problem is reported at once
// as a *apperrors.ValidationError.
func (s *facilityService) check(f *models.Facility) error {
	f.Code = strings.ToUpper(strings.TrimSpace(f.Code))
	f.Name = strings.TrimSpace(f.Name)
	if f.Status == "" {
		f.Status = models.FacilityStatusPendiente
	}

	messages, err := fieldMessages(s.validate, "facility", f)
	if err != nil {
		return err
	}
	if f.EquipmentBudget.IsNegative() {
		messages = append(messages, "equipment_budget must not be negative")
	}
	if f.MaintenanceBudget.IsNegative() {
		messages = append(messages, "maintenance_budget must not be negative")
	}
	if f.ScheduledStartDate != nil && f.ScheduledEndDate != nil && f.ScheduledEndDate.Before(*f.ScheduledStartDate) {
		messages = append(messages, "scheduled_end_date is before scheduled_start_date")
	}

	if len(messages) > 0 {
		return apperrors.NewValidationError(messages)
	}
	return nil
}

// fieldMessages runs struct validation and renders each failed field.
func fieldMessages(v *validator.Validate, what string, target any) ([]string, error) {
	err := v.Struct(target)
	if err == nil {
		return nil, nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, fmt.Errorf("validate %s: %w", what, err)
	}
	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		messages = append(messages, fieldMessage(fe))
	}
	return messages, nil
}

// validateStruct is fieldMessages for callers with no checks of their own.
func validateStruct(v *validator.Validate, what string, target any) error {
	messages, err := fieldMessages(v, what, target)
	if err != nil {
		return err
	}
	if len(messages) > 0 {
		return apperrors.NewValidationError(messages)
	}
	return nil
}

// fieldMessage names the field by its JSON path below the validated struct.
func fieldMessage(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required", "required_if":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "startswith":
		return fmt.Sprintf("%s must start with %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid (%s)", field, fe.Tag())
	}
}
