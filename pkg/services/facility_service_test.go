package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nemaec/nemaec-engine/pkg/apperrors"
	"github.com/nemaec/nemaec-engine/pkg/models"
	"github.com/nemaec/nemaec-engine/pkg/repositories"
)

func newFacilityTestService() (FacilityService, *repositories.Store) {
	store := repositories.NewStore()
	return NewFacilityService(store.Facilities(), store.Schedules(), zap.NewNop()), store
}

func validFacility() *models.Facility {
	return &models.Facility{
		Code: " com-014 ",
		Name: "Comisaria San Borja",
		Type: models.FacilityTypeComisaria,
		Location: models.Location{
			Department:  "Lima",
			Province:    "Lima",
			District:    "San Borja",
			Address:     "Av. San Luis 2000",
			Coordinates: models.Coordinates{Lat: -12.1, Lng: -77.0},
		},
		EquipmentBudget:   decimal.NewFromInt(150000),
		MaintenanceBudget: decimal.NewFromInt(50000),
	}
}

func TestFacilityService_Create(t *testing.T) {
	svc, _ := newFacilityTestService()
	ctx := context.Background()

	f, err := svc.Create(ctx, validFacility())
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, f.ID)
	assert.Equal(t, "COM-014", f.Code, "code is trimmed and upper-cased")
	assert.Equal(t, models.FacilityStatusPendiente, f.Status)
	assert.True(t, decimal.NewFromInt(200000).Equal(f.TotalBudget()))

	got, err := svc.Get(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "Comisaria San Borja", got.Name)

	_, err = svc.Create(ctx, validFacility())
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestFacilityService_CreateValidation(t *testing.T) {
	svc, _ := newFacilityTestService()

	f := validFacility()
	f.Code = "X-1"
	f.Type = "cuartel"
	f.Location.District = ""
	f.Location.Coordinates.Lat = -120
	f.EquipmentBudget = decimal.NewFromInt(-1)
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, -1, 0)
	f.ScheduledStartDate = &start
	f.ScheduledEndDate = &end

	_, err := svc.Create(context.Background(), f)

	var verr *apperrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Messages, "code must start with COM-")
	assert.Contains(t, verr.Messages, "type must be one of: basica sectorial comisaria especial")
	assert.Contains(t, verr.Messages, "location.district is required")
	assert.Contains(t, verr.Messages, "location.coordinates.lat is invalid (gte)")
	assert.Contains(t, verr.Messages, "equipment_budget must not be negative")
	assert.Contains(t, verr.Messages, "scheduled_end_date is before scheduled_start_date")
	assert.Len(t, verr.Messages, 6)
}

func TestFacilityService_UpdateAndList(t *testing.T) {
	svc, _ := newFacilityTestService()
	ctx := context.Background()

	f, err := svc.Create(ctx, validFacility())
	require.NoError(t, err)

	f.Status = models.FacilityStatusEnProceso
	f.IsDelayed = true
	updated, err := svc.Update(ctx, f)
	require.NoError(t, err)
	assert.True(t, updated.IsDelayed)

	list, err := svc.List(ctx, models.FacilityFilter{Status: models.FacilityStatusEnProceso})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, f.ID, list[0].ID)

	missing := validFacility()
	missing.ID = uuid.New()
	_, err = svc.Update(ctx, missing)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	f.Status = "terminada"
	_, err = svc.Update(ctx, f)
	var verr *apperrors.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestFacilityService_Delete(t *testing.T) {
	svc, store := newFacilityTestService()
	ctx := context.Background()

	f, err := svc.Create(ctx, validFacility())
	require.NoError(t, err)

	require.NoError(t, store.Schedules().Save(ctx, &models.Schedule{FacilityID: f.ID, Version: 1, Name: "v1"}))
	assert.ErrorIs(t, svc.Delete(ctx, f.ID), apperrors.ErrConflict)

	other, err := svc.Create(ctx, func() *models.Facility {
		o := validFacility()
		o.Code = "COM-015"
		return o
	}())
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, other.ID))

	_, err = svc.Get(ctx, other.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, other.ID), apperrors.ErrNotFound)
}
