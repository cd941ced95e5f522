package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Facility types as classified by the police administration.
const (
	FacilityTypeBasica    = "basica"
	FacilityTypeSectorial = "sectorial"
	FacilityTypeComisaria = "comisaria"
	FacilityTypeEspecial  = "especial"
)

// Facility work status values.
const (
	FacilityStatusPendiente  = "pendiente"
	FacilityStatusEnProceso  = "en_proceso"
	FacilityStatusCompletada = "completada"
	FacilityStatusSuspendida = "suspendida"
)

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
}

// Location is where a facility is, usually resolved through geocoding.
type Location struct {
	Department  string      `json:"department" validate:"required"`
	Province    string      `json:"province" validate:"required"`
	District    string      `json:"district" validate:"required"`
	Address     string      `json:"address" validate:"required"`
	Coordinates Coordinates `json:"coordinates"`
	PlaceID     string      `json:"place_id,omitempty"`
}

// FullAddress formats the location as "address, district, province, department".
func (l Location) FullAddress() string {
	return l.Address + ", " + l.District + ", " + l.Province + ", " + l.Department
}

// Facility is a managed site (a police station) that owns schedules.
// Stored in facilities.
type Facility struct {
	ID                 uuid.UUID       `json:"id"`
	Code               string          `json:"code" validate:"required,startswith=COM-,max=50"`
	Name               string          `json:"name" validate:"required,max=255"`
	Type               string          `json:"type" validate:"required,oneof=basica sectorial comisaria especial"`
	Status             string          `json:"status" validate:"omitempty,oneof=pendiente en_proceso completada suspendida"`
	Location           Location        `json:"location"`
	EquipmentBudget    decimal.Decimal `json:"equipment_budget"`
	MaintenanceBudget  decimal.Decimal `json:"maintenance_budget"`
	PhotoURL           string          `json:"photo_url,omitempty" validate:"omitempty,url"`
	IsDelayed          bool            `json:"is_delayed"`
	ScheduledStartDate *time.Time      `json:"scheduled_start_date,omitempty"`
	ScheduledEndDate   *time.Time      `json:"scheduled_end_date,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// TotalBudget is equipment plus maintenance budget.
func (f *Facility) TotalBudget() decimal.Decimal {
	return f.EquipmentBudget.Add(f.MaintenanceBudget)
}

// CanStartWork reports whether the facility is pending, has budget and a
// scheduled start date.
func (f *Facility) CanStartWork() bool {
	return f.Status == FacilityStatusPendiente &&
		f.TotalBudget().IsPositive() &&
		f.ScheduledStartDate != nil
}

// FacilityFilter narrows List results. Empty fields do not filter.
type FacilityFilter struct {
	Status     string
	Type       string
	Department string
	Name       string
}
