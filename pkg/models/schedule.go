package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultUnit is used when a spreadsheet row has no unit of measure.
const DefaultUnit = "UND"

// Schedule status values. "Superseded" is not stored: an active schedule
// that is not the latest version of its facility is superseded.
const (
	ScheduleStatusActive   = "active"
	ScheduleStatusArchived = "archived"
)

// Derived version states returned by ListVersions.
const (
	VersionStateCurrent    = "current"
	VersionStateSuperseded = "superseded"
	VersionStateArchived   = "archived"
)

// LineItem is one row of a valorized schedule (a "partida").
// Stored in schedule_line_items; immutable once its schedule is confirmed.
type LineItem struct {
	ID               uuid.UUID       `json:"id"`
	ScheduleID       uuid.UUID       `json:"schedule_id"`
	InternalCode     string          `json:"internal_code"`
	HierarchicalCode string          `json:"hierarchical_code"`
	Description      string          `json:"description"`
	Unit             string          `json:"unit"`
	Quantity         decimal.Decimal `json:"quantity"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	TotalPrice       decimal.Decimal `json:"total_price"`
	StartDate        *time.Time      `json:"start_date,omitempty"`
	EndDate          *time.Time      `json:"end_date,omitempty"`
	Depth            int             `json:"depth"`
	ParentCode       string          `json:"parent_code,omitempty"`
	SourceRow        int             `json:"source_row,omitempty"`
}

// IsScheduled reports whether the line has both dates. Lines without dates
// are shown as "not scheduled" rather than rejected on display paths.
func (l *LineItem) IsScheduled() bool {
	return l.StartDate != nil && l.EndDate != nil
}

// Duration returns EndDate - StartDate, or zero when the line is not scheduled.
func (l *LineItem) Duration() time.Duration {
	if !l.IsScheduled() {
		return 0
	}
	return l.EndDate.Sub(*l.StartDate)
}

// Schedule is one imported version of a facility's valorized schedule
// (a "cronograma valorizado"). Stored in schedules.
type Schedule struct {
	ID               uuid.UUID       `json:"id"`
	FacilityID       uuid.UUID       `json:"facility_id"`
	Version          int             `json:"version"`
	Name             string          `json:"name"`
	SourceFileName   string          `json:"source_file_name"`
	ImportedAt       time.Time       `json:"imported_at"`
	TotalBudget      decimal.Decimal `json:"total_budget"`
	TotalLineCount   int             `json:"total_line_count"`
	ProjectStartDate *time.Time      `json:"project_start_date,omitempty"`
	ProjectEndDate   *time.Time      `json:"project_end_date,omitempty"`
	Status           string          `json:"status"`
	ArchivedAt       *time.Time      `json:"archived_at,omitempty"`
	Lines            []*LineItem     `json:"lines,omitempty"`

	// Set only on versions stored through change confirmation.
	ChangeDescription string            `json:"change_description,omitempty"`
	Monitor           string            `json:"monitor,omitempty"`
	Changes           []ConfirmedChange `json:"changes,omitempty"`
}

// IsArchived reports whether the schedule was explicitly archived.
func (s *Schedule) IsArchived() bool {
	return s.Status == ScheduleStatusArchived
}

// ScheduleVersion is a list entry for a facility's version history.
type ScheduleVersion struct {
	*Schedule
	State string `json:"state"`
}

// ScheduleStats summarizes one schedule for the dashboard.
type ScheduleStats struct {
	ScheduleID          uuid.UUID       `json:"schedule_id"`
	TotalBudget         decimal.Decimal `json:"total_budget"`
	TotalLineCount      int             `json:"total_line_count"`
	CountsByDepth       map[int]int     `json:"counts_by_depth"`
	DurationDays        int             `json:"duration_days"`
	MostExpensiveLine   *LineItem       `json:"most_expensive_line,omitempty"`
	LongestDurationLine *LineItem       `json:"longest_duration_line,omitempty"`
}

// LineFilter narrows SearchLines results. Zero-valued fields do not filter;
// all set fields must match.
type LineFilter struct {
	Code        string           `json:"code,omitempty"`
	Description string           `json:"description,omitempty"`
	Depth       int              `json:"depth,omitempty"`
	From        *time.Time       `json:"from,omitempty"`
	To          *time.Time       `json:"to,omitempty"`
	MinCost     *decimal.Decimal `json:"min_cost,omitempty"`
	MaxCost     *decimal.Decimal `json:"max_cost,omitempty"`
}

// TreeNode is a display row of the schedule tree with its rolled-up total.
type TreeNode struct {
	*LineItem
	DisplayTotal decimal.Decimal `json:"display_total"`
	HasChildren  bool            `json:"has_children"`
	RolledUp     bool            `json:"rolled_up"`
}
