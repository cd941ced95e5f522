package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Change kinds reported by the version diff engine.
const (
	ChangeAdded    = "added"
	ChangeRemoved  = "removed"
	ChangeModified = "modified"
)

// Budget modification types. Every change record carries one; a confirmed
// version stores it with the monitor's justification.
const (
	// ModificationBindingDeductive replaces a line with a revised one.
	ModificationBindingDeductive = "deductivo_vinculante"
	// ModificationReduction drops a line from the contract.
	ModificationReduction = "reduccion_prestaciones"
	// ModificationIndependentAddition is new work not present before.
	ModificationIndependentAddition = "adicional_independiente"
)

// FieldChange describes one field that differs between two versions of a line.
type FieldChange struct {
	Field  string `json:"field"`
	Before string `json:"before"`
	After  string `json:"after"`
}

// String renders the change as "field: before → after".
func (c FieldChange) String() string {
	return c.Field + ": " + c.Before + " → " + c.After
}

// ChangeRecord is one added, removed or modified line. Added records only
// carry After, removed records only Before.
type ChangeRecord struct {
	Kind             string        `json:"kind"`
	Type             string        `json:"type"`
	HierarchicalCode string        `json:"hierarchical_code"`
	Before           *LineItem     `json:"before,omitempty"`
	After            *LineItem     `json:"after,omitempty"`
	Changes          []FieldChange `json:"changes,omitempty"`
	// Impact is after.total - before.total (missing side counts as zero).
	Impact decimal.Decimal `json:"impact"`
}

// DiffResult compares two line-item sets of the same facility.
type DiffResult struct {
	OldScheduleID *uuid.UUID      `json:"old_schedule_id,omitempty"`
	NewScheduleID *uuid.UUID      `json:"new_schedule_id,omitempty"`
	Added         []ChangeRecord  `json:"added"`
	Removed       []ChangeRecord  `json:"removed"`
	Modified      []ChangeRecord  `json:"modified"`
	OldTotal      decimal.Decimal `json:"old_total"`
	NewTotal      decimal.Decimal `json:"new_total"`
	Balance       decimal.Decimal `json:"balance"`
	IsBalanced    bool            `json:"is_balanced"`
	AddedTotal    decimal.Decimal `json:"added_total"`
	RemovedTotal  decimal.Decimal `json:"removed_total"`
	ModifiedDelta decimal.Decimal `json:"modified_delta"`
	Alerts        []string        `json:"alerts"`
}

// ChangeCount returns the number of reported changes.
func (d *DiffResult) ChangeCount() int {
	return len(d.Added) + len(d.Removed) + len(d.Modified)
}

// All returns every change record: modified, then removed, then added.
func (d *DiffResult) All() []ChangeRecord {
	out := make([]ChangeRecord, 0, d.ChangeCount())
	out = append(out, d.Modified...)
	out = append(out, d.Removed...)
	return append(out, d.Added...)
}

// ChangeConfirmation is a monitor's answer to one detected change.
type ChangeConfirmation struct {
	HierarchicalCode string `json:"hierarchical_code" validate:"required"`
	Type             string `json:"type" validate:"required,oneof=deductivo_vinculante reduccion_prestaciones adicional_independiente"`
	Justification    string `json:"justification" validate:"required_if=Confirmed true,max=2000"`
	Confirmed        bool   `json:"confirmed"`
}

// ConfirmedChange is a justified modification stored with the version that
// introduced it. Stored in schedule_changes.
type ConfirmedChange struct {
	ID                uuid.UUID       `json:"id"`
	ScheduleID        uuid.UUID       `json:"schedule_id"`
	Type              string          `json:"type"`
	HierarchicalCode  string          `json:"hierarchical_code"`
	DescriptionBefore string          `json:"description_before,omitempty"`
	DescriptionAfter  string          `json:"description_after,omitempty"`
	TotalBefore       decimal.Decimal `json:"total_before"`
	TotalAfter        decimal.Decimal `json:"total_after"`
	Impact            decimal.Decimal `json:"impact"`
	Justification     string          `json:"justification"`
	Monitor           string          `json:"monitor"`
	ConfirmedAt       time.Time       `json:"confirmed_at"`
}

// NewConfirmedChange records a detected change as justified by monitor.
func NewConfirmedChange(rec ChangeRecord, justification, monitor string, at time.Time) ConfirmedChange {
	c := ConfirmedChange{
		Type:             rec.Type,
		HierarchicalCode: rec.HierarchicalCode,
		TotalBefore:      decimal.Zero,
		TotalAfter:       decimal.Zero,
		Impact:           rec.Impact,
		Justification:    justification,
		Monitor:          monitor,
		ConfirmedAt:      at,
	}
	if rec.Before != nil {
		c.DescriptionBefore = rec.Before.Description
		c.TotalBefore = rec.Before.TotalPrice
	}
	if rec.After != nil {
		c.DescriptionAfter = rec.After.Description
		c.TotalAfter = rec.After.TotalPrice
	}
	return c
}
