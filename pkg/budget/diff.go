package budget

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/nemaec/nemaec-engine/pkg/models"
)

// Compared line fields, in the order changes are reported.
const (
	FieldQuantity    = "quantity"
	FieldUnitPrice   = "unit_price"
	FieldTotalPrice  = "total_price"
	FieldDescription = "description"
	FieldUnit        = "unit"
)

// Differ compares two line-item sets of the same facility.
type Differ struct {
	tolerance decimal.Decimal
}

// NewDiffer creates a Differ. A diff is balanced when |balance| <= tolerance;
// the lump-sum rule uses a zero tolerance. Negative tolerances are treated
// as zero.
func NewDiffer(tolerance decimal.Decimal) *Differ {
	if tolerance.IsNegative() {
		tolerance = decimal.Zero
	}
	return &Differ{tolerance: tolerance}
}

// Diff classifies every code as added, removed or modified. Codes present in
// both sets with equal compared fields are omitted. Dates are not compared.
// Each change list is sorted by code, byte-wise ascending.
func (d *Differ) Diff(oldItems, newItems []*models.LineItem) *models.DiffResult {
	oldByCode := byCode(oldItems)
	newByCode := byCode(newItems)

	result := &models.DiffResult{
		Added:         []models.ChangeRecord{},
		Removed:       []models.ChangeRecord{},
		Modified:      []models.ChangeRecord{},
		AddedTotal:    decimal.Zero,
		RemovedTotal:  decimal.Zero,
		ModifiedDelta: decimal.Zero,
	}

	for _, code := range sortedCodes(newByCode) {
		after := newByCode[code]
		before, ok := oldByCode[code]
		if !ok {
			result.Added = append(result.Added, models.ChangeRecord{
				Kind:             models.ChangeAdded,
				Type:             models.ModificationIndependentAddition,
				HierarchicalCode: code,
				After:            after,
				Impact:           after.TotalPrice,
			})
			result.AddedTotal = result.AddedTotal.Add(after.TotalPrice)
			continue
		}
		changes := compareLines(before, after)
		if len(changes) == 0 {
			continue
		}
		impact := after.TotalPrice.Sub(before.TotalPrice)
		result.Modified = append(result.Modified, models.ChangeRecord{
			Kind:             models.ChangeModified,
			Type:             models.ModificationBindingDeductive,
			HierarchicalCode: code,
			Before:           before,
			After:            after,
			Changes:          changes,
			Impact:           impact,
		})
		result.ModifiedDelta = result.ModifiedDelta.Add(impact)
	}

	for _, code := range sortedCodes(oldByCode) {
		if _, ok := newByCode[code]; ok {
			continue
		}
		before := oldByCode[code]
		result.Removed = append(result.Removed, models.ChangeRecord{
			Kind:             models.ChangeRemoved,
			Type:             models.ModificationReduction,
			HierarchicalCode: code,
			Before:           before,
			Impact:           before.TotalPrice.Neg(),
		})
		result.RemovedTotal = result.RemovedTotal.Add(before.TotalPrice)
	}

	result.OldTotal = SumTotals(oldItems)
	result.NewTotal = SumTotals(newItems)
	result.Balance = result.NewTotal.Sub(result.OldTotal)
	result.IsBalanced = result.Balance.Abs().LessThanOrEqual(d.tolerance)
	result.Alerts = d.alerts(result.Balance)
	return result
}

// ConfirmedBalance sums the impacts of confirmed changes and checks the sum
// against the same tolerance and alerts Diff uses.
func (d *Differ) ConfirmedBalance(changes []models.ConfirmedChange) (decimal.Decimal, bool, []string) {
	balance := decimal.Zero
	for _, c := range changes {
		balance = balance.Add(c.Impact)
	}
	return balance, balance.Abs().LessThanOrEqual(d.tolerance), d.alerts(balance)
}

func (d *Differ) alerts(balance decimal.Decimal) []string {
	switch {
	case balance.GreaterThan(d.tolerance):
		return []string{
			"overrun of S/ " + balance.StringFixed(2),
			"increase reductions or decrease additions to rebalance",
		}
	case balance.Neg().GreaterThan(d.tolerance):
		return []string{
			"remainder of S/ " + balance.Abs().StringFixed(2),
			"additions can grow or reductions shrink by that amount",
		}
	}
	return []string{"budget balanced"}
}

func compareLines(before, after *models.LineItem) []models.FieldChange {
	var changes []models.FieldChange
	amount := func(field string, a, b decimal.Decimal) {
		if !a.Equal(b) {
			changes = append(changes, models.FieldChange{Field: field, Before: a.String(), After: b.String()})
		}
	}
	text := func(field, a, b string) {
		if a != b {
			changes = append(changes, models.FieldChange{Field: field, Before: a, After: b})
		}
	}
	amount(FieldQuantity, before.Quantity, after.Quantity)
	amount(FieldUnitPrice, before.UnitPrice, after.UnitPrice)
	amount(FieldTotalPrice, before.TotalPrice, after.TotalPrice)
	text(FieldDescription, before.Description, after.Description)
	text(FieldUnit, before.Unit, after.Unit)
	return changes
}

// byCode keys items by hierarchical code; the first occurrence wins.
func byCode(items []*models.LineItem) map[string]*models.LineItem {
	m := make(map[string]*models.LineItem, len(items))
	for _, it := range items {
		if _, ok := m[it.HierarchicalCode]; !ok {
			m[it.HierarchicalCode] = it
		}
	}
	return m
}

func sortedCodes(m map[string]*models.LineItem) []string {
	codes := make([]string, 0, len(m))
	for code := range m {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
