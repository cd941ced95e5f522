package spreadsheet

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nemaec/nemaec-engine/pkg/apperrors"
	"github.com/nemaec/nemaec-engine/pkg/budget"
	"github.com/nemaec/nemaec-engine/pkg/hierarchy"
	"github.com/nemaec/nemaec-engine/pkg/models"
)

// Mode selects how strictly rows are validated.
type Mode int

const (
	// ModeFull is the import path: missing or invalid dates are errors.
	ModeFull Mode = iota
	// ModePreview relaxes date problems to warnings so a partially dated
	// sheet can still be inspected.
	ModePreview
)

// Stats summarizes one ingestion run.
type Stats struct {
	TotalRows   int             `json:"total_rows"`
	ValidRows   int             `json:"valid_rows"`
	TotalBudget decimal.Decimal `json:"total_budget"`
}

// Result is everything ingestion learned about a file. Items holds only rows
// that passed validation; Errors and Warnings hold every diagnostic in row order.
type Result struct {
	Items    []*models.LineItem `json:"items"`
	Errors   []string           `json:"errors"`
	Warnings []string           `json:"warnings"`
	Stats    Stats              `json:"stats"`
}

// IsValid reports whether no row produced an error.
func (r *Result) IsValid() bool {
	return len(r.Errors) == 0
}

// Preview returns at most n valid items from the top of the sheet.
func (r *Result) Preview(n int) []*models.LineItem {
	if n < 0 || n >= len(r.Items) {
		return r.Items
	}
	return r.Items[:n]
}

// Err returns a *apperrors.ValidationError carrying every row error, or nil.
func (r *Result) Err(displayLimit int) error {
	if r.IsValid() {
		return nil
	}
	verr := apperrors.NewValidationError(r.Errors)
	if displayLimit > 0 {
		verr.DisplayLimit = displayLimit
	}
	return verr
}

// Ingester converts uploaded files into line items using a column mapping.
type Ingester struct {
	mapping  ColumnMapping
	maxBytes int64
}

// NewIngester creates an Ingester. A maxBytes of zero or less applies
// DefaultMaxFileBytes.
func NewIngester(mapping ColumnMapping, maxBytes int64) *Ingester {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileBytes
	}
	return &Ingester{mapping: mapping, maxBytes: maxBytes}
}

// Mapping returns the column mapping in use.
func (i *Ingester) Mapping() ColumnMapping {
	return i.mapping
}

// Ingest parses data and validates every row, accumulating all diagnostics
// rather than stopping at the first bad row. A returned error means the file
// itself was rejected (unsupported or unreadable); row problems are reported
// in Result.Errors.
func (i *Ingester) Ingest(fileName string, data []byte, mode Mode) (*Result, error) {
	if err := CheckFile(fileName, int64(len(data)), i.maxBytes); err != nil {
		return nil, err
	}
	rows, err := ReadRows(fileName, data, i.mapping.Sheet)
	if err != nil {
		return nil, err
	}
	if err := i.checkShape(rows); err != nil {
		return nil, err
	}

	result := &Result{
		Items:    []*models.LineItem{},
		Errors:   []string{},
		Warnings: []string{},
	}
	firstRowByCode := make(map[string]int)

	for n, row := range rows[i.mapping.HeaderRows:] {
		if isBlank(row) {
			continue
		}
		rowNum := i.mapping.HeaderRows + n + 1
		result.Stats.TotalRows++

		item, rowErrs, rowWarns := i.parseRow(row, rowNum, mode)
		result.Warnings = append(result.Warnings, rowWarns...)

		if item != nil && item.HierarchicalCode != "" {
			if first, dup := firstRowByCode[item.HierarchicalCode]; dup {
				rowErrs = append(rowErrs, fmt.Sprintf("row %d: hierarchical code %s duplicates row %d",
					rowNum, item.HierarchicalCode, first))
			} else {
				firstRowByCode[item.HierarchicalCode] = rowNum
			}
		}

		if len(rowErrs) > 0 {
			result.Errors = append(result.Errors, rowErrs...)
			continue
		}
		result.Items = append(result.Items, item)
	}

	result.Stats.ValidRows = len(result.Items)
	result.Stats.TotalBudget = budget.TotalBudget(result.Items)
	return result, nil
}

func (i *Ingester) checkShape(rows [][]string) error {
	if len(rows) <= i.mapping.HeaderRows {
		return &apperrors.MalformedInputError{Reason: "sheet has no data rows"}
	}
	if i.mapping.HeaderRows == 0 {
		return nil
	}
	width := 0
	for _, row := range rows[:i.mapping.HeaderRows] {
		width = max(width, len(row))
	}
	if required := i.mapping.RequiredWidth(); width < required {
		return &apperrors.MalformedInputError{Reason: fmt.Sprintf(
			"header spans %d columns but template %q needs at least %d", width, i.mapping.Name, required)}
	}
	return nil
}

// parseRow builds a line item from one data row. The item is returned even
// when errors were found so duplicate detection can still see its code.
func (i *Ingester) parseRow(row []string, rowNum int, mode Mode) (*models.LineItem, []string, []string) {
	var errs, warns []string
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf("row %d: ", rowNum)+fmt.Sprintf(format, args...))
	}
	warn := func(format string, args ...any) {
		warns = append(warns, fmt.Sprintf("row %d: ", rowNum)+fmt.Sprintf(format, args...))
	}
	m := i.mapping

	item := &models.LineItem{
		InternalCode:     cell(row, m.InternalCode),
		HierarchicalCode: hierarchy.Normalize(cell(row, m.HierarchicalCode)),
		Description:      cell(row, m.Description),
		Unit:             cell(row, m.Unit),
		SourceRow:        rowNum,
	}

	if item.InternalCode == "" {
		fail("internal code is required")
	}
	if item.HierarchicalCode == "" {
		fail("hierarchical code is required")
	}
	if item.Description == "" {
		fail("description is required")
	}
	if item.Unit == "" {
		warn("unit is missing, using %s", models.DefaultUnit)
		item.Unit = models.DefaultUnit
	}

	quantity, err := parseAmount(cell(row, m.Quantity))
	if err != nil {
		fail("quantity %v", err)
	} else if quantity.IsNegative() {
		fail("quantity %s is negative", quantity)
	}
	unitPrice, err := parseAmount(cell(row, m.UnitPrice))
	if err != nil {
		fail("unit price %v", err)
	} else if unitPrice.IsNegative() {
		fail("unit price %s is negative", unitPrice)
	}
	item.Quantity = quantity
	item.UnitPrice = unitPrice
	item.TotalPrice = quantity.Mul(unitPrice)

	if raw := cell(row, m.TotalPrice); raw != "" && !quantity.IsZero() {
		if source, err := parseAmount(raw); err == nil && !source.Equal(item.TotalPrice) {
			warn("source total %s differs from quantity × unit price %s, using the computed value",
				source, item.TotalPrice)
		}
	}

	dateProblem := fail
	if mode == ModePreview {
		dateProblem = warn
	}
	item.StartDate = i.parseDateCell(row, m.StartDate, "start date", dateProblem)
	item.EndDate = i.parseDateCell(row, m.EndDate, "end date", dateProblem)
	if item.StartDate != nil && item.EndDate != nil && item.StartDate.After(*item.EndDate) {
		dateProblem("start date %s is after end date %s",
			item.StartDate.Format("2006-01-02"), item.EndDate.Format("2006-01-02"))
	}

	if item.HierarchicalCode != "" {
		item.Depth = hierarchy.DepthOf(item.HierarchicalCode)
		if parent, ok := hierarchy.ParentOf(item.HierarchicalCode); ok {
			item.ParentCode = parent
		}
		if !hierarchy.IsNumeric(item.HierarchicalCode) {
			warn("hierarchical code %s has non-numeric segments", item.HierarchicalCode)
		}
	}
	return item, errs, warns
}

func (i *Ingester) parseDateCell(row []string, idx int, field string, problem func(string, ...any)) *time.Time {
	if idx == Unmapped {
		return nil
	}
	raw := cell(row, idx)
	if raw == "" {
		problem("%s is required", field)
		return nil
	}
	t, err := parseDate(raw)
	if err != nil {
		problem("%s %v", field, err)
		return nil
	}
	return t
}

// Summary renders the stats in one line for logs and the CLI.
func (s Stats) Summary() string {
	return fmt.Sprintf("%d/%d rows valid, budget S/ %s", s.ValidRows, s.TotalRows, s.TotalBudget.StringFixed(2))
}
