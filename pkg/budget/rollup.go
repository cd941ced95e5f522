// Package budget derives display totals, trees and version diffs from the
// flat line-item set of a schedule. Nothing in this package mutates its
// input; every value is re-derivable from the items at any time.
package budget

import (
	"github.com/shopspring/decimal"

	"github.com/nemaec/nemaec-engine/pkg/hierarchy"
	"github.com/nemaec/nemaec-engine/pkg/models"
)

// Calculator computes rolled-up totals for parent codes.
type Calculator struct {
	// maxDepth limits roll-up to codes at or above this depth. 0 means every
	// code with children rolls up.
	maxDepth int
}

// NewCalculator creates a Calculator. Pass 0 for uniform roll-up; 2 reproduces
// the dashboard's historical behaviour of only rolling up the first two levels.
func NewCalculator(maxDepth int) *Calculator {
	if maxDepth < 0 {
		maxDepth = 0
	}
	return &Calculator{maxDepth: maxDepth}
}

// Total returns the display total of code. Codes with children get the sum of
// their positive leaf descendants; when that sum is zero (or the code has no
// children) the stored total of the code's own line is returned.
func (c *Calculator) Total(code string, items []*models.LineItem) decimal.Decimal {
	codes := make([]string, len(items))
	for i, it := range items {
		codes[i] = it.HierarchicalCode
	}
	stored := storedTotal(code, items)
	if !c.appliesTo(code, hierarchy.HasChildren(code, codes)) {
		return stored
	}
	return fallback(newIndex(items).leafSum(code, items), stored)
}

func (c *Calculator) appliesTo(code string, hasChildren bool) bool {
	if !hasChildren {
		return false
	}
	return c.maxDepth == 0 || hierarchy.DepthOf(code) <= c.maxDepth
}

// LeafItems returns the items that have no descendant in the set, in input order.
func LeafItems(items []*models.LineItem) []*models.LineItem {
	idx := newIndex(items)
	leaves := make([]*models.LineItem, 0, len(items))
	for _, it := range items {
		if !idx.hasDescendant[it.HierarchicalCode] {
			leaves = append(leaves, it)
		}
	}
	return leaves
}

// TotalBudget sums leaf totals only, so parent rows never double count.
func TotalBudget(items []*models.LineItem) decimal.Decimal {
	return SumTotals(LeafItems(items))
}

// SumTotals adds the stored totals of every item.
func SumTotals(items []*models.LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.TotalPrice)
	}
	return sum
}

func storedTotal(code string, items []*models.LineItem) decimal.Decimal {
	for _, it := range items {
		if it.HierarchicalCode == code {
			return it.TotalPrice
		}
	}
	return decimal.Zero
}

func fallback(sum, stored decimal.Decimal) decimal.Decimal {
	if sum.IsZero() {
		return stored
	}
	return sum
}

// index records structural facts about a line-item set.
type index struct {
	// hasDescendant holds every code that is a dotted prefix of some item.
	hasDescendant map[string]bool
	// hasChild holds every code that is the immediate parent of some item.
	hasChild map[string]bool
}

func newIndex(items []*models.LineItem) *index {
	idx := &index{
		hasDescendant: make(map[string]bool),
		hasChild:      make(map[string]bool),
	}
	for _, it := range items {
		code := it.HierarchicalCode
		if parent, ok := hierarchy.ParentOf(code); ok {
			idx.hasChild[parent] = true
		}
		for {
			parent, ok := hierarchy.ParentOf(code)
			if !ok {
				break
			}
			idx.hasDescendant[parent] = true
			code = parent
		}
	}
	return idx
}

// leafSum adds the positive totals of the descendants of code that have no
// further descendants themselves.
func (idx *index) leafSum(code string, items []*models.LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		if !hierarchy.IsDescendant(it.HierarchicalCode, code) {
			continue
		}
		if idx.hasDescendant[it.HierarchicalCode] {
			continue
		}
		if it.TotalPrice.IsPositive() {
			sum = sum.Add(it.TotalPrice)
		}
	}
	return sum
}
