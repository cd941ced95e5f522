package budget

import (
	"sort"

	"github.com/nemaec/nemaec-engine/pkg/hierarchy"
	"github.com/nemaec/nemaec-engine/pkg/models"
)

// Tree returns one display node per item, ordered by hierarchical code with
// numeric segment comparison. Parent nodes carry their rolled-up total.
func (c *Calculator) Tree(items []*models.LineItem) []models.TreeNode {
	idx := newIndex(items)
	nodes := make([]models.TreeNode, 0, len(items))
	for _, it := range items {
		node := models.TreeNode{
			LineItem:     it,
			DisplayTotal: it.TotalPrice,
			HasChildren:  idx.hasChild[it.HierarchicalCode],
		}
		if c.appliesTo(it.HierarchicalCode, node.HasChildren) {
			sum := idx.leafSum(it.HierarchicalCode, items)
			if !sum.IsZero() {
				node.DisplayTotal = sum
				node.RolledUp = true
			}
		}
		nodes = append(nodes, node)
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		return hierarchy.Compare(nodes[i].HierarchicalCode, nodes[j].HierarchicalCode) < 0
	})
	return nodes
}
