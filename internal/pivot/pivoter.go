package pivot

import "sync"

// Pivoter builds pivot trees and queries the most recent one.
type Pivoter struct {
	mu        sync.RWMutex
	tree      *Tree
	hierarchy []string
}

// New creates a Pivoter with no tree.
func New() *Pivoter {
	return &Pivoter{}
}

// Pivot builds a fresh tree from rows using their natural hierarchy.
func (p *Pivoter) Pivot(rows []DataRow) (*Tree, error) {
	return p.PivotWithHierarchy(rows, nil)
}

// PivotWithHierarchy builds a fresh tree from rows ordered by hierarchy.
// Previously returned trees are left untouched.
func (p *Pivoter) PivotWithHierarchy(rows []DataRow, hierarchy []string) (*Tree, error) {
	tree, used, err := BuildTree(rows, hierarchy)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.tree = tree
	p.hierarchy = used
	p.mu.Unlock()

	return tree, nil
}

// Query aggregates the values addressed by labels in the current tree.
func (p *Pivoter) Query(labels []string, fn Func) (float64, error) {
	p.mu.RLock()
	tree := p.tree
	p.mu.RUnlock()

	if tree == nil {
		return 0, ErrNotPivoted
	}
	return tree.Query(labels, fn)
}

// Tree returns the current tree, or nil before the first pivot.
func (p *Pivoter) Tree() *Tree {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.tree
}

// Hierarchy returns the hierarchy of the current tree.
func (p *Pivoter) Hierarchy() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, len(p.hierarchy))
	copy(out, p.hierarchy)
	return out
}
