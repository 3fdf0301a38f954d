package pivot

import (
	"sort"
	"strconv"
	"strings"
)

// RootLabel is the label of every tree's root node.
const RootLabel = "root"

// Node is a single level of a pivot tree. It holds the values of every row
// whose label path passes through it.
type Node struct {
	label    string
	values   []float64
	children map[string]*Node
}

func newNode(label string) *Node {
	return &Node{
		label:    label,
		children: make(map[string]*Node),
	}
}

// Label returns the node's label value.
func (n *Node) Label() string {
	return n.label
}

// Values returns a copy of the values collected at this node.
func (n *Node) Values() []float64 {
	out := make([]float64, len(n.values))
	copy(out, n.values)
	return out
}

// Len returns the number of values collected at this node.
func (n *Node) Len() int {
	return len(n.values)
}

// Child returns the child with the given label, or nil.
func (n *Node) Child(label string) *Node {
	return n.children[label]
}

// Children returns the node's children ordered by label.
func (n *Node) Children() []*Node {
	out := make([]*Node, 0, len(n.children))
	for _, c := range n.children {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].label < out[j].label
	})
	return out
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool {
	return len(n.children) == 0
}

func (n *Node) childOrCreate(label string) *Node {
	child, ok := n.children[label]
	if !ok {
		child = newNode(label)
		n.children[label] = child
	}
	return child
}

// Tree is a pivot tree. A tree is not safe for concurrent Build calls, but a
// built tree may be queried from many goroutines.
type Tree struct {
	root  *Node
	depth int
	rows  int
}

// NewTree returns an empty tree with a root node.
func NewTree() *Tree {
	return &Tree{root: newNode(RootLabel)}
}

// Root returns the root node.
func (t *Tree) Root() *Node {
	return t.root
}

// Depth returns the number of levels below the root.
func (t *Tree) Depth() int {
	return t.depth
}

// Len returns the number of rows inserted into the tree.
func (t *Tree) Len() int {
	return t.rows
}

// Build inserts rows into the tree. The root and every node on a row's label
// path receive the row's value.
func (t *Tree) Build(rows []Row) {
	for _, row := range rows {
		node := t.root
		node.values = append(node.values, row.Value)
		for _, label := range row.Labels {
			node = node.childOrCreate(label)
			node.values = append(node.values, row.Value)
		}
		if len(row.Labels) > t.depth {
			t.depth = len(row.Labels)
		}
		t.rows++
	}
}

// Lookup walks labels from the root and returns the addressed node.
func (t *Tree) Lookup(labels []string) (*Node, bool) {
	node := t.root
	for _, label := range labels {
		node = node.Child(label)
		if node == nil {
			return nil, false
		}
	}
	return node, true
}

// Query applies fn to the values of the node addressed by labels. An empty
// path addresses the root; a path through a missing node yields 0.
func (t *Tree) Query(labels []string, fn Func) (float64, error) {
	if labels == nil {
		return 0, ErrNilQuery
	}
	if fn == nil {
		return 0, ErrUnknownFunction
	}
	node, ok := t.Lookup(labels)
	if !ok {
		return 0, nil
	}
	return fn(node.values), nil
}

// String renders the tree one node per line, indented two spaces per level.
func (t *Tree) String() string {
	var b strings.Builder
	writeNode(&b, t.root, "")
	return b.String()
}

func writeNode(b *strings.Builder, n *Node, indent string) {
	b.WriteString(indent)
	b.WriteString(n.label)
	b.WriteString(" (")
	for i, v := range n.values {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
	}
	b.WriteString(")\n")
	for _, c := range n.Children() {
		writeNode(b, c, indent+"  ")
	}
}

// BuildTree converts rows with hierarchy and builds a tree from them. An empty
// hierarchy selects the natural hierarchy. The hierarchy used is returned.
func BuildTree(rows []DataRow, hierarchy []string) (*Tree, []string, error) {
	var (
		converted []Row
		err       error
	)
	if len(hierarchy) == 0 {
		converted, err = Convert(rows)
		hierarchy = NaturalHierarchy(rows)
	} else {
		converted, err = ConvertWithHierarchy(rows, hierarchy)
	}
	if err != nil {
		return nil, nil, err
	}

	tree := NewTree()
	tree.Build(converted)
	return tree, hierarchy, nil
}
