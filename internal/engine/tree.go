package engine

import (
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"form-engine/internal/metadata"
)

// NodeID indexes a node in a Tree. Ids are never reused, so a stale id of a
// removed node stays invalid.
type NodeID int

// NoNode is the parent of the root.
const NoNode NodeID = -1

// Field is the binding state of a value-bound node.
type Field struct {
	Value any
	Error string
	// Rule is the key of the rule that produced Error.
	Rule string

	generation uint64
}

// ComponentData is one live node. Store is shared with the persisted tree and
// must not be mutated. Parent, Children and DataRoot are arena indices.
type ComponentData struct {
	ID       NodeID
	Store    *metadata.ComponentStore
	Model    *metadata.Model
	Parent   NodeID
	Children []NodeID
	// DataRoot is the nearest enclosing repeater row, or the root.
	DataRoot NodeID
	// RowIndex is the position of a repeater row; -1 for other nodes.
	RowIndex int
	Field    *Field
	// State is the computed property bag; Tooltip the computed tooltip props.
	State   map[string]any
	Tooltip map[string]any
	// Problem is set on placeholder nodes built for unusable stores.
	Problem string
}

// Key returns the component key.
func (n *ComponentData) Key() string {
	return n.Store.Key
}

// IsRow reports whether the node is a synthetic repeater row.
func (n *ComponentData) IsRow() bool {
	return n.Model != nil && n.Model.Type == metadata.TypeRepeaterItem
}

// Tree is an arena of ComponentData nodes built from a ComponentStore tree.
type Tree struct {
	nodes  []*ComponentData
	root   NodeID
	models *metadata.Registry
	errorM *metadata.Model
	rowM   *metadata.Model
}

// NewTree builds the live tree for root. Repeaters start without rows; rows
// are created from data by the form.
func NewTree(root *metadata.ComponentStore, models *metadata.Registry) *Tree {
	if models == nil {
		models = metadata.NewDefaultRegistry()
	}
	t := &Tree{models: models}
	t.errorM = models.GetModel(metadata.TypeInternalError)
	if t.errorM == nil {
		t.errorM = &metadata.Model{Type: metadata.TypeInternalError, Kind: metadata.KindComponent}
	}
	t.rowM = models.GetModel(metadata.TypeRepeaterItem)
	if t.rowM == nil {
		t.rowM = &metadata.Model{Type: metadata.TypeRepeaterItem, Kind: metadata.KindTemplate}
	}
	t.root = t.CreateComponentData(root, NoNode)
	return t
}

// CreateComponentData instantiates a node for store under parent and builds
// its subtree. A nil store or unknown type yields an InternalError placeholder.
func (t *Tree) CreateComponentData(store *metadata.ComponentStore, parent NodeID) NodeID {
	id := NodeID(len(t.nodes))
	n := &ComponentData{ID: id, Store: store, Parent: parent, RowIndex: -1, DataRoot: id}
	t.nodes = append(t.nodes, n)

	switch {
	case parent == NoNode:
	case t.nodes[parent].IsRow():
		n.DataRoot = parent
	default:
		n.DataRoot = t.nodes[parent].DataRoot
	}

	if store == nil {
		n.Store = &metadata.ComponentStore{Type: metadata.TypeInternalError}
		n.Model = t.errorM
		n.Problem = "missing component"
		logrus.WithField("parent", parent).Warn("nil component store")
		return id
	}

	n.Model = t.models.GetModel(store.Type)
	if n.Model == nil {
		n.Model = t.errorM
		n.Problem = fmt.Sprintf("unknown component type %q", store.Type)
		logrus.WithFields(logrus.Fields{"node": store.Key, "type": store.Type}).Warn("unknown component type, using placeholder")
		return id
	}

	if n.Model.HasValue() {
		n.Field = &Field{}
	}
	if n.Model.IsRepeater() {
		return id
	}
	for _, child := range store.Children {
		cid := t.CreateComponentData(child, id)
		t.nodes[id].Children = append(t.nodes[id].Children, cid)
	}
	return id
}

// Root returns the root node id.
func (t *Tree) Root() NodeID {
	return t.root
}

// Node returns the live node for id, or nil if it was removed.
func (t *Tree) Node(id NodeID) *ComponentData {
	if id < 0 || int(id) >= len(t.nodes) {
		return nil
	}
	return t.nodes[id]
}

// Alive reports whether id names a node still in the tree.
func (t *Tree) Alive(id NodeID) bool {
	return t.Node(id) != nil
}

// Walk visits live nodes depth-first, parents before children. Returning
// false from fn skips the node's children.
func (t *Tree) Walk(fn func(n *ComponentData) bool) {
	t.walk(t.root, fn)
}

func (t *Tree) walk(id NodeID, fn func(n *ComponentData) bool) {
	n := t.Node(id)
	if n == nil || !fn(n) {
		return
	}
	for _, c := range n.Children {
		t.walk(c, fn)
	}
}

// FindParentWithParams climbs the parent chain of id and returns the first
// ancestor matching pred.
func (t *Tree) FindParentWithParams(id NodeID, pred func(n *ComponentData) bool) *ComponentData {
	n := t.Node(id)
	if n == nil {
		return nil
	}
	for p := t.Node(n.Parent); p != nil; p = t.Node(p.Parent) {
		if pred(p) {
			return p
		}
	}
	return nil
}

// ReduceScreen folds fn over every live node in depth-first order.
func ReduceScreen[T any](t *Tree, fn func(acc T, n *ComponentData) T, initial T) T {
	acc := initial
	t.Walk(func(n *ComponentData) bool {
		acc = fn(acc, n)
		return true
	})
	return acc
}

// Path names a node by its data position: "email", "items[1].name".
func (t *Tree) Path(id NodeID) string {
	n := t.Node(id)
	if n == nil {
		return ""
	}
	if n.IsRow() {
		return t.Path(n.Parent) + "[" + strconv.Itoa(n.RowIndex) + "]"
	}
	if n.DataRoot == n.ID || n.DataRoot == t.root {
		return n.Store.Key
	}
	return t.Path(n.DataRoot) + "." + n.Store.Key
}

// FindByPath returns the live node with the given path.
func (t *Tree) FindByPath(path string) *ComponentData {
	var found *ComponentData
	t.Walk(func(n *ComponentData) bool {
		if found != nil {
			return false
		}
		if t.Path(n.ID) == path {
			found = n
			return false
		}
		return true
	})
	return found
}

// FindByKey returns the first live node with the given component key.
func (t *Tree) FindByKey(key string) *ComponentData {
	var found *ComponentData
	t.Walk(func(n *ComponentData) bool {
		if found == nil && n.Store.Key == key && !n.IsRow() {
			found = n
		}
		return found == nil
	})
	return found
}

// Remove detaches id from its parent and frees its whole subtree.
func (t *Tree) Remove(id NodeID) {
	n := t.Node(id)
	if n == nil {
		return
	}
	if p := t.Node(n.Parent); p != nil {
		for i, c := range p.Children {
			if c == id {
				p.Children = append(p.Children[:i:i], p.Children[i+1:]...)
				break
			}
		}
	}
	t.free(id)
}

func (t *Tree) free(id NodeID) {
	n := t.Node(id)
	if n == nil {
		return
	}
	for _, c := range n.Children {
		t.free(c)
	}
	t.nodes[id] = nil
}

// rowStore is the synthetic store of a repeater row. Its children are the
// repeater's template children.
func rowStore(repeater *metadata.ComponentStore) *metadata.ComponentStore {
	return &metadata.ComponentStore{
		Key:      repeater.Key,
		Type:     metadata.TypeRepeaterItem,
		Props:    map[string]metadata.PropertyValue{metadata.RepeaterDataKeyProp: metadata.Static(repeater.Key)},
		Children: repeater.Children,
	}
}

// InsertRow adds a row under repeater at index (appending when out of range)
// and renumbers the rows.
func (t *Tree) InsertRow(repeater NodeID, index int) NodeID {
	rep := t.Node(repeater)
	if rep == nil || !rep.Model.IsRepeater() {
		return NoNode
	}
	id := NodeID(len(t.nodes))
	row := &ComponentData{ID: id, Store: rowStore(rep.Store), Model: t.rowM, Parent: repeater, DataRoot: id}
	t.nodes = append(t.nodes, row)
	for _, child := range rep.Store.Children {
		cid := t.CreateComponentData(child, id)
		t.nodes[id].Children = append(t.nodes[id].Children, cid)
	}

	if index < 0 || index >= len(rep.Children) {
		rep.Children = append(rep.Children, id)
	} else {
		rep.Children = append(rep.Children[:index], append([]NodeID{id}, rep.Children[index:]...)...)
	}
	t.renumberRows(repeater)
	return id
}

// RemoveRow removes the row at index under repeater and renumbers the rest.
func (t *Tree) RemoveRow(repeater NodeID, index int) {
	rep := t.Node(repeater)
	if rep == nil || index < 0 || index >= len(rep.Children) {
		return
	}
	t.Remove(rep.Children[index])
	t.renumberRows(repeater)
}

func (t *Tree) renumberRows(repeater NodeID) {
	for i, c := range t.nodes[repeater].Children {
		t.nodes[c].RowIndex = i
	}
}

// RowRoot returns the repeater row a node's data resolves against, or nil
// when the node is outside any repeater.
func (t *Tree) RowRoot(id NodeID) *ComponentData {
	n := t.Node(id)
	if n == nil {
		return nil
	}
	if n.IsRow() {
		return n
	}
	if n.DataRoot == n.ID || n.DataRoot == t.root {
		return nil
	}
	return t.Node(n.DataRoot)
}
