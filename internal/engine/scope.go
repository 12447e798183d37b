package engine

// Scope returns the data object node id's key resolves against: the form
// data for nodes outside repeaters, or the row object of the enclosing
// repeater row. It returns nil when the row object does not exist.
func (t *Tree) Scope(data map[string]any, id NodeID) map[string]any {
	row := t.RowRoot(id)
	if row == nil {
		return data
	}
	rep := t.Node(row.Parent)
	parent := t.Scope(data, rep.ID)
	if parent == nil {
		return nil
	}
	arr, _ := parent[rep.Store.Key].([]any)
	if row.RowIndex < 0 || row.RowIndex >= len(arr) {
		return nil
	}
	m, _ := arr[row.RowIndex].(map[string]any)
	return m
}

// writableScope is Scope for live data: missing row objects are created in
// place so a value can be stored.
func (t *Tree) writableScope(data map[string]any, id NodeID) map[string]any {
	row := t.RowRoot(id)
	if row == nil {
		return data
	}
	rep := t.Node(row.Parent)
	parent := t.writableScope(data, rep.ID)
	if parent == nil {
		return nil
	}
	arr, _ := parent[rep.Store.Key].([]any)
	if row.RowIndex < 0 || row.RowIndex >= len(arr) {
		return nil
	}
	m, ok := arr[row.RowIndex].(map[string]any)
	if !ok {
		m = map[string]any{}
		arr[row.RowIndex] = m
	}
	return m
}

// ParentScope returns the data object enclosing a node's row, or nil for
// nodes outside repeaters.
func (t *Tree) ParentScope(data map[string]any, id NodeID) map[string]any {
	row := t.RowRoot(id)
	if row == nil {
		return nil
	}
	return t.Scope(data, row.Parent)
}

// RowIndex returns the index of the row a node belongs to, or -1.
func (t *Tree) RowIndex(id NodeID) int {
	if row := t.RowRoot(id); row != nil {
		return row.RowIndex
	}
	return -1
}

// cloneData deep-copies JSON-like data so readers never observe later writes.
// Typed row slices are converted to []any.
func cloneData(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneData(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneData(val)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneData(val)
		}
		return out
	default:
		return v
	}
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return cloneData(m).(map[string]any)
}
