package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"

	"form-engine/internal/metadata"
)

// rowTarget is the array a row operation edits.
type rowTarget struct {
	// repeater is the component rendering the array, NoNode when none does.
	repeater NodeID
	scope    map[string]any
	key      string
	// senderRow is the row the sender sits in, -1 when not inferred.
	senderRow int
}

// resolveRowTarget finds the array for a row operation fired by sender.
// Without dataKey the array is inferred: a repeater sender edits its own
// array, a sender inside a row edits the array that row belongs to.
func (f *Form) resolveRowTarget(sender NodeID, dataKey string) (rowTarget, bool) {
	n := f.tree.Node(sender)
	if n == nil {
		return rowTarget{}, false
	}

	if dataKey != "" {
		rep := NoNode
		f.tree.Walk(func(c *ComponentData) bool {
			if rep == NoNode && c.Model.IsRepeater() && c.Key() == dataKey && c.DataRoot == n.DataRoot {
				rep = c.ID
			}
			return rep == NoNode
		})
		scope := f.tree.writableScope(f.data, sender)
		return rowTarget{repeater: rep, scope: scope, key: dataKey, senderRow: -1}, scope != nil
	}

	if n.Model.IsRepeater() {
		scope := f.tree.writableScope(f.data, sender)
		return rowTarget{repeater: sender, scope: scope, key: n.Key(), senderRow: -1}, scope != nil
	}

	row := f.tree.RowRoot(sender)
	if row == nil {
		return rowTarget{}, false
	}
	key, _ := row.Store.PropValue(metadata.RepeaterDataKeyProp).(string)
	scope := f.tree.writableScope(f.data, row.Parent)
	return rowTarget{repeater: row.Parent, scope: scope, key: key, senderRow: row.RowIndex}, scope != nil && key != ""
}

// bound returns limit, or the repeater's static prop when limit is negative.
func (f *Form) bound(t rowTarget, limit int, prop string) int {
	if limit >= 0 {
		return limit
	}
	rep := f.tree.Node(t.repeater)
	if rep == nil {
		return 0
	}
	v, ok := toInt(rep.Store.PropValue(prop))
	if !ok {
		return 0
	}
	return v
}

// AddRow inserts seed (or an empty row) into the array resolved from sender
// and dataKey. A negative or out of range index appends. Nothing happens
// when maxRows rows are reached; a negative maxRows defers to the repeater's "max"
// prop and 0 means unbounded. It reports whether a row was added.
func (f *Form) AddRow(ctx context.Context, sender NodeID, dataKey string, index int, seed map[string]any, maxRows int) (bool, error) {
	f.mu.Lock()
	if !f.tree.Alive(sender) {
		f.mu.Unlock()
		return false, fmt.Errorf("%w: %d", ErrUnknownNode, sender)
	}
	log := logrus.WithFields(logrus.Fields{"form": f.key, "node": f.tree.Path(sender), "dataKey": dataKey})

	t, ok := f.resolveRowTarget(sender, dataKey)
	if !ok {
		f.mu.Unlock()
		log.Debug("addRow: no target array")
		return false, nil
	}
	arr, _ := t.scope[t.key].([]any)
	if limit := f.bound(t, maxRows, "max"); limit > 0 && len(arr) >= limit {
		f.mu.Unlock()
		log.WithField("max", limit).Debug("addRow: at max rows")
		return false, nil
	}

	row := cloneMap(seed)
	if row == nil {
		row = map[string]any{}
	}
	pos := index
	if pos < 0 || pos > len(arr) {
		pos = len(arr)
	}
	t.scope[t.key] = slices.Insert(slices.Clone(arr), pos, any(row))
	if f.tree.Alive(t.repeater) {
		f.tree.InsertRow(t.repeater, pos)
	}
	f.syncRepeaters()
	f.recalculate(ctx)
	f.mu.Unlock()

	f.notify()
	return true, nil
}

// RemoveRow deletes one element of the array resolved from sender and
// dataKey. The index is taken from index, else the sender's own row, else
// the last element; negative values count from the end. Nothing happens
// when the array has minRows rows or fewer; a negative minRows defers to the
// repeater's "min" prop.
func (f *Form) RemoveRow(ctx context.Context, sender NodeID, dataKey string, index *int, minRows int) (bool, error) {
	f.mu.Lock()
	if !f.tree.Alive(sender) {
		f.mu.Unlock()
		return false, fmt.Errorf("%w: %d", ErrUnknownNode, sender)
	}
	log := logrus.WithFields(logrus.Fields{"form": f.key, "node": f.tree.Path(sender), "dataKey": dataKey})

	t, ok := f.resolveRowTarget(sender, dataKey)
	if !ok {
		f.mu.Unlock()
		log.Debug("removeRow: no target array")
		return false, nil
	}
	arr, _ := t.scope[t.key].([]any)
	if limit := f.bound(t, minRows, "min"); len(arr) <= limit {
		f.mu.Unlock()
		log.WithField("min", limit).Debug("removeRow: at min rows")
		return false, nil
	}

	idx := -1
	switch {
	case index != nil:
		idx = *index
	case t.senderRow >= 0:
		idx = t.senderRow
	}
	if idx < 0 {
		idx += len(arr)
	}
	if idx < 0 || idx >= len(arr) {
		f.mu.Unlock()
		log.WithField("index", idx).Debug("removeRow: index out of range")
		return false, nil
	}

	t.scope[t.key] = slices.Delete(slices.Clone(arr), idx, idx+1)
	if f.tree.Alive(t.repeater) {
		f.tree.RemoveRow(t.repeater, idx)
	}
	f.syncRepeaters()
	f.recalculate(ctx)
	f.mu.Unlock()

	f.notify()
	return true, nil
}

// parseRowSeed decodes the JSON row seed of addRow. Malformed or non-object
// seeds yield an empty row.
func parseRowSeed(v any) map[string]any {
	switch t := v.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return t
	case string:
		if t == "" {
			return map[string]any{}
		}
		var row map[string]any
		if err := json.Unmarshal([]byte(t), &row); err != nil || row == nil {
			logrus.WithField("item", t).Warn("addRow: malformed row seed, using empty row")
			return map[string]any{}
		}
		return row
	default:
		logrus.WithField("item", v).Warn("addRow: row seed is not an object, using empty row")
		return map[string]any{}
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	}
	return 0, false
}
