package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"form-engine/internal/instrument"
	"form-engine/internal/metadata"
	"form-engine/internal/rules"
)

// ActionEventArgs is what an action sees when an event fires. Data, ParentData
// and RootData are snapshots taken just before the action runs; actions change
// the form through Form and the helpers below.
type ActionEventArgs struct {
	Event  string
	Sender ComponentData
	// SenderID stays valid for Form calls until the sender is removed.
	SenderID   NodeID
	Path       string
	Data       map[string]any
	ParentData map[string]any
	RootData   map[string]any
	Form       *Form
	// Index is the sender's row index, -1 outside repeaters.
	Index int
	Args  map[string]any
}

// SetValue writes key into the sender's data scope.
func (e *ActionEventArgs) SetValue(ctx context.Context, key string, value any) error {
	return e.Form.SetScopedValue(ctx, e.SenderID, key, value)
}

// ActionFunc runs one bound action. A returned error stops the dispatch.
type ActionFunc func(ctx context.Context, e *ActionEventArgs) error

// ActionDefinition is a named action with its declared parameters.
type ActionDefinition struct {
	Fn          ActionFunc
	Params      []rules.Param
	Description string
}

// Action builds an ActionDefinition.
func Action(description string, fn ActionFunc, params ...rules.Param) ActionDefinition {
	return ActionDefinition{Fn: fn, Params: params, Description: description}
}

// Dispatcher holds the common and host-registered actions.
type Dispatcher struct {
	mu     sync.RWMutex
	common map[string]ActionDefinition
	custom map[string]ActionDefinition
}

// NewDispatcher returns a dispatcher with the common actions and custom.
func NewDispatcher(custom map[string]ActionDefinition) *Dispatcher {
	d := &Dispatcher{common: CommonActions(), custom: map[string]ActionDefinition{}}
	for name, def := range custom {
		d.custom[name] = def
	}
	return d
}

// Register adds or replaces a custom action.
func (d *Dispatcher) Register(name string, def ActionDefinition) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.custom[name] = def
}

// Lookup finds an action in the catalog selected by kind.
func (d *Dispatcher) Lookup(kind metadata.ActionKind, name string) (ActionDefinition, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var def ActionDefinition
	var ok bool
	switch kind {
	case metadata.ActionCommon:
		def, ok = d.common[name]
	case metadata.ActionCustom:
		def, ok = d.custom[name]
	}
	return def, ok && def.Fn != nil
}

// Names lists the action names of a catalog, sorted.
func (d *Dispatcher) Names(kind metadata.ActionKind) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	src := d.common
	if kind == metadata.ActionCustom {
		src = d.custom
	}
	names := make([]string, 0, len(src))
	for name := range src {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Fire runs the actions bound to event on node id, in declaration order.
// An unknown action or the first action error stops the remaining ones.
// Events without bindings are a no-op.
func (f *Form) Fire(ctx context.Context, id NodeID, event string) error {
	f.mu.Lock()
	n := f.tree.Node(id)
	if n == nil {
		f.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	bindings := n.Store.Events[event]
	path := f.tree.Path(id)
	f.mu.Unlock()

	if len(bindings) == 0 {
		return nil
	}

	ctx, span := instrument.Start(ctx, instrument.KindEvent, instrument.Attrs{Form: f.key, Node: path, Event: event})
	defer span.End()

	for i, b := range bindings {
		log := logrus.WithFields(logrus.Fields{"form": f.key, "node": path, "event": event, "action": b.Name})
		def, ok := f.dispatcher.Lookup(b.Type, b.Name)
		if !ok {
			err := fmt.Errorf("%w: %s action %q on %s.%s", ErrUnknownAction, b.Type, b.Name, path, event)
			span.Fail(err)
			log.Warn("unknown action")
			return err
		}
		args, err := rules.ResolveArgs(def.Params, b.Args)
		if err != nil {
			err = fmt.Errorf("%s.%s action %q: %w", path, event, b.Name, err)
			span.Fail(err)
			return err
		}
		e, ok := f.eventArgs(id, event, args)
		if !ok {
			log.Debug("sender removed, remaining actions skipped")
			span.Set("stopped_at", i)
			break
		}
		if err := f.runAction(ctx, def, b, e); err != nil {
			err = fmt.Errorf("%s.%s action %q: %w", path, event, b.Name, err)
			span.Fail(err)
			log.WithError(err).Debug("action failed, dispatch stopped")
			return err
		}
	}
	return nil
}

func (f *Form) runAction(ctx context.Context, def ActionDefinition, b metadata.ActionBinding, e *ActionEventArgs) error {
	ctx, span := instrument.Start(ctx, instrument.KindAction, instrument.Attrs{
		Form: f.key, Node: e.Path, Event: e.Event, Action: b.Name,
	})
	defer span.End()
	span.Set("catalog", string(b.Type))
	if err := def.Fn(ctx, e); err != nil {
		span.Fail(err)
		return err
	}
	return nil
}

// FirePath fires event on the node at path.
func (f *Form) FirePath(ctx context.Context, path, event string) error {
	id := f.Find(path)
	if id == NoNode {
		return fmt.Errorf("%w: %s", ErrUnknownNode, path)
	}
	return f.Fire(ctx, id, event)
}

// eventArgs snapshots the data an action sees. It reports false when the
// sender was removed by an earlier action.
func (f *Form) eventArgs(id NodeID, event string, args map[string]any) (*ActionEventArgs, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.tree.Node(id)
	if n == nil {
		return nil, false
	}
	snap := cloneMap(f.data)
	return &ActionEventArgs{
		Event:      event,
		Sender:     copyNode(n),
		SenderID:   id,
		Path:       f.tree.Path(id),
		Data:       f.tree.Scope(snap, id),
		ParentData: f.tree.ParentScope(snap, id),
		RootData:   snap,
		Form:       f,
		Index:      f.tree.RowIndex(id),
		Args:       args,
	}, true
}
