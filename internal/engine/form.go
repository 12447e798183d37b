package engine

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"form-engine/internal/expression"
	"form-engine/internal/instrument"
	"form-engine/internal/metadata"
	"form-engine/internal/rules"
)

// Options configures a live Form. Zero values select the defaults.
type Options struct {
	// Key names the form in logs and trace events.
	Key        string
	Models     *metadata.Registry
	Rules      *rules.Registry
	Validators rules.Catalog
	// Actions are the host actions invoked by "custom" bindings.
	Actions map[string]ActionDefinition
	// Language selects the persisted localization when the form has no
	// defaultLanguage. Localizer replaces the persisted lookup entirely.
	Language  string
	Localizer Localizer
	// OnChange receives a snapshot after every data or error change.
	OnChange            func(Snapshot)
	DisableAutoValidate bool
}

// Snapshot is the externally observable state of a form.
type Snapshot struct {
	Data   map[string]any `json:"data"`
	Errors map[string]any `json:"errors"`
}

// Form is a live form: the node tree, the form data and the field errors.
// It is safe for concurrent use. Validators and actions run without the
// lock held; validation results are applied only to nodes still alive.
type Form struct {
	mu         sync.Mutex
	key        string
	def        *metadata.PersistedForm
	tree       *Tree
	data       map[string]any
	initial    map[string]any
	rules      *rules.Registry
	eval       *expression.Evaluator
	calc       *Calculator
	dispatcher *Dispatcher
	localizer  Localizer
	language   string
	onChange   func(Snapshot)
	autoValid  bool
}

// New builds a live form from a persisted definition and initial data.
func New(def *metadata.PersistedForm, data map[string]any, opts Options) *Form {
	reg := opts.Rules
	if reg == nil {
		reg = rules.NewRegistry(nil)
	}
	if opts.Validators != nil {
		reg.UseValidators(opts.Validators)
	}
	language := def.DefaultLanguage
	if language == "" {
		language = opts.Language
	}
	localizer := opts.Localizer
	if localizer == nil {
		localizer = StaticLocalizer(def.Localization, language)
	}

	f := &Form{
		key:        opts.Key,
		def:        def,
		tree:       NewTree(def.Form, opts.Models),
		data:       cloneMap(data),
		initial:    cloneMap(data),
		rules:      reg,
		eval:       reg.Evaluator(),
		calc:       NewCalculator(reg.Evaluator()),
		dispatcher: NewDispatcher(opts.Actions),
		localizer:  localizer,
		language:   language,
		onChange:   opts.OnChange,
		autoValid:  !opts.DisableAutoValidate,
	}
	f.syncRepeaters()
	f.recalculate(context.Background())
	return f
}

// Key returns the form key given in Options.
func (f *Form) Key() string {
	return f.key
}

// Definition returns the persisted definition the form was built from.
func (f *Form) Definition() *metadata.PersistedForm {
	return f.def
}

// Dispatcher returns the action registry of the form.
func (f *Form) Dispatcher() *Dispatcher {
	return f.dispatcher
}

// Find returns the id of the node at path, or NoNode.
func (f *Form) Find(path string) NodeID {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n := f.tree.FindByPath(path); n != nil {
		return n.ID
	}
	return NoNode
}

// Path returns the data path of a node.
func (f *Form) Path(id NodeID) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tree.Path(id)
}

// Node returns a copy of a live node, or false if it was removed.
func (f *Form) Node(id NodeID) (ComponentData, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.tree.Node(id)
	if n == nil {
		return ComponentData{}, false
	}
	return copyNode(n), true
}

func copyNode(n *ComponentData) ComponentData {
	c := *n
	c.Children = slices.Clone(n.Children)
	if n.Field != nil {
		field := *n.Field
		c.Field = &field
	}
	c.State = cloneMap(n.State)
	if n.Tooltip != nil {
		c.Tooltip = cloneMap(n.Tooltip)
	}
	return c
}

// Value returns the current value bound to a node.
func (f *Form) Value(id NodeID) any {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.tree.Node(id)
	if n == nil {
		return nil
	}
	scope := f.tree.Scope(f.data, id)
	if scope == nil {
		return nil
	}
	return cloneData(scope[n.Key()])
}

// Error returns the validation message of a node, or "".
func (f *Form) Error(id NodeID) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.tree.Node(id)
	if n == nil || n.Field == nil {
		return ""
	}
	return n.Field.Error
}

// State returns the computed property bag of a node.
func (f *Form) State(id NodeID) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.tree.Node(id)
	if n == nil {
		return nil
	}
	return cloneMap(n.State)
}

// States returns the computed props of every node keyed by path.
func (f *Form) States() map[string]map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]map[string]any{}
	f.tree.Walk(func(n *ComponentData) bool {
		if !n.IsRow() {
			out[f.tree.Path(n.ID)] = cloneMap(n.State)
		}
		return true
	})
	return out
}

// Calculate resolves one property of a node against the current data.
func (f *Form) Calculate(id NodeID, key string) (bool, any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.tree.Node(id)
	if n == nil {
		return false, nil
	}
	return f.calc.CalculateProperty(n, key, f.env(cloneMap(f.data), n), f.localizer)
}

// Data returns a copy of the form data.
func (f *Form) Data() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneMap(f.data)
}

// Snapshot returns the data and the error tree.
func (f *Form) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot()
}

func (f *Form) snapshot() Snapshot {
	return Snapshot{Data: cloneMap(f.data), Errors: f.errors()}
}

func (f *Form) notify() {
	if f.onChange == nil {
		return
	}
	f.mu.Lock()
	snap := f.snapshot()
	f.mu.Unlock()
	f.onChange(snap)
}

// env is the evaluation environment of fnSource and validateWhen
// expressions for one node. snap must not be mutated afterwards.
func (f *Form) env(snap map[string]any, n *ComponentData) map[string]any {
	scope := f.tree.Scope(snap, n.ID)
	var value any
	if scope != nil && !n.IsRow() {
		value = scope[n.Key()]
	}
	return map[string]any{
		"form": map[string]any{
			"rootData":   snap,
			"data":       scope,
			"parentData": f.tree.ParentScope(snap, n.ID),
			"index":      f.tree.RowIndex(n.ID),
			"key":        n.Key(),
			"language":   f.language,
		},
		"value": value,
	}
}

// Recalculate recomputes every node's property bag from the current data.
func (f *Form) Recalculate(ctx context.Context) {
	f.mu.Lock()
	f.recalculate(ctx)
	f.mu.Unlock()
}

// recalculate runs with f.mu held.
func (f *Form) recalculate(ctx context.Context) {
	_, span := instrument.Start(ctx, instrument.KindRecalculate, instrument.Attrs{Form: f.key})
	defer span.End()

	snap := cloneMap(f.data)
	nodes := 0
	f.tree.Walk(func(n *ComponentData) bool {
		nodes++
		env := f.env(snap, n)
		n.State, n.Tooltip = f.calc.ComputeState(n, env, f.localizer)
		if n.Field != nil {
			n.Field.Value = env["value"]
		}
		return true
	})
	span.Set("nodes", nodes)
}

// syncRepeaters makes every repeater have one row per element of its array.
func (f *Form) syncRepeaters() {
	f.syncNode(f.tree.Root())
}

func (f *Form) syncNode(id NodeID) {
	n := f.tree.Node(id)
	if n == nil {
		return
	}
	if n.Model.IsRepeater() {
		count := 0
		if scope := f.tree.Scope(f.data, id); scope != nil {
			arr, _ := scope[n.Key()].([]any)
			count = len(arr)
		}
		for len(n.Children) < count {
			f.tree.InsertRow(id, -1)
		}
		for len(n.Children) > count {
			f.tree.RemoveRow(id, len(n.Children)-1)
		}
	}
	for _, c := range slices.Clone(n.Children) {
		f.syncNode(c)
	}
}

// SetValue stores value at the node's key in its data scope, recalculates,
// and validates the node when auto validation applies.
func (f *Form) SetValue(ctx context.Context, id NodeID, value any) error {
	f.mu.Lock()
	n := f.tree.Node(id)
	if n == nil {
		f.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	if err := f.setScoped(ctx, id, n.Key(), value); err != nil {
		f.mu.Unlock()
		return err
	}
	validate := f.autoValid && n.Field != nil && n.Store.Schema != nil &&
		len(n.Store.Schema.Validations) > 0 && n.Store.Schema.ShouldAutoValidate()
	f.mu.Unlock()

	if validate {
		_, err := f.ValidateNode(ctx, id)
		return err
	}
	f.notify()
	return nil
}

// SetScopedValue stores value under key in the data scope of node id, the
// way an action writes into its sender's row.
func (f *Form) SetScopedValue(ctx context.Context, id NodeID, key string, value any) error {
	f.mu.Lock()
	if !f.tree.Alive(id) {
		f.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	err := f.setScoped(ctx, id, key, value)
	f.mu.Unlock()
	if err != nil {
		return err
	}
	f.notify()
	return nil
}

func (f *Form) setScoped(ctx context.Context, id NodeID, key string, value any) error {
	scope := f.tree.writableScope(f.data, id)
	if scope == nil {
		return fmt.Errorf("%w: no data row for %s", ErrUnknownNode, f.tree.Path(id))
	}
	scope[key] = cloneData(value)
	f.syncRepeaters()
	f.recalculate(ctx)
	return nil
}

// SetData replaces the form data.
func (f *Form) SetData(ctx context.Context, data map[string]any) {
	f.mu.Lock()
	f.data = cloneMap(data)
	f.syncRepeaters()
	f.recalculate(ctx)
	f.mu.Unlock()
	f.notify()
}

// Reset restores the initial data and clears every error.
func (f *Form) Reset(ctx context.Context) {
	f.mu.Lock()
	f.data = cloneMap(f.initial)
	f.clearErrors()
	f.syncRepeaters()
	f.recalculate(ctx)
	f.mu.Unlock()
	f.notify()
}

// Clear empties the form data and clears every error.
func (f *Form) Clear(ctx context.Context) {
	f.mu.Lock()
	f.data = map[string]any{}
	f.clearErrors()
	f.syncRepeaters()
	f.recalculate(ctx)
	f.mu.Unlock()
	f.notify()
}

func (f *Form) clearErrors() {
	f.tree.Walk(func(n *ComponentData) bool {
		if n.Field != nil {
			n.Field.generation++
			n.Field.Error, n.Field.Rule = "", ""
		}
		return true
	})
}

// fieldJob is everything needed to validate one node without the lock.
type fieldJob struct {
	id         NodeID
	path       string
	generation uint64
	valueType  metadata.ValueType
	settings   []metadata.ValidationRuleSettings
	value      any
	data       map[string]any
	env        map[string]any
}

func (f *Form) prepare(n *ComponentData, snap map[string]any) *fieldJob {
	n.Field.generation++
	job := &fieldJob{
		id:         n.ID,
		path:       f.tree.Path(n.ID),
		generation: n.Field.generation,
		valueType:  n.Model.ValueType,
		data:       snap,
		env:        f.env(snap, n),
	}
	job.value = job.env["value"]
	if n.Store.Schema != nil {
		job.settings = n.Store.Schema.Validations
	}
	return job
}

// run executes the node's rules in order and returns the first failure.
func (f *Form) run(ctx context.Context, job *fieldJob) (message, rule string) {
	_, span := instrument.Start(ctx, instrument.KindField, instrument.Attrs{Form: f.key, Node: job.path})
	defer span.End()

	for _, s := range job.settings {
		log := logrus.WithFields(logrus.Fields{"form": f.key, "node": job.path, "rule": s.Key})
		if s.ValidateWhen != nil && s.ValidateWhen.FnSource != "" {
			ok, err := f.eval.EvaluateBool(s.ValidateWhen.FnSource, job.env)
			if err != nil {
				log.WithError(err).Warn("validateWhen failed, rule skipped")
				continue
			}
			if !ok {
				continue
			}
		}
		v, err := f.rules.Build(job.valueType, s)
		if err != nil {
			log.WithError(err).Warn("rule skipped")
			continue
		}
		if ok, msg := v(ctx, job.value, job.data); !ok {
			span.Reject(s.Key, msg)
			return msg, s.Key
		}
	}
	return "", ""
}

// apply stores a result unless the node was removed or revalidated since.
func (f *Form) apply(job *fieldJob, message, rule string) bool {
	n := f.tree.Node(job.id)
	if n == nil || n.Field == nil || n.Field.generation != job.generation {
		logrus.WithFields(logrus.Fields{"form": f.key, "node": job.path}).Debug("stale validation result discarded")
		return false
	}
	n.Field.Error, n.Field.Rule = message, rule
	return true
}

// ValidateNode validates one node and returns its message ("" when valid).
func (f *Form) ValidateNode(ctx context.Context, id NodeID) (string, error) {
	f.mu.Lock()
	n := f.tree.Node(id)
	if n == nil {
		f.mu.Unlock()
		return "", fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	if n.Field == nil {
		f.mu.Unlock()
		return "", nil
	}
	job := f.prepare(n, cloneMap(f.data))
	f.mu.Unlock()

	msg, rule := f.run(ctx, job)

	f.mu.Lock()
	f.apply(job, msg, rule)
	f.mu.Unlock()
	f.notify()
	return msg, nil
}

// Validate runs the rules of every value-bound node concurrently and waits
// for all of them. It reports whether the form is free of errors.
func (f *Form) Validate(ctx context.Context) (bool, error) {
	ctx, span := instrument.Start(ctx, instrument.KindValidate, instrument.Attrs{Form: f.key})
	defer span.End()

	f.mu.Lock()
	snap := cloneMap(f.data)
	var jobs []*fieldJob
	f.tree.Walk(func(n *ComponentData) bool {
		if n.Field != nil {
			jobs = append(jobs, f.prepare(n, snap))
		}
		return true
	})
	f.mu.Unlock()
	span.Set("fields", len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	for _, job := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			msg, rule := f.run(gctx, job)
			f.mu.Lock()
			f.apply(job, msg, rule)
			f.mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.Fail(err)
		return false, fmt.Errorf("validate form: %w", err)
	}

	valid := !f.HasErrors()
	span.Set("valid", valid)
	f.notify()
	return valid, nil
}

// HasErrors reports whether any live node carries a validation message.
func (f *Form) HasErrors() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	has := false
	f.tree.Walk(func(n *ComponentData) bool {
		if n.Field != nil && n.Field.Error != "" {
			has = true
		}
		return !has
	})
	return has
}

// Errors returns the error tree: component key to message, and for
// repeaters a list with one object per row. A repeater's own message (from
// rules on the array itself) is reported under its key only while no row
// has errors; ErrorDetails always lists it.
func (f *Form) Errors() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errors()
}

func (f *Form) errors() map[string]any {
	out := map[string]any{}
	f.collectErrors(f.tree.Root(), out)
	return out
}

func (f *Form) collectErrors(id NodeID, out map[string]any) {
	n := f.tree.Node(id)
	if n == nil {
		return
	}
	for _, cid := range n.Children {
		c := f.tree.Node(cid)
		if c == nil {
			continue
		}
		if c.Model.IsRepeater() {
			rows := make([]any, 0, len(c.Children))
			failed := false
			for _, rid := range c.Children {
				m := map[string]any{}
				f.collectErrors(rid, m)
				failed = failed || len(m) > 0
				rows = append(rows, m)
			}
			switch {
			case failed:
				out[c.Key()] = rows
			case c.Field != nil && c.Field.Error != "":
				out[c.Key()] = c.Field.Error
			}
			continue
		}
		if c.Field != nil && c.Field.Error != "" {
			out[c.Key()] = c.Field.Error
		}
		f.collectErrors(cid, out)
	}
}

// ErrorDetails lists every validation failure by path, sorted.
func (f *Form) ErrorDetails() []ErrorDetail {
	f.mu.Lock()
	defer f.mu.Unlock()
	var details []ErrorDetail
	f.tree.Walk(func(n *ComponentData) bool {
		if n.Field != nil && n.Field.Error != "" {
			details = append(details, ErrorDetail{Field: f.tree.Path(n.ID), Rule: n.Field.Rule, Message: n.Field.Error})
		}
		return true
	})
	sort.Slice(details, func(i, j int) bool { return details[i].Field < details[j].Field })
	return details
}

// MarshalDefinition serializes the persisted definition the tree mirrors.
func (f *Form) MarshalDefinition() ([]byte, error) {
	return metadata.MarshalForm(f.def)
}
