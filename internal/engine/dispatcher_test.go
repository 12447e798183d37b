package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"form-engine/internal/instrument"
	"form-engine/internal/metadata"
	"form-engine/internal/rules"
)

const orderForm = `{
	"form": {
		"key": "Screen",
		"type": "Screen",
		"children": [
			{"key": "email", "type": "Input", "schema": {"autoValidate": false, "validations": [{"key": "required"}]}},
			{"key": "items", "type": "Repeater", "props": {"max": {"value": 3}, "min": {"value": 1}}, "children": [
				{"key": "name", "type": "Input"},
				{"key": "del", "type": "Button", "events": {"onClick": [{"type": "common", "name": "removeRow"}]}},
				{"key": "dup", "type": "Button", "events": {"onClick": [{"type": "common", "name": "addRow", "args": {"item": "{\"name\": \"copy\"}"}}]}}
			]},
			{"key": "add", "type": "Button", "events": {"onClick": [
				{"type": "common", "name": "addRow", "args": {"dataKey": "items", "item": "{\"name\": \"new\"}"}}
			]}},
			{"key": "addBroken", "type": "Button", "events": {"onClick": [
				{"type": "common", "name": "addRow", "args": {"dataKey": "items", "item": "{oops", "max": 10}}
			]}},
			{"key": "addFirst", "type": "Button", "events": {"onClick": [
				{"type": "common", "name": "addRow", "args": {"dataKey": "items", "index": 0, "max": 10}}
			]}},
			{"key": "drop", "type": "Button", "events": {"onClick": [
				{"type": "common", "name": "removeRow", "args": {"dataKey": "items"}}
			]}},
			{"key": "dropFirst", "type": "Button", "events": {"onClick": [
				{"type": "common", "name": "removeRow", "args": {"dataKey": "items", "index": 0, "min": 0}}
			]}},
			{"key": "submit", "type": "Button", "events": {"onClick": [
				{"type": "common", "name": "validate", "args": {"failOnError": true}},
				{"type": "custom", "name": "onSubmit"}
			]}},
			{"key": "save", "type": "Button", "events": {"onClick": [
				{"type": "common", "name": "validate"},
				{"type": "custom", "name": "onSubmit"}
			]}},
			{"key": "chain", "type": "Button", "events": {"onClick": [
				{"type": "custom", "name": "setEmail", "args": {"to": "a@b.com"}},
				{"type": "custom", "name": "readEmail"},
				{"type": "custom", "name": "fail"},
				{"type": "custom", "name": "readEmail"}
			]}},
			{"key": "ghost", "type": "Button", "events": {"onClick": [{"type": "custom", "name": "missing"}]}},
			{"key": "reset", "type": "Button", "events": {"onClick": [{"type": "common", "name": "reset"}]}}
		]
	}
}`

func rowNames(t *testing.T, f *Form) []string {
	t.Helper()
	items, _ := f.Data()["items"].([]any)
	names := make([]string, 0, len(items))
	for _, it := range items {
		row := it.(map[string]any)
		name, _ := row["name"].(string)
		names = append(names, name)
	}
	return names
}

func itemsData(names ...string) map[string]any {
	rows := make([]any, len(names))
	for i, n := range names {
		rows[i] = map[string]any{"name": n}
	}
	return map[string]any{"items": rows}
}

func assertTreeConsistent(t *testing.T, f *Form) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tree.Walk(func(n *ComponentData) bool {
		for i, c := range n.Children {
			child := f.tree.Node(c)
			require.NotNil(t, child)
			assert.Equal(t, n.ID, child.Parent)
			if child.IsRow() {
				assert.Equal(t, i, child.RowIndex)
			}
		}
		return true
	})
	rep := f.tree.FindByKey("items")
	items, _ := f.data["items"].([]any)
	assert.Len(t, rep.Children, len(items))
}

func TestAddRow_AppendsParsedSeed(t *testing.T) {
	ctx := context.Background()
	f := newForm(t, orderForm, itemsData("a"), Options{})

	require.NoError(t, f.FirePath(ctx, "add", "onClick"))
	assert.Equal(t, []string{"a", "new"}, rowNames(t, f))
	assert.Equal(t, "new", f.Value(f.Find("items[1].name")))
	assertTreeConsistent(t, f)
}

func TestAddRow_RespectsMax(t *testing.T) {
	ctx := context.Background()
	f := newForm(t, orderForm, itemsData("a", "b", "c"), Options{})

	require.NoError(t, f.FirePath(ctx, "add", "onClick"))
	assert.Equal(t, []string{"a", "b", "c"}, rowNames(t, f))
	assertTreeConsistent(t, f)
}

func TestAddRow_MalformedSeedIsEmptyRow(t *testing.T) {
	ctx := context.Background()
	f := newForm(t, orderForm, itemsData("a"), Options{})

	require.NoError(t, f.FirePath(ctx, "addBroken", "onClick"))
	items := f.Data()["items"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, map[string]any{}, items[1])
}

func TestAddRow_AtIndexAndInferredFromRow(t *testing.T) {
	ctx := context.Background()
	f := newForm(t, orderForm, itemsData("a"), Options{})

	require.NoError(t, f.FirePath(ctx, "addFirst", "onClick"))
	assert.Equal(t, []string{"", "a"}, rowNames(t, f))

	require.NoError(t, f.FirePath(ctx, "items[1].dup", "onClick"))
	assert.Equal(t, []string{"", "a", "copy"}, rowNames(t, f))
	assertTreeConsistent(t, f)
}

func TestRemoveRow_DefaultsToLast(t *testing.T) {
	ctx := context.Background()
	f := newForm(t, orderForm, itemsData("a", "b", "c"), Options{})

	require.NoError(t, f.FirePath(ctx, "drop", "onClick"))
	assert.Equal(t, []string{"a", "b"}, rowNames(t, f))
	assert.Equal(t, NoNode, f.Find("items[2].name"))
	assertTreeConsistent(t, f)
}

func TestRemoveRow_RespectsMin(t *testing.T) {
	ctx := context.Background()
	f := newForm(t, orderForm, itemsData("a"), Options{})

	require.NoError(t, f.FirePath(ctx, "drop", "onClick"))
	assert.Equal(t, []string{"a"}, rowNames(t, f))

	require.NoError(t, f.FirePath(ctx, "dropFirst", "onClick"))
	assert.Empty(t, rowNames(t, f))
	assertTreeConsistent(t, f)
}

func TestRemoveRow_InferredFromSenderRow(t *testing.T) {
	ctx := context.Background()
	f := newForm(t, orderForm, itemsData("a", "b", "c"), Options{})
	oldLast := f.Find("items[2].name")

	require.NoError(t, f.FirePath(ctx, "items[1].del", "onClick"))
	assert.Equal(t, []string{"a", "c"}, rowNames(t, f))
	assert.Equal(t, "items[1].name", f.Path(oldLast))
	assert.Equal(t, "c", f.Value(oldLast))
	assertTreeConsistent(t, f)
}

func TestDispatch_ValidateFailOnErrorStops(t *testing.T) {
	ctx := context.Background()
	submitted := false
	f := newForm(t, orderForm, nil, Options{Actions: map[string]ActionDefinition{
		"onSubmit": Action("submit", func(context.Context, *ActionEventArgs) error {
			submitted = true
			return nil
		}),
	}})

	err := f.FirePath(ctx, "submit", "onClick")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
	assert.False(t, submitted)
	assert.Equal(t, rules.RequiredMessage, f.Error(f.Find("email")))
}

func TestDispatch_ValidateWithoutFailOnErrorContinues(t *testing.T) {
	ctx := context.Background()
	var sawErrors bool
	f := newForm(t, orderForm, nil, Options{Actions: map[string]ActionDefinition{
		"onSubmit": Action("submit", func(_ context.Context, e *ActionEventArgs) error {
			sawErrors = e.Form.HasErrors()
			return nil
		}),
	}})

	require.NoError(t, f.FirePath(ctx, "save", "onClick"))
	assert.True(t, sawErrors)
	assert.NotEmpty(t, f.Error(f.Find("email")))
}

func TestDispatch_OrderedAndStopsOnError(t *testing.T) {
	ctx := context.Background()
	var reads []any
	boom := errors.New("boom")
	f := newForm(t, orderForm, nil, Options{Actions: map[string]ActionDefinition{
		"setEmail": Action("set", func(ctx context.Context, e *ActionEventArgs) error {
			return e.Form.SetValue(ctx, e.Form.Find("email"), e.Args["to"])
		}, rules.Param{Key: "to", Type: rules.ParamString, Required: true}),
		"readEmail": Action("read", func(_ context.Context, e *ActionEventArgs) error {
			reads = append(reads, e.RootData["email"])
			return nil
		}),
		"fail": Action("fail", func(context.Context, *ActionEventArgs) error { return boom }),
	}})

	err := f.FirePath(ctx, "chain", "onClick")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []any{"a@b.com"}, reads)
}

func TestDispatch_ActionArgsSnapshot(t *testing.T) {
	ctx := context.Background()
	var got *ActionEventArgs
	src := `{"form": {"key": "Screen", "type": "Screen", "children": [
		{"key": "items", "type": "Repeater", "children": [
			{"key": "btn", "type": "Button", "events": {"onClick": [{"type": "custom", "name": "capture", "args": {"k": 1}}]}}
		]}
	]}}`
	f := newForm(t, src, itemsData("a", "b"), Options{Actions: map[string]ActionDefinition{
		"capture": Action("capture", func(ctx context.Context, e *ActionEventArgs) error {
			got = e
			return e.SetValue(ctx, "name", "changed")
		}),
	}})

	require.NoError(t, f.FirePath(ctx, "items[1].btn", "onClick"))
	require.NotNil(t, got)
	assert.Equal(t, "onClick", got.Event)
	assert.Equal(t, "btn", got.Sender.Key())
	assert.Equal(t, 1, got.Index)
	assert.Equal(t, "b", got.Data["name"])
	assert.Len(t, got.ParentData["items"], 2)
	assert.Equal(t, float64(1), got.Args["k"])
	assert.Equal(t, []string{"a", "changed"}, rowNames(t, f))
	assert.Equal(t, "b", got.Data["name"])
}

func TestDispatch_UnknownActionAndNode(t *testing.T) {
	ctx := context.Background()
	f := newForm(t, orderForm, nil, Options{})

	assert.ErrorIs(t, f.FirePath(ctx, "ghost", "onClick"), ErrUnknownAction)
	assert.ErrorIs(t, f.FirePath(ctx, "nowhere", "onClick"), ErrUnknownNode)
	assert.NoError(t, f.FirePath(ctx, "email", "onBlur"))
}

func TestDispatch_MissingRequiredArg(t *testing.T) {
	ctx := context.Background()
	src := `{"form": {"key": "Screen", "type": "Screen", "children": [
		{"key": "go", "type": "Button", "events": {"onClick": [{"type": "custom", "name": "needsArg"}]}}
	]}}`
	called := false
	f := newForm(t, src, nil, Options{Actions: map[string]ActionDefinition{
		"needsArg": Action("x", func(context.Context, *ActionEventArgs) error {
			called = true
			return nil
		}, rules.Param{Key: "target", Type: rules.ParamString, Required: true}),
	}})
	err := f.FirePath(ctx, "go", "onClick")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target")
	assert.False(t, called)
}

func TestDispatch_ResetRestoresInitialRows(t *testing.T) {
	ctx := context.Background()
	f := newForm(t, orderForm, itemsData("a", "b"), Options{})
	require.NoError(t, f.FirePath(ctx, "add", "onClick"))
	require.Len(t, rowNames(t, f), 3)

	require.NoError(t, f.FirePath(ctx, "reset", "onClick"))
	assert.Equal(t, []string{"a", "b"}, rowNames(t, f))
	assertTreeConsistent(t, f)
}

type spanRecorder struct {
	mu     sync.Mutex
	events []instrument.Event
}

func (r *spanRecorder) Enqueue(e instrument.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *spanRecorder) find(kind instrument.Kind, node string) *instrument.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.events {
		if r.events[i].Kind == kind && r.events[i].Node == node {
			return &r.events[i]
		}
	}
	return nil
}

func TestDispatch_TracesEventActionAndRule(t *testing.T) {
	rec := &spanRecorder{}
	ctx := instrument.WithTrace(context.Background(), instrument.NewTracer(rec), "")
	f := newForm(t, orderForm, nil, Options{Key: "orders"})

	require.ErrorIs(t, f.FirePath(ctx, "submit", "onClick"), ErrValidationFailed)

	event := rec.find(instrument.KindEvent, "submit")
	require.NotNil(t, event)
	assert.Equal(t, "orders", event.Form)
	assert.Equal(t, "onClick", event.Event)
	assert.Equal(t, instrument.StatusError, event.Status)

	action := rec.find(instrument.KindAction, "submit")
	require.NotNil(t, action)
	assert.Equal(t, "validate", action.Action)
	assert.Equal(t, event.SpanID, action.ParentSpanID)

	validate := rec.find(instrument.KindValidate, "")
	require.NotNil(t, validate)
	assert.Equal(t, action.SpanID, validate.ParentSpanID)
	assert.Equal(t, false, validate.Detail["valid"])

	field := rec.find(instrument.KindField, "email")
	require.NotNil(t, field)
	assert.Equal(t, "required", field.Rule)
	assert.Equal(t, instrument.StatusInvalid, field.Status)
	assert.Equal(t, validate.SpanID, field.ParentSpanID)
	assert.Equal(t, rules.RequiredMessage, field.Detail["message"])
}

func TestDispatch_LogAction(t *testing.T) {
	ctx := context.Background()
	hook := test.NewGlobal()
	defer hook.Reset()

	src := `{"form": {"key": "Screen", "type": "Screen", "children": [
		{"key": "note", "type": "Button", "events": {"onClick": [
			{"type": "common", "name": "log", "args": {"message": "note clicked", "level": "warn"}}
		]}},
		{"key": "loud", "type": "Button", "events": {"onClick": [
			{"type": "common", "name": "log", "args": {"message": "loud clicked", "level": "shouting"}}
		]}},
		{"key": "bare", "type": "Button", "events": {"onClick": [{"type": "common", "name": "log"}]}}
	]}}`
	f := newForm(t, src, nil, Options{Key: "orders"})

	find := func(msg string) *logrus.Entry {
		for _, e := range hook.AllEntries() {
			if e.Message == msg {
				return e
			}
		}
		return nil
	}

	require.NoError(t, f.FirePath(ctx, "note", "onClick"))
	entry := find("note clicked")
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "orders", entry.Data["form"])
	assert.Equal(t, "note", entry.Data["node"])
	assert.Equal(t, "onClick", entry.Data["event"])

	require.NoError(t, f.FirePath(ctx, "loud", "onClick"))
	entry = find("loud clicked")
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)

	require.NoError(t, f.FirePath(ctx, "bare", "onClick"))
	entry = find("form event")
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "bare", entry.Data["node"])
}

func TestDispatcher_Registry(t *testing.T) {
	d := NewDispatcher(nil)
	assert.Equal(t, []string{"addRow", "clear", "log", "removeRow", "reset", "validate"}, d.Names(metadata.ActionCommon))
	assert.Empty(t, d.Names(metadata.ActionCustom))

	d.Register("ping", Action("ping", func(context.Context, *ActionEventArgs) error { return nil }))
	_, ok := d.Lookup(metadata.ActionCustom, "ping")
	assert.True(t, ok)
	_, ok = d.Lookup(metadata.ActionCommon, "ping")
	assert.False(t, ok)
}

func TestParseRowSeed(t *testing.T) {
	assert.Equal(t, map[string]any{"a": float64(1)}, parseRowSeed(`{"a": 1}`))
	assert.Equal(t, map[string]any{}, parseRowSeed(`[1, 2]`))
	assert.Equal(t, map[string]any{}, parseRowSeed(nil))
	assert.Equal(t, map[string]any{}, parseRowSeed(42.0))
}
