package engine

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"form-engine/internal/rules"
)

// CommonActions returns the built-in actions available to "common" bindings.
func CommonActions() map[string]ActionDefinition {
	return map[string]ActionDefinition{
		"log": Action("Log the event and the sender's data.", logAction,
			rules.MessageParam,
			rules.Param{Key: "level", Type: rules.ParamString, Default: "info"}),
		"validate": Action("Validate the whole form.", validateAction,
			rules.Param{Key: "failOnError", Type: rules.ParamBoolean, Default: false}),
		"clear": Action("Empty the form data and errors.", clearAction),
		"reset": Action("Restore the initial data and clear errors.", resetAction),
		"addRow": Action("Insert a row into a repeater array.", addRowAction,
			rules.Param{Key: "dataKey", Type: rules.ParamString},
			rules.Param{Key: "index", Type: rules.ParamNumber, Default: float64(-1)},
			rules.Param{Key: "item", Type: rules.ParamString},
			rules.Param{Key: "max", Type: rules.ParamNumber}),
		"removeRow": Action("Remove a row from a repeater array.", removeRowAction,
			rules.Param{Key: "dataKey", Type: rules.ParamString},
			rules.Param{Key: "index", Type: rules.ParamNumber},
			rules.Param{Key: "min", Type: rules.ParamNumber}),
	}
}

func logAction(_ context.Context, e *ActionEventArgs) error {
	entry := logrus.WithFields(logrus.Fields{
		"form":  e.Form.Key(),
		"node":  e.Path,
		"event": e.Event,
		"data":  e.Data,
	})
	msg, _ := e.Args[rules.MessageParam.Key].(string)
	if msg == "" {
		msg = "form event"
	}
	level, err := logrus.ParseLevel(fmt.Sprint(e.Args["level"]))
	if err != nil {
		level = logrus.InfoLevel
	}
	entry.Log(level, msg)
	return nil
}

func validateAction(ctx context.Context, e *ActionEventArgs) error {
	valid, err := e.Form.Validate(ctx)
	if err != nil {
		return err
	}
	if !valid && e.Args["failOnError"] == true {
		return ErrValidationFailed
	}
	return nil
}

func clearAction(ctx context.Context, e *ActionEventArgs) error {
	e.Form.Clear(ctx)
	return nil
}

func resetAction(ctx context.Context, e *ActionEventArgs) error {
	e.Form.Reset(ctx)
	return nil
}

func addRowAction(ctx context.Context, e *ActionEventArgs) error {
	dataKey, _ := e.Args["dataKey"].(string)
	index, ok := toInt(e.Args["index"])
	if !ok {
		index = -1
	}
	maxRows, ok := toInt(e.Args["max"])
	if !ok {
		maxRows = -1
	}
	_, err := e.Form.AddRow(ctx, e.SenderID, dataKey, index, parseRowSeed(e.Args["item"]), maxRows)
	return err
}

func removeRowAction(ctx context.Context, e *ActionEventArgs) error {
	dataKey, _ := e.Args["dataKey"].(string)
	var index *int
	if i, ok := toInt(e.Args["index"]); ok {
		index = &i
	}
	minRows, ok := toInt(e.Args["min"])
	if !ok {
		minRows = -1
	}
	_, err := e.Form.RemoveRow(ctx, e.SenderID, dataKey, index, minRows)
	return err
}
