package engine

import (
	"maps"

	"github.com/sirupsen/logrus"

	"form-engine/internal/expression"
	"form-engine/internal/metadata"
)

// Localization types passed to a Localizer.
const (
	LocalizeComponent = "component"
	LocalizeTooltip   = "tooltip"
)

// Localizer returns the localized texts of one node for one localization type.
type Localizer func(locType string, node *ComponentData) map[string]any

// StaticLocalizer resolves texts from a persisted localization table.
func StaticLocalizer(loc metadata.Localization, language string) Localizer {
	return func(locType string, node *ComponentData) map[string]any {
		return loc.Lookup(language, node.Store.Key, locType)
	}
}

// Calculator resolves property values. Function sources are compiled once
// through the shared evaluator cache.
type Calculator struct {
	eval *expression.Evaluator
}

func NewCalculator(ev *expression.Evaluator) *Calculator {
	if ev == nil {
		ev = expression.NewEvaluator()
	}
	return &Calculator{eval: ev}
}

// CalculateProperty resolves props[key] of node against env. It reports false
// with the raw value for static properties, and true with the result for
// computed ones. Evaluation errors are logged and yield nil.
func (c *Calculator) CalculateProperty(node *ComponentData, key string, env map[string]any, localizer Localizer) (bool, any) {
	prop, ok := node.Store.Props[key]
	if !ok {
		return false, nil
	}
	return c.calculate(node, key, prop, LocalizeComponent, env, localizer)
}

// CalculateTooltipProperty is CalculateProperty for tooltipProps.
func (c *Calculator) CalculateTooltipProperty(node *ComponentData, key string, env map[string]any, localizer Localizer) (bool, any) {
	prop, ok := node.Store.TooltipProps[key]
	if !ok {
		return false, nil
	}
	return c.calculate(node, key, prop, LocalizeTooltip, env, localizer)
}

func (c *Calculator) calculate(node *ComponentData, key string, prop metadata.PropertyValue, locType string, env map[string]any, localizer Localizer) (bool, any) {
	switch prop.Kind {
	case metadata.PropertyStatic:
		return false, prop.Value
	case metadata.PropertyFunction:
		v, err := c.eval.Evaluate(prop.FnSource, env)
		if err != nil {
			logrus.WithFields(logrus.Fields{"node": node.Store.Key, "property": key}).
				WithError(err).Warn("calculate property")
			return true, nil
		}
		return true, v
	case metadata.PropertyLocalized:
		if localizer == nil {
			return true, nil
		}
		return true, localizer(locType, node)[key]
	default:
		logrus.WithFields(logrus.Fields{"node": node.Store.Key, "property": key}).Debug("malformed property ignored")
		return false, nil
	}
}

// ComputeState merges model defaults, static props and computed props into
// the node's property bag, and does the same for tooltip props.
func (c *Calculator) ComputeState(node *ComponentData, env map[string]any, localizer Localizer) (state, tooltip map[string]any) {
	state = make(map[string]any, len(node.Store.Props))
	if node.Model != nil {
		maps.Copy(state, node.Model.DefaultProps)
	}
	for key, prop := range node.Store.Props {
		if prop.Kind == metadata.PropertyMalformed {
			continue
		}
		_, v := c.calculate(node, key, prop, LocalizeComponent, env, localizer)
		state[key] = v
	}
	if node.Problem != "" {
		state["error"] = node.Problem
	}

	if len(node.Store.TooltipProps) > 0 {
		tooltip = make(map[string]any, len(node.Store.TooltipProps))
		for key, prop := range node.Store.TooltipProps {
			if prop.Kind == metadata.PropertyMalformed {
				continue
			}
			_, v := c.calculate(node, key, prop, LocalizeTooltip, env, localizer)
			tooltip[key] = v
		}
	}
	return state, tooltip
}
