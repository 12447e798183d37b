package rules

import "math"

func numberCheck(defaultMessage string, pred func(n float64, args map[string]any) bool) Factory {
	return check(defaultMessage, func(v any, args map[string]any) bool {
		n, ok := toFloat64(v)
		return ok && pred(n, args)
	})
}

func numberRules() map[string]Rule {
	limit := func(r Rule) Rule { return r.WithParam("limit", ParamNumber, true, nil) }
	return map[string]Rule{
		"required": requiredRule(func(v any) bool {
			_, ok := toFloat64(v)
			return ok
		}),
		"min": limit(NewRule()).WithFactory(numberCheck("The value is too small", func(n float64, args map[string]any) bool {
			return n >= argFloat(args, "limit")
		})),
		"max": limit(NewRule()).WithFactory(numberCheck("The value is too large", func(n float64, args map[string]any) bool {
			return n <= argFloat(args, "limit")
		})),
		"lessThan": NewRule().
			WithParam("value", ParamNumber, true, nil).
			WithFactory(numberCheck("The value is too large", func(n float64, args map[string]any) bool {
				return n < argFloat(args, "value")
			})),
		"moreThan": NewRule().
			WithParam("value", ParamNumber, true, nil).
			WithFactory(numberCheck("The value is too small", func(n float64, args map[string]any) bool {
				return n > argFloat(args, "value")
			})),
		"integer": NewRule().WithFactory(numberCheck("The value must be an integer", func(n float64, _ map[string]any) bool {
			return isInteger(n)
		})),
		"multipleOf": NewRule().
			WithParam("value", ParamNumber, true, nil).
			WithFactory(numberCheck("Invalid value", func(n float64, args map[string]any) bool {
				step := argFloat(args, "value")
				if step == 0 {
					return false
				}
				q := n / step
				return math.Abs(q-math.Round(q)) < 1e-9
			})),
		"positive": NewRule().WithFactory(numberCheck("The value must be positive", func(n float64, _ map[string]any) bool {
			return n > 0
		})),
		"negative": NewRule().WithFactory(numberCheck("The value must be negative", func(n float64, _ map[string]any) bool {
			return n < 0
		})),
		"nonNegative": NewRule().WithFactory(numberCheck("The value must not be negative", func(n float64, _ map[string]any) bool {
			return n >= 0
		})),
		"nonPositive": NewRule().WithFactory(numberCheck("The value must not be positive", func(n float64, _ map[string]any) bool {
			return n <= 0
		})),
	}
}
