package rules

import (
	"fmt"
	"slices"
	"time"
)

func booleanRules() map[string]Rule {
	return map[string]Rule{
		"required": requiredRule(func(v any) bool {
			_, ok := v.(bool)
			return ok
		}),
		"truthy": NewRule().WithValidator("The value must be true", func(v any) bool {
			b, ok := v.(bool)
			return ok && b
		}),
		"falsy": NewRule().WithValidator("The value must be false", func(v any) bool {
			b, ok := v.(bool)
			return !ok || !b
		}),
	}
}

func dateRules() map[string]Rule {
	bound := func(defaultMessage string, cmp func(v, limit time.Time) bool) Rule {
		return NewRule().
			WithParam("limit", ParamDate, true, nil).
			WithFactory(check(defaultMessage, func(v any, args map[string]any) bool {
				d, ok := toDate(v)
				if !ok {
					return false
				}
				limit, ok := toDate(args["limit"])
				return ok && cmp(d, limit)
			}))
	}
	return map[string]Rule{
		"required": requiredRule(func(v any) bool {
			_, ok := toDate(v)
			return ok
		}),
		"min": bound("The date is too early", func(v, limit time.Time) bool { return !v.Before(limit) }),
		"max": bound("The date is too late", func(v, limit time.Time) bool { return !v.After(limit) }),
	}
}

func timeRules() map[string]Rule {
	bound := func(defaultMessage string, cmp func(v, limit time.Duration) bool) Rule {
		return NewRule().
			WithParam("limit", ParamTime, true, nil).
			WithFactory(check(defaultMessage, func(v any, args map[string]any) bool {
				t, ok := toClock(v)
				if !ok {
					return false
				}
				limit, ok := toClock(args["limit"])
				return ok && cmp(t, limit)
			}))
	}
	return map[string]Rule{
		"required": requiredRule(func(v any) bool {
			_, ok := toClock(v)
			return ok
		}),
		"min": bound("The time is too early", func(v, limit time.Duration) bool { return v >= limit }),
		"max": bound("The time is too late", func(v, limit time.Duration) bool { return v <= limit }),
	}
}

func objectRules() map[string]Rule {
	return map[string]Rule{
		"required": requiredRule(func(v any) bool {
			_, ok := v.(map[string]any)
			return ok
		}),
		"nonEmpty": NewRule().WithValidator("The value must not be empty", func(v any) bool {
			m, ok := v.(map[string]any)
			return ok && len(m) > 0
		}),
	}
}

func arrayRules() map[string]Rule {
	count := func(defaultMessage, param string, cmp func(n int, limit float64) bool) Rule {
		return NewRule().
			WithParam(param, ParamNumber, true, nil).
			WithFactory(check(defaultMessage, func(v any, args map[string]any) bool {
				n, ok := collectionLength(v)
				return ok && cmp(n, argFloat(args, param))
			}))
	}
	return map[string]Rule{
		"required": requiredRule(func(v any) bool {
			_, ok := collectionLength(v)
			return ok
		}),
		"nonEmpty": NewRule().WithValidator("The list must not be empty", func(v any) bool {
			n, ok := collectionLength(v)
			return ok && n > 0
		}),
		"length": count("Invalid number of items", "length", func(n int, l float64) bool { return float64(n) == l }),
		"min":    count("Too few items", "limit", func(n int, l float64) bool { return float64(n) >= l }),
		"max":    count("Too many items", "limit", func(n int, l float64) bool { return float64(n) <= l }),
	}
}

func enumRules() map[string]Rule {
	return map[string]Rule{
		"required": requiredRule(func(v any) bool {
			s, ok := v.(string)
			return !ok || s != ""
		}),
		"oneOf": NewRule().
			WithParam("values", ParamArray, true, nil).
			WithFactory(check("The value is not allowed", func(v any, args map[string]any) bool {
				allowed := make([]string, 0)
				switch vals := args["values"].(type) {
				case []any:
					for _, a := range vals {
						allowed = append(allowed, fmt.Sprint(a))
					}
				case []string:
					allowed = vals
				}
				return slices.Contains(allowed, fmt.Sprint(v))
			})),
	}
}
