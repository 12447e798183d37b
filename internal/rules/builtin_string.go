package rules

import (
	"context"
	"net"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// RequiredMessage is the failure text of every required rule.
const RequiredMessage = "This field is required"

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-']+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

func requiredRule(present func(value any) bool) Rule {
	return NewRule().WithFactory(func(args map[string]any) Validator {
		msg := messageOr(args, RequiredMessage)
		return func(_ context.Context, value any, _ map[string]any) (bool, string) {
			if value != nil && present(value) {
				return true, ""
			}
			return false, msg
		}
	})
}

func stringRules() map[string]Rule {
	return map[string]Rule{
		"required": requiredRule(func(v any) bool {
			s, ok := v.(string)
			return !ok || s != ""
		}),
		"nonEmpty": NewRule().WithValidator("The value must not be empty", func(v any) bool {
			s, ok := toText(v)
			return ok && strings.TrimSpace(s) != ""
		}),
		"length": NewRule().
			WithParam("length", ParamNumber, true, nil).
			WithFactory(check("Invalid length", func(v any, args map[string]any) bool {
				n, ok := textLength(v)
				return ok && n == int(argFloat(args, "length"))
			})),
		"min": NewRule().
			WithParam("limit", ParamNumber, true, nil).
			WithFactory(check("The value is too short", func(v any, args map[string]any) bool {
				n, ok := textLength(v)
				return ok && float64(n) >= argFloat(args, "limit")
			})),
		"max": NewRule().
			WithParam("limit", ParamNumber, true, nil).
			WithFactory(check("The value is too long", func(v any, args map[string]any) bool {
				n, ok := textLength(v)
				return ok && float64(n) <= argFloat(args, "limit")
			})),
		"regex": NewRule().
			WithParam("regex", ParamString, true, nil).
			WithFactory(func(args map[string]any) Validator {
				msg := messageOr(args, "The value does not match the pattern")
				re, err := regexp.Compile(argString(args, "regex"))
				return optional(func(_ context.Context, v any, _ map[string]any) (bool, string) {
					s, ok := toText(v)
					if !ok || err != nil || !re.MatchString(s) {
						return false, msg
					}
					return true, ""
				})
			}),
		"email": NewRule().WithFactory(check("Invalid email address", func(v any, _ map[string]any) bool {
			s, ok := toText(v)
			return ok && emailPattern.MatchString(s)
		})),
		"url": NewRule().WithFactory(check("Invalid URL", func(v any, _ map[string]any) bool {
			s, ok := toText(v)
			if !ok {
				return false
			}
			u, err := url.Parse(s)
			return err == nil && u.Scheme != "" && (u.Host != "" || u.Opaque != "")
		})),
		"uuid": NewRule().WithFactory(check("Invalid UUID", func(v any, _ map[string]any) bool {
			s, ok := toText(v)
			if !ok || len(s) != 36 {
				return false
			}
			_, err := uuid.Parse(s)
			return err == nil
		})),
		"ip": NewRule().
			WithParam("version", ParamString, false, nil).
			WithFactory(check("Invalid IP address", func(v any, args map[string]any) bool {
				s, ok := toText(v)
				if !ok {
					return false
				}
				ip := net.ParseIP(s)
				if ip == nil {
					return false
				}
				switch argString(args, "version") {
				case "v4":
					return ip.To4() != nil
				case "v6":
					return ip.To4() == nil
				}
				return true
			})),
		"datetime": NewRule().WithFactory(check("Invalid date and time", func(v any, _ map[string]any) bool {
			_, ok := toDate(v)
			return ok
		})),
		"includes": NewRule().
			WithParam("value", ParamString, true, nil).
			WithFactory(check("The value must include the required text", func(v any, args map[string]any) bool {
				s, ok := toText(v)
				return ok && strings.Contains(s, argString(args, "value"))
			})),
		"startsWith": NewRule().
			WithParam("value", ParamString, true, nil).
			WithFactory(check("The value has an invalid prefix", func(v any, args map[string]any) bool {
				s, ok := toText(v)
				return ok && strings.HasPrefix(s, argString(args, "value"))
			})),
		"endsWith": NewRule().
			WithParam("value", ParamString, true, nil).
			WithFactory(check("The value has an invalid suffix", func(v any, args map[string]any) bool {
				s, ok := toText(v)
				return ok && strings.HasSuffix(s, argString(args, "value"))
			})),
	}
}
