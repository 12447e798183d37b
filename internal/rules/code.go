package rules

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"form-engine/internal/expression"
)

// CodeParam holds the expression source of a code rule.
const CodeParam = "code"

// CodeEnv is the environment a code rule expression sees: the field value
// and the form data, both directly and as form.rootData.
func CodeEnv(value any, formData map[string]any) map[string]any {
	return map[string]any{
		"value":    value,
		"formData": formData,
		"form":     map[string]any{"rootData": formData},
	}
}

// codeRule compiles user validation source once. A compile failure is logged
// the first time a source is seen and yields a validator that always passes.
// At run time a true result passes, a string result is used as the failure
// message, and a runtime error is logged and treated as a pass.
func codeRule(ev *expression.Evaluator) Rule {
	var reported sync.Map
	return NewRule().
		WithParam(CodeParam, ParamString, true, nil).
		WithFactory(func(args map[string]any) Validator {
			source := argString(args, CodeParam)
			msg := messageOr(args, "Invalid value")
			prog, err := ev.Compile(source)
			if err != nil {
				if _, seen := reported.LoadOrStore(source, struct{}{}); !seen {
					logrus.WithFields(logrus.Fields{"rule": "code", "source": source}).
						WithError(err).Error("compile validation code")
				}
				return alwaysPass
			}
			return func(_ context.Context, value any, formData map[string]any) (bool, string) {
				out, err := expression.Run(prog, CodeEnv(value, formData))
				if err != nil {
					logrus.WithFields(logrus.Fields{"rule": "code", "source": source}).
						WithError(err).Warn("run validation code")
					return true, ""
				}
				switch r := out.(type) {
				case bool:
					if r {
						return true, ""
					}
					return false, msg
				case string:
					if r == "" {
						return false, msg
					}
					return false, r
				case nil:
					return true, ""
				default:
					return false, fmt.Sprint(r)
				}
			}
		})
}

func alwaysPass(context.Context, any, map[string]any) (bool, string) { return true, "" }
