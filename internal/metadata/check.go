package metadata

import (
	_ "embed"
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/hashicorp/go-multierror"
)

//go:embed form.cue
var formSchemaCUE string

var (
	shapeOnce sync.Once
	shapeCtx  *cue.Context
	shapeDef  cue.Value
	shapeErr  error
)

func formShape() (*cue.Context, cue.Value, error) {
	shapeOnce.Do(func() {
		shapeCtx = cuecontext.New()
		schema := shapeCtx.CompileString(formSchemaCUE, cue.Filename("form.cue"))
		if err := schema.Err(); err != nil {
			shapeErr = fmt.Errorf("compile form schema: %w", err)
			return
		}
		shapeDef = schema.LookupPath(cue.ParsePath("#PersistedForm"))
		if err := shapeDef.Err(); err != nil {
			shapeErr = fmt.Errorf("lookup #PersistedForm: %w", err)
		}
	})
	return shapeCtx, shapeDef, shapeErr
}

// shapeMu serializes use of the shared cue.Context, which is not safe for
// concurrent use.
var shapeMu sync.Mutex

// CheckShape validates raw persisted-form JSON against the embedded CUE
// schema. Every violation is reported.
func CheckShape(data []byte) error {
	shapeMu.Lock()
	defer shapeMu.Unlock()

	ctx, def, err := formShape()
	if err != nil {
		return err
	}

	doc := ctx.CompileBytes(data, cue.Filename("form.json"))
	if err := doc.Err(); err != nil {
		return fmt.Errorf("decode form: %w", err)
	}

	unified := def.Unify(doc)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		var result *multierror.Error
		for _, e := range cueerrors.Errors(err) {
			result = multierror.Append(result, fmt.Errorf("%s", e.Error()))
		}
		return result.ErrorOrNil()
	}
	return nil
}

// CheckKeys reports empty and duplicated component keys across the tree.
func CheckKeys(root *ComponentStore) error {
	if root == nil {
		return fmt.Errorf("form has no root component")
	}

	counts := ReduceStores(root, func(acc map[string]int, s *ComponentStore) map[string]int {
		acc[s.Key]++
		return acc
	}, map[string]int{})

	var result *multierror.Error
	if counts[""] > 0 {
		result = multierror.Append(result, fmt.Errorf("%d component(s) have an empty key", counts[""]))
	}

	dups := make([]string, 0)
	for key, n := range counts {
		if key != "" && n > 1 {
			dups = append(dups, key)
		}
	}
	sort.Strings(dups)
	for _, key := range dups {
		result = multierror.Append(result, fmt.Errorf("duplicate component key %q (%d occurrences)", key, counts[key]))
	}
	return result.ErrorOrNil()
}

// CheckTypes reports component types missing from the model registry.
func CheckTypes(root *ComponentStore, reg *Registry) error {
	var result *multierror.Error
	root.Walk(func(s *ComponentStore, _ int) bool {
		if reg.GetModel(s.Type) == nil {
			result = multierror.Append(result, fmt.Errorf("component %q: unknown type %q", s.Key, s.Type))
		}
		return true
	})
	return result.ErrorOrNil()
}

// Check runs the shape, key and type checks over a raw form document and
// returns every problem found.
func Check(data []byte, reg *Registry) error {
	var result *multierror.Error
	if err := CheckShape(data); err != nil {
		result = multierror.Append(result, err)
	}

	pf, err := ParseForm(data)
	if err != nil {
		result = multierror.Append(result, err)
		return result.ErrorOrNil()
	}
	if err := CheckKeys(pf.Form); err != nil {
		result = multierror.Append(result, err)
	}
	if reg != nil {
		if err := CheckTypes(pf.Form, reg); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
