package config

import (
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Raw is an unresolved parameter set. Each value is an HCL expression that may
// reference other parameters by name.
type Raw map[string]hcl.Expression

// SetString parses tmpl as an HCL template and stores it under name,
// replacing any previous value.
func (r Raw) SetString(name, tmpl string) error {
	expr, diags := hclsyntax.ParseTemplate([]byte(tmpl), name, hcl.InitialPos)
	if diags.HasErrors() {
		return fmt.Errorf("parsing parameter %q: %w", name, diags)
	}
	r[name] = expr
	return nil
}

func (r Raw) names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolved is an immutable, fully expanded parameter set.
type Resolved struct {
	values map[string]string
	broken map[string]*MissingParameterError
}

// Resolve expands every value of raw. Each pass evaluates the values that are
// still unresolved against the ones resolved so far; a value is resolved once
// everything it references is. Passes stop when one makes no progress, so
// the loop runs at most len(raw)+1 times. Values left over at that point
// reference each other in a cycle.
//
// Values that reference a parameter with no value are not an error here; Get
// reports them when they are asked for.
func Resolve(raw Raw) (*Resolved, error) {
	names := raw.names()
	broken := brokenReferences(raw, names)

	vars := make(map[string]cty.Value, len(raw))
	for _, name := range names {
		vars[name] = cty.UnknownVal(cty.String)
	}
	evalCtx := &hcl.EvalContext{Variables: vars}

	values := make(map[string]string, len(raw))
	for pass := 0; pass <= len(raw); pass++ {
		progress := false
		for _, name := range names {
			if _, done := values[name]; done {
				continue
			}
			if _, ok := broken[name]; ok {
				continue
			}
			v, diags := raw[name].Value(evalCtx)
			if diags.HasErrors() {
				return nil, fmt.Errorf("evaluating parameter %q: %w", name, diags)
			}
			if !v.IsWhollyKnown() {
				continue
			}
			s, err := asString(v)
			if err != nil {
				return nil, fmt.Errorf("evaluating parameter %q: %w", name, err)
			}
			values[name] = s
			vars[name] = cty.StringVal(s)
			progress = true
		}
		if !progress {
			break
		}
	}

	if len(values)+len(broken) < len(raw) {
		var pending []string
		for _, name := range names {
			_, done := values[name]
			_, bad := broken[name]
			if !done && !bad {
				pending = append(pending, name)
			}
		}
		return nil, &CyclicConfigurationError{Keys: pending}
	}

	return &Resolved{values: values, broken: broken}, nil
}

// brokenReferences finds the parameters that reference, directly or through
// other parameters, a name that has no value at all. They stay unresolved and
// report the missing name when asked for.
func brokenReferences(raw Raw, names []string) map[string]*MissingParameterError {
	broken := make(map[string]*MissingParameterError)
	for changed := true; changed; {
		changed = false
		for _, name := range names {
			if _, ok := broken[name]; ok {
				continue
			}
			for _, traversal := range raw[name].Variables() {
				ref := traversal.RootName()
				if _, ok := raw[ref]; !ok {
					broken[name] = &MissingParameterError{Key: ref, Referrer: name}
				} else if cause, ok := broken[ref]; ok {
					broken[name] = &MissingParameterError{Key: cause.Key, Referrer: name}
				} else {
					continue
				}
				changed = true
				break
			}
		}
	}
	return broken
}

func asString(v cty.Value) (string, error) {
	if v.IsNull() {
		return "", nil
	}
	sv, err := convert.Convert(v, cty.String)
	if err != nil {
		return "", err
	}
	return sv.AsString(), nil
}

// Get returns the resolved value of key.
func (r *Resolved) Get(key string) (string, error) {
	if v, ok := r.values[key]; ok {
		return v, nil
	}
	if err, ok := r.broken[key]; ok {
		return "", err
	}
	return "", &MissingParameterError{Key: key}
}

// Keys returns the sorted parameter names.
func (r *Resolved) Keys() []string {
	keys := make([]string, 0, len(r.values))
	for k := range r.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Variables exposes the parameters as cty values for template evaluation.
func (r *Resolved) Variables() map[string]cty.Value {
	vars := make(map[string]cty.Value, len(r.values))
	for k, v := range r.values {
		vars[k] = cty.StringVal(v)
	}
	return vars
}

// EvalContext returns an HCL evaluation context with every parameter bound
// as a variable.
func (r *Resolved) EvalContext() *hcl.EvalContext {
	return &hcl.EvalContext{Variables: r.Variables()}
}
