package broadcast

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
)

// Filter wraps a compiled CEL program evaluated per event. A nil or disabled
// filter accepts everything. Exposed variables:
//
//	type    string  - event type
//	order   dyn     - parsed order snapshot, null for alerts
//	alert   dyn     - parsed alert payload, null for order events
//	now_ms  int     - evaluation time
type Filter struct {
	prog    cel.Program
	enabled bool
}

// NewFilter compiles expr. An empty expression returns a disabled filter.
func NewFilter(expr string) (*Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return &Filter{}, nil
	}
	// The variables live in an "evt" container so the bare name `type`
	// resolves to our declaration instead of colliding with the identifier
	// the CEL standard library reserves for the type() conversion.
	env, err := cel.NewEnv(
		cel.Container("evt"),
		cel.Variable("evt.type", cel.StringType),
		cel.Variable("evt.order", cel.DynType),
		cel.Variable("evt.alert", cel.DynType),
		cel.Variable("evt.now_ms", cel.IntType),
	)
	if err != nil {
		return nil, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return nil, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return nil, iss2.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return nil, err
	}
	return &Filter{prog: prog, enabled: true}, nil
}

// Eval applies the filter. Evaluation errors reject the event.
func (f *Filter) Eval(ev Event) bool {
	if f == nil || !f.enabled {
		return true
	}
	var orderObj, alertObj any
	_ = json.Unmarshal(ev.Order, &orderObj)
	_ = json.Unmarshal(ev.Alert, &alertObj)
	out, _, err := f.prog.Eval(map[string]any{
		"evt.type":   ev.Type,
		"evt.order":  orderObj,
		"evt.alert":  alertObj,
		"evt.now_ms": time.Now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
