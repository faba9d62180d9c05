package template

import (
	"context"
	"fmt"
	"maps"
	"text/template"

	"github.com/dukex/ruleflow/pkg/record"
)

// Evaluator runs inline code written as a text/template. The template sees
// .record (field snapshot), .model, .id, .context and any other binding by
// name. The functions field, set and now give read and write access to the
// bound record; nothing outside the bindings is reachable.
//
// The value of a run is whatever was passed to result, or the rendered
// output coerced to a scalar when result was never called.
type Evaluator struct{}

func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

func (e *Evaluator) Run(ctx context.Context, code string, bindings map[string]any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data := make(map[string]any, len(bindings)+3)
	maps.Copy(data, bindings)

	rec, _ := bindings["record"].(record.Record)
	if rec != nil {
		data["record"] = rec.Fields()
		data["model"] = rec.Model()
		data["id"] = rec.ID()
	}

	var (
		result    any
		hasResult bool
	)

	funcs := e.funcs(rec)
	funcs["result"] = func(v any) string {
		result, hasResult = v, true

		return ""
	}

	out, err := execute("code", code, funcs, data)
	if err != nil {
		return nil, err
	}

	if hasResult {
		return result, nil
	}

	return coerce(code, out)
}

func (e *Evaluator) funcs(rec record.Record) template.FuncMap {
	funcs := baseFuncs()

	funcs["field"] = func(name string) any {
		if rec == nil {
			return nil
		}

		v, _ := rec.Get(name)

		return v
	}

	funcs["set"] = func(name string, value any) (string, error) {
		if rec == nil {
			return "", fmt.Errorf("set %q: no record bound", name)
		}

		return "", rec.Set(name, value)
	}

	return funcs
}
