// Package trace walks a step list the way a reader would follow the drawn
// flowchart: conditions are evaluated against a vars document and process
// steps may rewrite it. The visited indexes feed diagram.WithHighlight.
package trace

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/rendis/flowchart/internal/diagram"
	"github.com/rendis/flowchart/internal/expressions"
	"github.com/rendis/flowchart/pkg/schema"
)

// DefaultMaxVisits bounds how often a single step may be entered before the
// walk is considered stuck in a loop.
const DefaultMaxVisits = 100

const endIndex = -1

// Visit records one step entered during a walk.
type Visit struct {
	Index  int             `json:"index"`
	ID     string          `json:"id"`
	Type   schema.StepType `json:"type"`
	Text   string          `json:"text"`
	Branch string          `json:"branch,omitempty"`
}

// Result is the outcome of a walk that reached End.
type Result struct {
	Path []Visit        `json:"path"`
	Vars map[string]any `json:"vars"`
}

// Visited returns the distinct step indexes of the path in first-visit order.
func (r *Result) Visited() []int {
	seen := make(map[int]bool, len(r.Path))
	var out []int
	for _, v := range r.Path {
		if !seen[v.Index] {
			seen[v.Index] = true
			out = append(out, v.Index)
		}
	}
	return out
}

// Walker follows step lists. Conditions go through cond; process-step
// transforms always go through jq.
type Walker struct {
	cond      expressions.Engine
	jq        *expressions.GoJQEngine
	maxVisits int
	logger    *slog.Logger
}

// Option configures a Walker.
type Option func(*Walker)

// WithMaxVisits overrides DefaultMaxVisits. Values below 1 are ignored.
func WithMaxVisits(n int) Option {
	return func(w *Walker) {
		if n > 0 {
			w.maxVisits = n
		}
	}
}

// WithLogger sets the logger used for per-step debug output.
func WithLogger(l *slog.Logger) Option {
	return func(w *Walker) { w.logger = l }
}

// NewWalker creates a walker evaluating conditions with cond.
func NewWalker(cond expressions.Engine, opts ...Option) *Walker {
	w := &Walker{
		cond:      cond,
		jq:        expressions.NewGoJQEngine(),
		maxVisits: DefaultMaxVisits,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Walk follows steps from the first one until End. vars is copied, never
// mutated. Unknown step types are passed through like the translator skips them.
func (w *Walker) Walk(ctx context.Context, steps []schema.Step, vars map[string]any) (*Result, error) {
	state := make(map[string]any, len(vars))
	for k, v := range vars {
		state[k] = v
	}

	res := &Result{Vars: state}
	visits := make(map[int]int, len(steps))

	i := 0
	if len(steps) == 0 {
		i = endIndex
	}
	for i != endIndex {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		step := steps[i]
		id := diagram.StepID(i)
		visits[i]++
		if visits[i] > w.maxVisits {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"step entered more than %d times", w.maxVisits).
				WithNode(id).
				WithDetails(map[string]any{"max_visits": w.maxVisits})
		}

		visit := Visit{Index: i, ID: id, Type: step.Type, Text: step.Text}
		next := i + 1
		if next >= len(steps) {
			next = endIndex
		}

		switch step.Type {
		case schema.StepTypeCondition:
			ok, err := w.evalCondition(ctx, step, i, visits[i], res.Vars)
			if err != nil {
				return nil, err
			}
			target := step.NoPath
			visit.Branch = "no"
			if ok {
				target = step.YesPath
				visit.Branch = "yes"
			}
			if target != "" {
				next, err = resolveTarget(target, len(steps))
				if err != nil {
					return nil, withStep(err, i)
				}
			}

		case schema.StepTypeProcess:
			if step.Expr != "" {
				updated, err := w.transform(ctx, step.Expr, res.Vars)
				if err != nil {
					return nil, withStep(err, i)
				}
				res.Vars = updated
			}
		}

		w.logger.DebugContext(ctx, "trace step",
			slog.String("step", id),
			slog.String("type", string(step.Type)),
			slog.String("branch", visit.Branch),
		)
		res.Path = append(res.Path, visit)
		i = next
	}

	return res, nil
}

func (w *Walker) evalCondition(ctx context.Context, step schema.Step, index, visits int, vars map[string]any) (bool, error) {
	expression := step.Expr
	if expression == "" {
		expression = step.Text
	}
	out, err := w.cond.Evaluate(ctx, expression, map[string]any{
		"vars": vars,
		"step": map[string]any{"index": index, "text": step.Text, "visits": visits},
	})
	if err != nil {
		return false, withStep(err, index)
	}
	ok, err := expressions.AsBool(expression, out)
	if err != nil {
		return false, withStep(err, index)
	}
	return ok, nil
}

// transform runs a jq program on vars; it must produce exactly one object.
func (w *Walker) transform(ctx context.Context, program string, vars map[string]any) (map[string]any, error) {
	out, err := w.jq.Evaluate(ctx, program, vars)
	if err != nil {
		return nil, err
	}
	updated, ok := out.(map[string]any)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeExpression,
			"transform %q returned %T, want object", program, out).
			WithDetails(map[string]any{"expression": program})
	}
	return updated, nil
}

// resolveTarget maps a branch target identifier to a step index, or endIndex
// for End.
func resolveTarget(target string, n int) (int, error) {
	if target == diagram.EndID {
		return endIndex, nil
	}
	if rest, ok := strings.CutPrefix(target, "step"); ok {
		if idx, err := strconv.Atoi(rest); err == nil && idx >= 0 && idx < n {
			return idx, nil
		}
	}
	return 0, schema.NewErrorf(schema.ErrCodeNotFound, "branch target %q does not match any step", target).
		WithDetails(map[string]any{"target": target})
}

func withStep(err error, index int) error {
	var fe *schema.FlowError
	if errors.As(err, &fe) {
		return fe.WithNode(diagram.StepID(index))
	}
	return err
}
