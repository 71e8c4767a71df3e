// Package optimize groups the numeric indicator parameters of a statement
// into constraint groups for the external optimization engine.
//
// A group is one search dimension: every parameter pinned to it takes the
// same value at each step of the group's range. A parameter belongs to at
// most one group; pinning it to a second group is rejected with
// ErrParameterReuse and leaves the plan unchanged.
package optimize

import (
	"errors"
	"fmt"
	"sort"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/algomatic/statement-builder/pkg/statement"
)

var (
	// ErrParameterReuse is returned when a parameter is already pinned to
	// another group.
	ErrParameterReuse = errors.New("parameter already used in another group")
	// ErrUnknownParameter is returned for a parameter the statement does
	// not have.
	ErrUnknownParameter = errors.New("parameter not found in statement")
	// ErrInvalidRange is returned for an empty or inverted range.
	ErrInvalidRange = errors.New("invalid parameter range")
)

// Input positions within a condition.
const (
	Primary   = "inp1"
	Secondary = "inp2"
)

// Parameter addresses one numeric indicator parameter of a statement.
type Parameter struct {
	Condition int    `json:"condition"`
	Input     string `json:"input"`
	Indicator string `json:"indicator"`
	Name      string `json:"name"`
}

func (p Parameter) String() string {
	return fmt.Sprintf("strategy[%d].%s.%s.%s", p.Condition, p.Input, p.Indicator, p.Name)
}

// Describe renders p for user-facing messages.
func (p Parameter) Describe() string {
	return fmt.Sprintf("%s %s (condition %d)", p.Indicator, p.Name, p.Condition+1)
}

// Candidate is an optimizable parameter and its current value.
type Candidate struct {
	Parameter
	Current float64 `json:"current"`
}

// Candidates lists every numeric parameter on the statement's indicator
// inputs, in condition order.
func Candidates(s *statement.Statement) []Candidate {
	var out []Candidate
	for i, c := range s.Conditions {
		out = append(out, candidatesOf(i, Primary, c.Primary)...)
		if ref, ok := c.Secondary.(statement.IndicatorRef); ok {
			out = append(out, candidatesOf(i, Secondary, ref)...)
		}
	}
	return out
}

func candidatesOf(cond int, input string, ref statement.IndicatorRef) []Candidate {
	if ref == nil {
		return nil
	}
	params := statement.ParamsOf(ref)
	numeric := lo.Filter(params.Keys(), func(k string, _ int) bool {
		_, ok := params.Float(k)
		return ok
	})
	return lo.Map(numeric, func(k string, _ int) Candidate {
		v, _ := params.Float(k)
		return Candidate{
			Parameter: Parameter{Condition: cond, Input: input, Indicator: ref.Ident(), Name: k},
			Current:   v,
		}
	})
}

// Range is an inclusive start..end sweep.
type Range struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Step  float64 `json:"step"`
}

// MaxRangeValues bounds how many values one range may expand to.
const MaxRangeValues = 10_000

// DefaultMaxCombinations is the plan size limit used when none is set.
const DefaultMaxCombinations = 100_000

// steps is the number of whole steps between start and end.
func (r Range) steps() decimal.Decimal {
	span := decimal.NewFromFloat(r.End).Sub(decimal.NewFromFloat(r.Start))
	return span.Div(decimal.NewFromFloat(r.Step)).Floor()
}

// Validate reports whether r describes between one and MaxRangeValues values.
func (r Range) Validate() error {
	if r.Step <= 0 {
		return fmt.Errorf("%w: step must be positive, got %v", ErrInvalidRange, r.Step)
	}
	if r.End < r.Start {
		return fmt.Errorf("%w: end %v before start %v", ErrInvalidRange, r.End, r.Start)
	}
	if r.steps().GreaterThanOrEqual(decimal.NewFromInt(MaxRangeValues)) {
		return fmt.Errorf("%w: %v..%v by %v exceeds %d values", ErrInvalidRange, r.Start, r.End, r.Step, MaxRangeValues)
	}
	return nil
}

// Count is the number of values r expands to, or 0 for an invalid range.
func (r Range) Count() int {
	if r.Validate() != nil {
		return 0
	}
	return int(r.steps().IntPart()) + 1
}

// Values expands r. Stepping is decimal so 0.1 increments do not drift.
func (r Range) Values() []float64 {
	if r.Validate() != nil {
		return nil
	}
	start := decimal.NewFromFloat(r.Start)
	end := decimal.NewFromFloat(r.End)
	step := decimal.NewFromFloat(r.Step)

	var out []float64
	for v := start; v.LessThanOrEqual(end); v = v.Add(step) {
		f, _ := v.Float64()
		out = append(out, f)
	}
	return out
}

// Group is a named constraint group.
type Group struct {
	Name       string      `json:"name"`
	Range      Range       `json:"range"`
	Parameters []Parameter `json:"parameters"`
}

// Plan is the set of constraint groups for one statement.
type Plan struct {
	groups []*Group
	owner  map[Parameter]string

	// MaxCombinations caps Size; a group that would push the plan past it
	// is rejected.
	MaxCombinations int
}

// NewPlan creates an empty plan limited to DefaultMaxCombinations.
func NewPlan() *Plan {
	return &Plan{owner: make(map[Parameter]string), MaxCombinations: DefaultMaxCombinations}
}

func (p *Plan) group(name string) *Group {
	for _, g := range p.groups {
		if g.Name == name {
			return g
		}
	}
	return nil
}

// Pin adds params to the named group, creating it with r when it does not
// exist. An existing group keeps its range; r must then be zero or equal.
// Either every parameter is pinned or none is.
func (p *Plan) Pin(s *statement.Statement, name string, r Range, params ...Parameter) error {
	if name == "" {
		return errors.New("group name is required")
	}
	existing := p.group(name)
	switch {
	case existing == nil:
		if err := r.Validate(); err != nil {
			return fmt.Errorf("group %q: %w", name, err)
		}
	case r != (Range{}) && r != existing.Range:
		return fmt.Errorf("group %q already sweeps %v..%v: %w", name, existing.Range.Start, existing.Range.End, ErrInvalidRange)
	}
	if existing == nil {
		limit := p.limit()
		size, n := max(p.Size(), 1), r.Count()
		if size > limit/n {
			return fmt.Errorf("%w: group %q would take the plan past %d combinations", ErrInvalidRange, name, limit)
		}
	}

	known := lo.SliceToMap(Candidates(s), func(c Candidate) (Parameter, bool) {
		return c.Parameter, true
	})
	seen := make(map[Parameter]bool, len(params))
	for _, param := range params {
		if !known[param] {
			return fmt.Errorf("%s: %w", param, ErrUnknownParameter)
		}
		if other, ok := p.owner[param]; ok && other != name {
			return fmt.Errorf("%w: %s is already optimised in group %q", ErrParameterReuse, param.Describe(), other)
		}
		if seen[param] {
			return fmt.Errorf("%w: %s is listed twice", ErrParameterReuse, param.Describe())
		}
		seen[param] = true
	}

	g := existing
	if g == nil {
		g = &Group{Name: name, Range: r}
		p.groups = append(p.groups, g)
	}
	for _, param := range params {
		if p.owner[param] == name {
			continue
		}
		p.owner[param] = name
		g.Parameters = append(g.Parameters, param)
	}
	return nil
}

// Unpin removes param from whichever group holds it. Empty groups are
// dropped.
func (p *Plan) Unpin(param Parameter) bool {
	name, ok := p.owner[param]
	if !ok {
		return false
	}
	delete(p.owner, param)
	g := p.group(name)
	g.Parameters = lo.Reject(g.Parameters, func(q Parameter, _ int) bool { return q == param })
	if len(g.Parameters) == 0 {
		p.groups = lo.Reject(p.groups, func(q *Group, _ int) bool { return q == g })
	}
	return true
}

// Groups returns a copy of the groups in creation order.
func (p *Plan) Groups() []Group {
	return lo.Map(p.groups, func(g *Group, _ int) Group {
		out := *g
		out.Parameters = append([]Parameter(nil), g.Parameters...)
		return out
	})
}

func (p *Plan) limit() int {
	if p.MaxCombinations <= 0 {
		return DefaultMaxCombinations
	}
	return p.MaxCombinations
}

// Size is the number of combinations the plan spans.
func (p *Plan) Size() int {
	if len(p.groups) == 0 {
		return 0
	}
	return lo.Reduce(p.groups, func(n int, g *Group, _ int) int {
		return n * g.Range.Count()
	}, 1)
}

// Assignment is one combination: a value for every pinned parameter.
type Assignment map[Parameter]float64

// Combinations enumerates the cartesian product of the groups' ranges.
func (p *Plan) Combinations() []Assignment {
	if len(p.groups) == 0 {
		return nil
	}
	combos := []Assignment{{}}
	for _, g := range p.groups {
		values := g.Range.Values()
		params := g.Parameters
		combos = lo.FlatMap(combos, func(base Assignment, _ int) []Assignment {
			return lo.Map(values, func(v float64, _ int) Assignment {
				next := make(Assignment, len(base)+len(params))
				for k, bv := range base {
					next[k] = bv
				}
				for _, param := range params {
					next[param] = v
				}
				return next
			})
		})
	}
	return combos
}

// Apply returns a copy of s with the assignment's values written into the
// addressed parameters.
func Apply(s *statement.Statement, a Assignment) (*statement.Statement, error) {
	out := s.Clone()
	keys := lo.Keys(a)
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	for _, param := range keys {
		c, err := out.Condition(param.Condition)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", param, err)
		}
		var ref statement.IndicatorRef
		switch param.Input {
		case Primary:
			ref = c.Primary
		case Secondary:
			ref, _ = c.Secondary.(statement.IndicatorRef)
		}
		if ref == nil || ref.Ident() != param.Indicator {
			return nil, fmt.Errorf("%s: %w", param, ErrUnknownParameter)
		}
		params := statement.ParamsOf(ref).Clone()
		if _, ok := params.Float(param.Name); !ok {
			return nil, fmt.Errorf("%s: %w", param, ErrUnknownParameter)
		}
		params[param.Name] = a[param]
		statement.SetParams(ref, params)
	}
	return out, nil
}
