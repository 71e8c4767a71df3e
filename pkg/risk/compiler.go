// Package risk compiles stop-loss / take-profit configuration forms into
// statement risk rules.
//
// A Form is what the risk dialog submits. Compile checks it, then renders one
// of the rule variants whose Expression() follows the backend grammars:
//
//	SL = Entry_Price - 900pips     (pips)
//	TP = Entry_Price * 1.1         (percentage)
//	SL = 1890.5                    (fixed)
//	SL = inp2 - 50pips             (indicator, trailing)
//
// An incomplete form is never compiled and never appended.
package risk

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/algomatic/statement-builder/pkg/statement"
)

var (
	// ErrIncompleteForm means a required value is missing.
	ErrIncompleteForm = errors.New("incomplete risk rule form")
	// ErrInvalidForm means a value is present but out of range.
	ErrInvalidForm = errors.New("invalid risk rule form")
)

// Mode selects the rule grammar.
type Mode string

const (
	ModePips       Mode = "pips"
	ModePercentage Mode = "percentage"
	ModeFixed      Mode = "fixed"
	ModeIndicator  Mode = "indicator"
	ModeTrailing   Mode = "trailing"
	ModePartial    Mode = "partial"
)

// Form is a risk-rule configuration as submitted by the dialog.
type Form struct {
	Kind      statement.RiskKind  `json:"kind" validate:"required,oneof=SL TP"`
	Mode      Mode                `json:"mode" validate:"required,oneof=pips percentage fixed indicator trailing partial"`
	Direction statement.Direction `json:"direction,omitempty" validate:"omitempty,oneof=+ -"`
	Pips      *float64            `json:"pips,omitempty" validate:"omitempty,gte=0"`
	Percent   *float64            `json:"percent,omitempty" validate:"omitempty,gt=0"`
	Price     *float64            `json:"price,omitempty" validate:"omitempty,gt=0"`
	Step      *float64            `json:"step,omitempty" validate:"omitempty,gt=0"`
	Reference *Reference          `json:"reference,omitempty"`
	Levels    []Level             `json:"levels,omitempty" validate:"dive"`
}

// Reference names the series an indicator-relative stop is measured from,
// typically an N-period high or low.
type Reference struct {
	Indicator string         `json:"indicator" validate:"required"`
	Side      string         `json:"side,omitempty" validate:"omitempty,oneof=high low"`
	Timeframe string         `json:"timeframe" validate:"required"`
	Params    map[string]any `json:"params,omitempty"`
}

// Level is one row of a partial exit schedule. Exactly one of Price and
// Equity is set.
type Level struct {
	Price  string   `json:"price,omitempty" validate:"required_without=Equity,excluded_with=Equity"`
	Equity string   `json:"equity,omitempty" validate:"required_without=Price"`
	Close  *float64 `json:"close" validate:"required,gt=0,lte=100"`
	Action string   `json:"action,omitempty"`
}

// Compiler turns forms into risk rules.
type Compiler struct {
	validate *validator.Validate
}

// NewCompiler creates a compiler.
func NewCompiler() *Compiler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(validateForm, Form{})
	return &Compiler{validate: v}
}

// validateForm holds the cross-field rules. A stop-loss of 100% or more would
// put the stop at or below zero.
func validateForm(sl validator.StructLevel) {
	f := sl.Current().Interface().(Form)
	if f.Kind == statement.StopLoss && f.Percent != nil && *f.Percent >= 100 {
		sl.ReportError(f.Percent, "Percent", "percent", "lt", "100")
	}
}

// Apply compiles f and appends the rule to s. On error s is unchanged.
func (c *Compiler) Apply(s *statement.Statement, f Form) (statement.RiskRule, error) {
	r, err := c.Compile(f)
	if err != nil {
		return nil, err
	}
	s.AddRiskRule(r)
	return r, nil
}

// Compile checks f and builds the rule it describes.
func (c *Compiler) Compile(f Form) (statement.RiskRule, error) {
	if missing := missingFields(f); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s %s requires %s", ErrIncompleteForm, f.Mode, f.Kind, strings.Join(missing, ", "))
	}
	if err := c.validate.Struct(f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidForm, err)
	}

	switch f.Mode {
	case ModePips:
		return &statement.SimpleOffset{Kind: f.Kind, Direction: f.Direction, Pips: *f.Pips}, nil

	case ModePercentage:
		return &statement.PercentOffset{Kind: f.Kind, Multiplier: multiplier(f.Kind, *f.Percent)}, nil

	case ModeFixed:
		return &statement.FixedPrice{Kind: f.Kind, Price: *f.Price}, nil

	case ModeIndicator, ModeTrailing:
		r := &statement.IndicatorRelative{Kind: f.Kind, Direction: f.Direction, Pips: *f.Pips}
		if f.Reference != nil {
			r.Reference = &statement.BuiltinIndicator{
				RefBase:     statement.RefBase{Timeframe: f.Reference.Timeframe},
				Name:        f.Reference.Indicator,
				Params:      statement.NormalizeParams(f.Reference.Params),
				OutputField: f.Reference.Side,
			}
		}
		if f.Step != nil {
			r.Trailing = &statement.Trailing{Step: *f.Step}
		}
		return r, nil

	case ModePartial:
		return compileSchedule(f.Levels)
	}

	return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidForm, f.Mode)
}

// missingFields lists the values f.Mode needs that the form lacks.
func missingFields(f Form) []string {
	var missing []string
	need := func(ok bool, name string) {
		if !ok {
			missing = append(missing, name)
		}
	}

	switch f.Mode {
	case ModePips:
		need(f.Direction != "", "direction")
		need(f.Pips != nil, "pips")
	case ModePercentage:
		need(f.Percent != nil, "percent")
	case ModeFixed:
		need(f.Price != nil, "price")
	case ModeIndicator:
		need(f.Reference != nil, "reference")
		need(f.Direction != "", "direction")
		need(f.Pips != nil, "pips")
	case ModeTrailing:
		need(f.Direction != "", "direction")
		need(f.Pips != nil, "pips")
		need(f.Step != nil, "step")
	case ModePartial:
		need(len(f.Levels) > 0, "levels")
		for i, l := range f.Levels {
			need(l.Close != nil, fmt.Sprintf("levels[%d].close", i))
		}
	}
	return missing
}

// multiplier folds the direction into the percentage: below entry for a
// stop-loss, above it for a take-profit.
func multiplier(kind statement.RiskKind, pct float64) float64 {
	one := decimal.NewFromInt(1)
	frac := decimal.NewFromFloat(pct).Div(decimal.NewFromInt(100))
	if kind == statement.StopLoss {
		return one.Sub(frac).InexactFloat64()
	}
	return one.Add(frac).InexactFloat64()
}

func compileSchedule(levels []Level) (statement.RiskRule, error) {
	total := decimal.Zero
	out := &statement.PartialExitSchedule{Levels: make([]statement.ExitLevel, 0, len(levels))}

	for _, l := range levels {
		total = total.Add(decimal.NewFromFloat(*l.Close))
		el := statement.ExitLevel{ClosePercent: *l.Close, Action: strings.TrimSpace(l.Action)}
		if l.Price != "" {
			el.Trigger, el.Expr = statement.PriceTrigger, strings.TrimSpace(l.Price)
		} else {
			el.Trigger, el.Expr = statement.EquityTrigger, strings.TrimSpace(l.Equity)
		}
		out.Levels = append(out.Levels, el)
	}

	if total.GreaterThan(decimal.NewFromInt(100)) {
		return nil, fmt.Errorf("%w: partial exits close %s%% of the position", ErrInvalidForm, total.String())
	}
	return out, nil
}
