package builder

import (
	"errors"
	"fmt"
	"strings"

	"github.com/algomatic/statement-builder/pkg/indicators"
	"github.com/algomatic/statement-builder/pkg/risk"
	"github.com/algomatic/statement-builder/pkg/statement"
)

// ErrUnknownOp is returned for a command with an unrecognised op.
var ErrUnknownOp = errors.New("unknown command op")

// Op names a builder command.
type Op string

const (
	OpAdd        Op = "add"
	OpRemove     Op = "remove"
	OpBackspace  Op = "backspace"
	OpConfigure  Op = "configure"
	OpCompare    Op = "compare"
	OpOperand    Op = "operand"
	OpChannel    Op = "channel"
	OpTimeframe  Op = "timeframe"
	OpPips       Op = "pips"
	OpWait       Op = "wait"
	OpDerivative Op = "derivative"
	OpRisk       Op = "risk"
)

// Input selects which side of a condition a command edits.
type Input string

const (
	InputPrimary   Input = "primary"
	InputSecondary Input = "secondary"
)

// Command is one edit as submitted over the wire or read from a script.
// Condition defaults to the last condition when omitted.
type Command struct {
	Op Op `json:"op"`

	Token     string         `json:"token,omitempty"`
	Timeframe string         `json:"timeframe,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
	Value     *float64       `json:"value,omitempty"`

	Condition *int   `json:"condition,omitempty"`
	Part      Part   `json:"part,omitempty"`
	Input     Input  `json:"input,omitempty"`
	Option    string `json:"option,omitempty"`
	Output    string `json:"output,omitempty"`
	Order     int    `json:"order,omitempty"`

	Risk *risk.Form `json:"risk,omitempty"`
}

// Execute applies cmd to s.
func (b *Builder) Execute(s *statement.Statement, cmd Command, defaults indicators.Defaults) (Outcome, error) {
	if s == nil {
		return Outcome{}, ErrNilStatement
	}
	if defaults == nil {
		defaults = indicators.NoDefaults{}
	}

	switch cmd.Op {
	case OpAdd:
		return b.AddToken(s, Token{
			Label:     cmd.Token,
			Timeframe: cmd.Timeframe,
			Params:    cmd.Params,
			Value:     cmd.Value,
			Risk:      cmd.Risk,
		}, defaults)
	case OpRisk:
		label := "SL"
		if cmd.Risk != nil && cmd.Risk.Kind != "" {
			label = string(cmd.Risk.Kind)
		}
		return b.AddToken(s, Token{Label: label, Risk: cmd.Risk}, defaults)
	case OpBackspace:
		return b.RemoveLast(s)
	case OpRemove:
		if cmd.Condition == nil {
			return Outcome{}, fmt.Errorf("remove %s: condition index required", cmd.Part)
		}
		return b.Remove(s, *cmd.Condition, cmd.Part)
	}

	i, err := target(s, cmd.Condition)
	if err != nil {
		return Outcome{}, fmt.Errorf("%s: %w", cmd.Op, err)
	}
	c := &s.Conditions[i]

	switch cmd.Op {
	case OpConfigure:
		return b.configure(c, cmd), nil
	case OpCompare:
		return b.compare(c, cmd.Option, defaults), nil
	case OpOperand:
		return setOperand(c, cmd.Value), nil
	case OpChannel:
		return setChannel(c, cmd.Value), nil
	case OpTimeframe:
		tf := strings.TrimSpace(cmd.Timeframe)
		if tf == "" {
			return rejected(TokenTimeframe, "timeframe is empty"), nil
		}
		return applied(TokenTimeframe), s.AttachTimeframe(i, tf)
	case OpPips:
		return setPips(c, cmd.Value), nil
	case OpWait:
		return toggleInputWait(c, cmd.Input), nil
	case OpDerivative:
		return setDerivative(c, cmd.Order), nil
	}
	return Outcome{}, fmt.Errorf("%q: %w", cmd.Op, ErrUnknownOp)
}

func target(s *statement.Statement, idx *int) (int, error) {
	if idx == nil {
		if len(s.Conditions) == 0 {
			return 0, fmt.Errorf("empty chain: %w", statement.ErrConditionIndex)
		}
		return len(s.Conditions) - 1, nil
	}
	if _, err := s.Condition(*idx); err != nil {
		return 0, err
	}
	return *idx, nil
}

func inputRef(c *statement.Condition, in Input) statement.IndicatorRef {
	if in == InputSecondary {
		ref, _ := c.Secondary.(statement.IndicatorRef)
		return ref
	}
	return c.Primary
}

// configure applies a settings-dialog save to an indicator input. The
// saved parameters become the new persisted defaults for that indicator.
func (b *Builder) configure(c *statement.Condition, cmd Command) Outcome {
	ref := inputRef(c, cmd.Input)
	if ref == nil {
		return rejected(TokenIndicator, fmt.Sprintf("no indicator on the %s input", inputName(cmd.Input)))
	}

	if tf := strings.TrimSpace(cmd.Timeframe); tf != "" {
		ref.Base().Timeframe = tf
	}
	if cmd.Output != "" {
		bi, ok := ref.(*statement.BuiltinIndicator)
		if !ok {
			return rejected(TokenIndicator, fmt.Sprintf("%s has no output lines", ref.Ident()))
		}
		bi.OutputField = cmd.Output
	}

	out := applied(TokenIndicator)
	if ref.Kind() == statement.KindPriceField || len(cmd.Params) == 0 {
		return out
	}
	merged := statement.ParamsOf(ref).Clone()
	if merged == nil {
		merged = statement.Params{}
	}
	for k, v := range statement.NormalizeParams(cmd.Params) {
		merged[k] = v
	}
	statement.SetParams(ref, merged)
	out.Persist = []Persist{{Indicator: ref.Ident(), Params: merged.Clone()}}
	return out
}

func inputName(in Input) string {
	if in == "" {
		return string(InputPrimary)
	}
	return string(in)
}

func (b *Builder) compare(c *statement.Condition, option string, defaults indicators.Defaults) Outcome {
	if c.Primary == nil {
		return rejected(TokenIndicator, "no primary indicator to compare against")
	}
	ref, err := b.linker.Materialize(c.Primary, option, defaults)
	if err != nil {
		return rejected(TokenIndicator, err.Error())
	}
	c.Secondary = ref
	return applied(TokenIndicator)
}

func setOperand(c *statement.Condition, v *float64) Outcome {
	switch {
	case v == nil:
		return rejected(TokenBehavior, "value is required")
	case c.Operator == "":
		return rejected(TokenBehavior, "no behavior to compare with")
	case !c.Operator.NeedsOperand():
		return rejected(TokenBehavior, fmt.Sprintf("%s takes no comparison value", c.Operator))
	}
	wait := statement.Waiting(c.Secondary)
	c.Secondary = &statement.Literal{Value: *v, Wait: wait, Explicit: true}
	return applied(TokenBehavior)
}

func setChannel(c *statement.Condition, width *float64) Outcome {
	if c.Operator != statement.InsideChannel {
		return rejected(TokenBehavior, "channel width needs the inside-channel behavior")
	}
	if width == nil || *width <= 0 {
		return rejected(TokenBehavior, "channel width must be positive")
	}
	c.Secondary = &statement.Channel{Width: *width}
	return applied(TokenBehavior)
}

func setPips(c *statement.Condition, v *float64) Outcome {
	if !c.Operator.UsesPips() {
		return rejected(TokenBehavior, "behavior takes no pips distance")
	}
	if v == nil || *v < 0 {
		return rejected(TokenBehavior, "pips distance must be zero or more")
	}
	p := *v
	c.Pips = &p
	return applied(TokenBehavior)
}

func toggleInputWait(c *statement.Condition, in Input) Outcome {
	if in == InputSecondary {
		if c.Secondary == nil || !statement.SetWaiting(c.Secondary, !statement.Waiting(c.Secondary)) {
			return rejected(TokenWait, "secondary input cannot be deferred")
		}
		return applied(TokenWait)
	}
	if c.Primary == nil {
		return rejected(TokenWait, "no primary input to defer")
	}
	c.Primary.Base().Wait = !c.Primary.Base().Wait
	return applied(TokenWait)
}

// setDerivative applies an nth-order derivative to a custom primary
// indicator. Order zero removes it.
func setDerivative(c *statement.Condition, order int) Outcome {
	ci, ok := c.Primary.(*statement.CustomIndicator)
	if !ok {
		return rejected(TokenIndicator, "derivatives apply to custom indicators only")
	}
	switch {
	case order < 0:
		return rejected(TokenIndicator, "derivative order must be positive")
	case order == 0:
		ci.Derivative = nil
	default:
		ci.Derivative = &statement.Derivative{Order: order}
	}
	return applied(TokenIndicator)
}
