package statement

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Wire shapes (the document the backend persists and evaluates)
// ---------------------------------------------------------------------------

type wireStatement struct {
	Side       string          `json:"side"`
	Label      string          `json:"label"`
	Name       string          `json:"name,omitempty"`
	Instrument string          `json:"instrument,omitempty"`
	Strategy   []wireCondition `json:"strategy"`
	Equity     []wireRiskRule  `json:"Equity,omitempty"`
}

type wireCondition struct {
	Statement    string       `json:"statement"`
	Timeframe    string       `json:"timeframe,omitempty"`
	Inp1         *wireOperand `json:"inp1,omitempty"`
	OperatorName string       `json:"operator_name,omitempty"`
	Inp2         *wireOperand `json:"inp2,omitempty"`
	Pips         *float64     `json:"pips,omitempty"`
}

type wireOperand struct {
	Type        string          `json:"type"`
	Name        string          `json:"name,omitempty"`
	Timeframe   string          `json:"timeframe,omitempty"`
	Input       string          `json:"input,omitempty"`
	InputParams map[string]any  `json:"input_params,omitempty"`
	Value       *float64        `json:"value,omitempty"`
	Derivative  *wireDerivative `json:"Derivative,omitempty"`
	Wait        string          `json:"wait,omitempty"`
}

type wireDerivative struct {
	Order int `json:"order"`
}

type wireRiskRule struct {
	Statement string          `json:"statement"`
	Operator  string          `json:"operator,omitempty"`
	Inp1      *wireRiskTarget `json:"inp1,omitempty"`
	Inp2      *wireRiskRef    `json:"inp2,omitempty"`
}

type wireRiskTarget struct {
	Name          string          `json:"name"`
	InputParams   map[string]any  `json:"input_params,omitempty"`
	PartialTPList []wireExitLevel `json:"partial_tp_list,omitempty"`
}

type wireRiskRef struct {
	Name        string         `json:"name"`
	Side        string         `json:"side,omitempty"`
	Timeframe   string         `json:"timeframe,omitempty"`
	InputParams map[string]any `json:"input_params,omitempty"`
}

type wireExitLevel struct {
	Price    string `json:"Price,omitempty"`
	Name     string `json:"name,omitempty"`
	Operator string `json:"operator,omitempty"`
	Close    string `json:"Close"`
	Action   string `json:"Action,omitempty"`
}

const (
	operandValue   = "value"
	operandChannel = "channel"
	waitYes        = "yes"
	partialTPName  = "partial_tp"
)

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

// MarshalJSON encodes the statement in the backend document shape.
func (s *Statement) MarshalJSON() ([]byte, error) {
	w := wireStatement{
		Side:       string(s.Side),
		Label:      s.Label,
		Name:       s.Name,
		Instrument: s.Instrument,
		Strategy:   make([]wireCondition, 0, len(s.Conditions)),
	}
	for i, c := range s.Conditions {
		wc := wireCondition{
			Statement:    string(c.Connective),
			Timeframe:    c.Timeframe,
			OperatorName: string(c.Operator),
			Pips:         c.Pips,
		}
		if c.Primary != nil {
			wc.Inp1 = encodeRef(c.Primary)
		}
		if c.Secondary != nil {
			op, err := encodeOperand(c.Secondary)
			if err != nil {
				return nil, fmt.Errorf("strategy[%d]: %w", i, err)
			}
			wc.Inp2 = op
		}
		w.Strategy = append(w.Strategy, wc)
	}
	for _, r := range s.RiskRules {
		w.Equity = append(w.Equity, encodeRiskRule(r))
	}
	return json.Marshal(w)
}

func encodeRef(ref IndicatorRef) *wireOperand {
	b := ref.Base()
	out := &wireOperand{Type: string(ref.Kind()), Timeframe: b.Timeframe}
	if b.Wait {
		out.Wait = waitYes
	}
	switch r := ref.(type) {
	case *PriceField:
		out.Input = string(r.Field)
	case *BuiltinIndicator:
		out.Name = r.Name
		out.Input = outputToWire(r.Name, r.OutputField)
		out.InputParams = paramsToWire(r.Name, r.Params)
	case *CustomIndicator:
		out.Name = r.Name
		out.InputParams = paramsToWire(r.Name, r.Params)
		if r.Derivative != nil {
			out.Derivative = &wireDerivative{Order: r.Derivative.Order}
		}
	}
	return out
}

func encodeOperand(o ComparisonOperand) (*wireOperand, error) {
	switch v := o.(type) {
	case *Literal:
		val := v.Value
		out := &wireOperand{Type: operandValue, Value: &val}
		if v.Wait {
			out.Wait = waitYes
		}
		return out, nil
	case *Channel:
		width := v.Width
		return &wireOperand{Type: operandChannel, Value: &width}, nil
	case IndicatorRef:
		return encodeRef(v), nil
	}
	return nil, fmt.Errorf("unsupported operand %T", o)
}

func encodeRiskRule(r RiskRule) wireRiskRule {
	out := wireRiskRule{Statement: string(And), Operator: r.Expression()}
	switch v := r.(type) {
	case *IndicatorRelative:
		if v.Reference != nil {
			out.Inp2 = &wireRiskRef{
				Name:        v.Reference.Ident(),
				Timeframe:   v.Reference.Base().Timeframe,
				InputParams: paramsToWire(v.Reference.Ident(), ParamsOf(v.Reference)),
			}
			if b, ok := v.Reference.(*BuiltinIndicator); ok {
				out.Inp2.Side = b.OutputField
			}
		} else {
			out.Inp2 = &wireRiskRef{Name: EntryPrice}
		}
		if v.Trailing != nil {
			out.Inp1 = &wireRiskTarget{
				Name: string(v.Kind),
				InputParams: map[string]any{
					"TrailingStop": waitYes,
					"TrailingStep": FormatNumber(v.Trailing.Step) + "pips",
				},
			}
		}
	case *PartialExitSchedule:
		target := &wireRiskTarget{Name: partialTPName}
		for _, l := range v.Levels {
			wl := wireExitLevel{
				Close:  FormatNumber(l.ClosePercent) + "%",
				Action: l.Action,
			}
			if l.Trigger == EquityTrigger {
				name, op, _ := strings.Cut(l.Expr, " ")
				wl.Name, wl.Operator = name, op
			} else {
				wl.Price = l.Expr
			}
			target.PartialTPList = append(target.PartialTPList, wl)
		}
		out.Inp1 = target
	}
	return out
}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

// Decode re-hydrates a statement from its serialized form and checks the
// structural invariants.
func Decode(data []byte) (*Statement, error) {
	var s Statement
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid statement document: %w", err)
	}
	return &s, nil
}

// UnmarshalJSON decodes the backend document shape.
func (s *Statement) UnmarshalJSON(data []byte) error {
	var w wireStatement
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("parsing statement JSON: %w", err)
	}

	side, ok := ParseSide(w.Side)
	if !ok {
		return fmt.Errorf("unknown side %q", w.Side)
	}
	out := Statement{
		Side:       side,
		Label:      w.Label,
		Name:       w.Name,
		Instrument: w.Instrument,
		Conditions: make([]Condition, 0, len(w.Strategy)),
	}

	for i, wc := range w.Strategy {
		c, err := decodeCondition(wc)
		if err != nil {
			return fmt.Errorf("strategy[%d]: %w", i, err)
		}
		out.Conditions = append(out.Conditions, c)
	}
	for i, wr := range w.Equity {
		r, err := decodeRiskRule(wr)
		if err != nil {
			return fmt.Errorf("Equity[%d]: %w", i, err)
		}
		out.RiskRules = append(out.RiskRules, r)
	}

	*s = out
	return nil
}

func decodeCondition(wc wireCondition) (Condition, error) {
	c := Condition{
		Connective: Connective(wc.Statement),
		Timeframe:  wc.Timeframe,
		Operator:   Operator(wc.OperatorName),
		Pips:       wc.Pips,
	}
	if c.Connective != Initial && c.Connective != And {
		return c, fmt.Errorf("unknown connective %q", wc.Statement)
	}
	if c.Operator != "" && !c.Operator.Valid() {
		return c, fmt.Errorf("unknown operator %q", wc.OperatorName)
	}
	if wc.Inp1 != nil {
		ref, err := decodeRef(wc.Inp1)
		if err != nil {
			return c, fmt.Errorf("inp1: %w", err)
		}
		c.Primary = ref
	}
	if wc.Inp2 != nil {
		op, err := decodeOperand(wc.Inp2)
		if err != nil {
			return c, fmt.Errorf("inp2: %w", err)
		}
		c.Secondary = op
	}
	return c, nil
}

func decodeRef(w *wireOperand) (IndicatorRef, error) {
	base := RefBase{Timeframe: w.Timeframe, Wait: w.Wait == waitYes}
	switch IndicatorKind(w.Type) {
	case KindPriceField:
		f, ok := ParseField(w.Input)
		if !ok {
			return nil, fmt.Errorf("unknown price field %q", w.Input)
		}
		return &PriceField{RefBase: base, Field: f}, nil
	case KindBuiltin:
		if w.Name == "" {
			return nil, fmt.Errorf("indicator missing name")
		}
		return &BuiltinIndicator{
			RefBase:     base,
			Name:        w.Name,
			Params:      paramsFromWire(w.Name, w.InputParams),
			OutputField: outputFromWire(w.Name, w.Input),
		}, nil
	case KindCustom:
		if w.Name == "" {
			return nil, fmt.Errorf("custom indicator missing name")
		}
		ci := &CustomIndicator{
			RefBase: base,
			Name:    w.Name,
			Params:  paramsFromWire(w.Name, w.InputParams),
		}
		if w.Derivative != nil {
			ci.Derivative = &Derivative{Order: w.Derivative.Order}
		}
		return ci, nil
	}
	return nil, fmt.Errorf("unknown operand type %q", w.Type)
}

func decodeOperand(w *wireOperand) (ComparisonOperand, error) {
	switch w.Type {
	case operandValue:
		if w.Value == nil {
			return nil, fmt.Errorf("value operand missing value")
		}
		return &Literal{Value: *w.Value, Wait: w.Wait == waitYes}, nil
	case operandChannel:
		if w.Value == nil {
			return nil, fmt.Errorf("channel operand missing value")
		}
		return &Channel{Width: *w.Value}, nil
	}
	return decodeRef(w)
}

var (
	simpleExpr   = regexp.MustCompile(`^(SL|TP) = Entry_Price ([+-]) ([0-9.]+)pips$`)
	percentExpr  = regexp.MustCompile(`^(SL|TP) = Entry_Price \* ([0-9.]+)$`)
	relativeExpr = regexp.MustCompile(`^(SL|TP|inp1) = inp2 ([+-]) ([0-9.]+)pips$`)
	fixedExpr    = regexp.MustCompile(`^(SL|TP) = (-?[0-9.]+)$`)
)

func decodeRiskRule(w wireRiskRule) (RiskRule, error) {
	if w.Inp1 != nil && w.Inp1.Name == partialTPName {
		return decodeSchedule(w.Inp1.PartialTPList)
	}

	op := strings.TrimSpace(w.Operator)
	if m := simpleExpr.FindStringSubmatch(op); m != nil {
		pips, err := strconv.ParseFloat(m[3], 64)
		if err != nil {
			return nil, fmt.Errorf("pips in %q: %w", op, err)
		}
		return &SimpleOffset{Kind: RiskKind(m[1]), Direction: Direction(m[2]), Pips: pips}, nil
	}
	if m := percentExpr.FindStringSubmatch(op); m != nil {
		mult, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return nil, fmt.Errorf("multiplier in %q: %w", op, err)
		}
		return &PercentOffset{Kind: RiskKind(m[1]), Multiplier: mult}, nil
	}
	if m := relativeExpr.FindStringSubmatch(op); m != nil {
		return decodeRelative(w, m)
	}
	if m := fixedExpr.FindStringSubmatch(op); m != nil {
		price, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return nil, fmt.Errorf("price in %q: %w", op, err)
		}
		return &FixedPrice{Kind: RiskKind(m[1]), Price: price}, nil
	}
	return nil, fmt.Errorf("unrecognised risk expression %q", w.Operator)
}

func decodeRelative(w wireRiskRule, m []string) (RiskRule, error) {
	pips, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return nil, fmt.Errorf("pips in %q: %w", w.Operator, err)
	}
	kind := RiskKind(m[1])
	if m[1] == "inp1" {
		// Older documents name the target in inp1 instead of the expression.
		if w.Inp1 == nil {
			return nil, fmt.Errorf("%q requires inp1", w.Operator)
		}
		kind = RiskKind(w.Inp1.Name)
	}
	if kind != StopLoss && kind != TakeProfit {
		return nil, fmt.Errorf("unknown risk kind %q", kind)
	}

	r := &IndicatorRelative{Kind: kind, Direction: Direction(m[2]), Pips: pips}
	if w.Inp2 != nil && w.Inp2.Name != EntryPrice && w.Inp2.Name != "" {
		r.Reference = &BuiltinIndicator{
			RefBase:     RefBase{Timeframe: w.Inp2.Timeframe},
			Name:        w.Inp2.Name,
			Params:      paramsFromWire(w.Inp2.Name, w.Inp2.InputParams),
			OutputField: w.Inp2.Side,
		}
	}
	if w.Inp1 != nil && w.Inp1.InputParams["TrailingStop"] == waitYes {
		step, err := parseSuffixed(fmt.Sprint(w.Inp1.InputParams["TrailingStep"]), "pips")
		if err != nil {
			return nil, fmt.Errorf("trailing step: %w", err)
		}
		r.Trailing = &Trailing{Step: step}
	}
	return r, nil
}

func decodeSchedule(levels []wireExitLevel) (RiskRule, error) {
	if len(levels) == 0 {
		return nil, fmt.Errorf("partial_tp_list is empty")
	}
	out := &PartialExitSchedule{Levels: make([]ExitLevel, 0, len(levels))}
	for i, wl := range levels {
		pct, err := parseSuffixed(wl.Close, "%")
		if err != nil {
			return nil, fmt.Errorf("partial_tp_list[%d]: close: %w", i, err)
		}
		l := ExitLevel{ClosePercent: pct, Action: wl.Action}
		switch {
		case wl.Price != "":
			l.Trigger, l.Expr = PriceTrigger, wl.Price
		case wl.Name != "":
			l.Trigger, l.Expr = EquityTrigger, strings.TrimSpace(wl.Name+" "+wl.Operator)
		default:
			return nil, fmt.Errorf("partial_tp_list[%d]: level has no trigger", i)
		}
		out.Levels = append(out.Levels, l)
	}
	return out, nil
}

func parseSuffixed(s, suffix string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), suffix)), 64)
}
