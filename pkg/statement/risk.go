package statement

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RiskKind distinguishes stop-loss from take-profit rules.
type RiskKind string

const (
	StopLoss   RiskKind = "SL"
	TakeProfit RiskKind = "TP"
)

// Direction is the sign of a pips offset.
type Direction string

const (
	Plus  Direction = "+"
	Minus Direction = "-"
)

// EntryPrice is the basis name used by the risk grammars.
const EntryPrice = "Entry_Price"

// RiskRule is a compiled stop-loss, take-profit, trailing or partial-exit
// instruction. The variants are *SimpleOffset, *PercentOffset, *FixedPrice,
// *IndicatorRelative and *PartialExitSchedule.
type RiskRule interface {
	RiskKind() RiskKind
	// Expression renders the operator grammar, or "" for schedules.
	Expression() string
	copyRule() RiskRule
}

// SimpleOffset is "{kind} = Entry_Price {direction} {pips}pips".
type SimpleOffset struct {
	Kind      RiskKind
	Direction Direction
	Pips      float64
}

func (r *SimpleOffset) RiskKind() RiskKind { return r.Kind }

func (r *SimpleOffset) Expression() string {
	return fmt.Sprintf("%s = %s %s %spips", r.Kind, EntryPrice, r.Direction, FormatNumber(r.Pips))
}

func (r *SimpleOffset) copyRule() RiskRule {
	c := *r
	return &c
}

// PercentOffset is "{kind} = Entry_Price * {multiplier}". The multiplier
// already folds the direction in.
type PercentOffset struct {
	Kind       RiskKind
	Multiplier float64
}

func (r *PercentOffset) RiskKind() RiskKind { return r.Kind }

func (r *PercentOffset) Expression() string {
	return fmt.Sprintf("%s = %s * %s", r.Kind, EntryPrice, FormatNumber(r.Multiplier))
}

func (r *PercentOffset) copyRule() RiskRule {
	c := *r
	return &c
}

// FixedPrice is "{kind} = {price}".
type FixedPrice struct {
	Kind  RiskKind
	Price float64
}

func (r *FixedPrice) RiskKind() RiskKind { return r.Kind }

func (r *FixedPrice) Expression() string {
	return fmt.Sprintf("%s = %s", r.Kind, FormatNumber(r.Price))
}

func (r *FixedPrice) copyRule() RiskRule {
	c := *r
	return &c
}

// Trailing makes a stop follow price in steps of Step pips.
type Trailing struct {
	Step float64
}

// IndicatorRelative is "{kind} = inp2 {direction} {pips}pips" where inp2 is
// Reference, or the entry price when Reference is nil.
type IndicatorRelative struct {
	Kind      RiskKind
	Reference IndicatorRef
	Direction Direction
	Pips      float64
	Trailing  *Trailing
}

func (r *IndicatorRelative) RiskKind() RiskKind { return r.Kind }

func (r *IndicatorRelative) Expression() string {
	return fmt.Sprintf("%s = inp2 %s %spips", r.Kind, r.Direction, FormatNumber(r.Pips))
}

func (r *IndicatorRelative) copyRule() RiskRule {
	c := *r
	if r.Reference != nil {
		c.Reference = r.Reference.Copy()
	}
	if r.Trailing != nil {
		t := *r.Trailing
		c.Trailing = &t
	}
	return &c
}

// TriggerKind says what fires a partial exit level.
type TriggerKind string

const (
	PriceTrigger  TriggerKind = "price"
	EquityTrigger TriggerKind = "equity"
)

// ExitLevel is one step of a partial exit schedule. Expr is a price
// expression ("Entry_Price + 200pips") or an equity condition
// ("equity moving_up 300pips") depending on Trigger.
type ExitLevel struct {
	Trigger      TriggerKind
	Expr         string
	ClosePercent float64
	// Action runs after the level fills, e.g. "SL = Entry_Price".
	Action string
}

// PartialExitSchedule closes a position in levels.
type PartialExitSchedule struct {
	Levels []ExitLevel
}

func (r *PartialExitSchedule) RiskKind() RiskKind { return TakeProfit }
func (r *PartialExitSchedule) Expression() string { return "" }

func (r *PartialExitSchedule) copyRule() RiskRule {
	c := PartialExitSchedule{Levels: make([]ExitLevel, len(r.Levels))}
	copy(c.Levels, r.Levels)
	return &c
}

// CloneRiskRule returns a deep copy of r.
func CloneRiskRule(r RiskRule) RiskRule {
	if r == nil {
		return nil
	}
	return r.copyRule()
}

// FormatNumber renders v in its shortest exact decimal form, so 0.93 prints
// as "0.93" and 900 as "900".
func FormatNumber(v float64) string {
	return decimal.NewFromFloat(v).String()
}
