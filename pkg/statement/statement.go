// Package statement provides the in-memory strategy statement document.
//
// A Statement is one complete trading rule: a side, an AND-chain of
// conditions, and a list of risk rules. Every mutation helper in this
// package keeps the structural invariants intact, so callers (the builder,
// the removal engine, the codec) never edit the condition slice directly:
//
//   - conditions[0] is always the Initial ("if") condition and is never removed
//   - every later condition is an And condition
//   - a timeframe lives on the Condition only until a primary input exists,
//     after which it lives on the IndicatorRef
//
// The package does no I/O. Serialization to the backend wire shape lives in
// codec.go.
package statement

import (
	"errors"
	"fmt"
	"strings"
)

// Side is the trade direction of a statement.
type Side string

const (
	Buy  Side = "B"
	Sell Side = "S"
)

// ParseSide accepts the palette labels ("Long"/"Short") as well as the
// wire values ("B"/"S").
func ParseSide(s string) (Side, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "b", "buy", "long":
		return Buy, true
	case "s", "sell", "short":
		return Sell, true
	}
	return "", false
}

// Connective links a condition to the chain.
type Connective string

const (
	Initial Connective = "if"
	And     Connective = "and"
)

// Sentinel errors for programmer misuse. Malformed but partially built user
// input is never an error.
var (
	ErrConditionIndex   = errors.New("condition index out of range")
	ErrInitialCondition = errors.New("the initial condition cannot be removed")
)

// DefaultInstrument is sent with a submission when the statement names none.
const DefaultInstrument = "XAU/USD"

// Condition is one link in the AND-chain.
type Condition struct {
	Connective Connective

	// Timeframe is only set while Primary is nil.
	Timeframe string

	Primary   IndicatorRef
	Operator  Operator
	Secondary ComparisonOperand

	// Pips is the distance argument of the atmost_*_pips operators.
	Pips *float64
}

// Empty reports whether the condition carries no primary input, operator or
// secondary input.
func (c *Condition) Empty() bool {
	return c.Primary == nil && c.Operator == "" && c.Secondary == nil
}

// EffectiveTimeframe returns the timeframe wherever it currently lives.
func (c *Condition) EffectiveTimeframe() string {
	if c.Primary != nil {
		return c.Primary.Base().Timeframe
	}
	return c.Timeframe
}

// Clone returns a deep copy of the condition.
func (c Condition) Clone() Condition {
	out := c
	if c.Primary != nil {
		out.Primary = c.Primary.Copy()
	}
	if c.Secondary != nil {
		out.Secondary = CloneOperand(c.Secondary)
	}
	if c.Pips != nil {
		p := *c.Pips
		out.Pips = &p
	}
	return out
}

// Statement is a strategy statement under construction.
type Statement struct {
	Side  Side
	Label string

	// Name and Instrument are optional submission metadata.
	Name       string
	Instrument string

	Conditions []Condition
	RiskRules  []RiskRule
}

// New creates an empty statement with a single Initial condition and no
// timeframe.
func New(label string) *Statement {
	return &Statement{
		Side:       Sell,
		Label:      label,
		Conditions: []Condition{{Connective: Initial}},
	}
}

// Clone returns a deep copy of the statement.
func (s *Statement) Clone() *Statement {
	out := *s
	out.Conditions = make([]Condition, len(s.Conditions))
	for i, c := range s.Conditions {
		out.Conditions[i] = c.Clone()
	}
	if s.RiskRules != nil {
		out.RiskRules = make([]RiskRule, len(s.RiskRules))
		for i, r := range s.RiskRules {
			out.RiskRules[i] = CloneRiskRule(r)
		}
	}
	return &out
}

// Condition returns a pointer to the condition at index i.
func (s *Statement) Condition(i int) (*Condition, error) {
	if i < 0 || i >= len(s.Conditions) {
		return nil, fmt.Errorf("condition %d of %d: %w", i, len(s.Conditions), ErrConditionIndex)
	}
	return &s.Conditions[i], nil
}

// Last returns the last condition, or nil if the chain is empty.
func (s *Statement) Last() *Condition {
	if len(s.Conditions) == 0 {
		return nil
	}
	return &s.Conditions[len(s.Conditions)-1]
}

// EnsureInitial synthesizes the Initial condition when the chain is empty.
// It reports whether a condition was created.
func (s *Statement) EnsureInitial() bool {
	if len(s.Conditions) > 0 {
		return false
	}
	s.Conditions = append(s.Conditions, Condition{Connective: Initial})
	return true
}

// AppendCondition pushes a new And condition, optionally carrying a bare
// timeframe, and returns it.
func (s *Statement) AppendCondition(timeframe string) *Condition {
	if s.EnsureInitial() {
		s.Conditions[0].Timeframe = timeframe
		return &s.Conditions[0]
	}
	s.Conditions = append(s.Conditions, Condition{Connective: And, Timeframe: timeframe})
	return s.Last()
}

// RemoveCondition splices the condition at index i out of the chain.
func (s *Statement) RemoveCondition(i int) error {
	if _, err := s.Condition(i); err != nil {
		return err
	}
	if i == 0 {
		return ErrInitialCondition
	}
	s.Conditions = append(s.Conditions[:i], s.Conditions[i+1:]...)
	return nil
}

// PruneEmptyTrailingCondition removes the last condition if it is an empty
// And condition. It reports whether anything was removed.
func (s *Statement) PruneEmptyTrailingCondition() bool {
	n := len(s.Conditions)
	if n < 2 || !s.Conditions[n-1].Empty() {
		return false
	}
	s.Conditions = s.Conditions[:n-1]
	return true
}

// PruneEmpty removes every empty condition after the Initial one and
// returns how many were removed.
func (s *Statement) PruneEmpty() int {
	if len(s.Conditions) < 2 {
		return 0
	}
	kept := s.Conditions[:1]
	for _, c := range s.Conditions[1:] {
		if !c.Empty() {
			kept = append(kept, c)
		}
	}
	removed := len(s.Conditions) - len(kept)
	s.Conditions = kept
	return removed
}

// AttachTimeframe stores tf in the single home it belongs to: the primary
// input when one exists, the condition otherwise.
func (s *Statement) AttachTimeframe(i int, tf string) error {
	c, err := s.Condition(i)
	if err != nil {
		return err
	}
	if c.Primary != nil {
		c.Primary.Base().Timeframe = tf
		c.Timeframe = ""
		return nil
	}
	c.Timeframe = tf
	return nil
}

// AttachPrimary sets the primary input of condition i. A bare condition
// timeframe moves into ref when ref carries none, and is always cleared
// from the condition.
func (s *Statement) AttachPrimary(i int, ref IndicatorRef) error {
	c, err := s.Condition(i)
	if err != nil {
		return err
	}
	if ref == nil {
		return fmt.Errorf("attach primary to condition %d: nil indicator", i)
	}
	if ref.Base().Timeframe == "" {
		ref.Base().Timeframe = c.Timeframe
	}
	c.Timeframe = ""
	c.Primary = ref
	return nil
}

// AddRiskRule appends a compiled risk rule.
func (s *Statement) AddRiskRule(r RiskRule) {
	s.RiskRules = append(s.RiskRules, r)
}
