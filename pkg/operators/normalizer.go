// Package operators maps comparison-behavior labels to canonical operator
// tokens and their default comparison operands.
package operators

import (
	"strings"

	"github.com/algomatic/statement-builder/pkg/statement"
)

// DefaultPips is the distance given to the atmost_*_pips operators when the
// user has not set one.
const DefaultPips = 500.0

var labelReplacer = strings.NewReplacer(" ", "", "-", "", "_", "")

// byLabel maps normalized palette labels and wire tokens to operators.
var byLabel = map[string]statement.Operator{
	"crossingup":    statement.CrossAbove,
	"crossabove":    statement.CrossAbove,
	"crossesabove":  statement.CrossAbove,
	"crossingdown":  statement.CrossBelow,
	"crossbelow":    statement.CrossBelow,
	"crossesbelow":  statement.CrossBelow,
	"movingup":      statement.MovingUp,
	"movingdown":    statement.MovingDown,
	"greaterthan":   statement.GreaterThan,
	"lessthan":      statement.LessThan,
	"insidechannel": statement.InsideChannel,
	"above":         statement.Above,
	"below":         statement.Below,

	"atmostabovepips": statement.AtmostAbovePips,
	"atmostbelowpips": statement.AtmostBelowPips,
	"atmostabove":     statement.AtmostAbovePips,
	"atmostbelow":     statement.AtmostBelowPips,
}

// Normalize returns the operator for a behavior label such as
// "Crossing up", or for a wire token such as "crossabove".
func Normalize(label string) (statement.Operator, bool) {
	op, ok := byLabel[labelReplacer.Replace(strings.ToLower(strings.TrimSpace(label)))]
	return op, ok
}

// DefaultValue returns the literal a fresh comparison against op starts
// with. The trend tests have none.
func DefaultValue(op statement.Operator) (float64, bool) {
	switch op {
	case statement.MovingUp, statement.MovingDown:
		return 0, false
	case statement.CrossAbove:
		return 60, true
	case statement.CrossBelow:
		return 40, true
	}
	return 50, true
}

// DefaultOperand returns a fresh default secondary input for op, or nil.
func DefaultOperand(op statement.Operator) statement.ComparisonOperand {
	v, ok := DefaultValue(op)
	if !ok {
		return nil
	}
	return &statement.Literal{Value: v}
}

// DefaultDistance returns the pips distance op starts with, or nil when op
// takes none.
func DefaultDistance(op statement.Operator) *float64 {
	if !op.UsesPips() {
		return nil
	}
	p := DefaultPips
	return &p
}
