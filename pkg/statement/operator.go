package statement

// Operator is a canonical comparison token. Values are the wire tokens the
// backend understands.
type Operator string

const (
	CrossAbove      Operator = "crossabove"
	CrossBelow      Operator = "crossbelow"
	MovingUp        Operator = "moving_up"
	MovingDown      Operator = "moving_down"
	GreaterThan     Operator = "greater_than"
	LessThan        Operator = "less_than"
	InsideChannel   Operator = "inside_channel"
	Above           Operator = "above"
	Below           Operator = "below"
	AtmostAbovePips Operator = "atmost_above_pips"
	AtmostBelowPips Operator = "atmost_below_pips"
)

// knownOperators is the set of operators the backend accepts.
var knownOperators = map[Operator]bool{
	CrossAbove: true, CrossBelow: true,
	MovingUp: true, MovingDown: true,
	GreaterThan: true, LessThan: true,
	InsideChannel: true,
	Above: true, Below: true,
	AtmostAbovePips: true, AtmostBelowPips: true,
}

// Valid reports whether op is a known token.
func (op Operator) Valid() bool { return knownOperators[op] }

// NeedsOperand reports whether op compares against a secondary input.
// The trend tests are one-sided.
func (op Operator) NeedsOperand() bool {
	return op != MovingUp && op != MovingDown
}

// UsesPips reports whether op takes a pips distance.
func (op Operator) UsesPips() bool {
	return op == AtmostAbovePips || op == AtmostBelowPips
}
