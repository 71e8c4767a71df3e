package builder

import (
	"errors"
	"fmt"

	"github.com/algomatic/statement-builder/pkg/statement"
)

// ErrUnknownPart is returned for a removal of a part that does not exist.
var ErrUnknownPart = errors.New("unknown condition part")

// Part names a removable piece of a condition.
type Part string

const (
	PartConnective Part = "connective"
	PartPrimary    Part = "primaryInput"
	PartOperator   Part = "operator"
	PartSecondary  Part = "secondaryInput"
	PartTimeframe  Part = "timeframe"
)

// cascades lists what else goes when a part is removed. Removing the
// primary input leaves a staged operator and secondary input in place.
var cascades = map[Part][]Part{
	PartConnective: nil,
	PartPrimary:    nil,
	PartOperator:   {PartSecondary},
	PartSecondary:  nil,
	PartTimeframe:  nil,
}

// backspaceOrder is the order in which RemoveLast strips a condition.
var backspaceOrder = []Part{PartSecondary, PartOperator, PartPrimary, PartTimeframe, PartConnective}

// Remove deletes part from condition i, applies the cascade for that part,
// and prunes every condition after the first that is left empty.
func (b *Builder) Remove(s *statement.Statement, i int, part Part) (Outcome, error) {
	if s == nil {
		return Outcome{}, ErrNilStatement
	}
	if _, ok := cascades[part]; !ok {
		return Outcome{}, fmt.Errorf("removing %q: %w", part, ErrUnknownPart)
	}
	c, err := s.Condition(i)
	if err != nil {
		return Outcome{}, fmt.Errorf("removing %s: %w", part, err)
	}

	if part == PartConnective {
		if i == 0 {
			return rejected(TokenConnective, "the initial condition cannot be removed"), nil
		}
		if err := s.RemoveCondition(i); err != nil {
			return Outcome{}, err
		}
		s.PruneEmpty()
		return applied(TokenConnective), nil
	}

	if !b.clear(c, part) {
		return rejected(kindOf(part), fmt.Sprintf("condition %d has no %s", i, part)), nil
	}
	for _, dep := range cascades[part] {
		b.clear(c, dep)
	}

	if n := s.PruneEmpty(); n > 0 {
		b.logger.Debug("Pruned empty conditions", "count", n)
	}
	return applied(kindOf(part)), nil
}

// RemoveLast strips the most recently placed part of the last condition,
// in the order secondary input, operator, primary input, timeframe, and
// finally the condition itself.
func (b *Builder) RemoveLast(s *statement.Statement) (Outcome, error) {
	if s == nil {
		return Outcome{}, ErrNilStatement
	}
	i := len(s.Conditions) - 1
	if i < 0 {
		return rejected(TokenUnknown, "nothing to remove"), nil
	}
	c := &s.Conditions[i]
	for _, part := range backspaceOrder {
		if has(c, part, i) {
			return b.Remove(s, i, part)
		}
	}
	return rejected(TokenUnknown, "nothing to remove"), nil
}

func has(c *statement.Condition, part Part, i int) bool {
	switch part {
	case PartSecondary:
		return c.Secondary != nil
	case PartOperator:
		return c.Operator != ""
	case PartPrimary:
		return c.Primary != nil
	case PartTimeframe:
		// The initial condition's bare timeframe stays; later links go
		// with their connective.
		return c.Timeframe != "" && i > 0
	case PartConnective:
		return i > 0
	}
	return false
}

// clear removes part from c and reports whether there was anything to
// remove.
func (b *Builder) clear(c *statement.Condition, part Part) bool {
	switch part {
	case PartPrimary:
		if c.Primary == nil {
			return false
		}
		c.Primary = nil
	case PartOperator:
		if c.Operator == "" {
			return false
		}
		c.Operator = ""
		c.Pips = nil
	case PartSecondary:
		if c.Secondary == nil {
			return false
		}
		c.Secondary = nil
	case PartTimeframe:
		if c.Primary != nil {
			// An indicator always needs a timeframe.
			c.Primary.Base().Timeframe = b.resetTF
			return true
		}
		if c.Timeframe == "" {
			return false
		}
		c.Timeframe = ""
	default:
		return false
	}
	return true
}

func kindOf(part Part) TokenKind {
	switch part {
	case PartConnective:
		return TokenConnective
	case PartPrimary, PartSecondary:
		return TokenIndicator
	case PartOperator:
		return TokenBehavior
	case PartTimeframe:
		return TokenTimeframe
	}
	return TokenUnknown
}
