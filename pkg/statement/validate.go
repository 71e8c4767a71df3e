package statement

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// ErrNotSubmittable marks a statement that is structurally valid but still
// in progress.
var ErrNotSubmittable = errors.New("statement is not ready for submission")

// Validate checks the structural invariants and reports every violation.
// An in-progress statement (empty trailing slot, indicator without operator)
// is valid.
func (s *Statement) Validate() error {
	var err error

	if s.Side != Buy && s.Side != Sell {
		err = multierr.Append(err, fmt.Errorf("side: unknown value %q", s.Side))
	}
	if len(s.Conditions) == 0 {
		err = multierr.Append(err, errors.New("strategy: missing initial condition"))
	}

	for i, c := range s.Conditions {
		path := fmt.Sprintf("strategy[%d]", i)
		if i == 0 && c.Connective != Initial {
			err = multierr.Append(err, fmt.Errorf("%s: first condition must be %q, got %q", path, Initial, c.Connective))
		}
		if i > 0 && c.Connective != And {
			err = multierr.Append(err, fmt.Errorf("%s: chained condition must be %q, got %q", path, And, c.Connective))
		}
		if c.Primary != nil && c.Timeframe != "" {
			err = multierr.Append(err, fmt.Errorf("%s: timeframe stored on both condition and indicator", path))
		}
		if c.Operator != "" && !c.Operator.Valid() {
			err = multierr.Append(err, fmt.Errorf("%s: unknown operator %q", path, c.Operator))
		}
		if c.Pips != nil && !c.Operator.UsesPips() {
			err = multierr.Append(err, fmt.Errorf("%s: pips set for operator %q", path, c.Operator))
		}
	}

	return err
}

// CheckSubmittable reports why the statement cannot be submitted yet, or
// nil when it can. The returned error wraps ErrNotSubmittable.
func (s *Statement) CheckSubmittable() error {
	if err := s.submitIssues(); err != nil {
		return fmt.Errorf("%w: %w", ErrNotSubmittable, err)
	}
	return nil
}

// Issues lists every reason CheckSubmittable would fail, one error each.
func (s *Statement) Issues() []error {
	return multierr.Errors(s.submitIssues())
}

func (s *Statement) submitIssues() error {
	err := s.Validate()

	if s.Label == "" {
		err = multierr.Append(err, errors.New("label: required"))
	}
	for i, c := range s.Conditions {
		path := fmt.Sprintf("strategy[%d]", i)
		if c.Primary == nil {
			err = multierr.Append(err, fmt.Errorf("%s: no indicator selected", path))
			continue
		}
		if c.Operator == "" && c.Secondary != nil {
			err = multierr.Append(err, fmt.Errorf("%s: comparison value without a behavior", path))
		}
		if c.Operator != "" && c.Operator.NeedsOperand() && c.Secondary == nil {
			err = multierr.Append(err, fmt.Errorf("%s: %s requires a comparison value", path, c.Operator))
		}
	}

	return err
}
