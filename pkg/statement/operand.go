package statement

// ComparisonOperand is the right-hand side of a comparison: a *Literal, a
// *Channel or any IndicatorRef.
type ComparisonOperand interface {
	copyOperand() ComparisonOperand
}

// Literal is a constant comparison value. Explicit marks a value the user
// typed; other literals are behavior defaults and follow the operator.
type Literal struct {
	Value    float64
	Wait     bool
	Explicit bool
}

func (l *Literal) copyOperand() ComparisonOperand {
	c := *l
	return &c
}

// Channel is the band width compared against by insideChannel.
type Channel struct {
	Width float64
}

func (c *Channel) copyOperand() ComparisonOperand {
	out := *c
	return &out
}

// CloneOperand returns a deep copy of o.
func CloneOperand(o ComparisonOperand) ComparisonOperand {
	if o == nil {
		return nil
	}
	return o.copyOperand()
}

// Waiting reports whether o defers evaluation to the next bar.
func Waiting(o ComparisonOperand) bool {
	switch v := o.(type) {
	case *Literal:
		return v.Wait
	case IndicatorRef:
		return v.Base().Wait
	}
	return false
}

// SetWaiting sets the next-bar deferral flag on o. Channels cannot wait and
// are left unchanged; the return value reports whether the flag was set.
func SetWaiting(o ComparisonOperand, wait bool) bool {
	switch v := o.(type) {
	case *Literal:
		v.Wait = wait
		return true
	case IndicatorRef:
		v.Base().Wait = wait
		return true
	}
	return false
}
