package statement

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/spf13/cast"
)

// IndicatorKind tags the IndicatorRef variants with their wire "type".
type IndicatorKind string

const (
	KindPriceField IndicatorKind = "C"
	KindBuiltin    IndicatorKind = "I"
	KindCustom     IndicatorKind = "CUSTOM_I"
)

// Field is a raw price series.
type Field string

const (
	FieldOpen   Field = "open"
	FieldHigh   Field = "high"
	FieldLow    Field = "low"
	FieldClose  Field = "close"
	FieldVolume Field = "volume"
)

// ParseField maps a case-insensitive label to a Field.
func ParseField(s string) (Field, bool) {
	switch f := Field(strings.ToLower(strings.TrimSpace(s))); f {
	case FieldOpen, FieldHigh, FieldLow, FieldClose, FieldVolume:
		return f, true
	}
	return "", false
}

// Params maps parameter names to values. Numbers are always float64 once
// normalized; strings stay strings.
type Params map[string]any

// NormalizeParams converts every numeric value to float64 and returns nil
// for an empty map, so params built in Go and params decoded from JSON
// compare equal.
func NormalizeParams(p Params) Params {
	if len(p) == 0 {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		switch v.(type) {
		case int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64, json.Number:
			if f, err := cast.ToFloat64E(v); err == nil {
				out[k] = f
				continue
			}
		}
		out[k] = v
	}
	return out
}

// Clone returns a shallow copy; values are scalars.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Float returns the numeric value of key.
func (p Params) Float(key string) (float64, bool) {
	v, ok := p[key]
	if !ok {
		return 0, false
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, false
	}
	return f, true
}

// String returns the value of key rendered as a string.
func (p Params) String(key string) string {
	return cast.ToString(p[key])
}

// Keys returns the parameter names in sorted order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RefBase holds what every IndicatorRef variant carries.
type RefBase struct {
	Timeframe string

	// Wait defers evaluation to the next bar.
	Wait bool
}

// Base gives access to the shared fields through the IndicatorRef interface.
func (b *RefBase) Base() *RefBase { return b }

// IndicatorRef is a typed reference to a price field or a computed
// indicator. The set of variants is closed: *PriceField, *BuiltinIndicator
// and *CustomIndicator.
type IndicatorRef interface {
	ComparisonOperand
	Kind() IndicatorKind
	// Ident is the canonical indicator name, or the field for price fields.
	Ident() string
	Base() *RefBase
	Copy() IndicatorRef
}

// PriceField references a raw OHLCV series.
type PriceField struct {
	RefBase
	Field Field
}

func (p *PriceField) Kind() IndicatorKind { return KindPriceField }
func (p *PriceField) Ident() string       { return string(p.Field) }

func (p *PriceField) Copy() IndicatorRef {
	c := *p
	return &c
}

func (p *PriceField) copyOperand() ComparisonOperand { return p.Copy() }

// BuiltinIndicator is a library indicator such as RSI or MACD. OutputField
// selects one line of a multi-output indicator (Bollinger band, %K/%D).
type BuiltinIndicator struct {
	RefBase
	Name        string
	Params      Params
	OutputField string
}

func (b *BuiltinIndicator) Kind() IndicatorKind { return KindBuiltin }
func (b *BuiltinIndicator) Ident() string       { return b.Name }

func (b *BuiltinIndicator) Copy() IndicatorRef {
	c := *b
	c.Params = b.Params.Clone()
	return &c
}

func (b *BuiltinIndicator) copyOperand() ComparisonOperand { return b.Copy() }

// Derivative wraps a custom indicator in its n-th order gradient.
type Derivative struct {
	Order int
}

// CustomIndicator is a derived indicator such as RSI-of-MA or Volume-MA.
type CustomIndicator struct {
	RefBase
	Name       string
	Params     Params
	Derivative *Derivative
}

func (c *CustomIndicator) Kind() IndicatorKind { return KindCustom }
func (c *CustomIndicator) Ident() string       { return c.Name }

func (c *CustomIndicator) Copy() IndicatorRef {
	out := *c
	out.Params = c.Params.Clone()
	if c.Derivative != nil {
		d := *c.Derivative
		out.Derivative = &d
	}
	return &out
}

func (c *CustomIndicator) copyOperand() ComparisonOperand { return c.Copy() }

// ParamsOf returns the parameters of ref, or nil for price fields.
func ParamsOf(ref IndicatorRef) Params {
	switch r := ref.(type) {
	case *BuiltinIndicator:
		return r.Params
	case *CustomIndicator:
		return r.Params
	}
	return nil
}

// SetParams replaces the parameters of ref. It is a no-op for price fields.
func SetParams(ref IndicatorRef, p Params) {
	switch r := ref.(type) {
	case *BuiltinIndicator:
		r.Params = NormalizeParams(p)
	case *CustomIndicator:
		r.Params = NormalizeParams(p)
	}
}
