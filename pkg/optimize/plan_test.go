package optimize

import (
	"errors"
	"reflect"
	"testing"

	"github.com/algomatic/statement-builder/pkg/statement"
)

func sample() *statement.Statement {
	s := statement.New("opt")
	s.Conditions[0].Primary = &statement.BuiltinIndicator{
		RefBase: statement.RefBase{Timeframe: "1h"},
		Name:    "RSI",
		Params:  statement.Params{"period": 14.0, "source": "Close"},
	}
	s.Conditions[0].Operator = statement.CrossAbove
	s.Conditions[0].Secondary = &statement.CustomIndicator{
		RefBase: statement.RefBase{Timeframe: "1h"},
		Name:    "RSI_MA",
		Params:  statement.Params{"period": 14.0, "maLength": 14.0, "maType": "SMA"},
	}
	s.Conditions = append(s.Conditions, statement.Condition{
		Connective: statement.And,
		Primary:    &statement.PriceField{RefBase: statement.RefBase{Timeframe: "1h"}, Field: statement.FieldClose},
		Operator:   statement.MovingUp,
	})
	return s
}

var (
	rsiPeriod   = Parameter{Condition: 0, Input: Primary, Indicator: "RSI", Name: "period"}
	maPeriod    = Parameter{Condition: 0, Input: Secondary, Indicator: "RSI_MA", Name: "period"}
	maLength    = Parameter{Condition: 0, Input: Secondary, Indicator: "RSI_MA", Name: "maLength"}
	periodRange = Range{Start: 10, End: 20, Step: 5}
)

func TestCandidates(t *testing.T) {
	got := Candidates(sample())
	want := []Candidate{
		{Parameter: rsiPeriod, Current: 14},
		{Parameter: maLength, Current: 14},
		{Parameter: maPeriod, Current: 14},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Candidates =\n%+v\nwant\n%+v", got, want)
	}
}

func TestRangeValues(t *testing.T) {
	tests := []struct {
		name string
		r    Range
		want []float64
	}{
		{"integers", Range{Start: 10, End: 20, Step: 5}, []float64{10, 15, 20}},
		{"fractional", Range{Start: 0.1, End: 0.5, Step: 0.1}, []float64{0.1, 0.2, 0.3, 0.4, 0.5}},
		{"single", Range{Start: 7, End: 7, Step: 1}, []float64{7}},
		{"inverted", Range{Start: 5, End: 1, Step: 1}, nil},
		{"zero step", Range{Start: 1, End: 5}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.r.Values(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Values = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRangeCount(t *testing.T) {
	tests := []struct {
		name string
		r    Range
		want int
	}{
		{"integers", Range{Start: 10, End: 20, Step: 5}, 3},
		{"partial last step", Range{Start: 10, End: 21, Step: 5}, 3},
		{"fractional", Range{Start: 0.1, End: 0.5, Step: 0.1}, 5},
		{"at the cap", Range{Start: 1, End: MaxRangeValues, Step: 1}, MaxRangeValues},
		{"over the cap", Range{Start: 0, End: 1e9, Step: 1e-6}, 0},
		{"inverted", Range{Start: 5, End: 1, Step: 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.r.Count(); got != tt.want {
				t.Errorf("Count = %d, want %d", got, tt.want)
			}
			if tt.want > 0 && len(tt.r.Values()) != tt.want {
				t.Errorf("Values has %d entries, Count %d", len(tt.r.Values()), tt.want)
			}
		})
	}
}

func TestPinEnforcesLimits(t *testing.T) {
	s := sample()
	p := NewPlan()

	huge := Range{Start: 0, End: 1e9, Step: 1e-6}
	if err := p.Pin(s, "A", huge, rsiPeriod); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("oversized range err = %v", err)
	}

	p.MaxCombinations = 50
	if err := p.Pin(s, "A", Range{Start: 1, End: 10, Step: 1}, rsiPeriod); err != nil {
		t.Fatal(err)
	}
	if err := p.Pin(s, "B", Range{Start: 1, End: 6, Step: 1}, maPeriod); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("60 combinations over a limit of 50: err = %v", err)
	}
	if len(p.Groups()) != 1 || p.Size() != 10 {
		t.Errorf("rejected group changed the plan: %+v", p.Groups())
	}
	if err := p.Pin(s, "B", Range{Start: 1, End: 5, Step: 1}, maPeriod); err != nil {
		t.Errorf("50 combinations should fit: %v", err)
	}
	if p.Size() != 50 {
		t.Errorf("Size = %d, want 50", p.Size())
	}
}

func TestPinRejectsReuseWithoutMutation(t *testing.T) {
	s := sample()
	p := NewPlan()
	if err := p.Pin(s, "A", periodRange, rsiPeriod); err != nil {
		t.Fatalf("Pin A: %v", err)
	}
	before := p.Groups()

	err := p.Pin(s, "B", Range{Start: 5, End: 10, Step: 1}, maLength, rsiPeriod)
	if !errors.Is(err, ErrParameterReuse) {
		t.Fatalf("err = %v, want ErrParameterReuse", err)
	}
	if want := `parameter already used in another group: RSI period (condition 1) is already optimised in group "A"`; err.Error() != want {
		t.Errorf("message = %q", err.Error())
	}
	if !reflect.DeepEqual(p.Groups(), before) {
		t.Errorf("plan mutated: %+v", p.Groups())
	}
	if err := p.Pin(s, "B", Range{Start: 5, End: 10, Step: 1}, maLength); err != nil {
		t.Errorf("maLength should still be free: %v", err)
	}
}

func TestPinValidation(t *testing.T) {
	s := sample()
	p := NewPlan()

	if err := p.Pin(s, "A", periodRange, Parameter{Condition: 1, Input: Primary, Indicator: "close", Name: "period"}); !errors.Is(err, ErrUnknownParameter) {
		t.Errorf("unknown parameter err = %v", err)
	}
	if err := p.Pin(s, "A", Range{Start: 1, End: 5}, rsiPeriod); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("zero step err = %v", err)
	}
	if err := p.Pin(s, "A", periodRange, rsiPeriod, rsiPeriod); !errors.Is(err, ErrParameterReuse) {
		t.Errorf("duplicate err = %v", err)
	}
	if len(p.Groups()) != 0 {
		t.Errorf("failed pins created groups: %+v", p.Groups())
	}

	if err := p.Pin(s, "A", periodRange, rsiPeriod); err != nil {
		t.Fatal(err)
	}
	if err := p.Pin(s, "A", Range{}, maPeriod); err != nil {
		t.Errorf("joining an existing group: %v", err)
	}
	if err := p.Pin(s, "A", Range{Start: 1, End: 2, Step: 1}, maLength); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("conflicting range err = %v", err)
	}
	// Re-pinning to the same group is a no-op.
	if err := p.Pin(s, "A", periodRange, rsiPeriod); err != nil {
		t.Errorf("re-pin: %v", err)
	}
	if got := p.Groups()[0].Parameters; !reflect.DeepEqual(got, []Parameter{rsiPeriod, maPeriod}) {
		t.Errorf("parameters = %+v", got)
	}
}

func TestCombinationsAndApply(t *testing.T) {
	s := sample()
	p := NewPlan()
	_ = p.Pin(s, "periods", periodRange, rsiPeriod, maPeriod)
	_ = p.Pin(s, "smoothing", Range{Start: 3, End: 4, Step: 1}, maLength)

	if p.Size() != 6 {
		t.Fatalf("Size = %d, want 6", p.Size())
	}
	combos := p.Combinations()
	if len(combos) != 6 {
		t.Fatalf("combinations = %d", len(combos))
	}
	for _, c := range combos {
		if c[rsiPeriod] != c[maPeriod] {
			t.Errorf("grouped parameters diverged: %v", c)
		}
	}

	out, err := Apply(s, combos[len(combos)-1])
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := statement.ParamsOf(out.Conditions[0].Primary)["period"]; got != 20.0 {
		t.Errorf("RSI period = %v, want 20", got)
	}
	if got := statement.ParamsOf(out.Conditions[0].Secondary.(statement.IndicatorRef))["maLength"]; got != 4.0 {
		t.Errorf("maLength = %v, want 4", got)
	}
	if got := statement.ParamsOf(s.Conditions[0].Primary)["period"]; got != 14.0 {
		t.Errorf("Apply mutated the source statement: %v", got)
	}
}

func TestUnpin(t *testing.T) {
	s := sample()
	p := NewPlan()
	_ = p.Pin(s, "A", periodRange, rsiPeriod)

	if !p.Unpin(rsiPeriod) {
		t.Fatal("Unpin reported nothing removed")
	}
	if len(p.Groups()) != 0 || p.Size() != 0 {
		t.Errorf("empty group not dropped: %+v", p.Groups())
	}
	if p.Unpin(rsiPeriod) {
		t.Error("second Unpin should report false")
	}
	if err := p.Pin(s, "B", periodRange, rsiPeriod); err != nil {
		t.Errorf("unpinned parameter should be reusable: %v", err)
	}
}
