package statement

import (
	"errors"
	"reflect"
	"testing"

	"go.uber.org/multierr"
)

func rsi(tf string) *BuiltinIndicator {
	return &BuiltinIndicator{
		RefBase: RefBase{Timeframe: tf},
		Name:    "RSI",
		Params:  Params{"period": 14.0, "source": "Close"},
	}
}

func floatPtr(v float64) *float64 { return &v }

func TestNewStatement(t *testing.T) {
	s := New("Statement 1")
	if len(s.Conditions) != 1 {
		t.Fatalf("expected 1 condition, got %d", len(s.Conditions))
	}
	c := s.Conditions[0]
	if c.Connective != Initial {
		t.Errorf("expected Initial connective, got %q", c.Connective)
	}
	if c.Timeframe != "" || !c.Empty() {
		t.Errorf("expected empty initial condition, got %+v", c)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("new statement should validate: %v", err)
	}
}

func TestParseSide(t *testing.T) {
	tests := []struct {
		in   string
		want Side
		ok   bool
	}{
		{"Long", Buy, true},
		{"short", Sell, true},
		{"B", Buy, true},
		{"S", Sell, true},
		{"sideways", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseSide(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseSide(%q) = %q,%v want %q,%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestAttachPrimaryMovesTimeframe(t *testing.T) {
	s := New("s")
	if err := s.AttachTimeframe(0, "3h"); err != nil {
		t.Fatalf("AttachTimeframe: %v", err)
	}
	if err := s.AttachPrimary(0, rsi("")); err != nil {
		t.Fatalf("AttachPrimary: %v", err)
	}

	c := s.Conditions[0]
	if c.Timeframe != "" {
		t.Errorf("condition timeframe should be cleared, got %q", c.Timeframe)
	}
	if got := c.Primary.Base().Timeframe; got != "3h" {
		t.Errorf("indicator timeframe = %q, want 3h", got)
	}
}

func TestAttachPrimaryKeepsResolvedTimeframe(t *testing.T) {
	s := New("s")
	s.Conditions[0].Timeframe = "1h"
	if err := s.AttachPrimary(0, rsi("4h")); err != nil {
		t.Fatalf("AttachPrimary: %v", err)
	}
	if s.Conditions[0].Timeframe != "" {
		t.Error("condition timeframe should be cleared")
	}
	if got := s.Conditions[0].Primary.Base().Timeframe; got != "4h" {
		t.Errorf("indicator timeframe = %q, want 4h", got)
	}
}

func TestAttachTimeframeWithPrimary(t *testing.T) {
	s := New("s")
	_ = s.AttachPrimary(0, rsi("3h"))
	if err := s.AttachTimeframe(0, "15min"); err != nil {
		t.Fatalf("AttachTimeframe: %v", err)
	}
	if s.Conditions[0].Timeframe != "" {
		t.Error("timeframe must live on the indicator once attached")
	}
	if got := s.Conditions[0].EffectiveTimeframe(); got != "15min" {
		t.Errorf("EffectiveTimeframe = %q, want 15min", got)
	}
}

func TestConditionIndexErrors(t *testing.T) {
	s := New("s")
	if err := s.AttachTimeframe(3, "1h"); !errors.Is(err, ErrConditionIndex) {
		t.Errorf("expected ErrConditionIndex, got %v", err)
	}
	if err := s.RemoveCondition(0); !errors.Is(err, ErrInitialCondition) {
		t.Errorf("expected ErrInitialCondition, got %v", err)
	}
}

func TestPruneEmpty(t *testing.T) {
	s := New("s")
	_ = s.AttachPrimary(0, rsi("3h"))
	s.AppendCondition("1h")
	s.AppendCondition("")
	third := s.AppendCondition("")
	third.Primary = &PriceField{RefBase: RefBase{Timeframe: "1h"}, Field: FieldVolume}

	if s.PruneEmptyTrailingCondition() {
		t.Error("filled trailing condition must not be pruned")
	}
	if n := s.PruneEmpty(); n != 2 {
		t.Fatalf("expected 2 pruned, got %d", n)
	}
	if len(s.Conditions) != 2 {
		t.Fatalf("expected 2 conditions left, got %d", len(s.Conditions))
	}
	if s.Conditions[1].Primary == nil {
		t.Error("filled condition should survive pruning")
	}
}

func TestPruneEmptyTrailingCondition(t *testing.T) {
	s := New("s")
	if s.PruneEmptyTrailingCondition() {
		t.Error("initial condition must never be pruned")
	}
	s.AppendCondition("")
	if !s.PruneEmptyTrailingCondition() {
		t.Error("expected empty trailing condition to be pruned")
	}
	if len(s.Conditions) != 1 {
		t.Errorf("expected 1 condition, got %d", len(s.Conditions))
	}
}

func TestValidateCollectsEveryViolation(t *testing.T) {
	s := &Statement{
		Side: "X",
		Conditions: []Condition{
			{Connective: And, Timeframe: "1h", Primary: rsi("3h")},
			{Connective: Initial, Operator: "sideways"},
		},
	}
	err := s.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if got := len(multierr.Errors(err)); got != 5 {
		t.Errorf("expected 5 violations, got %d: %v", got, err)
	}
}

func TestCheckSubmittable(t *testing.T) {
	s := New("Statement 1")
	if err := s.CheckSubmittable(); !errors.Is(err, ErrNotSubmittable) {
		t.Fatalf("empty statement should not be submittable, got %v", err)
	}

	_ = s.AttachPrimary(0, rsi("3h"))
	if err := s.CheckSubmittable(); err != nil {
		t.Errorf("indicator-only condition should be submittable: %v", err)
	}

	s.Conditions[0].Operator = CrossAbove
	if err := s.CheckSubmittable(); !errors.Is(err, ErrNotSubmittable) {
		t.Errorf("operator without operand should not be submittable, got %v", err)
	}

	s.Conditions[0].Secondary = &Literal{Value: 60}
	if err := s.CheckSubmittable(); err != nil {
		t.Errorf("complete statement should be submittable: %v", err)
	}

	s.Conditions[0].Operator = MovingUp
	s.Conditions[0].Secondary = nil
	if err := s.CheckSubmittable(); err != nil {
		t.Errorf("trend test needs no operand: %v", err)
	}
}

func TestIssues(t *testing.T) {
	s := New("")
	s.AppendCondition("1h")
	issues := s.Issues()
	// label, strategy[0] and strategy[1] have nothing selected
	if len(issues) != 3 {
		t.Fatalf("issues = %v", issues)
	}

	s.Label = "Statement 1"
	_ = s.AttachPrimary(0, rsi("3h"))
	_ = s.AttachPrimary(1, rsi("1h"))
	if issues := s.Issues(); len(issues) != 0 {
		t.Errorf("complete statement has issues: %v", issues)
	}
}

func TestRequiredTimeframes(t *testing.T) {
	s := New("s")
	_ = s.AttachPrimary(0, rsi("3h"))
	s.Conditions[0].Operator = CrossAbove
	s.Conditions[0].Secondary = &CustomIndicator{RefBase: RefBase{Timeframe: "1h"}, Name: "RSI_MA"}
	s.AppendCondition("15min")
	s.AddRiskRule(&IndicatorRelative{
		Kind:      StopLoss,
		Reference: &BuiltinIndicator{RefBase: RefBase{Timeframe: "1 day"}, Name: "nperiod_hl", OutputField: "low"},
		Direction: Minus,
		Pips:      50,
	})

	got := s.RequiredTimeframes()
	want := []string{"15min", "1 day", "1h", "3h"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("RequiredTimeframes = %v, want %v", got, want)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	s := New("s")
	_ = s.AttachPrimary(0, rsi("3h"))
	s.Conditions[0].Operator = AtmostAbovePips
	s.Conditions[0].Pips = floatPtr(500)
	s.AddRiskRule(&SimpleOffset{Kind: StopLoss, Direction: Minus, Pips: 900})

	c := s.Clone()
	if !reflect.DeepEqual(s, c) {
		t.Fatal("clone should be deep-equal to the original")
	}

	c.Conditions[0].Primary.(*BuiltinIndicator).Params["period"] = 21.0
	*c.Conditions[0].Pips = 10
	c.RiskRules[0].(*SimpleOffset).Pips = 1

	if s.Conditions[0].Primary.(*BuiltinIndicator).Params["period"] != 14.0 {
		t.Error("clone shares params with the original")
	}
	if *s.Conditions[0].Pips != 500 {
		t.Error("clone shares pips with the original")
	}
	if s.RiskRules[0].(*SimpleOffset).Pips != 900 {
		t.Error("clone shares risk rules with the original")
	}
}

func TestNormalizeParams(t *testing.T) {
	p := NormalizeParams(Params{"period": 14, "fast": int64(12), "source": "Close"})
	if p["period"] != 14.0 || p["fast"] != 12.0 {
		t.Errorf("numbers should normalize to float64, got %#v", p)
	}
	if p["source"] != "Close" {
		t.Errorf("strings should be untouched, got %#v", p["source"])
	}
	if NormalizeParams(Params{}) != nil {
		t.Error("empty params should normalize to nil")
	}
}
