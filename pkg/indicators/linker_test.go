package indicators

import (
	"errors"
	"reflect"
	"testing"

	"github.com/algomatic/statement-builder/pkg/statement"
)

func optionIDs(opts []Option) []string {
	ids := make([]string, len(opts))
	for i, o := range opts {
		ids[i] = o.ID
	}
	return ids
}

func TestCompatibleSecondaries(t *testing.T) {
	r := NewResolver(nil)
	l := NewLinker(r)

	tests := []struct {
		label string
		want  []string
	}{
		{"RSI", []string{"rsi", "rsi_ma"}},
		{"RSI-of-MA", []string{"rsi", "rsi_ma"}},
		{"Bollinger", []string{"high", "low", "mid"}},
		{"MACD", []string{"macd"}},
		{"ATR", []string{"atr"}},
		{"Stochastic", []string{"%K", "%D"}},
		{"Volume", []string{"volume", "volume_ma"}},
		{"Volume-MA", []string{"volume", "volume_ma"}},
		{"Close", []string{"open", "high", "low", "close"}},
		{"Open", []string{"open", "high", "low", "close"}},
		{"MA", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			primary, err := r.Resolve(tt.label, "3h", nil, nil)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			got := optionIDs(l.CompatibleSecondaries(primary))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("options = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompatibleSecondariesDependOnIdentityOnly(t *testing.T) {
	l := NewLinker(nil)
	a := &statement.BuiltinIndicator{RefBase: statement.RefBase{Timeframe: "1h"}, Name: "RSI", Params: statement.Params{"period": 9.0}}
	b := &statement.BuiltinIndicator{RefBase: statement.RefBase{Timeframe: "1 day", Wait: true}, Name: "RSI"}

	if !reflect.DeepEqual(l.CompatibleSecondaries(a), l.CompatibleSecondaries(b)) {
		t.Error("options must not depend on params or timeframe")
	}

	// Mutating the returned slice must not leak into the table.
	opts := l.CompatibleSecondaries(a)
	opts[0].ID = "tampered"
	if l.CompatibleSecondaries(a)[0].ID != "rsi" {
		t.Error("CompatibleSecondaries returned shared table storage")
	}
}

func TestMaterializeStochasticClonesPrimary(t *testing.T) {
	l := NewLinker(nil)
	primary := &statement.BuiltinIndicator{
		RefBase:     statement.RefBase{Timeframe: "3h"},
		Name:        "STOCH",
		Params:      statement.Params{"kPeriod": 14.0, "dPeriod": 3.0},
		OutputField: "%K",
	}
	// A persisted default must be ignored for the same-indicator case.
	store := mapDefaults{"STOCH": {"kPeriod": 5}}

	got, err := l.Materialize(primary, "%D", store)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	want := &statement.BuiltinIndicator{
		RefBase:     statement.RefBase{Timeframe: "3h"},
		Name:        "STOCH",
		Params:      statement.Params{"kPeriod": 14.0, "dPeriod": 3.0},
		OutputField: "%D",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}

	got.(*statement.BuiltinIndicator).Params["kPeriod"] = 1.0
	if primary.Params["kPeriod"] != 14.0 {
		t.Error("materialized secondary shares params with primary")
	}
}

func TestMaterializeCloneDoesNotWait(t *testing.T) {
	l := NewLinker(nil)
	primary := &statement.BuiltinIndicator{
		RefBase:     statement.RefBase{Timeframe: "3h", Wait: true},
		Name:        "STOCH",
		Params:      statement.Params{"kPeriod": 14.0, "dPeriod": 3.0},
		OutputField: "%K",
	}
	got, err := l.Materialize(primary, "%D", nil)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if got.Base().Wait {
		t.Error("secondary inherited the primary's next-bar deferral")
	}
	if !primary.Wait {
		t.Error("primary lost its deferral")
	}
}

func TestMaterializeIndependentUsesPersistedDefaults(t *testing.T) {
	r := NewResolver(nil)
	l := NewLinker(r)

	primary, _ := r.Resolve("RSI", "4h", statement.Params{"period": 7}, nil)
	store := mapDefaults{"RSI_MA": {"maLength": 30}}

	got, err := l.Materialize(primary, "rsi_ma", store)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	ci, ok := got.(*statement.CustomIndicator)
	if !ok {
		t.Fatalf("expected *CustomIndicator, got %T", got)
	}
	if ci.Timeframe != "4h" {
		t.Errorf("secondary should inherit the primary timeframe, got %q", ci.Timeframe)
	}
	if ci.Params["maLength"] != 30.0 {
		t.Errorf("persisted default not applied: %#v", ci.Params)
	}
	if ci.Params["period"] != 14.0 {
		t.Errorf("independent secondary must not inherit primary params: %#v", ci.Params)
	}
}

func TestMaterializeBollingerBands(t *testing.T) {
	r := NewResolver(nil)
	l := NewLinker(r)
	primary, _ := r.Resolve("Bollinger", "1h", nil, nil)

	for id, want := range map[string]string{"high": "upperBand", "low": "lowerBand", "mid": "middleBand"} {
		got, err := l.Materialize(primary, id, nil)
		if err != nil {
			t.Fatalf("Materialize(%q): %v", id, err)
		}
		if b := got.(*statement.BuiltinIndicator); b.OutputField != want {
			t.Errorf("Materialize(%q) output = %q, want %q", id, b.OutputField, want)
		}
	}
}

func TestMaterializeIncompatibleOption(t *testing.T) {
	r := NewResolver(nil)
	l := NewLinker(r)
	primary, _ := r.Resolve("MACD", "1h", nil, nil)

	if _, err := l.Materialize(primary, "%D", nil); !errors.Is(err, ErrIncompatibleOption) {
		t.Errorf("expected ErrIncompatibleOption, got %v", err)
	}
	if _, err := l.Materialize(nil, "macd", nil); !errors.Is(err, ErrIncompatibleOption) {
		t.Errorf("expected ErrIncompatibleOption for nil primary, got %v", err)
	}
}
