package indicators

import (
	"errors"
	"reflect"
	"testing"

	"github.com/algomatic/statement-builder/pkg/statement"
)

// mapDefaults is a fixed persisted-default store.
type mapDefaults map[string]statement.Params

func (m mapDefaults) Lookup(name string) (statement.Params, bool) {
	p, ok := m[name]
	return p, ok
}

func TestResolveTableDefaults(t *testing.T) {
	r := NewResolver(nil)

	tests := []struct {
		label  string
		kind   statement.IndicatorKind
		name   string
		params statement.Params
		output string
	}{
		{"RSI", statement.KindBuiltin, "RSI", statement.Params{"period": 14.0, "source": "Close"}, ""},
		{"RSI-of-MA", statement.KindCustom, "RSI_MA", statement.Params{
			"period": 14.0, "maLength": 14.0, "source": "Close", "maType": "SMA", "bandWidth": 2.0,
		}, ""},
		{"Bollinger", statement.KindBuiltin, "BBANDS", statement.Params{"period": 17.0}, "upperBand"},
		{"Volume-MA", statement.KindCustom, "Volume_MA", statement.Params{"maLength": 20.0}, ""},
		{"MACD", statement.KindBuiltin, "MACD", statement.Params{"fast": 12.0, "slow": 26.0, "signal": 9.0}, ""},
		{"Stochastic", statement.KindBuiltin, "STOCH", statement.Params{"kPeriod": 14.0, "dPeriod": 3.0}, "%K"},
		{"ATR", statement.KindBuiltin, "ATR", statement.Params{"length": 14.0, "smoothing": "RMA"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			ref, err := r.Resolve(tt.label, "3h", nil, nil)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if ref.Kind() != tt.kind || ref.Ident() != tt.name {
				t.Errorf("got %s %s, want %s %s", ref.Kind(), ref.Ident(), tt.kind, tt.name)
			}
			if ref.Base().Timeframe != "3h" {
				t.Errorf("timeframe = %q, want 3h", ref.Base().Timeframe)
			}
			if got := statement.ParamsOf(ref); !reflect.DeepEqual(got, tt.params) {
				t.Errorf("params = %#v, want %#v", got, tt.params)
			}
			if b, ok := ref.(*statement.BuiltinIndicator); ok && b.OutputField != tt.output {
				t.Errorf("output = %q, want %q", b.OutputField, tt.output)
			}
		})
	}
}

func TestResolvePriceFields(t *testing.T) {
	r := NewResolver(nil)
	for _, label := range []string{"Open", "High", "Low", "Close", "Volume"} {
		ref, err := r.Resolve(label, "1h", nil, nil)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", label, err)
		}
		pf, ok := ref.(*statement.PriceField)
		if !ok {
			t.Fatalf("Resolve(%q) = %T, want *PriceField", label, ref)
		}
		if pf.Timeframe != "1h" {
			t.Errorf("Resolve(%q) timeframe = %q", label, pf.Timeframe)
		}
	}
}

func TestResolveAliases(t *testing.T) {
	r := NewResolver(nil)
	for label, want := range map[string]string{
		"rsi_ma":          "RSI_MA",
		"RSI of MA":       "RSI_MA",
		"bollinger bands": "BBANDS",
		"BBANDS":          "BBANDS",
		"volume_ma":       "Volume_MA",
		"stoch":           "STOCH",
	} {
		ref, err := r.Resolve(label, "3h", nil, nil)
		if err != nil {
			t.Errorf("Resolve(%q): %v", label, err)
			continue
		}
		if ref.Ident() != want {
			t.Errorf("Resolve(%q) = %s, want %s", label, ref.Ident(), want)
		}
	}
}

func TestResolvePersistedPrecedence(t *testing.T) {
	r := NewResolver(nil)
	store := mapDefaults{"RSI": {"period": 21}}

	ref, err := r.Resolve("RSI", "3h", nil, store)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := statement.ParamsOf(ref)["period"]; got != 21.0 {
		t.Errorf("persisted default not applied: period=%v", got)
	}
	if got := statement.ParamsOf(ref)["source"]; got != "Close" {
		t.Errorf("table default lost for unset key: source=%v", got)
	}

	ref, err = r.Resolve("RSI", "3h", statement.Params{"period": 9}, store)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := statement.ParamsOf(ref)["period"]; got != 9.0 {
		t.Errorf("explicit value must win over persisted: period=%v", got)
	}
}

func TestResolveUnknownLabel(t *testing.T) {
	r := NewResolver(nil)
	if _, err := r.Resolve("Ichimoku", "1h", nil, nil); !errors.Is(err, ErrUnknownIndicator) {
		t.Errorf("expected ErrUnknownIndicator, got %v", err)
	}
}

func TestCatalogNames(t *testing.T) {
	c := NewCatalog()
	names := c.Names()
	for _, n := range names {
		if e := c.Get(n); e == nil || e.Kind == statement.KindPriceField {
			t.Errorf("Names() returned %q which takes no params", n)
		}
	}
	if len(names) != 9 {
		t.Errorf("expected 9 parameterised indicators, got %d: %v", len(names), names)
	}
	if c.Count() != 14 {
		t.Errorf("expected 14 catalog entries, got %d", c.Count())
	}
}
