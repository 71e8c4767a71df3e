package indicators

import (
	"errors"
	"fmt"

	"github.com/algomatic/statement-builder/pkg/statement"
)

// ErrIncompatibleOption is returned when a dependent indicator is not
// offered for the given primary.
var ErrIncompatibleOption = errors.New("option not compatible with primary indicator")

// Option is one dependent indicator offered for comparison.
type Option struct {
	ID    string `json:"id"`
	Label string `json:"label"`

	indicator string
	output    string
	// clone copies the primary and only swaps the output line.
	clone bool
}

var (
	rsiOptions = []Option{
		{ID: "rsi", Label: "RSI", indicator: "RSI"},
		{ID: "rsi_ma", Label: "RSI-of-MA", indicator: "RSI_MA"},
	}
	bollingerOptions = []Option{
		{ID: "high", Label: "High", indicator: "BBANDS", output: "upperBand"},
		{ID: "low", Label: "Low", indicator: "BBANDS", output: "lowerBand"},
		{ID: "mid", Label: "Mid", indicator: "BBANDS", output: "middleBand"},
	}
	stochasticOptions = []Option{
		{ID: "%K", Label: "%K (fast line)", output: "%K", clone: true},
		{ID: "%D", Label: "%D (slow line)", output: "%D", clone: true},
	}
	volumeOptions = []Option{
		{ID: "volume", Label: "Volume", indicator: "volume"},
		{ID: "volume_ma", Label: "Volume-MA", indicator: "Volume_MA"},
	}
	priceOptions = []Option{
		{ID: "open", Label: "Open", indicator: "open"},
		{ID: "high", Label: "High", indicator: "high"},
		{ID: "low", Label: "Low", indicator: "low"},
		{ID: "close", Label: "Close", indicator: "close"},
	}

	optionsByPrimary = map[string][]Option{
		"RSI":       rsiOptions,
		"RSI_MA":    rsiOptions,
		"BBANDS":    bollingerOptions,
		"MACD":      {{ID: "macd", Label: "MACD", indicator: "MACD"}},
		"ATR":       {{ID: "atr", Label: "ATR", indicator: "ATR"}},
		"STOCH":     stochasticOptions,
		"volume":    volumeOptions,
		"Volume_MA": volumeOptions,
	}
)

// Linker offers and materializes dependent indicators.
type Linker struct {
	resolver *Resolver
}

// NewLinker creates a linker that resolves independent secondaries with
// resolver.
func NewLinker(resolver *Resolver) *Linker {
	if resolver == nil {
		resolver = NewResolver(nil)
	}
	return &Linker{resolver: resolver}
}

// CompatibleSecondaries lists the options for primary. The result depends
// on the primary's identity only.
func (l *Linker) CompatibleSecondaries(primary statement.IndicatorRef) []Option {
	if primary == nil {
		return nil
	}
	opts, ok := optionsByPrimary[primary.Ident()]
	if !ok && primary.Kind() == statement.KindPriceField {
		opts = priceOptions
	}
	out := make([]Option, len(opts))
	copy(out, opts)
	return out
}

// Materialize builds the secondary for optionID. Independent indicators are
// resolved fresh from persisted defaults on the primary's timeframe; the
// Stochastic lines copy the primary and differ only in OutputField.
func (l *Linker) Materialize(
	primary statement.IndicatorRef,
	optionID string,
	persisted Defaults,
) (statement.IndicatorRef, error) {
	var opt *Option
	for _, o := range l.CompatibleSecondaries(primary) {
		if o.ID == optionID {
			o := o
			opt = &o
			break
		}
	}
	if opt == nil {
		ident := "<nil>"
		if primary != nil {
			ident = primary.Ident()
		}
		return nil, fmt.Errorf("%q for %s: %w", optionID, ident, ErrIncompatibleOption)
	}

	if opt.clone {
		b, ok := primary.Copy().(*statement.BuiltinIndicator)
		if !ok {
			return nil, fmt.Errorf("%q for %s: %w", optionID, primary.Ident(), ErrIncompatibleOption)
		}
		b.OutputField = opt.output
		// Next-bar deferral belongs to each input.
		b.Wait = false
		return b, nil
	}

	ref, err := l.resolver.Resolve(opt.indicator, primary.Base().Timeframe, nil, persisted)
	if err != nil {
		return nil, err
	}
	if b, ok := ref.(*statement.BuiltinIndicator); ok && opt.output != "" {
		b.OutputField = opt.output
	}
	return ref, nil
}
