package indicators

import (
	"fmt"

	"github.com/algomatic/statement-builder/pkg/statement"
)

// Defaults is the read side of the persisted-default store: the parameters
// a user last configured for an indicator, keyed by canonical name.
type Defaults interface {
	Lookup(name string) (statement.Params, bool)
}

// NoDefaults is a Defaults with nothing persisted.
type NoDefaults struct{}

func (NoDefaults) Lookup(string) (statement.Params, bool) { return nil, false }

// Resolver maps palette labels to IndicatorRefs.
type Resolver struct {
	catalog *Catalog
}

// NewResolver creates a resolver over catalog. A nil catalog uses the
// built-in table.
func NewResolver(catalog *Catalog) *Resolver {
	if catalog == nil {
		catalog = NewCatalog()
	}
	return &Resolver{catalog: catalog}
}

// Catalog returns the catalog the resolver reads.
func (r *Resolver) Catalog() *Catalog { return r.catalog }

// Resolve builds the IndicatorRef for label on timeframe. Parameter
// precedence is explicit, then persisted, then the catalog default; a
// persisted value never replaces one the caller set explicitly.
func (r *Resolver) Resolve(
	label, timeframe string,
	explicit statement.Params,
	persisted Defaults,
) (statement.IndicatorRef, error) {
	e := r.catalog.Lookup(label)
	if e == nil {
		return nil, fmt.Errorf("resolving %q: %w", label, ErrUnknownIndicator)
	}
	return ResolveEntry(e, timeframe, explicit, persisted), nil
}

// ResolveEntry builds the IndicatorRef for a catalog entry.
func ResolveEntry(
	e *Entry,
	timeframe string,
	explicit statement.Params,
	persisted Defaults,
) statement.IndicatorRef {
	base := statement.RefBase{Timeframe: timeframe}

	switch e.Kind {
	case statement.KindPriceField:
		return &statement.PriceField{RefBase: base, Field: e.Field}
	case statement.KindCustom:
		return &statement.CustomIndicator{
			RefBase: base,
			Name:    e.Name,
			Params:  mergeParams(e, explicit, persisted),
		}
	default:
		return &statement.BuiltinIndicator{
			RefBase:     base,
			Name:        e.Name,
			Params:      mergeParams(e, explicit, persisted),
			OutputField: e.OutputField,
		}
	}
}

func mergeParams(e *Entry, explicit statement.Params, persisted Defaults) statement.Params {
	out := e.Defaults.Clone()
	if out == nil {
		out = statement.Params{}
	}
	if persisted != nil {
		if saved, ok := persisted.Lookup(e.Name); ok {
			for k, v := range saved {
				out[k] = v
			}
		}
	}
	for k, v := range explicit {
		out[k] = v
	}
	return statement.NormalizeParams(out)
}
