// Package indicators maps palette indicator labels to typed statement
// nodes.
//
// The Catalog is the fixed table of known indicators and their default
// parameters. The Resolver turns a label into an IndicatorRef, layering
// persisted user overrides and explicit values over the table defaults. The
// Linker answers which secondary indicators may be compared against an
// already placed primary, and materializes the chosen one.
package indicators

import (
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/algomatic/statement-builder/pkg/statement"
)

// ErrUnknownIndicator is returned for labels the catalog does not know.
var ErrUnknownIndicator = errors.New("unknown indicator")

// Entry describes one catalog indicator.
type Entry struct {
	// Name is the canonical name sent to the backend and used as the
	// persisted-default key.
	Name  string
	Label string
	Kind  statement.IndicatorKind

	// Field is set for price fields only.
	Field statement.Field

	Defaults    statement.Params
	OutputField string
	Aliases     []string
}

// Catalog is a thread-safe registry of indicator entries keyed by every
// normalized label and alias.
type Catalog struct {
	mu      sync.RWMutex
	byName  map[string]*Entry
	byLabel map[string]*Entry
}

// NewCatalog returns a catalog holding the built-in indicators.
func NewCatalog() *Catalog {
	c := &Catalog{
		byName:  make(map[string]*Entry),
		byLabel: make(map[string]*Entry),
	}
	c.RegisterAll(builtinEntries())
	return c
}

// Register adds an entry, replacing any entry with the same name or alias.
func (c *Catalog) Register(e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registerLocked(e)
}

// RegisterAll adds multiple entries.
func (c *Catalog) RegisterAll(entries []*Entry) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		c.registerLocked(e)
	}
	slog.Debug("Registered indicators", "count", len(entries), "total", len(c.byName))
	return len(entries)
}

func (c *Catalog) registerLocked(e *Entry) {
	c.byName[e.Name] = e
	c.byLabel[normalizeLabel(e.Name)] = e
	c.byLabel[normalizeLabel(e.Label)] = e
	for _, a := range e.Aliases {
		c.byLabel[normalizeLabel(a)] = e
	}
}

// Lookup finds an entry by palette label, alias or canonical name,
// ignoring case, spaces, hyphens and underscores.
func (c *Catalog) Lookup(label string) *Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byLabel[normalizeLabel(label)]
}

// Get returns the entry with the given canonical name, or nil.
func (c *Catalog) Get(name string) *Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byName[name]
}

// GetAll returns every entry sorted by name.
func (c *Catalog) GetAll() []*Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Entry, 0, len(c.byName))
	for _, e := range c.byName {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the canonical names of every entry that takes parameters.
// These are the keys of the persisted-default store.
func (c *Catalog) Names() []string {
	var names []string
	for _, e := range c.GetAll() {
		if e.Kind != statement.KindPriceField {
			names = append(names, e.Name)
		}
	}
	return names
}

// Count returns the number of registered indicators.
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byName)
}

var labelReplacer = strings.NewReplacer(" ", "", "-", "", "_", "")

func normalizeLabel(s string) string {
	return labelReplacer.Replace(strings.ToLower(strings.TrimSpace(s)))
}

func builtinEntries() []*Entry {
	price := func(f statement.Field, label string) *Entry {
		return &Entry{Name: string(f), Label: label, Kind: statement.KindPriceField, Field: f}
	}
	return []*Entry{
		{
			Name: "RSI", Label: "RSI", Kind: statement.KindBuiltin,
			Defaults: statement.Params{"period": 14.0, "source": "Close"},
		},
		{
			Name: "RSI_MA", Label: "RSI-of-MA", Kind: statement.KindCustom,
			Defaults: statement.Params{
				"period": 14.0, "maLength": 14.0, "source": "Close",
				"maType": "SMA", "bandWidth": 2.0,
			},
			Aliases: []string{"RSI of MA", "RSI MA"},
		},
		{
			Name: "BBANDS", Label: "Bollinger", Kind: statement.KindBuiltin,
			Defaults:    statement.Params{"period": 17.0},
			OutputField: "upperBand",
			Aliases:     []string{"Bollinger Bands", "BB"},
		},
		{
			Name: "Volume_MA", Label: "Volume-MA", Kind: statement.KindCustom,
			Defaults: statement.Params{"maLength": 20.0},
			Aliases:  []string{"Volume Moving Average"},
		},
		{
			Name: "MACD", Label: "MACD", Kind: statement.KindBuiltin,
			Defaults: statement.Params{"fast": 12.0, "slow": 26.0, "signal": 9.0},
		},
		{
			Name: "STOCH", Label: "Stochastic", Kind: statement.KindBuiltin,
			Defaults:    statement.Params{"kPeriod": 14.0, "dPeriod": 3.0},
			OutputField: "%K",
			Aliases:     []string{"Stochastic Oscillator"},
		},
		{
			Name: "ATR", Label: "ATR", Kind: statement.KindBuiltin,
			Defaults: statement.Params{"length": 14.0, "smoothing": "RMA"},
			Aliases:  []string{"Average True Range"},
		},
		{
			Name: "MA", Label: "MA", Kind: statement.KindCustom,
			Defaults: statement.Params{"maLength": 20.0},
			Aliases:  []string{"Moving Average"},
		},
		{
			Name: "GENERAL_PA", Label: "General PA", Kind: statement.KindCustom,
			Aliases: []string{"Price Action"},
		},
		price(statement.FieldOpen, "Open"),
		price(statement.FieldHigh, "High"),
		price(statement.FieldLow, "Low"),
		price(statement.FieldClose, "Close"),
		price(statement.FieldVolume, "Volume"),
	}
}
