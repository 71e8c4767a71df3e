// Package builder turns palette selections into edits of a strategy
// statement.
//
// AddToken classifies a selection (connective, timeframe, indicator,
// behavior, side, risk action, wait) and decides where in the condition
// chain it attaches. Remove deletes a placed part and re-establishes the
// chain invariants. Execute dispatches a Command, the JSON form of both,
// plus the settings-dialog edits (configure, compare, operand, ...).
//
// Selections that do not fit the current chain are rejected without error:
// the Outcome reports Applied=false with a reason. Errors are reserved for
// programmer misuse such as a nonexistent condition index.
//
// The builder performs no I/O. Persisted indicator defaults arrive as an
// indicators.Defaults snapshot, and writes to the store are returned in
// Outcome.Persist for the caller to perform.
package builder

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/algomatic/statement-builder/pkg/indicators"
	"github.com/algomatic/statement-builder/pkg/operators"
	"github.com/algomatic/statement-builder/pkg/risk"
	"github.com/algomatic/statement-builder/pkg/statement"
)

// Default timeframes.
const (
	DefaultTimeframe = "3h"
	ResetTimeframe   = "1h"
)

// ErrNilStatement is returned when a nil statement is passed in.
var ErrNilStatement = errors.New("nil statement")

// TokenKind is the classification of a palette selection.
type TokenKind int

const (
	TokenUnknown TokenKind = iota
	TokenConnective
	TokenTimeframe
	TokenIndicator
	TokenBehavior
	TokenRiskAction
	TokenSide
	TokenWait
)

func (k TokenKind) String() string {
	switch k {
	case TokenConnective:
		return "connective"
	case TokenTimeframe:
		return "timeframe"
	case TokenIndicator:
		return "indicator"
	case TokenBehavior:
		return "behavior"
	case TokenRiskAction:
		return "risk_action"
	case TokenSide:
		return "side"
	case TokenWait:
		return "wait"
	}
	return "unknown"
}

// Token is one palette selection.
type Token struct {
	Label string

	// Timeframe overrides the builder default for timeframe tokens and
	// the inherited timeframe for indicator tokens.
	Timeframe string

	// Params are explicit indicator parameters; they win over persisted
	// and table defaults.
	Params statement.Params

	// Value is an explicit comparison value for behavior tokens.
	Value *float64

	// Risk carries the dialog content for SL/TP tokens.
	Risk *risk.Form
}

// Persist is a write the caller owes the persisted-default store.
type Persist struct {
	Indicator string
	Params    statement.Params
}

// Outcome reports what an edit did.
type Outcome struct {
	Kind    TokenKind
	Applied bool
	Reason  string
	Persist []Persist
}

func applied(kind TokenKind) Outcome { return Outcome{Kind: kind, Applied: true} }

// Options configures a Builder.
type Options struct {
	// DefaultTimeframe is used when a timeframe token or an indicator
	// arrives without one. Empty means DefaultTimeframe.
	DefaultTimeframe string

	// ResetTimeframe replaces an indicator timeframe that the user
	// removes. Empty means ResetTimeframe.
	ResetTimeframe string

	// Logger for debug output. Nil uses slog.Default().
	Logger *slog.Logger
}

// Builder applies palette selections to statements. It holds no per-
// statement state and is safe for concurrent use on distinct statements.
type Builder struct {
	resolver  *indicators.Resolver
	linker    *indicators.Linker
	risk      *risk.Compiler
	defaultTF string
	resetTF   string
	logger    *slog.Logger
}

// New creates a builder. A nil resolver uses the built-in catalog; nil
// options use the package defaults.
func New(resolver *indicators.Resolver, opts *Options) *Builder {
	if resolver == nil {
		resolver = indicators.NewResolver(nil)
	}
	b := &Builder{
		resolver:  resolver,
		linker:    indicators.NewLinker(resolver),
		risk:      risk.NewCompiler(),
		defaultTF: DefaultTimeframe,
		resetTF:   ResetTimeframe,
		logger:    slog.Default(),
	}
	if opts != nil {
		if opts.DefaultTimeframe != "" {
			b.defaultTF = opts.DefaultTimeframe
		}
		if opts.ResetTimeframe != "" {
			b.resetTF = opts.ResetTimeframe
		}
		if opts.Logger != nil {
			b.logger = opts.Logger
		}
	}
	return b
}

// Linker returns the dependent-indicator linker the builder uses.
func (b *Builder) Linker() *indicators.Linker { return b.linker }

// Resolver returns the indicator resolver the builder uses.
func (b *Builder) Resolver() *indicators.Resolver { return b.resolver }

var timeframeLabel = regexp.MustCompile(`(?i)^\d+\s*(min|mins|m|h|hr|hour|hours|d|day|days|w|week|weeks|mo|month|months)$`)

var riskLabels = map[string]statement.RiskKind{
	"sl":          statement.StopLoss,
	"stoploss":    statement.StopLoss,
	"stop loss":   statement.StopLoss,
	"tp":          statement.TakeProfit,
	"takeprofit":  statement.TakeProfit,
	"take profit": statement.TakeProfit,
}

// Classify decides which kind of selection label is.
func (b *Builder) Classify(label string) TokenKind {
	l := strings.ToLower(strings.TrimSpace(label))
	switch l {
	case "if", "and":
		return TokenConnective
	case "timeframe":
		return TokenTimeframe
	case "long", "short", "buy", "sell":
		return TokenSide
	case "wait":
		return TokenWait
	}
	if _, ok := riskLabels[l]; ok {
		return TokenRiskAction
	}
	if timeframeLabel.MatchString(l) {
		return TokenTimeframe
	}
	if _, ok := operators.Normalize(l); ok {
		return TokenBehavior
	}
	if b.resolver.Catalog().Lookup(l) != nil {
		return TokenIndicator
	}
	return TokenUnknown
}

// AddToken applies one palette selection to s.
func (b *Builder) AddToken(s *statement.Statement, tok Token, defaults indicators.Defaults) (Outcome, error) {
	if s == nil {
		return Outcome{}, ErrNilStatement
	}
	if defaults == nil {
		defaults = indicators.NoDefaults{}
	}

	kind := b.Classify(tok.Label)
	var out Outcome
	switch kind {
	case TokenConnective:
		out = b.addConnective(s, strings.ToLower(strings.TrimSpace(tok.Label)))
	case TokenTimeframe:
		out = b.addTimeframe(s, tok)
	case TokenIndicator:
		out = b.addIndicator(s, tok, defaults)
	case TokenBehavior:
		out = b.addBehavior(s, tok)
	case TokenSide:
		side, _ := statement.ParseSide(tok.Label)
		s.Side = side
		out = applied(kind)
	case TokenRiskAction:
		out = b.addRisk(s, tok)
	case TokenWait:
		out = b.toggleWait(s)
	default:
		out = rejected(kind, fmt.Sprintf("unrecognised selection %q", tok.Label))
	}

	if !out.Applied {
		b.logger.Debug("Selection ignored",
			"label", tok.Label, "kind", kind.String(), "reason", out.Reason,
		)
	}
	return out, nil
}

func rejected(kind TokenKind, reason string) Outcome {
	return Outcome{Kind: kind, Reason: reason}
}

func (b *Builder) addConnective(s *statement.Statement, label string) Outcome {
	if s.EnsureInitial() {
		return applied(TokenConnective)
	}
	if label == string(statement.Initial) {
		return rejected(TokenConnective, "if is only valid as the first condition")
	}
	if s.Last().Primary == nil {
		return rejected(TokenConnective, "and needs a filled condition to follow")
	}
	s.AppendCondition("")
	return applied(TokenConnective)
}

func (b *Builder) addTimeframe(s *statement.Statement, tok Token) Outcome {
	tf := strings.TrimSpace(tok.Timeframe)
	if tf == "" && timeframeLabel.MatchString(strings.TrimSpace(tok.Label)) {
		tf = strings.TrimSpace(tok.Label)
	}
	if tf == "" {
		tf = b.defaultTF
	}

	s.EnsureInitial()
	last := len(s.Conditions) - 1
	if s.Conditions[last].Primary != nil {
		// A filled condition means the user is starting the next link.
		s.AppendCondition(tf)
		return applied(TokenTimeframe)
	}
	_ = s.AttachTimeframe(last, tf)
	return applied(TokenTimeframe)
}

func (b *Builder) addIndicator(s *statement.Statement, tok Token, defaults indicators.Defaults) Outcome {
	s.EnsureInitial()
	last := len(s.Conditions) - 1
	c := &s.Conditions[last]

	// With an operator in place the indicator is the comparison target.
	if c.Primary != nil && c.Operator != "" {
		ref, err := b.resolver.Resolve(tok.Label, c.Primary.Base().Timeframe, tok.Params, defaults)
		if err != nil {
			return rejected(TokenIndicator, err.Error())
		}
		c.Secondary = ref
		return applied(TokenIndicator)
	}

	tf := strings.TrimSpace(tok.Timeframe)
	if tf == "" {
		tf = c.Timeframe
	}
	if tf == "" && c.Primary != nil {
		tf = c.Primary.Base().Timeframe
	}
	if tf == "" {
		tf = b.defaultTF
	}
	ref, err := b.resolver.Resolve(tok.Label, tf, tok.Params, defaults)
	if err != nil {
		return rejected(TokenIndicator, err.Error())
	}
	if err := s.AttachPrimary(last, ref); err != nil {
		return rejected(TokenIndicator, err.Error())
	}
	return applied(TokenIndicator)
}

func (b *Builder) addBehavior(s *statement.Statement, tok Token) Outcome {
	op, _ := operators.Normalize(tok.Label)
	s.EnsureInitial()
	// The behavior goes to the last condition holding an indicator, past any
	// trailing slot still waiting for one.
	var c *statement.Condition
	for i := len(s.Conditions) - 1; i >= 0; i-- {
		if s.Conditions[i].Primary != nil {
			c = &s.Conditions[i]
			break
		}
	}
	if c == nil {
		return rejected(TokenBehavior, "a behavior needs an indicator to compare")
	}

	c.Operator = op
	if op.UsesPips() {
		if c.Pips == nil {
			c.Pips = operators.DefaultDistance(op)
		}
	} else {
		c.Pips = nil
	}

	if tok.Value != nil {
		c.Secondary = &statement.Literal{Value: *tok.Value, Explicit: true}
		return applied(TokenBehavior)
	}
	// Indicator targets and typed values stay; a behavior default is
	// re-derived from the new operator.
	switch v := c.Secondary.(type) {
	case nil:
		c.Secondary = operators.DefaultOperand(op)
	case *statement.Literal:
		if !v.Explicit {
			c.Secondary = defaultOperandKeepingWait(op, v.Wait)
		}
	case *statement.Channel:
		if op != statement.InsideChannel {
			c.Secondary = operators.DefaultOperand(op)
		}
	}
	return applied(TokenBehavior)
}

func defaultOperandKeepingWait(op statement.Operator, wait bool) statement.ComparisonOperand {
	def := operators.DefaultOperand(op)
	if def != nil {
		statement.SetWaiting(def, wait)
	}
	return def
}

func (b *Builder) addRisk(s *statement.Statement, tok Token) Outcome {
	if tok.Risk == nil {
		return rejected(TokenRiskAction, "risk action needs a configured form")
	}
	form := *tok.Risk
	if form.Kind == "" {
		form.Kind = riskLabels[strings.ToLower(strings.TrimSpace(tok.Label))]
	}
	if _, err := b.risk.Apply(s, form); err != nil {
		return rejected(TokenRiskAction, err.Error())
	}
	return applied(TokenRiskAction)
}

// toggleWait flips next-bar deferral on the last condition's primary input,
// or on its secondary input when there is no primary.
func (b *Builder) toggleWait(s *statement.Statement) Outcome {
	c := s.Last()
	switch {
	case c == nil:
		return rejected(TokenWait, "nothing to defer")
	case c.Primary != nil:
		c.Primary.Base().Wait = !c.Primary.Base().Wait
	case c.Secondary != nil:
		if !statement.SetWaiting(c.Secondary, !statement.Waiting(c.Secondary)) {
			return rejected(TokenWait, "comparison value cannot be deferred")
		}
	default:
		return rejected(TokenWait, "nothing to defer")
	}
	return applied(TokenWait)
}
