package statement

import "sort"

// RequiredTimeframes walks the statement and collects every timeframe the
// backend must load bars for, sorted.
func (s *Statement) RequiredTimeframes() []string {
	seen := make(map[string]bool)
	for _, c := range s.Conditions {
		if c.Timeframe != "" {
			seen[c.Timeframe] = true
		}
		if c.Primary != nil {
			addTimeframe(c.Primary, seen)
		}
		if ref, ok := c.Secondary.(IndicatorRef); ok {
			addTimeframe(ref, seen)
		}
	}

	// Indicator-relative stops need their reference series too
	for _, r := range s.RiskRules {
		if rel, ok := r.(*IndicatorRelative); ok && rel.Reference != nil {
			addTimeframe(rel.Reference, seen)
		}
	}

	out := make([]string, 0, len(seen))
	for tf := range seen {
		out = append(out, tf)
	}
	sort.Strings(out)
	return out
}

func addTimeframe(ref IndicatorRef, seen map[string]bool) {
	if tf := ref.Base().Timeframe; tf != "" {
		seen[tf] = true
	}
}
