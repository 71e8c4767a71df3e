package statement

// The backend names indicator parameters and output lines after the TA
// library it computes them with. The in-memory model uses the palette names;
// these tables translate between the two. Keys missing from a table pass
// through unchanged.

var paramWireNames = map[string]map[string]string{
	"RSI": {
		"period": "timeperiod",
	},
	"BBANDS": {
		"period": "timeperiod",
	},
	"MACD": {
		"fast":   "fastperiod",
		"slow":   "slowperiod",
		"signal": "signalperiod",
	},
	"STOCH": {
		"kPeriod": "fastk_period",
		"dPeriod": "slowd_period",
	},
	"ATR": {
		"length":    "atr_length",
		"smoothing": "atr_smoothing",
	},
	"RSI_MA": {
		"period":    "rsi_length",
		"source":    "rsi_source",
		"maType":    "ma_type",
		"maLength":  "ma_length",
		"bandWidth": "bb_stddev",
	},
	"Volume_MA": {
		"maLength": "ma_length",
	},
	"MA": {
		"maLength": "ma_length",
	},
}

var outputWireNames = map[string]map[string]string{
	"BBANDS": {
		"upperBand":  "upperband",
		"middleBand": "middleband",
		"lowerBand":  "lowerband",
	},
	"STOCH": {
		"%K": "slowk",
		"%D": "slowd",
	},
}

var (
	paramModelNames  = invertAll(paramWireNames)
	outputModelNames = invertAll(outputWireNames)
)

func invertAll(tables map[string]map[string]string) map[string]map[string]string {
	out := make(map[string]map[string]string, len(tables))
	for name, table := range tables {
		inv := make(map[string]string, len(table))
		for k, v := range table {
			inv[v] = k
		}
		out[name] = inv
	}
	return out
}

func translate(tables map[string]map[string]string, indicator, key string) string {
	if v, ok := tables[indicator][key]; ok {
		return v
	}
	return key
}

func paramsToWire(indicator string, p Params) map[string]any {
	if len(p) == 0 {
		return nil
	}
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[translate(paramWireNames, indicator, k)] = v
	}
	return out
}

func paramsFromWire(indicator string, m map[string]any) Params {
	if len(m) == 0 {
		return nil
	}
	out := make(Params, len(m))
	for k, v := range m {
		out[translate(paramModelNames, indicator, k)] = v
	}
	return NormalizeParams(out)
}

func outputToWire(indicator, field string) string {
	if field == "" {
		return ""
	}
	return translate(outputWireNames, indicator, field)
}

func outputFromWire(indicator, field string) string {
	if field == "" {
		return ""
	}
	return translate(outputModelNames, indicator, field)
}
