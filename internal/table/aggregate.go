package table

import (
	"log/slog"
	"math"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/zombor/tablescan/internal/scanning"
)

// AggregationKey normalizes a product code. A code spanning several lines is
// reduced to its first line with all whitespace removed; other codes are trimmed.
func AggregationKey(code string) string {
	if i := strings.IndexByte(code, '\n'); i >= 0 {
		return strings.Map(func(r rune) rune {
			if unicode.IsSpace(r) {
				return -1
			}
			return r
		}, code[:i])
	}
	return strings.TrimSpace(code)
}

// Aggregate merges records by product code. The output keeps the order and
// description of each code's first occurrence; values of duplicates are summed.
func Aggregate(records []scanning.Row) []scanning.Row {
	index := make(map[string]int, len(records))
	sums := make([]decimal.Decimal, 0, len(records))
	out := make([]scanning.Row, 0, len(records))

	for _, rec := range records {
		key := AggregationKey(rec.Code)
		if key == "" {
			continue
		}

		value := decimal.NewFromFloat(rec.Value)
		if i, ok := index[key]; ok {
			sums[i] = sums[i].Add(value)
			continue
		}

		index[key] = len(out)
		sums = append(sums, value)
		out = append(out, scanning.Row{Code: key, Description: rec.Description})
	}

	for i := range out {
		out[i].Value = finite(out[i].Code, sums[i].InexactFloat64())
	}
	return out
}

// finite clamps a sum that overflowed float64 to the largest representable value
func finite(code string, v float64) float64 {
	if !math.IsInf(v, 0) {
		return v
	}
	slog.Warn("Aggregated value out of range, clamping", "code", code)
	return math.Copysign(math.MaxFloat64, v)
}
