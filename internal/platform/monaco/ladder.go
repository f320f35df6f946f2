package monaco

import "github.com/shopspring/decimal"

// DefaultBatchSize is how many prices go into one add-prices transaction.
const DefaultBatchSize = 50

// ladderBand is a half-open price range [from, to) walked in steps of step.
type ladderBand struct {
	from, to, step string
}

// The standard decimal odds ladder. The final band is closed so 1000 itself
// is included.
var ladderBands = []ladderBand{
	{"1.01", "2", "0.01"},
	{"2", "3", "0.02"},
	{"3", "4", "0.05"},
	{"4", "6", "0.1"},
	{"6", "10", "0.2"},
	{"10", "20", "0.5"},
	{"20", "30", "1"},
	{"30", "50", "2"},
	{"50", "100", "5"},
	{"100", "1000", "10"},
}

// DefaultPriceLadder returns the fixed ladder of decimal odds seeded into
// every outcome pool, ascending from 1.01 to 1000. Steps are accumulated in
// decimal so no float drift creeps into the prices.
func DefaultPriceLadder() []float64 {
	var ladder []float64
	for _, b := range ladderBands {
		from := decimal.RequireFromString(b.from)
		to := decimal.RequireFromString(b.to)
		step := decimal.RequireFromString(b.step)
		for p := from; p.LessThan(to); p = p.Add(step) {
			ladder = append(ladder, p.InexactFloat64())
		}
	}
	return append(ladder, 1000)
}
