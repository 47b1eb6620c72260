package datasource

import "simtrader/internal/domain"

// Adjust rescales a raw bar to its split- and dividend-adjusted close.
// Open, high and low are multiplied by adjClose/close, close becomes
// adjClose, and volume moves the opposite way so traded value is kept.
// When the raw bar is well ordered, rounding in the rescale is clamped so
// the adjusted bar stays well ordered too; a raw violation is kept for
// Validate to reject.
func Adjust(b domain.Bar, adjClose float64) domain.Bar {
	if b.Close == 0 || adjClose == 0 {
		return b
	}
	ordered := b.Low <= min(b.Open, b.Close) && b.High >= max(b.Open, b.Close)

	ratio := adjClose / b.Close
	b.Open *= ratio
	b.High *= ratio
	b.Low *= ratio
	b.Volume /= ratio
	b.Close = adjClose

	if ordered {
		b.High = max(b.High, b.Open, b.Close)
		b.Low = min(b.Low, b.Open, b.Close)
	}
	return b
}
