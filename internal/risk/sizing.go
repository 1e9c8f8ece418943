package risk

// SizingConfig holds the parameters for copy-trade position sizing.
type SizingConfig struct {
	CopyRatio     float64 // fraction of the source order to copy
	PerTradeCap   float64
	MinViableSize float64
}

// PositionSize computes the notional to trade when copying a source order:
// CopyRatio of the source size, capped at the per-trade cap and at the
// available balance. Returns 0 when the result is below the minimum viable
// size. Pure function; never mutates shared state.
func PositionSize(sourceSize, availableBalance float64, cfg SizingConfig) float64 {
	size := sourceSize * cfg.CopyRatio
	if size > cfg.PerTradeCap {
		size = cfg.PerTradeCap
	}
	if size > availableBalance {
		size = availableBalance
	}
	if size < cfg.MinViableSize {
		return 0
	}
	return size
}
