package arbitrage

import (
	"sort"
)

// OutcomePrice is the current best ask for one outcome of a market.
type OutcomePrice struct {
	TokenID   string
	Outcome   string
	Price     float64
	Liquidity float64 // shares available at the ask
}

// MarketPrices is the detector input: all outcome prices for one market.
type MarketPrices struct {
	MarketID string
	Outcomes []OutcomePrice
}

// Config holds detector thresholds. Fees are a taker-fee rate on cost;
// gas is a fixed per-leg transaction-cost estimate in USD, amortized over
// the sized trade.
type Config struct {
	FeeRate            float64
	GasPerLeg          float64
	MinProfitPct       float64 // opportunities below this are not returned
	MinSize            float64 // shares; below this the opportunity is discarded
	MaxSize            float64 // shares cap
	AsymmetricMaxPrice float64 // cheap-side threshold, e.g. 0.97
}

// Detector computes arbitrage opportunities. It is pure: no clocks, no
// stored state, identical inputs yield identical outputs.
type Detector struct {
	cfg Config
}

// New creates a detector.
func New(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// boundedSize returns the tradeable share count: the thinnest leg's
// liquidity capped by MaxSize, or 0 when below MinSize.
func (d *Detector) boundedSize(outcomes []OutcomePrice) float64 {
	size := outcomes[0].Liquidity
	for _, o := range outcomes {
		if o.Liquidity < size {
			size = o.Liquidity
		}
	}
	if size > d.cfg.MaxSize {
		size = d.cfg.MaxSize
	}
	if size < d.cfg.MinSize {
		return 0
	}
	return size
}

// effectiveCost is the per-share cost of buying every leg: price sum plus
// taker fees plus per-leg gas amortized over the trade size.
func (d *Detector) effectiveCost(priceSum float64, legs int, size float64) float64 {
	return priceSum*(1+d.cfg.FeeRate) + float64(legs)*d.cfg.GasPerLeg/size
}

// DetectBinary checks the two-outcome combination: buy YES and NO, collect
// 1.00 at resolution. An opportunity exists iff the effective cost of both
// legs stays below 1.00.
func (d *Detector) DetectBinary(m MarketPrices) (*Opportunity, bool) {
	if len(m.Outcomes) != 2 {
		return nil, false
	}
	for _, o := range m.Outcomes {
		if o.Price <= 0 {
			return nil, false
		}
	}

	size := d.boundedSize(m.Outcomes)
	if size == 0 {
		return nil, false
	}

	priceSum := m.Outcomes[0].Price + m.Outcomes[1].Price
	cost := d.effectiveCost(priceSum, 2, size)
	if cost >= 1.0 {
		OpportunitiesRejectedTotal.WithLabelValues("cost_above_payout").Inc()
		return nil, false
	}

	profitPct := (1.0 - cost) / cost * 100
	if profitPct < d.cfg.MinProfitPct {
		OpportunitiesRejectedTotal.WithLabelValues("below_min_profit").Inc()
		return nil, false
	}

	return &Opportunity{
		ID:        opportunityID(m.MarketID, KindBinary, "all"),
		MarketID:  m.MarketID,
		Kind:      KindBinary,
		RiskLevel: RiskFree,
		Legs:      legsFor(m.Outcomes, size),
		Size:      size,
		TotalCost: cost,
		ProfitPct: profitPct,
	}, true
}

// DetectMultiOutcome generalizes the binary check to k >= 3 outcomes:
// buy every outcome, exactly one pays 1.00.
func (d *Detector) DetectMultiOutcome(m MarketPrices) (*Opportunity, bool) {
	if len(m.Outcomes) < 3 {
		return nil, false
	}

	priceSum := 0.0
	for _, o := range m.Outcomes {
		if o.Price <= 0 {
			return nil, false
		}
		priceSum += o.Price
	}

	size := d.boundedSize(m.Outcomes)
	if size == 0 {
		return nil, false
	}

	cost := d.effectiveCost(priceSum, len(m.Outcomes), size)
	if cost >= 1.0 {
		OpportunitiesRejectedTotal.WithLabelValues("cost_above_payout").Inc()
		return nil, false
	}

	profitPct := (1.0 - cost) / cost * 100
	if profitPct < d.cfg.MinProfitPct {
		OpportunitiesRejectedTotal.WithLabelValues("below_min_profit").Inc()
		return nil, false
	}

	return &Opportunity{
		ID:        opportunityID(m.MarketID, KindMultiOutcome, "all"),
		MarketID:  m.MarketID,
		Kind:      KindMultiOutcome,
		RiskLevel: RiskFree,
		Legs:      legsFor(m.Outcomes, size),
		Size:      size,
		TotalCost: cost,
		ProfitPct: profitPct,
	}, true
}

// DetectAsymmetric looks for a single deeply-discounted outcome: buy the
// cheap side and hold to resolution. Not risk-free; the position only pays
// if that outcome wins. Tie-break picks the lowest price, which is also the
// highest profit.
func (d *Detector) DetectAsymmetric(m MarketPrices) (*Opportunity, bool) {
	if len(m.Outcomes) < 2 {
		return nil, false
	}

	cheapest := -1
	for i, o := range m.Outcomes {
		if o.Price <= 0 || o.Price >= d.cfg.AsymmetricMaxPrice {
			continue
		}
		if cheapest == -1 || o.Price < m.Outcomes[cheapest].Price {
			cheapest = i
		}
	}
	if cheapest == -1 {
		return nil, false
	}

	leg := m.Outcomes[cheapest]
	size := d.boundedSize([]OutcomePrice{leg})
	if size == 0 {
		return nil, false
	}

	cost := d.effectiveCost(leg.Price, 1, size)
	if cost >= 1.0 {
		OpportunitiesRejectedTotal.WithLabelValues("cost_above_payout").Inc()
		return nil, false
	}

	profitPct := (1.0 - cost) / cost * 100
	if profitPct < d.cfg.MinProfitPct {
		OpportunitiesRejectedTotal.WithLabelValues("below_min_profit").Inc()
		return nil, false
	}

	return &Opportunity{
		ID:        opportunityID(m.MarketID, KindAsymmetric, leg.Outcome),
		MarketID:  m.MarketID,
		Kind:      KindAsymmetric,
		RiskLevel: LowRisk,
		Legs:      []Leg{{TokenID: leg.TokenID, Outcome: leg.Outcome, Price: leg.Price, Size: size}},
		Size:      size,
		TotalCost: cost,
		ProfitPct: profitPct,
	}, true
}

// ScanMarket runs every applicable detection and returns opportunities
// sorted risk-free first, then by profit descending. Zero or one outcome
// yields nothing.
func (d *Detector) ScanMarket(m MarketPrices) []*Opportunity {
	if len(m.Outcomes) < 2 {
		return nil
	}

	var opps []*Opportunity

	if len(m.Outcomes) == 2 {
		if opp, ok := d.DetectBinary(m); ok {
			opps = append(opps, opp)
		}
	} else {
		if opp, ok := d.DetectMultiOutcome(m); ok {
			opps = append(opps, opp)
		}
	}

	if opp, ok := d.DetectAsymmetric(m); ok {
		opps = append(opps, opp)
	}

	sort.SliceStable(opps, func(i, j int) bool {
		if opps[i].RiskLevel != opps[j].RiskLevel {
			return opps[i].RiskLevel == RiskFree
		}
		return opps[i].ProfitPct > opps[j].ProfitPct
	})

	for range opps {
		OpportunitiesDetectedTotal.Inc()
	}

	return opps
}

func legsFor(outcomes []OutcomePrice, size float64) []Leg {
	legs := make([]Leg, len(outcomes))
	for i, o := range outcomes {
		legs[i] = Leg{TokenID: o.TokenID, Outcome: o.Outcome, Price: o.Price, Size: size}
	}
	return legs
}
