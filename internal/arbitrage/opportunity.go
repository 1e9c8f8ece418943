package arbitrage

import "fmt"

// Kind classifies an opportunity by its structure.
type Kind string

const (
	KindBinary       Kind = "binary"
	KindMultiOutcome Kind = "multi_outcome"
	KindAsymmetric   Kind = "asymmetric"
)

// RiskLevel ranks opportunities. Risk-free combinations pay out regardless
// of resolution; low-risk ones depend on holding to resolution.
type RiskLevel string

const (
	RiskFree RiskLevel = "risk_free"
	LowRisk  RiskLevel = "low_risk"
)

// Leg is one outcome bought as part of a combination.
type Leg struct {
	TokenID string
	Outcome string
	Price   float64
	Size    float64 // shares
}

// Opportunity is a value object computed fresh on each scan and immediately
// consumed or discarded; it is never persisted by the detector. The ID is
// deterministic so identical inputs produce identical opportunities.
type Opportunity struct {
	ID        string
	MarketID  string
	Kind      Kind
	RiskLevel RiskLevel
	Legs      []Leg
	Size      float64 // shares per leg, liquidity- and config-bounded
	TotalCost float64 // effective per-share cost including fees and gas
	ProfitPct float64 // after fees and gas
}

func opportunityID(marketID string, kind Kind, outcome string) string {
	return fmt.Sprintf("%s/%s/%s", marketID, kind, outcome)
}

// String returns a human-readable representation of the opportunity.
func (o *Opportunity) String() string {
	return fmt.Sprintf("Opportunity[%s] kind=%s risk=%s legs=%d cost=%.4f profit=%.2f%% size=%.2f",
		o.ID, o.Kind, o.RiskLevel, len(o.Legs), o.TotalCost, o.ProfitPct, o.Size)
}
