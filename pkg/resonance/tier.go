package resonance

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Tier is a loyalty level derived from cumulative spend by one fan
// toward one creator.
type Tier string

const (
	TierAcquaintance  Tier = "acquaintance"
	TierAcolyte       Tier = "acolyte"
	TierZealot        Tier = "zealot"
	TierSovereignSoul Tier = "sovereign_soul"
)

var tierThresholds = []struct {
	tier     Tier
	minSpend decimal.Decimal
}{
	{TierSovereignSoul, decimal.NewFromInt(250_000)},
	{TierZealot, decimal.NewFromInt(50_000)},
	{TierAcolyte, decimal.NewFromInt(5_000)},
	{TierAcquaintance, decimal.Zero},
}

// ClassifyTier maps lifetime spend to the highest tier whose threshold is
// met. Total: any input below the lowest threshold yields the floor tier.
func ClassifyTier(lifetimeSpend Amount) Tier {
	for _, threshold := range tierThresholds {
		if lifetimeSpend.Decimal().GreaterThanOrEqual(threshold.minSpend) {
			return threshold.tier
		}
	}
	return TierAcquaintance
}

// Rank places the tier in the strict total order used for gating.
// Unknown labels clamp to the floor.
func (tier Tier) Rank() int {
	switch tier {
	case TierSovereignSoul:
		return 3
	case TierZealot:
		return 2
	case TierAcolyte:
		return 1
	default:
		return 0
	}
}

// Meets reports whether the tier satisfies a required tier.
func (tier Tier) Meets(need Tier) bool {
	return tier.Rank() >= need.Rank()
}

// ParseTier validates a tier label.
func ParseTier(raw string) (Tier, error) {
	switch Tier(strings.TrimSpace(raw)) {
	case TierAcquaintance, TierAcolyte, TierZealot, TierSovereignSoul:
		return Tier(strings.TrimSpace(raw)), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTier, raw)
	}
}

// String returns the tier label.
func (tier Tier) String() string {
	return string(tier)
}
