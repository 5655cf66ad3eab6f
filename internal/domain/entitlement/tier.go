package entitlement

import "fmt"

// Tier is the entitlement level determining quota and feature limits.
type Tier string

const (
	TierFree    Tier = "free"
	TierTrial   Tier = "trial"
	TierPremium Tier = "premium"
)

var validTiers = map[Tier]bool{
	TierFree:    true,
	TierTrial:   true,
	TierPremium: true,
}

func NewTier(s string) (Tier, error) {
	t := Tier(s)
	if !validTiers[t] {
		return "", fmt.Errorf("invalid tier: %s", s)
	}
	return t, nil
}

func (t Tier) String() string {
	return string(t)
}

// IsPaid reports whether the tier carries a subscription window.
func (t Tier) IsPaid() bool {
	return t == TierTrial || t == TierPremium
}

// TierLimits is the static policy for a tier.
type TierLimits struct {
	MonthlyLimit int64
	MaxPlatforms int
}

var tierPolicy = map[Tier]TierLimits{
	TierFree:    {MonthlyLimit: 5, MaxPlatforms: 1},
	TierTrial:   {MonthlyLimit: 100, MaxPlatforms: 3},
	TierPremium: {MonthlyLimit: 100, MaxPlatforms: 3},
}

// LimitsFor returns the policy for a tier. Unknown tiers fall back to the
// free policy so a corrupt row can never grant unlimited usage.
func LimitsFor(tier Tier) TierLimits {
	if limits, ok := tierPolicy[tier]; ok {
		return limits
	}
	return tierPolicy[TierFree]
}
