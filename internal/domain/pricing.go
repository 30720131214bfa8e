package domain

import "sort"

// ShippingTier charges Fee when the cart subtotal is at most UpTo.
type ShippingTier struct {
	UpTo int64
	Fee  int64
}

// PricingRules parameterises cart totals. Tax is a flat percentage of the
// subtotal; shipping is a step function of the subtotal with free shipping
// above the highest tier.
type PricingRules struct {
	TaxRatePercent int64
	ShippingTiers  []ShippingTier
}

// DefaultPricingRules mirror the storefront defaults: 18% tax, 99 shipping
// under 500, 49 under 1000, free at 1000 and above.
func DefaultPricingRules() PricingRules {
	return PricingRules{
		TaxRatePercent: 18,
		ShippingTiers: []ShippingTier{
			{UpTo: 499, Fee: 99},
			{UpTo: 999, Fee: 49},
		},
	}
}

// ComputeTotals derives cart totals from the lines alone. It is a pure
// function: same lines and rules always yield the same totals.
func ComputeTotals(lines []CartLine, rules PricingRules) CartTotals {
	var subtotal int64
	for _, line := range lines {
		if line.Quantity <= 0 || line.UnitPrice < 0 {
			continue
		}
		subtotal += line.LineTotal()
	}

	totals := CartTotals{Subtotal: subtotal}
	if subtotal == 0 {
		return totals
	}

	totals.Shipping = rules.shippingFee(subtotal)
	totals.Tax = roundHalfUpPercent(subtotal, rules.TaxRatePercent)
	totals.Total = totals.Subtotal - totals.Discount + totals.Shipping + totals.Tax
	return totals
}

func (r PricingRules) shippingFee(subtotal int64) int64 {
	tiers := make([]ShippingTier, len(r.ShippingTiers))
	copy(tiers, r.ShippingTiers)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].UpTo < tiers[j].UpTo })
	for _, tier := range tiers {
		if subtotal <= tier.UpTo {
			return tier.Fee
		}
	}
	return 0
}

// roundHalfUpPercent computes amount*percent/100 in minor units, rounding
// half-up so totals stay stable across recomputation.
func roundHalfUpPercent(amount, percent int64) int64 {
	if amount <= 0 || percent <= 0 {
		return 0
	}
	return (amount*percent + 50) / 100
}
