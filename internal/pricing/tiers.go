package pricing

import "sort"

// Money represents a monetary value stored in minor units.
type Money = int64

// Tier holds the unit price applicable for a participant-count range.
// MaxPax is nil when the range is open-ended.
type Tier struct {
	MinPax int   `json:"minPax"`
	MaxPax *int  `json:"maxPax"`
	Price  Money `json:"price"`
}

// TierTable is an ordered set of non-overlapping tiers. It is fetched once
// with the product and never mutated for the lifetime of a booking session.
type TierTable []Tier

// BelowRangePolicy controls what happens when the unit count is below every
// tier's minimum.
type BelowRangePolicy int

const (
	// LowestPriceBelowRange falls back to the cheapest tier so the product
	// stays bookable. This matches observed storefront behaviour; product
	// owners have been flagged that it can under-price small groups.
	LowestPriceBelowRange BelowRangePolicy = iota
	// StrictBelowRange falls back to the first tier's price instead, charging
	// the smallest advertised group rate.
	StrictBelowRange
)

// ResolveUnitPrice resolves the per-unit price for the given unit count.
// When the table is empty the flat price is returned unchanged.
func ResolveUnitPrice(tiers TierTable, flat Money, unitCount int) Money {
	return ResolveUnitPriceWithPolicy(tiers, flat, unitCount, LowestPriceBelowRange)
}

// ResolveUnitPriceWithPolicy is ResolveUnitPrice with an explicit below-range
// policy.
func ResolveUnitPriceWithPolicy(tiers TierTable, flat Money, unitCount int, policy BelowRangePolicy) Money {
	if len(tiers) == 0 {
		return flat
	}
	sorted := make(TierTable, len(tiers))
	copy(sorted, tiers)
	// Defensive: upstream catalog payloads are not guaranteed to be sorted.
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MinPax < sorted[j].MinPax })

	for _, t := range sorted {
		if unitCount >= t.MinPax && (t.MaxPax == nil || unitCount <= *t.MaxPax) {
			return t.Price
		}
	}
	// Above every bound: treat the highest tier as open-ended.
	if unitCount >= sorted[len(sorted)-1].MinPax {
		return sorted[len(sorted)-1].Price
	}
	// Below every minimum.
	if policy == StrictBelowRange {
		return sorted[0].Price
	}
	lowest := sorted[0].Price
	for _, t := range sorted[1:] {
		if t.Price < lowest {
			lowest = t.Price
		}
	}
	return lowest
}

// Addon is an optional, separately priced extra attached to a booking.
type Addon struct {
	Name  string `json:"name"`
	Price Money  `json:"price"`
}

// AddonCatalog maps addon names to their prices for a single product.
type AddonCatalog []Addon

// Price returns the price for the named addon and whether it exists.
func (c AddonCatalog) Price(name string) (Money, bool) {
	for _, a := range c {
		if a.Name == name {
			return a.Price, true
		}
	}
	return 0, false
}

// AddonTotal sums the prices of the selected addons present in the catalog.
// Names missing from the catalog contribute zero and are dropped from the
// returned selection rather than causing an error.
func AddonTotal(catalog AddonCatalog, selected []string) (Money, []string) {
	var total Money
	kept := selected[:0:0]
	for _, name := range selected {
		price, ok := catalog.Price(name)
		if !ok {
			continue
		}
		total += price
		kept = append(kept, name)
	}
	return total, kept
}
