package pricing

// Summary aggregates computed booking totals.
type Summary struct {
	UnitPrice  Money `json:"unitPrice"`
	Subtotal   Money `json:"subtotal"`
	AddonTotal Money `json:"addonTotal"`
	Discount   Money `json:"discount"`
	GrandTotal Money `json:"grandTotal"`
}

// Compute calculates booking totals given the resolved unit price, the unit
// count, the addon total and the currently confirmed discount. The grand total
// is clamped at zero; the discount can never push it negative.
func Compute(unitPrice Money, unitCount int, addonTotal Money, discount Money) Summary {
	if unitCount < 0 {
		unitCount = 0
	}
	if addonTotal < 0 {
		addonTotal = 0
	}
	if discount < 0 {
		discount = 0
	}
	subtotal := unitPrice * Money(unitCount)
	total := subtotal + addonTotal - discount
	if total < 0 {
		total = 0
	}
	return Summary{
		UnitPrice:  unitPrice,
		Subtotal:   subtotal,
		AddonTotal: addonTotal,
		Discount:   discount,
		GrandTotal: total,
	}
}
