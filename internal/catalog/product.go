package catalog

import (
	"context"
	"errors"

	"github.com/noah-isme/backend-travel/internal/pricing"
)

// ErrNotFound indicates the requested product could not be located.
var ErrNotFound = errors.New("product not found")

// ProductType discriminates the storefront product variants. All variants
// share the same pricing shape; only the meaning of the unit count differs
// (participants, seats or rental days).
type ProductType string

const (
	TypeActivity       ProductType = "activity"
	TypeHolidayPackage ProductType = "holiday_package"
	TypeOpenTrip       ProductType = "open_trip"
	TypeCarRental      ProductType = "car_rental"
)

// Valid reports whether the product type is one of the known variants.
func (t ProductType) Valid() bool {
	switch t {
	case TypeActivity, TypeHolidayPackage, TypeOpenTrip, TypeCarRental:
		return true
	}
	return false
}

// Product is the read-only product payload supplied once when a booking
// session is opened. Tier table and addon catalog are immutable afterwards.
type Product struct {
	ID             string               `json:"id"`
	Type           ProductType          `json:"type"`
	Title          string               `json:"title"`
	Currency       string               `json:"currency"`
	FlatPrice      pricing.Money        `json:"flatPrice"`
	Tiers          pricing.TierTable    `json:"tiers"`
	Addons         pricing.AddonCatalog `json:"addons"`
	RequiresDates  bool                 `json:"requiresDates"`
	RequiresPickup bool                 `json:"requiresPickup"`
}

// Source loads products from the upstream catalog.
type Source interface {
	Get(ctx context.Context, productType ProductType, id string) (Product, error)
}
