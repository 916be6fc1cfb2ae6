package booking

import (
	"errors"
	"sync"
	"time"

	"github.com/noah-isme/backend-travel/internal/catalog"
	"github.com/noah-isme/backend-travel/internal/discount"
	"github.com/noah-isme/backend-travel/internal/pricing"
)

// ErrInvalidInput is returned when a pricing input mutation is rejected.
var ErrInvalidInput = errors.New("invalid input")

// ErrSubmitted is returned when mutating a session that already produced an order.
var ErrSubmitted = errors.New("booking already submitted")

// Extras keys recognised by product-specific validation. The map itself is an
// open extension point: unknown keys are forwarded to the order service as-is.
const (
	ExtraStartDate   = "start_date"
	ExtraEndDate     = "end_date"
	ExtraPickupPoint = "pickup_point"
	ExtraNationality = "nationality"
)

// SubmitState is the submission lifecycle of a booking form instance.
type SubmitState string

const (
	SubmitReady     SubmitState = "ready"
	SubmitInFlight  SubmitState = "submitting"
	SubmitSucceeded SubmitState = "success"
)

// Session is one booking form instance: the immutable product payload, the
// mutable pricing inputs and the discount session that must stay consistent
// with them. All state is ephemeral; the session dies with the store entry.
type Session struct {
	ID      string
	Product catalog.Product

	mu             sync.Mutex
	unitCount      int
	selectedAddons []string
	extras         map[string]string
	discount       *discount.Session
	submitState    SubmitState
	orderID        string
	fieldErrors    map[string]string
	touchedAt      time.Time
}

// NewSession opens a booking form for the given product.
func NewSession(id string, product catalog.Product, ds *discount.Session) *Session {
	s := &Session{
		ID:          id,
		Product:     product,
		unitCount:   1,
		extras:      map[string]string{},
		discount:    ds,
		submitState: SubmitReady,
		touchedAt:   time.Now(),
	}
	ds.SetInputs(s.discountInputs())
	return s
}

// Discount exposes the discount session for code operations.
func (s *Session) Discount() *discount.Session { return s.discount }

// SetUnitCount mutates the quantity driving tiered pricing.
func (s *Session) SetUnitCount(n int) error {
	if n < 1 {
		return ErrInvalidInput
	}
	s.mu.Lock()
	if s.submitState == SubmitSucceeded {
		s.mu.Unlock()
		return ErrSubmitted
	}
	s.unitCount = n
	s.touchedAt = time.Now()
	inputs := s.discountInputsLocked()
	s.mu.Unlock()
	s.discount.SetInputs(inputs)
	return nil
}

// ToggleAddon flips an addon selection and reports whether it is now selected.
// Unknown addon names are rejected.
func (s *Session) ToggleAddon(name string) (bool, error) {
	if _, ok := s.Product.Addons.Price(name); !ok {
		return false, ErrInvalidInput
	}
	s.mu.Lock()
	if s.submitState == SubmitSucceeded {
		s.mu.Unlock()
		return false, ErrSubmitted
	}
	selected := false
	next := s.selectedAddons[:0:0]
	for _, existing := range s.selectedAddons {
		if existing == name {
			selected = true
			continue
		}
		next = append(next, existing)
	}
	if !selected {
		next = append(next, name)
	}
	s.selectedAddons = next
	s.touchedAt = time.Now()
	inputs := s.discountInputsLocked()
	s.mu.Unlock()
	s.discount.SetInputs(inputs)
	return !selected, nil
}

// SetExtra records a product-specific field (dates, pickup point, nationality).
// Date extras are pricing-relevant for duration-priced products and trigger
// the same revalidation path as quantity edits.
func (s *Session) SetExtra(key, value string) error {
	if key == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	if s.submitState == SubmitSucceeded {
		s.mu.Unlock()
		return ErrSubmitted
	}
	if value == "" {
		delete(s.extras, key)
	} else {
		s.extras[key] = value
	}
	s.touchedAt = time.Now()
	inputs := s.discountInputsLocked()
	s.mu.Unlock()
	s.discount.SetInputs(inputs)
	return nil
}

// Totals computes the authoritative totals from the current inputs and the
// currently confirmed discount. Derived on every call, never cached.
func (s *Session) Totals() pricing.Summary {
	s.mu.Lock()
	unitCount := s.unitCount
	addons := append([]string(nil), s.selectedAddons...)
	s.mu.Unlock()

	unitPrice := pricing.ResolveUnitPrice(s.Product.Tiers, s.Product.FlatPrice, unitCount)
	addonTotal, _ := pricing.AddonTotal(s.Product.Addons, addons)
	return pricing.Compute(unitPrice, unitCount, addonTotal, s.discount.ConfirmedAmount())
}

// Snapshot returns the mutable inputs for display and payload assembly.
func (s *Session) Snapshot() (unitCount int, addons []string, extras map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	addons = append([]string(nil), s.selectedAddons...)
	extras = make(map[string]string, len(s.extras))
	for k, v := range s.extras {
		extras[k] = v
	}
	return s.unitCount, addons, extras
}

// State reports the submission lifecycle state, the created order id and the
// field errors from the last failed submission.
func (s *Session) State() (SubmitState, string, map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fields := make(map[string]string, len(s.fieldErrors))
	for k, v := range s.fieldErrors {
		fields[k] = v
	}
	return s.submitState, s.orderID, fields
}

// TouchedAt reports the last mutation time, used for TTL eviction.
func (s *Session) TouchedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touchedAt
}

// Close releases the discount session's pending work.
func (s *Session) Close() {
	s.discount.Close()
}

func (s *Session) discountInputs() discount.Inputs {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.discountInputsLocked()
}

func (s *Session) discountInputsLocked() discount.Inputs {
	inputs := discount.Inputs{
		ProductType:    string(s.Product.Type),
		ProductID:      s.Product.ID,
		UnitCount:      s.unitCount,
		SelectedAddons: append([]string(nil), s.selectedAddons...),
	}
	if start, ok := s.extras[ExtraStartDate]; ok {
		dr := discount.DateRange{Start: start, End: s.extras[ExtraEndDate]}
		inputs.DateRange = &dr
	}
	return inputs
}
