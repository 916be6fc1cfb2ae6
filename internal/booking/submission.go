package booking

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-travel/internal/discount"
	"github.com/noah-isme/backend-travel/internal/obs"
	"github.com/noah-isme/backend-travel/internal/order"
)

// ErrSubmitInFlight rejects re-entrant submission while a request is running.
var ErrSubmitInFlight = errors.New("submission already in progress")

// ErrValidation indicates field errors; the session stays Ready for correction.
var ErrValidation = errors.New("booking validation failed")

// ContactInput carries the customer contact form fields.
type ContactInput struct {
	Name  string `json:"name" validate:"required,min=2"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"required,min=6"`
}

// Submitter validates a booking form and creates the order remotely.
type Submitter struct {
	Orders   order.Client
	Timeout  time.Duration
	Currency string
	Logger   zerolog.Logger

	validate *validator.Validate
}

// NewSubmitter constructs a Submitter reporting field errors under the form's
// JSON field names.
func NewSubmitter(orders order.Client, timeout time.Duration, currency string, logger zerolog.Logger) *Submitter {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if currency == "" {
		currency = "IDR"
	}
	return &Submitter{Orders: orders, Timeout: timeout, Currency: currency, Logger: logger, validate: v}
}

// Validate performs the client-local checks without touching the network.
// Returned map is empty when the form is submittable.
func (s *Submitter) Validate(session *Session, contact ContactInput) map[string]string {
	fields := map[string]string{}
	if err := s.validate.Struct(contact); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fields["contact."+fe.Field()] = contactMessage(fe)
			}
		}
	}

	unitCount, _, extras := session.Snapshot()
	if unitCount < 1 {
		fields["unit_count"] = "at least one participant is required"
	}
	if session.Product.RequiresDates {
		if extras[ExtraStartDate] == "" {
			fields[ExtraStartDate] = "start date is required"
		}
		if extras[ExtraEndDate] == "" {
			fields[ExtraEndDate] = "end date is required"
		}
	}
	if session.Product.RequiresPickup && extras[ExtraPickupPoint] == "" {
		fields[ExtraPickupPoint] = "pickup point is required"
	}

	// A computable price of zero means broken product data, not a free trip.
	totals := session.Totals()
	if totals.Subtotal+totals.AddonTotal <= 0 {
		fields["price"] = "booking price could not be computed"
	}
	return fields
}

// Submit runs validation, assembles the order payload and calls the order
// service. The discount code rides along only when the discount session is
// Applied at this instant; rejected or still-checking codes are omitted.
func (s *Submitter) Submit(ctx context.Context, session *Session, contact ContactInput) (order.Order, error) {
	if err := session.beginSubmit(); err != nil {
		return order.Order{}, err
	}

	if fields := s.Validate(session, contact); len(fields) > 0 {
		session.failSubmit(fields)
		return order.Order{}, ErrValidation
	}

	unitCount, addons, extras := session.Snapshot()
	totals := session.Totals()
	payload := order.CreateRequest{
		ProductType:    string(session.Product.Type),
		ProductID:      session.Product.ID,
		UnitCount:      unitCount,
		SelectedAddons: addons,
		Contact:        order.Contact{Name: contact.Name, Email: contact.Email, Phone: contact.Phone},
		Extras:         extras,
		Subtotal:       totals.Subtotal,
		AddonTotal:     totals.AddonTotal,
		Discount:       totals.Discount,
		GrandTotal:     totals.GrandTotal,
		Currency:       currencyOrDefault(session.Product.Currency, s.Currency),
	}
	if state := session.Discount().State(); state.Status == discount.StatusApplied {
		payload.DiscountCode = state.Code
	}

	callCtx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	created, err := s.Orders.Create(callCtx, payload)
	if err != nil {
		var verr *order.ValidationError
		if errors.As(err, &verr) {
			session.failSubmit(verr.Fields)
			s.recordSubmit(session, "rejected")
			return order.Order{}, ErrValidation
		}
		session.failSubmit(nil)
		s.recordSubmit(session, "error")
		s.Logger.Error().Err(err).Str("session_id", session.ID).Msg("order_create_failed")
		return order.Order{}, err
	}

	session.completeSubmit(created.ID)
	s.recordSubmit(session, "created")
	s.Logger.Info().
		Str("session_id", session.ID).
		Str("order_id", created.ID).
		Int64("grand_total", totals.GrandTotal).
		Msg("order_created")
	return created, nil
}

func (s *Submitter) recordSubmit(session *Session, result string) {
	if obs.BookingSubmitTotal != nil {
		obs.BookingSubmitTotal.WithLabelValues(string(session.Product.Type), result).Inc()
	}
}

func currencyOrDefault(currency, fallback string) string {
	if strings.TrimSpace(currency) != "" {
		return currency
	}
	return fallback
}

func contactMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return "email address is invalid"
	case "min":
		return fe.Field() + " is too short"
	default:
		return fe.Field() + " is invalid"
	}
}

func (s *Session) beginSubmit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.submitState {
	case SubmitInFlight:
		return ErrSubmitInFlight
	case SubmitSucceeded:
		return ErrSubmitted
	}
	s.submitState = SubmitInFlight
	s.fieldErrors = nil
	return nil
}

func (s *Session) failSubmit(fields map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitState = SubmitReady
	s.fieldErrors = fields
}

func (s *Session) completeSubmit(orderID string) {
	s.mu.Lock()
	s.submitState = SubmitSucceeded
	s.orderID = orderID
	s.fieldErrors = nil
	s.mu.Unlock()
	// Success is terminal for the form; stop any pending revalidation.
	s.discount.Close()
}
