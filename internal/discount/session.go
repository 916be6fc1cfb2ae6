package discount

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-travel/internal/obs"
	"github.com/noah-isme/backend-travel/internal/pricing"
)

// Status is the lifecycle state of a discount code within a booking session.
type Status string

const (
	// StatusIdle means no code is applied.
	StatusIdle Status = "idle"
	// StatusChecking means a manual validation request is in flight.
	StatusChecking Status = "checking"
	// StatusApplied means the validator confirmed a non-zero amount.
	StatusApplied Status = "applied"
	// StatusRejected means the last check failed or was not applicable.
	StatusRejected Status = "rejected"
)

const (
	msgApplied       = "Discount applied"
	msgNotApplicable = "Code is valid but not applicable to this booking"
	msgCheckFailed   = "Could not validate discount code, please try again"
)

// State is a read-only snapshot of the session for display. ConfirmedAmount is
// non-zero only when Status is StatusApplied.
type State struct {
	Code            string        `json:"code"`
	ConfirmedAmount pricing.Money `json:"confirmedAmount"`
	Status          Status        `json:"status"`
	Message         string        `json:"message,omitempty"`
}

// Inputs is the pricing-relevant snapshot sent with every validation request.
type Inputs struct {
	ProductType    string
	ProductID      string
	UnitCount      int
	SelectedAddons []string
	DateRange      *DateRange
}

// Session owns the discount code lifecycle for a single booking form: the
// current code text, the last confirmed amount, the debounced revalidation
// triggered by pricing input changes, and the stale-response discipline that
// keeps overlapping validator responses from racing each other.
//
// The session is safe for concurrent use; every state transition happens under
// the session lock and is gated by a per-request sequence number, so only the
// response to the most recently issued request may commit (last-write-wins by
// request identity, not arrival order).
type Session struct {
	validator Validator
	debounce  time.Duration
	timeout   time.Duration
	logger    zerolog.Logger

	mu      sync.Mutex
	code    string
	amount  pricing.Money
	status  Status
	message string
	inputs  Inputs
	seq     uint64
	timer   *time.Timer
	closed  bool
}

// Config tunes a Session. Zero values fall back to defaults.
type Config struct {
	// Debounce is the quiet window after the last pricing input change before
	// an automatic revalidation fires. The storefront historically used both
	// 500ms and 800ms; it is unified here.
	Debounce time.Duration
	// Timeout bounds each validator call so a silent validator resolves to
	// Rejected instead of hanging the Checking state.
	Timeout time.Duration
	Logger  zerolog.Logger
}

// NewSession constructs a discount session in the Idle state.
func NewSession(validator Validator, cfg Config) *Session {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 600 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Session{
		validator: validator,
		debounce:  cfg.Debounce,
		timeout:   cfg.Timeout,
		logger:    cfg.Logger,
		status:    StatusIdle,
	}
}

// State returns a display snapshot.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{Code: s.code, ConfirmedAmount: s.amount, Status: s.status, Message: s.message}
}

// ConfirmedAmount returns the amount to subtract from the grand total. It is
// zero unless the current code is Applied.
func (s *Session) ConfirmedAmount() pricing.Money {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusApplied {
		return 0
	}
	return s.amount
}

// SetCode stores the normalized code text and unconditionally voids any
// previously confirmed amount: a discount must never be displayed as active
// for a code different from the one last validated.
func (s *Session) SetCode(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.code = strings.ToUpper(strings.TrimSpace(text))
	s.amount = 0
	s.status = StatusIdle
	s.message = ""
	s.seq++ // in-flight responses for the old code are now stale
	s.stopTimerLocked()
}

// SetInputs records the latest pricing inputs. When a discount is currently
// Applied the session schedules a debounced revalidation, restarting the quiet
// window if one is already pending: only the final input state is checked.
func (s *Session) SetInputs(in Inputs) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs = in
	if s.status != StatusApplied || s.code == "" || s.closed {
		return
	}
	s.stopTimerLocked()
	s.timer = time.AfterFunc(s.debounce, s.revalidate)
}

// Apply issues a manual validation for the current code. It is a no-op when
// the code is blank or a manual check is already in flight. The call blocks
// until the result is committed or superseded; either way the returned
// snapshot reflects the session state at return time.
func (s *Session) Apply(ctx context.Context) State {
	s.mu.Lock()
	if s.code == "" || s.status == StatusChecking || s.closed {
		defer s.mu.Unlock()
		return State{Code: s.code, ConfirmedAmount: s.amount, Status: s.status, Message: s.message}
	}
	s.status = StatusChecking
	s.message = ""
	s.seq++
	seq := s.seq
	req := s.requestLocked()
	s.mu.Unlock()

	result, err := s.validate(ctx, req)
	s.commit(seq, req.ProductType, result, err)
	return s.State()
}

// revalidate runs on the debounce timer goroutine. The previously confirmed
// amount stays displayed until the new response lands; it is superseded the
// instant the response commits.
func (s *Session) revalidate() {
	s.mu.Lock()
	if s.status != StatusApplied || s.code == "" || s.closed {
		s.mu.Unlock()
		return
	}
	s.seq++
	seq := s.seq
	req := s.requestLocked()
	s.mu.Unlock()

	if obs.DiscountRevalidations != nil {
		obs.DiscountRevalidations.Inc()
	}
	result, err := s.validate(context.Background(), req)
	s.commit(seq, req.ProductType, result, err)
}

// Reset returns the session to its initial state, as on form (re)open.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.code = ""
	s.amount = 0
	s.status = StatusIdle
	s.message = ""
	s.seq++
	s.stopTimerLocked()
}

// Close stops any pending revalidation. Used when the owning booking session
// is evicted or submitted.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.seq++
	s.stopTimerLocked()
}

func (s *Session) requestLocked() Request {
	addons := make([]string, len(s.inputs.SelectedAddons))
	copy(addons, s.inputs.SelectedAddons)
	return Request{
		ProductType:    s.inputs.ProductType,
		ProductID:      s.inputs.ProductID,
		Code:           s.code,
		UnitCount:      s.inputs.UnitCount,
		SelectedAddons: addons,
		DateRange:      s.inputs.DateRange,
	}
}

func (s *Session) validate(ctx context.Context, req Request) (Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	start := time.Now()
	result, err := s.validator.Validate(callCtx, req)
	if obs.DiscountCheckLatency != nil {
		label := "ok"
		if err != nil {
			label = "error"
		}
		obs.DiscountCheckLatency.WithLabelValues(label).Observe(obs.DurationMillis(time.Since(start)))
	}
	return result, err
}

// commit applies a validator outcome, discarding it silently when the request
// sequence has been superseded by newer input.
func (s *Session) commit(seq uint64, productType string, result Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.seq || s.closed {
		if obs.DiscountStaleDropped != nil {
			obs.DiscountStaleDropped.Inc()
		}
		s.logger.Debug().Uint64("seq", seq).Uint64("latest", s.seq).Msg("discount_response_stale")
		return
	}

	outcome := "applied"
	switch {
	case err != nil:
		s.amount = 0
		s.status = StatusRejected
		s.message = rejectionMessage(err)
		outcome = "rejected"
	case result.DiscountAmount > 0:
		s.amount = result.DiscountAmount
		s.status = StatusApplied
		s.message = messageOrDefault(result.Message, msgApplied)
	default:
		s.amount = 0
		s.status = StatusRejected
		s.message = messageOrDefault(result.Message, msgNotApplicable)
		outcome = "not_applicable"
	}
	if obs.DiscountCheckTotal != nil {
		obs.DiscountCheckTotal.WithLabelValues(productType, outcome).Inc()
	}
	s.logger.Info().
		Str("code", s.code).
		Str("status", string(s.status)).
		Int64("amount", s.amount).
		Msg("discount_check")
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func rejectionMessage(err error) string {
	var remote *RemoteError
	if errors.As(err, &remote) && remote.Message != "" {
		return remote.Message
	}
	return msgCheckFailed
}

func messageOrDefault(message, fallback string) string {
	if strings.TrimSpace(message) != "" {
		return message
	}
	return fallback
}
