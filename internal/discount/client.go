package discount

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/noah-isme/backend-travel/internal/pricing"
	"github.com/noah-isme/backend-travel/internal/resilience"
)

// DateRange carries the optional stay or rental period for duration-priced
// products. Dates are formatted YYYY-MM-DD.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Request is the payload sent to the remote discount validator. It always
// carries the full current pricing inputs because the validator may compute
// the amount from them (percentage-of-subtotal codes).
type Request struct {
	ProductType    string     `json:"product_type"`
	ProductID      string     `json:"product_id"`
	Code           string     `json:"discount_code"`
	UnitCount      int        `json:"unit_count"`
	SelectedAddons []string   `json:"selected_addons"`
	DateRange      *DateRange `json:"date_range,omitempty"`
}

// Result is the validator response. A zero DiscountAmount is a valid answer
// meaning "code recognised, not applicable", distinct from a transport error.
type Result struct {
	DiscountAmount pricing.Money `json:"discount_amount"`
	TotalAmount    pricing.Money `json:"total_amount"`
	Message        string        `json:"message,omitempty"`
}

// RemoteError carries a human-readable rejection from the validator.
type RemoteError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("discount validator returned status %d", e.StatusCode)
}

// Validator validates a discount code against the remote pricing authority.
type Validator interface {
	Validate(ctx context.Context, req Request) (Result, error)
}

// HTTPValidator calls the discount service over HTTP.
type HTTPValidator struct {
	BaseURL string
	HTTP    *resilience.HTTPClient
}

// Validate implements Validator. Endpoint shape:
// POST {base}/v1/discounts/validate with the Request body, returning
// {"data": Result} on success and {"error": {"message": ...}} on rejection.
func (v HTTPValidator) Validate(ctx context.Context, req Request) (Result, error) {
	if v.HTTP == nil {
		return Result{}, fmt.Errorf("discount: http client not configured")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return Result{}, err
	}
	endpoint := strings.TrimRight(v.BaseURL, "/") + "/v1/discounts/validate"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := v.HTTP.Do(ctx, httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("discount: validate call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return Result{}, &RemoteError{StatusCode: resp.StatusCode, Message: decodeRemoteMessage(resp)}
	}
	var payload struct {
		Data Result `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Result{}, fmt.Errorf("discount: decode response: %w", err)
	}
	if payload.Data.DiscountAmount < 0 {
		payload.Data.DiscountAmount = 0
	}
	return payload.Data, nil
}

func decodeRemoteMessage(resp *http.Response) string {
	var payload struct {
		Message string `json:"message"`
		Error   struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return ""
	}
	if payload.Error.Message != "" {
		return payload.Error.Message
	}
	return payload.Message
}
