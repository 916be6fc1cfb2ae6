package order

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

// Contact carries the customer fields forwarded to the order service.
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// CreateRequest is the booking payload submitted at order-creation time.
// DiscountCode is present only when the discount session is Applied at the
// moment of submission; an unconfirmed or rejected code is never sent.
type CreateRequest struct {
	ProductType    string            `json:"product_type"`
	ProductID      string            `json:"product_id"`
	UnitCount      int               `json:"unit_count"`
	SelectedAddons []string          `json:"selected_addons"`
	Contact        Contact           `json:"contact"`
	Extras         map[string]string `json:"extras,omitempty"`
	DiscountCode   string            `json:"discount_code,omitempty"`
	Subtotal       pricing.Money     `json:"subtotal"`
	AddonTotal     pricing.Money     `json:"addon_total"`
	Discount       pricing.Money     `json:"discount"`
	GrandTotal     pricing.Money     `json:"grand_total"`
	Currency       string            `json:"currency"`
}

// Order is the created order echoed back by the order service.
type Order struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ValidationError is a 422-style rejection carrying field-keyed messages that
// map one-to-one onto booking form fields.
type ValidationError struct {
	Fields map[string]string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("order rejected with %d field errors", len(e.Fields))
}

// RemoteError covers non-validation failures from the order service.
type RemoteError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("order service returned status %d", e.StatusCode)
}

// Client creates orders against the remote order service.
type Client interface {
	Create(ctx context.Context, req CreateRequest) (Order, error)
}

// HTTPClient implements Client over HTTP. Endpoint shape:
// POST {base}/v1/orders returning {"order": {...}} with 201 on success, or a
// field-keyed {"errors": {...}} map with 422 on validation failure.
type HTTPClient struct {
	BaseURL string
	HTTP    *resilience.HTTPClient
}

// Create implements Client.
func (c HTTPClient) Create(ctx context.Context, req CreateRequest) (Order, error) {
	if c.HTTP == nil {
		return Order{}, fmt.Errorf("order: http client not configured")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return Order{}, err
	}
	endpoint := strings.TrimRight(c.BaseURL, "/") + "/v1/orders"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Order{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(ctx, httpReq)
	if err != nil {
		return Order{}, fmt.Errorf("order: create call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusOK:
		var payload struct {
			Order Order `json:"order"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return Order{}, fmt.Errorf("order: decode response: %w", err)
		}
		if payload.Order.ID == "" {
			return Order{}, fmt.Errorf("order: response missing order id")
		}
		return payload.Order, nil
	case resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusBadRequest:
		fields := decodeFieldErrors(resp)
		if len(fields) == 0 {
			return Order{}, &RemoteError{StatusCode: resp.StatusCode}
		}
		return Order{}, &ValidationError{Fields: fields}
	default:
		return Order{}, &RemoteError{StatusCode: resp.StatusCode, Message: decodeRemoteMessage(resp)}
	}
}

func decodeFieldErrors(resp *http.Response) map[string]string {
	var payload struct {
		Errors map[string]string `json:"errors"`
		Error  struct {
			Fields map[string]string `json:"fields"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil
	}
	if len(payload.Errors) > 0 {
		return payload.Errors
	}
	return payload.Error.Fields
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
