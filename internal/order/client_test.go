package order_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-travel/internal/order"
	"github.com/noah-isme/backend-travel/internal/resilience"
)

func newClient(srv *httptest.Server) order.HTTPClient {
	return order.HTTPClient{
		BaseURL: srv.URL,
		HTTP: &resilience.HTTPClient{
			Client:      srv.Client(),
			MaxAttempts: 1,
			Timeout:     time.Second,
			Target:      "order-service",
		},
	}
}

func TestCreateSuccess(t *testing.T) {
	var got order.CreateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"order": map[string]string{"id": "ord-123", "status": "PENDING_PAYMENT"}})
	}))
	t.Cleanup(srv.Close)

	created, err := newClient(srv).Create(context.Background(), order.CreateRequest{
		ProductType:  "open_trip",
		ProductID:    "bromo",
		UnitCount:    3,
		DiscountCode: "SALE10",
		GrandTotal:   1_450_000,
	})
	require.NoError(t, err)
	require.Equal(t, "ord-123", created.ID)
	require.Equal(t, "SALE10", got.DiscountCode)
}

func TestCreateFieldErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]any{"errors": map[string]string{
			"contact.phone": "phone is required",
			"trip_date":     "date is in the past",
		}})
	}))
	t.Cleanup(srv.Close)

	_, err := newClient(srv).Create(context.Background(), order.CreateRequest{})
	var verr *order.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "phone is required", verr.Fields["contact.phone"])
	require.Equal(t, "date is in the past", verr.Fields["trip_date"])
}

func TestCreateServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	_, err := newClient(srv).Create(context.Background(), order.CreateRequest{})
	require.Error(t, err)
	var verr *order.ValidationError
	require.False(t, errors.As(err, &verr), "transport failures are not field errors")
}
