package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-travel/internal/catalog"
	"github.com/noah-isme/backend-travel/internal/discount"
	"github.com/noah-isme/backend-travel/internal/order"
)

func newTestServer(t *testing.T, validator discount.Validator, orders order.Client) (*httptest.Server, *Store) {
	t.Helper()
	source := catalog.StaticSource{}
	source.Register(openTrip())

	store := NewStore(time.Minute)
	t.Cleanup(store.Close)

	handler := &Handler{
		Store:     store,
		Catalog:   source,
		Discounts: validator,
		DiscountCfg: discount.Config{
			Debounce: 10 * time.Millisecond,
			Timeout:  time.Second,
			Logger:   zerolog.Nop(),
		},
		Submitter: NewSubmitter(orders, time.Second, "IDR", zerolog.Nop()),
		Logger:    zerolog.Nop(),
	}
	r := chi.NewRouter()
	r.Route("/v1/bookings", handler.Routes)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, store
}

func doJSON(t *testing.T, method, url string, payload any) (*http.Response, map[string]any) {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req, err := http.NewRequest(method, url, &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var decoded map[string]any
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	}
	return resp, decoded
}

func createBooking(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/bookings", map[string]string{
		"productType": "open_trip",
		"productId":   "bromo-3d2n",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	data := body["data"].(map[string]any)
	return data["id"].(string)
}

func TestCreateBooking(t *testing.T) {
	srv, _ := newTestServer(t, &fakeValidator{}, &fakeOrders{})

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/bookings", map[string]string{
		"productType": "open_trip",
		"productId":   "bromo-3d2n",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	data := body["data"].(map[string]any)
	require.NotEmpty(t, data["id"])
	require.Equal(t, float64(1), data["unitCount"])
	totals := data["totals"].(map[string]any)
	require.Equal(t, float64(550_000), totals["grandTotal"])
}

func TestCreateBookingUnknownProduct(t *testing.T) {
	srv, _ := newTestServer(t, &fakeValidator{}, &fakeOrders{})

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/bookings", map[string]string{
		"productType": "open_trip",
		"productId":   "nope",
	})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/bookings", map[string]string{
		"productType": "cruise",
		"productId":   "bromo-3d2n",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateBookingInputs(t *testing.T) {
	srv, _ := newTestServer(t, &fakeValidator{}, &fakeOrders{})
	id := createBooking(t, srv)

	resp, body := doJSON(t, http.MethodPatch, srv.URL+"/v1/bookings/"+id, map[string]any{
		"unitCount":   4,
		"toggleAddon": "photographer",
		"extras":      map[string]string{"start_date": "2026-09-10"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data := body["data"].(map[string]any)
	require.Equal(t, float64(4), data["unitCount"])
	totals := data["totals"].(map[string]any)
	require.Equal(t, float64(500_000), totals["unitPrice"])
	require.Equal(t, float64(150_000), totals["addonTotal"])
	require.Equal(t, float64(2_150_000), totals["grandTotal"])

	resp, _ = doJSON(t, http.MethodPatch, srv.URL+"/v1/bookings/"+id, map[string]any{"unitCount": 0})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDiscountRoundTrip(t *testing.T) {
	validator := &fakeValidator{respond: func(_ context.Context, req discount.Request) (discount.Result, error) {
		if req.Code == "HEMAT10" {
			return discount.Result{DiscountAmount: 100_000}, nil
		}
		return discount.Result{Message: "unknown code"}, nil
	}}
	srv, _ := newTestServer(t, validator, &fakeOrders{})
	id := createBooking(t, srv)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/bookings/"+id+"/discount", map[string]string{"code": "hemat10"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]any)
	state := data["discount"].(map[string]any)
	require.Equal(t, "applied", state["status"])
	require.Equal(t, "HEMAT10", state["code"])
	totals := data["totals"].(map[string]any)
	require.Equal(t, float64(450_000), totals["grandTotal"])

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/v1/bookings/"+id+"/discount", map[string]string{"code": "BOGUS"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	state = body["data"].(map[string]any)["discount"].(map[string]any)
	require.Equal(t, "rejected", state["status"])
	totals = body["data"].(map[string]any)["totals"].(map[string]any)
	require.Equal(t, float64(550_000), totals["grandTotal"])

	resp, body = doJSON(t, http.MethodDelete, srv.URL+"/v1/bookings/"+id+"/discount", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	state = body["data"].(map[string]any)["discount"].(map[string]any)
	require.Equal(t, "idle", state["status"])
}

func TestSubmitBookingHandler(t *testing.T) {
	orders := &fakeOrders{}
	srv, _ := newTestServer(t, &fakeValidator{}, orders)
	id := createBooking(t, srv)

	// Missing contact and dates: field errors, session stays usable.
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/bookings/"+id+"/submit", map[string]any{
		"contact": map[string]string{},
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	errBody := body["error"].(map[string]any)
	fields := errBody["fields"].(map[string]any)
	require.Contains(t, fields, "contact.name")
	require.Contains(t, fields, "start_date")

	resp, _ = doJSON(t, http.MethodPatch, srv.URL+"/v1/bookings/"+id, map[string]any{
		"extras": map[string]string{"start_date": "2026-09-10", "end_date": "2026-09-12"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/v1/bookings/"+id+"/submit", map[string]any{
		"contact": map[string]string{"name": "Ayu Lestari", "email": "ayu@example.com", "phone": "+62811111111"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	data := body["data"].(map[string]any)
	require.Equal(t, "ord-1", data["orderId"])

	// Repeat submission is rejected.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/bookings/"+id+"/submit", map[string]any{
		"contact": map[string]string{"name": "Ayu Lestari", "email": "ayu@example.com", "phone": "+62811111111"},
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestDeleteBooking(t *testing.T) {
	srv, store := newTestServer(t, &fakeValidator{}, &fakeOrders{})
	id := createBooking(t, srv)

	resp, _ := doJSON(t, http.MethodDelete, srv.URL+"/v1/bookings/"+id, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, err := store.Get(id)
	require.ErrorIs(t, err, ErrNotFound)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/bookings/"+id, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
