package booking

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-travel/internal/catalog"
	"github.com/noah-isme/backend-travel/internal/common"
	"github.com/noah-isme/backend-travel/internal/discount"
)

// Handler wires booking sessions to HTTP.
type Handler struct {
	Store       *Store
	Catalog     catalog.Source
	Discounts   discount.Validator
	DiscountCfg discount.Config
	Submitter   *Submitter
	Logger      zerolog.Logger
}

// Routes mounts the booking endpoints on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Post("/{id}/discount", h.ApplyDiscount)
	r.Delete("/{id}/discount", h.RemoveDiscount)
	r.Post("/{id}/submit", h.Submit)
}

// Create opens a booking session for a product.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil || h.Catalog == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "booking service not configured", nil)
		return
	}
	var payload struct {
		ProductType string `json:"productType"`
		ProductID   string `json:"productId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	productType := catalog.ProductType(strings.TrimSpace(payload.ProductType))
	if !productType.Valid() {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unknown product type", nil)
		return
	}
	if strings.TrimSpace(payload.ProductID) == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "productId is required", nil)
		return
	}
	product, err := h.Catalog.Get(r.Context(), productType, payload.ProductID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "product not found", nil)
			return
		}
		h.Logger.Error().Err(err).Str("product_id", payload.ProductID).Msg("catalog_load_failed")
		common.JSONError(w, http.StatusBadGateway, "CATALOG_ERROR", "unable to load product", nil)
		return
	}

	ds := discount.NewSession(h.Discounts, h.DiscountCfg)
	session := NewSession(uuid.NewString(), product, ds)
	h.Store.Put(session)
	common.JSON(w, http.StatusCreated, map[string]any{"data": h.render(session)})
}

// Get returns the session state and live totals.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	session, ok := h.load(w, r)
	if !ok {
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": h.render(session)})
}

// Update mutates pricing inputs. Fields are independent; any subset may be
// present. Addon names toggle their selection.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	session, ok := h.load(w, r)
	if !ok {
		return
	}
	var payload struct {
		UnitCount   *int              `json:"unitCount"`
		ToggleAddon *string           `json:"toggleAddon"`
		Extras      map[string]string `json:"extras"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if payload.UnitCount != nil {
		if err := session.SetUnitCount(*payload.UnitCount); err != nil {
			h.writeError(w, err)
			return
		}
	}
	if payload.ToggleAddon != nil {
		if _, err := session.ToggleAddon(*payload.ToggleAddon); err != nil {
			h.writeError(w, err)
			return
		}
	}
	for key, value := range payload.Extras {
		if err := session.SetExtra(key, value); err != nil {
			h.writeError(w, err)
			return
		}
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": h.render(session)})
}

// Delete discards the session and its pending discount work.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "booking service not configured", nil)
		return
	}
	h.Store.Delete(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

// ApplyDiscount sets the discount code and validates it synchronously. The
// response carries the committed outcome, which may already have been
// superseded by a newer edit; clients render whatever state comes back.
func (h *Handler) ApplyDiscount(w http.ResponseWriter, r *http.Request) {
	session, ok := h.load(w, r)
	if !ok {
		return
	}
	var payload struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if strings.TrimSpace(payload.Code) == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "code is required", nil)
		return
	}
	ds := session.Discount()
	ds.SetCode(payload.Code)
	state := ds.Apply(r.Context())
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"discount": state,
		"totals":   session.Totals(),
	}})
}

// RemoveDiscount clears the code and voids any confirmed amount.
func (h *Handler) RemoveDiscount(w http.ResponseWriter, r *http.Request) {
	session, ok := h.load(w, r)
	if !ok {
		return
	}
	session.Discount().Reset()
	common.JSON(w, http.StatusOK, map[string]any{"data": h.render(session)})
}

// Submit validates the form and creates the order.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	if h.Submitter == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "booking service not configured", nil)
		return
	}
	session, ok := h.load(w, r)
	if !ok {
		return
	}
	var payload struct {
		Contact ContactInput `json:"contact"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	created, err := h.Submitter.Submit(r.Context(), session, payload.Contact)
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation):
			_, _, fields := session.State()
			common.JSONFieldErrors(w, "VALIDATION", "booking could not be submitted", fields)
		case errors.Is(err, ErrSubmitInFlight):
			common.JSONError(w, http.StatusConflict, "CONFLICT", "submission already in progress", nil)
		case errors.Is(err, ErrSubmitted):
			common.JSONError(w, http.StatusConflict, "CONFLICT", "booking already submitted", nil)
		default:
			common.JSONError(w, http.StatusBadGateway, "ORDER_ERROR", "order service is unavailable, please try again", nil)
		}
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": map[string]any{
		"orderId": created.ID,
		"status":  created.Status,
		"totals":  session.Totals(),
	}})
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "booking service not configured", nil)
		return nil, false
	}
	session, err := h.Store.Get(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "booking session not found", nil)
		return nil, false
	}
	return session, true
}

func (h *Handler) render(session *Session) map[string]any {
	unitCount, addons, extras := session.Snapshot()
	submitState, orderID, fieldErrors := session.State()
	totals := session.Totals()
	data := map[string]any{
		"id": session.ID,
		"product": map[string]any{
			"id":       session.Product.ID,
			"type":     session.Product.Type,
			"title":    session.Product.Title,
			"currency": session.Product.Currency,
			"addons":   session.Product.Addons,
		},
		"unitCount":      unitCount,
		"selectedAddons": addons,
		"extras":         extras,
		"totals":         totals,
		"discount":       session.Discount().State(),
		"submitState":    submitState,
	}
	if orderID != "" {
		data["orderId"] = orderID
	}
	if len(fieldErrors) > 0 {
		data["fieldErrors"] = fieldErrors
	}
	return data
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if err == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unknown error", nil)
		return
	}
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusBadRequest
		}
		common.JSONError(w, status, appErr.Code, appErr.Message, appErr.Details)
		return
	}
	switch {
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, ErrSubmitted):
		common.JSONError(w, http.StatusConflict, "CONFLICT", err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
	}
}
