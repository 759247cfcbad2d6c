package app

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/promo-engine/internal/domain/catalog"
	"github.com/xenking/promo-engine/internal/domain/pricing"
	"github.com/xenking/promo-engine/internal/domain/promocode"
	"github.com/xenking/promo-engine/internal/domain/promotion"
	"github.com/xenking/promo-engine/internal/domain/shipping"
)

// adminHandler exposes the back-office operations: manual sweep triggers,
// quote/commit pricing calls, promo code issuance, and cascade deletion.
type adminHandler struct {
	engine  *pricing.Engine
	codes   *promocode.Service
	deleter *catalog.Deleter

	promotionSweeper *promotion.Sweeper
	codeSweeper      *promocode.Sweeper
	shippingSweeper  *shipping.Sweeper
}

func (h *adminHandler) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /admin/sweep/promotions", h.sweepPromotions)
	mux.HandleFunc("POST /admin/sweep/codes", h.sweepCodes)
	mux.HandleFunc("POST /admin/sweep/shipping", h.sweepShipping)
	mux.HandleFunc("POST /admin/quotes", h.createQuote)
	mux.HandleFunc("POST /admin/orders", h.createOrder)
	mux.HandleFunc("POST /admin/promo-codes", h.issuePromoCode)
	mux.HandleFunc("DELETE /admin/brands/{name}", h.removeBrand)
	mux.HandleFunc("DELETE /admin/categories/{name}", h.removeCategory)
}

func (h *adminHandler) sweepPromotions(w http.ResponseWriter, r *http.Request) {
	activated, err := h.promotionSweeper.ActivateDueSweep(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	expired, err := h.promotionSweeper.ExpireDueSweep(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"activated": activated, "expired": expired})
}

func (h *adminHandler) sweepCodes(w http.ResponseWriter, r *http.Request) {
	n, err := h.codeSweeper.Sweep(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"invalidated": n})
}

func (h *adminHandler) sweepShipping(w http.ResponseWriter, r *http.Request) {
	n, err := h.shippingSweeper.Sweep(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"expired": n})
}

type quoteRequest struct {
	Items     []pricing.LineItem `json:"items"`
	PromoCode string             `json:"promo_code,omitempty"`
	Country   string             `json:"country,omitempty"`
}

type quoteResponse struct {
	ID           string               `json:"id"`
	Items        []pricing.PricedItem `json:"items"`
	Subtotal     decimal.Decimal      `json:"subtotal"`
	ItemDiscount decimal.Decimal      `json:"item_discount"`
	CodeDiscount decimal.Decimal      `json:"code_discount"`
	PromoCode    string               `json:"promo_code,omitempty"`
	ShippingCost decimal.Decimal      `json:"shipping_cost"`
	Country      string               `json:"country,omitempty"`
	Total        decimal.Decimal      `json:"total"`
}

func toQuoteResponse(q *pricing.Quote) quoteResponse {
	return quoteResponse{
		ID:           q.ID,
		Items:        q.Items,
		Subtotal:     q.Subtotal,
		ItemDiscount: q.ItemDiscount,
		CodeDiscount: q.CodeDiscount,
		PromoCode:    q.PromoCode,
		ShippingCost: q.ShippingCost,
		Country:      q.Country,
		Total:        q.Total,
	}
}

func (h *adminHandler) createQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}
	q, err := h.engine.ComputeTotal(r.Context(), req.Items, req.PromoCode, req.Country)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toQuoteResponse(q))
}

// createOrder is the one-shot checkout used by back-office tooling: it
// prices the cart and commits the resulting quote in a single call.
func (h *adminHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}
	q, err := h.engine.ComputeTotal(r.Context(), req.Items, req.PromoCode, req.Country)
	if err != nil {
		writeError(w, err)
		return
	}
	o, err := h.engine.CommitOrder(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toQuoteResponse(&pricing.Quote{
		ID:           o.ID,
		Items:        o.Items,
		Subtotal:     o.Subtotal,
		ItemDiscount: o.ItemDiscount,
		CodeDiscount: o.CodeDiscount,
		PromoCode:    o.PromoCode,
		ShippingCost: o.ShippingCost,
		Country:      o.Country,
		Total:        o.Total,
	}))
}

type issueCodeRequest struct {
	Description string `json:"description"`
	Percentage  int    `json:"percentage"`
	Uses        int    `json:"uses"`
}

type issueCodeResponse struct {
	Code       string `json:"code"`
	Percentage int    `json:"percentage"`
	Remaining  int    `json:"remaining"`
}

func (h *adminHandler) issuePromoCode(w http.ResponseWriter, r *http.Request) {
	var req issueCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}
	c, err := h.codes.Issue(r.Context(), req.Description, req.Percentage, req.Uses)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, issueCodeResponse{
		Code:       c.Code,
		Percentage: c.Percentage,
		Remaining:  c.Remaining,
	})
}

func (h *adminHandler) removeBrand(w http.ResponseWriter, r *http.Request) {
	if err := h.deleter.RemoveBrand(r.Context(), r.PathValue("name")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *adminHandler) removeCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.deleter.RemoveCategory(r.Context(), r.PathValue("name")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type errorResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps domain errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	var iqErr *pricing.InvalidQuantityError
	switch {
	case errors.Is(err, pricing.ErrEmptyItems),
		errors.As(err, &iqErr),
		errors.Is(err, promocode.ErrInvalidPercentage),
		errors.Is(err, promocode.ErrInvalidUses):
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: err.Error()})
	case errors.Is(err, promocode.ErrNotFound),
		errors.Is(err, catalog.ErrBrandNotFound),
		errors.Is(err, catalog.ErrCategoryNotFound),
		errors.Is(err, shipping.ErrCountryNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Message: err.Error()})
	case errors.Is(err, promocode.ErrExhausted),
		errors.Is(err, promocode.ErrExpired):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Message: err.Error()})
	case errors.Is(err, promocode.ErrConflict):
		writeJSON(w, http.StatusConflict, errorResponse{Message: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "internal error"})
	}
}
