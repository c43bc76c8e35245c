package handler

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/vestetec-system/internal/service"
)

type nameRequest struct {
	Name string `json:"name"`
}

// createNamed обрабатывает создание справочных записей, у которых есть только имя.
func createNamed[T any](h *Handler, create func(ctx context.Context, name string) (T, error), message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req nameRequest
		if !h.decode(w, r, &req) {
			return
		}
		v, err := create(r.Context(), req.Name)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusCreated, message, v)
	}
}

// CreateProduct создаёт товар с начальными остатками по размерам.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req service.ProductInput
	if !h.decode(w, r, &req) {
		return
	}
	product, err := h.service.CreateProduct(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, "product created", product)
}

// GetProduct возвращает товар вместе с остатками.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, "", product)
}

type priceRequest struct {
	Price decimal.Decimal `json:"price"`
}

// UpdateProductPrice меняет цену товара. Цены в уже оформленных заказах не меняются.
func (h *Handler) UpdateProductPrice(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req priceRequest
	if !h.decode(w, r, &req) {
		return
	}
	product, err := h.service.UpdateProductPrice(r.Context(), id, req.Price)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, "price updated", product)
}
