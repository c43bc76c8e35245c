package handler

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/vestetec-system/internal/model"
)

type createOrderRequest struct {
	SchoolID int64            `json:"school_id"`
	Items    []model.CartItem `json:"items"`
}

// CreateOrder оформляет заказ текущего ученика.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	_, studentID, ok := h.claims(w, r)
	if !ok {
		return
	}

	var req createOrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	order, err := h.service.CreateOrder(r.Context(), studentID, req.SchoolID, req.Items)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.Info("order created", zap.Int64("order_id", order.ID), zap.Int64("student_id", studentID))
	h.writeJSON(w, http.StatusCreated, "order created", order)
}

// ListStudentOrders возвращает заказы текущего ученика.
func (h *Handler) ListStudentOrders(w http.ResponseWriter, r *http.Request) {
	_, studentID, ok := h.claims(w, r)
	if !ok {
		return
	}

	orders, err := h.service.ListStudentOrders(r.Context(), studentID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if orders == nil {
		orders = []model.OrderSummary{}
	}
	h.writeJSON(w, http.StatusOK, "", orders)
}

// GetStudentOrder возвращает заказ текущего ученика.
func (h *Handler) GetStudentOrder(w http.ResponseWriter, r *http.Request) {
	_, studentID, ok := h.claims(w, r)
	if !ok {
		return
	}
	orderID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	order, err := h.service.GetStudentOrder(r.Context(), orderID, studentID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, "", order)
}

// CancelOrder отменяет заказ текущего ученика и возвращает товары на склад.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	_, studentID, ok := h.claims(w, r)
	if !ok {
		return
	}
	orderID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.CancelOrder(r.Context(), orderID, studentID); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, "order cancelled", nil)
}

// ListOrders возвращает страницу заказов для администратора.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := model.OrderFilter{Status: model.OrderStatus(q.Get("status"))}

	if raw := q.Get("school_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.fail(w, http.StatusBadRequest, "invalid school_id")
			return
		}
		f.SchoolID = &id
	}
	for param, dst := range map[string]**time.Time{"start_date": &f.From, "end_date": &f.To} {
		raw := q.Get(param)
		if raw == "" {
			continue
		}
		t, err := parseDate(raw)
		if err != nil {
			h.fail(w, http.StatusBadRequest, "invalid "+param)
			return
		}
		*dst = &t
	}
	for param, dst := range map[string]*int{"page": &f.Page, "page_size": &f.PageSize} {
		raw := q.Get(param)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.fail(w, http.StatusBadRequest, "invalid "+param)
			return
		}
		*dst = n
	}

	page, err := h.service.ListOrders(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if page.Orders == nil {
		page.Orders = []model.OrderSummary{}
	}
	h.writeJSON(w, http.StatusOK, "", page)
}

// OrderStats возвращает количество заказов по статусам.
func (h *Handler) OrderStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.OrderStats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, "", stats)
}

// GetOrder возвращает любой заказ для администратора.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	order, err := h.service.GetOrder(r.Context(), orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, "", order)
}

// OrderExists сообщает, существует ли заказ.
func (h *Handler) OrderExists(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	exists, err := h.service.OrderExists(r.Context(), orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, "", map[string]bool{"exists": exists})
}

// CanModifyOrder сообщает, можно ли ещё менять заказ.
func (h *Handler) CanModifyOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	can, err := h.service.CanModifyOrder(r.Context(), orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, "", map[string]bool{"can_modify": can})
}

type statusRequest struct {
	OrderID              int64  `json:"order_id"`
	Status               string `json:"status"`
	ExpectedDeliveryDate string `json:"expected_delivery_date,omitempty"`
}

// UpdateOrderStatus меняет статус заказа и, при необходимости, дату доставки.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.OrderID <= 0 {
		h.fail(w, http.StatusBadRequest, "order_id is required")
		return
	}

	var delivery *time.Time
	if req.ExpectedDeliveryDate != "" {
		t, err := parseDate(req.ExpectedDeliveryDate)
		if err != nil {
			h.fail(w, http.StatusBadRequest, "invalid expected_delivery_date")
			return
		}
		delivery = &t
	}

	order, err := h.service.UpdateOrderStatus(r.Context(), req.OrderID, req.Status, delivery)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, "order status updated", order)
}

type deliveryRequest struct {
	ExpectedDeliveryDate string `json:"expected_delivery_date"`
}

// UpdateDeliveryDate меняет ожидаемую дату доставки.
func (h *Handler) UpdateDeliveryDate(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req deliveryRequest
	if !h.decode(w, r, &req) {
		return
	}
	t, err := parseDate(req.ExpectedDeliveryDate)
	if err != nil {
		h.fail(w, http.StatusBadRequest, "invalid expected_delivery_date")
		return
	}

	order, err := h.service.UpdateDeliveryDate(r.Context(), orderID, t)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, "delivery date updated", order)
}

// DeleteOrder удаляет заказ, возвращая товары незакрытого заказа на склад.
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteOrder(r.Context(), orderID); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logger.Info("order deleted", zap.Int64("order_id", orderID))
	h.writeJSON(w, http.StatusOK, "order deleted", nil)
}
