// Package handler содержит HTTP-обработчики API сервиса заказов школьной формы.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/vestetec-system/internal/middleware"
	"github.com/mmeshcher/vestetec-system/internal/model"
	"github.com/mmeshcher/vestetec-system/internal/service"
	"github.com/mmeshcher/vestetec-system/internal/token"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	middleware.TokenValidator

	RegisterStudent(ctx context.Context, in service.StudentSignup) (*model.Student, error)
	LoginStudent(ctx context.Context, email, password string) (*service.Session, error)
	LoginAdmin(ctx context.Context, email, password string) (*service.Session, error)
	RefreshAdminToken(ctx context.Context, raw string) (*service.Session, error)
	Logout(ctx context.Context, raw string) error

	GenerateCode(ctx context.Context, email string) (string, error)
	ResendCode(ctx context.Context, email string) (string, error)
	VerifyCode(ctx context.Context, email, code string) error
	IsVerified(ctx context.Context, email string) (bool, error)

	CreateOrder(ctx context.Context, studentID, schoolID int64, cart []model.CartItem) (*model.OrderDetails, error)
	CancelOrder(ctx context.Context, orderID, studentID int64) error
	DeleteOrder(ctx context.Context, orderID int64) error
	GetOrder(ctx context.Context, orderID int64) (*model.OrderDetails, error)
	GetStudentOrder(ctx context.Context, orderID, studentID int64) (*model.OrderDetails, error)
	ListStudentOrders(ctx context.Context, studentID int64) ([]model.OrderSummary, error)
	ListOrders(ctx context.Context, f model.OrderFilter) (*service.OrderPage, error)
	OrderStats(ctx context.Context) (*service.OrderStats, error)
	OrderExists(ctx context.Context, orderID int64) (bool, error)
	CanModifyOrder(ctx context.Context, orderID int64) (bool, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status string, delivery *time.Time) (*model.OrderDetails, error)
	UpdateDeliveryDate(ctx context.Context, orderID int64, delivery time.Time) (*model.OrderDetails, error)

	CreateSchool(ctx context.Context, name string) (*model.School, error)
	CreateCategory(ctx context.Context, name string) (*model.Category, error)
	CreateGarmentModel(ctx context.Context, name string) (*model.GarmentModel, error)
	CreateFabric(ctx context.Context, name string) (*model.Fabric, error)
	CreateProduct(ctx context.Context, in service.ProductInput) (*model.Product, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	UpdateProductPrice(ctx context.Context, id int64, price decimal.Decimal) (*model.Product, error)
}

// Handler реализует HTTP-обработчики API.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: middleware.NewAuthMiddleware(s),
	}
}

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{
		Success: status < http.StatusBadRequest,
		Message: message,
		Data:    data,
	}); err != nil {
		h.logger.Warn("write response failed", zap.Error(err))
	}
}

func (h *Handler) fail(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, message, nil)
}

// writeError переводит ошибку сервиса в HTTP-статус. Текст инфраструктурных ошибок клиенту не отдаётся.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, service.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, service.ErrEmailDelivery):
		status = http.StatusBadGateway
	}

	var se *service.Error
	if status == http.StatusInternalServerError || !errors.As(err, &se) {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		h.fail(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.fail(w, status, se.Error())
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.fail(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		h.fail(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

func (h *Handler) claims(w http.ResponseWriter, r *http.Request) (*token.Claims, int64, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		h.fail(w, http.StatusUnauthorized, "missing bearer token")
		return nil, 0, false
	}
	id, err := claims.AccountID()
	if err != nil {
		h.fail(w, http.StatusUnauthorized, "invalid token")
		return nil, 0, false
	}
	return claims, id, true
}

// dateLayouts — допустимые форматы дат во входных данных.
var dateLayouts = []string{time.RFC3339, "2006-01-02"}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	var err error
	for _, layout := range dateLayouts {
		var t time.Time
		if t, err = time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, err
}
