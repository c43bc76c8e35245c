package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/vestetec-system/internal/model"
	"github.com/mmeshcher/vestetec-system/internal/repository"
	"github.com/mmeshcher/vestetec-system/internal/stock"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// CreateOrder оформляет заказ из корзины: проверяет и списывает остатки, сохраняет заказ и позиции
// в одной транзакции. Первая же некорректная позиция отменяет весь заказ.
func (s *Service) CreateOrder(ctx context.Context, studentID, schoolID int64, cart []model.CartItem) (*model.OrderDetails, error) {
	if len(cart) == 0 {
		return nil, validationf("cart is empty")
	}
	for _, it := range cart {
		if it.Quantity <= 0 {
			return nil, validationf("quantity must be positive for product %d", it.ProductID)
		}
	}

	var orderID int64
	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		student, err := tx.GetStudent(ctx, studentID)
		if err != nil {
			if errors.Is(err, repository.ErrStudentNotFound) {
				return notFoundf(err, "student %d not found", studentID)
			}
			return err
		}
		if student.SchoolID == nil || *student.SchoolID != schoolID {
			return validationf("school %d does not match the student's school", schoolID)
		}

		ledger := stock.NewLedger(tx)
		total := decimal.Zero
		items := make([]model.OrderItem, 0, len(cart))

		for _, it := range cart {
			product, err := tx.GetProduct(ctx, it.ProductID)
			if err != nil {
				if errors.Is(err, repository.ErrProductNotFound) {
					return notFoundf(err, "product %d not found", it.ProductID)
				}
				return err
			}

			size := stock.NormalizeSize(it.Size)
			if _, err := ledger.Take(ctx, product.ID, size, it.Quantity); err != nil {
				switch {
				case errors.Is(err, stock.ErrSizeUnavailable):
					return newError(ErrValidation, err, "size %s not available for product %d", size, product.ID)
				case errors.Is(err, stock.ErrInsufficientStock), errors.Is(err, stock.ErrInvalidEntry):
					return wrapAs(ErrValidation, err)
				}
				s.logger.Error("failed to take stock",
					zap.Int64("product_id", product.ID),
					zap.String("size", size),
					zap.Error(err),
				)
				return err
			}

			item := model.OrderItem{
				ProductID: product.ID,
				Size:      size,
				Quantity:  it.Quantity,
				UnitPrice: product.Price,
			}
			total = total.Add(item.LineTotal())
			items = append(items, item)
		}

		now := s.now().UTC()
		delivery := now.Add(s.deliveryLead)
		id, err := tx.InsertOrder(ctx, &model.Order{
			StudentID:            studentID,
			SchoolID:             schoolID,
			CreatedAt:            now,
			TotalPrice:           total,
			Status:               model.OrderStatusPending,
			ExpectedDeliveryDate: &delivery,
		})
		if err != nil {
			s.logger.Error("failed to insert order", zap.Int64("student_id", studentID), zap.Error(err))
			return err
		}

		if err := tx.InsertOrderItems(ctx, id, items); err != nil {
			s.logger.Error("failed to insert order items", zap.Int64("order_id", id), zap.Error(err))
			return err
		}

		orderID = id
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.orderDetails(ctx, orderID)
}

// CancelOrder отменяет заказ ученика в статусе PENDING и возвращает товары на склад.
// Повторная отмена отклоняется.
func (s *Service) CancelOrder(ctx context.Context, orderID, studentID int64) error {
	return s.repo.InTx(ctx, func(tx repository.Tx) error {
		order, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.StudentID != studentID {
			return notFoundf(nil, "order %d not found", orderID)
		}
		if order.Status != model.OrderStatusPending {
			return validationf("only pending orders can be cancelled, order %d is %s", orderID, order.Status)
		}

		if err := s.restoreStock(ctx, tx, order); err != nil {
			return err
		}

		return tx.SetOrderStatus(ctx, orderID, model.OrderStatusCancelled)
	})
}

// DeleteOrder удаляет заказ вместе с позициями и возвращает товары на склад.
// Для отменённого заказа остатки уже восстановлены и повторно не возвращаются.
func (s *Service) DeleteOrder(ctx context.Context, orderID int64) error {
	return s.repo.InTx(ctx, func(tx repository.Tx) error {
		order, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if order.Status != model.OrderStatusCancelled {
			if err := s.restoreStock(ctx, tx, order); err != nil {
				return err
			}
		}

		if err := tx.DeleteOrder(ctx, orderID); err != nil {
			if errors.Is(err, repository.ErrOrderNotFound) {
				return notFoundf(err, "order %d not found", orderID)
			}
			return err
		}
		return nil
	})
}

func lockOrder(ctx context.Context, tx repository.Tx, orderID int64) (*model.Order, error) {
	order, err := tx.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, notFoundf(err, "order %d not found", orderID)
		}
		return nil, err
	}
	return order, nil
}

func (s *Service) restoreStock(ctx context.Context, tx repository.Tx, order *model.Order) error {
	ledger := stock.NewLedger(tx)
	for _, it := range order.Items {
		restored, err := ledger.Restore(ctx, it.ProductID, it.Size, it.Quantity)
		if err != nil {
			s.logger.Error("failed to restore stock",
				zap.Int64("order_id", order.ID),
				zap.Int64("product_id", it.ProductID),
				zap.Error(err),
			)
			return err
		}
		if !restored {
			s.logger.Warn("stock entry missing, restore skipped",
				zap.Int64("order_id", order.ID),
				zap.Int64("product_id", it.ProductID),
				zap.String("size", it.Size),
				zap.Int("quantity", it.Quantity),
			)
		}
	}
	return nil
}

// UpdateOrderStatus меняет статус заказа и, если передана, дату доставки. Остатки не меняются,
// поэтому CANCELLED здесь не принимается, а отменённый заказ нельзя вернуть в работу.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID int64, rawStatus string, delivery *time.Time) (*model.OrderDetails, error) {
	status, err := model.ParseOrderStatus(rawStatus)
	if err != nil {
		return nil, wrapAs(ErrValidation, err)
	}
	if status == model.OrderStatusCancelled {
		return nil, validationf("use order cancellation or deletion to cancel order %d", orderID)
	}

	err = s.repo.InTx(ctx, func(tx repository.Tx) error {
		order, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.Status == model.OrderStatusCancelled {
			return validationf("order %d is cancelled and cannot change status", orderID)
		}

		if err := tx.UpdateOrderStatus(ctx, orderID, status, utcPtr(delivery)); err != nil {
			if errors.Is(err, repository.ErrOrderNotFound) {
				return notFoundf(err, "order %d not found", orderID)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.orderDetails(ctx, orderID)
}

// UpdateDeliveryDate меняет ожидаемую дату доставки.
func (s *Service) UpdateDeliveryDate(ctx context.Context, orderID int64, delivery time.Time) (*model.OrderDetails, error) {
	if delivery.IsZero() {
		return nil, validationf("delivery date is required")
	}
	if err := s.repo.UpdateDeliveryDate(ctx, orderID, delivery.UTC()); err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, notFoundf(err, "order %d not found", orderID)
		}
		return nil, err
	}
	return s.orderDetails(ctx, orderID)
}

// GetOrder возвращает заказ с подробностями.
func (s *Service) GetOrder(ctx context.Context, orderID int64) (*model.OrderDetails, error) {
	return s.orderDetails(ctx, orderID)
}

// GetStudentOrder возвращает заказ, только если он принадлежит ученику.
func (s *Service) GetStudentOrder(ctx context.Context, orderID, studentID int64) (*model.OrderDetails, error) {
	d, err := s.orderDetails(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if d.StudentID != studentID {
		return nil, notFoundf(nil, "order %d not found", orderID)
	}
	return d, nil
}

func (s *Service) orderDetails(ctx context.Context, orderID int64) (*model.OrderDetails, error) {
	d, err := s.repo.GetOrderDetails(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, notFoundf(err, "order %d not found", orderID)
		}
		return nil, err
	}
	return d, nil
}

// ListStudentOrders возвращает заказы ученика, новые первыми.
func (s *Service) ListStudentOrders(ctx context.Context, studentID int64) ([]model.OrderSummary, error) {
	return s.repo.ListStudentOrders(ctx, studentID)
}

// OrderPage — страница административного списка заказов.
type OrderPage struct {
	Orders   []model.OrderSummary `json:"orders"`
	Total    int                  `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
}

// ListOrders возвращает страницу заказов по фильтру.
func (s *Service) ListOrders(ctx context.Context, f model.OrderFilter) (*OrderPage, error) {
	if f.Status != "" {
		status, err := model.ParseOrderStatus(string(f.Status))
		if err != nil {
			return nil, wrapAs(ErrValidation, err)
		}
		f.Status = status
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return nil, validationf("start date must not be after end date")
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = defaultPageSize
	}
	if f.PageSize > maxPageSize {
		f.PageSize = maxPageSize
	}

	orders, total, err := s.repo.ListOrders(ctx, f)
	if err != nil {
		return nil, err
	}
	return &OrderPage{Orders: orders, Total: total, Page: f.Page, PageSize: f.PageSize}, nil
}

// OrderStats — количество заказов по статусам.
type OrderStats struct {
	Total    int                       `json:"total"`
	ByStatus map[model.OrderStatus]int `json:"by_status"`
}

// OrderStats возвращает количество заказов по нормализованному статусу.
func (s *Service) OrderStats(ctx context.Context) (*OrderStats, error) {
	counts, err := s.repo.OrderStatusCounts(ctx)
	if err != nil {
		return nil, err
	}

	stats := &OrderStats{ByStatus: make(map[model.OrderStatus]int, len(counts))}
	for st, n := range counts {
		stats.ByStatus[st] = n
		stats.Total += n
	}
	return stats, nil
}

// OrderExists сообщает, существует ли заказ.
func (s *Service) OrderExists(ctx context.Context, orderID int64) (bool, error) {
	_, err := s.repo.OrderStatus(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CanModifyOrder сообщает, можно ли ещё изменить заказ: он существует и находится в статусе PENDING.
func (s *Service) CanModifyOrder(ctx context.Context, orderID int64) (bool, error) {
	status, err := s.repo.OrderStatus(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return false, nil
		}
		return false, err
	}
	return status == model.OrderStatusPending, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
