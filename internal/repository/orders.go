package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/vestetec-system/internal/model"
)

// InsertOrder сохраняет заголовок заказа и возвращает его идентификатор.
func (q queries) InsertOrder(ctx context.Context, o *model.Order) (int64, error) {
	var id int64
	err := q.q.QueryRow(ctx,
		`INSERT INTO orders (student_id, school_id, created_at, total_price, status, expected_delivery_date)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		o.StudentID, o.SchoolID, o.CreatedAt, o.TotalPrice, string(o.Status), o.ExpectedDeliveryDate,
	).Scan(&id)
	if err != nil {
		if hasPgCode(err, pgerrcode.ForeignKeyViolation) {
			return 0, fmt.Errorf("%w: student or school", ErrInvalidReference)
		}
		return 0, fmt.Errorf("insert order: %w", err)
	}
	return id, nil
}

// InsertOrderItems сохраняет позиции заказа одним батчем.
func (q queries) InsertOrderItems(ctx context.Context, orderID int64, items []model.OrderItem) error {
	if len(items) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(
			`INSERT INTO order_items (order_id, product_id, size, quantity, unit_price) VALUES ($1, $2, $3, $4, $5)`,
			orderID, it.ProductID, it.Size, it.Quantity, it.UnitPrice,
		)
	}

	br := q.q.SendBatch(ctx, batch)
	for range items {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}
	return nil
}

// GetOrderForUpdate блокирует строку заказа до конца транзакции и возвращает заказ с позициями.
func (q queries) GetOrderForUpdate(ctx context.Context, orderID int64) (*model.Order, error) {
	var (
		o      model.Order
		status string
	)
	err := q.q.QueryRow(ctx,
		`SELECT id, student_id, school_id, created_at, total_price, status, expected_delivery_date
		 FROM orders WHERE id = $1 FOR UPDATE`,
		orderID,
	).Scan(&o.ID, &o.StudentID, &o.SchoolID, &o.CreatedAt, &o.TotalPrice, &status, &o.ExpectedDeliveryDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("select order for update: %w", err)
	}
	o.Status = model.NormalizeStatus(status)

	items, err := q.orderItems(ctx, orderID)
	if err != nil {
		return nil, err
	}
	o.Items = items

	return &o, nil
}

func (q queries) orderItems(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	rows, err := q.q.Query(ctx,
		`SELECT id, order_id, product_id, size, quantity, unit_price FROM order_items WHERE order_id = $1 ORDER BY id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	var items []model.OrderItem
	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Size, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// SetOrderStatus меняет статус заказа.
func (q queries) SetOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus) error {
	tag, err := q.q.Exec(ctx, `UPDATE orders SET status = $2 WHERE id = $1`, orderID, string(status))
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// DeleteOrder удаляет позиции и сам заказ.
func (q queries) DeleteOrder(ctx context.Context, orderID int64) error {
	if _, err := q.q.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, orderID); err != nil {
		return fmt.Errorf("delete order items: %w", err)
	}

	tag, err := q.q.Exec(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// UpdateOrderStatus меняет статус и, если передана, ожидаемую дату доставки.
func (q queries) UpdateOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus, delivery *time.Time) error {
	tag, err := q.q.Exec(ctx,
		`UPDATE orders SET status = $2, expected_delivery_date = COALESCE($3, expected_delivery_date) WHERE id = $1`,
		orderID, string(status), delivery,
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// UpdateDeliveryDate меняет ожидаемую дату доставки.
func (q queries) UpdateDeliveryDate(ctx context.Context, orderID int64, delivery time.Time) error {
	tag, err := q.q.Exec(ctx, `UPDATE orders SET expected_delivery_date = $2 WHERE id = $1`, orderID, delivery)
	if err != nil {
		return fmt.Errorf("update delivery date: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// OrderStatus возвращает нормализованный статус заказа.
func (q queries) OrderStatus(ctx context.Context, orderID int64) (model.OrderStatus, error) {
	var status string
	err := q.q.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, orderID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrOrderNotFound
		}
		return "", fmt.Errorf("select order status: %w", err)
	}
	return model.NormalizeStatus(status), nil
}

// GetOrderDetails возвращает заказ с именами ученика, школы и позициями каталога.
func (q queries) GetOrderDetails(ctx context.Context, orderID int64) (*model.OrderDetails, error) {
	var (
		d      model.OrderDetails
		status string
	)
	err := q.q.QueryRow(ctx,
		`SELECT o.id, o.student_id, s.name, s.email, o.school_id, sc.name,
		        o.created_at, o.total_price, o.status, o.expected_delivery_date
		 FROM orders o
		 JOIN students s ON s.id = o.student_id
		 JOIN schools sc ON sc.id = o.school_id
		 WHERE o.id = $1`,
		orderID,
	).Scan(&d.ID, &d.StudentID, &d.StudentName, &d.StudentEmail, &d.SchoolID, &d.SchoolName,
		&d.CreatedAt, &d.TotalPrice, &status, &d.ExpectedDeliveryDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("select order details: %w", err)
	}
	d.Status = model.NormalizeStatus(status)

	rows, err := q.q.Query(ctx,
		`SELECT oi.id, oi.product_id, c.name, gm.name, COALESCE(f.name, 'N/A'), COALESCE(p.image_url, ''),
		        oi.unit_price, oi.quantity, oi.size
		 FROM order_items oi
		 JOIN products p ON p.id = oi.product_id
		 JOIN categories c ON c.id = p.category_id
		 JOIN garment_models gm ON gm.id = p.model_id
		 LEFT JOIN fabrics f ON f.id = p.fabric_id
		 WHERE oi.order_id = $1
		 ORDER BY oi.id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("select order item details: %w", err)
	}
	defer rows.Close()

	d.Items = []model.OrderItemDetails{}
	for rows.Next() {
		var it model.OrderItemDetails
		if err := rows.Scan(&it.ID, &it.ProductID, &it.CategoryName, &it.ModelName, &it.FabricName, &it.ImageURL,
			&it.UnitPrice, &it.Quantity, &it.Size); err != nil {
			return nil, fmt.Errorf("scan order item details: %w", err)
		}
		it.ProductName = it.CategoryName + " " + it.ModelName
		it.LineTotal = model.OrderItem{UnitPrice: it.UnitPrice, Quantity: it.Quantity}.LineTotal()
		d.Items = append(d.Items, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &d, nil
}

const summarySelect = `SELECT o.id, s.name, sc.name, o.created_at, o.total_price, o.status, o.expected_delivery_date,
        COALESCE((SELECT SUM(oi.quantity) FROM order_items oi WHERE oi.order_id = o.id), 0)
 FROM orders o
 JOIN students s ON s.id = o.student_id
 JOIN schools sc ON sc.id = o.school_id`

func scanSummaries(rows pgx.Rows) ([]model.OrderSummary, error) {
	defer rows.Close()

	res := []model.OrderSummary{}
	for rows.Next() {
		var (
			o      model.OrderSummary
			status string
		)
		if err := rows.Scan(&o.ID, &o.StudentName, &o.SchoolName, &o.CreatedAt, &o.TotalPrice, &status,
			&o.ExpectedDeliveryDate, &o.TotalItems); err != nil {
			return nil, fmt.Errorf("scan order summary: %w", err)
		}
		o.Status = model.NormalizeStatus(status)
		res = append(res, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ListStudentOrders возвращает заказы ученика, новые первыми.
func (q queries) ListStudentOrders(ctx context.Context, studentID int64) ([]model.OrderSummary, error) {
	rows, err := q.q.Query(ctx, summarySelect+`
		 WHERE o.student_id = $1
		 ORDER BY o.created_at DESC, o.id DESC`,
		studentID,
	)
	if err != nil {
		return nil, fmt.Errorf("select student orders: %w", err)
	}
	return scanSummaries(rows)
}

// ListOrders возвращает страницу заказов по фильтру и общее число подходящих заказов.
func (q queries) ListOrders(ctx context.Context, f model.OrderFilter) ([]model.OrderSummary, int, error) {
	const where = `
		 WHERE ($1::text = '' OR COALESCE(NULLIF(UPPER(TRIM(o.status)), ''), 'PENDING') = $1)
		   AND ($2::bigint IS NULL OR o.school_id = $2)
		   AND ($3::timestamptz IS NULL OR o.created_at >= $3)
		   AND ($4::timestamptz IS NULL OR o.created_at <= $4)`

	args := []any{string(f.Status), f.SchoolID, f.From, f.To}

	var total int
	if err := q.q.QueryRow(ctx, `SELECT COUNT(*) FROM orders o`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	rows, err := q.q.Query(ctx, summarySelect+where+`
		 ORDER BY o.created_at DESC, o.id DESC
		 LIMIT $5 OFFSET $6`,
		append(args, f.PageSize, (f.Page-1)*f.PageSize)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("select orders: %w", err)
	}

	res, err := scanSummaries(rows)
	if err != nil {
		return nil, 0, err
	}
	return res, total, nil
}

// OrderStatusCounts возвращает количество заказов по нормализованному статусу.
func (q queries) OrderStatusCounts(ctx context.Context) (map[model.OrderStatus]int, error) {
	rows, err := q.q.Query(ctx,
		`SELECT COALESCE(NULLIF(UPPER(TRIM(status)), ''), 'PENDING') AS st, COUNT(*)
		 FROM orders
		 GROUP BY st`,
	)
	if err != nil {
		return nil, fmt.Errorf("select order stats: %w", err)
	}
	defer rows.Close()

	res := make(map[model.OrderStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan order stats: %w", err)
		}
		res[model.OrderStatus(status)] += n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
