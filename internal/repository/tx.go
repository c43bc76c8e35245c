package repository

import (
	"context"
	"time"

	"github.com/mmeshcher/vestetec-system/internal/model"
)

// Tx описывает операции, доступные внутри транзакции InTx.
type Tx interface {
	GetStudent(ctx context.Context, id int64) (*model.Student, error)
	GetStudentByEmail(ctx context.Context, email string) (*model.Student, error)
	MarkEmailVerified(ctx context.Context, email string) error

	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	InsertProduct(ctx context.Context, p *model.Product) (int64, error)

	FindStock(ctx context.Context, productID int64, size string) (*model.StockEntry, error)
	InsertStock(ctx context.Context, productID int64, size string, quantity int) (int64, error)
	DecrementStock(ctx context.Context, stockID int64, quantity int) error
	IncrementStock(ctx context.Context, stockID int64, quantity int) error

	InsertOrder(ctx context.Context, o *model.Order) (int64, error)
	InsertOrderItems(ctx context.Context, orderID int64, items []model.OrderItem) error
	GetOrderForUpdate(ctx context.Context, orderID int64) (*model.Order, error)
	SetOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus) error
	UpdateOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus, delivery *time.Time) error
	DeleteOrder(ctx context.Context, orderID int64) error

	DeactivateCodes(ctx context.Context, email string) (int64, error)
	InsertCode(ctx context.Context, c *model.VerificationCode) (int64, error)
	LatestActiveCode(ctx context.Context, email string) (*model.VerificationCode, error)
	DeactivateCode(ctx context.Context, id int64) error
}

// PgTx реализует Tx поверх pgx.Tx.
type PgTx struct {
	queries
}

var _ Tx = (*PgTx)(nil)
