// Package model содержит доменные сущности сервиса заказов школьной формы.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Student представляет ученика, оформляющего заказы.
type Student struct {
	ID            int64
	RM            int
	Name          string
	Email         string
	PasswordHash  []byte
	SchoolID      *int64
	EmailVerified bool
	CreatedAt     time.Time
}

// Admin представляет администратора панели управления.
type Admin struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// School описывает школу, к которой прикреплены ученики.
type School struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Category — категория изделий (рубашка, брюки и т.п.).
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// GarmentModel — модель изделия.
type GarmentModel struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Fabric — тип ткани.
type Fabric struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Product описывает позицию каталога.
type Product struct {
	ID          int64           `json:"id"`
	Price       decimal.Decimal `json:"price"`
	CategoryID  int64           `json:"category_id"`
	ModelID     int64           `json:"model_id"`
	FabricID    *int64          `json:"fabric_id,omitempty"`
	ImageURL    string          `json:"image_url,omitempty"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	Stock       []StockEntry    `json:"stock,omitempty"`
}

// StockEntry хранит доступное количество единиц товара одного размера.
type StockEntry struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

// SizeQuantity задаёт количество для размера при начальном заполнении склада.
type SizeQuantity struct {
	Size     string `json:"size"`
	Quantity int    `json:"quantity"`
}

// Order описывает заказ ученика.
type Order struct {
	ID                   int64
	StudentID            int64
	SchoolID             int64
	CreatedAt            time.Time
	TotalPrice           decimal.Decimal
	Status               OrderStatus
	ExpectedDeliveryDate *time.Time
	Items                []OrderItem
}

// OrderItem описывает позицию заказа. Цена фиксируется в момент оформления.
type OrderItem struct {
	ID        int64
	OrderID   int64
	ProductID int64
	Size      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// LineTotal возвращает стоимость позиции.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// CartItem описывает строку корзины, из которой создаётся заказ.
type CartItem struct {
	ProductID int64  `json:"product_id"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

// OrderDetails содержит заказ вместе с данными ученика, школы и товаров для отображения.
type OrderDetails struct {
	ID                   int64              `json:"id"`
	StudentID            int64              `json:"student_id"`
	StudentName          string             `json:"student_name"`
	StudentEmail         string             `json:"student_email"`
	SchoolID             int64              `json:"school_id"`
	SchoolName           string             `json:"school_name"`
	CreatedAt            time.Time          `json:"created_at"`
	TotalPrice           decimal.Decimal    `json:"total_price"`
	Status               OrderStatus        `json:"status"`
	ExpectedDeliveryDate *time.Time         `json:"expected_delivery_date,omitempty"`
	Items                []OrderItemDetails `json:"items"`
}

// OrderItemDetails описывает позицию заказа с названиями из каталога.
type OrderItemDetails struct {
	ID           int64           `json:"id"`
	ProductID    int64           `json:"product_id"`
	ProductName  string          `json:"product_name"`
	CategoryName string          `json:"category_name"`
	ModelName    string          `json:"model_name"`
	FabricName   string          `json:"fabric_name"`
	ImageURL     string          `json:"image_url,omitempty"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Quantity     int             `json:"quantity"`
	Size         string          `json:"size"`
	LineTotal    decimal.Decimal `json:"line_total"`
}

// OrderSummary — краткое представление заказа для списков.
type OrderSummary struct {
	ID                   int64           `json:"id"`
	StudentName          string          `json:"student_name,omitempty"`
	SchoolName           string          `json:"school_name,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	TotalPrice           decimal.Decimal `json:"total_price"`
	Status               OrderStatus     `json:"status"`
	ExpectedDeliveryDate *time.Time      `json:"expected_delivery_date,omitempty"`
	TotalItems           int             `json:"total_items"`
}

// OrderFilter задаёт фильтры и пагинацию административного списка заказов.
type OrderFilter struct {
	Status   OrderStatus
	SchoolID *int64
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// VerificationCode — одноразовый код подтверждения email.
type VerificationCode struct {
	ID        int64
	Email     string
	Code      string
	ExpiresAt time.Time
	Active    bool
}
