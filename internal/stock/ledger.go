// Package stock ведёт учёт остатков по парам товар/размер.
package stock

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mmeshcher/vestetec-system/internal/model"
	"github.com/mmeshcher/vestetec-system/internal/repository"
	"github.com/mmeshcher/vestetec-system/internal/validation"
)

var (
	// ErrSizeUnavailable возвращается, если для размера нет складской записи.
	ErrSizeUnavailable = errors.New("size not available")
	// ErrInsufficientStock возвращается, если остатка не хватает для списания.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidEntry возвращается для некорректной строки начального заполнения.
	ErrInvalidEntry = errors.New("invalid stock entry")
)

// Store — операции хранилища, которые нужны учёту остатков.
type Store interface {
	FindStock(ctx context.Context, productID int64, size string) (*model.StockEntry, error)
	InsertStock(ctx context.Context, productID int64, size string, quantity int) (int64, error)
	DecrementStock(ctx context.Context, stockID int64, quantity int) error
	IncrementStock(ctx context.Context, stockID int64, quantity int) error
}

// Ledger работает с остатками в рамках одной транзакции.
type Ledger struct {
	store Store
}

// NewLedger создаёт учёт остатков поверх хранилища (обычно repository.Tx).
func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// NormalizeSize приводит обозначение размера к каноничному виду: без пробелов по краям, в верхнем регистре.
func NormalizeSize(size string) string {
	return strings.ToUpper(strings.TrimSpace(size))
}

// Find возвращает запись по товару и размеру. Размер нормализуется.
func (l *Ledger) Find(ctx context.Context, productID int64, size string) (*model.StockEntry, error) {
	size = NormalizeSize(size)
	entry, err := l.store.FindStock(ctx, productID, size)
	if err != nil {
		if errors.Is(err, repository.ErrStockNotFound) {
			return nil, fmt.Errorf("%w: product %d size %q", ErrSizeUnavailable, productID, size)
		}
		return nil, err
	}
	return entry, nil
}

// Take списывает quantity единиц. Остаток проверяется при чтении и повторно условием UPDATE.
func (l *Ledger) Take(ctx context.Context, productID int64, size string, quantity int) (*model.StockEntry, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidEntry)
	}

	entry, err := l.Find(ctx, productID, size)
	if err != nil {
		return nil, err
	}

	if entry.Quantity < quantity {
		return nil, insufficient(entry, quantity)
	}

	if err := l.store.DecrementStock(ctx, entry.ID, quantity); err != nil {
		if errors.Is(err, repository.ErrStockConflict) {
			return nil, insufficient(entry, quantity)
		}
		return nil, err
	}

	entry.Quantity -= quantity
	return entry, nil
}

func insufficient(entry *model.StockEntry, requested int) error {
	return fmt.Errorf("%w for product %d size %s: available %d, requested %d",
		ErrInsufficientStock, entry.ProductID, entry.Size, entry.Quantity, requested)
}

// Restore возвращает quantity единиц на склад. Если записи для размера нет, возвращает false без ошибки.
func (l *Ledger) Restore(ctx context.Context, productID int64, size string, quantity int) (bool, error) {
	entry, err := l.Find(ctx, productID, size)
	if err != nil {
		if errors.Is(err, ErrSizeUnavailable) {
			return false, nil
		}
		return false, err
	}

	if err := l.store.IncrementStock(ctx, entry.ID, quantity); err != nil {
		if errors.Is(err, repository.ErrStockNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Seed создаёт начальные остатки товара. Повторяющиеся размеры суммируются.
func (l *Ledger) Seed(ctx context.Context, productID int64, entries []model.SizeQuantity) ([]model.StockEntry, error) {
	merged, err := Merge(entries)
	if err != nil {
		return nil, err
	}

	res := make([]model.StockEntry, 0, len(merged))
	for _, e := range merged {
		id, err := l.store.InsertStock(ctx, productID, e.Size, e.Quantity)
		if err != nil {
			return nil, err
		}
		res = append(res, model.StockEntry{ID: id, ProductID: productID, Size: e.Size, Quantity: e.Quantity})
	}
	return res, nil
}

// Merge нормализует размеры и складывает количества одинаковых размеров.
// Порядок первого появления размера сохраняется.
func Merge(entries []model.SizeQuantity) ([]model.SizeQuantity, error) {
	index := make(map[string]int, len(entries))
	res := make([]model.SizeQuantity, 0, len(entries))

	for _, e := range entries {
		size := NormalizeSize(e.Size)
		if !validation.IsValidSize(size) {
			return nil, fmt.Errorf("%w: size %q", ErrInvalidEntry, e.Size)
		}
		if e.Quantity < 0 {
			return nil, fmt.Errorf("%w: negative quantity %d for size %s", ErrInvalidEntry, e.Quantity, size)
		}

		if i, ok := index[size]; ok {
			res[i].Quantity += e.Quantity
			continue
		}
		index[size] = len(res)
		res = append(res, model.SizeQuantity{Size: size, Quantity: e.Quantity})
	}

	return res, nil
}
