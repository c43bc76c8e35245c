package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/vestetec-system/internal/model"
)

func (q queries) insertNamed(ctx context.Context, table, name string) (int64, error) {
	var id int64
	err := q.q.QueryRow(ctx, `INSERT INTO `+table+` (name) VALUES ($1) RETURNING id`, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", table, err)
	}
	return id, nil
}

// CreateSchool создаёт школу.
func (q queries) CreateSchool(ctx context.Context, name string) (int64, error) {
	return q.insertNamed(ctx, "schools", name)
}

// CreateCategory создаёт категорию товаров.
func (q queries) CreateCategory(ctx context.Context, name string) (int64, error) {
	return q.insertNamed(ctx, "categories", name)
}

// CreateGarmentModel создаёт модель изделия.
func (q queries) CreateGarmentModel(ctx context.Context, name string) (int64, error) {
	return q.insertNamed(ctx, "garment_models", name)
}

// CreateFabric создаёт тип ткани.
func (q queries) CreateFabric(ctx context.Context, name string) (int64, error) {
	return q.insertNamed(ctx, "fabrics", name)
}

// InsertProduct сохраняет товар и возвращает его идентификатор.
func (q queries) InsertProduct(ctx context.Context, p *model.Product) (int64, error) {
	var id int64
	err := q.q.QueryRow(ctx,
		`INSERT INTO products (price, category_id, model_id, fabric_id, image_url, description)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))
		 RETURNING id`,
		p.Price, p.CategoryID, p.ModelID, p.FabricID, p.ImageURL, p.Description,
	).Scan(&id)
	if err != nil {
		if hasPgCode(err, pgerrcode.ForeignKeyViolation) {
			return 0, fmt.Errorf("%w: category, model or fabric", ErrInvalidReference)
		}
		return 0, fmt.Errorf("insert product: %w", err)
	}
	return id, nil
}

// GetProduct возвращает товар без складских записей.
func (q queries) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	var p model.Product
	err := q.q.QueryRow(ctx,
		`SELECT id, price, category_id, model_id, fabric_id, COALESCE(image_url, ''), COALESCE(description, ''), created_at
		 FROM products WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Price, &p.CategoryID, &p.ModelID, &p.FabricID, &p.ImageURL, &p.Description, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("select product: %w", err)
	}
	return &p, nil
}

// UpdateProductPrice меняет текущую цену товара. Уже оформленные заказы не затрагиваются.
func (q queries) UpdateProductPrice(ctx context.Context, id int64, price decimal.Decimal) error {
	tag, err := q.q.Exec(ctx, `UPDATE products SET price = $2 WHERE id = $1`, id, price)
	if err != nil {
		return fmt.Errorf("update product price: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// ListStock возвращает складские записи товара в порядке создания.
func (q queries) ListStock(ctx context.Context, productID int64) ([]model.StockEntry, error) {
	rows, err := q.q.Query(ctx,
		`SELECT id, product_id, size, quantity FROM stock_entries WHERE product_id = $1 ORDER BY id`,
		productID,
	)
	if err != nil {
		return nil, fmt.Errorf("select stock: %w", err)
	}
	defer rows.Close()

	var res []model.StockEntry
	for rows.Next() {
		var e model.StockEntry
		if err := rows.Scan(&e.ID, &e.ProductID, &e.Size, &e.Quantity); err != nil {
			return nil, fmt.Errorf("scan stock: %w", err)
		}
		res = append(res, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// FindStock возвращает складскую запись по точному совпадению товара и размера.
func (q queries) FindStock(ctx context.Context, productID int64, size string) (*model.StockEntry, error) {
	var e model.StockEntry
	err := q.q.QueryRow(ctx,
		`SELECT id, product_id, size, quantity FROM stock_entries WHERE product_id = $1 AND size = $2`,
		productID, size,
	).Scan(&e.ID, &e.ProductID, &e.Size, &e.Quantity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStockNotFound
		}
		return nil, fmt.Errorf("select stock entry: %w", err)
	}
	return &e, nil
}

// InsertStock создаёт складскую запись для размера товара.
func (q queries) InsertStock(ctx context.Context, productID int64, size string, quantity int) (int64, error) {
	var id int64
	err := q.q.QueryRow(ctx,
		`INSERT INTO stock_entries (product_id, size, quantity) VALUES ($1, $2, $3) RETURNING id`,
		productID, size, quantity,
	).Scan(&id)
	if err != nil {
		switch {
		case hasPgCode(err, pgerrcode.UniqueViolation):
			return 0, fmt.Errorf("%w: product %d size %q", ErrStockExists, productID, size)
		case hasPgCode(err, pgerrcode.ForeignKeyViolation):
			return 0, fmt.Errorf("%w: product %d", ErrInvalidReference, productID)
		}
		return 0, fmt.Errorf("insert stock entry: %w", err)
	}
	return id, nil
}

// DecrementStock условно списывает quantity единиц: строка обновляется, только если остатка хватает.
func (q queries) DecrementStock(ctx context.Context, stockID int64, quantity int) error {
	tag, err := q.q.Exec(ctx,
		`UPDATE stock_entries SET quantity = quantity - $2 WHERE id = $1 AND quantity >= $2`,
		stockID, quantity,
	)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return ErrStockConflict
	}
	return nil
}

// IncrementStock возвращает quantity единиц на склад.
func (q queries) IncrementStock(ctx context.Context, stockID int64, quantity int) error {
	tag, err := q.q.Exec(ctx,
		`UPDATE stock_entries SET quantity = quantity + $2 WHERE id = $1`,
		stockID, quantity,
	)
	if err != nil {
		return fmt.Errorf("increment stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStockNotFound
	}
	return nil
}
