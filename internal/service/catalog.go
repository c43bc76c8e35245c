package service

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/vestetec-system/internal/model"
	"github.com/mmeshcher/vestetec-system/internal/repository"
	"github.com/mmeshcher/vestetec-system/internal/stock"
)

// ProductInput — данные нового товара вместе с начальными остатками.
type ProductInput struct {
	Price       decimal.Decimal      `json:"price"`
	CategoryID  int64                `json:"category_id"`
	ModelID     int64                `json:"model_id"`
	FabricID    *int64               `json:"fabric_id,omitempty"`
	ImageURL    string               `json:"image_url,omitempty"`
	Description string               `json:"description,omitempty"`
	Stock       []model.SizeQuantity `json:"stock"`
}

func requireName(name, what string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", validationf("%s name is required", what)
	}
	return name, nil
}

// CreateSchool создаёт школу.
func (s *Service) CreateSchool(ctx context.Context, name string) (*model.School, error) {
	name, err := requireName(name, "school")
	if err != nil {
		return nil, err
	}
	id, err := s.repo.CreateSchool(ctx, name)
	if err != nil {
		return nil, err
	}
	return &model.School{ID: id, Name: name}, nil
}

// CreateCategory создаёт категорию.
func (s *Service) CreateCategory(ctx context.Context, name string) (*model.Category, error) {
	name, err := requireName(name, "category")
	if err != nil {
		return nil, err
	}
	id, err := s.repo.CreateCategory(ctx, name)
	if err != nil {
		return nil, err
	}
	return &model.Category{ID: id, Name: name}, nil
}

// CreateGarmentModel создаёт модель изделия.
func (s *Service) CreateGarmentModel(ctx context.Context, name string) (*model.GarmentModel, error) {
	name, err := requireName(name, "model")
	if err != nil {
		return nil, err
	}
	id, err := s.repo.CreateGarmentModel(ctx, name)
	if err != nil {
		return nil, err
	}
	return &model.GarmentModel{ID: id, Name: name}, nil
}

// CreateFabric создаёт тип ткани.
func (s *Service) CreateFabric(ctx context.Context, name string) (*model.Fabric, error) {
	name, err := requireName(name, "fabric")
	if err != nil {
		return nil, err
	}
	id, err := s.repo.CreateFabric(ctx, name)
	if err != nil {
		return nil, err
	}
	return &model.Fabric{ID: id, Name: name}, nil
}

// CreateProduct создаёт товар и его начальные остатки в одной транзакции.
// Повторяющиеся размеры в остатках суммируются.
func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (*model.Product, error) {
	if !in.Price.IsPositive() {
		return nil, validationf("price must be positive")
	}
	if _, err := stock.Merge(in.Stock); err != nil {
		return nil, wrapAs(ErrValidation, err)
	}

	product := &model.Product{
		Price:       in.Price.Round(2),
		CategoryID:  in.CategoryID,
		ModelID:     in.ModelID,
		FabricID:    in.FabricID,
		ImageURL:    strings.TrimSpace(in.ImageURL),
		Description: strings.TrimSpace(in.Description),
	}

	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		id, err := tx.InsertProduct(ctx, product)
		if err != nil {
			if errors.Is(err, repository.ErrInvalidReference) {
				return wrapAs(ErrValidation, err)
			}
			return err
		}
		product.ID = id

		entries, err := stock.NewLedger(tx).Seed(ctx, id, in.Stock)
		if err != nil {
			return err
		}
		product.Stock = entries
		return nil
	})
	if err != nil {
		return nil, err
	}

	return product, nil
}

// GetProduct возвращает товар вместе с остатками.
func (s *Service) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, notFoundf(err, "product %d not found", id)
		}
		return nil, err
	}

	entries, err := s.repo.ListStock(ctx, id)
	if err != nil {
		return nil, err
	}
	product.Stock = entries
	return product, nil
}

// UpdateProductPrice меняет текущую цену. Суммы оформленных заказов не пересчитываются.
func (s *Service) UpdateProductPrice(ctx context.Context, id int64, price decimal.Decimal) (*model.Product, error) {
	if !price.IsPositive() {
		return nil, validationf("price must be positive")
	}
	if err := s.repo.UpdateProductPrice(ctx, id, price.Round(2)); err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, notFoundf(err, "product %d not found", id)
		}
		return nil, err
	}
	return s.GetProduct(ctx, id)
}
