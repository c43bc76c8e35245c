// Package service реализует бизнес-логику сервиса заказов школьной формы.
package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/vestetec-system/internal/model"
	"github.com/mmeshcher/vestetec-system/internal/repository"
	"github.com/mmeshcher/vestetec-system/internal/token"
)

const (
	// DefaultDeliveryLead — срок от оформления до ожидаемой доставки.
	DefaultDeliveryLead = 7 * 24 * time.Hour
	// CodeTTL — срок действия кода подтверждения.
	CodeTTL = 10 * time.Minute
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	InTx(ctx context.Context, fn func(tx repository.Tx) error) error

	CreateStudent(ctx context.Context, s *model.Student) (int64, error)
	GetStudent(ctx context.Context, id int64) (*model.Student, error)
	GetStudentByEmail(ctx context.Context, email string) (*model.Student, error)
	IsEmailVerified(ctx context.Context, email string) (bool, error)
	GetAdminByEmail(ctx context.Context, email string) (*model.Admin, error)
	GetAdminByID(ctx context.Context, id int64) (*model.Admin, error)
	UpsertAdmin(ctx context.Context, name, email string, passwordHash []byte) (int64, error)

	CreateSchool(ctx context.Context, name string) (int64, error)
	CreateCategory(ctx context.Context, name string) (int64, error)
	CreateGarmentModel(ctx context.Context, name string) (int64, error)
	CreateFabric(ctx context.Context, name string) (int64, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	ListStock(ctx context.Context, productID int64) ([]model.StockEntry, error)
	UpdateProductPrice(ctx context.Context, id int64, price decimal.Decimal) error

	GetOrderDetails(ctx context.Context, orderID int64) (*model.OrderDetails, error)
	ListStudentOrders(ctx context.Context, studentID int64) ([]model.OrderSummary, error)
	ListOrders(ctx context.Context, f model.OrderFilter) ([]model.OrderSummary, int, error)
	OrderStatusCounts(ctx context.Context) (map[model.OrderStatus]int, error)
	OrderStatus(ctx context.Context, orderID int64) (model.OrderStatus, error)
	UpdateDeliveryDate(ctx context.Context, orderID int64, delivery time.Time) error

	DeactivateExpiredCodes(ctx context.Context, now time.Time) (int64, error)
}

// Mailer отправляет коды подтверждения.
type Mailer interface {
	SendVerificationCode(ctx context.Context, email, code string) error
}

// Service содержит бизнес-логику сервиса заказов.
type Service struct {
	repo    Repository
	mailer  Mailer
	tokens  *token.Manager
	revoked token.RevocationList
	logger  *zap.Logger

	now          func() time.Time
	deliveryLead time.Duration
	bcryptCost   int
}

// Option настраивает Service.
type Option func(*Service)

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithDeliveryLead задаёт срок ожидаемой доставки новых заказов.
func WithDeliveryLead(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.deliveryLead = d
		}
	}
}

// WithBcryptCost задаёт стоимость хеширования паролей.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.bcryptCost = cost
		}
	}
}

// NewService создаёт новый сервис.
func NewService(repo Repository, mailer Mailer, tokens *token.Manager, revoked token.RevocationList, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		repo:         repo,
		mailer:       mailer,
		tokens:       tokens,
		revoked:      revoked,
		logger:       logger,
		now:          time.Now,
		deliveryLead: DefaultDeliveryLead,
		bcryptCost:   bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// StartCodeSweeper запускает фоновую деактивацию истёкших кодов подтверждения.
func (s *Service) StartCodeSweeper(ctx context.Context, interval time.Duration) {
	if s.repo == nil || interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweepExpiredCodes(ctx)
			}
		}
	}()
}

func (s *Service) sweepExpiredCodes(ctx context.Context) {
	n, err := s.repo.DeactivateExpiredCodes(ctx, s.now().UTC())
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("failed to deactivate expired codes", zap.Error(err))
		}
		return
	}
	if n > 0 {
		s.logger.Debug("expired verification codes deactivated", zap.Int64("count", n))
	}
}
