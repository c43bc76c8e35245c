package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mmeshcher/vestetec-system/internal/model"
)

func setupTestDB(t *testing.T) *PostgresRepository {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	repo, err := NewPostgresRepository(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	return repo
}

type fixture struct {
	studentID int64
	schoolID  int64
	productID int64
	stockM    int64
}

func seed(t *testing.T, repo *PostgresRepository) fixture {
	t.Helper()
	ctx := context.Background()

	schoolID, err := repo.CreateSchool(ctx, "Escola Central")
	require.NoError(t, err)
	categoryID, err := repo.CreateCategory(ctx, "Camiseta")
	require.NoError(t, err)
	modelID, err := repo.CreateGarmentModel(ctx, "Manga Curta")
	require.NoError(t, err)

	studentID, err := repo.CreateStudent(ctx, &model.Student{
		RM: 1001, Name: "Ana", Email: "ana@example.com", PasswordHash: []byte("hash"), SchoolID: &schoolID,
	})
	require.NoError(t, err)

	productID, err := repo.InsertProduct(ctx, &model.Product{
		Price: decimal.RequireFromString("50.00"), CategoryID: categoryID, ModelID: modelID,
	})
	require.NoError(t, err)

	stockM, err := repo.InsertStock(ctx, productID, "M", 5)
	require.NoError(t, err)

	return fixture{studentID: studentID, schoolID: schoolID, productID: productID, stockM: stockM}
}

func TestPostgresRepository_OrderRoundTrip(t *testing.T) {
	repo := setupTestDB(t)
	fx := seed(t, repo)
	ctx := context.Background()

	delivery := time.Now().UTC().Add(7 * 24 * time.Hour).Truncate(time.Second)
	var orderID int64
	err := repo.InTx(ctx, func(tx Tx) error {
		if err := tx.DecrementStock(ctx, fx.stockM, 2); err != nil {
			return err
		}
		id, err := tx.InsertOrder(ctx, &model.Order{
			StudentID:            fx.studentID,
			SchoolID:             fx.schoolID,
			CreatedAt:            time.Now().UTC(),
			TotalPrice:           decimal.RequireFromString("100.00"),
			Status:               model.OrderStatusPending,
			ExpectedDeliveryDate: &delivery,
		})
		if err != nil {
			return err
		}
		orderID = id
		return tx.InsertOrderItems(ctx, id, []model.OrderItem{
			{ProductID: fx.productID, Size: "M", Quantity: 2, UnitPrice: decimal.RequireFromString("50.00")},
		})
	})
	require.NoError(t, err)

	entry, err := repo.FindStock(ctx, fx.productID, "M")
	require.NoError(t, err)
	assert.Equal(t, 3, entry.Quantity)

	details, err := repo.GetOrderDetails(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, "Ana", details.StudentName)
	assert.Equal(t, "Escola Central", details.SchoolName)
	assert.Equal(t, model.OrderStatusPending, details.Status)
	require.Len(t, details.Items, 1)
	assert.Equal(t, "Camiseta Manga Curta", details.Items[0].ProductName)
	assert.Equal(t, "N/A", details.Items[0].FabricName)
	assert.True(t, decimal.RequireFromString("100").Equal(details.Items[0].LineTotal))
	assert.True(t, decimal.RequireFromString("100").Equal(details.TotalPrice))

	list, err := repo.ListStudentOrders(ctx, fx.studentID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].TotalItems)

	page, total, err := repo.ListOrders(ctx, model.OrderFilter{Status: model.OrderStatusPending, Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, page, 1)

	stats, err := repo.OrderStatusCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats[model.OrderStatusPending])
}

func TestPostgresRepository_ConditionalDecrement(t *testing.T) {
	repo := setupTestDB(t)
	fx := seed(t, repo)
	ctx := context.Background()

	err := repo.InTx(ctx, func(tx Tx) error {
		return tx.DecrementStock(ctx, fx.stockM, 6)
	})
	assert.ErrorIs(t, err, ErrStockConflict)

	entry, err := repo.FindStock(ctx, fx.productID, "M")
	require.NoError(t, err)
	assert.Equal(t, 5, entry.Quantity)
}

func TestPostgresRepository_RollbackOnError(t *testing.T) {
	repo := setupTestDB(t)
	fx := seed(t, repo)
	ctx := context.Background()

	errAbort := errors.New("abort")
	err := repo.InTx(ctx, func(tx Tx) error {
		if err := tx.DecrementStock(ctx, fx.stockM, 1); err != nil {
			return err
		}
		return errAbort
	})
	assert.ErrorIs(t, err, errAbort)

	entry, err := repo.FindStock(ctx, fx.productID, "M")
	require.NoError(t, err)
	assert.Equal(t, 5, entry.Quantity)
}

func TestPostgresRepository_OneActiveCodePerEmail(t *testing.T) {
	repo := setupTestDB(t)
	seed(t, repo)
	ctx := context.Background()

	expires := time.Now().UTC().Add(10 * time.Minute)
	_, err := repo.InsertCode(ctx, &model.VerificationCode{Email: "ana@example.com", Code: "123456", ExpiresAt: expires, Active: true})
	require.NoError(t, err)

	_, err = repo.InsertCode(ctx, &model.VerificationCode{Email: "ana@example.com", Code: "654321", ExpiresAt: expires, Active: true})
	assert.ErrorIs(t, err, ErrActiveCodeExists)

	n, err := repo.DeactivateCodes(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.LatestActiveCode(ctx, "ana@example.com")
	assert.ErrorIs(t, err, ErrCodeNotFound)
}

func TestPostgresRepository_DuplicateStockAndEmail(t *testing.T) {
	repo := setupTestDB(t)
	fx := seed(t, repo)
	ctx := context.Background()

	_, err := repo.InsertStock(ctx, fx.productID, "M", 1)
	assert.ErrorIs(t, err, ErrStockExists)

	_, err = repo.CreateStudent(ctx, &model.Student{Name: "Ana 2", Email: "ana@example.com", PasswordHash: []byte("x")})
	assert.ErrorIs(t, err, ErrEmailExists)
}

func TestPostgresRepository_DeleteOrder(t *testing.T) {
	repo := setupTestDB(t)
	fx := seed(t, repo)
	ctx := context.Background()

	var orderID int64
	require.NoError(t, repo.InTx(ctx, func(tx Tx) error {
		id, err := tx.InsertOrder(ctx, &model.Order{
			StudentID: fx.studentID, SchoolID: fx.schoolID, CreatedAt: time.Now().UTC(),
			TotalPrice: decimal.RequireFromString("50"), Status: model.OrderStatusPending,
		})
		orderID = id
		if err != nil {
			return err
		}
		return tx.InsertOrderItems(ctx, id, []model.OrderItem{
			{ProductID: fx.productID, Size: "M", Quantity: 1, UnitPrice: decimal.RequireFromString("50")},
		})
	}))

	require.NoError(t, repo.InTx(ctx, func(tx Tx) error {
		o, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		assert.Len(t, o.Items, 1)
		return tx.DeleteOrder(ctx, orderID)
	}))

	_, err := repo.GetOrderDetails(ctx, orderID)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, isRetryable(context.Canceled))
	assert.False(t, isRetryable(errors.New("connection refused")))
	assert.True(t, isRetryable(errors.Join(errBeginTx, errors.New("dial tcp: connection refused"))))
	assert.False(t, isRetryable(errors.New("syntax error")))
}
