package order_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/MikeMC777/autoparts-orders/internal/order"
	"github.com/MikeMC777/autoparts-orders/internal/pgdb"
	"github.com/MikeMC777/autoparts-orders/internal/product"
	"github.com/MikeMC777/autoparts-orders/internal/seed"
	"github.com/MikeMC777/autoparts-orders/internal/shop"
	"github.com/MikeMC777/autoparts-orders/internal/user"
)

func setupPostgres(t *testing.T) (*order.Service, *product.PGRepo, *seed.Demo) {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("orders"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, pgdb.Migrate(dsn))

	pool, err := pgdb.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	users := user.NewPGRepo(pool)
	shops := shop.NewPGRepo(pool)
	products := product.NewPGRepo(pool)
	demo, err := seed.Run(ctx, seed.Repos{Users: users, Shops: shops, Products: products}, "pg-secret")
	require.NoError(t, err)

	svc := order.NewService(order.Deps{
		Orders:   order.NewPGRepo(pool),
		Products: products,
		Shops:    shops,
		Users:    users,
		Tx:       pgdb.NewTransactor(pool),
	})
	return svc, products, demo
}

func TestPostgres_OrderLifecycle(t *testing.T) {
	svc, products, demo := setupPostgres(t)
	ctx := context.Background()
	customer := order.Actor{ID: demo.Customer.ID, Role: user.RoleCustomer}
	supplier := order.Actor{ID: demo.Supplier.ID, Role: user.RoleSupplier}

	stockOf := func(id string) int {
		p, err := products.GetByID(ctx, id)
		require.NoError(t, err)
		return p.Stock
	}

	o, err := svc.Create(ctx, customer, order.CreateOrderRequest{
		Items: []order.CreateOrderItem{
			{ProductID: "brake-pad-001", Quantity: 2},
			{ProductID: "spark-plug-003", Quantity: 4},
		},
		Address:       &order.AddressInput{Street: "12 Rue Joss", City: "Douala"},
		ShippingFee:   decimal.NewFromInt(1500),
		PaymentMethod: "CARD",
	})
	require.NoError(t, err)
	assert.True(t, o.Subtotal.Equal(decimal.NewFromInt(20000)))
	assert.True(t, o.Total.Equal(decimal.NewFromInt(21500)))
	require.Len(t, o.Items, 2)
	require.NotNil(t, o.Payment)
	require.NotNil(t, o.Address)
	assert.Equal(t, demo.Shop.ID, o.Shop.ID)
	assert.Equal(t, 38, stockOf("brake-pad-001"))
	assert.Equal(t, 96, stockOf("spark-plug-003"))

	byNumber, err := svc.Get(ctx, supplier, o.Number)
	require.NoError(t, err)
	assert.Equal(t, o.ID, byNumber.ID)

	// catalog price changes do not reach existing lines
	require.NoError(t, products.UpdatePrice(ctx, "brake-pad-001", decimal.NewFromInt(7000)))

	res, err := svc.CancelItem(ctx, customer, o.ID, o.Items[1].ID, order.CancelItemRequest{Reason: "duplicate"})
	require.NoError(t, err)
	assert.True(t, res.Subtotal.Equal(decimal.NewFromInt(10000)))
	assert.True(t, res.Total.Equal(decimal.NewFromInt(11500)))
	assert.Equal(t, 100, stockOf("spark-plug-003"))
	reloaded, err := svc.Get(ctx, customer, o.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Items[0].Price.Equal(decimal.NewFromInt(5000)))

	_, err = svc.CancelItem(ctx, customer, o.ID, o.Items[1].ID, order.CancelItemRequest{})
	assert.ErrorIs(t, err, order.ErrValidation)

	_, err = svc.UpdateStatus(ctx, supplier, o.ID, order.UpdateStatusRequest{Status: "CONFIRMED"})
	require.NoError(t, err)
	cancelled, err := svc.UpdateStatus(ctx, customer, o.ID, order.UpdateStatusRequest{Status: "CANCELLED", Note: "late"})
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancellationReason)
	assert.Len(t, cancelled.StatusHistory, 3)
	assert.Equal(t, 40, stockOf("brake-pad-001"))
	assert.Equal(t, 100, stockOf("spark-plug-003"))

	list, err := svc.List(ctx, customer, order.ListQuery{Status: order.StatusCancelled})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestPostgres_CreateRollsBack(t *testing.T) {
	svc, products, demo := setupPostgres(t)
	ctx := context.Background()
	customer := order.Actor{ID: demo.Customer.ID, Role: user.RoleCustomer}

	_, err := svc.Create(ctx, customer, order.CreateOrderRequest{
		Items: []order.CreateOrderItem{
			{ProductID: "timing-belt-004", Quantity: 3},
			{ProductID: "timing-belt-004", Quantity: 3},
		},
	})
	require.ErrorIs(t, err, order.ErrValidation)

	p, err := products.GetByID(ctx, "timing-belt-004")
	require.NoError(t, err)
	assert.Equal(t, 5, p.Stock)

	list, err := svc.List(ctx, customer, order.ListQuery{})
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = svc.Get(ctx, customer, uuid.NewString())
	assert.ErrorIs(t, err, order.ErrNotFound)
}
