//go:build integration

package bootstrap

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	deliveryapp "github.com/pharmaerp/backend/internal/application/delivery"
	"github.com/pharmaerp/backend/internal/domain/delivery"
	"github.com/pharmaerp/backend/internal/infrastructure/migration"
	"github.com/pharmaerp/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newPostgresEnv starts a disposable postgres, applies the embedded
// migrations and assembles the container on top
func newPostgresEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("delivery_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: Failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	m, err := migration.New(sqlDB, migration.Source{}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Up())
	version, dirty, err := m.Version()
	require.NoError(t, err)
	require.False(t, dirty)
	require.NotZero(t, version)

	// one worker keeps sheet recomputes of a batch from racing each other
	opts := DefaultOptions()
	opts.Processor.Workers = 1
	return &env{
		d:      NewDelivery(db, opts, zap.NewNop()),
		f:      testutil.NewFixture(t, db),
		userID: uuid.New(),
	}
}

func TestPostgres_CascadeAndRepair(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	e := newPostgresEnv(t)

	org := e.f.Organization("Green Cross", nil)
	stock := e.f.Stock("Paracetamol", "0")
	groupID := e.f.InvoiceGroup(testutil.InvoiceGroupSpec{
		OrganizationID:     org,
		SubTotal:           "1000",
		Discount:           "50",
		AdditionalDiscount: "100",
	})
	orderID := e.f.Order(groupID, org, testutil.OrderLine{StockID: stock, Quantity: "10", Rate: "85"})
	route := testutil.Route{OrganizationID: org, InvoiceGroupID: groupID, OrderID: orderID, StockID: stock}

	sheet := e.generate(t, "PG-A", groupID)
	e.record(t, route, delivery.KindShort, delivery.LogStatusActive, "10", "85")
	e.drain(t)

	group := e.f.InvoiceGroupRow(groupID)
	assert.True(t, testutil.Dec("850").Equal(group.TotalShort))
	assert.True(t, group.AdditionalDiscount.IsZero())
	assert.True(t, testutil.Dec("850").Equal(e.sheet(t, sheet.ID).ShortAmount))
	assert.False(t, e.mismatched(t, sheet.ID))

	repaired, err := e.d.Reconciler.RepairByAlias(context.Background(), e.f.TenantID, "PG-A")
	require.NoError(t, err)
	assert.False(t, repaired.Before.Mismatched)
	assert.Zero(t, repaired.InvoiceGroupsUpdated)
}

func TestPostgres_ConcurrentReturnsCreditStockOnce(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	e := newPostgresEnv(t)

	const routes = 6
	stock := e.f.Stock("Shared stock", "0")
	groupIDs := make([]uuid.UUID, 0, routes)
	created := make([]testutil.Route, 0, routes)
	for i := 0; i < routes; i++ {
		org := e.f.Organization("Pharmacy "+string(rune('A'+i)), nil)
		group := e.f.InvoiceGroup(testutil.InvoiceGroupSpec{OrganizationID: org, SubTotal: "500"})
		order := e.f.Order(group, org, testutil.OrderLine{StockID: stock, Quantity: "5", Rate: "100"})
		groupIDs = append(groupIDs, group)
		created = append(created, testutil.Route{OrganizationID: org, InvoiceGroupID: group, OrderID: order, StockID: stock})
	}
	sheet := e.generate(t, "PG-B", groupIDs...)

	var wg sync.WaitGroup
	errs := make(chan error, routes)
	for _, route := range created {
		wg.Add(1)
		go func() {
			defer wg.Done()
			receiver := uuid.New()
			_, err := e.d.ShortReturns.Create(context.Background(), e.f.TenantID, e.userID, deliveryapp.CreateShortReturnLogRequest{
				OrderID:        route.OrderID,
				InvoiceGroupID: route.InvoiceGroupID,
				Kind:           string(delivery.KindReturn),
				Status:         string(delivery.LogStatusActive),
				ReceivedBy:     &receiver,
				Items: []deliveryapp.ShortReturnItemRequest{
					{StockID: route.StockID, Quantity: testutil.Dec("1"), Rate: testutil.Dec("100")},
				},
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	e.drain(t)

	assert.True(t, testutil.Dec("6").Equal(e.f.StockLevel(stock)))
	got := e.sheet(t, sheet.ID)
	assert.True(t, testutil.Dec("600").Equal(got.ReturnAmount))
	assert.True(t, testutil.Dec("600").Equal(got.TotalData.TotalReturnAmount))
	assert.False(t, e.mismatched(t, sheet.ID))
}

func TestPostgres_MigrationsRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	e := newPostgresEnv(t)
	sqlDB, err := e.f.DB.DB()
	require.NoError(t, err)

	m, err := migration.New(sqlDB, migration.Source{}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Down())
	assert.False(t, e.f.DB.Migrator().HasTable("short_return_logs"))

	require.NoError(t, m.Up())
	assert.True(t, e.f.DB.Migrator().HasTable("short_return_logs"))
	assert.True(t, e.f.DB.Migrator().HasTable("outbox_events"))
}
