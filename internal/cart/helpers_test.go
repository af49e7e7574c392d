package cart

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopflow-backend/internal/catalog"
	"github.com/angelmondragon/shopflow-backend/internal/localstate"
	"github.com/angelmondragon/shopflow-backend/pkg/db"
	"github.com/angelmondragon/shopflow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/shopflow-backend/pkg/logger"
	"github.com/angelmondragon/shopflow-backend/pkg/pricing"
)

type stubCatalog struct {
	products map[uuid.UUID]catalog.Product
	getErr   error
}

func newStubCatalog(products ...catalog.Product) *stubCatalog {
	c := &stubCatalog{products: map[uuid.UUID]catalog.Product{}}
	for _, p := range products {
		p.Available = true
		c.products[p.ID] = p
	}
	return c
}

func (c *stubCatalog) Get(_ context.Context, id uuid.UUID) (catalog.Product, error) {
	if c.getErr != nil {
		return catalog.Product{}, c.getErr
	}
	p, ok := c.products[id]
	if !ok {
		return catalog.Product{}, gorm.ErrRecordNotFound
	}
	return p, nil
}

func (c *stubCatalog) GetMany(_ context.Context, ids []uuid.UUID) map[uuid.UUID]catalog.Product {
	out := map[uuid.UUID]catalog.Product{}
	for _, id := range ids {
		if p, ok := c.products[id]; ok {
			out[id] = p
			continue
		}
		out[id] = catalog.Placeholder(id)
	}
	return out
}

func testEngine(t *testing.T) *pricing.Engine {
	t.Helper()
	tiers, err := pricing.ParseTiers("5:15000,10:25000,20:35000,30:50000")
	require.NoError(t, err)
	engine, err := pricing.NewEngine(pricing.Table{Tiers: tiers, OverageUnit: 5000, DefaultFee: 30000})
	require.NoError(t, err)
	return engine
}

func newSQLService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	svc, err := NewService(NewRepository(conn), db.FromConn(conn))
	require.NoError(t, err)
	return svc, conn
}

type storeFixture struct {
	store   *Store
	local   *localstate.MemoryStore
	remote  Service
	catalog *stubCatalog
}

func newStoreFixture(t *testing.T, remote Service, products ...catalog.Product) storeFixture {
	t.Helper()
	if remote == nil {
		remote, _ = newSQLService(t)
	}
	local := localstate.NewMemoryStore()
	cat := newStubCatalog(products...)
	store, err := NewStore(StoreParams{
		Local:   local,
		Remote:  remote,
		Catalog: cat,
		Fees:    testEngine(t),
		TaxRate: decimal.RequireFromString("0.10"),
		Logger:  logger.Nop(),
	})
	require.NoError(t, err)
	return storeFixture{store: store, local: local, remote: remote, catalog: cat}
}

func product(name string, price int64) catalog.Product {
	return catalog.Product{ID: uuid.New(), Name: name, Price: price}
}

func anonymous(session string) Owner {
	return Owner{SessionID: session}
}

func signedIn() Owner {
	id := uuid.New()
	return Owner{UserID: &id}
}
