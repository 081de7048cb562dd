package quotations

import (
	"context"
	"fmt"
	"testing"

	"github.com/angelmondragon/grocerybid-backend/pkg/db/models"
	"github.com/angelmondragon/grocerybid-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupQuotationsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{`
CREATE TABLE grocery_lists (
  id TEXT PRIMARY KEY,
  buyer_id TEXT NOT NULL,
  title TEXT NOT NULL,
  description TEXT,
  status TEXT NOT NULL DEFAULT 'open',
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE quotations (
  id TEXT PRIMARY KEY,
  list_id TEXT NOT NULL,
  vendor_id TEXT NOT NULL,
  total_amount NUMERIC NOT NULL,
  discount_total NUMERIC NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'pending',
  valid_until DATETIME,
  notes TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE UNIQUE INDEX quotations_one_accepted_per_list ON quotations (list_id) WHERE status = 'accepted';`, `
CREATE TABLE quotation_prices (
  id TEXT PRIMARY KEY,
  quotation_id TEXT NOT NULL REFERENCES quotations(id) ON DELETE CASCADE,
  position INTEGER NOT NULL,
  item_name TEXT NOT NULL,
  product_id TEXT,
  base_price NUMERIC NOT NULL,
  discount NUMERIC NOT NULL DEFAULT 0,
  final_price NUMERIC NOT NULL
);`}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func seedQuotation(t *testing.T, repo Repository, listID, vendorID uuid.UUID) *models.Quotation {
	t.Helper()
	q := &models.Quotation{
		ListID:      listID,
		VendorID:    vendorID,
		TotalAmount: decimal.NewFromInt(95),
		Status:      enums.QuotationStatusPending,
		Prices: []models.QuotationPrice{
			{Position: 0, ItemName: "Rice", BasePrice: decimal.NewFromInt(100), Discount: decimal.NewFromInt(10), FinalPrice: decimal.NewFromInt(90)},
			{Position: 1, ItemName: "Dal", BasePrice: decimal.NewFromInt(5), FinalPrice: decimal.NewFromInt(5)},
		},
	}
	require.NoError(t, repo.Create(context.Background(), q))
	return q
}

func TestRepositoryOnlyOneAcceptedPerList(t *testing.T) {
	db := setupQuotationsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	listID := uuid.New()

	first := seedQuotation(t, repo, listID, uuid.New())
	second := seedQuotation(t, repo, listID, uuid.New())

	moved, err := repo.Transition(ctx, first.ID, enums.QuotationStatusPending, enums.QuotationStatusAccepted)
	require.NoError(t, err)
	assert.True(t, moved)

	moved, err = repo.Transition(ctx, first.ID, enums.QuotationStatusPending, enums.QuotationStatusAccepted)
	require.NoError(t, err)
	assert.False(t, moved)

	_, err = repo.Transition(ctx, second.ID, enums.QuotationStatusPending, enums.QuotationStatusAccepted)
	assert.Error(t, err, "partial unique index must reject a second accepted bid")

	found, err := repo.FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.QuotationStatusAccepted, found.Status)
	require.Len(t, found.Prices, 2)
	assert.Equal(t, "Rice", found.Prices[0].ItemName)
}

func TestRepositoryListByBuyerJoinsLists(t *testing.T) {
	db := setupQuotationsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	buyer := uuid.New()

	mine := &models.GroceryList{BuyerID: buyer, Title: "Mine", Status: enums.ListStatusOpen}
	theirs := &models.GroceryList{BuyerID: uuid.New(), Title: "Theirs", Status: enums.ListStatusOpen}
	require.NoError(t, db.Create(mine).Error)
	require.NoError(t, db.Create(theirs).Error)

	vendor := uuid.New()
	seedQuotation(t, repo, mine.ID, vendor)
	seedQuotation(t, repo, mine.ID, uuid.New())
	seedQuotation(t, repo, theirs.ID, vendor)

	rows, err := repo.List(ctx, ListQuery{BuyerID: &buyer, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, mine.ID, row.ListID)
		assert.Len(t, row.Prices, 2)
	}

	rows, err = repo.List(ctx, ListQuery{VendorID: &vendor, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = repo.List(ctx, ListQuery{BuyerID: &buyer, ListID: &theirs.ID, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, rows)
}
