package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cafeflow/cafeflow-backend/internal/stock/repository"
	"github.com/cafeflow/cafeflow-backend/internal/stock/service"
	"github.com/cafeflow/cafeflow-backend/pkg/config"
	"github.com/cafeflow/cafeflow-backend/pkg/database"
	"github.com/cafeflow/cafeflow-backend/pkg/errors"
	"github.com/cafeflow/cafeflow-backend/pkg/logger"
	"github.com/cafeflow/cafeflow-backend/pkg/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decimalFromString(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

var mockStockCfg = config.StockConfig{
	ExpiryWarningDays:  7,
	ExpiryUrgentDays:   3,
	ReconcileTolerance: 0.01,
	TxMaxRetries:       3,
}

func newMockStore(t *testing.T) (*repository.Store, *testutil.MockDB) {
	t.Helper()
	mockDB := testutil.NewMockDB(t)
	log := logger.New("repository-test", "development")
	store := repository.NewStore(database.NewFromSqlx(mockDB.DB, log), mockStockCfg, log)
	return store, mockDB
}

func ingredientRows() *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "name", "unit", "current_stock", "min_stock", "max_stock",
		"cost_per_unit", "is_active", "created_at", "updated_at",
	}).AddRow(
		"11111111-1111-1111-1111-111111111111", "Milk", "ml", "5000", "1000",
		"20000", "0.002", true, now, now,
	)
}

func TestGetIngredient_Found(t *testing.T) {
	store, mockDB := newMockStore(t)
	defer mockDB.Close()

	mockDB.ExpectQuery(`SELECT * FROM ingredients WHERE id = $1`).
		WithArgs("11111111-1111-1111-1111-111111111111").
		WillReturnRows(ingredientRows())

	ing, err := store.GetIngredient(context.Background(), "11111111-1111-1111-1111-111111111111")
	require.NoError(t, err)
	assert.Equal(t, "Milk", ing.Name)
	assert.True(t, ing.CurrentStock.Equal(decimalFromString(t, "5000")))
	mockDB.ExpectationsWereMet(t)
}

func TestGetIngredient_NotFound(t *testing.T) {
	store, mockDB := newMockStore(t)
	defer mockDB.Close()

	mockDB.ExpectQuery(`SELECT * FROM ingredients WHERE id = $1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetIngredient(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	mockDB.ExpectationsWereMet(t)
}

func TestListIngredients_ActiveOnly(t *testing.T) {
	store, mockDB := newMockStore(t)
	defer mockDB.Close()

	mockDB.ExpectQuery(`SELECT * FROM ingredients WHERE is_active = true ORDER BY name`).
		WillReturnRows(ingredientRows())

	ingredients, err := store.ListIngredients(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, ingredients, 1)
	mockDB.ExpectationsWereMet(t)
}

func TestListMovements_FilterBuilding(t *testing.T) {
	store, mockDB := newMockStore(t)
	defer mockDB.Close()

	rows := sqlmock.NewRows([]string{
		"id", "ingredient_id", "batch_id", "movement_type", "quantity", "unit_cost",
		"total_cost", "reference", "reference_type", "notes", "performed_by", "created_at",
	})

	mockDB.ExpectQuery(`SELECT * FROM stock_movements WHERE 1=1 AND ingredient_id = $1 AND movement_type = $2 ORDER BY created_at DESC LIMIT $3`).
		WithArgs("ing-1", "waste", 50).
		WillReturnRows(rows)

	_, err := store.ListMovements(context.Background(), service.MovementFilter{
		IngredientID: "ing-1",
		MovementType: "waste",
		Limit:        50,
	})
	require.NoError(t, err)
	mockDB.ExpectationsWereMet(t)
}

func TestWithinTx_RollsBackOnError(t *testing.T) {
	store, mockDB := newMockStore(t)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery(`SELECT * FROM ingredients WHERE id = $1 FOR UPDATE`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mockDB.ExpectRollback()

	err := store.WithinTx(context.Background(), func(tx service.LedgerTx) error {
		_, err := tx.LockIngredient(context.Background(), "missing")
		return err
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	mockDB.ExpectationsWereMet(t)
}

func TestWithinTx_CommitsOnSuccess(t *testing.T) {
	store, mockDB := newMockStore(t)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery(`SELECT * FROM ingredients WHERE id = $1 FOR UPDATE`).
		WithArgs("11111111-1111-1111-1111-111111111111").
		WillReturnRows(ingredientRows())
	mockDB.ExpectCommit()

	err := store.WithinTx(context.Background(), func(tx service.LedgerTx) error {
		ing, err := tx.LockIngredient(context.Background(), "11111111-1111-1111-1111-111111111111")
		if err != nil {
			return err
		}
		assert.Equal(t, "Milk", ing.Name)
		return nil
	})
	require.NoError(t, err)
	mockDB.ExpectationsWereMet(t)
}
