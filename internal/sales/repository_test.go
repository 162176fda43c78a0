package sales

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merliontechs/sales/framework/adapters/storage"
	"github.com/merliontechs/sales/framework/core"
	"github.com/merliontechs/sales/framework/migrations"
	"github.com/merliontechs/sales/framework/repository"
	frameworktest "github.com/merliontechs/sales/framework/testing"
)

func TestSalesRepository_Scenario(t *testing.T) {
	ctx := context.Background()
	var repo SalesRepository
	repo, err := NewInMemoryRepository()
	require.NoError(t, err)

	saved, err := repo.Save(ctx, Sales{Description: "A"})
	require.NoError(t, err)
	assert.Equal(t, Sales{ID: 1, Description: "A", State: StateInCharge}, saved)

	all, err := repository.Collect(repo.FindAll(ctx))
	require.NoError(t, err)
	assert.Equal(t, []Sales{{ID: 1, Description: "A", State: StateInCharge}}, all)

	require.NoError(t, repo.DeleteByID(ctx, 1))

	all, err = repository.Collect(repo.FindAll(ctx))
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSalesRepository_EmptyStore(t *testing.T) {
	ctx := context.Background()
	repo, err := NewInMemoryRepository()
	require.NoError(t, err)

	exists, err := repo.ExistsByID(ctx, 999)
	require.NoError(t, err)
	assert.False(t, exists)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSalesRepository_PrepareBeforeSave(t *testing.T) {
	ctx := context.Background()
	repo, err := NewInMemoryRepository()
	require.NoError(t, err)

	saved, err := repo.Save(ctx, Sales{ID: 4, Description: "A"})
	require.NoError(t, err)
	assert.Equal(t, StateInCharge, saved.State)

	found, err := repo.FindByID(ctx, 4)
	require.NoError(t, err)
	got, ok := found.Get()
	require.True(t, ok)
	assert.Equal(t, StateInCharge, got.State)

	_, err = repo.Save(ctx, Sales{Description: "B", State: "LOST"})
	require.Error(t, err)
	assert.True(t, core.IsCode(err, core.ErrInvalidArgument))

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSalesRepository_FindPage(t *testing.T) {
	ctx := context.Background()
	repo, err := NewInMemoryRepository()
	require.NoError(t, err)
	for _, d := range []string{"A", "B", "C"} {
		_, err := repo.Save(ctx, Sales{Description: d, State: StateShipped})
		require.NoError(t, err)
	}

	page, err := repo.FindPage(ctx, repository.PageOf(0, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "A", page.Items[0].Description)
	assert.Equal(t, "B", page.Items[1].Description)
}

func TestSalesRepository_RoundTripAllFields(t *testing.T) {
	ctx := context.Background()
	repo, err := NewInMemoryRepository()
	require.NoError(t, err)

	in := Sales{Description: "Laptop", State: StateInCharge, Date: NewDate(2020, time.May, 1)}
	saved, err := repo.Save(ctx, in)
	require.NoError(t, err)

	found, err := repo.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	got, ok := found.Get()
	require.True(t, ok)
	assert.Equal(t, saved, got)
	assert.Equal(t, "Laptop", got.Description)
	assert.Equal(t, StateInCharge, got.State)
	assert.Equal(t, "2020-05-01", got.Date.String())
}

func TestSalesRepository_EmitsSalesEvents(t *testing.T) {
	ctx := context.Background()
	env := frameworktest.NewInMemoryTestEnvironment(t)
	env.Record(t, "sales.saved", "sales.deleted")

	repo, err := NewInMemoryRepository(env.Options(EntityName)...)
	require.NoError(t, err)
	assert.Equal(t, EntityName, repo.Name())

	saved, err := repo.Save(ctx, Sales{Description: "A", State: StateShipped})
	require.NoError(t, err)
	require.NoError(t, repo.DeleteByID(ctx, saved.ID))

	received := env.Events()
	require.Len(t, received, 2)
	assert.Equal(t, "sales.saved", received[0].EventType())
	assert.Equal(t, "sales.deleted", received[1].EventType())
}

func TestStoreFactory(t *testing.T) {
	factory := NewStoreFactory()
	assert.Equal(t, []string{"inmemory", "mongodb", "postgres", "redis"}, factory.Names())

	store, err := factory.Create(context.Background(), "inmemory", nil)
	require.NoError(t, err)

	repo, err := NewRepository(store)
	require.NoError(t, err)
	saved, err := repo.Save(context.Background(), Sales{Description: "A"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.ID)

	_, err = factory.Create(context.Background(), "postgres", "not a config")
	assert.Error(t, err)
}

func TestParseID(t *testing.T) {
	id, err := ParseID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = ParseID("forty-two")
	assert.Error(t, err)
}

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *int64:
			*p = r.values[i].(int64)
		case *string:
			*p = r.values[i].(string)
		case *pgtype.Date:
			*p = r.values[i].(pgtype.Date)
		}
	}
	return nil
}

func TestPostgresMapper(t *testing.T) {
	mapper := PostgresMapper{}
	assert.Equal(t, []string{"description", "state", "date"}, mapper.Columns())

	values, err := mapper.Values(Sales{Description: "A", State: StateShipped, Date: NewDate(2020, time.May, 1)})
	require.NoError(t, err)
	require.Len(t, values, 3)
	assert.Equal(t, "A", values[0])
	assert.Equal(t, "SHIPPED", values[1])
	assert.Equal(t, pgtype.Date{Time: time.Date(2020, time.May, 1, 0, 0, 0, 0, time.UTC), Valid: true}, values[2])

	values, err = mapper.Values(Sales{})
	require.NoError(t, err)
	assert.Equal(t, pgtype.Date{}, values[2])

	s, err := mapper.Scan(fakeRow{values: []any{
		int64(3), "B", "DELIVERED", pgtype.Date{Time: time.Date(2021, time.June, 2, 0, 0, 0, 0, time.UTC), Valid: true},
	}})
	require.NoError(t, err)
	assert.Equal(t, Sales{ID: 3, Description: "B", State: StateDelivered, Date: NewDate(2021, time.June, 2)}, s)

	_, err = mapper.Scan(fakeRow{err: errors.New("no rows")})
	assert.Error(t, err)
}

func TestSalesRepository_Postgres(t *testing.T) {
	dsn := os.Getenv("SALES_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SALES_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	db, err := migrations.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = migrations.Up(ctx, db, nil)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `TRUNCATE sales RESTART IDENTITY`)
	require.NoError(t, err)

	config := storage.DefaultPostgresConfig()
	config.DSN = dsn
	config.TableName = "sales"
	store, err := NewStoreFactory().Create(ctx, "postgres", config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.(*storage.PostgresStore[Sales, int64]).Stop(ctx) })

	repo, err := NewRepository(store)
	require.NoError(t, err)

	saved, err := repo.Save(ctx, Sales{Description: "A", State: StateShipped, Date: NewDate(2020, time.May, 1)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.ID)

	found, err := repo.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, saved, found.Value())

	require.NoError(t, repo.DeleteByID(ctx, 1))
	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}
