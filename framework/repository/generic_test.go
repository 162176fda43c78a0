package repository_test

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merliontechs/sales/framework/adapters/storage"
	"github.com/merliontechs/sales/framework/core"
	"github.com/merliontechs/sales/framework/events"
	"github.com/merliontechs/sales/framework/repository"
	frameworktest "github.com/merliontechs/sales/framework/testing"
)

type Item = frameworktest.Item

func newMemoryStore(t *testing.T) repository.Store[Item, int64] {
	return storage.NewInMemoryStore(storage.DefaultInMemoryConfig(), frameworktest.ItemIdentity, storage.NewInt64Sequence(0))
}

func TestGenericRepository_Contract(t *testing.T) {
	frameworktest.RunRepositoryContract(t, newMemoryStore)
}

// failingStore возвращает ошибку из каждой операции
type failingStore struct {
	err error
}

func (s failingStore) Upsert(ctx context.Context, e Item) (Item, error) { return e, s.err }
func (s failingStore) Get(ctx context.Context, id int64) (Item, bool, error) {
	return Item{}, false, s.err
}
func (s failingStore) Scan(ctx context.Context) iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		if !yield(Item{ID: 1, Name: "partial"}, nil) {
			return
		}
		yield(Item{}, s.err)
	}
}
func (s failingStore) ScanPage(ctx context.Context, page repository.Page) ([]Item, error) {
	return nil, s.err
}
func (s failingStore) Exists(ctx context.Context, id int64) (bool, error) { return false, s.err }
func (s failingStore) Delete(ctx context.Context, id int64) error          { return s.err }
func (s failingStore) Count(ctx context.Context) (int64, error)            { return 0, s.err }

type failingPublisher struct{}

func (failingPublisher) Publish(ctx context.Context, event events.Event) error {
	return errors.New("broker unavailable")
}

func TestNew_Validation(t *testing.T) {
	_, err := repository.New[Item, int64](nil, frameworktest.ItemIdentity)
	assert.True(t, core.IsCode(err, core.ErrInvalidConfig))

	_, err = repository.New[Item, int64](newMemoryStore(t), nil)
	assert.True(t, core.IsCode(err, core.ErrInvalidConfig))

	repo, err := repository.New[Item, int64](newMemoryStore(t), frameworktest.ItemIdentity)
	require.NoError(t, err)
	assert.Equal(t, "repository", repo.Name())
}

func TestGenericRepository_FirstSaveGetsIdentifierOne(t *testing.T) {
	ctx := context.Background()
	repo, err := repository.New[Item, int64](newMemoryStore(t), frameworktest.ItemIdentity)
	require.NoError(t, err)

	saved, err := repo.Save(ctx, Item{Name: "A"})
	require.NoError(t, err)
	assert.Equal(t, Item{ID: 1, Name: "A"}, saved)
}

func TestGenericRepository_PersistenceErrorPropagates(t *testing.T) {
	ctx := context.Background()
	env := frameworktest.NewInMemoryTestEnvironment(t)
	storeErr := core.Persistence(errors.New("connection reset"), "store failed")

	repo, err := repository.New[Item, int64](failingStore{err: storeErr}, frameworktest.ItemIdentity, env.Options("items")...)
	require.NoError(t, err)

	_, err = repo.Save(ctx, Item{Name: "A"})
	assert.True(t, errors.Is(err, core.ErrPersistenceError))

	_, err = repo.FindByID(ctx, 1)
	assert.True(t, errors.Is(err, core.ErrPersistenceError))

	_, err = repo.ExistsByID(ctx, 1)
	assert.True(t, errors.Is(err, core.ErrPersistenceError))

	assert.True(t, errors.Is(repo.DeleteByID(ctx, 1), core.ErrPersistenceError))

	_, err = repo.Count(ctx)
	assert.True(t, errors.Is(err, core.ErrPersistenceError))

	_, err = repo.FindPage(ctx, repository.Page{Limit: 10})
	assert.True(t, errors.Is(err, core.ErrPersistenceError))

	// ошибки записи не порождают событий
	assert.Empty(t, env.Events())
	assert.Equal(t, 6, env.Logs.FilterMessage("repository operation failed").Len())

	rm := env.CollectMetrics(t)
	assert.Equal(t, int64(6), frameworktest.Sum(rm, "repository_errors_total"))
}

func TestGenericRepository_FindAllYieldsErrorOnce(t *testing.T) {
	storeErr := core.Persistence(errors.New("cursor closed"), "scan failed")
	repo, err := repository.New[Item, int64](failingStore{err: storeErr}, frameworktest.ItemIdentity)
	require.NoError(t, err)

	var items []Item
	var errs []error
	for item, err := range repo.FindAll(context.Background()) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		items = append(items, item)
	}

	assert.Len(t, items, 1)
	require.Len(t, errs, 1)
	assert.True(t, errors.Is(errs[0], core.ErrPersistenceError))

	_, err = repository.Collect(repo.FindAll(context.Background()))
	assert.Error(t, err)
}

func TestGenericRepository_FindAllEarlyBreak(t *testing.T) {
	ctx := context.Background()
	repo, err := repository.New[Item, int64](newMemoryStore(t), frameworktest.ItemIdentity)
	require.NoError(t, err)

	for _, name := range []string{"A", "B", "C"} {
		_, err := repo.Save(ctx, Item{Name: name})
		require.NoError(t, err)
	}

	var seen []string
	for item, err := range repo.FindAll(ctx) {
		require.NoError(t, err)
		seen = append(seen, item.Name)
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"A", "B"}, seen)
}

func TestGenericRepository_PublishesEntityEvents(t *testing.T) {
	ctx := context.Background()
	env := frameworktest.NewInMemoryTestEnvironment(t)
	env.Record(t, "items.saved", "items.deleted")

	repo, err := repository.New[Item, int64](newMemoryStore(t), frameworktest.ItemIdentity, env.Options("items")...)
	require.NoError(t, err)

	saved, err := repo.Save(ctx, Item{Name: "A"})
	require.NoError(t, err)
	require.NoError(t, repo.DeleteByID(ctx, saved.ID))

	received := env.Events()
	require.Len(t, received, 2)
	assert.Equal(t, "items.saved", received[0].EventType())
	assert.Equal(t, "1", received[0].AggregateID())
	assert.Equal(t, "items.deleted", received[1].EventType())
	assert.Equal(t, "1", received[1].AggregateID())

	saveEvent, ok := received[0].(*events.EntityEvent)
	require.True(t, ok)
	assert.Equal(t, saved, saveEvent.Payload)

	rm := env.CollectMetrics(t)
	assert.Equal(t, int64(2), frameworktest.Sum(rm, "events_published_total"))
}

func TestGenericRepository_PublishFailureDoesNotFailWrite(t *testing.T) {
	ctx := context.Background()
	env := frameworktest.NewInMemoryTestEnvironment(t)

	repo, err := repository.New[Item, int64](newMemoryStore(t), frameworktest.ItemIdentity,
		repository.WithLogger(env.Logger),
		repository.WithEventPublisher(failingPublisher{}),
	)
	require.NoError(t, err)

	saved, err := repo.Save(ctx, Item{Name: "A"})
	require.NoError(t, err)

	exists, err := repo.ExistsByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, 1, env.Logs.FilterMessage("failed to publish entity event").Len())
}

func TestGenericRepository_RecordsMetricsAndSpans(t *testing.T) {
	ctx := context.Background()
	env := frameworktest.NewInMemoryTestEnvironment(t)

	repo, err := repository.New[Item, int64](newMemoryStore(t), frameworktest.ItemIdentity, env.Options("items")...)
	require.NoError(t, err)

	saved, err := repo.Save(ctx, Item{Name: "A"})
	require.NoError(t, err)
	_, err = repo.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	_, err = repo.Count(ctx)
	require.NoError(t, err)

	rm := env.CollectMetrics(t)
	assert.Equal(t, int64(3), frameworktest.Sum(rm, "repository_operations_total"))
	assert.Equal(t, int64(0), frameworktest.Sum(rm, "repository_errors_total"))

	var names []string
	for _, span := range env.Spans.GetSpans() {
		names = append(names, span.Name)
	}
	assert.Equal(t, []string{"items.save", "items.find_by_id", "items.count"}, names)
}

func TestGenericRepository_InvalidArgumentIsNotLoggedAsFailure(t *testing.T) {
	env := frameworktest.NewInMemoryTestEnvironment(t)
	repo, err := repository.New[Item, int64](newMemoryStore(t), frameworktest.ItemIdentity, env.Options("items")...)
	require.NoError(t, err)

	_, err = repo.FindByID(context.Background(), 0)
	assert.True(t, core.IsCode(err, core.ErrInvalidArgument))
	assert.Equal(t, 0, env.Logs.FilterMessage("repository operation failed").Len())
	assert.Equal(t, 1, env.Logs.FilterMessage("repository operation rejected").Len())
}

func TestGenericRepository_FindPage(t *testing.T) {
	ctx := context.Background()
	repo, err := repository.New[Item, int64](newMemoryStore(t), frameworktest.ItemIdentity)
	require.NoError(t, err)

	for _, name := range []string{"A", "B", "C"} {
		_, err := repo.Save(ctx, Item{Name: name})
		require.NoError(t, err)
	}

	page, err := repo.FindPage(ctx, repository.PageOf(1, 2))
	require.NoError(t, err)
	assert.Equal(t, []Item{{ID: 3, Name: "C"}}, page.Items)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, repository.Page{Offset: 2, Limit: 2}, page.Page)

	for _, p := range []repository.Page{{Offset: -1, Limit: 1}, {Limit: 0}, {Limit: repository.MaxPageSize + 1}} {
		_, err := repo.FindPage(ctx, p)
		assert.True(t, core.IsCode(err, core.ErrInvalidArgument), "%+v", p)
	}
}

func TestGenericRepository_PrepareRunsBeforeStore(t *testing.T) {
	ctx := context.Background()
	prepare := func(i Item) (Item, error) {
		if i.Name == "" {
			i.Name = "unnamed"
		}
		if i.Name == "forbidden" {
			return i, core.InvalidArgument("name %q is not allowed", i.Name)
		}
		return i, nil
	}

	repo, err := repository.New[Item, int64](newMemoryStore(t), frameworktest.ItemIdentity, repository.WithPrepare(prepare))
	require.NoError(t, err)

	saved, err := repo.Save(ctx, Item{})
	require.NoError(t, err)
	assert.Equal(t, "unnamed", saved.Name)

	found, err := repo.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved, found.Value())

	_, err = repo.Save(ctx, Item{Name: "forbidden"})
	assert.True(t, core.IsCode(err, core.ErrInvalidArgument))

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
