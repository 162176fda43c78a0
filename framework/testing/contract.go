package testing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merliontechs/sales/framework/core"
	"github.com/merliontechs/sales/framework/repository"
)

// Item тестовая сущность с int64 идентификатором
type Item struct {
	ID   int64  `json:"id" bson:"_id"`
	Name string `json:"name" bson:"name"`
}

// ItemIdentity идентификатор Item
var ItemIdentity = repository.IdentityFuncs[Item, int64]{
	Get: func(i Item) int64 { return i.ID },
	Set: func(i Item, id int64) Item {
		i.ID = id
		return i
	},
}

// StoreFactory создает пустой store для одного подтеста
type StoreFactory func(t *testing.T) repository.Store[Item, int64]

// RunRepositoryContract проверяет законы Repository поверх store из factory.
// Каждый подтест получает новый пустой store.
func RunRepositoryContract(t *testing.T, factory StoreFactory) {
	newRepo := func(t *testing.T) *repository.GenericRepository[Item, int64] {
		repo, err := repository.New[Item, int64](factory(t), ItemIdentity, repository.WithName("items"))
		require.NoError(t, err)
		return repo
	}

	t.Run("SaveAssignsIdentifierAndRoundTrips", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)

		saved, err := repo.Save(ctx, Item{Name: "A"})
		require.NoError(t, err)
		require.NotZero(t, saved.ID)
		assert.Equal(t, "A", saved.Name)

		found, err := repo.FindByID(ctx, saved.ID)
		require.NoError(t, err)
		require.True(t, found.IsSome())
		assert.Equal(t, saved, found.Value())
	})

	t.Run("SaveReplacesExisting", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)

		saved, err := repo.Save(ctx, Item{Name: "A"})
		require.NoError(t, err)

		saved.Name = "B"
		updated, err := repo.Save(ctx, saved)
		require.NoError(t, err)
		assert.Equal(t, saved.ID, updated.ID)

		found, err := repo.FindByID(ctx, saved.ID)
		require.NoError(t, err)
		assert.Equal(t, "B", found.Value().Name)

		count, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("SaveWithAbsentIdentifierInserts", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)

		saved, err := repo.Save(ctx, Item{ID: 42, Name: "explicit"})
		require.NoError(t, err)
		assert.Equal(t, int64(42), saved.ID)

		exists, err := repo.ExistsByID(ctx, 42)
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("GeneratedIdentifiersSkipExplicitOnes", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)

		explicit, err := repo.Save(ctx, Item{ID: 1, Name: "explicit"})
		require.NoError(t, err)

		var generated []int64
		for _, name := range []string{"first", "second"} {
			saved, err := repo.Save(ctx, Item{Name: name})
			require.NoError(t, err)
			assert.NotEqual(t, explicit.ID, saved.ID)
			generated = append(generated, saved.ID)
		}
		assert.NotEqual(t, generated[0], generated[1])

		count, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)

		found, err := repo.FindByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, explicit, found.Value())
	})

	t.Run("FindPageWindowsStoreOrder", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)

		for _, name := range []string{"A", "B", "C", "D", "E"} {
			_, err := repo.Save(ctx, Item{Name: name})
			require.NoError(t, err)
		}
		all, err := repository.Collect(repo.FindAll(ctx))
		require.NoError(t, err)
		require.Len(t, all, 5)

		var paged []Item
		for number := int64(0); ; number++ {
			page, err := repo.FindPage(ctx, repository.PageOf(number, 2))
			require.NoError(t, err)
			assert.Equal(t, int64(5), page.Total)
			if len(page.Items) == 0 {
				break
			}
			assert.LessOrEqual(t, len(page.Items), 2)
			paged = append(paged, page.Items...)
		}
		assert.Equal(t, all, paged)
	})

	t.Run("EmptyStore", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)

		exists, err := repo.ExistsByID(ctx, 999)
		require.NoError(t, err)
		assert.False(t, exists)

		count, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(0), count)

		found, err := repo.FindByID(ctx, 999)
		require.NoError(t, err)
		assert.True(t, found.IsNone())

		all, err := repository.Collect(repo.FindAll(ctx))
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)

		saved, err := repo.Save(ctx, Item{Name: "A"})
		require.NoError(t, err)

		require.NoError(t, repo.DeleteByID(ctx, saved.ID))
		require.NoError(t, repo.DeleteByID(ctx, saved.ID))
		require.NoError(t, repo.DeleteByID(ctx, 12345))

		exists, err := repo.ExistsByID(ctx, saved.ID)
		require.NoError(t, err)
		assert.False(t, exists)

		found, err := repo.FindByID(ctx, saved.ID)
		require.NoError(t, err)
		assert.True(t, found.IsNone())
	})

	t.Run("CountMatchesExistingIdentifiers", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)

		var ids []int64
		for _, name := range []string{"A", "B", "C"} {
			saved, err := repo.Save(ctx, Item{Name: name})
			require.NoError(t, err)
			ids = append(ids, saved.ID)
		}
		require.NoError(t, repo.DeleteByID(ctx, ids[1]))

		var existing int64
		for _, id := range ids {
			ok, err := repo.ExistsByID(ctx, id)
			require.NoError(t, err)
			if ok {
				existing++
			}
		}

		count, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, existing, count)
		assert.Equal(t, int64(2), count)
	})

	t.Run("FindAllIsRestartable", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)

		for _, name := range []string{"A", "B"} {
			_, err := repo.Save(ctx, Item{Name: name})
			require.NoError(t, err)
		}

		seq := repo.FindAll(ctx)
		first, err := repository.Collect(seq)
		require.NoError(t, err)
		second, err := repository.Collect(seq)
		require.NoError(t, err)
		assert.ElementsMatch(t, first, second)
		assert.Len(t, first, 2)

		_, err = repo.Save(ctx, Item{Name: "C"})
		require.NoError(t, err)

		third, err := repository.Collect(seq)
		require.NoError(t, err)
		assert.Len(t, third, 3)
	})

	t.Run("Scenario", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)

		saved, err := repo.Save(ctx, Item{Name: "A"})
		require.NoError(t, err)
		assert.Equal(t, "A", saved.Name)

		all, err := repository.Collect(repo.FindAll(ctx))
		require.NoError(t, err)
		assert.Equal(t, []Item{saved}, all)

		require.NoError(t, repo.DeleteByID(ctx, saved.ID))

		all, err = repository.Collect(repo.FindAll(ctx))
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("ZeroIdentifierIsInvalid", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)

		_, err := repo.FindByID(ctx, 0)
		assert.True(t, errors.Is(err, core.ErrInvalidArgumentError))

		_, err = repo.ExistsByID(ctx, 0)
		assert.True(t, errors.Is(err, core.ErrInvalidArgumentError))

		err = repo.DeleteByID(ctx, 0)
		assert.True(t, errors.Is(err, core.ErrInvalidArgumentError))
	})
}
