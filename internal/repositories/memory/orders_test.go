package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/artisan-market/api/internal/domain"
	"github.com/artisan-market/api/internal/repositories"
)

func TestOrderStoreLifecycle(t *testing.T) {
	store := NewOrderStore()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	first := domain.Order{ID: "o-2", CustomerEmail: "asha@example.com", Quantity: 1, CreatedAt: base.Add(time.Minute), ProductName: domain.StringPtr("Lamp")}
	second := domain.Order{ID: "o-1", CustomerEmail: "ASHA@example.com", Quantity: 2, CreatedAt: base}
	other := domain.Order{ID: "o-3", CustomerEmail: "ravi@example.com", Quantity: 1, CreatedAt: base}

	require.NoError(t, store.Insert(ctx, first))
	require.NoError(t, store.Insert(ctx, second))
	require.NoError(t, store.Insert(ctx, other))

	err := store.Insert(ctx, first)
	var repoErr repositories.RepositoryError
	require.ErrorAs(t, err, &repoErr)
	require.True(t, repoErr.IsConflict())

	mine, err := store.ListByCustomer(ctx, "asha@example.com")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	require.Equal(t, "o-1", mine[0].ID)

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)

	require.NoError(t, store.Delete(ctx, "o-2"))
	_, err = store.FindByID(ctx, "o-2")
	require.ErrorAs(t, err, &repoErr)
	require.True(t, repoErr.IsNotFound())

	err = store.Delete(ctx, "o-2")
	require.ErrorAs(t, err, &repoErr)
	require.True(t, repoErr.IsNotFound())
}

func TestOrderStoreReturnsCopies(t *testing.T) {
	store := NewOrderStore()
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, domain.Order{ID: "o-1", ProductName: domain.StringPtr("Lamp")}))

	loaded, err := store.FindByID(ctx, "o-1")
	require.NoError(t, err)
	*loaded.ProductName = "Changed"

	again, err := store.FindByID(ctx, "o-1")
	require.NoError(t, err)
	require.Equal(t, "Lamp", *again.ProductName)
}
