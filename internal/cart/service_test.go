package cart

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/shopflow-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/shopflow-backend/pkg/errors"
)

func TestServiceGetCreatesEmptyCartOnce(t *testing.T) {
	svc, conn := newSQLService(t)
	ctx := context.Background()
	owner := uuid.New()

	first, err := svc.Get(ctx, owner)
	require.NoError(t, err)
	require.NotNil(t, first.ID)
	require.Empty(t, first.Items)

	second, err := svc.Get(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, *first.ID, *second.ID)

	var count int64
	require.NoError(t, conn.Model(&models.Cart{}).Where("owner_id = ?", owner).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestServiceItemMutations(t *testing.T) {
	svc, _ := newSQLService(t)
	ctx := context.Background()
	owner := uuid.New()
	tea := uuid.New()
	cup := uuid.New()

	require.NoError(t, svc.AddItem(ctx, owner, Item{ProductID: tea, Name: "Tea", Quantity: 1, UnitPrice: 100000}))
	require.NoError(t, svc.AddItem(ctx, owner, Item{ProductID: tea, Name: "Tea", Quantity: 2, UnitPrice: 100000}))
	require.NoError(t, svc.AddItem(ctx, owner, Item{ProductID: cup, Name: "Cup", Quantity: 1, UnitPrice: 50000}))

	cart, err := svc.Get(ctx, owner)
	require.NoError(t, err)
	require.Len(t, cart.Items, 2)
	assert.Equal(t, tea, cart.Items[0].ProductID)
	assert.Equal(t, 3, cart.Items[0].Quantity)
	assert.Equal(t, cup, cart.Items[1].ProductID)

	cupItem := cart.Items[1].ItemID
	require.NoError(t, svc.SetQuantity(ctx, owner, cupItem, 4))
	err = svc.SetQuantity(ctx, owner, uuid.New(), 4)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	err = svc.SetQuantity(ctx, owner, cupItem, -2)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	require.NoError(t, svc.SetQuantity(ctx, owner, cupItem, 0))
	require.NoError(t, svc.RemoveItem(ctx, owner, cupItem))

	cart, err = svc.Get(ctx, owner)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)

	require.NoError(t, svc.Clear(ctx, owner))
	cart, err = svc.Get(ctx, owner)
	require.NoError(t, err)
	require.Empty(t, cart.Items)
}

func TestServiceMergeAppliesOncePerKey(t *testing.T) {
	svc, _ := newSQLService(t)
	ctx := context.Background()
	owner := uuid.New()
	tea := uuid.New()
	cup := uuid.New()
	require.NoError(t, svc.AddItem(ctx, owner, Item{ProductID: tea, Quantity: 1, UnitPrice: 100000}))

	lines := []Item{
		{ProductID: tea, Quantity: 2, UnitPrice: 100000},
		{ProductID: cup, Quantity: 1, UnitPrice: 50000},
	}
	res, err := svc.Merge(ctx, owner, "sess:3", lines)
	require.NoError(t, err)
	assert.Equal(t, MergeResult{Applied: true, ItemsMoved: 2}, res)

	res, err = svc.Merge(ctx, owner, "sess:3", lines)
	require.NoError(t, err)
	assert.False(t, res.Applied)

	cart, err := svc.Get(ctx, owner)
	require.NoError(t, err)
	require.Len(t, cart.Items, 2)
	assert.Equal(t, 3, cart.Items[0].Quantity)
	assert.Equal(t, 1, cart.Items[1].Quantity)

	_, err = svc.Merge(ctx, owner, " ", lines)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestServiceRejectsBadInput(t *testing.T) {
	svc, _ := newSQLService(t)
	ctx := context.Background()

	_, err := svc.Get(ctx, uuid.Nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	err = svc.AddItem(ctx, uuid.New(), Item{ProductID: uuid.New(), Quantity: 0})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
