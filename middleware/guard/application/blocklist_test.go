package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinela-gateway/middleware/guard/domain"
	"sentinela-gateway/middleware/guard/infra"
)

func TestBlockList_AddIsIdempotent(t *testing.T) {
	ctx := context.Background()
	bl := NewBlockList(infra.NewMemoryStore())

	require.NoError(t, bl.Block(ctx, "token:a", "admin"))
	require.NoError(t, bl.Block(ctx, "token:a", "detection"))

	members, err := bl.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"token:a"}, members)
}

func TestBlockList_EmptyMemberIsValidationError(t *testing.T) {
	bl := NewBlockList(infra.NewMemoryStore())

	assert.ErrorIs(t, bl.Block(context.Background(), "  ", "admin"), domain.ErrValidation)
	assert.ErrorIs(t, bl.Unblock(context.Background(), ""), domain.ErrValidation)
}

func TestBlockList_CheckFindsLegacyAndCanonicalForms(t *testing.T) {
	ctx := context.Background()
	store := infra.NewMemoryStore()
	bl := NewBlockList(store)

	_, blocked, err := bl.Check(ctx, "10.1.1.1", "tok")
	require.NoError(t, err)
	assert.False(t, blocked)

	require.NoError(t, store.Add(ctx, "10.1.1.1"))
	member, blocked, err := bl.Check(ctx, "10.1.1.1", "tok")
	require.NoError(t, err)
	assert.True(t, blocked)
	assert.Equal(t, "10.1.1.1", member)

	require.NoError(t, bl.Unblock(ctx, "10.1.1.1"))
	require.NoError(t, bl.BlockFor(ctx, "token:tok", time.Minute, "gate"))
	member, blocked, err = bl.Check(ctx, "10.1.1.1", "tok")
	require.NoError(t, err)
	assert.True(t, blocked)
	assert.Equal(t, "token:tok", member)
}

func TestBlockList_ListIsNeverNil(t *testing.T) {
	members, err := NewBlockList(infra.NewMemoryStore()).List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, members)
	assert.Empty(t, members)
}
