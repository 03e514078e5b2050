package kvstore

import (
	"context"
	"testing"

	"github.com/raphaelgruber/stadtzhharvest-go/internal/models"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/store"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *KV {
	t.Helper()
	kv, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close(context.Background()) })
	return kv
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return openTest(t)
	})
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	kv, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, kv.SaveObject(ctx, models.HarvestObject{ID: "o1", GUID: "bevoelkerung", JobID: "j1"}))
	require.NoError(t, kv.MarkCurrent(ctx, "o1", "bevoelkerung", "pkg-1"))
	require.NoError(t, kv.AddError(ctx, models.HarvestError{JobID: "j1", Stage: models.StageImport, Message: "first"}))
	require.NoError(t, kv.Close(ctx))

	kv, err = Open(dir)
	require.NoError(t, err)
	defer kv.Close(ctx)

	cur, err := kv.CurrentObject(ctx, "bevoelkerung")
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, "pkg-1", cur.PackageID)

	require.NoError(t, kv.AddError(ctx, models.HarvestError{JobID: "j1", Stage: models.StageImport, Message: "second"}))
	errs, err := kv.ListErrors(ctx, "j1")
	require.NoError(t, err)
	require.Len(t, errs, 2)
	assert.Equal(t, "first", errs[0].Message)
	assert.Equal(t, "second", errs[1].Message)
}

func TestMarkCurrentUnknownObject(t *testing.T) {
	kv := openTest(t)
	err := kv.MarkCurrent(context.Background(), "missing", "x", "pkg")
	assert.ErrorContains(t, err, "not found")
}

func TestCloseTwice(t *testing.T) {
	kv, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, kv.Close(context.Background()))
	assert.NoError(t, kv.Close(context.Background()))
}
