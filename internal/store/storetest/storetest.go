// Package storetest holds the behavior every store.Store must show.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/raphaelgruber/stadtzhharvest-go/internal/models"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises a store. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("jobs", func(t *testing.T) { testJobs(t, newStore(t)) })
	t.Run("objects", func(t *testing.T) { testObjects(t, newStore(t)) })
	t.Run("current", func(t *testing.T) { testCurrent(t, newStore(t)) })
	t.Run("errors", func(t *testing.T) { testErrors(t, newStore(t)) })
}

func testJobs(t *testing.T, s store.Store) {
	ctx := context.Background()
	start := time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC)

	missing, err := s.GetJob(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	for i, id := range []string{"job00001", "job00002"} {
		require.NoError(t, s.SaveJob(ctx, models.HarvestJob{
			ID:        id,
			Source:    "dropzone",
			Status:    "running",
			StartedAt: start.Add(time.Duration(i) * time.Hour),
		}))
	}

	done := start.Add(90 * time.Minute)
	msg := "gather failed"
	require.NoError(t, s.SaveJob(ctx, models.HarvestJob{
		ID:          "job00001",
		Source:      "dropzone",
		Status:      "failed",
		Total:       3,
		Progress:    3,
		Stats:       models.RunStats{Added: 1, Errored: 2},
		Error:       &msg,
		StartedAt:   start,
		CompletedAt: &done,
	}))

	got, err := s.GetJob(ctx, "job00001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "failed", got.Status)
	assert.Equal(t, models.RunStats{Added: 1, Errored: 2}, got.Stats)
	require.NotNil(t, got.Error)
	assert.Equal(t, msg, *got.Error)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, done.Equal(*got.CompletedAt))

	jobs, err := s.ListJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "job00002", jobs[0].ID)

	jobs, err = s.ListJobs(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func testObjects(t *testing.T, s store.Store) {
	ctx := context.Background()

	missing, err := s.GetObject(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	for _, guid := range []string{"b-dataset", "a-dataset"} {
		require.NoError(t, s.SaveObject(ctx, models.HarvestObject{
			ID:      "obj-" + guid,
			GUID:    guid,
			JobID:   "job1",
			Source:  "dropzone",
			Content: `{"datasetID":"` + guid + `"}`,
		}))
	}
	require.NoError(t, s.SaveObject(ctx, models.HarvestObject{ID: "obj-other", GUID: "c", JobID: "job2"}))

	obj, err := s.GetObject(ctx, "obj-a-dataset")
	require.NoError(t, err)
	require.NotNil(t, obj)
	assert.Equal(t, "a-dataset", obj.GUID)
	assert.Equal(t, `{"datasetID":"a-dataset"}`, obj.Content)
	assert.False(t, obj.Current)

	obj.Outcome = models.OutcomeAdded
	require.NoError(t, s.SaveObject(ctx, *obj))

	objs, err := s.ListObjects(ctx, "job1")
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, "a-dataset", objs[0].GUID)
	assert.Equal(t, models.OutcomeAdded, objs[0].Outcome)
	assert.Equal(t, "b-dataset", objs[1].GUID)
}

func testCurrent(t *testing.T, s store.Store) {
	ctx := context.Background()

	none, err := s.CurrentObject(ctx, "bevoelkerung")
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, s.SaveObject(ctx, models.HarvestObject{ID: "first", GUID: "bevoelkerung", JobID: "job1"}))
	require.NoError(t, s.MarkCurrent(ctx, "first", "bevoelkerung", "pkg-1"))

	cur, err := s.CurrentObject(ctx, "bevoelkerung")
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, "first", cur.ID)
	assert.Equal(t, "pkg-1", cur.PackageID)

	require.NoError(t, s.SaveObject(ctx, models.HarvestObject{ID: "second", GUID: "bevoelkerung", JobID: "job2"}))
	require.NoError(t, s.MarkCurrent(ctx, "second", "bevoelkerung", "pkg-1"))

	first, err := s.GetObject(ctx, "first")
	require.NoError(t, err)
	assert.False(t, first.Current)

	cur, err = s.CurrentObject(ctx, "bevoelkerung")
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, "second", cur.ID)

	require.NoError(t, s.SetNotCurrent(ctx, "second"))
	none, err = s.CurrentObject(ctx, "bevoelkerung")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func testErrors(t *testing.T, s store.Store) {
	ctx := context.Background()

	require.NoError(t, s.AddError(ctx, models.HarvestError{JobID: "job1", Stage: models.StageGather, Message: "meta.xml not found"}))
	require.NoError(t, s.AddError(ctx, models.HarvestError{JobID: "job1", ObjectID: "obj1", Stage: models.StageImport, Message: "Create validation Error"}))
	require.NoError(t, s.AddError(ctx, models.HarvestError{JobID: "job2", Stage: models.StageGather, Message: "other job"}))

	errs, err := s.ListErrors(ctx, "job1")
	require.NoError(t, err)
	require.Len(t, errs, 2)
	assert.Equal(t, models.StageGather, errs[0].Stage)
	assert.Equal(t, "obj1", errs[1].ObjectID)
	assert.Equal(t, "Create validation Error", errs[1].Message)
	assert.False(t, errs[1].CreatedAt.IsZero())
}
