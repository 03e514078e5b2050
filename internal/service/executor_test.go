package service

import (
	"context"
	"testing"

	"github.com/raphaelgruber/stadtzhharvest-go/internal/ckan"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileResource(name, fp string) *models.Resource {
	return &models.Resource{Kind: models.KindFile, Name: name, Format: "csv", Fingerprint: fp, Path: "/dropzone/" + name}
}

func seedPackage(f *fakePlatform, id string, resources ...map[string]any) {
	f.packages[id] = map[string]any{"id": id, "name": id}
	for _, r := range resources {
		r["package_id"] = id
		f.res[id] = append(f.res[id], r)
	}
}

func TestApplyIsolatesFailures(t *testing.T) {
	f := newFakePlatform()
	seedPackage(f, "pkg")
	f.failResource["b.csv"] = &ckan.ValidationError{Action: "resource_create", Fields: map[string][]string{"url": {"Missing value"}}}

	x := NewExecutor(f, discard)
	ids, failures, err := x.Apply(context.Background(), DatasetRef{ID: "pkg", Name: "pkg"}, []models.Action{
		{Kind: models.ActionCreate, Name: "c.csv", New: fileResource("c.csv", "3")},
		{Kind: models.ActionCreate, Name: "b.csv", New: fileResource("b.csv", "2")},
		{Kind: models.ActionCreate, Name: "a.csv", New: fileResource("a.csv", "1")},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"res-1", "res-2"}, ids)
	assert.Equal(t, []string{"a.csv", "c.csv"}, f.resourceNames("pkg"))

	require.Len(t, failures, 1)
	assert.Equal(t, "b.csv", failures[0].Resource)
	assert.Equal(t, models.ActionCreate, failures[0].Kind)
	assert.Equal(t,
		"Error while handling action create for resource b.csv in pkg pkg: url: Missing value",
		failures[0].Error())
	var verr *ckan.ValidationError
	assert.ErrorAs(t, failures[0], &verr)
}

func TestApplyUpdateKeepsStoredFields(t *testing.T) {
	f := newFakePlatform()
	seedPackage(f, "pkg", map[string]any{
		"id": "r1", "name": "a.csv", "description": "alt", "format": "CSV", "zh_hash": "old", "position": 0, "custom": "kept",
	})

	old := ckan.ResourceFromFields(f.res["pkg"][0])
	fresh := fileResource("a.csv", "new")
	fresh.Description = "neu"

	x := NewExecutor(f, discard)
	ids, failures, err := x.Apply(context.Background(), DatasetRef{ID: "pkg", Name: "pkg"}, []models.Action{
		{Kind: models.ActionUpdate, Name: "a.csv", New: fresh, Old: &old},
	})
	require.NoError(t, err)
	assert.Empty(t, failures)
	assert.Equal(t, []string{"r1"}, ids)

	r := f.res["pkg"][0]
	assert.Equal(t, "kept", r["custom"])
	assert.Equal(t, "neu", r["description"])
	assert.Equal(t, "csv", r["format"])
	assert.Equal(t, "new", r["zh_hash"])
	assert.Equal(t, "http://ckan.test/download/a.csv", r["url"])
}

func TestApplyUpdateLink(t *testing.T) {
	f := newFakePlatform()
	seedPackage(f, "pkg", map[string]any{"id": "r1", "name": "WMS", "url": "https://old.example", "resource_type": "api"})
	old := ckan.ResourceFromFields(f.res["pkg"][0])

	x := NewExecutor(f, discard)
	_, failures, err := x.Apply(context.Background(), DatasetRef{ID: "pkg", Name: "pkg"}, []models.Action{{
		Kind: models.ActionUpdate,
		Name: "WMS",
		New:  &models.Resource{Kind: models.KindLink, Name: "WMS", URL: "https://new.example", Format: "WMS"},
		Old:  &old,
	}})
	require.NoError(t, err)
	assert.Empty(t, failures)
	assert.Equal(t, "https://new.example", f.res["pkg"][0]["url"])
}

func TestApplyDeleteClearsUploadFirst(t *testing.T) {
	f := newFakePlatform()
	seedPackage(f, "pkg",
		map[string]any{"id": "r2", "name": "weg.csv"},
		map[string]any{"id": "r1", "name": "auch-weg.csv"},
	)
	r1 := ckan.ResourceFromFields(f.res["pkg"][1])
	r2 := ckan.ResourceFromFields(f.res["pkg"][0])

	x := NewExecutor(f, discard)
	ids, failures, err := x.Apply(context.Background(), DatasetRef{ID: "pkg", Name: "pkg"}, []models.Action{
		{Kind: models.ActionDelete, Name: "weg.csv", Old: &r2},
		{Kind: models.ActionDelete, Name: "auch-weg.csv", Old: &r1},
	})
	require.NoError(t, err)
	assert.Empty(t, failures)
	assert.Empty(t, ids)
	assert.Empty(t, f.res["pkg"])
	assert.Equal(t, []string{"resource_update", "resource_delete", "resource_update", "resource_delete"}, f.calls)
}

func TestApplyDeleteFailureLeavesResource(t *testing.T) {
	f := newFakePlatform()
	seedPackage(f, "pkg", map[string]any{"id": "r1", "name": "bleibt.csv"})
	f.failResource["bleibt.csv"] = &ckan.APIError{Action: "resource_update", StatusCode: 500, Message: "boom"}
	old := ckan.ResourceFromFields(f.res["pkg"][0])

	x := NewExecutor(f, discard)
	_, failures, err := x.Apply(context.Background(), DatasetRef{ID: "pkg", Name: "pkg"}, []models.Action{
		{Kind: models.ActionDelete, Name: "bleibt.csv", Old: &old},
	})
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, models.ActionDelete, failures[0].Kind)
	assert.Equal(t, 0, f.count("resource_delete"))
	assert.Len(t, f.res["pkg"], 1)
}

func TestApplyUnknownAction(t *testing.T) {
	f := newFakePlatform()
	seedPackage(f, "pkg")

	x := NewExecutor(f, discard)
	_, _, err := x.Apply(context.Background(), DatasetRef{ID: "pkg", Name: "pkg"}, []models.Action{
		{Kind: "rename", Name: "a.csv", New: fileResource("a.csv", "1")},
	})
	assert.ErrorIs(t, err, ErrUnknownAction)
}
