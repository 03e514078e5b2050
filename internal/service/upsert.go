package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/ckan"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/config"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/models"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/reconcile"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/source"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/store"
)

// Owning organization of every harvested dataset.
const (
	OrganizationTitle = "Stadt Zürich"
	dateStampLayout   = "02.01.2006"
)

// ExecutionContext carries everything an import needs besides the record.
type ExecutionContext struct {
	SiteUser string
	// Schema is the catalog dataset type.
	Schema   string
	SourceID string
	Config   config.SourceConfig
	Now      func() time.Time
}

func (ec ExecutionContext) now() time.Time {
	if ec.Now == nil {
		return time.Now()
	}
	return ec.Now()
}

// UpsertController creates or updates one catalog dataset from a harvest
// record and converges its resources.
type UpsertController struct {
	reader   source.Reader
	platform ckan.Platform
	store    store.Store
	exec     *Executor
	logger   *slog.Logger
	newID    func() string
}

// NewUpsertController creates a controller reading resources through
// reader and writing to platform.
func NewUpsertController(reader source.Reader, platform ckan.Platform, st store.Store, logger *slog.Logger) *UpsertController {
	return &UpsertController{
		reader:   reader,
		platform: platform,
		store:    st,
		exec:     NewExecutor(platform, logger),
		logger:   logger,
		newID:    uuid.NewString,
	}
}

// importRun collects the object errors of one import.
type importRun struct {
	ec     ExecutionContext
	obj    models.HarvestObject
	errors int
}

// fail records an object error on the record.
func (u *UpsertController) fail(ctx context.Context, run *importRun, msg string) {
	run.errors++
	u.logger.Warn("import error", "guid", run.obj.GUID, "error", msg)
	err := u.store.AddError(ctx, models.HarvestError{
		JobID:    run.obj.JobID,
		ObjectID: run.obj.ID,
		Stage:    models.StageImport,
		Message:  msg,
	})
	if err != nil {
		u.logger.Error("failed to record object error", "guid", run.obj.GUID, "error", err)
	}
}

// Import applies one harvest record to the catalog. Failures that concern
// only this dataset are recorded on the record and reported through the
// errored outcome; the returned error is reserved for store failures and
// cancellation.
func (u *UpsertController) Import(ctx context.Context, ec ExecutionContext, obj models.HarvestObject) (models.Outcome, error) {
	run := &importRun{ec: ec, obj: obj}

	var meta models.DatasetMetadata
	if err := json.Unmarshal([]byte(obj.Content), &meta); err != nil {
		u.fail(ctx, run, fmt.Sprintf("Unable to get content for package: %s: %v", obj.GUID, err))
		return models.OutcomeErrored, nil
	}

	if meta.IsTombstone() {
		return u.purge(ctx, run, meta)
	}

	outcome, err := u.upsert(ctx, run, meta)
	if err != nil {
		return models.OutcomeErrored, err
	}
	if run.errors > 0 {
		return models.OutcomeErrored, nil
	}
	return outcome, nil
}

func (u *UpsertController) purge(ctx context.Context, run *importRun, meta models.DatasetMetadata) (models.Outcome, error) {
	cur, err := u.store.CurrentObject(ctx, run.obj.GUID)
	if err != nil {
		return models.OutcomeErrored, fmt.Errorf("find current record: %w", err)
	}
	if cur != nil {
		if err := u.store.SetNotCurrent(ctx, cur.ID); err != nil {
			return models.OutcomeErrored, fmt.Errorf("flag record: %w", err)
		}
	}
	name := models.MungeName(meta.DatasetID)
	err = u.platform.DatasetPurge(ctx, name)
	if err != nil && !errors.Is(err, ckan.ErrNotFound) {
		u.fail(ctx, run, fmt.Sprintf("Unable to delete package %s: %s", name, ckan.ErrorSummary(err)))
		return models.OutcomeErrored, nil
	}
	u.logger.Info("dataset purged", "dataset", name)
	return models.OutcomeDeleted, nil
}

func (u *UpsertController) upsert(ctx context.Context, run *importRun, meta models.DatasetMetadata) (models.Outcome, error) {
	name := models.MungeName(meta.DatasetID)

	existing, err := u.platform.PackageShow(ctx, run.obj.GUID)
	switch {
	case errors.Is(err, ckan.ErrNotFound):
		existing = nil
		u.logger.Debug("could not find package", "dataset", name)
	case err != nil:
		u.fail(ctx, run, fmt.Sprintf("Unable to get content for package: %s: %s", run.obj.GUID, ckan.ErrorSummary(err)))
		return models.OutcomeErrored, nil
	}

	managed := true
	fresh, err := u.reader.Resources(ctx, meta)
	switch {
	case errors.Is(err, source.ErrResourcesUnmanaged):
		managed = false
	case err != nil:
		u.fail(ctx, run, fmt.Sprintf("Unable to read resources of %s: %v", name, err))
		return models.OutcomeErrored, nil
	}
	applyOverrides(fresh, meta.ResourceMetadata)

	var plan reconcile.Plan
	if managed {
		var old []models.Resource
		if existing != nil {
			old = existing.Resources
		}
		plan, err = reconcile.Reconcile(old, existing != nil, fresh)
		if err != nil {
			u.fail(ctx, run, fmt.Sprintf("Unable to reconcile resources of %s: %v", name, err))
			return models.OutcomeErrored, nil
		}
	}

	fields := packageFields(run.ec, meta)
	if existing != nil {
		fields["resources"] = resourceFields(existing.Resources)
	}
	if err := u.resolveOwners(ctx, fields, meta.Groups); err != nil {
		u.fail(ctx, run, fmt.Sprintf("Unable to resolve organization or groups for %s: %s", name, ckan.ErrorSummary(err)))
		return models.OutcomeErrored, nil
	}

	outcome := models.OutcomeUpdated
	ref := DatasetRef{Name: name}
	if existing == nil {
		ref.ID = u.newID()
		fields["id"] = ref.ID
		fields["name"] = name
		if err := u.store.MarkCurrent(ctx, run.obj.ID, run.obj.GUID, ref.ID); err != nil {
			return models.OutcomeErrored, fmt.Errorf("mark record current: %w", err)
		}
		if _, err := u.platform.PackageCreate(ctx, fields); err != nil {
			u.fail(ctx, run, "Create validation Error: "+ckan.ErrorSummary(err))
			return models.OutcomeErrored, nil
		}
		u.logger.Info("created dataset", "dataset", name, "id", ref.ID)
		outcome = models.OutcomeAdded
	} else {
		ref = DatasetRef{ID: existing.ID, Name: existing.Name}
		fields["id"] = existing.ID
		fields["name"] = existing.Name
		if err := u.store.MarkCurrent(ctx, run.obj.ID, run.obj.GUID, ref.ID); err != nil {
			return models.OutcomeErrored, fmt.Errorf("mark record current: %w", err)
		}
		if run.ec.Config.UpdateDatasets {
			if _, err := u.platform.PackageUpdate(ctx, fields); err != nil {
				u.fail(ctx, run, "Update validation Error: "+ckan.ErrorSummary(err))
			} else {
				u.logger.Info("updated dataset", "dataset", ref.Name)
			}
		} else {
			u.logger.Info("dataset not updated because update_datasets is false", "dataset", ref.Name)
		}
	}

	if !managed {
		return settle(outcome, run.ec, plan), nil
	}

	ids, failures, err := u.exec.Apply(ctx, ref, plan.Actions)
	if errors.Is(err, ErrUnknownAction) {
		u.fail(ctx, run, err.Error())
		return models.OutcomeErrored, nil
	}
	if err != nil {
		return models.OutcomeErrored, err
	}
	for _, f := range failures {
		u.fail(ctx, run, f.Error())
	}

	var old []models.Resource
	if existing != nil {
		old = existing.Resources
	}
	if order := reconcile.KeepExistingOrder(old, ids); len(order) > 0 {
		if err := u.platform.PackageResourceReorder(ctx, ref.ID, order); err != nil {
			u.fail(ctx, run, fmt.Sprintf("Unable to reorder resources of %s: %s", ref.Name, ckan.ErrorSummary(err)))
		}
	}

	if run.ec.Config.UpdateDateLastModified && plan.Changed {
		today := run.ec.now().Format(dateStampLayout)
		_, err := u.platform.PackagePatch(ctx, map[string]any{"id": ref.ID, "dateLastUpdated": today})
		if err != nil {
			u.fail(ctx, run, "Update validation Error: "+ckan.ErrorSummary(err))
		} else {
			u.logger.Info("updated dateLastUpdated", "dataset", ref.Name, "date", today)
		}
	}

	return settle(outcome, run.ec, plan), nil
}

// settle reports an update that neither touched the package nor added,
// removed or changed resources as not modified.
func settle(outcome models.Outcome, ec ExecutionContext, plan reconcile.Plan) models.Outcome {
	if outcome == models.OutcomeUpdated && !ec.Config.UpdateDatasets && !plan.Changed &&
		plan.Count(models.ActionCreate) == 0 && plan.Count(models.ActionDelete) == 0 {
		return models.OutcomeNotModified
	}
	return outcome
}

// resolveOwners finds or creates the owning organization and the groups and
// puts their references into fields.
func (u *UpsertController) resolveOwners(ctx context.Context, fields map[string]any, groups []models.GroupRef) error {
	orgName := models.MungeName(OrganizationTitle)
	org, found, err := u.platform.OrganizationShow(ctx, orgName)
	if err != nil {
		return err
	}
	if !found {
		org, err = u.platform.OrganizationCreate(ctx, ckan.Organization{Name: orgName, Title: OrganizationTitle})
		if err != nil {
			return err
		}
		u.logger.Info("created organization", "name", org.Name)
	}
	fields["owner_org"] = org.ID

	if len(groups) == 0 {
		return nil
	}
	refs := make([]map[string]any, 0, len(groups))
	for _, g := range groups {
		_, found, err := u.platform.GroupShow(ctx, g.Name)
		if err != nil {
			return err
		}
		if !found {
			if _, err := u.platform.GroupCreate(ctx, ckan.Group{Name: g.Name, Title: g.Title}); err != nil {
				return err
			}
			u.logger.Info("created group", "name", g.Name)
		}
		refs = append(refs, map[string]any{"name": g.Name})
	}
	fields["groups"] = refs
	return nil
}

// applyOverrides merges the per-resource fields of the metadata document.
// A listed resource without description gets an empty one.
func applyOverrides(resources []models.Resource, overrides map[string]models.ResourceOverride) {
	for i := range resources {
		if o, ok := overrides[resources[i].Name]; ok {
			resources[i].Description = o.Description
		}
	}
}

// packageFields builds the package_create/package_update payload.
func packageFields(ec ExecutionContext, meta models.DatasetMetadata) map[string]any {
	var fields map[string]any
	if meta.Passthrough != nil {
		fields = maps.Clone(meta.Passthrough)
	} else {
		tags := make([]map[string]any, 0, len(meta.Tags))
		for _, t := range meta.Tags {
			tags = append(tags, map[string]any{"name": t.Name})
		}
		fields = map[string]any{
			"title":               meta.Title,
			"url":                 meta.URL,
			"notes":               meta.Notes,
			"author":              meta.Author,
			"maintainer":          meta.Maintainer,
			"maintainer_email":    meta.MaintainerEmail,
			"license_id":          meta.LicenseID,
			"tags":                tags,
			"spatialRelationship": meta.SpatialRelationship,
			"dateFirstPublished":  meta.DateFirstPublished,
			"dateLastUpdated":     meta.DateLastUpdated,
			"updateInterval":      meta.UpdateInterval,
			"dataType":            meta.DataType,
			"legalInformation":    meta.LegalInformation,
			"version":             meta.Version,
			"timeRange":           meta.TimeRange,
			"sszBemerkungen":      meta.Comments,
			"sszFields":           meta.AttributesJSON(),
			"dataQuality":         meta.DataQuality,
		}
	}
	if ec.Schema != "" {
		fields["type"] = ec.Schema
	}
	fields["harvest_source_id"] = ec.SourceID
	return fields
}

func resourceFields(resources []models.Resource) []map[string]any {
	out := make([]map[string]any, 0, len(resources))
	for _, r := range resources {
		out = append(out, r.Extra)
	}
	return out
}
