package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/raphaelgruber/stadtzhharvest-go/internal/ckan"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/models"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/reconcile"
)

// ErrUnknownAction means a plan contained an action kind the executor cannot
// handle. It aborts the dataset.
var ErrUnknownAction = errors.New("unknown resource action")

// DatasetRef identifies the catalog dataset resources are written to.
type DatasetRef struct {
	ID   string
	Name string
}

// ActionError is a failed resource action. Other actions of the same batch
// still run.
type ActionError struct {
	Package  string
	Resource string
	Kind     models.ActionKind
	Err      error
}

func (e ActionError) Error() string {
	return fmt.Sprintf("Error while handling action %s for resource %s in pkg %s: %s",
		e.Kind, e.Resource, e.Package, ckan.ErrorSummary(e.Err))
}

func (e ActionError) Unwrap() error {
	return e.Err
}

// Executor applies reconciliation actions to the catalog.
type Executor struct {
	platform ckan.Platform
	logger   *slog.Logger
}

// NewExecutor creates an executor writing to platform.
func NewExecutor(platform ckan.Platform, logger *slog.Logger) *Executor {
	return &Executor{platform: platform, logger: logger}
}

// Apply runs the actions sorted by SortActions. It returns the IDs of
// created and updated resources in execution order and one ActionError per
// failed action. Only ErrUnknownAction is returned as error.
func (x *Executor) Apply(ctx context.Context, pkg DatasetRef, actions []models.Action) ([]string, []ActionError, error) {
	sorted := slices.Clone(actions)
	reconcile.SortActions(sorted)

	var ids []string
	var failures []ActionError
	for _, a := range sorted {
		if err := ctx.Err(); err != nil {
			return ids, failures, err
		}

		var id string
		var err error
		switch a.Kind {
		case models.ActionCreate:
			fields, upload := createFields(pkg.ID, *a.New)
			id, err = x.platform.ResourceCreate(ctx, fields, upload)
		case models.ActionUpdate:
			fields, upload := updateFields(pkg.ID, *a.New, *a.Old)
			id, err = x.platform.ResourceUpdate(ctx, fields, upload)
		case models.ActionDelete:
			err = x.delete(ctx, *a.Old)
		default:
			return ids, failures, fmt.Errorf("%w: %q for resource %s", ErrUnknownAction, a.Kind, a.Name)
		}

		if err != nil {
			x.logger.Warn("resource action failed", "dataset", pkg.Name, "resource", a.Name, "action", a.Kind, "error", err)
			failures = append(failures, ActionError{Package: pkg.Name, Resource: a.Name, Kind: a.Kind, Err: err})
			continue
		}
		x.logger.Debug("resource action done", "dataset", pkg.Name, "resource", a.Name, "action", a.Kind, "id", id)
		if a.Kind != models.ActionDelete && id != "" {
			ids = append(ids, id)
		}
	}
	return ids, failures, nil
}

// delete points the resource at the file-not-found page and drops its
// upload before removing it.
func (x *Executor) delete(ctx context.Context, old models.Resource) error {
	_, err := x.platform.ResourceUpdate(ctx, map[string]any{
		"id":           old.ID,
		"url":          ckan.FileNotFoundURL,
		"clear_upload": "true",
	}, nil)
	if err != nil {
		return err
	}
	return x.platform.ResourceDelete(ctx, old.ID)
}

func createFields(packageID string, r models.Resource) (map[string]any, *ckan.Upload) {
	fields := map[string]any{
		"package_id":    packageID,
		"name":          r.Name,
		"description":   r.Description,
		"format":        r.Format,
		"zh_hash":       r.Fingerprint,
		"resource_type": string(r.Kind),
		"url":           r.URL,
	}
	if r.IsFile() {
		fields["url"] = ""
		fields["url_type"] = "upload"
		return fields, &ckan.Upload{Name: r.Name, Path: r.Path}
	}
	return fields, nil
}

// updateFields starts from everything the catalog stores for old and
// replaces the content-derived fields with the fresh values.
func updateFields(packageID string, fresh, old models.Resource) (map[string]any, *ckan.Upload) {
	fields := maps.Clone(old.Extra)
	if fields == nil {
		fields = map[string]any{}
	}
	fields["id"] = old.ID
	fields["package_id"] = packageID
	fields["description"] = fresh.Description
	fields["format"] = fresh.Format
	fields["zh_hash"] = fresh.Fingerprint

	if fresh.IsFile() && fresh.Path != "" {
		return fields, &ckan.Upload{Name: fresh.Name, Path: fresh.Path}
	}
	if fresh.Kind == models.KindLink {
		fields["url"] = fresh.URL
	}
	return fields, nil
}
