package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/ckan"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/config"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/models"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/source"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/store"
)

// searchPageSize is the page size used to list the datasets of a source.
const searchPageSize = 500

// Harvester runs the gather, fetch and import stages of one source.
type Harvester struct {
	source   config.Source
	reader   source.Reader
	platform ckan.Platform
	store    store.Store
	upsert   *UpsertController
	logger   *slog.Logger
}

// NewHarvester wires a harvester for src.
func NewHarvester(src config.Source, reader source.Reader, platform ckan.Platform, st store.Store, logger *slog.Logger) *Harvester {
	logger = logger.With("source", src.Name)
	return &Harvester{
		source:   src,
		reader:   reader,
		platform: platform,
		store:    st,
		upsert:   NewUpsertController(reader, platform, st, logger),
		logger:   logger,
	}
}

// Source returns the harvested source.
func (h *Harvester) Source() config.Source {
	return h.source
}

func (h *Harvester) gatherError(ctx context.Context, jobID, msg string) {
	err := h.store.AddError(ctx, models.HarvestError{JobID: jobID, Stage: models.StageGather, Message: msg})
	if err != nil {
		h.logger.Error("failed to record gather error", "job_id", jobID, "error", err)
	}
}

// Gather reads the source and queues one harvest record per dataset. When
// missing datasets are to be deleted, datasets of this source that are no
// longer in it get a tombstone record. It returns the IDs of the queued
// records.
func (h *Harvester) Gather(ctx context.Context, ec ExecutionContext, jobID string) ([]string, error) {
	res, err := h.reader.Gather(ctx)
	if err != nil {
		h.gatherError(ctx, jobID, err.Error())
		return nil, fmt.Errorf("gather: %w", err)
	}
	for _, p := range res.Problems {
		h.gatherError(ctx, jobID, p.String())
	}

	var ids []string
	for _, meta := range res.Datasets {
		id, err := h.queue(ctx, ec, jobID, meta)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if !ec.Config.DeleteMissingDatasets {
		h.logger.Info("gather finished", "job_id", jobID, "records", len(ids), "problems", len(res.Problems))
		return ids, nil
	}

	existing, err := h.sourceDatasets(ctx, ec.SourceID)
	if err != nil {
		h.gatherError(ctx, jobID, fmt.Sprintf("Unable to list datasets of source %s: %s", ec.SourceID, ckan.ErrorSummary(err)))
		return nil, fmt.Errorf("list source datasets: %w", err)
	}
	for _, name := range missing(existing, res.Seen) {
		h.logger.Info("dataset has been deleted, queueing for deletion", "dataset", name)
		id, err := h.queue(ctx, ec, jobID, models.DatasetMetadata{
			DatasetID:    name,
			ImportAction: models.ImportActionDelete,
		})
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	h.logger.Info("gather finished", "job_id", jobID, "records", len(ids), "problems", len(res.Problems))
	return ids, nil
}

func (h *Harvester) queue(ctx context.Context, ec ExecutionContext, jobID string, meta models.DatasetMetadata) (string, error) {
	content, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encode dataset %s: %w", meta.DatasetID, err)
	}
	obj := models.HarvestObject{
		ID:      uuid.NewString(),
		GUID:    meta.DatasetID,
		JobID:   jobID,
		Source:  ec.SourceID,
		Content: string(content),
	}
	if err := h.store.SaveObject(ctx, obj); err != nil {
		return "", fmt.Errorf("queue dataset %s: %w", meta.DatasetID, err)
	}
	return obj.ID, nil
}

// sourceDatasets pages through the catalog datasets harvested from
// sourceID and returns their names.
func (h *Harvester) sourceDatasets(ctx context.Context, sourceID string) ([]string, error) {
	fq := fmt.Sprintf("harvest_source_id:%q", sourceID)

	var names []string
	for start := 0; ; start += searchPageSize {
		page, err := h.platform.PackageSearch(ctx, fq, searchPageSize, start)
		if errors.Is(err, ckan.ErrNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(page.Results) == 0 {
			break
		}
		for _, p := range page.Results {
			names = append(names, p.Name)
		}
	}
	return names, nil
}

// missing returns the sorted names in existing that are not in seen.
func missing(existing, seen []string) []string {
	present := make(map[string]struct{}, len(seen))
	for _, n := range seen {
		present[n] = struct{}{}
	}
	var out []string
	for _, n := range existing {
		if _, ok := present[n]; !ok {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Fetch has nothing to do: gather already stores the complete content.
func (h *Harvester) Fetch(context.Context, models.HarvestObject) error {
	return nil
}

// Import applies a queued record and stores its outcome on it.
func (h *Harvester) Import(ctx context.Context, ec ExecutionContext, obj models.HarvestObject) (models.Outcome, error) {
	outcome, err := h.upsert.Import(ctx, ec, obj)
	if err != nil {
		return outcome, err
	}

	// Import may have flipped the current flag, so start from the stored record.
	stored, err := h.store.GetObject(ctx, obj.ID)
	if err != nil {
		return outcome, fmt.Errorf("reload record: %w", err)
	}
	if stored == nil {
		stored = &obj
	}
	stored.Outcome = outcome
	if err := h.store.SaveObject(ctx, *stored); err != nil {
		return outcome, fmt.Errorf("save outcome: %w", err)
	}
	return outcome, nil
}
