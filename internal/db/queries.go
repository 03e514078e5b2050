package db

import (
	"context"
	"fmt"
	"time"

	"github.com/raphaelgruber/stadtzhharvest-go/internal/models"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/store"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

var _ store.Store = (*Client)(nil)

// jobRow is a harvest_job record as stored.
type jobRow struct {
	ID          surrealmodels.RecordID `json:"id"`
	Source      string                 `json:"source"`
	Status      string                 `json:"status"`
	CreatedBy   *string                `json:"created_by,omitempty"`
	Total       int                    `json:"total"`
	Progress    int                    `json:"progress"`
	Stats       models.RunStats        `json:"stats"`
	Error       *string                `json:"error,omitempty"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

func (r jobRow) toModel() (models.HarvestJob, error) {
	id, err := models.RecordIDString(r.ID)
	if err != nil {
		return models.HarvestJob{}, err
	}
	job := models.HarvestJob{
		ID:          id,
		Source:      r.Source,
		Status:      r.Status,
		Total:       r.Total,
		Progress:    r.Progress,
		Stats:       r.Stats,
		Error:       r.Error,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
	}
	if r.CreatedBy != nil {
		job.CreatedBy = *r.CreatedBy
	}
	return job, nil
}

// objectRow is a harvest_object record as stored.
type objectRow struct {
	ID        surrealmodels.RecordID `json:"id"`
	GUID      string                 `json:"guid"`
	JobID     string                 `json:"job_id"`
	Source    string                 `json:"source"`
	Content   string                 `json:"content"`
	Current   bool                   `json:"current"`
	PackageID *string                `json:"package_id,omitempty"`
	Outcome   *string                `json:"outcome,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

func (r objectRow) toModel() (models.HarvestObject, error) {
	id, err := models.RecordIDString(r.ID)
	if err != nil {
		return models.HarvestObject{}, err
	}
	obj := models.HarvestObject{
		ID:        id,
		GUID:      r.GUID,
		JobID:     r.JobID,
		Source:    r.Source,
		Content:   r.Content,
		Current:   r.Current,
		CreatedAt: r.CreatedAt,
	}
	if r.PackageID != nil {
		obj.PackageID = *r.PackageID
	}
	if r.Outcome != nil {
		obj.Outcome = models.Outcome(*r.Outcome)
	}
	return obj, nil
}

// optional maps "" to NONE.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// =============================================================================
// JOBS
// =============================================================================

// SaveJob creates or replaces a harvest job.
func (c *Client) SaveJob(ctx context.Context, job models.HarvestJob) error {
	var completed *string
	if job.CompletedAt != nil {
		s := job.CompletedAt.UTC().Format(time.RFC3339Nano)
		completed = &s
	}

	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("harvest_job", $id) SET
			source = $source,
			status = $status,
			created_by = $created_by,
			total = $total,
			progress = $progress,
			stats = $stats,
			error = $error,
			started_at = type::datetime($started_at),
			completed_at = IF $completed_at THEN type::datetime($completed_at) ELSE NONE END
	`, map[string]any{
		"id":         job.ID,
		"source":     job.Source,
		"status":     job.Status,
		"created_by": optional(job.CreatedBy),
		"total":      job.Total,
		"progress":   job.Progress,
		"stats": map[string]any{
			"added":        job.Stats.Added,
			"updated":      job.Stats.Updated,
			"deleted":      job.Stats.Deleted,
			"errored":      job.Stats.Errored,
			"not_modified": job.Stats.NotModified,
		},
		"error":        job.Error,
		"started_at":   job.StartedAt.UTC().Format(time.RFC3339Nano),
		"completed_at": completed,
	})
	if err != nil {
		return fmt.Errorf("save job: %w", wrapQueryError(err))
	}
	return nil
}

// GetJob retrieves a harvest job by ID.
// Returns nil if not found.
func (c *Client) GetJob(ctx context.Context, id string) (*models.HarvestJob, error) {
	results, err := surrealdb.Query[[]jobRow](ctx, c.db, `
		SELECT * FROM type::record("harvest_job", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	job, err := (*results)[0].Result[0].toModel()
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

// ListJobs returns the most recently started jobs.
func (c *Client) ListJobs(ctx context.Context, limit int) ([]models.HarvestJob, error) {
	results, err := surrealdb.Query[[]jobRow](ctx, c.db, `
		SELECT * FROM harvest_job ORDER BY started_at DESC LIMIT $limit
	`, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	jobs := []models.HarvestJob{}
	if results == nil || len(*results) == 0 {
		return jobs, nil
	}
	for _, r := range (*results)[0].Result {
		job, err := r.toModel()
		if err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// =============================================================================
// OBJECTS
// =============================================================================

// SaveObject creates or replaces a harvest record. The creation time is set
// once.
func (c *Client) SaveObject(ctx context.Context, obj models.HarvestObject) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("harvest_object", $id) SET
			guid = $guid,
			job_id = $job_id,
			source = $source,
			content = $content,
			current = $current,
			package_id = $package_id,
			outcome = $outcome,
			created_at = IF created_at THEN created_at ELSE time::now() END
	`, map[string]any{
		"id":         obj.ID,
		"guid":       obj.GUID,
		"job_id":     obj.JobID,
		"source":     obj.Source,
		"content":    obj.Content,
		"current":    obj.Current,
		"package_id": optional(obj.PackageID),
		"outcome":    optional(string(obj.Outcome)),
	})
	if err != nil {
		return fmt.Errorf("save object: %w", wrapQueryError(err))
	}
	return nil
}

// GetObject retrieves a harvest record by ID.
// Returns nil if not found.
func (c *Client) GetObject(ctx context.Context, id string) (*models.HarvestObject, error) {
	return c.queryOneObject(ctx, `SELECT * FROM type::record("harvest_object", $id)`, map[string]any{"id": id})
}

// CurrentObject returns the current record of a dataset.
// Returns nil if there is none.
func (c *Client) CurrentObject(ctx context.Context, guid string) (*models.HarvestObject, error) {
	return c.queryOneObject(ctx, `
		SELECT * FROM harvest_object WHERE guid = $guid AND current = true LIMIT 1
	`, map[string]any{"guid": guid})
}

func (c *Client) queryOneObject(ctx context.Context, sql string, vars map[string]any) (*models.HarvestObject, error) {
	results, err := surrealdb.Query[[]objectRow](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	obj, err := (*results)[0].Result[0].toModel()
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	return &obj, nil
}

// ListObjects returns the records of a job ordered by guid.
func (c *Client) ListObjects(ctx context.Context, jobID string) ([]models.HarvestObject, error) {
	results, err := surrealdb.Query[[]objectRow](ctx, c.db, `
		SELECT * FROM harvest_object WHERE job_id = $job_id ORDER BY guid
	`, map[string]any{"job_id": jobID})
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}

	objs := []models.HarvestObject{}
	if results == nil || len(*results) == 0 {
		return objs, nil
	}
	for _, r := range (*results)[0].Result {
		obj, err := r.toModel()
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		objs = append(objs, obj)
	}
	return objs, nil
}

// MarkCurrent makes objectID the current record of guid in one transaction.
// Conflicting transactions are retried.
func (c *Client) MarkCurrent(ctx context.Context, objectID, guid, packageID string) error {
	err := retryConflicts(ctx, func() error {
		_, err := surrealdb.Query[any](ctx, c.db, `
		BEGIN TRANSACTION;
		UPDATE harvest_object SET current = false
			WHERE guid = $guid AND current = true AND id != type::record("harvest_object", $id);
		UPDATE type::record("harvest_object", $id) SET
			current = true,
			package_id = $package_id;
		COMMIT TRANSACTION;
	`, map[string]any{
			"id":         objectID,
			"guid":       guid,
			"package_id": optional(packageID),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("mark current: %w", err)
	}
	return nil
}

// SetNotCurrent clears the current flag of a record.
func (c *Client) SetNotCurrent(ctx context.Context, objectID string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("harvest_object", $id) SET current = false
	`, map[string]any{"id": objectID})
	if err != nil {
		return fmt.Errorf("set not current: %w", wrapQueryError(err))
	}
	return nil
}

// =============================================================================
// ERRORS
// =============================================================================

// AddError records a gather or object error.
func (c *Client) AddError(ctx context.Context, e models.HarvestError) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE harvest_error SET
			job_id = $job_id,
			object_id = $object_id,
			stage = $stage,
			message = $message,
			created_at = time::now()
	`, map[string]any{
		"job_id":    e.JobID,
		"object_id": optional(e.ObjectID),
		"stage":     e.Stage,
		"message":   e.Message,
	})
	if err != nil {
		return fmt.Errorf("add error: %w", err)
	}
	return nil
}

// ListErrors returns the errors of a job in the order they were recorded.
func (c *Client) ListErrors(ctx context.Context, jobID string) ([]models.HarvestError, error) {
	results, err := surrealdb.Query[[]models.HarvestError](ctx, c.db, `
		SELECT job_id, object_id, stage, message, created_at
		FROM harvest_error WHERE job_id = $job_id ORDER BY created_at
	`, map[string]any{"job_id": jobID})
	if err != nil {
		return nil, fmt.Errorf("list errors: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.HarvestError{}, nil
	}
	return (*results)[0].Result, nil
}
