// Package store defines persistence of harvest jobs, harvest records and
// their errors.
package store

import (
	"context"

	"github.com/raphaelgruber/stadtzhharvest-go/internal/models"
)

// Store persists harvest bookkeeping. Get methods return nil without an
// error when the record does not exist.
type Store interface {
	SaveJob(ctx context.Context, job models.HarvestJob) error
	GetJob(ctx context.Context, id string) (*models.HarvestJob, error)
	// ListJobs returns the most recent jobs first.
	ListJobs(ctx context.Context, limit int) ([]models.HarvestJob, error)

	SaveObject(ctx context.Context, obj models.HarvestObject) error
	GetObject(ctx context.Context, id string) (*models.HarvestObject, error)
	ListObjects(ctx context.Context, jobID string) ([]models.HarvestObject, error)
	// CurrentObject returns the record currently backing the dataset guid.
	CurrentObject(ctx context.Context, guid string) (*models.HarvestObject, error)
	// MarkCurrent flags the previous current record of guid as not current
	// and makes objectID the current one, referencing packageID. Both
	// changes are stored together.
	MarkCurrent(ctx context.Context, objectID, guid, packageID string) error
	SetNotCurrent(ctx context.Context, objectID string) error

	AddError(ctx context.Context, e models.HarvestError) error
	ListErrors(ctx context.Context, jobID string) ([]models.HarvestError, error)

	Close(ctx context.Context) error
}
