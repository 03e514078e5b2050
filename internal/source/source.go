// Package source reads the desired state of datasets from harvest sources:
// the file dropzone and the SDK JSON export.
package source

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/raphaelgruber/stadtzhharvest-go/internal/models"
)

// ErrResourcesUnmanaged is returned by readers whose datasets carry no
// resources of their own. Resource sync is skipped for them.
var ErrResourcesUnmanaged = errors.New("source does not manage resources")

// Reader produces the desired state of a source's datasets.
type Reader interface {
	// Gather lists the datasets of the source.
	Gather(ctx context.Context) (GatherResult, error)
	// Resources lists the desired resources of one gathered dataset.
	Resources(ctx context.Context, meta models.DatasetMetadata) ([]models.Resource, error)
}

// GatherResult is the outcome of reading a source.
type GatherResult struct {
	Datasets []models.DatasetMetadata
	// Seen holds the name of every dataset found in the source, including
	// those whose metadata could not be loaded.
	Seen []string
	// Problems are per-dataset failures that did not stop the run.
	Problems []Problem
}

// Problem is a dataset that could not be read.
type Problem struct {
	DatasetID string
	Path      string
	Err       error
}

func (p Problem) String() string {
	return fmt.Sprintf("Could not parse metadata in %s: %s", p.Path, p.Err)
}

var htmlChars = regexp.MustCompile(`[<>]+`)

// DatasetName turns a prefixed folder name into a catalog name. Names with
// HTML brackets are rejected.
func DatasetName(raw string) (string, bool) {
	if htmlChars.MatchString(raw) {
		return "", false
	}
	return strings.Trim(models.MungeName(raw), "-"), true
}

// ValidFilename reports whether a dropzone file may become a resource.
func ValidFilename(name string) bool {
	return name != "" && !htmlChars.MatchString(name)
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
