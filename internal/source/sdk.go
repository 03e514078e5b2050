package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/raphaelgruber/stadtzhharvest-go/internal/models"
)

// SDKExport reads datasets from the JSON export of the statistics data
// platform. Records are passed through to the catalog unchanged apart from
// the generated name.
type SDKExport struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ Reader = (*SDKExport)(nil)

// NewSDKExport creates a reader for the export at url.
func NewSDKExport(url string, logger *slog.Logger) *SDKExport {
	return &SDKExport{
		url:        strings.TrimRight(url, "/"),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		logger:     logger,
	}
}

// Gather downloads the export and names each record after its title.
func (s *SDKExport) Gather(ctx context.Context) (GatherResult, error) {
	var res GatherResult

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return res, fmt.Errorf("create request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return res, fmt.Errorf("get source url %s: %w", s.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return res, fmt.Errorf("got error from source url %s: %s", s.url, resp.Status)
	}

	var records []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return res, fmt.Errorf("couldn't decode JSON from source url %s: %w", s.url, err)
	}

	for _, rec := range records {
		title, _ := rec["title"].(string)
		name := strings.Trim(models.MungeName(title), "-")
		rec["name"] = name

		s.logger.Debug("gathering dataset", "dataset", name)
		res.Seen = append(res.Seen, name)
		res.Datasets = append(res.Datasets, models.DatasetMetadata{
			DatasetID:   name,
			Name:        name,
			Title:       title,
			Passthrough: rec,
		})
	}
	return res, nil
}

// Resources is not supported: export records carry no managed resources.
func (s *SDKExport) Resources(context.Context, models.DatasetMetadata) ([]models.Resource, error) {
	return nil, ErrResourcesUnmanaged
}
