package metrics

import (
	"testing"
	"time"

	"github.com/raphaelgruber/stadtzhharvest-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorSnapshot(t *testing.T) {
	c := NewCollector()
	c.RecordTiming(CatalogOp("package_show"), 10*time.Millisecond)
	c.RecordTiming(CatalogOp("package_show"), 30*time.Millisecond)
	c.RecordTiming(OpImport, 5*time.Millisecond)
	c.RecordOutcome(models.OutcomeAdded)
	c.RecordOutcome(models.OutcomeErrored)

	snap := c.Snapshot()
	require.Len(t, snap.Operations, 2)

	show := snap.Operations[0]
	assert.Equal(t, "ckan.package_show", show.Name)
	assert.Equal(t, int64(2), show.Count)
	assert.Equal(t, int64(40), show.TotalTimeMs)
	assert.Equal(t, 20.0, show.AvgTimeMs)
	assert.Equal(t, int64(10), show.MinTimeMs)
	assert.Equal(t, int64(30), show.MaxTimeMs)

	assert.Equal(t, OpImport, snap.Operations[1].Name)
	assert.Equal(t, models.RunStats{Added: 1, Errored: 1}, snap.Outcomes)
}
