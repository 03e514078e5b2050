package reconcile

import (
	"slices"
	"strings"

	"github.com/raphaelgruber/stadtzhharvest-go/internal/models"
)

// formatPriority ranks resource formats for SortNewResources.
var formatPriority = map[string]int{
	"csv":  0,
	"shp":  1,
	"wms":  2,
	"wmts": 3,
	"wfs":  4,
	"json": 5,
	"kmz":  6,
	"kml":  7,
	"pkgk": 8,
	"gpkg": 9,
	"swp":  10,
	"zip":  11,
	"txt":  12,
	"xlsx": 13,
	"pdf":  14,
}

// SortNewResources orders resources by format priority in place.
// Unknown formats go last, ties keep their input order. SortActions runs
// afterwards and is stable, so this order survives only between names that
// are equal once lower-cased.
func SortNewResources(resources []models.Resource) {
	slices.SortStableFunc(resources, func(a, b models.Resource) int {
		return formatRank(a) - formatRank(b)
	})
}

func formatRank(r models.Resource) int {
	if rank, ok := formatPriority[r.FormatKey()]; ok {
		return rank
	}
	return len(formatPriority)
}

// SortActions puts Create and Update actions first, ordered by lower-cased
// resource name so resource numbering is reproducible across runs.
// Delete actions follow, ordered by resource ID.
func SortActions(actions []models.Action) {
	slices.SortStableFunc(actions, func(a, b models.Action) int {
		return strings.Compare(actionKey(a), actionKey(b))
	})
}

func actionKey(a models.Action) string {
	if a.New != nil {
		return "0" + strings.ToLower(a.New.Name)
	}
	return "1" + a.Old.ID
}

// KeepExistingOrder returns ids so that resources which already existed
// keep their prior relative order and new ones are appended in the order
// they were created.
func KeepExistingOrder(existing []models.Resource, ids []string) []string {
	kept := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		kept[id] = struct{}{}
	}

	ordered := make([]string, 0, len(ids))
	placed := make(map[string]struct{}, len(ids))
	for _, r := range existing {
		if _, ok := kept[r.ID]; !ok {
			continue
		}
		if _, dup := placed[r.ID]; dup {
			continue
		}
		ordered = append(ordered, r.ID)
		placed[r.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := placed[id]; ok {
			continue
		}
		ordered = append(ordered, id)
		placed[id] = struct{}{}
	}
	return ordered
}
