// Package reconcile computes the resource actions that converge a catalog
// dataset to its freshly gathered state.
package reconcile

import (
	"fmt"

	"github.com/raphaelgruber/stadtzhharvest-go/internal/models"
)

// Plan is the outcome of a reconciliation.
type Plan struct {
	Actions []models.Action
	// Changed is set when resource content changed: the dataset is new or
	// a matched resource has a different fingerprint.
	Changed bool
}

// Count returns the number of actions of the given kind.
func (p Plan) Count(kind models.ActionKind) int {
	n := 0
	for _, a := range p.Actions {
		if a.Kind == kind {
			n++
		}
	}
	return n
}

// DuplicateResourceError reports a resource name gathered more than once
// for the same dataset.
type DuplicateResourceError struct {
	Name string
}

func (e DuplicateResourceError) Error() string {
	return fmt.Sprintf("duplicate resource name %q", e.Name)
}

// Reconcile matches fresh resources against the existing ones by name.
// found is false when the dataset does not exist in the catalog yet.
//
// Every name in the union of both lists gets exactly one action: Create for
// names only in fresh, Update for names in both, Delete for names only in
// existing. When existing holds the same name more than once, the first
// entry is matched and the other copies are left untouched.
func Reconcile(existing []models.Resource, found bool, fresh []models.Resource) (Plan, error) {
	seen := make(map[string]struct{}, len(fresh))
	for _, r := range fresh {
		if _, dup := seen[r.Name]; dup {
			return Plan{}, DuplicateResourceError{Name: r.Name}
		}
		seen[r.Name] = struct{}{}
	}

	if !found {
		plan := Plan{Changed: true, Actions: make([]models.Action, 0, len(fresh))}
		for i := range fresh {
			plan.Actions = append(plan.Actions, models.Action{
				Kind: models.ActionCreate,
				Name: fresh[i].Name,
				New:  &fresh[i],
			})
		}
		return plan, nil
	}

	byName := make(map[string]*models.Resource, len(existing))
	for i := range existing {
		if _, ok := byName[existing[i].Name]; !ok {
			byName[existing[i].Name] = &existing[i]
		}
	}

	var plan Plan
	for i := range fresh {
		r := &fresh[i]
		old, ok := byName[r.Name]
		if !ok {
			plan.Actions = append(plan.Actions, models.Action{Kind: models.ActionCreate, Name: r.Name, New: r})
			continue
		}
		plan.Actions = append(plan.Actions, models.Action{Kind: models.ActionUpdate, Name: r.Name, New: r, Old: old})
		if fingerprintChanged(*r, *old) {
			plan.Changed = true
		}
	}

	deleted := make(map[string]struct{})
	for i := range existing {
		old := &existing[i]
		if _, ok := seen[old.Name]; ok {
			continue
		}
		if _, ok := deleted[old.Name]; ok {
			continue
		}
		deleted[old.Name] = struct{}{}
		plan.Actions = append(plan.Actions, models.Action{Kind: models.ActionDelete, Name: old.Name, Old: byName[old.Name]})
	}

	return plan, nil
}

// fingerprintChanged ignores resources without a fingerprint on either side.
func fingerprintChanged(fresh, old models.Resource) bool {
	return fresh.Fingerprint != "" && old.Fingerprint != "" && fresh.Fingerprint != old.Fingerprint
}
