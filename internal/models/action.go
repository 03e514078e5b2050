package models

// ActionKind is the operation the executor performs for one resource.
type ActionKind string

const (
	ActionCreate ActionKind = "create"
	ActionUpdate ActionKind = "update"
	ActionDelete ActionKind = "delete"
)

// Action is one reconciliation step keyed by resource name.
// Create carries New, Delete carries Old, Update carries both.
type Action struct {
	Kind ActionKind
	Name string
	New  *Resource
	Old  *Resource
}
