package models

import "strings"

// ResourceKind distinguishes uploaded files from link/API resources.
type ResourceKind string

const (
	KindFile ResourceKind = "file"
	KindLink ResourceKind = "api"
)

// Resource describes one resource of a dataset. Name is the join key
// between freshly gathered resources and the ones stored in the catalog.
type Resource struct {
	Kind        ResourceKind
	ID          string
	Name        string
	Description string
	Format      string
	URL         string
	Fingerprint string

	// Path is the payload location of file resources.
	Path string

	// Extra holds every field the catalog stores for an existing resource.
	Extra map[string]any
}

// IsFile reports whether the resource is backed by an uploaded file.
func (r Resource) IsFile() bool {
	return r.Kind == KindFile
}

// FormatKey is the lower-cased format used for comparisons.
func (r Resource) FormatKey() string {
	return strings.ToLower(r.Format)
}
