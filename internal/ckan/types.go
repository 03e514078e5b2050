package ckan

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/stadtzhharvest-go/internal/models"
)

// FileNotFoundURL replaces the url of resources before they are deleted so
// that cached download links stop resolving.
const FileNotFoundURL = "https://data.stadt-zuerich.ch/filenotfound"

// Package is the catalog's view of a dataset.
type Package struct {
	ID        string
	Name      string
	Title     string
	Resources []models.Resource
}

// Organization is a catalog organization.
type Organization struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Title string `json:"title"`
}

// Group is a catalog group.
type Group struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Title string `json:"title"`
}

// Upload is a file attached to a resource create or update.
type Upload struct {
	Name string
	Path string
}

// SearchResult is one page of a package search.
type SearchResult struct {
	Count   int
	Results []Package
}

// Platform is the subset of the catalog action API the harvester uses.
type Platform interface {
	PackageShow(ctx context.Context, id string) (*Package, error)
	PackageCreate(ctx context.Context, fields map[string]any) (string, error)
	PackageUpdate(ctx context.Context, fields map[string]any) (string, error)
	PackagePatch(ctx context.Context, fields map[string]any) (string, error)
	PackageSearch(ctx context.Context, fq string, rows, start int) (*SearchResult, error)
	PackageResourceReorder(ctx context.Context, id string, order []string) error
	DatasetPurge(ctx context.Context, id string) error

	ResourceCreate(ctx context.Context, fields map[string]any, upload *Upload) (string, error)
	ResourceUpdate(ctx context.Context, fields map[string]any, upload *Upload) (string, error)
	ResourceDelete(ctx context.Context, id string) error

	// OrganizationShow reports found=false instead of an error when the
	// organization does not exist.
	OrganizationShow(ctx context.Context, id string) (Organization, bool, error)
	OrganizationCreate(ctx context.Context, org Organization) (Organization, error)
	GroupShow(ctx context.Context, id string) (Group, bool, error)
	GroupCreate(ctx context.Context, group Group) (Group, error)
}

// ResourceFromFields converts a stored catalog resource to a resource
// descriptor. All stored fields are kept in Extra.
func ResourceFromFields(fields map[string]any) models.Resource {
	r := models.Resource{
		Kind:        models.KindFile,
		ID:          stringField(fields, "id"),
		Name:        stringField(fields, "name"),
		Description: stringField(fields, "description"),
		Format:      stringField(fields, "format"),
		URL:         stringField(fields, "url"),
		Fingerprint: stringField(fields, "zh_hash"),
		Extra:       fields,
	}
	if stringField(fields, "resource_type") == string(models.KindLink) {
		r.Kind = models.KindLink
	}
	return r
}

func stringField(fields map[string]any, key string) string {
	v, ok := fields[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
