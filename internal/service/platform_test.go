package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/raphaelgruber/stadtzhharvest-go/internal/ckan"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/models"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakePlatform is an in-memory catalog.
type fakePlatform struct {
	mu sync.Mutex

	packages map[string]map[string]any   // id -> fields
	res      map[string][]map[string]any // package id -> resources in order
	orgs     map[string]ckan.Organization
	groups   map[string]ckan.Group
	nextID   int

	calls   []string
	patches []map[string]any
	purged  []string

	// failResource makes resource create/update fail for a resource name.
	failResource map[string]error
	failCreate   error
	failUpdate   error
	failPatch    error
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		packages:     map[string]map[string]any{},
		res:          map[string][]map[string]any{},
		orgs:         map[string]ckan.Organization{},
		groups:       map[string]ckan.Group{},
		failResource: map[string]error{},
	}
}

func (f *fakePlatform) call(name string) {
	f.calls = append(f.calls, name)
}

func (f *fakePlatform) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

// find resolves a package by id or name.
func (f *fakePlatform) find(idOrName string) (string, bool) {
	if _, ok := f.packages[idOrName]; ok {
		return idOrName, true
	}
	for id, p := range f.packages {
		if p["name"] == idOrName {
			return id, true
		}
	}
	return "", false
}

func (f *fakePlatform) resources(pkg string) []models.Resource {
	var out []models.Resource
	for _, r := range f.res[pkg] {
		out = append(out, ckan.ResourceFromFields(maps.Clone(r)))
	}
	return out
}

func (f *fakePlatform) PackageShow(_ context.Context, id string) (*ckan.Package, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("package_show")

	pid, ok := f.find(id)
	if !ok {
		return nil, fmt.Errorf("package_show: %w", ckan.ErrNotFound)
	}
	p := f.packages[pid]
	title, _ := p["title"].(string)
	name, _ := p["name"].(string)
	return &ckan.Package{ID: pid, Name: name, Title: title, Resources: f.resources(pid)}, nil
}

func (f *fakePlatform) PackageCreate(_ context.Context, fields map[string]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("package_create")
	if f.failCreate != nil {
		return "", f.failCreate
	}

	id := fields["id"].(string)
	p := maps.Clone(fields)
	delete(p, "resources")
	f.packages[id] = p
	return id, nil
}

func (f *fakePlatform) PackageUpdate(_ context.Context, fields map[string]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("package_update")
	if f.failUpdate != nil {
		return "", f.failUpdate
	}

	id := fields["id"].(string)
	p := maps.Clone(fields)
	delete(p, "resources")
	f.packages[id] = p
	return id, nil
}

func (f *fakePlatform) PackagePatch(_ context.Context, fields map[string]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("package_patch")
	if f.failPatch != nil {
		return "", f.failPatch
	}

	id := fields["id"].(string)
	f.patches = append(f.patches, fields)
	maps.Copy(f.packages[id], fields)
	return id, nil
}

func (f *fakePlatform) PackageSearch(_ context.Context, fq string, rows, start int) (*ckan.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("package_search")

	var names []string
	for _, p := range f.packages {
		if fmt.Sprintf("harvest_source_id:%q", p["harvest_source_id"]) == fq {
			names = append(names, p["name"].(string))
		}
	}
	slices.Sort(names)

	res := &ckan.SearchResult{Count: len(names)}
	for i := start; i < len(names) && i < start+rows; i++ {
		res.Results = append(res.Results, ckan.Package{Name: names[i]})
	}
	return res, nil
}

func (f *fakePlatform) PackageResourceReorder(_ context.Context, id string, order []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("package_resource_reorder")

	byID := map[string]map[string]any{}
	for _, r := range f.res[id] {
		byID[r["id"].(string)] = r
	}
	var sorted []map[string]any
	for _, rid := range order {
		if r, ok := byID[rid]; ok {
			sorted = append(sorted, r)
			delete(byID, rid)
		}
	}
	for _, r := range f.res[id] {
		if _, ok := byID[r["id"].(string)]; ok {
			sorted = append(sorted, r)
		}
	}
	f.res[id] = sorted
	return nil
}

func (f *fakePlatform) DatasetPurge(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("dataset_purge")

	pid, ok := f.find(id)
	if !ok {
		return fmt.Errorf("dataset_purge: %w", ckan.ErrNotFound)
	}
	delete(f.packages, pid)
	delete(f.res, pid)
	f.purged = append(f.purged, id)
	return nil
}

func (f *fakePlatform) ResourceCreate(_ context.Context, fields map[string]any, upload *ckan.Upload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("resource_create")

	name, _ := fields["name"].(string)
	if err := f.failResource[name]; err != nil {
		return "", err
	}
	pkg := fields["package_id"].(string)
	if _, ok := f.packages[pkg]; !ok {
		return "", fmt.Errorf("resource_create: %w", ckan.ErrNotFound)
	}

	f.nextID++
	r := maps.Clone(fields)
	r["id"] = fmt.Sprintf("res-%d", f.nextID)
	if upload != nil {
		r["url"] = "http://ckan.test/download/" + upload.Name
	}
	f.res[pkg] = append(f.res[pkg], r)
	return r["id"].(string), nil
}

func (f *fakePlatform) resource(id string) (string, int) {
	for pkg, rs := range f.res {
		for i, r := range rs {
			if r["id"] == id {
				return pkg, i
			}
		}
	}
	return "", -1
}

func (f *fakePlatform) ResourceUpdate(_ context.Context, fields map[string]any, upload *ckan.Upload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("resource_update")

	id, _ := fields["id"].(string)
	pkg, i := f.resource(id)
	if i < 0 {
		return "", fmt.Errorf("resource_update: %w", ckan.ErrNotFound)
	}
	r := f.res[pkg][i]
	if err := f.failResource[r["name"].(string)]; err != nil {
		return "", err
	}
	maps.Copy(r, fields)
	if upload != nil {
		r["url"] = "http://ckan.test/download/" + upload.Name
	}
	return id, nil
}

func (f *fakePlatform) ResourceDelete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("resource_delete")

	pkg, i := f.resource(id)
	if i < 0 {
		return fmt.Errorf("resource_delete: %w", ckan.ErrNotFound)
	}
	f.res[pkg] = slices.Delete(f.res[pkg], i, i+1)
	return nil
}

func (f *fakePlatform) OrganizationShow(_ context.Context, id string) (ckan.Organization, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("organization_show")
	org, ok := f.orgs[id]
	return org, ok, nil
}

func (f *fakePlatform) OrganizationCreate(_ context.Context, org ckan.Organization) (ckan.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("organization_create")
	org.ID = "org-" + org.Name
	f.orgs[org.Name] = org
	return org, nil
}

func (f *fakePlatform) GroupShow(_ context.Context, id string) (ckan.Group, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("group_show")
	g, ok := f.groups[id]
	return g, ok, nil
}

func (f *fakePlatform) GroupCreate(_ context.Context, group ckan.Group) (ckan.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("group_create")
	group.ID = "group-" + group.Name
	f.groups[group.Name] = group
	return group, nil
}

// resourceNames lists the resource names of a package in catalog order.
func (f *fakePlatform) resourceNames(pkg string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for _, r := range f.res[pkg] {
		names = append(names, r["name"].(string))
	}
	return names
}
