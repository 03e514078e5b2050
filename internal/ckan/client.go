// Package ckan is a client for the CKAN action API.
package ckan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/raphaelgruber/stadtzhharvest-go/internal/metrics"
)

// Option configures a Client.
type Option func(*Client)

// OptToken sets the API token sent with every call.
func OptToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// OptHTTPClient replaces the HTTP client.
func OptHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// OptCollector records the duration of every action call.
func OptCollector(m *metrics.Collector) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// OptOpener sets how upload files are opened.
func OptOpener(open func(path string) (io.ReadCloser, error)) Option {
	return func(c *Client) {
		c.open = open
	}
}

// Client calls actions on a CKAN instance.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	metrics    *metrics.Collector
	open       func(path string) (io.ReadCloser, error)
}

var _ Platform = (*Client)(nil)

// New creates a client for the CKAN instance at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		open: func(path string) (io.ReadCloser, error) {
			return os.Open(path)
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// actionResponse is the envelope of every action result.
type actionResponse struct {
	Success bool                       `json:"success"`
	Result  json.RawMessage            `json:"result"`
	Error   map[string]json.RawMessage `json:"error"`
}

// Call runs an action with a JSON payload and decodes its result.
func (c *Client) Call(ctx context.Context, action string, payload any, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", action, err)
	}
	return c.do(ctx, action, "application/json", bytes.NewReader(body), result)
}

// callMultipart runs an action with form fields and an attached file. The
// body is streamed from the file while the request is sent.
func (c *Client) callMultipart(ctx context.Context, action string, fields map[string]any, upload *Upload, result any) error {
	f, err := c.open(upload.Path)
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}

	name := upload.Name
	if name == "" {
		name = filepath.Base(upload.Path)
	}

	pr, pw := io.Pipe()
	w := multipart.NewWriter(pw)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer f.Close()
		pw.CloseWithError(writeMultipart(w, fields, name, f))
	}()

	err = c.do(ctx, action, w.FormDataContentType(), pr, result)
	// Unblocks the writer when the request ended before the body was read.
	pr.Close()
	<-done
	return err
}

func writeMultipart(w *multipart.Writer, fields map[string]any, name string, file io.Reader) error {
	for k, v := range fields {
		if err := w.WriteField(k, formValue(v)); err != nil {
			return fmt.Errorf("write field %s: %w", k, err)
		}
	}
	part, err := w.CreateFormFile("upload", name)
	if err != nil {
		return fmt.Errorf("create upload part: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("copy upload: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close multipart: %w", err)
	}
	return nil
}

// formValue renders non-string fields as JSON for form submission.
func formValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

func (c *Client) do(ctx context.Context, action, contentType string, body io.Reader, result any) error {
	start := time.Now()
	defer func() {
		if c.metrics != nil {
			c.metrics.RecordTiming(metrics.CatalogOp(action), time.Since(start))
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/3/action/"+action, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.token != "" {
		req.Header.Set("Authorization", c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute %s: %w", action, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", action, err)
	}

	var envelope actionResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return &APIError{Action: action, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}
	if !envelope.Success {
		return decodeError(action, resp.StatusCode, envelope.Error)
	}

	if result != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("unmarshal %s result: %w", action, err)
		}
	}
	return nil
}

func decodeError(action string, status int, fields map[string]json.RawMessage) error {
	var errType, message string
	_ = json.Unmarshal(fields["__type"], &errType)
	_ = json.Unmarshal(fields["message"], &message)

	switch errType {
	case "Not Found Error":
		return fmt.Errorf("%s: %w: %s", action, ErrNotFound, message)
	case "Validation Error":
		verr := &ValidationError{Action: action, Fields: map[string][]string{}}
		for k, v := range fields {
			if k == "__type" {
				continue
			}
			verr.Fields[k] = fieldMessages(v)
		}
		return verr
	}
	if status == http.StatusNotFound {
		return fmt.Errorf("%s: %w: %s", action, ErrNotFound, message)
	}
	return &APIError{Action: action, StatusCode: status, Type: errType, Message: message}
}

func fieldMessages(raw json.RawMessage) []string {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []string{s}
	}
	return []string{string(raw)}
}

// =============================================================================
// PACKAGES
// =============================================================================

type packageResult struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Title     string           `json:"title"`
	Resources []map[string]any `json:"resources"`
}

func (p packageResult) toPackage() *Package {
	pkg := &Package{ID: p.ID, Name: p.Name, Title: p.Title}
	for _, r := range p.Resources {
		pkg.Resources = append(pkg.Resources, ResourceFromFields(r))
	}
	return pkg
}

// PackageShow fetches a dataset by ID or name.
func (c *Client) PackageShow(ctx context.Context, id string) (*Package, error) {
	var res packageResult
	if err := c.Call(ctx, "package_show", map[string]any{"id": id}, &res); err != nil {
		return nil, err
	}
	return res.toPackage(), nil
}

// PackageCreate creates a dataset and returns its ID.
func (c *Client) PackageCreate(ctx context.Context, fields map[string]any) (string, error) {
	return c.callForID(ctx, "package_create", fields)
}

// PackageUpdate replaces a dataset's fields and returns its ID.
func (c *Client) PackageUpdate(ctx context.Context, fields map[string]any) (string, error) {
	return c.callForID(ctx, "package_update", fields)
}

// PackagePatch updates only the given fields of a dataset.
func (c *Client) PackagePatch(ctx context.Context, fields map[string]any) (string, error) {
	return c.callForID(ctx, "package_patch", fields)
}

func (c *Client) callForID(ctx context.Context, action string, fields map[string]any) (string, error) {
	var res struct {
		ID string `json:"id"`
	}
	if err := c.Call(ctx, action, fields, &res); err != nil {
		return "", err
	}
	return res.ID, nil
}

// PackageSearch runs a filtered search, one page at a time.
func (c *Client) PackageSearch(ctx context.Context, fq string, rows, start int) (*SearchResult, error) {
	var res struct {
		Count   int             `json:"count"`
		Results []packageResult `json:"results"`
	}
	err := c.Call(ctx, "package_search", map[string]any{"fq": fq, "rows": rows, "start": start}, &res)
	if err != nil {
		return nil, err
	}

	out := &SearchResult{Count: res.Count}
	for _, p := range res.Results {
		out.Results = append(out.Results, *p.toPackage())
	}
	return out, nil
}

// PackageResourceReorder sets the order of a dataset's resources.
func (c *Client) PackageResourceReorder(ctx context.Context, id string, order []string) error {
	return c.Call(ctx, "package_resource_reorder", map[string]any{"id": id, "order": order}, nil)
}

// DatasetPurge removes a dataset permanently.
func (c *Client) DatasetPurge(ctx context.Context, id string) error {
	return c.Call(ctx, "dataset_purge", map[string]any{"id": id}, nil)
}

// =============================================================================
// RESOURCES
// =============================================================================

// ResourceCreate creates a resource, uploading a file when given.
func (c *Client) ResourceCreate(ctx context.Context, fields map[string]any, upload *Upload) (string, error) {
	return c.resourceCall(ctx, "resource_create", fields, upload)
}

// ResourceUpdate updates a resource, replacing its file when given.
func (c *Client) ResourceUpdate(ctx context.Context, fields map[string]any, upload *Upload) (string, error) {
	return c.resourceCall(ctx, "resource_update", fields, upload)
}

func (c *Client) resourceCall(ctx context.Context, action string, fields map[string]any, upload *Upload) (string, error) {
	if upload == nil {
		return c.callForID(ctx, action, fields)
	}
	var res struct {
		ID string `json:"id"`
	}
	if err := c.callMultipart(ctx, action, fields, upload, &res); err != nil {
		return "", err
	}
	return res.ID, nil
}

// ResourceDelete deletes a resource.
func (c *Client) ResourceDelete(ctx context.Context, id string) error {
	return c.Call(ctx, "resource_delete", map[string]any{"id": id}, nil)
}

// =============================================================================
// ORGANIZATIONS AND GROUPS
// =============================================================================

// OrganizationShow looks up an organization by ID or name.
func (c *Client) OrganizationShow(ctx context.Context, id string) (Organization, bool, error) {
	var org Organization
	err := c.Call(ctx, "organization_show", map[string]any{"id": id, "include_datasets": false}, &org)
	if errors.Is(err, ErrNotFound) {
		return Organization{}, false, nil
	}
	if err != nil {
		return Organization{}, false, err
	}
	return org, true, nil
}

// OrganizationCreate creates an organization.
func (c *Client) OrganizationCreate(ctx context.Context, org Organization) (Organization, error) {
	var created Organization
	err := c.Call(ctx, "organization_create", map[string]any{
		"name":       org.Name,
		"title":      org.Title,
		"permission": "edit_group",
	}, &created)
	return created, err
}

// GroupShow looks up a group by ID or name.
func (c *Client) GroupShow(ctx context.Context, id string) (Group, bool, error) {
	var g Group
	err := c.Call(ctx, "group_show", map[string]any{"id": id, "include_datasets": false}, &g)
	if errors.Is(err, ErrNotFound) {
		return Group{}, false, nil
	}
	if err != nil {
		return Group{}, false, err
	}
	return g, true, nil
}

// GroupCreate creates a group.
func (c *Client) GroupCreate(ctx context.Context, group Group) (Group, error) {
	var created Group
	err := c.Call(ctx, "group_create", map[string]any{"name": group.Name, "title": group.Title}, &created)
	return created, err
}
