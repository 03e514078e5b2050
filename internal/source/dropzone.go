package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/raphaelgruber/stadtzhharvest-go/internal/config"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/fingerprint"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/models"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/parser"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/reconcile"
)

const (
	metaFile  = "meta.xml"
	linksFile = "link.xml"
)

// Dropzone reads datasets from a folder tree: one folder per dataset with a
// meta.xml and the resource files next to it.
type Dropzone struct {
	cfg    config.SourceConfig
	fp     *fingerprint.Fingerprinter
	logger *slog.Logger
}

var _ Reader = (*Dropzone)(nil)

// NewDropzone creates a reader for the dropzone described by cfg.
func NewDropzone(cfg config.SourceConfig, fp *fingerprint.Fingerprinter, logger *slog.Logger) *Dropzone {
	if fp == nil {
		fp = fingerprint.New(fingerprint.OptLogger(logger))
	}
	return &Dropzone{cfg: cfg, fp: fp, logger: logger}
}

// Gather reads the metadata of every dataset folder in the dropzone.
func (d *Dropzone) Gather(ctx context.Context) (GatherResult, error) {
	var res GatherResult

	entries, err := os.ReadDir(d.cfg.DataPath)
	if err != nil {
		return res, fmt.Errorf("unable to get content from folder %s: %w", d.cfg.DataPath, err)
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if isHidden(e.Name()) || !e.IsDir() {
			continue
		}

		name, ok := DatasetName(d.cfg.DatasetPrefix + e.Name())
		if !ok {
			d.logger.Debug("dataset folder contains disallowed characters", "folder", e.Name())
			continue
		}
		res.Seen = append(res.Seen, name)

		path := filepath.Join(d.cfg.DataPath, e.Name(), d.cfg.MetafileDir, metaFile)
		meta, err := d.loadMetadata(path, name, e.Name())
		if err != nil {
			d.logger.Warn("skipping dataset", "dataset", name, "error", err)
			res.Problems = append(res.Problems, Problem{DatasetID: name, Path: path, Err: err})
			continue
		}
		res.Datasets = append(res.Datasets, meta)
	}
	return res, nil
}

func (d *Dropzone) loadMetadata(path, datasetID, folder string) (models.DatasetMetadata, error) {
	data, err := d.fp.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return models.DatasetMetadata{}, parser.MetaXMLNotFoundError{DatasetID: datasetID, Path: path}
	}
	if err != nil {
		return models.DatasetMetadata{}, err
	}
	return parser.ParseMetaXML(data, datasetID, folder)
}

// Resources lists the files of a dataset folder as resources, sorted by
// format priority. link.xml contributes link resources. The catalog creates
// new resources in name order; see reconcile.SortActions.
func (d *Dropzone) Resources(ctx context.Context, meta models.DatasetMetadata) ([]models.Resource, error) {
	dir := filepath.Join(d.cfg.DataPath, meta.DatasetFolder, d.cfg.MetafileDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list resources of %s: %w", meta.DatasetID, err)
	}

	var resources []models.Resource
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if e.IsDir() || isHidden(name) || name == metaFile {
			continue
		}
		path := filepath.Join(dir, name)

		if name == linksFile {
			data, err := d.fp.ReadFile(path)
			if err != nil {
				return nil, err
			}
			links, err := parser.ParseLinkXML(data)
			if err != nil {
				return nil, err
			}
			resources = append(resources, links...)
			continue
		}

		if !ValidFilename(name) {
			d.logger.Debug("filename contains disallowed characters", "dataset", meta.DatasetID, "file", name)
			continue
		}
		digest, err := d.fp.File(path)
		if err != nil {
			return nil, err
		}
		resources = append(resources, models.Resource{
			Kind:        models.KindFile,
			Name:        name,
			Format:      fileFormat(name),
			Fingerprint: digest,
			Path:        path,
		})
	}

	reconcile.SortNewResources(resources)
	return resources, nil
}

// fileFormat is the text after the last dot, or the whole name.
func fileFormat(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}
	return name
}
