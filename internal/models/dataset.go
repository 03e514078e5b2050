package models

import "encoding/json"

// ImportAction tells the import stage what to do with a harvest record.
type ImportAction string

const (
	ImportActionUpdate ImportAction = "update"
	ImportActionDelete ImportAction = "delete"
)

// Tag is a munged catalog keyword.
type Tag struct {
	Name string `json:"name"`
}

// GroupRef references a catalog group by its munged name and display title.
type GroupRef struct {
	Name  string `json:"name"`
	Title string `json:"title"`
}

// Attribute is one row of a dataset's attribute table.
type Attribute struct {
	Name        string
	Description string
}

// ResourceOverride carries fields from the metadata document that replace
// values derived from the resource itself.
type ResourceOverride struct {
	Description string `json:"description"`
}

// DatasetMetadata is the normalized desired state of one dataset.
// It is serialized into the harvest record between gather and import.
type DatasetMetadata struct {
	DatasetID     string `json:"datasetID"`
	DatasetFolder string `json:"datasetFolder,omitempty"`
	ID            string `json:"id,omitempty"`
	Name          string `json:"name,omitempty"`

	Title           string     `json:"title,omitempty"`
	URL             string     `json:"url,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	Author          string     `json:"author,omitempty"`
	Maintainer      string     `json:"maintainer,omitempty"`
	MaintainerEmail string     `json:"maintainer_email,omitempty"`
	LicenseID       string     `json:"license_id,omitempty"`
	Tags            []Tag      `json:"tags,omitempty"`
	Groups          []GroupRef `json:"groups,omitempty"`

	SpatialRelationship string      `json:"spatialRelationship,omitempty"`
	DateFirstPublished  string      `json:"dateFirstPublished,omitempty"`
	DateLastUpdated     string      `json:"dateLastUpdated,omitempty"`
	UpdateInterval      string      `json:"updateInterval,omitempty"`
	DataType            string      `json:"dataType,omitempty"`
	LegalInformation    string      `json:"legalInformation,omitempty"`
	Version             string      `json:"version,omitempty"`
	TimeRange           string      `json:"timeRange,omitempty"`
	Comments            string      `json:"sszBemerkungen,omitempty"`
	Attributes          []Attribute `json:"sszFields,omitempty"`
	DataQuality         string      `json:"dataQuality,omitempty"`

	ResourceMetadata map[string]ResourceOverride `json:"resource_metadata,omitempty"`
	ImportAction     ImportAction                `json:"import_action,omitempty"`

	// Passthrough holds the raw fields of sources that are not mapped.
	Passthrough map[string]any `json:"passthrough,omitempty"`
}

// IsTombstone reports whether the record asks for the dataset to be purged.
func (d DatasetMetadata) IsTombstone() bool {
	return d.ImportAction == ImportActionDelete
}

// AttributesJSON encodes the attribute table the way the catalog stores it:
// an ordered list of [name, description] pairs without empty descriptions.
func (d DatasetMetadata) AttributesJSON() string {
	pairs := make([][2]string, 0, len(d.Attributes))
	for _, a := range d.Attributes {
		if a.Description == "" {
			continue
		}
		pairs = append(pairs, [2]string{a.Name, a.Description})
	}
	b, _ := json.Marshal(pairs)
	return string(b)
}

// MarshalJSON encodes an attribute as a [name, description] pair.
func (a Attribute) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{a.Name, a.Description})
}

// UnmarshalJSON decodes a [name, description] pair.
func (a *Attribute) UnmarshalJSON(data []byte) error {
	var pair [2]string
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	a.Name, a.Description = pair[0], pair[1]
	return nil
}
