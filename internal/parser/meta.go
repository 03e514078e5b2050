// Package parser decodes the dropzone sidecar documents (meta.xml and
// link.xml) into dataset metadata and link resources.
package parser

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/raphaelgruber/stadtzhharvest-go/internal/models"
)

// Fixed catalog values for dropzone datasets.
const (
	Maintainer       = "Open Data Zürich"
	MaintainerEmail  = "opendata@zuerich.ch"
	DefaultLicenseID = "cc-zero"

	// blankField keeps required catalog fields non-empty.
	blankField = "   "

	listSeparator = ", "
)

// MetaXMLNotFoundError is returned when a dataset folder has no meta.xml.
type MetaXMLNotFoundError struct {
	DatasetID string
	Path      string
}

func (e MetaXMLNotFoundError) Error() string {
	return fmt.Sprintf("meta.xml not found for dataset %s (path: %s)", e.DatasetID, e.Path)
}

// MetaXMLInvalidError is returned when meta.xml is malformed.
type MetaXMLInvalidError struct {
	Reason string
}

func (e MetaXMLInvalidError) Error() string {
	return "invalid meta.xml: " + e.Reason
}

// element is any child node whose name the format leaves open.
type element struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Inner   []byte     `xml:",innerxml"`
}

func (e element) attr(name string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

func (e element) decode(v any) error {
	var buf bytes.Buffer
	buf.WriteString("<x>")
	buf.Write(e.Inner)
	buf.WriteString("</x>")
	return xml.Unmarshal(buf.Bytes(), v)
}

type metaDocument struct {
	Datensatz *datensatz `xml:"datensatz"`
}

type datensatz struct {
	Titel                       string    `xml:"titel"`
	Beschreibung                string    `xml:"beschreibung"`
	Quelle                      string    `xml:"quelle"`
	Lieferant                   string    `xml:"lieferant"`
	Lizenz                      string    `xml:"lizenz"`
	Schlagworte                 string    `xml:"schlagworte"`
	Kategorie                   string    `xml:"kategorie"`
	RaeumlicheBeziehung         string    `xml:"raeumliche_beziehung"`
	ErstmaligeVeroeffentlichung string    `xml:"erstmalige_veroeffentlichung"`
	Aktualisierungsdatum        string    `xml:"aktualisierungsdatum"`
	Aktualisierungsintervall    string    `xml:"aktualisierungsintervall"`
	Datentyp                    string    `xml:"datentyp"`
	Rechtsgrundlage             string    `xml:"rechtsgrundlage"`
	AktuelleVersion             string    `xml:"aktuelle_version"`
	Zeitraum                    string    `xml:"zeitraum"`
	Datenqualitaet              string    `xml:"datenqualitaet"`
	Bemerkungen                 *children `xml:"bemerkungen"`
	Attributliste               *children `xml:"attributliste"`
	Ressourcen                  *children `xml:"ressourcen"`
}

type children struct {
	Items []element `xml:",any"`
}

type bemerkung struct {
	Titel string `xml:"titel"`
	Text  string `xml:"text"`
	Link  *struct {
		Label string `xml:"label"`
		URL   string `xml:"url"`
	} `xml:"link"`
}

type attribut struct {
	SprechenderFeldname string `xml:"sprechenderfeldname"`
	Feldbeschreibung    string `xml:"feldbeschreibung"`
}

type datei struct {
	Beschreibung string `xml:"beschreibung"`
}

var intervalReplacer = strings.NewReplacer("ä", "ae", "ö", "oe", "ü", "ue")

// ParseMetaXML maps a meta.xml document to dataset metadata.
// Missing fields resolve to their defaults, never to an error.
func ParseMetaXML(data []byte, datasetID, folder string) (models.DatasetMetadata, error) {
	var doc metaDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return models.DatasetMetadata{}, MetaXMLInvalidError{Reason: err.Error()}
	}
	d := doc.Datensatz
	if d == nil {
		return models.DatasetMetadata{}, MetaXMLInvalidError{Reason: "missing element 'datensatz'"}
	}

	attributes, err := parseAttributes(d.Attributliste)
	if err != nil {
		return models.DatasetMetadata{}, err
	}
	comments, err := convertComments(d.Bemerkungen)
	if err != nil {
		return models.DatasetMetadata{}, err
	}
	overrides, err := parseResourceOverrides(d.Ressourcen)
	if err != nil {
		return models.DatasetMetadata{}, err
	}

	return models.DatasetMetadata{
		DatasetID:           datasetID,
		DatasetFolder:       folder,
		Title:               d.Titel,
		URL:                 d.Lieferant,
		Notes:               d.Beschreibung,
		Author:              d.Quelle,
		Maintainer:          Maintainer,
		MaintainerEmail:     MaintainerEmail,
		LicenseID:           orDefault(d.Lizenz, DefaultLicenseID),
		Tags:                parseTags(d.Schlagworte),
		Groups:              parseGroups(d.Kategorie),
		SpatialRelationship: d.RaeumlicheBeziehung,
		DateFirstPublished:  d.ErstmaligeVeroeffentlichung,
		DateLastUpdated:     d.Aktualisierungsdatum,
		UpdateInterval:      orDefault(intervalReplacer.Replace(d.Aktualisierungsintervall), blankField),
		DataType:            orDefault(d.Datentyp, blankField),
		LegalInformation:    d.Rechtsgrundlage,
		Version:             d.AktuelleVersion,
		TimeRange:           d.Zeitraum,
		Comments:            comments,
		Attributes:          attributes,
		DataQuality:         d.Datenqualitaet,
		ResourceMetadata:    overrides,
	}, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func parseTags(s string) []models.Tag {
	if s == "" {
		return nil
	}
	var tags []models.Tag
	for _, t := range strings.Split(s, listSeparator) {
		tags = append(tags, models.Tag{Name: models.MungeTag(t)})
	}
	return tags
}

func parseGroups(s string) []models.GroupRef {
	if s == "" {
		return nil
	}
	var groups []models.GroupRef
	for _, title := range strings.Split(s, listSeparator) {
		groups = append(groups, models.GroupRef{Name: models.MungeName(title), Title: title})
	}
	return groups
}

// convertComments renders the remarks as markdown paragraphs.
func convertComments(c *children) (string, error) {
	if c == nil {
		return "", nil
	}
	var sb strings.Builder
	for _, item := range c.Items {
		var b bemerkung
		if err := item.decode(&b); err != nil {
			return "", MetaXMLInvalidError{Reason: "bemerkungen: " + err.Error()}
		}
		if b.Titel != "" {
			sb.WriteString("**" + b.Titel + "**\n\n")
		}
		if b.Text != "" {
			sb.WriteString(b.Text + "\n\n")
		}
		if b.Link != nil {
			sb.WriteString("[" + b.Link.Label + "](" + b.Link.URL + ")\n\n")
		}
	}
	return sb.String(), nil
}

func parseAttributes(c *children) ([]models.Attribute, error) {
	if c == nil {
		return nil, nil
	}
	attributes := make([]models.Attribute, 0, len(c.Items))
	for _, item := range c.Items {
		var a attribut
		if err := item.decode(&a); err != nil {
			return nil, MetaXMLInvalidError{Reason: "attributliste: " + err.Error()}
		}
		name := a.SprechenderFeldname
		if tech, _ := item.attr("technischerfeldname"); tech != "" {
			name = fmt.Sprintf("%s (technisch: %s)", a.SprechenderFeldname, tech)
		}
		attributes = append(attributes, models.Attribute{Name: name, Description: a.Feldbeschreibung})
	}
	return attributes, nil
}

func parseResourceOverrides(c *children) (map[string]models.ResourceOverride, error) {
	if c == nil || len(c.Items) == 0 {
		return nil, nil
	}
	overrides := make(map[string]models.ResourceOverride, len(c.Items))
	for _, item := range c.Items {
		filename, _ := item.attr("dateiname")
		if filename == "" {
			return nil, MetaXMLInvalidError{Reason: "resources must have an attribute 'dateiname'"}
		}
		var d datei
		if err := item.decode(&d); err != nil {
			return nil, MetaXMLInvalidError{Reason: "ressourcen: " + err.Error()}
		}
		overrides[filename] = models.ResourceOverride{Description: d.Beschreibung}
	}
	return overrides, nil
}
