package parser

import (
	"testing"

	"github.com/raphaelgruber/stadtzhharvest-go/internal/fingerprint"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullMeta = `<?xml version="1.0" encoding="utf-8"?>
<xmlData>
  <datensatz>
    <titel>Bevölkerung nach Stadtquartier</titel>
    <beschreibung>Wohnbevölkerung der Stadt Zürich.</beschreibung>
    <quelle>Statistik Stadt Zürich</quelle>
    <lieferant>https://www.stadt-zuerich.ch/statistik</lieferant>
    <lizenz>cc-by</lizenz>
    <schlagworte>Tag mit Spaces, GROSS klein, Umlaute äüö</schlagworte>
    <kategorie>Bevölkerung, Basiskarten</kategorie>
    <raeumliche_beziehung>Stadt Zürich</raeumliche_beziehung>
    <erstmalige_veroeffentlichung>01.01.2011</erstmalige_veroeffentlichung>
    <aktualisierungsdatum>15.03.2024</aktualisierungsdatum>
    <aktualisierungsintervall>jährlich</aktualisierungsintervall>
    <datentyp>Einzeldaten</datentyp>
    <rechtsgrundlage>Gesetz</rechtsgrundlage>
    <aktuelle_version>2.0</aktuelle_version>
    <zeitraum>1993 - 2023</zeitraum>
    <datenqualitaet>gut</datenqualitaet>
    <bemerkungen>
      <bemerkung>
        <titel>Hinweis</titel>
        <text>Provisorische Zahlen.</text>
        <link><label>Mehr</label><url>https://example.org/mehr</url></link>
      </bemerkung>
      <bemerkung>
        <text>Nur Text.</text>
      </bemerkung>
    </bemerkungen>
    <attributliste>
      <attribut technischerfeldname="StichtagDatJahr">
        <sprechenderfeldname>Jahr</sprechenderfeldname>
        <feldbeschreibung>Stichtag</feldbeschreibung>
      </attribut>
      <attribut>
        <sprechenderfeldname>Anzahl</sprechenderfeldname>
        <feldbeschreibung></feldbeschreibung>
      </attribut>
    </attributliste>
    <ressourcen>
      <datei dateiname="bev.csv">
        <beschreibung>Die Daten als CSV</beschreibung>
      </datei>
      <datei dateiname="bev.json"/>
    </ressourcen>
  </datensatz>
</xmlData>`

func TestParseMetaXML(t *testing.T) {
	got, err := ParseMetaXML([]byte(fullMeta), "bevolkerung", "Bevölkerung")
	require.NoError(t, err)

	assert.Equal(t, "bevolkerung", got.DatasetID)
	assert.Equal(t, "Bevölkerung", got.DatasetFolder)
	assert.Equal(t, "Bevölkerung nach Stadtquartier", got.Title)
	assert.Equal(t, "Wohnbevölkerung der Stadt Zürich.", got.Notes)
	assert.Equal(t, "Statistik Stadt Zürich", got.Author)
	assert.Equal(t, "https://www.stadt-zuerich.ch/statistik", got.URL)
	assert.Equal(t, "cc-by", got.LicenseID)
	assert.Equal(t, Maintainer, got.Maintainer)
	assert.Equal(t, MaintainerEmail, got.MaintainerEmail)

	assert.Equal(t, []models.Tag{{Name: "tag-mit-spaces"}, {Name: "gross-klein"}, {Name: "umlaute-auo"}}, got.Tags)
	assert.Equal(t, []models.GroupRef{
		{Name: "bevolkerung", Title: "Bevölkerung"},
		{Name: "basiskarten", Title: "Basiskarten"},
	}, got.Groups)

	assert.Equal(t, "Stadt Zürich", got.SpatialRelationship)
	assert.Equal(t, "01.01.2011", got.DateFirstPublished)
	assert.Equal(t, "15.03.2024", got.DateLastUpdated)
	assert.Equal(t, "jaehrlich", got.UpdateInterval)
	assert.Equal(t, "Einzeldaten", got.DataType)
	assert.Equal(t, "Gesetz", got.LegalInformation)
	assert.Equal(t, "2.0", got.Version)
	assert.Equal(t, "1993 - 2023", got.TimeRange)
	assert.Equal(t, "gut", got.DataQuality)

	assert.Equal(t, "**Hinweis**\n\nProvisorische Zahlen.\n\n[Mehr](https://example.org/mehr)\n\nNur Text.\n\n", got.Comments)
	assert.Equal(t, []models.Attribute{
		{Name: "Jahr (technisch: StichtagDatJahr)", Description: "Stichtag"},
		{Name: "Anzahl", Description: ""},
	}, got.Attributes)
	assert.Equal(t, `[["Jahr (technisch: StichtagDatJahr)","Stichtag"]]`, got.AttributesJSON())

	assert.Equal(t, map[string]models.ResourceOverride{
		"bev.csv":  {Description: "Die Daten als CSV"},
		"bev.json": {Description: ""},
	}, got.ResourceMetadata)
}

func TestParseMetaXMLDefaults(t *testing.T) {
	got, err := ParseMetaXML([]byte(`<xmlData><datensatz><titel>Nur Titel</titel></datensatz></xmlData>`), "nur-titel", "nur_titel")
	require.NoError(t, err)

	assert.Equal(t, "Nur Titel", got.Title)
	assert.Equal(t, "", got.Notes)
	assert.Equal(t, "", got.Author)
	assert.Equal(t, DefaultLicenseID, got.LicenseID)
	assert.Equal(t, "   ", got.UpdateInterval)
	assert.Equal(t, "   ", got.DataType)
	assert.Empty(t, got.Tags)
	assert.Empty(t, got.Groups)
	assert.Empty(t, got.Comments)
	assert.Empty(t, got.Attributes)
	assert.Empty(t, got.ResourceMetadata)
}

func TestParseMetaXMLErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not xml", "this is not xml"},
		{"no datensatz", "<xmlData><other/></xmlData>"},
		{"resource without dateiname", `<xmlData><datensatz><ressourcen><datei><beschreibung>x</beschreibung></datei></ressourcen></datensatz></xmlData>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMetaXML([]byte(tt.doc), "x", "x")
			var invalid MetaXMLInvalidError
			assert.ErrorAs(t, err, &invalid)
		})
	}
}

func TestParseLinkXML(t *testing.T) {
	doc := `<?xml version="1.0" encoding="utf-8"?>
<links>
  <link>
    <url>https://www.ogd.stadt-zuerich.ch/wfs/geoportal/Stadtkreise</url>
    <lable>Stadtkreise WFS</lable>
    <description>Web Feature Service</description>
    <type>WFS</type>
  </link>
  <link>
    <lable>ohne URL</lable>
  </link>
</links>`

	got, err := ParseLinkXML([]byte(doc))
	require.NoError(t, err)
	require.Len(t, got, 1)

	url := "https://www.ogd.stadt-zuerich.ch/wfs/geoportal/Stadtkreise"
	assert.Equal(t, models.Resource{
		Kind:        models.KindLink,
		Name:        "Stadtkreise WFS",
		Description: "Web Feature Service",
		Format:      "WFS",
		URL:         url,
		Fingerprint: fingerprint.Link(url),
	}, got[0])
}
