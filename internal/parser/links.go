package parser

import (
	"encoding/xml"

	"github.com/raphaelgruber/stadtzhharvest-go/internal/fingerprint"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/models"
)

type linkDocument struct {
	Links []struct {
		URL         string `xml:"url"`
		Label       string `xml:"lable"`
		Description string `xml:"description"`
		Type        string `xml:"type"`
	} `xml:"link"`
}

// ParseLinkXML returns one link resource per link element with a URL.
func ParseLinkXML(data []byte) ([]models.Resource, error) {
	var doc linkDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, MetaXMLInvalidError{Reason: "link.xml: " + err.Error()}
	}

	var resources []models.Resource
	for _, l := range doc.Links {
		if l.URL == "" {
			continue
		}
		resources = append(resources, models.Resource{
			Kind:        models.KindLink,
			Name:        l.Label,
			Description: l.Description,
			Format:      l.Type,
			URL:         l.URL,
			Fingerprint: fingerprint.Link(l.URL),
		})
	}
	return resources, nil
}
