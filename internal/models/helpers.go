// Package models defines the data structures shared by the harvester stages.
package models

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Length limits enforced by CKAN for package names and tags.
const (
	nameMinLength = 2
	nameMaxLength = 100
	tagMinLength  = 2
	tagMaxLength  = 100
)

var (
	nameSeparators = regexp.MustCompile(`[ .:/]`)
	nameDisallowed = regexp.MustCompile(`[^a-zA-Z0-9\-_]`)
	nameDashes     = regexp.MustCompile(`-+`)
	nameYearSuffix = regexp.MustCompile(`.*?[_-]((?:\d{2,4}[-/])?\d{2,4})$`)
	tagDisallowed  = regexp.MustCompile(`[^a-zA-Z0-9\- ]`)

	// Letters that do not decompose into a base letter plus marks.
	asciiLigatures = strings.NewReplacer(
		"ß", "ss", "æ", "ae", "Æ", "AE", "œ", "oe", "Œ", "OE",
		"ø", "o", "Ø", "O", "đ", "d", "Đ", "D", "ł", "l", "Ł", "L",
	)
)

// RecordIDString safely extracts the string ID from a SurrealDB RecordID.
// Returns an error if the ID is not a string type.
func RecordIDString(id surrealmodels.RecordID) (string, error) {
	s, ok := id.ID.(string)
	if !ok {
		return "", fmt.Errorf("unexpected ID type: %T (expected string)", id.ID)
	}
	return s, nil
}

// ASCIIFold replaces accented letters by their unaccented base letter
// ("Bevölkerung" becomes "Bevolkerung").
func ASCIIFold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, asciiLigatures.Replace(s))
	if err != nil {
		return s
	}
	return folded
}

// MungeName turns a title into a valid CKAN package or group name.
func MungeName(title string) string {
	name := ASCIIFold(title)
	name = nameSeparators.ReplaceAllString(name, "-")
	name = strings.ToLower(nameDisallowed.ReplaceAllString(name, ""))
	name = nameDashes.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-")

	// Leave room for de-clashing suffixes, keep a trailing year if there is one.
	maxLength := nameMaxLength - 5
	if len(name) > maxLength {
		if m := nameYearSuffix.FindStringSubmatch(name); m != nil {
			year := m[1]
			name = name[:maxLength-len(year)-1] + "-" + year
		} else {
			name = name[:maxLength]
		}
	}
	return mungeToLength(name, nameMinLength, nameMaxLength)
}

// MungeTag turns free text into a valid CKAN tag.
func MungeTag(tag string) string {
	tag = strings.TrimSpace(strings.ToLower(ASCIIFold(tag)))
	tag = strings.ReplaceAll(tagDisallowed.ReplaceAllString(tag, ""), " ", "-")
	return mungeToLength(tag, tagMinLength, tagMaxLength)
}

func mungeToLength(s string, minLength, maxLength int) string {
	if len(s) < minLength {
		s += strings.Repeat("_", minLength-len(s))
	}
	if len(s) > maxLength {
		s = s[:maxLength]
	}
	return s
}
