package models

import (
	"strings"
	"testing"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

func TestMungeName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase", "hello", "hello"},
		{"spaces become dashes", "Hello World", "hello-world"},
		{"umlauts folded", "Bevölkerung", "bevolkerung"},
		{"sharp s", "Straße", "strasse"},
		{"separators", "a.b:c/d", "a-b-c-d"},
		{"underscores kept", "my_doc_name", "my_doc_name"},
		{"special chars stripped", "Hello, World!", "hello-world"},
		{"consecutive dashes squashed", "hello   world", "hello-world"},
		{"trimmed", "-leading and trailing-", "leading-and-trailing"},
		{"organization", "Stadt Zürich", "stadt-zurich"},
		{"padded when short", "a", "a_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MungeName(tt.in)
			if got != tt.want {
				t.Errorf("MungeName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestMungeNameKeepsYearWhenTruncating(t *testing.T) {
	in := strings.Repeat("abcdefghij", 12) + " 2024"
	got := MungeName(in)

	if len(got) != 95 {
		t.Fatalf("len = %d, want 95", len(got))
	}
	if !strings.HasSuffix(got, "-2024") {
		t.Errorf("MungeName kept %q, want year suffix", got[len(got)-10:])
	}
}

func TestMungeTag(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"spaces", "Tag mit Spaces", "tag-mit-spaces"},
		{"case", "GROSS klein", "gross-klein"},
		{"umlauts", "Umlaute äüö", "umlaute-auo"},
		{"punctuation dropped", "a&b (c)", "ab-c"},
		{"surrounding whitespace", "  bevölkerung ", "bevolkerung"},
		{"padded when short", "x", "x_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MungeTag(tt.in)
			if got != tt.want {
				t.Errorf("MungeTag(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRecordIDString(t *testing.T) {
	got, err := RecordIDString(surrealmodels.NewRecordID("harvest_job", "abc"))
	if err != nil {
		t.Fatalf("RecordIDString: %v", err)
	}
	if got != "abc" {
		t.Errorf("RecordIDString = %q, want %q", got, "abc")
	}

	if _, err := RecordIDString(surrealmodels.NewRecordID("harvest_job", 42)); err == nil {
		t.Error("expected error for numeric ID")
	}
}
