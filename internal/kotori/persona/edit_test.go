package persona

import (
	"strings"
	"testing"
)

func TestSetField_ScalarRoundTrip(t *testing.T) {
	var doc Document

	if err := SetField(&doc, "profile", "name", "Kotori"); err != nil {
		t.Fatalf("SetField() error = %v", err)
	}
	if err := SetField(&doc, "personality", "tone", "warm"); err != nil {
		t.Fatalf("SetField() error = %v", err)
	}
	if err := SetField(&doc, "language_model", "selected_model", "model-a"); err != nil {
		t.Fatalf("SetField() error = %v", err)
	}

	if doc.Profile.Name != "Kotori" || doc.Personality.Tone != "warm" || doc.Model.SelectedModel != "model-a" {
		t.Errorf("scalar fields not applied: %+v", doc)
	}

	got, err := GetField(&doc, "personality", "tone")
	if err != nil {
		t.Fatalf("GetField() error = %v", err)
	}
	if got != "warm" {
		t.Errorf("GetField() = %q, want warm", got)
	}
}

func TestSetField_ListSplitsOnCommas(t *testing.T) {
	var doc Document

	if err := SetField(&doc, "personality", "traits", "cheerful, curious , brave,,"); err != nil {
		t.Fatalf("SetField() error = %v", err)
	}
	want := []string{"cheerful", "curious", "brave"}
	if len(doc.Personality.Traits) != len(want) {
		t.Fatalf("traits = %v, want %v", doc.Personality.Traits, want)
	}
	for i, w := range want {
		if doc.Personality.Traits[i] != w {
			t.Errorf("traits[%d] = %q, want %q", i, doc.Personality.Traits[i], w)
		}
	}

	if err := SetField(&doc, "profile", "aka_alias_nickname", "Ko, Birdie"); err != nil {
		t.Fatalf("SetField() error = %v", err)
	}
	if len(doc.Profile.Aliases) != 2 {
		t.Errorf("aliases = %v, want 2 entries", doc.Profile.Aliases)
	}
}

func TestSetField_UnknownFieldRejected(t *testing.T) {
	var doc Document

	if err := SetField(&doc, "profile", "favourite_color", "blue"); err == nil {
		t.Error("expected an error for an unknown field")
	}
	if err := SetField(&doc, "nonsense", "name", "x"); err == nil {
		t.Error("expected an error for an unknown section")
	}
	// List fields carry the section in their mapping too.
	if err := SetField(&doc, "knowledge", "traits", "a,b"); err == nil {
		t.Error("expected an error for a list field under the wrong section")
	}
}

func TestGetField_UnknownSection(t *testing.T) {
	var doc Document
	_, err := GetField(&doc, "nonsense", "name")
	if err == nil || !strings.Contains(err.Error(), "unknown section") {
		t.Fatalf("expected unknown-section error, got %v", err)
	}
}

func TestSectionFields_MasksAPIKey(t *testing.T) {
	var doc Document

	fields, err := SectionFields(&doc, "language_model")
	if err != nil {
		t.Fatalf("SectionFields() error = %v", err)
	}
	if v := fieldValue(t, fields, "api_key"); v != "(not set)" {
		t.Errorf("unset api_key renders %q, want (not set)", v)
	}

	doc.Model.APIKey = "sk-supersecret"
	fields, err = SectionFields(&doc, "language_model")
	if err != nil {
		t.Fatalf("SectionFields() error = %v", err)
	}
	if v := fieldValue(t, fields, "api_key"); v != "[set]" {
		t.Errorf("set api_key renders %q, want [set]", v)
	}
	for _, f := range fields {
		if strings.Contains(f.Value, "supersecret") {
			t.Errorf("api key value must never be rendered")
		}
	}
}

func TestSectionFields_StableOrder(t *testing.T) {
	var doc Document
	first, err := SectionFields(&doc, "profile")
	if err != nil {
		t.Fatalf("SectionFields() error = %v", err)
	}
	second, _ := SectionFields(&doc, "profile")
	for i := range first {
		if first[i].Name != second[i].Name {
			t.Fatalf("field order must be stable, %q vs %q at %d", first[i].Name, second[i].Name, i)
		}
	}
	if first[0].Name != "name" {
		t.Errorf("profile section must lead with name, got %q", first[0].Name)
	}
}

func fieldValue(t *testing.T, fields []Field, name string) string {
	t.Helper()
	for _, f := range fields {
		if f.Name == name {
			return f.Value
		}
	}
	t.Fatalf("field %q not found", name)
	return ""
}
