package fhir

import (
	"encoding/json"
	"testing"
)

func TestErrorOutcome(t *testing.T) {
	oo := ErrorOutcome("something went wrong")
	if oo.ResourceType != "OperationOutcome" {
		t.Errorf("expected resourceType OperationOutcome, got %q", oo.ResourceType)
	}
	if len(oo.Issue) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(oo.Issue))
	}
	if oo.Issue[0].Severity != "error" || oo.Issue[0].Code != "processing" {
		t.Errorf("unexpected issue: %+v", oo.Issue[0])
	}
	if oo.Issue[0].Diagnostics != "something went wrong" {
		t.Errorf("unexpected diagnostics: %q", oo.Issue[0].Diagnostics)
	}
}

func TestNotFoundOutcome(t *testing.T) {
	oo := NotFoundOutcome("Patient", "abc")
	if oo.Issue[0].Code != "not-found" {
		t.Errorf("expected code not-found, got %q", oo.Issue[0].Code)
	}
	if oo.Issue[0].Diagnostics != "Patient/abc not found" {
		t.Errorf("unexpected diagnostics: %q", oo.Issue[0].Diagnostics)
	}
}

func TestValidationOutcome_CarriesExpression(t *testing.T) {
	oo := ValidationOutcome("Patient.name", "name is required")
	if oo.Issue[0].Code != "invalid" {
		t.Errorf("expected code invalid, got %q", oo.Issue[0].Code)
	}
	if len(oo.Issue[0].Expression) != 1 || oo.Issue[0].Expression[0] != "Patient.name" {
		t.Errorf("unexpected expression: %v", oo.Issue[0].Expression)
	}
}

func TestFormatReference(t *testing.T) {
	ref := FormatReference("Patient", "123")
	if ref.Reference != "Patient/123" {
		t.Errorf("expected Patient/123, got %q", ref.Reference)
	}
	if ref.Type != "Patient" {
		t.Errorf("expected type Patient, got %q", ref.Type)
	}
}

func TestNewSearchBundle(t *testing.T) {
	resources := []interface{}{
		map[string]interface{}{"resourceType": "Patient", "id": "p1"},
		map[string]interface{}{"resourceType": "Patient", "id": "p2"},
	}
	b := NewSearchBundle(resources, 2, "https://example.org/fhir")

	if b.Type != "searchset" {
		t.Errorf("expected searchset, got %q", b.Type)
	}
	if b.Total == nil || *b.Total != 2 {
		t.Error("expected total 2")
	}
	if len(b.Entry) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(b.Entry))
	}
	if b.Entry[0].FullURL != "https://example.org/fhir/Patient/p1" {
		t.Errorf("unexpected fullUrl: %q", b.Entry[0].FullURL)
	}
	if b.Entry[0].Search == nil || b.Entry[0].Search.Mode != "match" {
		t.Error("expected search mode match")
	}
	if len(b.Link) != 1 || b.Link[0].Relation != "self" {
		t.Errorf("expected a self link, got %v", b.Link)
	}

	var decoded map[string]interface{}
	raw, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded["resourceType"] != "Bundle" {
		t.Errorf("expected resourceType Bundle, got %v", decoded["resourceType"])
	}
}
