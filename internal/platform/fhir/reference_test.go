package fhir

import "testing"

func TestParseReference(t *testing.T) {
	tests := []struct {
		ref    string
		wantRT string
		wantID string
		wantOK bool
	}{
		{"Patient/123", "Patient", "123", true},
		{"https://fhir.example.org/fhir/Patient/123", "Patient", "123", true},
		{"Patient/123/_history/2", "Patient", "123", true},
		{"Patient/123/", "Patient", "123", true},
		{"urn:uuid:0b3a-77", "", "0b3a-77", true},
		{"urn:uuid:", "", "", false},
		{"#contained", "", "", false},
		{"", "", "", false},
		{"123", "", "", false},
		{"/123", "", "", false},
	}
	for _, tt := range tests {
		rt, id, ok := ParseReference(tt.ref)
		if rt != tt.wantRT || id != tt.wantID || ok != tt.wantOK {
			t.Errorf("ParseReference(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.ref, rt, id, ok, tt.wantRT, tt.wantID, tt.wantOK)
		}
	}
}

func TestFormatReference(t *testing.T) {
	if got := FormatReference("Patient", "abc"); got != "Patient/abc" {
		t.Errorf("expected Patient/abc, got %s", got)
	}
}
