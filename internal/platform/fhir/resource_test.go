package fhir

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestReference_PreservesUnknownMembers(t *testing.T) {
	in := `{"reference":"Patient/1","display":"Jane Doe","identifier":{"value":"123"}}`
	var ref Reference
	if err := json.Unmarshal([]byte(in), &ref); err != nil {
		t.Fatal(err)
	}
	if ref.Reference != "Patient/1" || ref.Display != "Jane Doe" {
		t.Errorf("unexpected reference %+v", ref)
	}
	if !ref.Extra.Has("identifier") {
		t.Fatal("expected identifier to be kept in Extra")
	}

	out, err := json.Marshal(ref)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), `"identifier":{"value":"123"}`) {
		t.Errorf("expected identifier round trip, got %s", out)
	}
}

func TestReference_ModelledFieldWins(t *testing.T) {
	ref := Reference{Reference: "Patient/new", Extra: Object{"reference": json.RawMessage(`"Patient/old"`)}}
	out, _ := json.Marshal(ref)
	if !strings.Contains(string(out), "Patient/new") || strings.Contains(string(out), "Patient/old") {
		t.Errorf("expected modelled field to win, got %s", out)
	}
}

func TestIdentifier_TypeCode(t *testing.T) {
	in := `{"type":{"coding":[{"system":"http://terminology.hl7.org/CodeSystem/v2-0203","code":"SS"}]},` +
		`"system":"http://hl7.org/fhir/sid/us-ssn","value":"999-12-3456","assigner":{"display":"SSA"}}`
	var id Identifier
	if err := json.Unmarshal([]byte(in), &id); err != nil {
		t.Fatal(err)
	}
	if id.TypeCode() != "SS" {
		t.Errorf("expected SS, got %q", id.TypeCode())
	}
	if !id.Extra.Has("assigner") {
		t.Error("expected assigner to be preserved")
	}
	if (Identifier{}).TypeCode() != "" {
		t.Error("expected empty type code for an untyped identifier")
	}
}

func TestContactPoint_RoundTrip(t *testing.T) {
	in := `{"system":"phone","value":"555-0100","use":"home","extension":[{"url":"x"}]}`
	var cp ContactPoint
	if err := json.Unmarshal([]byte(in), &cp); err != nil {
		t.Fatal(err)
	}
	out, _ := json.Marshal(cp)
	var got, want map[string]any
	json.Unmarshal(out, &got)
	json.Unmarshal([]byte(in), &want)
	if len(got) != len(want) {
		t.Errorf("expected %d members, got %d: %s", len(want), len(got), out)
	}
}

func TestPeriod_PartialDates(t *testing.T) {
	var p Period
	if err := json.Unmarshal([]byte(`{"start":"2020","end":"2020-04"}`), &p); err != nil {
		t.Fatal(err)
	}
	if p.Start != "2020" || p.End != "2020-04" {
		t.Errorf("expected partial dates untouched, got %+v", p)
	}
}
