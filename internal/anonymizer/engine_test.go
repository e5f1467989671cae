package anonymizer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/ehr/deid/internal/rules"
)

func TestNewEngine_Defaults(t *testing.T) {
	e, err := NewEngine()
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	for _, k := range Kinds() {
		if _, ok := e.transformers[k]; !ok {
			t.Errorf("missing transformer for %s", k)
		}
	}
}

func TestNewEngine_InvalidConfig(t *testing.T) {
	rs := rules.Default()
	rs.DateShiftDays = -1
	if _, err := NewEngine(WithRules(rs)); err == nil {
		t.Error("expected invalid rules to be rejected")
	}
	if _, err := NewEngine(WithWorkers(0)); err == nil {
		t.Error("expected zero workers to be rejected")
	}
}

type stubTransformer struct{ calls int }

func (s *stubTransformer) Kind() Kind { return KindObservation }

func (s *stubTransformer) Transform(r Resource, env *Env) (Resource, []Warning, error) {
	s.calls++
	return r, nil, nil
}

func TestNewEngine_WithTransformer(t *testing.T) {
	stub := &stubTransformer{}
	e := newTestEngine(t, WithTransformer(stub))
	e.AnonymizeOne(&Observation{ID: "o1"})
	if stub.calls != 1 {
		t.Errorf("expected custom transformer to run once, ran %d", stub.calls)
	}
}

func TestAnonymizeBatch_PatientsFirst(t *testing.T) {
	e := newTestEngine(t, WithWorkers(3))
	docs := []string{
		`{"resourceType":"Observation","id":"O1","subject":{"reference":"Patient/P1"}}`,
		`{"resourceType":"MedicationStatement","id":"M1","subject":{"reference":"Patient/P2"}}`,
		`{"resourceType":"Patient","id":"P1","name":[{"family":"Alpha"}]}`,
		`{"resourceType":"Patient","id":"P2","name":[{"family":"Beta"}]}`,
		`{"resourceType":"Observation","id":"O2","subject":{"reference":"Patient/P2"}}`,
	}
	var rs []Resource
	for _, d := range docs {
		rs = append(rs, mustDecode(t, d))
	}
	rs = append(rs, nil)

	br := e.AnonymizeBatch(context.Background(), rs)
	if br.Succeeded != 5 || br.Failed != 1 {
		t.Fatalf("expected 5 succeeded / 1 failed, got %d / %d", br.Succeeded, br.Failed)
	}
	if br.Warnings != 0 {
		t.Errorf("expected all subjects resolved, got %d warnings", br.Warnings)
	}
	if br.ByKind[KindPatient] != 2 || br.ByKind[KindObservation] != 2 || br.ByKind[KindMedicationStatement] != 1 {
		t.Errorf("unexpected per-kind counts %v", br.ByKind)
	}
	if !errors.Is(br.Results[5].Err, ErrInvalidInput) {
		t.Errorf("expected nil resource to fail with ErrInvalidInput, got %v", br.Results[5].Err)
	}

	p1 := br.Results[2].AnonymizedID()
	o1 := br.Results[0].Resource.(*Observation)
	if o1.Subject.Reference != "Patient/"+p1 {
		t.Errorf("results out of order or unresolved: %q vs %q", o1.Subject.Reference, p1)
	}
	if br.Results[0].OriginalID != "O1" {
		t.Errorf("expected results in input order, got %q first", br.Results[0].OriginalID)
	}
}

func TestAnonymizeBatch_Cancelled(t *testing.T) {
	e := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	br := e.AnonymizeBatch(ctx, []Resource{&Patient{ID: "p1"}})
	if br.Failed != 1 || !errors.Is(br.Results[0].Err, context.Canceled) {
		t.Errorf("expected cancelled resource to fail, got %+v", br.Results[0])
	}
	if _, ok := e.Registry().Lookup(KindPatient, "p1"); ok {
		t.Error("expected no registry write for skipped resource")
	}
}

func TestAnonymize_WithHints(t *testing.T) {
	e := newTestEngine(t)
	out, warns, err := e.Anonymize(
		[]byte(`{"resourceType":"Observation","id":"O9","subject":{"reference":"Patient/P9"}}`),
		map[string]string{"P9": "persisted-9"},
	)
	if err != nil {
		t.Fatalf("Anonymize: %v", err)
	}
	if len(warns) != 0 {
		t.Errorf("unexpected warnings %v", warns)
	}
	if !strings.Contains(string(out), `"reference":"Patient/persisted-9"`) {
		t.Errorf("expected hinted reference, got %s", out)
	}
	if !strings.Contains(string(out), `"resourceType":"Observation"`) {
		t.Errorf("expected resourceType in output, got %s", out)
	}
}

func TestAnonymize_InvalidDocument(t *testing.T) {
	e := newTestEngine(t)
	if _, _, err := e.Anonymize([]byte(`{"resourceType":"Practitioner"}`), nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestAnonymize_RejectedDocumentRecordsNoHints(t *testing.T) {
	e := newTestEngine(t)
	for _, doc := range []string{`{not json`, `{"resourceType":"Practitioner","id":"x"}`} {
		if _, _, err := e.Anonymize([]byte(doc), map[string]string{"PX": "hinted"}); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput for %s, got %v", doc, err)
		}
	}
	if anon, ok := e.Registry().Lookup(KindPatient, "PX"); ok {
		t.Errorf("expected no registry entry after a rejected document, got %q", anon)
	}
}

func TestEngine_ConcurrentCallers(t *testing.T) {
	e := newTestEngine(t)
	var wg sync.WaitGroup
	ids := make([]string, 32)
	names := make([]string, 32)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res := e.AnonymizeOne(&Patient{ID: "same"})
			ids[i] = res.AnonymizedID()
			out, _, err := e.Anonymize([]byte(examplePatient), nil)
			if err != nil {
				t.Error(err)
				return
			}
			names[i] = string(out)
		}(i)
	}
	wg.Wait()
	for i := range ids {
		if ids[i] != ids[0] || names[i] != names[0] {
			t.Fatalf("expected identical output across concurrent callers")
		}
	}
	if e.CacheStatistics()[ClassName] != 1 {
		t.Errorf("expected one cached name, got %d", e.CacheStatistics()[ClassName])
	}
}
