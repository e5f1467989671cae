package anonymizer

import (
	"encoding/json"
	"testing"

	"github.com/ehr/deid/internal/platform/fhir"
)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	base := []Option{WithGenerator(NewFakerGenerator(42))}
	e, err := NewEngine(append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func mustDecode(t *testing.T, doc string) Resource {
	t.Helper()
	r, err := DecodeResource([]byte(doc))
	if err != nil {
		t.Fatalf("DecodeResource: %v", err)
	}
	return r
}

func mustEncode(t *testing.T, r Resource) []byte {
	t.Helper()
	b, err := EncodeResource(r)
	if err != nil {
		t.Fatalf("EncodeResource: %v", err)
	}
	return b
}

func mustObject(t *testing.T, data []byte) fhir.Object {
	t.Helper()
	obj, err := fhir.ParseObject(data)
	if err != nil {
		t.Fatalf("ParseObject: %v", err)
	}
	return obj
}

func decodeMember(t *testing.T, obj fhir.Object, key string, v any) {
	t.Helper()
	raw, ok := obj[key]
	if !ok {
		t.Fatalf("expected member %q", key)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("decode %s: %v", key, err)
	}
}

func refTo(ref string) *fhir.Reference {
	return &fhir.Reference{Reference: ref}
}
