package anonymizer

import (
	"fmt"

	"github.com/ehr/deid/internal/platform/fhir"
	"github.com/ehr/deid/internal/rules"
	"github.com/ehr/deid/pkg/fhirmodels"
)

// Env is what a transformer may consult. Cache and Registry are shared and
// safe for concurrent use; Rules and Generator are immutable.
type Env struct {
	Rules     rules.RuleSet
	Cache     PseudonymCache
	Generator IdentityGenerator
	Registry  Registry
}

// Transformer anonymizes resources of one kind. Transform never mutates its
// input; it returns a new resource, any warnings, and an error only for
// ErrInvalidInput conditions. Registry writes happen only once every
// replacement value has been computed.
type Transformer interface {
	Kind() Kind
	Transform(r Resource, env *Env) (Resource, []Warning, error)
}

// DefaultTransformer returns the built-in transformer for a kind.
func DefaultTransformer(kind Kind) (Transformer, error) {
	switch kind {
	case KindPatient:
		return patientTransformer{}, nil
	case KindObservation:
		return observationTransformer{}, nil
	case KindMedicationStatement:
		return medicationStatementTransformer{}, nil
	case KindUnknown:
	}
	return nil, fmt.Errorf("%w: no transformer for %s", ErrInvalidInput, kind)
}

func kindMismatch(want Kind, r Resource) error {
	if r == nil {
		return fmt.Errorf("%w: %s transformer got nil resource", ErrInvalidInput, want)
	}
	return fmt.Errorf("%w: %s transformer got %s", ErrInvalidInput, want, r.Kind())
}

// resourceID derives the anonymized logical id. An absent id stays absent.
func resourceID(env *Env, original string) string {
	if original == "" {
		return ""
	}
	return env.Generator.GenericID(original, IDLength)
}

// record writes the id mapping. Only called after a transform succeeded.
func record(env *Env, kind Kind, originalID, anonymizedID string) {
	if originalID == "" || anonymizedID == "" {
		return
	}
	env.Registry.Record(kind, originalID, anonymizedID)
}

// rewriteSubject points a patient reference at the patient's anonymized id.
// An unknown target is left as is and reported.
func rewriteSubject(env *Env, path string, ref *fhir.Reference) (*fhir.Reference, []Warning) {
	if ref == nil {
		return nil, nil
	}
	out := scrubReference(*ref)
	if ref.Reference == "" {
		return &out, nil
	}
	rt, id, ok := fhir.ParseReference(ref.Reference)
	if !ok {
		return &out, []Warning{unresolved(path, "reference is not a literal resource reference")}
	}
	if rt != "" && rt != KindPatient.String() {
		return &out, []Warning{unresolved(path, "reference targets %s, only Patient subjects are rewritten", rt)}
	}
	anon, found := env.Registry.Lookup(KindPatient, id)
	if !found {
		return &out, []Warning{unresolved(path, "Patient has not been anonymized")}
	}
	out.Reference = fhir.FormatReference(KindPatient.String(), anon)
	return &out, nil
}

// rewriteEncounter derives the encounter pseudonym from the original id.
// Encounters are not transformed on their own, so no registry entry is needed.
func rewriteEncounter(env *Env, ref *fhir.Reference) *fhir.Reference {
	if ref == nil {
		return nil
	}
	out := scrubReference(*ref)
	if ref.Reference == "" {
		return &out
	}
	_, id, ok := fhir.ParseReference(ref.Reference)
	if !ok {
		id = ref.Reference
	}
	out.Reference = fhir.FormatReference(fhirmodels.ResourceEncounter, env.Generator.GenericID(id, IDLength))
	return &out
}

// scrubReference drops the members of a reference that describe the target
// in human terms.
func scrubReference(ref fhir.Reference) fhir.Reference {
	ref.Display = ""
	if ref.Extra.Has("identifier") {
		ref.Extra = ref.Extra.Clone()
		ref.Extra.Delete("identifier")
	}
	return ref
}
