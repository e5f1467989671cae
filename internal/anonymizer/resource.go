package anonymizer

import (
	"encoding/json"
	"fmt"

	"github.com/ehr/deid/internal/platform/fhir"
	"github.com/ehr/deid/pkg/fhirmodels"
)

// Kind is the closed set of resource kinds the engine can transform.
type Kind int

const (
	KindUnknown Kind = iota
	KindPatient
	KindObservation
	KindMedicationStatement
)

// Kinds lists every transformable kind in processing order: a kind appears
// after every kind it references.
func Kinds() []Kind {
	return []Kind{KindPatient, KindObservation, KindMedicationStatement}
}

func (k Kind) String() string {
	switch k {
	case KindPatient:
		return fhirmodels.ResourcePatient
	case KindObservation:
		return fhirmodels.ResourceObservation
	case KindMedicationStatement:
		return fhirmodels.ResourceMedicationStatement
	}
	return "Unknown"
}

// ParseKind maps a FHIR resourceType to a Kind.
func ParseKind(resourceType string) (Kind, error) {
	for _, k := range Kinds() {
		if k.String() == resourceType {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("%w: unsupported resourceType %q", ErrInvalidInput, resourceType)
}

// Resource is one decoded clinical resource. The interface is sealed; every
// implementation lives in this package.
type Resource interface {
	Kind() Kind
	// ResourceID is the resource's own logical id ("" when absent).
	ResourceID() string
	sealed()
}

// Patient carries the members the anonymizer rewrites as typed fields; all
// other members ride along in Rest. Nil slices mean "absent in the input".
type Patient struct {
	ID         string
	BirthDate  *string
	Name       []fhir.HumanName
	Identifier []fhir.Identifier
	Telecom    []fhir.ContactPoint
	Address    []fhir.Address
	Extension  []fhir.Object
	Rest       fhir.Object
}

func (*Patient) Kind() Kind           { return KindPatient }
func (p *Patient) ResourceID() string { return p.ID }
func (*Patient) sealed()              {}

// Gender returns the administrative gender member, if any.
func (p *Patient) Gender() string { return p.Rest.String("gender") }

// Observation exposes the id and the two references the anonymizer rewrites.
type Observation struct {
	ID        string
	Subject   *fhir.Reference
	Encounter *fhir.Reference
	Rest      fhir.Object
}

func (*Observation) Kind() Kind           { return KindObservation }
func (o *Observation) ResourceID() string { return o.ID }
func (*Observation) sealed()              {}

// MedicationStatement exposes the id, subject and context (encounter)
// references.
type MedicationStatement struct {
	ID      string
	Subject *fhir.Reference
	Context *fhir.Reference
	Rest    fhir.Object
}

func (*MedicationStatement) Kind() Kind           { return KindMedicationStatement }
func (m *MedicationStatement) ResourceID() string { return m.ID }
func (*MedicationStatement) sealed()              {}

// DecodeResource parses one resource document. Malformed JSON, a missing or
// unsupported resourceType, or a typed member of the wrong shape all yield
// ErrInvalidInput.
func DecodeResource(data []byte) (Resource, error) {
	obj, err := fhir.ParseObject(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	rt := obj.String("resourceType")
	if rt == "" {
		return nil, fmt.Errorf("%w: missing resourceType", ErrInvalidInput)
	}
	kind, err := ParseKind(rt)
	if err != nil {
		return nil, err
	}
	obj.Delete("resourceType")

	var res Resource
	switch kind {
	case KindPatient:
		res, err = decodePatient(obj)
	case KindObservation:
		res, err = decodeObservation(obj)
	case KindMedicationStatement:
		res, err = decodeMedicationStatement(obj)
	default:
		err = fmt.Errorf("no decoder for %s", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidInput, rt, err)
	}
	return res, nil
}

// EncodeResource renders a resource back to its JSON document.
func EncodeResource(r Resource) ([]byte, error) {
	var (
		obj fhir.Object
		err error
	)
	switch v := r.(type) {
	case *Patient:
		obj, err = encodePatient(v)
	case *Observation:
		obj, err = encodeObservation(v)
	case *MedicationStatement:
		obj, err = encodeMedicationStatement(v)
	default:
		return nil, fmt.Errorf("%w: cannot encode %T", ErrInvalidInput, r)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", r.Kind(), err)
	}
	if err := obj.Set("resourceType", r.Kind().String()); err != nil {
		return nil, err
	}
	return json.Marshal(obj)
}

func takeString(obj fhir.Object, key string) (string, error) {
	var s string
	if _, err := take(obj, key, &s); err != nil {
		return "", err
	}
	return s, nil
}

// take decodes key into v and removes it from obj. It reports whether the
// member was present.
func take(obj fhir.Object, key string, v any) (bool, error) {
	ok, err := obj.Decode(key, v)
	if err != nil {
		return false, err
	}
	if ok {
		obj.Delete(key)
	}
	return ok, nil
}

func decodePatient(obj fhir.Object) (*Patient, error) {
	p := &Patient{}
	var err error
	if p.ID, err = takeString(obj, "id"); err != nil {
		return nil, err
	}
	var birth string
	ok, err := take(obj, "birthDate", &birth)
	if err != nil {
		return nil, err
	}
	if ok {
		p.BirthDate = &birth
	}
	if _, err := take(obj, "name", &p.Name); err != nil {
		return nil, err
	}
	if _, err := take(obj, "identifier", &p.Identifier); err != nil {
		return nil, err
	}
	if _, err := take(obj, "telecom", &p.Telecom); err != nil {
		return nil, err
	}
	if _, err := take(obj, "address", &p.Address); err != nil {
		return nil, err
	}
	if _, err := take(obj, "extension", &p.Extension); err != nil {
		return nil, err
	}
	if _, err := obj.Decode("gender", new(string)); err != nil {
		return nil, err
	}
	p.Rest = obj
	return p, nil
}

func encodePatient(p *Patient) (fhir.Object, error) {
	obj := p.Rest.Clone()
	if obj == nil {
		obj = fhir.Object{}
	}
	if p.ID != "" {
		if err := obj.Set("id", p.ID); err != nil {
			return nil, err
		}
	}
	if p.BirthDate != nil {
		if err := obj.Set("birthDate", *p.BirthDate); err != nil {
			return nil, err
		}
	}
	members := []struct {
		key     string
		present bool
		value   any
	}{
		{"name", p.Name != nil, p.Name},
		{"identifier", p.Identifier != nil, p.Identifier},
		{"telecom", p.Telecom != nil, p.Telecom},
		{"address", p.Address != nil, p.Address},
		{"extension", p.Extension != nil, p.Extension},
	}
	for _, m := range members {
		if !m.present {
			continue
		}
		if err := obj.Set(m.key, m.value); err != nil {
			return nil, err
		}
	}
	return obj, nil
}

func decodeObservation(obj fhir.Object) (*Observation, error) {
	o := &Observation{}
	var err error
	if o.ID, err = takeString(obj, "id"); err != nil {
		return nil, err
	}
	if o.Subject, err = takeReference(obj, "subject"); err != nil {
		return nil, err
	}
	if o.Encounter, err = takeReference(obj, "encounter"); err != nil {
		return nil, err
	}
	o.Rest = obj
	return o, nil
}

func encodeObservation(o *Observation) (fhir.Object, error) {
	return encodeWithReferences(o.Rest, o.ID, map[string]*fhir.Reference{
		"subject":   o.Subject,
		"encounter": o.Encounter,
	})
}

func decodeMedicationStatement(obj fhir.Object) (*MedicationStatement, error) {
	m := &MedicationStatement{}
	var err error
	if m.ID, err = takeString(obj, "id"); err != nil {
		return nil, err
	}
	if m.Subject, err = takeReference(obj, "subject"); err != nil {
		return nil, err
	}
	if m.Context, err = takeReference(obj, "context"); err != nil {
		return nil, err
	}
	m.Rest = obj
	return m, nil
}

func encodeMedicationStatement(m *MedicationStatement) (fhir.Object, error) {
	return encodeWithReferences(m.Rest, m.ID, map[string]*fhir.Reference{
		"subject": m.Subject,
		"context": m.Context,
	})
}

func takeReference(obj fhir.Object, key string) (*fhir.Reference, error) {
	var ref fhir.Reference
	ok, err := take(obj, key, &ref)
	if err != nil || !ok {
		return nil, err
	}
	return &ref, nil
}

func encodeWithReferences(rest fhir.Object, id string, refs map[string]*fhir.Reference) (fhir.Object, error) {
	obj := rest.Clone()
	if obj == nil {
		obj = fhir.Object{}
	}
	if id != "" {
		if err := obj.Set("id", id); err != nil {
			return nil, err
		}
	}
	for key, ref := range refs {
		if ref == nil {
			continue
		}
		if err := obj.Set(key, ref); err != nil {
			return nil, err
		}
	}
	return obj, nil
}
