package fhir

import "encoding/json"

type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// FirstCode returns the code of the first coding, or "" when there is none.
func (cc *CodeableConcept) FirstCode() string {
	if cc == nil || len(cc.Coding) == 0 {
		return ""
	}
	return cc.Coding[0].Code
}

// Period keeps start/end as the raw FHIR dateTime strings so partial dates
// ("2020", "2020-04") survive a decode/encode round trip untouched.
type Period struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// Reference is a FHIR Reference. Members this type does not model are kept
// in Extra and written back on encode.
type Reference struct {
	Reference string `json:"reference,omitempty"`
	Type      string `json:"type,omitempty"`
	Display   string `json:"display,omitempty"`
	Extra     Object `json:"-"`
}

var referenceKeys = []string{"reference", "type", "display"}

type referenceAlias Reference

func (r Reference) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(referenceAlias(r), r.Extra)
}

func (r *Reference) UnmarshalJSON(data []byte) error {
	extra, err := unmarshalWithExtra(data, (*referenceAlias)(r), referenceKeys)
	if err != nil {
		return err
	}
	r.Extra = extra
	return nil
}

// Identifier is a FHIR Identifier. Unmodelled members (assigner, extension)
// are preserved through Extra.
type Identifier struct {
	Use    string           `json:"use,omitempty"`
	Type   *CodeableConcept `json:"type,omitempty"`
	System string           `json:"system,omitempty"`
	Value  string           `json:"value,omitempty"`
	Period *Period          `json:"period,omitempty"`
	Extra  Object           `json:"-"`
}

var identifierKeys = []string{"use", "type", "system", "value", "period"}

type identifierAlias Identifier

func (i Identifier) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(identifierAlias(i), i.Extra)
}

func (i *Identifier) UnmarshalJSON(data []byte) error {
	extra, err := unmarshalWithExtra(data, (*identifierAlias)(i), identifierKeys)
	if err != nil {
		return err
	}
	i.Extra = extra
	return nil
}

// TypeCode returns the first coding code of the identifier type.
func (i Identifier) TypeCode() string {
	return i.Type.FirstCode()
}

type HumanName struct {
	Use    string   `json:"use,omitempty"`
	Text   string   `json:"text,omitempty"`
	Family string   `json:"family,omitempty"`
	Given  []string `json:"given,omitempty"`
	Prefix []string `json:"prefix,omitempty"`
	Suffix []string `json:"suffix,omitempty"`
	Period *Period  `json:"period,omitempty"`
}

type Address struct {
	Use        string   `json:"use,omitempty"`
	Type       string   `json:"type,omitempty"`
	Text       string   `json:"text,omitempty"`
	Line       []string `json:"line,omitempty"`
	City       string   `json:"city,omitempty"`
	District   string   `json:"district,omitempty"`
	State      string   `json:"state,omitempty"`
	PostalCode string   `json:"postalCode,omitempty"`
	Country    string   `json:"country,omitempty"`
	Period     *Period  `json:"period,omitempty"`

	// Extension carries geolocation and similar add-ons; it is never copied
	// into a pseudonymized address.
	Extension []json.RawMessage `json:"extension,omitempty"`
}

// ContactPoint is a FHIR ContactPoint with passthrough of unmodelled members.
type ContactPoint struct {
	System string  `json:"system,omitempty"`
	Value  string  `json:"value,omitempty"`
	Use    string  `json:"use,omitempty"`
	Rank   int     `json:"rank,omitempty"`
	Period *Period `json:"period,omitempty"`
	Extra  Object  `json:"-"`
}

var contactPointKeys = []string{"system", "value", "use", "rank", "period"}

type contactPointAlias ContactPoint

func (cp ContactPoint) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(contactPointAlias(cp), cp.Extra)
}

func (cp *ContactPoint) UnmarshalJSON(data []byte) error {
	extra, err := unmarshalWithExtra(data, (*contactPointAlias)(cp), contactPointKeys)
	if err != nil {
		return err
	}
	cp.Extra = extra
	return nil
}
