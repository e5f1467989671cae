package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// overlay mirrors RuleSet with pointer flags so a file can switch a single
// option off without restating the rest.
type overlay struct {
	ShiftDates          *bool                     `yaml:"shiftDates"`
	DateShiftDays       *int                      `yaml:"dateShiftDays"`
	KeepBirthYear       *bool                     `yaml:"keepBirthYear"`
	KeepZipCodePrefix   *bool                     `yaml:"keepZipCodePrefix"`
	RedactSSN           *bool                     `yaml:"redactSsn"`
	KeepGender          *bool                     `yaml:"keepGender"`
	Identifiers         map[string]IdentifierRule `yaml:"identifiers"`
	Telecom             map[string]Action         `yaml:"telecom"`
	RemoveFields        map[string][]string       `yaml:"removeFields"`
	SensitiveExtensions []string                  `yaml:"sensitiveExtensions"`
}

// LoadFile reads a YAML overlay from path and applies it on top of base.
// Maps are merged key by key; the extension list replaces the base list.
func LoadFile(path string, base RuleSet) (RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read rules file %s: %w", path, err)
	}
	return Parse(data, base)
}

// Parse applies a YAML overlay document on top of base.
func Parse(data []byte, base RuleSet) (RuleSet, error) {
	var o overlay
	if err := yaml.Unmarshal(data, &o); err != nil {
		return base, fmt.Errorf("parse rules: %w", err)
	}

	out := base.clone()
	if o.ShiftDates != nil {
		out.ShiftDates = *o.ShiftDates
	}
	if o.DateShiftDays != nil {
		out.DateShiftDays = *o.DateShiftDays
	}
	if o.KeepBirthYear != nil {
		out.KeepBirthYear = *o.KeepBirthYear
	}
	if o.KeepZipCodePrefix != nil {
		out.KeepZipCodePrefix = *o.KeepZipCodePrefix
	}
	if o.RedactSSN != nil {
		out.RedactSSN = *o.RedactSSN
	}
	if o.KeepGender != nil {
		out.KeepGender = *o.KeepGender
	}
	for code, rule := range o.Identifiers {
		out.Identifiers[code] = rule
	}
	for system, a := range o.Telecom {
		out.Telecom[system] = a
	}
	for rt, fields := range o.RemoveFields {
		out.RemoveFields[rt] = append([]string(nil), fields...)
	}
	if o.SensitiveExtensions != nil {
		out.SensitiveExtensions = append([]string(nil), o.SensitiveExtensions...)
	}

	if err := out.Validate(); err != nil {
		return base, err
	}
	return out, nil
}

// Marshal renders the rule set as YAML.
func (r RuleSet) Marshal() ([]byte, error) {
	return yaml.Marshal(r)
}

func (r RuleSet) clone() RuleSet {
	out := r
	out.Identifiers = make(map[string]IdentifierRule, len(r.Identifiers))
	for k, v := range r.Identifiers {
		out.Identifiers[k] = v
	}
	out.Telecom = make(map[string]Action, len(r.Telecom))
	for k, v := range r.Telecom {
		out.Telecom[k] = v
	}
	out.RemoveFields = make(map[string][]string, len(r.RemoveFields))
	for k, v := range r.RemoveFields {
		out.RemoveFields[k] = append([]string(nil), v...)
	}
	out.SensitiveExtensions = append([]string(nil), r.SensitiveExtensions...)
	return out
}
