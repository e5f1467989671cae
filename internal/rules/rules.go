// Package rules holds the declarative de-identification policy: what happens
// to each class of value on each resource kind.
package rules

import (
	"fmt"
	"strings"

	"github.com/ehr/deid/pkg/fhirmodels"
)

// Action is what the anonymizer does with a value.
type Action string

const (
	ActionKeep         Action = "keep"
	ActionRedact       Action = "redact"
	ActionPseudonymize Action = "pseudonymize"
	ActionSynthesize   Action = "synthesize"
	ActionRemove       Action = "remove"
)

func (a Action) valid() bool {
	switch a {
	case ActionKeep, ActionRedact, ActionPseudonymize, ActionSynthesize, ActionRemove:
		return true
	}
	return false
}

// SSNMask replaces every redacted social security number.
const SSNMask = "XXX-XX-XXXX"

// MaxDateShiftDays caps the date-shift window at a century.
const MaxDateShiftDays = 36500

// ZipSuffix is appended to a retained 3-character postal prefix.
const ZipSuffix = "XX"

// ZipPrefixLength is the number of postal code characters kept when
// KeepZipCodePrefix is on.
const ZipPrefixLength = 3

// IdentifierRule is the policy for one identifier type code.
type IdentifierRule struct {
	Action Action `yaml:"action"`
	// Length of the derived token for ActionPseudonymize.
	Length int `yaml:"length,omitempty"`
}

// RuleSet is the immutable policy loaded at startup.
type RuleSet struct {
	ShiftDates        bool `yaml:"shiftDates"`
	DateShiftDays     int  `yaml:"dateShiftDays"`
	KeepBirthYear     bool `yaml:"keepBirthYear"`
	KeepZipCodePrefix bool `yaml:"keepZipCodePrefix"`
	RedactSSN         bool `yaml:"redactSsn"`
	KeepGender        bool `yaml:"keepGender"`

	// Identifiers maps a v2-0203 type code to its rule. Codes not listed are
	// passed through.
	Identifiers map[string]IdentifierRule `yaml:"identifiers,omitempty"`

	// Telecom maps a ContactPoint system to its action. Systems not listed
	// are passed through.
	Telecom map[string]Action `yaml:"telecom,omitempty"`

	// RemoveFields lists top-level members dropped per resource type.
	RemoveFields map[string][]string `yaml:"removeFields,omitempty"`

	// SensitiveExtensions lists extension URLs dropped from a resource.
	SensitiveExtensions []string `yaml:"sensitiveExtensions,omitempty"`
}

// Default returns the rule set the service ships with.
func Default() RuleSet {
	return RuleSet{
		ShiftDates:        true,
		DateShiftDays:     30,
		KeepBirthYear:     true,
		KeepZipCodePrefix: true,
		RedactSSN:         true,
		KeepGender:        true,
		Identifiers: map[string]IdentifierRule{
			fhirmodels.IdentifierSSN:            {Action: ActionRedact},
			fhirmodels.IdentifierDriversLicense: {Action: ActionPseudonymize, Length: 12},
			fhirmodels.IdentifierPassport:       {Action: ActionPseudonymize, Length: 12},
			fhirmodels.IdentifierMedicalRecord:  {Action: ActionPseudonymize, Length: 16},
		},
		Telecom: map[string]Action{
			fhirmodels.TelecomPhone: ActionPseudonymize,
			fhirmodels.TelecomFax:   ActionPseudonymize,
			fhirmodels.TelecomSMS:   ActionPseudonymize,
			fhirmodels.TelecomEmail: ActionSynthesize,
		},
		RemoveFields: map[string][]string{
			fhirmodels.ResourcePatient: {"photo", "text", "contact"},
		},
		SensitiveExtensions: []string{
			fhirmodels.ExtMothersMaidenName,
			fhirmodels.ExtBirthPlace,
			fhirmodels.ExtSyntheaDALY,
			fhirmodels.ExtSyntheaQALY,
		},
	}
}

// IdentifierRuleFor resolves the rule for an identifier type code. An SSN
// falls back to a 12-character pseudonym when RedactSSN is off.
func (r RuleSet) IdentifierRuleFor(code string) IdentifierRule {
	rule, ok := r.Identifiers[code]
	if !ok {
		return IdentifierRule{Action: ActionKeep}
	}
	if code == fhirmodels.IdentifierSSN && rule.Action == ActionRedact && !r.RedactSSN {
		return IdentifierRule{Action: ActionPseudonymize, Length: 12}
	}
	return rule
}

// TelecomAction resolves the action for a ContactPoint system.
func (r RuleSet) TelecomAction(system string) Action {
	if a, ok := r.Telecom[strings.ToLower(system)]; ok {
		return a
	}
	return ActionKeep
}

// IsSensitiveExtension reports whether an extension URL must be dropped.
func (r RuleSet) IsSensitiveExtension(url string) bool {
	for _, u := range r.SensitiveExtensions {
		if u == url {
			return true
		}
	}
	return false
}

// FieldsToRemove returns the top-level members dropped for a resource type.
func (r RuleSet) FieldsToRemove(resourceType string) []string {
	return r.RemoveFields[resourceType]
}

// Validate checks the rule set for values the anonymizer cannot apply.
func (r RuleSet) Validate() error {
	if r.DateShiftDays < 0 || r.DateShiftDays > MaxDateShiftDays {
		return fmt.Errorf("dateShiftDays must be between 0 and %d, got %d", MaxDateShiftDays, r.DateShiftDays)
	}
	for code, rule := range r.Identifiers {
		switch rule.Action {
		case ActionKeep, ActionRedact, ActionRemove:
		case ActionPseudonymize:
			if rule.Length <= 0 || rule.Length > 64 {
				return fmt.Errorf("identifier %q: length must be between 1 and 64, got %d", code, rule.Length)
			}
		default:
			return fmt.Errorf("identifier %q: unsupported action %q", code, rule.Action)
		}
	}
	for system, a := range r.Telecom {
		if !a.valid() || a == ActionRedact {
			return fmt.Errorf("telecom %q: unsupported action %q", system, a)
		}
	}
	return nil
}
