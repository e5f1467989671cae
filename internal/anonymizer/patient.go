package anonymizer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ehr/deid/internal/platform/fhir"
	"github.com/ehr/deid/internal/rules"
	"github.com/ehr/deid/pkg/fhirmodels"
)

type patientTransformer struct{}

func (patientTransformer) Kind() Kind { return KindPatient }

func (patientTransformer) Transform(r Resource, env *Env) (Resource, []Warning, error) {
	p, ok := r.(*Patient)
	if !ok {
		return nil, nil, kindMismatch(KindPatient, r)
	}

	var warns []Warning
	out := &Patient{Rest: p.Rest.Clone()}
	gender := resolveGender(p.Gender())

	if p.Name != nil {
		out.Name = make([]fhir.HumanName, 0, len(p.Name))
		for i, n := range p.Name {
			name, w := pseudonymizeName(env, fmt.Sprintf("Patient.name[%d]", i), n, gender)
			warns = append(warns, w...)
			out.Name = append(out.Name, name)
		}
	}

	if p.Identifier != nil {
		out.Identifier = make([]fhir.Identifier, 0, len(p.Identifier))
		for i, id := range p.Identifier {
			ident, keep, w := transformIdentifier(env, fmt.Sprintf("Patient.identifier[%d]", i), id)
			warns = append(warns, w...)
			// Untyped identifiers that echo the logical id follow it.
			if p.ID != "" && ident.Value == p.ID && id.TypeCode() == "" {
				ident.Value = resourceID(env, p.ID)
			}
			if keep {
				out.Identifier = append(out.Identifier, ident)
			}
		}
	}

	if p.Telecom != nil {
		out.Telecom = make([]fhir.ContactPoint, 0, len(p.Telecom))
		for i, cp := range p.Telecom {
			tc, keep, w := transformTelecom(env, fmt.Sprintf("Patient.telecom[%d]", i), cp)
			warns = append(warns, w...)
			if keep {
				out.Telecom = append(out.Telecom, tc)
			}
		}
	}

	if p.Address != nil {
		out.Address = make([]fhir.Address, 0, len(p.Address))
		for i, a := range p.Address {
			addr, w := pseudonymizeAddress(env, fmt.Sprintf("Patient.address[%d]", i), a)
			warns = append(warns, w...)
			out.Address = append(out.Address, addr)
		}
	}

	if p.BirthDate != nil {
		bd := *p.BirthDate
		if env.Rules.ShiftDates {
			shifted, ok := ShiftDate(bd, env.Rules.DateShiftDays, env.Rules.KeepBirthYear)
			if !ok {
				warns = append(warns, generationFailure("Patient.birthDate", "not a full calendar date, left unshifted"))
			}
			bd = shifted
		}
		out.BirthDate = &bd
	}

	if p.Extension != nil {
		out.Extension = make([]fhir.Object, 0, len(p.Extension))
		for _, ext := range p.Extension {
			if env.Rules.IsSensitiveExtension(ext.String("url")) {
				continue
			}
			out.Extension = append(out.Extension, ext)
		}
	}

	for _, field := range env.Rules.FieldsToRemove(fhirmodels.ResourcePatient) {
		out.Rest.Delete(field)
	}
	if !env.Rules.KeepGender {
		out.Rest.Delete("gender")
	}

	out.ID = resourceID(env, p.ID)
	record(env, KindPatient, p.ID, out.ID)
	return out, warns, nil
}

func resolveGender(g string) string {
	switch strings.ToLower(strings.TrimSpace(g)) {
	case "male", "m":
		return fhirmodels.GenderMale
	case "female", "f":
		return fhirmodels.GenderFemale
	}
	return fhirmodels.GenderUnknown
}

// pseudonymizeName replaces family and given with a cached pair keyed by
// (family, gender). Every patient sharing a surname and gender gets the same
// pair, except that a cached first name equal to one of this patient's given
// names is drawn again for this patient only.
func pseudonymizeName(env *Env, path string, n fhir.HumanName, gender string) (fhir.HumanName, []Warning) {
	var warns []Warning
	family := strings.TrimSpace(n.Family)
	if family == "" {
		family = strings.TrimSpace(strings.Join(n.Given, " "))
	}
	if family == "" {
		warns = append(warns, generationFailure(path, "name has no family or given part, placeholder used"))
	}

	encoded := env.Cache.GetOrCreate(ClassName, family+"|"+gender, func() string {
		b, _ := json.Marshal(env.Generator.Name(family, n.Given, gender))
		return string(b)
	})
	var pair NamePair
	if err := json.Unmarshal([]byte(encoded), &pair); err != nil {
		pair = placeholderName
		warns = append(warns, generationFailure(path, "cached name could not be decoded"))
	}
	if family != "" && matchesAny(pair.First, n.Given) {
		pair.First = env.Generator.Name(family, n.Given, gender).First
	}

	use := n.Use
	if use == "" {
		use = "official"
	}
	return fhir.HumanName{
		Use:    use,
		Family: pair.Last,
		Given:  []string{pair.First},
		Prefix: n.Prefix,
	}, warns
}

// transformIdentifier applies the identifier policy table. The second
// return value is false when the identifier is dropped.
func transformIdentifier(env *Env, path string, id fhir.Identifier) (fhir.Identifier, bool, []Warning) {
	code := id.TypeCode()
	rule := env.Rules.IdentifierRuleFor(code)
	switch rule.Action {
	case rules.ActionRemove:
		return id, false, nil
	case rules.ActionRedact:
		id.Value = rules.SSNMask
		return id, true, nil
	case rules.ActionPseudonymize:
		if strings.TrimSpace(id.Value) == "" {
			id.Value = PlaceholderID(rule.Length)
			return id, true, []Warning{generationFailure(path, "empty %s identifier, placeholder used", code)}
		}
		class := ClassID
		if code == fhirmodels.IdentifierSSN {
			class = ClassSSN
		}
		original := id.Value
		id.Value = env.Cache.GetOrCreate(class, code+"|"+original, func() string {
			return env.Generator.GenericID(original, rule.Length)
		})
		return id, true, nil
	}
	return id, true, nil
}

// transformTelecom pseudonymizes phones through the cache and synthesizes
// emails fresh. The second return value is false when the contact point is
// dropped.
func transformTelecom(env *Env, path string, cp fhir.ContactPoint) (fhir.ContactPoint, bool, []Warning) {
	action := env.Rules.TelecomAction(cp.System)
	var warns []Warning
	if (action == rules.ActionPseudonymize || action == rules.ActionSynthesize) && strings.TrimSpace(cp.Value) == "" {
		warns = append(warns, generationFailure(path, "empty %s value, placeholder used", cp.System))
	}
	switch action {
	case rules.ActionRemove:
		return cp, false, nil
	case rules.ActionPseudonymize:
		original := cp.Value
		cp.Value = env.Cache.GetOrCreate(ClassPhone, original, func() string {
			return env.Generator.Phone(original)
		})
	case rules.ActionSynthesize:
		cp.Value = env.Generator.Email(cp.Value)
	}
	return cp, true, warns
}

// pseudonymizeAddress maps the whole structured address to one cached
// synthetic address. The postal code keeps its 3-character prefix when
// KeepZipCodePrefix is set.
func pseudonymizeAddress(env *Env, path string, a fhir.Address) (fhir.Address, []Warning) {
	var warns []Warning
	key := addressKey(a)
	if key == "" {
		warns = append(warns, generationFailure(path, "empty address, placeholder used"))
	}
	encoded := env.Cache.GetOrCreate(ClassAddress, key, func() string {
		b, _ := json.Marshal(env.Generator.Address(key))
		return string(b)
	})
	var synth SyntheticAddress
	if err := json.Unmarshal([]byte(encoded), &synth); err != nil {
		synth = placeholderAddress
		warns = append(warns, generationFailure(path, "cached address could not be decoded"))
	}

	postal := synth.PostalCode
	if env.Rules.KeepZipCodePrefix {
		if orig := []rune(strings.TrimSpace(a.PostalCode)); len(orig) >= rules.ZipPrefixLength {
			postal = string(orig[:rules.ZipPrefixLength]) + rules.ZipSuffix
		}
	}
	return fhir.Address{
		Use:        a.Use,
		Type:       a.Type,
		Line:       synth.Line,
		City:       synth.City,
		State:      synth.State,
		PostalCode: postal,
		Country:    synth.Country,
	}, warns
}

// addressKey is the canonical form of the identifying address parts, or ""
// when none are set.
func addressKey(a fhir.Address) string {
	parts := map[string]any{}
	if len(a.Line) > 0 {
		parts["line"] = a.Line
	}
	for k, v := range map[string]string{
		"text":       a.Text,
		"city":       a.City,
		"district":   a.District,
		"state":      a.State,
		"postalCode": a.PostalCode,
		"country":    a.Country,
	} {
		if strings.TrimSpace(v) != "" {
			parts[k] = v
		}
	}
	if len(parts) == 0 {
		return ""
	}
	// encoding/json sorts map keys.
	b, _ := json.Marshal(parts)
	return string(b)
}
