package fhirmodels

// Common FHIR value set constants used by the de-identification rules.

// Resource type names handled by the anonymizer.
const (
	ResourcePatient             = "Patient"
	ResourceObservation         = "Observation"
	ResourceMedicationStatement = "MedicationStatement"
	ResourceEncounter           = "Encounter"
)

// AdministrativeGender codes.
const (
	GenderMale    = "male"
	GenderFemale  = "female"
	GenderOther   = "other"
	GenderUnknown = "unknown"
)

// Identifier type codes from the v2-0203 code system.
const (
	IdentifierSSN            = "SS"
	IdentifierDriversLicense = "DL"
	IdentifierPassport       = "PPN"
	IdentifierMedicalRecord  = "MR"
)

// ContactPoint system codes.
const (
	TelecomPhone = "phone"
	TelecomFax   = "fax"
	TelecomEmail = "email"
	TelecomPager = "pager"
	TelecomURL   = "url"
	TelecomSMS   = "sms"
	TelecomOther = "other"
)

// Extension URLs that carry quasi-identifiers on Synthea-generated patients.
const (
	ExtMothersMaidenName = "http://hl7.org/fhir/StructureDefinition/patient-mothersMaidenName"
	ExtBirthPlace        = "http://hl7.org/fhir/StructureDefinition/patient-birthPlace"
	ExtSyntheaDALY       = "http://synthetichealth.github.io/synthea/disability-adjusted-life-years"
	ExtSyntheaQALY       = "http://synthetichealth.github.io/synthea/quality-adjusted-life-years"
)
