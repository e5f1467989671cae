package deid

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SourceResource is an original resource as synced from the upstream FHIR
// server. It holds PHI and never leaves the service.
type SourceResource struct {
	ID           int64           `db:"id"`
	FHIRID       string          `db:"fhir_id"`
	ResourceType string          `db:"resource_type"`
	Data         json.RawMessage `db:"resource_data"`
	VersionID    *string         `db:"version_id"`
	LastUpdated  *time.Time      `db:"last_updated"`
	SyncDate     time.Time       `db:"sync_date"`
	SourceURL    *string         `db:"source_url"`
}

const MethodFakerPseudonymization = "faker_pseudonymization"

// AnonymizedResource is one transformed resource. The original id is kept
// for upserts and rehydration but is not serialized.
type AnonymizedResource struct {
	ID                uuid.UUID       `db:"id" json:"id"`
	OriginalFHIRID    string          `db:"original_fhir_id" json:"-"`
	AnonymizedFHIRID  string          `db:"anonymized_fhir_id" json:"anonymized_fhir_id"`
	ResourceType      string          `db:"resource_type" json:"resource_type"`
	Data              json.RawMessage `db:"resource_data" json:"resource_data"`
	AnonymizationDate time.Time       `db:"anonymization_date" json:"anonymization_date"`
	Method            string          `db:"anonymization_method" json:"anonymization_method"`
}
