package fhir

import (
	"encoding/json"
	"fmt"
	"time"
)

// Bundle types read or produced by this service.
const (
	BundleTypeCollection  = "collection"
	BundleTypeTransaction = "transaction"
	BundleTypeBatch       = "batch"
	BundleTypeSearchset   = "searchset"
)

// Bundle represents a FHIR Bundle resource.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Type         string        `json:"type"`
	Total        *int          `json:"total,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
	Timestamp    *time.Time    `json:"timestamp,omitempty"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
	Request  *BundleRequest  `json:"request,omitempty"`
}

type BundleRequest struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

// ParseBundle decodes a Bundle and rejects any other resource type.
func ParseBundle(data []byte) (*Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	if b.ResourceType != "Bundle" {
		return nil, fmt.Errorf("expected resourceType Bundle, got %q", b.ResourceType)
	}
	return &b, nil
}

// NewCollectionBundle wraps entries in a collection Bundle stamped now.
func NewCollectionBundle(id string, entries []BundleEntry) *Bundle {
	now := time.Now().UTC()
	total := len(entries)
	return &Bundle{
		ResourceType: "Bundle",
		ID:           id,
		Type:         BundleTypeCollection,
		Total:        &total,
		Entry:        entries,
		Timestamp:    &now,
	}
}

// NewOutcomeEntry wraps an OperationOutcome as a bundle entry.
func NewOutcomeEntry(oo *OperationOutcome) BundleEntry {
	raw, _ := json.Marshal(oo)
	return BundleEntry{Resource: raw}
}
