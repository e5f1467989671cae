package deid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/deid/internal/anonymizer"
	"github.com/ehr/deid/internal/platform/fhir"
)

// MappingStore persists registry mappings outside Postgres so that ad hoc
// (non-stored) anonymizations survive a restart.
type MappingStore interface {
	SaveMappings(ctx context.Context, mappings []anonymizer.Mapping) error
	LoadMappings(ctx context.Context) ([]anonymizer.Mapping, error)
}

type Service struct {
	repo     Repository
	engine   *anonymizer.Engine
	mappings MappingStore
	logger   zerolog.Logger
}

func NewService(repo Repository, engine *anonymizer.Engine, logger zerolog.Logger) *Service {
	return &Service{repo: repo, engine: engine, logger: logger}
}

// SetMappingStore attaches an optional mapping store.
func (s *Service) SetMappingStore(m MappingStore) {
	s.mappings = m
}

// Engine returns the anonymization engine the service drives.
func (s *Service) Engine() *anonymizer.Engine {
	return s.engine
}

// Rehydrate loads every persisted mapping into the engine's registry and
// returns how many were loaded. Mapping store entries win over Postgres
// rows for the same original id.
func (s *Service) Rehydrate(ctx context.Context) (int, error) {
	var loaded []anonymizer.Mapping
	if s.repo != nil {
		rows, err := s.repo.Mappings(ctx)
		if err != nil {
			return 0, fmt.Errorf("load stored mappings: %w", err)
		}
		loaded = append(loaded, rows...)
	}
	if s.mappings != nil {
		stored, err := s.mappings.LoadMappings(ctx)
		if err != nil {
			return 0, fmt.Errorf("load cached mappings: %w", err)
		}
		loaded = append(loaded, stored...)
	}
	reg := s.engine.Registry()
	for _, m := range loaded {
		reg.Record(m.Kind, m.OriginalID, m.AnonymizedID)
	}
	s.logger.Info().Int("mappings", len(loaded)).Msg("registry rehydrated")
	return len(loaded), nil
}

// DocumentResult is one anonymized document.
type DocumentResult struct {
	Resource json.RawMessage      `json:"resource"`
	Warnings []anonymizer.Warning `json:"warnings,omitempty"`
}

// AnonymizeDocument transforms one encoded resource without touching the
// database.
func (s *Service) AnonymizeDocument(ctx context.Context, doc []byte, hints map[string]string) (*DocumentResult, error) {
	r, err := anonymizer.DecodeResource(doc)
	if err != nil {
		return nil, err
	}
	for orig, anon := range hints {
		if orig != "" && anon != "" {
			s.engine.Registry().Record(anonymizer.KindPatient, orig, anon)
		}
	}
	res := s.engine.AnonymizeOne(r)
	if res.Err != nil {
		return nil, res.Err
	}
	out, err := anonymizer.EncodeResource(res.Resource)
	if err != nil {
		return nil, err
	}
	s.persistMappings(ctx, []anonymizer.Result{res})
	return &DocumentResult{Resource: out, Warnings: res.Warnings}, nil
}

// BatchItem is the outcome for one input document, in input order.
type BatchItem struct {
	Index        int                  `json:"index"`
	ResourceType string               `json:"resourceType,omitempty"`
	AnonymizedID string               `json:"id,omitempty"`
	Resource     json.RawMessage      `json:"resource,omitempty"`
	Warnings     []anonymizer.Warning `json:"warnings,omitempty"`
	Error        string               `json:"error,omitempty"`
}

type BatchOutcome struct {
	Items     []BatchItem    `json:"items"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	ByKind    map[string]int `json:"byKind"`
}

// AnonymizeDocuments decodes and transforms a batch. Documents that do not
// decode fail individually; the rest go through one engine batch.
func (s *Service) AnonymizeDocuments(ctx context.Context, docs []json.RawMessage) *BatchOutcome {
	items := make([]BatchItem, len(docs))
	var resources []anonymizer.Resource
	var positions []int
	for i, doc := range docs {
		items[i].Index = i
		r, err := anonymizer.DecodeResource(doc)
		if err != nil {
			items[i].Error = err.Error()
			continue
		}
		items[i].ResourceType = r.Kind().String()
		resources = append(resources, r)
		positions = append(positions, i)
	}

	br := s.engine.AnonymizeBatch(ctx, resources)
	for j, res := range br.Results {
		item := &items[positions[j]]
		if res.Err != nil {
			item.Error = res.Err.Error()
			continue
		}
		out, err := anonymizer.EncodeResource(res.Resource)
		if err != nil {
			item.Error = err.Error()
			continue
		}
		item.Resource = out
		item.AnonymizedID = res.AnonymizedID()
		item.Warnings = res.Warnings
	}
	s.persistMappings(ctx, br.Results)

	outcome := &BatchOutcome{Items: items, ByKind: make(map[string]int)}
	for _, it := range items {
		if it.Error != "" {
			outcome.Failed++
			continue
		}
		outcome.Succeeded++
		outcome.ByKind[it.ResourceType]++
	}
	return outcome
}

// AnonymizeBundle anonymizes every entry of a Bundle and returns a new
// collection Bundle. Entries that fail, including resource types the engine
// does not support, are dropped and reported in a trailing OperationOutcome
// entry so no untransformed resource leaves the service.
func (s *Service) AnonymizeBundle(ctx context.Context, data []byte) (*fhir.Bundle, *BatchOutcome, error) {
	in, err := fhir.ParseBundle(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", anonymizer.ErrInvalidInput, err)
	}
	docs := make([]json.RawMessage, len(in.Entry))
	for i, e := range in.Entry {
		docs[i] = e.Resource
	}
	outcome := s.AnonymizeDocuments(ctx, docs)

	entries := make([]fhir.BundleEntry, 0, len(outcome.Items)+1)
	var oo *fhir.OperationOutcome
	for _, it := range outcome.Items {
		if it.Error != "" {
			expr := fmt.Sprintf("Bundle.entry[%d]", it.Index)
			if oo == nil {
				oo = &fhir.OperationOutcome{ResourceType: "OperationOutcome"}
			}
			oo.AddIssue(fhir.IssueSeverityWarning, fhir.IssueTypeProcessing, "entry dropped: "+it.Error, expr)
			continue
		}
		entries = append(entries, fhir.BundleEntry{
			FullURL:  fhir.FormatReference(it.ResourceType, it.AnonymizedID),
			Resource: it.Resource,
		})
	}
	if oo != nil {
		entries = append(entries, fhir.NewOutcomeEntry(oo))
	}
	return fhir.NewCollectionBundle(uuid.NewString(), entries), outcome, nil
}

// StoredResult is the outcome of anonymizing one stored resource.
type StoredResult struct {
	Anonymized *AnonymizedResource  `json:"anonymized"`
	Warnings   []anonymizer.Warning `json:"warnings,omitempty"`
}

// AnonymizeStoredPatient anonymizes the synced Patient fhirID and upserts
// the result. Running it again re-anonymizes the patient.
func (s *Service) AnonymizeStoredPatient(ctx context.Context, fhirID string) (*StoredResult, error) {
	src, err := s.repo.GetSource(ctx, anonymizer.KindPatient.String(), fhirID)
	if err != nil {
		return nil, err
	}
	r, err := anonymizer.DecodeResource(src.Data)
	if err != nil {
		return nil, err
	}
	res := s.engine.AnonymizeOne(r)
	if res.Err != nil {
		return nil, res.Err
	}
	row, err := toRow(src.FHIRID, res)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpsertAnonymized(ctx, row); err != nil {
		return nil, fmt.Errorf("store anonymized patient: %w", err)
	}
	s.persistMappings(ctx, []anonymizer.Result{res})
	return &StoredResult{Anonymized: row, Warnings: res.Warnings}, nil
}

// Failure identifies a stored resource that could not be anonymized by its
// database row id, never by a PHI-bearing value.
type Failure struct {
	ResourceType string `json:"resourceType"`
	RowID        int64  `json:"rowId"`
	Error        string `json:"error"`
}

type RunSummary struct {
	ByKind   map[string]int `json:"byKind"`
	Warnings int            `json:"warnings"`
	Failed   int            `json:"failed"`
	Failures []Failure      `json:"failures,omitempty"`
}

// AnonymizeAll anonymizes every stored resource of every supported kind,
// patients first, and upserts the successes in one transaction.
func (s *Service) AnonymizeAll(ctx context.Context) (*RunSummary, error) {
	summary := &RunSummary{ByKind: make(map[string]int)}
	var sources []*SourceResource
	var resources []anonymizer.Resource
	for _, kind := range anonymizer.Kinds() {
		rows, err := s.repo.ListSources(ctx, kind.String())
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", kind, err)
		}
		for _, src := range rows {
			r, err := anonymizer.DecodeResource(src.Data)
			if err != nil {
				summary.fail(src, err)
				continue
			}
			sources = append(sources, src)
			resources = append(resources, r)
		}
	}

	br := s.engine.AnonymizeBatch(ctx, resources)
	var rows []*AnonymizedResource
	for i, res := range br.Results {
		if res.Err != nil {
			summary.fail(sources[i], res.Err)
			continue
		}
		row, err := toRow(sources[i].FHIRID, res)
		if err != nil {
			summary.fail(sources[i], err)
			continue
		}
		rows = append(rows, row)
		summary.Warnings += len(res.Warnings)
	}

	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		for _, row := range rows {
			if err := s.repo.UpsertAnonymized(ctx, row); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store anonymized resources: %w", err)
	}
	for _, row := range rows {
		summary.ByKind[row.ResourceType]++
	}
	s.persistMappings(ctx, br.Results)

	s.logger.Info().
		Interface("by_kind", summary.ByKind).
		Int("failed", summary.Failed).
		Int("warnings", summary.Warnings).
		Msg("stored resources anonymized")
	return summary, nil
}

func (r *RunSummary) fail(src *SourceResource, err error) {
	r.Failed++
	r.Failures = append(r.Failures, Failure{ResourceType: src.ResourceType, RowID: src.ID, Error: err.Error()})
}

type Stats struct {
	Anonymized map[string]int        `json:"anonymized"`
	Cache      anonymizer.CacheStats `json:"cache"`
	CacheTotal int                   `json:"cacheTotal"`
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	counts, err := s.repo.CountAnonymized(ctx)
	if err != nil {
		return nil, err
	}
	cache := s.engine.CacheStatistics()
	return &Stats{Anonymized: counts, Cache: cache, CacheTotal: cache.Total()}, nil
}

func (s *Service) CacheStats() anonymizer.CacheStats {
	return s.engine.CacheStatistics()
}

func (s *Service) GetAnonymized(ctx context.Context, resourceType, anonymizedID string) (*AnonymizedResource, error) {
	if _, err := anonymizer.ParseKind(resourceType); err != nil {
		return nil, err
	}
	return s.repo.GetAnonymized(ctx, resourceType, anonymizedID)
}

func (s *Service) ListAnonymized(ctx context.Context, resourceType string, limit, offset int) ([]*AnonymizedResource, int, error) {
	if _, err := anonymizer.ParseKind(resourceType); err != nil {
		return nil, 0, err
	}
	return s.repo.ListAnonymized(ctx, resourceType, limit, offset)
}

func toRow(originalID string, res anonymizer.Result) (*AnonymizedResource, error) {
	data, err := anonymizer.EncodeResource(res.Resource)
	if err != nil {
		return nil, err
	}
	if originalID == "" {
		originalID = res.OriginalID
	}
	return &AnonymizedResource{
		OriginalFHIRID:   originalID,
		AnonymizedFHIRID: res.AnonymizedID(),
		ResourceType:     res.Kind.String(),
		Data:             data,
		Method:           MethodFakerPseudonymization,
	}, nil
}

// persistMappings copies successful id mappings to the mapping store. A
// store failure is logged; the anonymization itself already succeeded.
func (s *Service) persistMappings(ctx context.Context, results []anonymizer.Result) {
	if s.mappings == nil {
		return
	}
	var ms []anonymizer.Mapping
	for _, r := range results {
		if r.OK() && r.OriginalID != "" && r.AnonymizedID() != "" {
			ms = append(ms, anonymizer.NewMapping(r.Kind, r.OriginalID, r.AnonymizedID()))
		}
	}
	if err := s.mappings.SaveMappings(ctx, ms); err != nil {
		s.logger.Error().Err(err).Int("mappings", len(ms)).Msg("failed to persist id mappings")
	}
}

// IsInvalidInput reports whether err is the caller's fault.
func IsInvalidInput(err error) bool {
	return errors.Is(err, anonymizer.ErrInvalidInput)
}
