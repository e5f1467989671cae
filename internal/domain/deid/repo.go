package deid

import (
	"context"
	"errors"

	"github.com/ehr/deid/internal/anonymizer"
)

var ErrNotFound = errors.New("not found")

type Repository interface {
	GetSource(ctx context.Context, resourceType, fhirID string) (*SourceResource, error)
	ListSources(ctx context.Context, resourceType string) ([]*SourceResource, error)

	// UpsertAnonymized inserts or, for an already anonymized original,
	// replaces the row.
	UpsertAnonymized(ctx context.Context, a *AnonymizedResource) error
	GetAnonymized(ctx context.Context, resourceType, anonymizedID string) (*AnonymizedResource, error)
	ListAnonymized(ctx context.Context, resourceType string, limit, offset int) ([]*AnonymizedResource, int, error)
	CountAnonymized(ctx context.Context) (map[string]int, error)
	Mappings(ctx context.Context) ([]anonymizer.Mapping, error)

	// InTx runs fn in one transaction; repository calls made with the ctx
	// passed to fn join it.
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
