package deid

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/deid/internal/anonymizer"
	"github.com/ehr/deid/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *repoPG) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.RunInTx(ctx, r.pool, fn)
}

const sourceCols = `id, fhir_id, resource_type, resource_data, version_id, last_updated, sync_date, source_url`

func scanSource(row pgx.Row) (*SourceResource, error) {
	var s SourceResource
	err := row.Scan(&s.ID, &s.FHIRID, &s.ResourceType, &s.Data, &s.VersionID, &s.LastUpdated, &s.SyncDate, &s.SourceURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &s, err
}

func (r *repoPG) GetSource(ctx context.Context, resourceType, fhirID string) (*SourceResource, error) {
	return scanSource(r.conn(ctx).QueryRow(ctx,
		`SELECT `+sourceCols+` FROM fhir_resources WHERE resource_type = $1 AND fhir_id = $2`,
		resourceType, fhirID))
}

func (r *repoPG) ListSources(ctx context.Context, resourceType string) ([]*SourceResource, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+sourceCols+` FROM fhir_resources WHERE resource_type = $1 ORDER BY id`, resourceType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*SourceResource
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const anonCols = `id, original_fhir_id, anonymized_fhir_id, resource_type, resource_data, anonymization_date, anonymization_method`

func scanAnonymized(row pgx.Row) (*AnonymizedResource, error) {
	var a AnonymizedResource
	err := row.Scan(&a.ID, &a.OriginalFHIRID, &a.AnonymizedFHIRID, &a.ResourceType, &a.Data, &a.AnonymizationDate, &a.Method)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &a, err
}

func (r *repoPG) UpsertAnonymized(ctx context.Context, a *AnonymizedResource) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Method == "" {
		a.Method = MethodFakerPseudonymization
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO fhir_resources_anonymized (id, original_fhir_id, anonymized_fhir_id, resource_type, resource_data, anonymization_method)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (resource_type, original_fhir_id) DO UPDATE SET
			anonymized_fhir_id = EXCLUDED.anonymized_fhir_id,
			resource_data = EXCLUDED.resource_data,
			anonymization_method = EXCLUDED.anonymization_method,
			anonymization_date = NOW()
		RETURNING id, anonymization_date`,
		a.ID, a.OriginalFHIRID, a.AnonymizedFHIRID, a.ResourceType, a.Data, a.Method,
	).Scan(&a.ID, &a.AnonymizationDate)
}

func (r *repoPG) GetAnonymized(ctx context.Context, resourceType, anonymizedID string) (*AnonymizedResource, error) {
	return scanAnonymized(r.conn(ctx).QueryRow(ctx,
		`SELECT `+anonCols+` FROM fhir_resources_anonymized WHERE resource_type = $1 AND anonymized_fhir_id = $2`,
		resourceType, anonymizedID))
}

func (r *repoPG) ListAnonymized(ctx context.Context, resourceType string, limit, offset int) ([]*AnonymizedResource, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM fhir_resources_anonymized WHERE resource_type = $1`, resourceType,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+anonCols+` FROM fhir_resources_anonymized WHERE resource_type = $1
		ORDER BY anonymization_date DESC, id LIMIT $2 OFFSET $3`, resourceType, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []*AnonymizedResource
	for rows.Next() {
		a, err := scanAnonymized(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

func (r *repoPG) CountAnonymized(ctx context.Context) (map[string]int, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT resource_type, COUNT(*) FROM fhir_resources_anonymized GROUP BY resource_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var rt string
		var n int
		if err := rows.Scan(&rt, &n); err != nil {
			return nil, err
		}
		counts[rt] = n
	}
	return counts, rows.Err()
}

func (r *repoPG) Mappings(ctx context.Context) ([]anonymizer.Mapping, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT resource_type, original_fhir_id, anonymized_fhir_id FROM fhir_resources_anonymized`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []anonymizer.Mapping
	for rows.Next() {
		var rt, orig, anon string
		if err := rows.Scan(&rt, &orig, &anon); err != nil {
			return nil, err
		}
		kind, err := anonymizer.ParseKind(rt)
		if err != nil {
			return nil, fmt.Errorf("stored mapping: %w", err)
		}
		out = append(out, anonymizer.NewMapping(kind, orig, anon))
	}
	return out, rows.Err()
}
