package anonymizer

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/deid/internal/rules"
)

// Engine is the orchestrator shared by every caller. It is safe for
// concurrent use; the cache and registry it holds live as long as it does.
type Engine struct {
	env          Env
	transformers map[Kind]Transformer
	logger       zerolog.Logger
	metrics      *Metrics
	workers      int
}

// Option configures an Engine.
type Option func(*Engine)

func WithRules(r rules.RuleSet) Option { return func(e *Engine) { e.env.Rules = r } }

func WithCache(c PseudonymCache) Option { return func(e *Engine) { e.env.Cache = c } }

func WithGenerator(g IdentityGenerator) Option { return func(e *Engine) { e.env.Generator = g } }

func WithRegistry(r Registry) Option { return func(e *Engine) { e.env.Registry = r } }

func WithLogger(l zerolog.Logger) Option { return func(e *Engine) { e.logger = l } }

func WithMetrics(m *Metrics) Option { return func(e *Engine) { e.metrics = m } }

// WithWorkers bounds how many resources of one kind a batch transforms at
// once.
func WithWorkers(n int) Option { return func(e *Engine) { e.workers = n } }

// WithTransformer replaces the transformer for t.Kind().
func WithTransformer(t Transformer) Option {
	return func(e *Engine) { e.transformers[t.Kind()] = t }
}

const defaultWorkers = 4

// NewEngine builds an engine. Unset collaborators default to the in-memory
// cache and registry, the default rule set and a randomly seeded generator.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		env:          Env{Rules: rules.Default()},
		transformers: make(map[Kind]Transformer),
		logger:       zerolog.Nop(),
		workers:      defaultWorkers,
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.env.Rules.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rules: %w", err)
	}
	if e.workers <= 0 {
		return nil, fmt.Errorf("workers must be positive, got %d", e.workers)
	}
	if e.env.Cache == nil {
		e.env.Cache = NewShardedCache()
	}
	if e.env.Generator == nil {
		e.env.Generator = NewFakerGenerator(0)
	}
	if e.env.Registry == nil {
		e.env.Registry = NewMemoryRegistry()
	}
	for _, k := range Kinds() {
		if _, ok := e.transformers[k]; ok {
			continue
		}
		t, err := DefaultTransformer(k)
		if err != nil {
			return nil, err
		}
		e.transformers[k] = t
	}
	return e, nil
}

// Rules returns the rule set in force.
func (e *Engine) Rules() rules.RuleSet { return e.env.Rules }

// Registry returns the cross-reference registry, e.g. for rehydration.
func (e *Engine) Registry() Registry { return e.env.Registry }

// Result is the outcome for one resource. Resource is nil when Err is set.
type Result struct {
	Kind       Kind
	OriginalID string
	Resource   Resource
	Warnings   []Warning
	Err        error
}

// OK reports whether the resource was transformed.
func (r Result) OK() bool { return r.Err == nil }

// AnonymizedID is the transformed resource's id, or "".
func (r Result) AnonymizedID() string {
	if r.Resource == nil {
		return ""
	}
	return r.Resource.ResourceID()
}

// AnonymizeOne transforms a single resource. A dependent resource's subject
// is only rewritten when its Patient was processed earlier, here or in a
// previous call.
func (e *Engine) AnonymizeOne(r Resource) Result {
	if r == nil {
		return Result{Err: fmt.Errorf("%w: nil resource", ErrInvalidInput)}
	}
	res := Result{Kind: r.Kind(), OriginalID: r.ResourceID()}
	t, ok := e.transformers[r.Kind()]
	if !ok {
		res.Err = fmt.Errorf("%w: no transformer for %s", ErrInvalidInput, r.Kind())
		e.metrics.observe(r.Kind(), res.Err, nil, 0)
		return res
	}

	start := time.Now()
	out, warns, err := t.Transform(r, &e.env)
	e.metrics.observe(r.Kind(), err, warns, time.Since(start))

	if err != nil {
		res.Err = err
		e.logger.Debug().Err(err).Str("kind", r.Kind().String()).Str("original_id", res.OriginalID).Msg("resource rejected")
		return res
	}
	res.Resource = out
	res.Warnings = warns
	for _, w := range warns {
		e.logger.Warn().
			Str("kind", r.Kind().String()).
			Str("anonymized_id", out.ResourceID()).
			Str("code", string(w.Code)).
			Str("path", w.Path).
			Msg(w.Message)
	}
	e.logger.Debug().
		Str("kind", r.Kind().String()).
		Str("original_id", res.OriginalID).
		Str("anonymized_id", out.ResourceID()).
		Msg("resource anonymized")
	return res
}

// BatchResult holds per-resource results in input order plus totals.
type BatchResult struct {
	Results   []Result
	Succeeded int
	Failed    int
	// ByKind counts successfully transformed resources per kind.
	ByKind   map[Kind]int
	Warnings int
}

// AnonymizeBatch transforms every Patient before any dependent resource, so
// subject references inside the batch resolve. Resources of one kind run in
// parallel up to the worker limit. A failing resource never stops the batch;
// a cancelled ctx fails the resources not yet started.
func (e *Engine) AnonymizeBatch(ctx context.Context, rs []Resource) BatchResult {
	e.metrics.batch()
	results := make([]Result, len(rs))
	phases := make(map[Kind][]int, len(Kinds()))
	for i, r := range rs {
		if r == nil {
			results[i] = Result{Err: fmt.Errorf("%w: nil resource", ErrInvalidInput)}
			continue
		}
		if _, ok := e.transformers[r.Kind()]; !ok {
			results[i] = e.AnonymizeOne(r)
			continue
		}
		phases[r.Kind()] = append(phases[r.Kind()], i)
	}

	for _, kind := range Kinds() {
		var g errgroup.Group
		g.SetLimit(e.workers)
		for _, idx := range phases[kind] {
			idx := idx
			if err := ctx.Err(); err != nil {
				results[idx] = Result{Kind: kind, OriginalID: rs[idx].ResourceID(), Err: err}
				continue
			}
			g.Go(func() error {
				results[idx] = e.AnonymizeOne(rs[idx])
				return nil
			})
		}
		_ = g.Wait()
	}

	br := BatchResult{Results: results, ByKind: make(map[Kind]int)}
	for _, r := range results {
		if r.OK() {
			br.Succeeded++
			br.ByKind[r.Kind]++
			br.Warnings += len(r.Warnings)
		} else {
			br.Failed++
		}
	}
	e.metrics.setCache(e.env.Cache.Stats())
	e.logger.Info().
		Int("resources", len(rs)).
		Int("succeeded", br.Succeeded).
		Int("failed", br.Failed).
		Int("warnings", br.Warnings).
		Msg("batch anonymized")
	return br
}

// Anonymize transforms one encoded resource. hints maps original Patient ids
// to anonymized ids already issued elsewhere (for example by the persistence
// layer); they are recorded once the document decodes, so a rejected document
// leaves the registry untouched.
func (e *Engine) Anonymize(doc []byte, hints map[string]string) ([]byte, []Warning, error) {
	r, err := DecodeResource(doc)
	if err != nil {
		return nil, nil, err
	}
	for orig, anon := range hints {
		if orig == "" || anon == "" {
			continue
		}
		e.env.Registry.Record(KindPatient, orig, anon)
	}
	res := e.AnonymizeOne(r)
	if res.Err != nil {
		return nil, nil, res.Err
	}
	out, err := EncodeResource(res.Resource)
	if err != nil {
		return nil, nil, err
	}
	return out, res.Warnings, nil
}

// CacheStatistics returns cached pseudonym counts per value class.
func (e *Engine) CacheStatistics() CacheStats {
	stats := e.env.Cache.Stats()
	e.metrics.setCache(stats)
	return stats
}
