// Package pipeline orchestrates item generation: cache, pool,
// single-flight external generation, validation with bounded retries,
// and the degraded-success path that keeps callers supplied when the
// external capability misbehaves.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/lgs-platform/backend/internal/cache"
	"github.com/lgs-platform/backend/internal/config"
	"github.com/lgs-platform/backend/internal/fingerprint"
	"github.com/lgs-platform/backend/internal/generator"
	"github.com/lgs-platform/backend/internal/models"
	"github.com/lgs-platform/backend/internal/validator"
)

// ErrExhausted is returned only when every attempt failed to produce any
// parseable item at all. Attempts that parsed but failed validation are
// returned through the degraded-success path instead.
var ErrExhausted = errors.New("generation attempts exhausted with no parseable item")

// ReviewSink receives degraded items for offline quality review.
type ReviewSink interface {
	FlagItem(ctx context.Context, item *models.GeneratedItem, reason string) error
}

// Pipeline is constructed once at process start; all components take it
// by reference.
type Pipeline struct {
	cache     *cache.Manager
	gen       *generator.Generator
	validator *validator.Validator
	fp        *fingerprint.Fingerprint
	cfg       config.GeneratorConfig

	flight singleflight.Group
	review ReviewSink

	cacheHits     atomic.Int64
	poolHits      atomic.Int64
	generated     atomic.Int64
	degraded      atomic.Int64
	parseFailures atomic.Int64
	mutationCalls atomic.Int64
}

func New(cm *cache.Manager, gen *generator.Generator, val *validator.Validator, fp *fingerprint.Fingerprint, cfg config.GeneratorConfig) *Pipeline {
	p := &Pipeline{
		cache:     cm,
		gen:       gen,
		validator: val,
		fp:        fp,
		cfg:       cfg,
	}
	cm.SetRefill(p.refillPool)
	return p
}

// SetReviewSink injects the flagged-item sink. Optional; without one,
// degraded items are only logged.
func (p *Pipeline) SetReviewSink(sink ReviewSink) {
	p.review = sink
}

// Generate resolves one request: point cache, then pool, then a
// single-flighted external generation.
func (p *Pipeline) Generate(ctx context.Context, req models.GenerationRequest) (*models.GeneratedItem, error) {
	if cached := p.cache.Get(ctx, req.CategoryKey); cached != nil {
		p.cacheHits.Add(1)
		return withProvenance(cached, models.ProvenanceCache), nil
	}

	if pooled := p.cache.GetFromPool(req.CategoryKey); pooled != nil {
		p.poolHits.Add(1)
		return withProvenance(pooled, models.ProvenancePool), nil
	}

	// Concurrent misses for the same category attach to the in-flight
	// generation instead of each calling the external capability.
	v, err, _ := p.flight.Do(req.CategoryKey.Hash(), func() (interface{}, error) {
		return p.generateValidated(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	// Waiters on the same flight share one result; hand each caller its
	// own copy so none can mutate the others'.
	return cloneItem(v.(*models.GeneratedItem)), nil
}

// GenerateBatch fans requests out with a bounded concurrency limit and
// returns results in input order. Completed items are cached even if the
// caller abandons the batch mid-flight.
func (p *Pipeline) GenerateBatch(ctx context.Context, reqs []models.GenerationRequest) ([]*models.GeneratedItem, error) {
	results := make([]*models.GeneratedItem, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.BatchConcurrency)

	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			item, err := p.Generate(gctx, req)
			if err != nil {
				return fmt.Errorf("batch request %d (%s/%s): %w", i, req.Subject, req.Topic, err)
			}
			results[i] = item
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// attempt is one parsed-and-validated candidate.
type attempt struct {
	item   *models.GeneratedItem
	result *models.ValidationResult
}

// generateValidated runs the attempt loop: generate (with its own parse
// budget), validate, and either accept, mutate toward the requested
// difficulty, or regenerate. Exhausted attempts fall back to the best
// candidate seen.
func (p *Pipeline) generateValidated(ctx context.Context, req models.GenerationRequest) (*models.GeneratedItem, error) {
	var best, bestClean *attempt
	var mutateBase *models.GeneratedItem
	var lastErr error

	for attemptNo := 1; attemptNo <= p.cfg.MaxAttempts; attemptNo++ {
		item, err := p.generateOnce(ctx, req, mutateBase)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			mutateBase = nil
			continue
		}

		result := p.validator.Validate(item)
		item.Confidence = result.Confidence
		item.Conformance = p.fp.Score(item)

		if result.IsValid {
			p.generated.Add(1)
			p.cacheCompleted(req, item)
			return item, nil
		}

		candidate := &attempt{item: item, result: result}
		if best == nil || candidate.result.Confidence > best.result.Confidence {
			best = candidate
		}
		if !result.HasHardError() && (bestClean == nil || candidate.result.Confidence > bestClean.result.Confidence) {
			bestClean = candidate
		}

		// Only a difficulty misalignment earns a mutation retry; other
		// failures start over with a fresh generation.
		if result.HasKind(models.CheckDifficulty) && !result.HasHardError() {
			mutateBase = item
		} else {
			mutateBase = nil
		}

		lastErr = fmt.Errorf("validation failed: %v", result.Errors)
		log.Printf("[pipeline] %s/%s/%s attempt %d rejected: %v",
			req.Subject, req.Topic, req.Difficulty, attemptNo, result.Errors)
	}

	return p.degradedResult(ctx, req, best, bestClean, lastErr)
}

// degradedResult prefers the best attempt without hard errors; a
// hard-failed attempt is returned only when nothing better exists, so
// callers still receive an item for transient generator trouble.
func (p *Pipeline) degradedResult(ctx context.Context, req models.GenerationRequest, best, bestClean *attempt, lastErr error) (*models.GeneratedItem, error) {
	chosen := bestClean
	if chosen == nil {
		chosen = best
	}
	if chosen == nil {
		return nil, fmt.Errorf("%s/%s/%s: %w (last error: %v)",
			req.Subject, req.Topic, req.Difficulty, ErrExhausted, lastErr)
	}

	p.degraded.Add(1)
	chosen.item.NeedsReview = true

	reason := fmt.Sprintf("degraded after %d attempts: %v", p.cfg.MaxAttempts, chosen.result.Errors)
	log.Printf("[pipeline] %s/%s/%s degraded success (confidence %.2f): %v",
		req.Subject, req.Topic, req.Difficulty, chosen.result.Confidence, chosen.result.Errors)

	if p.review != nil {
		if err := p.review.FlagItem(ctx, chosen.item, reason); err != nil {
			log.Printf("WARN: flag item for review: %v", err)
		}
	}
	return chosen.item, nil
}

// generateOnce spends the parse budget: malformed output and timeouts
// are retried here without consuming a validation attempt.
func (p *Pipeline) generateOnce(ctx context.Context, req models.GenerationRequest, mutateBase *models.GeneratedItem) (*models.GeneratedItem, error) {
	var lastErr error
	for try := 0; try <= p.cfg.ParseRetries; try++ {
		var item *models.GeneratedItem
		var err error
		if mutateBase != nil {
			p.mutationCalls.Add(1)
			item, err = p.gen.MutateItem(ctx, mutateBase, req)
		} else {
			item, err = p.gen.GenerateItem(ctx, req)
		}
		if err == nil {
			return item, nil
		}

		p.parseFailures.Add(1)
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// cacheCompleted writes with a background context so an item finished
// after the caller gave up is still cached for the next request. The
// cache gets its own copy; the original keeps flowing to the caller.
func (p *Pipeline) cacheCompleted(req models.GenerationRequest, item *models.GeneratedItem) {
	p.cache.Set(context.Background(), req.CategoryKey, cloneItem(item))
}

// refillPool generates up to n fresh items for a pool category,
// keeping only fully valid ones. Wired into the cache manager at
// construction.
func (p *Pipeline) refillPool(ctx context.Context, category models.CategoryKey, n int) ([]*models.GeneratedItem, error) {
	req := models.GenerationRequest{CategoryKey: category, ItemType: models.ItemMultipleChoice}

	var items []*models.GeneratedItem
	var lastErr error
	for i := 0; i < n; i++ {
		item, err := p.generateValidated(ctx, req)
		if err != nil {
			lastErr = err
			break
		}
		if item.NeedsReview {
			continue
		}
		items = append(items, withProvenance(item, models.ProvenancePool))
	}
	return items, lastErr
}

// Stats returns orchestrator counters since process start.
func (p *Pipeline) Stats() models.PipelineStats {
	return models.PipelineStats{
		CacheHits:     p.cacheHits.Load(),
		PoolHits:      p.poolHits.Load(),
		Generated:     p.generated.Load(),
		Degraded:      p.degraded.Load(),
		ParseFailures: p.parseFailures.Load(),
		MutationCalls: p.mutationCalls.Load(),
	}
}

// CacheStats exposes the cache tier snapshot through the pipeline so the
// HTTP layer has a single dependency.
func (p *Pipeline) CacheStats(ctx context.Context) models.TierStats {
	return p.cache.Stats(ctx)
}

// Warm pre-fills pools for the given categories before traffic arrives.
func (p *Pipeline) Warm(ctx context.Context, categories []models.CategoryKey) {
	p.cache.Warm(ctx, categories)
}

// withProvenance returns a copy so shared cache/pool values are never
// mutated after handout.
func withProvenance(item *models.GeneratedItem, prov models.Provenance) *models.GeneratedItem {
	clone := cloneItem(item)
	clone.Provenance = prov
	return clone
}

// cloneItem copies the item including its options backing array.
func cloneItem(item *models.GeneratedItem) *models.GeneratedItem {
	clone := *item
	clone.Options = append([]models.Option(nil), item.Options...)
	return &clone
}
