package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/newsdesk/search/internal/models"
	"github.com/newsdesk/search/internal/observability"
)

const availabilityCacheKey = "semantic"

// EmbeddingPresence reports whether the store holds embeddings for a model.
type EmbeddingPresence interface {
	HasAny(ctx context.Context, model string) (bool, error)
}

// AvailabilityProbe decides whether the semantic path can run. Verdicts are cached for a TTL;
// failed probes are not cached so the next request retries.
type AvailabilityProbe struct {
	presence           EmbeddingPresence
	model              string
	providerConfigured bool
	cache              *expirable.LRU[string, models.Availability]
	group              singleflight.Group
	cacheMetrics       observability.CacheMetrics
	logger             *slog.Logger
	now                func() time.Time
}

// AvailabilityProbeParams configures AvailabilityProbe. TTL <= 0 disables caching; CacheMetrics may be nil.
type AvailabilityProbeParams struct {
	Presence           EmbeddingPresence
	Model              string
	ProviderConfigured bool
	TTL                time.Duration
	CacheMetrics       observability.CacheMetrics
	Logger             *slog.Logger
}

// NewAvailabilityProbe creates an AvailabilityProbe.
func NewAvailabilityProbe(p AvailabilityProbeParams) *AvailabilityProbe {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	probe := &AvailabilityProbe{
		presence:           p.Presence,
		model:              p.Model,
		providerConfigured: p.ProviderConfigured,
		cacheMetrics:       p.CacheMetrics,
		logger:             logger,
		now:                time.Now,
	}

	if p.TTL > 0 {
		probe.cache = expirable.NewLRU[string, models.Availability](1, nil, p.TTL)
	}

	return probe
}

// Probe returns the current availability. It never fails; a store error yields probe_failed.
func (p *AvailabilityProbe) Probe(ctx context.Context) models.Availability {
	if !p.providerConfigured {
		return p.verdict(false, models.AvailabilityNoEmbeddingProvider)
	}

	if p.cache != nil {
		if a, ok := p.cache.Get(availabilityCacheKey); ok {
			p.recordCache(ctx, true)

			return a
		}

		p.recordCache(ctx, false)
	}

	v, _, _ := p.group.Do(availabilityCacheKey, func() (any, error) {
		ok, err := p.presence.HasAny(ctx, p.model)
		if err != nil {
			p.logger.WarnContext(ctx, "availability probe failed", "model", p.model, "error", err)

			return p.verdict(false, models.AvailabilityProbeFailed), nil
		}

		a := p.verdict(true, models.AvailabilityOK)
		if !ok {
			a = p.verdict(false, models.AvailabilityEmbeddingsEmpty)
		}

		if p.cache != nil {
			p.cache.Add(availabilityCacheKey, a)
		}

		return a, nil
	})

	a, _ := v.(models.Availability)

	return a
}

// Invalidate drops the cached verdict, e.g. after the first embedding for the model is stored.
func (p *AvailabilityProbe) Invalidate() {
	if p.cache != nil {
		p.cache.Remove(availabilityCacheKey)
	}
}

func (p *AvailabilityProbe) verdict(enabled bool, reason models.AvailabilityReason) models.Availability {
	return models.Availability{
		SemanticEnabled: enabled,
		Reason:          reason,
		Model:           p.model,
		CheckedAt:       p.now().UTC(),
	}
}

func (p *AvailabilityProbe) recordCache(ctx context.Context, hit bool) {
	if p.cacheMetrics == nil {
		return
	}

	p.cacheMetrics.RecordLookup(ctx, observability.CacheAvailability, hit)
}
