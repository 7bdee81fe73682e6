// Package enrich adds an AI-generated business summary to each lead
// using the Perplexity Sonar API.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadgen-cli/internal/config"
	"github.com/sells-group/leadgen-cli/internal/cost"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/resilience"
	"github.com/sells-group/leadgen-cli/pkg/perplexity"
)

const systemPrompt = "You are a business research assistant. " +
	"Provide concise, factual summaries about businesses. " +
	"Do not use markdown formatting. Keep responses to 2-3 sentences."

// costEstimateThreshold is the un-enriched lead count above which the
// projected API spend is logged before starting.
const costEstimateThreshold = 20

// Enricher fills the BusinessInfo field on each lead. Implementations
// must always return an export-ready list: every lead carries a non-empty
// summary, falling back to deterministic text when the API cannot help.
// A non-nil error signals degraded output, not a failed batch.
type Enricher interface {
	Enrich(ctx context.Context, leads []model.Lead) ([]model.Lead, error)
}

// PerplexityEnricher calls Perplexity once per un-enriched lead, paced by
// a rate limiter, with per-call retry on transient failures.
type PerplexityEnricher struct {
	client      perplexity.Client
	limiter     *rate.Limiter
	maxAttempts int
	backoffBase time.Duration
	calc        *cost.Calculator
}

// NewPerplexityEnricher creates an enricher from configuration.
func NewPerplexityEnricher(client perplexity.Client, cfg config.EnrichConfig, calc *cost.Calculator) *PerplexityEnricher {
	delay := time.Duration(cfg.RateLimitDelayMillis) * time.Millisecond
	var limiter *rate.Limiter
	if delay > 0 {
		limiter = rate.NewLimiter(rate.Every(delay), 1)
	} else {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &PerplexityEnricher{
		client:      client,
		limiter:     limiter,
		maxAttempts: cfg.MaxAttempts,
		backoffBase: time.Duration(cfg.BackoffBaseSecs) * time.Second,
		calc:        calc,
	}
}

// Enrich fills BusinessInfo on every lead, preserving order. Leads that
// already carry a summary are left untouched. Per-lead exhaustion degrades
// that lead to a fallback summary and moves on. Two conditions abort the
// remaining leads (which still get fallbacks): context cancellation, and a
// 4xx response from the API, since retrying with the same credentials
// cannot succeed. The returned error describes the degradation; the lead
// list is export-ready either way.
func (e *PerplexityEnricher) Enrich(ctx context.Context, leads []model.Lead) ([]model.Lead, error) {
	if len(leads) == 0 {
		return leads, nil
	}

	log := zap.L().With(zap.String("component", "enricher"))

	out := make([]model.Lead, len(leads))
	copy(out, leads)

	pending := 0
	for _, l := range out {
		if !l.Enriched() {
			pending++
		}
	}
	if pending > costEstimateThreshold && e.calc != nil {
		log.Info("cost estimate",
			zap.Int("leads", pending),
			zap.Float64("estimated_usd", e.calc.Enrich(pending)),
		)
	}

	var enriched, fallbacks int
	for i := range out {
		if out[i].Enriched() {
			enriched++
			continue
		}

		if err := e.limiter.Wait(ctx); err != nil {
			fallbacks += fillFallbacks(out[i:])
			log.Warn("enrichment interrupted, remaining leads got fallback summaries",
				zap.Int("position", i+1),
				zap.Int("total", len(out)),
			)
			return out, eris.Wrap(err, "enrich: interrupted")
		}

		log.Info("enriching lead",
			zap.Int("position", i+1),
			zap.Int("total", len(out)),
			zap.String("name", out[i].Name),
		)

		summary, err := e.enrichOne(ctx, out[i])
		switch {
		case err == nil:
			out[i].BusinessInfo = summary
			enriched++
		case isClientError(err):
			fallbacks += fillFallbacks(out[i:])
			log.Warn("client error from API, remaining leads got fallback summaries",
				zap.Error(err),
			)
			return out, eris.Wrap(err, "enrich: aborted on client error")
		case ctx.Err() != nil:
			fallbacks += fillFallbacks(out[i:])
			return out, eris.Wrap(ctx.Err(), "enrich: interrupted")
		default:
			log.Warn("enrichment failed for lead, using fallback summary",
				zap.String("name", out[i].Name),
				zap.Error(err),
			)
			out[i].BusinessInfo = FallbackSummary(out[i])
			fallbacks++
		}
	}

	log.Info("enrichment done",
		zap.Int("enriched", enriched),
		zap.Int("fallbacks", fallbacks),
	)
	return out, nil
}

// enrichOne performs the API call for a single lead with retry.
func (e *PerplexityEnricher) enrichOne(ctx context.Context, lead model.Lead) (string, error) {
	cfg := resilience.RetryConfig{
		MaxAttempts:    e.maxAttempts,
		InitialBackoff: e.backoffBase,
		Multiplier:     2.0,
		ShouldRetry: func(err error) bool {
			if isClientError(err) {
				return false
			}
			var apiErr *perplexity.APIError
			if errors.As(err, &apiErr) {
				return true // 5xx and other server-side statuses
			}
			return resilience.IsTransient(err)
		},
		OnRetry: resilience.RetryLogger("perplexity", "chat completion"),
	}

	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (string, error) {
		resp, err := e.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
			Messages: []perplexity.Message{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: buildPrompt(lead)},
			},
		})
		if err != nil {
			return "", err
		}
		content := resp.Content()
		if content == "" {
			return "", eris.New("empty content in API response")
		}
		return content, nil
	})
}

// isClientError reports whether err is a 4xx API response.
func isClientError(err error) bool {
	var apiErr *perplexity.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
	}
	return false
}

// fillFallbacks gives every un-enriched lead in the slice a fallback
// summary and returns how many were filled.
func fillFallbacks(leads []model.Lead) int {
	filled := 0
	for i := range leads {
		if !leads[i].Enriched() {
			leads[i].BusinessInfo = FallbackSummary(leads[i])
			filled++
		}
	}
	return filled
}

// buildPrompt writes the user prompt. Leads with a website get a research
// prompt against the site; leads without one get an inference prompt from
// name and category.
func buildPrompt(lead model.Lead) string {
	loc := joinNonEmpty(lead.City, lead.State)

	if lead.Website != "" {
		return fmt.Sprintf(
			"Research the business website %s for '%s' (%s) located in %s. "+
				"Write a 2-3 sentence concise summary covering: what the business does, "+
				"its key services or products, and any notable highlights. "+
				"Keep it factual and professional.",
			lead.Website, lead.Name, lead.Category, loc,
		)
	}
	return fmt.Sprintf(
		"The business '%s' is listed under the category '%s' in %s. "+
			"It does not have a website. "+
			"Based on the business name and category, write a 2-3 sentence concise "+
			"summary of what this business likely offers, its typical services, "+
			"and target customers. Keep it factual and professional.",
		lead.Name, lead.Category, loc,
	)
}

// FallbackSummary builds the deterministic summary used when the API is
// unavailable for a lead.
func FallbackSummary(lead model.Lead) string {
	var b strings.Builder
	b.WriteString(lead.Name)
	if lead.Category != "" {
		b.WriteString(" is a ")
		b.WriteString(lead.Category)
		b.WriteString(" business")
	} else {
		b.WriteString(" is a local business")
	}
	if loc := joinNonEmpty(lead.City, lead.State); loc != "" {
		b.WriteString(" located in ")
		b.WriteString(loc)
	}
	b.WriteString(".")
	return b.String()
}

func joinNonEmpty(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}
