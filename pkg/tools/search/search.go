// Package search answers web_search and claim lookups from the first
// configured provider that returns a hit.
package search

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"synapse/pkg/config"
	"synapse/pkg/tools"

	"golang.org/x/time/rate"
)

// Unavailable is the snippet returned when no provider produced a result.
const Unavailable = "Web search tool is currently unavailable or returned no results."

// Default limiter settings
const (
	DefaultRequestsPerSecond = 2.0
	DefaultBurst             = 4
)

// ErrNoResults is returned by providers that answered with nothing.
var ErrNoResults = errors.New("search: no results")

// Provider is one web search backend.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, count int) ([]tools.SearchResult, error)
}

// Searcher implements tools.WebSearcher over an ordered provider list.
type Searcher struct {
	Providers []Provider
	Limiter   *rate.Limiter
}

// New builds the provider chain from cfg, tavily first. Providers without
// credentials are skipped; a Searcher with no providers always returns the
// placeholder result.
func New(ctx context.Context, cfg config.SearchConfig) *Searcher {
	var providers []Provider
	if cfg.TavilyAPIKey != "" {
		providers = append(providers, NewTavily(cfg.TavilyAPIKey))
	}
	if cfg.GoogleAPIKey != "" && cfg.GoogleCX != "" {
		g, err := NewGoogle(ctx, cfg.GoogleAPIKey, cfg.GoogleCX)
		if err != nil {
			slog.Warn("Google custom search disabled", "error", err)
		} else {
			providers = append(providers, g)
		}
	}

	rps, burst := cfg.RequestsPerSecond, cfg.Burst
	if rps <= 0 {
		rps = DefaultRequestsPerSecond
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	return &Searcher{
		Providers: providers,
		Limiter:   rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Search returns the best result of the first provider that answers. It
// only fails when ctx ends.
func (s *Searcher) Search(ctx context.Context, query string, count int) (tools.SearchResult, error) {
	placeholder := tools.SearchResult{Snippet: Unavailable}
	query = strings.TrimSpace(query)
	if query == "" {
		return placeholder, nil
	}
	if count <= 0 {
		count = 1
	}

	for _, p := range s.Providers {
		if s.Limiter != nil {
			if err := s.Limiter.Wait(ctx); err != nil {
				return placeholder, err
			}
		}
		results, err := p.Search(ctx, query, count)
		if err == nil && len(results) == 0 {
			err = ErrNoResults
		}
		if err != nil {
			if ctx.Err() != nil {
				return placeholder, ctx.Err()
			}
			slog.WarnContext(ctx, "Search provider failed, trying next", "provider", p.Name(), "error", err)
			continue
		}
		best := results[0]
		slog.DebugContext(ctx, "Search hit", "provider", p.Name(), "url", best.URL)
		return best, nil
	}
	return placeholder, nil
}
