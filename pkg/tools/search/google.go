package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"synapse/pkg/tools"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Custom Search caps num at 10.
const googleMaxNum = 10

// Google queries the Programmable Search Engine (Custom Search JSON API).
type Google struct {
	svc *customsearch.Service
	cx  string
}

// NewGoogle creates the custom search service. Extra options are appended
// after the API key, which lets callers point the client at another endpoint.
func NewGoogle(ctx context.Context, apiKey, cx string, opts ...option.ClientOption) (*Google, error) {
	if apiKey == "" || cx == "" {
		return nil, errors.New("google search: api key and cx are required")
	}
	svc, err := customsearch.NewService(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("google search: create service: %w", err)
	}
	return &Google{svc: svc, cx: cx}, nil
}

func (g *Google) Name() string { return "google" }

func (g *Google) Search(ctx context.Context, query string, count int) ([]tools.SearchResult, error) {
	if count > googleMaxNum {
		count = googleMaxNum
	}
	res, err := g.svc.Cse.List().Q(query).Cx(g.cx).Num(int64(count)).Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusTooManyRequests {
			return nil, fmt.Errorf("google search: rate limited: %w", err)
		}
		return nil, fmt.Errorf("google search: %w", err)
	}

	results := make([]tools.SearchResult, 0, len(res.Items))
	for _, item := range res.Items {
		if item == nil || strings.TrimSpace(item.Snippet) == "" {
			continue
		}
		results = append(results, tools.SearchResult{Snippet: strings.TrimSpace(item.Snippet), URL: item.Link, Title: item.Title})
	}
	return results, nil
}
