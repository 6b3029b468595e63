package search

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"synapse/pkg/tools"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const tavilyEndpoint = "https://api.tavily.com/search"

// Tavily queries the Tavily search REST API.
type Tavily struct {
	APIKey   string
	Endpoint string
	Client   *http.Client
}

func NewTavily(apiKey string) *Tavily {
	return &Tavily{
		APIKey:   apiKey,
		Endpoint: tavilyEndpoint,
		Client:   &http.Client{Timeout: 20 * time.Second},
	}
}

func (t *Tavily) Name() string { return "tavily" }

type tavilyRequest struct {
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

func (t *Tavily) Search(ctx context.Context, query string, count int) ([]tools.SearchResult, error) {
	body, err := json.Marshal(tavilyRequest{Query: query, MaxResults: count, SearchDepth: "basic"})
	if err != nil {
		return nil, err
	}

	endpoint := t.Endpoint
	if endpoint == "" {
		endpoint = tavilyEndpoint
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.APIKey)

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("tavily: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tavily: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed tavilyResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("tavily: decode response: %w", err)
	}

	results := make([]tools.SearchResult, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		if strings.TrimSpace(r.Content) == "" {
			continue
		}
		results = append(results, tools.SearchResult{Snippet: strings.TrimSpace(r.Content), URL: r.URL, Title: r.Title})
	}
	return results, nil
}
