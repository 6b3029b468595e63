package search

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"synapse/pkg/config"
	"synapse/pkg/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
)

type stubProvider struct {
	name    string
	results []tools.SearchResult
	err     error
	calls   int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Search(context.Context, string, int) ([]tools.SearchResult, error) {
	s.calls++
	return s.results, s.err
}

func TestSearcher_FallsThrough(t *testing.T) {
	failing := &stubProvider{name: "a", err: errors.New("quota")}
	empty := &stubProvider{name: "b"}
	good := &stubProvider{name: "c", results: []tools.SearchResult{{Snippet: "hit", URL: "https://x"}, {Snippet: "second"}}}
	s := &Searcher{Providers: []Provider{failing, empty, good}, Limiter: rate.NewLimiter(rate.Inf, 1)}

	got, err := s.Search(context.Background(), "q", 3)
	require.NoError(t, err)
	assert.Equal(t, tools.SearchResult{Snippet: "hit", URL: "https://x"}, got)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, empty.calls)
}

func TestSearcher_Placeholder(t *testing.T) {
	s := New(context.Background(), config.SearchConfig{})
	assert.Empty(t, s.Providers)

	got, err := s.Search(context.Background(), "anything", 1)
	require.NoError(t, err)
	assert.Equal(t, tools.SearchResult{Snippet: Unavailable}, got)

	s = &Searcher{Providers: []Provider{&stubProvider{name: "a", err: errors.New("down")}}}
	got, err = s.Search(context.Background(), "anything", 1)
	require.NoError(t, err)
	assert.Equal(t, Unavailable, got.Snippet)
	assert.Empty(t, got.URL)
}

func TestSearcher_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &Searcher{Providers: []Provider{&stubProvider{name: "a"}}, Limiter: rate.NewLimiter(1, 1)}
	_, err := s.Search(ctx, "q", 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_ProviderOrder(t *testing.T) {
	s := New(context.Background(), config.SearchConfig{TavilyAPIKey: "tv", GoogleAPIKey: "g", GoogleCX: "cx"})
	require.Len(t, s.Providers, 2)
	assert.Equal(t, "tavily", s.Providers[0].Name())
	assert.Equal(t, "google", s.Providers[1].Name())
	assert.Equal(t, rate.Limit(DefaultRequestsPerSecond), s.Limiter.Limit())
}

func TestTavily(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `"query":"go release"`)
		assert.Contains(t, string(body), `"max_results":1`)
		_, _ = io.WriteString(w, `{"results":[{"title":"Go","url":"https://go.dev","content":" Go 1.25 released ","score":0.9}]}`)
	}))
	defer srv.Close()

	tv := &Tavily{APIKey: "secret", Endpoint: srv.URL, Client: srv.Client()}
	results, err := tv.Search(context.Background(), "go release", 1)
	require.NoError(t, err)
	assert.Equal(t, []tools.SearchResult{{Snippet: "Go 1.25 released", URL: "https://go.dev", Title: "Go"}}, results)
}

func TestTavily_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := (&Tavily{APIKey: "x", Endpoint: srv.URL}).Search(context.Background(), "q", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestGoogle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/customsearch/v1"), r.URL.Path)
		assert.Equal(t, "golang", r.URL.Query().Get("q"))
		assert.Equal(t, "my-cx", r.URL.Query().Get("cx"))
		assert.Equal(t, "2", r.URL.Query().Get("num"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"items":[{"title":"The Go Programming Language","link":"https://go.dev","snippet":"Build simple, secure, scalable systems with Go."}]}`)
	}))
	defer srv.Close()

	g, err := NewGoogle(context.Background(), "key", "my-cx", option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	results, err := g.Search(context.Background(), "golang", 2)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "https://go.dev", results[0].URL)
	assert.Equal(t, "Build simple, secure, scalable systems with Go.", results[0].Snippet)
}

func TestNewGoogle_RequiresCredentials(t *testing.T) {
	_, err := NewGoogle(context.Background(), "", "cx")
	assert.Error(t, err)
}
