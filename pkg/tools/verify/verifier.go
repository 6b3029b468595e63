// Package verify checks document claims against web search results.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"synapse/pkg/llm"
	"synapse/pkg/tools"
	"synapse/pkg/tools/summarize"
)

const op = "verify"

// MaxClaims caps how many claims are searched per document.
const MaxClaims = 5

const noExternalData = "No relevant external data found."

var claimsSchema = &llm.ResponseSchema{
	Name:        "claims",
	Description: "Verifiable factual claims found in a document",
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"claims": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "3 to 5 specific, verifiable claims",
			},
		},
		"required":             []string{"claims"},
		"additionalProperties": false,
	},
}

var scoresSchema = &llm.ResponseSchema{
	Name:        "claim_scores",
	Description: "A confidence score for each claim",
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"results": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"claim":           map[string]any{"type": "string"},
						"confidenceScore": map[string]any{"type": "integer"},
						"summary":         map[string]any{"type": "string"},
					},
					"required":             []string{"claim", "confidenceScore", "summary"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"results"},
		"additionalProperties": false,
	},
}

type claimList struct {
	Claims []string `json:"claims"`
}

type scored struct {
	Claim           string  `json:"claim"`
	ConfidenceScore float64 `json:"confidenceScore"`
	Summary         string  `json:"summary"`
}

type scoreList struct {
	Results []scored `json:"results"`
}

// Verifier implements tools.ClaimVerifier.
type Verifier struct {
	Client        llm.LLMClient
	Search        tools.WebSearcher
	MaxInputChars int
}

func New(client llm.LLMClient, search tools.WebSearcher) *Verifier {
	return &Verifier{Client: client, Search: search}
}

func (v *Verifier) Verify(ctx context.Context, document, instruction string, sink tools.TokenSink) ([]tools.ClaimResult, error) {
	if strings.TrimSpace(document) == "" {
		return nil, tools.Errorf(tools.KindVerificationFailed, op, "the document is empty")
	}
	if v.Search == nil {
		return nil, tools.Errorf(tools.KindVerificationFailed, op, "no web search tool is configured")
	}

	sink.Emit("Analyzing document to extract verifiable claims...\n")
	claims, err := v.extractClaims(ctx, document, instruction)
	if err != nil {
		return nil, err
	}
	sink.Emit(fmt.Sprintf("Extracted %d claims. Now searching the web for verification...\n", len(claims)))

	results := make([]tools.ClaimResult, len(claims))
	for i, claim := range claims {
		sink.Emit(fmt.Sprintf("- Searching for: %q\n", claim))
		hit, err := v.Search.Search(ctx, claim, 1)
		if err != nil {
			if ctx.Err() != nil {
				return nil, tools.Wrap(tools.KindVerificationFailed, op, ctx.Err())
			}
			slog.WarnContext(ctx, "Claim search failed", "claim", claim, "error", err)
		}
		external := strings.TrimSpace(hit.Snippet)
		if external == "" {
			external = noExternalData
		}
		results[i] = tools.ClaimResult{Claim: claim, ExternalResult: external, SourceURL: hit.URL}
	}

	sink.Emit("Scoring claims against the search results...\n")
	if err := v.score(ctx, results); err != nil {
		return nil, err
	}
	return results, nil
}

func (v *Verifier) extractClaims(ctx context.Context, document, instruction string) ([]string, error) {
	limit := v.MaxInputChars
	if limit <= 0 {
		limit = summarize.DefaultMaxInputChars
	}
	prompt := "Read the following document and extract the 3 to 5 most important, specific and verifiable factual claims " +
		"(statistics, dates, named facts). Each claim must be a standalone sentence."
	if s := strings.TrimSpace(instruction); s != "" {
		prompt += "\nThe user asked: " + s
	}
	prompt += "\n\nDOCUMENT:\n---\n" + summarize.Truncate(document, limit) + "\n---"

	var out claimList
	if err := llm.GenerateJSON(ctx, v.Client, []llm.Message{llm.NewUserMessage(prompt)}, claimsSchema, &out); err != nil {
		return nil, &tools.Error{Kind: tools.KindVerificationFailed, Op: op, Msg: "could not extract claims from the document", Err: err}
	}

	var claims []string
	for _, c := range out.Claims {
		if c = strings.TrimSpace(c); c != "" {
			claims = append(claims, c)
		}
		if len(claims) == MaxClaims {
			break
		}
	}
	if len(claims) == 0 {
		return nil, tools.Errorf(tools.KindVerificationFailed, op, "could not extract any verifiable claims from the document")
	}
	return claims, nil
}

// score fills ConfidenceScore and Summary in place. Results keep claim
// order regardless of how the model orders its answer.
func (v *Verifier) score(ctx context.Context, results []tools.ClaimResult) error {
	var sb strings.Builder
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. Claim: %s\n   Search result: %s\n", i+1, r.Claim, r.ExternalResult)
	}
	prompt := `For each claim below, compare it with its web search result and give a confidenceScore from 0 to 100:
100 when the search result clearly supports the claim, 50 when it is related but not confirming or may be outdated,
0 when it contradicts the claim. Add a one-sentence summary explaining the score. Repeat each claim verbatim.

` + sb.String()

	var out scoreList
	if err := llm.GenerateJSON(ctx, v.Client, []llm.Message{llm.NewUserMessage(prompt)}, scoresSchema, &out); err != nil {
		return &tools.Error{Kind: tools.KindVerificationFailed, Op: op, Msg: "could not score the claims", Err: err}
	}

	byClaim := make(map[string]scored, len(out.Results))
	for _, s := range out.Results {
		byClaim[strings.TrimSpace(s.Claim)] = s
	}
	for i := range results {
		s, ok := byClaim[results[i].Claim]
		if !ok && i < len(out.Results) {
			s, ok = out.Results[i], true
		}
		if !ok {
			results[i].Summary = "The model did not score this claim."
			continue
		}
		results[i].ConfidenceScore = clamp(s.ConfidenceScore)
		results[i].Summary = strings.TrimSpace(s.Summary)
	}
	return nil
}

func clamp(score float64) int {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	default:
		return int(score + 0.5)
	}
}
