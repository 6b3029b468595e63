// Package analysis computes statistics and a chart over a parsed table and
// streams a narrative explanation.
package analysis

import (
	"context"
	"fmt"
	"strings"

	"synapse/pkg/llm"
	"synapse/pkg/tools"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const op = "analysis"

const systemPrompt = "You are a data analyst. Using only the statistics and sample rows provided, " +
	"answer the user's request in a few short paragraphs. Mention notable highs, lows and trends. " +
	"Do not invent numbers."

const sampleRows = 15

// Analyzer implements tools.DataAnalyzer. Client may be nil, in which case
// the statistics summary is streamed as the narrative.
type Analyzer struct {
	Client llm.LLMClient
}

func New(client llm.LLMClient) *Analyzer {
	return &Analyzer{Client: client}
}

func (a *Analyzer) Analyze(ctx context.Context, t *tools.Table, instruction string, sink tools.TokenSink) (*tools.Analysis, error) {
	if t == nil || len(t.Rows) == 0 {
		return nil, tools.Errorf(tools.KindAnalysisFailed, op, "the dataset has no rows")
	}
	if len(t.NumericFields()) == 0 {
		return nil, tools.Errorf(tools.KindAnalysisFailed, op, "the dataset has no numeric columns to chart")
	}

	stats := ComputeStats(t)
	chart := BuildChart(t)
	described := Describe(t, stats)

	if a.Client == nil {
		sink.Emit(described)
		return &tools.Analysis{Summary: described, Chart: chart}, nil
	}

	if strings.TrimSpace(instruction) == "" {
		instruction = "Give an overview of this dataset."
	}
	sample, err := json.Marshal(head(t.Rows, sampleRows))
	if err != nil {
		return nil, tools.Wrap(tools.KindAnalysisFailed, op, err)
	}
	user := fmt.Sprintf("Request: %s\n\nStatistics:\n%s\nSample rows (JSON):\n%s", instruction, described, sample)

	summary, err := llm.Generate(ctx, a.Client, []llm.Message{
		llm.NewSystemMessage(systemPrompt),
		llm.NewUserMessage(user),
	}, sink)
	if err != nil {
		return nil, &tools.Error{Kind: tools.KindAnalysisFailed, Op: op, Msg: "the analysis could not be generated", Err: err}
	}
	if strings.TrimSpace(summary) == "" {
		return nil, tools.Errorf(tools.KindAnalysisFailed, op, "the model returned an empty analysis")
	}
	return &tools.Analysis{Summary: summary, Chart: chart}, nil
}

func head(rows []tools.Row, n int) []tools.Row {
	if len(rows) < n {
		return rows
	}
	return rows[:n]
}
