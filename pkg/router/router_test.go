package router

import (
	"context"
	"errors"
	"testing"

	"synapse/pkg/llm/llmtest"
	"synapse/pkg/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoute_PreRoute(t *testing.T) {
	client := llmtest.New()
	r := New(client)

	tests := []struct {
		name string
		req  Request
		want Intent
	}{
		{name: "csv", req: Request{MediaType: "text/csv"}, want: Intent{Tool: tools.ExtractCSVData, Argument: DefaultCSVInstruction}},
		{name: "csv by extension", req: Request{MediaType: "application/octet-stream", FileName: "Sales.CSV"}, want: Intent{Tool: tools.ExtractCSVData, Argument: DefaultCSVInstruction}},
		{name: "pdf", req: Request{MediaType: "application/pdf", Message: "   "}, want: Intent{Tool: tools.ExtractPDFText, Argument: DefaultPDFInstruction}},
		{name: "image", req: Request{MediaType: "image/png; charset=binary"}, want: Intent{Tool: tools.RunOCR, Argument: DefaultOCRInstruction}},
		{name: "text", req: Request{MediaType: "text/plain"}, want: Intent{Tool: tools.ExtractPDFText, Argument: DefaultTextInstruction}},
		{name: "nothing", req: Request{}, want: Intent{Tool: tools.GeneralQuery}},
		{name: "unknown binary", req: Request{MediaType: "application/zip"}, want: Intent{Tool: tools.GeneralQuery}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, r.Route(context.Background(), tc.req))
		})
	}
	assert.Empty(t, client.Calls(), "pre-routing never calls the model")
}

func TestRoute_Classify(t *testing.T) {
	client := llmtest.New(llmtest.Text(`{"tool":"analyze_data","argument":"revenue by region"}`))
	got := New(client).Route(context.Background(), Request{Message: "show revenue by region", Loaded: []string{"extracted_table"}})
	assert.Equal(t, Intent{Tool: tools.AnalyzeData, Argument: "revenue by region"}, got)

	calls := client.Calls()
	require.Len(t, calls, 1)
	require.NotNil(t, calls[0].Options)
	assert.Equal(t, "route", calls[0].Options.Schema.Name)
	prompt := calls[0].Prompt()
	assert.Contains(t, prompt, "No file has been provided")
	assert.Contains(t, prompt, "extracted_table")
	assert.Contains(t, prompt, "verify_claims")
}

func TestRoute_Fallbacks(t *testing.T) {
	const msg = "please email the letter"
	tests := []struct {
		name  string
		reply llmtest.Reply
	}{
		{name: "send_email is not dispatchable", reply: llmtest.Text(`{"tool":"send_email","argument":"x"}`)},
		{name: "unknown tool", reply: llmtest.Text(`{"tool":"delete_everything","argument":"x"}`)},
		{name: "malformed", reply: llmtest.Text(`I think you want web search`)},
		{name: "provider error", reply: llmtest.Reply{Err: errors.New("503")}},
		{name: "general query keeps message", reply: llmtest.Text(`{"tool":"general_query","argument":"something else"}`)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := New(llmtest.New(tc.reply)).Route(context.Background(), Request{Message: msg})
			assert.Equal(t, Intent{Tool: tools.GeneralQuery, Argument: msg}, got)
		})
	}
}

func TestRoute_FallbackKeepsMessageVerbatim(t *testing.T) {
	const msg = "  what is 2+2?\n"
	got := New(llmtest.New(llmtest.Text("not json"))).Route(context.Background(), Request{Message: msg})
	assert.Equal(t, Intent{Tool: tools.GeneralQuery, Argument: msg}, got)

	got = New(llmtest.New(llmtest.Text(`{"tool":"general_query","argument":"x"}`))).Route(context.Background(), Request{Message: msg})
	assert.Equal(t, msg, got.Argument)

	var r *Router
	assert.Equal(t, Intent{Tool: tools.GeneralQuery, Argument: " hi "}, r.Route(context.Background(), Request{Message: " hi "}))
}

func TestRoute_ToleratesNameVariants(t *testing.T) {
	got := New(llmtest.New(llmtest.Text("```json\n{\"tool\":\"Web-Search\",\"argument\":\"\"}\n```"))).
		Route(context.Background(), Request{Message: "latest Go release"})
	assert.Equal(t, Intent{Tool: tools.WebSearch, Argument: "latest Go release"}, got)
}

func TestRoute_NilClient(t *testing.T) {
	var r *Router
	assert.Equal(t, Intent{Tool: tools.GeneralQuery, Argument: "hi"}, r.Route(context.Background(), Request{Message: "hi"}))
}
