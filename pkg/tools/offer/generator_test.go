package offer

import (
	"context"
	"strings"
	"testing"
	"time"

	"synapse/pkg/llm/llmtest"
	"synapse/pkg/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow() time.Time { return time.Date(2025, time.December, 12, 9, 0, 0, 0, time.UTC) }

func TestGenerate(t *testing.T) {
	client := llmtest.New(
		llmtest.Text(`{"name":"Jane Doe","email":"Jane Doe <jane@example.com>","jobTitle":"Backend Developer","salary":"$95,000"}`),
		llmtest.Text("```html\n<html><body>Dear Jane</body></html>\n```"),
	)
	g := &Generator{Client: client, Company: "Acme", Now: fixedNow}

	letter, err := g.Generate(context.Background(), "Jane Doe - jane@example.com - 5y Go", "Draft an offer as Senior Software Engineer at $120,000")
	require.NoError(t, err)

	assert.Equal(t, tools.Candidate{Name: "Jane Doe", Email: "jane@example.com", Title: "Senior Software Engineer", Salary: "$120,000"}, letter.Candidate)
	assert.Equal(t, "Offer of Employment – Senior Software Engineer at Acme", letter.Subject)
	assert.Equal(t, "<html><body>Dear Jane</body></html>", letter.HTML)

	calls := client.Calls()
	require.Len(t, calls, 2)
	require.NotNil(t, calls[0].Options)
	assert.Equal(t, "candidate", calls[0].Options.Schema.Name)
	prompt := calls[1].Prompt()
	assert.Contains(t, prompt, "January 1, 2026")
	assert.Contains(t, prompt, "Agent Synapse")
}

func TestGenerate_Defaults(t *testing.T) {
	client := llmtest.New(
		llmtest.Text(`{"name":"Sam Lee","email":"sam@example.com","jobTitle":"","salary":""}`),
		llmtest.Text("<html></html>"),
	)
	letter, err := (&Generator{Client: client, Now: fixedNow}).Generate(context.Background(), "Sam Lee sam@example.com", "draft an offer")
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, letter.Candidate.Title)
	assert.Equal(t, DefaultSalary, letter.Candidate.Salary)
	assert.True(t, strings.HasSuffix(letter.Subject, "at Synapse Corp"))
}

func TestGenerate_Failures(t *testing.T) {
	tests := []struct {
		name    string
		replies []llmtest.Reply
		resume  string
	}{
		{name: "empty resume", resume: " "},
		{name: "missing email", resume: "r", replies: []llmtest.Reply{llmtest.Text(`{"name":"A","email":"","jobTitle":"","salary":""}`)}},
		{name: "invalid email", resume: "r", replies: []llmtest.Reply{llmtest.Text(`{"name":"A","email":"nope","jobTitle":"","salary":""}`)}},
		{name: "malformed json", resume: "r", replies: []llmtest.Reply{llmtest.Text("I could not find anything")}},
		{name: "empty html", resume: "r", replies: []llmtest.Reply{llmtest.Text(`{"name":"A","email":"a@b.co","jobTitle":"","salary":""}`), llmtest.Text("```html\n```")}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g := &Generator{Client: llmtest.New(tc.replies...), Now: fixedNow}
			_, err := g.Generate(context.Background(), tc.resume, "")
			assert.ErrorIs(t, err, tools.ErrGenerationFailed)
		})
	}
}

func TestSalaryPattern(t *testing.T) {
	assert.Equal(t, "$120k", salaryPattern.FindString("offer at $120k please"))
	assert.Equal(t, "$1,250,000", salaryPattern.FindString("$1,250,000 package"))
	assert.Equal(t, "", salaryPattern.FindString("120000"))
}
