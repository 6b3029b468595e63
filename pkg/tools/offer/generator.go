// Package offer drafts offer letters from resume text.
package offer

import (
	"context"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"synapse/pkg/llm"
	"synapse/pkg/tools"
)

const op = "offer"

const (
	DefaultTitle   = "Associate"
	DefaultSalary  = "$80,000"
	DefaultCompany = "Synapse Corp"
	DefaultSender  = "Agent Synapse"
)

var (
	titlePattern  = regexp.MustCompile(`(?i)\b(senior |junior |lead )?(software engineer|data scientist|product manager|data analyst|analyst|designer|engineering manager)\b`)
	salaryPattern = regexp.MustCompile(`\$\d{1,3}(?:,\d{3})*(?:\.\d+)?[kK]?`)
)

var candidateSchema = &llm.ResponseSchema{
	Name:        "candidate",
	Description: "Candidate details extracted from a resume",
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":     map[string]any{"type": "string", "description": "candidate full name"},
			"email":    map[string]any{"type": "string", "description": "primary email address"},
			"jobTitle": map[string]any{"type": "string", "description": "suggested job title, empty if unknown"},
			"salary":   map[string]any{"type": "string", "description": "suggested annual salary such as $120,000, empty if unknown"},
		},
		"required":             []string{"name", "email", "jobTitle", "salary"},
		"additionalProperties": false,
	},
}

type extracted struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	JobTitle string `json:"jobTitle"`
	Salary   string `json:"salary"`
}

// Generator implements tools.OfferLetterGenerator.
type Generator struct {
	Client  llm.LLMClient
	Company string
	Sender  string
	Now     func() time.Time
}

func New(client llm.LLMClient, company, sender string) *Generator {
	return &Generator{Client: client, Company: company, Sender: sender}
}

func (g *Generator) Generate(ctx context.Context, resume, instruction string) (*tools.OfferLetter, error) {
	if strings.TrimSpace(resume) == "" {
		return nil, tools.Errorf(tools.KindGenerationFailed, op, "the resume text is empty")
	}

	var details extracted
	err := llm.GenerateJSON(ctx, g.Client, []llm.Message{
		llm.NewUserMessage("From the following resume text, extract the candidate's full name, primary email address, " +
			"a suggested job title and a suggested annual salary.\n\nRESUME TEXT:\n---\n" + resume + "\n---"),
	}, candidateSchema, &details)
	if err != nil {
		return nil, &tools.Error{Kind: tools.KindGenerationFailed, Op: op, Msg: "could not extract candidate name and email from the document", Err: err}
	}

	name := strings.TrimSpace(details.Name)
	email := strings.TrimSpace(details.Email)
	if name == "" || email == "" {
		return nil, tools.Errorf(tools.KindGenerationFailed, op, "could not find both candidate name and email to generate the letter")
	}
	if addr, err := mail.ParseAddress(email); err == nil {
		email = addr.Address
	} else {
		return nil, tools.Errorf(tools.KindGenerationFailed, op, "the candidate email %q is not a valid address", email)
	}

	candidate := tools.Candidate{
		Name:   name,
		Email:  email,
		Title:  pick(titlePattern.FindString(instruction), details.JobTitle, DefaultTitle),
		Salary: pick(salaryPattern.FindString(instruction), details.Salary, DefaultSalary),
	}

	company := pick(g.Company, DefaultCompany)
	sender := pick(g.Sender, DefaultSender)
	start := firstOfNextMonth(g.now())

	prompt := fmt.Sprintf(`You are an expert HR documentation generator. Draft a professional, standard offer letter in clean, responsive HTML. The HTML must include <html>, <head> with a <title>, and <body>. Use simple inline styles for email compatibility.

Use the following details:
- Candidate Name: %s
- Position: %s
- Annual Salary: %s
- Start Date: %s
- Company: %s
- Sender: %s

The letter should be professional and welcoming and clearly state the compensation, start date and an acceptance deadline of 7 days.

Output ONLY the complete HTML code.`, candidate.Name, candidate.Title, candidate.Salary, start.Format("January 2, 2006"), company, sender)

	raw, err := llm.Generate(ctx, g.Client, []llm.Message{llm.NewUserMessage(prompt)}, nil)
	if err != nil {
		return nil, &tools.Error{Kind: tools.KindGenerationFailed, Op: op, Msg: "failed to generate the offer letter HTML", Err: err}
	}
	html := llm.StripCodeFence(raw)
	if html == "" {
		return nil, tools.Errorf(tools.KindGenerationFailed, op, "the model returned an empty letter")
	}

	return &tools.OfferLetter{
		Candidate: candidate,
		Subject:   fmt.Sprintf("Offer of Employment – %s at %s", candidate.Title, company),
		HTML:      html,
	}, nil
}

func (g *Generator) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

func firstOfNextMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
}

// pick returns the first non-blank value.
func pick(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
