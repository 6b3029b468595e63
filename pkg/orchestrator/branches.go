package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"synapse/pkg/llm"
	"synapse/pkg/scratchpad"
	"synapse/pkg/stream"
	"synapse/pkg/tools"

	"github.com/google/uuid"
)

// Claim table columns, in wire order.
var claimColumns = []string{"Claim", "External Result", "Confidence", "Summary"}

// dispatch runs exactly one branch per tool. Branches never fall through.
func (r *run) dispatch(ctx context.Context) error {
	switch r.tool {
	case tools.ExtractPDFText, tools.RunOCR:
		return r.extractDocument(ctx)
	case tools.ExtractCSVData:
		return r.extractCSV(ctx)
	case tools.AnalyzeData:
		return r.analyzeLoaded(ctx)
	case tools.GenerateOfferLetter:
		return r.generateOffer(ctx)
	case tools.VerifyClaims:
		return r.verifyClaims(ctx)
	case tools.WebSearch:
		return r.webSearch(ctx)
	case tools.GeneralQuery:
		return r.generalQuery(ctx)
	default:
		r.tool = tools.GeneralQuery
		return r.generalQuery(ctx)
	}
}

func notConfigured(tool tools.ToolName) error {
	return tools.Errorf(tools.KindInternal, string(tool), "the %s tool is not configured on this server", tool)
}

func (r *run) extractDocument(ctx context.Context) error {
	tb := r.engine.toolbox
	file := r.inv.File
	if file == nil || len(file.Data) == 0 {
		return tools.Errorf(tools.KindMissingInput, string(r.tool), "please upload a document or image first")
	}

	var (
		text string
		err  error
	)
	r.transition(ctx, StateAwaitingAdapter)
	if r.tool == tools.RunOCR || file.IsImage() {
		if tb.OCR == nil {
			return tools.Errorf(tools.KindOCRFailed, string(r.tool), "no OCR provider is configured")
		}
		r.thought(ctx, "Running OCR on %s...", displayName(file))
		text, err = tb.OCR.Recognize(ctx, file.Data, file.MediaType)
		err = tools.Wrap(tools.KindOCRFailed, "ocr", err)
	} else {
		if tb.Extractor == nil {
			return notConfigured(r.tool)
		}
		r.thought(ctx, "Extracting text from %s...", displayName(file))
		text, err = tb.Extractor.Extract(ctx, *file)
		err = tools.Wrap(tools.KindExtractionFailed, "extract", err)
	}
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return tools.Errorf(tools.KindExtractionFailed, string(r.tool), "no text could be extracted from the file")
	}
	r.inv.Session.Scratchpad.SetText(text)
	r.thought(ctx, "Extracted %d characters. Generating summary...", len([]rune(text)))

	if tb.Summarizer == nil {
		return notConfigured(r.tool)
	}
	summary, err := tb.Summarizer.Summarize(ctx, text, r.textSink(ctx))
	if err != nil {
		return tools.Wrap(tools.KindSummarizationFailed, "summarize", err)
	}
	r.emit(ctx, stream.FinalOutput(summary))
	r.remember(fmt.Sprintf("[uploaded %s] %s", displayName(file), r.inv.Intent.Argument), summary)
	return nil
}

func (r *run) extractCSV(ctx context.Context) error {
	tb := r.engine.toolbox
	file := r.inv.File
	if file == nil || len(file.Data) == 0 {
		return tools.Errorf(tools.KindMissingInput, string(r.tool), "please upload a CSV file first")
	}
	if !file.IsCSV() {
		return tools.Errorf(tools.KindWrongMediaType, string(r.tool), "expected a CSV file but received %s", orUnknown(file.MediaType))
	}
	if tb.Tabular == nil {
		return notConfigured(r.tool)
	}

	r.transition(ctx, StateAwaitingAdapter)
	r.thought(ctx, "Parsing CSV...")
	table, err := tb.Tabular.Parse(ctx, file.Data)
	if err != nil {
		return tools.Wrap(tools.KindParseFailed, "tabular", err)
	}
	r.inv.Session.Scratchpad.SetTable(table)
	r.thought(ctx, "Loaded %d rows with %d columns (%d numeric).", len(table.Rows), len(table.Fields), len(table.NumericFields()))

	return r.analyze(ctx, table)
}

func (r *run) analyzeLoaded(ctx context.Context) error {
	table, ok := r.inv.Session.Scratchpad.Table()
	if !ok {
		return tools.Errorf(tools.KindNoDatasetLoaded, string(r.tool), "no dataset is loaded in this session, upload a CSV file first")
	}
	r.transition(ctx, StateAwaitingAdapter)
	return r.analyze(ctx, table)
}

func (r *run) analyze(ctx context.Context, table *tools.Table) error {
	if r.engine.toolbox.Analyzer == nil {
		return notConfigured(r.tool)
	}
	r.thought(ctx, "Analyzing dataset...")
	analysis, err := r.engine.toolbox.Analyzer.Analyze(ctx, table, r.inv.Intent.Argument, r.textSink(ctx))
	if err != nil {
		return tools.Wrap(tools.KindAnalysisFailed, "analysis", err)
	}
	r.emit(ctx, stream.ChartEvent(stream.Chart{
		ChartType:     analysis.Chart.ChartType,
		CategoryField: analysis.Chart.CategoryField,
		ValueFields:   analysis.Chart.ValueFields,
		Rows:          analysis.Chart.Rows,
	}))
	r.emit(ctx, stream.FinalOutput(analysis.Summary))
	r.remember(r.userText(), analysis.Summary)
	return nil
}

func (r *run) generateOffer(ctx context.Context) error {
	resume, ok := r.inv.Session.Scratchpad.Text()
	if !ok {
		return tools.Errorf(tools.KindNoResumeLoaded, string(r.tool), "no resume is loaded in this session, upload the candidate's resume first")
	}
	if r.engine.toolbox.Offer == nil {
		return notConfigured(r.tool)
	}

	r.transition(ctx, StateAwaitingAdapter)
	r.thought(ctx, "Drafting offer letter...")
	letter, err := r.engine.toolbox.Offer.Generate(ctx, resume, r.inv.Intent.Argument)
	if err != nil {
		return tools.Wrap(tools.KindGenerationFailed, "offer", err)
	}

	pending := scratchpad.PendingEmail{
		ID: uuid.NewString(),
		Email: tools.Email{
			To:      letter.Candidate.Email,
			Subject: letter.Subject,
			HTML:    letter.HTML,
		},
		CreatedAt: time.Now(),
	}
	r.inv.Session.Scratchpad.SetPendingEmail(pending)

	message := fmt.Sprintf("Offer letter for %s (%s, %s) is ready. Review it and confirm to send it to %s.",
		letter.Candidate.Name, letter.Candidate.Title, letter.Candidate.Salary, letter.Candidate.Email)
	r.emit(ctx, stream.Preview(stream.EmailPreview{
		ID:      pending.ID,
		To:      pending.To,
		Subject: pending.Subject,
		HTML:    pending.HTML,
		Message: message,
	}))
	r.remember(r.userText(), message)
	return nil
}

func (r *run) verifyClaims(ctx context.Context) error {
	document, ok := r.inv.Session.Scratchpad.Text()
	if !ok {
		return tools.Errorf(tools.KindNoDocumentLoaded, string(r.tool), "no document is loaded in this session, upload a document first")
	}
	if r.engine.toolbox.Verifier == nil {
		return notConfigured(r.tool)
	}

	r.transition(ctx, StateAwaitingAdapter)
	results, err := r.engine.toolbox.Verifier.Verify(ctx, document, r.inv.Intent.Argument, r.textSink(ctx))
	if err != nil {
		return tools.Wrap(tools.KindVerificationFailed, "verify", err)
	}

	rows := make([][]string, 0, len(results))
	for _, res := range results {
		external := res.ExternalResult
		if res.SourceURL != "" {
			external += "\nSource: " + res.SourceURL
		}
		rows = append(rows, []string{res.Claim, external, fmt.Sprintf("%d%%", res.ConfidenceScore), res.Summary})
	}
	r.emit(ctx, stream.TableEvent(stream.Table{
		Caption: "Claim verification",
		Headers: append([]string(nil), claimColumns...),
		Rows:    rows,
	}))
	r.remember(r.userText(), fmt.Sprintf("Verified %d claims from the loaded document.", len(results)))
	return nil
}

func (r *run) webSearch(ctx context.Context) error {
	if r.engine.toolbox.Search == nil {
		return notConfigured(r.tool)
	}
	query := strings.TrimSpace(r.inv.Intent.Argument)
	if query == "" {
		query = strings.TrimSpace(r.inv.Message)
	}
	if query == "" {
		return tools.Errorf(tools.KindMissingInput, string(r.tool), "nothing to search for")
	}

	r.transition(ctx, StateAwaitingAdapter)
	r.thought(ctx, "Searching the web for %q...", query)
	result, err := r.engine.toolbox.Search.Search(ctx, query, r.engine.sysCfg.SearchResultCount)
	if err != nil {
		return tools.Wrap(tools.KindInternal, "search", err)
	}

	answer := FormatSearchResult(result)
	r.transition(ctx, StateStreaming)
	r.emit(ctx, stream.Text(answer))
	r.emit(ctx, stream.FinalOutput(answer))
	r.remember(r.userText(), answer)
	return nil
}

// FormatSearchResult renders the snippet followed by its source link.
func FormatSearchResult(res tools.SearchResult) string {
	if res.URL == "" {
		return res.Snippet
	}
	return res.Snippet + "\n\nSource: " + res.URL
}

func (r *run) generalQuery(ctx context.Context) error {
	message := strings.TrimSpace(r.inv.Message)
	if message == "" {
		message = strings.TrimSpace(r.inv.Intent.Argument)
	}
	if message == "" {
		return tools.Errorf(tools.KindMissingInput, string(r.tool), "please type a message or upload a file")
	}
	client := r.engine.client
	if client == nil {
		return notConfigured(r.tool)
	}

	history := r.inv.Session.History
	messages := make([]llm.Message, 0, history.Len()+2)
	if prompt := r.engine.appCfg.SystemPrompt; prompt != "" {
		messages = append(messages, llm.NewSystemMessage(prompt))
	}
	messages = append(messages, history.GetMessages()...)
	userMsg := llm.NewUserMessage(message)
	messages = append(messages, userMsg)

	r.transition(ctx, StateAwaitingAdapter)
	ch, err := client.StreamChat(ctx, messages, nil)
	if err != nil {
		return &tools.Error{Kind: tools.KindInternal, Op: string(r.tool), Msg: "the assistant could not answer right now", Err: err}
	}

	var onThinking func(string)
	if r.engine.sysCfg.ShowThinking {
		onThinking = func(s string) { r.emit(ctx, stream.Thought(s)) }
	}
	sink := r.textSink(ctx)
	answer, _, err := llm.Collect(ctx, ch, sink, onThinking)
	if err != nil {
		return &tools.Error{Kind: tools.KindInternal, Op: string(r.tool), Msg: "the response was interrupted", Err: err}
	}
	if strings.TrimSpace(answer) == "" {
		return tools.Errorf(tools.KindInternal, string(r.tool), "the assistant returned an empty response")
	}

	history.Add(userMsg)
	history.Add(llm.NewAssistantMessage(answer))
	return nil
}

// remember records a tool turn in the conversation history so later
// general queries can refer to it.
func (r *run) remember(user, assistant string) {
	if strings.TrimSpace(user) == "" || strings.TrimSpace(assistant) == "" {
		return
	}
	h := r.inv.Session.History
	h.Add(llm.NewUserMessage(user))
	h.Add(llm.NewAssistantMessage(assistant))
}

func (r *run) userText() string {
	if m := strings.TrimSpace(r.inv.Message); m != "" {
		return m
	}
	return r.inv.Intent.Argument
}

func displayName(doc *tools.Document) string {
	if doc.Name != "" {
		return doc.Name
	}
	return "the uploaded file"
}

func orUnknown(s string) string {
	if s == "" {
		return "an unknown type"
	}
	return s
}
