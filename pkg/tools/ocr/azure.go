package ocr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"synapse/pkg/config"
	"synapse/pkg/tools"
)

const (
	defaultAzureModel      = "prebuilt-layout"
	defaultAzureAPIVersion = "2023-07-31"
)

// Azure runs the Document Intelligence analyze operation: submit, then poll
// the Operation-Location until the job leaves the running state.
type Azure struct {
	Endpoint    string
	Key         string
	Model       string
	APIVersion  string
	MaxAttempts int
	Delay       time.Duration
	Client      *http.Client
}

func newAzureFromConfig(cfg config.OCRConfig, deps Deps) (tools.OCRExtractor, error) {
	a := cfg.Azure
	if a.Endpoint == "" || a.Key == "" {
		return nil, fmt.Errorf("ocr: azure endpoint and key are required")
	}
	client := deps.HTTPClient
	if client == nil {
		timeout := time.Duration(deps.System.OCRTimeoutMs) * time.Millisecond
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Azure{
		Endpoint:    strings.TrimRight(a.Endpoint, "/"),
		Key:         a.Key,
		Model:       a.Model,
		APIVersion:  a.APIVersion,
		MaxAttempts: deps.System.PollMaxAttempts,
		Delay:       time.Duration(deps.System.PollDelayMs) * time.Millisecond,
		Client:      client,
	}, nil
}

type azureResult struct {
	Status string `json:"status"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	AnalyzeResult *struct {
		Pages []struct {
			PageNumber int `json:"pageNumber"`
			Lines      []struct {
				Content string `json:"content"`
			} `json:"lines"`
		} `json:"pages"`
		Tables []azureTable `json:"tables"`
	} `json:"analyzeResult"`
}

type azureTable struct {
	Cells []struct {
		RowIndex    int    `json:"rowIndex"`
		ColumnIndex int    `json:"columnIndex"`
		Content     string `json:"content"`
	} `json:"cells"`
	BoundingRegions []struct {
		PageNumber int `json:"pageNumber"`
	} `json:"boundingRegions"`
}

func (a *Azure) fail(format string, args ...any) error {
	return tools.Errorf(tools.KindOCRFailed, "ocr.azure", format, args...)
}

func (a *Azure) Recognize(ctx context.Context, data []byte, mediaType string) (string, error) {
	model := a.Model
	if model == "" {
		model = defaultAzureModel
	}
	version := a.APIVersion
	if version == "" {
		version = defaultAzureAPIVersion
	}
	analyzeURL := fmt.Sprintf("%s/formrecognizer/documentModels/%s:analyze?api-version=%s", a.Endpoint, model, version)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, analyzeURL, bytes.NewReader(data))
	if err != nil {
		return "", tools.Wrap(tools.KindOCRFailed, "ocr.azure", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", a.Key)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := a.Client.Do(req)
	if err != nil {
		return "", &tools.Error{Kind: tools.KindOCRFailed, Op: "ocr.azure", Msg: "document analysis request failed", Err: err}
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return "", a.fail("document analysis failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	resultURL := resp.Header.Get("Operation-Location")
	if resultURL == "" {
		return "", a.fail("no Operation-Location returned")
	}

	result, err := a.poll(ctx, resultURL)
	if err != nil {
		return "", err
	}
	return formatAzureResult(result), nil
}

// poll waits Delay before each attempt and gives up after MaxAttempts.
func (a *Azure) poll(ctx context.Context, resultURL string) (*azureResult, error) {
	attempts := a.MaxAttempts
	if attempts <= 0 {
		attempts = 15
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		timer := time.NewTimer(a.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, tools.Wrap(tools.KindOCRFailed, "ocr.azure", ctx.Err())
		case <-timer.C:
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, resultURL, nil)
		if err != nil {
			return nil, tools.Wrap(tools.KindOCRFailed, "ocr.azure", err)
		}
		req.Header.Set("Ocp-Apim-Subscription-Key", a.Key)

		resp, err := a.Client.Do(req)
		if err != nil {
			return nil, &tools.Error{Kind: tools.KindOCRFailed, Op: "ocr.azure", Msg: "polling the analysis result failed", Err: err}
		}
		var result azureResult
		err = json.NewDecoder(resp.Body).Decode(&result)
		resp.Body.Close()
		if err != nil {
			return nil, &tools.Error{Kind: tools.KindOCRFailed, Op: "ocr.azure", Msg: "unreadable analysis result", Err: err}
		}

		switch strings.ToLower(result.Status) {
		case "running", "notstarted":
			slog.DebugContext(ctx, "Azure analysis pending", "attempt", attempt, "max", attempts)
			continue
		case "succeeded":
			return &result, nil
		case "failed":
			msg := "unknown error"
			if result.Error != nil && result.Error.Message != "" {
				msg = result.Error.Message
			}
			return nil, a.fail("analysis failed: %s", msg)
		default:
			return nil, a.fail("unexpected analysis status %q", result.Status)
		}
	}
	return nil, a.fail("analysis did not finish after %d attempts", attempts)
}

// formatAzureResult joins page lines and renders each table as markdown
// with its first row as header.
func formatAzureResult(r *azureResult) string {
	if r.AnalyzeResult == nil {
		return ""
	}
	var sb strings.Builder
	for _, page := range r.AnalyzeResult.Pages {
		for _, line := range page.Lines {
			sb.WriteString(line.Content)
			sb.WriteByte('\n')
		}
	}

	for i, t := range r.AnalyzeResult.Tables {
		page := "?"
		if len(t.BoundingRegions) > 0 {
			page = fmt.Sprint(t.BoundingRegions[0].PageNumber)
		}
		fmt.Fprintf(&sb, "\nTable %d (page %s)\n", i+1, page)
		sb.WriteString(markdownTable(t))
	}
	return strings.TrimSpace(sb.String())
}

func markdownTable(t azureTable) string {
	cells := make(map[[2]int]string, len(t.Cells))
	rowSet, colSet := map[int]bool{}, map[int]bool{}
	for _, c := range t.Cells {
		cells[[2]int{c.RowIndex, c.ColumnIndex}] = strings.Join(strings.Fields(c.Content), " ")
		rowSet[c.RowIndex] = true
		colSet[c.ColumnIndex] = true
	}
	rows, cols := sortedKeys(rowSet), sortedKeys(colSet)
	if len(rows) == 0 {
		return ""
	}

	var sb strings.Builder
	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = cells[[2]int{rows[0], c}]
		if header[i] == "" {
			header[i] = fmt.Sprintf("Col %d", c+1)
		}
	}
	sb.WriteString("| " + strings.Join(header, " | ") + " |\n")
	sb.WriteString("|" + strings.Repeat(" --- |", len(cols)) + "\n")
	for _, r := range rows[1:] {
		vals := make([]string, len(cols))
		for i, c := range cols {
			vals[i] = cells[[2]int{r, c}]
		}
		sb.WriteString("| " + strings.Join(vals, " | ") + " |\n")
	}
	return sb.String()
}

func sortedKeys(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
