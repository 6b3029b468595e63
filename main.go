package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"synapse/pkg/config"
	"synapse/pkg/handler"
	"synapse/pkg/llm"
	_ "synapse/pkg/llm/gemini" // 註冊 LLM Providers
	_ "synapse/pkg/llm/ollama"
	_ "synapse/pkg/llm/openailm"
	"synapse/pkg/monitor"
	"synapse/pkg/orchestrator"
	"synapse/pkg/router"
	"synapse/pkg/scratchpad"
	"synapse/pkg/tools"
	"synapse/pkg/tools/analysis"
	"synapse/pkg/tools/email"
	"synapse/pkg/tools/extract"
	"synapse/pkg/tools/ocr"
	"synapse/pkg/tools/offer"
	"synapse/pkg/tools/search"
	"synapse/pkg/tools/summarize"
	"synapse/pkg/tools/tabular"
	"synapse/pkg/tools/verify"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds the wired components shared by the commands.
type app struct {
	cfg     *config.Config
	sys     *config.SystemConfig
	router  *router.Router
	sender  *email.Sender
	handler *handler.RequestHandler
}

// wireApp loads configuration and builds every component.
func wireApp(ctx context.Context, appPath, sysPath string) (*app, error) {
	// --- 0. 讀取設定檔 ---
	cfg, sys, err := config.Load(appPath, sysPath)
	if err != nil {
		return nil, err
	}
	monitor.SetupSlog(sys.LogLevel)

	// --- 1. LLM 設定 ---
	client, err := llm.NewFromConfig(cfg.LLM, sys)
	if err != nil {
		return nil, fmt.Errorf("init llm client: %w", err)
	}
	routerClient := client
	if len(cfg.RouterLLM) > 0 {
		if routerClient, err = llm.NewFromConfig(cfg.RouterLLM, sys); err != nil {
			return nil, fmt.Errorf("init router llm client: %w", err)
		}
	}

	// --- 2. Tool adapters ---
	runner := tools.ExecRunner{}
	ocrProvider, err := ocr.New(cfg.Tools.OCR, ocr.Deps{
		System: sys,
		LLM:    client,
		Runner: runner,
	})
	if err != nil {
		return nil, err
	}
	extractor, err := extract.New(cfg.Tools.PDF, ocrProvider, sys, runner)
	if err != nil {
		return nil, err
	}
	searcher := search.New(ctx, cfg.Tools.Search)
	sender := email.New(cfg.Tools.Email)

	toolbox := tools.Toolbox{
		Extractor:  extractor,
		OCR:        ocrProvider,
		Tabular:    tabular.New(),
		Summarizer: summarize.New(client),
		Analyzer:   analysis.New(client),
		Offer:      offer.New(client, cfg.Tools.Offer.Company, cfg.Tools.Offer.Sender),
		Verifier:   verify.New(client, searcher),
		Search:     searcher,
	}

	// --- 3. Orchestrator + sessions ---
	rt := router.New(routerClient)
	engine := orchestrator.NewEngine(toolbox, rt, client, cfg, sys)
	store := scratchpad.NewStore(
		time.Duration(sys.SessionTTLMs)*time.Millisecond,
		sys.MaxSessions,
		scratchpad.WithHistoryLimit(sys.HistoryLimit),
	)

	return &app{
		cfg:     cfg,
		sys:     sys,
		router:  rt,
		sender:  sender,
		handler: handler.NewRequestHandler(engine, store, sender, sys),
	}, nil
}
