package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"goa.design/clue/log"

	"github.com/deepresearch/agentrunner/internal/adapters/fetch"
	"github.com/deepresearch/agentrunner/internal/adapters/filestore/inmem"
	"github.com/deepresearch/agentrunner/internal/adapters/llm"
	"github.com/deepresearch/agentrunner/internal/adapters/llm/anthropicmodel"
	"github.com/deepresearch/agentrunner/internal/adapters/llm/bedrockmodel"
	"github.com/deepresearch/agentrunner/internal/adapters/llm/gateway"
	"github.com/deepresearch/agentrunner/internal/adapters/llm/openaimodel"
	"github.com/deepresearch/agentrunner/internal/adapters/parse/grpcparser"
	"github.com/deepresearch/agentrunner/internal/adapters/search/oxylabs"
	"github.com/deepresearch/agentrunner/internal/adapters/session"
	sessioninmem "github.com/deepresearch/agentrunner/internal/adapters/session/inmem"
	"github.com/deepresearch/agentrunner/internal/adapters/session/mongosession"
	"github.com/deepresearch/agentrunner/internal/adapters/tokencount"
	"github.com/deepresearch/agentrunner/internal/config"
	"github.com/deepresearch/agentrunner/internal/eventctx"
	"github.com/deepresearch/agentrunner/internal/orchestrator"
	"github.com/deepresearch/agentrunner/internal/planner"
	"github.com/deepresearch/agentrunner/internal/rerr"
	"github.com/deepresearch/agentrunner/internal/searcher"
	"github.com/deepresearch/agentrunner/internal/telemetry"
	"github.com/deepresearch/agentrunner/internal/workflow"
	"github.com/deepresearch/agentrunner/internal/writer"
)

func main() {
	var (
		configF       = flag.String("config", "configs/config.json", "path to the research config JSON")
		providerF     = flag.String("provider", "anthropic", "LLM provider: anthropic, openai, or bedrock")
		sessionStoreF = flag.String("session-store", "inmem", "session store backend: inmem or mongo")
		outF          = flag.String("out", "artifacts/report.md", "where to write the final report on completion")
		dbgF          = flag.Bool("debug", false, "log request and response bodies")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
		log.Debugf(ctx, "debug logs enabled")
	}
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configF, *providerF, *sessionStoreF, *outF); err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "research run failed"})
		kind := rerr.KindOf(err)
		if kind == rerr.Cancelled {
			os.Exit(130)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, provider, sessionStoreKind, outPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := telemetry.NewClueLogger()

	plannerModel, err := buildModel(ctx, provider, cfg.Planner.MainLLM, logger)
	if err != nil {
		return fmt.Errorf("build planner model: %w", err)
	}
	sessionStore, err := buildSessionStore(ctx, sessionStoreKind)
	if err != nil {
		return fmt.Errorf("build session store: %w", err)
	}

	wf := workflow.New(logger)
	planner.RegisterSteps(wf)
	wf.RegisterResource(planner.ResourcePlannerModel, workflow.ResourceSpec{
		Factory: func(map[string]any) (any, error) { return plannerModel, nil },
	})
	wf.RegisterResource(planner.ResourceSessionStore, workflow.ResourceSpec{
		Factory: func(map[string]any) (any, error) { return sessionStore, nil },
	})

	fmt.Print("Describe the research you want a plan for: ")
	stdin := bufio.NewReader(os.Stdin)
	initialQuery, err := readLine(stdin)
	if err != nil {
		return fmt.Errorf("read initial query: %w", err)
	}

	rc := eventctx.New(nil, 16)
	planResultCh := make(chan planRunResult, 1)
	go func() {
		timeout := time.Duration(cfg.Settings.TimeoutSeconds) * time.Second
		result, err := wf.Run(ctx, rc, eventctx.NewStart(initialQuery), timeout)
		planResultCh <- planRunResult{result: result, err: err}
	}()

	plan, textConfig, err := driveHITL(ctx, rc, stdin, planResultCh)
	if err != nil {
		return fmt.Errorf("planning run: %w", err)
	}

	fmt.Printf("\nPlan finalized. Handing off to the research run (target %d words).\n", textConfig.TargetWords)

	report, err := runResearch(ctx, provider, cfg, logger, initialQuery, plan, textConfig.TargetWords)
	if err != nil {
		return fmt.Errorf("research run: %w", err)
	}

	if err := os.MkdirAll(dirOf(outPath), 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	if err := os.WriteFile(outPath, []byte(report), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	fmt.Printf("\nReport written to %s (%d words).\n", outPath, len(strings.Fields(report)))
	return nil
}

type planRunResult struct {
	result any
	err    error
}

// driveHITL drains rc's event stream, printing InputRequired prompts and
// planner responses (other events go to the debug log) and relaying a
// human's stdin reply for each InputRequired back into the workflow via
// SendEvent, until the planning run's goroutine reports Stop or failure.
func driveHITL(ctx context.Context, rc *eventctx.RunContext, stdin *bufio.Reader, done <-chan planRunResult) (string, planner.TextConfig, error) {
	for {
		select {
		case ev, ok := <-rc.Events():
			if !ok {
				continue
			}
			switch e := ev.(type) {
			case eventctx.InputRequired:
				fmt.Printf("\n%s\n> ", e.Prefix)
				reply, err := readLine(stdin)
				if err != nil {
					return "", planner.TextConfig{}, fmt.Errorf("read human response: %w", err)
				}
				rc.SendEvent(e.WaiterID, eventctx.NewHumanResponse(reply, e.WaiterID))
			case planner.PlannerOutputEvent:
				fmt.Printf("\nPlanner: %s\n", e.Output.Response)
			default:
				log.Debugf(ctx, "event: %s", e.Name())
			}
		case r := <-done:
			if r.err != nil {
				return "", planner.TextConfig{}, r.err
			}
			fields, ok := r.result.(map[string]any)
			if !ok {
				return "", planner.TextConfig{}, rerr.New(rerr.Invariant, "planner run returned an unexpected result shape")
			}
			plan, _ := fields["plan"].(string)
			tc, _ := fields["text_config"].(map[string]any)
			return plan, textConfigFrom(tc), nil
		case <-ctx.Done():
			return "", planner.TextConfig{}, rerr.New(rerr.Cancelled, "planning run cancelled")
		}
	}
}

func textConfigFrom(m map[string]any) planner.TextConfig {
	tc := planner.DefaultTextConfig()
	if m == nil {
		return tc
	}
	if v, ok := m["synthesis_type"].(string); ok && v != "" {
		tc.SynthesisType = v
	}
	if v, ok := m["tone"].(string); ok && v != "" {
		tc.Tone = v
	}
	if v, ok := m["point_of_view"].(string); ok && v != "" {
		tc.PointOfView = v
	}
	if v, ok := m["language"].(string); ok && v != "" {
		tc.Language = v
	}
	if v, ok := m["target_audience"].(string); ok && v != "" {
		tc.TargetAudience = v
	}
	if v, ok := m["target_words"].(int); ok && v > 0 {
		tc.TargetWords = v
	} else if v, ok := m["target_words"].(float64); ok && v > 0 {
		tc.TargetWords = int(v)
	}
	if v, ok := m["output_format"].(string); ok && v != "" {
		tc.OutputFormat = v
	}
	if v, ok := m["custom_instructions"].(string); ok {
		tc.CustomInstructions = v
	}
	return tc
}

// runResearch wires the Orchestrator, Searcher, and Writer over a fresh
// RunContext seeded with the finalized plan, draining its event stream
// purely for progress logging (no further HITL suspension occurs past the
// planning phase, per spec.md §4.4).
func runResearch(ctx context.Context, provider string, cfg config.ResearchConfig, logger telemetry.Logger, initialQuery, plan string, targetWords int) (string, error) {
	orchModel, err := buildModel(ctx, provider, cfg.Orchestrator.MainLLM, logger)
	if err != nil {
		return "", fmt.Errorf("build orchestrator model: %w", err)
	}
	searcherMain, err := buildModel(ctx, provider, cfg.Searcher.MainLLM, logger)
	if err != nil {
		return "", fmt.Errorf("build searcher model: %w", err)
	}
	searcherWeak, err := buildModel(ctx, provider, cfg.Searcher.WeakOrMain(), logger)
	if err != nil {
		return "", fmt.Errorf("build searcher weak model: %w", err)
	}
	writerModel, err := buildModel(ctx, provider, cfg.Writer.MainLLM, logger)
	if err != nil {
		return "", fmt.Errorf("build writer model: %w", err)
	}

	search, err := oxylabs.NewFromEnv(2)
	if err != nil {
		return "", fmt.Errorf("build search client: %w", err)
	}
	downloader := fetch.New()
	files := inmem.New()
	parser, err := grpcparser.NewFromEnv()
	if err != nil {
		return "", fmt.Errorf("build parser client: %w", err)
	}

	searchAgent := searcher.New(searcher.Config{
		MainModel:          searcherMain,
		WeakModel:          searcherWeak,
		Search:             search,
		Fetch:              downloader,
		Files:              files,
		Parser:             parser,
		Tokens:             tokencount.New(),
		MaxResultsPerQuery: cfg.Searcher.MaxResultsPerQuery,
		MaxTotalTokens:     cfg.Settings.MaxPendingEvidenceTokens,
		Logger:             logger,
	})
	writeAgent := writer.New(writer.Config{
		Model:       writerModel,
		TargetWords: targetWords,
		Logger:      logger,
	})

	orch := orchestrator.New(orchestrator.Config{
		Model:        orchModel,
		Researcher:   searchAgent,
		Writer:       writeAgent,
		TargetWords:  targetWords,
		Logger:       logger,
		StreamBuffer: 16,
	})

	rc := eventctx.New(nil, 16)
	orchestrator.Edit(rc, func(s orchestrator.DeepResearchState) orchestrator.DeepResearchState {
		s.Orchestrator.ResearchPlan = plan
		return s
	})

	go func() {
		for ev := range rc.Events() {
			log.Debugf(ctx, "research event: %s", ev.Name())
		}
	}()

	timeout := time.Duration(cfg.Settings.TimeoutSeconds) * time.Second
	runCtx, runCancel := context.WithTimeout(ctx, timeout)
	defer runCancel()

	outcome, err := orch.Run(runCtx, rc, initialQuery)
	rc.Close()
	if err != nil {
		return "", err
	}
	state := orchestrator.Load(rc)
	if strings.TrimSpace(state.Artifact.Content) != "" {
		return state.Artifact.Content, nil
	}
	return outcome.Final.Content, nil
}

// buildModel constructs an llm.Model for the given provider from credentials
// read from the environment, matching spec.md §6's provider-selection
// contract, then wraps it in a single-backend llm/gateway.Gateway so every
// StructuredPredict call gets schema-validation retry (§4.3) regardless of
// provider.
func buildModel(ctx context.Context, provider string, cfg config.LLMConfig, logger telemetry.Logger) (llm.Model, error) {
	backend, err := buildBackend(ctx, provider, cfg)
	if err != nil {
		return nil, err
	}
	return gateway.New(provider, map[string]llm.Model{provider: backend}, gateway.WithLogger(logger))
}

// buildSessionStore constructs a session.Store for the given backend name,
// matching the teacher's own multi-backend session.Store pattern
// (features/session/mongo/clients/mongo vs its inmem stand-in): "inmem" for
// the CLI driver's default/test-friendly path, "mongo" for a
// MongoDB-backed store built from MONGODB_URI/MONGODB_DATABASE.
func buildSessionStore(ctx context.Context, kind string) (session.Store, error) {
	switch kind {
	case "inmem":
		return sessioninmem.New(), nil
	case "mongo":
		return mongosession.NewFromEnv(ctx)
	default:
		return nil, fmt.Errorf("unknown session store %q (want inmem or mongo)", kind)
	}
}

func buildBackend(ctx context.Context, provider string, cfg config.LLMConfig) (llm.Model, error) {
	switch provider {
	case "anthropic":
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		return anthropicmodel.NewFromAPIKey(apiKey, cfg.Model, 4096)
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		return openaimodel.NewFromAPIKey(apiKey, cfg.Model, 4096)
	case "bedrock":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		runtime := bedrockruntime.NewFromConfig(awsCfg)
		return bedrockmodel.New(runtime, cfg.Model, 4096)
	default:
		return nil, fmt.Errorf("unknown provider %q (want anthropic, openai, or bedrock)", provider)
	}
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func dirOf(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return "."
	}
	return path[:idx]
}
