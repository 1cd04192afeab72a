// assess-nl-query runs a set of natural-language questions through the query
// pipeline and checks the generated SQL. Run it once without an LLM to verify
// the deterministic path, then once per model to compare LLM-assisted output.
//
// Usage:
//
//	go run ./scripts/assess-nl-query -graphs ./graphs -cases scripts/assess-nl-query/cases.example.json
//	go run ./scripts/assess-nl-query -graphs ./graphs -cases scripts/assess-nl-query/cases.example.json \
//	    -llm-endpoint http://localhost:30000/v1 -llm-model qwen3
//
// cases.json is a list of:
//
//	{"question": "...", "graph_id": "recon", "dialect": "postgres",
//	 "expect_contains": ["NOT EXISTS"], "expect_error": ""}
//
// expect_error is the error code the question should fail with, such as
// "join_path_not_found"; leave it empty when the question should compile.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/recon-engine/pkg/handlers"
	"github.com/ekaya-inc/recon-engine/pkg/llm"
	"github.com/ekaya-inc/recon-engine/pkg/models"
	"github.com/ekaya-inc/recon-engine/pkg/repositories"
	"github.com/ekaya-inc/recon-engine/pkg/services"
)

// Case is one question to assess.
type Case struct {
	Question       string   `json:"question"`
	GraphID        string   `json:"graph_id"`
	Dialect        string   `json:"dialect"`
	ExpectContains []string `json:"expect_contains"`
	ExpectError    string   `json:"expect_error"`
}

type TestResult struct {
	Success    bool
	Error      string
	SQL        string
	UsedLLM    bool
	Warnings   []string
	DurationMs int64
}

func main() {
	graphsDir := flag.String("graphs", "./graphs", "Directory of knowledge graph JSON files")
	casesPath := flag.String("cases", "cases.json", "JSON file with the questions to assess")
	endpoint := flag.String("llm-endpoint", "", "OpenAI-compatible endpoint; empty assesses the deterministic path")
	model := flag.String("llm-model", "", "Model name for -llm-endpoint")
	apiKey := flag.String("llm-api-key", os.Getenv("LLM_API_KEY"), "API key for -llm-endpoint")
	timeout := flag.Duration("timeout", 120*time.Second, "Timeout for each question")
	flag.Parse()

	logConfig := zap.NewDevelopmentConfig()
	logConfig.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	logger, _ := logConfig.Build()
	defer logger.Sync()

	cases, err := loadCases(*casesPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load cases: %v\n", err)
		os.Exit(1)
	}

	var completer llm.Completer
	if *endpoint != "" {
		client, err := llm.NewClient(&llm.Config{Endpoint: *endpoint, Model: *model, APIKey: *apiKey}, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create LLM client: %v\n", err)
			os.Exit(1)
		}
		completer = llm.NewCompleter(client, llm.CompleterConfig{Timeout: *timeout}, logger)
	}

	svc := services.NewNLQueryService(services.NLQueryServiceConfig{
		Pathfinding:           services.DefaultPathfindingConfig(),
		DefaultEdgeConfidence: 0.75,
		DefaultDialect:        models.DialectPostgres,
		DefaultRowLimit:       1000,
	}, repositories.NewFileKnowledgeGraphRepository(*graphsDir, logger), nil, nil, completer, logger)

	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("NL Query Assessment")
	if completer != nil {
		fmt.Printf("LLM: %s (%s)\n", *model, *endpoint)
	} else {
		fmt.Println("LLM: disabled (deterministic path)")
	}
	fmt.Println(strings.Repeat("=", 80))

	ctx := context.Background()
	passed := 0
	for i, c := range cases {
		fmt.Printf("\n%s\n", strings.Repeat("-", 80))
		fmt.Printf("[%d/%d] %s\n", i+1, len(cases), c.Question)
		fmt.Printf("%s\n", strings.Repeat("-", 80))

		result := assessCase(ctx, svc, c, completer != nil, *timeout)
		printResult(result)
		if result.Success {
			passed++
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 80))
	fmt.Printf("SUMMARY: %d/%d passed\n", passed, len(cases))
	fmt.Printf("%s\n", strings.Repeat("=", 80))

	if passed != len(cases) {
		os.Exit(1)
	}
}

func loadCases(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cases []Case
	if err := json.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(cases) == 0 {
		return nil, fmt.Errorf("%s has no cases", path)
	}
	return cases, nil
}

func assessCase(ctx context.Context, svc services.NLQueryService, c Case, useLLM bool, timeout time.Duration) TestResult {
	result := TestResult{}
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := svc.Compile(ctx, &models.NLQueryRequest{
		Text:    c.Question,
		GraphID: c.GraphID,
		Dialect: c.Dialect,
		UseLLM:  useLLM,
	})
	result.DurationMs = time.Since(start).Milliseconds()
	if resp != nil {
		result.SQL = resp.SQL
		result.UsedLLM = resp.UsedLLM
		result.Warnings = resp.Warnings
	}

	if err != nil {
		_, code := handlers.ClassifyError(err)
		if c.ExpectError != "" && code == c.ExpectError {
			result.Success = true
			return result
		}
		result.Error = fmt.Sprintf("%s: %v", code, err)
		return result
	}
	if c.ExpectError != "" {
		result.Error = fmt.Sprintf("expected %s, but the question compiled", c.ExpectError)
		return result
	}

	for _, want := range c.ExpectContains {
		if !strings.Contains(result.SQL, want) {
			result.Error = fmt.Sprintf("SQL does not contain %q", want)
			return result
		}
	}

	result.Success = true
	return result
}

func printResult(result TestResult) {
	if result.SQL != "" {
		fmt.Println(result.SQL)
	}
	for _, w := range result.Warnings {
		fmt.Printf("warning: %s\n", truncateString(w, 120))
	}
	fmt.Printf("Duration: %dms, LLM used: %v\n", result.DurationMs, result.UsedLLM)
	if result.Success {
		fmt.Println("Status: ✓ PASS")
	} else {
		fmt.Println("Status: ✗ FAIL")
		fmt.Printf("Error: %s\n", result.Error)
	}
}

func truncateString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
