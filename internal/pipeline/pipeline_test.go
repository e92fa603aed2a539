package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/polzovatel/ai-agent-for-browser-fast/internal/agent"
	"github.com/polzovatel/ai-agent-for-browser-fast/internal/config"
	"github.com/polzovatel/ai-agent-for-browser-fast/internal/llm"
	"github.com/polzovatel/ai-agent-for-browser-fast/internal/runloop"
	"github.com/polzovatel/ai-agent-for-browser-fast/internal/store"
)

func noopLogger() zerolog.Logger { return zerolog.Nop() }

type scriptedRunner struct {
	outcomes []agent.Outcome
	calls    []string
}

func (r *scriptedRunner) Run(_ context.Context, url string, _ config.Credentials, _ runloop.StopFunc) agent.Outcome {
	r.calls = append(r.calls, url)
	i := len(r.calls) - 1
	if i >= len(r.outcomes) {
		return agent.Outcome{Status: agent.StatusFailed}
	}
	return r.outcomes[i]
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunStopsAtMaxSignups(t *testing.T) {
	runner := &scriptedRunner{outcomes: []agent.Outcome{
		{Status: agent.StatusSuccess},
		{Status: agent.StatusSuccess},
		{Status: agent.StatusSuccess},
	}}
	p := New(runner, openTestStore(t), llm.NewCostAccumulator(), config.Credentials{}, SourceCSV, 2, noopLogger())

	summary := p.Run(context.Background(), []string{"https://a.example", "https://b.example", "https://c.example"})

	if summary.Succeeded != 2 {
		t.Fatalf("expected to stop after 2 successes, got %d", summary.Succeeded)
	}
	if len(runner.calls) != 2 {
		t.Fatalf("expected exactly 2 urls run, got %d", len(runner.calls))
	}
}

func TestRunSkipsAlreadyProcessedURL(t *testing.T) {
	st := openTestStore(t)
	if err := st.AddProcessedURL(store.ProcessedURL{URL: "https://dup.example", Source: "csv", Status: "failed"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	runner := &scriptedRunner{outcomes: []agent.Outcome{{Status: agent.StatusSuccess}}}
	p := New(runner, st, llm.NewCostAccumulator(), config.Credentials{}, SourceCSV, 10, noopLogger())

	summary := p.Run(context.Background(), []string{"https://dup.example", "https://fresh.example"})

	if len(runner.calls) != 1 || runner.calls[0] != "https://fresh.example" {
		t.Fatalf("expected only the fresh url to run, got %v", runner.calls)
	}
	if summary.Succeeded != 1 {
		t.Fatalf("expected one success, got %d", summary.Succeeded)
	}
}

func TestRunPersistsOutcome(t *testing.T) {
	st := openTestStore(t)
	runner := &scriptedRunner{outcomes: []agent.Outcome{{Status: agent.StatusFailed, PrimaryCategory: agent.CategoryValidation, PrimaryError: "bad email"}}}
	p := New(runner, st, llm.NewCostAccumulator(), config.Credentials{}, SourceCSV, 10, noopLogger())

	p.Run(context.Background(), []string{"https://fail.example"})

	done, err := st.IsURLProcessed("https://fail.example")
	if err != nil || !done {
		t.Fatalf("expected outcome persisted, got done=%v err=%v", done, err)
	}
}

func TestRunInterruptedByStopLeavesURLUnpersisted(t *testing.T) {
	st := openTestStore(t)
	runner := &scriptedRunner{outcomes: []agent.Outcome{{Status: agent.StatusSkipped, PrimaryError: "interrupted_by_stop"}}}
	p := New(runner, st, llm.NewCostAccumulator(), config.Credentials{}, SourceCSV, 10, noopLogger())

	p.Run(context.Background(), []string{"https://slow.example", "https://never-reached.example"})

	if len(runner.calls) != 1 {
		t.Fatalf("expected the run to stop after the interrupted url, got %v", runner.calls)
	}
	done, err := st.IsURLProcessed("https://slow.example")
	if err != nil {
		t.Fatalf("IsURLProcessed: %v", err)
	}
	if done {
		t.Fatalf("interrupted url must not be persisted as processed")
	}
}
