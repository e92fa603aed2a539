// Package pipeline implements the Pipeline Orchestrator (C10): it
// iterates a URL sequence, runs the Agent Loop per URL, and owns the
// counters, cooldown, and persistence the loop itself knows nothing
// about.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/polzovatel/ai-agent-for-browser-fast/internal/agent"
	"github.com/polzovatel/ai-agent-for-browser-fast/internal/config"
	"github.com/polzovatel/ai-agent-for-browser-fast/internal/llm"
	"github.com/polzovatel/ai-agent-for-browser-fast/internal/runloop"
	"github.com/polzovatel/ai-agent-for-browser-fast/internal/store"
)

const (
	maxConsecutiveFailures = 5
	cooldownDuration       = 60 * time.Second
	stopFileName           = "stop_signal.txt"
	stopFileAppDir         = "ai-agent-for-browser-fast"
)

// Runner drives one URL to an Outcome; satisfied by *runloop.Loop.
type Runner interface {
	Run(ctx context.Context, url string, creds config.Credentials, stop runloop.StopFunc) agent.Outcome
}

// Source names where a run's URLs came from, for ProcessedURL.Source
// and for deciding whether the scraped-URL queue gets marked.
type Source string

const (
	SourceCSV   Source = "csv"
	SourceMeta  Source = "meta"
	SourceQueue Source = "database"
)

// Pipeline owns the run-level counters and persistence the Agent Loop
// has no business tracking itself.
type Pipeline struct {
	runner     Runner
	store      *store.Store
	costs      *llm.CostAccumulator
	creds      config.Credentials
	source     Source
	maxSignups int
	logger     zerolog.Logger
}

// New wires a Runner (normally a *runloop.Loop) into a Pipeline.
func New(runner Runner, st *store.Store, costs *llm.CostAccumulator, creds config.Credentials, source Source, maxSignups int, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		runner:     runner,
		store:      st,
		costs:      costs,
		creds:      creds,
		source:     source,
		maxSignups: maxSignups,
		logger:     logger,
	}
}

// Summary is the textual run report printed at the end of Run.
type Summary struct {
	Processed int
	Succeeded int
	Failed    int
	Skipped   int
	Errored   int
}

// Run iterates urls until max signups is hit, the sequence is
// exhausted, or the stop signal fires.
func (p *Pipeline) Run(ctx context.Context, urls []string) Summary {
	var summary Summary
	consecutiveFailures := 0

	for _, url := range urls {
		if p.shouldStop(ctx) {
			p.logger.Info().Str("url", url).Msg("stop signal observed, leaving url pending")
			break
		}
		if summary.Succeeded >= p.maxSignups {
			p.logger.Info().Int("max_signups", p.maxSignups).Msg("max signups reached")
			break
		}

		if done, err := p.store.IsURLProcessed(url); err != nil {
			p.logger.Warn().Err(err).Str("url", url).Msg("duplicate check failed")
		} else if done {
			p.logger.Debug().Str("url", url).Msg("skipping already-processed url")
			continue
		}

		if consecutiveFailures >= maxConsecutiveFailures {
			p.logger.Warn().Int("consecutive_failures", consecutiveFailures).Msg("cooldown before next url")
			time.Sleep(cooldownDuration)
			consecutiveFailures = 0
		}

		outcome := p.runner.Run(ctx, url, p.creds, func() bool { return p.shouldStop(ctx) })
		summary.Processed++

		switch outcome.Status {
		case agent.StatusSuccess:
			summary.Succeeded++
			consecutiveFailures = 0
		case agent.StatusFailed:
			summary.Failed++
			consecutiveFailures++
		case agent.StatusSkipped:
			summary.Skipped++
			if outcome.PrimaryCategory != agent.CategoryNoForm {
				consecutiveFailures = 0
			}
		case agent.StatusError:
			summary.Errored++
			consecutiveFailures++
		}

		if outcome.PrimaryError == "interrupted_by_stop" {
			p.logger.Info().Str("url", url).Msg("interrupted, leaving url pending")
			break
		}

		p.persist(url, outcome)
		if p.source == SourceQueue {
			if err := p.store.MarkURLProcessed(url); err != nil {
				p.logger.Warn().Err(err).Str("url", url).Msg("mark scraped url processed failed")
			}
		}
	}

	p.saveCosts()
	return summary
}

func (p *Pipeline) persist(url string, outcome agent.Outcome) {
	row := store.ProcessedURL{
		URL:           url,
		Source:        string(p.source),
		Status:        string(outcome.Status),
		FieldsFilled:  outcome.FieldsFilled,
		ErrorMessage:  outcome.PrimaryError,
		ErrorCategory: string(outcome.PrimaryCategory),
		Details:       fmt.Sprintf("submit_attempts=%d form_submitted=%v captcha_attempted=%v captcha_solved=%v",
			outcome.SubmitAttempts, outcome.FormSubmitted, outcome.CaptchaAttempted, outcome.CaptchaSolved),
	}
	if err := p.store.AddProcessedURL(row); err != nil {
		p.logger.Error().Err(err).Str("url", url).Msg("persist outcome failed")
	}
}

func (p *Pipeline) saveCosts() {
	snapshot := p.costs.Snapshot()
	if len(snapshot) == 0 {
		return
	}
	start := time.Now().UTC()
	for _, m := range snapshot {
		if err := p.store.SaveAPISessionCosts(store.ApiSessionSummary{
			SessionStart: start,
			Model:        m.Model,
			InputTokens:  int64(m.InputTokens),
			OutputTokens: int64(m.OutputTokens),
			Cost:         fmt.Sprintf("%.4f", m.CostUSD),
			APICalls:     m.Calls,
		}); err != nil {
			p.logger.Error().Err(err).Str("model", m.Model).Msg("save api session costs failed")
		}
	}
}

// PrintSummary writes the textual run report to stdout, in the
// teacher's fmt.Printf progress-line style.
func (p *Pipeline) PrintSummary(s Summary) {
	fmt.Printf("run complete: processed=%d succeeded=%d failed=%d skipped=%d errored=%d\n",
		s.Processed, s.Succeeded, s.Failed, s.Skipped, s.Errored)
	fmt.Printf("total cost: $%.4f\n", p.costs.TotalCostUSD())
}

func (p *Pipeline) shouldStop(ctx context.Context) bool {
	if err := ctx.Err(); err != nil {
		return true
	}
	return stopFilePresent()
}

// stopFilePresent checks for a well-known stop file under the user's
// config directory, the generalized form of the external-stop-signal
// rule in §5 (a stop() call or callback is the caller's own
// responsibility, passed through runloop.StopFunc).
func stopFilePresent() bool {
	dir, err := os.UserConfigDir()
	if err != nil {
		return false
	}
	path := filepath.Join(dir, stopFileAppDir, stopFileName)
	_, err = os.Stat(path)
	return err == nil
}
