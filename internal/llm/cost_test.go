package llm

import "testing"

func TestCostAccumulatorRecordsKnownModel(t *testing.T) {
	acc := NewCostAccumulator()
	acc.Record("gpt-4o-mini", Usage{InputTokens: 1_000_000, OutputTokens: 1_000_000})

	snap := acc.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected 1 model tracked, got %d", len(snap))
	}
	want := 0.15 + 0.60
	if got := snap[0].CostUSD; got < want-0.0001 || got > want+0.0001 {
		t.Fatalf("CostUSD = %f, want %f", got, want)
	}
}

func TestCostAccumulatorFallsBackForUnknownModel(t *testing.T) {
	acc := NewCostAccumulator()
	acc.Record("some-future-model", Usage{InputTokens: 1_000_000, OutputTokens: 0})
	if got := acc.TotalCostUSD(); got != defaultPrice.InputPerMillion {
		t.Fatalf("TotalCostUSD = %f, want %f", got, defaultPrice.InputPerMillion)
	}
}

func TestCostAccumulatorSumsAcrossModels(t *testing.T) {
	acc := NewCostAccumulator()
	acc.Record("gpt-4o-mini", Usage{InputTokens: 1_000_000})
	acc.Record("gpt-4o", Usage{InputTokens: 1_000_000})
	want := 0.15 + 2.50
	if got := acc.TotalCostUSD(); got < want-0.0001 || got > want+0.0001 {
		t.Fatalf("TotalCostUSD = %f, want %f", got, want)
	}
}
