package llm

import "sync"

// modelPrice holds fixed USD-per-million-token rates, input and
// output priced separately; priceTable lists the models this run might
// address, and unknown models fall back to defaultPrice.
type modelPrice struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

var priceTable = map[string]modelPrice{
	"claude-sonnet-4-5-20250929": {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-haiku-4-5":           {InputPerMillion: 0.80, OutputPerMillion: 4.00},
	"gpt-4o-mini":                {InputPerMillion: 0.15, OutputPerMillion: 0.60},
	"gpt-4o":                     {InputPerMillion: 2.50, OutputPerMillion: 10.00},
}

var defaultPrice = modelPrice{InputPerMillion: 3.00, OutputPerMillion: 15.00}

// ModelUsage is one model's accumulated usage for the run.
type ModelUsage struct {
	Model        string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	Calls        int
}

// CostAccumulator is an explicit, per-run counter rather than a
// package-level global: cmd/agent builds one fresh instance per run and
// hands it to the components that record and report usage. It has no
// reset method.
type CostAccumulator struct {
	mu    sync.Mutex
	byModel map[string]*ModelUsage
}

// NewCostAccumulator returns a fresh, empty accumulator.
func NewCostAccumulator() *CostAccumulator {
	return &CostAccumulator{byModel: make(map[string]*ModelUsage)}
}

// Record adds one call's usage under model, computing cost from the
// fixed price table.
func (c *CostAccumulator) Record(model string, usage Usage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	price, ok := priceTable[model]
	if !ok {
		price = defaultPrice
	}
	cost := float64(usage.InputTokens)/1_000_000*price.InputPerMillion +
		float64(usage.OutputTokens)/1_000_000*price.OutputPerMillion

	mu, ok := c.byModel[model]
	if !ok {
		mu = &ModelUsage{Model: model}
		c.byModel[model] = mu
	}
	mu.InputTokens += usage.InputTokens
	mu.OutputTokens += usage.OutputTokens
	mu.CostUSD += cost
	mu.Calls++
}

// Snapshot returns a stable copy of accumulated usage per model, for
// persistence into the run's ApiSession record.
func (c *CostAccumulator) Snapshot() []ModelUsage {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]ModelUsage, 0, len(c.byModel))
	for _, mu := range c.byModel {
		out = append(out, *mu)
	}
	return out
}

// TotalCostUSD sums cost across all tracked models.
func (c *CostAccumulator) TotalCostUSD() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var total float64
	for _, mu := range c.byModel {
		total += mu.CostUSD
	}
	return total
}
