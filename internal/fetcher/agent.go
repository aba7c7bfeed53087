package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/market-validator/internal/model"
	"github.com/sells-group/market-validator/pkg/anthropic"
)

const agentSystemPrompt = "You look up current market data. Reply with one JSON object " +
	"whose keys are exactly the requested field names and whose values are the values " +
	"as displayed at the given page. Omit fields you cannot find. No prose."

// RuleLookup resolves the rule set of a source.
type RuleLookup interface {
	RuleSet(id model.SourceID) (model.ValidationRuleSet, error)
}

// AgentOptions configures the LLM-backed fetcher.
type AgentOptions struct {
	Model     string
	MaxTokens int64
	// Rules adds ruled fields that have no field mapping to the request.
	Rules RuleLookup
}

// Agent asks a language model for the fields of one ticker.
// Only source metadata goes into the request.
type Agent struct {
	client anthropic.Client
	opts   AgentOptions
}

// NewAgent creates an Agent fetcher over client.
func NewAgent(client anthropic.Client, opts AgentOptions) *Agent {
	if opts.Model == "" {
		opts.Model = "claude-haiku-4-5-20251001"
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 512
	}
	return &Agent{client: client, opts: opts}
}

// Fetch implements Fetcher.
func (a *Agent) Fetch(ctx context.Context, source model.DataSource, ticker string) (map[string]any, error) {
	zero := 0.0
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       a.opts.Model,
		MaxTokens:   a.opts.MaxTokens,
		System:      agentSystemPrompt,
		Messages:    []anthropic.Message{{Role: "user", Content: agentRequest(source, ticker, a.fieldNames(source))}},
		Temperature: &zero,
	})
	if err != nil {
		return nil, fetchErr(source, ticker, err)
	}
	resp.Usage.Log(resp.Model, "fetch:"+string(source.ID))

	fields, err := parseAgentReply(resp.Text)
	if err != nil {
		return nil, fetchErr(source, ticker, err)
	}
	return fields, nil
}

// fieldNames lists the native field names to ask for: every mapped source
// field, then every ruled field without a mapping under its own name.
func (a *Agent) fieldNames(source model.DataSource) []string {
	names := make([]string, 0, len(source.FieldMappings))
	mapped := make(map[string]bool, len(source.FieldMappings))
	for _, m := range source.FieldMappings {
		names = append(names, m.SourceField)
		mapped[m.TargetField] = true
	}
	if a.opts.Rules == nil {
		return names
	}
	rules, err := a.opts.Rules.RuleSet(source.ID)
	if err != nil {
		return names
	}
	for _, r := range rules.Rules {
		if !mapped[r.Field] {
			names = append(names, r.Field)
			mapped[r.Field] = true
		}
	}
	return names
}

func agentRequest(source model.DataSource, ticker string, names []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Source: %s\n", source.DisplayName)
	fmt.Fprintf(&b, "Ticker: %s\n", ticker)
	fmt.Fprintf(&b, "Page: %s\n", source.ItemURL(ticker))
	fmt.Fprintf(&b, "Currency: %s\n", source.Currency)
	fmt.Fprintf(&b, "Fields: %s\n", strings.Join(names, ", "))
	return b.String()
}

// parseAgentReply extracts the first JSON object from the reply, tolerating
// code fences or stray text around it.
func parseAgentReply(text string) (map[string]any, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, eris.New("agent reply contains no json object")
	}
	dec := json.NewDecoder(strings.NewReader(text[start : end+1]))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, eris.Wrap(err, "decode agent reply")
	}
	if len(fields) == 0 {
		return nil, eris.New("agent reply has no fields")
	}
	return fields, nil
}
