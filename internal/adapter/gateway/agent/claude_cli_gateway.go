package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/YoshitsuguKoike/assetflow/internal/application/port/output"
	"github.com/YoshitsuguKoike/assetflow/internal/interface/external/claudecli"
)

// phaseInstructions tells the agent what payload schema each phase expects
var phaseInstructions = map[string]string{
	"field_mapping": `Map each source column onto one of the canonical inventory fields
(name, hostname, ip_address, category) or a snake_case attribute name.
Payload schema: {"mappings": [{"source_column": "...", "target_field": "...", "confidence": 0.0}]}`,
	"data_cleansing": `Normalize every record: apply the given mappings, trim whitespace,
lowercase hostnames, canonicalize IP addresses. Every mapped target field must be
present in every output record.
Payload schema: {"records": [{"row": 1, "fields": {"name": "..."}, "notes": ["..."]}]}`,
	"inventory_materialization": `Classify each record into inventory buckets by its category.
Payload schema: {"servers": [...], "applications": [...], "devices": [...], "assets": [...]}
where each entry is {"name": "...", "hostname": "...", "ip_address": "...", "attributes": {}}`,
	"dependency_analysis": `Infer relationships between the materialized assets.
Payload schema: {"edges": [{"from": "...", "to": "...", "kind": "...", "confidence": 0.0}]}`,
	"debt_analysis": `Score technical-debt findings against the inventory.
Payload schema: {"findings": [{"asset_name": "...", "category": "...", "detail": "...", "severity": "low|medium|high", "score": 0.0}]}`,
}

// ClaudeCLIGateway implements AgentGateway over the claude CLI in one-shot
// prompt mode. Each invocation sends the phase input as a JSON document
// and expects a single JSON answer back.
type ClaudeCLIGateway struct {
	runner *claudecli.Runner
}

// NewClaudeCLIGateway creates a CLI-backed agent gateway
func NewClaudeCLIGateway(timeout time.Duration) *ClaudeCLIGateway {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &ClaudeCLIGateway{
		runner: &claudecli.Runner{
			Bin:     "claude",
			Timeout: timeout,
		},
	}
}

// AgentType returns the gateway identifier
func (g *ClaudeCLIGateway) AgentType() string {
	return "claude-cli"
}

// Invoke runs the agent for one phase
func (g *ClaudeCLIGateway) Invoke(ctx context.Context, req output.AgentRequest) (*output.AgentResult, error) {
	prompt, err := buildPrompt(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	text, err := g.runner.RunWithOptions(ctx, prompt, &claudecli.RunOptions{
		// Analysis only: the agent must answer inline, not touch the machine
		DisallowedTools: []string{"Bash", "Write", "Edit"},
	})
	if err != nil {
		return nil, fmt.Errorf("agent invocation for %s failed: %w", req.Phase, err)
	}

	doc, err := claudecli.ExtractJSONDocument(text)
	if err != nil {
		return nil, fmt.Errorf("agent answer for %s is not structured: %w", req.Phase, err)
	}

	return resultFromDocument(doc, g.AgentType(), time.Since(start))
}

// HealthCheck verifies the claude CLI is callable
func (g *ClaudeCLIGateway) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if _, err := g.runner.Run(ctx, `Answer with exactly: {"status": "ok"}`); err != nil {
		return fmt.Errorf("claude CLI health check failed: %w", err)
	}
	return nil
}

func buildPrompt(req output.AgentRequest) (string, error) {
	instructions, ok := phaseInstructions[req.Phase]
	if !ok {
		return "", fmt.Errorf("no agent instructions for phase %s", req.Phase)
	}

	input, err := json.MarshalIndent(req.Input, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal agent input failed: %w", err)
	}

	return fmt.Sprintf(`You are the %s analyst of an IT asset inventory pipeline.

%s

Answer with a single JSON document and nothing else:
{"payload": <per the schema above>, "insights": ["advisory observation", ...], "confidence": 0.0-1.0}

Input:
%s`, req.Phase, instructions, string(input)), nil
}

// resultFromDocument unwraps the agreed answer envelope
func resultFromDocument(doc map[string]interface{}, agentType string, duration time.Duration) (*output.AgentResult, error) {
	payload, ok := doc["payload"].(map[string]interface{})
	if !ok {
		// Tolerate agents that answer with the bare payload
		payload = doc
	}

	result := &output.AgentResult{
		Payload:   payload,
		Duration:  duration,
		AgentType: agentType,
	}
	if c, ok := doc["confidence"].(float64); ok {
		result.Confidence = c
	}
	if insights, ok := doc["insights"].([]interface{}); ok {
		for _, raw := range insights {
			if s, ok := raw.(string); ok {
				result.Insights = append(result.Insights, s)
			}
		}
	}
	return result, nil
}
