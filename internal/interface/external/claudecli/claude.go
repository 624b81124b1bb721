package claudecli

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

type Runner struct {
	Bin     string
	Timeout time.Duration
}

// ClaudeResponse represents the JSON response from claude
type ClaudeResponse struct {
	Type       string  `json:"type"`
	Subtype    string  `json:"subtype"`
	IsError    bool    `json:"is_error"`
	DurationMs int     `json:"duration_ms"`
	Result     string  `json:"result"`
	SessionID  string  `json:"session_id"`
	TotalCost  float64 `json:"total_cost_usd"`
	UUID       string  `json:"uuid"`
}

// RunOptions contains options for claude execution
type RunOptions struct {
	AllowedTools    []string // Tools to allow (e.g., "Read", "Edit", "Bash")
	DisallowedTools []string // Tools to disallow
}

func (r Runner) Run(ctx context.Context, prompt string, extraArgs ...string) (string, error) {
	return r.RunWithOptions(ctx, prompt, nil, extraArgs...)
}

func (r Runner) RunWithOptions(ctx context.Context, prompt string, opts *RunOptions, extraArgs ...string) (string, error) {
	args := []string{"-p", "--output-format", "json"}

	if opts != nil {
		if len(opts.AllowedTools) > 0 {
			args = append(args, "--allowed-tools", strings.Join(opts.AllowedTools, ","))
		}
		if len(opts.DisallowedTools) > 0 {
			args = append(args, "--disallowed-tools", strings.Join(opts.DisallowedTools, ","))
		}
	}

	args = append(args, extraArgs...)
	args = append(args, prompt)

	cctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, r.Bin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("claude execution failed: %w (output: %s)", err, string(out))
	}

	var response ClaudeResponse
	if err := json.Unmarshal(out, &response); err != nil {
		// Older CLI builds print the answer as plain text
		return string(out), nil
	}

	if response.IsError {
		return "", fmt.Errorf("claude returned error: %s", response.Result)
	}

	return response.Result, nil
}

// ExtractJSONDocument pulls the first JSON object out of an agent answer.
// Agents sometimes wrap the document in prose or a fenced code block.
func ExtractJSONDocument(text string) (map[string]interface{}, error) {
	start := strings.Index(text, "{")
	if start < 0 {
		return nil, fmt.Errorf("no JSON object in answer")
	}

	dec := json.NewDecoder(strings.NewReader(text[start:]))
	var doc map[string]interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode answer: %w", err)
	}
	return doc, nil
}
