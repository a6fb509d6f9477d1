// Package openai implements the decision oracle over the chat completions
// API with JSON-object responses.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	clierr "github.com/ggonzalez94/defi-keeper/internal/errors"
	"github.com/ggonzalez94/defi-keeper/internal/httpx"
	"github.com/ggonzalez94/defi-keeper/internal/model"
	"github.com/ggonzalez94/defi-keeper/internal/providers"
	"github.com/ggonzalez94/defi-keeper/internal/registry"
)

const (
	DefaultBaseURL = registry.OpenAIBaseURL
	DefaultModel   = "gpt-4o-mini"
)

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

type Client struct {
	http    *httpx.Client
	apiKey  string
	baseURL string
	model   string
}

var _ providers.DecisionOracle = (*Client)(nil)

func New(httpClient *httpx.Client, cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, clierr.New(clierr.CodeConfig, "openai api key is not configured")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	modelName := strings.TrimSpace(cfg.Model)
	if modelName == "" {
		modelName = DefaultModel
	}
	return &Client{http: httpClient, apiKey: apiKey, baseURL: baseURL, model: modelName}, nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []message         `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) Decide(ctx context.Context, req model.DecisionRequest) (model.DecisionResponse, error) {
	user, err := userPrompt(req)
	if err != nil {
		return model.DecisionResponse{}, err
	}
	body := chatRequest{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: systemPrompt(req.Kind)},
			{Role: "user", Content: user},
		},
		Temperature:    0,
		ResponseFormat: map[string]string{"type": "json_object"},
	}

	var resp chatResponse
	err = c.http.Do(ctx, httpx.Request{
		Method:     http.MethodPost,
		URL:        c.baseURL + "/chat/completions",
		Headers:    map[string]string{"Authorization": "Bearer " + c.apiKey},
		Body:       body,
		Idempotent: true,
	}, &resp)
	if err != nil {
		return model.DecisionResponse{}, err
	}
	if len(resp.Choices) == 0 {
		return model.DecisionResponse{}, clierr.New(clierr.CodeOracle, "oracle response has no choices")
	}
	return parseDecision(resp.Choices[0].Message.Content)
}

func parseDecision(content string) (model.DecisionResponse, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return model.DecisionResponse{}, clierr.New(clierr.CodeOracle, "oracle returned empty content")
	}
	var out model.DecisionResponse
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return model.DecisionResponse{}, clierr.Wrap(clierr.CodeOracle, "decode oracle decision", err)
	}
	for i := range out.Decisions {
		out.Decisions[i].Verdict = model.Verdict(strings.ToLower(strings.TrimSpace(string(out.Decisions[i].Verdict))))
	}
	return out, nil
}

const responseContract = `Respond with a single JSON object of the form
{"decisions":[{"id":string,"verdict":"approve"|"reject","confidence":number between 0 and 1,"rationale":string}],"rationale":string}
with exactly one decision per proposed action id.`

func systemPrompt(kind string) string {
	switch kind {
	case "yield":
		return "You review proposed moves of USDC between lending protocols on one chain. " +
			"Weigh the APY gain against gas cost and protocol risk, and reject moves whose benefit is marginal.\n" + responseContract
	default:
		return "You help keep token holdings balanced across blockchain networks. " +
			"Weigh bridging cost against the size of each imbalance, and reject moves that are not worth it.\n" + responseContract
	}
}

func userPrompt(req model.DecisionRequest) (string, error) {
	snapshot, err := json.MarshalIndent(req.Snapshot, "", "  ")
	if err != nil {
		return "", clierr.Wrap(clierr.CodeInternal, "encode decision snapshot", err)
	}
	var b strings.Builder
	b.WriteString("Current state:\n")
	b.Write(snapshot)
	b.WriteString("\n\nProposed actions:\n")
	for _, a := range req.Actions {
		fmt.Fprintf(&b, "- id=%s: %s\n", a.ID, a.Summary)
	}
	b.WriteString("\nConsider transaction costs versus benefit, current network conditions, and the size of the imbalance or position.")
	return b.String(), nil
}
