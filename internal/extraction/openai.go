package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/doxalabs/doxa/internal/domain"
)

const openAIChatURL = "https://api.openai.com/v1/chat/completions"

// unhealthyAfter is the consecutive-failure count at which IsHealthy flips
// and the failover engine routes to pattern extraction. One success resets it.
const unhealthyAfter = 3

type OpenAIClient struct {
	apiKey     string
	model      string
	httpClient *http.Client

	failures atomic.Int64
}

func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	return &OpenAIClient{
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{},
	}
}

// chat types for OpenAI API
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *OpenAIClient) complete(ctx context.Context, prompt string, temp float32) (string, error) {
	result, err := c.completeOnce(ctx, prompt, temp)
	if err != nil {
		c.failures.Add(1)
		return "", err
	}
	c.failures.Store(0)
	return result, nil
}

func (c *OpenAIClient) completeOnce(ctx context.Context, prompt string, temp float32) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: temp,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, openAIChatURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("unmarshal chat response: %w", err)
	}

	if result.Error != nil {
		return "", fmt.Errorf("chat API error: %s", result.Error.Message)
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("chat API returned no choices")
	}

	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}

func (c *OpenAIClient) ExtractBeliefs(ctx context.Context, content, agentID, categoryHint string) ([]domain.CandidateBelief, error) {
	if categoryHint == "" {
		categoryHint = "general"
	}

	result, err := c.complete(ctx, fmt.Sprintf(beliefExtractionPrompt, categoryHint, content), 0.2)
	if err != nil {
		return nil, fmt.Errorf("extract beliefs: %w", err)
	}

	// Strip markdown fences if present
	result = strings.TrimPrefix(result, "```json")
	result = strings.TrimPrefix(result, "```")
	result = strings.TrimSuffix(result, "```")
	result = strings.TrimSpace(result)

	var candidates []domain.CandidateBelief
	if err := json.Unmarshal([]byte(result), &candidates); err != nil {
		return nil, fmt.Errorf("parse belief extraction result: %w (raw: %s)", err, result)
	}

	out := candidates[:0]
	for _, cand := range candidates {
		cand.Statement = strings.TrimSpace(cand.Statement)
		if cand.Statement == "" && cand.Positive {
			continue
		}
		if cand.Category == "" {
			cand.Category = domain.NormalizeCategory(categoryHint)
		}
		cand.Confidence = domain.Clamp01(cand.Confidence)
		out = append(out, cand)
	}
	return out, nil
}

func (c *OpenAIClient) Similarity(ctx context.Context, s1, s2 string) (float64, error) {
	result, err := c.complete(ctx, fmt.Sprintf(statementSimilarityPrompt, s1, s2), 0)
	if err != nil {
		return 0, fmt.Errorf("statement similarity: %w", err)
	}

	score, err := strconv.ParseFloat(strings.TrimSpace(result), 64)
	if err != nil {
		return 0, fmt.Errorf("parse similarity result: %w (raw: %s)", err, result)
	}
	return domain.Clamp01(score), nil
}

func (c *OpenAIClient) AreConflicting(ctx context.Context, s1, s2, cat1, cat2 string) (bool, error) {
	result, err := c.complete(ctx, fmt.Sprintf(conflictCheckPrompt, cat1, s1, cat2, s2), 0)
	if err != nil {
		return false, fmt.Errorf("conflict check: %w", err)
	}

	return strings.ToLower(strings.TrimSpace(result)) == "true", nil
}

func (c *OpenAIClient) ExtractCategory(ctx context.Context, statement string) (string, float64, error) {
	result, err := c.complete(ctx, fmt.Sprintf(categoryPrompt, statement), 0)
	if err != nil {
		return "", 0, fmt.Errorf("extract category: %w", err)
	}

	// Strip markdown fences if present
	result = strings.TrimPrefix(result, "```json")
	result = strings.TrimPrefix(result, "```")
	result = strings.TrimSuffix(result, "```")
	result = strings.TrimSpace(result)

	var parsed struct {
		Category   string  `json:"category"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(result), &parsed); err != nil {
		return "", 0, fmt.Errorf("parse category result: %w (raw: %s)", err, result)
	}

	category := domain.NormalizeCategory(parsed.Category)
	if category == "" {
		category = domain.NormalizeCategory(domain.CategoryUnknown)
	}
	return category, domain.Clamp01(parsed.Confidence), nil
}

func (c *OpenAIClient) CalculateConfidence(ctx context.Context, content, statement, contextNote string) (float64, string, error) {
	if contextNote == "" {
		contextNote = "none"
	}

	result, err := c.complete(ctx, fmt.Sprintf(confidencePrompt, content, statement, contextNote), 0.3)
	if err != nil {
		return 0, "", fmt.Errorf("calculate confidence: %w", err)
	}

	// Strip markdown fences if present
	result = strings.TrimPrefix(result, "```json")
	result = strings.TrimPrefix(result, "```")
	result = strings.TrimSuffix(result, "```")
	result = strings.TrimSpace(result)

	var parsed struct {
		Confidence float64 `json:"confidence"`
		Reasoning  string  `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(result), &parsed); err != nil {
		return 0, "", fmt.Errorf("parse confidence result: %w (raw: %s)", err, result)
	}

	return domain.Clamp01(parsed.Confidence), parsed.Reasoning, nil
}

func (c *OpenAIClient) IsHealthy(ctx context.Context) bool {
	return c.apiKey != "" && c.failures.Load() < unhealthyAfter
}
