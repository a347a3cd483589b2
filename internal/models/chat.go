// Package models 提供各家模型提供方的适配器实现。
package models

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/easeaico/project-echo/internal/types"
)

// ChatClient 封装 OpenAI 兼容的聊天补全客户端。
type ChatClient struct {
	client     *openai.Client
	model      string
	maxRetries int
	backoff    time.Duration
}

// ChatClientOption 配置 ChatClient 的可选项。
type ChatClientOption func(*ChatClient)

// WithRetry 设置失败重试次数和固定退避间隔。
func WithRetry(maxRetries int, backoff time.Duration) ChatClientOption {
	return func(c *ChatClient) {
		c.maxRetries = maxRetries
		c.backoff = backoff
	}
}

func NewChatClient(apiKey, baseURL, model string, opts ...ChatClientOption) (*ChatClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("model name cannot be empty")
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(clientOpts...)

	c := &ChatClient{
		client:     &client,
		model:      model,
		maxRetries: 3,
		backoff:    time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *ChatClient) Model() string {
	return c.model
}

// Complete sends a chat completion request and returns the assistant text.
// Transient failures are retried with a fixed backoff.
func (c *ChatClient) Complete(ctx context.Context, msgs []types.ChatMessage, opts *types.CompleteOptions) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: buildMessages(msgs),
	}
	if opts != nil {
		if opts.Temperature > 0 {
			params.Temperature = openai.Float(opts.Temperature)
		}
		if opts.MaxTokens > 0 {
			params.MaxTokens = openai.Int(opts.MaxTokens)
		}
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.backoff):
			}
		}

		resp, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			slog.Error("failed to call llm API", "model", c.model, "attempt", attempt+1, "error", err.Error())
			lastErr = err
			continue
		}
		if resp == nil || len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("empty completion response")
			continue
		}
		content := strings.TrimSpace(resp.Choices[0].Message.Content)
		if content == "" {
			lastErr = fmt.Errorf("empty completion content")
			continue
		}
		return content, nil
	}
	return "", fmt.Errorf("chat completion failed after %d attempts: %w", c.maxRetries, lastErr)
}

func buildMessages(msgs []types.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case types.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case types.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
