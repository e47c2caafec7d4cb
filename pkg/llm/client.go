// Package llm 提供了调用大模型服务的客户端。
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"easy-canvas-go/internal/config"
	"easy-canvas-go/pkg/log"
)

// Client 定义了 OpenAI Responses API 客户端的接口。
type Client interface {
	CreateResponse(ctx context.Context, req ResponseRequest) (*Response, error)
}

// 输入项类型
const (
	ItemMessage            = "message"
	ItemFunctionCall       = "function_call"
	ItemFunctionCallOutput = "function_call_output"
)

// InputItem 是发送给模型的一条输入。
// 普通消息只填 Role 和 Content；函数调用及其结果通过 CallID 关联。
type InputItem struct {
	Type      string `json:"type,omitempty"`
	Role      string `json:"role,omitempty"`
	Content   string `json:"content,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Output    string `json:"output,omitempty"`
}

// Message 构造一条角色消息。
func Message(role, content string) InputItem {
	return InputItem{Type: ItemMessage, Role: role, Content: content}
}

// FunctionCallItem 构造一条模型发起的函数调用，用于回放。
func FunctionCallItem(callID, name, arguments string) InputItem {
	return InputItem{Type: ItemFunctionCall, CallID: callID, Name: name, Arguments: arguments}
}

// FunctionCallOutputItem 构造一条函数执行结果。
func FunctionCallOutputItem(callID, output string) InputItem {
	return InputItem{Type: ItemFunctionCallOutput, CallID: callID, Output: output}
}

// Tool 是一个可供模型调用的函数定义。
type Tool struct {
	Type        string                 `json:"type"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
	Strict      bool                   `json:"strict"`
}

// TextFormat 约束模型按 JSON Schema 输出。
type TextFormat struct {
	Name   string
	Schema map[string]interface{}
	Strict bool
}

// ResponseRequest 是一次 Responses API 调用的参数。
type ResponseRequest struct {
	Model              string
	Input              []InputItem
	Tools              []Tool
	ReasoningEffort    string
	PreviousResponseID string
	Store              *bool
	TextFormat         *TextFormat
}

// FunctionCall 是模型返回的一次函数调用意图。
type FunctionCall struct {
	CallID    string
	Name      string
	Arguments string
}

// Response 是模型的一次回复。
type Response struct {
	ID            string
	OutputText    string
	FunctionCalls []FunctionCall
}

// HTTPError 表示模型服务返回了非 2xx 状态码。
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("llm http %d: %s", e.StatusCode, e.Body)
}

type responsesRequest struct {
	Model              string      `json:"model"`
	Input              []InputItem `json:"input"`
	Tools              []Tool      `json:"tools,omitempty"`
	Reasoning          *reasoning  `json:"reasoning,omitempty"`
	PreviousResponseID string      `json:"previous_response_id,omitempty"`
	Store              *bool       `json:"store,omitempty"`
	Text               *textConfig `json:"text,omitempty"`
}

type reasoning struct {
	Effort string `json:"effort"`
}

type textConfig struct {
	Format map[string]interface{} `json:"format"`
}

type responsesResponse struct {
	ID     string `json:"id"`
	Output []struct {
		Type      string `json:"type"`
		Role      string `json:"role,omitempty"`
		CallID    string `json:"call_id,omitempty"`
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
		Content   []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content,omitempty"`
	} `json:"output"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type openAIClient struct {
	apiKey      string
	baseURL     string
	maxRetries  int
	baseBackoff time.Duration
	client      *http.Client
}

// NewClient 根据配置创建 OpenAI 客户端。
func NewClient(cfg config.OpenAIConfig) Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	return &openAIClient{
		apiKey:      cfg.APIKey,
		baseURL:     baseURL,
		maxRetries:  cfg.MaxRetries,
		baseBackoff: time.Second,
		client:      &http.Client{Timeout: 10 * time.Minute},
	}
}

// CreateResponse 调用 /v1/responses，遇到 429、5xx 或网络错误时按指数退避重试。
func (c *openAIClient) CreateResponse(ctx context.Context, req ResponseRequest) (*Response, error) {
	body := responsesRequest{
		Model:              req.Model,
		Input:              req.Input,
		Tools:              req.Tools,
		PreviousResponseID: req.PreviousResponseID,
		Store:              req.Store,
	}
	if req.ReasoningEffort != "" {
		body.Reasoning = &reasoning{Effort: req.ReasoningEffort}
	}
	if req.TextFormat != nil {
		body.Text = &textConfig{Format: map[string]interface{}{
			"type":   "json_schema",
			"name":   req.TextFormat.Name,
			"schema": req.TextFormat.Schema,
			"strict": req.TextFormat.Strict,
		}}
	}

	reqBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal responses request: %w", err)
	}

	backoff := c.baseBackoff
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := c.doOnce(ctx, reqBytes)
		if err == nil {
			return decodeResponse(raw)
		}
		lastErr = err
		if !isRetryable(err) || attempt == c.maxRetries {
			break
		}
		log.Warnw("OpenAI request retrying",
			"model", req.Model,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", backoff.String(),
			"error", err.Error(),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, lastErr
}

func (c *openAIClient) doOnce(ctx context.Context, reqBytes []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/responses", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create responses request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call responses api: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read responses body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}

func decodeResponse(raw []byte) (*Response, error) {
	var wire responsesResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("openai decode error: %w", err)
	}
	if wire.Error != nil && wire.Error.Message != "" {
		return nil, fmt.Errorf("openai response error %s: %s", wire.Error.Code, wire.Error.Message)
	}

	out := &Response{ID: wire.ID}
	var text strings.Builder
	for _, item := range wire.Output {
		switch item.Type {
		case "message":
			for _, part := range item.Content {
				if part.Type == "output_text" {
					text.WriteString(part.Text)
				}
			}
		case ItemFunctionCall:
			out.FunctionCalls = append(out.FunctionCalls, FunctionCall{
				CallID:    item.CallID,
				Name:      item.Name,
				Arguments: item.Arguments,
			})
		}
	}
	out.OutputText = text.String()
	return out, nil
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return strings.Contains(err.Error(), "failed to call responses api")
}
