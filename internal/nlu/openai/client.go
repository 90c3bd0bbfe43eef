package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"Karana-Planner/internal/intent"
	"Karana-Planner/internal/nlu"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultModelName = "gpt-4o-mini"
	defaultTimeout   = 30 * time.Second
)

// Config 描述了调用 OpenAI Chat Completions API 所需的信息。
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client 通过 HTTP 调用 OpenAI 完成意图识别。
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewClient 根据配置创建 OpenAI 客户端。
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("未提供 OpenAI API Key")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModelName
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Recognize 调用 OpenAI 将用户指令解析为结构化动作序列。
func (c *Client) Recognize(ctx context.Context, req nlu.Request) (*nlu.Response, error) {
	payload, err := c.buildPayload(req)
	if err != nil {
		return nil, err
	}

	endpoint := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("构建 OpenAI 请求失败: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("请求 OpenAI 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("OpenAI 返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("解析 OpenAI 响应失败: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return nil, errors.New("OpenAI 响应中没有有效的 choices")
	}

	content := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if content == "" {
		return nil, errors.New("OpenAI 响应内容为空")
	}

	var structured struct {
		Thought string          `json:"thought"`
		Actions []intent.Action `json:"actions"`
	}
	if err := json.Unmarshal([]byte(stripFences(content)), &structured); err != nil {
		return nil, fmt.Errorf("解析模型动作输出失败: %w", err)
	}

	return &nlu.Response{
		Actions: nlu.Normalize(structured.Actions),
		Thought: structured.Thought,
	}, nil
}

func (c *Client) buildPayload(req nlu.Request) ([]byte, error) {
	type message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	messages := []message{
		{
			Role:    "system",
			Content: systemPrompt,
		},
		{
			Role:    "user",
			Content: buildUserPrompt(req),
		},
	}

	body := map[string]any{
		"model":       c.model,
		"messages":    messages,
		"temperature": 0.1,
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("序列化 OpenAI 请求失败: %w", err)
	}
	return encoded, nil
}

const systemPrompt = "" +
	"You are the intent recognizer of a Karana device. " +
	"Always respond with a compact JSON object: {\"thought\": string, \"actions\": [" +
	"{\"layer\": string, \"operation\": string, \"params\": object, \"confidence\": number, \"reasoning\": string}]}. " +
	"Layers are HARDWARE, BLOCKCHAIN, APPLICATIONS, INTELLIGENCE, INTERFACE, SYSTEM_SERVICES, SPATIAL, NETWORK. " +
	"Operations are upper snake case, for example WALLET_TRANSFER or CAMERA_CAPTURE. " +
	"Return an empty actions array when the utterance asks for nothing executable."

func buildUserPrompt(req nlu.Request) string {
	var builder strings.Builder
	builder.WriteString("## 用户指令\n")
	builder.WriteString(fmt.Sprintf("原文: %s\n", strings.TrimSpace(req.Utterance)))
	if locale := strings.TrimSpace(req.Locale); locale != "" {
		builder.WriteString(fmt.Sprintf("语言: %s\n", locale))
	}

	if len(req.Hints) > 0 {
		builder.WriteString("\n## 设备上下文\n")
		for idx, hint := range req.Hints {
			builder.WriteString(fmt.Sprintf("[%d] %s\n", idx+1, truncate(hint)))
			if idx >= 4 {
				break
			}
		}
	}

	builder.WriteString("\n请把指令拆解为按执行顺序排列的 actions，并在 thought 中总结推理。")
	return builder.String()
}

// stripFences 去掉模型偶尔包裹的 Markdown 代码围栏。
func stripFences(content string) string {
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	if idx := strings.LastIndex(content, "```"); idx >= 0 {
		content = content[:idx]
	}
	return strings.TrimSpace(content)
}

func truncate(text string) string {
	text = strings.TrimSpace(text)
	if len([]rune(text)) > 80 {
		return string([]rune(text)[:80]) + "..."
	}
	return text
}
