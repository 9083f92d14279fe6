package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"storyboard/internal/config"
)

const defaultArkBase = "https://ark.cn-beijing.volces.com"

// ArkHTTPInvoker 直连ark chat completions接口的轻量客户端。
// Mock模式返回固定响应，供离线演示和测试使用。
type ArkHTTPInvoker struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
	Mock       bool
}

// NewArkHTTPInvoker 创建HTTP调用器，ARK_MOCK=1时进入mock模式
func NewArkHTTPInvoker(cfg config.LLMConfig) *ArkHTTPInvoker {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultArkBase
	}
	mock := strings.ToLower(os.Getenv("ARK_MOCK"))
	return &ArkHTTPInvoker{
		BaseURL:    baseURL,
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		HTTPClient: &http.Client{Timeout: time.Duration(cfg.TimeoutS) * time.Second},
		Mock:       mock == "1" || mock == "true",
	}
}

// Invoke 调用chat completions，返回首个choice的文本内容
func (c *ArkHTTPInvoker) Invoke(ctx context.Context, prompt string) (string, error) {
	if c.Mock {
		return "{}", nil
	}
	if c.Model == "" {
		return "", errors.New("model required")
	}
	reqBody := map[string]any{
		"model":    c.Model,
		"messages": []map[string]any{{"role": "user", "content": prompt}},
	}
	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			Delta struct {
				Content string `json:"content"`
			} `json:"delta"`
		} `json:"choices"`
	}
	if err := c.postJSON(ctx, "/api/v3/chat/completions", reqBody, &resp); err != nil {
		return "", err
	}
	var content string
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
		if content == "" {
			content = resp.Choices[0].Delta.Content
		}
	}
	if content == "" {
		return "", errors.New("empty chat content")
	}
	return content, nil
}

func (c *ArkHTTPInvoker) ModelName() string {
	return c.Model
}

func (c *ArkHTTPInvoker) postJSON(ctx context.Context, path string, body any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, strings.NewReader(string(b)))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	bodyBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("http %d: %s", res.StatusCode, string(bodyBytes))
	}
	return json.Unmarshal(bodyBytes, out)
}
