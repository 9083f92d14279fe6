package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"storyboard/internal/config"
)

// ChatModelInvoker 基于eino编排图调用ark chat model
type ChatModelInvoker struct {
	model    string
	runnable compose.Runnable[[]*schema.Message, *schema.Message]
}

// NewChatModelInvoker 创建ark chat model调用器，图只编译一次
func NewChatModelInvoker(ctx context.Context, cfg config.LLMConfig) (*ChatModelInvoker, error) {
	chatModel, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		HTTPClient: &http.Client{Timeout: time.Duration(cfg.TimeoutS) * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	graph := compose.NewGraph[[]*schema.Message, *schema.Message]()
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("failed to add chat model node: %w", err)
	}
	if err := graph.AddEdge(compose.START, "model"); err != nil {
		return nil, fmt.Errorf("failed to add edge: %w", err)
	}
	runnable, err := graph.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile graph: %w", err)
	}

	return &ChatModelInvoker{model: cfg.Model, runnable: runnable}, nil
}

// Invoke 以单条user消息调用模型，返回文本内容
func (c *ChatModelInvoker) Invoke(ctx context.Context, prompt string) (string, error) {
	messages := []*schema.Message{{Role: schema.User, Content: prompt}}
	res, err := c.runnable.Invoke(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("graph invocation failed: %w", err)
	}
	return res.Content, nil
}

func (c *ChatModelInvoker) ModelName() string {
	return c.model
}
