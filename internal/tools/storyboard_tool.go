package tools

import (
	"context"
	"encoding/json"
	"errors"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"storyboard/internal/service"
)

// StoryboardTool 实现eino框架的分镜生成工具，供agent编排调用
type StoryboardTool struct {
	svc *service.Service
}

// StoryboardToolArgs 分镜生成请求参数
type StoryboardToolArgs struct {
	Script          string `json:"script"`            // 中文剧本
	Style           string `json:"style"`             // 视频风格
	DurationPerShot int    `json:"duration_per_shot"` // 单个分镜时长（秒）
}

// NewStoryboardTool 创建分镜生成工具实例
func NewStoryboardTool(svc *service.Service) *StoryboardTool {
	return &StoryboardTool{svc: svc}
}

// Info 获取分镜生成工具信息
func (t *StoryboardTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	params := map[string]*schema.ParameterInfo{
		"script":            {Type: schema.String, Required: true, Desc: "中文剧本文本"},
		"style":             {Type: schema.String, Desc: "视频风格，如电影感、动漫、写实"},
		"duration_per_shot": {Type: schema.Integer, Desc: "单个分镜时长（秒），默认5"},
	}
	return &schema.ToolInfo{
		Name:        "storyboard_generate",
		Desc:        "将中文剧本解析为约5秒一段的视频分镜脚本，包含画面描述、英文提示词和角色连续性信息",
		ParamsOneOf: schema.NewParamsOneOfByParams(params),
	}, nil
}

// InvokableRun 执行分镜生成任务
func (t *StoryboardTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...einotool.Option) (string, error) {
	var args StoryboardToolArgs
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return "", err
	}
	if args.Script == "" {
		return "", errors.New("script required")
	}

	resp, err := t.svc.GenerateWire(ctx, &service.GenerateRequest{
		Script:          args.Script,
		Style:           args.Style,
		DurationPerShot: args.DurationPerShot,
	})
	if err != nil {
		return "", err
	}

	out, err := json.Marshal(resp)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
