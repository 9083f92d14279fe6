package llm

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"storyboard/internal/config"
)

// Invoker 语言模型调用接口：输入提示词，返回文本补全。
// 核心流程对返回内容不做结构假设，只要求"有文本，最好是JSON"。
type Invoker interface {
	Invoke(ctx context.Context, prompt string) (string, error)
	ModelName() string
}

// IsCredentialError 判断是否为鉴权类错误（通过错误文本子串匹配）
func IsCredentialError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "API key") || strings.Contains(msg, "401")
}

// ExtractJSON 从模型回复中提取JSON文本：剥掉markdown代码围栏后，
// 截取首个"{"到最后一个"}"之间的内容。模型经常在JSON前后附带说明文字。
func ExtractJSON(response string) string {
	s := strings.TrimSpace(response)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

// New 按配置创建Invoker。未配置provider或缺少密钥时返回nil，
// 调用方应将nil视为"无LLM"并走规则引擎路径。
func New(ctx context.Context, cfg config.LLMConfig) Invoker {
	switch cfg.Provider {
	case "ark":
		if cfg.APIKey == "" {
			logrus.Warn("未配置ARK_API_KEY，将使用规则引擎模式")
			return nil
		}
		inv, err := NewChatModelInvoker(ctx, cfg)
		if err != nil {
			logrus.WithError(err).Warn("初始化chat model失败，将使用规则引擎模式")
			return nil
		}
		return inv
	case "http":
		return NewArkHTTPInvoker(cfg)
	case "":
		return nil
	default:
		logrus.Warnf("未知的LLM provider: %s，将使用规则引擎模式", cfg.Provider)
		return nil
	}
}
