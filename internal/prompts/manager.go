package prompts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Manager 提示词模板管理。模板为YAML文件（template/version两个键），
// 文件缺失或损坏时回退到内置模板，属于非致命配置错误。
type Manager struct {
	dir string
}

// NewManager 创建模板管理器，dir为模板目录
func NewManager(dir string) *Manager {
	return &Manager{dir: dir}
}

type promptFile struct {
	Template string `yaml:"template"`
	Version  string `yaml:"version"`
}

// Template 获取指定名称的模板文本
func (m *Manager) Template(name string) string {
	if m.dir != "" {
		data, err := os.ReadFile(filepath.Join(m.dir, name+".yaml"))
		if err == nil {
			var pf promptFile
			if err := yaml.Unmarshal(data, &pf); err == nil && pf.Template != "" {
				return pf.Template
			}
			logrus.Warnf("提示词模板 %s 解析失败，使用内置模板", name)
		}
	}
	if tmpl, ok := builtinTemplates[name]; ok {
		return tmpl
	}
	logrus.Warnf("未找到提示词模板: %s", name)
	return ""
}

// Version 获取模板版本号
func (m *Manager) Version(name string) string {
	if m.dir != "" {
		data, err := os.ReadFile(filepath.Join(m.dir, name+".yaml"))
		if err == nil {
			var pf promptFile
			if err := yaml.Unmarshal(data, &pf); err == nil && pf.Version != "" {
				return pf.Version
			}
		}
	}
	return "builtin"
}

// Render 用命名占位符渲染模板（FString格式，占位符形如{location}）
func (m *Manager) Render(ctx context.Context, name string, vars map[string]any) (string, error) {
	tmpl := m.Template(name)
	if tmpl == "" {
		return "", fmt.Errorf("prompt template %s not found", name)
	}
	template := prompt.FromMessages(schema.FString, schema.UserMessage(tmpl))
	messages, err := template.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("failed to format prompt %s: %w", name, err)
	}
	if len(messages) == 0 {
		return "", fmt.Errorf("prompt %s rendered no messages", name)
	}
	return messages[0].Content, nil
}
