package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"storyboard/internal/model"
)

const resultFileName = "storyboard_result.json"

// ResultStorage 生成结果的文件落盘。每个任务一个目录，
// 结果文件只写一次，不做更新。
type ResultStorage struct {
	dir string
}

// New 创建结果存储，dir为输出根目录
func New(dir string) *ResultStorage {
	return &ResultStorage{dir: dir}
}

// Save 保存结果，返回结果文件路径
func (s *ResultStorage) Save(result *model.StoryboardResult) (string, error) {
	if result.JobID == "" {
		return "", fmt.Errorf("结果缺少job_id")
	}
	jobDir := filepath.Join(s.dir, result.JobID)
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return "", fmt.Errorf("创建输出目录失败: %w", err)
	}

	path := filepath.Join(jobDir, resultFileName)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("任务 %s 的结果已存在", result.JobID)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("序列化结果失败: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("写入结果文件失败: %w", err)
	}
	return path, nil
}

// Load 按任务ID加载结果
func (s *ResultStorage) Load(jobID string) (*model.StoryboardResult, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, jobID, resultFileName))
	if err != nil {
		return nil, fmt.Errorf("读取结果文件失败: %w", err)
	}
	var result model.StoryboardResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("解析结果文件失败: %w", err)
	}
	return &result, nil
}
