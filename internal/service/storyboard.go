package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"storyboard/internal/config"
	"storyboard/internal/continuity"
	"storyboard/internal/llm"
	"storyboard/internal/model"
	"storyboard/internal/parser"
	"storyboard/internal/planner"
	"storyboard/internal/prompts"
	"storyboard/internal/qa"
	"storyboard/internal/shotgen"
	"storyboard/internal/storage"
	"storyboard/internal/workflow"
)

// GenerateRequest 分镜生成请求
type GenerateRequest struct {
	Script              string                          `json:"script" binding:"required"`
	Style               string                          `json:"style"`
	DurationPerShot     int                             `json:"duration_per_shot"`
	PrevContinuityState map[string]model.CharacterState `json:"prev_continuity_state"`
}

// WireShot 对外接口返回的分镜格式
type WireShot struct {
	ShotID            string   `json:"shot_id"`
	StartTime         float64  `json:"start_time"`
	EndTime           float64  `json:"end_time"`
	Duration          float64  `json:"duration"`
	Description       string   `json:"description"`
	PromptEN          string   `json:"prompt_en"`
	Characters        []string `json:"characters"`
	Dialogue          string   `json:"dialogue"`
	CameraAngle       string   `json:"camera_angle"`
	ContinuityAnchors []string `json:"continuity_anchors"`
}

// GenerateResponse 对外接口返回的完整分镜脚本。
// final_continuity_state供调用方作为下一批次的prev_continuity_state续接。
type GenerateResponse struct {
	JobID                string                          `json:"job_id"`
	Status               string                          `json:"status"`
	StoryboardTitle      string                          `json:"storyboard_title"`
	TotalShots           int                             `json:"total_shots"`
	TotalDurationSec     float64                         `json:"total_duration_sec"`
	Shots                []WireShot                      `json:"shots"`
	FinalContinuityState map[string]model.CharacterState `json:"final_continuity_state"`
	Warnings             []string                        `json:"warnings"`
	Metadata             model.ResultMetadata            `json:"metadata"`
}

// Service 分镜生成服务。每次请求组装一条独立的工作流，
// 角色状态等可变数据不跨请求共享。
type Service struct {
	cfg     *config.Config
	prompts *prompts.Manager
	storage *storage.ResultStorage
}

// New 创建分镜生成服务
func New(cfg *config.Config) *Service {
	return &Service{
		cfg:     cfg,
		prompts: prompts.NewManager(cfg.PromptDir),
		storage: storage.New(cfg.OutputDir),
	}
}

// Generate 执行分镜生成并返回完整结果。结果异步落盘，落盘失败不影响返回。
func (s *Service) Generate(ctx context.Context, req *GenerateRequest) (*model.StoryboardResult, error) {
	invoker := llm.New(ctx, s.cfg.LLM)
	modelName := ""
	if invoker != nil {
		modelName = invoker.ModelName()
	}

	pipeline := workflow.New(
		s.cfg,
		parser.New(s.cfg, invoker, s.prompts),
		planner.New(s.cfg),
		continuity.New(s.cfg),
		shotgen.New(s.cfg, invoker, s.prompts),
		qa.New(s.cfg, invoker, s.prompts),
		modelName,
	)

	result, err := pipeline.Run(ctx, &workflow.Request{
		Script:              req.Script,
		Style:               req.Style,
		DurationPerShot:     req.DurationPerShot,
		PrevContinuityState: req.PrevContinuityState,
	})
	if err != nil {
		return nil, fmt.Errorf("分镜生成失败: %w", err)
	}

	logrus.Infof("分镜生成完成: job=%s shots=%d duration=%.1fs warnings=%d",
		result.JobID, result.TotalShots, result.TotalDurationSec, len(result.Warnings))

	go func(r *model.StoryboardResult) {
		if path, err := s.storage.Save(r); err != nil {
			logrus.WithError(err).Warnf("任务 %s 结果落盘失败", r.JobID)
		} else {
			logrus.Debugf("任务 %s 结果已保存: %s", r.JobID, path)
		}
	}(result)

	return result, nil
}

// GenerateWire 执行分镜生成并转换为对外接口格式
func (s *Service) GenerateWire(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	result, err := s.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	return toWire(result), nil
}

// toWire 内部结果转对外格式
func toWire(result *model.StoryboardResult) *GenerateResponse {
	resp := &GenerateResponse{
		JobID:                result.JobID,
		Status:               "success",
		StoryboardTitle:      storyboardTitle(result),
		TotalShots:           result.TotalShots,
		TotalDurationSec:     result.TotalDurationSec,
		Shots:                []WireShot{},
		FinalContinuityState: result.FinalContinuityState,
		Warnings:             result.Warnings,
		Metadata:             result.Metadata,
	}
	for _, shot := range result.Shots {
		ws := WireShot{
			ShotID:            shot.ShotID,
			StartTime:         shot.TimeRange[0],
			EndTime:           shot.TimeRange[1],
			Duration:          shot.Duration(),
			Description:       shot.ChineseDescription,
			PromptEN:          shot.AIPrompt,
			Characters:        shot.CharactersInFrame,
			Dialogue:          shot.Dialogue,
			CameraAngle:       shot.Camera.Angle,
			ContinuityAnchors: []string{},
		}
		for _, anchor := range shot.ContinuityAnchor {
			ws.ContinuityAnchors = append(ws.ContinuityAnchors,
				fmt.Sprintf("%s: pose=%s, position=%s, emotion=%s",
					anchor.CharacterName, anchor.Pose, anchor.Position, anchor.Emotion))
		}
		resp.Shots = append(resp.Shots, ws)
	}
	return resp
}

// storyboardTitle 以首个分镜的场景地点作为标题
func storyboardTitle(result *model.StoryboardResult) string {
	for _, shot := range result.Shots {
		if shot.SceneContext != nil && shot.SceneContext.Location != "" {
			return shot.SceneContext.Location
		}
	}
	return "未命名剧本"
}

// LoadResult 按任务ID读取已落盘的结果
func (s *Service) LoadResult(jobID string) (*model.StoryboardResult, error) {
	return s.storage.Load(jobID)
}

// Info 服务信息
func (s *Service) Info() map[string]any {
	return map[string]any{
		"service":           "storyboard",
		"version":           "1.0",
		"llm_model":         s.cfg.LLM.Model,
		"llm_provider":      s.cfg.LLM.Provider,
		"max_retries":       s.cfg.MaxRetries,
		"target_duration":   s.cfg.TargetSegmentDuration,
		"max_shot_duration": s.cfg.MaxShotDuration,
	}
}
