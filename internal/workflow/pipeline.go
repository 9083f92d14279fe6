package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"storyboard/internal/config"
	"storyboard/internal/model"
	"storyboard/internal/shotgen"
)

// 工作流状态
const (
	stateParseScript       = "parse_script"
	statePlanTimeline      = "plan_timeline"
	stateGenerateShot      = "generate_shot"
	stateReviewShot        = "review_shot"
	stateCheckRetry        = "check_retry"
	stateExtractContinuity = "extract_continuity"
	stateReviewSequence    = "review_sequence"
	stateFixContinuity     = "fix_continuity"
	stateGenerateResult    = "generate_result"
	stateDone              = "done"
	stateError             = "error"
)

const resultVersion = "1.0"

// ScriptParser 剧本解析
type ScriptParser interface {
	Parse(ctx context.Context, scriptText string) (*model.StructuredScript, error)
}

// TimelinePlanner 时序规划
type TimelinePlanner interface {
	Plan(script *model.StructuredScript) ([]model.Segment, error)
}

// ContinuityGuardian 连续性守护
type ContinuityGuardian interface {
	Seed(states map[string]model.CharacterState)
	GenerateConstraints(segment *model.Segment, scene *model.Scene) (*model.ContinuityConstraints, error)
	ExtractAnchor(shot *model.Shot) ([]model.CharacterState, error)
	RepairSequence(shots []*model.Shot) int
	States() map[string]model.CharacterState
}

// ShotGenerator 分镜生成
type ShotGenerator interface {
	Generate(ctx context.Context, req *shotgen.Request) (*model.Shot, error)
	DefaultShot(req *shotgen.Request) *model.Shot
}

// Reviewer 质量审查
type Reviewer interface {
	ReviewShot(ctx context.Context, shot *model.Shot, segment *model.Segment) (*model.ShotReview, error)
	ReviewSequence(ctx context.Context, shots []*model.Shot) (*model.SequenceReview, error)
}

// Request 一次分镜生成请求
type Request struct {
	Script              string
	Style               string
	DurationPerShot     int
	PrevContinuityState map[string]model.CharacterState
}

// Pipeline 分镜生成工作流：状态机串联解析、规划、生成、审查、
// 修复各环节。单个分镜的失败走降级路径，整体流程尽量产出结果。
type Pipeline struct {
	cfg       *config.Config
	parser    ScriptParser
	planner   TimelinePlanner
	guardian  ContinuityGuardian
	generator ShotGenerator
	reviewer  Reviewer
	modelName string
}

// New 创建工作流。modelName用于结果元数据，规则模式下传空串。
func New(cfg *config.Config, parser ScriptParser, planner TimelinePlanner,
	guardian ContinuityGuardian, generator ShotGenerator, reviewer Reviewer, modelName string) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		parser:    parser,
		planner:   planner,
		guardian:  guardian,
		generator: generator,
		reviewer:  reviewer,
		modelName: modelName,
	}
}

// run过程中的可变状态
type runState struct {
	script             *model.StructuredScript
	segments           []model.Segment
	index              int
	retryCount         int
	shot               *model.Shot
	review             *model.ShotReview
	shots              []*model.Shot
	reviews            []*model.ShotReview
	warnings           []string
	continuityVerified bool
	err                error
}

// Run 执行完整工作流
func (p *Pipeline) Run(ctx context.Context, req *Request) (*model.StoryboardResult, error) {
	if strings.TrimSpace(req.Script) == "" {
		return nil, fmt.Errorf("剧本内容为空")
	}
	if req.DurationPerShot <= 0 {
		req.DurationPerShot = int(p.cfg.TargetSegmentDuration)
	}
	if req.Style == "" {
		req.Style = "realistic"
	}
	if len(req.PrevContinuityState) > 0 {
		p.guardian.Seed(req.PrevContinuityState)
	}

	rs := &runState{}
	state := stateParseScript

	for {
		logrus.Debugf("工作流状态: %s", state)
		switch state {
		case stateParseScript:
			state = p.parseScript(ctx, req, rs)
		case statePlanTimeline:
			state = p.planTimeline(rs)
		case stateGenerateShot:
			state = p.generateShot(ctx, req, rs)
		case stateReviewShot:
			state = p.reviewShot(ctx, rs)
		case stateCheckRetry:
			state = p.checkRetry(rs)
		case stateExtractContinuity:
			state = p.extractContinuity(rs)
		case stateReviewSequence:
			state = p.reviewSequence(ctx, rs)
		case stateFixContinuity:
			state = p.fixContinuity(ctx, rs)
		case stateGenerateResult:
			return p.generateResult(req, rs), nil
		case stateError:
			return nil, rs.err
		default:
			return nil, fmt.Errorf("未知的工作流状态: %s", state)
		}
	}
}

func (p *Pipeline) parseScript(ctx context.Context, req *Request, rs *runState) string {
	script, err := p.parser.Parse(ctx, req.Script)
	if err != nil {
		rs.err = fmt.Errorf("剧本解析失败: %w", err)
		return stateError
	}
	rs.script = script
	return statePlanTimeline
}

func (p *Pipeline) planTimeline(rs *runState) string {
	segments, err := p.planner.Plan(rs.script)
	if err != nil {
		rs.err = fmt.Errorf("时序规划失败: %w", err)
		return stateError
	}
	rs.segments = segments
	return stateGenerateShot
}

func (p *Pipeline) generateShot(ctx context.Context, req *Request, rs *runState) string {
	segment := &rs.segments[rs.index]
	scene := p.sceneFor(rs, segment)

	genReq := &shotgen.Request{
		Segment:         segment,
		Scene:           scene,
		Index:           rs.index + 1,
		Style:           req.Style,
		DurationPerShot: req.DurationPerShot,
	}

	constraints, err := p.guardian.GenerateConstraints(segment, scene)
	if err != nil {
		logrus.WithError(err).Warnf("分段 %d 连续性约束生成失败，使用默认分镜", segment.ID)
		rs.warnings = append(rs.warnings, fmt.Sprintf("分段 %d 约束生成失败，使用默认分镜", segment.ID))
		rs.shot = p.generator.DefaultShot(genReq)
		return stateReviewShot
	}
	genReq.Constraints = constraints

	shot, err := p.generator.Generate(ctx, genReq)
	if err != nil {
		logrus.WithError(err).Warnf("分段 %d 分镜生成失败，使用默认分镜", segment.ID)
		rs.warnings = append(rs.warnings, fmt.Sprintf("分段 %d 分镜生成失败，使用默认分镜", segment.ID))
		rs.shot = p.generator.DefaultShot(genReq)
		return stateReviewShot
	}
	rs.shot = shot
	return stateReviewShot
}

func (p *Pipeline) reviewShot(ctx context.Context, rs *runState) string {
	segment := &rs.segments[rs.index]
	review, err := p.reviewer.ReviewShot(ctx, rs.shot, segment)
	if err != nil {
		logrus.WithError(err).Warnf("分镜 %s 审查失败", rs.shot.ShotID)
		review = &model.ShotReview{
			ShotID:      rs.shot.ShotID,
			IsValid:     false,
			Issues:      []string{fmt.Sprintf("审查执行失败: %v", err)},
			Suggestions: []string{},
		}
	}
	rs.review = review
	return stateCheckRetry
}

// checkRetry 未通过审查的分镜最多重试MaxRetries次，用尽后带着警告放行
func (p *Pipeline) checkRetry(rs *runState) string {
	if rs.review.IsValid {
		rs.shots = append(rs.shots, rs.shot)
		rs.reviews = append(rs.reviews, rs.review)
		return stateExtractContinuity
	}

	if rs.retryCount < p.cfg.MaxRetries {
		rs.retryCount++
		logrus.Warnf("分镜 %s 审查未通过，第 %d 次重试: %v", rs.shot.ShotID, rs.retryCount, rs.review.Issues)
		return stateGenerateShot
	}

	logrus.Warnf("分镜 %s 重试 %d 次后仍未通过审查，放行", rs.shot.ShotID, p.cfg.MaxRetries)
	rs.warnings = append(rs.warnings,
		fmt.Sprintf("分镜 %s 经 %d 次重试仍未通过审查: %s",
			rs.shot.ShotID, p.cfg.MaxRetries, strings.Join(rs.review.Issues, "；")))
	rs.shots = append(rs.shots, rs.shot)
	rs.reviews = append(rs.reviews, rs.review)
	return stateExtractContinuity
}

func (p *Pipeline) extractContinuity(rs *runState) string {
	anchor, err := p.guardian.ExtractAnchor(rs.shot)
	if err != nil {
		rs.err = fmt.Errorf("分镜 %s 连续性锚点提取失败: %w", rs.shot.ShotID, err)
		return stateError
	}
	rs.shot.ContinuityAnchor = anchor

	rs.index++
	rs.retryCount = 0
	if rs.index < len(rs.segments) {
		return stateGenerateShot
	}
	return stateReviewSequence
}

func (p *Pipeline) reviewSequence(ctx context.Context, rs *runState) string {
	review, err := p.reviewer.ReviewSequence(ctx, rs.shots)
	if err != nil {
		logrus.WithError(err).Warn("序列审查失败，视为无连续性问题")
		rs.continuityVerified = true
		return stateGenerateResult
	}
	if review.HasContinuityIssues {
		logrus.Warnf("序列审查发现 %d 处连续性问题", len(review.ContinuityIssues))
		return stateFixContinuity
	}
	rs.continuityVerified = true
	return stateGenerateResult
}

// fixContinuity 修复后重新审查，continuity_verified反映修复后的结果
func (p *Pipeline) fixContinuity(ctx context.Context, rs *runState) string {
	fixes := p.guardian.RepairSequence(rs.shots)
	logrus.Infof("连续性修复完成，共 %d 处", fixes)
	rs.warnings = append(rs.warnings, fmt.Sprintf("自动修复了 %d 处连续性问题", fixes))

	review, err := p.reviewer.ReviewSequence(ctx, rs.shots)
	if err != nil {
		logrus.WithError(err).Warn("修复后序列审查失败，视为无连续性问题")
		rs.continuityVerified = true
		return stateGenerateResult
	}
	rs.continuityVerified = !review.HasContinuityIssues
	if review.HasContinuityIssues {
		rs.warnings = append(rs.warnings,
			fmt.Sprintf("修复后仍存在 %d 处连续性问题: %s",
				len(review.ContinuityIssues), strings.Join(review.ContinuityIssues, "；")))
	}
	return stateGenerateResult
}

func (p *Pipeline) generateResult(req *Request, rs *runState) *model.StoryboardResult {
	var total float64
	for _, shot := range rs.shots {
		total += shot.Duration()
	}

	modelName := p.modelName
	if modelName == "" {
		modelName = "rule-based"
	}

	warnings := rs.warnings
	if warnings == nil {
		warnings = []string{}
	}

	return &model.StoryboardResult{
		JobID:                newJobID(),
		InputScript:          req.Script,
		Style:                req.Style,
		DurationPerShot:      req.DurationPerShot,
		TotalShots:           len(rs.shots),
		TotalDurationSec:     total,
		Shots:                rs.shots,
		FinalContinuityState: p.guardian.States(),
		Warnings:             warnings,
		Metadata: model.ResultMetadata{
			GeneratedAt:        time.Now().Format(time.RFC3339),
			LLMModel:           modelName,
			ContinuityVerified: rs.continuityVerified,
			Version:            resultVersion,
		},
	}
}

// sceneFor 分段所属场景，索引越界时退回首个场景
func (p *Pipeline) sceneFor(rs *runState, segment *model.Segment) *model.Scene {
	if segment.SceneID >= 0 && segment.SceneID < len(rs.script.Scenes) {
		return &rs.script.Scenes[segment.SceneID]
	}
	if len(rs.script.Scenes) > 0 {
		return &rs.script.Scenes[0]
	}
	return &model.Scene{Location: p.cfg.DefaultLocation, Time: p.cfg.DefaultTime}
}

// newJobID 形如 shotgen_20260831_1a2b3c4d
func newJobID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("shotgen_%s_%s", time.Now().Format("20060102"), id[:8])
}
