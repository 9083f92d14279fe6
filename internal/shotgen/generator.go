package shotgen

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"storyboard/internal/config"
	"storyboard/internal/llm"
	"storyboard/internal/model"
	"storyboard/internal/prompts"
)

// 各视频风格对应的英文提示词前缀，支持中文别名
var stylePrefixes = []struct {
	keywords []string
	prefix   string
}{
	{[]string{"realistic", "写实"}, "photorealistic, natural lighting, documentary style"},
	{[]string{"anime", "动漫"}, "anime style, vibrant colors, clean line art"},
	{[]string{"cinematic", "电影"}, "cinematic film still, 35mm lens, shallow depth of field"},
	{[]string{"cartoon", "卡通"}, "cartoon style, bold outlines, bright flat colors"},
}

const defaultStylePrefix = "high quality video, detailed"

// stylePrefix 按风格取提示词前缀，未识别的风格使用默认前缀
func stylePrefix(style string) string {
	s := strings.ToLower(style)
	for _, sp := range stylePrefixes {
		for _, kw := range sp.keywords {
			if strings.Contains(s, kw) {
				return sp.prefix
			}
		}
	}
	return defaultStylePrefix
}

// Request 单个分镜的生成请求
type Request struct {
	Segment         *model.Segment
	Scene           *model.Scene
	Constraints     *model.ContinuityConstraints
	Index           int // 分镜序号，从1开始
	Style           string
	DurationPerShot int
}

// Generator 分镜生成器：优先走LLM生成，失败时回退到规则生成。
// Generate永不失败，最差情况下返回规则生成的默认分镜。
type Generator struct {
	cfg     *config.Config
	invoker llm.Invoker
	prompts *prompts.Manager
}

// New 创建分镜生成器，invoker为nil时只使用规则生成
func New(cfg *config.Config, invoker llm.Invoker, pm *prompts.Manager) *Generator {
	return &Generator{cfg: cfg, invoker: invoker, prompts: pm}
}

// shotDraft LLM输出的分镜草稿
type shotDraft struct {
	ChineseDescription string                 `json:"chinese_description"`
	AIPrompt           string                 `json:"ai_prompt"`
	Camera             model.Camera           `json:"camera"`
	InitialState       []model.CharacterState `json:"initial_state"`
	FinalState         []model.CharacterState `json:"final_state"`
}

// Generate 生成一个分镜
func (g *Generator) Generate(ctx context.Context, req *Request) (*model.Shot, error) {
	shotID := fmt.Sprintf("shot_%03d", req.Index)

	var draft *shotDraft
	if g.invoker != nil {
		d, err := g.generateWithLLM(ctx, req, shotID)
		if err != nil {
			if llm.IsCredentialError(err) {
				logrus.WithError(err).Warnf("分镜 %s LLM生成失败：鉴权错误，回退到规则生成", shotID)
			} else {
				logrus.WithError(err).Warnf("分镜 %s LLM生成失败，回退到规则生成", shotID)
			}
		} else {
			draft = d
		}
	}
	if draft == nil {
		draft = g.generateWithRules(req)
	}

	return g.assemble(req, shotID, draft), nil
}

// DefaultShot 兜底分镜，用于上游约束生成等环节出错时
func (g *Generator) DefaultShot(req *Request) *model.Shot {
	shotID := fmt.Sprintf("shot_%03d", req.Index)
	return g.assemble(req, shotID, g.generateWithRules(req))
}

func (g *Generator) generateWithLLM(ctx context.Context, req *Request, shotID string) (*shotDraft, error) {
	prompt, err := g.prompts.Render(ctx, "shot_generation", map[string]any{
		"location":                    req.Scene.Location,
		"time":                        req.Scene.Time,
		"atmosphere":                  req.Scene.Atmosphere,
		"actions_text":                formatActions(req.Segment.Actions),
		"continuity_constraints_text": formatConstraints(req.Constraints),
		"style":                       req.Style,
		"shot_id":                     shotID,
	})
	if err != nil {
		return nil, err
	}

	response, err := g.invoker.Invoke(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var draft shotDraft
	if err := json.Unmarshal([]byte(llm.ExtractJSON(response)), &draft); err != nil {
		return nil, fmt.Errorf("响应不是有效的JSON格式: %w", err)
	}
	if draft.ChineseDescription == "" || draft.AIPrompt == "" {
		return nil, fmt.Errorf("分镜草稿缺少必要字段")
	}
	return &draft, nil
}

// generateWithRules 规则生成：从分段动作直接拼装描述和提示词
func (g *Generator) generateWithRules(req *Request) *shotDraft {
	scene := req.Scene
	characters := req.Segment.Characters()

	var desc strings.Builder
	fmt.Fprintf(&desc, "在%s，%s", scene.Location, scene.Time)
	if scene.Atmosphere != "" {
		fmt.Fprintf(&desc, "，%s的氛围", scene.Atmosphere)
	}
	desc.WriteString("。")
	for _, action := range req.Segment.Actions {
		if action.IsDialogue() {
			fmt.Fprintf(&desc, "%s（%s）说：“%s”。", action.Character, action.Emotion, action.Dialogue)
		} else {
			fmt.Fprintf(&desc, "%s（%s）%s。", action.Character, action.Emotion, action.Movement)
		}
	}

	prefix := stylePrefix(req.Style)

	var actionParts []string
	for _, action := range req.Segment.Actions {
		if action.IsDialogue() {
			actionParts = append(actionParts, fmt.Sprintf("%s speaking with %s expression", action.Character, action.Emotion))
		} else {
			actionParts = append(actionParts, fmt.Sprintf("%s performing: %s", action.Character, action.Movement))
		}
	}
	prompt := fmt.Sprintf(
		"%s, scene set in %s at %s, %s atmosphere, featuring %s, %s, medium shot, eye-level angle, soft natural lighting, smooth motion, high detail",
		prefix, scene.Location, scene.Time, scene.Atmosphere,
		strings.Join(characters, " and "), strings.Join(actionParts, "; "))

	initial := g.statesFromConstraints(req.Constraints, characters, scene)
	final := deriveFinalState(initial, req.Segment)

	return &shotDraft{
		ChineseDescription: desc.String(),
		AIPrompt:           prompt,
		Camera: model.Camera{
			ShotType: "medium shot",
			Angle:    "eye-level",
			Movement: "static",
		},
		InitialState: initial,
		FinalState:   final,
	}
}

// statesFromConstraints 按约束为每个角色构造初始状态，角色按名字排序保证稳定
func (g *Generator) statesFromConstraints(constraints *model.ContinuityConstraints, characters []string, scene *model.Scene) []model.CharacterState {
	var states []model.CharacterState
	for _, name := range characters {
		st := model.CharacterState{
			CharacterName: name,
			Pose:          "standing",
			Position:      "center of scene",
			Emotion:       g.cfg.DefaultEmotion,
			GazeDirection: "forward",
			Holding:       "nothing",
		}
		if constraints != nil {
			if c, ok := constraints.Characters[name]; ok {
				st.Pose = c.MustStartWithPose
				st.Position = c.MustStartWithPosition
				st.Emotion = c.MustStartWithEmotion
				st.GazeDirection = c.MustStartWithGaze
				st.Holding = c.MustStartWithHolding
				st.Appearance = c.CharacterDescription
			}
		}
		states = append(states, st)
	}
	return states
}

// deriveFinalState 结束状态从初始状态演变而来，情绪取角色最后一个动作的情绪
func deriveFinalState(initial []model.CharacterState, segment *model.Segment) []model.CharacterState {
	lastEmotion := make(map[string]string)
	for _, action := range segment.Actions {
		if action.Emotion != "" {
			lastEmotion[action.Character] = action.Emotion
		}
	}
	final := make([]model.CharacterState, len(initial))
	for i, st := range initial {
		final[i] = st
		if e, ok := lastEmotion[st.CharacterName]; ok {
			final[i].Emotion = e
		}
	}
	return final
}

// assemble 草稿落位为完整分镜，补齐时间区间、出场角色等派生字段
func (g *Generator) assemble(req *Request, shotID string, draft *shotDraft) *model.Shot {
	d := float64(req.DurationPerShot)
	if d <= 0 {
		d = g.cfg.TargetSegmentDuration
	}

	shot := &model.Shot{
		ShotID:             shotID,
		TimeRange:          [2]float64{float64(req.Index-1) * d, float64(req.Index) * d},
		SceneContext:       req.Scene,
		ChineseDescription: draft.ChineseDescription,
		AIPrompt:           draft.AIPrompt,
		Camera:             draft.Camera,
		InitialState:       draft.InitialState,
		FinalState:         draft.FinalState,
	}

	if shot.Camera.ShotType == "" {
		shot.Camera.ShotType = "medium shot"
	}
	if shot.Camera.Angle == "" {
		shot.Camera.Angle = "eye-level"
	}
	if shot.Camera.Movement == "" {
		shot.Camera.Movement = "static"
	}

	if len(shot.InitialState) == 0 {
		shot.InitialState = g.statesFromConstraints(req.Constraints, req.Segment.Characters(), req.Scene)
	}
	if len(shot.FinalState) == 0 {
		shot.FinalState = deriveFinalState(shot.InitialState, req.Segment)
	}

	// 出场角色以初始状态为准
	for _, st := range shot.InitialState {
		if st.CharacterName != "" {
			shot.CharactersInFrame = append(shot.CharactersInFrame, st.CharacterName)
		}
	}
	if len(shot.CharactersInFrame) == 0 {
		shot.CharactersInFrame = req.Segment.Characters()
	}

	var dialogues []string
	for _, action := range req.Segment.Actions {
		if action.Dialogue != "" {
			dialogues = append(dialogues, action.Dialogue)
		}
	}
	shot.Dialogue = strings.Join(dialogues, " ")

	shot.ContinuityAnchor = shot.FinalState
	shot.FinalContinuityState = make(map[string]model.CharacterState)
	for _, st := range shot.FinalState {
		if st.CharacterName != "" {
			shot.FinalContinuityState[st.CharacterName] = st
		}
	}

	return shot
}

// formatActions 动作序列的提示词文本
func formatActions(actions []model.Action) string {
	var lines []string
	for i, action := range actions {
		if action.IsDialogue() {
			lines = append(lines, fmt.Sprintf("%d. %s（%s）说：“%s”", i+1, action.Character, action.Emotion, action.Dialogue))
		} else {
			lines = append(lines, fmt.Sprintf("%d. %s（%s）%s", i+1, action.Character, action.Emotion, action.Movement))
		}
	}
	return strings.Join(lines, "\n")
}

// formatConstraints 连续性约束的提示词文本，角色按名字排序
func formatConstraints(constraints *model.ContinuityConstraints) string {
	if constraints == nil || len(constraints.Characters) == 0 {
		return "无（这是第一个分镜或新场景的开始）"
	}

	names := make([]string, 0, len(constraints.Characters))
	for name := range constraints.Characters {
		names = append(names, name)
	}
	sort.Strings(names)

	var lines []string
	for _, name := range names {
		c := constraints.Characters[name]
		line := fmt.Sprintf("- %s 必须以此状态开场: pose=%s, position=%s, emotion=%s, gaze=%s, holding=%s",
			name, c.MustStartWithPose, c.MustStartWithPosition, c.MustStartWithEmotion,
			c.MustStartWithGaze, c.MustStartWithHolding)
		if c.CharacterDescription != "" {
			line += fmt.Sprintf("（外观: %s）", c.CharacterDescription)
		}
		lines = append(lines, line)
	}
	lines = append(lines, fmt.Sprintf("- 镜头建议: %s, %s，保持与前一分镜一致",
		constraints.Camera.RecommendedShotType, constraints.Camera.RecommendedAngle))
	return strings.Join(lines, "\n")
}
