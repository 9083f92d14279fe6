package continuity

import (
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"storyboard/internal/config"
	"storyboard/internal/model"
)

// 情绪跃迁表：键为当前情绪，值为可直接过渡到的情绪。
// 相同情绪恒为合法；表中没有的起始情绪不做限制。
var emotionTransitions = map[string][]string{
	"平静": {"惊讶", "注意", "思考", "微笑", "疑问", "紧张"},
	"惊讶": {"愤怒", "恐惧", "困惑", "平静", "疑问"},
	"愤怒": {"平静", "悲伤", "激动"},
	"悲伤": {"平静", "哭泣", "沮丧"},
	"快乐": {"平静", "兴奋", "大笑"},
	"恐惧": {"平静", "惊慌", "愤怒"},
}

// IsValidEmotionTransition 判断情绪从from直接变为to是否自然
func IsValidEmotionTransition(from, to string) bool {
	if from == to || from == "" || to == "" {
		return true
	}
	allowed, ok := emotionTransitions[from]
	if !ok {
		return true
	}
	for _, e := range allowed {
		if e == to {
			return true
		}
	}
	return false
}

// stateRule 动作文本到角色状态字段的更新规则，按声明顺序匹配
type stateRule struct {
	keyword string
	apply   func(*model.CharacterState)
}

var stateRules = []stateRule{
	// 姿势
	{"坐", func(s *model.CharacterState) { s.Pose = "sitting" }},
	{"站起", func(s *model.CharacterState) { s.Pose = "standing" }},
	{"站", func(s *model.CharacterState) { s.Pose = "standing" }},
	{"躺", func(s *model.CharacterState) { s.Pose = "lying down" }},
	{"跑", func(s *model.CharacterState) { s.Pose = "running" }},
	{"走", func(s *model.CharacterState) { s.Pose = "walking" }},
	// 位置
	{"靠窗", func(s *model.CharacterState) { s.Position = "by the window" }},
	{"门口", func(s *model.CharacterState) { s.Position = "by the door" }},
	{"吧台", func(s *model.CharacterState) { s.Position = "at the bar" }},
	{"桌", func(s *model.CharacterState) { s.Position = "at the table" }},
	// 视线
	{"看向窗外", func(s *model.CharacterState) { s.GazeDirection = "out the window" }},
	{"看着对方", func(s *model.CharacterState) { s.GazeDirection = "at the other person" }},
	{"看向", func(s *model.CharacterState) { s.GazeDirection = "at the other person" }},
	{"低头", func(s *model.CharacterState) { s.GazeDirection = "down" }},
	{"抬头", func(s *model.CharacterState) { s.GazeDirection = "up" }},
	// 手持物品
	{"手机", func(s *model.CharacterState) { s.Holding = "smartphone" }},
	{"咖啡", func(s *model.CharacterState) { s.Holding = "coffee cup" }},
	{"书", func(s *model.CharacterState) { s.Holding = "book" }},
	{"杯", func(s *model.CharacterState) { s.Holding = "cup" }},
}

// Guardian 连续性守护：跟踪每个角色跨分镜的物理和情绪状态，
// 为分镜生成提供初始状态约束，并从生成结果中提取连续性锚点。
// 每个请求使用独立实例，状态不跨请求共享。
type Guardian struct {
	cfg    *config.Config
	states map[string]*model.CharacterState
}

// New 创建连续性守护器
func New(cfg *config.Config) *Guardian {
	return &Guardian{cfg: cfg, states: make(map[string]*model.CharacterState)}
}

// Seed 用上一批次的最终状态初始化角色状态，支持跨批次续接
func (g *Guardian) Seed(states map[string]model.CharacterState) {
	for name, st := range states {
		copied := st
		copied.CharacterName = name
		g.states[name] = &copied
	}
}

// ensureState 获取角色状态，不存在时创建默认状态
func (g *Guardian) ensureState(name string, scene *model.Scene) *model.CharacterState {
	if st, ok := g.states[name]; ok {
		return st
	}
	st := &model.CharacterState{
		CharacterName: name,
		Pose:          "standing",
		Position:      "center of scene",
		Emotion:       g.cfg.DefaultEmotion,
		GazeDirection: "forward",
		Holding:       "nothing",
	}
	if scene != nil {
		if app, ok := scene.CharactersInfo[name]; ok {
			st.Appearance = formatAppearance(app)
		}
	}
	g.states[name] = st
	return st
}

func formatAppearance(app model.Appearance) string {
	var parts []string
	for _, p := range []string{app.Age, app.Clothing, app.Features} {
		if p != "" && p != "未知" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "，")
}

// GenerateConstraints 为一个分段生成连续性约束。
// 先把分段内的动作应用到角色状态上，再基于演变后的状态产出约束，
// 使约束携带角色在本分段内的姿势、位置和情绪变化。
func (g *Guardian) GenerateConstraints(segment *model.Segment, scene *model.Scene) (*model.ContinuityConstraints, error) {
	g.applyActions(segment, scene)

	constraints := &model.ContinuityConstraints{
		Characters: make(map[string]model.CharacterConstraint),
		Scene:      scene,
		Camera: model.CameraConstraint{
			RecommendedShotType:     "medium shot",
			RecommendedAngle:        "eye-level",
			MustMaintainConsistency: true,
		},
	}

	for _, name := range segment.Characters() {
		st := g.ensureState(name, scene)
		constraints.Characters[name] = model.CharacterConstraint{
			MustStartWithPose:     st.Pose,
			MustStartWithPosition: st.Position,
			MustStartWithEmotion:  st.Emotion,
			MustStartWithGaze:     st.GazeDirection,
			MustStartWithHolding:  st.Holding,
			CharacterDescription:  st.Appearance,
		}
	}

	return constraints, nil
}

// applyActions 按分段内的动作逐条更新角色状态。规则是幂等的，
// 同一分段因重试被重复应用不会产生额外变化。
func (g *Guardian) applyActions(segment *model.Segment, scene *model.Scene) {
	for _, action := range segment.Actions {
		if action.Character == "" {
			continue
		}
		st := g.ensureState(action.Character, scene)

		if action.Movement != "" {
			for _, rule := range stateRules {
				if strings.Contains(action.Movement, rule.keyword) {
					rule.apply(st)
				}
			}
		}

		if action.Emotion != "" && action.Emotion != st.Emotion {
			if !IsValidEmotionTransition(st.Emotion, action.Emotion) {
				logrus.Debugf("角色 %s 情绪跳变: %s -> %s", action.Character, st.Emotion, action.Emotion)
			}
			st.Emotion = action.Emotion
		}
	}
}

// ExtractAnchor 从生成的分镜中提取连续性锚点并更新内部状态。
// 优先采用分镜的final_state；缺失时退回当前跟踪状态；完全未知时
// 给出unknown占位，保证锚点覆盖画面中的每个角色。
func (g *Guardian) ExtractAnchor(shot *model.Shot) ([]model.CharacterState, error) {
	finalByName := make(map[string]model.CharacterState)
	for _, st := range shot.FinalState {
		if st.CharacterName != "" {
			finalByName[st.CharacterName] = st
		}
	}

	var anchor []model.CharacterState
	for _, name := range shot.CharactersInFrame {
		if st, ok := finalByName[name]; ok {
			copied := st
			g.states[name] = &copied
			anchor = append(anchor, st)
			continue
		}
		if st, ok := g.states[name]; ok {
			anchor = append(anchor, *st)
			continue
		}
		logrus.Warnf("分镜 %s 中角色 %s 缺少状态信息", shot.ShotID, name)
		anchor = append(anchor, model.CharacterState{
			CharacterName: name,
			Pose:          "unknown",
			Position:      "unknown",
			Emotion:       g.cfg.DefaultEmotion,
			GazeDirection: "unknown",
			Holding:       "unknown",
		})
	}

	return anchor, nil
}

// VerifyContinuity 验证相邻两个分镜之间的状态衔接
func (g *Guardian) VerifyContinuity(prev, next *model.Shot) *model.ContinuityCheck {
	check := &model.ContinuityCheck{IsContinuous: true, Issues: []string{}, Suggestions: []string{}}
	if prev == nil || next == nil {
		return check
	}

	prevFinal := make(map[string]model.CharacterState)
	for _, st := range prev.FinalState {
		prevFinal[st.CharacterName] = st
	}

	for _, st := range next.InitialState {
		before, ok := prevFinal[st.CharacterName]
		if !ok {
			continue
		}
		if before.Position != "" && st.Position != "" && before.Position != st.Position {
			check.IsContinuous = false
			check.Issues = append(check.Issues,
				"角色 "+st.CharacterName+" 位置不连续: "+before.Position+" -> "+st.Position)
			check.Suggestions = append(check.Suggestions,
				"将分镜 "+next.ShotID+" 中 "+st.CharacterName+" 的初始位置改为 "+before.Position)
		}
		if before.Pose != "" && st.Pose != "" && before.Pose != st.Pose {
			check.IsContinuous = false
			check.Issues = append(check.Issues,
				"角色 "+st.CharacterName+" 姿势不连续: "+before.Pose+" -> "+st.Pose)
		}
		if !IsValidEmotionTransition(before.Emotion, st.Emotion) {
			check.IsContinuous = false
			check.Issues = append(check.Issues,
				"角色 "+st.CharacterName+" 情绪跳变: "+before.Emotion+" -> "+st.Emotion)
		}
	}

	return check
}

// RepairSequence 就地修复分镜序列的衔接问题：把每个分镜的初始状态
// 对齐到上一分镜的结束状态，并重建连续的时间区间。返回修复次数。
func (g *Guardian) RepairSequence(shots []*model.Shot) int {
	fixes := 0

	for i := 1; i < len(shots); i++ {
		prev, next := shots[i-1], shots[i]

		prevFinal := make(map[string]model.CharacterState)
		for _, st := range prev.FinalState {
			prevFinal[st.CharacterName] = st
		}

		for j := range next.InitialState {
			st := &next.InitialState[j]
			before, ok := prevFinal[st.CharacterName]
			if !ok {
				continue
			}
			if st.Position != before.Position || st.Pose != before.Pose ||
				!IsValidEmotionTransition(before.Emotion, st.Emotion) {
				logrus.Debugf("修复分镜 %s 中角色 %s 的初始状态", next.ShotID, st.CharacterName)
				appearance := st.Appearance
				*st = before
				if appearance != "" {
					st.Appearance = appearance
				}
				fixes++
			}
		}

		if next.TimeRange[0] != prev.TimeRange[1] {
			duration := next.Duration()
			next.TimeRange[0] = prev.TimeRange[1]
			next.TimeRange[1] = next.TimeRange[0] + duration
			fixes++
		}
	}

	return fixes
}

// States 返回当前所有角色状态的快照，键为角色名
func (g *Guardian) States() map[string]model.CharacterState {
	snapshot := make(map[string]model.CharacterState, len(g.states))
	for name, st := range g.states {
		snapshot[name] = *st
	}
	return snapshot
}

// CharacterNames 按字典序返回已跟踪的角色名
func (g *Guardian) CharacterNames() []string {
	names := make([]string, 0, len(g.states))
	for name := range g.states {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
