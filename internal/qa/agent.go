package qa

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"storyboard/internal/config"
	"storyboard/internal/continuity"
	"storyboard/internal/llm"
	"storyboard/internal/model"
	"storyboard/internal/prompts"
)

// 相邻分镜时间衔接允许的误差（秒）
const timeGapTolerance = 0.1

// 提示词最小长度（字符数）
const minPromptLength = 20

// 总时长上限（秒），超出说明剧本过长，应拆分请求
const maxSequenceDuration = 300.0

// Agent 质量审查：先跑规则校验，配置了LLM时再做深度审查。
// 深度审查失败只降级不报错，规则校验结果始终生效。
type Agent struct {
	cfg     *config.Config
	invoker llm.Invoker
	prompts *prompts.Manager
}

// New 创建审查器，invoker为nil时只做规则校验
func New(cfg *config.Config, invoker llm.Invoker, pm *prompts.Manager) *Agent {
	return &Agent{cfg: cfg, invoker: invoker, prompts: pm}
}

// ReviewShot 审查单个分镜
func (a *Agent) ReviewShot(ctx context.Context, shot *model.Shot, segment *model.Segment) (*model.ShotReview, error) {
	review := &model.ShotReview{
		ShotID:      shot.ShotID,
		Issues:      []string{},
		Suggestions: []string{},
	}

	a.checkRequiredFields(shot, review)
	a.checkDuration(shot, review)
	a.checkCharacterConsistency(shot, review)
	a.checkPromptQuality(shot, review)

	if a.invoker != nil {
		a.deepReview(ctx, shot, segment, review)
	}

	review.IsValid = len(review.Issues) == 0
	return review, nil
}

func (a *Agent) checkRequiredFields(shot *model.Shot, review *model.ShotReview) {
	if shot.ShotID == "" {
		review.Issues = append(review.Issues, "缺少分镜ID")
	}
	if shot.ChineseDescription == "" {
		review.Issues = append(review.Issues, "缺少中文画面描述")
	}
	if shot.AIPrompt == "" {
		review.Issues = append(review.Issues, "缺少AI提示词")
	}
	if len(shot.InitialState) == 0 {
		review.Issues = append(review.Issues, "缺少初始状态")
	}
	if len(shot.FinalState) == 0 {
		review.Issues = append(review.Issues, "缺少结束状态")
	}
}

func (a *Agent) checkDuration(shot *model.Shot, review *model.ShotReview) {
	if shot.Duration() > a.cfg.MaxShotDuration {
		review.Issues = append(review.Issues,
			fmt.Sprintf("分镜时长 %.1f 秒，超过上限 %.1f 秒", shot.Duration(), a.cfg.MaxShotDuration))
	}
}

// checkCharacterConsistency 状态列表与画面角色集合必须一致，状态字段必须完整
func (a *Agent) checkCharacterConsistency(shot *model.Shot, review *model.ShotReview) {
	inFrame := nameSet(shot.CharactersInFrame)

	for _, group := range []struct {
		label  string
		states []model.CharacterState
	}{
		{"初始状态", shot.InitialState},
		{"结束状态", shot.FinalState},
	} {
		label, states := group.label, group.states
		stateNames := make(map[string]bool)
		for _, st := range states {
			stateNames[st.CharacterName] = true
			if st.Pose == "" || st.Position == "" || st.Emotion == "" {
				review.Issues = append(review.Issues,
					fmt.Sprintf("%s中角色 %s 缺少姿势/位置/情绪信息", label, st.CharacterName))
			}
		}
		if !sameSet(stateNames, inFrame) {
			review.Issues = append(review.Issues,
				fmt.Sprintf("%s角色与画面角色不一致", label))
		}
	}
}

func (a *Agent) checkPromptQuality(shot *model.Shot, review *model.ShotReview) {
	if utf8.RuneCountInString(shot.AIPrompt) < minPromptLength {
		review.Issues = append(review.Issues, "AI提示词过短，无法描述完整画面")
		return
	}
	lower := strings.ToLower(shot.AIPrompt)
	if !strings.Contains(lower, "shot") {
		review.Suggestions = append(review.Suggestions, "建议在提示词中包含镜头类型（如medium shot）")
	}
	if !strings.Contains(lower, "light") {
		review.Suggestions = append(review.Suggestions, "建议在提示词中包含光线描述（如soft lighting）")
	}
	if !strings.Contains(lower, "style") && !strings.Contains(lower, "cinematic") &&
		!strings.Contains(lower, "anime") && !strings.Contains(lower, "photorealistic") {
		review.Suggestions = append(review.Suggestions, "建议在提示词中包含画面风格描述")
	}
}

// deepReview LLM深度审查，任何失败只记录日志并跳过
func (a *Agent) deepReview(ctx context.Context, shot *model.Shot, segment *model.Segment, review *model.ShotReview) {
	shotJSON, err := json.Marshal(shot)
	if err != nil {
		return
	}
	segmentJSON, err := json.Marshal(segment)
	if err != nil {
		return
	}
	prompt, err := a.prompts.Render(ctx, "qa_review", map[string]any{
		"shot_info":    string(shotJSON),
		"segment_info": string(segmentJSON),
	})
	if err != nil {
		logrus.WithError(err).Debug("深度审查提示词渲染失败，跳过")
		return
	}
	response, err := a.invoker.Invoke(ctx, prompt)
	if err != nil {
		logrus.WithError(err).Debugf("分镜 %s 深度审查调用失败，跳过", shot.ShotID)
		return
	}

	var parsed struct {
		Issues      []string `json:"issues"`
		Suggestions []string `json:"suggestions"`
	}
	if err := json.Unmarshal([]byte(llm.ExtractJSON(response)), &parsed); err != nil {
		logrus.WithError(err).Debugf("分镜 %s 深度审查结果解析失败，跳过", shot.ShotID)
		return
	}
	review.Issues = append(review.Issues, parsed.Issues...)
	review.Suggestions = append(review.Suggestions, parsed.Suggestions...)
}

// ReviewSequence 审查整个分镜序列的连续性
func (a *Agent) ReviewSequence(ctx context.Context, shots []*model.Shot) (*model.SequenceReview, error) {
	review := &model.SequenceReview{
		TotalShots:            len(shots),
		ContinuityIssues:      []string{},
		ContinuitySuggestions: []string{},
	}

	for i := 1; i < len(shots); i++ {
		a.checkAdjacent(shots[i-1], shots[i], review)
	}
	a.checkTotalDuration(shots, review)
	a.checkDisappearance(shots, review)

	review.HasContinuityIssues = len(review.ContinuityIssues) > 0
	if review.HasContinuityIssues {
		review.OverallAssessment = fmt.Sprintf("发现 %d 处连续性问题，建议修复后再使用", len(review.ContinuityIssues))
	} else {
		review.OverallAssessment = "分镜序列连续性良好"
	}
	return review, nil
}

// checkAdjacent 相邻分镜的时间衔接与角色状态衔接
func (a *Agent) checkAdjacent(prev, next *model.Shot, review *model.SequenceReview) {
	if math.Abs(next.TimeRange[0]-prev.TimeRange[1]) > timeGapTolerance {
		review.ContinuityIssues = append(review.ContinuityIssues,
			fmt.Sprintf("分镜 %s 与 %s 时间不衔接: %.1f -> %.1f",
				prev.ShotID, next.ShotID, prev.TimeRange[1], next.TimeRange[0]))
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
			review.ContinuityIssues = append(review.ContinuityIssues,
				fmt.Sprintf("分镜 %s 中角色 %s 位置与上一分镜不一致: %s -> %s",
					next.ShotID, st.CharacterName, before.Position, st.Position))
			review.ContinuitySuggestions = append(review.ContinuitySuggestions,
				fmt.Sprintf("将分镜 %s 中 %s 的初始位置改为 %s", next.ShotID, st.CharacterName, before.Position))
		}
		if !continuity.IsValidEmotionTransition(before.Emotion, st.Emotion) {
			review.ContinuityIssues = append(review.ContinuityIssues,
				fmt.Sprintf("分镜 %s 中角色 %s 情绪跳变: %s -> %s",
					next.ShotID, st.CharacterName, before.Emotion, st.Emotion))
		}
	}

	if prev.SceneContext != nil && next.SceneContext != nil {
		if prev.SceneContext.Location != next.SceneContext.Location {
			review.ContinuityIssues = append(review.ContinuityIssues,
				fmt.Sprintf("分镜 %s 与 %s 场景地点切换: %s -> %s",
					prev.ShotID, next.ShotID, prev.SceneContext.Location, next.SceneContext.Location))
			review.ContinuitySuggestions = append(review.ContinuitySuggestions,
				fmt.Sprintf("在分镜 %s 前加入转场镜头以衔接地点变化", next.ShotID))
		}
		if prev.SceneContext.Time != next.SceneContext.Time {
			review.ContinuityIssues = append(review.ContinuityIssues,
				fmt.Sprintf("分镜 %s 与 %s 场景时间跳变: %s -> %s",
					prev.ShotID, next.ShotID, prev.SceneContext.Time, next.SceneContext.Time))
			review.ContinuitySuggestions = append(review.ContinuitySuggestions,
				fmt.Sprintf("在分镜 %s 前加入时间过渡提示", next.ShotID))
		}
	}
}

func (a *Agent) checkTotalDuration(shots []*model.Shot, review *model.SequenceReview) {
	var total float64
	for _, shot := range shots {
		total += shot.Duration()
	}
	if total > maxSequenceDuration {
		review.ContinuityIssues = append(review.ContinuityIssues,
			fmt.Sprintf("总时长 %.0f 秒超过 %.0f 秒，建议拆分为多次请求", total, maxSequenceDuration))
	}
}

// checkDisappearance 出场超过两个分镜的角色中途消失又再次出现，视为连续性问题
func (a *Agent) checkDisappearance(shots []*model.Shot, review *model.SequenceReview) {
	appearances := make(map[string][]int)
	var order []string
	for i, shot := range shots {
		for _, name := range shot.CharactersInFrame {
			if _, ok := appearances[name]; !ok {
				order = append(order, name)
			}
			appearances[name] = append(appearances[name], i)
		}
	}

	for _, name := range order {
		indices := appearances[name]
		if len(indices) <= 2 {
			continue
		}
		first, last := indices[0], indices[len(indices)-1]
		present := make(map[int]bool, len(indices))
		for _, i := range indices {
			present[i] = true
		}
		for i := first + 1; i < last; i++ {
			if !present[i] {
				review.ContinuityIssues = append(review.ContinuityIssues,
					fmt.Sprintf("角色 %s 在分镜 %s 中消失后又重新出现", name, shots[i].ShotID))
				break
			}
		}
	}
}

func nameSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

func sameSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}
