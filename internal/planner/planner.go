package planner

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"storyboard/internal/config"
	"storyboard/internal/model"
)

// 对话的最小时长与每字语速（秒/字）
const (
	minDialogueDuration = 2.0
	secondsPerRune      = 0.1
	compoundMultiplier  = 1.2
)

// Planner 时序规划器：估算每个动作的时长，并把动作序列
// 贪心打包成约5秒的分段。每个分段对应一个分镜。
type Planner struct {
	cfg *config.Config
	// 动作时长关键词按长度降序排列，长词优先匹配
	durationKeys []string
}

// New 创建时序规划器
func New(cfg *config.Config) *Planner {
	keys := make([]string, 0, len(cfg.ActionDurations))
	for k := range cfg.ActionDurations {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		li, lj := utf8.RuneCountInString(keys[i]), utf8.RuneCountInString(keys[j])
		if li != lj {
			return li > lj
		}
		return keys[i] < keys[j]
	})
	return &Planner{cfg: cfg, durationKeys: keys}
}

// Plan 将结构化剧本切分为分段序列。保证至少返回一个分段。
func (p *Planner) Plan(script *model.StructuredScript) ([]model.Segment, error) {
	var segments []model.Segment
	ceiling := p.cfg.TargetSegmentDuration + p.cfg.MaxDurationDeviation

	current := model.Segment{}
	flush := func() {
		if len(current.Actions) > 0 {
			segments = append(segments, current)
			current = model.Segment{}
		}
	}

	for sceneID, scene := range script.Scenes {
		for _, action := range scene.Actions {
			d := p.EstimateActionDuration(action)
			if len(current.Actions) > 0 && current.EstDuration+d > ceiling {
				flush()
			}
			current.Actions = append(current.Actions, action)
			current.EstDuration += d
			current.SceneID = sceneID
		}
	}
	flush()

	segments = p.splitOversized(segments)

	// 空剧本也要产出一个可用的分段
	if len(segments) == 0 {
		segments = append(segments, model.Segment{
			Actions: []model.Action{{
				Character: p.cfg.DefaultCharacter,
				Movement:  "站立",
				Emotion:   p.cfg.DefaultEmotion,
			}},
			EstDuration: p.cfg.DefaultActionDuration,
		})
	}

	for i := range segments {
		segments[i].ID = i + 1
	}

	p.warnShortSegments(segments)

	logrus.Debugf("时序规划完成，共 %d 个分段", len(segments))
	return segments, nil
}

// splitOversized 二次切分：超出容差上限的分段按纯目标值上限重新打包，
// 落在目标到容差上限之间的分段不动
func (p *Planner) splitOversized(segments []model.Segment) []model.Segment {
	var result []model.Segment
	for _, seg := range segments {
		if seg.EstDuration <= p.cfg.TargetSegmentDuration+p.cfg.MaxDurationDeviation || len(seg.Actions) <= 1 {
			result = append(result, seg)
			continue
		}
		current := model.Segment{SceneID: seg.SceneID}
		for _, action := range seg.Actions {
			d := p.EstimateActionDuration(action)
			if len(current.Actions) > 0 && current.EstDuration+d > p.cfg.TargetSegmentDuration {
				result = append(result, current)
				current = model.Segment{SceneID: seg.SceneID}
			}
			current.Actions = append(current.Actions, action)
			current.EstDuration += d
		}
		if len(current.Actions) > 0 {
			result = append(result, current)
		}
	}
	return result
}

// warnShortSegments 最后一个分段允许偏短，其余短于目标六成的分段
// 记录告警并返回其ID
func (p *Planner) warnShortSegments(segments []model.Segment) []int {
	floor := p.cfg.TargetSegmentDuration * 0.6
	var flagged []int
	for i, seg := range segments {
		if i == len(segments)-1 {
			continue
		}
		if seg.EstDuration < floor {
			flagged = append(flagged, seg.ID)
			logrus.Warnf("分段 %d 时长 %.1f 秒，低于目标范围", seg.ID, seg.EstDuration)
		}
	}
	return flagged
}

// EstimateActionDuration 估算单个动作的时长（秒）。
// 对话按字数估算语速，动作按关键词表匹配，两者都有时取较大值，
// 最后乘以情绪系数。
func (p *Planner) EstimateActionDuration(action model.Action) float64 {
	var duration float64

	if action.Dialogue != "" {
		d := float64(utf8.RuneCountInString(action.Dialogue)) * secondsPerRune
		if d < minDialogueDuration {
			d = minDialogueDuration
		}
		duration = d
	}

	if action.Movement != "" {
		d := p.movementDuration(action.Movement)
		if d > duration {
			duration = d
		}
	}

	if duration == 0 {
		duration = p.cfg.DefaultActionDuration
	}

	if m, ok := p.cfg.EmotionMultipliers[action.Emotion]; ok {
		duration *= m
	}

	return duration
}

// movementDuration 关键词表匹配，长词优先且首个命中生效。
// 描述里出现多个动作词时视为复合动作，整体放大。
func (p *Planner) movementDuration(movement string) float64 {
	base := 0.0
	matched := 0
	for _, key := range p.durationKeys {
		if strings.Contains(movement, key) {
			if matched == 0 {
				base = p.cfg.ActionDurations[key]
			}
			matched++
		}
	}
	if matched == 0 {
		return p.cfg.DefaultActionDuration
	}
	if matched > 1 {
		base *= compoundMultiplier
	}
	return base
}
