package planner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyboard/internal/config"
	"storyboard/internal/model"
)

func TestEstimateDialogueDuration(t *testing.T) {
	p := New(config.Default())

	// 短对话不低于最小时长
	short := p.EstimateActionDuration(model.Action{Character: "李明", Dialogue: "你好", Emotion: "平静"})
	assert.InDelta(t, 2.0, short, 0.001)

	// 长对话按字数估算语速
	long := p.EstimateActionDuration(model.Action{
		Character: "李明",
		Dialogue:  strings.Repeat("说", 40),
		Emotion:   "平静",
	})
	assert.InDelta(t, 4.0, long, 0.001)
}

func TestEstimateMovementDuration(t *testing.T) {
	p := New(config.Default())

	d := p.EstimateActionDuration(model.Action{Character: "李明", Movement: "坐在椅子上", Emotion: "平静"})
	assert.InDelta(t, 2.0, d, 0.001)

	// 未知动作使用默认时长
	unknown := p.EstimateActionDuration(model.Action{Character: "李明", Movement: "整理文件", Emotion: "平静"})
	assert.InDelta(t, 2.0, unknown, 0.001)
}

func TestEmotionMultiplier(t *testing.T) {
	p := New(config.Default())

	calm := p.EstimateActionDuration(model.Action{Character: "李明", Movement: "坐在椅子上", Emotion: "平静"})
	sad := p.EstimateActionDuration(model.Action{Character: "李明", Movement: "坐在椅子上", Emotion: "悲伤"})
	assert.InDelta(t, calm*1.4, sad, 0.001)
}

func TestCompoundMovement(t *testing.T) {
	p := New(config.Default())

	single := p.movementDuration("低头")
	compound := p.movementDuration("低头看书")
	assert.Greater(t, compound, single)
}

func TestLongestKeywordWins(t *testing.T) {
	p := New(config.Default())

	// "慢走"应优先于"走"命中
	d := p.movementDuration("慢走")
	assert.InDelta(t, 3.0*1.2, d, 0.001)
}

func TestPlanPacksIntoSegments(t *testing.T) {
	p := New(config.Default())
	script := &model.StructuredScript{Scenes: []model.Scene{{
		Location: "咖啡馆",
		Time:     "下午",
		Actions: []model.Action{
			{Character: "李明", Movement: "走进咖啡馆", Emotion: "平静"},
			{Character: "李明", Movement: "坐在靠窗的位置", Emotion: "平静"},
			{Character: "李明", Dialogue: "一杯拿铁，谢谢。", Emotion: "平静"},
			{Character: "王芳", Movement: "走向吧台", Emotion: "平静"},
			{Character: "王芳", Dialogue: "好的，请稍等。", Emotion: "平静"},
		},
	}}}

	segments, err := p.Plan(script)
	require.NoError(t, err)
	require.NotEmpty(t, segments)

	total := 0
	ceiling := config.Default().TargetSegmentDuration + config.Default().MaxDurationDeviation
	for i, seg := range segments {
		assert.Equal(t, i+1, seg.ID)
		assert.NotEmpty(t, seg.Actions)
		if len(seg.Actions) > 1 {
			assert.LessOrEqual(t, seg.EstDuration, ceiling)
		}
		total += len(seg.Actions)
	}
	assert.Equal(t, 5, total)
}

func TestPlanKeepsSegmentWithinTolerance(t *testing.T) {
	p := New(config.Default())
	// 两段2.7秒的对话合计5.4秒，落在容差上限内，不应被二次切分
	script := &model.StructuredScript{Scenes: []model.Scene{{
		Location: "咖啡馆",
		Actions: []model.Action{
			{Character: "李明", Dialogue: strings.Repeat("说", 27), Emotion: "平静"},
			{Character: "王芳", Dialogue: strings.Repeat("说", 27), Emotion: "平静"},
		},
	}}}

	segments, err := p.Plan(script)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.InDelta(t, 5.4, segments[0].EstDuration, 0.001)
}

func TestWarnShortSegments(t *testing.T) {
	p := New(config.Default())
	segments := []model.Segment{
		{ID: 1, EstDuration: 4.5},
		{ID: 2, EstDuration: 2.0},
		{ID: 3, EstDuration: 1.0},
	}

	// 下限为目标时长的六成，4.5秒不算过短；末段偏短被容忍
	assert.Equal(t, []int{2}, p.warnShortSegments(segments))
}

func TestPlanEmptyScriptYieldsDefaultSegment(t *testing.T) {
	p := New(config.Default())

	segments, err := p.Plan(&model.StructuredScript{})
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, 1, segments[0].ID)
	require.Len(t, segments[0].Actions, 1)
	assert.Equal(t, config.Default().DefaultCharacter, segments[0].Actions[0].Character)
}

func TestPlanSegmentSceneID(t *testing.T) {
	p := New(config.Default())
	script := &model.StructuredScript{Scenes: []model.Scene{
		{Location: "办公室", Actions: []model.Action{{Character: "王总", Movement: "站在窗前", Emotion: "平静"}}},
		{Location: "餐厅", Actions: []model.Action{{Character: "王总", Movement: "坐在餐桌旁", Emotion: "平静"}}},
	}}

	segments, err := p.Plan(script)
	require.NoError(t, err)
	require.NotEmpty(t, segments)
	assert.Equal(t, 1, segments[len(segments)-1].SceneID)
}
