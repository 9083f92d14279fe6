package continuity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyboard/internal/config"
	"storyboard/internal/model"
)

func TestEmotionTransition(t *testing.T) {
	assert.True(t, IsValidEmotionTransition("平静", "平静"))
	assert.True(t, IsValidEmotionTransition("平静", "惊讶"))
	assert.True(t, IsValidEmotionTransition("惊讶", "愤怒"))
	assert.False(t, IsValidEmotionTransition("悲伤", "快乐"))
	assert.False(t, IsValidEmotionTransition("平静", "愤怒"))

	// 表中没有的起始情绪不做限制
	assert.True(t, IsValidEmotionTransition("好奇", "愤怒"))
	assert.True(t, IsValidEmotionTransition("", "平静"))
}

func TestGenerateConstraintsDefaults(t *testing.T) {
	g := New(config.Default())
	segment := &model.Segment{ID: 1, Actions: []model.Action{
		{Character: "李明", Dialogue: "你好。", Emotion: "平静"},
	}}

	constraints, err := g.GenerateConstraints(segment, &model.Scene{Location: "咖啡馆"})
	require.NoError(t, err)
	require.Contains(t, constraints.Characters, "李明")

	c := constraints.Characters["李明"]
	assert.Equal(t, "standing", c.MustStartWithPose)
	assert.Equal(t, "center of scene", c.MustStartWithPosition)
	assert.Equal(t, "平静", c.MustStartWithEmotion)

	assert.Equal(t, "medium shot", constraints.Camera.RecommendedShotType)
	assert.Equal(t, "eye-level", constraints.Camera.RecommendedAngle)
	assert.True(t, constraints.Camera.MustMaintainConsistency)
}

func TestConstraintsFollowSegmentActions(t *testing.T) {
	g := New(config.Default())
	segment := &model.Segment{ID: 1, Actions: []model.Action{
		{Character: "李明", Movement: "坐在靠窗的位置，拿起手机", Emotion: "平静"},
	}}

	constraints, err := g.GenerateConstraints(segment, nil)
	require.NoError(t, err)

	// 约束反映分段内动作演变后的状态
	c := constraints.Characters["李明"]
	assert.Equal(t, "sitting", c.MustStartWithPose)
	assert.Equal(t, "by the window", c.MustStartWithPosition)
	assert.Equal(t, "smartphone", c.MustStartWithHolding)

	states := g.States()
	require.Contains(t, states, "李明")
	assert.Equal(t, "sitting", states["李明"].Pose)
}

func TestConstraintsCarryIntoNextSegment(t *testing.T) {
	g := New(config.Default())
	first := &model.Segment{ID: 1, Actions: []model.Action{
		{Character: "李明", Movement: "坐在靠窗的位置", Emotion: "平静"},
	}}
	second := &model.Segment{ID: 2, Actions: []model.Action{
		{Character: "李明", Dialogue: "你来了。", Emotion: "平静"},
	}}

	_, err := g.GenerateConstraints(first, nil)
	require.NoError(t, err)

	constraints, err := g.GenerateConstraints(second, nil)
	require.NoError(t, err)

	// 对话不改变物理状态，上一分段的演变结果延续到下一分段
	c := constraints.Characters["李明"]
	assert.Equal(t, "sitting", c.MustStartWithPose)
	assert.Equal(t, "by the window", c.MustStartWithPosition)
}

func TestApplyActionsIdempotent(t *testing.T) {
	g := New(config.Default())
	segment := &model.Segment{ID: 1, Actions: []model.Action{
		{Character: "李明", Movement: "坐在靠窗的位置", Emotion: "微笑"},
	}}

	// 重试会重复生成同一分段的约束，状态不应漂移
	first, err := g.GenerateConstraints(segment, nil)
	require.NoError(t, err)
	again, err := g.GenerateConstraints(segment, nil)
	require.NoError(t, err)
	assert.Equal(t, first.Characters["李明"], again.Characters["李明"])
}

func TestExtractAnchorUpdatesState(t *testing.T) {
	g := New(config.Default())
	shot := &model.Shot{
		ShotID:            "shot_001",
		CharactersInFrame: []string{"李明", "王芳"},
		FinalState: []model.CharacterState{
			{CharacterName: "李明", Pose: "sitting", Position: "by the window", Emotion: "微笑"},
		},
	}

	anchor, err := g.ExtractAnchor(shot)
	require.NoError(t, err)
	require.Len(t, anchor, 2)

	// 有final_state的角色直接采用
	assert.Equal(t, "sitting", anchor[0].Pose)
	// 完全未知的角色给unknown占位
	assert.Equal(t, "王芳", anchor[1].CharacterName)
	assert.Equal(t, "unknown", anchor[1].Pose)

	// 内部状态已更新
	assert.Equal(t, "微笑", g.States()["李明"].Emotion)
}

func TestSeed(t *testing.T) {
	g := New(config.Default())
	g.Seed(map[string]model.CharacterState{
		"李明": {Pose: "sitting", Position: "at the table", Emotion: "快乐"},
	})

	segment := &model.Segment{Actions: []model.Action{
		{Character: "李明", Dialogue: "继续吧。", Emotion: "快乐"},
	}}
	constraints, err := g.GenerateConstraints(segment, nil)
	require.NoError(t, err)
	assert.Equal(t, "sitting", constraints.Characters["李明"].MustStartWithPose)
	assert.Equal(t, "at the table", constraints.Characters["李明"].MustStartWithPosition)
}

func TestVerifyContinuity(t *testing.T) {
	g := New(config.Default())
	prev := &model.Shot{ShotID: "shot_001", FinalState: []model.CharacterState{
		{CharacterName: "李明", Pose: "sitting", Position: "by the window", Emotion: "平静"},
	}}
	next := &model.Shot{ShotID: "shot_002", InitialState: []model.CharacterState{
		{CharacterName: "李明", Pose: "standing", Position: "by the door", Emotion: "平静"},
	}}

	check := g.VerifyContinuity(prev, next)
	assert.False(t, check.IsContinuous)
	assert.Len(t, check.Issues, 2)

	aligned := &model.Shot{ShotID: "shot_002", InitialState: prev.FinalState}
	assert.True(t, g.VerifyContinuity(prev, aligned).IsContinuous)
}

func TestRepairSequence(t *testing.T) {
	g := New(config.Default())
	shots := []*model.Shot{
		{
			ShotID:    "shot_001",
			TimeRange: [2]float64{0, 5},
			FinalState: []model.CharacterState{
				{CharacterName: "李明", Pose: "sitting", Position: "by the window", Emotion: "平静"},
			},
		},
		{
			ShotID:    "shot_002",
			TimeRange: [2]float64{6, 11},
			InitialState: []model.CharacterState{
				{CharacterName: "李明", Pose: "standing", Position: "by the door", Emotion: "愤怒"},
			},
		},
	}

	fixes := g.RepairSequence(shots)
	assert.Greater(t, fixes, 0)

	// 初始状态对齐到上一分镜的结束状态
	assert.Equal(t, "sitting", shots[1].InitialState[0].Pose)
	assert.Equal(t, "by the window", shots[1].InitialState[0].Position)
	// 时间区间重建为连续
	assert.InDelta(t, 5.0, shots[1].TimeRange[0], 0.001)
	assert.InDelta(t, 10.0, shots[1].TimeRange[1], 0.001)
}
