package parser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyboard/internal/config"
	"storyboard/internal/prompts"
)

func newTestParser(t *testing.T) *Parser {
	t.Helper()
	return New(config.Default(), nil, prompts.NewManager(""))
}

func TestParseSceneMarker(t *testing.T) {
	p := newTestParser(t)
	script := "场景：咖啡馆，下午\n李明，坐在靠窗的位置\n李明：你来了。"

	result, err := p.Parse(context.Background(), script)
	require.NoError(t, err)
	require.Len(t, result.Scenes, 1)

	scene := result.Scenes[0]
	assert.Equal(t, "咖啡馆", scene.Location)
	assert.Equal(t, "下午", scene.Time)
	require.Len(t, scene.Actions, 2)

	assert.Equal(t, "李明", scene.Actions[0].Character)
	assert.Equal(t, "坐在靠窗的位置", scene.Actions[0].Movement)
	assert.Equal(t, "李明", scene.Actions[1].Character)
	assert.Equal(t, "你来了。", scene.Actions[1].Dialogue)
}

func TestParseMultipleScenes(t *testing.T) {
	p := newTestParser(t)
	script := "场景：办公室，上午\n王总：今天的会议很重要。\n场景：餐厅，晚上\n王总：辛苦大家了。"

	result, err := p.Parse(context.Background(), script)
	require.NoError(t, err)
	require.Len(t, result.Scenes, 2)

	assert.Equal(t, "办公室", result.Scenes[0].Location)
	assert.Equal(t, "餐厅", result.Scenes[1].Location)
	require.Len(t, result.Scenes[0].Actions, 1)
	assert.Equal(t, "今天的会议很重要。", result.Scenes[0].Actions[0].Dialogue)
}

func TestParseDialogueWithEmotionHint(t *testing.T) {
	p := newTestParser(t)

	action, ok := p.parseDialogueLine("李明（生气）：你真过分！")
	require.True(t, ok)
	assert.Equal(t, "李明", action.Character)
	assert.Equal(t, "生气", action.Emotion)
	assert.Equal(t, "你真过分！", action.Dialogue)
}

func TestInferEmotionFromDialogue(t *testing.T) {
	p := newTestParser(t)

	tests := []struct {
		dialogue string
		emotion  string
	}{
		{"太好了！", "激动"},
		{"怎么会这样？", "疑问"},
		{"我……我不知道…", "犹豫"},
		{"真是太开心了", "高兴"},
		{"好的", "平静"},
		{"今天天气不错", "平静"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.emotion, p.inferEmotionFromDialogue(tt.dialogue), tt.dialogue)
	}
}

func TestInferEmotionFromAction(t *testing.T) {
	p := newTestParser(t)

	assert.Equal(t, "轻松", p.inferEmotionFromAction("在公园里漫步"))
	assert.Equal(t, "悲伤", p.inferEmotionFromAction("忍不住哭了出来"))
	assert.Equal(t, "平静", p.inferEmotionFromAction("整理桌上的文件"))
}

func TestParseFallbackToDefaultScene(t *testing.T) {
	p := newTestParser(t)

	result, err := p.Parse(context.Background(), "随便写点什么")
	require.NoError(t, err)
	require.NotEmpty(t, result.Scenes)
	assert.Equal(t, config.Default().DefaultLocation, result.Scenes[0].Location)
	assert.NotEmpty(t, result.Scenes[0].Actions)
}

func TestParseKeywordSceneDetection(t *testing.T) {
	p := newTestParser(t)
	script := "傍晚，王芳走进咖啡馆。\n王芳：一杯拿铁，谢谢。"

	result, err := p.Parse(context.Background(), script)
	require.NoError(t, err)
	require.Len(t, result.Scenes, 1)
	assert.Contains(t, result.Scenes[0].Location, "咖啡馆")
}

func TestExtractTime(t *testing.T) {
	p := newTestParser(t)

	assert.Equal(t, "下午3:00", p.extractTime("15:00"))
	assert.Equal(t, "深夜", p.extractTime("深夜时分"))
	assert.Equal(t, "下午3点", p.extractTime("15点左右"))
	assert.Equal(t, config.Default().DefaultTime, p.extractTime("某个时候"))
}

func TestEnsureWellFormedFillsDefaults(t *testing.T) {
	p := newTestParser(t)

	result, err := p.Parse(context.Background(), "场景：公园，清晨\n李明，伸了个懒腰")
	require.NoError(t, err)
	for _, scene := range result.Scenes {
		assert.NotEmpty(t, scene.Location)
		assert.NotEmpty(t, scene.Time)
		for _, action := range scene.Actions {
			assert.NotEmpty(t, action.Character)
			assert.NotEmpty(t, action.Emotion)
			assert.True(t, action.Dialogue != "" || action.Movement != "")
		}
	}
}

func TestInferAtmosphere(t *testing.T) {
	p := newTestParser(t)

	result, err := p.Parse(context.Background(), "场景：咖啡馆，下午\n李明，坐在靠窗的位置")
	require.NoError(t, err)
	require.NotEmpty(t, result.Scenes)
	assert.Equal(t, "温馨", result.Scenes[0].Atmosphere)
}

func TestBadPatternSkipped(t *testing.T) {
	cfg := config.Default()
	cfg.ScenePatterns = []string{"([不闭合的正则", cfg.ScenePatterns[0]}
	p := New(cfg, nil, prompts.NewManager(""))

	require.Len(t, p.scenePatterns, 1)

	result, err := p.Parse(context.Background(), "场景：学校，早晨\n张伟：早上好。")
	require.NoError(t, err)
	assert.Equal(t, "学校", result.Scenes[0].Location)
}

func TestAnalyzeWholeContentRoundRobin(t *testing.T) {
	p := newTestParser(t)

	actions := p.analyzeWholeContent("李明在看书，王芳在喝茶")
	require.NotEmpty(t, actions)
	for _, a := range actions {
		assert.NotEmpty(t, a.Character)
		assert.NotEmpty(t, a.Emotion)
	}
}
