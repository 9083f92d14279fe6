package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyboard/internal/config"
	"storyboard/internal/model"
)

func TestToWire(t *testing.T) {
	result := &model.StoryboardResult{
		JobID:            "shotgen_20260831_abcd1234",
		TotalShots:       1,
		TotalDurationSec: 5,
		Warnings:         []string{},
		FinalContinuityState: map[string]model.CharacterState{
			"李明": {CharacterName: "李明", Pose: "sitting", Position: "by the window", Emotion: "平静"},
		},
		Shots: []*model.Shot{{
			ShotID:             "shot_001",
			TimeRange:          [2]float64{0, 5},
			SceneContext:       &model.Scene{Location: "咖啡馆", Time: "下午"},
			ChineseDescription: "李明坐在靠窗的位置。",
			AIPrompt:           "a man sitting by the window, medium shot, soft lighting",
			Camera:             model.Camera{ShotType: "medium shot", Angle: "eye-level"},
			CharactersInFrame:  []string{"李明"},
			Dialogue:           "一杯拿铁，谢谢。",
			ContinuityAnchor: []model.CharacterState{
				{CharacterName: "李明", Pose: "sitting", Position: "by the window", Emotion: "平静"},
			},
		}},
	}

	resp := toWire(result)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "咖啡馆", resp.StoryboardTitle)
	require.Contains(t, resp.FinalContinuityState, "李明")
	assert.Equal(t, "sitting", resp.FinalContinuityState["李明"].Pose)
	require.Len(t, resp.Shots, 1)

	ws := resp.Shots[0]
	assert.InDelta(t, 0.0, ws.StartTime, 0.001)
	assert.InDelta(t, 5.0, ws.EndTime, 0.001)
	assert.InDelta(t, 5.0, ws.Duration, 0.001)
	assert.Equal(t, "eye-level", ws.CameraAngle)
	require.Len(t, ws.ContinuityAnchors, 1)
	assert.Equal(t, "李明: pose=sitting, position=by the window, emotion=平静", ws.ContinuityAnchors[0])
}

func TestToWireDefaultTitle(t *testing.T) {
	resp := toWire(&model.StoryboardResult{Shots: []*model.Shot{}})
	assert.Equal(t, "未命名剧本", resp.StoryboardTitle)
	assert.NotNil(t, resp.Shots)
}

func TestGenerateEndToEnd(t *testing.T) {
	cfg := config.Default()
	cfg.OutputDir = t.TempDir()
	svc := New(cfg)

	resp, err := svc.GenerateWire(context.Background(), &GenerateRequest{
		Script: "场景：咖啡馆，下午\n李明：一杯拿铁，谢谢。",
		Style:  "电影感",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.JobID, "shotgen_"))
	assert.Equal(t, "success", resp.Status)
	assert.NotEmpty(t, resp.Shots)
	assert.Equal(t, resp.TotalShots, len(resp.Shots))
	assert.NotEmpty(t, resp.FinalContinuityState)
}

func TestInfo(t *testing.T) {
	svc := New(config.Default())
	info := svc.Info()
	assert.Equal(t, "storyboard", info["service"])
	assert.Equal(t, 2, info["max_retries"])
}
