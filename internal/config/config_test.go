package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTables(t *testing.T) {
	cfg := Default()

	assert.NotEmpty(t, cfg.ScenePatterns)
	assert.NotEmpty(t, cfg.DialoguePatterns)
	assert.NotEmpty(t, cfg.ActionEmotionMap)
	assert.NotEmpty(t, cfg.EmotionKeywords)
	assert.NotEmpty(t, cfg.ActionDurations)
	assert.InDelta(t, 5.0, cfg.TargetSegmentDuration, 0.001)
	assert.InDelta(t, 5.5, cfg.MaxShotDuration, 0.001)
	assert.Equal(t, 2, cfg.MaxRetries)
}

func TestLoadMissingFileFallsBack(t *testing.T) {
	cfg := Load("/nonexistent/config.yaml")
	require.NotNil(t, cfg)
	assert.Equal(t, Default().DefaultLocation, cfg.DefaultLocation)
}

func TestLoadOverridesAndFills(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "default_location: 图书馆\nmax_retries: 5\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg := Load(path)
	assert.Equal(t, "图书馆", cfg.DefaultLocation)
	assert.Equal(t, 5, cfg.MaxRetries)
	// 未覆盖的字段保持默认值
	assert.NotEmpty(t, cfg.ScenePatterns)
	assert.Equal(t, Default().DefaultCharacter, cfg.DefaultCharacter)
}

func TestLoadBrokenFileFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{{not yaml"), 0o644))

	cfg := Load(path)
	assert.Equal(t, Default().DefaultLocation, cfg.DefaultLocation)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ARK_API_KEY", "test-key")
	t.Setenv("STORYBOARD_LLM_PROVIDER", "ark")
	t.Setenv("STORYBOARD_MAX_RETRIES", "4")

	cfg := Load("")
	assert.Equal(t, "test-key", cfg.LLM.APIKey)
	assert.Equal(t, "ark", cfg.LLM.Provider)
	assert.Equal(t, 4, cfg.MaxRetries)
}
