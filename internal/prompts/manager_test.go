package prompts

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinTemplate(t *testing.T) {
	m := NewManager("")

	tmpl := m.Template("shot_generation")
	assert.Contains(t, tmpl, "{location}")
	assert.Contains(t, tmpl, "{shot_id}")
	assert.Equal(t, "builtin", m.Version("shot_generation"))
}

func TestFileOverridesBuiltin(t *testing.T) {
	dir := t.TempDir()
	content := "template: 自定义模板 {location}\nversion: \"2.0\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shot_generation.yaml"), []byte(content), 0o644))

	m := NewManager(dir)
	assert.Contains(t, m.Template("shot_generation"), "自定义模板")
	assert.Equal(t, "2.0", m.Version("shot_generation"))
}

func TestBrokenFileFallsBackToBuiltin(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "qa_review.yaml"), []byte("{{{bad"), 0o644))

	m := NewManager(dir)
	assert.Contains(t, m.Template("qa_review"), "{shot_info}")
}

func TestRenderSubstitutesPlaceholders(t *testing.T) {
	m := NewManager("")

	out, err := m.Render(context.Background(), "script_enhance", map[string]any{
		"script_json": `{"scenes":[]}`,
	})
	require.NoError(t, err)
	assert.Contains(t, out, `{"scenes":[]}`)
	assert.NotContains(t, out, "{script_json}")
}

func TestRenderUnknownTemplate(t *testing.T) {
	m := NewManager("")

	_, err := m.Render(context.Background(), "不存在的模板", nil)
	assert.Error(t, err)
}
