package statestore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFile(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "state.json"))
	state, ok, err := s.Load()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, state)
}

func TestLoad_MigratesV1(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	v1 := `{"date":"2026-02-04","timestamp":"2026-02-04T10:00:00+08:00","filename":"moyuren_20260204_100000.jpg","weekday":"星期三"}`
	require.NoError(t, os.WriteFile(path, []byte(v1), 0o644))

	s := New(path)
	state, ok, err := s.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, state.Version)
	assert.Equal(t, "moyuren_20260204_100000.jpg", state.Templates[DefaultTemplateName].Filename)
	assert.Equal(t, "2026-02-04T10:00:00+08:00", state.Public.Updated)
}

func TestUpdate_PreservesOtherTemplates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := New(path)

	err := s.Update("moyuren", TemplateEntry{Filename: "moyuren_20260729_060000.jpg"}, map[string]any{"a": 1}, Public{Date: "2026-07-29"})
	require.NoError(t, err)

	err = s.Update("cute", TemplateEntry{Filename: "cute_20260729_060000.jpg"}, map[string]any{"b": 2}, Public{Date: "2026-07-29"})
	require.NoError(t, err)

	state, ok, err := s.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "moyuren_20260729_060000.jpg", state.Templates["moyuren"].Filename)
	assert.Equal(t, "cute_20260729_060000.jpg", state.Templates["cute"].Filename)
}

func TestUpdate_WritesFlattenedRootFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := New(path)
	public := Public{
		Date:            "2026-07-30",
		Weekday:         "星期四",
		FunContent:      map[string]any{"title": "t", "content": "c"},
		IsCrazyThursday: true,
		KfcContent:      "v我50",
	}
	err := s.Update("moyuren", TemplateEntry{Filename: "moyuren_20260730_060000.jpg", Updated: "2026-07-30T06:00:00+08:00"}, nil, public)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var generic map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))
	assert.Equal(t, "moyuren_20260730_060000.jpg", generic["filename"])
	assert.Equal(t, "2026-07-30", generic["date"])
	assert.Equal(t, float64(2), generic["version"])
	assert.Equal(t, true, generic["is_crazy_thursday"])
	assert.Equal(t, "v我50", generic["kfc_content"])
	assert.NotNil(t, generic["fun_content"], "the full public union is flattened at root")
}

func TestLoad_RejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":99}`), 0o644))
	s := New(path)
	_, _, err := s.Load()
	assert.Error(t, err)
}

func TestUpdate_AtomicNoPartialFileVisible(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := New(path)
	require.NoError(t, s.Update("moyuren", TemplateEntry{Filename: "a.jpg"}, nil, Public{Date: "2026-07-29"}))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}
