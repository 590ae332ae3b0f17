package settings

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plumed-nebula/yana/internal/configure"
	"github.com/plumed-nebula/yana/internal/global"
	"github.com/plumed-nebula/yana/task"
)

func testContext(t *testing.T, file string) global.Context {
	t.Helper()

	config := &configure.Config{}
	config.Settings.File = file

	return global.New(context.Background(), config)
}

func TestDefaultsWhenMissing(t *testing.T) {
	file := filepath.Join(t.TempDir(), "settings.json")

	s := New(testContext(t, file))
	assert.Equal(t, task.DefaultSettings(), s.Get())
}

func TestSaveClampsAndPersists(t *testing.T) {
	file := filepath.Join(t.TempDir(), "settings.json")
	gCtx := testContext(t, file)

	s := New(gCtx)

	saved, err := s.Save(task.Settings{
		Quality:              250,
		Mode:                 task.ModeTargetWebP,
		MaxConcurrentUploads: 99,
	})
	require.NoError(t, err)
	assert.Equal(t, 100, saved.Quality)
	assert.Equal(t, 5, saved.MaxConcurrentUploads)
	assert.Equal(t, task.ModeTargetWebP, saved.Mode)
	assert.Equal(t, saved, s.Get())

	// A fresh store reads the same values back from disk.
	reloaded := New(gCtx)
	assert.Equal(t, saved, reloaded.Get())
}

func TestCorruptFileFallsBackToDefaults(t *testing.T) {
	file := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(file, []byte("{not json"), 0600))

	s := New(testContext(t, file))
	assert.Equal(t, task.DefaultSettings(), s.Get())
}

func TestNegativeQualityClampsToZero(t *testing.T) {
	file := filepath.Join(t.TempDir(), "settings.json")

	s := New(testContext(t, file))

	saved, err := s.Save(task.Settings{Quality: -20})
	require.NoError(t, err)
	assert.Equal(t, 0, saved.Quality)
}
