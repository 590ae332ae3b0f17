// Package settings persists user compression preferences to a JSON file and
// hands out clamped copies.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/plumed-nebula/yana/internal/global"
	"github.com/plumed-nebula/yana/task"
)

type Store struct {
	mtx  sync.RWMutex
	file string
	cur  task.Settings
}

// New loads the settings file, falling back to defaults when it is missing
// or unreadable. A corrupt file is logged and replaced on the next Save,
// never treated as fatal.
func New(gCtx global.Context) *Store {
	file := gCtx.Config().Settings.File
	if file == "" {
		file = filepath.Join(os.TempDir(), "com.yana.dev", "settings.json")
	}

	s := &Store{
		file: file,
		cur:  task.DefaultSettings(),
	}

	data, err := os.ReadFile(file)
	if err != nil {
		if !os.IsNotExist(err) {
			zap.S().Warnw("settings unreadable, using defaults",
				"file", file,
				"error", err,
			)
		}

		return s
	}

	loaded := task.DefaultSettings()
	if err := json.Unmarshal(data, &loaded); err != nil {
		zap.S().Warnw("settings corrupt, using defaults",
			"file", file,
			"error", err,
		)

		return s
	}

	s.cur = loaded.Clamped()

	return s
}

// Get returns the current settings, always clamped.
func (s *Store) Get() task.Settings {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	return s.cur
}

// Save clamps, persists and adopts the given settings atomically. The value
// in memory and the value on disk never diverge on success.
func (s *Store) Save(in task.Settings) (task.Settings, error) {
	clamped := in.Clamped()

	s.mtx.Lock()
	defer s.mtx.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.file), 0700); err != nil {
		return s.cur, multierr.Append(fmt.Errorf("failed at create settings dir"), err)
	}

	data, err := json.MarshalIndent(clamped, "", "  ")
	if err != nil {
		return s.cur, multierr.Append(fmt.Errorf("failed at marshal settings"), err)
	}

	tmp := s.file + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return s.cur, multierr.Append(fmt.Errorf("failed at write settings"), err)
	}

	if err := os.Rename(tmp, s.file); err != nil {
		os.Remove(tmp)

		return s.cur, multierr.Append(fmt.Errorf("failed at commit settings"), err)
	}

	s.cur = clamped

	zap.S().Infow("settings saved",
		"file", s.file,
		"quality", clamped.Quality,
		"mode", clamped.Mode.String(),
	)

	return clamped, nil
}
