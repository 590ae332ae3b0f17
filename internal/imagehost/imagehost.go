// Package imagehost manages the upload-target plugin registry: script files
// discovered on disk plus a per-plugin settings store. Plugins are JavaScript
// files interpreted by the frontend; this side only catalogs them and holds
// their saved configuration.
package imagehost

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/plumed-nebula/yana/internal/global"
)

const (
	settingsFileName = "image-hosts.json"

	// BuiltinS3ID is always present in listings; the S3 target is served by
	// the backend itself rather than a script file.
	BuiltinS3ID     = "s3"
	builtinS3Script = "__internal__/s3"
)

// Plugin is one upload target: its id (the script's file stem) and the
// absolute script path.
type Plugin struct {
	ID     string `json:"id"`
	Script string `json:"script"`
}

type Registry struct {
	mtx sync.Mutex

	// Search order matters: a later directory shadows an earlier one when
	// both carry a script with the same stem.
	dirs         []string
	userDir      string
	settingsFile string
}

func New(gCtx global.Context) (*Registry, error) {
	cfg := gCtx.Config().ImageHosts

	r := &Registry{
		dirs:         cfg.PluginDirs,
		userDir:      cfg.UserDir,
		settingsFile: cfg.SettingsFile,
	}
	if r.userDir == "" {
		r.userDir = filepath.Join(os.TempDir(), "com.yana.dev", "plugins")
	}
	if r.settingsFile == "" {
		r.settingsFile = filepath.Join(os.TempDir(), "com.yana.dev", settingsFileName)
	}
	if len(r.dirs) == 0 {
		r.dirs = []string{r.userDir}
	} else if !contains(r.dirs, r.userDir) {
		r.dirs = append(r.dirs, r.userDir)
	}

	if err := os.MkdirAll(r.userDir, 0700); err != nil {
		return nil, multierr.Append(fmt.Errorf("failed at create plugin dir %s", r.userDir), err)
	}

	return r, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}

	return false
}

// List scans every plugin directory for .js/.mjs scripts, deduplicates by
// file stem with later directories winning, appends the builtin S3 entry when
// no script claims its id, and returns the result sorted by id.
func (r *Registry) List() ([]Plugin, error) {
	collected := map[string]string{}

	for _, dir := range r.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}

			return nil, multierr.Append(fmt.Errorf("failed at read plugin dir %s", dir), err)
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}

			name := entry.Name()
			if !isPluginName(name) {
				continue
			}

			collected[stem(name)] = filepath.Join(dir, name)
		}
	}

	plugins := make([]Plugin, 0, len(collected)+1)
	for id, script := range collected {
		plugins = append(plugins, Plugin{ID: id, Script: script})
	}

	if _, ok := collected[BuiltinS3ID]; !ok {
		plugins = append(plugins, Plugin{ID: BuiltinS3ID, Script: builtinS3Script})
	}

	sort.Slice(plugins, func(i, j int) bool { return plugins[i].ID < plugins[j].ID })

	return plugins, nil
}

// Add copies a script into the user plugin directory and returns its entry.
// Only .js and .mjs files are accepted.
func (r *Registry) Add(source string) (Plugin, error) {
	name := filepath.Base(source)
	if !isPluginName(name) {
		return Plugin{}, fmt.Errorf("unsupported plugin file %s: only .js and .mjs are accepted", name)
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return Plugin{}, multierr.Append(fmt.Errorf("failed at read plugin source"), err)
	}

	dest := filepath.Join(r.userDir, name)
	if err := os.WriteFile(dest, data, 0600); err != nil {
		return Plugin{}, multierr.Append(fmt.Errorf("failed at install plugin"), err)
	}

	zap.S().Infow("plugin installed",
		"id", stem(name),
		"script", dest,
	)

	return Plugin{ID: stem(name), Script: dest}, nil
}

// Load returns the stored settings object for a plugin, or nil when nothing
// has been saved for it.
func (r *Registry) Load(pluginID string) (json.RawMessage, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	all, err := r.readAll()
	if err != nil {
		return nil, err
	}

	return all[pluginID], nil
}

// Save stores a plugin's settings. An object replaces the stored value, JSON
// null removes it, anything else is rejected.
func (r *Registry) Save(pluginID string, values json.RawMessage) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	all, err := r.readAll()
	if err != nil {
		return err
	}

	switch kind(values) {
	case "object":
		all[pluginID] = append(json.RawMessage{}, values...)
	case "null":
		delete(all, pluginID)
	default:
		return fmt.Errorf("plugin settings must be a JSON object")
	}

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return multierr.Append(fmt.Errorf("failed at marshal plugin settings"), err)
	}

	if err := os.MkdirAll(filepath.Dir(r.settingsFile), 0700); err != nil {
		return multierr.Append(fmt.Errorf("failed at create settings dir"), err)
	}

	tmp := r.settingsFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return multierr.Append(fmt.Errorf("failed at write plugin settings"), err)
	}
	if err := os.Rename(tmp, r.settingsFile); err != nil {
		os.Remove(tmp)

		return multierr.Append(fmt.Errorf("failed at commit plugin settings"), err)
	}

	return nil
}

// readAll loads the flat plugin-id -> settings-object map. A missing file is
// an empty map, not an error.
func (r *Registry) readAll() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(r.settingsFile)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]json.RawMessage{}, nil
		}

		return nil, multierr.Append(fmt.Errorf("failed at read plugin settings"), err)
	}

	all := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, multierr.Append(fmt.Errorf("failed at parse plugin settings"), err)
	}

	return all, nil
}

func isPluginName(name string) bool {
	return strings.HasSuffix(name, ".js") || strings.HasSuffix(name, ".mjs")
}

func stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// kind classifies the top-level JSON value without fully decoding it.
func kind(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	switch {
	case trimmed == "" || trimmed == "null":
		return "null"
	case strings.HasPrefix(trimmed, "{"):
		return "object"
	default:
		return "other"
	}
}
