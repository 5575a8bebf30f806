package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"go.yaml.in/yaml/v3"
)

const (
	maxConfigFileBytes int64 = 1 << 20 // 1MB
	maxRenameRetry           = 10
	// Windows file lock releases (antivirus/indexing) typically settle quickly.
	// Use a short linear backoff: baseDelay * (1..maxRenameRetry).
	renameRetryBaseDelay = 10 * time.Millisecond
	// maxValidPort is the highest TCP/UDP port number (2^16 - 1).
	// Port 0 is valid and means "OS auto-assign".
	maxValidPort = 65535
	// maxChordExpireMS caps per-chord windows; anything longer stops being a chord.
	maxChordExpireMS = 60_000

	// AppDirName is the directory under the user config dir holding config.yaml.
	AppDirName = "AigcPanel"
)

// defaultConfigDirFn is a test seam; tests override it to simulate
// directory-resolution failures in validateConfigPath.
var defaultConfigDirFn = defaultConfigDir
var userConfigDirFn = os.UserConfigDir
var pipeNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)
var langCodePattern = regexp.MustCompile(`^[a-z]{2,3}(-[A-Z]{2})?$`)

var defaultPathWarningState struct {
	mu       sync.Mutex
	messages []string
}

func recordDefaultPathWarning(message string) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return
	}
	defaultPathWarningState.mu.Lock()
	defaultPathWarningState.messages = append(defaultPathWarningState.messages, trimmed)
	defaultPathWarningState.mu.Unlock()
}

// ConsumeDefaultPathWarnings returns and clears path-resolution warnings
// accumulated during DefaultPath() calls.
func ConsumeDefaultPathWarnings() []string {
	defaultPathWarningState.mu.Lock()
	defer defaultPathWarningState.mu.Unlock()
	if len(defaultPathWarningState.messages) == 0 {
		return nil
	}
	out := make([]string, len(defaultPathWarningState.messages))
	copy(out, defaultPathWarningState.messages)
	defaultPathWarningState.messages = nil
	return out
}

// Config is the AigcPanel runtime configuration.
type Config struct {
	App       AppInfo        `yaml:"app" json:"app"`
	Window    WindowConfig   `yaml:"window" json:"window"`
	Shortcuts ShortcutConfig `yaml:"shortcuts" json:"shortcuts"`
	Bridge    BridgeConfig   `yaml:"bridge" json:"bridge"`
	Lang      string         `yaml:"lang" json:"lang"`
	Theme     string         `yaml:"theme" json:"theme"`
	// UserEnable turns on the user.* namespace (local profile persistence).
	UserEnable          bool   `yaml:"user_enable" json:"user_enable"`
	CheckUpdateAtLaunch bool   `yaml:"check_update_at_launch" json:"check_update_at_launch"`
	FFmpegPath          string `yaml:"ffmpeg_path,omitempty" json:"ffmpeg_path,omitempty"`
	// Settings is the free-form key/value area behind config.get/config.set.
	Settings map[string]any `yaml:"settings,omitempty" json:"settings,omitempty"`
}

// AppInfo describes the application build and its remote endpoints.
type AppInfo struct {
	Name          string `yaml:"name" json:"name"`
	Version       string `yaml:"version" json:"version"`
	Website       string `yaml:"website" json:"website"`
	UpdaterURL    string `yaml:"updater_url" json:"updater_url"`
	StatisticsURL string `yaml:"statistics_url,omitempty" json:"statistics_url,omitempty"`
}

// WindowConfig holds main window geometry.
type WindowConfig struct {
	Width     int `yaml:"width" json:"width"`
	Height    int `yaml:"height" json:"height"`
	MinWidth  int `yaml:"min_width" json:"min_width"`
	MinHeight int `yaml:"min_height" json:"min_height"`
}

// ShortcutConfig lists the chord bindings active while the main window has focus.
type ShortcutConfig struct {
	Chords []ChordConfig `yaml:"chords" json:"chords"`
}

// ChordConfig binds an ordered accelerator sequence to a named command.
// ExpireMS 0 selects the recognizer default.
type ChordConfig struct {
	Keys     []string `yaml:"keys" json:"keys"`
	Command  string   `yaml:"command" json:"command"`
	ExpireMS int      `yaml:"expire_ms,omitempty" json:"expire_ms,omitempty"`
}

// BridgeConfig configures the bridge transports.
type BridgeConfig struct {
	// PipeName overrides the per-user pipe/socket name. Empty means default.
	PipeName string `yaml:"pipe_name,omitempty" json:"pipe_name,omitempty"`
	// WebSocketPort is the renderer transport port. 0 (default) lets the OS
	// assign an available port.
	WebSocketPort int `yaml:"websocket_port" json:"websocket_port"`
}

// DefaultConfig returns default values.
func DefaultConfig() Config {
	return Config{
		App: AppInfo{
			Name:       "AigcPanel",
			Version:    "1.0.0",
			Website:    "https://aigcpanel.com",
			UpdaterURL: "https://aigcpanel.com/app_manager/updater",
		},
		Window: WindowConfig{
			Width:     1200,
			Height:    800,
			MinWidth:  1000,
			MinHeight: 600,
		},
		Shortcuts: ShortcutConfig{
			Chords: []ChordConfig{
				{
					Keys:     []string{"CommandOrControl+Shift+H", "CommandOrControl+Shift+H", "CommandOrControl+Shift+H"},
					Command:  "toggle-devtools",
					ExpireMS: 1000,
				},
			},
		},
		Lang:                "en-US",
		Theme:               "light",
		CheckUpdateAtLaunch: true,
	}
}

// DefaultPath resolves the config file path under the user config directory
// (APPDATA on Windows, ~/Library/Application Support on darwin, XDG elsewhere)
// and falls back to os.TempDir() when it cannot be resolved.
// The temp-dir fallback is not a stable persistence location.
func DefaultPath() string {
	base, err := userConfigDirFn()
	if err != nil || strings.TrimSpace(base) == "" {
		slog.Warn("[WARN-CONFIG] using temp dir as config path fallback", "error", err)
		recordDefaultPathWarning(
			"Config path fallback: failed to resolve the user config directory. Using temp directory; settings persistence may be limited.",
		)
		base = os.TempDir()
	}
	return filepath.Join(base, AppDirName, "config.yaml")
}

// Load reads config file. If file does not exist, defaults are returned.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, errors.New("config path required")
	}

	raw, err := readLimitedFile(path, maxConfigFileBytes)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		slog.Warn("[WARN-CONFIG] failed to parse config, using defaults", "path", path, "error", err)
		return DefaultConfig(), err
	}
	if err := applyDefaultsAndValidate(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// EnsureFile writes default config if missing and returns loaded config.
func EnsureFile(path string) (Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		if _, err := Save(path, cfg); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// Clone returns a deep copy of cfg.
// Use this when sharing config snapshots across goroutines or package boundaries.
func Clone(src Config) Config {
	dst := src
	dst.Shortcuts = CloneShortcuts(src.Shortcuts)
	dst.Settings = cloneSettings(src.Settings)
	return dst
}

// CloneShortcuts returns a deep copy of src.
func CloneShortcuts(src ShortcutConfig) ShortcutConfig {
	if src.Chords == nil {
		return ShortcutConfig{}
	}
	dst := ShortcutConfig{Chords: make([]ChordConfig, len(src.Chords))}
	for i, c := range src.Chords {
		dst.Chords[i] = c
		dst.Chords[i].Keys = cloneStringSlice(c.Keys)
	}
	return dst
}

func cloneStringSlice(src []string) []string {
	if src == nil {
		return nil
	}
	dst := make([]string, len(src))
	copy(dst, src)
	return dst
}

// cloneSettings deep-copies the nested maps and slices yaml/json decoding
// produces. Scalars are immutable and copied by value.
func cloneSettings(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = cloneValue(v)
	}
	return dst
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneSettings(val)
	case []any:
		out := make([]any, len(val))
		for i := range val {
			out[i] = cloneValue(val[i])
		}
		return out
	default:
		return v
	}
}

// Save validates cfg, fills defaults, and atomically writes to path.
// Returns the normalized config that was actually written to disk.
func Save(path string, cfg Config) (Config, error) {
	normalizedPath, err := validateConfigPath(path)
	if err != nil {
		return cfg, err
	}
	if err := applyDefaultsAndValidate(&cfg); err != nil {
		return cfg, fmt.Errorf("save config: %w", err)
	}

	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return cfg, fmt.Errorf("save config: marshal: %w", err)
	}
	if err := atomicWrite(normalizedPath, raw); err != nil {
		return cfg, err
	}
	slog.Debug("[DEBUG-CONFIG] config saved", "path", path)
	return cfg, nil
}

// atomicWrite writes config data using temp-file + rename to avoid partial
// writes and retries rename on Windows to tolerate transient file locks.
func atomicWrite(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("save config: mkdir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".config.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("save config: create temp: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			if closeErr := tmpFile.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
				slog.Warn("[WARN-CONFIG] failed to close temp file", "path", tmpPath, "error", closeErr)
			}
		}
		if err != nil {
			if removeErr := os.Remove(tmpPath); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
				slog.Warn("[WARN-CONFIG] failed to remove temp file", "path", tmpPath, "error", removeErr)
			}
		}
	}()

	if err = tmpFile.Chmod(0o600); err != nil {
		return fmt.Errorf("save config: chmod temp: %w", err)
	}
	if _, err = tmpFile.Write(data); err != nil {
		return fmt.Errorf("save config: write: %w", err)
	}
	if err = tmpFile.Sync(); err != nil {
		return fmt.Errorf("save config: sync: %w", err)
	}
	err = tmpFile.Close()
	tmpFile = nil
	if err != nil {
		return fmt.Errorf("save config: close: %w", err)
	}

	if err = renameFileWithRetry(tmpPath, path); err != nil {
		return fmt.Errorf("save config: rename: %w", err)
	}
	return nil
}

// validateConfigPath normalizes path and enforces that config writes stay
// inside the default config directory.
func validateConfigPath(path string) (string, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return "", errors.New("config path required")
	}
	absolutePath, err := filepath.Abs(trimmedPath)
	if err != nil {
		return "", fmt.Errorf("save config: resolve path: %w", err)
	}

	expectedDir, err := defaultConfigDirFn()
	if err != nil {
		return "", fmt.Errorf("save config: resolve config dir: %w", err)
	}
	absoluteExpectedDir, err := filepath.Abs(expectedDir)
	if err != nil {
		return "", fmt.Errorf("save config: resolve config dir: %w", err)
	}
	if !PathWithinDir(absolutePath, absoluteExpectedDir) {
		return "", fmt.Errorf("save config: path outside config directory: %q", absolutePath)
	}

	return absolutePath, nil
}

func defaultConfigDir() (string, error) {
	return filepath.Dir(DefaultPath()), nil
}

// PathWithinDir blocks directory traversal by ensuring path is under dir.
// It also rejects Windows cross-drive escapes because filepath.Rel returns
// an absolute path when roots differ.
func PathWithinDir(path string, dir string) bool {
	relativePath, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	if relativePath == "." {
		return true
	}
	if relativePath == ".." || strings.HasPrefix(relativePath, ".."+string(os.PathSeparator)) {
		return false
	}
	return !filepath.IsAbs(relativePath)
}

// applyDefaultsAndValidate fills missing defaults and validates cfg in-place.
// MUTATES: cfg is directly modified.
// Used by both Load and Save to ensure consistent normalization.
func applyDefaultsAndValidate(cfg *Config) error {
	defaults := DefaultConfig()
	if isZeroConfig(*cfg) {
		*cfg = defaults
		return nil
	}

	if strings.TrimSpace(cfg.App.Name) == "" {
		cfg.App.Name = defaults.App.Name
	}
	if strings.TrimSpace(cfg.App.Version) == "" {
		cfg.App.Version = defaults.App.Version
	}
	if cfg.Window.Width <= 0 || cfg.Window.Height <= 0 {
		cfg.Window.Width = defaults.Window.Width
		cfg.Window.Height = defaults.Window.Height
	}
	if cfg.Window.MinWidth < 0 || cfg.Window.MinHeight < 0 {
		cfg.Window.MinWidth = defaults.Window.MinWidth
		cfg.Window.MinHeight = defaults.Window.MinHeight
	}
	if cfg.Shortcuts.Chords == nil {
		cfg.Shortcuts = CloneShortcuts(defaults.Shortcuts)
	}
	if err := validateChords(cfg.Shortcuts.Chords); err != nil {
		return err
	}
	cfg.Lang = strings.TrimSpace(cfg.Lang)
	if cfg.Lang == "" || !langCodePattern.MatchString(cfg.Lang) {
		if cfg.Lang != "" {
			slog.Warn("[WARN-CONFIG] invalid lang code, falling back to default", "lang", cfg.Lang)
		}
		cfg.Lang = defaults.Lang
	}
	switch cfg.Theme {
	case "light", "dark", "auto":
	default:
		cfg.Theme = defaults.Theme
	}
	if err := validateBridge(&cfg.Bridge); err != nil {
		return err
	}
	cfg.FFmpegPath = strings.TrimSpace(cfg.FFmpegPath)
	return nil
}

// validateChords rejects structurally broken chord bindings. Accelerator
// syntax is checked later by the shortcut service, which owns the parser.
func validateChords(chords []ChordConfig) error {
	for i := range chords {
		c := &chords[i]
		c.Command = strings.TrimSpace(c.Command)
		if c.Command == "" {
			return fmt.Errorf("shortcuts.chords[%d].command must not be empty", i)
		}
		if len(c.Keys) == 0 {
			return fmt.Errorf("shortcuts.chords[%d].keys must not be empty", i)
		}
		for j, key := range c.Keys {
			key = strings.TrimSpace(key)
			if key == "" {
				return fmt.Errorf("shortcuts.chords[%d].keys[%d] must not be empty", i, j)
			}
			c.Keys[j] = key
		}
		if c.ExpireMS < 0 || c.ExpireMS > maxChordExpireMS {
			return fmt.Errorf("shortcuts.chords[%d].expire_ms must be within 0-%d, got %d", i, maxChordExpireMS, c.ExpireMS)
		}
	}
	return nil
}

// validateBridge checks transport settings.
// An out-of-range websocket port is non-fatal and falls back to 0
// (auto-assign) so a misconfigured file never prevents startup.
func validateBridge(b *BridgeConfig) error {
	if b.WebSocketPort < 0 || b.WebSocketPort > maxValidPort {
		slog.Warn("[WARN-CONFIG] bridge.websocket_port out of valid range (0-65535), falling back to 0 (auto-assign)",
			"configured", b.WebSocketPort, "max", maxValidPort)
		b.WebSocketPort = 0
	}
	b.PipeName = strings.TrimSpace(b.PipeName)
	if b.PipeName != "" && !pipeNamePattern.MatchString(b.PipeName) {
		return fmt.Errorf("bridge.pipe_name %q must match %s", b.PipeName, pipeNamePattern.String())
	}
	return nil
}

// SettingsKeys returns the sorted top-level keys of cfg.Settings.
func SettingsKeys(cfg Config) []string {
	return slices.Sorted(maps.Keys(cfg.Settings))
}

func readLimitedFile(path string, maxBytes int64) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	limited := io.LimitReader(file, maxBytes+1)
	raw, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > maxBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", maxBytes)
	}
	return raw, nil
}

func isZeroConfig(cfg Config) bool {
	// reflect.DeepEqual guards against field-addition drift that manual checks miss.
	return reflect.DeepEqual(cfg, Config{})
}

func renameFileWithRetry(sourcePath string, targetPath string) error {
	var lastErr error
	for attempt := range maxRenameRetry {
		err := os.Rename(sourcePath, targetPath)
		if err == nil {
			return nil
		}
		lastErr = err
		if runtime.GOOS != "windows" {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * renameRetryBaseDelay)
	}
	return lastErr
}
