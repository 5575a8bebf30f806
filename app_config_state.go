package main

import (
	"sync"

	"aigcpanel/internal/config"
)

// saveConfigFn is replaced in tests.
var saveConfigFn = config.Save

// configState is the live configuration shared by the bridge handlers and
// the file watcher.
//
// Lock ordering (outer -> inner): saveMu -> mu.
type configState struct {
	path string

	saveMu sync.Mutex
	mu     sync.RWMutex
	cfg    config.Config
}

func newConfigState(path string, cfg config.Config) *configState {
	return &configState{path: path, cfg: config.Clone(cfg)}
}

// Path returns the file the config is persisted to.
func (s *configState) Path() string { return s.path }

// Snapshot returns a deep copy of the current config.
func (s *configState) Snapshot() config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return config.Clone(s.cfg)
}

// Update applies fn to a copy of the current config, saves it and makes the
// normalized result current. Nothing changes when fn or the save fails.
func (s *configState) Update(fn func(*config.Config) error) (config.Config, error) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	next := s.Snapshot()
	if err := fn(&next); err != nil {
		return config.Config{}, err
	}
	saved, err := saveConfigFn(s.path, next)
	if err != nil {
		return config.Config{}, err
	}
	s.replace(saved)
	return config.Clone(saved), nil
}

// replace installs cfg without saving, for configs read back from disk.
func (s *configState) replace(cfg config.Config) {
	s.mu.Lock()
	s.cfg = config.Clone(cfg)
	s.mu.Unlock()
}
