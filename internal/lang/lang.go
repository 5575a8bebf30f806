// Package lang loads TOML language packs. Two packs are compiled in; packs
// found on disk override or extend them.
package lang

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultCode is the pack used when a requested code is unknown.
const DefaultCode = "en-US"

// maxPackBytes bounds a single pack file read from disk.
const maxPackBytes = 1 << 20

var (
	// ErrUnknownLanguage is returned for codes no pack provides.
	ErrUnknownLanguage = errors.New("lang: unknown language")

	codePattern = regexp.MustCompile(`^[a-z]{2,3}(-[A-Z]{2})?$`)
)

//go:embed packs/*.toml
var embeddedPacks embed.FS

// Pack is one language.
type Pack struct {
	Code     string
	Name     string
	Messages map[string]string
}

type packFile struct {
	Meta struct {
		Name string `toml:"name"`
	} `toml:"meta"`
	Messages map[string]string `toml:"messages"`
}

// Info describes a pack without its messages.
type Info struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Bundle is an immutable set of packs keyed by code.
type Bundle struct {
	packs map[string]Pack
}

// ValidCode reports whether code looks like "en" or "zh-CN".
func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}

// Default returns a bundle holding only the compiled-in packs.
func Default() *Bundle {
	b := &Bundle{packs: make(map[string]Pack)}
	if err := b.loadFS(embeddedPacks, "packs"); err != nil {
		// Embedded packs are part of the build; failing here is a build defect.
		panic(fmt.Sprintf("lang: embedded packs: %v", err))
	}
	return b
}

// Load returns the compiled-in packs overlaid with every "<code>.toml" file
// in dir. A missing dir is not an error. Files with invalid codes or
// unparsable contents are skipped with a warning.
func Load(dir string) (*Bundle, error) {
	b := Default()
	if strings.TrimSpace(dir) == "" {
		return b, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return b, nil
		}
		return nil, fmt.Errorf("lang: read dir %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".toml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			slog.Warn("[lang] skipping pack", "path", path, "error", err)
			continue
		}
		if info.Size() > maxPackBytes {
			slog.Warn("[lang] skipping oversized pack", "path", path, "size", info.Size())
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("[lang] skipping pack", "path", path, "error", err)
			continue
		}
		if err := b.add(entry.Name(), data); err != nil {
			slog.Warn("[lang] skipping pack", "path", path, "error", err)
		}
	}
	return b, nil
}

func (b *Bundle) loadFS(fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		data, err := fs.ReadFile(fsys, dir+"/"+entry.Name())
		if err != nil {
			return err
		}
		if err := b.add(entry.Name(), data); err != nil {
			return err
		}
	}
	return nil
}

// add parses one pack. Messages from a pack with the same code are merged,
// later keys winning.
func (b *Bundle) add(fileName string, data []byte) error {
	code := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	if !ValidCode(code) {
		return fmt.Errorf("invalid language code %q", code)
	}
	var pf packFile
	if _, err := toml.Decode(string(data), &pf); err != nil {
		return fmt.Errorf("parse %s: %w", fileName, err)
	}

	pack, ok := b.packs[code]
	if !ok {
		pack = Pack{Code: code, Name: code, Messages: make(map[string]string)}
	}
	if name := strings.TrimSpace(pf.Meta.Name); name != "" {
		pack.Name = name
	}
	maps.Copy(pack.Messages, pf.Messages)
	b.packs[code] = pack
	return nil
}

// Has reports whether a pack exists for code.
func (b *Bundle) Has(code string) bool {
	_, ok := b.packs[code]
	return ok
}

// List returns the available packs sorted by code.
func (b *Bundle) List() []Info {
	out := make([]Info, 0, len(b.packs))
	for _, code := range slices.Sorted(maps.Keys(b.packs)) {
		out = append(out, Info{Code: code, Name: b.packs[code].Name})
	}
	return out
}

// Messages returns a copy of the messages for code.
func (b *Bundle) Messages(code string) (map[string]string, error) {
	pack, ok := b.packs[code]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLanguage, code)
	}
	return maps.Clone(pack.Messages), nil
}

// Translate returns the message for key in code, falling back to
// DefaultCode and then to key itself.
func (b *Bundle) Translate(code, key string) string {
	if msg, ok := b.packs[code].Messages[key]; ok {
		return msg
	}
	if msg, ok := b.packs[DefaultCode].Messages[key]; ok {
		return msg
	}
	return key
}
