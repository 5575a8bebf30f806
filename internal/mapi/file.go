package mapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"aigcpanel/internal/bridge"
)

// maxReadFileBytes bounds file.read so typical text content still fits in one
// 4 MiB transport frame once JSON-escaped. Results that do not fit come back
// as an internal error.
const maxReadFileBytes int64 = 2 << 20

// FileEntry is one item returned by file.list.
type FileEntry struct {
	Name    string    `json:"name"`
	IsDir   bool      `json:"isDir"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
}

// userDataPath resolves rel under UserData. The root itself is only
// accepted when allowRoot is set.
func userDataPath(ctx context.Context, d *Deps, rel string, allowRoot bool) (string, error) {
	env, err := d.Env.Wait(ctx)
	if err != nil {
		return "", err
	}
	rel = strings.TrimSpace(rel)
	if !allowRoot && (rel == "" || filepath.Clean(rel) == ".") {
		return "", invalidArgument("path is required")
	}
	return env.UserDataPath(rel)
}

func fileTree(d *Deps) bridge.Tree {
	return bridge.Tree{
		"exists": bridge.Func1(func(ctx context.Context, rel string) (bool, error) {
			path, err := userDataPath(ctx, d, rel, true)
			if err != nil {
				return false, err
			}
			_, err = os.Stat(path)
			if errors.Is(err, fs.ErrNotExist) {
				return false, nil
			}
			return err == nil, err
		}),
		"read": bridge.Func1(func(ctx context.Context, rel string) (string, error) {
			path, err := userDataPath(ctx, d, rel, false)
			if err != nil {
				return "", err
			}
			return readFileLimited(path)
		}),
		"write": bridge.Func2(func(ctx context.Context, rel, content string) (any, error) {
			path, err := userDataPath(ctx, d, rel, false)
			if err != nil {
				return nil, err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
				return nil, fmt.Errorf("file.write: %w", err)
			}
			return nil, os.WriteFile(path, []byte(content), 0o600)
		}),
		"remove": bridge.Func1(func(ctx context.Context, rel string) (any, error) {
			path, err := userDataPath(ctx, d, rel, false)
			if err != nil {
				return nil, err
			}
			return nil, os.RemoveAll(path)
		}),
		"list": bridge.Func1(func(ctx context.Context, rel string) ([]FileEntry, error) {
			path, err := userDataPath(ctx, d, rel, true)
			if err != nil {
				return nil, err
			}
			return listDir(path)
		}),
		"mkdir": bridge.Func1(func(ctx context.Context, rel string) (any, error) {
			path, err := userDataPath(ctx, d, rel, false)
			if err != nil {
				return nil, err
			}
			return nil, os.MkdirAll(path, 0o700)
		}),
	}
}

func readFileLimited(path string) (string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", invalidArgument("%s does not exist", filepath.Base(path))
	}
	if err != nil {
		return "", err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxReadFileBytes+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > maxReadFileBytes {
		return "", invalidArgument("%s exceeds %d bytes", filepath.Base(path), maxReadFileBytes)
	}
	return string(data), nil
}

func listDir(path string) ([]FileEntry, error) {
	entries, err := os.ReadDir(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []FileEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]FileEntry, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		out = append(out, FileEntry{
			Name:    entry.Name(),
			IsDir:   entry.IsDir(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return out, nil
}
