package mapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/mod/semver"

	"aigcpanel/internal/bridge"
	"aigcpanel/internal/config"
)

// maxUpdaterResponseBytes bounds the updater response body.
const maxUpdaterResponseBytes = 1 << 20

// UpdateInfo is the result of updater.check.
type UpdateInfo struct {
	Current   string `json:"current"`
	Latest    string `json:"latest"`
	HasUpdate bool   `json:"hasUpdate"`
	URL       string `json:"url,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

type updaterRelease struct {
	Version string `json:"version"`
	URL     string `json:"url"`
	Notes   string `json:"notes"`
}

// updaterResponse accepts both a bare release object and one wrapped in
// {"code":0,"data":{...}}.
type updaterResponse struct {
	Code *int            `json:"code"`
	Msg  string          `json:"msg"`
	Data *updaterRelease `json:"data"`
	updaterRelease
}

func updaterTree(d *Deps) bridge.Tree {
	return bridge.Tree{
		"check": bridge.Func0(func(ctx context.Context) (UpdateInfo, error) {
			return checkUpdate(ctx, d.HTTP, d.Config.Snapshot().App)
		}),
		"getCheckAtLaunch": bridge.Func0(func(context.Context) (bool, error) {
			return d.Config.Snapshot().CheckUpdateAtLaunch, nil
		}),
		"setCheckAtLaunch": bridge.Func1(func(_ context.Context, enabled bool) (any, error) {
			_, err := d.Config.Update(func(c *config.Config) error {
				c.CheckUpdateAtLaunch = enabled
				return nil
			})
			return nil, err
		}),
	}
}

// checkUpdate asks app.UpdaterURL for the latest release. The request
// carries the running version and platform as query parameters.
func checkUpdate(ctx context.Context, client *http.Client, app config.AppInfo) (UpdateInfo, error) {
	info := UpdateInfo{Current: app.Version}
	if strings.TrimSpace(app.UpdaterURL) == "" {
		return info, invalidArgument("updater_url is not configured")
	}
	u, err := url.Parse(app.UpdaterURL)
	if err != nil {
		return info, invalidArgument("updater_url: %v", err)
	}
	q := u.Query()
	q.Set("version", app.Version)
	q.Set("platform", PlatformName())
	q.Set("arch", PlatformArch())
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return info, fmt.Errorf("updater: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return info, fmt.Errorf("updater: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return info, fmt.Errorf("updater: unexpected status %s", resp.Status)
	}

	var body updaterResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxUpdaterResponseBytes)).Decode(&body); err != nil {
		return info, fmt.Errorf("updater: decode response: %w", err)
	}
	if body.Code != nil && *body.Code != 0 {
		return info, fmt.Errorf("updater: server error %d: %s", *body.Code, body.Msg)
	}
	release := body.updaterRelease
	if body.Data != nil {
		release = *body.Data
	}
	if release.Version == "" {
		return info, fmt.Errorf("updater: response has no version")
	}

	info.Latest = release.Version
	info.URL = release.URL
	info.Notes = release.Notes
	info.HasUpdate = newerVersion(release.Version, app.Version)
	slog.Info("[updater] checked", "current", info.Current, "latest", info.Latest, "hasUpdate", info.HasUpdate)
	return info, nil
}

// newerVersion reports whether latest is a higher semantic version than
// current. Unparseable versions never count as newer.
func newerVersion(latest, current string) bool {
	l, c := canonicalVersion(latest), canonicalVersion(current)
	if l == "" {
		return false
	}
	if c == "" {
		return true
	}
	return semver.Compare(l, c) > 0
}

func canonicalVersion(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return ""
	}
	return v
}
