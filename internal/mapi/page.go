package mapi

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"aigcpanel/internal/bridge"
)

// EventPageReady is emitted with the page name the first time a page
// reports ready.
const EventPageReady = "page.ready"

// MainPage is the page whose readiness shows the application window.
const MainPage = "main"

// Pages tracks which renderer pages have reported ready.
type Pages struct {
	mu    sync.Mutex
	ready map[string]bool
}

// NewPages creates an empty tracker.
func NewPages() *Pages {
	return &Pages{ready: make(map[string]bool)}
}

// MarkReady records name and reports whether this was its first report.
func (p *Pages) MarkReady(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ready[name] {
		return false
	}
	p.ready[name] = true
	return true
}

// Ready returns the ready page names, sorted.
func (p *Pages) Ready() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.ready))
	for name := range p.ready {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

func pageTree(d *Deps) bridge.Tree {
	return bridge.Tree{
		"ready": bridge.Func1(func(_ context.Context, name string) (any, error) {
			name = strings.TrimSpace(name)
			if name == "" {
				return nil, invalidArgument("page name is required")
			}
			if !d.Pages.MarkReady(name) {
				return nil, nil
			}
			slog.Info("[page] ready", "page", name)
			if name == MainPage {
				if err := d.Window.Show(MainPage); err != nil {
					return nil, err
				}
			}
			d.Events.Emit(EventPageReady, name)
			return nil, nil
		}),
		"focus": bridge.Func0(func(context.Context) (any, error) {
			return nil, d.Focus.Focus()
		}),
		"blur": bridge.Func0(func(context.Context) (any, error) {
			return nil, d.Focus.Blur()
		}),
		"readyPages": bridge.Func0(func(context.Context) ([]string, error) {
			return d.Pages.Ready(), nil
		}),
	}
}
