package main

import (
	"context"
	"errors"
)

var errRuntimeNotReady = errors.New("window runtime is not ready")

func (a *App) setRuntimeContext(ctx context.Context) {
	a.ctxMu.Lock()
	a.ctx = ctx
	a.ctxMu.Unlock()
}

func (a *App) runtimeContext() context.Context {
	a.ctxMu.RLock()
	ctx := a.ctx
	a.ctxMu.RUnlock()
	return ctx
}

// requireRuntimeContext is runtimeContext for callers that must report a
// missing runtime instead of silently dropping the operation.
func (a *App) requireRuntimeContext() (context.Context, error) {
	ctx := a.runtimeContext()
	if ctx == nil {
		return nil, errRuntimeNotReady
	}
	return ctx, nil
}
