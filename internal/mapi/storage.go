package mapi

import (
	"context"
	"encoding/json"

	"aigcpanel/internal/bridge"
	"aigcpanel/internal/store"
)

func storageTree(d *Deps) bridge.Tree {
	return bridge.Tree{
		"get": bridge.Func2(func(ctx context.Context, key string, fallback json.RawMessage) (json.RawMessage, error) {
			value, ok, err := d.Store.Get(ctx, key)
			if err != nil {
				return nil, classify(err)
			}
			if !ok || string(value) == "null" {
				return fallback, nil
			}
			return value, nil
		}),
		"set": bridge.Func2(func(ctx context.Context, key string, value json.RawMessage) (any, error) {
			return nil, classify(d.Store.Set(ctx, key, value))
		}),
		"remove": bridge.Func1(func(ctx context.Context, key string) (any, error) {
			return nil, classify(d.Store.Delete(ctx, key))
		}),
		"keys": bridge.Func0(func(ctx context.Context) ([]string, error) {
			keys, err := d.Store.Keys(ctx)
			return keys, classify(err)
		}),
	}
}

func dbTree(d *Deps) bridge.Tree {
	return bridge.Tree{
		"execute": bridge.Func2(func(ctx context.Context, query string, args []any) (store.ExecResult, error) {
			res, err := d.Store.Exec(ctx, query, args...)
			return res, classify(err)
		}),
		"select": bridge.Func2(func(ctx context.Context, query string, args []any) ([]map[string]any, error) {
			rows, err := d.Store.Query(ctx, query, args...)
			return rows, classify(err)
		}),
		"first": bridge.Func2(func(ctx context.Context, query string, args []any) (map[string]any, error) {
			row, err := d.Store.QueryRow(ctx, query, args...)
			return row, classify(err)
		}),
	}
}

func statisticsTree(d *Deps) bridge.Tree {
	return bridge.Tree{
		"tick": bridge.Func2(func(ctx context.Context, name string, data json.RawMessage) (any, error) {
			if string(data) == "null" {
				data = nil
			}
			return nil, classify(d.Store.Tick(ctx, name, data))
		}),
		"summary": bridge.Func0(func(ctx context.Context) ([]store.StatSummary, error) {
			summary, err := d.Store.Summary(ctx)
			return summary, classify(err)
		}),
	}
}
