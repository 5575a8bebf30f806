package mapi

import (
	"context"
	"encoding/json"
	"errors"

	"aigcpanel/internal/bridge"
)

// userStoreKey holds the local user profile in storage_kv.
const userStoreKey = "user.profile"

// EventUserChanged is emitted after user.save and user.clear.
const EventUserChanged = "user.changed"

var errUserDisabled = errors.New("user features are disabled")

func userTree(d *Deps) bridge.Tree {
	enabled := func() error {
		if !d.Config.Snapshot().UserEnable {
			return invalidArgument("%v", errUserDisabled)
		}
		return nil
	}
	return bridge.Tree{
		"get": bridge.Func0(func(ctx context.Context) (json.RawMessage, error) {
			if err := enabled(); err != nil {
				return nil, err
			}
			value, ok, err := d.Store.Get(ctx, userStoreKey)
			if err != nil || !ok {
				return nil, classify(err)
			}
			return value, nil
		}),
		"save": bridge.Func1(func(ctx context.Context, data json.RawMessage) (any, error) {
			if err := enabled(); err != nil {
				return nil, err
			}
			if len(data) == 0 {
				return nil, invalidArgument("user data is required")
			}
			if err := d.Store.Set(ctx, userStoreKey, data); err != nil {
				return nil, classify(err)
			}
			d.Events.Emit(EventUserChanged, data)
			return nil, nil
		}),
		"clear": bridge.Func0(func(ctx context.Context) (any, error) {
			if err := enabled(); err != nil {
				return nil, err
			}
			if err := d.Store.Delete(ctx, userStoreKey); err != nil {
				return nil, classify(err)
			}
			d.Events.Emit(EventUserChanged, nil)
			return nil, nil
		}),
	}
}
