package mapi

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"aigcpanel/internal/bridge"
	"aigcpanel/internal/config"
	"aigcpanel/internal/lang"
)

// EventLangChanged is broadcast with the new code after lang.set.
const EventLangChanged = "lang.changed"

// CurrentLang is returned by lang.current.
type CurrentLang struct {
	Code     string            `json:"code"`
	Messages map[string]string `json:"messages"`
}

func langTree(d *Deps) bridge.Tree {
	messages := func(code string) (map[string]string, error) {
		msgs, err := d.Lang.Messages(code)
		if errors.Is(err, lang.ErrUnknownLanguage) {
			return nil, fmt.Errorf("%w: %v", bridge.ErrInvalidArgument, err)
		}
		return msgs, err
	}
	return bridge.Tree{
		"list": bridge.Func0(func(context.Context) ([]lang.Info, error) {
			return d.Lang.List(), nil
		}),
		"current": bridge.Func0(func(context.Context) (CurrentLang, error) {
			code := d.Config.Snapshot().Lang
			if !d.Lang.Has(code) {
				code = lang.DefaultCode
			}
			msgs, err := messages(code)
			if err != nil {
				return CurrentLang{}, err
			}
			return CurrentLang{Code: code, Messages: msgs}, nil
		}),
		"set": bridge.Func1(func(_ context.Context, code string) (any, error) {
			code = strings.TrimSpace(code)
			if !d.Lang.Has(code) {
				return nil, invalidArgument("%v: %q", lang.ErrUnknownLanguage, code)
			}
			if _, err := d.Config.Update(func(c *config.Config) error {
				c.Lang = code
				return nil
			}); err != nil {
				return nil, err
			}
			d.Events.Broadcast(EventLangChanged, code)
			return nil, nil
		}),
		"messages": bridge.Func1(func(_ context.Context, code string) (map[string]string, error) {
			return messages(strings.TrimSpace(code))
		}),
	}
}
