package mapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"

	"aigcpanel/internal/bridge"
)

func miscTree(reg *bridge.Registry) bridge.Tree {
	return bridge.Tree{
		"uuid": bridge.Func0(func(context.Context) (string, error) {
			return uuid.NewString(), nil
		}),
		"sha256": bridge.Func1(func(_ context.Context, text string) (string, error) {
			sum := sha256.Sum256([]byte(text))
			return hex.EncodeToString(sum[:]), nil
		}),
		"namespaces": bridge.Func0(func(context.Context) ([]string, error) {
			return reg.Namespaces(), nil
		}),
	}
}
