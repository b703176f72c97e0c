// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"

	"github.com/dukex/agentbundle/pkg/registry"
	"github.com/dukex/agentbundle/pkg/tools/httprequest"
	logtool "github.com/dukex/agentbundle/pkg/tools/log"
)

func registerNativeTools(reg *registry.Registry) {
	for _, tool := range []registry.Tool{httprequest.New(), logtool.New()} {
		if err := reg.Register(tool); err != nil {
			panic(err)
		}
	}
}

// NewRegistry returns the tool registry offered to agents.
func NewRegistry(log *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(log)

	registerNativeTools(reg)

	return reg
}
