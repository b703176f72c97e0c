package cmd

import (
	"log/slog"

	"github.com/dukex/agentbundle/pkg/channels/gochannel"
	"github.com/dukex/agentbundle/pkg/eventbus"
)

// NewEventBus returns the workspace event bus for provider: "memory" or
// "gochannel".
func NewEventBus(provider string, logger *slog.Logger) eventbus.EventBus {
	switch provider {
	case "", "memory":
		return eventbus.NewMemoryEventBus()
	case "gochannel":
		pub, sub := gochannel.CreateBlockingChannel(logger)

		return eventbus.NewWatermillEventBus(pub, sub)
	default:
		panic("Unsupported event bus provider: " + provider)
	}
}
