// Package gochannel provides the in-process watermill transport for workspace events.
package gochannel

import (
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const outputBuffer = 256

// CreateChannel returns a GoChannel pub/sub. The same instance is both the
// publisher and the subscriber.
func CreateChannel(logger *slog.Logger) (*gochannel.GoChannel, *gochannel.GoChannel) {
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            outputBuffer,
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: false,
		},
		watermillLogger(logger),
	)

	return pubSub, pubSub
}

// CreateBlockingChannel returns a GoChannel pub/sub whose Publish waits until
// every subscriber acknowledged the message, so events are observed in order.
func CreateBlockingChannel(logger *slog.Logger) (*gochannel.GoChannel, *gochannel.GoChannel) {
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: true,
		},
		watermillLogger(logger),
	)

	return pubSub, pubSub
}

func watermillLogger(logger *slog.Logger) watermill.LoggerAdapter {
	if logger == nil {
		return watermill.NopLogger{}
	}

	return watermill.NewSlogLogger(logger)
}
