// Package gochannel provides the in-memory pubsub used by single-process
// deployments and tests.
package gochannel

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// System alerts are low-volume; the buffer only needs to absorb a burst of
// delivery failures from one dispatch pass.
const alertBuffer = 256

// CreateChannel creates a GoChannel-based publisher and subscriber for the
// notification queue. Single-process only; alerts buffered here are lost
// on shutdown, which is acceptable for best-effort system alerts.
func CreateChannel(logger watermill.LoggerAdapter) (*gochannel.GoChannel, *gochannel.GoChannel, error) {
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer: alertBuffer,
		},
		logger,
	)

	// GoChannel implements both Publisher and Subscriber on one instance.
	return pubSub, pubSub, nil
}

// CreateTestChannel creates a GoChannel setup for deterministic tests:
// publishes block until the subscriber acks, so a test observes every
// requeue in order.
func CreateTestChannel(logger watermill.LoggerAdapter) (*gochannel.GoChannel, *gochannel.GoChannel, error) {
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            10,
			Persistent:                     true,
			BlockPublishUntilSubscriberAck: true,
		},
		logger,
	)

	return pubSub, pubSub, nil
}
