package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/pulseops/automation/pkg/channels/gochannel"
	"github.com/pulseops/automation/pkg/channels/kafka"
)

// NewPubSub builds the notification transport. "gochannel" serves
// single-process deployments, "kafka" multi-process ones.
func NewPubSub(provider, serviceName string, logger *slog.Logger) (message.Publisher, message.Subscriber, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "", "gochannel":
		return gochannel.CreateChannel(wmLogger)
	case "kafka":
		return kafka.CreateChannel(wmLogger, serviceName)
	default:
		return nil, nil, fmt.Errorf("unsupported pubsub provider: %s", provider)
	}
}
