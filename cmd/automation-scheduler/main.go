package main

import (
	"context"
	"os"
	"time"

	"github.com/pulseops/automation/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	logger := log.WithModule("scheduler")

	cmd := &cli.Command{
		Name:                  "automation-scheduler",
		Usage:                 "Run the workflow automation scheduler and dispatchers",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (postgres:// or a file path)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "gateway-url",
				Usage:    "HTTP message gateway endpoint for channel sends",
				Required: true,
				Sources:  cli.EnvVars("GATEWAY_URL"),
			},
			&cli.StringFlag{
				Name:    "gateway-api-key",
				Usage:   "Bearer token for the message gateway",
				Sources: cli.EnvVars("GATEWAY_API_KEY"),
			},
			&cli.StringFlag{
				Name:    "directory-path",
				Usage:   "Path to the JSON contact directory",
				Sources: cli.EnvVars("DIRECTORY_PATH"),
			},
			&cli.StringFlag{
				Name:    "pubsub",
				Usage:   "Notification transport (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("PUBSUB_PROVIDER"),
			},
			&cli.StringFlag{
				Name:    "event-queue",
				Usage:   "Redis list to consume business events from (empty disables)",
				Sources: cli.EnvVars("EVENT_QUEUE"),
			},
			&cli.StringFlag{
				Name:    "redis-addr",
				Usage:   "Redis address for the event queue",
				Value:   "localhost:6379",
				Sources: cli.EnvVars("REDIS_ADDR"),
			},
			&cli.StringSliceFlag{
				Name:    "alert-recipient",
				Usage:   "Recipient address for internal system alerts (repeatable)",
				Sources: cli.EnvVars("ALERT_RECIPIENTS"),
			},
			&cli.DurationFlag{
				Name:    "poll-interval",
				Usage:   "Scheduler poll interval",
				Value:   time.Minute,
				Sources: cli.EnvVars("POLL_INTERVAL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			return run(ctx, command, logger)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logger.Error("Scheduler terminated", "error", err)
		os.Exit(1)
	}
}
