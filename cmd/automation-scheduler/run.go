package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"

	"github.com/pulseops/automation/pkg/channels/webhook"
	"github.com/pulseops/automation/pkg/cmd"
	"github.com/pulseops/automation/pkg/directory"
	"github.com/pulseops/automation/pkg/dispatch"
	"github.com/pulseops/automation/pkg/engine"
	"github.com/pulseops/automation/pkg/notify"
	"github.com/pulseops/automation/pkg/otelhelper"
	"github.com/pulseops/automation/pkg/protocol"
	"github.com/pulseops/automation/pkg/rules"
	"github.com/pulseops/automation/pkg/scheduler"
	"github.com/pulseops/automation/pkg/triggers/queue"
)

// run wires the full scheduling stack and blocks until shutdown.
func run(ctx context.Context, command *cli.Command, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger.InfoContext(ctx, "Initializing automation scheduler")

	tracerProvider, err := otelhelper.InitTracer(ctx, "automation-scheduler")
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}

	defer func() {
		if err := tracerProvider.Shutdown(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
		}
	}()

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := persistence.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	sender := webhook.NewSender(command.String("gateway-url"), command.String("gateway-api-key"), nil)

	var resolver protocol.DirectoryResolver = directory.NewStatic(nil, nil)

	if path := command.String("directory-path"); path != "" {
		resolver, err = directory.Load(path)
		if err != nil {
			return err
		}
	}

	publisher, subscriber, err := cmd.NewPubSub(command.String("pubsub"), "automation-scheduler", logger)
	if err != nil {
		return err
	}

	notifications := notify.NewQueue(
		publisher, subscriber, sender, nil,
		nil, command.StringSlice("alert-recipient"),
		logger,
	)

	go func() {
		if err := notifications.Run(ctx); err != nil {
			logger.ErrorContext(ctx, "Notification queue stopped", "error", err)
		}
	}()

	reg := cmd.NewRegistry(logger, sender, cmd.NewNoopRecordStore(logger), nil, nil)

	eng := engine.NewEngine(persistence, reg, nil, notifications, logger)
	dispatcher := dispatch.NewDispatcher(persistence, sender, resolver, nil, notifications, logger)
	ruleEngine := rules.NewEngine(persistence, eng, nil, logger)

	sched := scheduler.NewScheduler(persistence, eng, dispatcher, nil, command.Duration("poll-interval"), logger)
	if err := sched.Start(ctx); err != nil {
		return err
	}

	defer func() {
		if err := sched.Stop(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to stop scheduler", "error", err)
		}
	}()

	if queueName := command.String("event-queue"); queueName != "" {
		trigger, err := queue.NewTrigger(queueName, map[string]string{
			"addr": command.String("redis-addr"),
		}, logger)
		if err != nil {
			return err
		}

		err = trigger.Start(ctx, func(ctx context.Context, eventData map[string]any) error {
			_, err := ruleEngine.EvaluateAll(ctx, eventData)

			return err
		})
		if err != nil {
			return err
		}

		defer func() {
			if err := trigger.Stop(ctx); err != nil {
				logger.ErrorContext(ctx, "Failed to stop event trigger", "error", err)
			}
		}()
	}

	logger.InfoContext(ctx, "Automation scheduler started")

	waitForShutdown(ctx, logger)

	return nil
}

func waitForShutdown(ctx context.Context, logger *slog.Logger) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-signals:
		logger.Info("Received signal, shutting down", "signal", sig)
	case <-ctx.Done():
	}
}
