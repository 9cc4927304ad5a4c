package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"carecal/internal/platform"
	"carecal/internal/worker"
	"carecal/pkg/config"
	"carecal/pkg/kafka"
	kafka_middleware "carecal/pkg/kafka/middleware"

	"github.com/spf13/cobra"
)

const ServiceName = "worker"

func main() {
	rootCmd := &cobra.Command{
		Use:   "worker",
		Short: "Background jobs for provider calendars",
	}

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(materializeCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(purgeCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the periodic jobs and the rule event consumer until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return withPlatform(func(cfg *config.Config, p *platform.Platform) error {
				return run(ctx, cfg, p)
			})
		},
	}
}

func materializeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "materialize",
		Short: "Materialize one rule's full booking horizon",
		RunE: func(cmd *cobra.Command, args []string) error {
			ruleID, _ := cmd.Flags().GetString("rule")
			return withPlatform(func(cfg *config.Config, p *platform.Platform) error {
				res, err := p.Rules.MaterializeHorizon(cmd.Context(), ruleID)
				if err != nil {
					return err
				}
				cfg.Log.Info("Rule materialized",
					"rule_id", ruleID,
					"created", res.Created,
					"existing", res.Existing,
					"disabled", res.Disabled,
					"deleted", res.Deleted,
				)
				return nil
			})
		},
	}
	cmd.Flags().String("rule", "", "availability rule ID")
	_ = cmd.MarkFlagRequired("rule")
	return cmd
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Extend every active rule to its booking horizon once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlatform(func(cfg *config.Config, p *platform.Platform) error {
				return worker.New(p.Rules, p.Slots, cfg).Sweep(cmd.Context())
			})
		},
	}
}

func purgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete expired rules and old cancelled slots once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlatform(func(cfg *config.Config, p *platform.Platform) error {
				return worker.New(p.Rules, p.Slots, cfg).Purge(cmd.Context())
			})
		},
	}
}

func withPlatform(fn func(cfg *config.Config, p *platform.Platform) error) error {
	cfg := config.Load(ServiceName)
	defer cfg.GracefulShutdown()

	p, err := platform.New(cfg, ServiceName)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	defer p.Close(ctx)

	if err := fn(cfg, p); err != nil {
		cfg.Log.Error("Command failed", "error", err)
		return err
	}
	return nil
}

func run(ctx context.Context, cfg *config.Config, p *platform.Platform) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := worker.New(p.Rules, p.Slots, cfg)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.Run(ctx)
	}()

	err := consumeRuleEvents(ctx, cfg, p, w)
	if err != nil {
		cancel()
	}
	wg.Wait()
	return err
}

// consumeRuleEvents blocks until ctx is cancelled. Without Kafka it just waits.
func consumeRuleEvents(ctx context.Context, cfg *config.Config, p *platform.Platform, w *worker.Worker) error {
	if p.Kafka == nil {
		<-ctx.Done()
		return nil
	}

	consumer, err := kafka.NewConsumer(p.Kafka, cfg.Log, p.Kafka.RuleEventsTopic, p.Kafka.WorkerGroupID, w.HandleRuleEvent)
	if err != nil {
		return err
	}
	defer func() {
		if err := consumer.Close(); err != nil {
			cfg.Log.Error("Failed to close consumer", "error", err)
		}
	}()

	if p.Kafka.EnableMiddleware {
		consumer.Use(kafka_middleware.LoggingConsumerMiddleware(cfg.Log))
		consumer.Use(p.Metrics.ConsumerMiddleware())
	}

	cfg.Log.Info("Consuming rule events", "topic", p.Kafka.RuleEventsTopic, "group_id", p.Kafka.WorkerGroupID)
	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
