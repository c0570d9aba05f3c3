package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap/zapcore"

	"github.com/jthadison/tmt-sub003/internal/config"
	"github.com/jthadison/tmt-sub003/internal/engine"
	enginev1 "github.com/jthadison/tmt-sub003/internal/engine/engine_v1"
	"github.com/jthadison/tmt-sub003/internal/logger"
)

func main() {
	cmd := &cli.Command{
		Name:  "engined",
		Usage: "Order execution engine daemon",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Start the engine and serve until interrupted",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "config",
						Aliases:  []string{"c"},
						Usage:    "Path to the engine configuration file",
						Value:    "config.yaml",
						Required: false,
					},
				},
				Action: runAction,
			},
			{
				Name:   "schema",
				Usage:  "Print the configuration JSON schema and exit",
				Action: schemaAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

// runAction loads the configuration, assembles the engine, and runs it until
// the process receives an interrupt.
func runAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	level, err := zapcore.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
	}

	appLogger, err := logger.NewLoggerWithLevel(level)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = appLogger.Sync() }()

	eng, err := enginev1.NewExecutionEngineV1(cfg, appLogger)
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}
	defer func() { _ = eng.Close() }()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Stop the engine on interrupt so resting orders and the journal shut
	// down cleanly.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, stopping...")
		cancel()
	}()

	if cfg.Ops.Enabled {
		ops := newOpsServer(eng, appLogger)
		if err := ops.Start(cfg.Ops.Listen); err != nil {
			return err
		}
		defer func() { _ = ops.Stop() }()
	}

	if err := eng.Run(runCtx); err != nil {
		if err == context.Canceled {
			fmt.Println("Engine stopped")
			return nil
		}

		return fmt.Errorf("engine error: %w", err)
	}

	return nil
}

// schemaAction prints the configuration schema so deployments can validate
// their files before rollout.
func schemaAction(_ context.Context, _ *cli.Command) error {
	schema, err := engine.GetConfigSchema()
	if err != nil {
		return fmt.Errorf("failed to build schema: %w", err)
	}

	fmt.Println(schema)

	return nil
}
