// Command wpys-worker loads configuration, wires the
// Broker/ResultBackend/Registry, and enters the worker loop. Exit
// code 0 on clean shutdown, non-zero on a configuration error.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/opengeo/wpys-go/internal/config"
	"github.com/opengeo/wpys-go/internal/logger"
	"github.com/opengeo/wpys-go/internal/metrics"
	"github.com/opengeo/wpys-go/internal/processes/sample"
	"github.com/opengeo/wpys-go/internal/registry"
	"github.com/opengeo/wpys-go/internal/tracing"
	"github.com/opengeo/wpys-go/internal/worker"
	"github.com/opengeo/wpys-go/internal/wiring"
)

func main() {
	app := &cli.App{
		Name:  "wpys-worker",
		Usage: "run the WPS job execution worker loop",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to the YAML config file (overrides WPYS_CONFIG_FILE)"},
			&cli.IntFlag{Name: "pool-size", Value: 4, Usage: "bounded worker-thread pool size for sync-function process bodies"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "wpys-worker:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	log, err := logger.New(os.Getenv("LOG_MODE"))
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	shutdownTracing, err := tracing.Setup(c.Context, "wpys-worker", cfg.PrettyPrint)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	m := metrics.New(prometheus.DefaultRegisterer)

	b, closeBroker, err := wiring.NewBroker(cfg, log)
	if err != nil {
		return fmt.Errorf("init broker: %w", err)
	}
	defer closeBroker()

	backend, closeBackend, err := wiring.NewResultBackend(cfg)
	if err != nil {
		return fmt.Errorf("init result backend: %w", err)
	}
	defer closeBackend()

	reg := registry.New()
	if err := sample.RegisterAll(reg); err != nil {
		return fmt.Errorf("register processes: %w", err)
	}

	w := worker.New(b, reg, backend, log, m, c.Int("pool-size"))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info("worker starting", "broker_type", cfg.BrokerType, "result_backend_type", cfg.ResultBackendType)
	return w.Run(ctx)
}
