// Command wpys-server serves the WPS HTTP transport surface over the
// same Broker/ResultBackend/Registry a wpys-worker process drains.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/opengeo/wpys-go/internal/config"
	"github.com/opengeo/wpys-go/internal/dispatcher"
	"github.com/opengeo/wpys-go/internal/httpapi"
	"github.com/opengeo/wpys-go/internal/logger"
	"github.com/opengeo/wpys-go/internal/metrics"
	"github.com/opengeo/wpys-go/internal/processes/sample"
	"github.com/opengeo/wpys-go/internal/registry"
	"github.com/opengeo/wpys-go/internal/tracing"
	"github.com/opengeo/wpys-go/internal/wiring"
)

func main() {
	app := &cli.App{
		Name:  "wpys-server",
		Usage: "serve the WPS HTTP transport surface",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to the YAML config file (overrides WPYS_CONFIG_FILE)"},
			&cli.StringFlag{Name: "addr", Value: ":8080", Usage: "HTTP listen address"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "wpys-server:", err)
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

	shutdownTracing, err := tracing.Setup(c.Context, "wpys-server", cfg.PrettyPrint)
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

	d := dispatcher.New(reg, b, backend, cfg, m)
	router := httpapi.NewRouter(d, reg, cfg, log)

	log.Info("server starting", "addr", c.String("addr"), "endpoint", cfg.MainEndpointName)
	return router.Run(c.String("addr"))
}
