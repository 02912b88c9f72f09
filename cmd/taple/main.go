package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/taple-project/taple-core-go/config"
	"github.com/taple-project/taple-core-go/identifier"
	"github.com/taple-project/taple-core-go/messages"
	"github.com/taple-project/taple-core-go/model"
	"github.com/taple-project/taple-core-go/node"
	"github.com/taple-project/taple-core-go/observability/logging"
	"github.com/taple-project/taple-core-go/observability/otel"
	"github.com/taple-project/taple-core-go/storage"
)

// noopTransport/noopSink stand in for a real network transport: wiring TCP
// or libp2p framing around messages.TapleMessage is a deployment concern
// outside this exercise's scope, so the process here runs as a
// single-node, transport-less participant until one is supplied.
type noopTransport struct{}

func (noopTransport) Send(ctx context.Context, peer string, msg messages.TapleMessage) error {
	return nil
}

type noopSink struct{}

func (noopSink) IngestEvent(subjectID identifier.Identifier, ev model.Event) error { return nil }

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("TAPLE_ENV"))
	logger := logging.Setup("taple-core", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.TelemetryEndpoint != "" {
		shutdown, err := otel.Init(context.Background(), otel.Config{
			ServiceName: "taple-core",
			Environment: env,
			Endpoint:    cfg.TelemetryEndpoint,
			Insecure:    cfg.TelemetryInsecure,
			Metrics:     true,
			Traces:      true,
		})
		if err != nil {
			logger.Error("failed to init telemetry", slog.Any("error", err))
			os.Exit(1)
		}
		defer shutdown(context.Background())
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	identity, err := node.LoadOrCreateIdentity(cfg)
	if err != nil {
		logger.Error("failed to load identity", slog.Any("error", err))
		os.Exit(1)
	}

	n, err := node.New(cfg, db, identity, noopTransport{}, noopSink{})
	if err != nil {
		logger.Error("failed to wire node", slog.Any("error", err))
		os.Exit(1)
	}

	signerID, err := identity.Public().Identifier()
	if err != nil {
		logger.Error("failed to derive identity", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("node starting", slog.String("identity", signerID.String()), slog.String("listen", cfg.ListenAddress))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	n.Run(ctx)
	fmt.Println("node stopped")
}
