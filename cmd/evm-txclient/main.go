package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/84hero/evm-txclient/pkg/config"
	"github.com/84hero/evm-txclient/pkg/rpc"
	"github.com/84hero/evm-txclient/pkg/transport"
)

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Usage:   "core config file (project, rpc_nodes, client)",
		Value:   "config.yaml",
		EnvVars: []string{"CONFIG_FILE"},
	}
	appConfigFlag = &cli.StringFlag{
		Name:    "app-config",
		Usage:   "log export config file (filters, outputs)",
		Value:   "app.yaml",
		EnvVars: []string{"APP_CONFIG_FILE"},
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := Run(ctx, os.Args); err != nil && !errors.Is(err, context.Canceled) {
		log.Crit("Application failed", "err", err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "evm-txclient",
		Usage: "query EVM nodes, export logs and submit transactions",
		Flags: []cli.Flag{configFlag, appConfigFlag},
		Before: func(c *cli.Context) error {
			setupLogging(os.Stderr, "info", "text")
			return nil
		},
		Commands: []*cli.Command{
			logsCommand,
			sendCommand,
			balanceCommand,
			gasPriceCommand,
			receiptCommand,
		},
	}
}

// Run is the testable entry point of the CLI application
func Run(ctx context.Context, args []string) error {
	return newApp().RunContext(ctx, args)
}

func logLevel(name string) slog.Level {
	switch name {
	case "trace":
		return log.LevelTrace
	case "debug":
		return log.LevelDebug
	case "warn":
		return log.LevelWarn
	case "error":
		return log.LevelError
	case "crit":
		return log.LevelCrit
	default:
		return log.LevelInfo
	}
}

func setupLogging(w *os.File, level, format string) {
	lvl := logLevel(level)
	if format == "json" {
		log.SetDefault(log.NewLogger(log.JSONHandlerWithLevel(w, lvl)))
		return
	}
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(w, lvl, true)))
}

// session is the per-command client stack built from the core config.
type session struct {
	cfg    *config.Config
	client *rpc.Client
}

func openSession(c *cli.Context) (*session, error) {
	cfg, err := config.Load(c.String(configFlag.Name))
	if err != nil {
		return nil, err
	}
	setupLogging(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	pool, err := transport.NewPool(c.Context, cfg.NodeConfigs(), cfg.Client.SyncInterval)
	if err != nil {
		return nil, err
	}

	var opts []rpc.Option
	if n, ok := cfg.Client.Network(); ok {
		opts = append(opts, rpc.WithNetwork(n))
	}
	client := rpc.NewClient(c.Context, pool, opts...)
	log.Debug("Client ready", "project", cfg.Project, "network", client.Network(), "nodes", len(pool.Nodes()))
	return &session{cfg: cfg, client: client}, nil
}

func (s *session) Close() {
	s.client.Close()
}
