package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cometbft/cometbft/abci/server"
	"github.com/urfave/cli/v3"

	"onchainrps/internal/app"
	"onchainrps/internal/config"
)

func runStart(_ context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	a, err := app.New(cmd.String("home"), cfg.Params())
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	srv, err := server.NewServer(cmd.String("addr"), cmd.String("transport"), a)
	if err != nil {
		return fmt.Errorf("create abci server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("start abci server: %w", err)
	}
	defer func() { _ = srv.Stop() }()

	// Wait for signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "rpsd",
		Usage: "commit-reveal rock-paper-scissors match chain",
		Commands: []*cli.Command{
			{
				Name:   "start",
				Usage:  "run the ABCI application server",
				Action: runStart,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "home",
						Value:   ".rps",
						Usage:   "app home directory (state is stored under <home>/app)",
						Sources: cli.EnvVars("RPSD_HOME"),
					},
					&cli.StringFlag{
						Name:    "addr",
						Value:   "tcp://127.0.0.1:26658",
						Usage:   "ABCI listen address",
						Sources: cli.EnvVars("RPSD_ADDR"),
					},
					&cli.StringFlag{
						Name:    "transport",
						Value:   "socket",
						Usage:   "ABCI transport (socket|grpc)",
						Sources: cli.EnvVars("RPSD_TRANSPORT"),
					},
					&cli.StringFlag{
						Name:    "config",
						Value:   "",
						Usage:   "path to YAML genesis options (admin, stake bounds, timeout)",
						Sources: cli.EnvVars("RPSD_CONFIG"),
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "rpsd: %v\n", err)
		os.Exit(1)
	}
}
