// Command faucet runs the parallel Ethereum faucet dispatcher: it
// bootstraps a pool of sender wallets from a mnemonic, then serves grant
// requests from an HTTP endpoint (and optionally Discord) by dispatching
// transfers across whichever wallets are idle and funded.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gethlog "github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/ethfaucet/faucet-dispatcher/internal/api"
	"github.com/ethfaucet/faucet-dispatcher/internal/chain"
	"github.com/ethfaucet/faucet-dispatcher/internal/config"
	"github.com/ethfaucet/faucet-dispatcher/internal/discordbot"
	"github.com/ethfaucet/faucet-dispatcher/internal/scheduler"
)

// version is stamped at build time via -ldflags; it defaults to "dev" for
// local builds.
var version = "dev"

// shutdownGracePeriod bounds how long the HTTP server waits for in-flight
// requests to finish on SIGTERM/SIGINT before closing remaining
// connections.
const shutdownGracePeriod = 5 * time.Second

func main() {
	config.LoadDotenv()

	app := &cli.App{
		Name:  "faucet",
		Usage: "parallel Ethereum faucet dispatcher",
		Flags: config.Flags(),
		Action: func(c *cli.Context) error {
			return run(c)
		},
	}

	if err := app.Run(os.Args); err != nil {
		gethlog.Crit("faucet exited with error", "err", err)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.FromCLI(c)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client, err := chain.NewEthClient(ctx, cfg.ProviderURLHTTP, cfg.ProviderURLWS)
	if err != nil {
		return fmt.Errorf("failed to initialize chain client: %w", err)
	}

	sched := scheduler.New(client, scheduler.Config{
		Mnemonic:           cfg.Mnemonic,
		NumWallets:         cfg.NumClients,
		EnableFunding:      cfg.EnableFunding,
		FaucetGrantAmount:  cfg.FaucetGrantAmount,
		TransactionTimeout: cfg.TransactionTimeout,
	})

	if cfg.DiscordToken != "" {
		bot, err := discordbot.New(cfg.DiscordToken, sched)
		if err != nil {
			return fmt.Errorf("failed to initialize discord bot: %w", err)
		}
		if err := bot.Start(); err != nil {
			return fmt.Errorf("failed to start discord bot: %w", err)
		}
		defer bot.Close()
		gethlog.Info("discord front-end enabled")
	}

	server := api.NewServer(sched, version)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: server.Router(),
	}
	go func() {
		gethlog.Info("http intake listening", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			gethlog.Error("http server failed", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	return sched.Run(ctx)
}
