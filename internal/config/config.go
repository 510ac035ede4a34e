// Package config loads the faucet dispatcher's runtime configuration from
// a .env file, environment variables and CLI flags, in that precedence
// order, mirroring the teacher's Load/Validate split.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

// Config holds every recognized configuration option.
type Config struct {
	NumClients         int
	Mnemonic           string
	Port               int
	FaucetGrantAmount  *big.Int
	TransactionTimeout time.Duration
	ProviderURLWS      string
	ProviderURLHTTP    string
	DiscordToken       string
	EnableFunding      bool
}

// Flags describes the CLI surface in terms urfave/cli understands. Each
// flag also reads its environment variable counterpart, so deployments
// that only set environment variables (e.g. via .env) need no CLI
// invocation changes.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "num-clients", EnvVars: []string{"NUM_CLIENTS"}, Value: 10, Usage: "number of sender wallets in the pool"},
		&cli.StringFlag{Name: "mnemonic", EnvVars: []string{"MNEMONIC"}, Usage: "BIP-39 mnemonic wallets are derived from"},
		&cli.IntFlag{Name: "port", EnvVars: []string{"PORT"}, Value: 8111, Usage: "HTTP intake port"},
		&cli.StringFlag{Name: "faucet-grant-amount", EnvVars: []string{"FAUCET_GRANT_AMOUNT"}, Value: "1000000000000000000", Usage: "wei granted per faucet request"},
		&cli.DurationFlag{Name: "transaction-timeout", EnvVars: []string{"TRANSACTION_TIMEOUT"}, Value: 300 * time.Second, Usage: "age at which an in-flight transfer is considered stuck"},
		&cli.StringFlag{Name: "provider-url-ws", EnvVars: []string{"PROVIDER_URL_WS"}, Usage: "WebSocket RPC endpoint for block subscription"},
		&cli.StringFlag{Name: "provider-url-http", EnvVars: []string{"PROVIDER_URL_HTTP"}, Usage: "HTTP RPC endpoint for everything else"},
		&cli.StringFlag{Name: "discord-token", EnvVars: []string{"DISCORD_TOKEN"}, Usage: "enables the Discord front-end when set"},
		&cli.BoolFlag{Name: "enable-funding", EnvVars: []string{"ENABLE_FUNDING"}, Value: true, Usage: "run the bootstrap funding pass"},
	}
}

// LoadDotenv loads a .env file into the process environment if one is
// present, logging and continuing if it is not; CLI flags and environment
// variables set outside the file always win because cli.Flag EnvVars are
// resolved after this call.
func LoadDotenv() {
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file found, using environment variables and flag defaults")
	}
}

// FromCLI builds a Config from a parsed cli.Context.
func FromCLI(c *cli.Context) (*Config, error) {
	amount, ok := new(big.Int).SetString(c.String("faucet-grant-amount"), 10)
	if !ok {
		return nil, fmt.Errorf("faucet-grant-amount must be a valid base-10 integer (got %q)", c.String("faucet-grant-amount"))
	}

	cfg := &Config{
		NumClients:         c.Int("num-clients"),
		Mnemonic:           c.String("mnemonic"),
		Port:               c.Int("port"),
		FaucetGrantAmount:  amount,
		TransactionTimeout: c.Duration("transaction-timeout"),
		ProviderURLWS:      c.String("provider-url-ws"),
		ProviderURLHTTP:    c.String("provider-url-http"),
		DiscordToken:       c.String("discord-token"),
		EnableFunding:      c.Bool("enable-funding"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field for the constraints the scheduler and RPC
// facade rely on.
func (c *Config) Validate() error {
	if c.Mnemonic == "" {
		return errors.New("mnemonic is required")
	}
	if strings.Count(strings.TrimSpace(c.Mnemonic), " ")+1 < 12 {
		return errors.New("mnemonic must be a full BIP-39 phrase of at least 12 words")
	}

	if c.NumClients <= 0 {
		return errors.New("num-clients must be greater than 0")
	}
	if c.NumClients > 10000 {
		return fmt.Errorf("num-clients is too high (max: 10000, got: %d)", c.NumClients)
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535 (got: %d)", c.Port)
	}

	if c.FaucetGrantAmount == nil || c.FaucetGrantAmount.Sign() <= 0 {
		return errors.New("faucet-grant-amount must be a positive integer")
	}

	if c.TransactionTimeout <= 0 {
		return errors.New("transaction-timeout must be greater than 0")
	}

	if c.ProviderURLHTTP == "" {
		return errors.New("provider-url-http is required")
	}
	if !strings.HasPrefix(c.ProviderURLHTTP, "http://") && !strings.HasPrefix(c.ProviderURLHTTP, "https://") {
		return errors.New("provider-url-http must start with http:// or https://")
	}

	if c.ProviderURLWS == "" {
		return errors.New("provider-url-ws is required")
	}
	if !strings.HasPrefix(c.ProviderURLWS, "ws://") && !strings.HasPrefix(c.ProviderURLWS, "wss://") {
		return errors.New("provider-url-ws must start with ws:// or wss://")
	}

	return nil
}
