// Package cli implements the ditto-bulk subcommands.
package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/redis/go-redis/v9"

	"github.com/twinforge/ditto-bulk/pkg/client"
	"github.com/twinforge/ditto-bulk/pkg/config"
	"github.com/twinforge/ditto-bulk/pkg/logging"
	"github.com/twinforge/ditto-bulk/pkg/progress"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	failColor = color.New(color.FgRed, color.Bold)
)

// setup loads the environment configuration, initializes logging, and
// builds the Ditto client. Every subcommand starts here.
func setup() (config.Config, *client.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: true,
		Output: os.Stderr,
	})

	clientCfg := client.Config{
		BaseURL:  cfg.DittoURL,
		Username: cfg.Username,
		Password: cfg.Password,
		Timeout:  cfg.RequestTimeout,
	}
	if cfg.RedisURL != "" {
		clientCfg.Redis = redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
	}

	c, err := client.New(clientCfg)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("create client: %w", err)
	}
	return cfg, c, nil
}

// consoleReporter returns a progress reporter on stderr so progress lines
// never mix with parseable stdout output.
func consoleReporter() progress.Reporter {
	return progress.NewConsole(os.Stderr)
}
