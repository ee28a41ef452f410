// Package server parses server command flags and starts the race API.
package server

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/louisbranch/raceline/internal/auth"
	entrypoint "github.com/louisbranch/raceline/internal/platform/cmd"
	"github.com/louisbranch/raceline/internal/race/dice"
	"github.com/louisbranch/raceline/internal/race/domain"
	"github.com/louisbranch/raceline/internal/race/service"
	"github.com/louisbranch/raceline/internal/race/storage/sqlite"
	"github.com/louisbranch/raceline/internal/web"
)

// Config holds server command configuration.
type Config struct {
	Port       int    `env:"RACELINE_PORT" envDefault:"8080"`
	Addr       string `env:"RACELINE_ADDR"`
	DBPath     string `env:"RACELINE_DB_PATH" envDefault:"raceline.db"`
	AuthSecret string `env:"RACELINE_AUTH_SECRET"`
	Operator   string `env:"RACELINE_OPERATOR"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The server port")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The server listen address (overrides -port)")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to the sqlite database file")
	fs.StringVar(&cfg.Operator, "operator", cfg.Operator, "Identity allowed to fund accounts")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the race API service.
func Run(ctx context.Context, cfg Config) error {
	if cfg.AuthSecret == "" {
		return fmt.Errorf("RACELINE_AUTH_SECRET is required")
	}

	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceServer, func(ctx context.Context) error {
		logger := zerolog.New(os.Stderr).With().
			Timestamp().
			Str("service", entrypoint.ServiceServer).
			Logger()

		store, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error().Err(err).Msg("close store")
			}
		}()

		roller, err := dice.NewRoller(nil, domain.DiceSides)
		if err != nil {
			return fmt.Errorf("new roller: %w", err)
		}

		authn, err := auth.New([]byte(cfg.AuthSecret))
		if err != nil {
			return fmt.Errorf("new authenticator: %w", err)
		}

		svc := service.New(store, roller, logger)
		handler := web.NewHandler(svc, authn, cfg.Operator, logger)

		addr := cfg.Addr
		if addr == "" {
			addr = fmt.Sprintf(":%d", cfg.Port)
		}
		return web.NewServer(addr, handler.Routes(), logger).Run(ctx)
	})
}
