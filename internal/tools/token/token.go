// Package token mints bearer tokens for race API callers.
package token

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/louisbranch/raceline/internal/auth"
	entrypoint "github.com/louisbranch/raceline/internal/platform/cmd"
)

// Config holds configuration for token minting.
type Config struct {
	Secret   string        `env:"RACELINE_AUTH_SECRET"`
	Identity string        `env:"RACELINE_TOKEN_IDENTITY"`
	TTL      time.Duration `env:"RACELINE_TOKEN_TTL" envDefault:"24h"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Secret, "secret", cfg.Secret, "Signing secret shared with the server")
	fs.StringVar(&cfg.Identity, "identity", cfg.Identity, "Caller identity to embed in the token")
	fs.DurationVar(&cfg.TTL, "ttl", cfg.TTL, "Token lifetime")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run mints the token and writes it to out.
func Run(cfg Config, out io.Writer) error {
	if out == nil {
		return errors.New("output is required")
	}
	if cfg.Identity == "" {
		return errors.New("identity is required")
	}
	authn, err := auth.New([]byte(cfg.Secret))
	if err != nil {
		return err
	}
	token, err := authn.Mint(cfg.Identity, cfg.TTL)
	if err != nil {
		return fmt.Errorf("mint token: %w", err)
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
