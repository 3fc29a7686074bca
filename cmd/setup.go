package main

import (
	"context"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/cassette/internal/shared"
)

const redacted = "********"

// Setup writes a config file when none exists and runs the database migrations.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	if _, err := os.Stat(r.configPath); err != nil {
		r.logger.Info("config file not found, creating from template", "path", r.configPath)
		if err := shared.CreateConfigFile(r.configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
		} else if config, err := shared.LoadConfig(r.configPath); err == nil {
			r.config = config
		}
	}

	conf := r.config.Database
	r.logger.Info("initializing database", "path", conf.Path)

	db, err := shared.NewDatabase(conf.Path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, conf.MaxOpenConns, conf.MaxIdleConns)

	r.logger.Info("running database migrations")
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	r.logger.Infof("setup complete for database: %v", conf.Path)
	return r.writePlain("✓ Database ready at %s\n", conf.Path)
}

// ConfigInit writes the default config file. It refuses to overwrite an existing one.
func (r *Runner) ConfigInit(ctx context.Context, cmd *cli.Command) error {
	if r.configPath == "" {
		return fmt.Errorf("%w: config path", shared.ErrMissingArgument)
	}
	if err := shared.CreateConfigFile(r.configPath); err != nil {
		return err
	}
	return r.writePlain("✓ Config written to %s\n", r.configPath)
}

// ConfigShow prints the effective configuration, including environment overrides.
// Secrets are masked.
func (r *Runner) ConfigShow(ctx context.Context, cmd *cli.Command) error {
	conf := *r.config
	if conf.Services.APIToken != "" {
		conf.Services.APIToken = redacted
	}
	if conf.KV.RedisPassword != "" {
		conf.KV.RedisPassword = redacted
	}
	if err := toml.NewEncoder(r.output).Encode(conf); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}
