// ChainAuth - Blockchain-anchored authentication broker
// Copyright (C) 2025 ChainAuth
//
// This file is part of ChainAuth.
//
// ChainAuth is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// ChainAuth is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with ChainAuth. If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/chainauth/broker/internal/config"
	"github.com/chainauth/broker/internal/logging"
	"github.com/chainauth/broker/pkg/broker"
)

var (
	serveConfigPath string
	serveEnvFile    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the broker's widget/authenticator WebSocket listener",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "config.yaml", "path to the broker's YAML config file")
	serveCmd.Flags().StringVar(&serveEnvFile, "env-file", ".env", "path to a .env file merged into the process environment")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(config.LoaderOptions{ConfigPath: serveConfigPath, EnvFile: serveEnvFile})
	if err != nil {
		return err
	}

	logger := logging.New("broker", cfg.Logging.Level, cfg.Logging.Format)

	registry, err := config.BuildRegistry(ctx, cfg)
	if err != nil {
		return err
	}

	opts, err := config.BrokerOptions(cfg)
	if err != nil {
		return err
	}
	opts.Registry = registry
	opts.OnSuccess = defaultOnSuccess

	b, err := broker.New(opts, logger)
	if err != nil {
		return err
	}

	logger.WithFields(nil).Infof("starting broker on port %d (chain backend: %s)", opts.Port, cfg.Chain.Backend)
	err = b.ListenAndServe(ctx)
	if err != nil && ctx.Err() != nil {
		// Shutdown was triggered by the signal context, not a listener failure.
		return nil
	}
	return err
}

// defaultOnSuccess is a placeholder OnSuccess: it mints an opaque UUID as
// the widget's token without performing any relying-party authorization.
// A real deployment must supply its own OnSuccess (see pkg/broker.Options);
// this default only exists so `broker serve` is runnable standalone.
func defaultOnSuccess(ctx context.Context, in broker.SuccessInput) (broker.SuccessOutput, error) {
	return broker.SuccessOutput{Token: uuid.NewString()}, nil
}
