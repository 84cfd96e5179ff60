package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tinnou/graphom/pkg/config"
	"github.com/tinnou/graphom/pkg/observability"
	neo4jstore "github.com/tinnou/graphom/store/neo4j"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "graphom",
		Short:        "Object-graph mapping toolkit for Neo4j",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	root.AddCommand(newPingCmd(&configPath))
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the graphom version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func newPingCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Verify connectivity to the configured graph store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger, err := observability.NewLogger(cfg.Environment, cfg.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			st, err := neo4jstore.New(neo4jstore.Config{
				URI:                     cfg.Store.URI,
				Username:                cfg.Store.Username,
				Password:                cfg.Store.Password,
				Database:                cfg.Store.Database,
				MaxConnectionPoolSize:   cfg.Store.MaxConnectionPoolSize,
				ConnectionTimeout:       cfg.Store.ConnectionTimeout,
				MaxTransactionRetryTime: cfg.Store.MaxTransactionRetryTime,
			}, neo4jstore.WithLogger(logger))
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			if err := st.Connect(ctx); err != nil {
				return err
			}
			defer st.Close(ctx) //nolint:errcheck

			if err := st.Ping(ctx); err != nil {
				return err
			}
			logger.Info("store is reachable", zap.String("uri", cfg.Store.URI))
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}
