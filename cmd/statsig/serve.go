package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hed1ad/gostatsig/internal/api"
	"github.com/hed1ad/gostatsig/pkg/io/sqlstore"
)

func newServeCmd(root *rootFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the detection HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(root)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var store *sqlstore.Store
			if cfg.Output.DBDriver != "" {
				if store, err = sqlstore.Open(ctx, cfg.Output.DBDriver, cfg.Output.DBDSN); err != nil {
					return err
				}
				defer store.Close()
				log.Info().Str("driver", cfg.Output.DBDriver).Msg("persistence enabled")
			}

			return api.New(cfg, log.With().Str("component", "api").Logger(), store).ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	return cmd
}
