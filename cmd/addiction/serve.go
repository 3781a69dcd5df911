package main

import (
	"github.com/spf13/cobra"

	"github.com/Vogeltak/reading-addiction/internal/common"
	"github.com/Vogeltak/reading-addiction/internal/server"
)

func newServeCmd(c *cli) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the reading list in a browser",
		RunE: func(cmd *cobra.Command, args []string) error {
			common.ApplyFlagOverrides(c.config, "", port)
			common.PrintBanner()

			c.logger.Info().
				Str("host", c.config.Server.Host).
				Int("port", c.config.Server.Port).
				Str("db", c.config.Storage.Badger.Path).
				Msg("Starting reader")

			return server.New(c.app).Run(cmd.Context())
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Server port (overrides config)")
	return cmd
}
