package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"storyforge/internal/auth"
	"storyforge/internal/logging"
	"storyforge/internal/server"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the StoryForge HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if bind != "" {
				cfg.Server.Bind = bind
			}
			svc, tokens, err := ctx.service()
			if err != nil {
				return err
			}
			logger := ctx.log()
			if cfg.Server.APIToken == "" {
				logging.WarnWithContext(logger, "api token not configured", "server_unauthenticated",
					logging.Hint("set server.api_token or STORYFORGE_API_TOKEN"),
					logging.Impact("any local process can upload to the playlist"),
				)
			}

			signalCtx, cancel := signalContext(cmd)
			defer cancel()

			srv := server.New(cfg, svc, auth.NewLoginFlow(tokens), tokens, logger)
			fmt.Fprintf(cmd.OutOrStdout(), "Serving on %s (Ctrl+C to stop)\n", cfg.Server.Bind)
			return srv.Run(signalCtx)
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "Override server.bind")
	return cmd
}
