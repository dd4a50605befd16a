package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"storyforge/internal/api"
	"storyforge/internal/auth"
)

func newAuthCommand(ctx *commandContext) *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the platform sign-in",
	}
	authCmd.AddCommand(newAuthLoginCommand(ctx))
	authCmd.AddCommand(newAuthLogoutCommand(ctx))
	authCmd.AddCommand(newAuthStatusCommand(ctx))
	return authCmd
}

func newAuthLoginCommand(ctx *commandContext) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in through the browser (OAuth2 with PKCE)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			tokens, err := ctx.tokenManager()
			if err != nil {
				return err
			}
			signalCtx, cancel := signalContext(cmd)
			defer cancel()
			if timeout > 0 {
				var timeoutCancel context.CancelFunc
				signalCtx, timeoutCancel = context.WithTimeout(signalCtx, timeout)
				defer timeoutCancel()
			}

			out := cmd.OutOrStdout()
			flow := auth.NewLoginFlow(tokens)
			_, err = auth.LoopbackLogin(signalCtx, flow, cfg.Platform.RedirectURL, func(authURL string) {
				fmt.Fprintln(out, "Open this URL in a browser to sign in:")
				fmt.Fprintln(out)
				fmt.Fprintln(out, "  "+authURL)
				fmt.Fprintln(out)
				fmt.Fprintf(out, "Waiting for the callback on %s ...\n", cfg.Platform.RedirectURL)
			})
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}
			status, err := tokens.Status()
			if err != nil {
				return err
			}
			fmt.Fprintln(out, renderStatusLine("Signed in", statusOK, expiryText(status), shouldColorize(out)))
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Give up waiting for the browser after this long")
	return cmd
}

func newAuthLogoutCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored platform tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			tokens, err := ctx.tokenManager()
			if err != nil {
				return err
			}
			if err := tokens.Logout(); err != nil {
				return fmt.Errorf("logout: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func newAuthStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a platform session is stored",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			tokens, err := ctx.tokenManager()
			if err != nil {
				return err
			}
			status, err := tokens.Status()
			if err != nil {
				return fmt.Errorf("read auth state: %w", err)
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, api.FromAuthStatus(status, cfg.TokenStatePath()))
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			switch {
			case !status.LoggedIn:
				fmt.Fprintln(out, renderStatusLine("Session", statusWarn, "not signed in; run 'storyforge auth login'", colorize))
			case status.Expired:
				fmt.Fprintln(out, renderStatusLine("Session", statusWarn, "access token expired; it refreshes on next use", colorize))
			default:
				fmt.Fprintln(out, renderStatusLine("Session", statusOK, expiryText(status), colorize))
			}
			fmt.Fprintln(out, renderStatusLine("State file", statusInfo, cfg.TokenStatePath(), colorize))
			return nil
		},
	}
}

func expiryText(status auth.Status) string {
	if status.ExpiresAt.IsZero() {
		return "signed in"
	}
	return "access token valid until " + status.ExpiresAt.Local().Format("2006-01-02 15:04")
}
