package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/phrazzld/taskline/internal/config"
	"github.com/phrazzld/taskline/internal/service/auth"
)

// options shared by every subcommand
type rootOptions struct {
	configFile string
	noColor    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "token-generator",
		Short: "Issue and inspect taskline API tokens",
		Long: `token-generator signs bearer tokens with the server's JWT secret.

The secret is read the same way the server reads it: from config.yaml in the
working directory, the file given by --config, or TASKLINE_AUTH_JWT_SECRET.

Examples:
  # Token allowed to submit, cancel and watch jobs
  token-generator issue --subject ops

  # Read-only token, printed without decoration
  token-generator issue --subject dashboard --scope jobs:read --raw

  # Inspect a token
  token-generator verify <token>`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor {
				color.NoColor = true
			}
		},
	}

	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "path to a YAML config file")
	root.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	root.AddCommand(newIssueCmd(opts))
	root.AddCommand(newVerifyCmd(opts))
	return root
}

func newIssueCmd(opts *rootOptions) *cobra.Command {
	var (
		subject string
		scopes  []string
		raw     bool
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a signed token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkScopes(scopes); err != nil {
				return err
			}
			tokens, err := loadTokenService(opts)
			if err != nil {
				return err
			}

			token, err := tokens.GenerateToken(cmd.Context(), subject, scopes...)
			if err != nil {
				return fmt.Errorf("failed to generate token: %w", err)
			}
			if raw {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
				return err
			}

			claims, err := tokens.ValidateToken(cmd.Context(), token)
			if err != nil {
				return fmt.Errorf("generated token does not validate: %w", err)
			}
			printClaims(cmd.OutOrStdout(), claims)
			label := color.New(color.FgCyan, color.Bold)
			label.Fprintln(cmd.OutOrStdout(), "Token:")
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVarP(&subject, "subject", "s", "cli", "subject the token is issued to")
	cmd.Flags().StringSliceVar(&scopes, "scope", []string{auth.ScopeJobsRead, auth.ScopeJobsWrite},
		"scopes to grant (repeatable)")
	cmd.Flags().BoolVar(&raw, "raw", false, "print only the token")
	return cmd
}

func newVerifyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <token>",
		Short: "Validate a token and print its claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tokens, err := loadTokenService(opts)
			if err != nil {
				return err
			}

			claims, err := tokens.ValidateToken(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				color.New(color.FgRed, color.Bold).Fprintln(cmd.ErrOrStderr(), "Invalid token:", err)
				return err
			}
			color.New(color.FgGreen, color.Bold).Fprintln(cmd.OutOrStdout(), "Valid token")
			printClaims(cmd.OutOrStdout(), claims)
			return nil
		},
	}
}

func loadTokenService(opts *rootOptions) (auth.TokenService, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.configFile != "" {
		cfg, err = config.LoadFile(opts.configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return auth.NewTokenService(cfg.Auth)
}

func checkScopes(scopes []string) error {
	if len(scopes) == 0 {
		return fmt.Errorf("at least one scope is required")
	}
	for _, s := range scopes {
		if s != auth.ScopeJobsRead && s != auth.ScopeJobsWrite {
			return fmt.Errorf("unknown scope %q, expected %s or %s", s, auth.ScopeJobsRead, auth.ScopeJobsWrite)
		}
	}
	return nil
}

func printClaims(w io.Writer, c *auth.Claims) {
	key := color.New(color.FgCyan)
	rows := [][2]string{
		{"Subject", c.Subject},
		{"Scopes", strings.Join(c.Scopes, ", ")},
		{"ID", c.ID},
		{"Issued", c.IssuedAt.Format(time.RFC3339)},
		{"Expires", c.ExpiresAt.Format(time.RFC3339)},
	}
	for _, row := range rows {
		key.Fprintf(w, "%-8s ", row[0]+":")
		fmt.Fprintln(w, row[1])
	}
}
