// Command oauthgate runs the authentication gate as a reverse proxy in
// front of an upstream application.
//
// Run with:
//
//	oauthgate serve --config oauthgate.yaml
//
// Every setting can be overridden from the environment with the OAUTHGATE_
// prefix, e.g. OAUTHGATE_UPSTREAM or OAUTHGATE_OAUTH_CLIENT_ID.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "oauthgate",
		Short:         "OAuth2 authentication gate",
		Long:          `oauthgate authenticates requests with bearer tokens or an OAuth2 session and proxies them to an upstream application.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gate",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath, os.LookupEnv)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML or JSON configuration file")
	return cmd
}
