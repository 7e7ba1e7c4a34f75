// Package app holds the cobra commands of the oidc-provider binary.
package app

import (
	"github.com/spf13/cobra"
)

// NewRootCmd returns the oidc-provider root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "oidc-provider",
		Short: "Stateless OpenID Connect provider",
		Long: `oidc-provider issues signed authorization codes, access tokens,
refresh tokens and ID tokens for a single registered client. No credential is
stored; an optional Valkey or Redis server makes codes and refresh tokens
single use across replicas.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	rootCmd.AddCommand(newServeCmd())
	return rootCmd
}
