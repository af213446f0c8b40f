package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/bookmeta/internal/config"
	"github.com/jonathan/bookmeta/internal/server"
)

var tokenSubject string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the HTTP adapter",
	Long:  "Issue a signed bearer token for --subject using JWT_SECRET, JWT_EXPIRATION_HOURS and JWT_ISSUER.",
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "Client name the token is issued to (required)")
	_ = tokenCmd.MarkFlagRequired("subject")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, _ []string) error {
	jwtConfig, err := config.NewJWTConfig()
	if err != nil {
		return err
	}

	token, err := server.NewJWTService(jwtConfig).GenerateToken(tokenSubject)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
	return err
}
