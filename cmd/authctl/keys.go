package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"authserver/internal/token"
	"authserver/pkg/logger"
)

func newKeysCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage RSA signing keys",
	}
	cmd.AddCommand(newKeysGenerateCommand(), newKeysRotateCommand())
	return cmd
}

func newKeysGenerateCommand() *cobra.Command {
	var (
		size   int
		format string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate an RSA key pair and print it as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kp, err := token.GenerateKeyPair(size, format)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(kp)
		},
	}
	cmd.Flags().IntVar(&size, "size", 2048, "key size: 2048, 3072 or 4096")
	cmd.Flags().StringVar(&format, "format", token.FormatPEM, "output format: PEM or JWKS")
	return cmd
}

func newKeysRotateCommand() *cobra.Command {
	var (
		tenant string
		size   int
	)
	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Create a new active signing key for a tenant; older keys stay published",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if tenant == "" {
				return fmt.Errorf("--tenant is required")
			}
			pool, err := connect(cmd)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := token.EnsureSchema(cmd.Context(), pool); err != nil {
				return err
			}
			k, err := token.NewPostgresKeyStore(pool, logger.Nop(), size).Rotate(cmd.Context(), tenant)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tenant %s: new active key %s\n", tenant, k.KID)
			return nil
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id")
	cmd.Flags().IntVar(&size, "size", 2048, "key size")
	return cmd
}
