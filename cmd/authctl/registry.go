package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"authserver/internal/bootstrap"
	"authserver/internal/registry"
	"authserver/pkg/logger"
)

func newRegistryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Manage OAuth clients and scopes",
	}
	var file string
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Upsert clients and scopes from a YAML or JSON seed file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			seed, err := registry.LoadFile(file)
			if err != nil {
				return err
			}
			pool, err := connect(cmd)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := registry.EnsureSchema(cmd.Context(), pool); err != nil {
				return err
			}
			if err := registry.NewPostgres(pool, logger.Nop()).Import(cmd.Context(), seed); err != nil {
				return err
			}
			clients, scopes, _ := seed.Resolve()
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d clients and %d scopes\n", len(clients), len(scopes))
			return nil
		},
	}
	importCmd.Flags().StringVar(&file, "file", "", "seed file (.yaml, .yml or .json)")
	_ = importCmd.MarkFlagRequired("file")
	cmd.AddCommand(importCmd)
	return cmd
}

func newSchemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Database schema",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create all tables used by the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := connect(cmd)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := bootstrap.Migrate(cmd.Context(), pool); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	})
	return cmd
}
