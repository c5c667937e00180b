// Command authctl is the operator CLI for the authorization server: signing
// keys, client secrets, registry import and schema migration.
package main

import (
	"context"
	"errors"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"authserver/pkg/config"
	"authserver/pkg/db"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "authctl",
		Short:             "Operate the multi-tenant authorization server",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
	}
	cmd.PersistentFlags().String("database-url", "", "Postgres DSN (defaults to DATABASE_URL)")

	cmd.AddCommand(
		newKeysCommand(),
		newSecretCommand(),
		newRegistryCommand(),
		newSchemaCommand(),
	)
	return cmd
}

// connect opens the pool named by --database-url or DATABASE_URL.
func connect(cmd *cobra.Command) (*pgxpool.Pool, error) {
	dsn, _ := cmd.Flags().GetString("database-url")
	if dsn == "" {
		dsn = config.Load().DatabaseURL
	}
	if dsn == "" {
		return nil, errors.New("DATABASE_URL or --database-url is required")
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return db.Connect(ctx, dsn)
}
