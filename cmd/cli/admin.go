package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/iho/walletledger/internal/domain"
	"github.com/iho/walletledger/internal/infrastructure/auth"
	"github.com/iho/walletledger/internal/infrastructure/postgres"
	"github.com/iho/walletledger/internal/infrastructure/sqlite"
)

func (c *cli) tokenCmd() *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Sign an API token with the server's JWT secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := c.v.GetString("jwt-secret")
			if secret == "" {
				return errors.New("a JWT secret is required (--jwt-secret or WALLETCTL_JWT_SECRET)")
			}

			manager := auth.NewJWTManager(secret, c.v.GetDuration("expires-in"))
			token, err := manager.Generate(domain.Principal{
				Subject: c.v.GetString("subject"),
				Role:    domain.Role(c.v.GetString("role")),
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	tokenCmd.Flags().String("jwt-secret", "", "HMAC secret shared with the server")
	tokenCmd.Flags().String("subject", "", "Token subject")
	tokenCmd.Flags().String("role", string(domain.RoleViewer), "Role: viewer, operator or admin")
	tokenCmd.Flags().Duration("expires-in", 24*time.Hour, "Token lifetime")
	return tokenCmd
}

// migrator runs schema migrations for one storage driver.
type migrator struct {
	up   func(ctx context.Context) error
	down func(ctx context.Context) error
}

func (c *cli) newMigrator() (*migrator, error) {
	switch driver := c.v.GetString("driver"); driver {
	case "postgres":
		dsn := c.v.GetString("database-url")
		if dsn == "" {
			return nil, errors.New("--database-url is required for postgres")
		}
		return &migrator{
			up:   func(context.Context) error { return postgres.RunMigrations(dsn) },
			down: func(context.Context) error { return postgres.RunMigrationsDown(dsn) },
		}, nil
	case "sqlite":
		path := c.v.GetString("sqlite-path")
		withDB := func(fn func(*sql.DB) error) func(ctx context.Context) error {
			return func(ctx context.Context) error {
				db, err := sqlite.Open(ctx, path)
				if err != nil {
					return err
				}
				defer db.Close()
				return fn(db)
			}
		}
		return &migrator{up: withDB(sqlite.RunMigrations), down: withDB(sqlite.RunMigrationsDown)}, nil
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
}

func (c *cli) migrateCmd() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the database schema",
	}
	migrateCmd.PersistentFlags().String("driver", "postgres", "Storage driver: postgres or sqlite")
	migrateCmd.PersistentFlags().String("database-url", "", "PostgreSQL connection URL")
	migrateCmd.PersistentFlags().String("sqlite-path", "walletledger.db", "SQLite database file")

	run := func(direction string) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			m, err := c.newMigrator()
			if err != nil {
				return err
			}
			step := m.up
			if direction == "down" {
				step = m.down
			}
			if err := step(cmd.Context()); err != nil {
				return fmt.Errorf("migrate %s: %w", direction, err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "migrations %s complete\n", direction)
			return err
		}
	}

	migrateCmd.AddCommand(
		&cobra.Command{Use: "up", Short: "Apply all pending migrations", RunE: run("up")},
		&cobra.Command{Use: "down", Short: "Roll back all migrations", RunE: run("down")},
	)
	return migrateCmd
}
