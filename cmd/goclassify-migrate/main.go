// cmd/goclassify-migrate/main.go
package main

import (
	"fmt"
	"os"

	internal_storage "github.com/ignatij/goclassify/internal/storage"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{Use: "goclassify-migrate"}

// connString returns the --db flag, falling back to DB_PATH and STORAGE_PATH.
func connString(cmd *cobra.Command) (string, error) {
	// Load .env if present
	if err := godotenv.Load(); err != nil {
		fmt.Printf("No .env file found or failed to load: %v. Using --db flag.\n", err)
	}
	connStr, _ := cmd.Flags().GetString("db")
	if connStr == "" {
		connStr = os.Getenv("DB_PATH")
	}
	if connStr == "" {
		connStr = os.Getenv("STORAGE_PATH")
	}
	if connStr == "" {
		return "", fmt.Errorf("--db flag or DB_PATH env var required")
	}
	return connStr, nil
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		connStr, err := connString(cmd)
		if err != nil {
			return err
		}
		if err := internal_storage.Migrate(connStr); err != nil {
			return fmt.Errorf("failed to apply migrations: %w", err)
		}
		fmt.Println("Migrations applied successfully")
		return nil
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Revert the most recent migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		connStr, err := connString(cmd)
		if err != nil {
			return err
		}
		if err := internal_storage.MigrateDown(connStr); err != nil {
			return fmt.Errorf("failed to revert migration: %w", err)
		}
		fmt.Println("Reverted one migration")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		connStr, err := connString(cmd)
		if err != nil {
			return err
		}
		version, dirty, err := internal_storage.MigrationVersion(connStr)
		if err != nil {
			return err
		}
		fmt.Printf("Schema version %d (dirty: %t)\n", version, dirty)
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().String("db", "", "SQLite file or postgres:// URL (optional if DB_PATH is set)")
	rootCmd.AddCommand(upCmd, downCmd, versionCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
