package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"imvqa/adapters/sqlstore"
	"imvqa/internal/config"
	"imvqa/internal/migration"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	var driver, url string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the assay and analyses tables of the analysis store",
		Long: `Apply the schema of the analysis store. The data table is created by each
save, since its columns follow the saved features.

Example: DB_DRIVER=pgx DATABASE_URL=postgres://localhost/imv migrate`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(driver, url, timeout)
		},
	}
	cmd.Flags().StringVar(&driver, "driver", "", "Database driver override: sqlite|postgres|pgx")
	cmd.Flags().StringVar(&url, "url", "", "Database URL override")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "Migration timeout")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runMigrate(driver, url string, timeout time.Duration) error {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if driver != "" {
		cfg.Database.Driver = driver
	}
	if url != "" {
		cfg.Database.URL = url
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	log.Printf("Migrating %s database", cfg.Database.Driver)
	db, err := sqlstore.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	runner := migration.NewRunner(cfg.Plate.Columns)
	if err := runner.Run(ctx, db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	log.Printf("Migration complete: schema version %s", runner.Version())
	return nil
}
