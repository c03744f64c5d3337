// Command migrate applies the payout schema and can reset the ledger for
// manual end-to-end testing.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"telegram-reaction-payout/internal/config"
	pg "telegram-reaction-payout/internal/infra/db/postgres"
	"telegram-reaction-payout/internal/infra/logging"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	schemaPath := flag.String("schema", "deploy/postgres/init.sql", "schema file to apply")
	reset := flag.Bool("reset", false, "truncate payouts after applying the schema")
	flag.Parse()

	// migrations never talk to the gateway or Telegram, so tokens are optional
	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, false)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 2)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection failed")
	}
	defer pool.Close()

	schema, err := os.ReadFile(*schemaPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", *schemaPath).Msg("read schema")
	}
	if _, err := pool.Exec(ctx, string(schema)); err != nil {
		logger.Fatal().Err(err).Msg("apply schema")
	}
	logger.Info().Str("path", *schemaPath).Msg("schema applied")

	if *reset {
		if _, err := pool.Exec(ctx, `TRUNCATE payouts`); err != nil {
			logger.Fatal().Err(err).Msg("truncate payouts")
		}
		logger.Info().Msg("payout ledger reset")
	}

	var n int64
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM payouts`).Scan(&n); err != nil {
		logger.Fatal().Err(err).Msg("count payouts")
	}
	fmt.Printf("payouts in ledger: %d\n", n)
}
