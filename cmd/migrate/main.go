package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log"
	"os"

	_ "github.com/lib/pq"

	"github.com/pgx404/RegretMarket/internal/observability"
	"github.com/pgx404/RegretMarket/internal/persistence"
	"github.com/pgx404/RegretMarket/migrations"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: migrate <up|down|status>")
		fmt.Println("  up     - apply all pending migrations")
		fmt.Println("  down   - roll back the last migration")
		fmt.Println("  status - list migrations and whether they are applied")
		fmt.Println()
		fmt.Println("Environment:")
		fmt.Println("  REGRET_POSTGRES_DSN    - Postgres connection string")
		fmt.Println("  REGRET_MIGRATIONS_DIR  - read migrations from this directory instead of the embedded set")
		os.Exit(1)
	}

	pgURL := os.Getenv("REGRET_POSTGRES_DSN")
	if pgURL == "" {
		pgURL = "postgres://localhost:5432/regretmarket?sslmode=disable"
	}

	var fsys fs.FS = migrations.FS
	if dir := os.Getenv("REGRET_MIGRATIONS_DIR"); dir != "" {
		fsys = os.DirFS(dir)
	}

	db, err := sql.Open("postgres", pgURL)
	if err != nil {
		log.Fatalf("FATAL: open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	migrator := persistence.NewMigrator(db, fsys, observability.NewLogger("migrate"))

	switch os.Args[1] {
	case "up":
		n, err := migrator.Up(ctx)
		if err != nil {
			log.Fatalf("FATAL: migrate up: %v", err)
		}
		log.Printf("INFO: %d migrations applied", n)

	case "down":
		rolledBack, err := migrator.Down(ctx)
		if err != nil {
			log.Fatalf("FATAL: migrate down: %v", err)
		}
		if rolledBack {
			log.Println("INFO: last migration rolled back")
		} else {
			log.Println("INFO: nothing to roll back")
		}

	case "status":
		statuses, err := migrator.Status(ctx)
		if err != nil {
			log.Fatalf("FATAL: migrate status: %v", err)
		}
		for _, s := range statuses {
			mark := " "
			if s.Applied {
				mark = "x"
			}
			fmt.Printf("[%s] %s\n", mark, s.Filename)
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s (use 'up', 'down' or 'status')\n", os.Args[1])
		os.Exit(1)
	}
}
