package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/asierbarrena/oficios/internal/pkg/config"
)

const trackingTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	filename   TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: migrate <up|status>")
	}

	cfg, err := config.Load("oficios-migrate")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, trackingTable); err != nil {
		log.Fatalf("init tracking table: %v", err)
	}

	switch os.Args[1] {
	case "up":
		migrateUp(ctx, pool)
	case "status":
		printStatus(ctx, pool)
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}
}

func migrationFiles() []string {
	files, err := filepath.Glob("migrations/*.sql")
	if err != nil || len(files) == 0 {
		log.Fatalf("no migration files found: %v", err)
	}
	sort.Strings(files)
	return files
}

func appliedSet(ctx context.Context, pool *pgxpool.Pool) map[string]bool {
	rows, err := pool.Query(ctx, `SELECT filename FROM schema_migrations`)
	if err != nil {
		log.Fatalf("query applied migrations: %v", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			log.Fatalf("scan: %v", err)
		}
		applied[name] = true
	}
	return applied
}

func migrateUp(ctx context.Context, pool *pgxpool.Pool) {
	applied := appliedSet(ctx, pool)

	ran := 0
	for _, f := range migrationFiles() {
		name := filepath.Base(f)
		if applied[name] {
			continue
		}

		data, err := os.ReadFile(f)
		if err != nil {
			log.Fatalf("read %s: %v", f, err)
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			log.Fatalf("begin %s: %v", name, err)
		}
		if _, err := tx.Exec(ctx, string(data)); err != nil {
			_ = tx.Rollback(ctx)
			log.Fatalf("exec %s: %v", name, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, name); err != nil {
			_ = tx.Rollback(ctx)
			log.Fatalf("record %s: %v", name, err)
		}
		if err := tx.Commit(ctx); err != nil {
			log.Fatalf("commit %s: %v", name, err)
		}

		fmt.Printf("applied  %s\n", name)
		ran++
	}

	if ran == 0 {
		log.Println("database is up to date")
	} else {
		log.Printf("%d migration(s) applied", ran)
	}
}

func printStatus(ctx context.Context, pool *pgxpool.Pool) {
	applied := appliedSet(ctx, pool)
	for _, f := range migrationFiles() {
		name := filepath.Base(f)
		state := "pending"
		if applied[name] {
			state = "applied"
		}
		fmt.Printf("%-8s %s\n", state, name)
	}
}
