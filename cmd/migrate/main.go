// Command migrate applies the embedded goose migrations.
//
// Usage:
//
//	migrate up
//	migrate down
//	migrate status
//	migrate version
//	migrate redo
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"escrowledger/internal/config"
	"escrowledger/internal/db"
	"escrowledger/migrations"

	"github.com/pressly/goose/v3"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: migrate <command>")
		fmt.Println("Commands: up, down, status, version, redo, up-to <version>, down-to <version>")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer database.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatalf("failed to set dialect: %v", err)
	}
	command := os.Args[1]
	if err := goose.RunContext(context.Background(), command, database.DB, ".", os.Args[2:]...); err != nil {
		log.Fatalf("migration %s failed: %v", command, err)
	}
}
