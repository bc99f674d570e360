// cmd/seeder/main.go
package main

import (
	"flag"
	"os"
	"path/filepath"
	"sort"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/unclebandit/creator-outreach/internal/config"
	"github.com/unclebandit/creator-outreach/internal/logger"
)

// The seeder applies migrations/*.sql and then, unless -schema-only is set, seed/*.sql.
func main() {
	schemaOnly := flag.Bool("schema-only", false, "apply migrations without seed data")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env})

	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	dirs := []string{"migrations"}
	if !*schemaOnly {
		dirs = append(dirs, "seed")
	}
	for _, dir := range dirs {
		files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
		if err != nil {
			log.Fatal().Err(err).Str("dir", dir).Msg("Failed to list SQL files")
		}
		sort.Strings(files)
		for _, file := range files {
			content, err := os.ReadFile(file)
			if err != nil {
				log.Fatal().Err(err).Str("file", file).Msg("Failed to read SQL file")
			}
			if _, err := db.Exec(string(content)); err != nil {
				log.Fatal().Err(err).Str("file", file).Msg("Failed to execute SQL file")
			}
			log.Info().Str("file", file).Msg("Applied")
		}
	}

	log.Info().Msg("Database seeding completed successfully!")
}
