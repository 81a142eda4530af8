package main

import (
	"errors"
	"flag"
	"log"
	"os"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"

	"github.com/noah-isme/hotel-payments/internal/db"
)

func main() {
	var (
		direction = flag.String("direction", "up", "up, down or version")
		steps     = flag.Int("steps", 0, "number of steps for down; 0 reverts everything")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}
	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	m, err := db.NewMigrator(dbURL)
	if err != nil {
		log.Fatalf("init migrator: %v", err)
	}
	defer func() { _, _ = m.Close() }()

	switch strings.ToLower(*direction) {
	case "up":
		err = db.RunMigrations(m)
	case "down":
		if *steps > 0 {
			err = m.Steps(-*steps)
		} else {
			err = m.Down()
		}
	case "version":
		version, dirty, verr := m.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			log.Println("no migrations applied")
			return
		}
		if verr != nil {
			log.Fatalf("read version: %v", verr)
		}
		log.Printf("version=%d dirty=%t", version, dirty)
		return
	default:
		log.Fatalf("unknown direction %q", *direction)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("migrate %s: %v", *direction, err)
	}
	log.Printf("migrate %s: done", *direction)
}
