// Command main runs the database seeder for the library API.
package main

import (
	"context"
	"flag"
	"log"

	"biblio/internal/config"
	"biblio/internal/database"
	"biblio/internal/seed"
)

func main() {
	// Parse command line flags
	numAuthors := flag.Int("authors", 25, "Number of authors to create")
	numPublications := flag.Int("publications", 100, "Number of publications to create")
	numRequests := flag.Int("requests", 10, "Number of pending workflow requests to create")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	flag.Parse()

	log.Println("🌱 Database Seeder")
	log.Println("==================")
	log.Printf("Target: %d authors, %d publications, %d requests, clean=%v\n",
		*numAuthors, *numPublications, *numRequests, *shouldClean)

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Connect to database
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := seed.EnsureAdmin(context.Background(), db, cfg); err != nil {
		log.Fatalf("❌ Admin bootstrap failed: %v", err)
	}

	s := seed.NewSeeder(db)
	if err := s.Seed(seed.Options{
		NumAuthors:      *numAuthors,
		NumPublications: *numPublications,
		NumRequests:     *numRequests,
		ShouldClean:     *shouldClean,
	}); err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	log.Println("✨ All done! Your database is now populated with demo data.")
}
