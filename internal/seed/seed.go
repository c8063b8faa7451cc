// Package seed provides database seeding utilities for development and testing.
package seed

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"

	"biblio/internal/config"
	"biblio/internal/models"
	"biblio/internal/repository"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Options configuration for the seeder
type Options struct {
	NumAuthors      int
	NumPublications int
	NumRequests     int
	ShouldClean     bool
}

var categoryNames = []string{
	"Computer Science", "Mathematics", "Physics", "Biology", "Chemistry",
	"History", "Philosophy", "Economics", "Linguistics", "Engineering",
	"Medicine", "Law", "Psychology", "Sociology", "Literature",
}

// Seeder populates the database with demo catalog data.
type Seeder struct {
	db *gorm.DB
}

// NewSeeder creates a Seeder bound to the provided Gorm DB.
func NewSeeder(db *gorm.DB) *Seeder {
	gofakeit.Seed(0)
	return &Seeder{db: db}
}

// EnsureAdmin creates the bootstrap admin account when no admin exists yet.
// Intended for non-production profiles; production admins are provisioned
// explicitly.
func EnsureAdmin(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
	users := repository.NewUserRepository(db)

	admins, err := users.CountAdmins(ctx)
	if err != nil {
		return fmt.Errorf("count admins: %w", err)
	}
	if admins > 0 {
		return nil
	}

	password := cfg.AdminPassword
	generated := false
	if password == "" {
		raw := make([]byte, 16)
		if _, err := rand.Read(raw); err != nil {
			return fmt.Errorf("generate admin password: %w", err)
		}
		password = base64.RawURLEncoding.EncodeToString(raw)
		generated = true
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	admin := &models.User{
		Username:  cfg.AdminUsername,
		Password:  string(hash),
		FirstName: "Admin",
		LastName:  "Admin",
		Role:      models.RoleAdmin,
	}
	if err := users.Create(ctx, admin); err != nil {
		return fmt.Errorf("create admin: %w", err)
	}

	if generated {
		log.Printf("✓ Bootstrap admin %q created with password: %s", admin.Username, password)
	} else {
		log.Printf("✓ Bootstrap admin %q created", admin.Username)
	}
	return nil
}

// ClearAll removes all seeded domain data, children first.
func (s *Seeder) ClearAll() error {
	log.Println("🧹 Clearing existing data...")

	if err := s.db.Exec("DELETE FROM publication_authors").Error; err != nil {
		return fmt.Errorf("clear publication_authors: %w", err)
	}
	for _, model := range []interface{}{
		&models.Request{},
		&models.Publication{},
		&models.Author{},
		&models.Category{},
	} {
		if err := s.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(model).Error; err != nil {
			return fmt.Errorf("clear %T: %w", model, err)
		}
	}
	return nil
}

// Seed populates the catalog with categories, authors, publications and a
// handful of pending workflow requests.
func (s *Seeder) Seed(opts Options) error {
	log.Printf("🌱 Seeding %d authors, %d publications, %d requests...",
		opts.NumAuthors, opts.NumPublications, opts.NumRequests)

	if opts.ShouldClean {
		if err := s.ClearAll(); err != nil {
			return err
		}
	}

	categories, err := s.createCategories()
	if err != nil {
		return fmt.Errorf("seed categories: %w", err)
	}
	log.Printf("✓ %d categories available", len(categories))

	authors, err := s.createAuthors(opts.NumAuthors)
	if err != nil {
		return fmt.Errorf("seed authors: %w", err)
	}
	log.Printf("✓ %d authors created", len(authors))

	publications, err := s.createPublications(opts.NumPublications, categories, authors)
	if err != nil {
		return fmt.Errorf("seed publications: %w", err)
	}
	log.Printf("✓ %d publications created", len(publications))

	if err := s.createRequests(opts.NumRequests, publications); err != nil {
		return fmt.Errorf("seed requests: %w", err)
	}
	log.Printf("✓ %d pending requests created", opts.NumRequests)

	return nil
}

func (s *Seeder) createCategories() ([]models.Category, error) {
	categories := make([]models.Category, 0, len(categoryNames))
	for _, name := range categoryNames {
		category := models.Category{Name: name}
		if err := s.db.Where(models.Category{Name: name}).FirstOrCreate(&category).Error; err != nil {
			return nil, err
		}
		categories = append(categories, category)
	}
	return categories, nil
}

func (s *Seeder) createAuthors(n int) ([]models.Author, error) {
	authors := make([]models.Author, 0, n)
	for i := 0; i < n; i++ {
		author := models.Author{
			FirstName: gofakeit.FirstName(),
			LastName:  gofakeit.LastName(),
		}
		if err := s.db.Create(&author).Error; err != nil {
			return nil, err
		}
		authors = append(authors, author)
	}
	return authors, nil
}

func (s *Seeder) createPublications(n int, categories []models.Category, authors []models.Author) ([]models.Publication, error) {
	publications := make([]models.Publication, 0, n)
	for i := 0; i < n; i++ {
		pub := models.Publication{
			Title:       gofakeit.BookTitle(),
			Description: gofakeit.Paragraph(1, 3, 12, " "),
			Year:        gofakeit.Number(1950, 2025),
		}
		if len(categories) > 0 {
			pub.CategoryID = &categories[gofakeit.Number(0, len(categories)-1)].ID
		}
		if len(authors) > 0 {
			// one to three authors per publication
			count := gofakeit.Number(1, 3)
			seen := map[uint]bool{}
			for len(pub.Authors) < count {
				a := authors[gofakeit.Number(0, len(authors)-1)]
				if !seen[a.ID] {
					seen[a.ID] = true
					pub.Authors = append(pub.Authors, a)
				}
			}
		}
		if err := s.db.Create(&pub).Error; err != nil {
			return nil, err
		}
		publications = append(publications, pub)
	}
	return publications, nil
}

func (s *Seeder) createRequests(n int, publications []models.Publication) error {
	for i := 0; i < n; i++ {
		request := models.Request{
			Status:   models.RequestStatusPending,
			Username: gofakeit.Email(),
		}
		if i%2 == 0 || len(publications) == 0 {
			first := gofakeit.FirstName()
			last := gofakeit.LastName()
			request.Type = models.RequestTypeRegistration
			request.FirstName = &first
			request.LastName = &last
		} else {
			pub := publications[gofakeit.Number(0, len(publications)-1)]
			request.Type = models.RequestTypeDownloadLink
			request.PublicationID = &pub.ID
		}
		if err := s.db.Create(&request).Error; err != nil {
			return err
		}
	}
	return nil
}
