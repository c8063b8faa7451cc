package repository

import (
	"context"
	"errors"

	"biblio/internal/models"

	"gorm.io/gorm"
)

// PublicationRepository defines persistence operations for publications.
type PublicationRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Publication, error)
	Create(ctx context.Context, publication *models.Publication) error
	Update(ctx context.Context, publication *models.Publication) error
	Delete(ctx context.Context, id uint) error
	List(ctx context.Context, limit, offset int) ([]models.Publication, error)
	ReplaceAuthors(ctx context.Context, publication *models.Publication, authors []models.Author) error
}

type publicationRepository struct {
	db *gorm.DB
}

// NewPublicationRepository returns a new PublicationRepository implementation.
func NewPublicationRepository(db *gorm.DB) PublicationRepository {
	return &publicationRepository{db: db}
}

func (r *publicationRepository) GetByID(ctx context.Context, id uint) (*models.Publication, error) {
	var publication models.Publication
	if err := r.db.WithContext(ctx).
		Preload("Category").
		Preload("Authors").
		First(&publication, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Publication", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &publication, nil
}

func (r *publicationRepository) Create(ctx context.Context, publication *models.Publication) error {
	if err := r.db.WithContext(ctx).Create(publication).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *publicationRepository) Update(ctx context.Context, publication *models.Publication) error {
	if err := r.db.WithContext(ctx).Save(publication).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *publicationRepository) Delete(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Delete(&models.Publication{}, id).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *publicationRepository) List(ctx context.Context, limit, offset int) ([]models.Publication, error) {
	var publications []models.Publication
	if err := r.db.WithContext(ctx).
		Preload("Category").
		Preload("Authors").
		Limit(limit).Offset(offset).Order("id").
		Find(&publications).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return publications, nil
}

func (r *publicationRepository) ReplaceAuthors(ctx context.Context, publication *models.Publication, authors []models.Author) error {
	if err := r.db.WithContext(ctx).Model(publication).Association("Authors").Replace(authors); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}
