package repository

import (
	"context"
	"errors"

	"biblio/internal/models"

	"gorm.io/gorm"
)

// RequestRepository defines persistence operations for workflow requests.
type RequestRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Request, error)
	Create(ctx context.Context, request *models.Request) error
	List(ctx context.Context, status models.RequestStatus, limit, offset int) ([]models.Request, error)
	// DecideIfPending sets the terminal status only when the stored row is
	// still pending. Returns true when this call won the transition.
	DecideIfPending(ctx context.Context, id uint, status models.RequestStatus) (bool, error)
}

type requestRepository struct {
	db *gorm.DB
}

// NewRequestRepository returns a new RequestRepository implementation.
func NewRequestRepository(db *gorm.DB) RequestRepository {
	return &requestRepository{db: db}
}

func (r *requestRepository) GetByID(ctx context.Context, id uint) (*models.Request, error) {
	var request models.Request
	if err := r.db.WithContext(ctx).First(&request, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Request", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &request, nil
}

func (r *requestRepository) Create(ctx context.Context, request *models.Request) error {
	if err := r.db.WithContext(ctx).Create(request).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *requestRepository) List(ctx context.Context, status models.RequestStatus, limit, offset int) ([]models.Request, error) {
	var requests []models.Request
	query := r.db.WithContext(ctx).Limit(limit).Offset(offset).Order("created_at DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Find(&requests).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return requests, nil
}

func (r *requestRepository) DecideIfPending(ctx context.Context, id uint, status models.RequestStatus) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Request{}).
		Where("id = ? AND status = ?", id, models.RequestStatusPending).
		Update("status", status)
	if result.Error != nil {
		return false, models.NewInternalError(result.Error)
	}
	return result.RowsAffected == 1, nil
}
