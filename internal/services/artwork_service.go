// internal/services/artwork_service.go
package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/iagallery/iag-backend/internal/apperrors"
	"github.com/iagallery/iag-backend/internal/models"
	"github.com/iagallery/iag-backend/internal/utils"
)

// ArtworkService covers the catalog side: creating artworks and browsing
// them. License lifecycle transitions live in LicenseService.
type ArtworkService struct {
	db *gorm.DB
}

func NewArtworkService(db *gorm.DB) *ArtworkService {
	return &ArtworkService{db: db}
}

type CreateArtworkRequest struct {
	Title       string          `json:"title" validate:"required,min=1,max=255"`
	Description string          `json:"description" validate:"max=5000"`
	Category    string          `json:"category" validate:"max=100"`
	Tags        []string        `json:"tags" validate:"max=20,dive,max=50"`
	Price       decimal.Decimal `json:"price" validate:"required"`
	AssetKey    string          `json:"asset_key"`
}

func (s *ArtworkService) Create(creatorID uuid.UUID, req *CreateArtworkRequest) (*models.Artwork, error) {
	if !req.Price.IsPositive() {
		return nil, apperrors.Validation("price must be positive")
	}

	artwork := &models.Artwork{
		Title:        req.Title,
		Description:  req.Description,
		Category:     req.Category,
		Tags:         pq.StringArray(req.Tags),
		Price:        req.Price.Round(2),
		AssetKey:     req.AssetKey,
		CreatedBy:    creatorID,
		LicenseState: models.LicenseStateAvailable,
	}

	if err := s.db.Create(artwork).Error; err != nil {
		return nil, fmt.Errorf("failed to create artwork: %w", err)
	}

	return artwork, nil
}

func (s *ArtworkService) Get(id uuid.UUID) (*models.Artwork, error) {
	var artwork models.Artwork
	if err := s.db.First(&artwork, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("artwork")
		}
		return nil, fmt.Errorf("failed to load artwork: %w", err)
	}

	return &artwork, nil
}

// Browse lists the catalog. availableOnly restricts to artworks whose
// license can currently be bought.
func (s *ArtworkService) Browse(params utils.PaginationParams, availableOnly bool) ([]models.Artwork, int64, error) {
	query := s.db.Model(&models.Artwork{})

	if availableOnly {
		query = query.Where("license_state = ?", models.LicenseStateAvailable)
	}
	if params.Category != "" {
		query = query.Where("category = ?", params.Category)
	}
	if params.Search != "" {
		search := "%" + params.Search + "%"
		query = query.Where("LOWER(title) LIKE LOWER(?) OR LOWER(description) LIKE LOWER(?)", search, search)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count artworks: %w", err)
	}

	allowedSortFields := []string{"created_at", "price", "title"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var artworks []models.Artwork
	if err := query.Find(&artworks).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch artworks: %w", err)
	}

	return artworks, total, nil
}

func (s *ArtworkService) OwnedBy(userID uuid.UUID, params utils.PaginationParams) ([]models.Artwork, int64, error) {
	query := s.db.Model(&models.Artwork{}).Where("owner_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count owned artworks: %w", err)
	}

	allowedSortFields := []string{"created_at", "purchased_at", "price", "title"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var artworks []models.Artwork
	if err := query.Find(&artworks).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch owned artworks: %w", err)
	}

	return artworks, total, nil
}

// SetAsset attaches the uploaded master file's storage key.
func (s *ArtworkService) SetAsset(artworkID uuid.UUID, assetKey string) error {
	result := s.db.Model(&models.Artwork{}).
		Where("id = ?", artworkID).
		Update("asset_key", assetKey)
	if result.Error != nil {
		return fmt.Errorf("failed to set asset key: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NotFound("artwork")
	}

	return nil
}

// Provenance returns the full ownership chain of an artwork, oldest first.
func (s *ArtworkService) Provenance(artworkID uuid.UUID) ([]models.OwnershipRecord, error) {
	var records []models.OwnershipRecord
	err := s.db.Where("artwork_id = ?", artworkID).
		Order("acquired_at asc").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch provenance: %w", err)
	}

	return records, nil
}
