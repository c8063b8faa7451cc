package server

import (
	"fmt"

	"biblio/internal/models"

	"github.com/gofiber/fiber/v2"
)

type publicationInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Year        int    `json:"year"`
	CategoryID  *uint  `json:"category_id"`
	AuthorIDs   []uint `json:"author_ids"`
}

func (s *Server) resolvePublicationRefs(c *fiber.Ctx, in publicationInput) ([]models.Author, error) {
	if in.CategoryID != nil {
		if _, err := s.categoryRepo.GetByID(c.Context(), *in.CategoryID); err != nil {
			return nil, models.NewValidationError(fmt.Sprintf("Category with ID %d does not exist", *in.CategoryID))
		}
	}

	authors, err := s.authorRepo.GetByIDs(c.Context(), in.AuthorIDs)
	if err != nil {
		return nil, err
	}
	if len(authors) != len(in.AuthorIDs) {
		return nil, models.NewValidationError("One or more authors do not exist")
	}
	return authors, nil
}

// GetPublications handles GET /api/publications
func (s *Server) GetPublications(c *fiber.Ctx) error {
	p := parsePagination(c, 50)
	publications, err := s.publicationRepo.List(c.Context(), p.Limit, p.Offset)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{
		"publications": publications,
		"count":        len(publications),
	})
}

// GetPublication handles GET /api/publications/:id
func (s *Server) GetPublication(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	publication, err := s.publicationRepo.GetByID(c.Context(), id)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(publication)
}

// CreatePublication handles POST /api/publications (admin)
func (s *Server) CreatePublication(c *fiber.Ctx) error {
	var req publicationInput
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	if req.Title == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Title is required"))
	}

	authors, err := s.resolvePublicationRefs(c, req)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	publication := &models.Publication{
		Title:       req.Title,
		Description: req.Description,
		Year:        req.Year,
		CategoryID:  req.CategoryID,
		Authors:     authors,
	}
	if err := s.publicationRepo.Create(c.Context(), publication); err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(publication)
}

// UpdatePublication handles PUT /api/publications/:id (admin)
func (s *Server) UpdatePublication(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	publication, err := s.publicationRepo.GetByID(c.Context(), id)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	var req publicationInput
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	authors, err := s.resolvePublicationRefs(c, req)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	if req.Title != "" {
		publication.Title = req.Title
	}
	if req.Description != "" {
		publication.Description = req.Description
	}
	if req.Year != 0 {
		publication.Year = req.Year
	}
	if req.CategoryID != nil {
		publication.CategoryID = req.CategoryID
	}
	if err := s.publicationRepo.Update(c.Context(), publication); err != nil {
		return models.RespondWithAppError(c, err)
	}
	if req.AuthorIDs != nil {
		if err := s.publicationRepo.ReplaceAuthors(c.Context(), publication, authors); err != nil {
			return models.RespondWithAppError(c, err)
		}
		publication.Authors = authors
	}
	return c.JSON(publication)
}

// DeletePublication handles DELETE /api/publications/:id (admin)
func (s *Server) DeletePublication(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	if _, err := s.publicationRepo.GetByID(c.Context(), id); err != nil {
		return models.RespondWithAppError(c, err)
	}
	if err := s.files.Delete(id); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}
	if err := s.publicationRepo.Delete(c.Context(), id); err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// UploadPublicationFile handles PUT /api/publications/:id/file (admin),
// multipart field "file".
func (s *Server) UploadPublicationFile(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	publication, err := s.publicationRepo.GetByID(c.Context(), id)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("A multipart 'file' field is required"))
	}

	src, err := fileHeader.Open()
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}
	defer src.Close()

	size, err := s.files.Save(id, src)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	publication.FileName = fileHeader.Filename
	publication.FileSize = size
	publication.ContentType = fileHeader.Header.Get("Content-Type")
	if publication.ContentType == "" {
		publication.ContentType = "application/octet-stream"
	}
	if err := s.publicationRepo.Update(c.Context(), publication); err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.JSON(publication)
}

// GetPublicationFile handles GET /api/publications/:id/file (bearer).
func (s *Server) GetPublicationFile(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	publication, err := s.publicationRepo.GetByID(c.Context(), id)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	if !publication.HasFile() {
		return models.RespondWithAppError(c, models.NewNotFoundError("File for publication", id))
	}
	return s.streamPublicationFile(c, publication)
}

func (s *Server) streamPublicationFile(c *fiber.Ctx, publication *models.Publication) error {
	c.Set(fiber.HeaderContentType, publication.ContentType)
	c.Set(fiber.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", publication.FileName))
	return c.SendFile(s.files.Path(publication.ID))
}
