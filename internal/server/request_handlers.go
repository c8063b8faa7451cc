package server

import (
	"errors"
	"fmt"

	"biblio/internal/accesscode"
	"biblio/internal/models"
	"biblio/internal/service"

	"github.com/gofiber/fiber/v2"
)

// CreateRequest handles POST /api/requests. Open to API clients only; the
// submitter does not have an account yet.
func (s *Server) CreateRequest(c *fiber.Ctx) error {
	var req struct {
		Type     string `json:"type"`
		Username string `json:"username"`
		Extra    struct {
			FirstName     string `json:"firstName"`
			LastName      string `json:"lastName"`
			PublicationID any    `json:"publicationId"`
		} `json:"extra"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	request, err := s.requestService.CreateRequest(c.Context(), service.CreateRequestInput{
		Type:          req.Type,
		Username:      req.Username,
		FirstName:     req.Extra.FirstName,
		LastName:      req.Extra.LastName,
		PublicationID: rawID(req.Extra.PublicationID),
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(request.View())
}

// rawID renders a JSON field that may arrive as a number or a string into
// the string form the validator expects.
func rawID(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case float64:
		if id == float64(int64(id)) {
			return fmt.Sprintf("%d", int64(id))
		}
		return fmt.Sprintf("%v", id)
	default:
		return fmt.Sprintf("%v", id)
	}
}

// GetRequests handles GET /api/requests (admin).
func (s *Server) GetRequests(c *fiber.Ctx) error {
	p := parsePagination(c, 50)
	status := models.RequestStatus(c.Query("status"))

	requests, err := s.requestService.ListRequests(c.Context(), status, p.Limit, p.Offset)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	views := make([]models.RequestView, 0, len(requests))
	for i := range requests {
		views = append(views, requests[i].View())
	}
	return c.JSON(fiber.Map{
		"requests": views,
		"count":    len(views),
	})
}

// GetRequest handles GET /api/requests/:id (admin).
func (s *Server) GetRequest(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	request, err := s.requestService.GetRequest(c.Context(), id)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(request.View())
}

// DecideRequest handles POST /api/requests/:id/:action (admin). The action
// segment must be approve or reject; there is no other way to mutate a
// request.
func (s *Server) DecideRequest(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	action := c.Params("action")

	request, err := s.requestService.ChangeStatus(c.Context(), id, action)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(request.View())
}

// DownloadWithCode handles the anonymous code-gated download:
// GET /api/publications/:id/file/download/:requester/:code
func (s *Server) DownloadWithCode(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	requester := c.Params("requester")
	code := c.Params("code")

	grantedID, err := s.codes.Consume(c.Context(), requester, code)
	if err != nil {
		if errors.Is(err, accesscode.ErrDenied) {
			return models.RespondWithAppError(c, models.NewAccessDeniedError())
		}
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}
	// a valid code for a different publication grants nothing
	if grantedID != id {
		return models.RespondWithAppError(c, models.NewAccessDeniedError())
	}

	publication, err := s.publicationRepo.GetByID(c.Context(), id)
	if err != nil {
		return models.RespondWithAppError(c, models.NewAccessDeniedError())
	}
	if !publication.HasFile() {
		return models.RespondWithAppError(c, models.NewAccessDeniedError())
	}

	return s.streamPublicationFile(c, publication)
}
