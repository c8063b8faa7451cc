// Package service contains the application's business logic.
package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"biblio/internal/eventbus"
	"biblio/internal/middleware"
	"biblio/internal/models"
	"biblio/internal/observability"
	"biblio/internal/repository"
	"biblio/internal/validation"
)

// Actions accepted by ChangeStatus.
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// CodeStore is the access-code surface the workflow needs. Implemented by
// accesscode.Store.
type CodeStore interface {
	Issue(ctx context.Context, requester string, publicationID uint) (string, error)
	Revoke(ctx context.Context, requester string, publicationID uint) error
	RevokeIfCurrent(ctx context.Context, requester string, publicationID uint, code string) error
}

// RequestService drives the request approval workflow.
type RequestService struct {
	requestRepo     repository.RequestRepository
	userRepo        repository.UserRepository
	publicationRepo repository.PublicationRepository
	codes           CodeStore
	bus             *eventbus.Bus
	baseURL         string
}

// NewRequestService returns a RequestService wired to its collaborators.
func NewRequestService(
	requestRepo repository.RequestRepository,
	userRepo repository.UserRepository,
	publicationRepo repository.PublicationRepository,
	codes CodeStore,
	bus *eventbus.Bus,
	baseURL string,
) *RequestService {
	return &RequestService{
		requestRepo:     requestRepo,
		userRepo:        userRepo,
		publicationRepo: publicationRepo,
		codes:           codes,
		bus:             bus,
		baseURL:         baseURL,
	}
}

// CreateRequestInput carries a submitted request before validation. The
// extra fields arrive as raw strings so every syntactic problem can be
// reported in one pass.
type CreateRequestInput struct {
	Type          string
	Username      string
	FirstName     string
	LastName      string
	PublicationID string
}

// CreateRequest validates and persists a new pending request, then announces
// it on the bus.
func (s *RequestService) CreateRequest(ctx context.Context, in CreateRequestInput) (*models.Request, error) {
	var missing []string

	reqType := models.RequestType(in.Type)
	switch reqType {
	case models.RequestTypeRegistration, models.RequestTypeDownloadLink:
	default:
		missing = append(missing, "type")
	}

	if !validation.ValidEmail(in.Username) {
		missing = append(missing, "username")
	}

	var publicationID uint
	switch reqType {
	case models.RequestTypeRegistration:
		if !validation.ValidName(in.FirstName) {
			missing = append(missing, "firstName")
		}
		if !validation.ValidName(in.LastName) {
			missing = append(missing, "lastName")
		}
	case models.RequestTypeDownloadLink:
		id, ok := validation.ParsePositiveID(in.PublicationID)
		if !ok {
			missing = append(missing, "publicationId")
		}
		publicationID = id
	}

	if len(missing) > 0 {
		return nil, models.NewMissingFieldsError(missing)
	}

	request := &models.Request{
		Type:     reqType,
		Status:   models.RequestStatusPending,
		Username: in.Username,
	}

	switch reqType {
	case models.RequestTypeRegistration:
		first, last := in.FirstName, in.LastName
		request.FirstName = &first
		request.LastName = &last
	case models.RequestTypeDownloadLink:
		if _, err := s.publicationRepo.GetByID(ctx, publicationID); err != nil {
			if appErr, ok := err.(*models.AppError); ok && appErr.Code == models.CodeNotFound {
				return nil, models.NewValidationError(fmt.Sprintf("Publication with ID %d does not exist", publicationID))
			}
			return nil, err
		}
		request.PublicationID = &publicationID
	}

	if err := s.requestRepo.Create(ctx, request); err != nil {
		return nil, err
	}

	observability.RequestsCreated.WithLabelValues(string(reqType)).Inc()
	s.emitRequested(ctx, request)
	return request, nil
}

func (s *RequestService) emitRequested(ctx context.Context, request *models.Request) {
	switch request.Type {
	case models.RequestTypeRegistration:
		extra, _ := request.RegistrationExtra()
		s.bus.Emit(ctx, eventbus.RegistrationRequested, eventbus.RegistrationRequestedPayload{
			RequestID: request.ID,
			Username:  request.Username,
			FirstName: extra.FirstName,
			LastName:  extra.LastName,
		})
	case models.RequestTypeDownloadLink:
		extra, _ := request.DownloadLinkExtra()
		s.bus.Emit(ctx, eventbus.DownloadLinkRequested, eventbus.DownloadLinkRequestedPayload{
			RequestID:     request.ID,
			Username:      request.Username,
			PublicationID: extra.PublicationID,
		})
	}
}

// GetRequest returns a single request by id.
func (s *RequestService) GetRequest(ctx context.Context, id uint) (*models.Request, error) {
	return s.requestRepo.GetByID(ctx, id)
}

// ListRequests returns requests, optionally filtered by status.
func (s *RequestService) ListRequests(ctx context.Context, status models.RequestStatus, limit, offset int) ([]models.Request, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.requestRepo.List(ctx, status, limit, offset)
}

// ChangeStatus applies an admin decision to a pending request. Side effects
// that can fail run before the status write; the write itself only succeeds
// when the row is still pending, so concurrent decisions cannot both win.
func (s *RequestService) ChangeStatus(ctx context.Context, id uint, action string) (*models.Request, error) {
	if action != ActionApprove && action != ActionReject {
		return nil, models.NewUnsupportedActionError(action)
	}

	request, err := s.requestRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !request.IsPending() {
		return nil, models.NewInvalidStateError("No one can change approved or rejected request")
	}

	var emit, undo func()
	if action == ActionApprove {
		emit, undo, err = s.prepareApproval(ctx, request)
	} else {
		emit, undo, err = s.prepareRejection(ctx, request)
	}
	if err != nil {
		return nil, err
	}

	target := models.RequestStatusApproved
	if action == ActionReject {
		target = models.RequestStatusRejected
	}

	won, err := s.requestRepo.DecideIfPending(ctx, id, target)
	if err != nil {
		return nil, err
	}
	if !won {
		// the row existed a moment ago, so another decision beat this one;
		// whatever the prepare step already did must not survive the loss
		if undo != nil {
			undo()
		}
		return nil, models.NewInvalidStateError("No one can change approved or rejected request")
	}

	request.Status = target
	observability.RequestsDecided.WithLabelValues(string(request.Type), action).Inc()
	emit()
	return request, nil
}

// prepareApproval runs the approval side effects and returns the event
// emission to perform once the status write wins, plus the rollback to run
// if it loses.
func (s *RequestService) prepareApproval(ctx context.Context, request *models.Request) (func(), func(), error) {
	switch request.Type {
	case models.RequestTypeRegistration:
		extra, _ := request.RegistrationExtra()

		password, err := generatePassword()
		if err != nil {
			return nil, nil, models.NewInternalError(err)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, nil, models.NewInternalError(err)
		}

		user := &models.User{
			Username:  request.Username,
			Password:  string(hash),
			FirstName: extra.FirstName,
			LastName:  extra.LastName,
			Role:      models.RoleUser,
		}
		if err := s.userRepo.Create(ctx, user); err != nil {
			return nil, nil, err
		}

		emit := func() {
			s.bus.Emit(ctx, eventbus.RegistrationApproved, eventbus.RegistrationApprovedPayload{
				RequestID: request.ID,
				Username:  request.Username,
				FirstName: extra.FirstName,
				LastName:  extra.LastName,
				Password:  password,
			})
		}
		undo := func() {
			if err := s.userRepo.Delete(ctx, user.ID); err != nil {
				middleware.Logger.ErrorContext(ctx, "rollback of provisional user failed",
					"user_id", user.ID, "error", err.Error())
			}
		}
		return emit, undo, nil

	case models.RequestTypeDownloadLink:
		extra, ok := request.DownloadLinkExtra()
		if !ok {
			return nil, nil, models.NewInternalError(fmt.Errorf("download-link request %d has no publication", request.ID))
		}

		publication, err := s.publicationRepo.GetByID(ctx, extra.PublicationID)
		if err != nil {
			if appErr, isApp := err.(*models.AppError); isApp && appErr.Code == models.CodeNotFound {
				return nil, nil, models.NewReferenceError(fmt.Sprintf("Publication with ID %d no longer exists", extra.PublicationID))
			}
			return nil, nil, err
		}

		code, err := s.codes.Issue(ctx, request.Username, publication.ID)
		if err != nil {
			return nil, nil, models.NewInternalError(err)
		}
		link := fmt.Sprintf("%s/api/publications/%d/file/download/%s/%s",
			s.baseURL, publication.ID, request.Username, code)

		emit := func() {
			s.bus.Emit(ctx, eventbus.DownloadLinkApproved, eventbus.DownloadLinkApprovedPayload{
				RequestID:        request.ID,
				Username:         request.Username,
				PublicationID:    publication.ID,
				PublicationTitle: publication.Title,
				Code:             code,
				DownloadLink:     link,
			})
		}
		undo := func() {
			// only this exact code; a concurrent winning approval may have
			// reissued already
			if err := s.codes.RevokeIfCurrent(ctx, request.Username, publication.ID, code); err != nil {
				middleware.Logger.ErrorContext(ctx, "rollback of access code failed",
					"request_id", request.ID, "error", err.Error())
			}
		}
		return emit, undo, nil
	}

	return nil, nil, models.NewInternalError(fmt.Errorf("request %d has unknown type %q", request.ID, request.Type))
}

// prepareRejection has no rollback: revoking a code is idempotent and a
// winning approval reissues a fresh one anyway.
func (s *RequestService) prepareRejection(ctx context.Context, request *models.Request) (func(), func(), error) {
	switch request.Type {
	case models.RequestTypeRegistration:
		extra, _ := request.RegistrationExtra()
		return func() {
			s.bus.Emit(ctx, eventbus.RegistrationRejected, eventbus.RegistrationRejectedPayload{
				RequestID: request.ID,
				Username:  request.Username,
				FirstName: extra.FirstName,
				LastName:  extra.LastName,
			})
		}, nil, nil

	case models.RequestTypeDownloadLink:
		extra, ok := request.DownloadLinkExtra()
		if !ok {
			return nil, nil, models.NewInternalError(fmt.Errorf("download-link request %d has no publication", request.ID))
		}

		// a rejected request must not leave a usable code behind
		if err := s.codes.Revoke(ctx, request.Username, extra.PublicationID); err != nil {
			return nil, nil, models.NewInternalError(err)
		}

		title := ""
		if publication, err := s.publicationRepo.GetByID(ctx, extra.PublicationID); err == nil {
			title = publication.Title
		}

		return func() {
			s.bus.Emit(ctx, eventbus.DownloadLinkRejected, eventbus.DownloadLinkRejectedPayload{
				RequestID:        request.ID,
				Username:         request.Username,
				PublicationID:    extra.PublicationID,
				PublicationTitle: title,
			})
		}, nil, nil
	}

	return nil, nil, models.NewInternalError(fmt.Errorf("request %d has unknown type %q", request.ID, request.Type))
}

// generatePassword returns a random credential for newly approved accounts.
func generatePassword() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
