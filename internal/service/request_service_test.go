package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"biblio/internal/eventbus"
	"biblio/internal/models"
)

type requestRepoStub struct {
	getByIDFn         func(ctx context.Context, id uint) (*models.Request, error)
	createFn          func(ctx context.Context, request *models.Request) error
	listFn            func(ctx context.Context, status models.RequestStatus, limit, offset int) ([]models.Request, error)
	decideIfPendingFn func(ctx context.Context, id uint, status models.RequestStatus) (bool, error)
}

func (s *requestRepoStub) GetByID(ctx context.Context, id uint) (*models.Request, error) {
	return s.getByIDFn(ctx, id)
}

func (s *requestRepoStub) Create(ctx context.Context, request *models.Request) error {
	return s.createFn(ctx, request)
}

func (s *requestRepoStub) List(ctx context.Context, status models.RequestStatus, limit, offset int) ([]models.Request, error) {
	return s.listFn(ctx, status, limit, offset)
}

func (s *requestRepoStub) DecideIfPending(ctx context.Context, id uint, status models.RequestStatus) (bool, error) {
	return s.decideIfPendingFn(ctx, id, status)
}

type userRepoStub struct {
	getByIDFn       func(ctx context.Context, id uint) (*models.User, error)
	getByUsernameFn func(ctx context.Context, username string) (*models.User, error)
	createFn        func(ctx context.Context, user *models.User) error
	updateFn        func(ctx context.Context, user *models.User) error
	deleteFn        func(ctx context.Context, id uint) error
	listFn          func(ctx context.Context, limit, offset int) ([]models.User, error)
	countAdminsFn   func(ctx context.Context) (int64, error)
}

func (s *userRepoStub) GetByID(ctx context.Context, id uint) (*models.User, error) {
	return s.getByIDFn(ctx, id)
}

func (s *userRepoStub) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getByUsernameFn(ctx, username)
}

func (s *userRepoStub) Create(ctx context.Context, user *models.User) error {
	return s.createFn(ctx, user)
}

func (s *userRepoStub) Update(ctx context.Context, user *models.User) error {
	return s.updateFn(ctx, user)
}

func (s *userRepoStub) Delete(ctx context.Context, id uint) error {
	if s.deleteFn == nil {
		return nil
	}
	return s.deleteFn(ctx, id)
}

func (s *userRepoStub) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	return s.listFn(ctx, limit, offset)
}

func (s *userRepoStub) CountAdmins(ctx context.Context) (int64, error) {
	return s.countAdminsFn(ctx)
}

type publicationRepoStub struct {
	getByIDFn func(ctx context.Context, id uint) (*models.Publication, error)
}

func (s *publicationRepoStub) GetByID(ctx context.Context, id uint) (*models.Publication, error) {
	return s.getByIDFn(ctx, id)
}

func (s *publicationRepoStub) Create(ctx context.Context, publication *models.Publication) error {
	return nil
}

func (s *publicationRepoStub) Update(ctx context.Context, publication *models.Publication) error {
	return nil
}

func (s *publicationRepoStub) Delete(ctx context.Context, id uint) error { return nil }

func (s *publicationRepoStub) List(ctx context.Context, limit, offset int) ([]models.Publication, error) {
	return nil, nil
}

func (s *publicationRepoStub) ReplaceAuthors(ctx context.Context, publication *models.Publication, authors []models.Author) error {
	return nil
}

type codeStoreStub struct {
	issueFn           func(ctx context.Context, requester string, publicationID uint) (string, error)
	revokeFn          func(ctx context.Context, requester string, publicationID uint) error
	revokeIfCurrentFn func(ctx context.Context, requester string, publicationID uint, code string) error
}

func (s *codeStoreStub) Issue(ctx context.Context, requester string, publicationID uint) (string, error) {
	if s.issueFn == nil {
		return "code", nil
	}
	return s.issueFn(ctx, requester, publicationID)
}

func (s *codeStoreStub) Revoke(ctx context.Context, requester string, publicationID uint) error {
	if s.revokeFn == nil {
		return nil
	}
	return s.revokeFn(ctx, requester, publicationID)
}

func (s *codeStoreStub) RevokeIfCurrent(ctx context.Context, requester string, publicationID uint, code string) error {
	if s.revokeIfCurrentFn == nil {
		return nil
	}
	return s.revokeIfCurrentFn(ctx, requester, publicationID, code)
}

type workflowFixture struct {
	requests *requestRepoStub
	users    *userRepoStub
	pubs     *publicationRepoStub
	codes    *codeStoreStub
	bus      *eventbus.Bus
	svc      *RequestService
}

func newWorkflowFixture(t *testing.T) *workflowFixture {
	t.Helper()
	f := &workflowFixture{
		requests: &requestRepoStub{
			createFn: func(_ context.Context, request *models.Request) error {
				request.ID = 1
				return nil
			},
			decideIfPendingFn: func(_ context.Context, _ uint, _ models.RequestStatus) (bool, error) {
				return true, nil
			},
		},
		users: &userRepoStub{
			createFn: func(_ context.Context, user *models.User) error {
				user.ID = 10
				return nil
			},
		},
		pubs: &publicationRepoStub{
			getByIDFn: func(_ context.Context, id uint) (*models.Publication, error) {
				return &models.Publication{ID: id, Title: "Structured Concurrency"}, nil
			},
		},
		codes: &codeStoreStub{},
		bus:   eventbus.New(),
	}
	t.Cleanup(f.bus.Close)
	f.svc = NewRequestService(f.requests, f.users, f.pubs, f.codes, f.bus, "http://localhost:8375")
	return f
}

func assertAppErrorCode(t *testing.T, err error, code string) *models.AppError {
	t.Helper()
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, code, appErr.Code)
	return appErr
}

func TestRequestService_CreateRequest_AggregatesValidationErrors(t *testing.T) {
	f := newWorkflowFixture(t)

	_, err := f.svc.CreateRequest(context.Background(), CreateRequestInput{
		Type:     "registration",
		Username: "not-an-email",
	})
	appErr := assertAppErrorCode(t, err, models.CodeValidation)
	assert.Equal(t, "Some required data is missing: username, firstName, lastName", appErr.Message)
}

func TestRequestService_CreateRequest_UnknownType(t *testing.T) {
	f := newWorkflowFixture(t)

	_, err := f.svc.CreateRequest(context.Background(), CreateRequestInput{
		Type:     "subscription",
		Username: "reader@example.com",
	})
	appErr := assertAppErrorCode(t, err, models.CodeValidation)
	assert.Contains(t, appErr.Message, "type")
}

func TestRequestService_CreateRequest_DownloadLinkInvalidPublicationID(t *testing.T) {
	f := newWorkflowFixture(t)

	for _, raw := range []string{"", "0", "-1", "abc"} {
		_, err := f.svc.CreateRequest(context.Background(), CreateRequestInput{
			Type:          "downloadLink",
			Username:      "reader@example.com",
			PublicationID: raw,
		})
		appErr := assertAppErrorCode(t, err, models.CodeValidation)
		assert.Contains(t, appErr.Message, "publicationId")
	}
}

func TestRequestService_CreateRequest_DownloadLinkMissingPublication(t *testing.T) {
	f := newWorkflowFixture(t)
	f.pubs.getByIDFn = func(_ context.Context, id uint) (*models.Publication, error) {
		return nil, models.NewNotFoundError("Publication", id)
	}

	_, err := f.svc.CreateRequest(context.Background(), CreateRequestInput{
		Type:          "downloadLink",
		Username:      "reader@example.com",
		PublicationID: "42",
	})
	assertAppErrorCode(t, err, models.CodeValidation)
}

func TestRequestService_CreateRequest_RegistrationEmitsEvent(t *testing.T) {
	f := newWorkflowFixture(t)

	var got eventbus.RegistrationRequestedPayload
	f.bus.On(eventbus.RegistrationRequested, func(_ context.Context, payload any) error {
		got = payload.(eventbus.RegistrationRequestedPayload)
		return nil
	})

	request, err := f.svc.CreateRequest(context.Background(), CreateRequestInput{
		Type:      "registration",
		Username:  "ada@example.com",
		FirstName: "Ada",
		LastName:  "Lovelace",
	})
	require.NoError(t, err)
	f.bus.Wait()

	assert.Equal(t, models.RequestStatusPending, request.Status)
	assert.Equal(t, request.ID, got.RequestID)
	assert.Equal(t, "ada@example.com", got.Username)
	assert.Equal(t, "Ada", got.FirstName)
	assert.Equal(t, "Lovelace", got.LastName)
}

func TestRequestService_ChangeStatus_UnsupportedAction(t *testing.T) {
	f := newWorkflowFixture(t)

	_, err := f.svc.ChangeStatus(context.Background(), 1, "escalate")
	assertAppErrorCode(t, err, models.CodeUnsupportedAction)
}

func TestRequestService_ChangeStatus_NotFound(t *testing.T) {
	f := newWorkflowFixture(t)
	f.requests.getByIDFn = func(_ context.Context, id uint) (*models.Request, error) {
		return nil, models.NewNotFoundError("Request", id)
	}

	_, err := f.svc.ChangeStatus(context.Background(), 99, ActionApprove)
	assertAppErrorCode(t, err, models.CodeNotFound)
}

func TestRequestService_ChangeStatus_TerminalRequest(t *testing.T) {
	f := newWorkflowFixture(t)
	f.requests.getByIDFn = func(_ context.Context, id uint) (*models.Request, error) {
		first, last := "Ada", "Lovelace"
		return &models.Request{
			ID: id, Type: models.RequestTypeRegistration,
			Status: models.RequestStatusApproved, Username: "ada@example.com",
			FirstName: &first, LastName: &last,
		}, nil
	}

	_, err := f.svc.ChangeStatus(context.Background(), 1, ActionReject)
	appErr := assertAppErrorCode(t, err, models.CodeInvalidState)
	assert.Equal(t, "No one can change approved or rejected request", appErr.Message)
}

func TestRequestService_ChangeStatus_ApproveRegistration(t *testing.T) {
	f := newWorkflowFixture(t)
	first, last := "Ada", "Lovelace"
	f.requests.getByIDFn = func(_ context.Context, id uint) (*models.Request, error) {
		return &models.Request{
			ID: id, Type: models.RequestTypeRegistration,
			Status: models.RequestStatusPending, Username: "ada@example.com",
			FirstName: &first, LastName: &last,
		}, nil
	}

	var created *models.User
	f.users.createFn = func(_ context.Context, user *models.User) error {
		user.ID = 10
		created = user
		return nil
	}

	var got eventbus.RegistrationApprovedPayload
	f.bus.On(eventbus.RegistrationApproved, func(_ context.Context, payload any) error {
		got = payload.(eventbus.RegistrationApprovedPayload)
		return nil
	})

	request, err := f.svc.ChangeStatus(context.Background(), 1, ActionApprove)
	require.NoError(t, err)
	f.bus.Wait()

	assert.Equal(t, models.RequestStatusApproved, request.Status)
	require.NotNil(t, created)
	assert.Equal(t, "ada@example.com", created.Username)
	assert.Equal(t, models.RoleUser, created.Role)

	// the event carries the plaintext credential that matches the stored hash
	require.NotEmpty(t, got.Password)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.Password), []byte(got.Password)))
}

func TestRequestService_ChangeStatus_ApproveDownloadLink(t *testing.T) {
	f := newWorkflowFixture(t)
	pubID := uint(42)
	f.requests.getByIDFn = func(_ context.Context, id uint) (*models.Request, error) {
		return &models.Request{
			ID: id, Type: models.RequestTypeDownloadLink,
			Status: models.RequestStatusPending, Username: "reader@example.com",
			PublicationID: &pubID,
		}, nil
	}
	f.codes.issueFn = func(_ context.Context, requester string, publicationID uint) (string, error) {
		assert.Equal(t, "reader@example.com", requester)
		assert.Equal(t, uint(42), publicationID)
		return "CODE123", nil
	}

	var got eventbus.DownloadLinkApprovedPayload
	f.bus.On(eventbus.DownloadLinkApproved, func(_ context.Context, payload any) error {
		got = payload.(eventbus.DownloadLinkApprovedPayload)
		return nil
	})

	_, err := f.svc.ChangeStatus(context.Background(), 7, ActionApprove)
	require.NoError(t, err)
	f.bus.Wait()

	assert.Equal(t, "CODE123", got.Code)
	assert.Equal(t, "http://localhost:8375/api/publications/42/file/download/reader@example.com/CODE123", got.DownloadLink)
	assert.Equal(t, "Structured Concurrency", got.PublicationTitle)
}

func TestRequestService_ChangeStatus_ApproveDownloadLinkGonePublication(t *testing.T) {
	f := newWorkflowFixture(t)
	pubID := uint(42)
	f.requests.getByIDFn = func(_ context.Context, id uint) (*models.Request, error) {
		return &models.Request{
			ID: id, Type: models.RequestTypeDownloadLink,
			Status: models.RequestStatusPending, Username: "reader@example.com",
			PublicationID: &pubID,
		}, nil
	}
	f.pubs.getByIDFn = func(_ context.Context, id uint) (*models.Publication, error) {
		return nil, models.NewNotFoundError("Publication", id)
	}

	decided := false
	f.requests.decideIfPendingFn = func(_ context.Context, _ uint, _ models.RequestStatus) (bool, error) {
		decided = true
		return true, nil
	}

	_, err := f.svc.ChangeStatus(context.Background(), 7, ActionApprove)
	assertAppErrorCode(t, err, models.CodeReference)
	assert.False(t, decided, "request must stay pending when the publication is gone")
}

func TestRequestService_ChangeStatus_RejectDownloadLinkRevokesCode(t *testing.T) {
	f := newWorkflowFixture(t)
	pubID := uint(42)
	f.requests.getByIDFn = func(_ context.Context, id uint) (*models.Request, error) {
		return &models.Request{
			ID: id, Type: models.RequestTypeDownloadLink,
			Status: models.RequestStatusPending, Username: "reader@example.com",
			PublicationID: &pubID,
		}, nil
	}

	revoked := false
	f.codes.revokeFn = func(_ context.Context, requester string, publicationID uint) error {
		revoked = true
		assert.Equal(t, "reader@example.com", requester)
		assert.Equal(t, uint(42), publicationID)
		return nil
	}

	var got eventbus.DownloadLinkRejectedPayload
	f.bus.On(eventbus.DownloadLinkRejected, func(_ context.Context, payload any) error {
		got = payload.(eventbus.DownloadLinkRejectedPayload)
		return nil
	})

	request, err := f.svc.ChangeStatus(context.Background(), 7, ActionReject)
	require.NoError(t, err)
	f.bus.Wait()

	assert.True(t, revoked)
	assert.Equal(t, models.RequestStatusRejected, request.Status)
	assert.Equal(t, "reader@example.com", got.Username)
}

func TestRequestService_ChangeStatus_LostRace(t *testing.T) {
	f := newWorkflowFixture(t)
	first, last := "Ada", "Lovelace"
	f.requests.getByIDFn = func(_ context.Context, id uint) (*models.Request, error) {
		return &models.Request{
			ID: id, Type: models.RequestTypeRegistration,
			Status: models.RequestStatusPending, Username: "ada@example.com",
			FirstName: &first, LastName: &last,
		}, nil
	}
	f.requests.decideIfPendingFn = func(_ context.Context, _ uint, _ models.RequestStatus) (bool, error) {
		return false, nil
	}

	emitted := false
	f.bus.On(eventbus.RegistrationApproved, func(_ context.Context, payload any) error {
		emitted = true
		return nil
	})

	_, err := f.svc.ChangeStatus(context.Background(), 1, ActionApprove)
	assertAppErrorCode(t, err, models.CodeInvalidState)
	f.bus.Wait()
	assert.False(t, emitted, "losing decision must not announce an approval")
}

func TestRequestService_ChangeStatus_LostRaceRemovesProvisionalUser(t *testing.T) {
	f := newWorkflowFixture(t)
	first, last := "Ada", "Lovelace"
	f.requests.getByIDFn = func(_ context.Context, id uint) (*models.Request, error) {
		return &models.Request{
			ID: id, Type: models.RequestTypeRegistration,
			Status: models.RequestStatusPending, Username: "ada@example.com",
			FirstName: &first, LastName: &last,
		}, nil
	}
	f.requests.decideIfPendingFn = func(_ context.Context, _ uint, _ models.RequestStatus) (bool, error) {
		return false, nil
	}

	f.users.createFn = func(_ context.Context, user *models.User) error {
		user.ID = 10
		return nil
	}
	var deleted []uint
	f.users.deleteFn = func(_ context.Context, id uint) error {
		deleted = append(deleted, id)
		return nil
	}

	_, err := f.svc.ChangeStatus(context.Background(), 1, ActionApprove)
	assertAppErrorCode(t, err, models.CodeInvalidState)

	// a rejected request must not leave a working account behind
	assert.Equal(t, []uint{10}, deleted)
}

func TestRequestService_ChangeStatus_LostRaceRevokesIssuedCode(t *testing.T) {
	f := newWorkflowFixture(t)
	pubID := uint(42)
	f.requests.getByIDFn = func(_ context.Context, id uint) (*models.Request, error) {
		return &models.Request{
			ID: id, Type: models.RequestTypeDownloadLink,
			Status: models.RequestStatusPending, Username: "reader@example.com",
			PublicationID: &pubID,
		}, nil
	}
	f.requests.decideIfPendingFn = func(_ context.Context, _ uint, _ models.RequestStatus) (bool, error) {
		return false, nil
	}
	f.codes.issueFn = func(_ context.Context, _ string, _ uint) (string, error) {
		return "CODE123", nil
	}

	var revoked []string
	f.codes.revokeIfCurrentFn = func(_ context.Context, requester string, publicationID uint, code string) error {
		assert.Equal(t, "reader@example.com", requester)
		assert.Equal(t, uint(42), publicationID)
		revoked = append(revoked, code)
		return nil
	}

	emitted := false
	f.bus.On(eventbus.DownloadLinkApproved, func(_ context.Context, _ any) error {
		emitted = true
		return nil
	})

	_, err := f.svc.ChangeStatus(context.Background(), 7, ActionApprove)
	assertAppErrorCode(t, err, models.CodeInvalidState)
	f.bus.Wait()

	// the code issued by the losing approval must be gone immediately, not
	// merely after its TTL
	assert.Equal(t, []string{"CODE123"}, revoked)
	assert.False(t, emitted)
}
