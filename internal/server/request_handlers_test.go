package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"biblio/internal/config"
	"biblio/internal/database"
	"biblio/internal/models"
)

type testEnv struct {
	server *Server
	app    *fiber.App
	db     *gorm.DB
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrateModels(db))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := &config.Config{
		Env:                  "test",
		Port:                 "0",
		BaseURL:              "http://localhost:8375",
		JWTSecret:            "test-secret-at-least-32-characters-long",
		ClientID:             "biblio-web",
		ClientSecret:         "test-client-secret",
		AdminEmail:           "admin@example.com",
		AccessCodeTTLSeconds: 3600,
		FileStorageDir:       t.TempDir(),
	}

	srv, err := NewServerWithDeps(cfg, db, rdb)
	require.NoError(t, err)
	t.Cleanup(func() { srv.bus.Close() })

	app := fiber.New()
	srv.SetupRoutes(app)

	return &testEnv{server: srv, app: app, db: db}
}

func (e *testEnv) createUser(t *testing.T, username, role string) (*models.User, string) {
	t.Helper()
	user := &models.User{
		Username: username,
		Password: "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy",
		Role:     role,
	}
	require.NoError(t, e.db.Create(user).Error)
	token, err := e.server.generateToken(user.ID, user.Username)
	require.NoError(t, err)
	return user, token
}

func (e *testEnv) createPublicationWithFile(t *testing.T, title string) *models.Publication {
	t.Helper()
	pub := &models.Publication{
		Title:       title,
		FileName:    "paper.pdf",
		ContentType: "application/pdf",
	}
	require.NoError(t, e.db.Create(pub).Error)
	_, err := e.server.files.Save(pub.ID, strings.NewReader("%PDF-1.4 test content"))
	require.NoError(t, err)
	return pub
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func (e *testEnv) submitRequest(t *testing.T, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/requests", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Client-Id", "biblio-web")
	req.Header.Set("X-Client-Secret", "test-client-secret")
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestCreateRequest_RequiresClientCredentials(t *testing.T) {
	e := setupTestEnv(t)

	raw := []byte(`{"type":"registration","username":"ada@example.com","extra":{"firstName":"Ada","lastName":"Lovelace"}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/requests", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateRequest_AggregatedValidation(t *testing.T) {
	e := setupTestEnv(t)

	resp := e.submitRequest(t, fiber.Map{
		"type":     "registration",
		"username": "not-an-email",
		"extra":    fiber.Map{},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
	assert.Equal(t, "Some required data is missing: username, firstName, lastName", body["error"])
}

func TestRequestListing_AdminOnly(t *testing.T) {
	e := setupTestEnv(t)
	_, userToken := e.createUser(t, "reader@example.com", models.RoleUser)
	_, adminToken := e.createUser(t, "admin@example.com", models.RoleAdmin)

	resp := e.do(t, http.MethodGet, "/api/requests", userToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/requests", adminToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/requests/999", adminToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// Scenario: an anonymous visitor requests a download link, an admin approves
// it, and the visitor downloads the file with the issued code, twice, while a
// tampered code stays out.
func TestDownloadLinkLifecycle(t *testing.T) {
	e := setupTestEnv(t)
	_, adminToken := e.createUser(t, "admin@example.com", models.RoleAdmin)
	pub := e.createPublicationWithFile(t, "Structured Concurrency")

	resp := e.submitRequest(t, fiber.Map{
		"type":     "downloadLink",
		"username": "reader@example.com",
		"extra":    fiber.Map{"publicationId": pub.ID},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody(t, resp)
	requestID := int(created["id"].(float64))
	assert.Equal(t, "pending", created["status"])
	e.server.Bus().Wait()

	// admin approves; capture the emitted link via the recorded email
	resp = e.do(t, http.MethodPost, fmt.Sprintf("/api/requests/%d/approve", requestID), adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decided := decodeBody(t, resp)
	assert.Equal(t, "approved", decided["status"])
	e.server.Bus().Wait()

	var link string
	for _, mail := range e.server.SentEmails().Sent() {
		if mail.To == "reader@example.com" {
			if i := strings.Index(mail.Body, "http://localhost:8375"); i >= 0 {
				rest := mail.Body[i:]
				link = rest[:strings.IndexByte(rest, '"')]
			}
		}
	}
	require.NotEmpty(t, link, "approval email should carry the download link")
	path := strings.TrimPrefix(link, "http://localhost:8375")

	// the issued link works, repeatedly
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		dlResp, err := e.app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, dlResp.StatusCode)
		content, _ := io.ReadAll(dlResp.Body)
		dlResp.Body.Close()
		assert.Contains(t, string(content), "%PDF-1.4")
	}

	// a tampered code does not
	req := httptest.NewRequest(http.MethodGet, path+"x", nil)
	dlResp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, dlResp.StatusCode)
	body := decodeBody(t, dlResp)
	assert.Equal(t, "ACCESS_DENIED", body["code"])
}

// Scenario: a rejected registration request creates no account and notifies
// the requester.
func TestRejectedRegistrationCreatesNoUser(t *testing.T) {
	e := setupTestEnv(t)
	_, adminToken := e.createUser(t, "admin@example.com", models.RoleAdmin)

	resp := e.submitRequest(t, fiber.Map{
		"type":     "registration",
		"username": "ada@example.com",
		"extra":    fiber.Map{"firstName": "Ada", "lastName": "Lovelace"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody(t, resp)
	requestID := int(created["id"].(float64))
	e.server.Bus().Wait()

	resp = e.do(t, http.MethodPost, fmt.Sprintf("/api/requests/%d/reject", requestID), adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	e.server.Bus().Wait()

	var count int64
	require.NoError(t, e.db.Model(&models.User{}).Where("username = ?", "ada@example.com").Count(&count).Error)
	assert.Zero(t, count)

	resp = e.do(t, http.MethodPost, "/api/auth/login", "", fiber.Map{
		"username": "ada@example.com",
		"password": "anything",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var rejectedMail bool
	for _, mail := range e.server.SentEmails().Sent() {
		if mail.To == "ada@example.com" && strings.Contains(mail.Subject, "declined") {
			rejectedMail = true
		}
	}
	assert.True(t, rejectedMail, "requester should get the rejection email")
}

// Scenario: a non-admin cannot decide requests and the request stays pending.
func TestNonAdminCannotDecide(t *testing.T) {
	e := setupTestEnv(t)
	_, userToken := e.createUser(t, "reader@example.com", models.RoleUser)

	resp := e.submitRequest(t, fiber.Map{
		"type":     "registration",
		"username": "ada@example.com",
		"extra":    fiber.Map{"firstName": "Ada", "lastName": "Lovelace"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody(t, resp)
	requestID := uint(created["id"].(float64))
	e.server.Bus().Wait()

	resp = e.do(t, http.MethodPost, fmt.Sprintf("/api/requests/%d/approve", requestID), userToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	var request models.Request
	require.NoError(t, e.db.First(&request, requestID).Error)
	assert.Equal(t, models.RequestStatusPending, request.Status)
}

func TestDecideRequest_TerminalAndUnsupported(t *testing.T) {
	e := setupTestEnv(t)
	_, adminToken := e.createUser(t, "admin@example.com", models.RoleAdmin)

	resp := e.submitRequest(t, fiber.Map{
		"type":     "registration",
		"username": "ada@example.com",
		"extra":    fiber.Map{"firstName": "Ada", "lastName": "Lovelace"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody(t, resp)
	requestID := int(created["id"].(float64))
	e.server.Bus().Wait()

	// unsupported action
	resp = e.do(t, http.MethodPost, fmt.Sprintf("/api/requests/%d/escalate", requestID), adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "UNSUPPORTED_ACTION", body["code"])

	// first decision wins
	resp = e.do(t, http.MethodPost, fmt.Sprintf("/api/requests/%d/approve", requestID), adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	e.server.Bus().Wait()

	// second decision is rejected with 403
	resp = e.do(t, http.MethodPost, fmt.Sprintf("/api/requests/%d/reject", requestID), adminToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	body = decodeBody(t, resp)
	assert.Equal(t, "INVALID_STATE", body["code"])
	assert.Equal(t, "No one can change approved or rejected request", body["error"])
}

func TestApprovedRegistrationCanLogIn(t *testing.T) {
	e := setupTestEnv(t)
	_, adminToken := e.createUser(t, "admin@example.com", models.RoleAdmin)

	resp := e.submitRequest(t, fiber.Map{
		"type":     "registration",
		"username": "ada@example.com",
		"extra":    fiber.Map{"firstName": "Ada", "lastName": "Lovelace"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody(t, resp)
	requestID := int(created["id"].(float64))
	e.server.Bus().Wait()

	resp = e.do(t, http.MethodPost, fmt.Sprintf("/api/requests/%d/approve", requestID), adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	e.server.Bus().Wait()

	// the welcome email carries the generated password
	var password string
	for _, mail := range e.server.SentEmails().Sent() {
		if mail.To == "ada@example.com" {
			const marker = "Password: <strong>"
			if i := strings.Index(mail.Body, marker); i >= 0 {
				rest := mail.Body[i+len(marker):]
				password = rest[:strings.Index(rest, "</strong>")]
			}
		}
	}
	require.NotEmpty(t, password)

	resp = e.do(t, http.MethodPost, "/api/auth/login", "", fiber.Map{
		"username": "ada@example.com",
		"password": password,
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.NotEmpty(t, body["token"])
}

func TestSentEmailsEndpointOnlyInTestProfile(t *testing.T) {
	e := setupTestEnv(t)

	resp := e.do(t, http.MethodGet, "/api/testing/sent-emails", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, float64(0), body["count"])
}
