package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"civic-task-engine/middleware"
	"civic-task-engine/models"
	"civic-task-engine/notifications"
	"civic-task-engine/services"
	"civic-task-engine/utils"
	"civic-task-engine/verifier"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeUploader struct {
	calls int
}

func (f *fakeUploader) UploadProofPhoto(_ context.Context, userID string, fh *multipart.FileHeader) (string, error) {
	f.calls++
	key, err := utils.ProofPhotoKey(userID, fh)
	if err != nil {
		return "", err
	}
	return "https://cdn.test/" + key, nil
}

type testAPI struct {
	app *fiber.App
	db  *gorm.DB
}

func setupAPI(t *testing.T, mutate ...func(*Engine)) *testAPI {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, models.AutoMigrate(db))

	clock := services.SystemClock{}
	sink := notifications.NopSink{}
	badges := services.NewBadgeService(db, clock, sink)
	leaderboard := services.NewLeaderboardService(db, clock)
	scoring := services.NewScoringService(db, clock, badges, leaderboard, sink)

	e := Engine{
		Users:       services.NewUserDirectory(db),
		Assignments: services.NewAssignmentScheduler(db, clock, sink),
		Submissions: services.NewSubmissionService(db, clock, scoring, 0),
		Badges:      badges,
		Leaderboard: leaderboard,
		Rotation:    services.NewRotationService(db, clock),
	}
	for _, m := range mutate {
		m(&e)
	}

	app := fiber.New()
	SetupRoutes(app, e)
	return &testAPI{app: app, db: db}
}

func (a *testAPI) seedUser(t *testing.T) *models.User {
	t.Helper()
	hood := &models.Neighborhood{Name: "Riverside " + uuid.NewString()[:8]}
	require.NoError(t, a.db.Create(hood).Error)
	u := &models.User{ExternalUserID: uuid.NewString(), Username: "ana", NeighborhoodID: &hood.ID, IsActive: true, Level: 1}
	require.NoError(t, a.db.Create(u).Error)
	return u
}

func (a *testAPI) seedTask(t *testing.T, method models.VerificationMethod) *models.Task {
	t.Helper()
	task := &models.Task{
		Title:              "Sort the recycling",
		Category:           "recycling",
		VerificationMethod: method,
		Criteria:           datatypes.NewJSONType(models.VerificationCriteria{QRCodeSecret: "secret"}),
		BasePoints:         100,
		Frequency:          models.FrequencyOnDemand,
		IsActive:           true,
		Status:             models.TaskStatusActive,
	}
	require.NoError(t, a.db.Create(task).Error)
	return task
}

func (a *testAPI) do(t *testing.T, method, path, user, roles string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	if roles != "" {
		req.Header.Set("X-User-Roles", roles)
	}
	return a.send(t, req)
}

func (a *testAPI) send(t *testing.T, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestSecuredRoutesRequireUser(t *testing.T) {
	api := setupAPI(t)
	status, _ := api.do(t, http.MethodGet, "/s/tasks", "", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestGetTasksUnknownUser(t *testing.T) {
	api := setupAPI(t)
	status, body := api.do(t, http.MethodGet, "/s/tasks", "ghost", "", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "user not found", body["error"])
}

func TestGetTasksListsOnDemand(t *testing.T) {
	api := setupAPI(t)
	user := api.seedUser(t)
	api.seedTask(t, models.VerificationQRScan)

	status, body := api.do(t, http.MethodGet, "/s/tasks", user.ExternalUserID, "", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["tasks"], 1)
}

func TestSubmitProof(t *testing.T) {
	api := setupAPI(t)
	user := api.seedUser(t)
	task := api.seedTask(t, models.VerificationQRScan)
	path := fmt.Sprintf("/s/tasks/%s/submit", task.ID)

	t.Run("approved", func(t *testing.T) {
		status, body := api.do(t, http.MethodPost, path, user.ExternalUserID, "", verifier.Proof{QRCodeData: "secret"})
		require.Equal(t, fiber.StatusOK, status)
		assert.Equal(t, string(models.SubmissionApproved), body["status"])
		assert.EqualValues(t, 100, body["points_awarded"])
	})

	t.Run("rejected", func(t *testing.T) {
		status, body := api.do(t, http.MethodPost, path, user.ExternalUserID, "", verifier.Proof{QRCodeData: "nope"})
		require.Equal(t, fiber.StatusOK, status)
		assert.Equal(t, string(models.SubmissionRejected), body["status"])
		assert.NotEmpty(t, body["reason"])
	})

	t.Run("unknown task", func(t *testing.T) {
		status, _ := api.do(t, http.MethodPost, "/s/tasks/"+uuid.NewString()+"/submit", user.ExternalUserID, "", verifier.Proof{})
		assert.Equal(t, fiber.StatusNotFound, status)
	})

	t.Run("invalid input", func(t *testing.T) {
		photo := api.seedTask(t, models.VerificationPhotoUpload)
		status, body := api.do(t, http.MethodPost, "/s/tasks/"+photo.ID+"/submit", user.ExternalUserID, "", verifier.Proof{})
		assert.Equal(t, fiber.StatusBadRequest, status)
		assert.Equal(t, "invalid proof", body["error"])
	})
}

func TestManualReportReviewFlow(t *testing.T) {
	api := setupAPI(t)
	user := api.seedUser(t)
	task := api.seedTask(t, models.VerificationManualReport)

	status, body := api.do(t, http.MethodPost, "/s/tasks/"+task.ID+"/submit", user.ExternalUserID, "", verifier.Proof{Notes: "cleared the drain"})
	require.Equal(t, fiber.StatusAccepted, status)
	sub := body["submission"].(map[string]any)
	reviewPath := fmt.Sprintf("/s/admin/submissions/%s/review", sub["id"])

	status, _ = api.do(t, http.MethodPost, reviewPath, "mod-1", "", map[string]any{"approve": true})
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = api.do(t, http.MethodPost, reviewPath, "mod-1", "Admin", map[string]any{"note": "?"})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body = api.do(t, http.MethodPost, reviewPath, "mod-1", "Admin", map[string]any{"approve": true, "note": "ok"})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, string(models.SubmissionApproved), body["status"])
	assert.EqualValues(t, 100, body["points_awarded"])

	status, body = api.do(t, http.MethodPost, reviewPath, "mod-1", "admin", map[string]any{"approve": false})
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "submission already reviewed", body["error"])
}

func TestLeaderboard(t *testing.T) {
	api := setupAPI(t)
	api.seedUser(t)
	api.seedUser(t)

	status, body := api.do(t, http.MethodGet, "/leaderboard?period=weekly&limit=1", "", "", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "weekly", body["period"])
	assert.Len(t, body["entries"], 1)

	status, body = api.do(t, http.MethodGet, "/leaderboard?period=fortnight", "", "", nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid period", body["error"])
}

func TestAdminJobs(t *testing.T) {
	api := setupAPI(t)

	status, body := api.do(t, http.MethodPost, "/s/admin/jobs/rotation", "ops", "admin", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, body, "cloned")

	status, body = api.do(t, http.MethodPost, "/s/admin/jobs/leaderboard", "ops", "admin", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, body, "neighborhoods")
}

func photoRequest(t *testing.T, user, contentType string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="photo"; filename="proof.png"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write([]byte("\x89PNG\r\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/s/proofs/photo", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("X-User-ID", user)
	return req
}

func TestUploadPhoto(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		api := setupAPI(t)
		user := api.seedUser(t)
		status, _ := api.send(t, photoRequest(t, user.ExternalUserID, "image/png"))
		assert.Equal(t, fiber.StatusServiceUnavailable, status)
	})

	uploader := &fakeUploader{}
	api := setupAPI(t, func(e *Engine) { e.Photos = uploader })
	user := api.seedUser(t)

	status, body := api.send(t, photoRequest(t, user.ExternalUserID, "image/png"))
	require.Equal(t, fiber.StatusCreated, status)
	assert.Contains(t, body["photo_url"], "https://cdn.test/proofs/"+user.ID+"/")

	status, body = api.send(t, photoRequest(t, user.ExternalUserID, "text/plain"))
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "unsupported photo type", body["error"])
	assert.Equal(t, 2, uploader.calls)
}

func TestSubmitRateLimited(t *testing.T) {
	limiter := middleware.NewUserRateLimiter(1, 1)
	api := setupAPI(t, func(e *Engine) { e.SubmitLimiter = limiter.Handler() })
	user := api.seedUser(t)
	task := api.seedTask(t, models.VerificationQRScan)
	path := "/s/tasks/" + task.ID + "/submit"

	status, _ := api.do(t, http.MethodPost, path, user.ExternalUserID, "", verifier.Proof{QRCodeData: "secret"})
	require.Equal(t, fiber.StatusOK, status)
	status, _ = api.do(t, http.MethodPost, path, user.ExternalUserID, "", verifier.Proof{QRCodeData: "secret"})
	assert.Equal(t, fiber.StatusTooManyRequests, status)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{verifier.ErrIncompleteQuizAnswers, fiber.StatusBadRequest},
		{fmt.Errorf("wrap: %w", services.ErrTaskNotFound), fiber.StatusNotFound},
		{verifier.ErrQuizNotFound, fiber.StatusNotFound},
		{services.ErrAssignmentAlreadyCompleted, fiber.StatusConflict},
		{services.ErrReviewPending, fiber.StatusConflict},
		{services.ErrSubmissionCooldown, fiber.StatusTooManyRequests},
		{verifier.ErrQuizMisconfigured, fiber.StatusUnprocessableEntity},
		{errors.New("disk on fire"), fiber.StatusInternalServerError},
	}
	for _, tc := range cases {
		status, _ := statusFor(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
	}
}

func TestHealthz(t *testing.T) {
	api := setupAPI(t)
	status, body := api.do(t, http.MethodGet, "/healthz", "", "", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}
