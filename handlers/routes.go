package handlers

import (
	"context"
	"mime/multipart"

	"civic-task-engine/middleware"
	"civic-task-engine/services"

	"github.com/gofiber/fiber/v2"
)

// PhotoUploader stores a proof photo and returns its public URL.
type PhotoUploader interface {
	UploadProofPhoto(ctx context.Context, userID string, fileHeader *multipart.FileHeader) (string, error)
}

// Engine bundles the services the HTTP surface calls into.
type Engine struct {
	Users       *services.UserDirectory
	Assignments *services.AssignmentScheduler
	Submissions *services.SubmissionService
	Badges      *services.BadgeService
	Leaderboard *services.LeaderboardService
	Rotation    *services.RotationService
	// Photos is nil when no photo store is configured.
	Photos PhotoUploader
	// SubmitLimiter guards proof submission; nil disables throttling.
	SubmitLimiter fiber.Handler
}

// SetupRoutes registers the engine API. The gateway forwards /api/v1/tasks/s/... as /s/...
func SetupRoutes(app *fiber.App, e Engine) {
	app.Get("/healthz", e.health)
	app.Get("/leaderboard", e.getLeaderboard)

	// 🔐 Secured routes: user context comes from gateway headers
	secured := app.Group("/s", middleware.UserContextMiddleware())
	secured.Get("/tasks", e.getTasks)

	submit := []fiber.Handler{}
	if e.SubmitLimiter != nil {
		submit = append(submit, e.SubmitLimiter)
	}
	submit = append(submit, e.submitProof)
	secured.Post("/tasks/:id/submit", submit...)

	secured.Post("/proofs/photo", e.uploadPhoto)
	secured.Get("/badges", e.getBadges)

	admin := secured.Group("/admin", middleware.RequireRole("admin"))
	admin.Post("/submissions/:id/review", e.reviewSubmission)
	admin.Post("/jobs/rotation", e.runRotation)
	admin.Post("/jobs/leaderboard", e.runLeaderboard)
}

func (e Engine) health(c *fiber.Ctx) error {
	sqlDB, err := e.Users.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(c.UserContext())
	}
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "degraded",
			"cause":  err.Error(),
		})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
