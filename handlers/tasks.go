package handlers

import (
	"civic-task-engine/middleware"
	"civic-task-engine/models"
	"civic-task-engine/verifier"

	"github.com/gofiber/fiber/v2"
)

// currentUser resolves the gateway X-User-ID to the engine user.
func (e Engine) currentUser(c *fiber.Ctx) (*models.User, error) {
	return e.Users.ByExternalID(c.UserContext(), middleware.UserID(c))
}

func (e Engine) getTasks(c *fiber.Ctx) error {
	user, err := e.currentUser(c)
	if err != nil {
		return writeError(c, err)
	}
	tasks, err := e.Assignments.GetAssignedTasks(c.UserContext(), user.ID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"tasks": tasks})
}

func (e Engine) submitProof(c *fiber.Ctx) error {
	user, err := e.currentUser(c)
	if err != nil {
		return writeError(c, err)
	}
	var proof verifier.Proof
	if err := c.BodyParser(&proof); err != nil {
		return badRequest(c, "invalid JSON", err)
	}

	res, err := e.Submissions.SubmitProof(c.UserContext(), user.ID, c.Params("id"), proof)
	if err != nil {
		return writeError(c, err)
	}
	status := fiber.StatusOK
	if res.Status == models.SubmissionPending {
		status = fiber.StatusAccepted
	}
	return c.Status(status).JSON(res)
}

func (e Engine) uploadPhoto(c *fiber.Ctx) error {
	if e.Photos == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "photo uploads are disabled",
		})
	}
	user, err := e.currentUser(c)
	if err != nil {
		return writeError(c, err)
	}
	fileHeader, err := c.FormFile("photo")
	if err != nil {
		return badRequest(c, "photo file is required", err)
	}

	url, err := e.Photos.UploadProofPhoto(c.UserContext(), user.ID, fileHeader)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"photo_url": url})
}

func (e Engine) getBadges(c *fiber.Ctx) error {
	user, err := e.currentUser(c)
	if err != nil {
		return writeError(c, err)
	}
	badges, err := e.Badges.GetUserBadges(c.UserContext(), user.ID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"level":  user.Level,
		"points": user.Points,
		"badges": badges,
	})
}
