package handlers

import (
	"civic-task-engine/middleware"

	"github.com/gofiber/fiber/v2"
)

func (e Engine) reviewSubmission(c *fiber.Ctx) error {
	var req struct {
		Approve *bool  `json:"approve"`
		Note    string `json:"note"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON", err)
	}
	if req.Approve == nil {
		return badRequest(c, "approve is required", nil)
	}

	res, err := e.Submissions.ReviewSubmission(c.UserContext(), c.Params("id"), *req.Approve, middleware.UserID(c), req.Note)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(res)
}

func (e Engine) runRotation(c *fiber.Ctx) error {
	res, err := e.Rotation.RunHourlyRotation(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(res)
}

func (e Engine) runLeaderboard(c *fiber.Ctx) error {
	res, err := e.Leaderboard.RunLeaderboardRefresh(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(res)
}
