package handlers

import (
	"civic-task-engine/services"

	"github.com/gofiber/fiber/v2"
)

func (e Engine) getLeaderboard(c *fiber.Ctx) error {
	period, err := services.ParsePeriod(c.Query("period"))
	if err != nil {
		return writeError(c, err)
	}
	limit := c.QueryInt("limit", 0)

	entries, err := e.Leaderboard.GetLeaderboard(c.UserContext(), period, limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"period":  period,
		"entries": entries,
	})
}
