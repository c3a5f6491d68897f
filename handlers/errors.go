package handlers

import (
	"errors"
	"log"

	"civic-task-engine/services"
	"civic-task-engine/utils"
	"civic-task-engine/verifier"

	"github.com/gofiber/fiber/v2"
)

type errorMapping struct {
	target  error
	status  int
	message string
}

// Checked in order; the first match wins.
var errorMappings = []errorMapping{
	{verifier.ErrVerificationInputInvalid, fiber.StatusBadRequest, "invalid proof"},
	{services.ErrInvalidPeriod, fiber.StatusBadRequest, "invalid period"},
	{utils.ErrPhotoTooLarge, fiber.StatusBadRequest, "photo too large"},
	{utils.ErrPhotoNotAnImage, fiber.StatusBadRequest, "unsupported photo type"},
	{services.ErrUserNotFound, fiber.StatusNotFound, "user not found"},
	{services.ErrTaskNotFound, fiber.StatusNotFound, "task not found"},
	{services.ErrSubmissionNotFound, fiber.StatusNotFound, "submission not found"},
	{verifier.ErrQuizNotFound, fiber.StatusNotFound, "quiz not found"},
	{services.ErrTaskInactive, fiber.StatusConflict, "task is not active"},
	{services.ErrAssignmentNotFound, fiber.StatusConflict, "task is not assigned"},
	{services.ErrAssignmentAlreadyCompleted, fiber.StatusConflict, "task already completed"},
	{services.ErrSubmissionNotPending, fiber.StatusConflict, "submission already reviewed"},
	{services.ErrReviewPending, fiber.StatusConflict, "submission awaiting review"},
	{services.ErrSubmissionCooldown, fiber.StatusTooManyRequests, "task completed too recently"},
	{verifier.ErrQuizMisconfigured, fiber.StatusUnprocessableEntity, "quiz misconfigured"},
}

func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.message
		}
	}
	return fiber.StatusInternalServerError, "internal error"
}

func writeError(c *fiber.Ctx, err error) error {
	status, message := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		log.Printf("❌ %s %s failed: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(fiber.Map{
		"error": message,
		"cause": err.Error(),
	})
}

func badRequest(c *fiber.Ctx, message string, err error) error {
	body := fiber.Map{"error": message}
	if err != nil {
		body["cause"] = err.Error()
	}
	return c.Status(fiber.StatusBadRequest).JSON(body)
}
