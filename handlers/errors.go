package handlers

import (
	"errors"

	"gamification-ledger/logger"
	"gamification-ledger/services"

	"github.com/gofiber/fiber/v2"
)

// respondError maps service errors onto HTTP statuses.
func respondError(c *fiber.Ctx, log *logger.Logger, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		status = fiber.StatusBadRequest
	case errors.Is(err, services.ErrProfileNotFound),
		errors.Is(err, services.ErrStreakNotFound),
		errors.Is(err, services.ErrMissionNotFound),
		errors.Is(err, services.ErrProgressNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, services.ErrInsufficientCredits),
		errors.Is(err, services.ErrNothingToRepair):
		status = fiber.StatusConflict
	}
	if status == fiber.StatusInternalServerError {
		log.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
		return c.Status(status).JSON(fiber.Map{"error": "internal error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
