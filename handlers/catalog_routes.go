// handlers/catalog_routes.go
package handlers

import (
	"gamification-ledger/logger"
	"gamification-ledger/middleware"
	"gamification-ledger/services"

	"github.com/gofiber/fiber/v2"
)

func SetupCatalogRoutes(app *fiber.App, catalog *services.CatalogService, events *services.EventLogService, log *logger.Logger) {
	log = log.With("routes", "admin")

	admin := app.Group("/s/admin", middleware.UserContextMiddleware(), middleware.RequireRole("admin"))

	admin.Get("/catalog/rewards", func(c *fiber.Ctx) error {
		rewards, err := catalog.ListRewards(c.UserContext())
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(fiber.Map{"rewards": rewards})
	})
	admin.Post("/catalog/rewards", func(c *fiber.Ctx) error {
		var in services.RewardInput
		if err := c.BodyParser(&in); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
		}
		reward, err := catalog.CreateReward(c.UserContext(), in)
		if err != nil {
			return respondError(c, log, err)
		}
		return c.Status(fiber.StatusCreated).JSON(reward)
	})

	admin.Get("/catalog/missions", func(c *fiber.Ctx) error {
		missions, err := catalog.ListMissions(c.UserContext())
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(fiber.Map{"missions": missions})
	})
	admin.Post("/catalog/missions", func(c *fiber.Ctx) error {
		var in services.MissionInput
		if err := c.BodyParser(&in); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
		}
		mission, err := catalog.CreateMission(c.UserContext(), in)
		if err != nil {
			return respondError(c, log, err)
		}
		return c.Status(fiber.StatusCreated).JSON(mission)
	})

	admin.Get("/catalog/streak-rewards", func(c *fiber.Ctx) error {
		tiers, err := catalog.ListStreakRewards(c.UserContext())
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(fiber.Map{"streak_rewards": tiers})
	})
	admin.Post("/catalog/streak-rewards", func(c *fiber.Ctx) error {
		var in services.StreakRewardInput
		if err := c.BodyParser(&in); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
		}
		tier, err := catalog.CreateStreakReward(c.UserContext(), in)
		if err != nil {
			return respondError(c, log, err)
		}
		return c.Status(fiber.StatusCreated).JSON(tier)
	})

	admin.Get("/ledger/:profileId/reconcile", func(c *fiber.Ctx) error {
		rec, err := events.Reconcile(c.UserContext(), c.Params("profileId"))
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(rec)
	})
}
