// handlers/gamification_routes.go
package handlers

import (
	"gamification-ledger/logger"
	"gamification-ledger/middleware"
	"gamification-ledger/services"

	"github.com/gofiber/fiber/v2"
)

// LedgerServices groups what the user-facing routes need.
type LedgerServices struct {
	Profiles *services.ProfileService
	Streaks  *services.StreakService
	Missions *services.MissionService
	Events   *services.EventLogService
}

type progressRequest struct {
	TargetType string `json:"target_type"`
}

func SetupGamificationRoutes(app *fiber.App, svc LedgerServices, log *logger.Logger) {
	log = log.With("routes", "gamification")

	// The gateway forwards /api/v1/gamification/s/user/... as /user/...
	user := app.Group("/user", middleware.UserContextMiddleware())

	user.Get("/gamification", func(c *fiber.Ctx) error {
		overview, err := svc.Profiles.GetOverview(c.UserContext(), userID(c))
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(overview)
	})

	user.Get("/gamification/events", func(c *fiber.Ctx) error {
		events, err := svc.Events.ListEvents(c.UserContext(), userID(c), c.QueryInt("limit", 50))
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(fiber.Map{"events": events})
	})

	user.Post("/streak/activity", func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		if _, err := svc.Profiles.EnsureProfile(ctx, userID(c)); err != nil {
			return respondError(c, log, err)
		}
		res, err := svc.Streaks.RegisterActivity(ctx, userID(c))
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(res)
	})

	user.Post("/streak/repair", func(c *fiber.Ctx) error {
		res, err := svc.Streaks.RepairStreak(c.UserContext(), userID(c))
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(res)
	})

	user.Get("/streak/logs", func(c *fiber.Ctx) error {
		logs, err := svc.Streaks.ListStreakLogs(c.UserContext(), userID(c), c.QueryInt("limit", 50))
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(fiber.Map{"logs": logs})
	})

	user.Get("/missions/daily", func(c *fiber.Ctx) error {
		missions, err := svc.Missions.GetDailyMissionProgress(c.UserContext(), userID(c))
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(fiber.Map{"missions": missions})
	})

	user.Post("/missions/progress", func(c *fiber.Ctx) error {
		var req progressRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
		}
		update, err := svc.Missions.UpdateMissionProgress(c.UserContext(), userID(c), req.TargetType)
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(update)
	})

	user.Post("/missions/:id/claim", func(c *fiber.Ctx) error {
		res, err := svc.Missions.ClaimMissionReward(c.UserContext(), userID(c), c.Params("id"))
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(res)
	})
}

func userID(c *fiber.Ctx) string {
	id, _ := c.Locals(middleware.LocalUserID).(string)
	return id
}
