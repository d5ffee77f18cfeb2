package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gamification-ledger/logger"
	"gamification-ledger/middleware"
	"gamification-ledger/models"
	"gamification-ledger/services"
	"gamification-ledger/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const gatewayToken = "gateway-secret"

func newTestApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	db := testutil.OpenTestDB(t)
	log := logger.Nop()
	clock := services.NewClock(time.UTC)

	profiles := services.NewProfileService(db, log)
	events := services.NewEventLogService(db, log)
	svc := LedgerServices{
		Profiles: profiles,
		Streaks:  services.NewStreakService(db, log, clock, 2),
		Missions: services.NewMissionService(db, log, clock, profiles, services.NewKeyedMutex(), 5),
		Events:   events,
	}

	app := fiber.New()
	app.Use(middleware.GatewayAuthMiddleware(gatewayToken, log))
	SetupGamificationRoutes(app, svc, log)
	SetupCatalogRoutes(app, services.NewCatalogService(db, log), events, log)
	return app, db
}

type call struct {
	method string
	path   string
	body   string
	user   string
	roles  string
}

func do(t *testing.T, app *fiber.App, c call) (int, map[string]interface{}) {
	t.Helper()
	var body io.Reader
	if c.body != "" {
		body = strings.NewReader(c.body)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+gatewayToken)
	if c.body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if c.user != "" {
		req.Header.Set("X-User-ID", c.user)
	}
	if c.roles != "" {
		req.Header.Set("X-User-Roles", c.roles)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestGatewayTokenRequired(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/user/gamification", nil)
	req.Header.Set("X-User-ID", "user-1")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req.Header.Set(fiber.HeaderAuthorization, "Bearer wrong")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestUserRoutesRequireUserID(t *testing.T) {
	app, _ := newTestApp(t)
	status, _ := do(t, app, call{method: http.MethodGet, path: "/user/gamification"})
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestOverviewCreatesProfile(t *testing.T) {
	app, _ := newTestApp(t)
	status, body := do(t, app, call{method: http.MethodGet, path: "/user/gamification", user: "user-1"})
	require.Equal(t, fiber.StatusOK, status)

	profile := body["profile"].(map[string]interface{})
	assert.Equal(t, "user-1", profile["profile_id"])
	streak := body["streak"].(map[string]interface{})
	assert.EqualValues(t, 0, streak["current_streak"])
}

func TestStreakActivityAndRepairConflict(t *testing.T) {
	app, _ := newTestApp(t)

	status, body := do(t, app, call{method: http.MethodPost, path: "/user/streak/activity", user: "user-1"})
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, body["streak"].(map[string]interface{})["current_streak"])

	status, body = do(t, app, call{method: http.MethodGet, path: "/user/streak/logs", user: "user-1"})
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["logs"], 1)

	// no credits and nothing missed
	status, _ = do(t, app, call{method: http.MethodPost, path: "/user/streak/repair", user: "user-1"})
	assert.Equal(t, fiber.StatusConflict, status)
}

func TestMissionRoutes(t *testing.T) {
	app, db := newTestApp(t)
	xp := testutil.SeedReward(t, db, "xp-20", models.RewardTypeXP, 20)
	testutil.SeedMission(t, db, "read-a-lesson", models.TargetLessonCompleted, 1, xp)

	status, body := do(t, app, call{method: http.MethodGet, path: "/user/missions/daily", user: "user-1"})
	require.Equal(t, fiber.StatusOK, status)
	missions := body["missions"].([]interface{})
	require.Len(t, missions, 1)
	progressID := missions[0].(map[string]interface{})["id"].(string)

	status, _ = do(t, app, call{method: http.MethodPost, path: "/user/missions/progress", user: "user-1", body: `{`})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body = do(t, app, call{
		method: http.MethodPost, path: "/user/missions/progress", user: "user-1",
		body: `{"target_type":"LESSON_COMPLETED"}`,
	})
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["completed"], 1)

	status, body = do(t, app, call{method: http.MethodPost, path: "/user/missions/" + progressID + "/claim", user: "user-1"})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["already_claimed"])

	status, _ = do(t, app, call{method: http.MethodPost, path: "/user/missions/missing/claim", user: "user-1"})
	assert.Equal(t, fiber.StatusNotFound, status)

	status, body = do(t, app, call{method: http.MethodGet, path: "/user/gamification/events", user: "user-1"})
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["events"], 1)
}

func TestAdminRoutesRequireRole(t *testing.T) {
	app, _ := newTestApp(t)
	status, _ := do(t, app, call{method: http.MethodGet, path: "/s/admin/catalog/rewards", user: "user-1"})
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = do(t, app, call{method: http.MethodGet, path: "/s/admin/catalog/rewards", user: "user-1", roles: "player, admin"})
	assert.Equal(t, fiber.StatusOK, status)
}

func TestAdminCatalogAndReconcile(t *testing.T) {
	app, _ := newTestApp(t)
	admin := func(method, path, body string) (int, map[string]interface{}) {
		return do(t, app, call{method: method, path: path, body: body, user: "ops", roles: "admin"})
	}

	status, body := admin(http.MethodPost, "/s/admin/catalog/rewards", `{"reward_type":"XP","reward_value":100}`)
	require.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, "xp-100", body["code"])

	status, _ = admin(http.MethodPost, "/s/admin/catalog/rewards", `{"reward_type":"GOLD","reward_value":1}`)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body = admin(http.MethodPost, "/s/admin/catalog/streak-rewards", `{"streak_target":1,"rewards":["xp-100"]}`)
	require.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, "streak-1", body["code"])

	status, body = admin(http.MethodPost, "/s/admin/catalog/missions",
		`{"title":"Upload a document","target_type":"DOCUMENT_UPLOADED","total_count":1,"rewards":["xp-100"]}`)
	require.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, "upload-a-document", body["code"])

	status, _ = do(t, app, call{method: http.MethodPost, path: "/user/streak/activity", user: "user-9"})
	require.Equal(t, fiber.StatusOK, status)

	status, body = admin(http.MethodGet, "/s/admin/ledger/user-9/reconcile", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["balanced"])

	status, _ = admin(http.MethodGet, "/s/admin/ledger/nobody/reconcile", "")
	assert.Equal(t, fiber.StatusNotFound, status)
}
