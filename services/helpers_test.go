package services

import (
	"context"
	"testing"
	"time"

	"gamification-ledger/logger"
	"gamification-ledger/models"
	"gamification-ledger/testutil"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testLedger struct {
	db  *gorm.DB
	now time.Time

	profiles *ProfileService
	streaks  *StreakService
	missions *MissionService
	events   *EventLogService
	catalog  *CatalogService
}

func newTestLedger(t *testing.T) *testLedger {
	t.Helper()
	l := &testLedger{
		db:  testutil.OpenTestDB(t),
		now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	clock := Clock{Now: func() time.Time { return l.now }, Location: time.UTC}
	log := logger.Nop()

	l.profiles = NewProfileService(l.db, log)
	l.streaks = NewStreakService(l.db, log, clock, 2)
	l.missions = NewMissionService(l.db, log, clock, l.profiles, NewKeyedMutex(), 5)
	l.events = NewEventLogService(l.db, log)
	l.catalog = NewCatalogService(l.db, log)
	return l
}

func (l *testLedger) profile(t *testing.T, profileID string) *models.GamificationProfile {
	t.Helper()
	p, err := l.profiles.EnsureProfile(context.Background(), profileID)
	require.NoError(t, err)
	return p
}

func (l *testLedger) reload(t *testing.T, p *models.GamificationProfile) *models.GamificationProfile {
	t.Helper()
	var fresh models.GamificationProfile
	require.NoError(t, l.db.First(&fresh, "id = ?", p.ID).Error)
	return &fresh
}

func (l *testLedger) streakOf(t *testing.T, p *models.GamificationProfile) models.Streak {
	t.Helper()
	var s models.Streak
	require.NoError(t, l.db.First(&s, "gamification_profile_id = ?", p.ID).Error)
	return s
}

func (l *testLedger) setStreak(t *testing.T, p *models.GamificationProfile, current, max int64, lastActive *time.Time) {
	t.Helper()
	require.NoError(t, l.db.Model(&models.Streak{}).
		Where("gamification_profile_id = ?", p.ID).
		Updates(map[string]interface{}{
			"current_streak": current,
			"max_streak":     max,
			"last_active_at": lastActive,
		}).Error)
}

// credit grants balances through the real chokepoint so the ledger stays reconciled.
func (l *testLedger) credit(t *testing.T, p *models.GamificationProfile, rewards ...models.Reward) {
	t.Helper()
	require.NoError(t, l.db.Transaction(func(tx *gorm.DB) error {
		_, err := applyRewards(tx, p, rewards, grant{Action: models.ActionMissionReward, SourceType: "test"})
		return err
	}))
}

func (l *testLedger) count(t *testing.T, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, l.db.Model(model).Where(query, args...).Count(&n).Error)
	return n
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}
