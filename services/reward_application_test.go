package services

import (
	"testing"

	"gamification-ledger/models"
	"gamification-ledger/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestApplyRewardsDispatchesByType(t *testing.T) {
	l := newTestLedger(t)
	p := l.profile(t, "user-1")

	rewards := []models.Reward{
		testutil.SeedReward(t, l.db, "xp-30", models.RewardTypeXP, 30),
		testutil.SeedReward(t, l.db, "se-token-4", models.RewardTypeSEToken, 4),
		testutil.SeedReward(t, l.db, "freeze-2", models.RewardTypeFreeze, 2),
		testutil.SeedReward(t, l.db, "repair-1", models.RewardTypeRepair, 1),
	}

	var entries []models.GamificationEventLog
	require.NoError(t, l.db.Transaction(func(tx *gorm.DB) error {
		var err error
		entries, err = applyRewards(tx, p, rewards, grant{
			Action:     models.ActionStreakReward,
			SourceType: models.SourceStreakReward,
			SourceID:   "tier-1",
			Metadata:   map[string]interface{}{"code": "streak-7"},
		})
		return err
	}))

	require.Len(t, entries, 4)
	assert.Equal(t, int64(30), entries[0].XPDelta)
	assert.Equal(t, int64(4), entries[1].TokenDelta)
	assert.Equal(t, int64(2), entries[2].FreezeDelta)
	assert.Equal(t, int64(1), entries[3].RepairDelta)
	assert.JSONEq(t, `{"code":"streak-7"}`, string(entries[0].Metadata))

	// profile pointer is refreshed in place
	assert.Equal(t, int64(30), p.TotalXP)

	fresh := l.reload(t, p)
	assert.Equal(t, int64(30), fresh.TotalXP)
	assert.Equal(t, int64(30), fresh.SeasonXP)
	assert.Equal(t, int64(4), fresh.TokenBalance)
	assert.Equal(t, int64(2), fresh.FreezeCount)
	assert.Equal(t, int64(1), fresh.RepairCount)
}

func TestApplyRewardsRejectsUnknownType(t *testing.T) {
	l := newTestLedger(t)
	p := l.profile(t, "user-1")

	err := l.db.Transaction(func(tx *gorm.DB) error {
		_, err := applyRewards(tx, p, []models.Reward{{Code: "gems-5", RewardType: "GEMS", RewardValue: 5}}, grant{Action: models.ActionMissionReward})
		return err
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Zero(t, l.count(t, &models.GamificationEventLog{}, "1 = 1"))
}

func TestConsumeCredit(t *testing.T) {
	l := newTestLedger(t)
	p := l.profile(t, "user-1")

	err := l.db.Transaction(func(tx *gorm.DB) error {
		_, err := consumeCredit(tx, p, models.RewardTypeFreeze, grant{Action: models.ActionStreakFreezeUsed})
		return err
	})
	assert.ErrorIs(t, err, ErrInsufficientCredits)

	l.credit(t, p, testutil.SeedReward(t, l.db, "freeze-1", models.RewardTypeFreeze, 1))
	require.NoError(t, l.db.Transaction(func(tx *gorm.DB) error {
		entry, err := consumeCredit(tx, p, models.RewardTypeFreeze, grant{Action: models.ActionStreakFreezeUsed})
		if err == nil {
			assert.Equal(t, int64(-1), entry.FreezeDelta)
		}
		return err
	}))
	assert.Zero(t, l.reload(t, p).FreezeCount)

	err = l.db.Transaction(func(tx *gorm.DB) error {
		_, err := consumeCredit(tx, p, models.RewardTypeXP, grant{Action: models.ActionStreakFreezeUsed})
		return err
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
