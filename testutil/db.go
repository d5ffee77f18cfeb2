package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"gamification-ledger/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenTestDB opens a file-backed SQLite database in t.TempDir() with every table migrated.
// One connection only: concurrent callers queue on it the way row locks would serialize them.
func OpenTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "ledger.db") + "?_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func SeedReward(t *testing.T, db *gorm.DB, code string, typ models.RewardType, value int64) models.Reward {
	t.Helper()
	r := models.Reward{Code: code, RewardType: typ, RewardValue: value}
	if err := db.Create(&r).Error; err != nil {
		t.Fatalf("seed reward %s: %v", code, err)
	}
	return r
}

func SeedStreakReward(t *testing.T, db *gorm.DB, code string, target int64, rewards ...models.Reward) models.StreakReward {
	t.Helper()
	sr := models.StreakReward{Code: code, StreakTarget: target, IsActive: true, Rewards: rewards}
	if err := db.Create(&sr).Error; err != nil {
		t.Fatalf("seed streak reward %s: %v", code, err)
	}
	return sr
}

func SeedMission(t *testing.T, db *gorm.DB, code, targetType string, total int64, rewards ...models.Reward) models.Mission {
	t.Helper()
	m := models.Mission{
		Code:       code,
		Title:      code,
		Type:       models.MissionTypeDaily,
		TargetType: targetType,
		TotalCount: total,
		IsActive:   true,
		Rewards:    rewards,
	}
	if err := db.Create(&m).Error; err != nil {
		t.Fatalf("seed mission %s: %v", code, err)
	}
	return m
}
