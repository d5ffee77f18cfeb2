package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"gamification-ledger/database"
	"gamification-ledger/logger"
	"gamification-ledger/models"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// sweepWorkers bounds how many streaks SweepMissedDays settles at once.
const sweepWorkers = 4

type StreakService struct {
	DB    *gorm.DB
	Log   *logger.Logger
	Clock Clock

	RepairWindowDays int
}

func NewStreakService(db *gorm.DB, log *logger.Logger, clock Clock, repairWindowDays int) *StreakService {
	if repairWindowDays < 1 {
		repairWindowDays = 2
	}
	return &StreakService{
		DB:               db,
		Log:              log.With("service", "StreakService"),
		Clock:            clock,
		RepairWindowDays: repairWindowDays,
	}
}

// GrantedTier is a streak reward tier claimed by the current call.
type GrantedTier struct {
	StreakRewardID string                        `json:"streak_reward_id"`
	Code           string                        `json:"code"`
	StreakTarget   int64                         `json:"streak_target"`
	Entries        []models.GamificationEventLog `json:"entries"`
}

type ActivityResult struct {
	Streak  models.Streak `json:"streak"`
	Granted []GrantedTier `json:"granted,omitempty"`
}

// RegisterActivity advances the streak by one and grants every tier the new length unlocks.
func (s *StreakService) RegisterActivity(ctx context.Context, profileID string) (res *ActivityResult, err error) {
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return nil, ErrInvalidInput
	}
	ctx, span := startSpan(ctx, "StreakService.RegisterActivity", profileID)
	defer func() { finishSpan(span, err) }()

	now := s.Clock.now().UTC()
	res = &ActivityResult{}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		profile, err := findProfile(tx, profileID)
		if err != nil {
			return err
		}
		streak, err := findStreak(tx, profile.ID)
		if err != nil {
			return err
		}

		// increment in SQL so concurrent calls each count
		err = tx.Model(&models.Streak{}).Where("id = ?", streak.ID).UpdateColumns(map[string]interface{}{
			"current_streak":    gorm.Expr("current_streak + 1"),
			"max_streak":        gorm.Expr("CASE WHEN current_streak + 1 > max_streak THEN current_streak + 1 ELSE max_streak END"),
			"last_active_at":    now,
			"freeze_used_today": false,
			"updated_at":        now,
		}).Error
		if err != nil {
			return fmt.Errorf("advance streak: %w", err)
		}
		if err := tx.First(streak, "id = ?", streak.ID).Error; err != nil {
			return fmt.Errorf("reload streak: %w", err)
		}

		if err := appendStreakLog(tx, profile.ID, now, models.StreakStatusDone, streak.CurrentStreak); err != nil {
			return err
		}

		granted, err := s.evaluateRewards(tx, profile, streak.CurrentStreak)
		if err != nil {
			return err
		}
		res.Streak = *streak
		res.Granted = granted
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Log.Debug("activity registered",
		"profile_id", profileID,
		"current_streak", res.Streak.CurrentStreak,
		"tiers_granted", len(res.Granted),
	)
	return res, nil
}

// EvaluateStreakRewards grants any unclaimed tier reachable at the current length without advancing it.
func (s *StreakService) EvaluateStreakRewards(ctx context.Context, profileID string) (granted []GrantedTier, err error) {
	ctx, span := startSpan(ctx, "StreakService.EvaluateStreakRewards", profileID)
	defer func() { finishSpan(span, err) }()

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		profile, err := findProfile(tx, profileID)
		if err != nil {
			return err
		}
		streak, err := findStreak(tx, profile.ID)
		if err != nil {
			return err
		}
		granted, err = s.evaluateRewards(tx, profile, streak.CurrentStreak)
		return err
	})
	return granted, err
}

// evaluateRewards claims each eligible tier at most once. The claim row goes in first;
// only the transaction whose insert lands applies the rewards.
func (s *StreakService) evaluateRewards(tx *gorm.DB, profile *models.GamificationProfile, current int64) ([]GrantedTier, error) {
	var tiers []models.StreakReward
	err := tx.Preload("Rewards").
		Where("is_active = ? AND streak_target <= ?", true, current).
		Order("streak_target ASC").
		Find(&tiers).Error
	if err != nil {
		return nil, fmt.Errorf("load streak rewards: %w", err)
	}

	var granted []GrantedTier
	for _, tier := range tiers {
		var claimed int64
		if err := tx.Model(&models.ClaimedStreakReward{}).
			Where("gamification_profile_id = ? AND streak_reward_id = ?", profile.ID, tier.ID).
			Count(&claimed).Error; err != nil {
			return nil, fmt.Errorf("check claim %s: %w", tier.Code, err)
		}
		if claimed > 0 {
			continue
		}

		claim := models.ClaimedStreakReward{GamificationProfileID: profile.ID, StreakRewardID: tier.ID}
		ins := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "gamification_profile_id"}, {Name: "streak_reward_id"}},
			DoNothing: true,
		}).Create(&claim)
		if ins.Error != nil {
			if database.IsUniqueViolation(ins.Error) {
				continue
			}
			return nil, fmt.Errorf("claim %s: %w", tier.Code, ins.Error)
		}
		if ins.RowsAffected == 0 {
			continue
		}

		entries, err := applyRewards(tx, profile, tier.Rewards, grant{
			Action:     models.ActionStreakReward,
			SourceType: models.SourceStreakReward,
			SourceID:   tier.ID,
			Metadata: map[string]interface{}{
				"code":           tier.Code,
				"streak_target":  tier.StreakTarget,
				"current_streak": current,
			},
		})
		if err != nil {
			return nil, err
		}
		granted = append(granted, GrantedTier{
			StreakRewardID: tier.ID,
			Code:           tier.Code,
			StreakTarget:   tier.StreakTarget,
			Entries:        entries,
		})
		s.Log.Info("streak reward granted", "profile_id", profile.ProfileID, "code", tier.Code, "target", tier.StreakTarget)
	}
	return granted, nil
}

type SweepReport struct {
	Checked int `json:"checked"`
	Frozen  int `json:"frozen"`
	Missed  int `json:"missed"`
}

// SweepMissedDays settles every live streak whose owner skipped yesterday: a freeze credit covers
// each missed day while credits last, otherwise the streak resets to zero.
func (s *StreakService) SweepMissedDays(ctx context.Context) (*SweepReport, error) {
	today := s.Clock.today()
	yesterday := today.AddDate(0, 0, -1)
	report := &SweepReport{}

	db := s.DB.WithContext(ctx)
	if err := db.Model(&models.Streak{}).
		Where("freeze_used_today = ?", true).
		UpdateColumn("freeze_used_today", false).Error; err != nil {
		return nil, fmt.Errorf("reset freeze flags: %w", err)
	}

	var ids []string
	if err := db.Model(&models.Streak{}).
		Where("current_streak > 0 AND last_active_at < ?", yesterday.UTC()).
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("find lapsed streaks: %w", err)
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(sweepWorkers)
	for _, id := range ids {
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			frozen, missed, err := s.settleStreak(ctx, id, yesterday)
			mu.Lock()
			defer mu.Unlock()
			report.Checked++
			if err != nil {
				s.Log.Error("settle streak failed", "streak_id", id, "error", err)
				return nil
			}
			report.Frozen += frozen
			if missed {
				report.Missed++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	s.Log.Info("missed-day sweep done", "checked", report.Checked, "frozen", report.Frozen, "missed", report.Missed)
	return report, nil
}

func (s *StreakService) settleStreak(ctx context.Context, streakID string, yesterday time.Time) (frozen int, missed bool, err error) {
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var streak models.Streak
		if err := lockRow(tx).First(&streak, "id = ?", streakID).Error; err != nil {
			return err
		}
		var profile models.GamificationProfile
		if err := tx.First(&profile, "id = ?", streak.GamificationProfileID).Error; err != nil {
			return err
		}

		for streak.CurrentStreak > 0 && streak.LastActiveAt != nil &&
			s.Clock.startOfDay(*streak.LastActiveAt).Before(yesterday) {
			missedDay := s.Clock.startOfDay(*streak.LastActiveAt).AddDate(0, 0, 1)

			if profile.FreezeCount > 0 {
				_, err := consumeCredit(tx, &profile, models.RewardTypeFreeze, grant{
					Action:     models.ActionStreakFreezeUsed,
					SourceType: models.SourceStreak,
					SourceID:   streak.ID,
					Metadata:   map[string]interface{}{"covered_day": missedDay.Format(time.DateOnly)},
				})
				if err == nil {
					covered := missedDay.UTC()
					streak.LastActiveAt = &covered
					streak.FreezeUsedToday = true
					if err := appendStreakLog(tx, profile.ID, covered, models.StreakStatusFrozen, streak.CurrentStreak); err != nil {
						return err
					}
					frozen++
					continue
				}
				if !errors.Is(err, ErrInsufficientCredits) {
					return err
				}
			}

			if err := appendStreakLog(tx, profile.ID, missedDay.UTC(), models.StreakStatusMissed, streak.CurrentStreak); err != nil {
				return err
			}
			streak.CurrentStreak = 0
			missed = true
		}

		return tx.Model(&streak).Select("current_streak", "last_active_at", "freeze_used_today").Updates(&streak).Error
	})
	return frozen, missed, err
}

// RepairStreak restores the streak lost on the latest missed day, if it is still inside the
// repair window, by spending one repair credit.
func (s *StreakService) RepairStreak(ctx context.Context, profileID string) (res *ActivityResult, err error) {
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return nil, ErrInvalidInput
	}
	ctx, span := startSpan(ctx, "StreakService.RepairStreak", profileID)
	defer func() { finishSpan(span, err) }()

	windowStart := s.Clock.today().AddDate(0, 0, -s.RepairWindowDays).UTC()
	res = &ActivityResult{}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		profile, err := findProfile(tx, profileID)
		if err != nil {
			return err
		}
		streak, err := findStreak(lockRow(tx), profile.ID)
		if err != nil {
			return err
		}

		var lost models.StreakLog
		err = tx.Where("gamification_profile_id = ? AND status = ? AND date >= ?", profile.ID, models.StreakStatusMissed, windowStart).
			Order("date DESC").
			First(&lost).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNothingToRepair
		}
		if err != nil {
			return fmt.Errorf("find missed day: %w", err)
		}

		var repaired int64
		if err := tx.Model(&models.StreakLog{}).
			Where("gamification_profile_id = ? AND status = ? AND date = ?", profile.ID, models.StreakStatusRepaired, lost.Date.UTC()).
			Count(&repaired).Error; err != nil {
			return err
		}
		if repaired > 0 {
			return ErrNothingToRepair
		}

		if _, err := consumeCredit(tx, profile, models.RewardTypeRepair, grant{
			Action:     models.ActionStreakRepairUsed,
			SourceType: models.SourceStreak,
			SourceID:   streak.ID,
			Metadata:   map[string]interface{}{"repaired_day": lost.Date.Format(time.DateOnly), "restored": lost.StreakValue},
		}); err != nil {
			return err
		}

		// the lost run and anything rebuilt since are joined back together
		streak.CurrentStreak += lost.StreakValue
		if streak.CurrentStreak > streak.MaxStreak {
			streak.MaxStreak = streak.CurrentStreak
		}
		// the repaired day counts as active, so the next sweep starts after it
		covered := lost.Date.UTC()
		if streak.LastActiveAt == nil || streak.LastActiveAt.Before(covered) {
			streak.LastActiveAt = &covered
		}
		if err := tx.Model(streak).Select("current_streak", "max_streak", "last_active_at").Updates(streak).Error; err != nil {
			return fmt.Errorf("restore streak: %w", err)
		}
		if err := appendStreakLog(tx, profile.ID, lost.Date.UTC(), models.StreakStatusRepaired, streak.CurrentStreak); err != nil {
			return err
		}

		granted, err := s.evaluateRewards(tx, profile, streak.CurrentStreak)
		if err != nil {
			return err
		}
		res.Streak = *streak
		res.Granted = granted
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Log.Info("streak repaired", "profile_id", profileID, "current_streak", res.Streak.CurrentStreak)
	return res, nil
}

func (s *StreakService) GetStreak(ctx context.Context, profileID string) (*models.Streak, error) {
	db := s.DB.WithContext(ctx)
	profile, err := findProfile(db, profileID)
	if err != nil {
		return nil, err
	}
	return findStreak(db, profile.ID)
}

func (s *StreakService) ListStreakLogs(ctx context.Context, profileID string, limit int) ([]models.StreakLog, error) {
	db := s.DB.WithContext(ctx)
	profile, err := findProfile(db, profileID)
	if err != nil {
		return nil, err
	}
	var logs []models.StreakLog
	err = db.Where("gamification_profile_id = ?", profile.ID).
		Order("date DESC").Order("created_at DESC").
		Limit(clampLimit(limit)).
		Find(&logs).Error
	return logs, err
}

func appendStreakLog(tx *gorm.DB, gamificationProfileID string, date time.Time, status models.StreakStatus, value int64) error {
	entry := models.StreakLog{
		GamificationProfileID: gamificationProfileID,
		Date:                  date,
		Status:                status,
		StreakValue:           value,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("append streak log: %w", err)
	}
	return nil
}

// lockRow adds FOR UPDATE on PostgreSQL. SQLite serializes writers on its own.
func lockRow(tx *gorm.DB) *gorm.DB {
	if database.IsPostgres(tx) {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}
