package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gamification-ledger/logger"
	"gamification-ledger/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MissionService struct {
	DB       *gorm.DB
	Log      *logger.Logger
	Clock    Clock
	Profiles *ProfileService
	Locker   Locker

	DailyCount int
}

func NewMissionService(db *gorm.DB, log *logger.Logger, clock Clock, profiles *ProfileService, locker Locker, dailyCount int) *MissionService {
	if locker == nil {
		locker = NewKeyedMutex()
	}
	if dailyCount < 1 {
		dailyCount = 5
	}
	return &MissionService{
		DB:         db,
		Log:        log.With("service", "MissionService"),
		Clock:      clock,
		Profiles:   profiles,
		Locker:     locker,
		DailyCount: dailyCount,
	}
}

// MissionProgressView flattens a progress row with its mission definition.
type MissionProgressView struct {
	ID           string                     `json:"id"`
	MissionID    string                     `json:"mission_id"`
	Code         string                     `json:"code"`
	Title        string                     `json:"title"`
	TargetType   string                     `json:"target_type"`
	TotalCount   int64                      `json:"total_count"`
	CurrentValue int64                      `json:"current_value"`
	Status       models.MissionStatus       `json:"status"`
	RewardStatus models.MissionRewardStatus `json:"reward_status"`
	StartAt      time.Time                  `json:"start_at"`
	EndAt        time.Time                  `json:"end_at"`
	CompletedAt  *time.Time                 `json:"completed_at,omitempty"`
	ClaimedAt    *time.Time                 `json:"claimed_at,omitempty"`
	Rewards      []models.Reward            `json:"rewards"`
}

func newProgressView(p models.MissionProgress) MissionProgressView {
	v := MissionProgressView{
		ID:           p.ID,
		MissionID:    p.MissionID,
		CurrentValue: p.CurrentValue,
		Status:       p.Status,
		RewardStatus: p.RewardStatus,
		StartAt:      p.StartAt,
		EndAt:        p.EndAt,
		CompletedAt:  p.CompletedAt,
		ClaimedAt:    p.ClaimedAt,
	}
	if p.Mission != nil {
		v.Code = p.Mission.Code
		v.Title = p.Mission.Title
		v.TargetType = p.Mission.TargetType
		v.TotalCount = p.Mission.TotalCount
		v.Rewards = p.Mission.Rewards
	}
	return v
}

// GetDailyMissionProgress returns today's mission set, generating a fresh one on the first call of the day.
func (s *MissionService) GetDailyMissionProgress(ctx context.Context, profileID string) (views []MissionProgressView, err error) {
	ctx, span := startSpan(ctx, "MissionService.GetDailyMissionProgress", profileID)
	defer func() { finishSpan(span, err) }()

	profile, err := s.Profiles.EnsureProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}

	unlock, err := s.Locker.Lock(ctx, "daily-missions:"+profile.ID)
	if err != nil {
		return nil, fmt.Errorf("lock daily missions: %w", err)
	}
	defer unlock()

	now := s.Clock.now()
	var rows []models.MissionProgress
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockRow(tx).Select("id").First(&models.GamificationProfile{}, "id = ?", profile.ID).Error; err != nil {
			return fmt.Errorf("lock profile: %w", err)
		}

		rows, err = loadProgress(tx, profile.ID)
		if err != nil {
			return err
		}
		if len(rows) > 0 && s.Clock.sameDay(rows[0].StartAt, now) {
			return nil
		}

		if err := tx.Where("gamification_profile_id = ?", profile.ID).Delete(&models.MissionProgress{}).Error; err != nil {
			return fmt.Errorf("clear stale missions: %w", err)
		}

		var missions []models.Mission
		if err := tx.Where("is_active = ? AND type = ?", true, models.MissionTypeDaily).
			Order("RANDOM()").
			Limit(s.DailyCount).
			Find(&missions).Error; err != nil {
			return fmt.Errorf("pick daily missions: %w", err)
		}
		if len(missions) == 0 {
			return ErrMissionNotFound
		}

		start := s.Clock.startOfDay(now)
		fresh := make([]models.MissionProgress, 0, len(missions))
		for _, m := range missions {
			fresh = append(fresh, models.MissionProgress{
				MissionID:             m.ID,
				GamificationProfileID: profile.ID,
				StartAt:               start.UTC(),
				EndAt:                 start.AddDate(0, 0, 1).UTC(),
				Status:                models.MissionStatusInProgress,
				RewardStatus:          models.MissionRewardPending,
			})
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "mission_id"}, {Name: "gamification_profile_id"}},
			DoNothing: true,
		}).Create(&fresh).Error; err != nil {
			return fmt.Errorf("create daily missions: %w", err)
		}

		rows, err = loadProgress(tx, profile.ID)
		if err != nil {
			return err
		}
		s.Log.Debug("daily missions generated", "profile_id", profileID, "count", len(rows))
		return nil
	})
	if err != nil {
		return nil, err
	}

	views = make([]MissionProgressView, 0, len(rows))
	for _, r := range rows {
		views = append(views, newProgressView(r))
	}
	return views, nil
}

func loadProgress(tx *gorm.DB, gamificationProfileID string) ([]models.MissionProgress, error) {
	var rows []models.MissionProgress
	err := tx.Preload("Mission.Rewards").
		Where("gamification_profile_id = ?", gamificationProfileID).
		Order("start_at DESC").Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load mission progress: %w", err)
	}
	return rows, nil
}

type ProgressUpdate struct {
	Updated   []MissionProgressView         `json:"updated"`
	Completed []MissionProgressView         `json:"completed,omitempty"`
	Entries   []models.GamificationEventLog `json:"entries,omitempty"`
}

// UpdateMissionProgress counts one occurrence of targetType against every open mission of the profile.
// Unknown profiles and unmatched target types are no-ops.
func (s *MissionService) UpdateMissionProgress(ctx context.Context, profileID, targetType string) (out *ProgressUpdate, err error) {
	profileID = strings.TrimSpace(profileID)
	targetType = strings.TrimSpace(targetType)
	if profileID == "" || targetType == "" {
		return nil, ErrInvalidInput
	}
	ctx, span := startSpan(ctx, "MissionService.UpdateMissionProgress", profileID)
	defer func() { finishSpan(span, err) }()

	now := s.Clock.now().UTC()
	out = &ProgressUpdate{}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		profile, err := findProfile(tx, profileID)
		if errors.Is(err, ErrProfileNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		var rows []models.MissionProgress
		err = tx.Joins("JOIN missions ON missions.id = mission_progresses.mission_id AND missions.deleted_at IS NULL").
			Where("mission_progresses.gamification_profile_id = ?", profile.ID).
			Where("mission_progresses.status = ?", models.MissionStatusInProgress).
			Where("missions.target_type = ?", targetType).
			Where("mission_progresses.start_at <= ? AND mission_progresses.end_at > ?", now, now).
			Preload("Mission.Rewards").
			Find(&rows).Error
		if err != nil {
			return fmt.Errorf("find open missions: %w", err)
		}

		for i := range rows {
			row := &rows[i]
			res := tx.Model(&models.MissionProgress{}).
				Where("id = ? AND status = ?", row.ID, models.MissionStatusInProgress).
				UpdateColumns(map[string]interface{}{
					"current_value": gorm.Expr("current_value + 1"),
					"updated_at":    now,
				})
			if res.Error != nil {
				return fmt.Errorf("advance mission %s: %w", row.ID, res.Error)
			}
			if res.RowsAffected == 0 {
				continue
			}
			if err := tx.Select("current_value", "status").First(row, "id = ?", row.ID).Error; err != nil {
				return err
			}

			if row.Mission != nil && row.CurrentValue >= row.Mission.TotalCount {
				done := tx.Model(&models.MissionProgress{}).
					Where("id = ? AND status = ?", row.ID, models.MissionStatusInProgress).
					Updates(map[string]interface{}{
						"status":       models.MissionStatusCompleted,
						"completed_at": now,
					})
				if done.Error != nil {
					return fmt.Errorf("complete mission %s: %w", row.ID, done.Error)
				}
				if done.RowsAffected == 1 {
					row.Status = models.MissionStatusCompleted
					row.CompletedAt = &now
					entries, err := s.claim(tx, profile, row, now)
					if err != nil {
						return err
					}
					out.Entries = append(out.Entries, entries...)
					out.Completed = append(out.Completed, newProgressView(*row))
				}
			}
			out.Updated = append(out.Updated, newProgressView(*row))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(out.Updated) > 0 {
		s.Log.Debug("mission progress updated",
			"profile_id", profileID,
			"target_type", targetType,
			"updated", len(out.Updated),
			"completed", len(out.Completed),
		)
	}
	return out, nil
}

// claim flips a completed row from PENDING to CLAIMED and applies the rewards only if this call did the flip.
func (s *MissionService) claim(tx *gorm.DB, profile *models.GamificationProfile, row *models.MissionProgress, now time.Time) ([]models.GamificationEventLog, error) {
	res := tx.Model(&models.MissionProgress{}).
		Where("id = ? AND status = ? AND reward_status = ?", row.ID, models.MissionStatusCompleted, models.MissionRewardPending).
		Updates(map[string]interface{}{
			"reward_status": models.MissionRewardClaimed,
			"claimed_at":    now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("claim mission %s: %w", row.ID, res.Error)
	}
	if res.RowsAffected != 1 {
		return nil, nil
	}
	row.RewardStatus = models.MissionRewardClaimed
	row.ClaimedAt = &now

	var rewards []models.Reward
	meta := map[string]interface{}{}
	if row.Mission != nil {
		rewards = row.Mission.Rewards
		meta["code"] = row.Mission.Code
		meta["target_type"] = row.Mission.TargetType
	}
	entries, err := applyRewards(tx, profile, rewards, grant{
		Action:     models.ActionMissionReward,
		SourceType: models.SourceMissionProgress,
		SourceID:   row.ID,
		Metadata:   meta,
	})
	if err != nil {
		return nil, err
	}
	s.Log.Info("mission reward granted", "profile_id", profile.ProfileID, "progress_id", row.ID, "rewards", len(entries))
	return entries, nil
}

type ClaimResult struct {
	Progress       MissionProgressView           `json:"progress"`
	AlreadyClaimed bool                          `json:"already_claimed"`
	Entries        []models.GamificationEventLog `json:"entries,omitempty"`
}

// ClaimMissionReward re-runs the claim gate for a completed row. Claiming twice is not an error.
func (s *MissionService) ClaimMissionReward(ctx context.Context, profileID, progressID string) (out *ClaimResult, err error) {
	if strings.TrimSpace(profileID) == "" || strings.TrimSpace(progressID) == "" {
		return nil, ErrInvalidInput
	}
	ctx, span := startSpan(ctx, "MissionService.ClaimMissionReward", profileID)
	defer func() { finishSpan(span, err) }()

	now := s.Clock.now().UTC()
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		profile, err := findProfile(tx, profileID)
		if err != nil {
			return err
		}
		var row models.MissionProgress
		err = tx.Preload("Mission.Rewards").
			Where("id = ? AND gamification_profile_id = ?", progressID, profile.ID).
			First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrProgressNotFound
		}
		if err != nil {
			return fmt.Errorf("load mission progress: %w", err)
		}
		if row.Status != models.MissionStatusCompleted {
			return fmt.Errorf("mission %s is %s: %w", row.ID, row.Status, ErrInvalidInput)
		}

		entries, err := s.claim(tx, profile, &row, now)
		if err != nil {
			return err
		}
		out = &ClaimResult{
			Progress:       newProgressView(row),
			AlreadyClaimed: entries == nil,
			Entries:        entries,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ExpireStaleProgress closes open rows whose window has passed.
func (s *MissionService) ExpireStaleProgress(ctx context.Context) (int64, error) {
	now := s.Clock.now().UTC()
	res := s.DB.WithContext(ctx).Model(&models.MissionProgress{}).
		Where("status = ? AND end_at <= ?", models.MissionStatusInProgress, now).
		Updates(map[string]interface{}{"status": models.MissionStatusExpired})
	if res.Error != nil {
		return 0, fmt.Errorf("expire missions: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		s.Log.Info("stale missions expired", "count", res.RowsAffected)
	}
	return res.RowsAffected, nil
}
