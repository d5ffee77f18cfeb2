package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gamification-ledger/database"
	"gamification-ledger/logger"
	"gamification-ledger/models"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProfileService struct {
	DB  *gorm.DB
	Log *logger.Logger

	creating singleflight.Group
}

func NewProfileService(db *gorm.DB, log *logger.Logger) *ProfileService {
	return &ProfileService{DB: db, Log: log.With("service", "ProfileService")}
}

// EnsureProfile returns the gamification profile of profileID, creating it (and its zeroed
// streak) on first use. Concurrent first calls all observe the same row.
func (s *ProfileService) EnsureProfile(ctx context.Context, profileID string) (p *models.GamificationProfile, err error) {
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return nil, ErrInvalidInput
	}
	ctx, span := startSpan(ctx, "ProfileService.EnsureProfile", profileID)
	defer func() { finishSpan(span, err) }()

	existing, err := findProfile(s.DB.WithContext(ctx), profileID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrProfileNotFound) {
		return nil, err
	}

	v, err, _ := s.creating.Do(profileID, func() (interface{}, error) {
		return s.createProfile(ctx, profileID)
	})
	if err != nil {
		return nil, err
	}
	created := *v.(*models.GamificationProfile)
	return &created, nil
}

func (s *ProfileService) createProfile(ctx context.Context, profileID string) (*models.GamificationProfile, error) {
	var stored models.GamificationProfile
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		profile := models.GamificationProfile{ProfileID: profileID}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "profile_id"}},
			DoNothing: true,
		}).Create(&profile)
		if res.Error != nil {
			return res.Error
		}
		if err := tx.Where("profile_id = ?", profileID).First(&stored).Error; err != nil {
			return err
		}

		streak := models.Streak{GamificationProfileID: stored.ID}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "gamification_profile_id"}},
			DoNothing: true,
		}).Create(&streak).Error; err != nil {
			return err
		}
		if res.RowsAffected == 1 {
			s.Log.Info("gamification profile created", "profile_id", profileID, "id", stored.ID)
		}
		return nil
	})
	if err != nil {
		if database.IsUniqueViolation(err) {
			// lost the race on a driver that reports the conflict instead of skipping it
			return findProfile(s.DB.WithContext(ctx), profileID)
		}
		return nil, fmt.Errorf("create profile %s: %w", profileID, err)
	}
	return &stored, nil
}

// GetProfile never creates.
func (s *ProfileService) GetProfile(ctx context.Context, profileID string) (*models.GamificationProfile, error) {
	return findProfile(s.DB.WithContext(ctx), strings.TrimSpace(profileID))
}

type Overview struct {
	Profile *models.GamificationProfile `json:"profile"`
	Streak  *models.Streak              `json:"streak"`
}

// GetOverview ensures the profile and returns it with its streak.
func (s *ProfileService) GetOverview(ctx context.Context, profileID string) (*Overview, error) {
	profile, err := s.EnsureProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}
	streak, err := findStreak(s.DB.WithContext(ctx), profile.ID)
	if err != nil {
		return nil, err
	}
	return &Overview{Profile: profile, Streak: streak}, nil
}

func findStreak(db *gorm.DB, gamificationProfileID string) (*models.Streak, error) {
	var streak models.Streak
	if err := db.Where("gamification_profile_id = ?", gamificationProfileID).First(&streak).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStreakNotFound
		}
		return nil, fmt.Errorf("load streak: %w", err)
	}
	return &streak, nil
}
