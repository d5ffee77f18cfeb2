package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gamification-ledger/logger"
	"gamification-ledger/models"

	"github.com/gosimple/slug"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CatalogService manages reward, mission and streak tier definitions. Writes are keyed by code,
// so repeating a create returns the existing definition.
type CatalogService struct {
	DB  *gorm.DB
	Log *logger.Logger
}

func NewCatalogService(db *gorm.DB, log *logger.Logger) *CatalogService {
	return &CatalogService{DB: db, Log: log.With("service", "CatalogService")}
}

type RewardInput struct {
	RewardType  models.RewardType `json:"reward_type" yaml:"type"`
	RewardValue int64             `json:"reward_value" yaml:"value"`
}

// RewardCode is the catalog code for a reward, e.g. "xp-100" or "se-token-5".
func RewardCode(t models.RewardType, value int64) string {
	return slug.Make(fmt.Sprintf("%s-%d", strings.ReplaceAll(string(t), "_", "-"), value))
}

// CreateReward never modifies an existing reward; rewards are immutable once referenced.
func (s *CatalogService) CreateReward(ctx context.Context, in RewardInput) (*models.Reward, error) {
	in.RewardType = models.RewardType(strings.ToUpper(strings.TrimSpace(string(in.RewardType))))
	if !in.RewardType.Valid() || in.RewardValue < 0 {
		return nil, ErrInvalidInput
	}
	code := RewardCode(in.RewardType, in.RewardValue)

	db := s.DB.WithContext(ctx)
	reward := models.Reward{Code: code, RewardType: in.RewardType, RewardValue: in.RewardValue}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoNothing: true,
	}).Create(&reward).Error; err != nil {
		return nil, fmt.Errorf("create reward %s: %w", code, err)
	}
	var stored models.Reward
	if err := db.Where("code = ?", code).First(&stored).Error; err != nil {
		return nil, fmt.Errorf("load reward %s: %w", code, err)
	}
	return &stored, nil
}

type MissionInput struct {
	Title       string             `json:"title" yaml:"title"`
	Type        models.MissionType `json:"type" yaml:"type"`
	TargetType  string             `json:"target_type" yaml:"target_type"`
	TotalCount  int64              `json:"total_count" yaml:"total_count"`
	IsActive    *bool              `json:"is_active" yaml:"is_active"`
	RewardCodes []string           `json:"rewards" yaml:"rewards"`
}

// CreateMission upserts by the slug of the title.
func (s *CatalogService) CreateMission(ctx context.Context, in MissionInput) (*models.Mission, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.TargetType = strings.ToUpper(strings.TrimSpace(in.TargetType))
	if in.Type == "" {
		in.Type = models.MissionTypeDaily
	}
	switch {
	case in.Title == "", in.TargetType == "", in.TotalCount < 1:
		return nil, ErrInvalidInput
	case in.Type != models.MissionTypeDaily && in.Type != models.MissionTypeWeekly && in.Type != models.MissionTypeEvent:
		return nil, ErrInvalidInput
	}
	code := slug.Make(in.Title)

	var mission models.Mission
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rewards, err := rewardsByCode(tx, in.RewardCodes)
		if err != nil {
			return err
		}
		err = tx.Where("code = ?", code).First(&mission).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		mission.Code = code
		mission.Title = in.Title
		mission.Type = in.Type
		mission.TargetType = in.TargetType
		mission.TotalCount = in.TotalCount
		mission.IsActive = in.IsActive == nil || *in.IsActive
		if err := tx.Omit("Rewards").Save(&mission).Error; err != nil {
			return err
		}
		return tx.Model(&mission).Association("Rewards").Replace(rewards)
	})
	if err != nil {
		return nil, fmt.Errorf("create mission %s: %w", code, err)
	}
	return &mission, nil
}

type StreakRewardInput struct {
	Code         string   `json:"code" yaml:"code"`
	StreakTarget int64    `json:"streak_target" yaml:"streak_target"`
	IsActive     *bool    `json:"is_active" yaml:"is_active"`
	RewardCodes  []string `json:"rewards" yaml:"rewards"`
}

// CreateStreakReward upserts a tier. The code defaults to "streak-<target>".
func (s *CatalogService) CreateStreakReward(ctx context.Context, in StreakRewardInput) (*models.StreakReward, error) {
	if in.StreakTarget < 1 {
		return nil, ErrInvalidInput
	}
	code := slug.Make(in.Code)
	if code == "" {
		code = slug.Make(fmt.Sprintf("streak-%d", in.StreakTarget))
	}

	var tier models.StreakReward
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rewards, err := rewardsByCode(tx, in.RewardCodes)
		if err != nil {
			return err
		}
		err = tx.Where("code = ?", code).First(&tier).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		tier.Code = code
		tier.StreakTarget = in.StreakTarget
		tier.IsActive = in.IsActive == nil || *in.IsActive
		if err := tx.Omit("Rewards").Save(&tier).Error; err != nil {
			return err
		}
		return tx.Model(&tier).Association("Rewards").Replace(rewards)
	})
	if err != nil {
		return nil, fmt.Errorf("create streak reward %s: %w", code, err)
	}
	return &tier, nil
}

func rewardsByCode(tx *gorm.DB, codes []string) ([]models.Reward, error) {
	if len(codes) == 0 {
		return nil, fmt.Errorf("at least one reward is required: %w", ErrInvalidInput)
	}
	var rewards []models.Reward
	if err := tx.Where("code IN ?", codes).Find(&rewards).Error; err != nil {
		return nil, err
	}
	if len(rewards) != len(uniqueStrings(codes)) {
		return nil, fmt.Errorf("unknown reward code in %v: %w", codes, ErrInvalidInput)
	}
	return rewards, nil
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func (s *CatalogService) ListRewards(ctx context.Context) ([]models.Reward, error) {
	var rewards []models.Reward
	err := s.DB.WithContext(ctx).Order("reward_type, reward_value").Find(&rewards).Error
	return rewards, err
}

func (s *CatalogService) ListMissions(ctx context.Context) ([]models.Mission, error) {
	var missions []models.Mission
	err := s.DB.WithContext(ctx).Preload("Rewards").Order("type, code").Find(&missions).Error
	return missions, err
}

func (s *CatalogService) ListStreakRewards(ctx context.Context) ([]models.StreakReward, error) {
	var tiers []models.StreakReward
	err := s.DB.WithContext(ctx).Preload("Rewards").Order("streak_target").Find(&tiers).Error
	return tiers, err
}

// CatalogFile is the YAML layout accepted by SeedFromFile.
type CatalogFile struct {
	Rewards       []RewardInput       `yaml:"rewards"`
	Missions      []MissionInput      `yaml:"missions"`
	StreakRewards []StreakRewardInput `yaml:"streak_rewards"`
}

type SeedReport struct {
	Rewards       int `json:"rewards"`
	Missions      int `json:"missions"`
	StreakRewards int `json:"streak_rewards"`
}

// SeedFromFile loads a catalog file. Safe to run on every boot.
func (s *CatalogService) SeedFromFile(ctx context.Context, path string) (*SeedReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	var file CatalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}

	report := &SeedReport{}
	for _, r := range file.Rewards {
		if _, err := s.CreateReward(ctx, r); err != nil {
			return report, fmt.Errorf("seed reward %s-%d: %w", r.RewardType, r.RewardValue, err)
		}
		report.Rewards++
	}
	for _, m := range file.Missions {
		if _, err := s.CreateMission(ctx, m); err != nil {
			return report, fmt.Errorf("seed mission %q: %w", m.Title, err)
		}
		report.Missions++
	}
	for _, t := range file.StreakRewards {
		if _, err := s.CreateStreakReward(ctx, t); err != nil {
			return report, fmt.Errorf("seed streak reward %d: %w", t.StreakTarget, err)
		}
		report.StreakRewards++
	}
	s.Log.Info("catalog seeded", "path", path, "rewards", report.Rewards, "missions", report.Missions, "streak_rewards", report.StreakRewards)
	return report, nil
}
