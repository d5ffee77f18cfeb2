package services

import (
	"context"
	"errors"
	"fmt"

	"gamification-ledger/logger"
	"gamification-ledger/models"

	"gorm.io/gorm"
)

// record appends a ledger row in the caller's transaction.
func record(tx *gorm.DB, entry *models.GamificationEventLog) error {
	if err := tx.Create(entry).Error; err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

type EventLogService struct {
	DB  *gorm.DB
	Log *logger.Logger
}

func NewEventLogService(db *gorm.DB, log *logger.Logger) *EventLogService {
	return &EventLogService{DB: db, Log: log.With("service", "EventLogService")}
}

// ListEvents returns the newest ledger rows of a profile.
func (s *EventLogService) ListEvents(ctx context.Context, profileID string, limit int) ([]models.GamificationEventLog, error) {
	profile, err := findProfile(s.DB.WithContext(ctx), profileID)
	if err != nil {
		return nil, err
	}
	var events []models.GamificationEventLog
	err = s.DB.WithContext(ctx).
		Where("gamification_profile_id = ?", profile.ID).
		Order("created_at DESC").
		Limit(clampLimit(limit)).
		Find(&events).Error
	return events, err
}

type BalanceDrift struct {
	Field     string `json:"field"`
	Balance   int64  `json:"balance"`
	LedgerSum int64  `json:"ledger_sum"`
}

type Reconciliation struct {
	ProfileID string         `json:"profile_id"`
	Entries   int64          `json:"entries"`
	Balanced  bool           `json:"balanced"`
	Drift     []BalanceDrift `json:"drift,omitempty"`
}

// Reconcile compares the stored balances with the sums of the ledger.
func (s *EventLogService) Reconcile(ctx context.Context, profileID string) (*Reconciliation, error) {
	db := s.DB.WithContext(ctx)
	profile, err := findProfile(db, profileID)
	if err != nil {
		return nil, err
	}

	var sums struct {
		Entries int64
		XP      int64
		Tokens  int64
		Freezes int64
		Repairs int64
	}
	err = db.Model(&models.GamificationEventLog{}).
		Select(`COUNT(*) AS entries,
			COALESCE(SUM(xp_delta), 0) AS xp,
			COALESCE(SUM(token_delta), 0) AS tokens,
			COALESCE(SUM(freeze_delta), 0) AS freezes,
			COALESCE(SUM(repair_delta), 0) AS repairs`).
		Where("gamification_profile_id = ?", profile.ID).
		Scan(&sums).Error
	if err != nil {
		return nil, fmt.Errorf("sum ledger: %w", err)
	}

	rec := &Reconciliation{ProfileID: profile.ProfileID, Entries: sums.Entries}
	check := func(field string, balance, sum int64) {
		if balance != sum {
			rec.Drift = append(rec.Drift, BalanceDrift{Field: field, Balance: balance, LedgerSum: sum})
		}
	}
	check("total_xp", profile.TotalXP, sums.XP)
	check("token_balance", profile.TokenBalance, sums.Tokens)
	check("freeze_count", profile.FreezeCount, sums.Freezes)
	check("repair_count", profile.RepairCount, sums.Repairs)
	rec.Balanced = len(rec.Drift) == 0

	if !rec.Balanced {
		s.Log.Warn("ledger drift detected", "profile_id", profileID, "drift", rec.Drift)
	}
	return rec, nil
}

func findProfile(db *gorm.DB, profileID string) (*models.GamificationProfile, error) {
	if profileID == "" {
		return nil, ErrInvalidInput
	}
	var profile models.GamificationProfile
	if err := db.Where("profile_id = ?", profileID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("load profile %s: %w", profileID, err)
	}
	return &profile, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 200 {
		return 50
	}
	return limit
}
