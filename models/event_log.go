package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type LedgerAction string

const (
	ActionStreakReward     LedgerAction = "STREAK_REWARD"
	ActionMissionReward    LedgerAction = "MISSION_REWARD"
	ActionStreakFreezeUsed LedgerAction = "STREAK_FREEZE_USED"
	ActionStreakRepairUsed LedgerAction = "STREAK_REPAIR_USED"
)

// Ledger source types (what triggered the mutation)
const (
	SourceStreakReward    = "streak_reward"
	SourceMissionProgress = "mission_progress"
	SourceStreak          = "streak"
)

// GamificationEventLog is the append-only audit row for every balance mutation.
// XPDelta and TokenDelta are never negative; credit deltas are negative when a credit is consumed.
type GamificationEventLog struct {
	ID                    string         `gorm:"primaryKey;type:uuid" json:"id"`
	GamificationProfileID string         `gorm:"type:uuid;index;not null" json:"gamification_profile_id"`
	ActionType            LedgerAction   `gorm:"type:varchar(32);not null;index" json:"action_type"`
	RewardType            RewardType     `gorm:"type:varchar(16);not null" json:"reward_type"`
	XPDelta               int64          `gorm:"not null;default:0" json:"xp_delta"`
	TokenDelta            int64          `gorm:"not null;default:0" json:"token_delta"`
	FreezeDelta           int64          `gorm:"not null;default:0" json:"freeze_delta"`
	RepairDelta           int64          `gorm:"not null;default:0" json:"repair_delta"`
	SourceType            string         `gorm:"type:varchar(32)" json:"source_type,omitempty"`
	SourceID              string         `gorm:"type:varchar(64)" json:"source_id,omitempty"`
	Metadata              datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt             time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
}

func (e *GamificationEventLog) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}
