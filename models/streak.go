package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Streak tracks consecutive-day activity for a profile (1:1 with GamificationProfile).
// MaxStreak never drops below CurrentStreak.
type Streak struct {
	ID                    string     `gorm:"primaryKey;type:uuid" json:"id"`
	GamificationProfileID string     `gorm:"type:uuid;uniqueIndex;not null" json:"gamification_profile_id"`
	CurrentStreak         int64      `gorm:"not null;default:0" json:"current_streak"`
	MaxStreak             int64      `gorm:"not null;default:0" json:"max_streak"`
	LastActiveAt          *time.Time `json:"last_active_at,omitempty"`
	FreezeUsedToday       bool       `gorm:"not null;default:false" json:"freeze_used_today"`

	Timestamps
}

func (s *Streak) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

type StreakStatus string

const (
	StreakStatusDone     StreakStatus = "DONE"
	StreakStatusMissed   StreakStatus = "MISSED"
	StreakStatusFrozen   StreakStatus = "FROZEN"
	StreakStatusRepaired StreakStatus = "REPAIRED"
)

// StreakLog is append-only. StreakValue is the new length for DONE/REPAIRED,
// the kept length for FROZEN and the lost length for MISSED.
type StreakLog struct {
	ID                    string       `gorm:"primaryKey;type:uuid" json:"id"`
	GamificationProfileID string       `gorm:"type:uuid;index;not null" json:"gamification_profile_id"`
	Date                  time.Time    `gorm:"not null;index" json:"date"`
	Status                StreakStatus `gorm:"type:varchar(16);not null" json:"status"`
	StreakValue           int64        `gorm:"not null;default:0" json:"streak_value"`
	CreatedAt             time.Time    `gorm:"autoCreateTime" json:"created_at"`
}

func (l *StreakLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

// StreakReward is a reward tier unlocked once CurrentStreak reaches StreakTarget.
type StreakReward struct {
	ID           string   `gorm:"primaryKey;type:uuid" json:"id"`
	Code         string   `gorm:"uniqueIndex;not null" json:"code"`
	StreakTarget int64    `gorm:"not null;index" json:"streak_target"`
	IsActive     bool     `gorm:"not null" json:"is_active"`
	Rewards      []Reward `gorm:"many2many:streak_reward_rewards;" json:"rewards"`

	CatalogTimestamps
}

func (r *StreakReward) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// ClaimedStreakReward is the idempotency record for a granted tier. Never updated or deleted.
type ClaimedStreakReward struct {
	ID                    string    `gorm:"primaryKey;type:uuid" json:"id"`
	GamificationProfileID string    `gorm:"type:uuid;not null;uniqueIndex:idx_claimed_streak_reward" json:"gamification_profile_id"`
	StreakRewardID        string    `gorm:"type:uuid;not null;uniqueIndex:idx_claimed_streak_reward" json:"streak_reward_id"`
	ClaimedAt             time.Time `gorm:"autoCreateTime" json:"claimed_at"`
}

func (c *ClaimedStreakReward) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
