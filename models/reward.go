package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RewardType is the kind of balance a reward credits
type RewardType string

const (
	RewardTypeXP      RewardType = "XP"
	RewardTypeSEToken RewardType = "SE_TOKEN"
	RewardTypeFreeze  RewardType = "FREEZE"
	RewardTypeRepair  RewardType = "REPAIR"
)

func (t RewardType) Valid() bool {
	switch t {
	case RewardTypeXP, RewardTypeSEToken, RewardTypeFreeze, RewardTypeRepair:
		return true
	}
	return false
}

// Reward is an atomic grant unit. Immutable once a Mission or StreakReward references it.
type Reward struct {
	ID          string     `gorm:"primaryKey;type:uuid" json:"id"`
	Code        string     `gorm:"uniqueIndex;not null" json:"code"` // e.g. "xp-100"
	RewardType  RewardType `gorm:"type:varchar(16);not null" json:"reward_type"`
	RewardValue int64      `gorm:"not null;default:0" json:"reward_value"`

	CatalogTimestamps
}

func (r *Reward) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
