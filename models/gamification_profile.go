package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GamificationProfile is the per-user ledger root. One row per external profile, created lazily.
type GamificationProfile struct {
	ID        string `gorm:"primaryKey;type:uuid" json:"id"`
	ProfileID string `gorm:"uniqueIndex;not null" json:"profile_id"` // links to profile service

	// Balances (only mutated by reward application)
	TotalXP      int64 `json:"total_xp" gorm:"not null;default:0"`
	SeasonXP     int64 `json:"season_xp" gorm:"not null;default:0"`
	FreezeCount  int64 `json:"freeze_count" gorm:"not null;default:0"`
	RepairCount  int64 `json:"repair_count" gorm:"not null;default:0"`
	TokenBalance int64 `json:"token_balance" gorm:"not null;default:0"`

	Timestamps
}

func (p *GamificationProfile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// CatalogTimestamps is Timestamps plus soft delete, for admin-managed definitions.
type CatalogTimestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}
