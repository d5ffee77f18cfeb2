package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MissionType string

const (
	MissionTypeDaily  MissionType = "DAILY"
	MissionTypeWeekly MissionType = "WEEKLY"
	MissionTypeEvent  MissionType = "EVENT"
)

// Target types emitted by the platform modules. Missions may use any tag; these are the known ones.
const (
	TargetExamCompleted      = "EXAM_COMPLETED"
	TargetDocumentUploaded   = "DOCUMENT_UPLOADED"
	TargetLessonCompleted    = "LESSON_COMPLETED"
	TargetVocabularyReviewed = "VOCABULARY_REVIEWED"
	TargetBlogPosted         = "BLOG_POSTED"
)

// Mission is a countable objective definition.
type Mission struct {
	ID         string      `gorm:"primaryKey;type:uuid" json:"id"`
	Code       string      `gorm:"uniqueIndex;not null" json:"code"` // slug of the title
	Title      string      `gorm:"not null" json:"title"`
	Type       MissionType `gorm:"type:varchar(16);not null;index" json:"type"`
	TargetType string      `gorm:"type:varchar(64);not null;index" json:"target_type"`
	TotalCount int64       `gorm:"not null;default:1" json:"total_count"`
	IsActive   bool        `gorm:"not null" json:"is_active"`
	Rewards    []Reward    `gorm:"many2many:mission_rewards;" json:"rewards"`

	CatalogTimestamps
}

func (m *Mission) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

type MissionStatus string

const (
	MissionStatusInProgress MissionStatus = "IN_PROGRESS"
	MissionStatusCompleted  MissionStatus = "COMPLETED"
	MissionStatusExpired    MissionStatus = "EXPIRED"
)

type MissionRewardStatus string

const (
	MissionRewardPending MissionRewardStatus = "PENDING"
	MissionRewardClaimed MissionRewardStatus = "CLAIMED"
)

// MissionProgress tracks one mission for one profile inside [StartAt, EndAt).
// A fresh row replaces a stale one; the pair (mission, profile) is unique.
type MissionProgress struct {
	ID                    string              `gorm:"primaryKey;type:uuid" json:"id"`
	MissionID             string              `gorm:"type:uuid;not null;uniqueIndex:idx_mission_progress_owner" json:"mission_id"`
	GamificationProfileID string              `gorm:"type:uuid;not null;uniqueIndex:idx_mission_progress_owner;index" json:"gamification_profile_id"`
	StartAt               time.Time           `gorm:"not null" json:"start_at"`
	EndAt                 time.Time           `gorm:"not null;index" json:"end_at"`
	CurrentValue          int64               `gorm:"not null;default:0" json:"current_value"`
	Status                MissionStatus       `gorm:"type:varchar(16);not null;index" json:"status"`
	RewardStatus          MissionRewardStatus `gorm:"type:varchar(16);not null" json:"reward_status"`
	CompletedAt           *time.Time          `json:"completed_at,omitempty"`
	ClaimedAt             *time.Time          `json:"claimed_at,omitempty"`

	Mission *Mission `gorm:"foreignKey:MissionID" json:"mission,omitempty"`

	Timestamps
}

func (p *MissionProgress) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
