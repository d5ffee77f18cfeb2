package services

import (
	"encoding/json"
	"fmt"

	"gamification-ledger/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// grant describes why a batch of rewards is being applied.
type grant struct {
	Action     models.LedgerAction
	SourceType string
	SourceID   string
	Metadata   map[string]interface{}
}

// applyRewards credits every reward to the profile and writes one ledger row per reward,
// all inside tx. Balances are incremented in SQL so concurrent grants never overwrite each other.
func applyRewards(tx *gorm.DB, profile *models.GamificationProfile, rewards []models.Reward, g grant) ([]models.GamificationEventLog, error) {
	var (
		xp, tokens, freezes, repairs int64
		entries                      = make([]models.GamificationEventLog, 0, len(rewards))
	)
	meta, err := encodeMetadata(g.Metadata)
	if err != nil {
		return nil, err
	}

	for _, r := range rewards {
		if r.RewardValue < 0 {
			return nil, fmt.Errorf("reward %s has negative value: %w", r.Code, ErrInvalidInput)
		}
		entry := models.GamificationEventLog{
			GamificationProfileID: profile.ID,
			ActionType:            g.Action,
			RewardType:            r.RewardType,
			SourceType:            g.SourceType,
			SourceID:              g.SourceID,
			Metadata:              meta,
		}
		switch r.RewardType {
		case models.RewardTypeXP:
			xp += r.RewardValue
			entry.XPDelta = r.RewardValue
		case models.RewardTypeSEToken:
			tokens += r.RewardValue
			entry.TokenDelta = r.RewardValue
		case models.RewardTypeFreeze:
			freezes += r.RewardValue
			entry.FreezeDelta = r.RewardValue
		case models.RewardTypeRepair:
			repairs += r.RewardValue
			entry.RepairDelta = r.RewardValue
		default:
			return nil, fmt.Errorf("reward %s has unknown type %q: %w", r.Code, r.RewardType, ErrInvalidInput)
		}
		if err := record(tx, &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if len(entries) == 0 {
		return entries, nil
	}

	err = tx.Model(&models.GamificationProfile{}).
		Where("id = ?", profile.ID).
		UpdateColumns(map[string]interface{}{
			"total_xp":      gorm.Expr("total_xp + ?", xp),
			"season_xp":     gorm.Expr("season_xp + ?", xp),
			"token_balance": gorm.Expr("token_balance + ?", tokens),
			"freeze_count":  gorm.Expr("freeze_count + ?", freezes),
			"repair_count":  gorm.Expr("repair_count + ?", repairs),
		}).Error
	if err != nil {
		return nil, fmt.Errorf("credit profile %s: %w", profile.ID, err)
	}
	if err := tx.First(profile, "id = ?", profile.ID).Error; err != nil {
		return nil, fmt.Errorf("reload profile %s: %w", profile.ID, err)
	}
	return entries, nil
}

// consumeCredit debits one FREEZE or REPAIR credit and logs it with a negative delta.
func consumeCredit(tx *gorm.DB, profile *models.GamificationProfile, rewardType models.RewardType, g grant) (*models.GamificationEventLog, error) {
	var column string
	entry := models.GamificationEventLog{
		GamificationProfileID: profile.ID,
		ActionType:            g.Action,
		RewardType:            rewardType,
		SourceType:            g.SourceType,
		SourceID:              g.SourceID,
	}
	switch rewardType {
	case models.RewardTypeFreeze:
		column = "freeze_count"
		entry.FreezeDelta = -1
	case models.RewardTypeRepair:
		column = "repair_count"
		entry.RepairDelta = -1
	default:
		return nil, fmt.Errorf("%q is not a consumable credit: %w", rewardType, ErrInvalidInput)
	}

	res := tx.Model(&models.GamificationProfile{}).
		Where("id = ? AND "+column+" > 0", profile.ID).
		UpdateColumn(column, gorm.Expr(column+" - 1"))
	if res.Error != nil {
		return nil, fmt.Errorf("debit %s: %w", column, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrInsufficientCredits
	}

	meta, err := encodeMetadata(g.Metadata)
	if err != nil {
		return nil, err
	}
	entry.Metadata = meta
	if err := record(tx, &entry); err != nil {
		return nil, err
	}
	if err := tx.First(profile, "id = ?", profile.ID).Error; err != nil {
		return nil, fmt.Errorf("reload profile %s: %w", profile.ID, err)
	}
	return &entry, nil
}

func encodeMetadata(m map[string]interface{}) (datatypes.JSON, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode ledger metadata: %w", err)
	}
	return datatypes.JSON(b), nil
}
