package models

// All lists every table the service owns, in migration order.
func All() []interface{} {
	return []interface{}{
		&Reward{},
		&GamificationProfile{},
		&Streak{},
		&StreakLog{},
		&StreakReward{},
		&ClaimedStreakReward{},
		&Mission{},
		&MissionProgress{},
		&GamificationEventLog{},
	}
}
