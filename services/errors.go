package services

import "errors"

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrProfileNotFound     = errors.New("gamification profile not found")
	ErrStreakNotFound      = errors.New("streak not found")
	ErrMissionNotFound     = errors.New("no active missions")
	ErrProgressNotFound    = errors.New("mission progress not found")
	ErrNothingToRepair     = errors.New("no missed streak within the repair window")
	ErrInsufficientCredits = errors.New("insufficient credits")
)
