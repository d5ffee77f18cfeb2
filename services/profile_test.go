package services

import (
	"context"
	"sync"
	"testing"

	"gamification-ledger/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureProfileCreatesProfileAndStreak(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	p, err := l.profiles.EnsureProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "user-1", p.ProfileID)
	assert.Zero(t, p.TotalXP)

	s := l.streakOf(t, p)
	assert.Zero(t, s.CurrentStreak)
	assert.Zero(t, s.MaxStreak)
	assert.Nil(t, s.LastActiveAt)

	again, err := l.profiles.EnsureProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, again.ID)
}

func TestEnsureProfileConcurrent(t *testing.T) {
	l := newTestLedger(t)

	var wg sync.WaitGroup
	ids := make([]string, 16)
	errs := make([]error, 16)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := l.profiles.EnsureProfile(context.Background(), "user-race")
			errs[i] = err
			if p != nil {
				ids[i] = p.ID
			}
		}(i)
	}
	wg.Wait()

	for i := range ids {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, int64(1), l.count(t, &models.GamificationProfile{}, "profile_id = ?", "user-race"))
	assert.Equal(t, int64(1), l.count(t, &models.Streak{}, "gamification_profile_id = ?", ids[0]))
}

func TestEnsureProfileRejectsBlank(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.profiles.EnsureProfile(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestGetProfileDoesNotCreate(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.profiles.GetProfile(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrProfileNotFound)
	assert.Zero(t, l.count(t, &models.GamificationProfile{}, "1 = 1"))
}

func TestGetOverview(t *testing.T) {
	l := newTestLedger(t)
	ov, err := l.profiles.GetOverview(context.Background(), "user-ov")
	require.NoError(t, err)
	assert.Equal(t, "user-ov", ov.Profile.ProfileID)
	assert.Equal(t, ov.Profile.ID, ov.Streak.GamificationProfileID)
}
