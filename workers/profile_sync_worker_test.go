package workers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"gamification-ledger/logger"
	"gamification-ledger/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ensurerStub struct {
	mu   sync.Mutex
	ids  []string
	fail string
}

func (s *ensurerStub) EnsureProfile(_ context.Context, profileID string) (*models.GamificationProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if profileID == s.fail {
		return nil, errors.New("db unavailable")
	}
	s.ids = append(s.ids, profileID)
	return &models.GamificationProfile{ProfileID: profileID}, nil
}

func TestProfileSyncOnce(t *testing.T) {
	t1 := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	var sinceSeen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/public/profiles", r.URL.Path)
		assert.Equal(t, "svc-token", r.Header.Get("X-Service-Token"))
		sinceSeen = append(sinceSeen, r.URL.Query().Get("since"))
		_ = json.NewEncoder(w).Encode(GetProfileChangesResponse{Users: []RemoteProfile{
			{ID: "p-1", ExternalID: "ext-1", UpdatedAt: t1},
			{ID: "p-2", UpdatedAt: t2},
			{},
		}})
	}))
	defer srv.Close()

	stub := &ensurerStub{}
	w := NewProfileSyncWorker(stub, logger.Nop(), srv.URL, "/api/v1/public/profiles", "svc-token", time.Minute)
	assert.Equal(t, profileSyncTimeout, w.httpClient.Timeout)

	n, err := w.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"ext-1", "p-2"}, stub.ids)

	_, err = w.SyncOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, sinceSeen, 2)
	assert.Equal(t, time.Time{}.Format(time.RFC3339), sinceSeen[0])
	assert.Equal(t, t2.Format(time.RFC3339), sinceSeen[1])
}

func TestProfileSyncStopsAtFailure(t *testing.T) {
	t1 := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(GetProfileChangesResponse{Users: []RemoteProfile{
			{ExternalID: "ext-1", UpdatedAt: t1},
			{ExternalID: "ext-2", UpdatedAt: t1.Add(time.Hour)},
		}})
	}))
	defer srv.Close()

	stub := &ensurerStub{fail: "ext-2"}
	w := NewProfileSyncWorker(stub, logger.Nop(), srv.URL, "/api/v1/public/profiles", "svc-token", time.Minute)

	n, err := w.SyncOnce(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, t1.Equal(w.since))
}

func TestProfileSyncNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	w := NewProfileSyncWorker(&ensurerStub{}, logger.Nop(), srv.URL, "/x", "svc-token", time.Minute)
	_, err := w.SyncOnce(context.Background())
	assert.ErrorContains(t, err, "502")
}
