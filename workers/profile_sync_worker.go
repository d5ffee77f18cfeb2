// workers/profile_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"gamification-ledger/logger"
	"gamification-ledger/models"
)

// RemoteProfile is the subset of the profile service payload the ledger needs.
type RemoteProfile struct {
	ID            string    `json:"id"`
	ExternalID    string    `json:"external_id"`
	AccountStatus string    `json:"account_status"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type GetProfileChangesResponse struct {
	Users []RemoteProfile `json:"users"`
}

const profileSyncTimeout = 30 * time.Second

type ProfileEnsurer interface {
	EnsureProfile(ctx context.Context, profileID string) (*models.GamificationProfile, error)
}

// ProfileSyncWorker pre-provisions gamification profiles for profiles created or changed upstream.
type ProfileSyncWorker struct {
	profiles     ProfileEnsurer
	log          *logger.Logger
	interval     time.Duration
	baseURL      string
	endpointPath string
	serviceToken string
	httpClient   *http.Client

	since time.Time
}

func NewProfileSyncWorker(profiles ProfileEnsurer, log *logger.Logger, baseURL, endpointPath, serviceToken string, interval time.Duration) *ProfileSyncWorker {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &ProfileSyncWorker{
		profiles:     profiles,
		log:          log.With("worker", "profile_sync"),
		interval:     interval,
		baseURL:      baseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient:   &http.Client{Timeout: profileSyncTimeout},
	}
}

func (w *ProfileSyncWorker) Start(ctx context.Context) {
	w.log.Info("starting profile sync worker", "interval", w.interval.String())
	go w.run(ctx)
}

func (w *ProfileSyncWorker) run(ctx context.Context) {
	if _, err := w.SyncOnce(ctx); err != nil {
		w.log.Warn("initial profile sync failed", "error", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.SyncOnce(ctx); err != nil {
				w.log.Error("profile sync failed", "error", err)
			}
		case <-ctx.Done():
			w.log.Info("profile sync worker stopped")
			return
		}
	}
}

// SyncOnce fetches changes since the last successful batch and ensures a ledger profile for each.
func (w *ProfileSyncWorker) SyncOnce(ctx context.Context) (int, error) {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return 0, fmt.Errorf("invalid profile service URL %q: %w", w.baseURL, err)
	}
	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", w.since.UTC().Format(time.RFC3339))
	endpointURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpointURL.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request profile changes: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("profile service returned %d: %s", resp.StatusCode, string(body))
	}

	var payload GetProfileChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decode profile changes: %w", err)
	}

	ensured := 0
	latest := w.since
	for _, p := range payload.Users {
		id := p.ExternalID
		if id == "" {
			id = p.ID
		}
		if id == "" {
			continue
		}
		if _, err := w.profiles.EnsureProfile(ctx, id); err != nil {
			// stop here so the next run retries from the last fully processed timestamp
			w.since = latest
			return ensured, fmt.Errorf("ensure profile %s: %w", id, err)
		}
		ensured++
		if p.UpdatedAt.After(latest) {
			latest = p.UpdatedAt
		}
	}
	w.since = latest

	if ensured > 0 {
		w.log.Info("profiles synced", "count", ensured, "since", w.since.Format(time.RFC3339))
	}
	return ensured, nil
}
