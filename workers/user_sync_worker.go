// workers/user_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"civic-task-engine/services"
)

// RemoteProfile matches one entry of the profile service change feed.
type RemoteProfile struct {
	ExternalID    string    `json:"external_id"`
	Username      string    `json:"username"`
	Neighborhood  string    `json:"neighborhood"`
	AccountStatus string    `json:"account_status"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// GetUserChangesResponse is the top-level structure of the change feed.
type GetUserChangesResponse struct {
	Users []RemoteProfile `json:"users"`
}

// ProfileSink receives mirrored profiles.
type ProfileSink interface {
	UpsertProfile(ctx context.Context, p services.Profile) error
}

// UserSyncWorker mirrors user identities from the profile service.
type UserSyncWorker struct {
	sink         ProfileSink
	interval     time.Duration
	baseURL      string
	endpointPath string
	serviceToken string
	httpClient   *http.Client
	// cursor is the newest remote updated_at seen; zero backfills everything.
	cursor time.Time
}

func NewUserSyncWorker(sink ProfileSink, baseURL, endpointPath, serviceToken string, interval time.Duration) *UserSyncWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &UserSyncWorker{
		sink:         sink,
		interval:     interval,
		baseURL:      baseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Start runs the sync loop in the background until ctx is done.
func (w *UserSyncWorker) Start(ctx context.Context) {
	log.Println("🔁 [UserSync] starting profile mirror")
	go w.run(ctx)
}

func (w *UserSyncWorker) run(ctx context.Context) {
	if _, err := w.SyncOnce(ctx); err != nil {
		log.Printf("⚠️ [UserSync] initial sync failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.SyncOnce(ctx); err != nil {
				log.Printf("❌ [UserSync] sync batch failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("⏹️ [UserSync] stopped")
			return
		}
	}
}

// SyncOnce fetches changes since the cursor and upserts them. It returns the
// number of profiles stored. The cursor only advances past stored profiles.
func (w *UserSyncWorker) SyncOnce(ctx context.Context) (int, error) {
	profiles, err := w.fetch(ctx, w.cursor)
	if err != nil {
		return 0, err
	}
	if len(profiles) == 0 {
		return 0, nil
	}

	stored, failed := 0, 0
	next := w.cursor
	for _, p := range profiles {
		err := w.sink.UpsertProfile(ctx, services.Profile{
			ExternalID:   p.ExternalID,
			Username:     p.Username,
			Neighborhood: p.Neighborhood,
			Active:       isActiveStatus(p.AccountStatus),
		})
		if err != nil {
			failed++
			log.Printf("⚠️ [UserSync] upsert external_id=%q failed: %v", p.ExternalID, err)
			continue
		}
		stored++
		if p.UpdatedAt.After(next) {
			next = p.UpdatedAt
		}
	}
	if failed == 0 {
		w.cursor = next
	}
	log.Printf("✅ [UserSync] synced %d profiles (%d errors), cursor=%s", stored, failed, w.cursor.Format(time.RFC3339))
	return stored, nil
}

func (w *UserSyncWorker) fetch(ctx context.Context, since time.Time) ([]RemoteProfile, error) {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid profile service URL '%s': %w", w.baseURL, err)
	}
	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	endpointURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpointURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request to profile service failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("profile service non-200 response: %d: %s", resp.StatusCode, string(body))
	}

	var out GetUserChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode profile service response: %w", err)
	}
	return out.Users, nil
}

func isActiveStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "", "active", "verified":
		return true
	}
	return false
}
