//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"

	"aze/timetrack-service/internal/httpapi"
	"aze/timetrack-service/internal/migrate"
	"aze/timetrack-service/internal/models"
	"aze/timetrack-service/internal/store/postgres"
)

func TestTimerAndApprovalFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping in short mode")
	}
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "testdb",
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "pass",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).WithStartupTimeout(90 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = pgC.Terminate(context.Background()) })

	host, err := pgC.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := pgC.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("mapped port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://test:pass@%s:%s/testdb?sslmode=disable", host, port.Port())

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	if err := migrate.Run(ctx, dsn, logger); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pgx pool: %v", err)
	}
	t.Cleanup(pool.Close)

	workerID := seedUser(t, ctx, pool, "worker@example.com", "geheim", models.RoleMitarbeiter)
	seedUser(t, ctx, pool, "lead@example.com", "geheim", models.RoleStandortleiter)

	st := postgres.NewStore(pool, postgres.Options{SessionTTL: time.Hour})
	handler := httpapi.NewHandler(st, httpapi.Options{})
	server := httptest.NewServer(httpapi.AuthMiddleware(st, handler.Routes()))
	t.Cleanup(server.Close)

	workerSession := login(t, server.URL, "worker@example.com", "geheim")
	leadSession := login(t, server.URL, "lead@example.com", "geheim")

	// Start, then stop: the entry must come back with a duration.
	entry := postJSON[models.TimeEntry](t, server.URL+"/api/timer/start", workerSession,
		map[string]string{"location": "Berlin"}, http.StatusOK)
	if entry.UserID != workerID || !entry.Running() {
		t.Fatalf("unexpected started entry: %+v", entry)
	}

	// A second start must conflict.
	postStatus(t, server.URL+"/api/timer/start", workerSession,
		map[string]string{"location": "Berlin"}, http.StatusConflict)

	stopped := postJSON[models.TimeEntry](t, server.URL+"/api/timer/stop", workerSession, nil, http.StatusOK)
	if stopped.Running() || stopped.EntryID != entry.EntryID {
		t.Fatalf("unexpected stopped entry: %+v", stopped)
	}

	// Worker files a correction, the lead approves, the entry changes.
	newStop := stopped.StartTime.Add(90 * time.Minute).Truncate(time.Second).UTC()
	request := postJSON[models.ApprovalRequest](t, server.URL+"/api/approvals", workerSession, map[string]any{
		"type":     "edit",
		"entry_id": entry.EntryID,
		"new_data": map[string]string{"stop_time": newStop.Format(time.RFC3339)},
		"reason":   "Pause nicht gestempelt",
	}, http.StatusCreated)
	if request.Status != models.ApprovalPending {
		t.Fatalf("expected pending request, got %s", request.Status)
	}

	// A Mitarbeiter has no decision rights.
	postStatus(t, server.URL+"/api/approvals/"+request.RequestID+"/decide", workerSession,
		map[string]string{"decision": "approved"}, http.StatusForbidden)

	decided := postJSON[models.ApprovalRequest](t, server.URL+"/api/approvals/"+request.RequestID+"/decide", leadSession,
		map[string]string{"decision": "approved"}, http.StatusOK)
	if decided.Status != models.ApprovalApproved {
		t.Fatalf("expected approved, got %s", decided.Status)
	}

	entries := getJSON[[]models.TimeEntry](t, server.URL+"/api/time-entries", workerSession, http.StatusOK)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].StopTime == nil || !entries[0].StopTime.Equal(newStop) {
		t.Fatalf("expected stop time %v, got %v", newStop, entries[0].StopTime)
	}
}

func seedUser(t *testing.T, ctx context.Context, pool *pgxpool.Pool, email, password, role string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	userID := uuid.NewString()
	if _, err := pool.Exec(ctx, `
		INSERT INTO users (user_id, display_name, email, password_hash, role, onboarding_status, active)
		VALUES ($1, 'Test Nutzer', $2, $3, $4, 'complete', TRUE)
	`, userID, email, string(hash), role); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	return userID
}

func login(t *testing.T, baseURL, email, password string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	resp, err := http.Post(baseURL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: expected status 200, got %d", resp.StatusCode)
	}
	var result struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if result.SessionID == "" {
		t.Fatalf("empty session id")
	}
	return result.SessionID
}

func postJSON[T any](t *testing.T, url, sessionID string, payload any, wantStatus int) T {
	t.Helper()
	resp := doPost(t, url, sessionID, payload)
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s: expected status %d, got %d", url, wantStatus, resp.StatusCode)
	}
	var result T
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response from %s: %v", url, err)
	}
	return result
}

func postStatus(t *testing.T, url, sessionID string, payload any, wantStatus int) {
	t.Helper()
	resp := doPost(t, url, sessionID, payload)
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s: expected status %d, got %d", url, wantStatus, resp.StatusCode)
	}
}

func doPost(t *testing.T, url, sessionID string, payload any) *http.Response {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}
	req, err := http.NewRequest(http.MethodPost, url, &body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+sessionID)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request %s: %v", url, err)
	}
	return resp
}

func getJSON[T any](t *testing.T, url, sessionID string, wantStatus int) T {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+sessionID)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s: expected status %d, got %d", url, wantStatus, resp.StatusCode)
	}
	var result T
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response from %s: %v", url, err)
	}
	return result
}
