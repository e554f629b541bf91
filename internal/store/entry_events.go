package store

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"aze/timetrack-service/internal/models"
)

// EntryEvent is one audit record for a time entry. Events form a
// hash chain per entry so after-the-fact edits to the audit trail
// are detectable.
type EntryEvent struct {
	EntryID   string          `json:"entry_id"`
	Seq       int             `json:"seq"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Actor     string          `json:"actor"`
	CreatedAt time.Time       `json:"created_at"`
	PrevHash  string          `json:"prev_hash"`
	Hash      string          `json:"hash"`
}

const (
	EventStarted         = "started"
	EventStopped         = "stopped"
	EventAutoStopped     = "auto_stopped"
	EventCorrectionApply = "correction_applied"
	EventDeleted         = "deleted"
)

type entryEventPayload struct {
	EntryID   string     `json:"entry_id"`
	UserID    string     `json:"user_id"`
	EntryDate string     `json:"entry_date"`
	StartTime *time.Time `json:"start_time"`
	StopTime  *time.Time `json:"stop_time"`
	Location  string     `json:"location"`
}

func ComputeEntryEventHash(prevHash, entryID, eventType string, payload json.RawMessage, createdAt time.Time, seq int) string {
	raw := fmt.Sprintf("%s|%s|%s|%s|%d|%s", prevHash, entryID, eventType, createdAt.UTC().Format(time.RFC3339Nano), seq, payload)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum)
}

// VerifyEntryEvents recomputes the hash chain and reports the first
// broken link, or -1 when the chain is intact.
func VerifyEntryEvents(events []EntryEvent) int {
	prev := ""
	for i, event := range events {
		want := ComputeEntryEventHash(prev, event.EntryID, event.Type, event.Payload, event.CreatedAt, event.Seq)
		if event.PrevHash != prev || event.Hash != want {
			return i
		}
		prev = event.Hash
	}
	return -1
}

// RehydrateEntry folds an event chain back into the entry's latest state.
func RehydrateEntry(events []EntryEvent) (models.TimeEntry, error) {
	var entry models.TimeEntry
	for _, event := range events {
		if len(event.Payload) == 0 {
			continue
		}
		var payload entryEventPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return models.TimeEntry{}, err
		}
		if payload.EntryID != "" {
			entry.EntryID = payload.EntryID
		}
		if payload.UserID != "" {
			entry.UserID = payload.UserID
		}
		if payload.EntryDate != "" {
			entry.EntryDate = payload.EntryDate
		}
		if payload.StartTime != nil {
			entry.StartTime = *payload.StartTime
		}
		if payload.StopTime != nil {
			entry.StopTime = payload.StopTime
		}
		if payload.Location != "" {
			entry.Location = payload.Location
		}
		if event.Type == EventDeleted {
			return models.TimeEntry{}, nil
		}
	}
	return entry, nil
}

// EntryEventPayload serializes an entry snapshot for the audit chain.
func EntryEventPayload(entry models.TimeEntry) json.RawMessage {
	start := entry.StartTime
	payload := entryEventPayload{
		EntryID:   entry.EntryID,
		UserID:    entry.UserID,
		EntryDate: entry.EntryDate,
		StartTime: &start,
		StopTime:  entry.StopTime,
		Location:  entry.Location,
	}
	raw, _ := json.Marshal(payload)
	return raw
}
