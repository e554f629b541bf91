package store

import (
	"testing"
	"time"

	"aze/timetrack-service/internal/models"
)

func chainEvents(t *testing.T, entry models.TimeEntry, types ...string) []EntryEvent {
	t.Helper()
	var events []EntryEvent
	prev := ""
	base := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	for i, eventType := range types {
		createdAt := base.Add(time.Duration(i) * time.Minute)
		payload := EntryEventPayload(entry)
		hash := ComputeEntryEventHash(prev, entry.EntryID, eventType, payload, createdAt, i+1)
		events = append(events, EntryEvent{
			EntryID:   entry.EntryID,
			Seq:       i + 1,
			Type:      eventType,
			Payload:   payload,
			CreatedAt: createdAt,
			PrevHash:  prev,
			Hash:      hash,
		})
		prev = hash
	}
	return events
}

func TestVerifyEntryEventsIntact(t *testing.T) {
	entry := models.TimeEntry{
		EntryID:   "entry-1",
		UserID:    "user-1",
		EntryDate: "2025-01-10",
		StartTime: time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC),
		Location:  "office",
	}
	events := chainEvents(t, entry, EventStarted, EventStopped)
	if broken := VerifyEntryEvents(events); broken != -1 {
		t.Fatalf("expected intact chain, broken at %d", broken)
	}
}

func TestVerifyEntryEventsDetectsTampering(t *testing.T) {
	entry := models.TimeEntry{EntryID: "entry-1", UserID: "user-1", Location: "office"}
	events := chainEvents(t, entry, EventStarted, EventStopped, EventCorrectionApply)
	events[1].Payload = []byte(`{"entry_id":"entry-1","location":"forged"}`)
	if broken := VerifyEntryEvents(events); broken != 1 {
		t.Fatalf("expected break at index 1, got %d", broken)
	}
}

func TestRehydrateEntry(t *testing.T) {
	start := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	stop := start.Add(4 * time.Hour)

	running := models.TimeEntry{
		EntryID:   "entry-1",
		UserID:    "user-1",
		EntryDate: "2025-01-10",
		StartTime: start,
		Location:  "office",
	}
	stopped := running
	stopped.StopTime = &stop

	events := chainEvents(t, running, EventStarted)
	events = append(events, chainEvents(t, stopped, EventStopped)...)

	entry, err := RehydrateEntry(events)
	if err != nil {
		t.Fatalf("rehydrate: %v", err)
	}
	if entry.EntryID != "entry-1" || entry.StopTime == nil || !entry.StopTime.Equal(stop) {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.DurationSeconds() != 4*3600 {
		t.Fatalf("expected 14400s duration, got %d", entry.DurationSeconds())
	}
}
