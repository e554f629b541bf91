package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"aze/timetrack-service/internal/models"
	"aze/timetrack-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type Store struct {
	pool       *pgxpool.Pool
	sessionTTL time.Duration
}

type Options struct {
	SessionTTL time.Duration
}

func NewStore(pool *pgxpool.Pool, options Options) *Store {
	ttl := options.SessionTTL
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &Store{pool: pool, sessionTTL: ttl}
}

const entryColumns = `entry_id, user_id, entry_date::text, start_time, stop_time, location, created_by, created_at, updated_by, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (models.TimeEntry, error) {
	var entry models.TimeEntry
	var stopNull sql.NullTime
	var updatedByNull sql.NullString
	var updatedAtNull sql.NullTime
	err := row.Scan(&entry.EntryID, &entry.UserID, &entry.EntryDate, &entry.StartTime, &stopNull, &entry.Location, &entry.CreatedBy, &entry.CreatedAt, &updatedByNull, &updatedAtNull)
	if err != nil {
		return models.TimeEntry{}, err
	}
	entry.StopTime = nullTimePtr(stopNull)
	entry.UpdatedBy = nullStringPtr(updatedByNull)
	entry.UpdatedAt = nullTimePtr(updatedAtNull)
	return entry, nil
}

func (s *Store) StartTimer(ctx context.Context, input store.StartTimerInput) (models.TimeEntry, error) {
	startedAt := input.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	entryDate := input.EntryDate
	if entryDate == "" {
		entryDate = startedAt.Format("2006-01-02")
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.TimeEntry{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var onboarding string
	var active bool
	row := tx.QueryRow(ctx, `SELECT onboarding_status, active FROM users WHERE user_id = $1`, input.UserID)
	if err = row.Scan(&onboarding, &active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrUserNotFound
		}
		return models.TimeEntry{}, err
	}
	if !active {
		err = store.ErrUserNotFound
		return models.TimeEntry{}, err
	}
	if onboarding != models.OnboardingComplete {
		err = store.ErrOnboardingIncomplete
		return models.TimeEntry{}, err
	}

	running, found, err := lockRunningEntry(ctx, tx, input.UserID)
	if err != nil {
		return models.TimeEntry{}, err
	}
	if found {
		if !input.AutoStop {
			err = store.ErrTimerRunning
			return models.TimeEntry{}, err
		}
		if err = stopEntry(ctx, tx, &running, startedAt, input.UserID); err != nil {
			return models.TimeEntry{}, err
		}
		if err = insertEntryEvent(ctx, tx, running, store.EventAutoStopped, input.UserID, startedAt); err != nil {
			return models.TimeEntry{}, err
		}
	}

	entry := models.TimeEntry{
		EntryID:   uuid.NewString(),
		UserID:    input.UserID,
		EntryDate: entryDate,
		StartTime: startedAt,
		Location:  input.Location,
		CreatedBy: input.UserID,
		CreatedAt: startedAt,
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO time_entries (entry_id, user_id, entry_date, start_time, stop_time, location, created_by, created_at)
		VALUES ($1, $2, $3, $4, NULL, $5, $6, $7)
	`, entry.EntryID, entry.UserID, entry.EntryDate, entry.StartTime, entry.Location, entry.CreatedBy, entry.CreatedAt)
	if err != nil {
		// The partial unique index on (user_id) WHERE stop_time IS NULL
		// turns a concurrent start into a lost race, not a second timer.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			err = store.ErrTimerRunning
		}
		return models.TimeEntry{}, err
	}

	if err = insertEntryEvent(ctx, tx, entry, store.EventStarted, input.UserID, startedAt); err != nil {
		return models.TimeEntry{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.TimeEntry{}, err
	}
	return entry, nil
}

func (s *Store) StopTimer(ctx context.Context, input store.StopTimerInput) (models.TimeEntry, error) {
	stoppedAt := input.StoppedAt
	if stoppedAt.IsZero() {
		stoppedAt = time.Now().UTC()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.TimeEntry{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var entry models.TimeEntry
	row := tx.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM time_entries
		WHERE user_id = $1 AND stop_time IS NULL
		ORDER BY start_time DESC
		LIMIT 1
	`, input.UserID)
	entry, err = scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrNoRunningTimer
		}
		return models.TimeEntry{}, err
	}

	if err = stopEntry(ctx, tx, &entry, stoppedAt, input.UserID); err != nil {
		return models.TimeEntry{}, err
	}
	if err = insertEntryEvent(ctx, tx, entry, store.EventStopped, input.UserID, stoppedAt); err != nil {
		return models.TimeEntry{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.TimeEntry{}, err
	}
	return entry, nil
}

// stopEntry sets the stop time with a stop_time IS NULL guard. Zero
// affected rows means a concurrent stop won.
func stopEntry(ctx context.Context, tx pgx.Tx, entry *models.TimeEntry, stoppedAt time.Time, actor string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE time_entries
		SET stop_time = $2, updated_by = $3, updated_at = $2
		WHERE entry_id = $1 AND stop_time IS NULL
	`, entry.EntryID, stoppedAt, actor)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrTimerStopped
	}
	entry.StopTime = &stoppedAt
	entry.UpdatedBy = &actor
	entry.UpdatedAt = &stoppedAt
	return nil
}

func (s *Store) GetRunningEntry(ctx context.Context, userID string) (models.TimeEntry, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM time_entries
		WHERE user_id = $1 AND stop_time IS NULL
		ORDER BY start_time DESC
		LIMIT 1
	`, userID)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.TimeEntry{}, false, nil
		}
		return models.TimeEntry{}, false, err
	}
	return entry, true, nil
}

func (s *Store) ListTimeEntries(ctx context.Context, input store.ListEntriesInput) ([]models.TimeEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM time_entries
		WHERE user_id = $1
	`
	args := []any{input.UserID}
	if input.From != "" {
		args = append(args, input.From)
		query += ` AND entry_date >= $2`
	}
	if input.To != "" {
		args = append(args, input.To)
		if input.From != "" {
			query += ` AND entry_date <= $3`
		} else {
			query += ` AND entry_date <= $2`
		}
	}
	query += ` ORDER BY start_time DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.TimeEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// AutoStopStale closes running entries older than maxAge. The original
// deployment accumulated forgotten timers that had to be cleaned up by
// hand; this sweeper runs from the server loop instead.
func (s *Store) AutoStopStale(ctx context.Context, maxAge time.Duration, batchSize int) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	cutoff := time.Now().UTC().Add(-maxAge)
	rows, err := tx.Query(ctx, `
		SELECT `+entryColumns+`
		FROM time_entries
		WHERE stop_time IS NULL AND start_time <= $1
		ORDER BY start_time ASC
		FOR UPDATE SKIP LOCKED
		LIMIT $2
	`, cutoff, batchSize)
	if err != nil {
		return 0, err
	}

	var stale []models.TimeEntry
	for rows.Next() {
		var entry models.TimeEntry
		if entry, err = scanEntry(rows); err != nil {
			rows.Close()
			return 0, err
		}
		stale = append(stale, entry)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	processed := 0
	for i := range stale {
		if err = stopEntry(ctx, tx, &stale[i], now, "system"); err != nil {
			return 0, err
		}
		if err = insertEntryEvent(ctx, tx, stale[i], store.EventAutoStopped, "system", now); err != nil {
			return 0, err
		}
		processed++
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, err
	}
	return processed, nil
}

func (s *Store) ListEntryEvents(ctx context.Context, entryID string) ([]store.EntryEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT entry_id, seq, type, payload, actor, created_at, prev_hash, hash
		FROM entry_events
		WHERE entry_id = $1
		ORDER BY seq ASC
	`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.EntryEvent
	for rows.Next() {
		var event store.EntryEvent
		if err := rows.Scan(&event.EntryID, &event.Seq, &event.Type, &event.Payload, &event.Actor, &event.CreatedAt, &event.PrevHash, &event.Hash); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func lockRunningEntry(ctx context.Context, tx pgx.Tx, userID string) (models.TimeEntry, bool, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM time_entries
		WHERE user_id = $1 AND stop_time IS NULL
		ORDER BY start_time DESC
		LIMIT 1
		FOR UPDATE
	`, userID)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.TimeEntry{}, false, nil
		}
		return models.TimeEntry{}, false, err
	}
	return entry, true, nil
}

func insertEntryEvent(ctx context.Context, tx pgx.Tx, entry models.TimeEntry, eventType, actor string, at time.Time) error {
	// timestamptz keeps microseconds; hash what the column will hold so
	// the chain still verifies after a round trip.
	at = at.Truncate(time.Microsecond)

	var seq int
	var prevHash string
	row := tx.QueryRow(ctx, `
		SELECT seq, hash
		FROM entry_events
		WHERE entry_id = $1
		ORDER BY seq DESC
		LIMIT 1
	`, entry.EntryID)
	if err := row.Scan(&seq, &prevHash); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		seq = 0
		prevHash = ""
	}
	seq++

	payload := store.EntryEventPayload(entry)
	hash := store.ComputeEntryEventHash(prevHash, entry.EntryID, eventType, payload, at, seq)
	_, err := tx.Exec(ctx, `
		INSERT INTO entry_events (entry_id, seq, type, payload, actor, created_at, prev_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.EntryID, seq, eventType, payload, actor, at, prevHash, hash)
	return err
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	s := value.String
	return &s
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
