package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"aze/timetrack-service/internal/models"
	"aze/timetrack-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const approvalColumns = `request_id, type, target, entry_id, target_user_id, original_data, new_data, reason, requested_by, status, decided_by, decided_at, created_at`

func scanApproval(row rowScanner) (models.ApprovalRequest, error) {
	var request models.ApprovalRequest
	var entryIDNull sql.NullString
	var targetUserNull sql.NullString
	var decidedByNull sql.NullString
	var decidedAtNull sql.NullTime
	err := row.Scan(&request.RequestID, &request.Type, &request.Target, &entryIDNull, &targetUserNull,
		&request.OriginalData, &request.NewData, &request.Reason, &request.RequestedBy,
		&request.Status, &decidedByNull, &decidedAtNull, &request.CreatedAt)
	if err != nil {
		return models.ApprovalRequest{}, err
	}
	request.EntryID = nullStringPtr(entryIDNull)
	request.TargetUserID = nullStringPtr(targetUserNull)
	request.DecidedBy = nullStringPtr(decidedByNull)
	request.DecidedAt = nullTimePtr(decidedAtNull)
	return request, nil
}

func (s *Store) SubmitApproval(ctx context.Context, input store.SubmitApprovalInput) (models.ApprovalRequest, error) {
	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.ApprovalRequest{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var original json.RawMessage
	switch input.Target {
	case models.TargetTimeEntry:
		if input.Type == models.ApprovalTypeCreate {
			if _, err = store.DecodeTimeEntryChange(input.NewData, true); err != nil {
				return models.ApprovalRequest{}, err
			}
		} else {
			if input.EntryID == "" {
				err = fmt.Errorf("%w: entry_id required for %s", store.ErrValidation, input.Type)
				return models.ApprovalRequest{}, err
			}
			if _, err = store.DecodeTimeEntryChange(input.NewData, false); err != nil {
				return models.ApprovalRequest{}, err
			}
			var entry models.TimeEntry
			row := tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM time_entries WHERE entry_id = $1`, input.EntryID)
			if entry, err = scanEntry(row); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					err = store.ErrEntryNotFound
				}
				return models.ApprovalRequest{}, err
			}
			if original, err = json.Marshal(entry); err != nil {
				return models.ApprovalRequest{}, err
			}
		}
	case models.TargetMasterData:
		if input.Type != models.ApprovalTypeEdit {
			err = fmt.Errorf("%w: master data supports edit requests only", store.ErrValidation)
			return models.ApprovalRequest{}, err
		}
		if input.TargetUserID == "" {
			err = fmt.Errorf("%w: target_user_id required for master data requests", store.ErrValidation)
			return models.ApprovalRequest{}, err
		}
		if _, err = store.DecodeMasterDataChange(input.NewData, input.TargetUserID); err != nil {
			return models.ApprovalRequest{}, err
		}
		var data models.MasterData
		data, err = getMasterDataTx(ctx, tx, input.TargetUserID)
		if err == nil {
			if original, err = json.Marshal(data); err != nil {
				return models.ApprovalRequest{}, err
			}
		} else if errors.Is(err, store.ErrMasterDataNotFound) {
			err = nil
		} else {
			return models.ApprovalRequest{}, err
		}
	default:
		err = fmt.Errorf("%w: unknown target %q", store.ErrValidation, input.Target)
		return models.ApprovalRequest{}, err
	}

	request := models.ApprovalRequest{
		RequestID:    uuid.NewString(),
		Type:         input.Type,
		Target:       input.Target,
		OriginalData: original,
		NewData:      input.NewData,
		Reason:       input.Reason,
		RequestedBy:  input.RequestedBy,
		Status:       models.ApprovalPending,
		CreatedAt:    createdAt,
	}
	if input.EntryID != "" {
		request.EntryID = &input.EntryID
	}
	if input.TargetUserID != "" {
		request.TargetUserID = &input.TargetUserID
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO approval_requests (request_id, type, target, entry_id, target_user_id, original_data, new_data, reason, requested_by, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, request.RequestID, request.Type, request.Target, nullIfEmpty(input.EntryID), nullIfEmpty(input.TargetUserID),
		original, input.NewData, input.Reason, input.RequestedBy, request.Status, createdAt)
	if err != nil {
		return models.ApprovalRequest{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.ApprovalRequest{}, err
	}
	return request, nil
}

func (s *Store) DecideApproval(ctx context.Context, input store.DecideApprovalInput) (models.ApprovalRequest, error) {
	decidedAt := input.DecidedAt
	if decidedAt.IsZero() {
		decidedAt = time.Now().UTC()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.ApprovalRequest{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var role string
	row := tx.QueryRow(ctx, `SELECT role FROM users WHERE user_id = $1 AND active = TRUE`, input.DeciderID)
	if err = row.Scan(&role); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrUserNotFound
		}
		return models.ApprovalRequest{}, err
	}
	if !store.CanDecide(role) {
		err = store.ErrRoleForbidden
		return models.ApprovalRequest{}, err
	}

	var request models.ApprovalRequest
	row = tx.QueryRow(ctx, `SELECT `+approvalColumns+` FROM approval_requests WHERE request_id = $1 FOR UPDATE`, input.RequestID)
	if request, err = scanApproval(row); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrRequestNotFound
		}
		return models.ApprovalRequest{}, err
	}

	action := "reject"
	status := models.ApprovalRejected
	if input.Decision == models.ApprovalApproved {
		action = "approve"
		status = models.ApprovalApproved
	}
	if !store.ValidTransition(action, request.Status) {
		err = store.ErrInvalidState
		return models.ApprovalRequest{}, err
	}

	if status == models.ApprovalApproved {
		if err = applyApproval(ctx, tx, request, input.DeciderID, decidedAt); err != nil {
			return models.ApprovalRequest{}, err
		}
	}

	// Guard again on status so the apply and the flip share one fate.
	tag, err := tx.Exec(ctx, `
		UPDATE approval_requests
		SET status = $2, decided_by = $3, decided_at = $4
		WHERE request_id = $1 AND status = $5
	`, request.RequestID, status, input.DeciderID, decidedAt, models.ApprovalPending)
	if err != nil {
		return models.ApprovalRequest{}, err
	}
	if tag.RowsAffected() == 0 {
		err = store.ErrInvalidState
		return models.ApprovalRequest{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.ApprovalRequest{}, err
	}

	request.Status = status
	request.DecidedBy = &input.DeciderID
	request.DecidedAt = &decidedAt
	return request, nil
}

func applyApproval(ctx context.Context, tx pgx.Tx, request models.ApprovalRequest, actor string, at time.Time) error {
	switch request.Target {
	case models.TargetTimeEntry:
		return applyTimeEntryChange(ctx, tx, request, actor, at)
	case models.TargetMasterData:
		return applyMasterDataChange(ctx, tx, request, actor, at)
	default:
		return fmt.Errorf("%w: unknown target %q", store.ErrValidation, request.Target)
	}
}

func applyTimeEntryChange(ctx context.Context, tx pgx.Tx, request models.ApprovalRequest, actor string, at time.Time) error {
	switch request.Type {
	case models.ApprovalTypeCreate:
		change, err := store.DecodeTimeEntryChange(request.NewData, true)
		if err != nil {
			return err
		}
		entry := models.TimeEntry{
			EntryID:   uuid.NewString(),
			UserID:    change.UserID,
			EntryDate: change.EntryDate,
			StartTime: *change.StartTime,
			StopTime:  change.StopTime,
			Location:  change.Location,
			CreatedBy: actor,
			CreatedAt: at,
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO time_entries (entry_id, user_id, entry_date, start_time, stop_time, location, created_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, entry.EntryID, entry.UserID, entry.EntryDate, entry.StartTime, timePtrArg(entry.StopTime), entry.Location, actor, at)
		if err != nil {
			return err
		}
		return insertEntryEvent(ctx, tx, entry, store.EventCorrectionApply, actor, at)

	case models.ApprovalTypeEdit:
		if request.EntryID == nil {
			return fmt.Errorf("%w: edit request without entry_id", store.ErrValidation)
		}
		change, err := store.DecodeTimeEntryChange(request.NewData, false)
		if err != nil {
			return err
		}
		row := tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM time_entries WHERE entry_id = $1 FOR UPDATE`, *request.EntryID)
		entry, err := scanEntry(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return store.ErrEntryNotFound
			}
			return err
		}
		if change.EntryDate != "" {
			entry.EntryDate = change.EntryDate
		}
		if change.StartTime != nil {
			entry.StartTime = *change.StartTime
		}
		if change.StopTime != nil {
			entry.StopTime = change.StopTime
		}
		if change.Location != "" {
			entry.Location = change.Location
		}
		if entry.StopTime != nil && !entry.StopTime.After(entry.StartTime) {
			return fmt.Errorf("%w: stop_time must be after start_time", store.ErrValidation)
		}
		_, err = tx.Exec(ctx, `
			UPDATE time_entries
			SET entry_date = $2, start_time = $3, stop_time = $4, location = $5, updated_by = $6, updated_at = $7
			WHERE entry_id = $1
		`, entry.EntryID, entry.EntryDate, entry.StartTime, timePtrArg(entry.StopTime), entry.Location, actor, at)
		if err != nil {
			return err
		}
		entry.UpdatedBy = &actor
		entry.UpdatedAt = &at
		return insertEntryEvent(ctx, tx, entry, store.EventCorrectionApply, actor, at)

	case models.ApprovalTypeDelete:
		if request.EntryID == nil {
			return fmt.Errorf("%w: delete request without entry_id", store.ErrValidation)
		}
		row := tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM time_entries WHERE entry_id = $1 FOR UPDATE`, *request.EntryID)
		entry, err := scanEntry(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return store.ErrEntryNotFound
			}
			return err
		}
		if err := insertEntryEvent(ctx, tx, entry, store.EventDeleted, actor, at); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM time_entries WHERE entry_id = $1`, entry.EntryID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return store.ErrEntryNotFound
		}
		return nil

	default:
		return fmt.Errorf("%w: unknown type %q", store.ErrValidation, request.Type)
	}
}

func applyMasterDataChange(ctx context.Context, tx pgx.Tx, request models.ApprovalRequest, actor string, at time.Time) error {
	if request.TargetUserID == nil {
		return fmt.Errorf("%w: master data request without target_user_id", store.ErrValidation)
	}
	input, err := store.DecodeMasterDataChange(request.NewData, *request.TargetUserID)
	if err != nil {
		return err
	}
	input.UpdatedBy = actor
	_, err = upsertMasterDataTx(ctx, tx, input, at)
	return err
}

func (s *Store) ListApprovals(ctx context.Context, status string) ([]models.ApprovalRequest, error) {
	query := `SELECT ` + approvalColumns + ` FROM approval_requests`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []models.ApprovalRequest
	for rows.Next() {
		request, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return requests, nil
}

func timePtrArg(value *time.Time) any {
	if value == nil {
		return nil
	}
	return *value
}
