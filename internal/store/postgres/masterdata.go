package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"aze/timetrack-service/internal/models"
	"aze/timetrack-service/internal/store"

	"github.com/jackc/pgx/v5"
)

func scanMasterData(row rowScanner) (models.MasterData, error) {
	var data models.MasterData
	var workdaysRaw []byte
	var dailyRaw []byte
	err := row.Scan(&data.UserID, &data.WeeklyHours, &workdaysRaw, &data.FlexibleWorkdays, &data.CanWorkFromHome, &dailyRaw, &data.UpdatedBy, &data.UpdatedAt)
	if err != nil {
		return models.MasterData{}, err
	}
	if len(workdaysRaw) > 0 {
		if err := json.Unmarshal(workdaysRaw, &data.Workdays); err != nil {
			return models.MasterData{}, err
		}
	}
	if len(dailyRaw) > 0 {
		if err := json.Unmarshal(dailyRaw, &data.DailyHours); err != nil {
			return models.MasterData{}, err
		}
	}
	return data, nil
}

const masterDataColumns = `user_id, weekly_hours, workdays, flexible_workdays, can_work_from_home, daily_hours, updated_by, updated_at`

func (s *Store) GetMasterData(ctx context.Context, userID string) (models.MasterData, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+masterDataColumns+` FROM master_data WHERE user_id = $1`, userID)
	data, err := scanMasterData(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.MasterData{}, store.ErrMasterDataNotFound
		}
		return models.MasterData{}, err
	}
	return data, nil
}

func getMasterDataTx(ctx context.Context, tx pgx.Tx, userID string) (models.MasterData, error) {
	row := tx.QueryRow(ctx, `SELECT `+masterDataColumns+` FROM master_data WHERE user_id = $1`, userID)
	data, err := scanMasterData(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.MasterData{}, store.ErrMasterDataNotFound
		}
		return models.MasterData{}, err
	}
	return data, nil
}

func (s *Store) UpsertMasterData(ctx context.Context, input store.UpsertMasterDataInput) (models.MasterData, error) {
	if err := store.ValidateMasterData(input); err != nil {
		return models.MasterData{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.MasterData{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var exists bool
	row := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE user_id = $1 AND active = TRUE)`, input.UserID)
	if err = row.Scan(&exists); err != nil {
		return models.MasterData{}, err
	}
	if !exists {
		err = store.ErrUserNotFound
		return models.MasterData{}, err
	}

	now := time.Now().UTC()
	var data models.MasterData
	data, err = upsertMasterDataTx(ctx, tx, input, now)
	if err != nil {
		return models.MasterData{}, err
	}

	// A first master data write finishes onboarding.
	_, err = tx.Exec(ctx, `
		UPDATE users
		SET onboarding_status = $2
		WHERE user_id = $1 AND onboarding_status = $3
	`, input.UserID, models.OnboardingComplete, models.OnboardingPendingMasterData)
	if err != nil {
		return models.MasterData{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.MasterData{}, err
	}
	return data, nil
}

func upsertMasterDataTx(ctx context.Context, tx pgx.Tx, input store.UpsertMasterDataInput, at time.Time) (models.MasterData, error) {
	workdaysRaw, err := json.Marshal(input.Workdays)
	if err != nil {
		return models.MasterData{}, err
	}
	dailyRaw, err := json.Marshal(input.DailyHours)
	if err != nil {
		return models.MasterData{}, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO master_data (user_id, weekly_hours, workdays, flexible_workdays, can_work_from_home, daily_hours, updated_by, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO UPDATE
		SET weekly_hours = EXCLUDED.weekly_hours,
			workdays = EXCLUDED.workdays,
			flexible_workdays = EXCLUDED.flexible_workdays,
			can_work_from_home = EXCLUDED.can_work_from_home,
			daily_hours = EXCLUDED.daily_hours,
			updated_by = EXCLUDED.updated_by,
			updated_at = EXCLUDED.updated_at
	`, input.UserID, input.WeeklyHours, workdaysRaw, input.FlexibleWorkdays, input.CanWorkFromHome, dailyRaw, input.UpdatedBy, at)
	if err != nil {
		return models.MasterData{}, err
	}

	return models.MasterData{
		UserID:           input.UserID,
		WeeklyHours:      input.WeeklyHours,
		Workdays:         input.Workdays,
		FlexibleWorkdays: input.FlexibleWorkdays,
		CanWorkFromHome:  input.CanWorkFromHome,
		DailyHours:       input.DailyHours,
		UpdatedBy:        input.UpdatedBy,
		UpdatedAt:        at,
	}, nil
}
