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
	"golang.org/x/crypto/bcrypt"
)

const userColumns = `user_id, display_name, email, role, home_location, onboarding_status, active, created_at`

func scanUser(row rowScanner) (models.User, error) {
	var user models.User
	var locationNull sql.NullString
	err := row.Scan(&user.UserID, &user.DisplayName, &user.Email, &user.Role, &locationNull, &user.OnboardingStatus, &user.Active, &user.CreatedAt)
	if err != nil {
		return models.User{}, err
	}
	user.HomeLocation = nullStringPtr(locationNull)
	return user, nil
}

func (s *Store) Login(ctx context.Context, input store.LoginInput) (store.LoginResult, error) {
	var user models.User
	var locationNull sql.NullString
	var passwordHash string
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, display_name, email, role, home_location, onboarding_status, active, created_at, password_hash
		FROM users
		WHERE lower(email) = lower($1) AND active = TRUE
	`, input.Email)
	if err := row.Scan(&user.UserID, &user.DisplayName, &user.Email, &user.Role, &locationNull, &user.OnboardingStatus, &user.Active, &user.CreatedAt, &passwordHash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.LoginResult{}, store.ErrInvalidCredentials
		}
		return store.LoginResult{}, err
	}
	user.HomeLocation = nullStringPtr(locationNull)

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(input.Password)); err != nil {
		return store.LoginResult{}, store.ErrInvalidCredentials
	}

	session, err := s.createSession(ctx, user.UserID, user.Role)
	if err != nil {
		return store.LoginResult{}, err
	}
	return store.LoginResult{User: user, Session: session}, nil
}

func (s *Store) SSOLogin(ctx context.Context, provider, subject, email, displayName string) (store.LoginResult, error) {
	var user models.User
	row := s.pool.QueryRow(ctx, `
		SELECT u.user_id, u.display_name, u.email, u.role, u.home_location, u.onboarding_status, u.active, u.created_at
		FROM user_idp_mappings m
		JOIN users u ON u.user_id = m.user_id
		WHERE m.provider = $1 AND m.subject = $2 AND u.active = TRUE
	`, provider, subject)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return s.provisionSSOUser(ctx, provider, subject, email, displayName)
		}
		return store.LoginResult{}, err
	}

	session, err := s.createSession(ctx, user.UserID, user.Role)
	if err != nil {
		return store.LoginResult{}, err
	}
	return store.LoginResult{User: user, Session: session}, nil
}

// provisionSSOUser creates a Mitarbeiter on first identity-provider
// login, still at the start of onboarding.
func (s *Store) provisionSSOUser(ctx context.Context, provider, subject, email, displayName string) (store.LoginResult, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return store.LoginResult{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	user := models.User{
		UserID:           uuid.NewString(),
		DisplayName:      displayName,
		Email:            email,
		Role:             models.RoleMitarbeiter,
		OnboardingStatus: models.OnboardingPendingLocation,
		Active:           true,
		CreatedAt:        time.Now().UTC(),
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO users (user_id, display_name, email, role, onboarding_status, active, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, 'SSO', $6)
	`, user.UserID, user.DisplayName, user.Email, user.Role, user.OnboardingStatus, user.CreatedAt)
	if err != nil {
		return store.LoginResult{}, err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO user_idp_mappings (mapping_id, provider, subject, user_id)
		VALUES ($1, $2, $3, $4)
	`, uuid.NewString(), provider, subject, user.UserID)
	if err != nil {
		return store.LoginResult{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return store.LoginResult{}, err
	}

	session, err := s.createSession(ctx, user.UserID, user.Role)
	if err != nil {
		return store.LoginResult{}, err
	}
	return store.LoginResult{User: user, Session: session}, nil
}

func (s *Store) createSession(ctx context.Context, userID, role string) (models.Session, error) {
	session := models.Session{
		SessionID: uuid.NewString(),
		UserID:    userID,
		Role:      role,
		ExpiresAt: time.Now().UTC().Add(s.sessionTTL),
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (session_id, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, session.SessionID, session.UserID, session.ExpiresAt)
	if err != nil {
		return models.Session{}, err
	}
	return session, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (models.Session, models.User, error) {
	var session models.Session
	var user models.User
	var locationNull sql.NullString
	row := s.pool.QueryRow(ctx, `
		SELECT s.session_id, s.user_id, s.expires_at,
		       u.user_id, u.display_name, u.email, u.role, u.home_location, u.onboarding_status, u.active, u.created_at
		FROM sessions s
		JOIN users u ON u.user_id = s.user_id
		WHERE s.session_id = $1 AND s.expires_at > NOW() AND u.active = TRUE
	`, sessionID)
	err := row.Scan(&session.SessionID, &session.UserID, &session.ExpiresAt,
		&user.UserID, &user.DisplayName, &user.Email, &user.Role, &locationNull, &user.OnboardingStatus, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, models.User{}, store.ErrSessionNotFound
		}
		return models.Session{}, models.User{}, err
	}
	user.HomeLocation = nullStringPtr(locationNull)
	session.Role = user.Role
	return session, user, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (models.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = $1`, userID)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, store.ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE active = TRUE ORDER BY display_name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// CompleteOnboardingLocation stores the home location, seeds a default
// master data row, and advances onboarding to pending_masterdata.
func (s *Store) CompleteOnboardingLocation(ctx context.Context, userID, location string) (models.User, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.User{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	row := tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = $1 FOR UPDATE`, userID)
	var user models.User
	if user, err = scanUser(row); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrUserNotFound
		}
		return models.User{}, err
	}
	if user.OnboardingStatus != models.OnboardingPendingLocation {
		err = store.ErrInvalidState
		return models.User{}, err
	}

	next := store.NextOnboardingStatus(user.OnboardingStatus)
	_, err = tx.Exec(ctx, `
		UPDATE users
		SET home_location = $2, onboarding_status = $3
		WHERE user_id = $1
	`, userID, location, next)
	if err != nil {
		return models.User{}, err
	}

	_, err = upsertMasterDataTx(ctx, tx, store.UpsertMasterDataInput{
		UserID:      userID,
		WeeklyHours: 40,
		Workdays:    []string{"Mo", "Di", "Mi", "Do", "Fr"},
		UpdatedBy:   userID,
	}, time.Now().UTC())
	if err != nil {
		return models.User{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.User{}, err
	}

	user.HomeLocation = &location
	user.OnboardingStatus = next
	return user, nil
}
