package store

import "errors"

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrEntryNotFound        = errors.New("time entry not found")
	ErrMasterDataNotFound   = errors.New("master data not found")
	ErrRequestNotFound      = errors.New("approval request not found")
	ErrNoRunningTimer       = errors.New("no running timer")
	ErrTimerRunning         = errors.New("timer already running")
	ErrTimerStopped         = errors.New("timer already stopped")
	ErrInvalidState         = errors.New("invalid request state")
	ErrRoleForbidden        = errors.New("role not allowed")
	ErrValidation           = errors.New("validation failed")
	ErrOnboardingIncomplete = errors.New("onboarding incomplete")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrSessionNotFound      = errors.New("session not found")
)
