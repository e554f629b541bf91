package store

import (
	"context"
	"encoding/json"
	"time"

	"aze/timetrack-service/internal/models"
)

type StartTimerInput struct {
	UserID    string
	Location  string
	EntryDate string
	StartedAt time.Time
	// AutoStop closes a still-running entry instead of rejecting the start.
	AutoStop bool
}

type StopTimerInput struct {
	UserID    string
	StoppedAt time.Time
}

type ListEntriesInput struct {
	UserID string
	From   string
	To     string
}

type SubmitApprovalInput struct {
	Type         string
	Target       string
	EntryID      string
	TargetUserID string
	NewData      json.RawMessage
	Reason       string
	RequestedBy  string
	CreatedAt    time.Time
}

type DecideApprovalInput struct {
	RequestID string
	DeciderID string
	Decision  string
	DecidedAt time.Time
}

type UpsertMasterDataInput struct {
	UserID           string
	WeeklyHours      float64
	Workdays         []string
	FlexibleWorkdays bool
	CanWorkFromHome  bool
	DailyHours       map[string]float64
	UpdatedBy        string
}

type LoginInput struct {
	Email    string
	Password string
}

type LoginResult struct {
	User    models.User
	Session models.Session
}

type Store interface {
	Login(ctx context.Context, input LoginInput) (LoginResult, error)
	SSOLogin(ctx context.Context, provider, subject, email, displayName string) (LoginResult, error)
	GetSession(ctx context.Context, sessionID string) (models.Session, models.User, error)

	StartTimer(ctx context.Context, input StartTimerInput) (models.TimeEntry, error)
	StopTimer(ctx context.Context, input StopTimerInput) (models.TimeEntry, error)
	GetRunningEntry(ctx context.Context, userID string) (models.TimeEntry, bool, error)
	ListTimeEntries(ctx context.Context, input ListEntriesInput) ([]models.TimeEntry, error)
	ListEntryEvents(ctx context.Context, entryID string) ([]EntryEvent, error)

	SubmitApproval(ctx context.Context, input SubmitApprovalInput) (models.ApprovalRequest, error)
	DecideApproval(ctx context.Context, input DecideApprovalInput) (models.ApprovalRequest, error)
	ListApprovals(ctx context.Context, status string) ([]models.ApprovalRequest, error)

	GetMasterData(ctx context.Context, userID string) (models.MasterData, error)
	UpsertMasterData(ctx context.Context, input UpsertMasterDataInput) (models.MasterData, error)

	CompleteOnboardingLocation(ctx context.Context, userID, location string) (models.User, error)
	GetUser(ctx context.Context, userID string) (models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
}
