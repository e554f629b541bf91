package models

import (
	"encoding/json"
	"time"
)

const (
	RoleMitarbeiter    = "Mitarbeiter"
	RoleStandortleiter = "Standortleiter"
	RoleBereichsleiter = "Bereichsleiter"
	RoleAdmin          = "Admin"
)

const (
	OnboardingPendingLocation   = "pending_location"
	OnboardingPendingMasterData = "pending_masterdata"
	OnboardingComplete          = "complete"
)

const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

const (
	ApprovalTypeCreate = "create"
	ApprovalTypeEdit   = "edit"
	ApprovalTypeDelete = "delete"
)

const (
	TargetTimeEntry  = "time_entry"
	TargetMasterData = "master_data"
)

type User struct {
	UserID           string    `json:"user_id"`
	DisplayName      string    `json:"display_name"`
	Email            string    `json:"email"`
	Role             string    `json:"role"`
	HomeLocation     *string   `json:"home_location,omitempty"`
	OnboardingStatus string    `json:"onboarding_status"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"created_at"`
}

type Session struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TimeEntry is a single start/stop interval. StopTime nil means the
// timer is still running.
type TimeEntry struct {
	EntryID   string     `json:"entry_id"`
	UserID    string     `json:"user_id"`
	EntryDate string     `json:"entry_date"`
	StartTime time.Time  `json:"start_time"`
	StopTime  *time.Time `json:"stop_time,omitempty"`
	Location  string     `json:"location"`
	CreatedBy string     `json:"created_by"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedBy *string    `json:"updated_by,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Running reports whether the entry has no stop time yet.
func (e TimeEntry) Running() bool {
	return e.StopTime == nil
}

// DurationSeconds is stop-start for stopped entries, zero while running.
func (e TimeEntry) DurationSeconds() int64 {
	if e.StopTime == nil {
		return 0
	}
	return int64(e.StopTime.Sub(e.StartTime) / time.Second)
}

type MasterData struct {
	UserID           string             `json:"user_id"`
	WeeklyHours      float64            `json:"weekly_hours"`
	Workdays         []string           `json:"workdays"`
	FlexibleWorkdays bool               `json:"flexible_workdays"`
	CanWorkFromHome  bool               `json:"can_work_from_home"`
	DailyHours       map[string]float64 `json:"daily_hours,omitempty"`
	UpdatedBy        string             `json:"updated_by,omitempty"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

type ApprovalRequest struct {
	RequestID    string          `json:"request_id"`
	Type         string          `json:"type"`
	Target       string          `json:"target"`
	EntryID      *string         `json:"entry_id,omitempty"`
	TargetUserID *string         `json:"target_user_id,omitempty"`
	OriginalData json.RawMessage `json:"original_data,omitempty"`
	NewData      json.RawMessage `json:"new_data,omitempty"`
	Reason       string          `json:"reason,omitempty"`
	RequestedBy  string          `json:"requested_by"`
	Status       string          `json:"status"`
	DecidedBy    *string         `json:"decided_by,omitempty"`
	DecidedAt    *time.Time      `json:"decided_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Weekdays in storage order, the keys allowed in Workdays and DailyHours.
var Weekdays = []string{"Mo", "Di", "Mi", "Do", "Fr", "Sa", "So"}
