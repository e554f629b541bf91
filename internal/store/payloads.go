package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimeEntryChange is the proposed payload of a time-entry approval
// request. Pointer fields are optional for edits; create requires
// user, date, start, and location.
type TimeEntryChange struct {
	UserID    string     `json:"user_id,omitempty"`
	EntryDate string     `json:"entry_date,omitempty"`
	StartTime *time.Time `json:"start_time,omitempty"`
	StopTime  *time.Time `json:"stop_time,omitempty"`
	Location  string     `json:"location,omitempty"`
}

// MasterDataChange is the proposed payload of a master-data approval request.
type MasterDataChange struct {
	WeeklyHours      float64            `json:"weekly_hours"`
	Workdays         []string           `json:"workdays"`
	FlexibleWorkdays bool               `json:"flexible_workdays"`
	CanWorkFromHome  bool               `json:"can_work_from_home"`
	DailyHours       map[string]float64 `json:"daily_hours,omitempty"`
}

// DecodeTimeEntryChange parses and sanity-checks a time-entry payload.
func DecodeTimeEntryChange(raw json.RawMessage, forCreate bool) (TimeEntryChange, error) {
	var change TimeEntryChange
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &change); err != nil {
			return TimeEntryChange{}, fmt.Errorf("%w: new_data is not a valid time entry payload", ErrValidation)
		}
	}
	if forCreate {
		if change.UserID == "" || change.EntryDate == "" || change.StartTime == nil || change.Location == "" {
			return TimeEntryChange{}, fmt.Errorf("%w: create payload requires user_id, entry_date, start_time, location", ErrValidation)
		}
	}
	if change.StartTime != nil && change.StopTime != nil && !change.StopTime.After(*change.StartTime) {
		return TimeEntryChange{}, fmt.Errorf("%w: stop_time must be after start_time", ErrValidation)
	}
	return change, nil
}

// DecodeMasterDataChange parses a master-data payload and runs the
// regular upsert validation against it.
func DecodeMasterDataChange(raw json.RawMessage, userID string) (UpsertMasterDataInput, error) {
	var change MasterDataChange
	if err := json.Unmarshal(raw, &change); err != nil {
		return UpsertMasterDataInput{}, fmt.Errorf("%w: new_data is not a valid master data payload", ErrValidation)
	}
	input := UpsertMasterDataInput{
		UserID:           userID,
		WeeklyHours:      change.WeeklyHours,
		Workdays:         change.Workdays,
		FlexibleWorkdays: change.FlexibleWorkdays,
		CanWorkFromHome:  change.CanWorkFromHome,
		DailyHours:       change.DailyHours,
	}
	if err := ValidateMasterData(input); err != nil {
		return UpsertMasterDataInput{}, err
	}
	return input, nil
}
