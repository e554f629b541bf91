package store

import (
	"fmt"

	"aze/timetrack-service/internal/models"
)

var weekdaySet = func() map[string]bool {
	set := make(map[string]bool, len(models.Weekdays))
	for _, day := range models.Weekdays {
		set[day] = true
	}
	return set
}()

// ValidateMasterData checks an upsert before it reaches the database.
// Errors wrap ErrValidation and name the offending field.
func ValidateMasterData(input UpsertMasterDataInput) error {
	if input.WeeklyHours <= 0 {
		return fmt.Errorf("%w: weekly_hours must be greater than zero", ErrValidation)
	}
	if input.WeeklyHours > 80 {
		return fmt.Errorf("%w: weekly_hours must not exceed 80", ErrValidation)
	}
	if len(input.Workdays) == 0 {
		return fmt.Errorf("%w: workdays must not be empty", ErrValidation)
	}
	seen := make(map[string]bool, len(input.Workdays))
	for _, day := range input.Workdays {
		if !weekdaySet[day] {
			return fmt.Errorf("%w: unknown workday %q", ErrValidation, day)
		}
		if seen[day] {
			return fmt.Errorf("%w: duplicate workday %q", ErrValidation, day)
		}
		seen[day] = true
	}
	for day, hours := range input.DailyHours {
		if !seen[day] {
			return fmt.Errorf("%w: daily_hours key %q is not a configured workday", ErrValidation, day)
		}
		if hours <= 0 {
			return fmt.Errorf("%w: daily_hours for %q must be greater than zero", ErrValidation, day)
		}
	}
	return nil
}
