package store

import "aze/timetrack-service/internal/models"

var transitionMap = map[string][]string{
	"approve": {models.ApprovalPending},
	"reject":  {models.ApprovalPending},
}

// ValidTransition reports whether an approval request in fromStatus may
// take the given action. Approved and rejected are terminal.
func ValidTransition(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}

var approverRoles = map[string]bool{
	models.RoleStandortleiter: true,
	models.RoleBereichsleiter: true,
	models.RoleAdmin:          true,
}

// CanDecide reports whether the role carries approval authority.
func CanDecide(role string) bool {
	return approverRoles[role]
}

var onboardingNext = map[string]string{
	models.OnboardingPendingLocation:   models.OnboardingPendingMasterData,
	models.OnboardingPendingMasterData: models.OnboardingComplete,
}

// NextOnboardingStatus returns the successor state, or "" when the
// current state is terminal or unknown.
func NextOnboardingStatus(current string) string {
	return onboardingNext[current]
}
