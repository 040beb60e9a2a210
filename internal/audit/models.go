package audit

import "time"

// Event records a verification or account action. Subject is the onboarding
// session ID or account ID; BVNs only ever appear redacted.
type Event struct {
	Timestamp time.Time
	Subject   string
	Action    Action
	Decision  string
	Reason    string
	RequestID string
}

type Action string

const (
	ActionVerificationAttempted Action = "bvn_verification_attempted"
	ActionVerificationSucceeded Action = "bvn_verification_succeeded"
	ActionVerificationFailed    Action = "bvn_verification_failed"
	ActionOnboardingAbandoned   Action = "onboarding_abandoned"
	ActionAccountCreated        Action = "account_created"
	ActionAccountLoggedIn       Action = "account_logged_in"
	ActionAccountLoggedOut      Action = "account_logged_out"
)
