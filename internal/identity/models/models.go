package models

// Profile is the identity record confirmed by the provider.
type Profile struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	DateOfBirth string `json:"dateOfBirth"`
	Phone       string `json:"phone"`
	Photo       string `json:"photo"`
}

// Outcome is the single internal shape for every verification answer.
// Profile is set if and only if Success is true.
type Outcome struct {
	Success      bool     `json:"success"`
	Message      string   `json:"message"`
	Profile      *Profile `json:"data,omitempty"`
	ProviderCode string   `json:"code,omitempty"`
}

const (
	MessageVerified         = "Verification Successful"
	MessageRejectedFallback = "Verification failed. BVN not found or details mismatch."
	MessageUnreachable      = "Unable to connect to verification server. Please try again."
	DefaultFirstName        = "Verified User"
)
