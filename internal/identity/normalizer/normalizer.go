// Package normalizer maps heterogeneous provider answers onto models.Outcome.
package normalizer

import (
	"bondgateway/internal/identity/models"
	"bondgateway/internal/identity/provider"
)

// SuccessCode is the only result code that counts as a verified identity.
const SuccessCode = "1012"

// Key precedence per profile field. The provider returns PascalCase in
// production and lowercase variants in some sandbox and legacy payloads.
var (
	firstNameKeys = []string{"FirstName", "firstname"}
	lastNameKeys  = []string{"LastName", "surname", "lastname"}
	dobKeys       = []string{"DateOfBirth", "dob"}
	phoneKeys     = []string{"PhoneNumber", "phone"}
	photoKeys     = []string{"Photo", "photo"}
)

// Normalize is pure: the same raw response always yields the same outcome.
// A missing first name becomes "Verified User"; other missing fields become "".
func Normalize(raw *provider.RawResponse) models.Outcome {
	if raw == nil {
		return models.Outcome{Message: models.MessageRejectedFallback}
	}

	code := raw.ResultCode.String()
	if code != SuccessCode {
		msg := raw.ResultText
		if msg == "" {
			msg = models.MessageRejectedFallback
		}
		return models.Outcome{Message: msg, ProviderCode: code}
	}

	first := raw.FullDataString(firstNameKeys...)
	if first == "" {
		first = models.DefaultFirstName
	}
	return models.Outcome{
		Success: true,
		Message: models.MessageVerified,
		Profile: &models.Profile{
			FirstName:   first,
			LastName:    raw.FullDataString(lastNameKeys...),
			DateOfBirth: raw.FullDataString(dobKeys...),
			Phone:       raw.FullDataString(phoneKeys...),
			Photo:       raw.FullDataString(photoKeys...),
		},
		ProviderCode: code,
	}
}
