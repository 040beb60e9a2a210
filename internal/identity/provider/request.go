package provider

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"bondgateway/internal/identity/signer"
	"bondgateway/pkg/domain"
)

const (
	SourceSDK        = "rest_api"
	SourceSDKVersion = "1.0.0"
	CountryNigeria   = "NG"
	IDTypeBVN        = "BVN"
	// JobTypeEnhancedKYC requests a registry lookup without document or selfie.
	JobTypeEnhancedKYC = 5
)

// PartnerParams correlate a job on the provider side. Values are generated
// per request and never reused.
type PartnerParams struct {
	JobID   string `json:"job_id"`
	UserID  string `json:"user_id"`
	JobType int    `json:"job_type"`
}

// SignedRequest is the exact body posted to /id_verification.
type SignedRequest struct {
	SourceSDK        string        `json:"source_sdk"`
	SourceSDKVersion string        `json:"source_sdk_version"`
	PartnerID        string        `json:"partner_id"`
	Timestamp        string        `json:"timestamp"`
	Signature        string        `json:"signature"`
	Country          string        `json:"country"`
	IDType           string        `json:"id_type"`
	IDNumber         string        `json:"id_number"`
	PartnerParams    PartnerParams `json:"partner_params"`
}

// NewSignedRequest assembles a BVN lookup with fresh correlation IDs.
func NewSignedRequest(partnerID string, sig signer.Signature, bvn domain.BVN, now time.Time) SignedRequest {
	ms := now.UnixMilli()
	return SignedRequest{
		SourceSDK:        SourceSDK,
		SourceSDKVersion: SourceSDKVersion,
		PartnerID:        partnerID,
		Timestamp:        sig.Timestamp,
		Signature:        sig.Signature,
		Country:          CountryNigeria,
		IDType:           IDTypeBVN,
		IDNumber:         bvn.String(),
		PartnerParams: PartnerParams{
			JobID:   fmt.Sprintf("job_%d_%s", ms, randomSuffix()),
			UserID:  fmt.Sprintf("user_%d_%s", ms, randomSuffix()),
			JobType: JobTypeEnhancedKYC,
		},
	}
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
}
