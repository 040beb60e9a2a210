// Package sandbox is a local stand-in for the identity provider. It speaks
// the provider's wire format, checks request signatures, and answers from a
// fixed set of test BVNs.
package sandbox

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"bondgateway/internal/identity/provider"
	"bondgateway/internal/identity/signer"
	"bondgateway/pkg/domain"
)

const (
	// VerifiedBVN resolves to a full profile.
	VerifiedBVN = "00000000000"
	// MismatchBVN is rejected as unknown.
	MismatchBVN = "00000000001"
)

const (
	CodeVerified     = "1012"
	CodeMismatch     = "201"
	CodeInvalidTest  = "400"
	CodeUnauthorized = "2205"
)

type Config struct {
	// PartnerID and APIKey, when set, must match the incoming request.
	PartnerID string
	APIKey    string
	// MaxSkew rejects timestamps further than this from the server clock. Zero disables the check.
	MaxSkew time.Duration
	// Latency is added before every verification answer.
	Latency time.Duration
	Logger  *slog.Logger
}

type Server struct {
	cfg Config
	now func() time.Time
}

func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{cfg: cfg, now: time.Now}
}

// Handler serves /v1/id_verification (and the unprefixed path) plus /health.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Post("/id_verification", s.handleVerify)
	r.Post("/v1/id_verification", s.handleVerify)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "identity-sandbox"})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req provider.SignedRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, provider.RawResponse{ResultCode: "2213", ResultText: "Malformed request body"})
		return
	}

	if !s.authorized(req) {
		s.cfg.Logger.WarnContext(r.Context(), "sandbox rejected request signature",
			"partner_id", req.PartnerID,
			"job_id", req.PartnerParams.JobID,
		)
		writeJSON(w, http.StatusUnauthorized, provider.RawResponse{ResultCode: CodeUnauthorized, ResultText: "Invalid signature"})
		return
	}

	if s.cfg.Latency > 0 {
		select {
		case <-time.After(s.cfg.Latency):
		case <-r.Context().Done():
			return
		}
	}

	resp := Lookup(req.IDNumber)
	s.cfg.Logger.InfoContext(r.Context(), "sandbox verification",
		"bvn", domain.BVN(req.IDNumber).Redacted(),
		"result_code", resp.ResultCode.String(),
		"job_id", req.PartnerParams.JobID,
	)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) authorized(req provider.SignedRequest) bool {
	if s.cfg.PartnerID != "" && req.PartnerID != s.cfg.PartnerID {
		return false
	}
	if s.cfg.APIKey == "" {
		return true
	}
	if !signer.Verify(s.cfg.APIKey, req.Timestamp, req.Signature) {
		return false
	}
	if s.cfg.MaxSkew > 0 {
		ts, err := time.Parse(signer.TimestampLayout, req.Timestamp)
		if err != nil {
			return false
		}
		skew := s.now().Sub(ts)
		if skew < -s.cfg.MaxSkew || skew > s.cfg.MaxSkew {
			return false
		}
	}
	return true
}

// Lookup returns the fixture answer for a BVN.
func Lookup(bvn string) provider.RawResponse {
	switch bvn {
	case VerifiedBVN:
		return provider.RawResponse{
			ResultCode: CodeVerified,
			ResultText: "ID Number Validated",
			SmileJobID: "0000000001",
			FullData: map[string]any{
				"FirstName":        "Emmanuel",
				"LastName":         "Okonkwo",
				"MiddleName":       "Chukwuma",
				"DateOfBirth":      "1992-05-14",
				"PhoneNumber":      "08012345678",
				"Gender":           "Male",
				"EnrollmentBank":   "033",
				"EnrollmentBranch": "Lagos - Marina",
				"Photo":            "https://api.dicebear.com/9.x/avataaars/svg?seed=Emmanuel",
			},
		}
	case MismatchBVN:
		return provider.RawResponse{ResultCode: CodeMismatch, ResultText: "BVN does not exist or details mismatch."}
	default:
		return provider.RawResponse{ResultCode: CodeInvalidTest, ResultText: "Invalid Test BVN. Use 00000000000 for success."}
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
