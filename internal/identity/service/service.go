// Package service is the verification proxy: it validates a BVN claim, signs
// and submits it to the identity provider and returns a normalized outcome.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"bondgateway/internal/identity/metrics"
	"bondgateway/internal/identity/models"
	"bondgateway/internal/identity/normalizer"
	"bondgateway/internal/identity/provider"
	"bondgateway/internal/identity/signer"
	"bondgateway/internal/identity/tracer"
	"bondgateway/pkg/domain"
	dErrors "bondgateway/pkg/domain-errors"
	"bondgateway/pkg/requestcontext"
)

// ConfigurationErrorMessage is returned when provider credentials are absent.
const ConfigurationErrorMessage = "Server configuration error"

// Submitter sends one signed request to the provider.
type Submitter interface {
	Submit(ctx context.Context, req provider.SignedRequest) (*provider.RawResponse, error)
}

type Signer interface {
	Sign(secret string) (signer.Signature, error)
}

// Credentials identify this partner to the provider. They are read-only after startup.
type Credentials struct {
	PartnerID string
	APIKey    string
}

type Service struct {
	client  Submitter
	signer  Signer
	creds   Credentials
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  tracer.Tracer
	now     func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

func WithSigner(sg Signer) Option {
	return func(s *Service) {
		if sg != nil {
			s.signer = sg
		}
	}
}

// WithClock sets the clock used for request correlation IDs.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(client Submitter, creds Credentials, opts ...Option) *Service {
	s := &Service{
		client: client,
		signer: signer.New(),
		creds:  creds,
		logger: slog.Default(),
		tracer: tracer.NewNoop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Verify runs one verification attempt.
//
// A malformed claim returns a validation error and missing credentials a
// configuration error; neither touches the network. Every other path returns
// an outcome: provider rejections and transport failures are unsuccessful
// outcomes, not errors.
func (s *Service) Verify(ctx context.Context, claim string) (outcome *models.Outcome, err error) {
	bvn, err := domain.ParseBVN(claim)
	if err != nil {
		s.recordOutcome(metrics.OutcomeInvalid)
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, tracer.SpanVerify, tracer.String(tracer.AttrBVNSuffix, bvn.Suffix()))
	defer func() { span.End(err) }()

	if s.creds.PartnerID == "" || s.creds.APIKey == "" {
		s.logger.ErrorContext(ctx, "identity provider credentials missing",
			"partner_id_set", s.creds.PartnerID != "",
			"api_key_set", s.creds.APIKey != "",
			"request_id", requestcontext.RequestID(ctx),
		)
		s.recordOutcome(metrics.OutcomeMisconfigured)
		return nil, dErrors.New(dErrors.CodeConfiguration, ConfigurationErrorMessage)
	}

	sig, err := s.signer.Sign(s.creds.APIKey)
	if err != nil {
		s.recordOutcome(metrics.OutcomeMisconfigured)
		if errors.Is(err, signer.ErrMissingSecret) {
			return nil, dErrors.Wrap(err, dErrors.CodeConfiguration, ConfigurationErrorMessage)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign request")
	}

	req := provider.NewSignedRequest(s.creds.PartnerID, sig, bvn, s.now())

	start := time.Now()
	raw, err := s.client.Submit(ctx, req)
	if s.metrics != nil {
		s.metrics.ObserveProviderLatency(time.Since(start).Seconds())
	}
	if err != nil {
		return s.handleSubmitError(ctx, span, bvn, req, err)
	}

	s.logger.InfoContext(ctx, "identity provider response",
		"bvn", bvn.Redacted(),
		"job_id", req.PartnerParams.JobID,
		"http_status", raw.StatusCode,
		"result_code", raw.ResultCode.String(),
		"result_text", raw.ResultText,
		"smile_job_id", raw.SmileJobID,
		"response", redactedBody(raw, bvn),
		"request_id", requestcontext.RequestID(ctx),
	)

	normalized := normalizer.Normalize(raw)
	span.SetAttributes(
		tracer.String(tracer.AttrResultCode, normalized.ProviderCode),
		tracer.Bool(tracer.AttrSuccess, normalized.Success),
		tracer.Int64(tracer.AttrHTTPStatus, int64(raw.StatusCode)),
	)
	if s.metrics != nil {
		s.metrics.RecordProviderCode(normalized.ProviderCode)
	}
	if normalized.Success {
		s.recordOutcome(metrics.OutcomeVerified)
	} else {
		s.recordOutcome(metrics.OutcomeRejected)
	}
	return &normalized, nil
}

func (s *Service) handleSubmitError(ctx context.Context, span tracer.Span, bvn domain.BVN, req provider.SignedRequest, err error) (*models.Outcome, error) {
	if !provider.IsTransportError(err) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "verification failed")
	}

	category := provider.GetCategory(err)
	span.SetAttributes(tracer.String(tracer.AttrErrorCategory, string(category)))
	s.logger.ErrorContext(ctx, "identity provider unreachable",
		"error", err,
		"category", category,
		"bvn", bvn.Redacted(),
		"job_id", req.PartnerParams.JobID,
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.metrics != nil {
		s.metrics.RecordTransportError(string(category))
	}
	s.recordOutcome(metrics.OutcomeUnreachable)

	return &models.Outcome{Message: models.MessageUnreachable}, nil
}

func (s *Service) recordOutcome(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordOutcome(outcome)
	}
}

// redactedBody is the provider's response as received, with every occurrence
// of the submitted BVN masked. FullData can echo the BVN back.
func redactedBody(raw *provider.RawResponse, bvn domain.BVN) string {
	body := raw.Body
	if len(body) == 0 {
		var err error
		if body, err = json.Marshal(raw); err != nil {
			return ""
		}
	}
	return strings.ReplaceAll(string(body), bvn.String(), bvn.Redacted())
}
