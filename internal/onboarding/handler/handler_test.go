package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	accountservice "bondgateway/internal/account/service"
	accountstore "bondgateway/internal/account/store"
	"bondgateway/internal/account/token"
	"bondgateway/internal/audit"
	"bondgateway/internal/identity/models"
	"bondgateway/internal/onboarding/machine"
	"bondgateway/internal/onboarding/store"
	"bondgateway/internal/platform/metrics"
	"bondgateway/pkg/domain"
	"bondgateway/pkg/platform/middleware/device"
)

const chromeOnMac = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type fixtureVerifier struct{}

func (fixtureVerifier) Verify(_ context.Context, bvn string) (*models.Outcome, error) {
	if _, err := domain.ParseBVN(bvn); err != nil {
		return nil, err
	}
	if bvn == "00000000000" {
		return &models.Outcome{
			Success: true,
			Message: models.MessageVerified,
			Profile: &models.Profile{FirstName: "Emmanuel", LastName: "Okonkwo", DateOfBirth: "1992-05-14", Phone: "08012345678"},
		}, nil
	}
	return &models.Outcome{Message: "BVN does not exist or details mismatch.", ProviderCode: "201"}, nil
}

type HandlerSuite struct {
	suite.Suite
	sessions *store.InMemory
	accounts *accountstore.InMemory
	audit    *audit.InMemoryStore
	metrics  *metrics.Metrics
	router   chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.sessions = store.New()
	s.accounts = accountstore.NewInMemory()
	s.audit = audit.NewInMemoryStore()
	s.metrics = metrics.NewWithRegisterer(prometheus.NewRegistry())
	publisher := audit.NewPublisher(s.audit)

	accounts := accountservice.New(s.accounts, token.New("test-signing-key", time.Hour))
	newMachine := func() *machine.Machine {
		return machine.New(fixtureVerifier{}, machine.WithLogger(logger))
	}
	h := New(s.sessions, newMachine, accounts,
		WithAuditPublisher(publisher),
		WithMetrics(s.metrics),
		WithLogger(logger),
	)
	s.router = chi.NewRouter()
	s.router.Use(device.Device)
	h.Register(s.router)
}

func (s *HandlerSuite) do(method, path, body string) (int, map[string]any) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", chromeOnMac)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var resp map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

func (s *HandlerSuite) start() string {
	status, resp := s.do(http.MethodPost, "/api/onboarding/sessions/", "")
	s.Require().Equal(http.StatusCreated, status)
	return resp["sessionId"].(string)
}

func session(resp map[string]any) map[string]any {
	return resp["session"].(map[string]any)
}

func (s *HandlerSuite) TestFullOnboarding() {
	sid := s.start()
	base := "/api/onboarding/sessions/" + sid

	status, resp := s.do(http.MethodGet, base, "")
	s.Equal(http.StatusOK, status)
	s.Equal("identity", session(resp)["step"])
	s.Equal(float64(33), session(resp)["progress"])
	s.Contains(resp["device"], "Chrome")

	status, resp = s.do(http.MethodPost, base+"/identity", `{"bvn":"00000000001"}`)
	s.Equal(http.StatusOK, status)
	s.Equal("identity", session(resp)["step"])
	s.Equal("BVN does not exist or details mismatch.", session(resp)["attemptError"])

	status, resp = s.do(http.MethodPost, base+"/identity", `{"bvn":"00000000000"}`)
	s.Equal(http.StatusOK, status)
	s.Equal("profile", session(resp)["step"])
	profile := session(resp)["profile"].(map[string]any)
	s.Equal("emmanuel.okonkwo@email.com", profile["email"])

	status, resp = s.do(http.MethodPost, base+"/profile", `{"email":"emma@bond.ng"}`)
	s.Equal(http.StatusOK, status)
	s.Equal("liveness", session(resp)["step"])

	status, resp = s.do(http.MethodPost, base+"/liveness", "")
	s.Equal(http.StatusOK, status)
	s.Equal("complete", session(resp)["step"])
	s.Equal(float64(100), session(resp)["progress"])
	s.NotEmpty(resp["token"])
	acct := session(resp)["account"].(map[string]any)
	s.Equal("emma@bond.ng", acct["email"])
	s.Equal("0000", acct["bvnSuffix"])
	s.Len(acct["walletId"], 10)
	s.Equal(float64(0), acct["walletBalance"])

	n, err := s.accounts.Count(context.Background())
	s.Require().NoError(err)
	s.Equal(1, n)

	// A repeated completion call re-registers the same account.
	status, _ = s.do(http.MethodPost, base+"/liveness", "")
	s.Equal(http.StatusOK, status)
	n, _ = s.accounts.Count(context.Background())
	s.Equal(1, n)

	s.Equal(float64(1), testutil.ToFloat64(s.metrics.OnboardingStarted))
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.OnboardingCompleted))
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.StepTransitions.WithLabelValues("complete")))

	events, err := s.audit.ListBySubject(context.Background(), "onboarding:"+sid)
	s.Require().NoError(err)
	var actions []audit.Action
	for _, e := range events {
		actions = append(actions, e.Action)
	}
	s.Equal([]audit.Action{
		audit.ActionVerificationAttempted, audit.ActionVerificationFailed,
		audit.ActionVerificationAttempted, audit.ActionVerificationSucceeded,
	}, actions)
}

func (s *HandlerSuite) TestMalformedBVNStaysOnIdentity() {
	base := "/api/onboarding/sessions/" + s.start()

	status, resp := s.do(http.MethodPost, base+"/identity", `{"bvn":"123"}`)
	s.Equal(http.StatusOK, status)
	s.Equal("identity", session(resp)["step"])
	s.Equal(domain.InvalidBVNMessage, session(resp)["attemptError"])
}

func (s *HandlerSuite) TestOutOfOrderOperationsAreRefused() {
	base := "/api/onboarding/sessions/" + s.start()

	status, resp := s.do(http.MethodPost, base+"/profile", `{}`)
	s.Equal(http.StatusConflict, status)
	s.Equal("invalid_transition", resp["error"])

	status, _ = s.do(http.MethodPost, base+"/liveness", "")
	s.Equal(http.StatusConflict, status)

	status, resp = s.do(http.MethodGet, base, "")
	s.Equal(http.StatusOK, status)
	s.Equal("identity", session(resp)["step"])
}

func (s *HandlerSuite) TestInvalidEmailKeepsProfileStep() {
	base := "/api/onboarding/sessions/" + s.start()
	s.do(http.MethodPost, base+"/identity", `{"bvn":"00000000000"}`)

	status, _ := s.do(http.MethodPost, base+"/profile", `{"email":"not-an-email"}`)
	s.Equal(http.StatusBadRequest, status)

	_, resp := s.do(http.MethodGet, base, "")
	s.Equal("profile", session(resp)["step"])
}

func (s *HandlerSuite) TestRestartAndAbandon() {
	base := "/api/onboarding/sessions/" + s.start()
	s.do(http.MethodPost, base+"/identity", `{"bvn":"00000000000"}`)

	status, resp := s.do(http.MethodPost, base+"/restart", "")
	s.Equal(http.StatusOK, status)
	s.Equal("identity", session(resp)["step"])
	s.Nil(session(resp)["profile"])

	status, resp = s.do(http.MethodPost, base+"/abandon", "")
	s.Equal(http.StatusOK, status)
	s.Equal(true, session(resp)["abandoned"])
	s.do(http.MethodPost, base+"/abandon", "")
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.OnboardingAbandoned))

	status, _ = s.do(http.MethodPost, base+"/identity", `{"bvn":"00000000000"}`)
	s.Equal(http.StatusConflict, status)
	status, _ = s.do(http.MethodPost, base+"/restart", "")
	s.Equal(http.StatusConflict, status)
}

func (s *HandlerSuite) TestUnknownSession() {
	status, resp := s.do(http.MethodGet, "/api/onboarding/sessions/"+domain.NewSessionID().String(), "")
	s.Equal(http.StatusNotFound, status)
	s.Equal("not_found", resp["error"])

	status, _ = s.do(http.MethodGet, "/api/onboarding/sessions/not-a-uuid", "")
	s.Equal(http.StatusBadRequest, status)
}

func (s *HandlerSuite) TestEmailConflictOnCompletion() {
	complete := func(email string) (int, map[string]any) {
		base := "/api/onboarding/sessions/" + s.start()
		s.do(http.MethodPost, base+"/identity", `{"bvn":"00000000000"}`)
		s.do(http.MethodPost, base+"/profile", `{"email":"`+email+`"}`)
		return s.do(http.MethodPost, base+"/liveness", "")
	}

	status, _ := complete("same@bond.ng")
	s.Equal(http.StatusOK, status)
	status, resp := complete("SAME@bond.ng")
	s.Equal(http.StatusConflict, status)
	s.Equal("conflict", resp["error"])
}
