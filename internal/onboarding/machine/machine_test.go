package machine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"bondgateway/internal/identity/models"
	"bondgateway/internal/identity/provider"
	"bondgateway/internal/identity/sandbox"
	"bondgateway/internal/identity/service"
	"bondgateway/pkg/domain"
	dErrors "bondgateway/pkg/domain-errors"
)

type stubVerifier struct {
	calls  atomic.Int32
	verify func(ctx context.Context, bvn string) (*models.Outcome, error)
}

func (s *stubVerifier) Verify(ctx context.Context, bvn string) (*models.Outcome, error) {
	s.calls.Add(1)
	return s.verify(ctx, bvn)
}

func verified(first, last string) *models.Outcome {
	return &models.Outcome{
		Success:      true,
		Message:      models.MessageVerified,
		ProviderCode: "1012",
		Profile:      &models.Profile{FirstName: first, LastName: last, Phone: "08012345678", DateOfBirth: "1992-05-14"},
	}
}

type MachineSuite struct {
	suite.Suite
	verifier *stubVerifier
	m        *Machine
}

func TestMachineSuite(t *testing.T) {
	suite.Run(t, new(MachineSuite))
}

func (s *MachineSuite) SetupTest() {
	s.verifier = &stubVerifier{verify: func(context.Context, string) (*models.Outcome, error) {
		return verified("Emmanuel", "Okonkwo"), nil
	}}
	s.m = New(s.verifier,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }),
		WithWalletIDGenerator(func() (string, error) { return "4829103746", nil }),
	)
}

func (s *MachineSuite) TestInitialState() {
	snap := s.m.Snapshot()
	s.Equal(StepIdentity, snap.Step)
	s.Equal(33, snap.Progress)
	s.False(snap.Pending)
	s.Nil(snap.Profile)
}

func (s *MachineSuite) TestHappyPathToComplete() {
	snap, err := s.m.SubmitIdentity(context.Background(), "00000000000")
	s.Require().NoError(err)
	s.Equal(StepProfile, snap.Step)
	s.Equal(67, snap.Progress)
	s.Equal("emmanuel.okonkwo@email.com", snap.Profile.Email)
	s.Empty(snap.AttemptError)

	phone := " 08099999999 "
	snap, err = s.m.ConfirmProfile(ProfileEdits{Phone: &phone})
	s.Require().NoError(err)
	s.Equal(StepLiveness, snap.Step)
	s.Equal(100, snap.Progress)
	s.Equal("08099999999", snap.Profile.Phone)

	snap, err = s.m.CompleteLiveness(context.Background())
	s.Require().NoError(err)
	s.Equal(StepComplete, snap.Step)
	s.Equal(100, snap.Progress)

	acct, ok := s.m.Account()
	s.Require().True(ok)
	s.Equal("Emmanuel", acct.FirstName)
	s.Equal("Okonkwo", acct.LastName)
	s.Equal("emmanuel.okonkwo@email.com", acct.Email)
	s.Equal("08099999999", acct.Phone)
	s.Equal("0000", acct.BVNSuffix)
	s.Equal("4829103746", acct.WalletID)
	s.Zero(acct.WalletBalance)
	s.Equal(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), acct.JoinedAt)
	s.False(acct.ID.IsNil())
}

func (s *MachineSuite) TestRejectionStaysOnIdentity() {
	s.verifier.verify = func(context.Context, string) (*models.Outcome, error) {
		return &models.Outcome{Message: "BVN does not exist or details mismatch.", ProviderCode: "201"}, nil
	}

	snap, err := s.m.SubmitIdentity(context.Background(), "00000000001")
	s.Require().NoError(err)
	s.Equal(StepIdentity, snap.Step)
	s.Equal("BVN does not exist or details mismatch.", snap.AttemptError)
	s.False(snap.Pending)
	s.Nil(snap.Profile)
}

func (s *MachineSuite) TestVerifierErrorsStayOnIdentity() {
	tests := []struct {
		err  error
		want string
	}{
		{dErrors.New(dErrors.CodeValidation, domain.InvalidBVNMessage), "Invalid BVN format"},
		{dErrors.New(dErrors.CodeConfiguration, "Server configuration error"), "Server configuration error"},
		{errors.New("socket closed"), "Internal server error"},
	}
	for _, tt := range tests {
		s.verifier.verify = func(context.Context, string) (*models.Outcome, error) { return nil, tt.err }
		snap, err := s.m.SubmitIdentity(context.Background(), "123")
		s.Require().NoError(err)
		s.Equal(StepIdentity, snap.Step)
		s.Equal(tt.want, snap.AttemptError)
	}
}

func (s *MachineSuite) TestTransportFailureIsRecoverable() {
	s.verifier.verify = func(context.Context, string) (*models.Outcome, error) {
		return &models.Outcome{Message: models.MessageUnreachable}, nil
	}
	snap, err := s.m.SubmitIdentity(context.Background(), "00000000000")
	s.Require().NoError(err)
	s.Equal(StepIdentity, snap.Step)
	s.Equal(models.MessageUnreachable, snap.AttemptError)

	s.verifier.verify = func(context.Context, string) (*models.Outcome, error) { return verified("Ada", "Obi"), nil }
	snap, err = s.m.SubmitIdentity(context.Background(), "00000000000")
	s.Require().NoError(err)
	s.Equal(StepProfile, snap.Step)
	s.Empty(snap.AttemptError)
}

func (s *MachineSuite) TestSuccessWithoutProfileIsNotAdvanced() {
	s.verifier.verify = func(context.Context, string) (*models.Outcome, error) {
		return &models.Outcome{Success: true, Message: models.MessageVerified}, nil
	}
	snap, err := s.m.SubmitIdentity(context.Background(), "00000000000")
	s.Require().NoError(err)
	s.Equal(StepIdentity, snap.Step)
}

func (s *MachineSuite) TestOutOfOrderOperations() {
	_, err := s.m.ConfirmProfile(ProfileEdits{})
	s.ErrorIs(err, ErrInvalidTransition)
	_, err = s.m.CompleteLiveness(context.Background())
	s.ErrorIs(err, ErrInvalidTransition)

	_, err = s.m.SubmitIdentity(context.Background(), "00000000000")
	s.Require().NoError(err)
	_, err = s.m.SubmitIdentity(context.Background(), "00000000000")
	s.ErrorIs(err, ErrInvalidTransition, "identity cannot be resubmitted once verified")
	s.Equal(int32(1), s.verifier.calls.Load())
}

func (s *MachineSuite) TestInvalidEmailEditKeepsStep() {
	_, err := s.m.SubmitIdentity(context.Background(), "00000000000")
	s.Require().NoError(err)

	bad := "not-an-email"
	snap, err := s.m.ConfirmProfile(ProfileEdits{Email: &bad})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Equal(StepProfile, snap.Step)
}

func (s *MachineSuite) TestLivenessFailureStays() {
	m := New(s.verifier, WithLivenessChecker(livenessFunc(func(context.Context, Profile) error {
		return dErrors.New(dErrors.CodeValidation, "Face not detected")
	})))
	_, err := m.SubmitIdentity(context.Background(), "00000000000")
	s.Require().NoError(err)
	_, err = m.ConfirmProfile(ProfileEdits{})
	s.Require().NoError(err)

	snap, err := m.CompleteLiveness(context.Background())
	s.Require().NoError(err)
	s.Equal(StepLiveness, snap.Step)
	s.Equal("Face not detected", snap.AttemptError)
	_, ok := m.Account()
	s.False(ok)
}

func (s *MachineSuite) TestRestartReturnsToIdentity() {
	_, err := s.m.SubmitIdentity(context.Background(), "00000000000")
	s.Require().NoError(err)
	_, err = s.m.ConfirmProfile(ProfileEdits{})
	s.Require().NoError(err)

	snap, err := s.m.Restart()
	s.Require().NoError(err)
	s.Equal(StepIdentity, snap.Step)
	s.Nil(snap.Profile)
}

func (s *MachineSuite) TestAbandonIsTerminal() {
	snap := s.m.Abandon()
	s.True(snap.Abandoned)

	_, err := s.m.SubmitIdentity(context.Background(), "00000000000")
	s.ErrorIs(err, ErrAbandoned)
	_, err = s.m.Restart()
	s.ErrorIs(err, ErrAbandoned)
	s.Zero(s.verifier.calls.Load())
}

type livenessFunc func(context.Context, Profile) error

func (f livenessFunc) Check(ctx context.Context, p Profile) error { return f(ctx, p) }

// blockingVerifier holds every call until release is closed.
func blockingVerifier(started chan<- struct{}, release <-chan struct{}) *stubVerifier {
	return &stubVerifier{verify: func(context.Context, string) (*models.Outcome, error) {
		started <- struct{}{}
		<-release
		return verified("Emmanuel", "Okonkwo"), nil
	}}
}

func TestSubmitIdentity_SecondSubmitWhilePendingIsRejected(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	v := blockingVerifier(started, release)
	m := New(v)

	done := make(chan error, 1)
	go func() {
		_, err := m.SubmitIdentity(context.Background(), "00000000000")
		done <- err
	}()
	<-started

	assert.True(t, m.Snapshot().Pending)
	snap, err := m.SubmitIdentity(context.Background(), "00000000000")
	require.ErrorIs(t, err, ErrVerificationPending)
	assert.Equal(t, StepIdentity, snap.Step)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), v.calls.Load(), "exactly one outbound call")
	assert.Equal(t, StepProfile, m.Snapshot().Step)
	assert.False(t, m.Snapshot().Pending)
}

func TestSubmitIdentity_ResultAfterRestartIsDiscarded(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	m := New(blockingVerifier(started, release))

	done := make(chan error, 1)
	go func() {
		_, err := m.SubmitIdentity(context.Background(), "00000000000")
		done <- err
	}()
	<-started

	_, err := m.Restart()
	require.NoError(t, err)
	close(release)

	assert.ErrorIs(t, <-done, ErrSuperseded)
	snap := m.Snapshot()
	assert.Equal(t, StepIdentity, snap.Step)
	assert.Nil(t, snap.Profile)
	assert.False(t, snap.Pending)
}

func TestSubmitIdentity_RestartDoesNotAllowSecondOutboundCall(t *testing.T) {
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	v := blockingVerifier(started, release)
	m := New(v)

	done := make(chan error, 1)
	go func() {
		_, err := m.SubmitIdentity(context.Background(), "00000000000")
		done <- err
	}()
	<-started

	snap, err := m.Restart()
	require.NoError(t, err)
	assert.True(t, snap.Pending, "earlier call is still outstanding")

	_, err = m.SubmitIdentity(context.Background(), "00000000000")
	require.ErrorIs(t, err, ErrVerificationPending)
	assert.Equal(t, int32(1), v.calls.Load())

	close(release)
	require.ErrorIs(t, <-done, ErrSuperseded)
	assert.False(t, m.Snapshot().Pending)

	snap, err = m.SubmitIdentity(context.Background(), "00000000000")
	require.NoError(t, err)
	assert.Equal(t, StepProfile, snap.Step)
	assert.Equal(t, int32(2), v.calls.Load())
}

func TestAbandon_KeepsSessionPendingUntilCallReturns(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	m := New(blockingVerifier(started, release))

	done := make(chan error, 1)
	go func() {
		_, err := m.SubmitIdentity(context.Background(), "00000000000")
		done <- err
	}()
	<-started

	assert.True(t, m.Abandon().Pending)
	close(release)
	require.ErrorIs(t, <-done, ErrSuperseded)
	snap := m.Snapshot()
	assert.False(t, snap.Pending)
	assert.True(t, snap.Abandoned)
}

func TestSubmitIdentity_CallerCancellationDoesNotAbortVerification(t *testing.T) {
	var sawCancel atomic.Bool
	v := &stubVerifier{verify: func(ctx context.Context, _ string) (*models.Outcome, error) {
		sawCancel.Store(ctx.Err() != nil)
		return verified("Ada", "Obi"), nil
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	snap, err := New(v).SubmitIdentity(ctx, "00000000000")
	require.NoError(t, err)
	assert.False(t, sawCancel.Load())
	assert.Equal(t, StepProfile, snap.Step)
}

func TestSubmitIdentity_AgainstSandboxProvider(t *testing.T) {
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(sandbox.New(sandbox.Config{PartnerID: "2481", APIKey: "k", Logger: discard}).Handler())
	defer srv.Close()

	svc := service.New(provider.New(srv.URL), service.Credentials{PartnerID: "2481", APIKey: "k"}, service.WithLogger(discard))

	ok := New(svc)
	snap, err := ok.SubmitIdentity(context.Background(), sandbox.VerifiedBVN)
	require.NoError(t, err)
	assert.Equal(t, StepProfile, snap.Step)
	assert.Equal(t, "Emmanuel", snap.Profile.FirstName)
	assert.Equal(t, "emmanuel.okonkwo@email.com", snap.Profile.Email)

	rejected := New(svc)
	snap, err = rejected.SubmitIdentity(context.Background(), sandbox.MismatchBVN)
	require.NoError(t, err)
	assert.Equal(t, StepIdentity, snap.Step)
	assert.Equal(t, "BVN does not exist or details mismatch.", snap.AttemptError)
}

func TestSubmitIdentity_ProviderDown(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := srv.URL
	srv.Close()

	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.New(provider.New(url, provider.WithTimeout(time.Second)), service.Credentials{PartnerID: "p", APIKey: "k"}, service.WithLogger(discard))

	snap, err := New(svc).SubmitIdentity(context.Background(), sandbox.VerifiedBVN)
	require.NoError(t, err)
	assert.Equal(t, StepIdentity, snap.Step)
	assert.Equal(t, models.MessageUnreachable, snap.AttemptError)
}

func TestDefaultEmail(t *testing.T) {
	assert.Equal(t, "emmanuel.okonkwo@email.com", DefaultEmail("Emmanuel", "Okonkwo"))
	assert.Equal(t, "verifieduser@email.com", DefaultEmail("Verified User", ""))
	assert.Equal(t, "mary-jane.van.dyke@email.com", DefaultEmail("Mary-Jane", "Van.Dyke"))
}

func TestProgress(t *testing.T) {
	assert.Equal(t, 33, Progress(StepIdentity))
	assert.Equal(t, 67, Progress(StepProfile))
	assert.Equal(t, 100, Progress(StepLiveness))
	assert.Equal(t, 100, Progress(StepComplete))
	assert.Equal(t, 0, Progress("unknown"))
}
