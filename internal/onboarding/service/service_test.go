package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"brokerage-gateway/internal/brokerapi"
	"brokerage-gateway/internal/onboarding/domain"
	"brokerage-gateway/internal/onboarding/repository"
	"brokerage-gateway/internal/security"
	"brokerage-gateway/internal/session"
	sessionrepo "brokerage-gateway/internal/session/repository"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeBackend struct {
	mu         sync.Mutex
	identity   func(brokerapi.IdentityCheckRequest) (brokerapi.Result[brokerapi.IdentityMatch], error)
	generate   func(brokerapi.GenerateOTPRequest) (brokerapi.Result[brokerapi.OTPIssued], error)
	verify     func(brokerapi.VerifyOTPRequest) (brokerapi.Result[string], error)
	create     func(brokerapi.CreateSessionRequest) (brokerapi.Result[brokerapi.SessionInfo], error)
	generated  []brokerapi.GenerateOTPRequest
	created    []brokerapi.CreateSessionRequest
	identities atomic.Int32
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		identity: func(brokerapi.IdentityCheckRequest) (brokerapi.Result[brokerapi.IdentityMatch], error) {
			return brokerapi.OK(brokerapi.IdentityMatch{PANMatched: true, NameMatched: true, DOBMatched: true}), nil
		},
		generate: func(r brokerapi.GenerateOTPRequest) (brokerapi.Result[brokerapi.OTPIssued], error) {
			return brokerapi.OK(brokerapi.OTPIssued{RequestID: "req-" + string(r.OTPType)}), nil
		},
		verify: func(r brokerapi.VerifyOTPRequest) (brokerapi.Result[string], error) {
			if r.OTP == "123456" {
				return brokerapi.OK("verified"), nil
			}
			return brokerapi.Failed[string]("Invalid OTP"), nil
		},
		create: func(r brokerapi.CreateSessionRequest) (brokerapi.Result[brokerapi.SessionInfo], error) {
			return brokerapi.OK(brokerapi.SessionInfo{
				SessionID:  "sess-1",
				TradingID:  "T100",
				CustomerID: "CU7",
				ClientID:   "C9",
				PAN:        r.PAN,
				Mobile:     r.Mobile,
			}), nil
		},
	}
}

func (b *fakeBackend) CheckIdentity(_ context.Context, r brokerapi.IdentityCheckRequest) (brokerapi.Result[brokerapi.IdentityMatch], error) {
	b.identities.Add(1)
	return b.identity(r)
}

func (b *fakeBackend) GenerateOTP(_ context.Context, r brokerapi.GenerateOTPRequest) (brokerapi.Result[brokerapi.OTPIssued], error) {
	b.mu.Lock()
	b.generated = append(b.generated, r)
	b.mu.Unlock()
	return b.generate(r)
}

func (b *fakeBackend) VerifyOTP(_ context.Context, r brokerapi.VerifyOTPRequest) (brokerapi.Result[string], error) {
	return b.verify(r)
}

func (b *fakeBackend) CreateSession(_ context.Context, r brokerapi.CreateSessionRequest) (brokerapi.Result[brokerapi.SessionInfo], error) {
	b.mu.Lock()
	b.created = append(b.created, r)
	b.mu.Unlock()
	return b.create(r)
}

func (b *fakeBackend) generateCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.generated)
}

type fixture struct {
	svc     *FlowService
	backend *fakeBackend
	store   *sessionrepo.MemoryStore
	tokens  *security.TokenProvider
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithRepo(t, repository.NewMemoryRepository())
}

func newFixtureWithRepo(t *testing.T, repo repository.Repository) *fixture {
	t.Helper()
	tokens, err := security.NewTestTokenProvider()
	require.NoError(t, err)
	fx := &fixture{
		backend: newFakeBackend(),
		store:   sessionrepo.NewMemoryStore(time.Hour),
		tokens:  tokens,
		now:     time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
	fx.svc = NewFlowService(fx.backend, repo, fx.store, tokens, nil, nil, zap.NewNop(),
		Options{Cooldown: 60 * time.Second, IdentityDebounce: 10 * time.Millisecond})
	fx.svc.nowF = func() time.Time { return fx.now }
	t.Cleanup(fx.svc.Close)
	return fx
}

// ctxRepository fails like a database driver once the caller's context is done.
type ctxRepository struct {
	*repository.MemoryRepository
}

func (r ctxRepository) Get(ctx context.Context, id string) (*domain.Flow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.MemoryRepository.Get(ctx, id)
}

func (r ctxRepository) Save(ctx context.Context, f *domain.Flow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.MemoryRepository.Save(ctx, f)
}

var signInDraft = domain.Draft{PAN: "ABCDE1234F", Mobile: "9876543210"}

var signUpDraft = domain.Draft{
	PAN:        "ABCDE1234F",
	Mobile:     "9876543210",
	Email:      "asha@example.com",
	ClientName: "Asha Rao",
	DOB:        "1990-05-17",
}

func TestSignIn_HappyPath(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	f, err := fx.svc.Start(ctx, domain.KindSignIn)
	require.NoError(t, err)
	f, err = fx.svc.UpdateDraft(ctx, f.ID, signInDraft)
	require.NoError(t, err)

	f, err = fx.svc.SendOTP(ctx, f.ID, domain.ChannelMobile)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseOtpSent, f.Phase)
	assert.Equal(t, 60*time.Second, f.ResendRemaining(domain.ChannelMobile, fx.now))
	require.Len(t, fx.backend.generated, 1)
	assert.Equal(t, brokerapi.LoginSignIn, fx.backend.generated[0].LoginType)
	assert.Equal(t, "9876543210", fx.backend.generated[0].OTPValidator)

	f, err = fx.svc.VerifyOTP(ctx, f.ID, domain.ChannelMobile, "123456")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseReady, f.Phase)
	assert.Zero(t, f.ResendRemaining(domain.ChannelMobile, fx.now))

	res, err := fx.svc.Submit(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseSignedIn, res.Flow.Phase)
	require.NotNil(t, res.Flow.Bootstrap)
	assert.Equal(t, "T100", res.Flow.Bootstrap.TradingID)
	assert.Equal(t, "req-mobile", fx.backend.created[0].ID)

	pr, err := fx.tokens.Validate(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.Scope, pr.Scope)
	assert.Equal(t, "C9", pr.ClientID)

	vals, err := fx.store.Values(ctx, res.Scope)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", vals[session.KeySessionID])
	assert.Equal(t, "T100", vals[session.KeyTradingID])
	assert.Equal(t, "CU7", vals[session.KeyCustomerID])
	assert.Equal(t, "C9", vals[session.KeyClientID])
	assert.Equal(t, "ABCDE1234F", vals[session.KeyCurrentPAN])
	assert.JSONEq(t, `{"pan":"ABCDE1234F","mobile":"9876543210"}`, vals[session.KeyKYCSignInForm])

	_, err = fx.svc.Submit(ctx, f.ID)
	assert.ErrorIs(t, err, ErrAlreadySignedIn)
	_, err = fx.svc.UpdateDraft(ctx, f.ID, signInDraft)
	assert.ErrorIs(t, err, ErrAlreadySignedIn)
	assert.Len(t, fx.backend.created, 1)
}

func TestSendOTP_InvalidDraftMakesNoCall(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f, err := fx.svc.Start(ctx, domain.KindSignIn)
	require.NoError(t, err)
	_, err = fx.svc.UpdateDraft(ctx, f.ID, domain.Draft{PAN: "ABCDE1234F", Mobile: "12345"})
	require.NoError(t, err)

	_, err = fx.svc.SendOTP(ctx, f.ID, domain.ChannelMobile)
	fe, ok := domain.AsFieldErrors(err)
	require.True(t, ok, "want FieldErrors, got %v", err)
	assert.Contains(t, fe, domain.FieldMobile)
	assert.Zero(t, fx.backend.generateCount())
}

func TestSendOTP_CooldownThenResend(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f, _ := fx.svc.Start(ctx, domain.KindSignIn)
	_, _ = fx.svc.UpdateDraft(ctx, f.ID, signInDraft)
	_, err := fx.svc.SendOTP(ctx, f.ID, domain.ChannelMobile)
	require.NoError(t, err)

	fx.now = fx.now.Add(59 * time.Second)
	_, err = fx.svc.SendOTP(ctx, f.ID, domain.ChannelMobile)
	assert.ErrorIs(t, err, domain.ErrCooldown)

	fx.now = fx.now.Add(time.Second)
	_, err = fx.svc.SendOTP(ctx, f.ID, domain.ChannelMobile)
	assert.NoError(t, err)
	assert.Equal(t, 2, fx.backend.generateCount())
}

func TestSignUp_RequiresIdentityThenMobileThenEmail(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.backend.identity = func(brokerapi.IdentityCheckRequest) (brokerapi.Result[brokerapi.IdentityMatch], error) {
		return brokerapi.Failed[brokerapi.IdentityMatch]("Name does not match PAN records"), nil
	}

	f, err := fx.svc.Start(ctx, domain.KindSignUp)
	require.NoError(t, err)
	fx.svc.debounce.delay = time.Hour
	f, err = fx.svc.UpdateDraft(ctx, f.ID, signUpDraft)
	require.NoError(t, err)

	_, err = fx.svc.SendOTP(ctx, f.ID, domain.ChannelMobile)
	assert.ErrorIs(t, err, domain.ErrIdentityUnchecked)
	assert.Zero(t, fx.backend.generateCount())

	f, err = fx.svc.CheckIdentity(ctx, f.ID)
	assert.Equal(t, "Name does not match PAN records", brokerapi.Reason(err))
	assert.Equal(t, domain.PhaseIdle, f.Phase)
	assert.Equal(t, "Name does not match PAN records", f.Notice)

	fx.backend.identity = newFakeBackend().identity
	f, err = fx.svc.CheckIdentity(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhasePanDobChecked, f.Phase)

	_, err = fx.svc.SendOTP(ctx, f.ID, domain.ChannelEmail)
	assert.ErrorIs(t, err, domain.ErrMobileUnverified)

	_, err = fx.svc.SendOTP(ctx, f.ID, domain.ChannelMobile)
	require.NoError(t, err)
	f, err = fx.svc.VerifyOTP(ctx, f.ID, domain.ChannelMobile, "123456")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseOtpVerified, f.Phase)
	_, err = fx.svc.Submit(ctx, f.ID)
	assert.ErrorIs(t, err, domain.ErrNotReady)

	_, err = fx.svc.SendOTP(ctx, f.ID, domain.ChannelEmail)
	require.NoError(t, err)
	f, err = fx.svc.VerifyOTP(ctx, f.ID, domain.ChannelEmail, "123456")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseReady, f.Phase)

	res, err := fx.svc.Submit(ctx, f.ID)
	require.NoError(t, err)
	req := fx.backend.created[0]
	assert.Equal(t, brokerapi.LoginSignUp, req.LoginType)
	assert.Equal(t, "asha@example.com", req.Email)
	assert.Equal(t, "Asha Rao", req.ClientName)
	assert.Equal(t, "1990-05-17", req.DOB)

	pan, ok, err := fx.store.Get(ctx, res.Scope, session.KeyKYCPAN)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ABCDE1234F", pan)
}

func TestSignUp_AccountExistsConvertsToSignIn(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.backend.generate = func(brokerapi.GenerateOTPRequest) (brokerapi.Result[brokerapi.OTPIssued], error) {
		return brokerapi.OK(brokerapi.OTPIssued{RequestID: "R2", AccountExists: true}), nil
	}
	f, _ := fx.svc.Start(ctx, domain.KindSignUp)
	fx.svc.debounce.delay = time.Hour
	_, _ = fx.svc.UpdateDraft(ctx, f.ID, signUpDraft)
	_, err := fx.svc.CheckIdentity(ctx, f.ID)
	require.NoError(t, err)

	sentAt := fx.now
	f, err = fx.svc.SendOTP(ctx, f.ID, domain.ChannelMobile)
	require.NoError(t, err)
	assert.Equal(t, domain.KindSignIn, f.Kind)
	assert.Equal(t, domain.AccountExistsNotice, f.Notice)
	assert.Equal(t, domain.Draft{PAN: "ABCDE1234F", Mobile: "9876543210"}, f.Draft)
	c := f.Challenges[domain.ChannelMobile]
	assert.Equal(t, "R2", c.RequestID)
	assert.Equal(t, sentAt, c.SentAt)

	fx.now = fx.now.Add(20 * time.Second)
	assert.Equal(t, 40*time.Second, f.ResendRemaining(domain.ChannelMobile, fx.now))

	f, err = fx.svc.VerifyOTP(ctx, f.ID, domain.ChannelMobile, "123456")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseReady, f.Phase)
	res, err := fx.svc.Submit(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, brokerapi.LoginSignIn, fx.backend.created[0].LoginType)
	assert.Equal(t, "R2", fx.backend.created[0].ID)
	assert.Empty(t, fx.backend.created[0].Email)
	assert.NotEmpty(t, res.AccessToken)
}

func TestRemoteFailure_OnlyNoticeChanges(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f, _ := fx.svc.Start(ctx, domain.KindSignIn)
	before, err := fx.svc.UpdateDraft(ctx, f.ID, signInDraft)
	require.NoError(t, err)

	fx.backend.generate = func(brokerapi.GenerateOTPRequest) (brokerapi.Result[brokerapi.OTPIssued], error) {
		return brokerapi.Result[brokerapi.OTPIssued]{}, brokerapi.ErrTransport
	}
	after, err := fx.svc.SendOTP(ctx, f.ID, domain.ChannelMobile)
	assert.ErrorIs(t, err, brokerapi.ErrTransport)
	assert.Equal(t, TransportNotice, after.Notice)
	assert.Equal(t, before.Phase, after.Phase)
	assert.Equal(t, before.Draft, after.Draft)
	assert.Empty(t, after.Challenges)

	fx.backend.generate = func(brokerapi.GenerateOTPRequest) (brokerapi.Result[brokerapi.OTPIssued], error) {
		return brokerapi.Failed[brokerapi.OTPIssued]("PAN not registered"), nil
	}
	after, err = fx.svc.SendOTP(ctx, f.ID, domain.ChannelMobile)
	assert.Equal(t, "PAN not registered", brokerapi.Reason(err))
	assert.Equal(t, "PAN not registered", after.Notice)
	assert.Equal(t, domain.PhaseIdle, after.Phase)
}

func TestVerifyOTP_RejectedKeepsChallenge(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f, _ := fx.svc.Start(ctx, domain.KindSignIn)
	_, _ = fx.svc.UpdateDraft(ctx, f.ID, signInDraft)
	_, err := fx.svc.SendOTP(ctx, f.ID, domain.ChannelMobile)
	require.NoError(t, err)

	_, err = fx.svc.VerifyOTP(ctx, f.ID, domain.ChannelMobile, "12a456")
	_, isField := domain.AsFieldErrors(err)
	assert.True(t, isField)

	f, err = fx.svc.VerifyOTP(ctx, f.ID, domain.ChannelMobile, "000000")
	assert.Equal(t, "Invalid OTP", brokerapi.Reason(err))
	assert.Equal(t, domain.PhaseOtpSent, f.Phase)
	assert.Equal(t, "Invalid OTP", f.FieldErrors[domain.OTPField(domain.ChannelMobile)])

	f, err = fx.svc.VerifyOTP(ctx, f.ID, domain.ChannelMobile, "123456")
	require.NoError(t, err)
	assert.Empty(t, f.FieldErrors)
}

func TestSubmit_ConcurrentSubmitRejected(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f, _ := fx.svc.Start(ctx, domain.KindSignIn)
	_, _ = fx.svc.UpdateDraft(ctx, f.ID, signInDraft)
	_, _ = fx.svc.SendOTP(ctx, f.ID, domain.ChannelMobile)
	_, err := fx.svc.VerifyOTP(ctx, f.ID, domain.ChannelMobile, "123456")
	require.NoError(t, err)

	entered := make(chan struct{})
	unblock := make(chan struct{})
	inner := fx.backend.create
	fx.backend.create = func(r brokerapi.CreateSessionRequest) (brokerapi.Result[brokerapi.SessionInfo], error) {
		close(entered)
		<-unblock
		return inner(r)
	}

	done := make(chan error, 1)
	go func() {
		_, err := fx.svc.Submit(ctx, f.ID)
		done <- err
	}()
	<-entered

	_, err = fx.svc.Submit(ctx, f.ID)
	assert.ErrorIs(t, err, ErrSubmitInProgress)
	_, err = fx.svc.UpdateDraft(ctx, f.ID, domain.Draft{PAN: "ZZZZZ9999Z", Mobile: "9876543210"})
	assert.ErrorIs(t, err, ErrSubmitInProgress)

	close(unblock)
	require.NoError(t, <-done)
	_, err = fx.svc.Submit(ctx, f.ID)
	assert.ErrorIs(t, err, ErrAlreadySignedIn)
	assert.Len(t, fx.backend.created, 1)
}

func TestSubmit_FailureStaysReady(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f, _ := fx.svc.Start(ctx, domain.KindSignIn)
	_, _ = fx.svc.UpdateDraft(ctx, f.ID, signInDraft)
	_, _ = fx.svc.SendOTP(ctx, f.ID, domain.ChannelMobile)
	_, _ = fx.svc.VerifyOTP(ctx, f.ID, domain.ChannelMobile, "123456")
	fx.backend.create = func(brokerapi.CreateSessionRequest) (brokerapi.Result[brokerapi.SessionInfo], error) {
		return brokerapi.Failed[brokerapi.SessionInfo]("Client blocked"), nil
	}

	_, err := fx.svc.Submit(ctx, f.ID)
	assert.Equal(t, "Client blocked", brokerapi.Reason(err))
	f, err = fx.svc.Get(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseReady, f.Phase)
	assert.False(t, f.Submitting)
	assert.Equal(t, "Client blocked", f.Notice)
	assert.True(t, f.CanSubmit())
}

func TestSubmit_CancelledRequestStillResets(t *testing.T) {
	fx := newFixtureWithRepo(t, ctxRepository{repository.NewMemoryRepository()})
	bg := context.Background()
	f, _ := fx.svc.Start(bg, domain.KindSignIn)
	_, _ = fx.svc.UpdateDraft(bg, f.ID, signInDraft)
	_, err := fx.svc.SendOTP(bg, f.ID, domain.ChannelMobile)
	require.NoError(t, err)
	_, err = fx.svc.VerifyOTP(bg, f.ID, domain.ChannelMobile, "123456")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(bg)
	defer cancel()
	fx.backend.create = func(brokerapi.CreateSessionRequest) (brokerapi.Result[brokerapi.SessionInfo], error) {
		cancel()
		return brokerapi.Result[brokerapi.SessionInfo]{}, fmt.Errorf("%w: client went away", brokerapi.ErrTransport)
	}
	_, err = fx.svc.Submit(ctx, f.ID)
	require.ErrorIs(t, err, brokerapi.ErrTransport)

	f, err = fx.svc.Get(bg, f.ID)
	require.NoError(t, err)
	assert.False(t, f.Submitting)
	assert.Equal(t, domain.PhaseReady, f.Phase)
	assert.Equal(t, TransportNotice, f.Notice)

	_, err = fx.svc.UpdateDraft(bg, f.ID, signInDraft)
	require.NoError(t, err)
	fx.backend.create = newFakeBackend().create
	res, err := fx.svc.Submit(bg, f.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseSignedIn, res.Flow.Phase)
}

func TestSendOTP_CancelledRequestStillRecordsNotice(t *testing.T) {
	fx := newFixtureWithRepo(t, ctxRepository{repository.NewMemoryRepository()})
	bg := context.Background()
	f, _ := fx.svc.Start(bg, domain.KindSignIn)
	_, _ = fx.svc.UpdateDraft(bg, f.ID, signInDraft)

	ctx, cancel := context.WithCancel(bg)
	defer cancel()
	fx.backend.generate = func(brokerapi.GenerateOTPRequest) (brokerapi.Result[brokerapi.OTPIssued], error) {
		cancel()
		return brokerapi.Result[brokerapi.OTPIssued]{}, fmt.Errorf("%w: timeout", brokerapi.ErrTransport)
	}
	_, err := fx.svc.SendOTP(ctx, f.ID, domain.ChannelMobile)
	require.ErrorIs(t, err, brokerapi.ErrTransport)

	f, err = fx.svc.Get(bg, f.ID)
	require.NoError(t, err)
	assert.Equal(t, TransportNotice, f.Notice)
	assert.Empty(t, f.Challenges)
}

func TestAbandon(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.svc.debounce = newDebouncer(time.Hour)
	f, _ := fx.svc.Start(ctx, domain.KindSignUp)
	_, err := fx.svc.UpdateDraft(ctx, f.ID, signUpDraft)
	require.NoError(t, err)
	require.True(t, fx.svc.debounce.pending(f.ID))

	require.NoError(t, fx.svc.Abandon(ctx, f.ID))
	assert.False(t, fx.svc.debounce.pending(f.ID))
	_, err = fx.svc.Get(ctx, f.ID)
	assert.ErrorIs(t, err, ErrFlowNotFound)
	assert.ErrorIs(t, fx.svc.Abandon(ctx, f.ID), ErrFlowNotFound)
}

func TestUpdateDraft_DebouncesIdentityCheck(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f, _ := fx.svc.Start(ctx, domain.KindSignUp)

	partial := signUpDraft
	partial.DOB = ""
	_, err := fx.svc.UpdateDraft(ctx, f.ID, partial)
	require.NoError(t, err)
	assert.False(t, fx.svc.debounce.pending(f.ID))

	for i := 0; i < 5; i++ {
		_, err = fx.svc.UpdateDraft(ctx, f.ID, signUpDraft)
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool {
		f, err := fx.svc.Get(ctx, f.ID)
		return err == nil && f.Phase == domain.PhasePanDobChecked
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), fx.backend.identities.Load())
}

func TestGet_NotFound(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrFlowNotFound)
	_, err = fx.svc.SendOTP(context.Background(), "missing", domain.ChannelMobile)
	assert.ErrorIs(t, err, ErrFlowNotFound)
	_, err = fx.svc.Start(context.Background(), domain.Kind("Guest"))
	assert.ErrorIs(t, err, domain.ErrUnknownKind)
}

func TestLogout_ClearsScope(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	require.NoError(t, fx.store.Set(ctx, "scope-1", session.KeyClientID, "C9"))
	require.NoError(t, fx.svc.Logout(ctx, "scope-1"))
	vals, err := fx.store.Values(ctx, "scope-1")
	require.NoError(t, err)
	assert.Empty(t, vals)

	require.NoError(t, fx.store.Set(ctx, "scope-2", session.KeyClientID, "C9"))
	require.NoError(t, fx.svc.Expire(ctx, "scope-2"))
	_, ok, _ := fx.store.Get(ctx, "scope-2", session.KeyClientID)
	assert.False(t, ok)
}

func TestPrune_DropsIdleFlows(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f, _ := fx.svc.Start(ctx, domain.KindSignIn)
	fx.now = fx.now.Add(time.Hour)
	g, _ := fx.svc.Start(ctx, domain.KindSignIn)

	n, err := fx.svc.Prune(ctx, fx.now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = fx.svc.Get(ctx, f.ID)
	assert.True(t, errors.Is(err, ErrFlowNotFound))
	_, err = fx.svc.Get(ctx, g.ID)
	assert.NoError(t, err)
}
