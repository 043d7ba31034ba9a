// Package service runs onboarding flows: it applies reducer events around the brokerage backend
// calls and writes the session bootstrap on sign-in.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"brokerage-gateway/internal/brokerapi"
	"brokerage-gateway/internal/logging"
	"brokerage-gateway/internal/onboarding/domain"
	"brokerage-gateway/internal/onboarding/repository"
	"brokerage-gateway/internal/security"
	"brokerage-gateway/internal/session"
	"brokerage-gateway/internal/telemetry"
	"brokerage-gateway/internal/telemetry/otel"
)

// Sentinel errors; the HTTP layer maps them to status codes.
var (
	ErrFlowNotFound = errors.New("flow not found")
	ErrFlowBusy     = errors.New("another request is running for this flow")
	// ErrAlreadySignedIn is returned for any operation on a flow that already signed in.
	ErrAlreadySignedIn  = domain.ErrSignedIn
	ErrSubmitInProgress = domain.ErrSubmitInProgress
)

// TransportNotice is shown when the backend could not be reached or answered garbage.
const TransportNotice = "Something went wrong. Please try again."

const source = "onboarding"

// resetTimeout bounds the save that clears a failed remote call. It runs detached from the request
// context so a disconnected client cannot leave the flow submitting.
const resetTimeout = 5 * time.Second

// Backend is the subset of the brokerage backend used by onboarding.
type Backend interface {
	CheckIdentity(ctx context.Context, req brokerapi.IdentityCheckRequest) (brokerapi.Result[brokerapi.IdentityMatch], error)
	GenerateOTP(ctx context.Context, req brokerapi.GenerateOTPRequest) (brokerapi.Result[brokerapi.OTPIssued], error)
	VerifyOTP(ctx context.Context, req brokerapi.VerifyOTPRequest) (brokerapi.Result[string], error)
	CreateSession(ctx context.Context, req brokerapi.CreateSessionRequest) (brokerapi.Result[brokerapi.SessionInfo], error)
}

// TokenIssuer issues the gateway access token for a signed-in scope.
type TokenIssuer interface {
	Issue(scope, clientID, tradingID string) (string, time.Time, error)
}

// Options tune a FlowService. Zero values use the defaults.
type Options struct {
	Cooldown         time.Duration
	IdentityDebounce time.Duration
	// IdentityTimeout bounds a debounced identity check, which runs without a request context.
	IdentityTimeout time.Duration
}

// DefaultIdentityDebounce is the quiet period after the last draft edit before the identity check runs.
const DefaultIdentityDebounce = 800 * time.Millisecond

// SignInResult is the outcome of a successful Submit.
type SignInResult struct {
	Flow        *domain.Flow
	Scope       string
	AccessToken string
	ExpiresAt   time.Time
}

type flowLock struct {
	op    sync.Mutex // held for the duration of a remote call
	state sync.Mutex // held for load, reduce and save
}

// FlowService implements the sign-in and sign-up operations.
type FlowService struct {
	backend  Backend
	repo     repository.Repository
	store    session.Store
	tokens   TokenIssuer
	emitter  telemetry.EventEmitter
	metrics  *otel.Instruments
	logger   *zap.Logger
	opts     Options
	debounce *debouncer

	mu    sync.Mutex
	locks map[string]*flowLock

	nowF  func() time.Time
	newID func() string
}

// NewFlowService returns a FlowService. emitter, metrics and logger may be nil.
func NewFlowService(
	backend Backend,
	repo repository.Repository,
	store session.Store,
	tokens TokenIssuer,
	emitter telemetry.EventEmitter,
	metrics *otel.Instruments,
	logger *zap.Logger,
	opts Options,
) *FlowService {
	if opts.Cooldown <= 0 {
		opts.Cooldown = domain.DefaultCooldown
	}
	if opts.IdentityDebounce <= 0 {
		opts.IdentityDebounce = DefaultIdentityDebounce
	}
	if opts.IdentityTimeout <= 0 {
		opts.IdentityTimeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if emitter == nil {
		emitter = telemetry.Nop{}
	}
	return &FlowService{
		backend:  backend,
		repo:     repo,
		store:    store,
		tokens:   tokens,
		emitter:  emitter,
		metrics:  metrics,
		logger:   logger,
		opts:     opts,
		debounce: newDebouncer(opts.IdentityDebounce),
		locks:    make(map[string]*flowLock),
		nowF:     func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// Close stops pending identity checks and waits for running ones.
func (s *FlowService) Close() {
	s.debounce.stop()
}

// Start creates an idle flow of the given kind.
func (s *FlowService) Start(ctx context.Context, kind domain.Kind) (*domain.Flow, error) {
	f, err := domain.NewFlow(s.newID(), kind, s.opts.Cooldown, s.nowF())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, f); err != nil {
		return nil, err
	}
	s.emit(f, telemetry.EventFlowStarted, nil)
	return f, nil
}

// Get returns the flow or ErrFlowNotFound.
func (s *FlowService) Get(ctx context.Context, id string) (*domain.Flow, error) {
	f, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, ErrFlowNotFound
	}
	return f, nil
}

// Now returns the service clock, used for derived snapshot fields.
func (s *FlowService) Now() time.Time { return s.nowF() }

// UpdateDraft replaces the draft. On a sign-up flow whose identity fields are complete the identity
// check is (re)scheduled; otherwise a pending check is cancelled.
func (s *FlowService) UpdateDraft(ctx context.Context, id string, d domain.Draft) (*domain.Flow, error) {
	f, err := s.apply(ctx, id, domain.DraftChanged{Draft: d})
	if err != nil {
		return f, err
	}
	if f.Kind == domain.KindSignUp && f.Phase == domain.PhaseIdle && len(f.Draft.ValidateIdentity(s.nowF())) == 0 {
		s.ScheduleIdentityCheck(id)
	} else {
		s.debounce.cancel(id)
	}
	return f, nil
}

// ScheduleIdentityCheck runs CheckIdentity after the debounce delay. A later call restarts the delay.
func (s *FlowService) ScheduleIdentityCheck(id string) {
	s.debounce.schedule(id, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.IdentityTimeout)
		defer cancel()
		_, err := s.CheckIdentity(ctx, id)
		switch {
		case err == nil:
		case errors.Is(err, ErrFlowBusy):
			s.ScheduleIdentityCheck(id)
		default:
			s.logger.Debug("onboarding: debounced identity check", zap.String("flow_id", id), zap.Error(err))
		}
	})
}

// CheckIdentity runs the PAN/name/DOB plausibility check for a sign-up flow. A failed check leaves the
// flow Idle with a notice and returns a *brokerapi.FailureError.
func (s *FlowService) CheckIdentity(ctx context.Context, id string) (*domain.Flow, error) {
	release, err := s.acquire(id)
	if err != nil {
		return nil, err
	}
	defer release()

	f, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if f.Phase == domain.PhaseSignedIn {
		return f, ErrAlreadySignedIn
	}
	if f.Kind != domain.KindSignUp {
		return f, domain.ErrWrongKind
	}
	if err := f.Draft.ValidateIdentity(s.nowF()).Err(); err != nil {
		return f, err
	}
	version := f.DraftVersion
	start := time.Now()
	res, err := s.backend.CheckIdentity(ctx, brokerapi.IdentityCheckRequest{
		PAN:  f.Draft.PAN,
		Name: f.Draft.ClientName,
		DOB:  f.Draft.DOB,
	})
	s.observe(ctx, "check_identity", res.Kind, err, start)
	if err != nil {
		return s.transportFailed(ctx, f, "check identity", err)
	}
	ok := res.IsOK()
	f, aerr := s.apply(ctx, id, domain.IdentityChecked{DraftVersion: version, OK: ok, Message: res.Reason})
	if aerr != nil {
		return f, aerr
	}
	s.emit(f, telemetry.EventIdentityChecked, map[string]string{"ok": fmt.Sprint(ok)})
	if !ok {
		return f, res.Err("check identity")
	}
	return f, nil
}

// SendOTP asks the backend to send an OTP on ch. A sign-up mobile send that reports an existing
// account converts the flow into a sign-in flow.
func (s *FlowService) SendOTP(ctx context.Context, id string, ch domain.Channel) (*domain.Flow, error) {
	release, err := s.acquire(id)
	if err != nil {
		return nil, err
	}
	defer release()

	f, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	sentAt := s.nowF()
	if err := f.CheckSend(ch, sentAt); err != nil {
		return f, err
	}
	version := f.DraftVersion
	req := brokerapi.GenerateOTPRequest{
		LoginType:    loginType(f.Kind),
		PAN:          f.Draft.PAN,
		OTPType:      otpType(ch),
		OTPValidator: target(f.Draft, ch),
	}
	if f.Kind == domain.KindSignUp {
		req.DOB = f.Draft.DOB
		req.ClientName = f.Draft.ClientName
	}
	start := time.Now()
	res, err := s.backend.GenerateOTP(ctx, req)
	s.observe(ctx, "generate_otp", res.Kind, err, start)
	if err != nil {
		return s.transportFailed(ctx, f, "send otp", err)
	}
	if !res.IsOK() {
		return s.remoteFailed(ctx, f, res.Reason, res.Err("send otp"))
	}
	if res.Value.AccountExists && f.Kind == domain.KindSignUp && ch == domain.ChannelMobile {
		s.debounce.cancel(id)
		f, err = s.apply(ctx, id, domain.AccountExists{RequestID: res.Value.RequestID, SentAt: sentAt, DraftVersion: version})
		if err == nil {
			s.logger.Info("onboarding: account exists, continuing as sign-in",
				zap.String("flow_id", id),
				zap.String("mobile", logging.MaskMobile(f.Draft.Mobile)),
			)
			s.emit(f, telemetry.EventAccountExists, map[string]string{"mobile": logging.MaskMobile(f.Draft.Mobile)})
		}
		return f, err
	}
	if res.Value.RequestID == "" {
		return s.remoteFailed(ctx, f, brokerapi.GenericFailure, &brokerapi.FailureError{Op: "send otp", Reason: brokerapi.GenericFailure})
	}
	f, err = s.apply(ctx, id, domain.OTPSent{Channel: ch, RequestID: res.Value.RequestID, SentAt: sentAt, DraftVersion: version})
	if err == nil {
		s.emit(f, telemetry.EventOTPSent, map[string]string{"channel": string(ch)})
	}
	return f, err
}

// VerifyOTP checks code against the challenge on ch. A rejected code keeps the challenge and sets a
// field error on the flow.
func (s *FlowService) VerifyOTP(ctx context.Context, id string, ch domain.Channel, code string) (*domain.Flow, error) {
	release, err := s.acquire(id)
	if err != nil {
		return nil, err
	}
	defer release()

	f, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := f.CheckVerify(ch, code); err != nil {
		return f, err
	}
	c := f.Challenges[ch]
	start := time.Now()
	res, err := s.backend.VerifyOTP(ctx, brokerapi.VerifyOTPRequest{
		ID:      c.RequestID,
		PAN:     c.PAN,
		OTPType: otpType(ch),
		OTP:     code,
	})
	s.observe(ctx, "verify_otp", res.Kind, err, start)
	if err != nil {
		return s.transportFailed(ctx, f, "verify otp", err)
	}
	if !res.IsOK() {
		f, aerr := s.apply(ctx, id, domain.OTPRejected{Channel: ch, RequestID: c.RequestID, Message: res.Reason})
		if aerr != nil {
			return f, aerr
		}
		s.emit(f, telemetry.EventOTPRejected, map[string]string{"channel": string(ch)})
		return f, res.Err("verify otp")
	}
	f, err = s.apply(ctx, id, domain.OTPVerified{Channel: ch, RequestID: c.RequestID})
	if err == nil {
		s.emit(f, telemetry.EventOTPVerified, map[string]string{"channel": string(ch)})
	}
	return f, err
}

// Submit creates the backend session, writes the bootstrap into a new session scope and issues a
// gateway access token. A second submit while one runs gets ErrSubmitInProgress; after success every
// submit gets ErrAlreadySignedIn.
func (s *FlowService) Submit(ctx context.Context, id string) (*SignInResult, error) {
	release, err := s.acquire(id)
	if err != nil {
		if f, gerr := s.Get(ctx, id); gerr == nil && f.Submitting {
			return nil, ErrSubmitInProgress
		}
		return nil, err
	}
	defer release()

	f, err := s.apply(ctx, id, domain.SubmitStarted{})
	if err != nil {
		return nil, err
	}
	req := brokerapi.CreateSessionRequest{
		LoginType: loginType(f.Kind),
		ID:        f.Challenges[domain.ChannelMobile].RequestID,
		PAN:       f.Draft.PAN,
		Mobile:    f.Draft.Mobile,
	}
	if f.Kind == domain.KindSignUp {
		req.Email = f.Draft.Email
		req.DOB = f.Draft.DOB
		req.ClientName = f.Draft.ClientName
	}
	start := time.Now()
	res, err := s.backend.CreateSession(ctx, req)
	s.observe(ctx, "create_session", res.Kind, err, start)
	if err != nil {
		s.submitFailed(ctx, f, TransportNotice)
		return nil, fmt.Errorf("submit: %w", err)
	}
	if !res.IsOK() {
		s.submitFailed(ctx, f, res.Reason)
		return nil, res.Err("submit")
	}

	b := bootstrapFrom(f, res.Value)
	scope := s.newID()
	if err := s.writeBootstrap(ctx, scope, f, b); err != nil {
		s.discardScope(ctx, scope)
		s.submitFailed(ctx, f, TransportNotice)
		return nil, fmt.Errorf("submit: store session: %w", err)
	}
	token, exp, err := s.tokens.Issue(scope, b.ClientID, b.TradingID)
	if err != nil {
		s.discardScope(ctx, scope)
		s.submitFailed(ctx, f, TransportNotice)
		return nil, fmt.Errorf("submit: issue token: %w", err)
	}
	signed, err := s.apply(ctx, id, domain.SignedIn{Bootstrap: b})
	if err != nil {
		s.discardScope(ctx, scope)
		s.submitFailed(ctx, f, TransportNotice)
		return nil, err
	}
	f = signed
	s.emitScoped(f, scope, b.ClientID, telemetry.EventSignedIn)
	s.logger.Info("onboarding: signed in",
		zap.String("flow_id", id),
		zap.String("kind", string(f.Kind)),
		zap.String("session", security.Fingerprint(b.SessionID)),
		zap.String("pan", logging.MaskPAN(b.PAN)),
	)
	return &SignInResult{Flow: f, Scope: scope, AccessToken: token, ExpiresAt: exp}, nil
}

// Logout destroys the session bootstrap of scope.
func (s *FlowService) Logout(ctx context.Context, scope string) error {
	return s.endSession(ctx, scope, telemetry.EventLogout)
}

// Expire destroys the session bootstrap of scope after the backend rejected its session.
func (s *FlowService) Expire(ctx context.Context, scope string) error {
	return s.endSession(ctx, scope, telemetry.EventSessionExpired)
}

// Prune deletes flows idle since before and drops their locks.
func (s *FlowService) Prune(ctx context.Context, before time.Time) (int64, error) {
	n, err := s.repo.Prune(ctx, before)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	ids := make([]string, 0, len(s.locks))
	for id := range s.locks {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		if f, err := s.repo.Get(ctx, id); err == nil && f == nil {
			s.forget(id)
		}
	}
	return n, nil
}

// Abandon deletes a flow the client no longer needs. A flow with a remote call running gets ErrFlowBusy.
func (s *FlowService) Abandon(ctx context.Context, id string) error {
	release, err := s.acquire(id)
	if err != nil {
		return err
	}
	defer release()
	f, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete flow: %w", err)
	}
	s.forget(id)
	s.emit(f, telemetry.EventFlowAbandoned, nil)
	return nil
}

func (s *FlowService) forget(id string) {
	s.mu.Lock()
	delete(s.locks, id)
	s.mu.Unlock()
	s.debounce.cancel(id)
}

func (s *FlowService) discardScope(ctx context.Context, scope string) {
	ctx, cancel := detached(ctx)
	defer cancel()
	if err := s.store.Clear(ctx, scope); err != nil {
		s.logger.Warn("onboarding: discard scope", zap.String("scope", scope), zap.Error(err))
	}
}

func (s *FlowService) endSession(ctx context.Context, scope, eventType string) error {
	clientID, _, _ := s.store.Get(ctx, scope, session.KeyClientID)
	if err := s.store.Clear(ctx, scope); err != nil {
		return err
	}
	ev := telemetry.NewEvent(eventType, source)
	ev.Scope = scope
	ev.ClientID = clientID
	telemetry.EmitAsync(s.emitter, s.logger, ev)
	return nil
}

type entry struct {
	key session.Key
	val string
}

func (s *FlowService) writeBootstrap(ctx context.Context, scope string, f *domain.Flow, b domain.Bootstrap) error {
	values := []entry{
		{session.KeySessionID, b.SessionID},
		{session.KeyTradingID, b.TradingID},
		{session.KeyCustomerID, b.CustomerID},
		{session.KeyClientID, b.ClientID},
		{session.KeyCurrentPAN, b.PAN},
		{session.KeyMobile, b.Mobile},
		{session.KeyEmail, b.Email},
	}
	if f.Kind == domain.KindSignUp {
		values = append(values, entry{session.KeyKYCPAN, b.PAN})
	} else {
		form, err := json.Marshal(map[string]string{"pan": b.PAN, "mobile": b.Mobile})
		if err != nil {
			return err
		}
		values = append(values, entry{session.KeyKYCSignInForm, string(form)})
	}
	for _, v := range values {
		if v.val == "" {
			continue
		}
		if err := s.store.Set(ctx, scope, v.key, v.val); err != nil {
			return err
		}
	}
	return nil
}

// acquire takes the flow's operation lock without waiting.
func (s *FlowService) acquire(id string) (func(), error) {
	l := s.lockFor(id)
	if !l.op.TryLock() {
		return nil, ErrFlowBusy
	}
	return l.op.Unlock, nil
}

func (s *FlowService) lockFor(id string) *flowLock {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &flowLock{}
		s.locks[id] = l
	}
	return l
}

// apply loads the flow, reduces ev and saves the result under the flow's state lock. On rejection the
// current flow is returned with the error.
func (s *FlowService) apply(ctx context.Context, id string, ev domain.Event) (*domain.Flow, error) {
	l := s.lockFor(id)
	l.state.Lock()
	defer l.state.Unlock()

	f, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	n, err := domain.Reduce(f, ev, s.nowF())
	if err != nil {
		return f, err
	}
	if err := s.repo.Save(ctx, n); err != nil {
		return f, err
	}
	s.metrics.FlowEvent(ctx, domain.EventName(ev), string(n.Kind))
	return n, nil
}

func (s *FlowService) transportFailed(ctx context.Context, f *domain.Flow, op string, err error) (*domain.Flow, error) {
	s.logger.Warn("onboarding: backend unavailable", zap.String("flow_id", f.ID), zap.String("op", op), zap.Error(err))
	return s.remoteFailed(ctx, f, TransportNotice, fmt.Errorf("%s: %w", op, err))
}

// remoteFailed records notice on the flow and returns cause. The flow is otherwise unchanged.
func (s *FlowService) remoteFailed(ctx context.Context, f *domain.Flow, notice string, cause error) (*domain.Flow, error) {
	ctx, cancel := detached(ctx)
	defer cancel()
	n, err := s.apply(ctx, f.ID, domain.RemoteFailed{Message: notice})
	if err != nil {
		s.logger.Error("onboarding: record notice", zap.String("flow_id", f.ID), zap.Error(err))
		return f, cause
	}
	return n, cause
}

// submitFailed clears Submitting so the flow can be submitted again.
func (s *FlowService) submitFailed(ctx context.Context, f *domain.Flow, notice string) {
	ctx, cancel := detached(ctx)
	defer cancel()
	if _, err := s.apply(ctx, f.ID, domain.SubmitFailed{Message: notice}); err != nil {
		s.logger.Error("onboarding: reset submit", zap.String("flow_id", f.ID), zap.Error(err))
	}
	s.emit(f, telemetry.EventSubmitFailed, nil)
}

// detached keeps the values of ctx but not its cancellation.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), resetTimeout)
}

func (s *FlowService) observe(ctx context.Context, op string, kind brokerapi.Kind, err error, start time.Time) {
	outcome := kind.String()
	if err != nil {
		outcome = "transport"
	}
	s.metrics.BackendCall(ctx, op, outcome, time.Since(start).Seconds())
}

func (s *FlowService) emit(f *domain.Flow, eventType string, attrs map[string]string) {
	ev := telemetry.NewEvent(eventType, source)
	ev.FlowID = f.ID
	ev.With("kind", string(f.Kind)).With("phase", f.Phase.String())
	for k, v := range attrs {
		ev.With(k, v)
	}
	telemetry.EmitAsync(s.emitter, s.logger, ev)
}

func (s *FlowService) emitScoped(f *domain.Flow, scope, clientID, eventType string) {
	ev := telemetry.NewEvent(eventType, source)
	ev.FlowID = f.ID
	ev.Scope = scope
	ev.ClientID = clientID
	ev.With("kind", string(f.Kind))
	telemetry.EmitAsync(s.emitter, s.logger, ev)
}

func bootstrapFrom(f *domain.Flow, info brokerapi.SessionInfo) domain.Bootstrap {
	return domain.Bootstrap{
		SessionID:  info.SessionID,
		TradingID:  info.TradingID,
		CustomerID: info.CustomerID,
		ClientID:   info.ClientID,
		PAN:        orDefault(info.PAN, f.Draft.PAN),
		Mobile:     orDefault(info.Mobile, f.Draft.Mobile),
		Email:      orDefault(info.Email, f.Draft.Email),
		DOB:        orDefault(info.DOB, f.Draft.DOB),
		ClientName: orDefault(info.ClientName, f.Draft.ClientName),
	}
}

func loginType(k domain.Kind) brokerapi.LoginType {
	if k == domain.KindSignUp {
		return brokerapi.LoginSignUp
	}
	return brokerapi.LoginSignIn
}

func otpType(ch domain.Channel) brokerapi.OTPType {
	if ch == domain.ChannelEmail {
		return brokerapi.OTPEmail
	}
	return brokerapi.OTPMobile
}

func target(d domain.Draft, ch domain.Channel) string {
	if ch == domain.ChannelEmail {
		return d.Email
	}
	return d.Mobile
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
