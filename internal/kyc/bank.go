// Package kyc implements the bank account step of the KYC wizard.
package kyc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"brokerage-gateway/internal/brokerapi"
	"brokerage-gateway/internal/onboarding/domain"
	"brokerage-gateway/internal/session"
	"brokerage-gateway/internal/telemetry"
	"brokerage-gateway/internal/telemetry/otel"
)

// MaxAccounts is the number of bank accounts a client may register.
const MaxAccounts = 3

var (
	ifscPattern    = regexp.MustCompile(`^[A-Z]{4}0[A-Z0-9]{6}$`)
	accountPattern = regexp.MustCompile(`^[0-9]{9,18}$`)
)

// Backend is the subset of the brokerage backend used by the bank step.
type Backend interface {
	SaveBank(ctx context.Context, sessionID string, req brokerapi.SaveBankRequest) (brokerapi.Result[string], error)
	PennyDrop(ctx context.Context, sessionID string, req brokerapi.PennyDropRequest) (brokerapi.Result[brokerapi.PennyDropResult], error)
}

// VerifiedAccount is an account that passed the penny drop.
type VerifiedAccount struct {
	AccountNumber string `json:"account_number"`
	IFSC          string `json:"ifsc"`
	NameAtBank    string `json:"name_at_bank"`
	Primary       bool   `json:"primary"`
}

// BankService saves bank accounts and verifies each one by penny drop.
type BankService struct {
	backend Backend
	store   session.Store
	emitter telemetry.EventEmitter
	metrics *otel.Instruments
	logger  *zap.Logger
}

// NewBankService returns a BankService. emitter, metrics and logger may be nil.
func NewBankService(backend Backend, store session.Store, emitter telemetry.EventEmitter, metrics *otel.Instruments, logger *zap.Logger) *BankService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BankService{backend: backend, store: store, emitter: emitter, metrics: metrics, logger: logger}
}

// Submit issues the bank save and one penny drop per account concurrently and waits for all of them.
// The step succeeds only if every call succeeds; nothing is rolled back on failure. On success the
// accounts and cheques are recorded in the session.
func (s *BankService) Submit(ctx context.Context, sess session.Context, accounts []brokerapi.BankAccount, cheques []brokerapi.Cheque) ([]VerifiedAccount, error) {
	accounts = normalize(accounts)
	if err := validate(accounts, cheques).Err(); err != nil {
		return nil, err
	}

	saveErr := make([]error, 1)
	dropErr := make([]error, len(accounts))
	verified := make([]VerifiedAccount, len(accounts))

	var g errgroup.Group
	g.Go(func() error {
		start := time.Now()
		res, err := s.backend.SaveBank(ctx, sess.SessionID, brokerapi.SaveBankRequest{
			ClientID: sess.ClientID,
			Accounts: accounts,
			Cheques:  cheques,
		})
		s.observe(ctx, "save_bank", res.Kind, err, start)
		if err != nil {
			saveErr[0] = fmt.Errorf("save bank: %w", err)
		} else {
			saveErr[0] = res.Err("save bank")
		}
		return saveErr[0]
	})
	for i, a := range accounts {
		g.Go(func() error {
			start := time.Now()
			res, err := s.backend.PennyDrop(ctx, sess.SessionID, brokerapi.PennyDropRequest{
				ClientID:      sess.ClientID,
				AccountNumber: a.AccountNumber,
				IFSC:          a.IFSC,
				HolderName:    a.HolderName,
			})
			s.observe(ctx, "penny_drop", res.Kind, err, start)
			switch {
			case err != nil:
				dropErr[i] = fmt.Errorf("penny drop %s: %w", maskAccount(a.AccountNumber), err)
			case !res.IsOK():
				dropErr[i] = res.Err("penny drop " + maskAccount(a.AccountNumber))
			default:
				verified[i] = VerifiedAccount{
					AccountNumber: a.AccountNumber,
					IFSC:          a.IFSC,
					NameAtBank:    res.Value.NameAtBank,
					Primary:       a.Primary,
				}
			}
			return dropErr[i]
		})
	}
	if err := g.Wait(); err != nil {
		err = pick(append(saveErr, dropErr...))
		s.emit(telemetry.EventKYCBankFailed, sess, len(accounts), err)
		return nil, err
	}

	if err := s.complete(ctx, sess, verified, cheques); err != nil {
		return nil, err
	}
	s.emit(telemetry.EventKYCBankCompleted, sess, len(accounts), nil)
	return verified, nil
}

// complete records the verified step in the session.
func (s *BankService) complete(ctx context.Context, sess session.Context, verified []VerifiedAccount, cheques []brokerapi.Cheque) error {
	banks, err := json.Marshal(verified)
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, sess.Scope, session.KeyKYCBanks, string(banks)); err != nil {
		return fmt.Errorf("record banks: %w", err)
	}
	if len(cheques) == 0 {
		return nil
	}
	b, err := json.Marshal(cheques)
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, sess.Scope, session.KeyKYCBankCheques, string(b)); err != nil {
		return fmt.Errorf("record cheques: %w", err)
	}
	return nil
}

// pick returns the error the caller should act on: an expired session first, then a transport
// failure, then the first logical failure.
func pick(errs []error) error {
	var first, transport error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if errors.Is(err, brokerapi.ErrSessionExpired) {
			return err
		}
		if transport == nil && brokerapi.IsTransport(err) {
			transport = err
		}
		if first == nil {
			first = err
		}
	}
	if transport != nil {
		return transport
	}
	return first
}

func normalize(accounts []brokerapi.BankAccount) []brokerapi.BankAccount {
	out := make([]brokerapi.BankAccount, len(accounts))
	primary := false
	for i, a := range accounts {
		a.AccountNumber = strings.TrimSpace(a.AccountNumber)
		a.IFSC = strings.ToUpper(strings.TrimSpace(a.IFSC))
		a.HolderName = strings.Join(strings.Fields(a.HolderName), " ")
		if a.Primary {
			if primary {
				a.Primary = false
			}
			primary = true
		}
		out[i] = a
	}
	if !primary && len(out) > 0 {
		out[0].Primary = true
	}
	return out
}

func validate(accounts []brokerapi.BankAccount, cheques []brokerapi.Cheque) domain.FieldErrors {
	fe := domain.FieldErrors{}
	if len(accounts) == 0 || len(accounts) > MaxAccounts {
		fe["accounts"] = "add between 1 and " + strconv.Itoa(MaxAccounts) + " bank accounts"
		return fe
	}
	seen := make(map[string]bool, len(accounts))
	for i, a := range accounts {
		prefix := fmt.Sprintf("accounts[%d].", i)
		if !accountPattern.MatchString(a.AccountNumber) {
			fe[prefix+"account_number"] = "enter a valid account number"
		} else if seen[a.AccountNumber] {
			fe[prefix+"account_number"] = "account already added"
		}
		seen[a.AccountNumber] = true
		if !ifscPattern.MatchString(a.IFSC) {
			fe[prefix+"ifsc"] = "enter a valid IFSC (e.g. HDFC0001234)"
		}
		if a.HolderName == "" {
			fe[prefix+"holder_name"] = "account holder name is required"
		}
	}
	for i, c := range cheques {
		if !seen[strings.TrimSpace(c.AccountNumber)] {
			fe[fmt.Sprintf("cheques[%d].account_number", i)] = "cheque does not match an added account"
		}
		if c.DocumentID == "" {
			fe[fmt.Sprintf("cheques[%d].document_id", i)] = "upload the cancelled cheque"
		}
	}
	return fe
}

func maskAccount(n string) string {
	if len(n) <= 4 {
		return n
	}
	return strings.Repeat("X", len(n)-4) + n[len(n)-4:]
}

func (s *BankService) emit(eventType string, sess session.Context, accounts int, err error) {
	ev := telemetry.NewEvent(eventType, "kyc")
	ev.Scope = sess.Scope
	ev.ClientID = sess.ClientID
	ev.With("accounts", strconv.Itoa(accounts))
	if err != nil {
		ev.With("reason", brokerapi.Reason(err))
		s.logger.Info("kyc: bank step failed", zap.String("client_id", sess.ClientID), zap.Error(err))
	}
	telemetry.EmitAsync(s.emitter, s.logger, ev)
}

func (s *BankService) observe(ctx context.Context, op string, kind brokerapi.Kind, err error, start time.Time) {
	outcome := kind.String()
	if err != nil {
		outcome = "transport"
	}
	s.metrics.BackendCall(ctx, op, outcome, time.Since(start).Seconds())
}
