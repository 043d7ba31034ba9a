// Package session holds the per-session context the gateway keeps between wizard steps.
package session

import (
	"context"
	"errors"
)

// Key names a session value. The names match the keys the web client used in browser storage.
type Key string

const (
	KeyTradingID      Key = "TradingId"
	KeyCustomerID     Key = "CustomerId"
	KeyClientID       Key = "client_id"
	KeyCurrentPAN     Key = "currentPAN"
	KeySessionID      Key = "session_id"
	KeyMobile         Key = "mobile"
	KeyEmail          Key = "email"
	KeyKYCPAN         Key = "kyc_pan"
	KeyKYCSignInForm  Key = "kyc_signin_form"
	KeyKYCBanks       Key = "kyc_banks"
	KeyKYCBankCheques Key = "kyc_bank_cheques"
)

var knownKeys = map[Key]struct{}{
	KeyTradingID: {}, KeyCustomerID: {}, KeyClientID: {}, KeyCurrentPAN: {}, KeySessionID: {},
	KeyMobile: {}, KeyEmail: {}, KeyKYCPAN: {}, KeyKYCSignInForm: {}, KeyKYCBanks: {}, KeyKYCBankCheques: {},
}

// ErrUnknownKey is returned by Set for keys outside the fixed key set.
var ErrUnknownKey = errors.New("session: unknown key")

// Valid reports whether k is one of the known keys.
func (k Key) Valid() bool {
	_, ok := knownKeys[k]
	return ok
}

// Store is the explicit session context passed through the wizard steps. Values under one scope
// are cache conveniences and can be rebuilt from the backend.
type Store interface {
	// Get returns the value for key in scope. ok is false when missing or the scope expired.
	Get(ctx context.Context, scope string, key Key) (value string, ok bool, err error)
	// Set stores value for key in scope. The scope expires a fixed TTL after its first Set.
	Set(ctx context.Context, scope string, key Key, value string) error
	// Clear removes every value in scope.
	Clear(ctx context.Context, scope string) error
	// Values returns all live values in scope; empty when the scope is unknown or expired.
	Values(ctx context.Context, scope string) (map[Key]string, error)
}

// ErrNoSession is returned by Load when scope holds no signed-in session.
var ErrNoSession = errors.New("session: not signed in")

// Context is the signed-in bootstrap read back from a Store.
type Context struct {
	Scope      string
	SessionID  string
	TradingID  string
	CustomerID string
	ClientID   string
	PAN        string
}

// Load reads the bootstrap values of scope. A scope without a backend session id is ErrNoSession.
func Load(ctx context.Context, s Store, scope string) (Context, error) {
	vals, err := s.Values(ctx, scope)
	if err != nil {
		return Context{}, err
	}
	if vals[KeySessionID] == "" {
		return Context{}, ErrNoSession
	}
	return Context{
		Scope:      scope,
		SessionID:  vals[KeySessionID],
		TradingID:  vals[KeyTradingID],
		CustomerID: vals[KeyCustomerID],
		ClientID:   vals[KeyClientID],
		PAN:        vals[KeyCurrentPAN],
	}, nil
}
