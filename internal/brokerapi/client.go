// Package brokerapi is the HTTP client for the brokerage backend. Every endpoint returns a tagged
// Result (Ok, Failed or SessionExpired) so callers never branch on raw status fields.
package brokerapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout  = 15 * time.Second
	maxResponseSize = 4 << 20

	pathIdentityCheck   = "/kyc/pan-dob-check"
	pathGenerateOTP     = "/kyc/generate-otp"
	pathVerifyOTP       = "/kyc/verify-otp"
	pathCreateSession   = "/kyc/session"
	pathListIPOs        = "/ipo/open"
	pathSubmitIPO       = "/ipo/apply"
	pathSaveBank        = "/kyc/bank"
	pathPennyDrop       = "/kyc/penny-drop"
	pathListTrades      = "/reports/trades"
	pathValidateSession = "/auth/validate-token"
)

// Client calls the brokerage backend over HTTPS/JSON.
type Client struct {
	BaseURL    string
	BranchCode string
	HTTPClient *http.Client
}

// NewClient returns a client for baseURL. timeout <= 0 uses 15s.
func NewClient(baseURL, branchCode string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		BaseURL:    strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		BranchCode: branchCode,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// CheckIdentity runs the PAN/name/DOB plausibility check. Ok only when the status is success and all three
// matched flags are true.
func (c *Client) CheckIdentity(ctx context.Context, req IdentityCheckRequest) (Result[IdentityMatch], error) {
	var resp identityCheckResponse
	if _, err := c.call(ctx, http.MethodPost, pathIdentityCheck, "", req, &resp); err != nil {
		return Result[IdentityMatch]{}, err
	}
	m := IdentityMatch{
		PANMatched:  resp.PANMatched.Truthy(),
		NameMatched: resp.NameMatched.Truthy(),
		DOBMatched:  resp.DOBMatched.Truthy(),
	}
	if !resp.Status.Is("success") {
		return Failed[IdentityMatch](resp.Message), nil
	}
	if !m.PANMatched || !m.NameMatched || !m.DOBMatched {
		reason := resp.Message
		if reason == "" {
			reason = mismatchReason(m)
		}
		return Failed[IdentityMatch](reason), nil
	}
	return OK(m), nil
}

func mismatchReason(m IdentityMatch) string {
	var parts []string
	if !m.PANMatched {
		parts = append(parts, "PAN")
	}
	if !m.NameMatched {
		parts = append(parts, "name")
	}
	if !m.DOBMatched {
		parts = append(parts, "date of birth")
	}
	return strings.Join(parts, ", ") + " did not match the PAN records"
}

// accountExistsSignal is the backend message for a sign-up attempt on an existing account.
const accountExistsSignal = "already has an account"

// GenerateOTP requests an OTP on the given channel. BranchCode is filled from the client when empty.
func (c *Client) GenerateOTP(ctx context.Context, req GenerateOTPRequest) (Result[OTPIssued], error) {
	if req.BranchCode == "" {
		req.BranchCode = c.BranchCode
	}
	var resp generateOTPResponse
	if _, err := c.call(ctx, http.MethodPost, pathGenerateOTP, "", req, &resp); err != nil {
		return Result[OTPIssued]{}, err
	}
	if resp.Status.Is("exists", "account_exists") || strings.Contains(strings.ToLower(resp.Message), accountExistsSignal) {
		return OK(OTPIssued{RequestID: resp.ID.String(), AccountExists: true, Message: resp.Message}), nil
	}
	if !resp.Status.Is("success") {
		return Failed[OTPIssued](resp.Message), nil
	}
	if resp.ID == "" {
		return Failed[OTPIssued]("OTP request id missing from response"), nil
	}
	return OK(OTPIssued{RequestID: resp.ID.String(), Message: resp.Message}), nil
}

// VerifyOTP checks the code for a previously issued request id. Ok when status is "verify".
func (c *Client) VerifyOTP(ctx context.Context, req VerifyOTPRequest) (Result[string], error) {
	var resp messageResponse
	if _, err := c.call(ctx, http.MethodPost, pathVerifyOTP, "", req, &resp); err != nil {
		return Result[string]{}, err
	}
	if !resp.Status.Is("verify") {
		return Failed[string](resp.Message), nil
	}
	return OK(resp.Message), nil
}

// CreateSession submits a verified sign-in or sign-up and returns the session bootstrap payload.
func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (Result[SessionInfo], error) {
	var resp createSessionResponse
	if _, err := c.call(ctx, http.MethodPost, pathCreateSession, "", req, &resp); err != nil {
		return Result[SessionInfo]{}, err
	}
	if !resp.Status.Is("success") {
		return Failed[SessionInfo](resp.Message), nil
	}
	if resp.SessionID == "" {
		return Failed[SessionInfo]("session id missing from response"), nil
	}
	return OK(SessionInfo{
		SessionID:  resp.SessionID.String(),
		TradingID:  resp.TradingID.String(),
		CustomerID: resp.CustomerID.String(),
		ClientID:   resp.ClientID.String(),
		PAN:        resp.PAN,
		Mobile:     resp.Mobile.String(),
		Email:      resp.Email,
		DOB:        resp.DOB,
		ClientName: resp.ClientName,
	}), nil
}

// ListOpenIPOs returns the issues currently open for bidding.
func (c *Client) ListOpenIPOs(ctx context.Context, sessionID string) (Result[[]IPO], error) {
	var resp listIPOResponse
	expired, err := c.call(ctx, http.MethodGet, pathListIPOs, sessionID, nil, &resp)
	if err != nil {
		return Result[[]IPO]{}, err
	}
	if expired {
		return Expired[[]IPO](), nil
	}
	if !resp.Status.Is("success") {
		return Failed[[]IPO](resp.Message), nil
	}
	return OK(resp.Data), nil
}

// SubmitIPO places one or more IPO applications in a single call. The result holds one entry per row,
// in request order; rows the backend did not answer are reported as not placed.
func (c *Client) SubmitIPO(ctx context.Context, sessionID string, rows []IPOApplication) (Result[[]IPOOrderResult], error) {
	var resp submitIPOResponse
	expired, err := c.call(ctx, http.MethodPost, pathSubmitIPO, sessionID, rows, &resp)
	if err != nil {
		return Result[[]IPOOrderResult]{}, err
	}
	if expired {
		return Expired[[]IPOOrderResult](), nil
	}
	if len(resp.Data) == 0 {
		return Failed[[]IPOOrderResult](resp.Message), nil
	}
	out := make([]IPOOrderResult, len(rows))
	for i := range out {
		if i >= len(resp.Data) {
			out[i] = IPOOrderResult{Error: "no response for application"}
			continue
		}
		d := resp.Data[i]
		out[i] = IPOOrderResult{
			Placed:        d.OrderStatus.Truthy(),
			ApplicationNo: d.ApplicationNo.String(),
			Error:         d.Error,
		}
	}
	return OK(out), nil
}

// SaveBank stores the bank accounts and cheque references. Ok when status is "True".
func (c *Client) SaveBank(ctx context.Context, sessionID string, req SaveBankRequest) (Result[string], error) {
	var resp messageResponse
	expired, err := c.call(ctx, http.MethodPost, pathSaveBank, sessionID, req, &resp)
	if err != nil {
		return Result[string]{}, err
	}
	if expired {
		return Expired[string](), nil
	}
	if !resp.Status.Truthy() {
		return Failed[string](resp.Message), nil
	}
	return OK(resp.Message), nil
}

// PennyDrop verifies one account. Ok when Success is true.
func (c *Client) PennyDrop(ctx context.Context, sessionID string, req PennyDropRequest) (Result[PennyDropResult], error) {
	var resp pennyDropResponse
	expired, err := c.call(ctx, http.MethodPost, pathPennyDrop, sessionID, req, &resp)
	if err != nil {
		return Result[PennyDropResult]{}, err
	}
	if expired {
		return Expired[PennyDropResult](), nil
	}
	if !resp.Success.Truthy() {
		return Failed[PennyDropResult](resp.Message), nil
	}
	return OK(PennyDropResult{AccountNumber: req.AccountNumber, NameAtBank: resp.NameAtBank}), nil
}

// ListTrades returns the client's trades for the requested range.
func (c *Client) ListTrades(ctx context.Context, sessionID string, req ListTradesRequest) (Result[[]Trade], error) {
	var resp listTradesResponse
	expired, err := c.call(ctx, http.MethodPost, pathListTrades, sessionID, req, &resp)
	if err != nil {
		return Result[[]Trade]{}, err
	}
	if expired {
		return Expired[[]Trade](), nil
	}
	if !resp.Status.Is("success") {
		return Failed[[]Trade](resp.Message), nil
	}
	return OK(resp.Data), nil
}

// ValidateSession asks the backend whether sessionID is still valid.
func (c *Client) ValidateSession(ctx context.Context, sessionID string) (Result[struct{}], error) {
	var resp messageResponse
	expired, err := c.call(ctx, http.MethodPost, pathValidateSession, sessionID, validateSessionRequest{SessionID: sessionID}, &resp)
	if err != nil {
		return Result[struct{}]{}, err
	}
	if expired || !resp.Status.Truthy() {
		return Expired[struct{}](), nil
	}
	return OK(struct{}{}), nil
}

// call sends in as JSON and decodes the response into out. When sessionID is non-empty the call is
// authenticated and the shared token check runs: 401/403 or an invalid-token body reports expired=true.
func (c *Client) call(ctx context.Context, method, path, sessionID string, in, out any) (expired bool, err error) {
	if c.BaseURL == "" {
		return false, fmt.Errorf("%w: base URL not configured", ErrTransport)
	}
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return false, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sessionID != "" {
		req.Header.Set("Authorization", sessionID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %s %s: %v", ErrTransport, method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return false, fmt.Errorf("%w: read %s: %v", ErrTransport, path, err)
	}
	if sessionID != "" && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
		return true, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("%w: %s status=%d body=%s", ErrTransport, path, resp.StatusCode, truncate(raw, 256))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("%w: decode %s: %v", ErrTransport, path, err)
	}
	if sessionID != "" && tokenRejected(raw) {
		return true, nil
	}
	return false, nil
}

// tokenRejected inspects an envelope for the backend's invalid/expired token markers.
func tokenRejected(raw []byte) bool {
	var env messageResponse
	if err := json.Unmarshal(raw, &env); err != nil {
		// Array or unrelated shape; nothing to inspect.
		return false
	}
	for _, s := range []string{strings.ToLower(env.Status.String()), strings.ToLower(env.Message)} {
		if s == "" {
			continue
		}
		if strings.Contains(s, "session expired") || strings.Contains(s, "invalid session") {
			return true
		}
		if strings.Contains(s, "token") && (strings.Contains(s, "invalid") || strings.Contains(s, "expired")) {
			return true
		}
	}
	return false
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// IsTransport reports whether err is a transport failure.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}
