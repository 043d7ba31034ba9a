package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brokerage-gateway/internal/ipo"
	"brokerage-gateway/internal/onboarding/domain"
)

func newCmd(stdin string) (*cobra.Command, *bytes.Buffer) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader(stdin))
	return cmd, &out
}

func TestRunQuote(t *testing.T) {
	quoteIn = ipo.QuoteInput{Lots: 3, SharesPerLot: 50, CutoffPrice: 100, Cutoff: true}
	retailCap = 12000
	t.Cleanup(func() { quoteIn, retailCap = ipo.QuoteInput{}, 0 })

	cmd, out := newCmd("")
	require.NoError(t, runQuote(cmd, nil))
	assert.Contains(t, out.String(), "quantity:  150")
	assert.Contains(t, out.String(), "amount:    15000.00")
	assert.Contains(t, out.String(), "max lots:  2")
	assert.Contains(t, out.String(), "exceeds the retail cap")
}

func TestRunMaxLots(t *testing.T) {
	quoteIn = ipo.QuoteInput{SharesPerLot: 14, BidPrice: 1000}
	retailCap = ipo.DefaultRetailCap
	t.Cleanup(func() { quoteIn, retailCap = ipo.QuoteInput{}, 0 })

	cmd, out := newCmd("")
	require.NoError(t, runMaxLots(cmd, nil))
	assert.Equal(t, "14\n", out.String())
}

func TestRunCheck(t *testing.T) {
	retailCap = ipo.DefaultRetailCap
	t.Cleanup(func() { retailCap = 0 })

	cmd, out := newCmd(`{"lots":1,"quantity":50,"amount":5000,"rate":100,"cutoff":true,"category":"RETAIL","boid":"1","dpid":"2"}`)
	require.NoError(t, runCheck(cmd, nil))
	assert.Equal(t, "allowed\n", out.String())

	cmd, out = newCmd(`{"lots":0,"category":"RETAIL","boid":"1","dpid":"2"}`)
	err := runCheck(cmd, nil)
	require.Error(t, err)
	assert.Contains(t, out.String(), "denied: apply for at least one lot")
}

// fakeGateway accepts OTP 123456 and rejects anything else.
func fakeGateway(t *testing.T) *httptest.Server {
	t.Helper()
	flow := func(w http.ResponseWriter, phase string) {
		_ = json.NewEncoder(w).Encode(map[string]any{"flow": map[string]string{"id": "f1", "phase": phase}})
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/flows", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		flow(w, "idle")
	})
	mux.HandleFunc("PATCH /v1/flows/f1/draft", func(w http.ResponseWriter, r *http.Request) {
		var d domain.Draft
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&d))
		assert.Equal(t, "ABCDE1234F", d.PAN)
		flow(w, "idle")
	})
	mux.HandleFunc("POST /v1/flows/f1/otp/mobile/send", func(w http.ResponseWriter, r *http.Request) {
		flow(w, "otp_sent")
	})
	mux.HandleFunc("POST /v1/flows/f1/otp/mobile/verify", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["code"] != "123456" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "failed", "message": "Invalid OTP"})
			return
		}
		flow(w, "ready")
	})
	mux.HandleFunc("POST /v1/flows/f1/submit", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"flow":         map[string]string{"id": "f1", "phase": "signed_in"},
			"access_token": "tok-123",
			"expires_at":   "2026-03-02T22:00:00Z",
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRunSignin(t *testing.T) {
	srv := fakeGateway(t)
	gatewayURL = srv.URL
	signinDraft = domain.Draft{PAN: "ABCDE1234F", Mobile: "9876543210"}
	timeout = 5 * time.Second
	t.Cleanup(func() { gatewayURL, signinDraft = "", domain.Draft{} })

	cmd, out := newCmd("000000\n123456\n")
	require.NoError(t, runSignin(cmd, nil))
	assert.Contains(t, out.String(), "OTP rejected: Invalid OTP")
	assert.True(t, strings.HasSuffix(out.String(), "tok-123\n"), out.String())
}

func TestRunSignin_NoCode(t *testing.T) {
	srv := fakeGateway(t)
	gatewayURL = srv.URL
	signinDraft = domain.Draft{PAN: "ABCDE1234F", Mobile: "9876543210"}
	timeout = 5 * time.Second
	t.Cleanup(func() { gatewayURL, signinDraft = "", domain.Draft{} })

	cmd, _ := newCmd("")
	err := runSignin(cmd, nil)
	assert.EqualError(t, err, "no OTP entered")
}

func TestGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"conflict","message":"otp resend not available yet"}`))
	}))
	defer srv.Close()

	c := &gatewayClient{base: srv.URL, http: srv.Client()}
	err := c.do(t.Context(), http.MethodPost, "/x", nil, nil)
	var ge *gatewayError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, http.StatusConflict, ge.Status)
	assert.Equal(t, "conflict", ge.Code)
}
