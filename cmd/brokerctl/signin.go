package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"brokerage-gateway/internal/logging"
	"brokerage-gateway/internal/onboarding/domain"
)

var (
	gatewayURL  string
	signinDraft domain.Draft
)

var signinCmd = &cobra.Command{
	Use:   "signin",
	Short: "Sign in through a running gateway, prompting for the mobile OTP",
	Long: `Starts a sign-in flow on the gateway, sends the mobile OTP, reads the code from stdin,
verifies it and submits. Prints the gateway access token on success.

Example:
  brokerctl signin --gateway http://localhost:8080 --pan ABCDE1234F --mobile 9876543210`,
	RunE: runSignin,
}

// gatewayError is a non-2xx gateway response.
type gatewayError struct {
	Status  int    `json:"-"`
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *gatewayError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gateway %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("gateway %d %s", e.Status, e.Code)
}

type gatewayClient struct {
	base string
	http *http.Client
}

type flowSnapshot struct {
	ID    string `json:"id"`
	Phase string `json:"phase"`
}

type flowResponse struct {
	Flow flowSnapshot `json:"flow"`
}

type submitResponse struct {
	Flow        flowSnapshot `json:"flow"`
	AccessToken string       `json:"access_token"`
	ExpiresAt   string       `json:"expires_at"`
}

func (c *gatewayClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		ge := &gatewayError{Status: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(ge)
		return ge
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func runSignin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	c := &gatewayClient{base: strings.TrimSuffix(gatewayURL, "/"), http: &http.Client{Timeout: timeout}}
	out := cmd.OutOrStdout()

	var fr flowResponse
	if err := c.do(ctx, http.MethodPost, "/v1/flows", map[string]string{"kind": string(domain.KindSignIn)}, &fr); err != nil {
		return fmt.Errorf("start flow: %w", err)
	}
	id := fr.Flow.ID
	logger.Debug("flow started", zap.String("flow_id", id))

	if err := c.do(ctx, http.MethodPatch, "/v1/flows/"+id+"/draft", signinDraft, &fr); err != nil {
		return fmt.Errorf("update draft: %w", err)
	}
	if err := c.do(ctx, http.MethodPost, "/v1/flows/"+id+"/otp/mobile/send", nil, &fr); err != nil {
		return fmt.Errorf("send otp: %w", err)
	}
	fmt.Fprintf(out, "OTP sent to %s\n", logging.MaskMobile(signinDraft.Mobile))

	in := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "Enter OTP: ")
		if !in.Scan() {
			if err := in.Err(); err != nil {
				return err
			}
			return errors.New("no OTP entered")
		}
		code := strings.TrimSpace(in.Text())
		err := c.do(ctx, http.MethodPost, "/v1/flows/"+id+"/otp/mobile/verify", map[string]string{"code": code}, &fr)
		if err == nil {
			break
		}
		var ge *gatewayError
		if errors.As(err, &ge) && (ge.Code == "failed" || ge.Code == "validation") {
			fmt.Fprintln(out, "OTP rejected:", orDefault(ge.Message, "try again"))
			continue
		}
		return fmt.Errorf("verify otp: %w", err)
	}

	var sr submitResponse
	if err := c.do(ctx, http.MethodPost, "/v1/flows/"+id+"/submit", nil, &sr); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	fmt.Fprintln(out, "signed in; access token expires", sr.ExpiresAt)
	fmt.Fprintln(out, sr.AccessToken)
	return nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
