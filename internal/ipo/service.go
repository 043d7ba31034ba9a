package ipo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"brokerage-gateway/internal/brokerapi"
	"brokerage-gateway/internal/session"
	"brokerage-gateway/internal/telemetry"
	"brokerage-gateway/internal/telemetry/otel"
)

var (
	ErrNoApplications = errors.New("no applications")
	ErrUnknownIssue   = errors.New("issue is not open")
)

// DeniedError lists the policy rules an application broke. Nothing was submitted.
type DeniedError struct {
	Symbol  string
	Reasons []string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("application for %s denied: %s", e.Symbol, strings.Join(e.Reasons, "; "))
}

// Backend is the subset of the brokerage backend used for IPOs.
type Backend interface {
	ListOpenIPOs(ctx context.Context, sessionID string) (brokerapi.Result[[]brokerapi.IPO], error)
	SubmitIPO(ctx context.Context, sessionID string, rows []brokerapi.IPOApplication) (brokerapi.Result[[]brokerapi.IPOOrderResult], error)
}

// Application is one bid as entered by the investor. Issue details are taken from the open issue list.
type Application struct {
	Symbol     string  `json:"symbol"`
	Lots       int     `json:"lots"`
	BidPrice   float64 `json:"bid_price"`
	Cutoff     bool    `json:"cutoff"`
	Category   string  `json:"category"`
	FormType   string  `json:"form_type"`
	BOID       string  `json:"boid"`
	DPID       string  `json:"dpid"`
	Depository string  `json:"depository"`
	UPIID      string  `json:"upi_id,omitempty"`
}

// Outcome is the result of one submitted row.
type Outcome struct {
	Symbol        string  `json:"symbol"`
	Lots          int     `json:"lots"`
	Quantity      int     `json:"quantity"`
	Amount        float64 `json:"amount"`
	Placed        bool    `json:"placed"`
	ApplicationNo string  `json:"application_no,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// Service prices, checks and submits IPO applications.
type Service struct {
	backend   Backend
	policy    *Policy
	retailCap float64
	emitter   telemetry.EventEmitter
	metrics   *otel.Instruments
	logger    *zap.Logger
}

// NewService returns a Service. retailCap <= 0 uses DefaultRetailCap.
func NewService(backend Backend, policy *Policy, retailCap float64, emitter telemetry.EventEmitter, metrics *otel.Instruments, logger *zap.Logger) *Service {
	if retailCap <= 0 {
		retailCap = DefaultRetailCap
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{backend: backend, policy: policy, retailCap: retailCap, emitter: emitter, metrics: metrics, logger: logger}
}

// RetailCap returns the configured retail ceiling.
func (s *Service) RetailCap() float64 { return s.retailCap }

// Quote prices in against the retail cap.
func (s *Service) Quote(in QuoteInput) Quote {
	return NewQuote(in, s.retailCap)
}

// ListOpen returns the currently open issues.
func (s *Service) ListOpen(ctx context.Context, sess session.Context) ([]brokerapi.IPO, error) {
	start := time.Now()
	res, err := s.backend.ListOpenIPOs(ctx, sess.SessionID)
	s.observe(ctx, "list_ipos", res.Kind, err, start)
	if err != nil {
		return nil, fmt.Errorf("list ipos: %w", err)
	}
	if err := res.Err("list ipos"); err != nil {
		return nil, err
	}
	return res.Value, nil
}

// Apply checks every application against the open issue list and the policy, then submits all rows
// in a single call. Any denied row stops the whole submission.
func (s *Service) Apply(ctx context.Context, sess session.Context, apps []Application) ([]Outcome, error) {
	if len(apps) == 0 {
		return nil, ErrNoApplications
	}
	open, err := s.ListOpen(ctx, sess)
	if err != nil {
		return nil, err
	}
	bySymbol := make(map[string]brokerapi.IPO, len(open))
	for _, issue := range open {
		bySymbol[strings.ToUpper(issue.Symbol)] = issue
	}

	rows := make([]brokerapi.IPOApplication, 0, len(apps))
	outcomes := make([]Outcome, 0, len(apps))
	for _, a := range apps {
		issue, ok := bySymbol[strings.ToUpper(a.Symbol)]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownIssue, a.Symbol)
		}
		row, in := buildRow(sess, issue, a, s.retailCap)
		reasons, err := s.policy.Deny(ctx, in)
		if err != nil {
			return nil, err
		}
		if len(reasons) > 0 {
			return nil, &DeniedError{Symbol: issue.Symbol, Reasons: reasons}
		}
		rows = append(rows, row)
		outcomes = append(outcomes, Outcome{Symbol: issue.Symbol, Lots: a.Lots, Quantity: row.Quantity, Amount: in.Amount})
	}

	start := time.Now()
	res, err := s.backend.SubmitIPO(ctx, sess.SessionID, rows)
	s.observe(ctx, "submit_ipo", res.Kind, err, start)
	if err != nil {
		return nil, fmt.Errorf("submit ipo: %w", err)
	}
	if err := res.Err("submit ipo"); err != nil {
		return nil, err
	}
	placed := 0
	for i := range outcomes {
		if i >= len(res.Value) {
			outcomes[i].Error = brokerapi.GenericFailure
			continue
		}
		r := res.Value[i]
		outcomes[i].Placed = r.Placed
		outcomes[i].ApplicationNo = r.ApplicationNo
		outcomes[i].Error = r.Error
		if r.Placed {
			placed++
		}
	}

	ev := telemetry.NewEvent(telemetry.EventIPOApplied, "ipo")
	ev.Scope = sess.Scope
	ev.ClientID = sess.ClientID
	ev.With("rows", strconv.Itoa(len(rows))).With("placed", strconv.Itoa(placed))
	telemetry.EmitAsync(s.emitter, s.logger, ev)
	return outcomes, nil
}

func buildRow(sess session.Context, issue brokerapi.IPO, a Application, retailCap float64) (brokerapi.IPOApplication, PolicyInput) {
	sharesPerLot := float64(issue.SharesPerLot)
	qty := Quantity(a.Lots, sharesPerLot)
	rate := Price(a.Cutoff, a.BidPrice, float64(issue.CutoffPrice))
	category := a.Category
	if category == "" {
		category = issue.Category.String()
	}
	row := brokerapi.IPOApplication{
		BOID:        a.BOID,
		DPID:        a.DPID,
		Depository:  a.Depository,
		CompanyName: issue.CompanyName,
		Symbol:      issue.Symbol,
		ClientID:    sess.ClientID,
		LotsApplied: a.Lots,
		Quantity:    qty,
		Rate:        rate,
		Cutoff:      a.Cutoff,
		FormType:    a.FormType,
		Category:    category,
		UPIID:       a.UPIID,
	}
	in := PolicyInput{
		Lots:      a.Lots,
		Quantity:  qty,
		Amount:    Amount(qty, rate),
		Rate:      rate,
		Cutoff:    a.Cutoff,
		MinPrice:  float64(issue.MinPrice),
		MaxPrice:  float64(issue.MaxPrice),
		Category:  category,
		FormType:  a.FormType,
		BOID:      a.BOID,
		DPID:      a.DPID,
		UPIID:     a.UPIID,
		RetailCap: retailCap,
	}
	return row, in
}

func (s *Service) observe(ctx context.Context, op string, kind brokerapi.Kind, err error, start time.Time) {
	outcome := kind.String()
	if err != nil {
		outcome = "transport"
	}
	s.metrics.BackendCall(ctx, op, outcome, time.Since(start).Seconds())
}
