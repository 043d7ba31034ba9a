// Package tradereport fetches a client's trades, filters and summarises them, and exports reports.
package tradereport

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"brokerage-gateway/internal/brokerapi"
	"brokerage-gateway/internal/session"
	"brokerage-gateway/internal/telemetry"
	"brokerage-gateway/internal/telemetry/otel"
)

// DateLayout is the date format of filters and trade rows.
const DateLayout = "2006-01-02"

// MaxRange is the widest date range one report may cover.
const MaxRange = 366 * 24 * time.Hour

var ErrInvalidRange = errors.New("invalid date range")

// Filter selects trades. From and To are inclusive; empty Segment, Symbol and Side match everything.
type Filter struct {
	From    time.Time
	To      time.Time
	Segment string
	Symbol  string
	Side    string
}

// ParseFilter builds a filter from YYYY-MM-DD dates.
func ParseFilter(from, to, segment, symbol, side string) (Filter, error) {
	f := Filter{
		Segment: strings.ToUpper(strings.TrimSpace(segment)),
		Symbol:  strings.ToUpper(strings.TrimSpace(symbol)),
		Side:    normalizeSide(side),
	}
	var err error
	if f.From, err = time.Parse(DateLayout, from); err != nil {
		return Filter{}, fmt.Errorf("%w: from %q", ErrInvalidRange, from)
	}
	if f.To, err = time.Parse(DateLayout, to); err != nil {
		return Filter{}, fmt.Errorf("%w: to %q", ErrInvalidRange, to)
	}
	if f.To.Before(f.From) {
		return Filter{}, fmt.Errorf("%w: to before from", ErrInvalidRange)
	}
	if f.To.Sub(f.From) > MaxRange {
		return Filter{}, fmt.Errorf("%w: more than one year", ErrInvalidRange)
	}
	return f, nil
}

// Match reports whether t passes the filter. Rows with an unparseable date never match.
func (f Filter) Match(t brokerapi.Trade) bool {
	d, err := time.Parse(DateLayout, tradeDay(t.TradeDate))
	if err != nil || d.Before(f.From) || d.After(f.To) {
		return false
	}
	if f.Segment != "" && !strings.EqualFold(t.Segment, f.Segment) {
		return false
	}
	if f.Symbol != "" && !strings.EqualFold(t.Symbol, f.Symbol) {
		return false
	}
	if f.Side != "" && normalizeSide(t.Side) != f.Side {
		return false
	}
	return true
}

// Row is one trade in a report.
type Row struct {
	TradeDate string  `json:"trade_date"`
	Exchange  string  `json:"exchange"`
	Segment   string  `json:"segment"`
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"`
	Quantity  float64 `json:"quantity"`
	Price     float64 `json:"price"`
	Value     float64 `json:"value"`
	OrderNo   string  `json:"order_no"`
	TradeNo   string  `json:"trade_no"`
}

// Summary totals a report.
type Summary struct {
	Count     int     `json:"count"`
	BuyValue  float64 `json:"buy_value"`
	SellValue float64 `json:"sell_value"`
	// Net is sell value minus buy value.
	Net float64 `json:"net"`
}

// Report is a filtered, date-ordered trade list.
type Report struct {
	ClientID string  `json:"client_id"`
	Filter   Filter  `json:"-"`
	From     string  `json:"from"`
	To       string  `json:"to"`
	Rows     []Row   `json:"rows"`
	Summary  Summary `json:"summary"`
}

// Build filters trades and computes the summary.
func Build(clientID string, f Filter, trades []brokerapi.Trade) Report {
	r := Report{
		ClientID: clientID,
		Filter:   f,
		From:     f.From.Format(DateLayout),
		To:       f.To.Format(DateLayout),
		Rows:     []Row{},
	}
	for _, t := range trades {
		if !f.Match(t) {
			continue
		}
		qty, price := float64(t.Quantity), float64(t.Price)
		row := Row{
			TradeDate: tradeDay(t.TradeDate),
			Exchange:  t.Exchange,
			Segment:   t.Segment,
			Symbol:    t.Symbol,
			Side:      normalizeSide(t.Side),
			Quantity:  qty,
			Price:     price,
			Value:     qty * price,
			OrderNo:   t.OrderNo.String(),
			TradeNo:   t.TradeNo.String(),
		}
		r.Rows = append(r.Rows, row)
		r.Summary.Count++
		switch row.Side {
		case "BUY":
			r.Summary.BuyValue += row.Value
		case "SELL":
			r.Summary.SellValue += row.Value
		}
	}
	r.Summary.Net = r.Summary.SellValue - r.Summary.BuyValue
	sort.SliceStable(r.Rows, func(i, j int) bool { return r.Rows[i].TradeDate < r.Rows[j].TradeDate })
	return r
}

func tradeDay(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > len(DateLayout) {
		return s[:len(DateLayout)]
	}
	return s
}

func normalizeSide(s string) string {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "B", "BUY":
		return "BUY"
	case "S", "SELL":
		return "SELL"
	default:
		return strings.ToUpper(strings.TrimSpace(s))
	}
}

// Backend is the subset of the brokerage backend used for reports.
type Backend interface {
	ListTrades(ctx context.Context, sessionID string, req brokerapi.ListTradesRequest) (brokerapi.Result[[]brokerapi.Trade], error)
}

// Service builds trade reports for the signed-in client.
type Service struct {
	backend Backend
	emitter telemetry.EventEmitter
	metrics *otel.Instruments
	logger  *zap.Logger
}

// NewService returns a Service. emitter, metrics and logger may be nil.
func NewService(backend Backend, emitter telemetry.EventEmitter, metrics *otel.Instruments, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{backend: backend, emitter: emitter, metrics: metrics, logger: logger}
}

// Report fetches the client's trades for the filter's range and applies the rest of the filter locally.
func (s *Service) Report(ctx context.Context, sess session.Context, f Filter) (Report, error) {
	start := time.Now()
	res, err := s.backend.ListTrades(ctx, sess.SessionID, brokerapi.ListTradesRequest{
		ClientID: sess.ClientID,
		From:     f.From.Format(DateLayout),
		To:       f.To.Format(DateLayout),
		Segment:  f.Segment,
	})
	outcome := res.Kind.String()
	if err != nil {
		outcome = "transport"
	}
	s.metrics.BackendCall(ctx, "list_trades", outcome, time.Since(start).Seconds())
	if err != nil {
		return Report{}, fmt.Errorf("list trades: %w", err)
	}
	if err := res.Err("list trades"); err != nil {
		return Report{}, err
	}
	return Build(sess.ClientID, f, res.Value), nil
}

// Exported records that a report was exported in format.
func (s *Service) Exported(sess session.Context, r Report, format string) {
	ev := telemetry.NewEvent(telemetry.EventTradeReportExport, "tradereport")
	ev.Scope = sess.Scope
	ev.ClientID = sess.ClientID
	ev.With("format", format).With("rows", fmt.Sprint(len(r.Rows)))
	telemetry.EmitAsync(s.emitter, s.logger, ev)
}
