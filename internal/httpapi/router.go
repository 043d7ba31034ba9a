// Package httpapi is the gateway's HTTP surface. Handlers translate JSON to service calls and map
// service errors to status codes in one place.
package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"brokerage-gateway/internal/brokerapi"
	"brokerage-gateway/internal/health"
	"brokerage-gateway/internal/ipo"
	"brokerage-gateway/internal/kyc"
	"brokerage-gateway/internal/onboarding/service"
	"brokerage-gateway/internal/security"
	"brokerage-gateway/internal/session"
	"brokerage-gateway/internal/telemetry"
	"brokerage-gateway/internal/tradereport"
)

// TokenValidator validates gateway access tokens.
type TokenValidator interface {
	Validate(token string) (security.Principal, error)
}

// EventLister lists the recorded events of a flow.
type EventLister interface {
	ListByFlow(ctx context.Context, flowID string, limit int32) ([]*telemetry.Event, error)
}

// SessionValidator asks the backend whether a session id is still valid.
type SessionValidator interface {
	ValidateSession(ctx context.Context, sessionID string) (brokerapi.Result[struct{}], error)
}

// Deps holds the services behind the API. Events, Validator and Health may be nil.
type Deps struct {
	Flows     *service.FlowService
	IPO       *ipo.Service
	Banks     *kyc.BankService
	Reports   *tradereport.Service
	Sessions  session.Store
	Tokens    TokenValidator
	Validator SessionValidator
	Events    EventLister
	Health    *health.Checker
	Logger    *zap.Logger
}

type api struct {
	Deps
}

// NewRouter returns the gin engine with every route registered.
func NewRouter(deps Deps) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	a := &api{Deps: deps}

	r := gin.New()
	r.Use(Tracing(), RequestLogger(deps.Logger), gin.CustomRecovery(a.recovered))
	r.GET("/healthz", a.healthz)

	flows := r.Group("/v1/flows")
	flows.POST("", a.startFlow)
	flows.GET("/:id", a.getFlow)
	flows.DELETE("/:id", a.abandonFlow)
	flows.PATCH("/:id/draft", a.updateDraft)
	flows.POST("/:id/identity-check", a.checkIdentity)
	flows.POST("/:id/otp/:channel/send", a.sendOTP)
	flows.POST("/:id/otp/:channel/verify", a.verifyOTP)
	flows.POST("/:id/submit", a.submit)
	if deps.Events != nil {
		flows.GET("/:id/events", a.flowEvents)
	}

	authed := r.Group("/v1", Auth(deps.Tokens, deps.Sessions))
	authed.GET("/session", a.getSession)
	authed.DELETE("/session", a.logout)
	authed.GET("/ipo/open", a.listIPOs)
	authed.POST("/ipo/quote", a.quoteIPO)
	authed.POST("/ipo/applications", a.applyIPO)
	authed.POST("/kyc/bank", a.submitBank)
	authed.GET("/reports/trades", a.tradeReport)
	authed.GET("/reports/trades/export", a.exportTrades)
	return r
}

func (a *api) healthz(c *gin.Context) {
	if err := a.Health.Check(c.Request.Context()); err != nil {
		a.Logger.Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *api) recovered(c *gin.Context, rec any) {
	a.Logger.Error("http panic", zap.String("path", c.Request.URL.Path), zap.Any("panic", rec))
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal"})
}
