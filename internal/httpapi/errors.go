package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"brokerage-gateway/internal/brokerapi"
	"brokerage-gateway/internal/ipo"
	"brokerage-gateway/internal/onboarding/domain"
	"brokerage-gateway/internal/onboarding/service"
	"brokerage-gateway/internal/tradereport"
)

var conflicts = []error{
	service.ErrFlowBusy,
	service.ErrSubmitInProgress,
	service.ErrAlreadySignedIn,
	domain.ErrCooldown,
	domain.ErrChannelVerified,
	domain.ErrNotReady,
	domain.ErrIdentityUnchecked,
	domain.ErrMobileUnverified,
	domain.ErrNoChallenge,
	domain.ErrWrongKind,
	domain.ErrStaleResult,
}

var badRequests = []error{
	domain.ErrUnknownKind,
	domain.ErrUnknownChannel,
	tradereport.ErrInvalidRange,
	ipo.ErrNoApplications,
	ipo.ErrUnknownIssue,
}

// writeError maps err to a status and JSON body. extra fields (usually the flow snapshot) are merged
// into the body.
func (a *api) writeError(c *gin.Context, err error, extra gin.H) {
	status, body := a.classify(c, err)
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(status, body)
}

func (a *api) classify(c *gin.Context, err error) (int, gin.H) {
	if fe, ok := domain.AsFieldErrors(err); ok {
		return http.StatusBadRequest, gin.H{"error": "validation", "fields": fe}
	}
	if errors.Is(err, brokerapi.ErrSessionExpired) {
		if sess := currentSession(c); sess.Scope != "" {
			if xerr := a.Flows.Expire(c.Request.Context(), sess.Scope); xerr != nil {
				a.Logger.Warn("clear expired session", zap.Error(xerr))
			}
		}
		return http.StatusUnauthorized, gin.H{"error": "session_expired"}
	}
	var denied *ipo.DeniedError
	if errors.As(err, &denied) {
		return http.StatusUnprocessableEntity, gin.H{"error": "denied", "message": denied.Error(), "reasons": denied.Reasons}
	}
	var failed *brokerapi.FailureError
	if errors.As(err, &failed) {
		return http.StatusUnprocessableEntity, gin.H{"error": "failed", "message": failed.Reason}
	}
	if brokerapi.IsTransport(err) {
		a.Logger.Warn("backend unreachable", zap.String("route", c.FullPath()), zap.Error(err))
		return http.StatusBadGateway, gin.H{"error": "unavailable", "message": service.TransportNotice}
	}
	if errors.Is(err, service.ErrFlowNotFound) {
		return http.StatusNotFound, gin.H{"error": "not_found"}
	}
	for _, target := range conflicts {
		if errors.Is(err, target) {
			return http.StatusConflict, gin.H{"error": "conflict", "message": err.Error()}
		}
	}
	for _, target := range badRequests {
		if errors.Is(err, target) {
			return http.StatusBadRequest, gin.H{"error": "bad_request", "message": err.Error()}
		}
	}
	a.Logger.Error("request failed", zap.String("route", c.FullPath()), zap.Error(err))
	return http.StatusInternalServerError, gin.H{"error": "internal"}
}

func badBody(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": err.Error()})
}
